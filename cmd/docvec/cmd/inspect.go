package cmd

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/docvec/internal/store"
	"github.com/Aman-CERP/docvec/internal/ui"
)

func newInspectCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "inspect [index-dir]",
		Short: "Verify a saved index and print its manifest",
		Long: `Inspect opens a saved index, checks that the vector graph, the docstore
and the manifest agree, and prints what was built: counts, embedder,
chunking settings, storage sizes and chunks per source document.

Exits non-zero when the index is inconsistent.`,
		Example: `  docvec inspect my_vector_db
  docvec inspect my_vector_db --json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := ""
			if len(args) > 0 {
				dir = args[0]
			} else {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				dir = cfg.Paths.Output
			}
			return runInspect(cmd, dir, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func runInspect(cmd *cobra.Command, dir string, jsonOutput bool) error {
	ctx := cmd.Context()

	ix, err := store.Open(ctx, dir)
	if err != nil {
		return err
	}
	defer func() { _ = ix.Close() }()

	m := ix.Manifest
	info := ui.IndexInfo{
		Dir:           dir,
		BuildID:       m.BuildID,
		CreatedAt:     m.CreatedAt,
		DocvecVersion: m.DocvecVersion,
		DocsPath:      m.DocsPath,
		Provider:      m.Provider,
		Model:         m.Model,
		Dimensions:    m.Dimensions,
		Metric:        m.Metric,
		Documents:     m.Documents,
		Chunks:        m.Chunks,
		Vectors:       m.Vectors,
		ChunkSize:     m.ChunkSize,
		ChunkOverlap:  m.ChunkOverlap,
		Sizes:         storageSizes(dir),
		Verified:      true,
	}

	sources, err := ix.Docs.Sources(ctx)
	if err != nil {
		return err
	}
	for _, s := range sources {
		info.Sources = append(info.Sources, ui.SourceChunk{Source: s.Source, Chunks: s.Chunks})
	}

	verifyErr := ix.Verify(ctx)
	if verifyErr != nil {
		info.Verified = false
		info.VerifyError = verifyErr.Error()
	}

	r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
	if jsonOutput {
		err = r.RenderJSON(info)
	} else {
		err = r.Render(info)
	}
	if err != nil {
		return err
	}
	return verifyErr
}

// storageSizes sums the on-disk size of the index files. Missing files
// count as zero.
func storageSizes(dir string) ui.StorageSizes {
	size := func(name string) int64 {
		fi, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			return 0
		}
		return fi.Size()
	}

	var sizes ui.StorageSizes
	sizes.Graph = size(store.IndexFile) + size(store.IndexFile+store.IndexMetaExt)
	sizes.DocStore = size(store.DocStoreFile)
	sizes.Total = sizes.Graph + sizes.DocStore + size(store.ManifestFile)
	return sizes
}
