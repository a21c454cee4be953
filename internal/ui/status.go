package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// IndexInfo is what `docvec inspect` reports about a saved index.
type IndexInfo struct {
	Dir           string        `json:"dir"`
	BuildID       string        `json:"build_id"`
	CreatedAt     time.Time     `json:"created_at"`
	DocvecVersion string        `json:"docvec_version,omitempty"`
	DocsPath      string        `json:"docs_path,omitempty"`
	Provider      string        `json:"provider"`
	Model         string        `json:"model"`
	Dimensions    int           `json:"dimensions"`
	Metric        string        `json:"metric"`
	Documents     int           `json:"documents"`
	Chunks        int           `json:"chunks"`
	Vectors       int           `json:"vectors"`
	ChunkSize     int           `json:"chunk_size"`
	ChunkOverlap  int           `json:"chunk_overlap"`
	Sizes         StorageSizes  `json:"sizes"`
	Sources       []SourceChunk `json:"sources,omitempty"`
	Verified      bool          `json:"verified"`
	VerifyError   string        `json:"verify_error,omitempty"`
}

// StorageSizes holds on-disk sizes in bytes.
type StorageSizes struct {
	Graph    int64 `json:"graph"`
	DocStore int64 `json:"docstore"`
	Total    int64 `json:"total"`
}

// SourceChunk is a per-document chunk count.
type SourceChunk struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}

// StatusRenderer prints index information.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{out: out, styles: GetStyles(noColor)}
}

// Render writes a human-readable report.
func (r *StatusRenderer) Render(info IndexInfo) error {
	_, _ = fmt.Fprintf(r.out, "%s\n\n", r.styles.Header.Render("Index: "+info.Dir))

	_, _ = fmt.Fprintf(r.out, "  Build:      %s\n", info.BuildID)
	if !info.CreatedAt.IsZero() {
		_, _ = fmt.Fprintf(r.out, "  Created:    %s (%s)\n", info.CreatedAt.Local().Format("2006-01-02 15:04"), formatAge(info.CreatedAt))
	}
	if info.DocsPath != "" {
		_, _ = fmt.Fprintf(r.out, "  Docs:       %s\n", info.DocsPath)
	}
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintf(r.out, "  Documents:  %d\n", info.Documents)
	_, _ = fmt.Fprintf(r.out, "  Chunks:     %d (size %d, overlap %d)\n", info.Chunks, info.ChunkSize, info.ChunkOverlap)
	_, _ = fmt.Fprintf(r.out, "  Vectors:    %d\n", info.Vectors)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Embedder:")
	_, _ = fmt.Fprintf(r.out, "    Provider: %s\n", info.Provider)
	_, _ = fmt.Fprintf(r.out, "    Model:    %s\n", info.Model)
	_, _ = fmt.Fprintf(r.out, "    Vector:   %d dims, %s\n", info.Dimensions, info.Metric)
	_, _ = fmt.Fprintln(r.out)

	_, _ = fmt.Fprintln(r.out, "  Storage:")
	_, _ = fmt.Fprintf(r.out, "    Graph:    %s\n", FormatBytes(info.Sizes.Graph))
	_, _ = fmt.Fprintf(r.out, "    DocStore: %s\n", FormatBytes(info.Sizes.DocStore))
	_, _ = fmt.Fprintf(r.out, "    Total:    %s\n", FormatBytes(info.Sizes.Total))

	if len(info.Sources) > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "  Sources:")
		for _, s := range info.Sources {
			_, _ = fmt.Fprintf(r.out, "    %5d  %s\n", s.Chunks, s.Source)
		}
	}

	_, _ = fmt.Fprintln(r.out)
	if info.Verified {
		_, _ = fmt.Fprintf(r.out, "  Status: %s\n", r.styles.Success.Render("ok"))
	} else {
		_, _ = fmt.Fprintf(r.out, "  Status: %s\n", r.styles.Error.Render("inconsistent: "+info.VerifyError))
	}
	return nil
}

// RenderJSON writes the report as indented JSON.
func (r *StatusRenderer) RenderJSON(info IndexInfo) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(info)
}

func formatAge(t time.Time) string {
	diff := time.Since(t)
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return plural(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return plural(int(diff.Hours()), "hour")
	default:
		return plural(int(diff.Hours()/24), "day")
	}
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit + " ago"
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
