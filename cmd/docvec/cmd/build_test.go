package cmd

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/store"
)

// TS01: docs -> my_vector_db with the default paths
func TestBuildCmd_DefaultPaths(t *testing.T) {
	// Given: ./docs with one 1000-character file
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "docs", "notes.txt"), strings.Repeat("lorem ipsum ", 84)[:1000])

	// When: running build with the static provider and plain output
	out, err := runCmd(t, "build", "--provider", "static", "--no-tui")

	// Then: my_vector_db holds a consistent index
	require.NoError(t, err)
	assert.Contains(t, out, "1 documents loaded")
	assert.Contains(t, out, "Vectorizing chunks...")
	assert.Contains(t, out, "Vectorization complete!")
	assert.Contains(t, out, "Vector DB created successfully!")

	m, err := store.ReadManifest(filepath.Join(dir, "my_vector_db", store.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, "static", m.Provider)
	assert.Equal(t, 1, m.Documents)
	assert.GreaterOrEqual(t, m.Chunks, 2)
	assert.Equal(t, m.Chunks, m.Vectors)
}

func TestBuildCmd_VectorizeAliasWithFlags(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "input", "a.md"), "# Title\n\nSome text.")
	writeFile(t, filepath.Join(dir, "input", "skip.txt"), "ignored by glob")

	_, err := runCmd(t, "vectorize", "input",
		"-o", "out",
		"--glob", "**/*.md",
		"--chunk-size", "100",
		"--chunk-overlap", "10",
		"--provider", "static",
		"--batch-size", "1",
		"--no-tui")
	require.NoError(t, err)

	m, err := store.ReadManifest(filepath.Join(dir, "out", store.ManifestFile))
	require.NoError(t, err)
	assert.Equal(t, 1, m.Documents)
	assert.Equal(t, 100, m.ChunkSize)
	assert.Equal(t, 10, m.ChunkOverlap)
	assert.Equal(t, "input", m.DocsPath)
}

func TestBuildCmd_InvalidFlags(t *testing.T) {
	isolate(t)

	_, err := runCmd(t, "build", "--provider", "static", "--chunk-size", "10", "--chunk-overlap", "20")

	assert.Equal(t, dverrors.ErrCodeConfigInvalid, dverrors.GetCode(err))
}

func TestBuildCmd_MissingDocsDir(t *testing.T) {
	dir := isolate(t)

	_, err := runCmd(t, "build", "nowhere", "--provider", "static", "--no-tui")

	assert.Equal(t, dverrors.ErrCodeFileNotFound, dverrors.GetCode(err))
	assert.NoDirExists(t, filepath.Join(dir, "my_vector_db"))
}

func TestBuildCmd_EmptyDocsDir(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "docs"), 0o755))

	_, err := runCmd(t, "build", "--provider", "static", "--no-tui")

	assert.Equal(t, dverrors.ErrCodeNoDocuments, dverrors.GetCode(err))
}

func TestBuildCmd_ConfigFileAndEnv(t *testing.T) {
	// Given: a project config and an environment override
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "src", "a.txt"), "hello world")
	writeFile(t, filepath.Join(dir, ".docvec.yaml"), "paths:\n  docs: src\n  output: from-yaml\nembeddings:\n  provider: static\n")
	t.Setenv("DOCVEC_OUTPUT", "from-env")

	// When: building without flags
	_, err := runCmd(t, "build", "--no-tui")
	require.NoError(t, err)

	// Then: the environment wins over the file
	assert.FileExists(t, filepath.Join(dir, "from-env", store.ManifestFile))
	assert.NoDirExists(t, filepath.Join(dir, "from-yaml"))
}

func TestBuildCmd_MetricsFile(t *testing.T) {
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "docs", "a.txt"), "hello world")

	out, err := runCmd(t, "build", "--provider", "static", "--no-tui", "--metrics-file", "metrics/docvec.prom")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "metrics", "docvec.prom"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "docvec_documents_loaded_total 1")
	assert.Contains(t, string(data), "docvec_index_vectors 1")
	assert.Contains(t, out, "Metrics written to metrics/docvec.prom")
}

func TestBuildCmd_PublishRequiresBucket(t *testing.T) {
	// Given: no publish.s3.bucket configured
	dir := isolate(t)
	writeFile(t, filepath.Join(dir, "docs", "a.txt"), "hello world")

	// When: building with --publish
	_, err := runCmd(t, "build", "--provider", "static", "--no-tui", "--publish")

	// Then: the index is saved but publishing fails as a config error
	assert.Equal(t, dverrors.ErrCodeConfigInvalid, dverrors.GetCode(err))
	assert.FileExists(t, filepath.Join(dir, "my_vector_db", store.ManifestFile))
}
