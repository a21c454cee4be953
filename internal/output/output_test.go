package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriter_Icons(t *testing.T) {
	tests := []struct {
		name  string
		write func(w *Writer)
		want  string
	}{
		{"status", func(w *Writer) { w.Status("📦", "Publishing index...") }, "📦 Publishing index...\n"},
		{"status without icon", func(w *Writer) { w.Status("", "detail") }, "   detail\n"},
		{"statusf", func(w *Writer) { w.Statusf("📊", "%d metrics", 7) }, "📊 7 metrics\n"},
		{"success", func(w *Writer) { w.Successf("Wrote %s", ".docvec.yaml") }, "✅ Wrote .docvec.yaml\n"},
		{"warning", func(w *Writer) { w.Warningf("%s exists", "x") }, "⚠️  x exists\n"},
		{"error", func(w *Writer) { w.Errorf("failed: %v", "boom") }, "❌ failed: boom\n"},
		{"key value", func(w *Writer) { w.KeyValue("Bucket", "docs") }, "   Bucket:    docs\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			tc.write(New(buf))
			assert.Equal(t, tc.want, buf.String())
		})
	}
}

func TestWriter_Code_IndentsEveryLine(t *testing.T) {
	// Given: a writer with a buffer
	buf := &bytes.Buffer{}
	w := New(buf)

	// When: printing a multi-line block
	w.Code("docvec build docs\ndocvec inspect my_vector_db\n")

	// Then: each line is indented and the block is framed by blank lines
	assert.Equal(t, "\n  docvec build docs\n  docvec inspect my_vector_db\n\n", buf.String())
}

func TestWriter_Quiet(t *testing.T) {
	// Given: a quiet writer
	buf := &bytes.Buffer{}
	w := NewQuiet(buf)

	// When: printing every kind of line
	w.Success("done")
	w.Status("📦", "publishing")
	w.KeyValue("Bucket", "docs")
	w.Code("x")
	w.Newline()
	w.Warning("careful")
	w.Error("broken")

	// Then: only warnings and errors get through
	assert.Equal(t, "⚠️  careful\n❌ broken\n", buf.String())
}
