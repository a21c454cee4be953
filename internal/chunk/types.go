// Package chunk splits loaded documents into bounded, overlapping text chunks.
package chunk

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Splitter defaults. Sizes are counted in characters (runes).
const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
)

// DefaultSeparators are tried in order, coarsest first. The empty separator
// splits into single characters and always matches.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

// Chunk is a retrievable unit of content.
type Chunk struct {
	ID      string // sha256(source + seq + content)[:16]
	Content string
	Source  string
	Seq     int // 0-based position inside the source document
	// Metadata is a copy of the parent document's metadata.
	Metadata map[string]string
}

// Options configures a RecursiveSplitter.
type Options struct {
	ChunkSize    int
	ChunkOverlap int
	Separators   []string
}

// DefaultOptions returns the standard 500/50 character configuration.
func DefaultOptions() Options {
	return Options{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: DefaultChunkOverlap,
		Separators:   append([]string(nil), DefaultSeparators...),
	}
}

// chunkID hashes the chunk's identity. Identical text at different positions
// gets different IDs.
func chunkID(source string, seq int, content string) string {
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{0})
	h.Write([]byte(strconv.Itoa(seq)))
	h.Write([]byte{0})
	h.Write([]byte(content))
	return hex.EncodeToString(h.Sum(nil))[:16]
}
