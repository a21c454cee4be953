package chunk

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"unicode/utf8"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
	"github.com/Aman-CERP/docvec/internal/loader"
)

// RecursiveSplitter splits text on the coarsest separator that occurs in it,
// recursing into finer separators for pieces that are still too large, and
// then greedily merges pieces back into windows of at most ChunkSize.
type RecursiveSplitter struct {
	opts Options
}

// NewRecursiveSplitter validates opts and returns a splitter. Nil separators
// mean DefaultSeparators.
func NewRecursiveSplitter(opts Options) (*RecursiveSplitter, error) {
	if opts.ChunkSize <= 0 {
		return nil, dverrors.ConfigError(
			fmt.Sprintf("chunk size must be positive, got %d", opts.ChunkSize), nil)
	}
	if opts.ChunkOverlap < 0 {
		return nil, dverrors.ConfigError(
			fmt.Sprintf("chunk overlap must be non-negative, got %d", opts.ChunkOverlap), nil)
	}
	if opts.ChunkOverlap > opts.ChunkSize {
		return nil, dverrors.ConfigError(
			fmt.Sprintf("chunk overlap (%d) is larger than chunk size (%d)", opts.ChunkOverlap, opts.ChunkSize), nil).
			WithSuggestion("lower --chunk-overlap or raise --chunk-size")
	}
	if len(opts.Separators) == 0 {
		opts.Separators = append([]string(nil), DefaultSeparators...)
	}
	return &RecursiveSplitter{opts: opts}, nil
}

// Options returns the effective configuration.
func (s *RecursiveSplitter) Options() Options {
	return s.opts
}

// Split cuts one document into chunks. Each chunk carries a copy of the
// document's metadata.
func (s *RecursiveSplitter) Split(doc loader.Document) []Chunk {
	texts := s.SplitText(doc.Content)
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, Chunk{
			ID:       chunkID(doc.Source, i, text),
			Content:  text,
			Source:   doc.Source,
			Seq:      i,
			Metadata: maps.Clone(doc.Metadata),
		})
	}
	return chunks
}

// SplitAll splits every document in order. It only fails on cancellation.
func (s *RecursiveSplitter) SplitAll(ctx context.Context, docs []loader.Document) ([]Chunk, error) {
	var all []Chunk
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		chunks := s.Split(doc)
		slog.Debug("document_split",
			slog.String("source", doc.Source),
			slog.Int("chunks", len(chunks)))
		all = append(all, chunks...)
	}
	return all, nil
}

// SplitText returns the chunk texts for a single string.
func (s *RecursiveSplitter) SplitText(text string) []string {
	return s.split(text, s.opts.Separators)
}

func (s *RecursiveSplitter) split(text string, separators []string) []string {
	sep := separators[len(separators)-1]
	var finer []string
	for i, candidate := range separators {
		if candidate == "" {
			sep = ""
			break
		}
		if strings.Contains(text, candidate) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var (
		out  []string
		good []string
	)
	for _, piece := range splitKeepSeparator(text, sep) {
		if runeLen(piece) < s.opts.ChunkSize {
			good = append(good, piece)
			continue
		}
		if len(good) > 0 {
			out = append(out, s.merge(good)...)
			good = nil
		}
		if len(finer) == 0 {
			// Atomic: nothing finer to split on.
			if text := strings.TrimSpace(piece); text != "" {
				out = append(out, text)
			}
		} else {
			out = append(out, s.split(piece, finer)...)
		}
	}
	if len(good) > 0 {
		out = append(out, s.merge(good)...)
	}
	return out
}

// merge greedily joins pieces into windows of at most ChunkSize runes. After
// each emitted window, pieces are dropped from the front until what remains
// fits within ChunkOverlap and leaves room for the next piece.
func (s *RecursiveSplitter) merge(pieces []string) []string {
	var (
		out     []string
		window  []string
		lengths []int
		total   int
	)
	for _, piece := range pieces {
		n := runeLen(piece)
		if total+n > s.opts.ChunkSize {
			if len(window) > 0 {
				if text := strings.TrimSpace(strings.Join(window, "")); text != "" {
					out = append(out, text)
				}
				for total > s.opts.ChunkOverlap || (total+n > s.opts.ChunkSize && total > 0) {
					total -= lengths[0]
					window, lengths = window[1:], lengths[1:]
				}
			}
		}
		window = append(window, piece)
		lengths = append(lengths, n)
		total += n
	}
	if text := strings.TrimSpace(strings.Join(window, "")); text != "" {
		out = append(out, text)
	}
	return out
}

// splitKeepSeparator splits text on sep, attaching each separator to the start
// of the piece that follows it. Empty pieces are dropped; an empty sep yields
// single characters.
func splitKeepSeparator(text, sep string) []string {
	if sep == "" {
		pieces := make([]string, 0, len(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	var pieces []string
	rest := text
	first := true
	for {
		i := strings.Index(rest, sep)
		if !first {
			// rest starts with sep; look for the next one after it.
			i = strings.Index(rest[len(sep):], sep)
			if i >= 0 {
				i += len(sep)
			}
		}
		if i < 0 {
			if rest != "" {
				pieces = append(pieces, rest)
			}
			return pieces
		}
		if rest[:i] != "" {
			pieces = append(pieces, rest[:i])
		}
		rest = rest[i:]
		first = false
	}
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
