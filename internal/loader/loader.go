// Package loader discovers documents under a directory and reads them into
// plain text with source metadata.
package loader

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	dverrors "github.com/Aman-CERP/docvec/internal/errors"
)

// DefaultGlob selects every file whose name contains a dot, at any depth.
const DefaultGlob = "**/*.*"

// Document is one loaded file.
type Document struct {
	// Content is the extracted text.
	Content string
	// Source is the file path joined onto the docs root as given.
	Source string
	// RelPath is the slash-separated path relative to the docs root.
	RelPath string
	Format  Format
	// Metadata always holds "source"; markdown front matter and HTML titles
	// add more keys.
	Metadata map[string]string
}

// Options configures a Loader.
type Options struct {
	Glob    string
	Exclude []string
	// SkipUnsupported turns binary/non-UTF-8 files into warnings instead of
	// failing the load.
	SkipUnsupported bool
	// LoadHidden includes files and directories whose names start with a
	// dot. Without it they are never walked.
	LoadHidden bool
}

// SkipFunc is told about every file skipped as unsupported.
type SkipFunc func(relPath string, err error)

// Loader reads documents from a directory tree.
type Loader struct {
	opts Options
}

// New validates the patterns in opts and returns a Loader.
func New(opts Options) (*Loader, error) {
	if opts.Glob == "" {
		opts.Glob = DefaultGlob
	}
	if err := validatePattern(opts.Glob); err != nil {
		return nil, dverrors.ConfigError("invalid glob", err)
	}
	for _, p := range opts.Exclude {
		if err := validatePattern(p); err != nil {
			return nil, dverrors.ConfigError("invalid exclude pattern", err)
		}
	}
	return &Loader{opts: opts}, nil
}

// Discover walks root and returns the slash-separated relative paths of all
// matching files in lexical order.
func (l *Loader) Discover(ctx context.Context, root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, dverrors.New(dverrors.ErrCodeFileNotFound,
			fmt.Sprintf("docs directory %s not found", root), err).
			WithSuggestion("pass the documents directory as an argument or set paths.docs")
	}
	if !info.IsDir() {
		return nil, dverrors.New(dverrors.ErrCodeFileNotFound,
			fmt.Sprintf("%s is not a directory", root), nil)
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			return walkErr
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if !l.opts.LoadHidden && isHidden(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if l.excludedDir(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}
		if d.Type()&fs.ModeSymlink != 0 {
			// Follow links to files, never into directories.
			target, err := os.Stat(path)
			if err != nil || target.IsDir() {
				return nil
			}
		}

		if matchGlob(l.opts.Glob, rel) && !l.excludedFile(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, ioError(root, err)
	}

	return files, nil
}

// LoadFile reads and parses one file below root.
func (l *Loader) LoadFile(root, rel string) (Document, error) {
	path := filepath.Join(root, filepath.FromSlash(rel))

	data, err := os.ReadFile(path)
	if err != nil {
		return Document{}, ioError(path, err)
	}

	format := DetectFormat(rel)
	text, meta, err := parse(format, data)
	if err != nil {
		var unsupported *errUnsupported
		if errors.As(err, &unsupported) {
			return Document{}, dverrors.New(dverrors.ErrCodeUnsupportedDocument,
				fmt.Sprintf("unsupported document %s", path), err).
				WithSuggestion("exclude it with paths.exclude or set loader.skip_unsupported")
		}
		return Document{}, dverrors.New(dverrors.ErrCodeLoadFailed,
			fmt.Sprintf("failed to parse %s", path), err)
	}

	if meta == nil {
		meta = make(map[string]string, 2)
	}
	meta["source"] = path
	meta["format"] = string(format)

	return Document{
		Content:  text,
		Source:   path,
		RelPath:  rel,
		Format:   format,
		Metadata: meta,
	}, nil
}

// Load discovers and reads every matching document under root. Unsupported
// files fail the load unless SkipUnsupported is set, in which case onSkip
// (if non-nil) is told about each one.
func (l *Loader) Load(ctx context.Context, root string, onSkip SkipFunc) ([]Document, error) {
	files, err := l.Discover(ctx, root)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, rel := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		doc, err := l.LoadFile(root, rel)
		if err != nil {
			if l.opts.SkipUnsupported && IsUnsupported(err) {
				slog.Warn("document_skipped", slog.String("path", rel), slog.String("error", err.Error()))
				if onSkip != nil {
					onSkip(rel, err)
				}
				continue
			}
			return nil, err
		}

		slog.Debug("document_loaded",
			slog.String("path", rel),
			slog.String("format", string(doc.Format)),
			slog.Int("chars", len([]rune(doc.Content))),
			slog.Any("metadata_keys", sortedKeys(doc.Metadata)))
		docs = append(docs, doc)
	}

	return docs, nil
}

// IsUnsupported reports whether err marks a file no parser could read.
func IsUnsupported(err error) bool {
	return dverrors.GetCode(err) == dverrors.ErrCodeUnsupportedDocument
}

func isHidden(name string) bool {
	return strings.HasPrefix(name, ".") && name != "." && name != ".."
}

func (l *Loader) excludedDir(rel string) bool {
	for _, p := range l.opts.Exclude {
		if matchDir(p, rel) {
			return true
		}
	}
	return false
}

func (l *Loader) excludedFile(rel string) bool {
	for _, p := range l.opts.Exclude {
		if matchGlob(p, rel) {
			return true
		}
	}
	return false
}

func ioError(path string, err error) error {
	code := dverrors.ErrCodeLoadFailed
	switch {
	case errors.Is(err, fs.ErrNotExist):
		code = dverrors.ErrCodeFileNotFound
	case errors.Is(err, fs.ErrPermission):
		code = dverrors.ErrCodeFilePermission
	}
	return dverrors.New(code, fmt.Sprintf("failed to read %s", path), err)
}
