package ui

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// PlainRenderer writes one line per event, for CI logs and pipes.
type PlainRenderer struct {
	mu     sync.Mutex
	out    io.Writer
	stage  Stage
	errors []ErrorEvent
}

// NewPlainRenderer creates a plain text renderer.
func NewPlainRenderer(cfg Config) *PlainRenderer {
	return &PlainRenderer{out: cfg.Output}
}

// Start implements Renderer.
func (r *PlainRenderer) Start(context.Context) error {
	return nil
}

// UpdateProgress implements Renderer.
func (r *PlainRenderer) UpdateProgress(event ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = event.Stage

	msg := event.Message
	if msg == "" {
		msg = event.CurrentFile
	}

	if event.Total > 0 {
		_, _ = fmt.Fprintf(r.out, "[%s] %d/%d - %s\n", event.Stage.Icon(), event.Current, event.Total, msg)
	} else if msg != "" {
		_, _ = fmt.Fprintf(r.out, "[%s] %s\n", event.Stage.Icon(), msg)
	}
}

// AddError implements Renderer.
func (r *PlainRenderer) AddError(event ErrorEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.errors = append(r.errors, event)

	prefix := "ERROR"
	if event.IsWarn {
		prefix = "WARN"
	}
	if event.File != "" {
		_, _ = fmt.Fprintf(r.out, "%s: %s: %v\n", prefix, event.File, event.Err)
	} else {
		_, _ = fmt.Fprintf(r.out, "%s: %v\n", prefix, event.Err)
	}
}

// Complete implements Renderer.
func (r *PlainRenderer) Complete(stats CompletionStats) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stage = StageComplete
	round := 100 * time.Millisecond

	_, _ = fmt.Fprintf(r.out, "Complete: %d documents, %d chunks, %d vectors in %s",
		stats.Documents, stats.Chunks, stats.Vectors, stats.Duration.Round(round))
	if stats.Errors > 0 || stats.Warnings > 0 {
		_, _ = fmt.Fprintf(r.out, " (%d errors, %d warnings)", stats.Errors, stats.Warnings)
	}
	_, _ = fmt.Fprintln(r.out)

	if stats.OutputDir != "" {
		_, _ = fmt.Fprintf(r.out, "Output:  %s\n", stats.OutputDir)
	}
	if stats.BuildID != "" {
		_, _ = fmt.Fprintf(r.out, "Build:   %s\n", stats.BuildID)
	}

	if stats.Stages.Load > 0 || stats.Stages.Embed > 0 {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintln(r.out, "Stage Breakdown:")
		_, _ = fmt.Fprintf(r.out, "  Load:   %s\n", stats.Stages.Load.Round(round))
		_, _ = fmt.Fprintf(r.out, "  Split:  %s\n", stats.Stages.Split.Round(round))
		if stats.Stages.Embed > 0 && stats.Chunks > 0 {
			_, _ = fmt.Fprintf(r.out, "  Embed:  %s (%d chunks @ %.1f/sec)\n",
				stats.Stages.Embed.Round(round), stats.Chunks, float64(stats.Chunks)/stats.Stages.Embed.Seconds())
		}
		_, _ = fmt.Fprintf(r.out, "  Index:  %s\n", stats.Stages.Index.Round(round))
		_, _ = fmt.Fprintf(r.out, "  Save:   %s\n", stats.Stages.Save.Round(round))
	}

	if stats.Embedder.Provider != "" {
		_, _ = fmt.Fprintln(r.out)
		_, _ = fmt.Fprintf(r.out, "Embedder: %s (%s, %d dims", stats.Embedder.Provider, stats.Embedder.Model, stats.Embedder.Dimensions)
		if stats.CacheHits > 0 {
			_, _ = fmt.Fprintf(r.out, ", %d cache hits", stats.CacheHits)
		}
		_, _ = fmt.Fprintln(r.out, ")")
	}
}

// Stop implements Renderer.
func (r *PlainRenderer) Stop() error {
	return nil
}
