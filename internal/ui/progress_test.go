package ui

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProgressTracker_Initial(t *testing.T) {
	p := NewProgressTracker()

	stats := p.Stats()
	assert.Equal(t, StageLoading, stats.Stage)
	assert.Equal(t, 0.0, stats.Progress)
	assert.Zero(t, stats.ETA)
}

func TestProgressTracker_UpdateAndStage(t *testing.T) {
	// Given: a tracker in the embedding stage
	p := NewProgressTracker()
	p.SetStage(StageEmbedding, 200)

	// When: half the chunks are done
	p.Update(100, 0, "docs/a.md")

	// Then: the snapshot reflects it
	stats := p.Stats()
	assert.Equal(t, StageEmbedding, stats.Stage)
	assert.InDelta(t, 0.5, stats.Progress, 1e-9)
	assert.Equal(t, 200, stats.Total)
	assert.Equal(t, "docs/a.md", stats.CurrentFile)

	// When: the stage changes
	p.SetStage(StageIndexing, 0)

	// Then: per-stage fields reset
	stats = p.Stats()
	assert.Equal(t, StageIndexing, stats.Stage)
	assert.Equal(t, 0, stats.Current)
	assert.Empty(t, stats.CurrentFile)
}

func TestProgressTracker_ProgressCapped(t *testing.T) {
	p := NewProgressTracker()
	p.SetStage(StageLoading, 10)
	p.Update(15, 0, "")

	assert.Equal(t, 1.0, p.Stats().Progress)
	assert.Zero(t, p.Stats().ETA)
}

func TestProgressTracker_TotalFromUpdate(t *testing.T) {
	p := NewProgressTracker()
	p.Update(3, 12, "")

	assert.Equal(t, 12, p.Stats().Total)
	assert.InDelta(t, 0.25, p.Stats().Progress, 1e-9)
}

func TestProgressTracker_Errors(t *testing.T) {
	p := NewProgressTracker()

	p.AddError(ErrorEvent{Err: errors.New("x"), IsWarn: true})
	p.AddError(ErrorEvent{Err: errors.New("y"), IsWarn: true})
	p.AddError(ErrorEvent{Err: errors.New("z")})

	stats := p.Stats()
	assert.Equal(t, 2, stats.WarnCount)
	assert.Equal(t, 1, stats.ErrorCount)
}
