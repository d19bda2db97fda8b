// Package checkpoint journals the progress of ingest runs.
//
// Every run is recorded at each phase transition, so a run that dies after
// some rule tables were appended but before the watermark was saved leaves a
// record of exactly which tables were written.
package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Phase is the stage a run has reached.
type Phase string

const (
	PhaseAggregating Phase = "aggregating"
	PhaseLoading     Phase = "loading"
	PhaseWatermark   Phase = "watermark"
	PhaseComplete    Phase = "complete"
	PhaseFailed      Phase = "failed"
)

// Done reports whether the phase is terminal.
func (p Phase) Done() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// SkippedFile is a file the run ignored.
type SkippedFile struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Run is the journal record of one ingest invocation.
type Run struct {
	ID      string `json:"id"`
	Project string `json:"project"`
	Dataset string `json:"dataset"`

	// Progress
	Files   int            `json:"files"`
	Skipped []SkippedFile  `json:"skipped,omitempty"`
	Tables  []string       `json:"tables,omitempty"`
	Rows    map[string]int `json:"rows,omitempty"`

	// State
	Phase       Phase      `json:"phase"`
	StartedAt   time.Time  `json:"started_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Duration returns how long the run took, or has been running.
func (r *Run) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.StartedAt)
	}
	return time.Since(r.StartedAt)
}

// FileBackend stores one JSON document per run in a directory.
type FileBackend struct {
	dir string
}

const runExt = ".run.json"

// NewFileBackend creates a file backend, creating dir if needed.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}
	return &FileBackend{dir: dir}, nil
}

func (b *FileBackend) path(id string) string {
	return filepath.Join(b.dir, id+runExt)
}

// Save writes the record to a temp file, then renames it into place.
func (b *FileBackend) Save(ctx context.Context, run *Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	path := b.path(run.ID)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return err
	}

	return os.Rename(tempPath, path)
}

// Load reads the record for id. Unknown IDs return os.ErrNotExist.
func (b *FileBackend) Load(ctx context.Context, id string) (*Run, error) {
	if strings.ContainsAny(id, `/\`) {
		return nil, os.ErrNotExist
	}
	data, err := os.ReadFile(b.path(id))
	if err != nil {
		return nil, err
	}

	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run %s: %w", id, err)
	}
	return &run, nil
}

// Recent returns up to limit records, most recently updated first.
func (b *FileBackend) Recent(ctx context.Context, limit int) ([]*Run, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, err
	}

	var runs []*Run
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), runExt) {
			continue
		}
		run, err := b.Load(ctx, strings.TrimSuffix(entry.Name(), runExt))
		if err != nil {
			continue
		}
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].UpdatedAt.After(runs[j].UpdatedAt)
	})
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// Cleanup removes finished records older than maxAge.
func (b *FileBackend) Cleanup(ctx context.Context, maxAge time.Duration) (int, error) {
	runs, err := b.Recent(ctx, 0)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, run := range runs {
		if run.Phase.Done() && run.UpdatedAt.Before(cutoff) {
			if err := os.Remove(b.path(run.ID)); err == nil {
				removed++
			}
		}
	}
	return removed, nil
}

// Name returns "file".
func (b *FileBackend) Name() string {
	return "file"
}

// Close is a no-op.
func (b *FileBackend) Close() error {
	return nil
}
