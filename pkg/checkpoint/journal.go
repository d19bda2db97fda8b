package checkpoint

import (
	"context"
	"log/slog"
	"time"
)

// Journal records run progress on a Backend. Backend failures are logged
// and never returned: journaling must not fail a run.
type Journal struct {
	backend Backend
	now     func() time.Time
}

// NewJournal creates a journal over b. A nil backend disables journaling.
func NewJournal(b Backend) *Journal {
	if b == nil {
		b = NopBackend{}
	}
	return &Journal{backend: b, now: time.Now}
}

// Enabled reports whether records are persisted anywhere.
func (j *Journal) Enabled() bool {
	_, nop := j.backend.(NopBackend)
	return !nop
}

// Backend returns the underlying backend.
func (j *Journal) Backend() Backend {
	return j.backend
}

// Start creates and saves the record of a new run.
func (j *Journal) Start(ctx context.Context, id, project, dataset string, files int) *Run {
	now := j.now().UTC()
	run := &Run{
		ID:        id,
		Project:   project,
		Dataset:   dataset,
		Files:     files,
		Rows:      make(map[string]int),
		Phase:     PhaseAggregating,
		StartedAt: now,
		UpdatedAt: now,
	}
	j.save(ctx, run)
	return run
}

// Skipped records the files a run ignored.
func (j *Journal) Skipped(run *Run, files []SkippedFile) {
	run.Skipped = append(run.Skipped, files...)
}

// Advance moves run to phase and saves it.
func (j *Journal) Advance(ctx context.Context, run *Run, phase Phase) {
	run.Phase = phase
	j.touch(ctx, run)
}

// TableLoaded records a rule table append and saves the run.
func (j *Journal) TableLoaded(ctx context.Context, run *Run, table string, rows int) {
	run.Tables = append(run.Tables, table)
	run.Rows[table] += rows
	j.touch(ctx, run)
}

// Complete marks run complete.
func (j *Journal) Complete(ctx context.Context, run *Run) {
	run.Phase = PhaseComplete
	j.finish(ctx, run)
}

// Fail marks run failed with err.
func (j *Journal) Fail(ctx context.Context, run *Run, err error) {
	run.Phase = PhaseFailed
	if err != nil {
		run.Error = err.Error()
	}
	j.finish(ctx, run)
}

// Get loads a run record.
func (j *Journal) Get(ctx context.Context, id string) (*Run, error) {
	return j.backend.Load(ctx, id)
}

// Recent lists recent runs.
func (j *Journal) Recent(ctx context.Context, limit int) ([]*Run, error) {
	return j.backend.Recent(ctx, limit)
}

// Close closes the backend.
func (j *Journal) Close() error {
	return j.backend.Close()
}

func (j *Journal) finish(ctx context.Context, run *Run) {
	now := j.now().UTC()
	run.CompletedAt = &now
	j.touch(ctx, run)
}

func (j *Journal) touch(ctx context.Context, run *Run) {
	run.UpdatedAt = j.now().UTC()
	j.save(ctx, run)
}

func (j *Journal) save(ctx context.Context, run *Run) {
	// The record must still be written when the run failed on cancellation.
	ctx = context.WithoutCancel(ctx)
	if err := j.backend.Save(ctx, run); err != nil {
		slog.WarnContext(ctx, "failed to journal run",
			"run_id", run.ID,
			"phase", run.Phase,
			"backend", j.backend.Name(),
			"error", err,
		)
	}
}
