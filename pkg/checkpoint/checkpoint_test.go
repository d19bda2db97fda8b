package checkpoint

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	rferrors "github.com/logflow/reportflow/pkg/errors"
)

func TestFileBackend_SaveLoad(t *testing.T) {
	ctx := context.Background()
	b, err := NewFileBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBackend failed: %v", err)
	}

	run := &Run{
		ID:        "run-1",
		Project:   "p",
		Dataset:   "d",
		Files:     3,
		Phase:     PhaseLoading,
		Tables:    []string{"Budget_Pacing"},
		Rows:      map[string]int{"Budget_Pacing": 12},
		StartedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := b.Save(ctx, run); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	got, err := b.Load(ctx, "run-1")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Project != "p" || got.Phase != PhaseLoading || got.Rows["Budget_Pacing"] != 12 {
		t.Errorf("Unexpected run: %+v", got)
	}

	if _, err := b.Load(ctx, "missing"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
	if _, err := b.Load(ctx, "../escape"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist for path id, got %v", err)
	}
}

func TestFileBackend_Recent(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		b.Save(ctx, &Run{ID: id, UpdatedAt: base.Add(time.Duration(i) * time.Hour)})
	}

	runs, err := b.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("Expected newest first, got %s, %s", runs[0].ID, runs[1].ID)
	}
}

func TestFileBackend_Cleanup(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())

	old := time.Now().Add(-48 * time.Hour)
	b.Save(ctx, &Run{ID: "done", Phase: PhaseComplete, UpdatedAt: old})
	b.Save(ctx, &Run{ID: "stuck", Phase: PhaseLoading, UpdatedAt: old})
	b.Save(ctx, &Run{ID: "fresh", Phase: PhaseFailed, UpdatedAt: time.Now()})

	removed, err := b.Cleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed, got %d", removed)
	}
	if _, err := b.Load(ctx, "stuck"); err != nil {
		t.Error("Unfinished run should be kept")
	}
}

func TestJournal_Lifecycle(t *testing.T) {
	ctx := context.Background()
	b, _ := NewFileBackend(t.TempDir())
	j := NewJournal(b)

	if !j.Enabled() {
		t.Error("Expected file journal to be enabled")
	}

	run := j.Start(ctx, "r1", "p", "d", 2)
	j.Skipped(run, []SkippedFile{{Name: "bad.csv", Reason: "invalid"}})
	j.Advance(ctx, run, PhaseLoading)
	j.TableLoaded(ctx, run, "Anomalies", 4)

	saved, err := j.Get(ctx, "r1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if saved.Phase != PhaseLoading || len(saved.Tables) != 1 || saved.Rows["Anomalies"] != 4 {
		t.Errorf("Progress not saved: %+v", saved)
	}
	if len(saved.Skipped) != 1 {
		t.Errorf("Expected skipped file recorded, got %+v", saved.Skipped)
	}

	j.Fail(ctx, run, errors.New("boom"))
	saved, _ = j.Get(ctx, "r1")
	if saved.Phase != PhaseFailed || saved.Error != "boom" || saved.CompletedAt == nil {
		t.Errorf("Failure not saved: %+v", saved)
	}
}

func TestJournal_SavesAfterCancel(t *testing.T) {
	b, _ := NewFileBackend(t.TempDir())
	j := NewJournal(b)

	ctx, cancel := context.WithCancel(context.Background())
	run := j.Start(ctx, "r2", "p", "d", 0)
	cancel()
	j.Fail(ctx, run, context.Canceled)

	saved, err := j.Get(context.Background(), "r2")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Phase != PhaseFailed {
		t.Errorf("Expected failed phase, got %s", saved.Phase)
	}
}

func TestJournal_Nop(t *testing.T) {
	j := NewJournal(nil)
	if j.Enabled() {
		t.Error("Expected nil backend to disable journaling")
	}
	run := j.Start(context.Background(), "r", "p", "d", 1)
	j.Complete(context.Background(), run)
	if run.Phase != PhaseComplete {
		t.Errorf("Expected in-memory record to advance, got %s", run.Phase)
	}
	if _, err := j.Get(context.Background(), "r"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected os.ErrNotExist, got %v", err)
	}
}

func TestOpen(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "default", cfg: Config{}, want: "none"},
		{name: "file", cfg: Config{Backend: BackendFile, Dir: t.TempDir()}, want: "file"},
		{name: "unknown", cfg: Config{Backend: "etcd"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := Open(tt.cfg)
			if tt.wantErr {
				if !rferrors.IsCode(err, rferrors.CodeInvalidConfig) {
					t.Errorf("Expected invalid config error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open failed: %v", err)
			}
			defer b.Close()
			if b.Name() != tt.want {
				t.Errorf("Expected %s backend, got %s", tt.want, b.Name())
			}
		})
	}
}

func TestNewRedisBackend_Unreachable(t *testing.T) {
	cfg := DefaultRedisConfig("127.0.0.1:1")
	cfg.Timeout = 200 * time.Millisecond

	if _, err := NewRedisBackend(cfg); err == nil {
		t.Error("Expected connection error for unreachable Redis")
	}
}
