package watermark

import (
	"context"
	"testing"
	"time"

	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/table"
	"github.com/logflow/reportflow/pkg/warehouse"
)

var (
	jan = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	feb = time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
)

func TestTable_LastWriteWins(t *testing.T) {
	wm := New()
	// Later timestamp first, earlier second: the second write still wins.
	wm.Observe(report.Name{SourceID: "s1", Label: "B", Timestamp: feb})
	wm.Observe(report.Name{SourceID: "s2", Label: "x", Timestamp: jan})
	wm.Observe(report.Name{SourceID: "s1", Label: "A", Timestamp: jan})

	e, ok := wm.Get("s1")
	if !ok {
		t.Fatal("Expected entry for s1")
	}
	if e.Label != "A" || !e.Date.Equal(jan) {
		t.Errorf("Expected last write to win, got %+v", e)
	}
	if wm.Len() != 2 {
		t.Errorf("Expected 2 sources, got %d", wm.Len())
	}
	if got := wm.Entries(); got[0].SheetID != "s1" || got[1].SheetID != "s2" {
		t.Errorf("Expected first-insertion order, got %+v", got)
	}
}

func TestTable_IsNew(t *testing.T) {
	wm := New()
	wm.Set(Entry{SheetID: "s1", Date: jan})

	tests := []struct {
		name report.Name
		want bool
	}{
		{report.Name{SourceID: "s1", Timestamp: feb}, true},
		{report.Name{SourceID: "s1", Timestamp: jan}, false},
		{report.Name{SourceID: "s1", Timestamp: jan.Add(-time.Hour)}, false},
		{report.Name{SourceID: "unknown", Timestamp: jan}, true},
	}
	for _, tt := range tests {
		if got := wm.IsNew(tt.name); got != tt.want {
			t.Errorf("IsNew(%s @ %s) = %v, want %v", tt.name.SourceID, tt.name.Timestamp, got, tt.want)
		}
	}
}

func TestTable_DatasetRoundTrip(t *testing.T) {
	wm := New()
	wm.Set(Entry{SheetID: "s1", Label: "", Date: jan})
	wm.Set(Entry{SheetID: "s2", Label: "L", Date: feb})

	ds := wm.ToDataset()
	if got := ds.Names(); len(got) != 3 || got[0] != "Sheet_ID" || got[1] != "Label" || got[2] != "Date" {
		t.Fatalf("Unexpected columns %v", got)
	}
	if ds.Column("Date").Type != table.Timestamp {
		t.Errorf("Date column typed %s", ds.Column("Date").Type)
	}

	back, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset failed: %v", err)
	}
	if back.Len() != 2 {
		t.Fatalf("Expected 2 entries, got %d", back.Len())
	}
	if e, _ := back.Get("s2"); e.Label != "L" || !e.Date.Equal(feb) {
		t.Errorf("Unexpected entry %+v", e)
	}
}

func TestFromDataset_Tolerant(t *testing.T) {
	ds := table.MustNew(
		&table.Column{Name: "Sheet_ID", Type: table.String, Values: []any{"s1", nil}},
		&table.Column{Name: "Label", Type: table.String, Values: []any{nil, "x"}},
		&table.Column{Name: "Date", Type: table.String, Values: []any{"2024-01-01T00:00:00Z", "2024-01-01T00:00:00Z"}},
	)
	wm, err := FromDataset(ds)
	if err != nil {
		t.Fatalf("FromDataset failed: %v", err)
	}
	if wm.Len() != 1 {
		t.Errorf("Expected rows without Sheet_ID to be skipped, got %d", wm.Len())
	}
	if e, _ := wm.Get("s1"); e.Label != "" || !e.Date.Equal(jan) {
		t.Errorf("Unexpected entry %+v", e)
	}

	bad := table.MustNew(&table.Column{Name: "Other", Type: table.String, Values: []any{"x"}})
	if _, err := FromDataset(bad); err == nil {
		t.Error("Expected error for missing columns")
	}
}

func TestStore_LoadMissingIsEmpty(t *testing.T) {
	s := NewStore(warehouse.NewMemory())
	wm, err := s.Load(context.Background(), "p", "d")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if wm.Len() != 0 {
		t.Errorf("Expected empty table, got %d entries", wm.Len())
	}
}

func TestStore_SaveOverwrites(t *testing.T) {
	mem := warehouse.NewMemory()
	s := NewStore(mem)
	ctx := context.Background()

	first := New()
	first.Set(Entry{SheetID: "old", Date: jan})
	if err := s.Save(ctx, "p", "d", first); err != nil {
		t.Fatal(err)
	}

	second := New()
	second.Set(Entry{SheetID: "new", Label: "L", Date: feb})
	if err := s.Save(ctx, "p", "d", second); err != nil {
		t.Fatal(err)
	}

	loaded, err := s.Load(ctx, "p", "d")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Len() != 1 {
		t.Fatalf("Expected overwrite to leave 1 entry, got %d", loaded.Len())
	}
	if _, ok := loaded.Get("old"); ok {
		t.Error("Old entry survived overwrite")
	}
	for _, w := range mem.Writes() {
		if !w.Overwrite {
			t.Errorf("Watermark write was an append: %v", w)
		}
	}
}

func TestStore_DuckDB(t *testing.T) {
	wh, err := warehouse.OpenDuckDB(context.Background(), warehouse.DuckDBConfig{Dir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	defer wh.Close()

	s := NewStore(wh)
	ctx := context.Background()

	wm, err := s.Load(ctx, "proj", "reports")
	if err != nil || wm.Len() != 0 {
		t.Fatalf("Load of absent table = %v, %v", wm, err)
	}

	wm.Set(Entry{SheetID: "s1", Label: "L", Date: jan})
	if err := s.Save(ctx, "proj", "reports", wm); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := s.Load(ctx, "proj", "reports")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if e, ok := loaded.Get("s1"); !ok || e.Label != "L" || !e.Date.Equal(jan) {
		t.Errorf("Unexpected entry %+v", e)
	}
}
