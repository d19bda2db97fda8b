// Package watermark tracks the most recent report seen per source.
//
// The table is keyed by source (sheet) ID and is rewritten in full at the end
// of every run. Updates are last-write-wins in processing order; timestamps
// are never compared when folding a batch.
package watermark

import (
	"fmt"
	"time"

	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/table"
)

// TableName is the warehouse table holding the watermarks.
const TableName = "last_report"

// Entry is the watermark of one source.
type Entry struct {
	SheetID string    `json:"sheet_id"`
	Label   string    `json:"label"`
	Date    time.Time `json:"date"`
}

// Table maps source IDs to their watermark. Iteration order is the order in
// which sources were first inserted.
type Table struct {
	order   []string
	entries map[string]Entry
}

// New returns an empty table.
func New() *Table {
	return &Table{entries: make(map[string]Entry)}
}

// Set upserts the entry for e.SheetID, replacing any previous one.
func (t *Table) Set(e Entry) {
	if _, ok := t.entries[e.SheetID]; !ok {
		t.order = append(t.order, e.SheetID)
	}
	t.entries[e.SheetID] = e
}

// Observe records name as the latest report of its source.
func (t *Table) Observe(name report.Name) {
	t.Set(Entry{SheetID: name.SourceID, Label: name.Label, Date: name.Timestamp.UTC()})
}

// Get returns the entry for sheetID.
func (t *Table) Get(sheetID string) (Entry, bool) {
	e, ok := t.entries[sheetID]
	return e, ok
}

// Len returns the number of sources.
func (t *Table) Len() int {
	return len(t.order)
}

// Entries returns the entries in insertion order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, len(t.order))
	for i, id := range t.order {
		out[i] = t.entries[id]
	}
	return out
}

// Clone returns an independent copy.
func (t *Table) Clone() *Table {
	c := New()
	for _, e := range t.Entries() {
		c.Set(e)
	}
	return c
}

// IsNew reports whether name is strictly newer than the stored watermark of
// its source, or whether the source is unknown.
func (t *Table) IsNew(name report.Name) bool {
	e, ok := t.entries[name.SourceID]
	if !ok {
		return true
	}
	return name.Timestamp.After(e.Date)
}

// ToDataset renders the table as Sheet_ID, Label, Date columns.
func (t *Table) ToDataset() *table.Dataset {
	ids := make([]any, 0, t.Len())
	labels := make([]any, 0, t.Len())
	dates := make([]any, 0, t.Len())
	for _, e := range t.Entries() {
		ids = append(ids, e.SheetID)
		labels = append(labels, e.Label)
		dates = append(dates, e.Date.UTC())
	}
	return table.MustNew(
		&table.Column{Name: report.ColumnSheetID, Type: table.String, Values: ids},
		&table.Column{Name: report.ColumnLabel, Type: table.String, Values: labels},
		&table.Column{Name: report.ColumnDate, Type: table.Timestamp, Values: dates},
	)
}

// FromDataset reads a table previously written by ToDataset. Rows without a
// Sheet_ID are ignored; a null Label reads as empty.
func FromDataset(ds *table.Dataset) (*Table, error) {
	t := New()
	if ds == nil || ds.NumRows() == 0 {
		return t, nil
	}

	ids := ds.Column(report.ColumnSheetID)
	dates := ds.Column(report.ColumnDate)
	if ids == nil || dates == nil {
		return nil, fmt.Errorf("watermark table needs %s and %s columns, have %v",
			report.ColumnSheetID, report.ColumnDate, ds.Names())
	}
	labels := ds.Column(report.ColumnLabel)

	for i := 0; i < ds.NumRows(); i++ {
		id, _ := ids.Values[i].(string)
		if id == "" {
			continue
		}
		e := Entry{SheetID: id}
		if labels != nil {
			e.Label, _ = labels.Values[i].(string)
		}
		switch v := dates.Values[i].(type) {
		case time.Time:
			e.Date = v.UTC()
		case string:
			ts, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid %s %q: %w", i, report.ColumnDate, v, err)
			}
			e.Date = ts.UTC()
		}
		t.Set(e)
	}
	return t, nil
}
