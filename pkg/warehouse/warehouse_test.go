package warehouse

import (
	"context"
	"errors"
	"testing"
	"time"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

var day = time.Date(2024, 5, 1, 12, 30, 0, 0, time.UTC)

func sample(n int) *table.Dataset {
	dates := make([]any, n)
	ids := make([]any, n)
	flags := make([]any, n)
	for i := 0; i < n; i++ {
		dates[i] = day
		ids[i] = "sheet"
		flags[i] = i%2 == 0
	}
	if n > 0 {
		ids[n-1] = nil
	}
	return table.MustNew(
		&table.Column{Name: "Date", Type: table.Timestamp, Values: dates},
		&table.Column{Name: "Sheet_ID", Type: table.String, Values: ids},
		&table.Column{Name: "anomalous", Type: table.Bool, Values: flags},
	)
}

func newTestDuckDB(t *testing.T, dir string) *DuckDB {
	t.Helper()
	w, err := OpenDuckDB(context.Background(), DuckDBConfig{Dir: dir})
	if err != nil {
		t.Fatalf("OpenDuckDB failed: %v", err)
	}
	t.Cleanup(func() { w.Close() })
	return w
}

func TestTableRef(t *testing.T) {
	ref := TableRef{Project: "my-proj", Dataset: "ds", Table: `odd"name`}
	if got := ref.String(); got != `my-proj.ds.odd"name` {
		t.Errorf("String() = %q", got)
	}
	if got := ref.Quoted(); got != `"my-proj"."ds"."odd""name"` {
		t.Errorf("Quoted() = %q", got)
	}
	if err := (TableRef{Project: "p", Table: "t"}).Validate(); !rferrors.IsCode(err, rferrors.CodeMissingField) {
		t.Errorf("Expected missing field, got %v", err)
	}
}

func TestDuckDB_AppendQuery(t *testing.T) {
	w := newTestDuckDB(t, t.TempDir())
	ctx := context.Background()
	ref := TableRef{Project: "proj", Dataset: "reports", Table: "Budget_Pacing"}

	if err := w.Append(ctx, ref, sample(3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append(ctx, ref, sample(2)); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	ds, err := w.Query(ctx, "SELECT * FROM "+ref.Quoted())
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ds.NumRows() != 5 {
		t.Fatalf("Expected 5 rows, got %d", ds.NumRows())
	}

	date := ds.Column("Date")
	if date.Type != table.Timestamp || !date.Values[0].(time.Time).Equal(day) {
		t.Errorf("Date column = %s %v", date.Type, date.Values[0])
	}
	if col := ds.Column("anomalous"); col.Type != table.Bool || col.Values[0] != true {
		t.Errorf("anomalous column = %s %v", col.Type, col.Values)
	}
	if v := ds.Column("Sheet_ID").Values[2]; v != nil {
		t.Errorf("Expected null to survive, got %#v", v)
	}

	ok, err := w.Exists(ctx, ref)
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}
}

func TestDuckDB_Overwrite(t *testing.T) {
	w := newTestDuckDB(t, "")
	ctx := context.Background()
	ref := TableRef{Project: "proj", Dataset: "reports", Table: "last_report"}

	if err := w.Overwrite(ctx, ref, sample(4)); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	replacement := table.MustNew(&table.Column{Name: "Label", Type: table.String, Values: []any{"only"}})
	if err := w.Overwrite(ctx, ref, replacement); err != nil {
		t.Fatalf("second Overwrite failed: %v", err)
	}

	ds, err := w.Query(ctx, "SELECT * FROM "+ref.Quoted())
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if ds.NumRows() != 1 || ds.NumColumns() != 1 || ds.Names()[0] != "Label" {
		t.Errorf("Overwrite did not replace table: %v rows=%d", ds.Names(), ds.NumRows())
	}
}

func TestDuckDB_QueryMissingTable(t *testing.T) {
	w := newTestDuckDB(t, "")
	ctx := context.Background()

	_, err := w.Query(ctx, `SELECT * FROM "nowhere"."ds"."last_report"`)
	if !rferrors.IsCode(err, rferrors.CodeTableNotFound) {
		t.Errorf("Expected table not found for unknown project, got %v", err)
	}

	if err := w.Append(ctx, TableRef{Project: "p", Dataset: "d", Table: "t"}, sample(1)); err != nil {
		t.Fatal(err)
	}
	_, err = w.Query(ctx, `SELECT * FROM "p"."d"."missing"`)
	if !rferrors.IsCode(err, rferrors.CodeTableNotFound) {
		t.Errorf("Expected table not found, got %v", err)
	}
}

func TestDuckDB_ReopenAttachesProjects(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	ref := TableRef{Project: "proj", Dataset: "reports", Table: "rule"}

	first, err := OpenDuckDB(ctx, DuckDBConfig{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Append(ctx, ref, sample(2)); err != nil {
		t.Fatal(err)
	}
	first.Close()

	second := newTestDuckDB(t, dir)
	ds, err := second.Query(ctx, "SELECT * FROM "+ref.Quoted())
	if err != nil {
		t.Fatalf("Query after reopen failed: %v", err)
	}
	if ds.NumRows() != 2 {
		t.Errorf("Expected 2 persisted rows, got %d", ds.NumRows())
	}
}

func TestDuckDB_RejectsBadProject(t *testing.T) {
	w := newTestDuckDB(t, t.TempDir())
	err := w.Append(context.Background(), TableRef{Project: "../x", Dataset: "d", Table: "t"}, sample(1))
	if !rferrors.IsCode(err, rferrors.CodeInvalidConfig) {
		t.Errorf("Expected invalid config, got %v", err)
	}
}

func TestLoader(t *testing.T) {
	mem := NewMemory()
	l := NewLoader(mem)
	ctx := context.Background()

	if err := l.Append(ctx, "p", "d", "Budget Pacing.v2", sample(2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if _, ok := mem.Table(TableRef{Project: "p", Dataset: "d", Table: "Budget_Pacingv2"}); !ok {
		t.Errorf("Expected normalized table name, have %v", mem.Tables())
	}

	if err := l.Overwrite(ctx, "p", "d", "last_report", sample(1)); err != nil {
		t.Fatalf("Overwrite failed: %v", err)
	}
	writes := mem.Writes()
	if len(writes) != 2 || writes[0].Overwrite || !writes[1].Overwrite {
		t.Errorf("Unexpected writes %v", writes)
	}

	if err := l.Append(ctx, "", "d", "r", sample(1)); !rferrors.IsCode(err, rferrors.CodeMissingField) {
		t.Errorf("Expected missing field, got %v", err)
	}

	mem.FailOn = map[string]error{"broken": errors.New("quota exceeded")}
	if err := l.Append(ctx, "p", "d", "broken", sample(1)); rferrors.CategoryOf(err) != rferrors.CategoryWarehouse {
		t.Errorf("Expected warehouse error, got %v", err)
	}
}

func TestOpen_Kinds(t *testing.T) {
	w, err := Open(context.Background(), Config{Kind: KindMemory})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := w.(*Memory); !ok {
		t.Errorf("Expected *Memory, got %T", w)
	}
	if _, err := Open(context.Background(), Config{Kind: "bigtable"}); !rferrors.IsCode(err, rferrors.CodeInvalidConfig) {
		t.Errorf("Expected invalid config, got %v", err)
	}
}
