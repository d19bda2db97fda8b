package table

import (
	"testing"
	"time"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/memory"
)

func strs(values ...string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"A B.C", "A_BC"},
		{"Sheet ID", "Sheet_ID"},
		{"a..b  c", "ab__c"},
		{"", ""},
		{"already_fine", "already_fine"},
	}

	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{"A B.C", " . . ", "x.y z", "_", "Ünïcode name.v2"}
	for _, s := range inputs {
		once := Normalize(s)
		if twice := Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", s, once, twice)
		}
	}
}

func TestNew_RejectsMismatchedLengths(t *testing.T) {
	_, err := New(
		&Column{Name: "a", Type: String, Values: strs("1", "2")},
		&Column{Name: "b", Type: String, Values: strs("1")},
	)
	if err == nil {
		t.Fatal("Expected error for mismatched column lengths")
	}
}

func TestNew_RejectsWrongValueType(t *testing.T) {
	_, err := New(&Column{Name: "flag", Type: Bool, Values: []any{"true"}})
	if err == nil {
		t.Fatal("Expected error for string value in bool column")
	}
}

func TestConcat_PreservesRows(t *testing.T) {
	a := MustNew(
		&Column{Name: "x", Type: String, Values: strs("a1", "a2")},
		&Column{Name: "y", Type: String, Values: strs("a3", "a4")},
	)
	b := MustNew(
		&Column{Name: "x", Type: String, Values: strs("b1")},
		&Column{Name: "y", Type: String, Values: strs("b2")},
	)

	out := Concat(a, b)
	if out.NumRows() != 3 {
		t.Fatalf("Expected 3 rows, got %d", out.NumRows())
	}
	got := out.Column("x").Values
	want := []any{"a1", "a2", "b1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("x[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestConcat_DivergentColumns(t *testing.T) {
	a := MustNew(
		&Column{Name: "x", Type: String, Values: strs("a1")},
		&Column{Name: "y", Type: String, Values: strs("a2")},
	)
	b := MustNew(
		&Column{Name: "z", Type: String, Values: strs("b1")},
		&Column{Name: "x", Type: String, Values: strs("b2")},
	)

	out := Concat(a, b)

	names := out.Names()
	wantNames := []string{"x", "y", "z"}
	if len(names) != len(wantNames) {
		t.Fatalf("Names = %v, want %v", names, wantNames)
	}
	for i := range wantNames {
		if names[i] != wantNames[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], wantNames[i])
		}
	}

	if v := out.Column("y").Values[1]; v != nil {
		t.Errorf("Expected null for missing y cell, got %v", v)
	}
	if v := out.Column("z").Values[0]; v != nil {
		t.Errorf("Expected null for missing z cell, got %v", v)
	}
	if v := out.Column("x").Values[1]; v != "b2" {
		t.Errorf("Expected x aligned by name, got %v", v)
	}
}

func TestConcat_WidensConflictingTypes(t *testing.T) {
	a := MustNew(&Column{Name: "anomalous", Type: Bool, Values: []any{true}})
	b := MustNew(&Column{Name: "anomalous", Type: String, Values: strs("maybe")})

	out := Concat(a, b)
	col := out.Column("anomalous")
	if col.Type != String {
		t.Fatalf("Expected widened String column, got %s", col.Type)
	}
	if col.Values[0] != "true" || col.Values[1] != "maybe" {
		t.Errorf("Unexpected widened values: %v", col.Values)
	}
}

func TestConcat_Empty(t *testing.T) {
	out := Concat()
	if out.NumRows() != 0 || out.NumColumns() != 0 {
		t.Errorf("Expected empty dataset, got %d rows %d columns", out.NumRows(), out.NumColumns())
	}
}

func TestJoin(t *testing.T) {
	left := MustNew(Broadcast("Label", String, "l", 2))
	right := MustNew(&Column{Name: "A", Type: String, Values: strs("1", "2")})

	out, err := Join(left, right)
	if err != nil {
		t.Fatalf("Join failed: %v", err)
	}
	if out.NumColumns() != 2 || out.NumRows() != 2 {
		t.Errorf("Unexpected shape %dx%d", out.NumRows(), out.NumColumns())
	}
	if _, err := Join(left, MustNew(&Column{Name: "B", Type: String, Values: strs("1")})); err == nil {
		t.Error("Expected error joining different row counts")
	}
}

func TestToRecord(t *testing.T) {
	ts := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ds := MustNew(
		Broadcast("Date", Timestamp, ts, 2),
		&Column{Name: "A", Type: String, Values: []any{"x", nil}},
		&Column{Name: "anomalous", Type: Bool, Values: []any{true, false}},
	)

	rec, err := ToRecord(ds, memory.NewGoAllocator())
	if err != nil {
		t.Fatalf("ToRecord failed: %v", err)
	}
	defer rec.Release()

	if rec.NumRows() != 2 || rec.NumCols() != 3 {
		t.Fatalf("Unexpected record shape %dx%d", rec.NumRows(), rec.NumCols())
	}

	dates := rec.Column(0).(*array.Timestamp)
	if got := dates.Value(0); got != arrow.Timestamp(ts.UnixMilli()) {
		t.Errorf("Date[0] = %d, want %d", got, ts.UnixMilli())
	}

	names := rec.Column(1).(*array.String)
	if names.Value(0) != "x" || !names.IsNull(1) {
		t.Errorf("Unexpected string column: %v", names)
	}

	flags := rec.Column(2).(*array.Boolean)
	if !flags.Value(0) || flags.Value(1) {
		t.Errorf("Unexpected bool column: %v", flags)
	}
}
