package aggregate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/logflow/reportflow/pkg/decode"
	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/storage"
	"github.com/logflow/reportflow/pkg/watermark"
)

const (
	fileA = "SA360_east_Budget Pacing_sheet-1_2024-02-01T00:00:00.000Z.csv"
	fileB = "SA360_west_Budget Pacing_sheet-1_2024-01-01T00:00:00.000Z.csv"
	fileC = "DV360__Anomalies_sheet_2_2024-01-15T08:00:00.000Z.csv"
)

func newSource(t *testing.T, files map[string]string) *storage.Memory {
	t.Helper()
	m := storage.NewMemory()
	for id, body := range files {
		m.Add(id, []byte(body), time.Now())
	}
	return m
}

type skipRecorder struct {
	files []FileRef
}

func (r *skipRecorder) record(ctx context.Context, file FileRef, err error) {
	r.files = append(r.files, file)
}

func TestRun_SkipsInvalidFilenames(t *testing.T) {
	src := newSource(t, map[string]string{
		"a": "Clicks,Cost\n1,2\n3,4\n",
		"c": "metric,anomalous\nctr,True\n",
		"x": "should,never\nbe,read\n",
	})
	rec := &skipRecorder{}
	agg := New(src, Options{OnSkip: rec.record})

	files := []FileRef{
		{ID: "a", Name: fileA},
		{ID: "x", Name: "not-a-report.csv"},
		{ID: "c", Name: fileC},
	}
	res, err := agg.Run(context.Background(), watermark.New(), files)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(rec.files) != 1 || rec.files[0].Name != "not-a-report.csv" {
		t.Errorf("Expected exactly one diagnostic for the invalid file, got %+v", rec.files)
	}
	if len(res.Skipped) != 1 {
		t.Errorf("Expected 1 skipped file, got %d", len(res.Skipped))
	}
	if res.Rules.Len() != 2 {
		t.Fatalf("Expected 2 rules, got %v", res.Rules.Order)
	}
	if res.Rules.Order[0] != "Budget Pacing" || res.Rules.Order[1] != "Anomalies" {
		t.Errorf("Unexpected rule order %v", res.Rules.Order)
	}
	if res.Watermarks.Len() != 2 {
		t.Errorf("Expected 2 watermarks, got %d", res.Watermarks.Len())
	}
	if _, ok := res.Watermarks.Get("should"); ok {
		t.Error("Invalid file contributed a watermark")
	}

	anomalies := res.Rules.Data["Anomalies"]
	if v := anomalies.Column("anomalous").Values[0]; v != true {
		t.Errorf("Expected anomalous coerced to bool, got %#v", v)
	}
}

func TestRun_LastWriteWins(t *testing.T) {
	src := newSource(t, map[string]string{
		"a": "x\n1\n",
		"b": "x\n2\n",
	})
	agg := New(src, Options{})

	// A carries the later timestamp but B is processed last.
	res, err := agg.Run(context.Background(), watermark.New(), []FileRef{
		{ID: "a", Name: fileA},
		{ID: "b", Name: fileB},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	e, ok := res.Watermarks.Get("sheet-1")
	if !ok {
		t.Fatal("Expected watermark for sheet-1")
	}
	if e.Label != "west" || !e.Date.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Expected B's entry, got %+v", e)
	}
}

func TestRun_ConcatPreservesRows(t *testing.T) {
	src := newSource(t, map[string]string{
		"a": "Cost,Ad Group.Name\n1,g1\n2,g2\n",
		"b": "Cost,Ad Group.Name\n3,g3\n",
	})
	agg := New(src, Options{Tag: report.TagOptions{IncludeCategory: true}})

	res, err := agg.Run(context.Background(), nil, []FileRef{
		{ID: "a", Name: fileA},
		{ID: "b", Name: fileB},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	ds := res.Rules.Data["Budget Pacing"]
	if ds.NumRows() != 3 {
		t.Fatalf("Expected 3 rows, got %d", ds.NumRows())
	}
	want := []string{"Date", "Category", "Sheet_ID", "Label", "Cost", "Ad_GroupName"}
	got := ds.Names()
	if len(got) != len(want) {
		t.Fatalf("Names = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, got[i], want[i])
		}
	}
	costs := ds.Column("Cost").Values
	if costs[0] != "1" || costs[1] != "2" || costs[2] != "3" {
		t.Errorf("Values changed: %v", costs)
	}
	labels := ds.Column("Label").Values
	if labels[0] != "east" || labels[2] != "west" {
		t.Errorf("Labels not tagged per file: %v", labels)
	}
	if res.Rules.Rows() != 3 {
		t.Errorf("Rows() = %d", res.Rules.Rows())
	}
}

func TestRun_KeepsExistingWatermarks(t *testing.T) {
	src := newSource(t, map[string]string{"c": "x\n1\n"})
	current := watermark.New()
	current.Set(watermark.Entry{SheetID: "other", Label: "keep", Date: time.Unix(0, 0).UTC()})

	res, err := New(src, Options{}).Run(context.Background(), current, []FileRef{{ID: "c", Name: fileC}})
	if err != nil {
		t.Fatal(err)
	}
	if res.Watermarks.Len() != 2 {
		t.Errorf("Expected existing entry kept, got %+v", res.Watermarks.Entries())
	}
	if current.Len() != 1 {
		t.Error("Run must not mutate the input table")
	}
}

func TestRun_DownloadFailureAborts(t *testing.T) {
	src := newSource(t, map[string]string{"a": "x\n1\n"})
	agg := New(src, Options{})

	_, err := agg.Run(context.Background(), watermark.New(), []FileRef{
		{ID: "a", Name: fileA},
		{ID: "missing", Name: fileB},
	})
	if rferrors.CategoryOf(err) != rferrors.CategoryTransport {
		t.Errorf("Expected transport error, got %v", err)
	}
}

func TestRun_DecodeFailureAborts(t *testing.T) {
	src := newSource(t, map[string]string{"a": "x,y\n1\n"})

	_, err := New(src, Options{}).Run(context.Background(), watermark.New(), []FileRef{{ID: "a", Name: fileA}})
	if !errors.Is(err, decode.ErrMalformedTabularData) {
		t.Errorf("Expected malformed data error, got %v", err)
	}
}

func TestRun_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(storage.NewMemory(), Options{}).Run(ctx, nil, []FileRef{{ID: "a", Name: fileA}})
	if !rferrors.IsCode(err, rferrors.CodeCanceled) {
		t.Errorf("Expected canceled, got %v", err)
	}
}

func TestRun_OnFileProgress(t *testing.T) {
	src := newSource(t, map[string]string{"a": "x\n1\n"})
	var seen int
	agg := New(src, Options{
		OnSkip: func(context.Context, FileRef, error) {},
		OnFile: func(FileRef) { seen++ },
	})

	_, err := agg.Run(context.Background(), nil, []FileRef{{ID: "a", Name: fileA}, {ID: "z", Name: "bad"}})
	if err != nil {
		t.Fatal(err)
	}
	if seen != 2 {
		t.Errorf("Expected OnFile for every file, got %d", seen)
	}
}

func TestGroupByRule_Empty(t *testing.T) {
	rules := GroupByRule(nil)
	if rules.Len() != 0 || len(rules.Data) != 0 {
		t.Errorf("Expected no rules, got %v", rules.Order)
	}
}
