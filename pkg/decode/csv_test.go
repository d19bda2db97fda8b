package decode

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

func TestDecode_Basic(t *testing.T) {
	ds, err := Decode([]byte("id,name,value\n1,alice,10.5\n2,bob,\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if ds.NumRows() != 2 || ds.NumColumns() != 3 {
		t.Fatalf("Unexpected shape %dx%d", ds.NumRows(), ds.NumColumns())
	}
	for _, col := range ds.Columns() {
		if col.Type != table.String {
			t.Errorf("Column %q typed %s, want string", col.Name, col.Type)
		}
	}
	if v := ds.Column("id").Values[0]; v != "1" {
		t.Errorf("Expected numeric text kept as text, got %#v", v)
	}
	if v := ds.Column("value").Values[1]; v != nil {
		t.Errorf("Expected empty cell to be null, got %#v", v)
	}
}

func TestDecode_QuotedFields(t *testing.T) {
	payload := "id,description\n1,\"Hello, World\"\n2,\"He said \"\"hi\"\"\"\n3,\"multi\nline\"\n"
	ds, err := Decode([]byte(payload))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ds.NumRows() != 3 {
		t.Fatalf("Expected 3 rows, got %d", ds.NumRows())
	}
	if v := ds.Column("description").Values[1]; v != `He said "hi"` {
		t.Errorf("Unexpected unquoting: %q", v)
	}
}

func TestDecode_Anomalous(t *testing.T) {
	ds, err := Decode([]byte("metric,anomalous\na,True\nb,False\nc,\nd,yes\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	col := ds.Column("anomalous")
	if col.Type != table.Bool {
		t.Fatalf("anomalous typed %s, want bool", col.Type)
	}
	want := []any{true, false, nil, true}
	for i := range want {
		if col.Values[i] != want[i] {
			t.Errorf("anomalous[%d] = %#v, want %#v", i, col.Values[i], want[i])
		}
	}
	if ds.Column("metric").Type != table.String {
		t.Error("Only the anomalous column should be coerced")
	}
}

func TestDecode_AnomalousUnrecognized(t *testing.T) {
	_, err := Decode([]byte("anomalous\nsometimes\n"))
	if !errors.Is(err, ErrMalformedTabularData) {
		t.Fatalf("Expected ErrMalformedTabularData, got %v", err)
	}
}

func TestDecode_Malformed(t *testing.T) {
	tests := map[string]string{
		"empty":        "",
		"ragged":       "a,b\n1,2\n3\n",
		"too many":     "a,b\n1,2,3\n",
		"bare quote":   "a,b\n1,\"x\"y\n",
		"unterminated": "a,b\n1,\"open\n",
	}

	for name, payload := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode([]byte(payload))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !errors.Is(err, ErrMalformedTabularData) {
				t.Errorf("Expected ErrMalformedTabularData, got %v", err)
			}
			if rferrors.CategoryOf(err) != rferrors.CategoryDecode {
				t.Errorf("Expected decode category, got %s", rferrors.CategoryOf(err))
			}
		})
	}
}

func TestDecode_HeaderOnly(t *testing.T) {
	ds, err := Decode([]byte("a,anomalous\n"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if ds.NumRows() != 0 || ds.NumColumns() != 2 {
		t.Errorf("Unexpected shape %dx%d", ds.NumRows(), ds.NumColumns())
	}
	if ds.Column("anomalous").Type != table.Bool {
		t.Error("Expected bool type even with zero rows")
	}
}

func TestDecode_Encodings(t *testing.T) {
	utf8BOM := append([]byte{0xEF, 0xBB, 0xBF}, []byte("name\ncafé\n")...)
	utf16LE := []byte{0xFF, 0xFE, 'n', 0, 'a', 0, 'm', 0, 'e', 0, '\n', 0, 'x', 0, '\n', 0}
	latin1 := []byte("name\ncaf\xe9\n")

	tests := []struct {
		name    string
		opts    Options
		payload []byte
		want    string
	}{
		{"utf-8 bom", Options{}, utf8BOM, "café"},
		{"utf-16le", Options{}, utf16LE, "x"},
		{"latin-1 fallback", Options{Latin1Fallback: true}, latin1, "café"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ds, err := tt.opts.Decode(tt.payload)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			col := ds.Column("name")
			if col == nil {
				t.Fatalf("Header not decoded, got %v", ds.Names())
			}
			if col.Values[0] != tt.want {
				t.Errorf("value = %q, want %q", col.Values[0], tt.want)
			}
		})
	}
}

func TestDecode_RejectsInvalidUTF8(t *testing.T) {
	payload := []byte("a,b\n\xff\xfe\xfd,1\n")

	_, err := Decode(payload)
	if !errors.Is(err, ErrMalformedTabularData) {
		t.Fatalf("Expected malformed data error, got %v", err)
	}

	ds, err := Options{Latin1Fallback: true}.Decode(payload)
	if err != nil {
		t.Fatalf("Expected Latin-1 fallback to decode, got %v", err)
	}
	if got := ds.Column("a").Values[0]; got != "ÿþý" {
		t.Errorf("value = %q, want %q", got, "ÿþý")
	}
}

func TestMaterialize_DrainsChunkedStream(t *testing.T) {
	payload := "a,b\n" + strings.Repeat("1,2\n", 500)
	r := iotest.OneByteReader(strings.NewReader(payload))

	ds, err := Materialize(r)
	if err != nil {
		t.Fatalf("Materialize failed: %v", err)
	}
	if ds.NumRows() != 500 {
		t.Errorf("Expected 500 rows, got %d", ds.NumRows())
	}
}

func TestMaterialize_ReadError(t *testing.T) {
	r := io.MultiReader(strings.NewReader("a,b\n"), iotest.ErrReader(errors.New("connection reset")))
	_, err := Materialize(r)
	if rferrors.GetCode(err) != rferrors.CodeDownloadFailed {
		t.Errorf("Expected download failure, got %v", err)
	}
}

type stubOpener map[string]string

func (s stubOpener) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	data, ok := s[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func TestFetch(t *testing.T) {
	o := stubOpener{"f1": "a\nx\n"}

	ds, err := Fetch(context.Background(), o, "f1")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if ds.NumRows() != 1 {
		t.Errorf("Expected 1 row, got %d", ds.NumRows())
	}

	_, err = Fetch(context.Background(), o, "missing")
	if rferrors.CategoryOf(err) != rferrors.CategoryTransport {
		t.Errorf("Expected transport error, got %v", err)
	}
}

type failingOpener struct{}

func (failingOpener) Open(ctx context.Context, id string) (io.ReadCloser, error) {
	r := io.MultiReader(strings.NewReader("a,b\n"), iotest.ErrReader(errors.New("connection reset")))
	return io.NopCloser(r), nil
}

func TestFetch_ErrorsCarryID(t *testing.T) {
	_, err := Fetch(context.Background(), failingOpener{}, "f9")
	var rfErr *rferrors.Error
	if !errors.As(err, &rfErr) || rfErr.Code != rferrors.CodeDownloadFailed {
		t.Fatalf("Expected download failure, got %v", err)
	}
	if rfErr.Context["id"] != "f9" {
		t.Errorf("Expected id context, got %v", rfErr.Context)
	}

	_, err = Fetch(context.Background(), stubOpener{"bad": "a,b\n1\n"}, "bad")
	if !errors.Is(err, ErrMalformedTabularData) || !strings.Contains(err.Error(), "id=bad") {
		t.Errorf("Expected malformed data error naming the file, got %v", err)
	}
}

func TestParseBool(t *testing.T) {
	for _, s := range []string{"True", "TRUE", " t ", "1", "Yes", "y"} {
		if v, ok := ParseBool(s); !ok || !v {
			t.Errorf("ParseBool(%q) = %v, %v", s, v, ok)
		}
	}
	for _, s := range []string{"False", "f", "0", "NO", "n"} {
		if v, ok := ParseBool(s); !ok || v {
			t.Errorf("ParseBool(%q) = %v, %v", s, v, ok)
		}
	}
	if _, ok := ParseBool("2"); ok {
		t.Error("Expected ParseBool(\"2\") to fail")
	}
}
