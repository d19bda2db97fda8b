// Package decode materializes downloaded report payloads into datasets.
//
// Every column decodes as text except a column named "anomalous", which is
// coerced to bool. Empty cells are nulls.
package decode

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"log/slog"
	"strings"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

// AnomalousColumn is the one column decoded as bool.
const AnomalousColumn = "anomalous"

// ErrMalformedTabularData matches (via errors.Is) every decode failure.
var ErrMalformedTabularData = rferrors.New(rferrors.CodeMalformedData, "malformed tabular data")

// Opener yields the byte stream of a stored file.
type Opener interface {
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}

// Options controls how payloads decode. The zero value is strict UTF-8.
type Options struct {
	// Latin1Fallback reads payloads that are neither BOM-marked nor valid
	// UTF-8 as Latin-1 instead of rejecting them as malformed.
	Latin1Fallback bool
}

// Fetch opens the file id through o and materializes it with default options.
func Fetch(ctx context.Context, o Opener, id string) (*table.Dataset, error) {
	return Options{}.Fetch(ctx, o, id)
}

// Materialize drains r and decodes it with default options.
func Materialize(r io.Reader) (*table.Dataset, error) {
	return Options{}.Materialize(r)
}

// Decode parses a CSV payload with default options.
func Decode(data []byte) (*table.Dataset, error) {
	return Options{}.Decode(data)
}

// Fetch opens the file id through o and materializes it. Open and read
// failures are transport errors; parse failures are decode errors.
func (opts Options) Fetch(ctx context.Context, o Opener, id string) (*table.Dataset, error) {
	rc, err := o.Open(ctx, id)
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeDownloadFailed, "failed to open file").
			WithContext("id", id)
	}
	defer rc.Close()

	ds, err := opts.Materialize(rc)
	var rfErr *rferrors.Error
	if errors.As(err, &rfErr) {
		return nil, rfErr.WithContext("id", id)
	}
	return ds, err
}

// Materialize drains r completely before parsing it.
func (opts Options) Materialize(r io.Reader) (*table.Dataset, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeDownloadFailed, "failed to read payload")
	}
	return opts.Decode(data)
}

// Decode parses a fully materialized CSV payload with a header row.
// Every record must have as many fields as the header.
func (opts Options) Decode(data []byte) (*table.Dataset, error) {
	decoded, enc, err := DetectAndDecode(data, opts.Latin1Fallback)
	if errors.Is(err, errNotUTF8) {
		return nil, malformed(err.Error(), nil)
	}
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeEncoding, "encoding detection failed").
			WithContext("encoding", enc)
	}
	if enc == EncodingLatin1 {
		slog.Warn("payload is not UTF-8, decoded as Latin-1", "encoding", enc, "bytes", len(data))
	}

	reader := csv.NewReader(bytes.NewReader(decoded))
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, malformed("empty payload: no header row", nil)
		}
		return nil, malformed("failed to read header row", err)
	}

	values := make([][]any, len(header))
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, malformed("failed to read record", err)
		}
		for i, field := range record {
			if field == "" {
				values[i] = append(values[i], nil)
				continue
			}
			values[i] = append(values[i], field)
		}
	}

	columns := make([]*table.Column, len(header))
	for i, name := range header {
		col := &table.Column{Name: name, Type: table.String, Values: values[i]}
		if col.Values == nil {
			col.Values = []any{}
		}
		if name == AnomalousColumn {
			if err := coerceBool(col); err != nil {
				return nil, err
			}
		}
		columns[i] = col
	}

	ds, err := table.New(columns...)
	if err != nil {
		return nil, malformed("inconsistent columns", err)
	}
	return ds, nil
}

func malformed(msg string, cause error) error {
	if cause == nil {
		return rferrors.New(rferrors.CodeMalformedData, msg)
	}
	return rferrors.Wrap(cause, rferrors.CodeMalformedData, msg)
}

// coerceBool converts a text column to bool in place.
func coerceBool(col *table.Column) error {
	for i, v := range col.Values {
		if v == nil {
			continue
		}
		b, ok := ParseBool(v.(string))
		if !ok {
			return rferrors.New(rferrors.CodeMalformedData, "unrecognized boolean value").
				WithContext("column", col.Name).
				WithContext("row", i+1).
				WithContext("value", v)
		}
		col.Values[i] = b
	}
	col.Type = table.Bool
	return nil
}

// ParseBool recognizes conventional truthy and falsy tokens, ignoring case
// and surrounding whitespace.
func ParseBool(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "1", "yes", "y":
		return true, true
	case "false", "f", "0", "no", "n":
		return false, true
	default:
		return false, false
	}
}
