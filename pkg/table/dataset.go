// Package table provides the in-memory tabular dataset exchanged between
// the decoder, the tagger, the aggregator and the warehouse.
//
// A Dataset is an ordered list of named, typed columns of equal length.
// Values are string, bool or time.Time according to the column type; nil
// marks a null cell.
package table

import (
	"fmt"
	"time"
)

// Type is the logical type of a column.
type Type int

const (
	String Type = iota
	Bool
	Timestamp
)

func (t Type) String() string {
	switch t {
	case String:
		return "string"
	case Bool:
		return "bool"
	case Timestamp:
		return "timestamp"
	default:
		return "unknown"
	}
}

// Column is a named, typed vector of values.
type Column struct {
	Name   string
	Type   Type
	Values []any
}

// Len returns the number of values in the column.
func (c *Column) Len() int {
	return len(c.Values)
}

// Dataset is an ordered list of equal-length columns.
// Datasets are treated as immutable once constructed.
type Dataset struct {
	columns []*Column
	rows    int
}

// New builds a dataset, checking that all columns have the same length and
// that every non-null value matches its column type.
func New(columns ...*Column) (*Dataset, error) {
	rows := 0
	if len(columns) > 0 {
		rows = columns[0].Len()
	}

	for _, col := range columns {
		if col.Len() != rows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, col.Len(), rows)
		}
		for i, v := range col.Values {
			if !valueMatches(col.Type, v) {
				return nil, fmt.Errorf("column %q row %d: %T is not a %s value", col.Name, i, v, col.Type)
			}
		}
	}

	return &Dataset{columns: columns, rows: rows}, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(columns ...*Column) *Dataset {
	ds, err := New(columns...)
	if err != nil {
		panic(err)
	}
	return ds
}

func valueMatches(t Type, v any) bool {
	if v == nil {
		return true
	}
	switch t {
	case String:
		_, ok := v.(string)
		return ok
	case Bool:
		_, ok := v.(bool)
		return ok
	case Timestamp:
		_, ok := v.(time.Time)
		return ok
	default:
		return false
	}
}

// NumRows returns the row count.
func (d *Dataset) NumRows() int {
	return d.rows
}

// NumColumns returns the column count.
func (d *Dataset) NumColumns() int {
	return len(d.columns)
}

// Columns returns the columns in order.
func (d *Dataset) Columns() []*Column {
	return d.columns
}

// Names returns the column names in order.
func (d *Dataset) Names() []string {
	names := make([]string, len(d.columns))
	for i, col := range d.columns {
		names[i] = col.Name
	}
	return names
}

// Column returns the first column with the given name, or nil.
func (d *Dataset) Column(name string) *Column {
	for _, col := range d.columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// Row returns the values of row i in column order.
func (d *Dataset) Row(i int) []any {
	row := make([]any, len(d.columns))
	for j, col := range d.columns {
		row[j] = col.Values[i]
	}
	return row
}

// Renamed returns a dataset whose column names are passed through fn.
// Values are shared with the receiver.
func (d *Dataset) Renamed(fn func(string) string) *Dataset {
	columns := make([]*Column, len(d.columns))
	for i, col := range d.columns {
		columns[i] = &Column{Name: fn(col.Name), Type: col.Type, Values: col.Values}
	}
	return &Dataset{columns: columns, rows: d.rows}
}

// Broadcast returns a column of n copies of v.
func Broadcast(name string, t Type, v any, n int) *Column {
	values := make([]any, n)
	for i := range values {
		values[i] = v
	}
	return &Column{Name: name, Type: t, Values: values}
}

// Join returns a dataset with the columns of left followed by those of right.
// Both sides must have the same row count.
func Join(left, right *Dataset) (*Dataset, error) {
	if left.rows != right.rows && len(left.columns) > 0 && len(right.columns) > 0 {
		return nil, fmt.Errorf("cannot join %d rows with %d rows", left.rows, right.rows)
	}
	columns := make([]*Column, 0, len(left.columns)+len(right.columns))
	columns = append(columns, left.columns...)
	columns = append(columns, right.columns...)
	return New(columns...)
}
