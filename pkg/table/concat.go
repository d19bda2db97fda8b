package table

import (
	"fmt"
	"strconv"
	"time"
)

// TimestampLayout is the text form used when a timestamp has to be widened
// to a string column.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// columnKey identifies the k-th column carrying a given name, so datasets
// with repeated names still align positionally within that name.
type columnKey struct {
	name       string
	occurrence int
}

// Concat stacks datasets vertically. Columns align by name; the first
// dataset's column order wins and columns only present in later datasets are
// appended in the order they are first seen. Cells missing from a dataset are
// null. A name that carries different types across inputs is widened to
// String. The row count of the result is the sum of the inputs' row counts.
func Concat(datasets ...*Dataset) *Dataset {
	var (
		order []columnKey
		types = make(map[columnKey]Type)
		total int
	)

	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		total += ds.rows
		seen := make(map[string]int)
		for _, col := range ds.columns {
			key := columnKey{name: col.Name, occurrence: seen[col.Name]}
			seen[col.Name]++

			prev, ok := types[key]
			switch {
			case !ok:
				types[key] = col.Type
				order = append(order, key)
			case prev != col.Type:
				types[key] = String
			}
		}
	}

	values := make(map[columnKey][]any, len(order))
	for _, key := range order {
		values[key] = make([]any, 0, total)
	}

	for _, ds := range datasets {
		if ds == nil {
			continue
		}
		present := make(map[columnKey]*Column, len(ds.columns))
		seen := make(map[string]int)
		for _, col := range ds.columns {
			key := columnKey{name: col.Name, occurrence: seen[col.Name]}
			seen[col.Name]++
			present[key] = col
		}

		for _, key := range order {
			col, ok := present[key]
			if !ok {
				values[key] = append(values[key], make([]any, ds.rows)...)
				continue
			}
			if col.Type == types[key] {
				values[key] = append(values[key], col.Values...)
				continue
			}
			for _, v := range col.Values {
				values[key] = append(values[key], widen(v))
			}
		}
	}

	columns := make([]*Column, len(order))
	for i, key := range order {
		columns[i] = &Column{Name: key.name, Type: types[key], Values: values[key]}
	}

	return &Dataset{columns: columns, rows: total}
}

// widen renders a value as text for a String column.
func widen(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		return x.UTC().Format(TimestampLayout)
	default:
		return fmt.Sprint(x)
	}
}
