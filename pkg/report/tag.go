package report

import "github.com/logflow/reportflow/pkg/table"

// Metadata column names injected in front of every report's rows.
const (
	ColumnDate     = "Date"
	ColumnCategory = "Category"
	ColumnSheetID  = "Sheet_ID"
	ColumnLabel    = "Label"
)

// TagOptions controls which metadata columns Tag injects.
type TagOptions struct {
	IncludeCategory bool
}

// Tag returns a new dataset with metadata columns in front of rows:
// Date, optionally Category, Sheet_ID and Label, each broadcast over every
// row, followed by the original columns unchanged. Column names are
// normalized once, after the join. rows is not modified.
func Tag(rows *table.Dataset, meta Name, opts TagOptions) *table.Dataset {
	n := rows.NumRows()

	prefix := []*table.Column{table.Broadcast(ColumnDate, table.Timestamp, meta.Timestamp.UTC(), n)}
	if opts.IncludeCategory {
		prefix = append(prefix, table.Broadcast(ColumnCategory, table.String, meta.Category, n))
	}
	prefix = append(prefix,
		table.Broadcast(ColumnSheetID, table.String, meta.SourceID, n),
		table.Broadcast(ColumnLabel, table.String, meta.Label, n),
	)

	// Row counts match by construction.
	joined, err := table.Join(table.MustNew(prefix...), rows)
	if err != nil {
		panic(err)
	}
	return table.Normalized(joined)
}
