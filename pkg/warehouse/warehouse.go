// Package warehouse loads tagged datasets into the analytics warehouse.
//
// Tables are addressed as project.dataset.table. Rule tables are append-only;
// the watermark table is the single overwrite target.
package warehouse

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
	"github.com/logflow/reportflow/pkg/telemetry"
)

// TableRef names a warehouse table.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns the dotted form project.dataset.table.
func (r TableRef) String() string {
	return r.Project + "." + r.Dataset + "." + r.Table
}

// Quoted returns the fully qualified, identifier-quoted table name.
func (r TableRef) Quoted() string {
	return QuoteIdent(r.Project) + "." + QuoteIdent(r.Dataset) + "." + QuoteIdent(r.Table)
}

// Validate rejects empty parts.
func (r TableRef) Validate() error {
	switch {
	case r.Project == "":
		return rferrors.MissingField("project")
	case r.Dataset == "":
		return rferrors.MissingField("dataset")
	case r.Table == "":
		return rferrors.MissingField("table")
	}
	return nil
}

// QuoteIdent double-quotes a SQL identifier.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Warehouse is the analytics warehouse client.
type Warehouse interface {
	// Query runs a read-only statement. A statement over a table that does
	// not exist fails with CodeTableNotFound.
	Query(ctx context.Context, query string) (*table.Dataset, error)
	// Append adds rows to ref, creating the table from the rows' schema
	// when absent.
	Append(ctx context.Context, ref TableRef, rows *table.Dataset) error
	// Overwrite replaces ref's schema and contents with rows.
	Overwrite(ctx context.Context, ref TableRef, rows *table.Dataset) error
	Close() error
}

// Loader performs the traced appends and overwrites of one invocation.
type Loader struct {
	wh Warehouse
}

// NewLoader creates a loader over wh.
func NewLoader(wh Warehouse) *Loader {
	return &Loader{wh: wh}
}

// Append appends rows to the rule table named table.Normalize(rule).
func (l *Loader) Append(ctx context.Context, project, dataset, rule string, rows *table.Dataset) (err error) {
	ref := TableRef{Project: project, Dataset: dataset, Table: table.Normalize(rule)}

	ctx, span := telemetry.Start(ctx, "warehouse.append",
		attribute.String("table", ref.String()),
		attribute.Int("rows", rows.NumRows()),
	)
	defer func() { telemetry.End(span, err) }()

	if err := ref.Validate(); err != nil {
		return err
	}
	return l.wh.Append(ctx, ref, rows)
}

// Overwrite replaces the table name in project.dataset with rows.
func (l *Loader) Overwrite(ctx context.Context, project, dataset, name string, rows *table.Dataset) (err error) {
	ref := TableRef{Project: project, Dataset: dataset, Table: name}

	ctx, span := telemetry.Start(ctx, "warehouse.overwrite",
		attribute.String("table", ref.String()),
		attribute.Int("rows", rows.NumRows()),
	)
	defer func() { telemetry.End(span, err) }()

	if err := ref.Validate(); err != nil {
		return err
	}
	return l.wh.Overwrite(ctx, ref, rows)
}

func writeFailed(err error, ref TableRef, msg string) *rferrors.Error {
	return rferrors.Wrap(err, rferrors.CodeWarehouseWrite, msg).WithContext("table", ref.String())
}

func queryFailed(err error, query string) *rferrors.Error {
	return rferrors.Wrap(err, rferrors.CodeWarehouseQuery, "query failed").WithContext("query", query)
}

// columnSQLType maps a dataset column type to its warehouse type.
func columnSQLType(t table.Type) (string, error) {
	switch t {
	case table.String:
		return "VARCHAR", nil
	case table.Bool:
		return "BOOLEAN", nil
	case table.Timestamp:
		return "TIMESTAMP", nil
	default:
		return "", fmt.Errorf("unsupported column type %v", t)
	}
}
