package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

// DuckDBConfig configures the DuckDB warehouse.
type DuckDBConfig struct {
	// Dir holds one <project>.duckdb file per project. Empty keeps every
	// project in memory.
	Dir string

	// MemoryLimit is passed to SET memory_limit (e.g. "2GB").
	MemoryLimit string

	// Threads is passed to SET threads when positive.
	Threads int
}

// DuckDB is a Warehouse backed by DuckDB. Each project is an attached
// database catalog and each dataset a schema inside it.
type DuckDB struct {
	cfg DuckDBConfig
	db  *sql.DB

	mu       sync.Mutex
	attached map[string]bool
}

// OpenDuckDB opens the warehouse and attaches every project database
// already present in cfg.Dir.
func OpenDuckDB(ctx context.Context, cfg DuckDBConfig) (*DuckDB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}

	w := &DuckDB{cfg: cfg, db: db, attached: make(map[string]bool)}

	if cfg.MemoryLimit != "" {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%s'", strings.ReplaceAll(cfg.MemoryLimit, "'", ""))); err != nil {
			db.Close()
			return nil, rferrors.Wrap(err, rferrors.CodeInvalidConfig, "failed to set memory_limit")
		}
	}
	if cfg.Threads > 0 {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads = %d", cfg.Threads)); err != nil {
			db.Close()
			return nil, rferrors.Wrap(err, rferrors.CodeInvalidConfig, "failed to set threads")
		}
	}

	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create warehouse directory: %w", err)
		}
		files, err := filepath.Glob(filepath.Join(cfg.Dir, "*.duckdb"))
		if err != nil {
			db.Close()
			return nil, err
		}
		for _, f := range files {
			project := strings.TrimSuffix(filepath.Base(f), ".duckdb")
			if err := w.attach(ctx, project); err != nil {
				db.Close()
				return nil, err
			}
		}
	}

	return w, nil
}

// attach makes project available as a catalog, creating its database file
// on first use.
func (w *DuckDB) attach(ctx context.Context, project string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attached[project] {
		return nil
	}
	if strings.ContainsAny(project, `/\`) || project == "." || project == ".." {
		return rferrors.InvalidConfig("invalid project name %q", project)
	}

	target := ":memory:"
	if w.cfg.Dir != "" {
		target = filepath.Join(w.cfg.Dir, project+".duckdb")
	}

	stmt := fmt.Sprintf("ATTACH '%s' AS %s", strings.ReplaceAll(target, "'", "''"), QuoteIdent(project))
	if _, err := w.db.ExecContext(ctx, stmt); err != nil {
		return rferrors.Wrap(err, rferrors.CodeWarehouseWrite, "failed to attach project database").
			WithContext("project", project)
	}
	w.attached[project] = true
	return nil
}

// Query runs query and materializes the result. VARCHAR, BOOLEAN and
// TIMESTAMP columns keep their types; anything else is rendered as text.
func (w *DuckDB) Query(ctx context.Context, query string) (*table.Dataset, error) {
	rows, err := w.db.QueryContext(ctx, query)
	if err != nil {
		if isNotFound(err) {
			return nil, rferrors.TableNotFound(query, err)
		}
		return nil, queryFailed(err, query)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, queryFailed(err, query)
	}

	raw := make([][]any, len(colTypes))
	dest := make([]any, len(colTypes))
	ptrs := make([]any, len(colTypes))
	for i := range dest {
		ptrs[i] = &dest[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, queryFailed(err, query)
		}
		for i := range dest {
			raw[i] = append(raw[i], dest[i])
		}
	}
	if err := rows.Err(); err != nil {
		return nil, queryFailed(err, query)
	}

	columns := make([]*table.Column, len(colTypes))
	for i, ct := range colTypes {
		t := scanType(ct.DatabaseTypeName(), raw[i])
		values := make([]any, len(raw[i]))
		for j, v := range raw[i] {
			values[j] = convertValue(t, v)
		}
		columns[i] = &table.Column{Name: ct.Name(), Type: t, Values: values}
	}

	ds, err := table.New(columns...)
	if err != nil {
		return nil, queryFailed(err, query)
	}
	return ds, nil
}

// Exists reports whether ref is present.
func (w *DuckDB) Exists(ctx context.Context, ref TableRef) (bool, error) {
	var n int
	err := w.db.QueryRowContext(ctx,
		`SELECT count(*) FROM information_schema.tables WHERE table_catalog = ? AND table_schema = ? AND table_name = ?`,
		ref.Project, ref.Dataset, ref.Table,
	).Scan(&n)
	if err != nil {
		return false, queryFailed(err, "information_schema.tables")
	}
	return n > 0, nil
}

// Append inserts rows into ref, creating the schema and table from the
// rows when absent.
func (w *DuckDB) Append(ctx context.Context, ref TableRef, rows *table.Dataset) error {
	return w.write(ctx, ref, rows, "CREATE TABLE IF NOT EXISTS")
}

// Overwrite replaces ref with rows.
func (w *DuckDB) Overwrite(ctx context.Context, ref TableRef, rows *table.Dataset) error {
	return w.write(ctx, ref, rows, "CREATE OR REPLACE TABLE")
}

func (w *DuckDB) write(ctx context.Context, ref TableRef, rows *table.Dataset, create string) error {
	if rows.NumColumns() == 0 {
		return writeFailed(fmt.Errorf("dataset has no columns"), ref, "cannot write dataset")
	}
	if err := w.attach(ctx, ref.Project); err != nil {
		return err
	}

	ddl, err := createTableSQL(create, ref, rows)
	if err != nil {
		return writeFailed(err, ref, "unsupported schema")
	}

	// Transaction keeps the DDL and the inserts atomic.
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return writeFailed(err, ref, "failed to begin transaction")
	}

	schema := QuoteIdent(ref.Project) + "." + QuoteIdent(ref.Dataset)
	if _, err := tx.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		tx.Rollback()
		return writeFailed(err, ref, "failed to create dataset")
	}
	if _, err := tx.ExecContext(ctx, ddl); err != nil {
		tx.Rollback()
		return writeFailed(err, ref, "failed to create table")
	}

	if rows.NumRows() > 0 {
		stmt, err := tx.PrepareContext(ctx, insertSQL(ref, rows))
		if err != nil {
			tx.Rollback()
			return writeFailed(err, ref, "failed to prepare insert")
		}
		for i := 0; i < rows.NumRows(); i++ {
			if _, err := stmt.ExecContext(ctx, rows.Row(i)...); err != nil {
				stmt.Close()
				tx.Rollback()
				return writeFailed(err, ref, "failed to insert row").WithContext("row", i)
			}
		}
		stmt.Close()
	}

	if err := tx.Commit(); err != nil {
		return writeFailed(err, ref, "failed to commit transaction")
	}
	return nil
}

// Close detaches nothing explicitly; closing the database flushes every
// attached file.
func (w *DuckDB) Close() error {
	return w.db.Close()
}

func createTableSQL(create string, ref TableRef, rows *table.Dataset) (string, error) {
	var sb strings.Builder
	sb.WriteString(create)
	sb.WriteString(" ")
	sb.WriteString(ref.Quoted())
	sb.WriteString(" (")
	for i, col := range rows.Columns() {
		sqlType, err := columnSQLType(col.Type)
		if err != nil {
			return "", fmt.Errorf("column %q: %w", col.Name, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(QuoteIdent(col.Name))
		sb.WriteString(" ")
		sb.WriteString(sqlType)
	}
	sb.WriteString(")")
	return sb.String(), nil
}

func insertSQL(ref TableRef, rows *table.Dataset) string {
	names := make([]string, rows.NumColumns())
	marks := make([]string, rows.NumColumns())
	for i, name := range rows.Names() {
		names[i] = QuoteIdent(name)
		marks[i] = "?"
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		ref.Quoted(), strings.Join(names, ", "), strings.Join(marks, ", "))
}

func isNotFound(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "does not exist") && (strings.Contains(msg, "Table with name") ||
		strings.Contains(msg, "Catalog") || strings.Contains(msg, "Schema with name"))
}

// scanType maps a DuckDB type name to a column type. Without a name the
// type is inferred from the first non-null value.
func scanType(dbType string, values []any) table.Type {
	switch strings.ToUpper(dbType) {
	case "BOOLEAN":
		return table.Bool
	case "TIMESTAMP", "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ", "DATE":
		return table.Timestamp
	case "":
		for _, v := range values {
			switch v.(type) {
			case nil:
				continue
			case bool:
				return table.Bool
			case time.Time:
				return table.Timestamp
			default:
				return table.String
			}
		}
		return table.String
	default:
		return table.String
	}
}

func convertValue(t table.Type, v any) any {
	if v == nil {
		return nil
	}
	switch t {
	case table.Bool:
		if b, ok := v.(bool); ok {
			return b
		}
	case table.Timestamp:
		if ts, ok := v.(time.Time); ok {
			return ts.UTC()
		}
	case table.String:
		switch s := v.(type) {
		case string:
			return s
		case []byte:
			return string(s)
		}
	}
	return fmt.Sprint(v)
}
