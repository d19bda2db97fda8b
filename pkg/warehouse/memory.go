package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/table"
)

// Memory is an in-process Warehouse. Query only understands statements
// that reference a single stored table by its quoted name and returns that
// table whole. It records every write for inspection.
type Memory struct {
	mu     sync.Mutex
	tables map[TableRef]*table.Dataset
	writes []Write

	// FailOn makes writes to the named table fail.
	FailOn map[string]error
}

// Write is one recorded Append or Overwrite.
type Write struct {
	Ref       TableRef
	Overwrite bool
	Rows      int
}

// NewMemory creates an empty in-memory warehouse.
func NewMemory() *Memory {
	return &Memory{tables: make(map[TableRef]*table.Dataset)}
}

// Query returns the table whose quoted name appears in query.
func (m *Memory) Query(ctx context.Context, query string) (*table.Dataset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ref, ds := range m.tables {
		if strings.Contains(query, ref.Quoted()) {
			return ds, nil
		}
	}
	return nil, rferrors.TableNotFound(query, nil)
}

// Append concatenates rows onto ref.
func (m *Memory) Append(ctx context.Context, ref TableRef, rows *table.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(ref); err != nil {
		return err
	}
	if existing, ok := m.tables[ref]; ok {
		m.tables[ref] = table.Concat(existing, rows)
	} else {
		m.tables[ref] = rows
	}
	m.writes = append(m.writes, Write{Ref: ref, Rows: rows.NumRows()})
	return nil
}

// Overwrite replaces ref with rows.
func (m *Memory) Overwrite(ctx context.Context, ref TableRef, rows *table.Dataset) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.failure(ref); err != nil {
		return err
	}
	m.tables[ref] = rows
	m.writes = append(m.writes, Write{Ref: ref, Overwrite: true, Rows: rows.NumRows()})
	return nil
}

func (m *Memory) failure(ref TableRef) error {
	if err, ok := m.FailOn[ref.Table]; ok {
		return writeFailed(err, ref, "write rejected")
	}
	return nil
}

// Table returns the stored dataset for ref.
func (m *Memory) Table(ref TableRef) (*table.Dataset, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ds, ok := m.tables[ref]
	return ds, ok
}

// Writes returns the recorded writes in order.
func (m *Memory) Writes() []Write {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Write(nil), m.writes...)
}

// Tables lists stored table names, sorted.
func (m *Memory) Tables() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.tables))
	for ref := range m.tables {
		names = append(names, ref.String())
	}
	sort.Strings(names)
	return names
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

// Kinds of warehouse.
const (
	KindDuckDB = "duckdb"
	KindMemory = "memory"
)

// Config selects and configures a warehouse backend.
type Config struct {
	Kind        string
	Dir         string
	MemoryLimit string
	Threads     int
}

// Open returns the warehouse described by cfg.
func Open(ctx context.Context, cfg Config) (Warehouse, error) {
	switch cfg.Kind {
	case KindDuckDB, "":
		return OpenDuckDB(ctx, DuckDBConfig{Dir: cfg.Dir, MemoryLimit: cfg.MemoryLimit, Threads: cfg.Threads})
	case KindMemory:
		return NewMemory(), nil
	default:
		return nil, rferrors.InvalidConfig("unsupported warehouse kind: %s", cfg.Kind)
	}
}

// String implements fmt.Stringer for log output.
func (w Write) String() string {
	op := "append"
	if w.Overwrite {
		op = "overwrite"
	}
	return fmt.Sprintf("%s %s (%d rows)", op, w.Ref, w.Rows)
}
