package watermark

import (
	"context"

	rferrors "github.com/logflow/reportflow/pkg/errors"
	"github.com/logflow/reportflow/pkg/report"
	"github.com/logflow/reportflow/pkg/warehouse"
)

// Store loads and saves the watermark table of one project and dataset.
type Store struct {
	wh     warehouse.Warehouse
	loader *warehouse.Loader
}

// NewStore creates a store over wh.
func NewStore(wh warehouse.Warehouse) *Store {
	return &Store{wh: wh, loader: warehouse.NewLoader(wh)}
}

// Ref returns the watermark table reference for project and dataset.
func Ref(project, dataset string) warehouse.TableRef {
	return warehouse.TableRef{Project: project, Dataset: dataset, Table: TableName}
}

// Load reads the current watermarks. A table that does not exist yet loads
// as an empty table.
func (s *Store) Load(ctx context.Context, project, dataset string) (*Table, error) {
	ref := Ref(project, dataset)
	query := "SELECT " +
		warehouse.QuoteIdent(report.ColumnSheetID) + ", " +
		warehouse.QuoteIdent(report.ColumnLabel) + ", " +
		warehouse.QuoteIdent(report.ColumnDate) +
		" FROM " + ref.Quoted()

	ds, err := s.wh.Query(ctx, query)
	if rferrors.IsCode(err, rferrors.CodeTableNotFound) {
		return New(), nil
	}
	if err != nil {
		return nil, err
	}

	t, err := FromDataset(ds)
	if err != nil {
		return nil, rferrors.Wrap(err, rferrors.CodeWarehouseQuery, "unreadable watermark table").
			WithContext("table", ref.String())
	}
	return t, nil
}

// Save overwrites the watermark table with t.
func (s *Store) Save(ctx context.Context, project, dataset string, t *Table) error {
	return s.loader.Overwrite(ctx, project, dataset, TableName, t.ToDataset())
}
