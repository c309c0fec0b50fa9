package repository

import (
	"context"
	"fmt"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

// CatalogSource is the part of the parameter catalog that seeding reads.
type CatalogSource interface {
	TestTypes() []entity.TestType
	AllParameters() []entity.ParameterDefinition
}

// Seed upserts every catalog test type and parameter definition. Catalog entries
// overwrite synthesized rows with the same code.
func (d *DB) Seed(ctx context.Context, src CatalogSource) error {
	types := src.TestTypes()
	params := src.AllParameters()
	b := d.builder()

	err := d.inTx(ctx, func(q queryer) error {
		for _, tt := range types {
			query, args := b.Insert(TestTypesTable.Name).
				Columns("code", "name", "category", "description").
				Values(tt.Code, tt.Name, utils.NullIfEmpty(tt.Category), utils.NullIfEmpty(tt.Description)).
				OnConflict(entsql.ConflictColumns("code"), entsql.ResolveWithNewValues()).
				Query()
			if _, err := q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("%w: seed test type %s: %w", common.ErrDatabase, tt.Code, err)
			}
		}
		now := time.Now().UTC()
		for _, p := range params {
			rr, err := rangeJSON(p.ReferenceRange)
			if err != nil {
				return err
			}
			query, args := b.Insert(ParameterDefinitionsTable.Name).
				Columns("code", "name", "unit", "data_type", "reference_range", "test_type_code", "synthesized", "created_at").
				Values(p.Code, p.Name, utils.NullIfEmpty(p.Unit), string(p.DataType), rr,
					utils.NullIfEmpty(p.TestTypeCode), false, now).
				OnConflict(
					entsql.ConflictColumns("code"),
					entsql.ResolveWith(func(u *entsql.UpdateSet) {
						u.SetExcluded("name")
						u.SetExcluded("unit")
						u.SetExcluded("data_type")
						u.SetExcluded("reference_range")
						u.SetExcluded("test_type_code")
						u.SetExcluded("synthesized")
					}),
				).
				Query()
			if _, err := q.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("%w: seed parameter %s: %w", common.ErrDatabase, p.Code, err)
			}
		}
		return nil
	})
	if err != nil {
		d.logger.Error("db.seed.failed", "error", err)
		return err
	}
	d.logger.Info("db.seed.ok", "test_types", len(types), "parameters", len(params))
	return nil
}
