package repository

import (
	"context"
	stdsql "database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

type ParameterRepository interface {
	// FindOrCreateParameterDefinition returns the stored definition for def.Code,
	// inserting def first when the code is new. Concurrent callers converge on the
	// unique code.
	FindOrCreateParameterDefinition(ctx context.Context, def entity.ParameterDefinition) (entity.ParameterDefinition, error)
	GetParameterDefinition(ctx context.Context, code string) (entity.ParameterDefinition, error)
	ListParameterDefinitions(ctx context.Context, testType string) ([]entity.ParameterDefinition, error)
}

type parameterRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewParameterRepository(db *DB, logger *slog.Logger) ParameterRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &parameterRepo{db: db, logger: logger}
}

var definitionSelectColumns = []string{"code", "name", "unit", "data_type", "reference_range", "test_type_code", "synthesized"}

func (r *parameterRepo) FindOrCreateParameterDefinition(ctx context.Context, def entity.ParameterDefinition) (entity.ParameterDefinition, error) {
	return findOrCreateDefinition(ctx, r.db.sql, r.db.builder(), def)
}

func findOrCreateDefinition(ctx context.Context, q queryer, b *entsql.DialectBuilder, def entity.ParameterDefinition) (entity.ParameterDefinition, error) {
	def.Code = strings.ToUpper(strings.TrimSpace(def.Code))
	if def.Code == "" {
		return entity.ParameterDefinition{}, common.NewAppError("INVALID_PARAMETER", "parameter code is required", common.ErrInvalidInput)
	}
	if def.Name == "" {
		def.Name = def.Code
	}
	if def.DataType == "" {
		def.DataType = entity.DataNumeric
	}
	rr, err := rangeJSON(def.ReferenceRange)
	if err != nil {
		return entity.ParameterDefinition{}, err
	}

	query, args := b.Insert(ParameterDefinitionsTable.Name).
		Columns("code", "name", "unit", "data_type", "reference_range", "test_type_code", "synthesized", "created_at").
		Values(def.Code, def.Name, utils.NullIfEmpty(def.Unit), string(def.DataType), rr,
			utils.NullIfEmpty(def.TestTypeCode), def.Synthesized, time.Now().UTC()).
		OnConflict(entsql.ConflictColumns("code"), entsql.DoNothing()).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return entity.ParameterDefinition{}, fmt.Errorf("%w: insert parameter definition %s: %w", common.ErrDatabase, def.Code, err)
	}
	return getDefinition(ctx, q, b, def.Code)
}

func (r *parameterRepo) GetParameterDefinition(ctx context.Context, code string) (entity.ParameterDefinition, error) {
	return getDefinition(ctx, r.db.sql, r.db.builder(), strings.ToUpper(strings.TrimSpace(code)))
}

func getDefinition(ctx context.Context, q queryer, b *entsql.DialectBuilder, code string) (entity.ParameterDefinition, error) {
	query, args := b.Select(definitionSelectColumns...).
		From(b.Table(ParameterDefinitionsTable.Name)).
		Where(entsql.EQ("code", code)).
		Query()
	def, err := scanDefinition(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, stdsql.ErrNoRows) {
		return entity.ParameterDefinition{}, common.NewAppError("PARAMETER_NOT_FOUND", "unknown parameter "+code, common.ErrNotFound)
	}
	if err != nil {
		return entity.ParameterDefinition{}, fmt.Errorf("%w: get parameter definition %s: %w", common.ErrDatabase, code, err)
	}
	return def, nil
}

func (r *parameterRepo) ListParameterDefinitions(ctx context.Context, testType string) ([]entity.ParameterDefinition, error) {
	b := r.db.builder()
	sel := b.Select(definitionSelectColumns...).
		From(b.Table(ParameterDefinitionsTable.Name)).
		OrderBy("code")
	if testType != "" {
		sel.Where(entsql.EQ("test_type_code", strings.ToUpper(testType)))
	}
	query, args := sel.Query()
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list parameter definitions", "test_type", testType, "error", err)
		return nil, fmt.Errorf("%w: list parameter definitions: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []entity.ParameterDefinition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan parameter definition: %w", common.ErrDatabase, err)
		}
		out = append(out, def)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (entity.ParameterDefinition, error) {
	var (
		def      entity.ParameterDefinition
		unit, tt stdsql.NullString
		dataType string
		rr       []byte
	)
	if err := row.Scan(&def.Code, &def.Name, &unit, &dataType, &rr, &tt, &def.Synthesized); err != nil {
		return def, err
	}
	def.Unit = utils.StrOrEmpty(unit)
	def.TestTypeCode = utils.StrOrEmpty(tt)
	def.DataType = entity.ParseDataType(dataType)
	def.ReferenceRange = parseRangeJSON(rr)
	return def, nil
}

// rangeJSON encodes a range for a JSON column; the zero range is NULL.
func rangeJSON(rr entity.RefRange) (any, error) {
	if rr.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(rr)
	if err != nil {
		return nil, fmt.Errorf("encode reference range: %w", err)
	}
	return string(b), nil
}

func parseRangeJSON(b []byte) entity.RefRange {
	if len(b) == 0 {
		return entity.RefRange{}
	}
	var rr entity.RefRange
	if err := json.Unmarshal(b, &rr); err != nil {
		return entity.RefRange{}
	}
	return rr
}
