package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

// ResultFilter narrows ListResults. Zero fields do not filter.
type ResultFilter struct {
	TestType   string
	From, To   *time.Time
	DocumentID *uuid.UUID
	Limit      int
}

type TestResultRepository interface {
	CreateTestResult(ctx context.Context, res entity.TestResult) (uuid.UUID, error)
	AddParameterValue(ctx context.Context, testResultID uuid.UUID, position int, v entity.ParameterValue) error
	LinkTestResultToDocument(ctx context.Context, testResultID, documentID uuid.UUID) error
	// Save persists res and its values atomically, creating missing parameter
	// definitions, and links it to documentID when given. Results without values
	// are rejected.
	Save(ctx context.Context, res entity.TestResult, documentID *uuid.UUID) (entity.TestResult, error)
	Get(ctx context.Context, id uuid.UUID) (entity.StoredResult, error)
	List(ctx context.Context, f ResultFilter) ([]entity.StoredResult, error)
	History(ctx context.Context, code string, from, to *time.Time) ([]entity.HistoryPoint, error)
}

type testResultRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewTestResultRepository(db *DB, logger *slog.Logger) TestResultRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &testResultRepo{db: db, logger: logger}
}

func (r *testResultRepo) CreateTestResult(ctx context.Context, res entity.TestResult) (uuid.UUID, error) {
	return createTestResult(ctx, r.db.sql, r.db.builder(), res)
}

func createTestResult(ctx context.Context, q queryer, b *entsql.DialectBuilder, res entity.TestResult) (uuid.UUID, error) {
	id := res.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	query, args := b.Insert(TestResultsTable.Name).
		Columns("id", "test_type_code", "performed_at", "date_defaulted", "lab_name", "raw_excerpt", "created_at").
		Values(id, res.TestTypeCode, res.PerformedAt.UTC(), res.DateDefaulted,
			utils.NullIfEmpty(res.Source.LabName), utils.NullIfEmpty(res.Source.RawExcerpt), time.Now().UTC()).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return uuid.Nil, fmt.Errorf("%w: create test result: %w", common.ErrDatabase, err)
	}
	return id, nil
}

func (r *testResultRepo) AddParameterValue(ctx context.Context, testResultID uuid.UUID, position int, v entity.ParameterValue) error {
	return addParameterValue(ctx, r.db.sql, r.db.builder(), testResultID, position, v)
}

func addParameterValue(ctx context.Context, q queryer, b *entsql.DialectBuilder, testResultID uuid.UUID, position int, v entity.ParameterValue) error {
	rr, err := rangeJSON(v.ReferenceRange)
	if err != nil {
		return err
	}
	var numeric, text, boolean any
	if v.Numeric != nil {
		numeric = *v.Numeric
	}
	if v.Text != nil {
		text = *v.Text
	}
	if v.Boolean != nil {
		boolean = *v.Boolean
	}
	query, args := b.Insert(ParameterValuesTable.Name).
		Columns("id", "position", "raw_value", "numeric_value", "text_value", "boolean_value",
			"unit", "reference_range", "is_abnormal", "test_result_id", "parameter_code").
		Values(uuid.New(), position, v.RawValue, numeric, text, boolean,
			utils.NullIfEmpty(v.Unit), rr, v.IsAbnormal, testResultID, v.ParameterCode).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: add parameter value %s: %w", common.ErrDatabase, v.ParameterCode, err)
	}
	return nil
}

func (r *testResultRepo) LinkTestResultToDocument(ctx context.Context, testResultID, documentID uuid.UUID) error {
	return linkTestResult(ctx, r.db.sql, r.db.builder(), testResultID, documentID)
}

func linkTestResult(ctx context.Context, q queryer, b *entsql.DialectBuilder, testResultID, documentID uuid.UUID) error {
	query, args := b.Insert(TestResultDocumentsTable.Name).
		Columns("test_result_id", "document_id").
		Values(testResultID, documentID).
		OnConflict(entsql.ConflictColumns("test_result_id", "document_id"), entsql.DoNothing()).
		Query()
	if _, err := q.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("%w: link test result to document: %w", common.ErrDatabase, err)
	}
	return nil
}

func (r *testResultRepo) Save(ctx context.Context, res entity.TestResult, documentID *uuid.UUID) (entity.TestResult, error) {
	if len(res.Values) == 0 {
		return res, common.NewExtractionError(common.ErrNoParametersExtracted, "refusing to store a test result without values", nil)
	}
	b := r.db.builder()
	err := r.db.inTx(ctx, func(q queryer) error {
		for _, v := range res.Values {
			if _, err := findOrCreateDefinition(ctx, q, b, entity.ParameterDefinition{
				Code:           v.ParameterCode,
				Name:           v.Name,
				Unit:           v.Unit,
				DataType:       v.DataType,
				ReferenceRange: v.ReferenceRange,
				TestTypeCode:   res.TestTypeCode,
				Synthesized:    v.Synthesized,
			}); err != nil {
				return err
			}
		}
		id, err := createTestResult(ctx, q, b, res)
		if err != nil {
			return err
		}
		res.ID = id
		for i, v := range res.Values {
			if err := addParameterValue(ctx, q, b, id, i, v); err != nil {
				return err
			}
		}
		if documentID != nil {
			return linkTestResult(ctx, q, b, id, *documentID)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("failed to save test result", "test_type", res.TestTypeCode, "error", err)
		return res, err
	}
	res.Source.DocumentID = documentID
	r.logger.Info("test result saved",
		"test_result_id", res.ID, "test_type", res.TestTypeCode, "values", len(res.Values))
	return res, nil
}

var resultSelectColumns = []string{"id", "test_type_code", "performed_at", "date_defaulted", "lab_name", "created_at"}

func (r *testResultRepo) Get(ctx context.Context, id uuid.UUID) (entity.StoredResult, error) {
	out, err := r.list(ctx, ResultFilter{Limit: 1}, &id)
	if err != nil {
		return entity.StoredResult{}, err
	}
	if len(out) == 0 {
		return entity.StoredResult{}, common.NewAppError("TEST_RESULT_NOT_FOUND", "unknown test result "+id.String(), common.ErrNotFound)
	}
	return out[0], nil
}

func (r *testResultRepo) List(ctx context.Context, f ResultFilter) ([]entity.StoredResult, error) {
	return r.list(ctx, f, nil)
}

func (r *testResultRepo) list(ctx context.Context, f ResultFilter, id *uuid.UUID) ([]entity.StoredResult, error) {
	b := r.db.builder()
	t := b.Table(TestResultsTable.Name).As("tr")
	cols := make([]string, len(resultSelectColumns))
	for i, c := range resultSelectColumns {
		cols[i] = t.C(c)
	}
	sel := b.Select(cols...).From(t).OrderBy(entsql.Desc(t.C("performed_at")), t.C("id"))
	if id != nil {
		sel.Where(entsql.EQ(t.C("id"), *id))
	}
	if f.TestType != "" {
		sel.Where(entsql.EQ(t.C("test_type_code"), strings.ToUpper(f.TestType)))
	}
	if f.From != nil {
		sel.Where(entsql.GTE(t.C("performed_at"), f.From.UTC()))
	}
	if f.To != nil {
		sel.Where(entsql.LTE(t.C("performed_at"), f.To.UTC()))
	}
	if f.DocumentID != nil {
		l := b.Table(TestResultDocumentsTable.Name).As("trd")
		sel.Join(l).On(t.C("id"), l.C("test_result_id")).
			Where(entsql.EQ(l.C("document_id"), *f.DocumentID))
	}
	if f.Limit > 0 {
		sel.Limit(f.Limit)
	}

	query, args := sel.Query()
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to list test results", "error", err)
		return nil, fmt.Errorf("%w: list test results: %w", common.ErrDatabase, err)
	}
	var (
		results []entity.StoredResult
		index   = map[uuid.UUID]int{}
	)
	for rows.Next() {
		var (
			sr  entity.StoredResult
			lab stdsql.NullString
		)
		if err := rows.Scan(&sr.ID, &sr.TestTypeCode, &sr.PerformedAt, &sr.DateDefaulted, &lab, &sr.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("%w: scan test result: %w", common.ErrDatabase, err)
		}
		sr.LabName = utils.StrOrEmpty(lab)
		index[sr.ID] = len(results)
		results = append(results, sr)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list test results: %w", common.ErrDatabase, err)
	}
	if len(results) == 0 {
		return results, nil
	}

	ids := make([]any, 0, len(results))
	for _, sr := range results {
		ids = append(ids, sr.ID)
	}
	if err := r.loadValues(ctx, b, ids, results, index); err != nil {
		return nil, err
	}
	if err := r.loadLinks(ctx, b, ids, results, index); err != nil {
		return nil, err
	}
	return results, nil
}

func (r *testResultRepo) loadValues(ctx context.Context, b *entsql.DialectBuilder, ids []any, results []entity.StoredResult, index map[uuid.UUID]int) error {
	v := b.Table(ParameterValuesTable.Name).As("pv")
	d := b.Table(ParameterDefinitionsTable.Name).As("pd")
	query, args := b.Select(v.C("test_result_id"), v.C("parameter_code"), d.C("name"), d.C("data_type"),
		v.C("raw_value"), v.C("numeric_value"), v.C("text_value"), v.C("boolean_value"),
		v.C("unit"), v.C("reference_range"), v.C("is_abnormal")).
		From(v).
		Join(d).On(v.C("parameter_code"), d.C("code")).
		Where(entsql.In(v.C("test_result_id"), ids...)).
		OrderBy(v.C("test_result_id"), v.C("position")).
		Query()
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: load parameter values: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			resultID       uuid.UUID
			pv             entity.ParameterValue
			dataType       string
			numeric        stdsql.NullFloat64
			text, unit     stdsql.NullString
			boolean        stdsql.NullBool
			referenceRange []byte
		)
		if err := rows.Scan(&resultID, &pv.ParameterCode, &pv.Name, &dataType, &pv.RawValue,
			&numeric, &text, &boolean, &unit, &referenceRange, &pv.IsAbnormal); err != nil {
			return fmt.Errorf("%w: scan parameter value: %w", common.ErrDatabase, err)
		}
		pv.DataType = entity.ParseDataType(dataType)
		pv.Numeric = utils.FloatPtr(numeric)
		pv.Text = utils.StrPtr(text)
		pv.Boolean = utils.BoolPtr(boolean)
		pv.Unit = utils.StrOrEmpty(unit)
		pv.ReferenceRange = parseRangeJSON(referenceRange)
		if i, ok := index[resultID]; ok {
			results[i].Values = append(results[i].Values, pv)
		}
	}
	return rows.Err()
}

func (r *testResultRepo) loadLinks(ctx context.Context, b *entsql.DialectBuilder, ids []any, results []entity.StoredResult, index map[uuid.UUID]int) error {
	query, args := b.Select("test_result_id", "document_id").
		From(b.Table(TestResultDocumentsTable.Name)).
		Where(entsql.In("test_result_id", ids...)).
		Query()
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%w: load document links: %w", common.ErrDatabase, err)
	}
	defer rows.Close()
	for rows.Next() {
		var resultID, documentID uuid.UUID
		if err := rows.Scan(&resultID, &documentID); err != nil {
			return fmt.Errorf("%w: scan document link: %w", common.ErrDatabase, err)
		}
		if i, ok := index[resultID]; ok && results[i].DocumentID == nil {
			id := documentID
			results[i].DocumentID = &id
		}
	}
	return rows.Err()
}

// History returns the stored values of one parameter in chronological order.
func (r *testResultRepo) History(ctx context.Context, code string, from, to *time.Time) ([]entity.HistoryPoint, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, common.NewAppError("INVALID_PARAMETER", "parameter code is required", common.ErrInvalidInput)
	}
	b := r.db.builder()
	// joined tables need explicit aliases; Join renames unaliased tables
	v := b.Table(ParameterValuesTable.Name).As("pv")
	t := b.Table(TestResultsTable.Name).As("tr")
	sel := b.Select(t.C("id"), t.C("test_type_code"), t.C("performed_at"), t.C("lab_name"),
		v.C("parameter_code"), v.C("raw_value"), v.C("numeric_value"), v.C("text_value"),
		v.C("boolean_value"), v.C("unit"), v.C("is_abnormal")).
		From(v).
		Join(t).On(v.C("test_result_id"), t.C("id")).
		Where(entsql.EQ(v.C("parameter_code"), code)).
		OrderBy(t.C("performed_at"), t.C("id"))
	if from != nil {
		sel.Where(entsql.GTE(t.C("performed_at"), from.UTC()))
	}
	if to != nil {
		sel.Where(entsql.LTE(t.C("performed_at"), to.UTC()))
	}

	query, args := sel.Query()
	rows, err := r.db.sql.QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("failed to query parameter history", "code", code, "error", err)
		return nil, fmt.Errorf("%w: parameter history: %w", common.ErrDatabase, err)
	}
	defer rows.Close()

	points := []entity.HistoryPoint{}
	for rows.Next() {
		var (
			p         entity.HistoryPoint
			lab, unit stdsql.NullString
			numeric   stdsql.NullFloat64
			text      stdsql.NullString
			boolean   stdsql.NullBool
		)
		if err := rows.Scan(&p.TestResultID, &p.TestTypeCode, &p.PerformedAt, &lab, &p.ParameterCode,
			&p.RawValue, &numeric, &text, &boolean, &unit, &p.IsAbnormal); err != nil {
			return nil, fmt.Errorf("%w: scan history point: %w", common.ErrDatabase, err)
		}
		p.LabName = utils.StrOrEmpty(lab)
		p.Unit = utils.StrOrEmpty(unit)
		p.Numeric = utils.FloatPtr(numeric)
		p.Text = utils.StrPtr(text)
		p.Boolean = utils.BoolPtr(boolean)
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: parameter history: %w", common.ErrDatabase, err)
	}
	return points, nil
}

// IsNotFound reports whether err is a missing-row error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}
