package repository

import (
	"context"
	stdsql "database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/utils"
)

// DocumentOutcome is what a pipeline run records on its document.
type DocumentOutcome struct {
	Status   string
	Method   string
	Strategy string
	Error    string
}

type DocumentRepository interface {
	Create(ctx context.Context, doc entity.Document) (entity.Document, error)
	Get(ctx context.Context, id uuid.UUID) (entity.Document, error)
	Finish(ctx context.Context, id uuid.UUID, out DocumentOutcome) error
}

type documentRepo struct {
	db     *DB
	logger *slog.Logger
}

func NewDocumentRepository(db *DB, logger *slog.Logger) DocumentRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &documentRepo{db: db, logger: logger}
}

func (r *documentRepo) Create(ctx context.Context, doc entity.Document) (entity.Document, error) {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.Status == "" {
		doc.Status = constants.DocumentReceived
	}
	if doc.Kind == "" {
		doc.Kind = entity.KindUnknown
	}
	now := time.Now().UTC()
	doc.CreatedAt, doc.UpdatedAt = now, now

	query, args := r.db.builder().Insert(DocumentsTable.Name).
		Columns("id", "origin", "filename", "kind", "size_bytes", "status", "created_at", "updated_at").
		Values(doc.ID, doc.Origin, utils.NullIfEmpty(doc.Filename), string(doc.Kind), doc.SizeBytes, doc.Status, now, now).
		Query()
	if _, err := r.db.sql.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to create document", "origin", doc.Origin, "error", err)
		return entity.Document{}, fmt.Errorf("%w: create document: %w", common.ErrDatabase, err)
	}
	r.logger.Debug("document created", "document_id", doc.ID, "kind", doc.Kind)
	return doc, nil
}

func (r *documentRepo) Get(ctx context.Context, id uuid.UUID) (entity.Document, error) {
	b := r.db.builder()
	query, args := b.Select("id", "origin", "filename", "kind", "size_bytes", "status", "method", "strategy", "error", "created_at", "updated_at").
		From(b.Table(DocumentsTable.Name)).
		Where(entsql.EQ("id", id)).
		Query()

	var (
		doc                                entity.Document
		kind                               string
		filename, method, strategy, errMsg stdsql.NullString
	)
	err := r.db.sql.QueryRowContext(ctx, query, args...).Scan(&doc.ID, &doc.Origin, &filename, &kind, &doc.SizeBytes,
		&doc.Status, &method, &strategy, &errMsg, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, stdsql.ErrNoRows) {
		return entity.Document{}, common.NewAppError("DOCUMENT_NOT_FOUND", "unknown document "+id.String(), common.ErrNotFound)
	}
	if err != nil {
		return entity.Document{}, fmt.Errorf("%w: get document: %w", common.ErrDatabase, err)
	}
	doc.Kind = entity.DocumentKind(kind)
	doc.Filename = utils.StrOrEmpty(filename)
	doc.Method = utils.StrOrEmpty(method)
	doc.Strategy = utils.StrOrEmpty(strategy)
	doc.Error = utils.StrOrEmpty(errMsg)
	return doc, nil
}

func (r *documentRepo) Finish(ctx context.Context, id uuid.UUID, out DocumentOutcome) error {
	u := r.db.builder().Update(DocumentsTable.Name).
		Set("status", out.Status).
		Set("updated_at", time.Now().UTC())
	setOrNull(u, "method", out.Method)
	setOrNull(u, "strategy", out.Strategy)
	setOrNull(u, "error", out.Error)
	query, args := u.Where(entsql.EQ("id", id)).Query()
	if _, err := r.db.sql.ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("failed to finish document", "document_id", id, "error", err)
		return fmt.Errorf("%w: finish document: %w", common.ErrDatabase, err)
	}
	if out.Status == constants.DocumentFailed {
		r.logger.Warn("document finished (FAILED)", "document_id", id, "error", out.Error)
	} else {
		r.logger.Info("document finished", "document_id", id, "status", out.Status, "strategy", out.Strategy)
	}
	return nil
}

func setOrNull(u *entsql.UpdateBuilder, column, value string) {
	if value == "" {
		u.SetNull(column)
		return
	}
	u.Set(column, value)
}
