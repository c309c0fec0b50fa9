package pipeline

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
)

// TextExtractor loads a document source and recognizes its text.
type TextExtractor interface {
	Load(ctx context.Context, src ocr.Source) (entity.RawDocument, error)
	ExtractDocument(ctx context.Context, doc entity.RawDocument) (entity.ExtractedText, error)
}

// DocumentStore records processed documents.
type DocumentStore interface {
	Create(ctx context.Context, doc entity.Document) (entity.Document, error)
	Finish(ctx context.Context, id uuid.UUID, out repository.DocumentOutcome) error
}

type OCRStage struct {
	text   TextExtractor
	docs   DocumentStore
	logger *slog.Logger
}

// NewOCRStage does not record documents when docs is nil.
func NewOCRStage(text TextExtractor, docs DocumentStore, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRStage{text: text, docs: docs, logger: logger}
}

// Run loads src, records a document row for it and extracts the text. The returned
// document ID is nil when nothing was recorded. A failed extraction marks the
// document FAILED.
func (s *OCRStage) Run(ctx context.Context, src ocr.Source) (*uuid.UUID, entity.ExtractedText, error) {
	raw, err := s.text.Load(ctx, src)
	if err != nil {
		s.logger.Warn("pipeline.load.failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
		return nil, entity.ExtractedText{}, err
	}

	var docID *uuid.UUID
	if s.docs != nil {
		doc, err := s.docs.Create(ctx, entity.Document{
			Origin:    raw.Origin,
			Filename:  raw.Filename,
			Kind:      raw.Kind,
			SizeBytes: raw.Size(),
		})
		if err != nil {
			return nil, entity.ExtractedText{}, err
		}
		docID = &doc.ID
	}

	text, err := s.text.ExtractDocument(ctx, raw)
	if err != nil {
		s.logger.Error("pipeline.ocr.failed",
			"req_id", common.RequestIDFromContext(ctx),
			"kind", raw.Kind,
			"error", err,
		)
		if docID != nil {
			s.fail(ctx, *docID, text.Method, "", err)
		}
		return docID, text, err
	}
	return docID, text, nil
}

// fail records err on the document. It runs on a fresh context so a cancelled
// request still leaves the row in a final state.
func (s *OCRStage) fail(ctx context.Context, id uuid.UUID, method, strategy string, cause error) {
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if err := s.docs.Finish(finishCtx, id, repository.DocumentOutcome{
		Status:   constants.DocumentFailed,
		Method:   method,
		Strategy: strategy,
		Error:    cause.Error(),
	}); err != nil {
		s.logger.Error("pipeline.document.finish_failed", "document_id", id, "error", err)
	}
}
