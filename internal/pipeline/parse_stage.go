package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/extract"
	"github.com/joseph-ayodele/lab-extractor/internal/repository"
)

const finishTimeout = 5 * time.Second

type Classifier interface {
	Classify(text string) entity.Classification
}

type ParameterExtractor interface {
	Strategy() string
	Extract(ctx context.Context, in extract.Input) (extract.Extraction, error)
}

type Normalizer interface {
	NormalizePanels(panels []entity.Panel, header entity.ReportHeader) ([]entity.TestResult, error)
}

// ResultStore persists one test result atomically.
type ResultStore interface {
	Save(ctx context.Context, res entity.TestResult, documentID *uuid.UUID) (entity.TestResult, error)
}

// ParseStage turns extracted text into stored test results.
type ParseStage struct {
	classifier Classifier
	extractor  ParameterExtractor
	normalizer Normalizer
	results    ResultStore
	docs       DocumentStore
	logger     *slog.Logger
}

// NewParseStage skips persistence when results is nil.
func NewParseStage(
	classifier Classifier,
	extractor ParameterExtractor,
	normalizer Normalizer,
	results ResultStore,
	docs DocumentStore,
	logger *slog.Logger,
) *ParseStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &ParseStage{
		classifier: classifier,
		extractor:  extractor,
		normalizer: normalizer,
		results:    results,
		docs:       docs,
		logger:     logger,
	}
}

// Run classifies text, extracts and normalizes its parameters, then stores every
// test result linked to docID. Nothing is stored when normalization fails.
func (s *ParseStage) Run(ctx context.Context, docID *uuid.UUID, text entity.ExtractedText) entity.ExtractionOutcome {
	reqID := common.RequestIDFromContext(ctx)
	out := entity.ExtractionOutcome{DocumentID: docID, Method: text.Method, Strategy: s.extractor.Strategy()}

	out.Classification = s.classifier.Classify(text.Text)
	s.logger.Debug("pipeline.classify.ok", "req_id", reqID, "primary", out.Classification.Primary)

	ext, err := s.extractor.Extract(ctx, extract.Input{Text: text.Text, Classification: out.Classification})
	if err != nil {
		return s.finish(ctx, out, err)
	}
	out.Strategy = ext.Strategy
	out.FellBack = ext.FellBack
	out.TestType = ext.TestType
	if out.TestType == "" {
		out.TestType = out.Classification.Primary
	}

	results, err := s.normalizer.NormalizePanels(ext.Panels, ext.Header)
	if err != nil {
		s.logger.Warn("pipeline.normalize.empty",
			"req_id", reqID,
			"strategy", ext.Strategy,
			"candidates", ext.CandidateCount(),
		)
		return s.finish(ctx, out, err)
	}

	if s.results != nil {
		for i, res := range results {
			saved, err := s.results.Save(ctx, res, docID)
			if err != nil {
				out.Results = results[:i]
				return s.finish(ctx, out, err)
			}
			results[i] = saved
		}
		s.logger.Info("pipeline.persist.ok", "req_id", reqID, "results", len(results))
	} else if docID != nil {
		for i := range results {
			results[i].Source.DocumentID = docID
		}
	}
	out.Results = results
	return s.finish(ctx, out, nil)
}

func (s *ParseStage) finish(ctx context.Context, out entity.ExtractionOutcome, err error) entity.ExtractionOutcome {
	out.Err = err
	if s.docs == nil || out.DocumentID == nil {
		return out
	}
	o := repository.DocumentOutcome{
		Status:   constants.DocumentProcessed,
		Method:   out.Method,
		Strategy: out.Strategy,
	}
	if err != nil {
		o.Status = constants.DocumentFailed
		o.Error = err.Error()
	}
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()
	if ferr := s.docs.Finish(finishCtx, *out.DocumentID, o); ferr != nil {
		s.logger.Error("pipeline.document.finish_failed", "document_id", *out.DocumentID, "error", ferr)
	}
	return out
}
