// Package pipeline runs a lab document end to end: OCR, classification, parameter
// extraction, normalization and persistence.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/ocr"
)

// Processor coordinates the OCR stage then the parse stage.
type Processor struct {
	logger *slog.Logger
	ocr    *OCRStage
	parse  *ParseStage
}

func NewProcessor(logger *slog.Logger, ocrStage *OCRStage, parseStage *ParseStage) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{logger: logger, ocr: ocrStage, parse: parseStage}
}

// Process runs one document. Failures are reported in the outcome's Err; a
// failure before any text exists carries no classification.
func (p *Processor) Process(ctx context.Context, src ocr.Source) entity.ExtractionOutcome {
	ctx, reqID := common.EnsureRequestID(ctx)
	start := time.Now()

	docID, text, err := p.ocr.Run(ctx, src)
	if err != nil {
		out := entity.Failure(err)
		out.DocumentID = docID
		out.Method = text.Method
		return out
	}
	p.logger.Debug("pipeline.ocr.ok",
		"req_id", reqID,
		"method", text.Method,
		"pages", len(text.Pages),
		"warnings", len(text.Warnings),
	)

	out := p.parse.Run(ctx, docID, text)
	if out.Err != nil {
		p.logger.Error("pipeline.failed",
			"req_id", reqID,
			"category", common.ErrorCategory(out.Err),
			"error", out.Err,
		)
		return out
	}
	p.logger.Info("pipeline.ok",
		"req_id", reqID,
		"test_type", out.TestType,
		"results", len(out.Results),
		"strategy", out.Strategy,
		"fell_back", out.FellBack,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out
}

// RunOCROnly extracts text without classifying or storing anything.
func (p *Processor) RunOCROnly(ctx context.Context, src ocr.Source) (entity.ExtractedText, error) {
	doc, err := p.ocr.text.Load(ctx, src)
	if err != nil {
		return entity.ExtractedText{}, err
	}
	return p.ocr.text.ExtractDocument(ctx, doc)
}
