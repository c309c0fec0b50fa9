package extract

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/llm"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
)

// DefaultMaxPromptChars bounds the document text sent to the model.
const DefaultMaxPromptChars = 12000

// AI delegates classification and extraction jointly to an AI capability. Every
// failure is reported as ErrAICapability so callers can fall back.
type AI struct {
	structurer llm.Structurer
	knownTypes []string
	maxChars   int
	lenient    bool
	logger     *slog.Logger
}

type AIOption func(*AI)

// WithKnownTypes lists the test type codes offered to the model.
func WithKnownTypes(codes []string) AIOption { return func(a *AI) { a.knownTypes = codes } }

// WithMaxPromptChars truncates document text longer than n characters.
func WithMaxPromptChars(n int) AIOption { return func(a *AI) { a.maxChars = n } }

// WithStrictValidation disables the lenient sanitize pass on model output.
func WithStrictValidation() AIOption { return func(a *AI) { a.lenient = false } }

func NewAI(s llm.Structurer, logger *slog.Logger, opts ...AIOption) *AI {
	if logger == nil {
		logger = slog.Default()
	}
	a := &AI{structurer: s, maxChars: DefaultMaxPromptChars, lenient: true, logger: logger}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *AI) Name() string { return constants.StrategyAI }

func (a *AI) Extract(ctx context.Context, in Input) (Extraction, error) {
	start := time.Now()
	content, err := a.structurer.Structure(ctx,
		llm.BuildSystemPrompt(a.knownTypes), llm.BuildUserPrompt(in.Text, a.maxChars))
	if err != nil {
		return Extraction{}, common.NewExtractionError(common.ErrAICapability, "ai structuring failed", err)
	}

	raw, err := llm.PrepareReport(content, a.lenient, a.logger)
	if err != nil {
		return Extraction{}, common.NewExtractionError(common.ErrAICapability, "ai response unusable", err)
	}

	defaultType := ""
	switch in.Classification.Primary {
	case constants.UnknownTest, constants.MultipleTests:
	default:
		defaultType = in.Classification.Primary
	}
	d, err := normalize.Decode(raw, defaultType)
	if err != nil {
		return Extraction{}, common.NewExtractionError(common.ErrAICapability, "ai response has no lab report shape", err)
	}

	out := Extraction{
		Header:   a.header(d, in.Text),
		TestType: d.TestType,
		Panels:   d.Panels,
		Strategy: a.Name(),
	}
	if out.TestType == "" {
		out.TestType = aiLabel(d.Panels)
	}
	if out.CandidateCount() == 0 {
		return Extraction{}, common.NewExtractionError(common.ErrAICapability, "ai response contains no parameters", nil)
	}

	a.logger.Info("extract.ai.ok",
		"provider", a.structurer.Name(),
		"test_type", out.TestType,
		"panels", len(out.Panels),
		"candidates", out.CandidateCount(),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// header prefers what the model read and falls back to the text patterns.
func (a *AI) header(d normalize.Decoded, text string) entity.ReportHeader {
	h := ExtractHeader(text)
	if t, ok := normalize.ParseDate(d.TestDate); ok {
		h.TestDate = &t
	}
	if d.LabName != "" {
		h.LabName = d.LabName
	}
	return h
}

func aiLabel(panels []entity.Panel) string {
	switch len(panels) {
	case 0:
		return constants.UnknownTest
	case 1:
		return panels[0].TestType
	}
	return constants.MultipleTests
}
