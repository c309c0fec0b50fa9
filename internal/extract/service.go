package extract

import (
	"context"
	"errors"
	"log/slog"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
)

// Service runs the configured strategy and falls back to the rule-based one when
// the configured strategy fails.
type Service struct {
	primary  Strategy
	fallback *RuleBased
	logger   *slog.Logger
}

// NewService uses rules alone when primary is nil.
func NewService(primary Strategy, rules *RuleBased, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if primary == nil {
		primary = rules
	}
	return &Service{primary: primary, fallback: rules, logger: logger}
}

// Strategy names the configured strategy.
func (s *Service) Strategy() string { return s.primary.Name() }

// Extract never fails for AI capability problems; those are logged and the
// rule-based result is returned with FellBack set. Cancellation of ctx is returned.
func (s *Service) Extract(ctx context.Context, in Input) (Extraction, error) {
	out, err := s.primary.Extract(ctx, in)
	if err == nil || s.primary == Strategy(s.fallback) {
		return out, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Extraction{}, ctxErr
	}

	level := slog.LevelWarn
	if !errors.Is(err, common.ErrAICapability) {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "extract.fallback",
		"strategy", s.primary.Name(),
		"req_id", common.RequestIDFromContext(ctx),
		"error", err,
	)

	out, err = s.fallback.Extract(ctx, in)
	if err != nil {
		return out, err
	}
	out.FellBack = true
	return out, nil
}
