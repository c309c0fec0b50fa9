package llm

import (
	"fmt"
	"log/slog"
)

// PrepareReport turns raw model content into a validated lab report document.
// Content is trimmed to its JSON object first. When strict validation fails and
// lenient is set, the document is sanitized and validated again.
func PrepareReport(content string, lenient bool, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	obj, ok := ExtractJSON(content)
	if !ok {
		logger.Error("llm.report.no_json", "content_len", len(content))
		return nil, fmt.Errorf("%w: no JSON object in response", ErrInvalidResponse)
	}
	raw := []byte(obj)

	err := ValidateLabReport(raw)
	if err == nil {
		return raw, nil
	}
	if !lenient {
		logger.Error("llm.report.schema_validation_failed", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	cleaned, changed, sErr := SanitizeLabReport(raw)
	if sErr != nil {
		logger.Error("llm.report.sanitize_failed", "error", sErr)
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, sErr)
	}
	if vErr := ValidateLabReport(cleaned); vErr != nil {
		logger.Error("llm.report.schema_validation_failed", "error", vErr, "changed", changed)
		return nil, fmt.Errorf("%w: %w", ErrInvalidResponse, vErr)
	}
	logger.Warn("llm.report.lenient_sanitize_applied", "changed", changed)
	return cleaned, nil
}
