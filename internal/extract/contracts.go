// Package extract turns document text into panels of raw parameter candidates.
package extract

import (
	"context"

	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// Strategy is one way of reading parameters out of text. Exactly two exist: the
// rule-based strategy and the AI strategy.
type Strategy interface {
	Name() string
	Extract(ctx context.Context, in Input) (Extraction, error)
}

// Input is the text of one document and its keyword classification.
type Input struct {
	Text           string
	Classification entity.Classification
}

// Extraction is the output of a strategy before normalization.
type Extraction struct {
	Header entity.ReportHeader
	// TestType is the label reported to callers: a code, "Multiple Tests" or "Unknown".
	TestType string
	Panels   []entity.Panel
	Strategy string
	FellBack bool
}

// CandidateCount is the number of candidates across all panels.
func (e Extraction) CandidateCount() int {
	n := 0
	for _, p := range e.Panels {
		n += len(p.Candidates)
	}
	return n
}
