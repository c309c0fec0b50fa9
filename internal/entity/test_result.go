package entity

import (
	"time"

	"github.com/google/uuid"
)

// TestType is a panel of related measurements.
type TestType struct {
	Code        string   `json:"code"`
	Name        string   `json:"name"`
	Category    string   `json:"category"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords,omitempty"`
}

// TestTypeCandidate is one classifier hit. Score counts distinct keyword matches.
type TestTypeCandidate struct {
	Code        string `json:"code"`
	DisplayName string `json:"display_name"`
	Category    string `json:"category"`
	Score       int    `json:"score"`
}

// Classification is the classifier verdict. Primary is a test type code,
// "Multiple Tests" or "Unknown".
type Classification struct {
	Primary    string              `json:"primary"`
	Candidates []TestTypeCandidate `json:"candidates"`
}

// Codes lists the candidate codes in classifier order.
func (c Classification) Codes() []string {
	out := make([]string, 0, len(c.Candidates))
	for _, cand := range c.Candidates {
		out = append(out, cand.Code)
	}
	return out
}

// SourceMetadata describes where a result came from.
type SourceMetadata struct {
	LabName    string
	RawExcerpt string
	DocumentID *uuid.UUID
}

// TestResult is the canonical result of one test panel.
type TestResult struct {
	ID            uuid.UUID
	TestTypeCode  string
	TestTypeName  string
	PerformedAt   time.Time
	DateDefaulted bool
	Values        []ParameterValue
	Source        SourceMetadata
}

// ExtractionOutcome is returned to callers of the pipeline: either results or a
// failure reason.
type ExtractionOutcome struct {
	Results        []TestResult
	Classification Classification
	Method         string
	Strategy       string
	FellBack       bool
	DocumentID     *uuid.UUID
	Err            error

	// TestType is the report-level label: a code, "Multiple Tests" or "Unknown".
	TestType string
}

func Success(results []TestResult) ExtractionOutcome {
	return ExtractionOutcome{Results: results}
}

func Failure(err error) ExtractionOutcome {
	return ExtractionOutcome{Err: err}
}

func (o ExtractionOutcome) OK() bool { return o.Err == nil && len(o.Results) > 0 }

// HistoryPoint is one stored value of a parameter over time.
type HistoryPoint struct {
	TestResultID  uuid.UUID `json:"test_result_id"`
	TestTypeCode  string    `json:"test_type_code"`
	PerformedAt   time.Time `json:"performed_at"`
	ParameterCode string    `json:"parameter_code"`
	RawValue      string    `json:"raw_value"`
	Numeric       *float64  `json:"numeric_value,omitempty"`
	Text          *string   `json:"text_value,omitempty"`
	Boolean       *bool     `json:"boolean_value,omitempty"`
	Unit          string    `json:"unit,omitempty"`
	IsAbnormal    bool      `json:"is_abnormal"`
	LabName       string    `json:"lab_name,omitempty"`
}

// StoredResult is a persisted test result with its values, as read back for export.
type StoredResult struct {
	ID            uuid.UUID
	TestTypeCode  string
	PerformedAt   time.Time
	DateDefaulted bool
	LabName       string
	DocumentID    *uuid.UUID
	CreatedAt     time.Time
	Values        []ParameterValue
}

// Panel groups raw candidates for one test type. Candidates are keyed by the code or
// name the producer used.
type Panel struct {
	TestType   string
	Candidates map[string]RawParamCandidate
}

// ReportHeader is document-level metadata shared by every panel.
type ReportHeader struct {
	TestDate   *time.Time
	LabName    string
	RawExcerpt string
}
