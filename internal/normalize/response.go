package normalize

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// DateLayout is the test_date format of the HTTP response.
const DateLayout = "2006-01-02"

// ParameterJSON is one parameter in the HTTP response.
type ParameterJSON struct {
	Value       any    `json:"value"`
	Unit        string `json:"unit,omitempty"`
	NormalRange string `json:"normal_range,omitempty"`
	IsAbnormal  bool   `json:"is_abnormal"`
	Name        string `json:"name,omitempty"`
}

type TestJSON struct {
	TestType   string                   `json:"test_type"`
	Parameters map[string]ParameterJSON `json:"parameters"`
}

// Response is the body of a successful POST /process-document.
type Response struct {
	TestDate      string                   `json:"test_date"`
	LabName       string                   `json:"lab_name"`
	TestType      string                   `json:"test_type"`
	Tests         []TestJSON               `json:"tests"`
	CBC           map[string]ParameterJSON `json:"cbc,omitempty"`
	URE           map[string]ParameterJSON `json:"ure,omitempty"`
	DateDefaulted bool                     `json:"date_defaulted"`
	DocumentID    string                   `json:"document_id,omitempty"`
	TestResultIDs []string                 `json:"test_result_ids,omitempty"`
}

// BuildResponse renders results. label is the classification shown as test_type
// when given; otherwise it is derived from the results.
func BuildResponse(results []entity.TestResult, label string) Response {
	r := Response{LabName: constants.UnknownLab, TestType: label, Tests: []TestJSON{}}
	if len(results) > 0 {
		first := results[0]
		r.TestDate = first.PerformedAt.Format(DateLayout)
		r.DateDefaulted = first.DateDefaulted
		if first.Source.LabName != "" {
			r.LabName = first.Source.LabName
		}
		if first.Source.DocumentID != nil {
			r.DocumentID = first.Source.DocumentID.String()
		}
	}
	if r.TestType == "" {
		switch len(results) {
		case 0:
			r.TestType = constants.UnknownTest
		case 1:
			r.TestType = results[0].TestTypeCode
		default:
			r.TestType = constants.MultipleTests
		}
	}

	for _, res := range results {
		params := make(map[string]ParameterJSON, len(res.Values))
		for _, v := range res.Values {
			params[v.ParameterCode] = ParameterJSON{
				Value:       v.Value(),
				Unit:        v.Unit,
				NormalRange: v.ReferenceRange.String(),
				IsAbnormal:  v.IsAbnormal,
				Name:        v.Name,
			}
		}
		r.Tests = append(r.Tests, TestJSON{TestType: res.TestTypeCode, Parameters: params})
		switch strings.ToUpper(res.TestTypeCode) {
		case "CBC":
			if r.CBC == nil {
				r.CBC = params
			}
		case "URE":
			if r.URE == nil {
				r.URE = params
			}
		}
		if res.ID != uuid.Nil {
			r.TestResultIDs = append(r.TestResultIDs, res.ID.String())
		}
	}
	return r
}

// Header returns the report header encoded in the response.
func (r Response) Header() entity.ReportHeader {
	h := entity.ReportHeader{LabName: r.LabName}
	if r.DateDefaulted {
		return h
	}
	if t, ok := ParseDate(r.TestDate); ok {
		h.TestDate = &t
	}
	return h
}

var dateLayouts = []string{
	DateLayout,
	"02/01/2006",
	"2/1/2006",
	"02-01-2006",
	"2-1-2006",
	time.RFC3339,
	"2006-01-02T15:04:05",
}

// ParseDate accepts ISO dates and day-first d/m/Y or d-m-Y dates.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
