// Package normalize merges raw parameter candidates into canonical test results and
// renders them in the HTTP response shape.
package normalize

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/catalog"
	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// Catalog is the subset of the reference catalog the normalizer needs.
type Catalog interface {
	Resolve(name, testType string) (entity.ParameterDefinition, bool)
	AllParameters() []entity.ParameterDefinition
	TestTypes() []entity.TestType
	TestType(code string) (entity.TestType, bool)
}

type Normalizer struct {
	catalog Catalog
	order   map[string]int
	now     func() time.Time
	logger  *slog.Logger
}

type Option func(*Normalizer)

// WithClock sets the clock used for defaulted dates.
func WithClock(now func() time.Time) Option { return func(n *Normalizer) { n.now = now } }

func New(cat Catalog, logger *slog.Logger, opts ...Option) *Normalizer {
	if logger == nil {
		logger = slog.Default()
	}
	n := &Normalizer{catalog: cat, now: time.Now, logger: logger, order: map[string]int{}}
	for i, p := range cat.AllParameters() {
		n.order[p.Code] = i
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Definition resolves the identity of one candidate: its code, then its name, and
// finally a synthesized definition. A producer-supplied code survives synthesis.
func (n *Normalizer) Definition(c entity.RawParamCandidate, testType string) entity.ParameterDefinition {
	if c.Code != "" {
		if def, ok := n.catalog.Resolve(c.Code, testType); ok {
			return def
		}
	}
	if c.Name != "" && c.Name != c.Code {
		if def, ok := n.catalog.Resolve(c.Name, testType); ok {
			return def
		}
	}
	def := catalog.Synthesize(firstNonEmpty(c.Name, c.Code), testType, c.RawValue)
	if c.Code != "" {
		def.Code = catalog.SynthesizeCode(c.Code)
	}
	return def
}

// TestTypeCode maps a test type label (code, display name or free text) to a code.
func (n *Normalizer) TestTypeCode(label string) string {
	label = strings.TrimSpace(label)
	if label == "" || strings.EqualFold(label, constants.UnknownTest) || strings.EqualFold(label, constants.MultipleTests) {
		return constants.UnknownTestTypeCode
	}
	if tt, ok := n.catalog.TestType(label); ok {
		return tt.Code
	}
	for _, tt := range n.catalog.TestTypes() {
		if strings.EqualFold(tt.Name, label) {
			return tt.Code
		}
	}
	return catalog.SynthesizeCode(label)
}

// Normalize builds one TestResult from candidates. Values are ordered by catalog
// position, then code; the first candidate for a code wins. A result without values
// is a NoParametersExtracted failure. Without a header date PerformedAt is now and
// DateDefaulted is set.
func (n *Normalizer) Normalize(cands map[string]entity.RawParamCandidate, testType string, header entity.ReportHeader) (entity.TestResult, error) {
	code := n.TestTypeCode(testType)
	res := entity.TestResult{
		TestTypeCode: code,
		TestTypeName: code,
		Source:       entity.SourceMetadata{LabName: header.LabName, RawExcerpt: header.RawExcerpt},
	}
	if tt, ok := n.catalog.TestType(code); ok {
		res.TestTypeName = tt.Name
	}
	if header.TestDate != nil {
		res.PerformedAt = *header.TestDate
	} else {
		res.PerformedAt = n.now()
		res.DateDefaulted = true
	}

	keys := make([]string, 0, len(cands))
	for k := range cands {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	seen := map[string]struct{}{}
	for _, k := range keys {
		c := cands[k]
		if c.Code == "" && c.Name == "" {
			c.Name = k
		}
		if strings.TrimSpace(c.RawValue) == "" {
			continue
		}
		def := n.Definition(c, code)
		if _, dup := seen[def.Code]; dup {
			n.logger.Debug("normalize.duplicate_parameter", "code", def.Code, "key", k)
			continue
		}
		seen[def.Code] = struct{}{}
		res.Values = append(res.Values, n.value(def, c))
	}

	sort.SliceStable(res.Values, func(i, j int) bool {
		oi, iok := n.order[res.Values[i].ParameterCode]
		oj, jok := n.order[res.Values[j].ParameterCode]
		switch {
		case iok && jok:
			return oi < oj
		case iok != jok:
			return iok
		}
		return res.Values[i].ParameterCode < res.Values[j].ParameterCode
	})

	if len(res.Values) == 0 {
		return res, common.NewExtractionError(common.ErrNoParametersExtracted,
			"no valid test results found for "+code, nil)
	}
	return res, nil
}

// value types the raw value and decides abnormality. An explicit producer flag wins;
// otherwise only numeric values are checked against the range.
func (n *Normalizer) value(def entity.ParameterDefinition, c entity.RawParamCandidate) entity.ParameterValue {
	pv := entity.NewParameterValue(def.Code, def.DataType, c.RawValue)
	pv.Name = def.Name
	pv.Synthesized = def.Synthesized
	pv.Unit = firstNonEmpty(strings.TrimSpace(c.Unit), def.Unit)
	pv.ReferenceRange = def.ReferenceRange
	if !c.ReferenceRange.IsZero() {
		pv.ReferenceRange = c.ReferenceRange
	}
	switch {
	case c.IsAbnormal != nil:
		pv.IsAbnormal = *c.IsAbnormal
	case pv.Numeric != nil:
		pv.IsAbnormal = pv.ReferenceRange.Violates(*pv.Numeric)
	}
	return pv
}

// NormalizePanels normalizes every panel. Panels of the same test type are merged
// in order. Empty panels are skipped; when every panel is empty the result is a
// NoParametersExtracted failure.
func (n *Normalizer) NormalizePanels(panels []entity.Panel, header entity.ReportHeader) ([]entity.TestResult, error) {
	var (
		order  []string
		merged = map[string]map[string]entity.RawParamCandidate{}
	)
	for _, p := range panels {
		code := n.TestTypeCode(p.TestType)
		m, ok := merged[code]
		if !ok {
			m = map[string]entity.RawParamCandidate{}
			merged[code] = m
			order = append(order, code)
		}
		for k, c := range p.Candidates {
			if _, exists := m[k]; !exists {
				m[k] = c
			}
		}
	}

	var results []entity.TestResult
	for _, code := range order {
		res, err := n.Normalize(merged[code], code, header)
		if err != nil {
			n.logger.Debug("normalize.panel_empty", "test_type", code)
			continue
		}
		results = append(results, res)
	}
	if len(results) == 0 {
		return nil, common.NewExtractionError(common.ErrNoParametersExtracted, "no valid test results found", nil)
	}
	return results, nil
}
