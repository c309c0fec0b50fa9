package extract

import (
	"context"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// ParameterSource supplies parameter definitions per test type.
type ParameterSource interface {
	TestTypes() []entity.TestType
	Parameters(testType string) []entity.ParameterDefinition
}

const valuePattern = `(\d+(?:,\d{3})*(?:\.\d+)?)`

// template is one compiled "alias/value" layout.
type template struct {
	re         *regexp.Regexp
	aliasGroup int
	valueGroup int
}

type aliasRules struct {
	alias     string
	templates []template
	// shadows are longer aliases of other parameters that contain alias.
	shadows []string
}

type paramRules struct {
	def     entity.ParameterDefinition
	aliases []aliasRules
}

var (
	reUnit       = regexp.MustCompile(`^[ \t]*((?:10\^\d+|x ?10\^\d+)/[A-Za-zµμ]+|[A-Za-zµμ%][A-Za-z0-9µμ%/^.*]*)`)
	reParenRange = regexp.MustCompile(`\(\s*([^()]*\d[^()]*)\s*\)`)
	reLabelRange = regexp.MustCompile(`(?i)\b(?:ref(?:erence)?(?:[ \t]+range)?|normal(?:[ \t]+range)?|range)[ \t]*[:=][ \t]*([<>≤≥]?=?[ \t]*\d+(?:\.\d+)?(?:[ \t]*(?:-|–|to)[ \t]*\d+(?:\.\d+)?)?)`)
)

// unitStopWords are tokens after a value that are flags or labels rather than units.
var unitStopWords = map[string]struct{}{
	"h": {}, "l": {}, "high": {}, "low": {}, "range": {}, "ref": {}, "reference": {},
	"normal": {}, "abnormal": {}, "flag": {},
}

// RuleBased extracts parameters with per-alias regular expressions. It needs no
// external capability and is the fallback of every other strategy.
type RuleBased struct {
	src    ParameterSource
	byType map[string][]paramRules
	types  []string
	logger *slog.Logger
}

func NewRuleBased(src ParameterSource, logger *slog.Logger) *RuleBased {
	if logger == nil {
		logger = slog.Default()
	}
	r := &RuleBased{src: src, byType: map[string][]paramRules{}, logger: logger}

	type owned struct {
		alias string
		code  string
	}
	var all []owned
	defs := map[string][]entity.ParameterDefinition{}
	for _, tt := range src.TestTypes() {
		r.types = append(r.types, tt.Code)
		defs[tt.Code] = src.Parameters(tt.Code)
		for _, def := range defs[tt.Code] {
			for _, a := range aliasesOf(def) {
				all = append(all, owned{alias: a, code: def.Code})
			}
		}
	}

	for _, code := range r.types {
		for _, def := range defs[code] {
			pr := paramRules{def: def}
			for _, a := range aliasesOf(def) {
				ar := aliasRules{alias: a, templates: compileTemplates(a)}
				for _, o := range all {
					if o.code != def.Code && len(o.alias) > len(a) && strings.Contains(o.alias, a) {
						ar.shadows = append(ar.shadows, o.alias)
					}
				}
				pr.aliases = append(pr.aliases, ar)
			}
			r.byType[code] = append(r.byType[code], pr)
		}
	}
	return r
}

func (r *RuleBased) Name() string { return constants.StrategyRules }

// aliasesOf returns the lowercase aliases, display name and code of def, longest
// first. Single-letter spellings are skipped.
func aliasesOf(def entity.ParameterDefinition) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, a := range append(append([]string{}, def.Aliases...), def.Name, def.Code) {
		a = strings.ToLower(strings.TrimSpace(a))
		if len(a) < 2 {
			continue
		}
		if _, dup := seen[a]; dup {
			continue
		}
		seen[a] = struct{}{}
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i]) > len(out[j]) })
	return out
}

// compileTemplates builds, in order: "alias [:=] number", "alias number" and
// "number alias". The alias must not be glued to surrounding letters or digits.
func compileTemplates(alias string) []template {
	q := regexp.QuoteMeta(alias)
	return []template{
		{re: regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(` + q + `)[ \t]*[:=][ \t]*` + valuePattern), aliasGroup: 1, valueGroup: 2},
		{re: regexp.MustCompile(`(?i)(?:^|[^a-z0-9])(` + q + `)[ \t]+` + valuePattern), aliasGroup: 1, valueGroup: 2},
		{re: regexp.MustCompile(`(?i)(?:^|[^0-9.])` + valuePattern + `[ \t]*(` + q + `)(?:[^a-z0-9]|$)`), aliasGroup: 2, valueGroup: 1},
	}
}

// ExtractParameters finds every catalog parameter of testType in text, keyed by code.
// Parameters that do not appear are omitted.
func (r *RuleBased) ExtractParameters(text, testType string) map[string]entity.RawParamCandidate {
	out := map[string]entity.RawParamCandidate{}
	code := strings.ToUpper(strings.TrimSpace(testType))
	for _, pr := range r.byType[code] {
		if c, ok := r.match(text, pr, code); ok {
			out[pr.def.Code] = c
		}
	}
	return out
}

func (r *RuleBased) match(text string, pr paramRules, testType string) (entity.RawParamCandidate, bool) {
	for _, ar := range pr.aliases {
		for _, tpl := range ar.templates {
			for _, m := range tpl.re.FindAllStringSubmatchIndex(text, -1) {
				as, ae := m[2*tpl.aliasGroup], m[2*tpl.aliasGroup+1]
				if shadowed(text, as, ae, ar) {
					continue
				}
				vs, ve := m[2*tpl.valueGroup], m[2*tpl.valueGroup+1]
				c := entity.RawParamCandidate{
					Code:     pr.def.Code,
					Name:     pr.def.Name,
					RawValue: strings.ReplaceAll(text[vs:ve], ",", ""),
					TestType: testType,
				}
				rest := restOfLine(text, max(ve, ae))
				if tpl.valueGroup == 2 {
					c.Unit = unitAfter(text, ve)
				}
				c.ReferenceRange = rangeIn(rest)
				return c, true
			}
		}
	}
	return entity.RawParamCandidate{}, false
}

// shadowed reports whether the alias occurrence at [start,end) is part of a longer
// alias belonging to another parameter.
func shadowed(text string, start, end int, ar aliasRules) bool {
	for _, long := range ar.shadows {
		for off := strings.Index(long, ar.alias); off >= 0; {
			s := start - off
			e := s + len(long)
			if s >= 0 && e <= len(text) && strings.EqualFold(text[s:e], long) {
				return true
			}
			next := strings.Index(long[off+1:], ar.alias)
			if next < 0 {
				break
			}
			off += next + 1
		}
	}
	return false
}

func restOfLine(text string, from int) string {
	rest := text[from:]
	if i := strings.IndexAny(rest, "\r\n"); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

// unitAfter returns the unit token printed right after a value, if any.
func unitAfter(text string, from int) string {
	m := reUnit.FindStringSubmatch(restOfLine(text, from))
	if m == nil {
		return ""
	}
	unit := strings.TrimRight(m[1], ".*")
	if _, stop := unitStopWords[strings.ToLower(unit)]; stop {
		return ""
	}
	return unit
}

// rangeIn finds a "(min-max)" or "range: min-max" interval on the rest of the line.
func rangeIn(rest string) entity.RefRange {
	if m := reLabelRange.FindStringSubmatch(rest); m != nil {
		if rr := entity.ParseRefRange(m[1]); rr.Kind != entity.RangeDescriptive && !rr.IsZero() {
			return rr
		}
	}
	for _, m := range reParenRange.FindAllStringSubmatch(rest, -1) {
		if rr := entity.ParseRefRange(m[1]); rr.Kind != entity.RangeDescriptive && !rr.IsZero() {
			return rr
		}
	}
	return entity.RefRange{}
}

// panelTypes picks the test types to scan: the primary, the tied candidates of a
// multiple classification, or every known type when unknown.
func (r *RuleBased) panelTypes(cls entity.Classification) []string {
	switch cls.Primary {
	case constants.MultipleTests:
		return cls.Codes()
	case constants.UnknownTest, "":
		return r.types
	}
	return []string{strings.ToUpper(cls.Primary)}
}

// Extract runs ExtractParameters for each test type implied by the classification.
// Panels without matches are dropped; an extraction without panels is not an error
// here and fails later in normalization.
func (r *RuleBased) Extract(ctx context.Context, in Input) (Extraction, error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	label := in.Classification.Primary
	if label == "" {
		label = constants.UnknownTest
	}
	out := Extraction{Header: ExtractHeader(in.Text), TestType: label, Strategy: r.Name()}
	for _, tt := range r.panelTypes(in.Classification) {
		cands := r.ExtractParameters(in.Text, tt)
		if len(cands) == 0 {
			continue
		}
		out.Panels = append(out.Panels, entity.Panel{TestType: tt, Candidates: cands})
	}
	r.logger.Debug("extract.rules.done",
		"test_type", label, "panels", len(out.Panels), "candidates", out.CandidateCount())
	return out, nil
}
