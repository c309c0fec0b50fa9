// Package classify scores extracted text against the keyword table of each test type.
package classify

import (
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// DefaultThreshold is the minimum number of distinct keyword hits for a primary type.
const DefaultThreshold = 3

// shortKeyword keywords match on word boundaries only ("hb", "tsh", "u&e").
const shortKeyword = 4

// TestTypeSource supplies the test types and their keywords.
type TestTypeSource interface {
	TestTypes() []entity.TestType
}

type keyword struct {
	phrase string
	re     *regexp.Regexp // nil for substring matching
}

type testTypeRule struct {
	testType entity.TestType
	keywords []keyword
}

type Classifier struct {
	rules     []testTypeRule
	threshold int
	logger    *slog.Logger
}

func NewClassifier(src TestTypeSource, threshold int, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	c := &Classifier{threshold: threshold, logger: logger}
	for _, tt := range src.TestTypes() {
		rule := testTypeRule{testType: tt}
		seen := map[string]struct{}{}
		for _, k := range tt.Keywords {
			k = strings.ToLower(strings.TrimSpace(k))
			if k == "" {
				continue
			}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			kw := keyword{phrase: k}
			if len([]rune(k)) <= shortKeyword {
				kw.re = regexp.MustCompile(`(?:^|[^a-z0-9])` + regexp.QuoteMeta(k) + `(?:[^a-z0-9]|$)`)
			}
			rule.keywords = append(rule.keywords, kw)
		}
		c.rules = append(c.rules, rule)
	}
	return c
}

// Threshold returns the minimum evidence for a primary classification.
func (c *Classifier) Threshold() int { return c.threshold }

// Scores counts distinct keyword hits per test type. Types without hits are omitted;
// the result is ordered by score, then catalog order.
func (c *Classifier) Scores(text string) []entity.TestTypeCandidate {
	lower := strings.ToLower(text)
	var out []entity.TestTypeCandidate
	for _, r := range c.rules {
		n := 0
		for _, kw := range r.keywords {
			if kw.matches(lower) {
				n++
			}
		}
		if n == 0 {
			continue
		}
		out = append(out, entity.TestTypeCandidate{
			Code:        r.testType.Code,
			DisplayName: r.testType.Name,
			Category:    r.testType.Category,
			Score:       n,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func (k keyword) matches(lower string) bool {
	if k.re != nil {
		return k.re.MatchString(lower)
	}
	return strings.Contains(lower, k.phrase)
}

// Classify picks the primary test type. A single strict maximum at or above the
// threshold wins; ties at the maximum yield "Multiple Tests" with the tied types as
// candidates; otherwise the result is "Unknown" and candidates lists every type with
// at least one hit. Classify never fails.
func (c *Classifier) Classify(text string) entity.Classification {
	scores := c.Scores(text)
	if len(scores) == 0 || scores[0].Score < c.threshold {
		c.logger.Debug("classify.unknown", "hits", len(scores))
		return entity.Classification{Primary: constants.UnknownTest, Candidates: scores}
	}
	top := scores[0].Score
	tied := scores[:1]
	for i := 1; i < len(scores) && scores[i].Score == top; i++ {
		tied = scores[:i+1]
	}
	if len(tied) > 1 {
		c.logger.Info("classify.multiple", "codes", codes(tied), "score", top)
		return entity.Classification{Primary: constants.MultipleTests, Candidates: tied}
	}
	c.logger.Info("classify.primary", "code", tied[0].Code, "score", top)
	return entity.Classification{Primary: tied[0].Code, Candidates: tied}
}

func codes(cands []entity.TestTypeCandidate) []string {
	out := make([]string, len(cands))
	for i, c := range cands {
		out[i] = c.Code
	}
	return out
}
