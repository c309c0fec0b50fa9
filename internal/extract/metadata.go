package extract

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/joseph-ayodele/lab-extractor/constants"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
	"github.com/joseph-ayodele/lab-extractor/internal/normalize"
)

// RawExcerptChars is the length of the document excerpt kept with a result.
const RawExcerptChars = constants.RawExcerptLen

var (
	reTestDate = regexp.MustCompile(`(?i)(?:TEST DATE|Report Date|Date)[ \t]*[:\s][ \t]*(\d{1,2}[/-]\d{1,2}[/-]\d{4})`)
	reLabName  = regexp.MustCompile(`(?i)\b(?:Laboratory|Lab)(?:[ \t]+Name)?[ \t]*[: \t][ \t]*([A-Za-z0-9][A-Za-z0-9 \t&.'-]*)`)
)

// ExtractHeader reads the test date and lab name printed on a report. Dates are
// day-first. A missing lab name becomes "Unknown Lab"; a missing date stays nil.
func ExtractHeader(text string) entity.ReportHeader {
	h := entity.ReportHeader{LabName: constants.UnknownLab, RawExcerpt: Excerpt(text, RawExcerptChars)}
	if m := reTestDate.FindStringSubmatch(text); m != nil {
		if t, ok := normalize.ParseDate(m[1]); ok {
			h.TestDate = &t
		}
	}
	if m := reLabName.FindStringSubmatch(text); m != nil {
		if name := strings.TrimSpace(m[1]); name != "" {
			h.LabName = name
		}
	}
	return h
}

// Excerpt returns the first n runes of text.
func Excerpt(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}
