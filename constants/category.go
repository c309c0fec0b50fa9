package constants

import (
	"strings"
)

// Category groups test types the way the lab catalog does.
type Category string

const (
	Hematology    Category = "HEMATOLOGY"
	Biochemistry  Category = "BIOCHEMISTRY"
	Endocrinology Category = "ENDOCRINOLOGY"
	Immunology    Category = "IMMUNOLOGY"
	Microbiology  Category = "MICROBIOLOGY"
	Other         Category = "OTHER"
)

var allCategories = []Category{
	Hematology,
	Biochemistry,
	Endocrinology,
	Immunology,
	Microbiology,
	Other,
}

// Canonicalize maps free-form category labels (catalog files, AI output) to a Category.
func Canonicalize(input string) (Category, bool) {
	if input == "" {
		return Other, false
	}

	normalized := strings.ToLower(strings.TrimSpace(input))

	synonyms := map[string]Category{
		"haematology":        Hematology,
		"blood":              Hematology,
		"chemistry":          Biochemistry,
		"clinical chemistry": Biochemistry,
		"biochem":            Biochemistry,
		"endocrine":          Endocrinology,
		"hormones":           Endocrinology,
		"serology":           Immunology,
		"culture":            Microbiology,
	}

	if cat, ok := synonyms[normalized]; ok {
		return cat, true
	}

	for _, cat := range allCategories {
		if normalized == strings.ToLower(string(cat)) {
			return cat, true
		}
	}

	return Other, false
}
