package llm

import (
	"sort"
	"strings"
)

// BuildSystemPrompt composes the fixed system instruction. knownTypes lists the test
// type codes the model should prefer (CBC, URE, ...); it may be empty.
func BuildSystemPrompt(knownTypes []string) string {
	types := "CBC, URE, LFT, etc."
	if len(knownTypes) > 0 {
		sorted := append([]string(nil), knownTypes...)
		sort.Strings(sorted)
		types = strings.Join(sorted, ", ") + " or another short code"
	}

	parts := []string{
		"You are a medical document analyzer specialized in extracting structured information from lab test results.",
		"Analyze the text and extract: the test date, the lab name, the test type (" + types + ") and",
		"every test parameter with its value, unit and normal range.",
		"Return ONLY a JSON object of this form:",
		`{"test_date": "YYYY-MM-DD", "lab_name": "Name of the Laboratory", "test_type": "Type of test or 'Multiple Tests'",`,
		`"tests": [{"test_type": "CBC", "parameters": {"parameter_name": {"value": "numeric or text value",`,
		`"unit": "unit of measurement", "normal_range": "reference range"}}}]}`,
		"Group parameters by test type, one entry in 'tests' per test type.",
		"Use the parameter name exactly as printed. Report values as printed, without units.",
		"Add \"is_abnormal\": true or false only when the document explicitly flags the value.",
		"If you can't determine a field, omit it. Only include parameters that are clearly mentioned in the text.",
	}
	return strings.Join(parts, "\n")
}

// BuildUserPrompt returns the document text sent to the model.
func BuildUserPrompt(text string, maxChars int) string {
	text = strings.TrimSpace(text)
	if maxChars > 0 && len(text) > maxChars {
		return text[:maxChars] + "\n...(truncated)"
	}
	return text
}
