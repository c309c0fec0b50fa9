package llm

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// SanitizeLabReport repairs common model deviations so the document can validate:
//   - null, empty or non-object parameters are dropped
//   - numeric and boolean values become strings
//   - null units and ranges are removed
//   - "true"/"false" strings in is_abnormal become booleans
//   - test type codes are trimmed and upper-cased
//   - null header fields are removed; a missing "tests" array becomes empty
//
// It returns the cleaned document and a list of what was dropped or changed.
func SanitizeLabReport(doc []byte) ([]byte, []string, error) {
	var m map[string]any
	if err := json.Unmarshal(doc, &m); err != nil {
		return nil, nil, fmt.Errorf("sanitize: decode: %w", err)
	}

	var changed []string
	for _, k := range []string{"test_date", "lab_name", "test_type"} {
		switch v := m[k].(type) {
		case nil:
			if _, ok := m[k]; ok {
				delete(m, k)
				changed = append(changed, k+"(null)")
			}
		case string:
			m[k] = strings.TrimSpace(v)
		default:
			m[k] = fmt.Sprint(v)
			changed = append(changed, k+"(type)")
		}
	}

	tests, ok := m["tests"].([]any)
	if !ok {
		if _, present := m["tests"]; present {
			changed = append(changed, "tests(type)")
		}
		tests = []any{}
	}
	kept := make([]any, 0, len(tests))
	for i, t := range tests {
		test, ok := t.(map[string]any)
		if !ok {
			changed = append(changed, fmt.Sprintf("tests[%d](type)", i))
			continue
		}
		if tt, ok := test["test_type"].(string); ok {
			test["test_type"] = strings.ToUpper(strings.TrimSpace(tt))
		} else if _, present := test["test_type"]; present {
			delete(test, "test_type")
		}
		params, ok := test["parameters"].(map[string]any)
		if !ok {
			params = map[string]any{}
		}
		for name, p := range params {
			reason := sanitizeParameter(params, name, p)
			if reason != "" {
				changed = append(changed, fmt.Sprintf("tests[%d].%s(%s)", i, name, reason))
			}
		}
		test["parameters"] = params
		kept = append(kept, test)
	}
	m["tests"] = kept

	out, err := json.Marshal(m)
	if err != nil {
		return nil, changed, fmt.Errorf("sanitize: encode: %w", err)
	}
	return out, changed, nil
}

// sanitizeParameter fixes params[name] in place and reports what it did.
func sanitizeParameter(params map[string]any, name string, p any) string {
	switch v := p.(type) {
	case nil:
		delete(params, name)
		return "null"
	case float64, bool:
		// bare scalar instead of {value: ...}
		params[name] = map[string]any{"value": scalarString(v)}
		return "scalar"
	case string:
		if strings.TrimSpace(v) == "" {
			delete(params, name)
			return "empty"
		}
		params[name] = map[string]any{"value": strings.TrimSpace(v)}
		return "scalar"
	case map[string]any:
		var reason string
		switch val := v["value"].(type) {
		case nil:
			delete(params, name)
			return "null"
		case string:
			if strings.TrimSpace(val) == "" {
				delete(params, name)
				return "empty"
			}
			v["value"] = strings.TrimSpace(val)
		case float64, bool:
			v["value"] = scalarString(val)
			reason = "coerced"
		default:
			delete(params, name)
			return "type"
		}
		for _, k := range []string{"unit", "normal_range", "name", "code"} {
			if x, present := v[k]; present && x == nil {
				delete(v, k)
			}
		}
		switch v["normal_range"].(type) {
		case nil, string, float64, map[string]any:
		default:
			delete(v, "normal_range")
		}
		if u, ok := v["unit"]; ok {
			if _, isStr := u.(string); !isStr {
				v["unit"] = fmt.Sprint(u)
			}
		}
		switch ab := v["is_abnormal"].(type) {
		case nil:
			delete(v, "is_abnormal")
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(ab)); err == nil {
				v["is_abnormal"] = b
			} else {
				delete(v, "is_abnormal")
			}
		case bool:
		default:
			delete(v, "is_abnormal")
		}
		return reason
	}
	delete(params, name)
	return "type"
}

func scalarString(v any) string {
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return fmt.Sprint(v)
}
