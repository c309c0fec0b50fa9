package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/lab-extractor/internal/common"
	"github.com/joseph-ayodele/lab-extractor/internal/entity"
)

// Decoded is any accepted input shape converted to panels of raw candidates.
type Decoded struct {
	TestDate string
	LabName  string
	TestType string
	Panels   []entity.Panel
}

// legacyKeys are top-level keys that carry one test type's parameters.
var legacyKeys = []string{"cbc", "ure"}

// Decode converts a JSON document in any accepted shape:
//   - nested {test_date, lab_name, test_type, tests: [{test_type, parameters}]}
//   - legacy {cbc: {...}, ure: {...}}
//   - {values: {code: value}, reference_ranges: {code: range}}
//   - {parameters: {...}} for a single panel
//   - a list of {name, code, unit, value, is_abnormal, reference_range}
//   - a flat dict of code -> value
//
// Panels without a test type get defaultTestType.
func Decode(raw []byte, defaultTestType string) (Decoded, error) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Decoded{}, common.NewAppError("INVALID_SHAPE", "payload is not valid JSON", fmt.Errorf("%w: %w", common.ErrInvalidInput, err))
	}
	return DecodeValue(v, defaultTestType)
}

// DecodeValue is Decode for an already unmarshalled value.
func DecodeValue(v any, defaultTestType string) (Decoded, error) {
	switch t := v.(type) {
	case []any:
		return Decoded{Panels: []entity.Panel{listPanel(t, defaultTestType)}}, nil
	case map[string]any:
		return decodeObject(t, defaultTestType), nil
	}
	return Decoded{}, common.NewAppError("INVALID_SHAPE", fmt.Sprintf("unsupported payload type %T", v), common.ErrInvalidInput)
}

func decodeObject(m map[string]any, defaultTestType string) Decoded {
	d := Decoded{
		TestDate: str(m["test_date"]),
		LabName:  str(m["lab_name"]),
		TestType: str(m["test_type"]),
	}
	if tests, ok := m["tests"].([]any); ok {
		for _, t := range tests {
			tm, ok := t.(map[string]any)
			if !ok {
				continue
			}
			tt := firstNonEmpty(str(tm["test_type"]), defaultTestType)
			switch params := tm["parameters"].(type) {
			case map[string]any:
				d.Panels = append(d.Panels, mapPanel(params, nil, tt))
			case []any:
				d.Panels = append(d.Panels, listPanel(params, tt))
			}
		}
		return d
	}

	var legacy []entity.Panel
	for _, k := range legacyKeys {
		if params, ok := m[k].(map[string]any); ok {
			legacy = append(legacy, mapPanel(params, nil, strings.ToUpper(k)))
		}
	}
	if len(legacy) > 0 {
		d.Panels = legacy
		return d
	}

	tt := firstNonEmpty(d.TestType, defaultTestType)
	if values, ok := m["values"].(map[string]any); ok {
		ranges, _ := m["reference_ranges"].(map[string]any)
		d.Panels = []entity.Panel{mapPanel(values, ranges, tt)}
		return d
	}
	switch params := m["parameters"].(type) {
	case map[string]any:
		d.Panels = []entity.Panel{mapPanel(params, nil, tt)}
		return d
	case []any:
		d.Panels = []entity.Panel{listPanel(params, tt)}
		return d
	}

	flat := make(map[string]any, len(m))
	for k, v := range m {
		switch k {
		case "test_date", "lab_name", "test_type":
			continue
		}
		flat[k] = v
	}
	d.Panels = []entity.Panel{mapPanel(flat, nil, tt)}
	return d
}

// mapPanel converts name -> value or name -> {value, unit, ...} entries.
func mapPanel(params, ranges map[string]any, testType string) entity.Panel {
	p := entity.Panel{TestType: testType, Candidates: map[string]entity.RawParamCandidate{}}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c, ok := candidate(k, params[k], testType)
		if !ok {
			continue
		}
		if r, ok := ranges[k]; ok && c.ReferenceRange.IsZero() {
			c.ReferenceRange = entity.ParseRefRange(r)
		}
		p.Candidates[k] = c
	}
	return p
}

// listPanel converts [{name, code, value, ...}] items. Items carrying their own
// test_type still land in this panel.
func listPanel(items []any, testType string) entity.Panel {
	p := entity.Panel{TestType: testType, Candidates: map[string]entity.RawParamCandidate{}}
	for i, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		key := firstNonEmpty(str(m["code"]), str(m["name"]), "item_"+strconv.Itoa(i))
		c, ok := candidate(key, m, testType)
		if !ok {
			continue
		}
		if _, dup := p.Candidates[key]; dup {
			continue
		}
		p.Candidates[key] = c
	}
	return p
}

// candidate builds a RawParamCandidate from a scalar or an object. ok is false when
// no value is present.
func candidate(key string, v any, testType string) (entity.RawParamCandidate, bool) {
	c := entity.RawParamCandidate{Name: key, TestType: testType}
	switch t := v.(type) {
	case map[string]any:
		raw, ok := scalar(t["value"])
		if !ok {
			return c, false
		}
		c.RawValue = raw
		c.Code = str(t["code"])
		if n := str(t["name"]); n != "" {
			if c.Code == "" {
				// keyed by code, with the display name alongside
				c.Code = key
			}
			c.Name = n
		}
		c.Unit = str(t["unit"])
		for _, rk := range []string{"reference_range", "normal_range", "range"} {
			if r, ok := t[rk]; ok && r != nil {
				c.ReferenceRange = entity.ParseRefRange(r)
				break
			}
		}
		switch ab := t["is_abnormal"].(type) {
		case bool:
			c.IsAbnormal = &ab
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(ab)); err == nil {
				c.IsAbnormal = &b
			}
		}
		if tt := str(t["test_type"]); tt != "" {
			c.TestType = tt
		}
	default:
		raw, ok := scalar(v)
		if !ok {
			return c, false
		}
		c.RawValue = raw
	}
	return c, true
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case nil:
		return "", false
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	}
	return "", false
}

func str(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
