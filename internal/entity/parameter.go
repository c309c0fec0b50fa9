package entity

import (
	"regexp"
	"strconv"
	"strings"
)

// DataType selects which typed slot of a ParameterValue is populated.
type DataType string

const (
	DataNumeric     DataType = "numeric"
	DataText        DataType = "text"
	DataBoolean     DataType = "boolean"
	DataCategorical DataType = "categorical"
)

// ParseDataType maps free text to a DataType, defaulting to numeric.
func ParseDataType(s string) DataType {
	switch DataType(strings.ToLower(strings.TrimSpace(s))) {
	case DataText:
		return DataText
	case DataBoolean:
		return DataBoolean
	case DataCategorical:
		return DataCategorical
	}
	return DataNumeric
}

// ParameterDefinition is a catalog entry. Code is globally unique.
type ParameterDefinition struct {
	Code           string   `json:"code"`
	Name           string   `json:"name"`
	Unit           string   `json:"unit,omitempty"`
	DataType       DataType `json:"data_type"`
	ReferenceRange RefRange `json:"reference_range"`
	TestTypeCode   string   `json:"test_type_code,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`

	// Synthesized marks a definition derived from an unknown name.
	Synthesized bool `json:"-"`
}

// RawParamCandidate is what every extraction strategy and payload shape is
// converted into before normalization.
type RawParamCandidate struct {
	Code           string
	Name           string
	RawValue       string
	Unit           string
	ReferenceRange RefRange
	// IsAbnormal is set only when a producer asserted the flag explicitly.
	IsAbnormal *bool
	TestType   string
}

// ParameterValue is one measured value. Exactly one of Numeric, Text and Boolean is set.
type ParameterValue struct {
	ParameterCode  string
	Name           string
	Unit           string
	RawValue       string
	DataType       DataType
	Numeric        *float64
	Text           *string
	Boolean        *bool
	IsAbnormal     bool
	ReferenceRange RefRange
	// Synthesized is copied from the definition the value was resolved against.
	Synthesized bool
}

// Value returns the populated typed slot.
func (v ParameterValue) Value() any {
	switch {
	case v.Numeric != nil:
		return *v.Numeric
	case v.Boolean != nil:
		return *v.Boolean
	case v.Text != nil:
		return *v.Text
	}
	return nil
}

var reNonNumeric = regexp.MustCompile(`[^0-9.]`)

// CoerceNumeric strips everything except digits and '.' and parses the rest.
func CoerceNumeric(raw string) (float64, bool) {
	s := reNonNumeric.ReplaceAllString(raw, "")
	if s == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// CoerceBool accepts the usual lab spellings of a boolean result.
func CoerceBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "yes", "positive", "pos", "+", "detected", "reactive":
		return true, true
	case "false", "no", "negative", "neg", "-", "not detected", "non-reactive", "nonreactive":
		return false, true
	}
	return false, false
}

// NewParameterValue types raw according to dataType. A failed numeric or boolean
// coercion degrades the value to text.
func NewParameterValue(code string, dataType DataType, raw string) ParameterValue {
	raw = strings.TrimSpace(raw)
	pv := ParameterValue{ParameterCode: code, RawValue: raw, DataType: dataType}
	switch dataType {
	case DataNumeric, "":
		if f, ok := CoerceNumeric(raw); ok {
			pv.DataType = DataNumeric
			pv.Numeric = &f
			return pv
		}
	case DataBoolean:
		if b, ok := CoerceBool(raw); ok {
			pv.Boolean = &b
			return pv
		}
	case DataCategorical:
		pv.Text = &raw
		return pv
	}
	pv.DataType = DataText
	pv.Text = &raw
	return pv
}
