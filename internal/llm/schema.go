package llm

// BuildLabReportSchema returns the JSON-Schema used to validate model output locally.
// Header fields are optional; every parameter needs a string value.
func BuildLabReportSchema() map[string]any {
	parameter := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value":        map[string]any{"type": "string", "minLength": 1},
			"unit":         map[string]any{"type": "string"},
			"normal_range": map[string]any{"type": []any{"string", "object", "number"}},
			"is_abnormal":  map[string]any{"type": "boolean"},
			"name":         map[string]any{"type": "string"},
			"code":         map[string]any{"type": "string"},
		},
		"required": []any{"value"},
	}
	test := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"test_type": map[string]any{"type": "string"},
			"parameters": map[string]any{
				"type":                 "object",
				"additionalProperties": parameter,
			},
		},
		"required": []any{"parameters"},
	}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"test_date": map[string]any{"type": "string"},
			"lab_name":  map[string]any{"type": "string"},
			"test_type": map[string]any{"type": "string"},
			"tests":     map[string]any{"type": "array", "items": test},
		},
		"required": []any{"tests"},
	}
}
