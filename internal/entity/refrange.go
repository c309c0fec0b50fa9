package entity

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// RangeKind tags the RefRange variant.
type RangeKind string

const (
	RangeNone        RangeKind = ""
	RangeFlat        RangeKind = "flat"
	RangeKeyed       RangeKind = "keyed"
	RangeDescriptive RangeKind = "descriptive"
)

// Bounds is an interval with optional ends.
type Bounds struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

// Violates reports v < Min or v > Max. A missing bound never violates.
func (b Bounds) Violates(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return true
	}
	if b.Max != nil && v > *b.Max {
		return true
	}
	return false
}

func (b Bounds) IsZero() bool { return b.Min == nil && b.Max == nil }

func (b Bounds) String() string {
	switch {
	case b.Min != nil && b.Max != nil:
		return formatNum(*b.Min) + "-" + formatNum(*b.Max)
	case b.Max != nil:
		return "<" + formatNum(*b.Max)
	case b.Min != nil:
		return ">" + formatNum(*b.Min)
	}
	return ""
}

// RefRange is a reference interval: Flat, Keyed by a demographic axis (e.g. sex), or
// a Descriptive text that cannot be checked.
type RefRange struct {
	Kind  RangeKind
	Flat  Bounds
	Keyed map[string]Bounds
	Text  string
}

func FlatRange(min, max float64) RefRange {
	return RefRange{Kind: RangeFlat, Flat: Bounds{Min: &min, Max: &max}}
}

func BoundsRange(b Bounds) RefRange {
	if b.IsZero() {
		return RefRange{}
	}
	return RefRange{Kind: RangeFlat, Flat: b}
}

func KeyedRange(m map[string]Bounds) RefRange {
	if len(m) == 0 {
		return RefRange{}
	}
	return RefRange{Kind: RangeKeyed, Keyed: m}
}

func DescriptiveRange(text string) RefRange {
	text = strings.TrimSpace(text)
	if text == "" {
		return RefRange{}
	}
	return RefRange{Kind: RangeDescriptive, Text: text}
}

func (r RefRange) IsZero() bool { return r.Kind == RangeNone }

// Violates dispatches on the variant. Keyed ranges flag v when ANY sub-range is
// violated, which does not consider which key applies to the subject.
func (r RefRange) Violates(v float64) bool {
	switch r.Kind {
	case RangeFlat:
		return r.Flat.Violates(v)
	case RangeKeyed:
		for _, b := range r.Keyed {
			if b.Violates(v) {
				return true
			}
		}
	}
	return false
}

// ViolatesFor checks only the sub-range for key when the range is keyed and has it;
// otherwise it behaves like Violates.
func (r RefRange) ViolatesFor(v float64, key string) bool {
	if r.Kind == RangeKeyed && key != "" {
		if b, ok := r.Keyed[strings.ToLower(key)]; ok {
			return b.Violates(v)
		}
	}
	return r.Violates(v)
}

func (r RefRange) keys() []string {
	keys := make([]string, 0, len(r.Keyed))
	for k := range r.Keyed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String renders the range the way lab reports print it: "12-16", "<5",
// "female: 12-15.5; male: 13.5-17.5" or the descriptive text.
func (r RefRange) String() string {
	switch r.Kind {
	case RangeFlat:
		return r.Flat.String()
	case RangeKeyed:
		parts := make([]string, 0, len(r.Keyed))
		for _, k := range r.keys() {
			parts = append(parts, k+": "+r.Keyed[k].String())
		}
		return strings.Join(parts, "; ")
	case RangeDescriptive:
		return r.Text
	}
	return ""
}

// MarshalJSON stores flat ranges as {min,max}, keyed ranges as {key:{min,max}} and
// descriptive ranges as {"text": ...}.
func (r RefRange) MarshalJSON() ([]byte, error) {
	switch r.Kind {
	case RangeFlat:
		return json.Marshal(r.Flat)
	case RangeKeyed:
		return json.Marshal(r.Keyed)
	case RangeDescriptive:
		return json.Marshal(map[string]string{"text": r.Text})
	}
	return []byte("null"), nil
}

func (r *RefRange) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("reference range: %w", err)
	}
	*r = ParseRefRange(v)
	return nil
}

var (
	reRangePair  = regexp.MustCompile(`(\d+(?:\.\d+)?)\s*(?:-|–|to)\s*(\d+(?:\.\d+)?)`)
	reRangeUpper = regexp.MustCompile(`^(?:<=?|≤|up to)\s*(\d+(?:\.\d+)?)`)
	reRangeLower = regexp.MustCompile(`^(?:>=?|≥)\s*(\d+(?:\.\d+)?)`)
	reKeyedPart  = regexp.MustCompile(`^([A-Za-z][A-Za-z ]*?)\s*:\s*(.+)$`)
)

// ParseRefRange converts any of the shapes producers emit (strings, {min,max},
// keyed maps, {"text"}) into a RefRange. Unrecognized input yields the zero range.
func ParseRefRange(v any) RefRange {
	switch t := v.(type) {
	case nil:
		return RefRange{}
	case RefRange:
		return t
	case string:
		return parseRangeString(t)
	case map[string]any:
		return parseRangeMap(t)
	case float64, int:
		return DescriptiveRange(fmt.Sprint(t))
	}
	return RefRange{}
}

func parseRangeString(s string) RefRange {
	s = strings.TrimSpace(strings.Trim(strings.TrimSpace(s), "()[]"))
	if s == "" {
		return RefRange{}
	}
	if strings.Contains(s, ";") {
		keyed := map[string]Bounds{}
		for _, part := range strings.Split(s, ";") {
			m := reKeyedPart.FindStringSubmatch(strings.TrimSpace(part))
			if m == nil {
				continue
			}
			if b, ok := parseBounds(m[2]); ok {
				keyed[strings.ToLower(strings.TrimSpace(m[1]))] = b
			}
		}
		if len(keyed) > 0 {
			return KeyedRange(keyed)
		}
	}
	if m := reKeyedPart.FindStringSubmatch(s); m != nil {
		if b, ok := parseBounds(m[2]); ok {
			return KeyedRange(map[string]Bounds{strings.ToLower(strings.TrimSpace(m[1])): b})
		}
	}
	if b, ok := parseBounds(s); ok {
		return BoundsRange(b)
	}
	return DescriptiveRange(s)
}

func parseBounds(s string) (Bounds, bool) {
	s = strings.TrimSpace(strings.ToLower(s))
	if m := reRangeUpper.FindStringSubmatch(s); m != nil {
		return Bounds{Max: parseNum(m[1])}, true
	}
	if m := reRangeLower.FindStringSubmatch(s); m != nil {
		return Bounds{Min: parseNum(m[1])}, true
	}
	if m := reRangePair.FindStringSubmatch(s); m != nil {
		return Bounds{Min: parseNum(m[1]), Max: parseNum(m[2])}, true
	}
	return Bounds{}, false
}

func parseRangeMap(m map[string]any) RefRange {
	if _, ok := m["min"]; ok {
		return BoundsRange(boundsFromMap(m))
	}
	if _, ok := m["max"]; ok {
		return BoundsRange(boundsFromMap(m))
	}
	if text, ok := m["text"].(string); ok {
		return DescriptiveRange(text)
	}
	keyed := map[string]Bounds{}
	for k, raw := range m {
		var b Bounds
		switch sub := raw.(type) {
		case map[string]any:
			b = boundsFromMap(sub)
		case string:
			b, _ = parseBounds(sub)
		}
		if !b.IsZero() {
			keyed[strings.ToLower(k)] = b
		}
	}
	return KeyedRange(keyed)
}

func boundsFromMap(m map[string]any) Bounds {
	return Bounds{Min: anyNum(m["min"]), Max: anyNum(m["max"])}
}

func anyNum(v any) *float64 {
	switch t := v.(type) {
	case float64:
		return &t
	case int:
		f := float64(t)
		return &f
	case string:
		return parseNum(t)
	}
	return nil
}

func parseNum(s string) *float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &f
}

func formatNum(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
