package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

var errNotObject = errors.New("response is not a JSON object")

// decodeObject parses a service response into a JSON object, tolerating a
// surrounding markdown code fence.
func decodeObject(content string) (map[string]any, error) {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimPrefix(s, "json")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	if s == "" {
		return nil, fmt.Errorf("decode response: empty content")
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("decode response: %w", errNotObject)
	}
	return m, nil
}

// stringField returns the trimmed string at key, or NA and false when the
// value is absent, empty or not a string.
func stringField(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	if !ok {
		return NA, false
	}
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "null") {
		return NA, false
	}
	return s, true
}

// numberField coerces the value at key to a finite non-negative number.
// Numeric strings such as "$1,200.50" are accepted. Anything else yields 0
// and false.
func numberField(m map[string]any, key string) (float64, bool) {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		s := strings.TrimSpace(v)
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0, false
	}
	return f, true
}

// listField reads an array of strings or a comma separated string.
func listField(m map[string]any, key string) []string {
	var raw []string
	switch v := m[key].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				raw = append(raw, s)
			}
		}
	case string:
		raw = strings.Split(v, ",")
	}
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" || s == NA {
			continue
		}
		out = append(out, s)
	}
	return out
}

func joinList(items []string) string {
	return strings.Join(items, ",")
}

// yearField accepts an integral number or numeric string in [1, 9999].
func yearField(m map[string]any, key string) *int {
	var y int
	switch v := m[key].(type) {
	case float64:
		if v != math.Trunc(v) {
			return nil
		}
		y = int(v)
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil
		}
		y = n
	default:
		return nil
	}
	if y < 1 || y > 9999 {
		return nil
	}
	return &y
}

func optionalString(m map[string]any, key string) *string {
	s, ok := stringField(m, key)
	if !ok || s == NA {
		return nil
	}
	return &s
}

// truncate cuts s to at most n characters.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
