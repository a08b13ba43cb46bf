package analyzer

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/zombar/visumax/internal/models"
)

// ValidateCategory normalizes an untrusted category value against def.
// It never fails: anything that is not a JSON object yields a copy of def,
// and every numeric field that cannot be read keeps the default value.
func ValidateCategory(raw interface{}, def models.Category) models.Category {
	out := def.Clone()

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return out
	}

	for _, field := range models.NumericFields {
		v, present := obj[field]
		if !present {
			continue
		}
		n, ok := coerceNumber(v)
		if !ok {
			continue
		}
		out.Values[field] = clamp(n)
	}

	if list, ok := obj["analysis"].([]interface{}); ok {
		out.Analysis = stringsOf(list)
	}
	if list, ok := obj["improvement"].([]interface{}); ok {
		out.Improvement = stringsOf(list)
	}

	return out
}

// ValidateMetrics validates every category of a decoded measurements value
// against the matching default.
func ValidateMetrics(measurements interface{}) models.Metrics {
	defaults := DefaultMetrics()
	obj, _ := measurements.(map[string]interface{})

	var m models.Metrics
	for _, name := range models.CategoryNames {
		var raw interface{}
		if obj != nil {
			raw = obj[string(name)]
		}
		m.Set(name, ValidateCategory(raw, defaults.Get(name)))
	}
	return m
}

func clamp(v float64) float64 {
	return math.Min(models.MaxFieldValue, math.Max(models.MinFieldValue, v))
}

// stringsOf keeps the string elements of list, in order
func stringsOf(list []interface{}) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// coerceNumber converts a decoded JSON value to a number the way a lenient
// numeric cast would: numeric strings parse, blank strings and null are 0,
// booleans are 1 or 0, and an array converts through its only element.
func coerceNumber(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case nil:
		return 0, true
	case float64:
		return t, !math.IsNaN(t)
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	case string:
		return parseNumericString(t)
	case []interface{}:
		return coerceArray(t)
	default:
		return 0, false
	}
}

// coerceArray follows the array's string form, so [true] fails while [null]
// and [] are 0.
func coerceArray(list []interface{}) (float64, bool) {
	switch len(list) {
	case 0:
		return 0, true
	case 1:
	default:
		return 0, false
	}

	switch t := list[0].(type) {
	case nil:
		return 0, true
	case float64:
		return t, true
	case string:
		return parseNumericString(t)
	case []interface{}:
		return coerceArray(t)
	default:
		return 0, false
	}
}

func parseNumericString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, true
	}

	switch s {
	case "Infinity", "+Infinity":
		return math.Inf(1), true
	case "-Infinity":
		return math.Inf(-1), true
	}

	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			n, err := strconv.ParseUint(s[2:], base, 64)
			if err != nil {
				return 0, false
			}
			return float64(n), true
		}
	}

	// ParseFloat accepts spellings a numeric cast does not
	lower := strings.ToLower(s)
	if strings.ContainsAny(lower, "_px") || strings.Contains(lower, "inf") || strings.Contains(lower, "nan") {
		return 0, false
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0, false
	}
	return f, true
}
