// Package normalize maps provider-native payloads onto canonical record
// fields and provides the safe type coercion used at merge and store time.
package normalize

import (
	"strconv"
	"strings"
	"time"
)

// placeholder values some providers emit instead of omitting a field
var placeholders = map[string]struct{}{
	"":     {},
	"n/a":  {},
	"na":   {},
	"none": {},
	"null": {},
	"-":    {},
	"--":   {},
}

// IsPlaceholder reports whether s is a known empty-value placeholder.
func IsPlaceholder(s string) bool {
	_, ok := placeholders[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ToFloat coerces a provider value to float64. Strings tolerate currency
// symbols, thousands separators, and percent suffixes.
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		s := strings.TrimSpace(n)
		if IsPlaceholder(s) {
			return 0, false
		}
		s = strings.TrimPrefix(s, "$")
		s = strings.ReplaceAll(s, ",", "")
		s = strings.TrimSuffix(s, "%")
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// CoerceFloat coerces with a default-on-failure policy; a single bad value
// never aborts record processing.
func CoerceFloat(v any, def float64) float64 {
	if f, ok := ToFloat(v); ok {
		return f
	}
	return def
}

// ToInt coerces a provider value to int64.
func ToInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	case string:
		s := strings.TrimSpace(n)
		if IsPlaceholder(s) {
			return 0, false
		}
		s = strings.ReplaceAll(s, ",", "")
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

// ToString coerces a provider value to a usable string, filtering placeholders.
func ToString(v any) (string, bool) {
	s, ok := v.(string)
	if !ok {
		return "", false
	}
	s = strings.TrimSpace(s)
	if IsPlaceholder(s) {
		return "", false
	}
	return s, true
}

// date layouts observed across provider payloads
var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"01/02/2006",
}

// ToTime coerces a provider value to a time.
func ToTime(v any) (time.Time, bool) {
	switch d := v.(type) {
	case time.Time:
		return d, !d.IsZero()
	case string:
		s := strings.TrimSpace(d)
		if IsPlaceholder(s) {
			return time.Time{}, false
		}
		for _, layout := range dateLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts, true
			}
		}
	case float64:
		// unix seconds
		if d > 0 {
			return time.Unix(int64(d), 0).UTC(), true
		}
	case int64:
		if d > 0 {
			return time.Unix(d, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
