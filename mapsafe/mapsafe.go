// Package mapsafe reads typed values out of loosely typed parameter maps such
// as the ones decoded from YAML config files.
package mapsafe

import (
	"fmt"
	"strconv"
	"time"
)

// Get retrieves a typed value from a map[string]any.
// If the key is missing or the type cannot be converted, it returns the default value.
// Numbers convert between int and float64, and numeric strings are parsed.
// Durations accept Go duration strings ("1.5s") or a number of seconds.
func Get[T any](m map[string]any, key string, defaultValue T) T {
	val, ok := m[key]
	if !ok || val == nil {
		return defaultValue
	}

	switch any(defaultValue).(type) {
	case int:
		if f, ok := number(val); ok {
			return any(int(f)).(T)
		}
	case float64:
		if f, ok := number(val); ok {
			return any(f).(T)
		}
	case time.Duration:
		if d, ok := duration(val); ok {
			return any(d).(T)
		}
	case string:
		if s, ok := val.(string); ok {
			return any(s).(T)
		}
	case bool:
		switch x := val.(type) {
		case bool:
			return any(x).(T)
		case string:
			if b, err := strconv.ParseBool(x); err == nil {
				return any(b).(T)
			}
		}
	default:
		// fallback: if type matches exactly
		if v2, ok := val.(T); ok {
			return v2
		}
	}
	return defaultValue
}

// String formats the value at key for substitution into text. Missing keys
// yield "".
func String(m map[string]any, key string) string {
	switch x := m[key].(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case time.Duration:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

func number(val any) (float64, bool) {
	switch x := val.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case uint64:
		return float64(x), true
	case float64:
		return x, true
	case string:
		f, err := strconv.ParseFloat(x, 64)
		return f, err == nil
	}
	return 0, false
}

func duration(val any) (time.Duration, bool) {
	switch x := val.(type) {
	case time.Duration:
		return x, true
	case string:
		if d, err := time.ParseDuration(x); err == nil {
			return d, true
		}
	}
	if f, ok := number(val); ok {
		return time.Duration(f * float64(time.Second)), true
	}
	return 0, false
}
