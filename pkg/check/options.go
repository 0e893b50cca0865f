package check

import (
	"fmt"
	"strconv"
	"time"
)

// The helpers below read optional keys from a factory config map. Each
// returns ok=false when the key is absent and an error when it is present
// with an unusable type. Config maps arrive from YAML, so numbers may be
// int, int64, uint64 or float64, and durations are strings.

// ConfigFloat reads a numeric key.
func ConfigFloat(config map[string]any, key string) (float64, bool, error) {
	raw, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	case uint64:
		return float64(v), true, nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, true, fmt.Errorf("'%s' must be a number, got %q", key, v)
		}
		return f, true, nil
	default:
		return 0, true, fmt.Errorf("'%s' must be a number, got %T", key, raw)
	}
}

// ConfigInt reads an integer key. Floats with a fractional part are rejected.
func ConfigInt(config map[string]any, key string) (int, bool, error) {
	f, ok, err := ConfigFloat(config, key)
	if !ok || err != nil {
		return 0, ok, err
	}
	if f != float64(int(f)) {
		return 0, true, fmt.Errorf("'%s' must be an integer, got %v", key, f)
	}
	return int(f), true, nil
}

// ConfigDuration reads a duration key such as "24h" or "90s".
func ConfigDuration(config map[string]any, key string) (time.Duration, bool, error) {
	raw, ok := config[key]
	if !ok {
		return 0, false, nil
	}
	s, ok := raw.(string)
	if !ok {
		return 0, true, fmt.Errorf("'%s' must be a duration string, got %T", key, raw)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, true, fmt.Errorf("invalid %s %q: %w", key, s, err)
	}
	return d, true, nil
}

// ConfigBool reads a boolean key.
func ConfigBool(config map[string]any, key string) (bool, bool, error) {
	raw, ok := config[key]
	if !ok {
		return false, false, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, true, fmt.Errorf("'%s' must be a boolean, got %T", key, raw)
	}
	return b, true, nil
}

// ConfigStrings reads a list of strings.
func ConfigStrings(config map[string]any, key string) ([]string, bool, error) {
	raw, ok := config[key]
	if !ok {
		return nil, false, nil
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), true, nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, true, fmt.Errorf("'%s' item %d must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, true, nil
	default:
		return nil, true, fmt.Errorf("'%s' must be a list of strings, got %T", key, raw)
	}
}
