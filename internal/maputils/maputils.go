// Package maputils provides typed accessors for the loosely typed maps
// produced by TOML, YAML and JSON decoders.
package maputils

import (
	"fmt"
	"math"
	"sort"
)

// StrVal returns the value of the key as string.
// If the key does not exist an empty string is returned.
// If they key exist but has a different type an error is returned.
func StrVal(m map[string]any, key string) (string, error) {
	val, ok := m[key]
	if !ok {
		return "", nil
	}

	str, ok := val.(string)
	if !ok {
		return "", fmt.Errorf("value of key %q has type %T, expected string", key, val)
	}

	return str, nil
}

// MustStrVal is like StrVal but returns an error if the key does not exist
// or is empty.
func MustStrVal(m map[string]any, key string) (string, error) {
	str, err := StrVal(m, key)
	if err != nil {
		return "", err
	}

	if str == "" {
		return "", fmt.Errorf("missing string field %q", key)
	}

	return str, nil
}

// StrSliceVal returns the value of the key as []string.
// If the key does not exist nil is returned.
// Decoders produce []any for arrays, their elements must be strings.
// If they key exist but has a different type an error is returned.
func StrSliceVal(m map[string]any, key string) ([]string, error) {
	val, ok := m[key]
	if !ok {
		return nil, nil
	}

	switch v := val.(type) {
	case []string:
		return v, nil

	case []any:
		result := make([]string, 0, len(v))
		for i, elem := range v {
			str, ok := elem.(string)
			if !ok {
				return nil, fmt.Errorf("element %d of key %q has type %T, expected string", i, key, elem)
			}
			result = append(result, str)
		}

		return result, nil

	default:
		return nil, fmt.Errorf("value of key %q has type %T, expected []string", key, val)
	}
}

// IntVal returns the value of the key as int.
// If the key does not exist, 0 and false are returned.
// Integer values of all sizes and floats without fraction are accepted.
func IntVal(m map[string]any, key string) (val int, exists bool, err error) {
	raw, ok := m[key]
	if !ok {
		return 0, false, nil
	}

	switch v := raw.(type) {
	case int:
		return v, true, nil
	case int64:
		return int(v), true, nil
	case uint64:
		return int(v), true, nil
	case float64:
		if v != math.Trunc(v) {
			return 0, true, fmt.Errorf("value of key %q is %v, expected an integer", key, v)
		}
		return int(v), true, nil
	default:
		return 0, true, fmt.Errorf("value of key %q has type %T, expected integer", key, raw)
	}
}

// MapSliceVal returns the value of the key as map[string]any
// If the key does not exist an empty map is returned.
// If they key exist but has a different type an error is returned.
func MapSliceVal(m map[string]any, key string) (map[string]any, error) {
	val, ok := m[key]
	if !ok {
		return map[string]any{}, nil
	}

	iMap, ok := val.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("value of key %q has type %T, expected map[string]any", key, val)
	}

	return iMap, nil
}

// UnknownKeys returns the keys of m that are not in known, sorted.
func UnknownKeys(m map[string]any, known ...string) []string {
	var result []string

	for k := range m {
		found := false
		for _, kn := range known {
			if k == kn {
				found = true
				break
			}
		}

		if !found {
			result = append(result, k)
		}
	}

	sort.Strings(result)

	return result
}
