// Package profile reads values out of a parsed CV profile. Profiles arrive in
// several historically compatible shapes, so every lookup tolerates missing
// keys and unexpected types and reports "no value" instead of failing.
package profile

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is a read-only, possibly partial profile document.
type Record struct {
	data map[string]any
}

// Decode parses a JSON profile. The top level must be an object.
func Decode(raw []byte) (*Record, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, fmt.Errorf("empty profile payload")
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("profile payload is not an object")
	}
	return &Record{data: data}, nil
}

// NewRecord wraps an already decoded document.
func NewRecord(data map[string]any) *Record {
	if data == nil {
		data = map[string]any{}
	}
	return &Record{data: data}
}

// IsEmpty reports whether the record has no keys at all.
func (r *Record) IsEmpty() bool {
	return r == nil || len(r.data) == 0
}

// Lookup walks a dotted path through nested objects. Numeric segments index
// into arrays, so "experience.0.company" reads the first entry.
func (r *Record) Lookup(path string) (any, bool) {
	if r == nil {
		return nil, false
	}
	return lookup(r.data, strings.Split(path, "."))
}

// String returns the scalar at path formatted as display text.
func (r *Record) String(path string) (string, bool) {
	v, ok := r.Lookup(path)
	if !ok {
		return "", false
	}
	return scalar(v)
}

// List returns the array at path.
func (r *Record) List(path string) []any {
	v, ok := r.Lookup(path)
	if !ok {
		return nil
	}
	list, _ := v.([]any)
	return list
}

func lookup(v any, segments []string) (any, bool) {
	for _, seg := range segments {
		switch node := v.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			v = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			v = node[i]
		default:
			return nil, false
		}
	}
	return v, v != nil
}

// scalar formats strings, numbers and booleans. Blank strings are no value.
func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		return s, s != ""
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(t), true
	}
	return "", false
}

// field reads the first of keys that holds a scalar in an object.
func field(obj map[string]any, keys ...string) (string, bool) {
	for _, k := range keys {
		if s, ok := scalar(obj[k]); ok {
			return s, true
		}
	}
	return "", false
}
