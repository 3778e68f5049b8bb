package store

import (
	"strconv"
	"strings"
)

// Document is one loosely-typed record read from the store. The schema does
// not guarantee field types: numeric fields may arrive as numbers, strings or
// booleans depending on which client or device wrote them, and several legacy
// key spellings can coexist. All reads go through the tolerant accessors
// below instead of direct type assertions.
type Document map[string]any

// Has reports whether the document carries the given field at all.
func (d Document) Has(key string) bool {
	_, ok := d[key]
	return ok
}

// FloatAny returns the first of the candidate keys that parses as a number.
// Native numerics, booleans and numeric strings are accepted; anything else
// falls through to the next key and finally to def. It never panics and
// never returns an error.
func (d Document) FloatAny(def float64, keys ...string) float64 {
	for _, k := range keys {
		v, ok := d[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n
		case float32:
			return float64(n)
		case int:
			return float64(n)
		case int64:
			return float64(n)
		case bool:
			if n {
				return 1
			}
			return 0
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
				return f
			}
		}
	}
	return def
}

// Int64Any returns the first candidate key holding an integral value.
// Used for epoch-millisecond timestamps written by heterogeneous clients.
func (d Document) Int64Any(def int64, keys ...string) int64 {
	for _, k := range keys {
		v, ok := d[k]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case int64:
			return n
		case int:
			return int64(n)
		case float64:
			return int64(n)
		case string:
			if i, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64); err == nil {
				return i
			}
		}
	}
	return def
}

// StringAny returns the first candidate key holding a non-empty string.
func (d Document) StringAny(def string, keys ...string) string {
	for _, k := range keys {
		if s, ok := d[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return def
}

// BoolLike interprets the given field as a boolean the way the device
// firmware encodes it: true/1/"on"/"yes" style values count as true.
func (d Document) BoolLike(key string) bool {
	return BoolLikeValue(d[key])
}

// BoolLikeValue is the shared truthiness coercion for flag fields.
func BoolLikeValue(v any) bool {
	switch b := v.(type) {
	case nil:
		return false
	case bool:
		return b
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	case string:
		s := strings.ToLower(strings.TrimSpace(b))
		return s == "true" || s == "1" || s == "on" || s == "yes"
	}
	return false
}
