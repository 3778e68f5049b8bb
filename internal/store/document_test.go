package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFloatAnyCoercion(t *testing.T) {
	doc := Document{
		"num":   42.5,
		"str":   " 37 ",
		"flag":  true,
		"junk":  []string{"nope"},
		"nan":   "NaN",
		"empty": "",
	}

	assert.Equal(t, 42.5, doc.FloatAny(0, "num"))
	assert.Equal(t, 37.0, doc.FloatAny(0, "str"))
	assert.Equal(t, 1.0, doc.FloatAny(0, "flag"))
	assert.Equal(t, -1.0, doc.FloatAny(-1, "missing"))

	// An unusable value falls through to the next candidate key.
	assert.Equal(t, 42.5, doc.FloatAny(0, "junk", "num"))
	assert.Equal(t, 0.0, doc.FloatAny(0, "empty"))

	// "NaN" parses; rejecting it is the extractor's job, not the accessor's.
	assert.True(t, math.IsNaN(doc.FloatAny(0, "nan")))
}

func TestInt64Any(t *testing.T) {
	doc := Document{
		"ms":    float64(1700000000000),
		"strMs": "1700000000001",
	}

	assert.Equal(t, int64(1700000000000), doc.Int64Any(0, "ms"))
	assert.Equal(t, int64(1700000000001), doc.Int64Any(0, "missing", "strMs"))
	assert.Equal(t, int64(7), doc.Int64Any(7, "missing"))
}

func TestStringAnySkipsBlank(t *testing.T) {
	doc := Document{"a": "  ", "b": " ok "}
	assert.Equal(t, "ok", doc.StringAny("def", "a", "b"))
	assert.Equal(t, "def", doc.StringAny("def", "a"))
}

func TestBoolLikeValue(t *testing.T) {
	for _, v := range []any{true, 1, int64(2), 1.0, "true", "1", "ON", " yes "} {
		assert.True(t, BoolLikeValue(v), "%v should be truthy", v)
	}
	for _, v := range []any{nil, false, 0, 0.0, "false", "off", "maybe", []int{1}} {
		assert.False(t, BoolLikeValue(v), "%v should be falsy", v)
	}
}
