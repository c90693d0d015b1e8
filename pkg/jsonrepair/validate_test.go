package jsonrepair

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValid(t *testing.T) {
	assert.True(t, Valid(map[string]any{"a": "b"}))
	assert.False(t, Valid(nil))
	assert.False(t, Valid(map[string]any{"error": "model failed"}))
	assert.False(t, Valid(map[string]any{"parsing_failed": true}))
	// parsing_failed=false is fine
	assert.True(t, Valid(map[string]any{"parsing_failed": false, "a": "b"}))
}

func TestSufficientBoundary(t *testing.T) {
	two := map[string]any{"a": "x", "b": "y"}
	assert.False(t, Sufficient(two))

	three := map[string]any{"a": "x", "b": "y", "c": "z"}
	assert.True(t, Sufficient(three))
}

func TestSufficientIgnoresBookkeeping(t *testing.T) {
	m := map[string]any{
		"a":                      "x",
		"b":                      "y",
		"adaptive_analysis_used": true,
		"fallback_reason":        "primary parse failed",
	}
	// Only two real values; bookkeeping keys don't count
	assert.False(t, Sufficient(m))
}

func TestSufficientCountsNestedLeaves(t *testing.T) {
	m := map[string]any{
		"analysis": map[string]any{
			"audience": "founders",
			"pains":    []any{"slow tools", "high costs"},
		},
	}
	assert.True(t, Sufficient(m))
}

func TestSufficientSkipsEmptyValues(t *testing.T) {
	m := map[string]any{
		"a": "",
		"b": nil,
		"c": []any{},
		"d": "real",
	}
	assert.False(t, Sufficient(m))
}

func TestSufficientCountsNumbersAndBools(t *testing.T) {
	m := map[string]any{
		"score":   8.5,
		"count":   3,
		"enabled": true,
	}
	assert.True(t, Sufficient(m))
}
