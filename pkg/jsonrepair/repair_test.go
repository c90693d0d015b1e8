package jsonrepair

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCleanJSON(t *testing.T) {
	result, err := Parse(`{"name": "Acme", "score": 8.5}`)
	require.NoError(t, err)
	assert.Equal(t, "Acme", result["name"])
	assert.InDelta(t, 8.5, result["score"], 0.001)
}

func TestParseFencedJSON(t *testing.T) {
	raw := "Here is the analysis:\n```json\n{\"market\": \"b2b\"}\n```\nLet me know if you need more."
	result, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "b2b", result["market"])
}

func TestParseBareFences(t *testing.T) {
	result, err := Parse("```\n{\"key\": \"value\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestParsePercentTokens(t *testing.T) {
	result, err := Parse(`{"growth": 25%, "margin": 12.5%}`)
	require.NoError(t, err)
	assert.Equal(t, "25%", result["growth"])
	assert.Equal(t, "12.5%", result["margin"])
}

func TestParseTruncatedObject(t *testing.T) {
	// Response cut off by token limit
	result, err := Parse(`{"positioning": {"statement": "the leader in`)
	require.NoError(t, err)
	nested, ok := result["positioning"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "the leader in", nested["statement"])
}

func TestParseSurroundingProse(t *testing.T) {
	raw := `Sure! Based on the business description, {"audience": "founders", "tone": "direct"} — hope that helps.`
	result, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "founders", result["audience"])
}

func TestParseBareNewlinesInStrings(t *testing.T) {
	raw := "{\"pitch\": \"line one\nline two\"}"
	result, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", result["pitch"])
}

func TestParseControlCharacters(t *testing.T) {
	raw := "{\"key\": \"val\x00ue\"}"
	result, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "value", result["key"])
}

func TestParseHopelessInput(t *testing.T) {
	_, err := Parse("no json here at all")
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.Contains(t, parseErr.Raw, "no json here")
}

func TestParseErrorTruncatesRaw(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	_, err := Parse(string(long))
	require.Error(t, err)

	var parseErr *ParseError
	require.True(t, errors.As(err, &parseErr))
	assert.LessOrEqual(t, len(parseErr.Raw), rawStubLimit)
}

func TestRepairIdempotent(t *testing.T) {
	inputs := []string{
		`{"a": "b"}`,
		"```json\n{\"a\": 25%}\n```",
		`prose {"nested": {"x": 1`,
	}
	for _, in := range inputs {
		once := Repair(in)
		twice := Repair(once)
		assert.Equal(t, once, twice, "repair should be idempotent for %q", in)
	}
}

func TestExtractBraceSpanIgnoresBracesInStrings(t *testing.T) {
	s := `{"text": "uses { and } freely", "n": 1}`
	assert.Equal(t, s, ExtractBraceSpan("prefix "+s+" suffix"))
}

func TestBalanceBracesClosesString(t *testing.T) {
	out := BalanceBraces(`{"a": "unterminated`)
	assert.Equal(t, `{"a": "unterminated"}`, out)
}

func TestQuotePercentsLeavesQuotedAlone(t *testing.T) {
	s := `{"share": "25%"}`
	assert.Equal(t, s, QuotePercents(s))
}

func TestQuotePercentsIgnoresColonsInsideStrings(t *testing.T) {
	s := `{"note": "growth: 93% YoY", "share": 25%}`
	assert.Equal(t, `{"note": "growth: 93% YoY", "share": "25%"}`, QuotePercents(s))
}

func TestRepairPreservesColonPercentInStrings(t *testing.T) {
	// A repairable input (trailing prose) whose string values contain
	// colon-percent sequences must survive the percent pass intact.
	raw := "Here you go:\n" + `{"note": "growth: 93%", "share": 25%` + "\n"
	result, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "growth: 93%", result["note"])
	assert.Equal(t, "25%", result["share"])
}
