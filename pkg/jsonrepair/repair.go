// Package jsonrepair recovers structured data from malformed LLM output.
// Model responses frequently wrap JSON in markdown fences, leave braces
// unbalanced when truncated, embed raw control characters inside strings,
// or emit bare percentage tokens that are not valid JSON numbers. The
// repair pipeline applies a fixed sequence of passes and retries parsing
// after the full sequence.
package jsonrepair

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ParseError reports a parse failure after all repair passes were applied.
type ParseError struct {
	Err error
	Raw string // first portion of the offending input
}

const rawStubLimit = 500

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse JSON after repair: %v (input: %s)", e.Err, e.Raw)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(err error, raw string) *ParseError {
	stub := raw
	if len(stub) > rawStubLimit {
		stub = stub[:rawStubLimit]
	}
	return &ParseError{Err: err, Raw: stub}
}

// percentPattern matches bare percentage values after a colon, e.g. `"growth": 25%`.
var percentPattern = regexp.MustCompile(`:\s*(\d+(?:\.\d+)?%)`)

// Parse extracts a JSON object from raw LLM output. It first tries the
// input as-is (after fence stripping), then runs the full repair pipeline.
func Parse(raw string) (map[string]any, error) {
	candidate := StripFences(raw)

	var result map[string]any
	if err := json.Unmarshal([]byte(candidate), &result); err == nil {
		return result, nil
	}

	repaired := Repair(candidate)
	if err := json.Unmarshal([]byte(repaired), &result); err != nil {
		return nil, newParseError(err, raw)
	}
	return result, nil
}

// Repair runs the full repair pipeline over the input. The pass order is
// load-bearing: control characters must be handled before brace scanning,
// and the brace span must be extracted before balancing.
func Repair(raw string) string {
	s := StripFences(raw)
	s = StripControlChars(s)
	s = EscapeBareControls(s)
	s = QuotePercents(s)
	s = ExtractBraceSpan(s)
	s = BalanceBraces(s)
	return s
}

// StripFences removes markdown code fences (```json ... ``` or ``` ... ```)
// around the payload.
func StripFences(s string) string {
	trimmed := strings.TrimSpace(s)

	if idx := strings.Index(trimmed, "```json"); idx != -1 {
		trimmed = trimmed[idx+len("```json"):]
	} else if idx := strings.Index(trimmed, "```"); idx != -1 {
		trimmed = trimmed[idx+len("```"):]
	}

	if idx := strings.LastIndex(trimmed, "```"); idx != -1 {
		trimmed = trimmed[:idx]
	}

	return strings.TrimSpace(trimmed)
}

// StripControlChars removes control characters below 0x20 except newline,
// carriage return, and tab, which are handled by EscapeBareControls.
func StripControlChars(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// EscapeBareControls escapes literal newlines, carriage returns, and tabs
// that appear inside double-quoted strings, where JSON requires \n, \r, \t.
// Outside strings they are legal whitespace and left alone.
func EscapeBareControls(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			b.WriteRune(r)
			escaped = false
			continue
		}
		switch {
		case r == '\\' && inString:
			b.WriteRune(r)
			escaped = true
		case r == '"':
			inString = !inString
			b.WriteRune(r)
		case inString && r == '\n':
			b.WriteString(`\n`)
		case inString && r == '\r':
			b.WriteString(`\r`)
		case inString && r == '\t':
			b.WriteString(`\t`)
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// QuotePercents wraps bare percentage tokens in quotes so that
// `"share": 25%` becomes `"share": "25%"`. Only colons outside string
// literals are considered; a colon inside a value like "growth: 93%"
// is already valid JSON and must not be touched.
func QuotePercents(s string) string {
	matches := percentPattern.FindAllStringSubmatchIndex(s, -1)
	if len(matches) == 0 {
		return s
	}

	inString := stringMask(s)

	var b strings.Builder
	b.Grow(len(s) + 2*len(matches))
	last := 0
	for _, m := range matches {
		if inString[m[0]] { // the colon sits inside a string literal
			continue
		}
		tokStart, tokEnd := m[2], m[3]
		b.WriteString(s[last:tokStart])
		b.WriteByte('"')
		b.WriteString(s[tokStart:tokEnd])
		b.WriteByte('"')
		last = tokEnd
	}
	b.WriteString(s[last:])
	return b.String()
}

// stringMask reports, per byte, whether that position falls inside a
// double-quoted string literal.
func stringMask(s string) []bool {
	mask := make([]bool, len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		}
		mask[i] = inString
	}
	return mask
}

// ExtractBraceSpan returns the outermost balanced brace span of the input,
// discarding prose before the first '{' and after its matching '}'. If the
// braces never balance, everything from the first '{' onward is returned
// for BalanceBraces to close.
func ExtractBraceSpan(s string) string {
	start := strings.IndexByte(s, '{')
	if start == -1 {
		return s
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}

	return s[start:]
}

// BalanceBraces appends closing braces for any left unclosed, recovering
// objects truncated by token limits. An unterminated string is closed first.
func BalanceBraces(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case !inString && c == '{':
			depth++
		case !inString && c == '}':
			depth--
		}
	}

	if inString {
		s += `"`
	}
	if depth > 0 {
		s += strings.Repeat("}", depth)
	}
	return s
}
