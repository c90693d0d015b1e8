package jsonrepair

// Keys that carry bookkeeping rather than generated content. They are
// ignored when judging whether a stage produced enough usable material.
var bookkeepingKeys = map[string]bool{
	"error":                  true,
	"parsing_failed":         true,
	"adaptive_analysis_used": true,
	"fallback_reason":        true,
}

// MinSufficientValues is the minimum number of non-empty leaf values a
// stage result must contain to count as usable.
const MinSufficientValues = 3

// Valid reports whether a parsed stage result is free of failure markers.
func Valid(m map[string]any) bool {
	if m == nil {
		return false
	}
	if _, hasError := m["error"]; hasError {
		return false
	}
	if failed, ok := m["parsing_failed"].(bool); ok && failed {
		return false
	}
	return true
}

// Sufficient reports whether a parsed stage result carries enough real
// content: at least MinSufficientValues non-empty leaf values, not
// counting bookkeeping keys.
func Sufficient(m map[string]any) bool {
	return countLeafValues(m, true) >= MinSufficientValues
}

func countLeafValues(v any, topLevel bool) int {
	switch val := v.(type) {
	case map[string]any:
		count := 0
		for key, child := range val {
			if topLevel && bookkeepingKeys[key] {
				continue
			}
			count += countLeafValues(child, false)
		}
		return count
	case []any:
		count := 0
		for _, child := range val {
			count += countLeafValues(child, false)
		}
		return count
	case string:
		if val == "" {
			return 0
		}
		return 1
	case nil:
		return 0
	default:
		// Numbers and booleans count as content
		return 1
	}
}
