package pipeline

import (
	"regexp"
	"strings"
)

var listMarker = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s*`)

// parseList extracts up to want items from a numbered or bulleted list.
// Missing items are padded from defaults so downstream consumers always
// get a full set.
func parseList(text string, want int, defaults []string) []string {
	items := make([]string, 0, want)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || line == "---" {
			continue
		}
		item := strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		item = strings.Trim(item, `"`)
		if item == "" {
			continue
		}
		items = append(items, item)
		if len(items) == want {
			break
		}
	}
	for i := len(items); i < want; i++ {
		items = append(items, defaults[i%len(defaults)])
	}
	return items
}

// splitSections splits multi-part output on "---" separator lines.
func splitSections(text string) []string {
	var sections []string
	for _, part := range strings.Split(text, "\n---") {
		part = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(part), "---"))
		if part != "" {
			sections = append(sections, part)
		}
	}
	return sections
}

// parseEmail pulls Subject: and Body: out of one email section. Content
// after the Body: marker (or everything after the subject line when the
// marker is missing) becomes the body.
func parseEmail(section string) (subject, body string) {
	lines := strings.Split(section, "\n")
	bodyStart := 0
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		switch {
		case strings.HasPrefix(lower, "subject:"):
			subject = strings.TrimSpace(trimmed[len("subject:"):])
			bodyStart = i + 1
		case strings.HasPrefix(lower, "body:"):
			rest := strings.TrimSpace(trimmed[len("body:"):])
			body = strings.TrimSpace(rest + "\n" + strings.Join(lines[i+1:], "\n"))
			return subject, body
		}
	}
	body = strings.TrimSpace(strings.Join(lines[bodyStart:], "\n"))
	return subject, body
}

// toStrings converts a JSON-decoded array into strings, dropping
// non-string and empty entries.
func toStrings(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}
