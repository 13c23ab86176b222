package services

import "strings"

const codeFence = "```"

// ExtractJSONObject isolates the JSON object embedded in a free-form model reply.
//
// Markdown fences (with or without a language tag) are removed first. The object
// starts at the first '{'; a string-aware brace scanner finds its matching '}', so
// a reply holding several objects yields only the first one. When the braces never
// balance (typically a truncated reply) the span up to the last '}' is returned
// instead. The boolean is false when no candidate span exists.
func ExtractJSONObject(raw string) (string, bool) {
	cleaned := stripCodeFence(raw)

	first := strings.Index(cleaned, "{")
	if first == -1 {
		return "", false
	}

	if end, ok := matchingBrace(cleaned, first); ok {
		return cleaned[first : end+1], true
	}

	last := strings.LastIndex(cleaned, "}")
	if last <= first {
		return "", false
	}
	return cleaned[first : last+1], true
}

// stripCodeFence drops an opening ``` line and everything from the closing fence on
func stripCodeFence(raw string) string {
	cleaned := strings.TrimSpace(raw)
	if !strings.HasPrefix(cleaned, codeFence) {
		return cleaned
	}

	newline := strings.Index(cleaned, "\n")
	if newline == -1 {
		// single-line fence such as ```{"a":1}```
		cleaned = strings.TrimPrefix(cleaned, codeFence)
	} else {
		cleaned = cleaned[newline+1:]
	}

	if end := strings.Index(cleaned, codeFence); end >= 0 {
		cleaned = cleaned[:end]
	}
	return strings.TrimSpace(cleaned)
}

// matchingBrace returns the index of the '}' closing the object opened at start
func matchingBrace(s string, start int) (int, bool) {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, true
			}
		}
	}
	return 0, false
}
