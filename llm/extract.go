package llm

import (
	"fmt"
	"regexp"
	"strings"
)

var codeBlockRegex = regexp.MustCompile("(?s)^\\s*```(?:json)?\\s*(.+?)\\s*```\\s*$")

// ExtractJSON pulls a JSON object out of freeform model output: fenced code
// blocks are unwrapped, leading/trailing prose around the outermost braces is
// dropped, trailing commas are removed, and bare newlines inside string
// literals are escaped. The result may still be invalid; callers treat a
// parse failure as a negative verdict rather than attempting more repair.
func ExtractJSON(s string) (string, error) {
	s = strings.TrimSpace(s)
	if m := codeBlockRegex.FindStringSubmatch(s); len(m) > 1 {
		s = strings.TrimSpace(m[1])
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", fmt.Errorf("no JSON object in output")
	}
	s = s[start : end+1]

	s = stripTrailingCommas(s)
	s = escapeBareNewlines(s)
	return s, nil
}

var trailingCommaRegex = regexp.MustCompile(`,\s*([}\]])`)

func stripTrailingCommas(s string) string {
	return trailingCommaRegex.ReplaceAllString(s, "$1")
}

// escapeBareNewlines replaces literal newlines that occur inside string
// literals with \n. Newlines between tokens are left alone.
func escapeBareNewlines(s string) string {
	var sb strings.Builder
	inString := false
	escaped := false
	for _, r := range s {
		if escaped {
			sb.WriteRune(r)
			escaped = false
			continue
		}
		switch r {
		case '\\':
			escaped = inString
			sb.WriteRune(r)
		case '"':
			inString = !inString
			sb.WriteRune(r)
		case '\n':
			if inString {
				sb.WriteString(`\n`)
			} else {
				sb.WriteRune(r)
			}
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
