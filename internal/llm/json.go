package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedBlock = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// ExtractJSON parses JSON out of an LLM response that may wrap it in prose
// or code fences. It tries, in order: direct parse, fenced-code-block
// extraction, first balanced object or array, and a light repair pass
// (trailing commas, curly quotes).
func ExtractJSON(content string, dest any) error {
	content = strings.TrimSpace(content)

	if err := json.Unmarshal([]byte(content), dest); err == nil {
		return nil
	}

	if m := fencedBlock.FindStringSubmatch(content); m != nil {
		candidate := strings.TrimSpace(m[1])
		if err := json.Unmarshal([]byte(candidate), dest); err == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(repairJSON(candidate)), dest); err == nil {
			return nil
		}
	}

	if candidate := firstBalanced(content); candidate != "" {
		if err := json.Unmarshal([]byte(candidate), dest); err == nil {
			return nil
		}
		if err := json.Unmarshal([]byte(repairJSON(candidate)), dest); err == nil {
			return nil
		}
	}

	return fmt.Errorf("no parseable JSON in response (%d chars)", len(content))
}

// firstBalanced returns the first balanced {...} or [...] region, honoring
// string literals and escapes.
func firstBalanced(s string) string {
	start := -1
	var open, close byte
	for i := 0; i < len(s); i++ {
		if s[i] == '{' {
			start, open, close = i, '{', '}'
			break
		}
		if s[i] == '[' {
			start, open, close = i, '[', ']'
			break
		}
	}
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch c {
			case '\\':
				i++
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}

var (
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	curlyQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")
)

// repairJSON applies conservative fixes: strips trailing commas and
// normalizes typographic quotes.
func repairJSON(s string) string {
	s = curlyQuotes.Replace(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}
