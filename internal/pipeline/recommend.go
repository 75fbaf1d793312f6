package pipeline

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// enumerators are the characters stripped from the front of a recommendation
// line: list numbers, dots, dashes, bullets, and closing parens.
const enumerators = "0123456789.-•*) "

// ParseRecommendations turns free-form numbered or bulleted model output into
// an ordered list of discrete recommendation strings. A line qualifies when,
// after trimming, it starts with a digit, a dash, or a bullet character. When
// nothing qualifies the trimmed original text is returned as a single item,
// so the result always has at least one element. The function is pure.
func ParseRecommendations(text string) []string {
	trimmed := strings.TrimSpace(text)
	var recommendations []string

	for _, line := range strings.Split(trimmed, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first, _ := utf8.DecodeRuneInString(line)
		if !unicode.IsDigit(first) && first != '-' && first != '•' && first != '*' {
			continue
		}
		cleaned := strings.TrimSpace(strings.TrimLeft(line, enumerators))
		if cleaned != "" {
			recommendations = append(recommendations, cleaned)
		}
	}

	if len(recommendations) == 0 {
		return []string{trimmed}
	}
	return recommendations
}
