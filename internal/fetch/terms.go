package fetch

import (
	"strings"
	"unicode"
)

// TermMatch reports how a search term is used within page text.
type TermMatch struct {
	Term      string   `json:"term"`
	Count     int      `json:"count"`
	Sentences []string `json:"sentences,omitempty"`
}

// maxMatchSentences caps the sentence excerpts kept per term.
const maxMatchSentences = 5

// FindTermMatches scans text for each term, case-insensitively, returning
// the occurrence count and up to five containing sentences per term. Terms
// with no occurrences are omitted; the result order follows the input terms.
func FindTermMatches(text string, terms []string) []TermMatch {
	if len(text) == 0 || len(terms) == 0 {
		return nil
	}

	lowerText := strings.ToLower(text)
	sentences := splitSentences(text)

	results := make([]TermMatch, 0, len(terms))
	for _, term := range terms {
		lowerTerm := strings.ToLower(term)
		if lowerTerm == "" {
			continue
		}
		count := strings.Count(lowerText, lowerTerm)
		if count == 0 {
			continue
		}

		var matched []string
		for _, s := range sentences {
			if strings.Contains(s.lower, lowerTerm) {
				matched = append(matched, s.original)
				if len(matched) == maxMatchSentences {
					break
				}
			}
		}

		results = append(results, TermMatch{
			Term:      term,
			Count:     count,
			Sentences: matched,
		})
	}
	return results
}

type sentence struct {
	original string
	lower    string
}

// splitSentences naively splits on '.', '!' and '?', keeping the delimiter
// and lowercasing each sentence once.
func splitSentences(text string) []sentence {
	estimated := len(text) / 50
	if estimated < 1 {
		estimated = 1
	}

	sentences := make([]sentence, 0, estimated)
	start := 0

	for i, r := range text {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		end := i + 1
		for end < len(text) && unicode.IsSpace(rune(text[end])) {
			end++
		}
		if s := strings.TrimSpace(text[start:end]); s != "" {
			sentences = append(sentences, sentence{original: s, lower: strings.ToLower(s)})
		}
		start = end
	}

	if start < len(text) {
		if s := strings.TrimSpace(text[start:]); s != "" {
			sentences = append(sentences, sentence{original: s, lower: strings.ToLower(s)})
		}
	}
	return sentences
}
