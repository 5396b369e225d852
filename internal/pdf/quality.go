package pdf

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	minMeaningfulLength = 50
	minMeaningfulTokens = 5
	minPatternMatches   = 2
	minAlphaRatio       = 0.40
)

var (
	letterRunRe = regexp.MustCompile(`[A-Za-z]{3,}`)
	sentenceRe  = regexp.MustCompile(`[.!?]`)
	digitRe     = regexp.MustCompile(`[0-9]`)

	stopWords = map[string]struct{}{
		"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {},
		"you": {}, "all": {}, "with": {}, "this": {}, "that": {}, "from": {},
		"was": {}, "have": {}, "has": {}, "they": {}, "his": {}, "her": {},
		"can": {}, "will": {}, "one": {}, "its": {}, "our": {},
	}
)

// Meaningful reports whether extracted text looks like real prose rather
// than text-layer garbage. Pages failing this check are routed to OCR.
func Meaningful(text string) bool {
	text = strings.TrimSpace(text)
	if len(text) < minMeaningfulLength {
		return false
	}
	tokens := strings.Fields(text)
	if len(tokens) < minMeaningfulTokens {
		return false
	}

	matches := 0
	if letterRunRe.MatchString(text) {
		matches++
	}
	if containsStopWord(tokens) {
		matches++
	}
	if sentenceRe.MatchString(text) {
		matches++
	}
	if digitRe.MatchString(text) {
		matches++
	}
	if matches < minPatternMatches {
		return false
	}

	return alphaRatio(text) >= minAlphaRatio
}

func containsStopWord(tokens []string) bool {
	for _, tok := range tokens {
		word := strings.ToLower(strings.Trim(tok, ".,;:!?\"'()[]"))
		if _, ok := stopWords[word]; ok {
			return true
		}
	}
	return false
}

func alphaRatio(text string) float64 {
	if len(text) == 0 {
		return 0
	}
	alpha := 0
	total := 0
	for _, r := range text {
		total++
		if unicode.IsLetter(r) {
			alpha++
		}
	}
	return float64(alpha) / float64(total)
}
