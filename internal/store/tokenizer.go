package store

import (
	"strings"
	"unicode"
)

// Tokenize splits text into lowercase terms. Words are runs of letters
// and digits; camelCase and snake_case names ("TaxReturn_2024.pdf") are
// split into their parts. Tokens shorter than minLen runes are dropped.
func Tokenize(text string, minLen int) []string {
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})

	tokens := make([]string, 0, len(words))
	for _, word := range words {
		for _, part := range SplitCompound(word) {
			lower := strings.ToLower(part)
			if len([]rune(lower)) >= minLen {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// SplitCompound splits snake_case, camelCase and letter/digit boundaries.
func SplitCompound(token string) []string {
	var result []string
	for _, part := range strings.Split(token, "_") {
		if part != "" {
			result = append(result, SplitCamelCase(part)...)
		}
	}
	return result
}

// SplitCamelCase splits camelCase and PascalCase identifiers, and
// separates digit runs from letters.
// Examples:
//   - "invoiceTotal" -> ["invoice", "Total"]
//   - "PDFInvoice" -> ["PDF", "Invoice"]
//   - "Q3report" -> ["Q", "3", "report"]
func SplitCamelCase(s string) []string {
	// Return empty slice, not nil, for consistent API behavior
	if s == "" {
		return []string{}
	}

	var result []string
	var current strings.Builder

	runes := []rune(s)
	for i, r := range runes {
		if i > 0 {
			prev := runes[i-1]
			split := false
			switch {
			case unicode.IsUpper(r):
				nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				split = unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextIsLower)
			case unicode.IsDigit(r):
				split = unicode.IsLetter(prev)
			case unicode.IsLetter(r):
				split = unicode.IsDigit(prev)
			}
			if split && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

// FilterStopWords removes stop words from a token list.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	result := make([]string, 0, len(tokens))
	for _, token := range tokens {
		if _, isStop := stopWords[strings.ToLower(token)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}

// BuildStopWordMap converts a slice of stop words to a set.
func BuildStopWordMap(stopWords []string) map[string]struct{} {
	m := make(map[string]struct{}, len(stopWords))
	for _, word := range stopWords {
		m[strings.ToLower(word)] = struct{}{}
	}
	return m
}

// analyzer applies tokenization and stop-word filtering for one config.
type analyzer struct {
	minLen    int
	stopWords map[string]struct{}
}

func newAnalyzer(cfg BM25Config) analyzer {
	minLen := cfg.MinTokenLength
	if minLen <= 0 {
		minLen = 1
	}
	return analyzer{minLen: minLen, stopWords: BuildStopWordMap(cfg.StopWords)}
}

func (a analyzer) terms(text string) []string {
	return FilterStopWords(Tokenize(text, a.minLen), a.stopWords)
}

// uniqueTerms returns terms in first-seen order without duplicates.
func uniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
