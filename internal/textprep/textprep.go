// Package textprep converts raw text into the token lists the topic model
// consumes. It case-folds input, splits on non-alphanumeric boundaries,
// drops short tokens, stop-words and pure numbers, and optionally strips
// diacritics and common English suffixes.
package textprep

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stopWords = map[string]struct{}{
	"a": {}, "about": {}, "after": {}, "all": {}, "also": {}, "an": {},
	"and": {}, "any": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"been": {}, "but": {}, "by": {}, "can": {}, "could": {}, "do": {},
	"does": {}, "each": {}, "for": {}, "from": {}, "had": {}, "has": {},
	"have": {}, "he": {}, "her": {}, "his": {}, "how": {}, "if": {},
	"in": {}, "into": {}, "is": {}, "it": {}, "its": {}, "more": {},
	"most": {}, "no": {}, "not": {}, "of": {}, "on": {}, "one": {},
	"or": {}, "other": {}, "our": {}, "she": {}, "should": {}, "so": {},
	"some": {}, "such": {}, "than": {}, "that": {}, "the": {}, "their": {},
	"them": {}, "then": {}, "there": {}, "these": {}, "they": {}, "this": {},
	"those": {}, "through": {}, "to": {}, "under": {}, "up": {}, "was": {},
	"we": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "who": {}, "will": {}, "with": {}, "would": {}, "you": {},
}

// Options tune Tokenize.
type Options struct {
	MinLength int
	Stem      bool
	// StripAccents maps "café" to "cafe" before matching stop-words.
	StripAccents bool
	// Extra stop-words appended to the built-in English list.
	StopWords []string
}

// DefaultOptions keeps tokens of three or more letters, strips accents and
// does not stem.
func DefaultOptions() Options {
	return Options{MinLength: 3, StripAccents: true}
}

// Tokenizer holds a compiled stop-word set.
type Tokenizer struct {
	opts  Options
	stops map[string]struct{}
}

func New(opts Options) *Tokenizer {
	stops := make(map[string]struct{}, len(stopWords)+len(opts.StopWords))
	for w := range stopWords {
		stops[w] = struct{}{}
	}
	for _, w := range opts.StopWords {
		stops[cases.Fold().String(w)] = struct{}{}
	}
	return &Tokenizer{opts: opts, stops: stops}
}

// Tokenize breaks text into normalized tokens in document order.
func (t *Tokenizer) Tokenize(text string) []string {
	text = t.normalize(text)
	words := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(words)/2)
	for _, word := range words {
		if len([]rune(word)) < t.opts.MinLength {
			continue
		}
		if isNumeric(word) {
			continue
		}
		if _, stop := t.stops[word]; stop {
			continue
		}
		if t.opts.Stem {
			word = stem(word)
		}
		if word == "" {
			continue
		}
		out = append(out, word)
	}
	return out
}

// normalize case-folds text and, when configured, removes combining marks.
// Casers and transformers keep state, so each call builds its own.
func (t *Tokenizer) normalize(text string) string {
	text = cases.Fold().String(text)
	if !t.opts.StripAccents {
		return text
	}
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, text)
	if err != nil {
		return text
	}
	return out
}

func isNumeric(word string) bool {
	for _, r := range word {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

var suffixRules = []struct {
	suffix      string
	replacement string
	minLen      int
}{
	{"ational", "ate", 2},
	{"tional", "tion", 2},
	{"encies", "ence", 2},
	{"ances", "ance", 2},
	{"ments", "ment", 2},
	{"izing", "ize", 2},
	{"ating", "ate", 2},
	{"iness", "y", 2},
	{"ously", "ous", 2},
	{"ively", "ive", 2},
	{"ying", "y", 2},
	{"ies", "y", 2},
	{"ing", "", 3},
	{"ers", "er", 2},
	{"ed", "", 3},
	{"ly", "", 3},
	{"es", "", 3},
	{"ss", "ss", 2},
	{"s", "", 3},
}

// stem strips the first matching suffix when enough of the word remains.
func stem(word string) string {
	for _, rule := range suffixRules {
		if strings.HasSuffix(word, rule.suffix) {
			next := word[:len(word)-len(rule.suffix)] + rule.replacement
			if len(next) >= rule.minLen {
				return next
			}
		}
	}
	return word
}
