package embed

import (
	"regexp"
	"strings"
	"sync"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	urlRE     = regexp.MustCompile(`https?://\S+|www\.\S+`)
	mentionRE = regexp.MustCompile(`@\w+`)
)

// Tokenizer splits tweets into lowercase, accent-folded terms.
type Tokenizer struct {
	stop     map[string]bool
	minLen   int
	mentions bool // keep @user tokens

	// transform.Transformer chains are stateful; one per goroutine.
	pool sync.Pool
}

// NewTokenizer builds a tokenizer for lang ("en" or "fr"). Unknown
// languages get no stopwords.
func NewTokenizer(lang string) *Tokenizer {
	t := &Tokenizer{stop: stopwords(lang), minLen: 2}
	t.pool.New = func() any {
		return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	}
	return t
}

// Fold lowercases s and strips diacritics: "Élysée" becomes "elysee".
func (t *Tokenizer) Fold(s string) string {
	tr := t.pool.Get().(transform.Transformer)
	defer t.pool.Put(tr)
	out, _, err := transform.String(tr, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// Tokens returns the terms of s in order. URLs and mentions are dropped,
// hashtags keep their word, stopwords and one-letter terms are removed.
func (t *Tokenizer) Tokens(s string) []string {
	s = urlRE.ReplaceAllString(s, " ")
	if !t.mentions {
		s = mentionRE.ReplaceAllString(s, " ")
	}
	s = t.Fold(s)
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
	})
	out := words[:0]
	for _, w := range words {
		if len([]rune(w)) < t.minLen || t.stop[w] {
			continue
		}
		out = append(out, w)
	}
	return out
}
