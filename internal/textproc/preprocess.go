// Package textproc normalizes free-text search input into a canonical
// term set: lowercase, tokenize, drop stopwords, stem.
package textproc

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

// Preprocessed is the result of normalizing a query string.
type Preprocessed struct {
	Original string   // input as received
	Tokens   []string // lowercase alphanumeric tokens, stopwords removed
	Terms    []string // stemmed tokens, same order as Tokens
}

// Preprocess normalizes a raw query. An input that is empty or reduces to
// nothing after stopword removal yields empty Tokens/Terms; callers treat
// that as "no match", not an error.
func Preprocess(text string) Preprocessed {
	out := Preprocessed{Original: text}

	for _, tok := range tokenize(strings.ToLower(text)) {
		if stopwords[tok] {
			continue
		}
		out.Tokens = append(out.Tokens, tok)

		stem, err := snowball.Stem(tok, "english", false)
		if err != nil || stem == "" {
			// Stemmer rejects non-English codepoints; keep the raw token.
			stem = tok
		}
		out.Terms = append(out.Terms, stem)
	}

	return out
}

// QueryString joins the terms into the string form sent to the search index.
func (p Preprocessed) QueryString() string {
	return strings.Join(p.Terms, " ")
}

// tokenize splits on any non-alphanumeric rune. Runs of letters and digits
// form one token; everything else is a boundary.
func tokenize(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
