package textproc

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPreprocess(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantTerms []string
	}{
		{
			name:      "keyword query",
			input:     "crash on startup",
			wantTerms: []string{"crash", "startup"},
		},
		{
			name:      "sentence with stopwords and punctuation",
			input:     "The app is crashing when I open the settings page!",
			wantTerms: []string{"app", "crash", "open", "set", "page"},
		},
		{
			name:      "plurals are stemmed",
			input:     "errors in parsers",
			wantTerms: []string{"error", "parser"},
		},
		{
			name:      "mixed case and digits",
			input:     "HTTP 500 Error",
			wantTerms: []string{"http", "500", "error"},
		},
		{
			name:      "empty input",
			input:     "",
			wantTerms: nil,
		},
		{
			name:      "all stopwords",
			input:     "the of and is",
			wantTerms: nil,
		},
		{
			name:      "punctuation only",
			input:     "!!! ??? ...",
			wantTerms: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Preprocess(tt.input)
			assert.Equal(t, tt.wantTerms, got.Terms)
			assert.Equal(t, tt.input, got.Original)
			assert.Len(t, got.Tokens, len(got.Terms))
		})
	}
}

// Tokens must be a subsequence of the lowercase tokenization with
// stopwords removed, in the original order.
func TestPreprocess_TokensSubsequence(t *testing.T) {
	input := "The Parser crashes, when LARGE files are loaded quickly."

	got := Preprocess(input)

	var reference []string
	for _, tok := range tokenize(strings.ToLower(input)) {
		if !stopwords[tok] {
			reference = append(reference, tok)
		}
	}
	assert.Equal(t, reference, got.Tokens)
}

// Feeding the normalized output back through the preprocessor must not
// change it further.
func TestPreprocess_Idempotent(t *testing.T) {
	inputs := []string{
		"crash on startup",
		"The app is crashing when I open the settings page",
		"memory leaks in the rendering pipeline",
	}

	for _, input := range inputs {
		first := Preprocess(input)
		second := Preprocess(first.QueryString())
		assert.Equal(t, first.Terms, second.Terms, "input %q", input)
	}
}

func TestQueryString(t *testing.T) {
	p := Preprocess("crash on startup")
	assert.Equal(t, "crash startup", p.QueryString())

	empty := Preprocess("")
	assert.Equal(t, "", empty.QueryString())
}
