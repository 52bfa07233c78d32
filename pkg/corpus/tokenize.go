package corpus

import (
	"regexp"
	"slices"
	"strings"
)

// Kind selects how raw text is split into tokens.
type Kind int

const (
	// Char produces one token per rune.
	Char Kind = iota
	// Word produces whitespace-separated tokens.
	Word
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case Char:
		return "char"
	case Word:
		return "word"
	default:
		return "unknown"
	}
}

// ParseKind maps "char" or "word" to a Kind.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToLower(s) {
	case "char":
		return Char, true
	case "word":
		return Word, true
	}
	return 0, false
}

// Tokenize splits text according to kind.
func Tokenize(text string, kind Kind) []string {
	if kind == Word {
		return TokenizeWord(text)
	}
	return TokenizeChar(text)
}

// TokenizeChar returns every rune of s as its own token
func TokenizeChar(s string) []string {
	tokens := make([]string, 0, len(s))
	for _, r := range s {
		tokens = append(tokens, string(r))
	}
	return tokens
}

// TokenizeWord splits s on runs of whitespace
func TokenizeWord(s string) []string {
	return strings.Fields(s)
}

// buildVocab collects the distinct tokens and sorts them for deterministic ids.
func buildVocab(tokens []string) []string {
	set := make(map[string]struct{})
	for _, tok := range tokens {
		set[tok] = struct{}{}
	}
	vocab := make([]string, 0, len(set))
	for tok := range set {
		vocab = append(vocab, tok)
	}
	slices.Sort(vocab)
	return vocab
}

// Preprocess is a single text transformation step.
type Preprocess func(string) string

// Pipeline chains steps left to right.
func Pipeline(steps ...Preprocess) Preprocess {
	return func(s string) string {
		for _, step := range steps {
			s = step(s)
		}
		return s
	}
}

// LowerCase lowers every rune.
func LowerCase(s string) string {
	return strings.ToLower(s)
}

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9 .,!?]`)

// ValidChar drops everything except ASCII letters, digits, spaces and .,!?
func ValidChar(s string) string {
	return invalidChars.ReplaceAllString(s, "")
}
