package encoder

import (
	"log/slog"
	"slices"

	"github.com/pkg/errors"
)

// IntegerEncoder maps each token to a unique integer code.
type IntegerEncoder struct {
	base
	vocabIndex map[string]int
	indexVocab map[int]string
}

var _ Encoder[[]int] = (*IntegerEncoder)(nil)

// NewIntegerEncoder creates an empty encoder. logger may be nil.
func NewIntegerEncoder(logger *slog.Logger) *IntegerEncoder {
	return &IntegerEncoder{base: newBase("integer", logger)}
}

// Learn assigns codes to the sorted distinct tokens. Options are ignored.
func (e *IntegerEncoder) Learn(tokens []string, _ ...Option) error {
	e.logger.Debug("learning vocabulary", "tokens", len(tokens))

	vocab := slices.Clone(tokens)
	slices.Sort(vocab)
	vocab = slices.Compact(vocab)

	vocabIndex := make(map[string]int, len(vocab))
	indexVocab := make(map[int]string, len(vocab))
	for i, tok := range vocab {
		vocabIndex[tok] = i
		indexVocab[i] = tok
	}
	e.vocabIndex, e.indexVocab = vocabIndex, indexVocab
	return nil
}

// LearnVocabulary adopts pre-built lookup tables, such as a corpus'
// VocabIndex and IndexVocab. The tables must be exact inverses.
func (e *IntegerEncoder) LearnVocabulary(vocabIndex map[string]int, indexVocab map[int]string) error {
	e.logger.Debug("learning from vocabulary tables", "size", len(vocabIndex))

	if len(vocabIndex) != len(indexVocab) {
		return errors.Errorf("integer encoder: vocabulary tables differ in size (%d vs %d)", len(vocabIndex), len(indexVocab))
	}
	vi := make(map[string]int, len(vocabIndex))
	iv := make(map[int]string, len(indexVocab))
	for tok, idx := range vocabIndex {
		got, ok := indexVocab[idx]
		if !ok {
			return errors.Errorf("integer encoder: token %q maps to %d, which has no entry", tok, idx)
		}
		if got != tok {
			return errors.Errorf("integer encoder: token %q maps to %d but %d maps to %q", tok, idx, idx, got)
		}
		vi[tok] = idx
		iv[idx] = tok
	}
	e.vocabIndex, e.indexVocab = vi, iv
	return nil
}

// Encode returns the code of each token.
func (e *IntegerEncoder) Encode(tokens []string) ([]int, error) {
	if e.vocabIndex == nil {
		return nil, e.notLearned("encode")
	}
	e.logger.Debug("encoding", "tokens", len(tokens))

	codes := make([]int, len(tokens))
	for i, tok := range tokens {
		code, ok := e.vocabIndex[tok]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownToken, "integer encoder: %q", tok)
		}
		codes[i] = code
	}
	return codes, nil
}

// Decode returns the token of each code.
func (e *IntegerEncoder) Decode(codes []int) ([]string, error) {
	if e.indexVocab == nil {
		return nil, e.notLearned("decode")
	}
	e.logger.Debug("decoding", "codes", len(codes))

	tokens := make([]string, len(codes))
	for i, code := range codes {
		tok, ok := e.indexVocab[code]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownToken, "integer encoder: code %d", code)
		}
		tokens[i] = tok
	}
	return tokens, nil
}

// VocabSize returns the number of learned codes.
func (e *IntegerEncoder) VocabSize() int {
	return len(e.vocabIndex)
}
