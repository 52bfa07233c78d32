package encoder

import (
	"cmp"
	"log/slog"
	"slices"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// CountEncoder turns a token sequence into a bag-of-words count vector over
// the most frequent tokens seen by Learn. Vectors always have TopTokens
// entries; slots past the learned vocabulary stay zero.
//
// Decode is lossy: it returns each present feature once, in feature order.
type CountEncoder struct {
	base
	size     int
	features []string
	index    map[string]int
}

var _ Encoder[[]float64] = (*CountEncoder)(nil)

// NewCountEncoder creates an empty encoder. logger may be nil.
func NewCountEncoder(logger *slog.Logger) *CountEncoder {
	return &CountEncoder{base: newBase("count", logger)}
}

// Learn keeps the WithTopTokens most frequent tokens. Ties are broken
// lexicographically and the kept features are ordered alphabetically.
func (e *CountEncoder) Learn(tokens []string, opts ...Option) error {
	o := resolve(opts)
	if o.TopTokens <= 0 {
		return errors.Errorf("count encoder: top tokens must be positive, got %d", o.TopTokens)
	}
	e.logger.Debug("learning counts", "tokens", len(tokens), "top_tokens", o.TopTokens)

	freq := make(map[string]int)
	for _, tok := range tokens {
		freq[tok]++
	}
	ranked := make([]string, 0, len(freq))
	for tok := range freq {
		ranked = append(ranked, tok)
	}
	slices.SortFunc(ranked, func(a, b string) int {
		if c := cmp.Compare(freq[b], freq[a]); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	if len(ranked) > o.TopTokens {
		ranked = ranked[:o.TopTokens]
	}
	slices.Sort(ranked)

	index := make(map[string]int, len(ranked))
	for i, tok := range ranked {
		index[tok] = i
	}
	e.size, e.features, e.index = o.TopTokens, ranked, index
	return nil
}

// Encode counts occurrences of each feature in tokens. Tokens outside the
// learned features are dropped.
func (e *CountEncoder) Encode(tokens []string) ([]float64, error) {
	if e.index == nil {
		return nil, e.notLearned("encode")
	}
	e.logger.Debug("encoding", "tokens", len(tokens))

	vec := make([]float64, e.size)
	for _, tok := range tokens {
		if i, ok := e.index[tok]; ok {
			vec[i]++
		}
	}
	return vec, nil
}

// Decode returns the features with a non-zero count.
func (e *CountEncoder) Decode(codes []float64) ([]string, error) {
	if e.index == nil {
		return nil, e.notLearned("decode")
	}
	if len(codes) != e.size {
		return nil, errors.Errorf("count encoder: vector has %d entries, want %d", len(codes), e.size)
	}
	e.logger.Debug("decoding", "width", len(codes))

	var tokens []string
	for i, c := range codes[:len(e.features)] {
		if c != 0 {
			tokens = append(tokens, e.features[i])
		}
	}
	return tokens, nil
}

// EncodeDocuments encodes each document as one row of a matrix.
func (e *CountEncoder) EncodeDocuments(docs [][]string) (*mat.Dense, error) {
	if e.index == nil {
		return nil, e.notLearned("encode")
	}
	if len(docs) == 0 {
		return nil, errors.New("count encoder: no documents")
	}
	m := mat.NewDense(len(docs), e.size, nil)
	for r, doc := range docs {
		vec, err := e.Encode(doc)
		if err != nil {
			return nil, err
		}
		m.SetRow(r, vec)
	}
	return m, nil
}

// DecodeDocuments decodes every row and concatenates the results.
func (e *CountEncoder) DecodeDocuments(m *mat.Dense) ([]string, error) {
	if e.index == nil {
		return nil, e.notLearned("decode")
	}
	r, _ := m.Dims()
	var tokens []string
	for i := 0; i < r; i++ {
		row, err := e.Decode(mat.Row(nil, i, m))
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, row...)
	}
	return tokens, nil
}

// Features returns the learned features in vector order.
func (e *CountEncoder) Features() []string {
	return slices.Clone(e.features)
}
