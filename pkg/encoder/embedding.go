package encoder

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

// EmbeddingEncoder learns dense word vectors with skip-gram and negative
// sampling: each token is trained to score its window neighbours above
// tokens drawn from the smoothed unigram distribution.
type EmbeddingEncoder struct {
	base
	vocab   []string
	index   map[string]int
	vectors *mat.Dense // [vocab, dim]
	norms   []float64
}

var _ Encoder[*mat.Dense] = (*EmbeddingEncoder)(nil)

// NewEmbeddingEncoder creates an empty encoder. logger may be nil.
func NewEmbeddingEncoder(logger *slog.Logger) *EmbeddingEncoder {
	return &EmbeddingEncoder{base: newBase("embedding", logger)}
}

// Learn trains embeddings over the token stream.
func (e *EmbeddingEncoder) Learn(tokens []string, opts ...Option) error {
	o := resolve(opts)
	switch {
	case o.Dimension <= 0:
		return errors.Errorf("embedding encoder: dimension must be positive, got %d", o.Dimension)
	case o.Window <= 0:
		return errors.Errorf("embedding encoder: window must be positive, got %d", o.Window)
	case o.Epochs < 0 || o.Negatives < 0:
		return errors.New("embedding encoder: epochs and negatives must not be negative")
	}

	freq := make(map[string]int)
	for _, tok := range tokens {
		freq[tok]++
	}
	var vocab []string
	for tok, n := range freq {
		if n >= o.MinCount {
			vocab = append(vocab, tok)
		}
	}
	if len(vocab) == 0 {
		return errors.Errorf("embedding encoder: no token reaches min count %d", o.MinCount)
	}
	slices.Sort(vocab)
	index := make(map[string]int, len(vocab))
	for i, tok := range vocab {
		index[tok] = i
	}

	stream := make([]int, 0, len(tokens))
	for _, tok := range tokens {
		if i, ok := index[tok]; ok {
			stream = append(stream, i)
		}
	}

	e.logger.Debug("learning embeddings", "vocab", len(vocab), "stream", len(stream),
		"dim", o.Dimension, "window", o.Window, "epochs", o.Epochs)

	rng := rand.New(rand.NewPCG(o.Seed, o.Seed))
	in := make([][]*autograd.Value, len(vocab))
	out := make([][]*autograd.Value, len(vocab))
	for i := range vocab {
		in[i] = make([]*autograd.Value, o.Dimension)
		out[i] = make([]*autograd.Value, o.Dimension)
		for j := 0; j < o.Dimension; j++ {
			in[i][j] = autograd.NewValue((rng.Float64() - 0.5) / float64(o.Dimension))
			out[i][j] = autograd.NewValue(0)
		}
	}

	table := unigramTable(vocab, freq)
	sgd := optim.NewSGD(o.LearningRate, 0)

	for epoch := 0; epoch < o.Epochs; epoch++ {
		var total float64
		for pos, center := range stream {
			var losses []*autograd.Value
			touched := slices.Clone(in[center])
			for ctx := max(0, pos-o.Window); ctx <= min(len(stream)-1, pos+o.Window); ctx++ {
				if ctx == pos {
					continue
				}
				target := stream[ctx]
				losses = append(losses, autograd.BCEWithLogits(autograd.DotProduct(in[center], out[target]), 1))
				touched = append(touched, out[target]...)
				for k := 0; k < o.Negatives; k++ {
					neg := sort.SearchFloat64s(table, rng.Float64())
					if neg >= len(vocab) {
						neg = len(vocab) - 1
					}
					if neg == target {
						continue
					}
					losses = append(losses, autograd.BCEWithLogits(autograd.DotProduct(in[center], out[neg]), 0))
					touched = append(touched, out[neg]...)
				}
			}
			if len(losses) == 0 {
				continue
			}
			loss := autograd.Sum(losses)
			loss.Backward()
			sgd.Step(touched, 1)
			total += loss.Data
		}
		e.logger.Debug("embedding epoch", "epoch", epoch+1, "loss", total)
	}

	vectors := mat.NewDense(len(vocab), o.Dimension, nil)
	norms := make([]float64, len(vocab))
	for i := range vocab {
		row := autograd.Floats(in[i])
		vectors.SetRow(i, row)
		norms[i] = floats.Norm(row, 2)
	}
	e.vocab, e.index, e.vectors, e.norms = vocab, index, vectors, norms
	return nil
}

// unigramTable returns the cumulative unigram^0.75 distribution over vocab.
func unigramTable(vocab []string, freq map[string]int) []float64 {
	weights := make([]float64, len(vocab))
	for i, tok := range vocab {
		weights[i] = math.Pow(float64(freq[tok]), 0.75)
	}
	floats.Scale(1/floats.Sum(weights), weights)
	floats.CumSum(weights, weights)
	return weights
}

// Encode returns one row per token.
func (e *EmbeddingEncoder) Encode(tokens []string) (*mat.Dense, error) {
	if e.vectors == nil {
		return nil, e.notLearned("encode")
	}
	if len(tokens) == 0 {
		return nil, errors.New("embedding encoder: no tokens")
	}
	e.logger.Debug("encoding", "tokens", len(tokens))

	_, dim := e.vectors.Dims()
	m := mat.NewDense(len(tokens), dim, nil)
	for r, tok := range tokens {
		i, ok := e.index[tok]
		if !ok {
			return nil, errors.Wrapf(ErrUnknownToken, "embedding encoder: %q", tok)
		}
		m.SetRow(r, e.vectors.RawRowView(i))
	}
	return m, nil
}

// Decode maps each row to the vocabulary token with the highest cosine
// similarity. The result is exact only for rows that came from Encode.
func (e *EmbeddingEncoder) Decode(codes *mat.Dense) ([]string, error) {
	if e.vectors == nil {
		return nil, e.notLearned("decode")
	}
	r, c := codes.Dims()
	if _, dim := e.vectors.Dims(); c != dim {
		return nil, errors.Errorf("embedding encoder: rows have %d columns, want %d", c, dim)
	}
	e.logger.Debug("decoding", "rows", r)

	tokens := make([]string, r)
	for i := 0; i < r; i++ {
		tokens[i] = e.vocab[e.nearest(mat.Row(nil, i, codes))]
	}
	return tokens, nil
}

// nearest returns the index of the vector most similar to v.
func (e *EmbeddingEncoder) nearest(v []float64) int {
	scores := e.similarities(v)
	best := 0
	for i, s := range scores {
		if s > scores[best] {
			best = i
		}
	}
	return best
}

func (e *EmbeddingEncoder) similarities(v []float64) []float64 {
	vn := floats.Norm(v, 2)
	scores := make([]float64, len(e.vocab))
	for i := range e.vocab {
		denom := vn * e.norms[i]
		if denom == 0 {
			continue
		}
		scores[i] = floats.Dot(v, e.vectors.RawRowView(i)) / denom
	}
	return scores
}

// MostSimilar returns up to k vocabulary tokens closest to token, best first.
func (e *EmbeddingEncoder) MostSimilar(token string, k int) ([]string, error) {
	if e.vectors == nil {
		return nil, e.notLearned("most similar")
	}
	if k < 0 {
		return nil, errors.Errorf("embedding encoder: negative neighbour count %d", k)
	}
	i, ok := e.index[token]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownToken, "embedding encoder: %q", token)
	}
	scores := e.similarities(e.vectors.RawRowView(i))
	order := make([]int, 0, len(e.vocab)-1)
	for j := range e.vocab {
		if j != i {
			order = append(order, j)
		}
	}
	slices.SortStableFunc(order, func(a, b int) int {
		switch {
		case scores[a] > scores[b]:
			return -1
		case scores[a] < scores[b]:
			return 1
		}
		return 0
	})
	if k < len(order) {
		order = order[:k]
	}
	out := make([]string, len(order))
	for n, j := range order {
		out[n] = e.vocab[j]
	}
	return out, nil
}

// Vocab returns the learned tokens in row order.
func (e *EmbeddingEncoder) Vocab() []string {
	return slices.Clone(e.vocab)
}
