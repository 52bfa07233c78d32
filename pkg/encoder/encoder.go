// Package encoder converts between tokens and numeric representations.
//
// Every variant follows the same lifecycle: construct empty, Learn once to
// fit internal state, then Encode and Decode as often as needed. Calling
// Encode or Decode before Learn fails with ErrNotLearned. Calling Learn
// again re-fits from scratch.
//
// The variants differ in how much Decode can recover:
//
//   - IntegerEncoder is lossless and keeps order.
//   - CountEncoder keeps only which of the top-N tokens occurred. Decode
//     returns that set in feature order; order and multiplicity are gone.
//   - EmbeddingEncoder maps tokens to dense vectors. Decode is a
//     nearest-neighbour lookup and only approximate for arbitrary vectors.
package encoder

import (
	"log/slog"

	"github.com/pkg/errors"
)

// ErrNotLearned is returned by Encode and Decode before Learn succeeded.
var ErrNotLearned = errors.New("encoder: learn must be called before encode or decode")

// ErrUnknownToken is returned when a token or code is outside the learned vocabulary.
var ErrUnknownToken = errors.New("encoder: unknown token")

// Encoder is the learn/encode/decode contract shared by all variants.
// T is the numeric representation produced by Encode.
type Encoder[T any] interface {
	Learn(tokens []string, opts ...Option) error
	Encode(tokens []string) (T, error)
	Decode(codes T) ([]string, error)
}

// LearnOptions holds every tunable a variant may read. Unused fields are ignored.
type LearnOptions struct {
	TopTokens    int     // count: vocabulary cap
	Dimension    int     // embedding: vector size
	Window       int     // embedding: context radius
	MinCount     int     // embedding: drop rarer tokens
	Epochs       int     // embedding: passes over the corpus
	Negatives    int     // embedding: negative samples per pair
	LearningRate float64 // embedding: SGD learning rate
	Seed         uint64  // embedding: initialisation and sampling
}

// DefaultLearnOptions returns the defaults applied before user options.
func DefaultLearnOptions() LearnOptions {
	return LearnOptions{
		TopTokens:    100,
		Dimension:    32,
		Window:       2,
		MinCount:     1,
		Epochs:       5,
		Negatives:    3,
		LearningRate: 0.025,
		Seed:         1,
	}
}

// Option adjusts LearnOptions.
type Option func(*LearnOptions)

// WithTopTokens caps the count vocabulary at the n most frequent tokens.
func WithTopTokens(n int) Option { return func(o *LearnOptions) { o.TopTokens = n } }

// WithDimension sets the embedding size.
func WithDimension(d int) Option { return func(o *LearnOptions) { o.Dimension = d } }

// WithWindow sets the co-occurrence radius.
func WithWindow(w int) Option { return func(o *LearnOptions) { o.Window = w } }

// WithMinCount drops tokens seen fewer than c times.
func WithMinCount(c int) Option { return func(o *LearnOptions) { o.MinCount = c } }

// WithEpochs sets the number of training passes.
func WithEpochs(e int) Option { return func(o *LearnOptions) { o.Epochs = e } }

// WithNegatives sets negative samples per positive pair.
func WithNegatives(k int) Option { return func(o *LearnOptions) { o.Negatives = k } }

// WithLearningRate sets the optimizer learning rate.
func WithLearningRate(lr float64) Option { return func(o *LearnOptions) { o.LearningRate = lr } }

// WithSeed fixes randomness.
func WithSeed(s uint64) Option { return func(o *LearnOptions) { o.Seed = s } }

func resolve(opts []Option) LearnOptions {
	o := DefaultLearnOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// base carries what every variant shares.
type base struct {
	logger *slog.Logger
	name   string
}

func newBase(name string, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	logger = logger.With("encoder", name)
	logger.Info("encoder created")
	return base{logger: logger, name: name}
}

// notLearned logs and returns the usage error for op.
func (b base) notLearned(op string) error {
	err := errors.Wrapf(ErrNotLearned, "%s %s", b.name, op)
	b.logger.Error("encoder used before learn", "op", op)
	return err
}
