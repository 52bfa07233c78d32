// Package corpus turns raw text into an immutable token sequence with its
// vocabulary and reverse vocabulary.
package corpus

import (
	"log/slog"
	"maps"
	"slices"

	"github.com/pkg/errors"

	"github.com/joelsearcy/nalp-go/pkg/data"
)

// Corpus holds the tokens of a text source and the lookup tables derived
// from them. vocabIndex and indexVocab are exact inverses.
type Corpus struct {
	tokens     []string
	vocab      []string
	vocabIndex map[string]int
	indexVocab map[int]string
}

type options struct {
	logger     *slog.Logger
	preprocess Preprocess
}

// Option configures corpus construction.
type Option func(*options)

// WithLogger injects a logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPreprocess runs p over raw text before tokenizing.
func WithPreprocess(p Preprocess) Option {
	return func(o *options) { o.preprocess = p }
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// New builds a corpus from an in-memory token sequence.
func New(tokens []string, opts ...Option) *Corpus {
	o := buildOptions(opts)
	return build(slices.Clone(tokens), o.logger)
}

// FromText tokenizes text according to kind.
func FromText(text string, kind Kind, opts ...Option) *Corpus {
	o := buildOptions(opts)
	if o.preprocess != nil {
		text = o.preprocess(text)
	}
	return build(Tokenize(text, kind), o.logger)
}

// FromFile loads a UTF-8 text file and tokenizes it according to kind.
func FromFile(path string, kind Kind, opts ...Option) (*Corpus, error) {
	o := buildOptions(opts)
	o.logger.Debug("loading corpus", "path", path, "kind", kind)

	text, err := data.LoadText(path)
	if err != nil {
		o.logger.Error("corpus load failed", "path", path, "err", err)
		return nil, errors.Wrap(err, "corpus")
	}
	if o.preprocess != nil {
		text = o.preprocess(text)
	}
	return build(Tokenize(text, kind), o.logger), nil
}

func build(tokens []string, logger *slog.Logger) *Corpus {
	vocab := buildVocab(tokens)
	vocabIndex := make(map[string]int, len(vocab))
	indexVocab := make(map[int]string, len(vocab))
	for i, tok := range vocab {
		vocabIndex[tok] = i
		indexVocab[i] = tok
	}

	logger.Info("corpus built", "tokens", len(tokens), "vocab_size", len(vocab))

	return &Corpus{
		tokens:     tokens,
		vocab:      vocab,
		vocabIndex: vocabIndex,
		indexVocab: indexVocab,
	}
}

// Tokens returns a copy of the token sequence.
func (c *Corpus) Tokens() []string { return slices.Clone(c.tokens) }

// Vocab returns the sorted distinct tokens.
func (c *Corpus) Vocab() []string { return slices.Clone(c.vocab) }

// VocabSize is the number of distinct tokens.
func (c *Corpus) VocabSize() int { return len(c.vocab) }

// VocabIndex returns a copy of the token to index table.
func (c *Corpus) VocabIndex() map[string]int { return maps.Clone(c.vocabIndex) }

// IndexVocab returns a copy of the index to token table.
func (c *Corpus) IndexVocab() map[int]string { return maps.Clone(c.indexVocab) }
