package model

import (
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

// LanguageModelConfig sizes a decoder-only transformer over an integer
// encoded vocabulary.
type LanguageModelConfig struct {
	VocabSize int
	BlockSize int // longest context, matches the dataset max length
	Embedding int
	Layers    int
	Heads     int
	Seed      uint64
}

// DefaultLanguageModelConfig returns a small character-level setup.
func DefaultLanguageModelConfig(vocabSize int) LanguageModelConfig {
	return LanguageModelConfig{
		VocabSize: vocabSize,
		BlockSize: 16,
		Embedding: 16,
		Layers:    1,
		Heads:     4,
		Seed:      42,
	}
}

type transformerBlock struct {
	AttnWQ, AttnWK, AttnWV, AttnWO *FlatMatrix
	MlpFC1, MlpFC2                 *FlatMatrix
}

type transformerParams struct {
	Wte    *FlatMatrix // token embeddings [vocab_size, n_embd]
	Wpe    *FlatMatrix // position embeddings [block_size, n_embd]
	LmHead *FlatMatrix // output projection [vocab_size, n_embd]
	Blocks []transformerBlock

	all []*autograd.Value
}

func newTransformerParams(cfg LanguageModelConfig, rng *rand.Rand) *transformerParams {
	const std = 0.02
	n := cfg.Embedding
	p := &transformerParams{
		Wte:    NewMatrix(cfg.VocabSize, n, std, rng),
		Wpe:    NewMatrix(cfg.BlockSize, n, std, rng),
		LmHead: NewMatrix(cfg.VocabSize, n, std, rng),
		Blocks: make([]transformerBlock, cfg.Layers),
	}
	p.all = append(p.all, p.Wte.Data...)
	p.all = append(p.all, p.Wpe.Data...)
	p.all = append(p.all, p.LmHead.Data...)
	for i := range p.Blocks {
		b := transformerBlock{
			AttnWQ: NewMatrix(n, n, std, rng),
			AttnWK: NewMatrix(n, n, std, rng),
			AttnWV: NewMatrix(n, n, std, rng),
			AttnWO: NewMatrix(n, n, std, rng),
			MlpFC1: NewMatrix(4*n, n, std, rng), // 4x expansion
			MlpFC2: NewMatrix(n, 4*n, std, rng),
		}
		for _, m := range []*FlatMatrix{b.AttnWQ, b.AttnWK, b.AttnWV, b.AttnWO, b.MlpFC1, b.MlpFC2} {
			p.all = append(p.all, m.Data...)
		}
		p.Blocks[i] = b
	}
	return p
}

// KVCache stores key-value pairs for autoregressive decoding.
type KVCache struct {
	Keys   [][][]*autograd.Value // [layer][position][embedding]
	Values [][][]*autograd.Value
}

// NewKVCache creates an empty cache for nLayers.
func NewKVCache(nLayers int) *KVCache {
	return &KVCache{
		Keys:   make([][][]*autograd.Value, nLayers),
		Values: make([][][]*autograd.Value, nLayers),
	}
}

// Reset clears the cache for a new sequence.
func (c *KVCache) Reset() {
	for i := range c.Keys {
		c.Keys[i] = nil
		c.Values[i] = nil
	}
}

// LanguageModel predicts the next token of an encoded sequence.
type LanguageModel struct {
	cfg     LanguageModelConfig
	headDim int
	params  *transformerParams
	rng     *rand.Rand
	logger  *slog.Logger
}

// NewLanguageModel initialises a transformer from cfg. A nil logger discards.
func NewLanguageModel(cfg LanguageModelConfig, logger *slog.Logger) (*LanguageModel, error) {
	switch {
	case cfg.VocabSize <= 0, cfg.BlockSize <= 0, cfg.Embedding <= 0, cfg.Layers <= 0, cfg.Heads <= 0:
		return nil, errors.Errorf("language model: invalid config %+v", cfg)
	case cfg.Embedding%cfg.Heads != 0:
		return nil, errors.Errorf("language model: embedding %d is not divisible by %d heads", cfg.Embedding, cfg.Heads)
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed))
	lm := &LanguageModel{
		cfg:     cfg,
		headDim: cfg.Embedding / cfg.Heads,
		params:  newTransformerParams(cfg, rng),
		rng:     rng,
		logger:  logger.With("model", "language"),
	}
	lm.logger.Info("language model created", "vocab", cfg.VocabSize, "params", len(lm.params.all))
	return lm, nil
}

// Config returns the model configuration.
func (lm *LanguageModel) Config() LanguageModelConfig { return lm.cfg }

// Params returns every trainable parameter.
func (lm *LanguageModel) Params() []*autograd.Value { return lm.params.all }

// Forward runs one token at position posID and returns vocabulary logits.
// Earlier positions of the sequence must already be in cache.
func (lm *LanguageModel) Forward(tokenID, posID int, cache *KVCache) []*autograd.Value {
	tokEmb := lm.params.Wte.Row(tokenID)
	posEmb := lm.params.Wpe.Row(posID)

	x := make([]*autograd.Value, lm.cfg.Embedding)
	for i := range x {
		x[i] = tokEmb[i].Add(posEmb[i])
	}
	x = RMSNorm(x)

	for li := range lm.params.Blocks {
		block := &lm.params.Blocks[li]
		xResidual := x

		x = RMSNorm(x)
		q := Linear(x, block.AttnWQ)
		k := Linear(x, block.AttnWK)
		v := Linear(x, block.AttnWV)

		cache.Keys[li] = append(cache.Keys[li], k)
		cache.Values[li] = append(cache.Values[li], v)

		x = Linear(lm.attention(q, cache.Keys[li], cache.Values[li]), block.AttnWO)
		for i := range x {
			x[i] = x[i].Add(xResidual[i])
		}

		xResidual = x
		x = RMSNorm(x)
		x = Linear(x, block.MlpFC1)
		for i := range x {
			x[i] = x[i].ReLU()
		}
		x = Linear(x, block.MlpFC2)
		for i := range x {
			x[i] = x[i].Add(xResidual[i])
		}
	}
	return Linear(x, lm.params.LmHead)
}

// attention is causal multi-head attention of q over the cached positions.
func (lm *LanguageModel) attention(q []*autograd.Value, keys, vals [][]*autograd.Value) []*autograd.Value {
	out := make([]*autograd.Value, lm.cfg.Embedding)
	scale := autograd.Scalar(1 / math.Sqrt(float64(lm.headDim)))

	for h := 0; h < lm.cfg.Heads; h++ {
		hs := h * lm.headDim
		qH := q[hs : hs+lm.headDim]

		scores := make([]*autograd.Value, len(keys))
		for t, kt := range keys {
			scores[t] = autograd.DotProduct(qH, kt[hs:hs+lm.headDim]).Mul(scale)
		}
		weights := autograd.Softmax(scores)

		for j := 0; j < lm.headDim; j++ {
			column := make([]*autograd.Value, len(vals))
			for t, vt := range vals {
				column[t] = vt[hs+j]
			}
			out[hs+j] = autograd.DotProduct(weights, column)
		}
	}
	return out
}

// Loss is the mean next-token cross-entropy of inputs against targets.
func (lm *LanguageModel) Loss(inputs, targets []int) (*autograd.Value, error) {
	if len(inputs) == 0 || len(inputs) != len(targets) {
		return nil, errors.Errorf("language model: %d inputs for %d targets", len(inputs), len(targets))
	}
	if len(inputs) > lm.cfg.BlockSize {
		return nil, errors.Errorf("language model: sequence of %d exceeds block size %d", len(inputs), lm.cfg.BlockSize)
	}
	cache := NewKVCache(lm.cfg.Layers)
	losses := make([]*autograd.Value, len(inputs))
	for pos, tok := range inputs {
		if err := lm.checkToken(tok); err != nil {
			return nil, err
		}
		if err := lm.checkToken(targets[pos]); err != nil {
			return nil, err
		}
		losses[pos] = autograd.CrossEntropy(lm.Forward(tok, pos, cache), targets[pos])
	}
	return autograd.Mean(losses), nil
}

// Fit trains on windows from ds, whose batches must carry targets. The
// learning rate decays linearly to zero over the run. It returns the mean
// loss of each epoch.
func (lm *LanguageModel) Fit(ds Batcher, epochs int, opt optim.Optimizer) ([]float64, error) {
	if epochs <= 0 {
		return nil, errors.Errorf("language model: epochs must be positive, got %d", epochs)
	}
	if opt == nil {
		return nil, errors.New("language model: optimizer is required")
	}

	steps := ds.NumBatches()
	if steps == 0 {
		return nil, errors.New("language model: dataset yields no batches")
	}
	total := steps * epochs

	params := lm.Params()
	history := make([]float64, 0, epochs)
	step := 0
	for epoch := 1; epoch <= epochs; epoch++ {
		var losses []float64
		for batch := range ds.Batches() {
			if batch.Targets == nil {
				return history, errors.New("language model: batch has no targets")
			}
			inputs, targets := tokenRows(batch.Inputs), tokenRows(batch.Targets)
			perSample := make([]*autograd.Value, len(inputs))
			for i := range inputs {
				l, err := lm.Loss(inputs[i], targets[i])
				if err != nil {
					return history, errors.Wrapf(err, "epoch %d", epoch)
				}
				perSample[i] = l
			}
			loss := autograd.Mean(perSample)

			autograd.ZeroGrads(params)
			loss.Backward()
			opt.Step(params, 1-float64(step)/float64(total))
			step++
			losses = append(losses, loss.Data)
		}
		mean := stat.Mean(losses, nil)
		lm.logger.Info("epoch done", "epoch", epoch, "batches", len(losses), "loss", mean)
		history = append(history, mean)
	}
	return history, nil
}

// Generate extends prompt by up to n tokens sampled from the softmax of the
// logits divided by temperature. Generation stops at the block size.
func (lm *LanguageModel) Generate(prompt []int, n int, temperature float64) ([]int, error) {
	if len(prompt) == 0 {
		return nil, errors.New("language model: empty prompt")
	}
	if temperature <= 0 {
		return nil, errors.Errorf("language model: temperature must be positive, got %v", temperature)
	}
	if len(prompt) > lm.cfg.BlockSize {
		return nil, errors.Errorf("language model: prompt of %d exceeds block size %d", len(prompt), lm.cfg.BlockSize)
	}

	out := append([]int(nil), prompt...)
	cache := NewKVCache(lm.cfg.Layers)
	var logits []*autograd.Value
	for pos, tok := range prompt {
		if err := lm.checkToken(tok); err != nil {
			return nil, err
		}
		logits = lm.Forward(tok, pos, cache)
	}

	for i := 0; i < n && len(out) < lm.cfg.BlockSize; i++ {
		next := lm.sample(autograd.Floats(logits), temperature)
		out = append(out, next)
		logits = lm.Forward(next, len(out)-1, cache)
	}
	return out, nil
}

// sample draws an index from softmax(logits / temperature).
func (lm *LanguageModel) sample(logits []float64, temperature float64) int {
	floats.Scale(1/temperature, logits)
	floats.AddConst(-floats.Max(logits), logits)
	for i, l := range logits {
		logits[i] = math.Exp(l)
	}
	cdf := floats.CumSum(make([]float64, len(logits)), logits)
	u := lm.rng.Float64() * cdf[len(cdf)-1]
	return min(sort.SearchFloat64s(cdf, u), len(cdf)-1)
}

func (lm *LanguageModel) checkToken(tok int) error {
	if tok < 0 || tok >= lm.cfg.VocabSize {
		return errors.Errorf("language model: token %d outside vocabulary of %d", tok, lm.cfg.VocabSize)
	}
	return nil
}

func tokenRows(m *mat.Dense) [][]int {
	r, c := m.Dims()
	out := make([][]int, r)
	for i := range out {
		out[i] = make([]int, c)
		for j := range out[i] {
			out[i][j] = int(m.At(i, j))
		}
	}
	return out
}
