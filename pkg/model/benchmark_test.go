package model

import (
	"math/rand/v2"
	"testing"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

// BenchmarkLinear benchmarks the Linear layer with a 16x16 matrix
func BenchmarkLinear(b *testing.B) {
	rng := rand.New(rand.NewPCG(42, 42))
	w := NewMatrix(16, 16, 0.02, rng)
	x := make([]*autograd.Value, 16)
	for i := range x {
		x[i] = autograd.NewValue(rng.NormFloat64())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = Linear(x, w)
	}
}

// BenchmarkRMSNorm benchmarks RMSNorm on a 16-dim vector
func BenchmarkRMSNorm(b *testing.B) {
	rng := rand.New(rand.NewPCG(42, 42))
	x := make([]*autograd.Value, 16)
	for i := range x {
		x[i] = autograd.NewValue(rng.NormFloat64())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = RMSNorm(x)
	}
}

func BenchmarkConv2D(b *testing.B) {
	rng := rand.New(rand.NewPCG(42, 42))
	conv := NewConv2D(Shape{H: 8, W: 8, C: 1}, 4, 5, 2, rng)
	x := leaves([][]float64{make([]float64, 64)})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = conv.Call(x, true)
	}
}

// BenchmarkGANTrainStep runs one alternating update of a small dense GAN
func BenchmarkGANTrainStep(b *testing.B) {
	m, err := NewGAN(GANConfig{NoiseDim: 8, Output: 16, Hidden: 16, Alpha: 0.01, Dropout: 0.3, Seed: 42})
	if err != nil {
		b.Fatal(err)
	}
	if err := m.Compile(CompileConfig{Optimizer: optim.DefaultAdam()}); err != nil {
		b.Fatal(err)
	}
	rng := rand.New(rand.NewPCG(42, 42))
	real := make([][]float64, 8)
	for i := range real {
		real[i] = make([]float64, 16)
		for j := range real[i] {
			real[i][j] = rng.Float64()*2 - 1
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := m.TrainStep(real); err != nil {
			b.Fatal(err)
		}
	}
}

func benchLanguageModel(b *testing.B) *LanguageModel {
	b.Helper()
	lm, err := NewLanguageModel(DefaultLanguageModelConfig(27), nil)
	if err != nil {
		b.Fatal(err)
	}
	return lm
}

// BenchmarkLanguageModelForwardSequence benchmarks a forward pass over half a block
func BenchmarkLanguageModelForwardSequence(b *testing.B) {
	lm := benchLanguageModel(b)
	rng := rand.New(rand.NewPCG(42, 42))
	tokens := make([]int, 8)
	for i := range tokens {
		tokens[i] = rng.IntN(27)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache := NewKVCache(lm.cfg.Layers)
		for pos, tok := range tokens {
			_ = lm.Forward(tok, pos, cache)
		}
	}
}

// BenchmarkLanguageModelTrainingStep benchmarks loss, backward and an Adam step
func BenchmarkLanguageModelTrainingStep(b *testing.B) {
	lm := benchLanguageModel(b)
	rng := rand.New(rand.NewPCG(42, 42))
	tokens := make([]int, 9)
	for i := range tokens {
		tokens[i] = rng.IntN(27)
	}
	opt := optim.NewAdam(0.01, 0.85, 0.99, 1e-8)
	params := lm.Params()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		loss, err := lm.Loss(tokens[:8], tokens[1:])
		if err != nil {
			b.Fatal(err)
		}
		loss.Backward()
		opt.Step(params, 1)
	}
}

// BenchmarkAttention benchmarks multi-head attention over four cached positions
func BenchmarkAttention(b *testing.B) {
	lm := benchLanguageModel(b)
	rng := rand.New(rand.NewPCG(42, 42))
	cache := NewKVCache(lm.cfg.Layers)
	for pos := 0; pos < 4; pos++ {
		lm.Forward(rng.IntN(27), pos, cache)
	}
	q := make([]*autograd.Value, lm.cfg.Embedding)
	for i := range q {
		q[i] = autograd.NewValue(rng.NormFloat64())
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = lm.attention(q, cache.Keys[0], cache.Values[0])
	}
}
