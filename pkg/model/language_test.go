package model

import (
	"iter"
	"math"
	"testing"

	"github.com/joelsearcy/nalp-go/pkg/data"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

func tinyLanguageModel(t *testing.T, vocab int) *LanguageModel {
	t.Helper()
	lm, err := NewLanguageModel(LanguageModelConfig{
		VocabSize: vocab,
		BlockSize: 4,
		Embedding: 8,
		Layers:    1,
		Heads:     2,
		Seed:      3,
	}, nil)
	if err != nil {
		t.Fatalf("NewLanguageModel: %v", err)
	}
	return lm
}

func TestLanguageModelConfigValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  LanguageModelConfig
	}{
		{"zero vocab", LanguageModelConfig{BlockSize: 4, Embedding: 8, Layers: 1, Heads: 2}},
		{"heads do not divide embedding", LanguageModelConfig{VocabSize: 3, BlockSize: 4, Embedding: 8, Layers: 1, Heads: 3}},
		{"no layers", LanguageModelConfig{VocabSize: 3, BlockSize: 4, Embedding: 8, Heads: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewLanguageModel(tt.cfg, nil); err == nil {
				t.Errorf("expected error for %+v", tt.cfg)
			}
		})
	}
}

func TestLanguageModelParamCount(t *testing.T) {
	lm := tinyLanguageModel(t, 5)
	// wte + wpe + head + one block of 4 attention and 2 mlp matrices
	want := 5*8 + 4*8 + 5*8 + 4*8*8 + 2*4*8*8
	if got := len(lm.Params()); got != want {
		t.Errorf("params: got %d, want %d", got, want)
	}
}

func TestLanguageModelLossAtInit(t *testing.T) {
	lm := tinyLanguageModel(t, 5)
	loss, err := lm.Loss([]int{0, 1, 2}, []int{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}
	// Near-uniform logits give roughly log(vocab).
	if math.Abs(loss.Data-math.Log(5)) > 0.1 {
		t.Errorf("initial loss %v far from log 5", loss.Data)
	}

	if _, err := lm.Loss([]int{0, 1}, []int{1}); err == nil {
		t.Errorf("expected error for mismatched lengths")
	}
	if _, err := lm.Loss([]int{0, 9}, []int{1, 2}); err == nil {
		t.Errorf("expected error for a token outside the vocabulary")
	}
	if _, err := lm.Loss(make([]int, 5), make([]int, 5)); err == nil {
		t.Errorf("expected error for a sequence longer than the block")
	}
}

func TestLanguageModelFitLowersLoss(t *testing.T) {
	lm := tinyLanguageModel(t, 3)
	stream := make([]int, 0, 50)
	for len(stream) < 50 {
		stream = append(stream, 0, 1, 2)
	}
	ds, err := data.NewLanguageModelingDataset(stream, 4, 4)
	if err != nil {
		t.Fatal(err)
	}

	history, err := lm.Fit(ds, 8, optim.NewAdam(0.05, 0.85, 0.99, 1e-8))
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 8 {
		t.Fatalf("expected 8 epochs, got %d", len(history))
	}
	if history[len(history)-1] >= history[0] {
		t.Errorf("loss did not fall: %v", history)
	}

	images, err := data.FromRows([][]float64{{0, 1}}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := lm.Fit(images, 1, optim.DefaultAdam()); err == nil {
		t.Errorf("expected error for batches without targets")
	}
}

// countingBatcher counts how many passes are started over its dataset.
type countingBatcher struct {
	*data.Dataset
	passes int
}

func (c *countingBatcher) Batches() iter.Seq[data.Batch] {
	c.passes++
	return c.Dataset.Batches()
}

func TestLanguageModelFitOnePassPerEpoch(t *testing.T) {
	lm := tinyLanguageModel(t, 3)
	ds, err := data.NewLanguageModelingDataset([]int{0, 1, 2, 0, 1, 2, 0, 1, 2}, 4, 2, data.WithShuffle(1))
	if err != nil {
		t.Fatal(err)
	}
	counter := &countingBatcher{Dataset: ds}
	if _, err := lm.Fit(counter, 3, optim.DefaultAdam()); err != nil {
		t.Fatal(err)
	}
	if counter.passes != 3 {
		t.Errorf("expected 3 passes for 3 epochs, got %d", counter.passes)
	}

	short, err := data.NewLanguageModelingDataset([]int{0, 1, 2, 0, 1}, 4, 8, data.WithDropRemainder())
	if err != nil {
		t.Fatal(err)
	}
	empty := &countingBatcher{Dataset: short}
	if _, err := lm.Fit(empty, 1, optim.DefaultAdam()); err == nil {
		t.Errorf("expected error for a dataset without batches")
	}
	if empty.passes != 0 {
		t.Errorf("an empty dataset should be rejected before any pass, got %d", empty.passes)
	}
}

func TestLanguageModelGenerate(t *testing.T) {
	lm := tinyLanguageModel(t, 5)
	out, err := lm.Generate([]int{1}, 10, 0.8)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 4 {
		t.Errorf("generation should stop at the block size, got %d tokens", len(out))
	}
	if out[0] != 1 {
		t.Errorf("prompt not preserved: %v", out)
	}
	for _, tok := range out {
		if tok < 0 || tok >= 5 {
			t.Errorf("token %d outside vocabulary", tok)
		}
	}

	if _, err := lm.Generate(nil, 1, 1); err == nil {
		t.Errorf("expected error for an empty prompt")
	}
	if _, err := lm.Generate([]int{0}, 1, 0); err == nil {
		t.Errorf("expected error for zero temperature")
	}
}

func TestKVCacheReset(t *testing.T) {
	lm := tinyLanguageModel(t, 5)
	cache := NewKVCache(1)
	first := lm.Forward(2, 0, cache)[0].Data
	lm.Forward(3, 1, cache)
	cache.Reset()
	if len(cache.Keys[0]) != 0 {
		t.Fatalf("Reset left %d cached keys", len(cache.Keys[0]))
	}
	if again := lm.Forward(2, 0, cache)[0].Data; again != first {
		t.Errorf("forward after reset: got %v, want %v", again, first)
	}
}
