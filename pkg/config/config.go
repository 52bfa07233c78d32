// Package config holds the JSON run configuration for the nalp command.
package config

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/joelsearcy/nalp-go/pkg/corpus"
	"github.com/joelsearcy/nalp-go/pkg/data"
	"github.com/joelsearcy/nalp-go/pkg/encoder"
	"github.com/joelsearcy/nalp-go/pkg/model"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

// Config is a complete run description.
type Config struct {
	Corpus        Corpus        `json:"corpus"`
	Encoder       Encoder       `json:"encoder"`
	Dataset       Dataset       `json:"dataset"`
	GAN           GAN           `json:"gan"`
	LanguageModel LanguageModel `json:"language_model"`
	Train         Train         `json:"train"`
}

// Corpus selects the text source and how it is tokenized.
type Corpus struct {
	Path       string   `json:"path"`
	URL        string   `json:"url,omitempty"` // fetched into Path when missing
	Kind       string   `json:"kind"`          // "char" or "word"
	Preprocess []string `json:"preprocess,omitempty"`
}

// Encoder selects and tunes the encoder variant.
type Encoder struct {
	Type         string  `json:"type"` // "integer", "count" or "embedding"
	TopTokens    int     `json:"top_tokens"`
	Dimension    int     `json:"dimension"`
	Window       int     `json:"window"`
	MinCount     int     `json:"min_count"`
	Epochs       int     `json:"epochs"`
	Negatives    int     `json:"negatives"`
	LearningRate float64 `json:"learning_rate"`
	Seed         uint64  `json:"seed"`
}

// Dataset controls batching.
type Dataset struct {
	BatchSize     int    `json:"batch_size"`
	MaxLength     int    `json:"max_length"`
	Shuffle       bool   `json:"shuffle"`
	Seed          uint64 `json:"seed"`
	DropRemainder bool   `json:"drop_remainder"`
	Normalize     bool   `json:"normalize"`
}

// GAN selects the adversarial architecture.
type GAN struct {
	Architecture string  `json:"architecture"` // "gan" or "dcgan"
	NoiseDim     int     `json:"noise_dim"`
	Output       int     `json:"output"`
	Hidden       int     `json:"hidden"`
	Kernel       int     `json:"kernel"`
	Alpha        float64 `json:"alpha"`
	Dropout      float64 `json:"dropout"`
	Seed         uint64  `json:"seed"`
}

// LanguageModel sizes the transformer and its sampling.
type LanguageModel struct {
	Embedding   int     `json:"embedding"`
	Layers      int     `json:"layers"`
	Heads       int     `json:"heads"`
	Seed        uint64  `json:"seed"`
	Temperature float64 `json:"temperature"`
	Samples     int     `json:"samples"`
}

// Train holds optimizer and loop settings shared by every trainer.
type Train struct {
	Epochs       int     `json:"epochs"`
	LearningRate float64 `json:"learning_rate"`
	Beta1        float64 `json:"beta1"`
	Beta2        float64 `json:"beta2"`
	Epsilon      float64 `json:"epsilon"`
}

// Default returns a configuration that runs as is on a names file.
func Default() Config {
	lo := encoder.DefaultLearnOptions()
	gan := model.DefaultGANConfig()
	lm := model.DefaultLanguageModelConfig(0)
	return Config{
		Corpus: Corpus{
			Path:       "input.txt",
			Kind:       corpus.Char.String(),
			Preprocess: []string{"lower"},
		},
		Encoder: Encoder{
			Type:         "integer",
			TopTokens:    lo.TopTokens,
			Dimension:    lo.Dimension,
			Window:       lo.Window,
			MinCount:     lo.MinCount,
			Epochs:       lo.Epochs,
			Negatives:    lo.Negatives,
			LearningRate: lo.LearningRate,
			Seed:         lo.Seed,
		},
		Dataset: Dataset{
			BatchSize: 32,
			MaxLength: lm.BlockSize,
			Shuffle:   true,
			Seed:      42,
			Normalize: true,
		},
		GAN: GAN{
			Architecture: "gan",
			NoiseDim:     gan.NoiseDim,
			Output:       gan.Output,
			Hidden:       gan.Hidden,
			Kernel:       model.DefaultDCGANConfig().Kernel,
			Alpha:        gan.Alpha,
			Dropout:      gan.Dropout,
			Seed:         42,
		},
		LanguageModel: LanguageModel{
			Embedding:   lm.Embedding,
			Layers:      lm.Layers,
			Heads:       lm.Heads,
			Seed:        lm.Seed,
			Temperature: 0.5,
			Samples:     10,
		},
		Train: Train{
			Epochs:       1,
			LearningRate: 0.01,
			Beta1:        0.85,
			Beta2:        0.99,
			Epsilon:      1e-8,
		},
	}
}

// Load reads path over the defaults, so a file only names what it changes.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "config")
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parse %s", path)
	}
	return cfg, cfg.Validate()
}

// Validate reports the first setting that cannot run.
func (c Config) Validate() error {
	if _, ok := corpus.ParseKind(c.Corpus.Kind); !ok {
		return errors.Errorf("config: unknown corpus kind %q", c.Corpus.Kind)
	}
	if _, err := c.Corpus.Pipeline(); err != nil {
		return err
	}
	switch c.Encoder.Type {
	case "integer", "count", "embedding":
	default:
		return errors.Errorf("config: unknown encoder type %q", c.Encoder.Type)
	}
	if c.Dataset.BatchSize <= 0 {
		return errors.Errorf("config: batch size must be positive, got %d", c.Dataset.BatchSize)
	}
	if c.Dataset.MaxLength <= 0 {
		return errors.Errorf("config: max length must be positive, got %d", c.Dataset.MaxLength)
	}
	switch c.GAN.Architecture {
	case "gan", "dcgan":
	default:
		return errors.Errorf("config: unknown gan architecture %q", c.GAN.Architecture)
	}
	if c.Train.Epochs <= 0 {
		return errors.Errorf("config: epochs must be positive, got %d", c.Train.Epochs)
	}
	if c.Train.LearningRate <= 0 {
		return errors.Errorf("config: learning rate must be positive, got %v", c.Train.LearningRate)
	}
	if c.LanguageModel.Temperature <= 0 {
		return errors.Errorf("config: temperature must be positive, got %v", c.LanguageModel.Temperature)
	}
	return nil
}

// Pipeline resolves the named preprocessing steps.
func (c Corpus) Pipeline() (corpus.Preprocess, error) {
	steps := make([]corpus.Preprocess, 0, len(c.Preprocess))
	for _, name := range c.Preprocess {
		switch name {
		case "lower":
			steps = append(steps, corpus.LowerCase)
		case "valid_chars":
			steps = append(steps, corpus.ValidChar)
		default:
			return nil, errors.Errorf("config: unknown preprocess step %q", name)
		}
	}
	return corpus.Pipeline(steps...), nil
}

// Options converts the encoder settings into learn options.
func (e Encoder) Options() []encoder.Option {
	return []encoder.Option{
		encoder.WithTopTokens(e.TopTokens),
		encoder.WithDimension(e.Dimension),
		encoder.WithWindow(e.Window),
		encoder.WithMinCount(e.MinCount),
		encoder.WithEpochs(e.Epochs),
		encoder.WithNegatives(e.Negatives),
		encoder.WithLearningRate(e.LearningRate),
		encoder.WithSeed(e.Seed),
	}
}

// Options converts the batching policy into dataset options.
func (d Dataset) Options() []data.Option {
	var opts []data.Option
	if d.Shuffle {
		opts = append(opts, data.WithShuffle(d.Seed))
	}
	if d.DropRemainder {
		opts = append(opts, data.WithDropRemainder())
	}
	return opts
}

// Build constructs the configured adversarial model.
func (g GAN) Build(opts ...model.Option) (*model.AdversarialModel, error) {
	if g.Architecture == "dcgan" {
		cfg := model.DefaultDCGANConfig()
		cfg.NoiseDim, cfg.Output, cfg.Kernel = g.NoiseDim, g.Output, g.Kernel
		cfg.Alpha, cfg.Dropout, cfg.Seed = g.Alpha, g.Dropout, g.Seed
		return model.NewDCGAN(cfg, opts...)
	}
	return model.NewGAN(model.GANConfig{
		NoiseDim: g.NoiseDim,
		Output:   g.Output,
		Hidden:   g.Hidden,
		Alpha:    g.Alpha,
		Dropout:  g.Dropout,
		Seed:     g.Seed,
	}, opts...)
}

// ModelConfig sizes a language model for vocabSize tokens with the dataset
// window as its block.
func (l LanguageModel) ModelConfig(vocabSize, blockSize int) model.LanguageModelConfig {
	return model.LanguageModelConfig{
		VocabSize: vocabSize,
		BlockSize: blockSize,
		Embedding: l.Embedding,
		Layers:    l.Layers,
		Heads:     l.Heads,
		Seed:      l.Seed,
	}
}

// Adam builds the optimizer described by the train settings.
func (t Train) Adam() *optim.AdamOptimizer {
	return optim.NewAdam(t.LearningRate, t.Beta1, t.Beta2, t.Epsilon)
}
