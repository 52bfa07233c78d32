// Command nalp encodes corpora and trains the adversarial and language models.
//
// Usage:
//
//	nalp [flags] encode|dataset|train-gan|train-lm
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"runtime/pprof"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/joelsearcy/nalp-go/pkg/config"
	"github.com/joelsearcy/nalp-go/pkg/corpus"
	"github.com/joelsearcy/nalp-go/pkg/data"
	"github.com/joelsearcy/nalp-go/pkg/encoder"
	"github.com/joelsearcy/nalp-go/pkg/model"
)

type app struct {
	cfg    config.Config
	logger *slog.Logger
	images string
	show   int
}

func main() {
	var (
		configPath = flag.String("config", "", "JSON config file; defaults apply when empty")
		corpusPath = flag.String("corpus", "", "corpus file, overrides the config")
		url        = flag.String("url", "", "download the corpus from this URL when missing")
		encType    = flag.String("encoder", "", "encoder type: integer, count or embedding")
		epochs     = flag.Int("epochs", 0, "training epochs, overrides the config")
		images     = flag.String("images", "", "train-gan: CSV of flattened images, one per line")
		show       = flag.Int("show", 20, "encode: number of tokens to print")
		cpuProfile = flag.String("cpuprofile", "", "write a CPU profile to this file")
		memProfile = flag.String("memprofile", "", "write a heap profile to this file")
		verbose    = flag.Bool("v", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: nalp [flags] encode|dataset|train-gan|train-lm\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			logger.Error("loading config", "err", err)
			os.Exit(1)
		}
	}
	if *corpusPath != "" {
		cfg.Corpus.Path = *corpusPath
	}
	if *url != "" {
		cfg.Corpus.URL = *url
	}
	if *encType != "" {
		cfg.Encoder.Type = *encType
	}
	if *epochs > 0 {
		cfg.Train.Epochs = *epochs
	}
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			logger.Error("creating CPU profile", "err", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			logger.Error("starting CPU profile", "err", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	a := &app{cfg: cfg, logger: logger, images: *images, show: *show}
	var err error
	switch cmd := flag.Arg(0); cmd {
	case "encode":
		err = a.encode()
	case "dataset":
		err = a.dataset()
	case "train-gan":
		err = a.trainGAN()
	case "train-lm":
		err = a.trainLM()
	default:
		err = errors.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error(flag.Arg(0)+" failed", "err", err)
		pprof.StopCPUProfile()
		os.Exit(1)
	}

	if *memProfile != "" {
		if err := writeHeapProfile(*memProfile); err != nil {
			logger.Error("writing heap profile", "err", err)
			os.Exit(1)
		}
	}
}

func writeHeapProfile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}

// loadCorpus fetches the corpus if needed and tokenizes it.
func (a *app) loadCorpus() (*corpus.Corpus, error) {
	if a.cfg.Corpus.URL != "" {
		if err := data.DownloadIfNotExists(a.cfg.Corpus.URL, a.cfg.Corpus.Path); err != nil {
			return nil, err
		}
	}
	kind, _ := corpus.ParseKind(a.cfg.Corpus.Kind)
	pre, err := a.cfg.Corpus.Pipeline()
	if err != nil {
		return nil, err
	}
	return corpus.FromFile(a.cfg.Corpus.Path, kind, corpus.WithLogger(a.logger), corpus.WithPreprocess(pre))
}

func (a *app) encode() error {
	c, err := a.loadCorpus()
	if err != nil {
		return err
	}
	tokens := c.Tokens()
	head := tokens[:min(a.show, len(tokens))]
	opts := a.cfg.Encoder.Options()

	switch a.cfg.Encoder.Type {
	case "integer":
		enc := encoder.NewIntegerEncoder(a.logger)
		if err := enc.LearnVocabulary(c.VocabIndex(), c.IndexVocab()); err != nil {
			return err
		}
		codes, err := enc.Encode(head)
		if err != nil {
			return err
		}
		decoded, err := enc.Decode(codes)
		if err != nil {
			return err
		}
		fmt.Printf("vocab size: %d\ncodes: %v\ndecoded: %q\n", enc.VocabSize(), codes, decoded)

	case "count":
		enc := encoder.NewCountEncoder(a.logger)
		if err := enc.Learn(tokens, opts...); err != nil {
			return err
		}
		vec, err := enc.Encode(head)
		if err != nil {
			return err
		}
		present, err := enc.Decode(vec)
		if err != nil {
			return err
		}
		fmt.Printf("features: %d\ncounts: %v\npresent: %q\n", len(enc.Features()), vec, present)

	case "embedding":
		enc := encoder.NewEmbeddingEncoder(a.logger)
		if err := enc.Learn(tokens, opts...); err != nil {
			return err
		}
		vectors, err := enc.Encode(head)
		if err != nil {
			return err
		}
		decoded, err := enc.Decode(vectors)
		if err != nil {
			return err
		}
		fmt.Printf("decoded: %q\n", decoded)
		if len(head) > 0 {
			similar, err := enc.MostSimilar(head[0], 5)
			if err != nil {
				return err
			}
			fmt.Printf("most similar to %q: %q\n", head[0], similar)
		}
	}
	return nil
}

// encodedStream integer-encodes the whole corpus.
func (a *app) encodedStream() (*encoder.IntegerEncoder, []int, error) {
	c, err := a.loadCorpus()
	if err != nil {
		return nil, nil, err
	}
	enc := encoder.NewIntegerEncoder(a.logger)
	if err := enc.LearnVocabulary(c.VocabIndex(), c.IndexVocab()); err != nil {
		return nil, nil, err
	}
	codes, err := enc.Encode(c.Tokens())
	if err != nil {
		return nil, nil, err
	}
	return enc, codes, nil
}

func (a *app) dataset() error {
	_, codes, err := a.encodedStream()
	if err != nil {
		return err
	}
	dc := a.cfg.Dataset
	ds, err := data.NewLanguageModelingDataset(codes, dc.MaxLength, dc.BatchSize, dc.Options()...)
	if err != nil {
		return err
	}
	fmt.Printf("tokens: %d\nwindows: %d\nbatches: %d\n", len(codes), ds.Len(), ds.NumBatches())
	sizes := make([]int, 0, ds.NumBatches())
	for batch := range ds.Batches() {
		sizes = append(sizes, batch.Size())
	}
	fmt.Printf("batch sizes: %v\n", sizes)
	return nil
}

func (a *app) trainGAN() error {
	if a.images == "" {
		return errors.New("train-gan needs -images")
	}
	pixels, err := loadImages(a.images, a.cfg.GAN.Output)
	if err != nil {
		return err
	}
	ds, err := data.NewImageDataset(pixels, a.cfg.Dataset.BatchSize, a.cfg.Dataset.Normalize, a.cfg.Dataset.Options()...)
	if err != nil {
		return err
	}

	m, err := a.cfg.GAN.Build(model.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := m.Compile(model.CompileConfig{
		Optimizer: a.cfg.Train.Adam(),
		Metrics:   []model.Metric{&model.BinaryAccuracy{}},
	}); err != nil {
		return err
	}
	history, err := m.Fit(ds, a.cfg.Train.Epochs)
	if err != nil {
		return err
	}
	last := history.Epochs[len(history.Epochs)-1]
	fmt.Printf("d_loss %.4f | g_loss %.4f | d_accuracy %.3f\n", last.DLoss, last.GLoss, last.Metrics["d_accuracy"])
	return nil
}

func (a *app) trainLM() error {
	enc, codes, err := a.encodedStream()
	if err != nil {
		return err
	}
	dc := a.cfg.Dataset
	ds, err := data.NewLanguageModelingDataset(codes, dc.MaxLength, dc.BatchSize, dc.Options()...)
	if err != nil {
		return err
	}
	lm, err := model.NewLanguageModel(a.cfg.LanguageModel.ModelConfig(enc.VocabSize(), dc.MaxLength), a.logger)
	if err != nil {
		return err
	}
	if _, err := lm.Fit(ds, a.cfg.Train.Epochs, a.cfg.Train.Adam()); err != nil {
		return err
	}

	fmt.Println("--- samples ---")
	data.Shuffle(codes, a.cfg.LanguageModel.Seed)
	for i := 0; i < a.cfg.LanguageModel.Samples; i++ {
		out, err := lm.Generate(codes[i%len(codes):i%len(codes)+1], dc.MaxLength, a.cfg.LanguageModel.Temperature)
		if err != nil {
			return err
		}
		tokens, err := enc.Decode(out)
		if err != nil {
			return err
		}
		sep := ""
		if a.cfg.Corpus.Kind == corpus.Word.String() {
			sep = " "
		}
		fmt.Printf("sample %2d: %s\n", i+1, strings.Join(tokens, sep))
	}
	return nil
}

// loadImages reads one flattened image per line. A leading label column,
// as in the MNIST CSV dumps, is dropped when a row has width+1 values.
func loadImages(path string, width int) (*mat.Dense, error) {
	lines, err := data.LoadDoc(path)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, errors.Errorf("images: %s is empty", path)
	}
	backing := make([]float64, 0, len(lines)*width)
	for n, line := range lines {
		fields := strings.FieldsFunc(line, func(r rune) bool { return r == ',' || r == ' ' || r == '\t' })
		if len(fields) == width+1 {
			fields = fields[1:]
		}
		if len(fields) != width {
			return nil, errors.Errorf("images: line %d has %d values, want %d", n+1, len(fields), width)
		}
		for _, f := range fields {
			v, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil, errors.Wrapf(err, "images: line %d", n+1)
			}
			backing = append(backing, v)
		}
	}
	return mat.NewDense(len(lines), width, backing), nil
}
