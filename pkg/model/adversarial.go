package model

import (
	"iter"
	"log/slog"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
	"github.com/joelsearcy/nalp-go/pkg/data"
	"github.com/joelsearcy/nalp-go/pkg/optim"
)

// ErrNotCompiled is returned by training calls made before Compile.
var ErrNotCompiled = errors.New("model: compile must be called before training")

// Loss scores a batch of logits against a single target label.
type Loss func(logits []*autograd.Value, target float64) *autograd.Value

// BinaryCrossEntropy is the mean sigmoid cross-entropy over logits.
func BinaryCrossEntropy(logits []*autograd.Value, target float64) *autograd.Value {
	terms := make([]*autograd.Value, len(logits))
	for i, l := range logits {
		terms[i] = autograd.BCEWithLogits(l, target)
	}
	return autograd.Mean(terms)
}

// Metric accumulates a statistic over discriminator judgements within an epoch.
type Metric interface {
	Name() string
	Update(real, fake []float64)
	Result() float64
	Reset()
}

// BinaryAccuracy is the fraction of real logits above zero and fake
// logits at or below zero.
type BinaryAccuracy struct {
	correct, total int
}

// Name implements Metric.
func (*BinaryAccuracy) Name() string { return "d_accuracy" }

// Update implements Metric.
func (a *BinaryAccuracy) Update(real, fake []float64) {
	for _, l := range real {
		if l > 0 {
			a.correct++
		}
	}
	for _, l := range fake {
		if l <= 0 {
			a.correct++
		}
	}
	a.total += len(real) + len(fake)
}

// Result implements Metric.
func (a *BinaryAccuracy) Result() float64 {
	if a.total == 0 {
		return 0
	}
	return float64(a.correct) / float64(a.total)
}

// Reset implements Metric.
func (a *BinaryAccuracy) Reset() { a.correct, a.total = 0, 0 }

// CompileConfig configures adversarial training. Either a shared Optimizer
// or a DOptimizer/GOptimizer pair must be set; a shared optimizer is cloned
// so the two sub-models never share optimizer state.
type CompileConfig struct {
	Optimizer  optim.Optimizer
	DOptimizer optim.Optimizer
	GOptimizer optim.Optimizer
	Loss       Loss // defaults to BinaryCrossEntropy
	Metrics    []Metric
}

// StepResult holds the losses of one training step.
type StepResult struct {
	DLoss float64
	GLoss float64
}

// EpochStats aggregates one epoch.
type EpochStats struct {
	Epoch   int
	DLoss   float64
	GLoss   float64
	Metrics map[string]float64
}

// History is the per-epoch record returned by Fit.
type History struct {
	Epochs []EpochStats
}

// Batcher yields one training pass per call to Batches. NumBatches reports
// how many batches each pass yields without running one.
type Batcher interface {
	Batches() iter.Seq[data.Batch]
	NumBatches() int
}

// AdversarialModel owns exactly one discriminator and one generator and
// trains them with alternating updates.
type AdversarialModel struct {
	name     string
	d, g     Model
	noiseDim int
	rng      *rand.Rand
	logger   *slog.Logger

	compiled   bool
	dOpt, gOpt optim.Optimizer
	loss       Loss
	metrics    []Metric
}

// Option configures an AdversarialModel.
type Option func(*AdversarialModel)

// WithLogger injects a logger; the default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(m *AdversarialModel) { m.logger = l }
}

// WithSeed fixes the noise sampler.
func WithSeed(seed uint64) Option {
	return func(m *AdversarialModel) { m.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewAdversarialModel couples d and g. The generator consumes noise vectors
// of noiseDim entries; the discriminator must emit one logit per sample.
func NewAdversarialModel(name string, d, g Model, noiseDim int, opts ...Option) (*AdversarialModel, error) {
	if d == nil || g == nil {
		return nil, errors.New("adversarial model: discriminator and generator are required")
	}
	if noiseDim <= 0 {
		return nil, errors.Errorf("adversarial model: noise dimension must be positive, got %d", noiseDim)
	}
	m := &AdversarialModel{
		name:     name,
		d:        d,
		g:        g,
		noiseDim: noiseDim,
		logger:   slog.New(slog.DiscardHandler),
	}
	WithSeed(0)(m)
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("model", name)
	m.logger.Info("adversarial model created", "discriminator", d.Name(), "generator", g.Name(), "noise_dim", noiseDim)
	return m, nil
}

// Name returns the model name.
func (m *AdversarialModel) Name() string { return m.name }

// Discriminator returns D.
func (m *AdversarialModel) Discriminator() Model { return m.d }

// Generator returns G.
func (m *AdversarialModel) Generator() Model { return m.g }

// NoiseDim returns the generator input size.
func (m *AdversarialModel) NoiseDim() int { return m.noiseDim }

// Compile stores the training configuration. It does not train.
func (m *AdversarialModel) Compile(cfg CompileConfig) error {
	dOpt, gOpt := cfg.DOptimizer, cfg.GOptimizer
	if dOpt == nil && cfg.Optimizer != nil {
		dOpt = cfg.Optimizer.Clone()
	}
	if gOpt == nil && cfg.Optimizer != nil {
		gOpt = cfg.Optimizer.Clone()
	}
	if dOpt == nil || gOpt == nil {
		return errors.New("adversarial model: compile needs an optimizer for both sub-models")
	}
	if dOpt == gOpt {
		gOpt = gOpt.Clone()
	}

	m.dOpt, m.gOpt = dOpt, gOpt
	m.loss = cfg.Loss
	if m.loss == nil {
		m.loss = BinaryCrossEntropy
	}
	m.metrics = cfg.Metrics
	m.compiled = true
	m.logger.Debug("compiled", "metrics", len(cfg.Metrics))
	return nil
}

// TrainStep runs one alternating update on a batch of real samples.
func (m *AdversarialModel) TrainStep(real [][]float64) (StepResult, error) {
	if !m.compiled {
		return StepResult{}, ErrNotCompiled
	}
	if len(real) == 0 {
		return StepResult{}, errors.New("adversarial model: empty batch")
	}

	dLoss, err := m.stepDiscriminator(real)
	if err != nil {
		return StepResult{}, err
	}
	gLoss, err := m.stepGenerator(len(real))
	if err != nil {
		return StepResult{}, err
	}
	return StepResult{DLoss: dLoss, GLoss: gLoss}, nil
}

// stepDiscriminator scores real samples against fakes from the current
// generator and updates D only. Fakes are detached so no gradient reaches G.
func (m *AdversarialModel) stepDiscriminator(real [][]float64) (float64, error) {
	fake := m.g.Call(m.noise(len(real)), true)
	if len(fake[0]) != len(real[0]) {
		return 0, errors.Errorf("adversarial model: generator emits %d features, real samples have %d", len(fake[0]), len(real[0]))
	}
	detached := make([][]*autograd.Value, len(fake))
	for i, sample := range fake {
		detached[i] = make([]*autograd.Value, len(sample))
		for j, v := range sample {
			detached[i][j] = v.Detach()
		}
	}

	realLogits, err := logits(m.d.Call(leaves(real), true))
	if err != nil {
		return 0, err
	}
	fakeLogits, err := logits(m.d.Call(detached, true))
	if err != nil {
		return 0, err
	}
	loss := m.loss(realLogits, 1).Add(m.loss(fakeLogits, 0))

	dParams := m.d.Params()
	autograd.ZeroGrads(dParams)
	loss.Backward()
	m.dOpt.Step(dParams, 1)

	realVals, fakeVals := autograd.Floats(realLogits), autograd.Floats(fakeLogits)
	for _, metric := range m.metrics {
		metric.Update(realVals, fakeVals)
	}
	return loss.Data, nil
}

// stepGenerator draws fresh noise, runs a new generator pass through the
// already updated discriminator and updates G only. The D gradients this
// pass produces are discarded.
func (m *AdversarialModel) stepGenerator(n int) (float64, error) {
	fake := m.g.Call(m.noise(n), true)
	scores, err := logits(m.d.Call(fake, true))
	if err != nil {
		return 0, err
	}
	loss := m.loss(scores, 1)

	gParams := m.g.Params()
	autograd.ZeroGrads(gParams)
	loss.Backward()
	m.gOpt.Step(gParams, 1)
	autograd.ZeroGrads(m.d.Params())
	return loss.Data, nil
}

// Fit trains for epochs passes over ds and returns per-epoch means.
func (m *AdversarialModel) Fit(ds Batcher, epochs int) (*History, error) {
	if !m.compiled {
		return nil, ErrNotCompiled
	}
	if epochs <= 0 {
		return nil, errors.Errorf("adversarial model: epochs must be positive, got %d", epochs)
	}

	history := &History{}
	for epoch := 1; epoch <= epochs; epoch++ {
		for _, metric := range m.metrics {
			metric.Reset()
		}
		var dLosses, gLosses []float64
		for batch := range ds.Batches() {
			res, err := m.TrainStep(rowsOf(batch.Inputs))
			if err != nil {
				return history, errors.Wrapf(err, "epoch %d", epoch)
			}
			dLosses = append(dLosses, res.DLoss)
			gLosses = append(gLosses, res.GLoss)
		}
		if len(dLosses) == 0 {
			return history, errors.Errorf("adversarial model: epoch %d produced no batches", epoch)
		}

		stats := EpochStats{
			Epoch:   epoch,
			DLoss:   stat.Mean(dLosses, nil),
			GLoss:   stat.Mean(gLosses, nil),
			Metrics: make(map[string]float64, len(m.metrics)),
		}
		attrs := []any{"epoch", epoch, "batches", len(dLosses), "d_loss", stats.DLoss, "g_loss", stats.GLoss}
		for _, metric := range m.metrics {
			stats.Metrics[metric.Name()] = metric.Result()
			attrs = append(attrs, metric.Name(), metric.Result())
		}
		m.logger.Info("epoch done", attrs...)
		history.Epochs = append(history.Epochs, stats)
	}
	return history, nil
}

// Sample generates n samples with the generator in inference mode.
func (m *AdversarialModel) Sample(n int) [][]float64 {
	out := m.g.Call(m.noise(n), false)
	samples := make([][]float64, len(out))
	for i, row := range out {
		samples[i] = autograd.Floats(row)
	}
	return samples
}

// noise draws n standard normal vectors.
func (m *AdversarialModel) noise(n int) [][]*autograd.Value {
	z := make([][]*autograd.Value, n)
	for i := range z {
		z[i] = make([]*autograd.Value, m.noiseDim)
		for j := range z[i] {
			z[i][j] = autograd.NewValue(m.rng.NormFloat64())
		}
	}
	return z
}

// logits takes the single output of each sample. The discriminator must end
// in one unit.
func logits(out [][]*autograd.Value) ([]*autograd.Value, error) {
	l := make([]*autograd.Value, len(out))
	for i, row := range out {
		if len(row) != 1 {
			return nil, errors.Errorf("adversarial model: discriminator emits %d outputs per sample, want 1", len(row))
		}
		l[i] = row[0]
	}
	return l, nil
}

func rowsOf(m *mat.Dense) [][]float64 {
	r, _ := m.Dims()
	out := make([][]float64, r)
	for i := range out {
		out[i] = mat.Row(nil, i, m)
	}
	return out
}
