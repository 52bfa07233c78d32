// Package data loads raw corpora and turns encoded samples into batched,
// optionally shuffled, iteration passes.
package data

import (
	"iter"
	"math/rand/v2"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Batch is one slice of a dataset. Rows are samples. Targets is nil for
// unsupervised datasets.
type Batch struct {
	Inputs  *mat.Dense
	Targets *mat.Dense
}

// Size returns the number of samples in the batch.
func (b Batch) Size() int {
	r, _ := b.Inputs.Dims()
	return r
}

// Dataset partitions a sample matrix into batches.
//
// Without WithDropRemainder the final batch may be short and a pass yields
// ceil(N/B) batches; with it a pass yields floor(N/B) full batches and the
// N mod B trailing samples of each pass are skipped.
type Dataset struct {
	inputs        *mat.Dense
	targets       *mat.Dense
	batchSize     int
	shuffle       bool
	dropRemainder bool
	rng           *rand.Rand
}

// Option configures a Dataset.
type Option func(*Dataset)

// WithShuffle re-shuffles sample order at the start of every pass.
func WithShuffle(seed uint64) Option {
	return func(d *Dataset) {
		d.shuffle = true
		d.rng = rand.New(rand.NewPCG(seed, seed))
	}
}

// WithDropRemainder drops the trailing partial batch.
func WithDropRemainder() Option {
	return func(d *Dataset) { d.dropRemainder = true }
}

// New creates a dataset over inputs, with optional row-aligned targets.
func New(inputs, targets *mat.Dense, batchSize int, opts ...Option) (*Dataset, error) {
	if inputs == nil || inputs.IsEmpty() {
		return nil, errors.New("dataset: no samples")
	}
	if batchSize <= 0 {
		return nil, errors.Errorf("dataset: batch size must be positive, got %d", batchSize)
	}
	if targets != nil {
		if tr, _ := targets.Dims(); tr != rows(inputs) {
			return nil, errors.Errorf("dataset: %d targets for %d samples", tr, rows(inputs))
		}
	}

	d := &Dataset{
		inputs:    inputs,
		targets:   targets,
		batchSize: batchSize,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// FromRows builds an unsupervised dataset from equally sized sample rows.
func FromRows(samples [][]float64, batchSize int, opts ...Option) (*Dataset, error) {
	m, err := denseFromRows(samples)
	if err != nil {
		return nil, err
	}
	return New(m, nil, batchSize, opts...)
}

// Len returns the number of samples.
func (d *Dataset) Len() int { return rows(d.inputs) }

// BatchSize returns the configured batch size.
func (d *Dataset) BatchSize() int { return d.batchSize }

// NumBatches returns how many batches one pass yields.
func (d *Dataset) NumBatches() int {
	n := d.Len()
	if d.dropRemainder {
		return n / d.batchSize
	}
	return (n + d.batchSize - 1) / d.batchSize
}

// Batches returns a lazy pass over the dataset. Each range over the returned
// sequence is a new pass.
func (d *Dataset) Batches() iter.Seq[Batch] {
	return func(yield func(Batch) bool) {
		order := d.order()
		for b := 0; b < d.NumBatches(); b++ {
			start := b * d.batchSize
			end := min(start+d.batchSize, len(order))
			idx := order[start:end]

			batch := Batch{Inputs: gather(d.inputs, idx)}
			if d.targets != nil {
				batch.Targets = gather(d.targets, idx)
			}
			if !yield(batch) {
				return
			}
		}
	}
}

func (d *Dataset) order() []int {
	n := d.Len()
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if d.shuffle {
		d.rng.Shuffle(n, func(i, j int) {
			order[i], order[j] = order[j], order[i]
		})
	}
	return order
}

// NewLanguageModelingDataset cuts an encoded token stream into
// non-overlapping windows of maxLength+1 tokens. Inputs are the first
// maxLength tokens of a window and targets the last maxLength.
func NewLanguageModelingDataset(encoded []int, maxLength, batchSize int, opts ...Option) (*Dataset, error) {
	if maxLength <= 0 {
		return nil, errors.Errorf("dataset: max length must be positive, got %d", maxLength)
	}
	n := len(encoded) / (maxLength + 1)
	if n == 0 {
		return nil, errors.Errorf("dataset: %d tokens cannot fill a window of %d", len(encoded), maxLength+1)
	}

	inputs := mat.NewDense(n, maxLength, nil)
	targets := mat.NewDense(n, maxLength, nil)
	for w := 0; w < n; w++ {
		window := encoded[w*(maxLength+1) : (w+1)*(maxLength+1)]
		for j := 0; j < maxLength; j++ {
			inputs.Set(w, j, float64(window[j]))
			targets.Set(w, j, float64(window[j+1]))
		}
	}
	return New(inputs, targets, batchSize, opts...)
}

// NewImageDataset wraps flattened images, one per row. With normalize set,
// pixel values in [0, 255] are mapped into [-1, 1].
func NewImageDataset(pixels *mat.Dense, batchSize int, normalize bool, opts ...Option) (*Dataset, error) {
	if pixels == nil || pixels.IsEmpty() {
		return nil, errors.New("dataset: no images")
	}
	images := mat.DenseCopyOf(pixels)
	if normalize {
		raw := images.RawMatrix().Data
		floats.AddConst(-127.5, raw)
		floats.Scale(1/127.5, raw)
	}
	return New(images, nil, batchSize, opts...)
}

func rows(m *mat.Dense) int {
	r, _ := m.Dims()
	return r
}

func gather(src *mat.Dense, idx []int) *mat.Dense {
	_, c := src.Dims()
	out := mat.NewDense(len(idx), c, nil)
	for i, row := range idx {
		out.SetRow(i, src.RawRowView(row))
	}
	return out
}

func denseFromRows(samples [][]float64) (*mat.Dense, error) {
	if len(samples) == 0 || len(samples[0]) == 0 {
		return nil, errors.New("dataset: no samples")
	}
	width := len(samples[0])
	backing := make([]float64, 0, len(samples)*width)
	for i, s := range samples {
		if len(s) != width {
			return nil, errors.Errorf("dataset: sample %d has %d features, want %d", i, len(s), width)
		}
		backing = append(backing, s...)
	}
	return mat.NewDense(len(samples), width, backing), nil
}
