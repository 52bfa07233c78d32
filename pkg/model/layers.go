package model

import (
	"math"
	"math/rand/v2"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
)

// Layer transforms a batch of flattened samples.
type Layer interface {
	Call(x [][]*autograd.Value, training bool) [][]*autograd.Value
	Params() []*autograd.Value
}

// Linear performs matrix-vector multiplication: W @ x
// w is [out_dim, in_dim], x is [in_dim], returns [out_dim]
func Linear(x []*autograd.Value, w *FlatMatrix) []*autograd.Value {
	out := make([]*autograd.Value, w.Rows)
	for i := 0; i < w.Rows; i++ {
		row := w.Row(i)
		out[i] = autograd.DotProduct(row, x)
	}
	return out
}

// Dense is a fully connected layer: y = W @ x + b.
type Dense struct {
	W *FlatMatrix // [out, in]
	B []*autograd.Value
}

// NewDense creates a Glorot-initialised dense layer. B is nil without bias.
func NewDense(in, out int, useBias bool, rng *rand.Rand) *Dense {
	d := &Dense{W: NewMatrix(out, in, glorotStd(in, out), rng)}
	if useBias {
		d.B = constants(out, 0)
	}
	return d
}

// Call implements Layer.
func (d *Dense) Call(x [][]*autograd.Value, _ bool) [][]*autograd.Value {
	out := make([][]*autograd.Value, len(x))
	for i, sample := range x {
		y := Linear(sample, d.W)
		if d.B != nil {
			for j := range y {
				y[j] = y[j].Add(d.B[j])
			}
		}
		out[i] = y
	}
	return out
}

// Params implements Layer.
func (d *Dense) Params() []*autograd.Value {
	params := append([]*autograd.Value(nil), d.W.Data...)
	return append(params, d.B...)
}

// activation applies fn element-wise and has no parameters.
type activation struct {
	fn func(*autograd.Value) *autograd.Value
}

func (a activation) Call(x [][]*autograd.Value, _ bool) [][]*autograd.Value {
	out := make([][]*autograd.Value, len(x))
	for i, sample := range x {
		y := make([]*autograd.Value, len(sample))
		for j, v := range sample {
			y[j] = a.fn(v)
		}
		out[i] = y
	}
	return out
}

func (activation) Params() []*autograd.Value { return nil }

// NewLeakyReLU returns a LeakyReLU activation layer.
func NewLeakyReLU(alpha float64) Layer {
	return activation{fn: func(v *autograd.Value) *autograd.Value { return v.LeakyReLU(alpha) }}
}

// NewReLU returns a ReLU activation layer.
func NewReLU() Layer { return activation{fn: (*autograd.Value).ReLU} }

// NewTanh returns a tanh activation layer.
func NewTanh() Layer { return activation{fn: (*autograd.Value).Tanh} }

// NewSigmoid returns a sigmoid activation layer.
func NewSigmoid() Layer { return activation{fn: (*autograd.Value).Sigmoid} }

// Dropout zeroes each input with probability Rate during training and
// scales survivors by 1/(1-Rate). It is the identity at inference.
type Dropout struct {
	Rate float64
	rng  *rand.Rand
}

// NewDropout creates a dropout layer drawing masks from rng.
func NewDropout(rate float64, rng *rand.Rand) *Dropout {
	return &Dropout{Rate: rate, rng: rng}
}

// Call implements Layer.
func (d *Dropout) Call(x [][]*autograd.Value, training bool) [][]*autograd.Value {
	if !training || d.Rate <= 0 {
		return x
	}
	keep := autograd.Scalar(1 / (1 - d.Rate))
	drop := autograd.Scalar(0)
	out := make([][]*autograd.Value, len(x))
	for i, sample := range x {
		y := make([]*autograd.Value, len(sample))
		for j, v := range sample {
			if d.rng.Float64() < d.Rate {
				y[j] = v.Mul(drop)
			} else {
				y[j] = v.Mul(keep)
			}
		}
		out[i] = y
	}
	return out
}

// Params implements Layer.
func (d *Dropout) Params() []*autograd.Value { return nil }

// BatchNorm normalises each channel with batch statistics while training
// and with running averages otherwise. Feature j of a sample belongs to
// channel j % Channels, so flattened HWC maps normalise per channel over
// the batch and all spatial positions.
type BatchNorm struct {
	Channels int
	Momentum float64
	Epsilon  float64

	Gamma, Beta []*autograd.Value
	RunMean     []float64
	RunVar      []float64
}

// NewBatchNorm creates a batch normalisation layer with Keras defaults.
func NewBatchNorm(channels int) *BatchNorm {
	runVar := make([]float64, channels)
	for i := range runVar {
		runVar[i] = 1
	}
	return &BatchNorm{
		Channels: channels,
		Momentum: 0.99,
		Epsilon:  1e-3,
		Gamma:    constants(channels, 1),
		Beta:     constants(channels, 0),
		RunMean:  make([]float64, channels),
		RunVar:   runVar,
	}
}

// Call implements Layer.
func (bn *BatchNorm) Call(x [][]*autograd.Value, training bool) [][]*autograd.Value {
	if len(x) == 0 {
		return x
	}
	width := len(x[0])
	out := make([][]*autograd.Value, len(x))
	for i := range out {
		out[i] = make([]*autograd.Value, width)
	}

	for c := 0; c < bn.Channels; c++ {
		var members []*autograd.Value
		for _, sample := range x {
			for j := c; j < width; j += bn.Channels {
				members = append(members, sample[j])
			}
		}
		if len(members) == 0 {
			continue
		}

		var mean, invStd *autograd.Value
		if training {
			mean = autograd.Mean(members)
			sq := make([]*autograd.Value, len(members))
			for k, v := range members {
				d := v.Sub(mean)
				sq[k] = d.Mul(d)
			}
			variance := autograd.Mean(sq)
			invStd = variance.Add(autograd.Scalar(bn.Epsilon)).Pow(-0.5)

			bn.RunMean[c] = bn.Momentum*bn.RunMean[c] + (1-bn.Momentum)*mean.Data
			bn.RunVar[c] = bn.Momentum*bn.RunVar[c] + (1-bn.Momentum)*variance.Data
		} else {
			mean = autograd.Scalar(bn.RunMean[c])
			invStd = autograd.Scalar(1 / math.Sqrt(bn.RunVar[c]+bn.Epsilon))
		}

		for i, sample := range x {
			for j := c; j < width; j += bn.Channels {
				norm := sample[j].Sub(mean).Mul(invStd)
				out[i][j] = norm.Mul(bn.Gamma[c]).Add(bn.Beta[c])
			}
		}
	}
	return out
}

// Params implements Layer.
func (bn *BatchNorm) Params() []*autograd.Value {
	params := append([]*autograd.Value(nil), bn.Gamma...)
	return append(params, bn.Beta...)
}

// RMSNorm: x / sqrt(mean(x²) + eps)
// The scale is treated as a constant in the backward pass.
func RMSNorm(x []*autograd.Value) []*autograd.Value {
	const eps = 1e-5
	var sumSq float64
	for _, v := range x {
		sumSq += v.Data * v.Data
	}
	rmsInv := autograd.Scalar(1 / math.Sqrt(sumSq/float64(len(x))+eps))

	out := make([]*autograd.Value, len(x))
	for i, v := range x {
		out[i] = v.Mul(rmsInv)
	}
	return out
}
