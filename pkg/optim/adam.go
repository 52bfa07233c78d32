package optim

import (
	"math"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
)

// Optimizer updates parameters in place from their accumulated gradients.
type Optimizer interface {
	// Step applies one update and zeroes the gradients it consumed.
	// lrDecay is multiplied with the base learning rate.
	Step(params []*autograd.Value, lrDecay float64)
	// Reset clears any per-parameter state.
	Reset()
	// Clone returns an optimizer with the same hyperparameters and fresh state.
	Clone() Optimizer
}

// AdamOptimizer implements the Adam optimization algorithm
type AdamOptimizer struct {
	LR      float64 // base learning rate
	Beta1   float64 // exponential decay rate for first moment
	Beta2   float64 // exponential decay rate for second moment
	Epsilon float64 // small constant for numerical stability

	m []float64 // first moment estimates
	v []float64 // second moment estimates
	t int       // timestep counter
}

// NewAdam creates a new Adam optimizer. Moment buffers are sized on the first
// Step, so one instance must always be stepped with the same parameter list.
func NewAdam(lr, beta1, beta2, eps float64) *AdamOptimizer {
	return &AdamOptimizer{
		LR:      lr,
		Beta1:   beta1,
		Beta2:   beta2,
		Epsilon: eps,
	}
}

// DefaultAdam mirrors the usual GAN settings: lr=0.001, beta1=0.9, beta2=0.999, eps=1e-7.
func DefaultAdam() *AdamOptimizer {
	return NewAdam(0.001, 0.9, 0.999, 1e-7)
}

// Step performs one optimization step
func (opt *AdamOptimizer) Step(params []*autograd.Value, lrDecay float64) {
	if len(opt.m) != len(params) {
		opt.m = make([]float64, len(params))
		opt.v = make([]float64, len(params))
		opt.t = 0
	}

	opt.t++
	bc1 := 1 - math.Pow(opt.Beta1, float64(opt.t))
	bc2 := 1 - math.Pow(opt.Beta2, float64(opt.t))

	for i, p := range params {
		g := p.Grad

		opt.m[i] = opt.Beta1*opt.m[i] + (1-opt.Beta1)*g
		opt.v[i] = opt.Beta2*opt.v[i] + (1-opt.Beta2)*g*g

		mHat := opt.m[i] / bc1
		vHat := opt.v[i] / bc2

		p.Data -= opt.LR * lrDecay * mHat / (math.Sqrt(vHat) + opt.Epsilon)
		p.Grad = 0
	}
}

// Reset resets the optimizer state for a new training run
func (opt *AdamOptimizer) Reset() {
	opt.m = nil
	opt.v = nil
	opt.t = 0
}

// Clone implements Optimizer.
func (opt *AdamOptimizer) Clone() Optimizer {
	return NewAdam(opt.LR, opt.Beta1, opt.Beta2, opt.Epsilon)
}
