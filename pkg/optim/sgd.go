package optim

import "github.com/joelsearcy/nalp-go/pkg/autograd"

// SGD is plain gradient descent with optional momentum.
type SGD struct {
	LR       float64
	Momentum float64

	velocity []float64
}

// NewSGD creates an SGD optimizer. Velocity is kept per position in the
// parameter slice and is dropped whenever the slice length changes, so with
// momentum one instance must always be stepped with the same parameter list.
func NewSGD(lr, momentum float64) *SGD {
	return &SGD{LR: lr, Momentum: momentum}
}

// Step implements Optimizer.
func (opt *SGD) Step(params []*autograd.Value, lrDecay float64) {
	if len(opt.velocity) != len(params) {
		opt.velocity = make([]float64, len(params))
	}
	for i, p := range params {
		opt.velocity[i] = opt.Momentum*opt.velocity[i] - opt.LR*lrDecay*p.Grad
		p.Data += opt.velocity[i]
		p.Grad = 0
	}
}

// Reset implements Optimizer.
func (opt *SGD) Reset() {
	opt.velocity = nil
}

// Clone implements Optimizer.
func (opt *SGD) Clone() Optimizer {
	return NewSGD(opt.LR, opt.Momentum)
}
