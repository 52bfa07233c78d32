// Package model composes layers from the autograd engine into named models
// and couples a discriminator with a generator for adversarial training.
package model

import (
	"github.com/joelsearcy/nalp-go/pkg/autograd"
)

// Model is a named, callable stack of layers. A batch is a slice of
// flattened samples.
type Model interface {
	Name() string
	Call(x [][]*autograd.Value, training bool) [][]*autograd.Value
	Params() []*autograd.Value
}

// Sequential runs its layers in order.
type Sequential struct {
	name   string
	layers []Layer
	params []*autograd.Value // cached flat list
}

// NewSequential creates a model from layers.
func NewSequential(name string, layers ...Layer) *Sequential {
	s := &Sequential{name: name, layers: layers}
	for _, l := range layers {
		s.params = append(s.params, l.Params()...)
	}
	return s
}

// Name implements Model.
func (s *Sequential) Name() string { return s.name }

// Call implements Model.
func (s *Sequential) Call(x [][]*autograd.Value, training bool) [][]*autograd.Value {
	for _, l := range s.layers {
		x = l.Call(x, training)
	}
	return x
}

// Params implements Model.
func (s *Sequential) Params() []*autograd.Value { return s.params }

// Layers returns the layer stack.
func (s *Sequential) Layers() []Layer { return s.layers }

// ZeroGrads resets all parameter gradients to 0
func (s *Sequential) ZeroGrads() {
	autograd.ZeroGrads(s.params)
}

// Predict runs inference on raw samples.
func Predict(m Model, x [][]float64) [][]float64 {
	out := m.Call(leaves(x), false)
	result := make([][]float64, len(out))
	for i, row := range out {
		result[i] = autograd.Floats(row)
	}
	return result
}

func leaves(x [][]float64) [][]*autograd.Value {
	out := make([][]*autograd.Value, len(x))
	for i, row := range x {
		out[i] = autograd.Values(row)
	}
	return out
}
