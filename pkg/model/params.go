package model

import (
	"math"
	"math/rand/v2"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
)

// FlatMatrix stores 2D matrix as contiguous 1D slice (row-major)
type FlatMatrix struct {
	Data       []*autograd.Value
	Rows, Cols int
}

// NewMatrix creates a matrix with Gaussian-initialized values
func NewMatrix(rows, cols int, std float64, rng *rand.Rand) *FlatMatrix {
	data := make([]*autograd.Value, rows*cols)
	for i := range data {
		data[i] = autograd.NewValue(rng.NormFloat64() * std)
	}
	return &FlatMatrix{
		Data: data,
		Rows: rows,
		Cols: cols,
	}
}

// glorotStd is the Glorot normal standard deviation for the given fans.
func glorotStd(fanIn, fanOut int) float64 {
	return math.Sqrt(2 / float64(fanIn+fanOut))
}

// At returns pointer to element at (row, col)
func (m *FlatMatrix) At(row, col int) *autograd.Value {
	return m.Data[row*m.Cols+col]
}

// Row returns a slice view of row
func (m *FlatMatrix) Row(row int) []*autograd.Value {
	start := row * m.Cols
	return m.Data[start : start+m.Cols]
}

// constants returns n leaves holding v.
func constants(n int, v float64) []*autograd.Value {
	out := make([]*autograd.Value, n)
	for i := range out {
		out[i] = autograd.NewValue(v)
	}
	return out
}
