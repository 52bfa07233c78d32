package model

import (
	"math/rand/v2"

	"github.com/joelsearcy/nalp-go/pkg/autograd"
)

// Shape is the height, width and channel count of a flattened HWC sample.
type Shape struct {
	H, W, C int
}

// Size is the flattened length.
func (s Shape) Size() int { return s.H * s.W * s.C }

func (s Shape) index(y, x, c int) int { return (y*s.W+x)*s.C + c }

// samePad returns the leading padding for "same" convolution of a length
// in onto a length out.
func samePad(in, out, kernel, stride int) int {
	total := max((out-1)*stride+kernel-in, 0)
	return total / 2
}

// Conv2D is a strided 2D convolution with "same" padding.
type Conv2D struct {
	In      Shape
	Filters int
	Kernel  int
	Stride  int

	W *FlatMatrix // [filters, kernel*kernel*in.C]
	B []*autograd.Value
}

// NewConv2D creates a convolution over inputs of shape in.
func NewConv2D(in Shape, filters, kernel, stride int, rng *rand.Rand) *Conv2D {
	fan := kernel * kernel
	return &Conv2D{
		In:      in,
		Filters: filters,
		Kernel:  kernel,
		Stride:  stride,
		W:       NewMatrix(filters, fan*in.C, glorotStd(fan*in.C, fan*filters), rng),
		B:       constants(filters, 0),
	}
}

// Out returns the output shape: ceil(in/stride) spatially, Filters channels.
func (cv *Conv2D) Out() Shape {
	return Shape{
		H: (cv.In.H + cv.Stride - 1) / cv.Stride,
		W: (cv.In.W + cv.Stride - 1) / cv.Stride,
		C: cv.Filters,
	}
}

// Call implements Layer.
func (cv *Conv2D) Call(x [][]*autograd.Value, _ bool) [][]*autograd.Value {
	out := cv.Out()
	padY := samePad(cv.In.H, out.H, cv.Kernel, cv.Stride)
	padX := samePad(cv.In.W, out.W, cv.Kernel, cv.Stride)

	result := make([][]*autograd.Value, len(x))
	for n, sample := range x {
		y := make([]*autograd.Value, out.Size())
		for oy := 0; oy < out.H; oy++ {
			for ox := 0; ox < out.W; ox++ {
				for f := 0; f < cv.Filters; f++ {
					var inputs, weights []*autograd.Value
					for ky := 0; ky < cv.Kernel; ky++ {
						iy := oy*cv.Stride + ky - padY
						if iy < 0 || iy >= cv.In.H {
							continue
						}
						for kx := 0; kx < cv.Kernel; kx++ {
							ix := ox*cv.Stride + kx - padX
							if ix < 0 || ix >= cv.In.W {
								continue
							}
							for c := 0; c < cv.In.C; c++ {
								inputs = append(inputs, sample[cv.In.index(iy, ix, c)])
								weights = append(weights, cv.W.At(f, (ky*cv.Kernel+kx)*cv.In.C+c))
							}
						}
					}
					y[out.index(oy, ox, f)] = autograd.DotProduct(inputs, weights).Add(cv.B[f])
				}
			}
		}
		result[n] = y
	}
	return result
}

// Params implements Layer.
func (cv *Conv2D) Params() []*autograd.Value {
	params := append([]*autograd.Value(nil), cv.W.Data...)
	return append(params, cv.B...)
}

// Conv2DTranspose upsamples by Stride with "same" padding, so the output
// is in*stride spatially.
type Conv2DTranspose struct {
	In      Shape
	Filters int
	Kernel  int
	Stride  int

	W *FlatMatrix // [filters, kernel*kernel*in.C]
	B []*autograd.Value
}

// NewConv2DTranspose creates a transposed convolution over inputs of shape in.
func NewConv2DTranspose(in Shape, filters, kernel, stride int, useBias bool, rng *rand.Rand) *Conv2DTranspose {
	fan := kernel * kernel
	ct := &Conv2DTranspose{
		In:      in,
		Filters: filters,
		Kernel:  kernel,
		Stride:  stride,
		W:       NewMatrix(filters, fan*in.C, glorotStd(fan*in.C, fan*filters), rng),
	}
	if useBias {
		ct.B = constants(filters, 0)
	}
	return ct
}

// Out returns the output shape.
func (ct *Conv2DTranspose) Out() Shape {
	return Shape{H: ct.In.H * ct.Stride, W: ct.In.W * ct.Stride, C: ct.Filters}
}

// Call implements Layer. Output (oy, ox) gathers every input (iy, ix)
// whose kernel footprint covers it: k = o + pad - i*stride in [0, kernel).
func (ct *Conv2DTranspose) Call(x [][]*autograd.Value, _ bool) [][]*autograd.Value {
	out := ct.Out()
	padY := samePad(out.H, ct.In.H, ct.Kernel, ct.Stride)
	padX := samePad(out.W, ct.In.W, ct.Kernel, ct.Stride)

	result := make([][]*autograd.Value, len(x))
	for n, sample := range x {
		y := make([]*autograd.Value, out.Size())
		for oy := 0; oy < out.H; oy++ {
			for ox := 0; ox < out.W; ox++ {
				for f := 0; f < ct.Filters; f++ {
					var inputs, weights []*autograd.Value
					for iy := 0; iy < ct.In.H; iy++ {
						ky := oy + padY - iy*ct.Stride
						if ky < 0 || ky >= ct.Kernel {
							continue
						}
						for ix := 0; ix < ct.In.W; ix++ {
							kx := ox + padX - ix*ct.Stride
							if kx < 0 || kx >= ct.Kernel {
								continue
							}
							for c := 0; c < ct.In.C; c++ {
								inputs = append(inputs, sample[ct.In.index(iy, ix, c)])
								weights = append(weights, ct.W.At(f, (ky*ct.Kernel+kx)*ct.In.C+c))
							}
						}
					}
					v := autograd.DotProduct(inputs, weights)
					if ct.B != nil {
						v = v.Add(ct.B[f])
					}
					y[out.index(oy, ox, f)] = v
				}
			}
		}
		result[n] = y
	}
	return result
}

// Params implements Layer.
func (ct *Conv2DTranspose) Params() []*autograd.Value {
	params := append([]*autograd.Value(nil), ct.W.Data...)
	return append(params, ct.B...)
}
