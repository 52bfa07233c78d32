package autograd

import (
	"math"
)

// DotProduct returns sum(a[i]*b[i]) as one node whose inputs interleave a
// and b. It panics if the lengths differ.
func DotProduct(a, b []*Value) *Value {
	if len(a) != len(b) {
		panic("autograd: DotProduct of mismatched lengths")
	}
	children := make([]*Value, 0, 2*len(a))
	localGrads := make([]float64, 0, 2*len(a))
	var dot float64
	for i, x := range a {
		y := b[i]
		dot += x.Data * y.Data
		children = append(children, x, y)
		localGrads = append(localGrads, y.Data, x.Data)
	}
	return node(dot, children, localGrads...)
}

// Sum adds all values in a single node.
func Sum(vs []*Value) *Value {
	return scaledSum(vs, 1)
}

// Mean averages all values in a single node. Panics on an empty slice.
func Mean(vs []*Value) *Value {
	if len(vs) == 0 {
		panic("autograd: Mean of empty input")
	}
	return scaledSum(vs, float64(len(vs)))
}

// scaledSum is sum(vs)/n.
func scaledSum(vs []*Value, n float64) *Value {
	var total float64
	localGrads := make([]float64, len(vs))
	for i, v := range vs {
		total += v.Data
		localGrads[i] = 1 / n
	}
	return node(total/n, vs, localGrads...)
}

// Tanh returns a new Value representing tanh(self).
// Local gradient: 1 - tanh(x)^2
func (v *Value) Tanh() *Value {
	t := math.Tanh(v.Data)
	return &Value{
		Data:       t,
		children:   []*Value{v},
		localGrads: []float64{1 - t*t},
	}
}

// Sigmoid returns a new Value representing 1 / (1 + e^-self).
// Local gradient: s * (1 - s)
func (v *Value) Sigmoid() *Value {
	s := sigmoid(v.Data)
	return &Value{
		Data:       s,
		children:   []*Value{v},
		localGrads: []float64{s * (1 - s)},
	}
}

// LeakyReLU returns self for positive inputs and alpha*self otherwise.
func (v *Value) LeakyReLU(alpha float64) *Value {
	if v.Data > 0 {
		return &Value{
			Data:       v.Data,
			children:   []*Value{v},
			localGrads: []float64{1},
		}
	}
	return &Value{
		Data:       alpha * v.Data,
		children:   []*Value{v},
		localGrads: []float64{alpha},
	}
}

// BCEWithLogits computes binary cross-entropy between sigmoid(logit) and a
// target in [0, 1] as one fused node:
//
//	max(x, 0) - x*t + log(1 + e^-|x|)
//
// The gradient with respect to the logit is sigmoid(x) - t.
func BCEWithLogits(logit *Value, target float64) *Value {
	x := logit.Data
	loss := math.Max(x, 0) - x*target + math.Log1p(math.Exp(-math.Abs(x)))
	return &Value{
		Data:       loss,
		children:   []*Value{logit},
		localGrads: []float64{sigmoid(x) - target},
	}
}

func sigmoid(x float64) float64 {
	if x >= 0 {
		return 1 / (1 + math.Exp(-x))
	}
	e := math.Exp(x)
	return e / (1 + e)
}

// Softmax computes softmax over a slice of Values as a single operation.
// The gradient is: d(softmax_i)/d(logit_j) = softmax_i * (delta_ij - softmax_j)
func Softmax(logits []*Value) []*Value {
	probs := softmax(logits)
	n := len(logits)

	// Each output depends on every input
	out := make([]*Value, n)
	for i := 0; i < n; i++ {
		localGrads := make([]float64, n)
		for j := 0; j < n; j++ {
			if i == j {
				localGrads[j] = probs[i] * (1 - probs[j])
			} else {
				localGrads[j] = -probs[i] * probs[j]
			}
		}
		out[i] = &Value{
			Data:       probs[i],
			children:   logits,
			localGrads: localGrads,
		}
	}
	return out
}

// CrossEntropy is -log(softmax(logits)[target]) as one node.
// Local gradient for logit j: softmax_j - [j == target]
func CrossEntropy(logits []*Value, target int) *Value {
	probs := softmax(logits)
	localGrads := make([]float64, len(probs))
	copy(localGrads, probs)
	localGrads[target]--
	return &Value{
		Data:       -math.Log(probs[target]),
		children:   logits,
		localGrads: localGrads,
	}
}

// softmax is the max-shifted forward pass.
func softmax(logits []*Value) []float64 {
	maxVal := logits[0].Data
	for _, v := range logits[1:] {
		maxVal = math.Max(maxVal, v.Data)
	}
	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		probs[i] = math.Exp(v.Data - maxVal)
		sum += probs[i]
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}
