// Package autograd is a scalar reverse-mode differentiation engine. Every
// operation records its inputs and the partial derivative of its output with
// respect to each of them, so Backward only multiplies and accumulates.
package autograd

import "math"

// Value is one scalar node of a computation graph.
type Value struct {
	Data float64
	Grad float64

	// children[i] fed this node and localGrads[i] is d(this)/d(children[i]).
	children   []*Value
	localGrads []float64
}

// NewValue creates a leaf holding data.
func NewValue(data float64) *Value {
	return &Value{Data: data}
}

// Scalar creates a constant leaf. It is NewValue under a name that reads
// better inside expressions.
func Scalar(data float64) *Value {
	return &Value{Data: data}
}

func node(data float64, children []*Value, localGrads ...float64) *Value {
	return &Value{Data: data, children: children, localGrads: localGrads}
}

// Add returns v + other.
func (v *Value) Add(other *Value) *Value {
	return node(v.Data+other.Data, []*Value{v, other}, 1, 1)
}

// Sub returns v - other.
func (v *Value) Sub(other *Value) *Value {
	return node(v.Data-other.Data, []*Value{v, other}, 1, -1)
}

// Mul returns v * other.
func (v *Value) Mul(other *Value) *Value {
	return node(v.Data*other.Data, []*Value{v, other}, other.Data, v.Data)
}

// Pow returns v raised to a constant exponent.
func (v *Value) Pow(exp float64) *Value {
	return node(math.Pow(v.Data, exp), []*Value{v}, exp*math.Pow(v.Data, exp-1))
}

// ReLU returns max(v, 0).
func (v *Value) ReLU() *Value {
	if v.Data > 0 {
		return node(v.Data, []*Value{v}, 1)
	}
	return node(0, []*Value{v}, 0)
}

// Backward sets v.Grad to 1 and accumulates d(v)/d(n) into the Grad of every
// node n reachable from v. Gradients are added, not assigned, so callers
// reset them between steps with ZeroGrads.
func (v *Value) Backward() {
	order := v.topoOrder()
	v.Grad = 1
	for i := len(order) - 1; i >= 0; i-- {
		n := order[i]
		for j, child := range n.children {
			child.Grad += n.Grad * n.localGrads[j]
		}
	}
}

// topoOrder lists the graph below v with every node after all of its inputs.
func (v *Value) topoOrder() []*Value {
	type frame struct {
		n    *Value
		next int // index of the next child to visit
	}
	order := make([]*Value, 0, 1024)
	seen := map[*Value]bool{v: true}
	path := []frame{{n: v}}
	for len(path) > 0 {
		top := &path[len(path)-1]
		if top.next == len(top.n.children) {
			order = append(order, top.n)
			path = path[:len(path)-1]
			continue
		}
		child := top.n.children[top.next]
		top.next++
		if !seen[child] {
			seen[child] = true
			path = append(path, frame{n: child})
		}
	}
	return order
}

// Detach returns a leaf holding the same data. Gradients flowing into the
// result stop there and never reach the graph that produced v.
func (v *Value) Detach() *Value {
	return NewValue(v.Data)
}

// Values wraps raw floats as leaf nodes.
func Values(data []float64) []*Value {
	out := make([]*Value, len(data))
	for i, d := range data {
		out[i] = NewValue(d)
	}
	return out
}

// Floats extracts the Data field of each node.
func Floats(vs []*Value) []float64 {
	out := make([]float64, len(vs))
	for i, v := range vs {
		out[i] = v.Data
	}
	return out
}

// ZeroGrads resets the gradient of every node in vs.
func ZeroGrads(vs []*Value) {
	for _, v := range vs {
		v.Grad = 0
	}
}
