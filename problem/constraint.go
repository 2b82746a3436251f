// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// Bound is the closed interval [Lower, Upper]. Infinite ends are absent bounds.
type Bound struct {
	Lower, Upper float64
}

func Unbounded() Bound                    { return Bound{math.Inf(-1), math.Inf(1)} }
func Interval(lower, upper float64) Bound { return Bound{lower, upper} }
func AtLeast(lower float64) Bound         { return Bound{lower, math.Inf(1)} }
func AtMost(upper float64) Bound          { return Bound{math.Inf(-1), upper} }
func Equal(v float64) Bound               { return Bound{v, v} }

// Finite reports which ends of the interval are present.
func (b Bound) Finite() (lower, upper bool) {
	return !math.IsInf(b.Lower, 0) && !math.IsNaN(b.Lower),
		!math.IsInf(b.Upper, 0) && !math.IsNaN(b.Upper)
}

func (b Bound) String() string {
	return fmt.Sprintf("[%g, %g]", b.Lower, b.Upper)
}

// Kind tags the Constraint variants.
type Kind int

const (
	KindLinear Kind = iota
	KindNonlinear
)

func (k Kind) String() string {
	switch k {
	case KindLinear:
		return "linear"
	case KindNonlinear:
		return "nonlinear"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Constraint is either a *Linear or a *Nonlinear constraint.
// The set of variants is closed, consumers switch on the concrete type.
type Constraint interface {
	Kind() Kind
	Name() string
	OutputSize() int
	// RowBounds returns one Bound per output.
	RowBounds() []Bound
	constraint()
}

// Linear is the affine constraint Lower ≤ 𝐀𝐱 + 𝐛 ≤ Upper.
type Linear struct {
	Label  string
	A      mat.Matrix
	B      []float64 // nil means zero
	Bounds []Bound
}

// NewLinear returns the constraint bounds ≤ a·x + b.
func NewLinear(label string, a mat.Matrix, b []float64, bounds []Bound) *Linear {
	return &Linear{Label: label, A: a, B: b, Bounds: bounds}
}

func (l *Linear) Kind() Kind         { return KindLinear }
func (l *Linear) Name() string       { return l.Label }
func (l *Linear) RowBounds() []Bound { return l.Bounds }
func (l *Linear) constraint()        {}

func (l *Linear) OutputSize() int {
	r, _ := l.A.Dims()
	return r
}

// InputSize returns the number of columns of A.
func (l *Linear) InputSize() int {
	_, c := l.A.Dims()
	return c
}

// Offset returns b[i], or 0 when b is absent.
func (l *Linear) Offset(i int) float64 {
	if l.B == nil {
		return 0
	}
	return l.B[i]
}

// Eval writes 𝐀𝐱 + 𝐛 into y.
func (l *Linear) Eval(x, y []float64) error {
	r, c := l.A.Dims()
	if len(x) != c || len(y) != r {
		return fmt.Errorf("%w: linear %s is %d×%d, got %d inputs and %d outputs", ErrSize, l.Label, r, c, len(x), len(y))
	}
	dst := mat.NewVecDense(r, y)
	dst.MulVec(l.A, mat.NewVecDense(c, x))
	for i := range y {
		y[i] += l.Offset(i)
	}
	return nil
}

// Nonlinear is the constraint Lower ≤ 𝒇(𝐱) ≤ Upper.
// Fn must be Differentiable to be solved.
type Nonlinear struct {
	Fn     Function
	Bounds []Bound
}

func NewNonlinear(fn Function, bounds []Bound) *Nonlinear {
	return &Nonlinear{Fn: fn, Bounds: bounds}
}

func (n *Nonlinear) Kind() Kind         { return KindNonlinear }
func (n *Nonlinear) Name() string       { return n.Fn.Name() }
func (n *Nonlinear) OutputSize() int    { return n.Fn.OutputSize() }
func (n *Nonlinear) RowBounds() []Bound { return n.Bounds }
func (n *Nonlinear) constraint()        {}

// Differentiable returns Fn with its Jacobian capability, if any.
func (n *Nonlinear) Differentiable() (Differentiable, bool) {
	d, ok := n.Fn.(Differentiable)
	return d, ok
}
