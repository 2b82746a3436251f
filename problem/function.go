// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Function is a vector valued function 𝒇(𝐱) : ℝⁿ → ℝᵐ.
type Function interface {
	// Name is used in row names and log messages.
	Name() string
	// InputSize returns n.
	InputSize() int
	// OutputSize returns m.
	OutputSize() int
	// Eval writes 𝒇(𝐱) into y, len(x) == n and len(y) == m.
	Eval(x, y []float64) error
}

// Differentiable is a Function that can also evaluate its Jacobian 𝒇′(𝐱).
//
// The structural nonzeros of the returned Jacobian must not change
// between calls: the first Jacobian fixes the sparsity pattern of a solve.
type Differentiable interface {
	Function
	Jacobian(x []float64) (*Jacobian, error)
}

// ErrSize reports vectors that do not match a function's dimensions.
var ErrSize = errors.New("problem: size mismatch")

func checkSizes(f Function, x, y []float64) error {
	if len(x) != f.InputSize() || len(y) != f.OutputSize() {
		return fmt.Errorf("%w: %s takes %d inputs and %d outputs, got %d and %d",
			ErrSize, f.Name(), f.InputSize(), f.OutputSize(), len(x), len(y))
	}
	return nil
}

// Func adapts a plain Go function to Function.
type Func struct {
	Label   string
	In, Out int
	F       func(x, y []float64)
}

func (f *Func) Name() string    { return f.Label }
func (f *Func) InputSize() int  { return f.In }
func (f *Func) OutputSize() int { return f.Out }

func (f *Func) Eval(x, y []float64) error {
	if err := checkSizes(f, x, y); err != nil {
		return err
	}
	f.F(x, y)
	return nil
}

// DiffFunc is a Func with an analytic Jacobian.
// J receives an empty Jacobian of shape Out×In to fill.
type DiffFunc struct {
	Func
	J func(x []float64, jac *Jacobian)
}

func (f *DiffFunc) Jacobian(x []float64) (*Jacobian, error) {
	if len(x) != f.In {
		return nil, fmt.Errorf("%w: %s jacobian takes %d inputs, got %d", ErrSize, f.Label, f.In, len(x))
	}
	jac := NewJacobian(f.Out, f.In)
	f.J(x, jac)
	return jac, nil
}

// Quadratic is the scalar function ½𝐱ᵀ𝐐𝐱 + 𝐜ᵀ𝐱 + 𝒅.
// Q may be nil for a linear function, C may be nil for a zero linear term.
type Quadratic struct {
	Label string
	Q     *mat.SymDense
	C     []float64
	D     float64
	n     int
}

// NewQuadratic returns a quadratic in n variables.
func NewQuadratic(label string, n int, q *mat.SymDense, c []float64, d float64) (*Quadratic, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: quadratic %s needs at least one variable", ErrSize, label)
	}
	if q != nil && q.SymmetricDim() != n {
		return nil, fmt.Errorf("%w: quadratic %s Q is %d×%d, want %d×%d", ErrSize, label, q.SymmetricDim(), q.SymmetricDim(), n, n)
	}
	if c != nil && len(c) != n {
		return nil, fmt.Errorf("%w: quadratic %s linear term has %d entries, want %d", ErrSize, label, len(c), n)
	}
	return &Quadratic{Label: label, Q: q, C: c, D: d, n: n}, nil
}

func (q *Quadratic) Name() string    { return q.Label }
func (q *Quadratic) InputSize() int  { return q.n }
func (q *Quadratic) OutputSize() int { return 1 }

func (q *Quadratic) Eval(x, y []float64) error {
	if err := checkSizes(q, x, y); err != nil {
		return err
	}
	v := q.D
	if q.C != nil {
		v += floats.Dot(q.C, x)
	}
	if q.Q != nil {
		xv := mat.NewVecDense(q.n, x)
		v += 0.5 * mat.Inner(xv, q.Q, xv)
	}
	y[0] = v
	return nil
}

// Jacobian returns the gradient (𝐐𝐱 + 𝐜)ᵀ as a single row. A column is
// stored whenever Q or c references it, whatever the current value.
func (q *Quadratic) Jacobian(x []float64) (*Jacobian, error) {
	if len(x) != q.n {
		return nil, fmt.Errorf("%w: %s jacobian takes %d inputs, got %d", ErrSize, q.Label, q.n, len(x))
	}
	grad := make([]float64, q.n)
	if q.C != nil {
		copy(grad, q.C)
	}
	if q.Q != nil {
		var qx mat.VecDense
		qx.MulVec(q.Q, mat.NewVecDense(q.n, x))
		floats.Add(grad, qx.RawVector().Data)
	}
	jac := NewJacobian(1, q.n)
	for j := 0; j < q.n; j++ {
		if q.references(j) {
			jac.Set(0, j, grad[j])
		}
	}
	return jac, nil
}

func (q *Quadratic) references(j int) bool {
	if q.C != nil && q.C[j] != 0 {
		return true
	}
	if q.Q != nil {
		for i := 0; i < q.n; i++ {
			if q.Q.At(i, j) != 0 {
				return true
			}
		}
	}
	return false
}
