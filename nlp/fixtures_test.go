// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

var inf = math.Inf(1)

func diffFunc(label string, in, out int, f func(x, y []float64), j func(x []float64, jac *problem.Jacobian)) *problem.DiffFunc {
	return &problem.DiffFunc{Func: problem.Func{Label: label, In: in, Out: out, F: f}, J: j}
}

// sumOfSquares is Σ xᵢ².
func sumOfSquares(n int) *problem.Quadratic {
	q := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		q.SetSym(i, i, 2)
	}
	f, err := problem.NewQuadratic("f", n, q, nil, 0)
	if err != nil {
		panic(err)
	}
	return f
}

// mixedProblem interleaves linear and nonlinear constraints over three variables:
//
//	L1  [1 0 2; 0 3 0]·x + [1, -2] ∈ [0, 5] × (-∞, 4]
//	N1  x₀x₁ ≥ 1
//	L2  x₁ + x₂ = 2
//	N2  (x₂², x₀ + x₂) ∈ (-∞, 9] × {0}
func mixedProblem() *problem.Problem {
	l1 := problem.NewLinear("L1",
		mat.NewDense(2, 3, []float64{1, 0, 2, 0, 3, 0}),
		[]float64{1, -2},
		[]problem.Bound{problem.Interval(0, 5), problem.AtMost(4)})
	n1 := problem.NewNonlinear(diffFunc("prod", 3, 1,
		func(x, y []float64) { y[0] = x[0] * x[1] },
		func(x []float64, jac *problem.Jacobian) {
			jac.Set(0, 0, x[1])
			jac.Set(0, 1, x[0])
		}), []problem.Bound{problem.AtLeast(1)})
	l2 := problem.NewLinear("L2", mat.NewDense(1, 3, []float64{0, 1, 1}), nil,
		[]problem.Bound{problem.Equal(2)})
	n2 := problem.NewNonlinear(diffFunc("pair", 3, 2,
		func(x, y []float64) { y[0], y[1] = x[2]*x[2], x[0]+x[2] },
		func(x []float64, jac *problem.Jacobian) {
			jac.Set(1, 2, 1)
			jac.Set(0, 2, 2*x[2])
			jac.Set(1, 0, 1)
		}), []problem.Bound{problem.AtMost(9), problem.Equal(0)})

	p := problem.New(sumOfSquares(3)).
		AddConstraint(l1).
		AddConstraint(n1).
		AddConstraint(l2).
		AddConstraint(n2)
	p.Name = "mixed"
	p.ArgumentBounds = []problem.Bound{problem.Interval(0, 10), problem.AtMost(4), problem.Unbounded()}
	return p
}

// recordingBackend returns a canned output and records what it was given.
type recordingBackend struct {
	calls    int
	problem  *sqp.Problem
	settings sqp.Settings
	out      *sqp.Output
	err      error
}

func (b *recordingBackend) Solve(p *sqp.Problem, s sqp.Settings) (*sqp.Output, error) {
	b.calls++
	b.problem, b.settings = p, s
	return b.out, b.err
}

func identity(n int) *mat.Dense {
	d := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		d.Set(i, i, 1)
	}
	return d
}
