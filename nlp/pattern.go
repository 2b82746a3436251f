// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import "github.com/curioloop/sparsenlp/problem"

// LinearPattern holds the constant coefficients of every linear constraint
// as (row, col, value) triplets in combined row order.
//
// The solver needs at least one entry: an empty pattern keeps a single zero
// placeholder and reports NonZeros == 0.
type LinearPattern struct {
	Rows, Cols []int
	Values     []float64
	NonZeros   int
}

// NonlinearPattern holds the (row, col) coordinates of the objective and
// nonlinear constraint Jacobians. Values are recomputed on every evaluation.
// Empty patterns follow the LinearPattern placeholder rule.
type NonlinearPattern struct {
	Rows, Cols []int
	NonZeros   int
	spans      []span
}

// span is the slice [start, end) of the pattern filled by one function.
type span struct {
	fn         problem.Differentiable
	label      string
	row, size  int
	start, end int
}

// Spans returns the number of functions covered by the pattern.
func (p *NonlinearPattern) Spans() int { return len(p.spans) }

func buildLinearPattern(p *problem.Problem, layout *Layout) *LinearPattern {
	lp := &LinearPattern{}
	for _, b := range layout.Linear {
		lin, ok := b.Constraint.(*problem.Linear)
		if !ok {
			panic(internalf("block %d of the linear layout holds a %s constraint", b.Index, b.Constraint.Kind()))
		}
		rows, cols := lin.A.Dims()
		if rows != b.Size {
			panic(internalf("linear block %s has %d rows, layout reserved %d", lin.Label, rows, b.Size))
		}
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				if v := lin.A.At(i, j); v != 0 {
					lp.Rows = append(lp.Rows, b.Row+i)
					lp.Cols = append(lp.Cols, j)
					lp.Values = append(lp.Values, v)
				}
			}
		}
	}
	lp.NonZeros = len(lp.Values)
	if lp.NonZeros == 0 {
		lp.Rows, lp.Cols, lp.Values = []int{0}, []int{0}, []float64{0}
	}
	return lp
}

// nonlinearTargets lists the objective followed by the nonlinear constraints.
// p must have been validated.
func nonlinearTargets(p *problem.Problem, layout *Layout) []span {
	obj := p.Objective.(problem.Differentiable)
	targets := []span{{fn: obj, label: obj.Name(), row: 0, size: 1}}
	for _, b := range layout.Nonlinear {
		nl, ok := b.Constraint.(*problem.Nonlinear)
		if !ok {
			panic(internalf("block %d of the nonlinear layout holds a %s constraint", b.Index, b.Constraint.Kind()))
		}
		fn, ok := nl.Differentiable()
		if !ok {
			panic(internalf("nonlinear constraint %s lost its jacobian after validation", nl.Name()))
		}
		targets = append(targets, span{fn: fn, label: fn.Name(), row: b.Row, size: b.Size})
	}
	return targets
}

func buildNonlinearPattern(p *problem.Problem, layout *Layout, x []float64) (*NonlinearPattern, error) {
	np := &NonlinearPattern{spans: nonlinearTargets(p, layout)}
	for k := range np.spans {
		s := &np.spans[k]
		jac, err := s.fn.Jacobian(x)
		if err != nil {
			return nil, &ConfigurationError{Op: "pattern", Subject: s.label, Err: err}
		}
		if r, c := jac.Dims(); r != s.size || c != layout.N {
			return nil, configErr("pattern", s.label, ErrDimensionMismatch,
				"jacobian is %d×%d, want %d×%d", r, c, s.size, layout.N)
		}
		s.start = len(np.Rows)
		for _, e := range jac.Compress().Entries() {
			np.Rows = append(np.Rows, s.row+e.Row)
			np.Cols = append(np.Cols, e.Col)
		}
		s.end = len(np.Rows)
	}
	np.NonZeros = len(np.Rows)
	if np.NonZeros == 0 {
		np.Rows, np.Cols = []int{0}, []int{0}
	}
	return np, nil
}

// representativePoint returns the starting point when present. Otherwise
// each variable takes the midpoint of its finite bounds, its only finite
// bound, or zero.
func representativePoint(p *problem.Problem, n int) []float64 {
	if p.StartingPoint != nil {
		return p.Start()
	}
	x := make([]float64, n)
	for j := range x {
		b := p.Bound(j)
		switch lo, hi := b.Finite(); {
		case lo && hi:
			x[j] = b.Lower/2 + b.Upper/2
		case lo:
			x[j] = b.Lower
		case hi:
			x[j] = b.Upper
		}
	}
	return x
}
