// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"math"

	"github.com/curioloop/sparsenlp/problem"
)

// DefaultBoundTolerance is the snapping tolerance used when none is configured.
const DefaultBoundTolerance = 1e-6

// Bounds are the variable and combined row bounds handed to the solver.
type Bounds struct {
	XLow, XUpp []float64
	FLow, FUpp []float64
}

// assembleBounds copies the variable bounds and lays out the row bounds:
// row 0 is free, nonlinear rows keep their declared bounds and linear rows
// are shifted by -b since the solver only sees 𝐀𝐱. Row bounds are snapped
// with tol, variable bounds are only checked.
func assembleBounds(p *problem.Problem, layout *Layout, xnames, fnames []string, tol float64) (*Bounds, error) {
	n, nf := layout.N, layout.NF
	bs := &Bounds{
		XLow: make([]float64, n),
		XUpp: make([]float64, n),
		FLow: make([]float64, nf),
		FUpp: make([]float64, nf),
	}

	for j := 0; j < n; j++ {
		b := p.Bound(j)
		bs.XLow[j], bs.XUpp[j] = b.Lower, b.Upper
	}

	bs.FLow[0], bs.FUpp[0] = math.Inf(-1), math.Inf(1)
	filled := 1
	for _, b := range layout.Nonlinear {
		for i, rb := range b.Constraint.RowBounds() {
			bs.FLow[b.Row+i], bs.FUpp[b.Row+i] = rb.Lower, rb.Upper
		}
		filled += b.Size
	}
	for _, b := range layout.Linear {
		lin := b.Constraint.(*problem.Linear)
		for i, rb := range lin.Bounds {
			off := lin.Offset(i)
			bs.FLow[b.Row+i], bs.FUpp[b.Row+i] = rb.Lower-off, rb.Upper-off
		}
		filled += b.Size
	}
	if filled != nf {
		panic(internalf("row bounds cover %d rows, layout has %d", filled, nf))
	}

	for j := 0; j < n; j++ {
		if lo, hi := bs.XLow[j], bs.XUpp[j]; !(lo <= hi) {
			return nil, configErr("bounds", xnames[j], ErrInconsistentBounds, "%v", boundErr{lo, hi})
		}
	}
	for i := 0; i < nf; i++ {
		if err := snap(&bs.FLow[i], &bs.FUpp[i], tol); err != nil {
			return nil, configErr("bounds", fnames[i], ErrInconsistentBounds, "%v", err)
		}
	}
	return bs, nil
}

type boundErr struct{ lo, hi float64 }

func (e boundErr) Error() string {
	return problem.Interval(e.lo, e.hi).String() + " is empty"
}

// snap zeroes values within tol of zero and merges bounds within tol of each
// other before checking lo ≤ hi.
func snap(lo, hi *float64, tol float64) error {
	if math.Abs(*lo) < tol {
		*lo = 0
	}
	if math.Abs(*hi) < tol {
		*hi = 0
	}
	if math.Abs(*lo-*hi) < tol {
		*lo = *hi
	}
	if !(*lo <= *hi) {
		return boundErr{*lo, *hi}
	}
	return nil
}
