// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"slices"

	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// Result is the outcome of a solve: a *Solution or a *SolverError.
type Result interface {
	result()
}

// Solution is a point accepted by the solver.
//
// Constraints and Lambda follow the combined row order without the
// objective row; linear rows hold 𝐀𝐱 without the offset b.
type Solution struct {
	X           []float64
	Value       float64
	Constraints []float64
	// Lambda are the multipliers of the rows at X as reported by the
	// backend. sqp.SLSQP solves ∇f = Σ λᵢ∇cᵢ over the active rows, so an
	// inactive row has 0, an active lower bound λ ≥ 0 and an active upper
	// bound λ ≤ 0.
	Lambda []float64

	Iterations  int
	Evaluations int

	layout *Layout
}

// ConstraintValues returns the outputs of constraint k in Problem.Constraints,
// offset included.
func (s *Solution) ConstraintValues(k int) []float64 {
	b := s.layout.Block(k)
	out := slices.Clone(s.Constraints[b.Row-1 : b.Row-1+b.Size])
	if lin, ok := b.Constraint.(*problem.Linear); ok {
		for i := range out {
			out[i] += lin.Offset(i)
		}
	}
	return out
}

// ConstraintMultipliers returns the multipliers of constraint k in Problem.Constraints.
func (s *Solution) ConstraintMultipliers(k int) []float64 {
	b := s.layout.Block(k)
	return slices.Clone(s.Lambda[b.Row-1 : b.Row-1+b.Size])
}

// SolverError is a solve the solver did not complete successfully.
// LastState is the last point the solver reported, for diagnostics only.
type SolverError struct {
	Message   string
	Status    sqp.Status
	LastState *Solution
}

func (e *SolverError) Error() string {
	return "solver failed (" + e.Status.String() + "): " + e.Message
}

func (*Solution) result()    {}
func (*SolverError) result() {}

func decode(out *sqp.Output, layout *Layout) *Solution {
	return &Solution{
		X:           slices.Clone(out.X),
		Value:       out.F[0],
		Constraints: slices.Clone(out.F[1:]),
		Lambda:      slices.Clone(out.Fmul[1:]),
		Iterations:  out.Iterations,
		Evaluations: out.Evaluations,
		layout:      layout,
	}
}

// translate decodes the flat solver output.
func translate(out *sqp.Output, layout *Layout) Result {
	if len(out.F) != layout.NF || len(out.Fmul) != layout.NF || len(out.X) != layout.N {
		panic(internalf("solver output has %d rows, %d multipliers and %d variables, layout has %d rows and %d variables",
			len(out.F), len(out.Fmul), len(out.X), layout.NF, layout.N))
	}
	sol := decode(out, layout)
	if out.Status.Success() {
		return sol
	}
	msg := out.Message
	if msg == "" {
		msg = out.Status.String()
	}
	return &SolverError{Message: msg, Status: out.Status, LastState: sol}
}

// rejected wraps an error returned by the solver before iterating.
func rejected(err error) *SolverError {
	return &SolverError{Message: err.Error(), Status: sqp.InvalidInput}
}
