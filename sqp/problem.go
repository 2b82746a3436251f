// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sqp defines the flat calling convention of a sparse SQP solver
// and provides a backend driving the dense slsqp engine through it.
//
// A problem has n variables and NF function rows. Row values are
//
//	F(𝐱) = f(𝐱) + 𝐀𝐱
//
// where 𝐀 is a constant sparse matrix given as (IAfun, JAvar, A) triplets and
// f is computed by a user callback that fills the nonlinear rows and the
// nonzeros of 𝐆 = ∂f/∂𝐱 at the (IGfun, JGvar) coordinates. Row ObjRow is
// minimized, every other row is kept within [FLow, FUpp].
package sqp

import (
	"errors"
	"fmt"
	"math"
)

// CallStatus tells the callback where the solver is.
type CallStatus int

const (
	// Normal is an ordinary evaluation.
	Normal CallStatus = iota
	// First is the first evaluation of a solve.
	First
	// Final is the notification sent once the solve has ended.
	// Statuses above Final are treated as final as well.
	Final
)

// IsFinal reports whether the call only notifies the end of a solve.
func (s CallStatus) IsFinal() bool { return s >= Final }

// UserFunc evaluates the nonlinear part of the rows at x.
//
// When needF is set every nonlinear row of f must be written, when needG is set
// g[k] must receive ∂fᵢ/∂xⱼ for i = IGfun[k], j = JGvar[k]. A non-nil error
// stops the solve.
type UserFunc func(status CallStatus, x []float64, needF bool, f []float64, needG bool, g []float64) error

// Problem is a sparse nonlinear program in flat array form. Indices are 0-based.
type Problem struct {
	Name string

	N  int // variables
	NF int // rows

	ObjRow int     // row to minimize
	ObjAdd float64 // constant added to the objective

	// Constant linear part: A[k] at (IAfun[k], JAvar[k]) for k < NeA.
	IAfun, JAvar []int
	A            []float64
	NeA          int

	// Nonlinear Jacobian pattern: (IGfun[k], JGvar[k]) for k < NeG.
	IGfun, JGvar []int
	NeG          int

	XLow, XUpp []float64
	FLow, FUpp []float64

	// Optional names used in messages.
	XNames, FNames []string

	// X is the starting point.
	X []float64

	Func UserFunc
}

// ErrArgument reports malformed problem arrays.
var ErrArgument = errors.New("sqp: invalid argument")

func argErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrArgument, fmt.Sprintf(format, args...))
}

// Validate checks the array lengths and index ranges of p.
func (p *Problem) Validate() error {
	n, nf := p.N, p.NF
	switch {
	case n <= 0:
		return argErr("n = %d", n)
	case nf <= 0:
		return argErr("nf = %d", nf)
	case p.ObjRow < 0 || p.ObjRow >= nf:
		return argErr("objective row %d out of [0, %d)", p.ObjRow, nf)
	case p.Func == nil:
		return argErr("user function is required")
	case len(p.X) != n:
		return argErr("starting point has %d entries, want %d", len(p.X), n)
	case len(p.XLow) != n || len(p.XUpp) != n:
		return argErr("variable bounds have %d/%d entries, want %d", len(p.XLow), len(p.XUpp), n)
	case len(p.FLow) != nf || len(p.FUpp) != nf:
		return argErr("row bounds have %d/%d entries, want %d", len(p.FLow), len(p.FUpp), nf)
	case p.XNames != nil && len(p.XNames) != n:
		return argErr("%d variable names, want %d", len(p.XNames), n)
	case p.FNames != nil && len(p.FNames) != nf:
		return argErr("%d row names, want %d", len(p.FNames), nf)
	case p.NeA < 0 || len(p.IAfun) < p.NeA || len(p.JAvar) < p.NeA || len(p.A) < p.NeA:
		return argErr("linear part holds fewer than %d entries", p.NeA)
	case p.NeG < 0 || len(p.IGfun) < p.NeG || len(p.JGvar) < p.NeG:
		return argErr("jacobian pattern holds fewer than %d entries", p.NeG)
	}
	for k := 0; k < p.NeA; k++ {
		if i, j := p.IAfun[k], p.JAvar[k]; i < 0 || i >= nf || j < 0 || j >= n {
			return argErr("linear entry %d at (%d,%d) out of range", k, i, j)
		}
	}
	for k := 0; k < p.NeG; k++ {
		if i, j := p.IGfun[k], p.JGvar[k]; i < 0 || i >= nf || j < 0 || j >= n {
			return argErr("jacobian entry %d at (%d,%d) out of range", k, i, j)
		}
	}
	for j := 0; j < n; j++ {
		if p.XLow[j] > p.XUpp[j] || math.IsNaN(p.XLow[j]) || math.IsNaN(p.XUpp[j]) {
			return argErr("bounds of %s are [%g, %g]", p.XName(j), p.XLow[j], p.XUpp[j])
		}
	}
	for i := 0; i < nf; i++ {
		if p.FLow[i] > p.FUpp[i] || math.IsNaN(p.FLow[i]) || math.IsNaN(p.FUpp[i]) {
			return argErr("bounds of %s are [%g, %g]", p.FName(i), p.FLow[i], p.FUpp[i])
		}
	}
	return nil
}

// XName returns the name of variable j.
func (p *Problem) XName(j int) string {
	if p.XNames != nil {
		return p.XNames[j]
	}
	return fmt.Sprintf("x[%d]", j)
}

// FName returns the name of row i.
func (p *Problem) FName(i int) string {
	if p.FNames != nil {
		return p.FNames[i]
	}
	return fmt.Sprintf("F[%d]", i)
}

// Settings are the solver parameters. Zero values select the defaults.
type Settings struct {
	// MaxIterations bounds the number of major iterations.
	MaxIterations int
	// Accuracy is the required optimality and feasibility accuracy.
	Accuracy float64
	// FunctionTolerance stops SLSQP once a step changes the objective by
	// less than it in absolute value. LBFGSB applies it relative to
	// max(|f|, 1). Zero disables the test.
	FunctionTolerance float64
	// StepTolerance stops when the step is shorter than it.
	StepTolerance float64
	// ExactLineSearch selects an exact line search instead of an Armijo one.
	ExactLineSearch bool
}

// Defaults applied by every backend to zero Settings fields.
const (
	// DefaultMaxIterations is the major iteration limit.
	DefaultMaxIterations = 100
	// DefaultAccuracy is the optimality and feasibility accuracy.
	DefaultAccuracy = 1e-6
)

func (s Settings) withDefaults() Settings {
	if s.MaxIterations <= 0 {
		s.MaxIterations = DefaultMaxIterations
	}
	if s.Accuracy <= 0 {
		s.Accuracy = DefaultAccuracy
	}
	return s
}

// Output is the flat result of a solve.
type Output struct {
	X    []float64 // final point
	F    []float64 // F(X), NF rows
	Fmul []float64 // row multipliers, NF rows

	Status  Status
	Message string

	Iterations  int
	Evaluations int // callback calls, the final notification excluded

	Ninf int     // rows and variables violating their bounds
	Sinf float64 // sum of the violations
}

// Solver solves problems given in the flat convention.
//
// An error is only returned for a problem that cannot be handed to the
// solver. Every other outcome is described by the Output.
type Solver interface {
	Solve(p *Problem, s Settings) (*Output, error)
}
