// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/optimizer/lbfgsb"
	"github.com/go-logr/logr"
)

// DefaultCorrections is the number of L-BFGS corrections kept by LBFGSB.
const DefaultCorrections = 5

// LBFGSB minimises the objective row over the variable bounds with the
// limited memory lbfgsb engine.
//
// Every other row must be free: a problem with a bounded row is rejected
// with ErrArgument. Free rows are still evaluated and reported in F, and
// their multipliers are zero. Settings.StepTolerance and
// Settings.ExactLineSearch are ignored.
type LBFGSB struct {
	Logger logr.Logger
	// Corrections is the number of correction pairs kept, zero selects
	// DefaultCorrections.
	Corrections int
}

var _ Solver = LBFGSB{}

func (e *evaluation) smooth() lbfgsb.Evaluation {
	row, add := e.p.ObjRow, e.p.ObjAdd
	return func(x, g []float64) float64 {
		e.gradient(x, row, 1, g)
		return e.value(x, row) + add
	}
}

// Solve runs lbfgsb from p.X clamped into the variable bounds. A panic
// raised by p.Func is re-raised once the engine has unwound.
func (s LBFGSB) Solve(p *Problem, set Settings) (*Output, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	for i := 0; i < p.NF; i++ {
		if i != p.ObjRow && (!math.IsInf(p.FLow[i], -1) || !math.IsInf(p.FUpp[i], 1)) {
			return nil, argErr("row %s is bounded, lbfgsb only handles variable bounds", p.FName(i))
		}
	}
	set = set.withDefaults()
	log := s.Logger.WithValues("problem", p.Name)

	m := s.Corrections
	if m <= 0 {
		m = DefaultCorrections
	}

	e := newEvaluation(p)
	prob := lbfgsb.Problem{
		N: p.N,
		M: m,
		Stop: lbfgsb.Termination{
			MaxIterations:     set.MaxIterations,
			EpsAccuracyFactor: reductionFactor(set.FunctionTolerance),
			ProjGradTolerance: set.Accuracy,
		},
		Eval:   e.smooth(),
		Bounds: make([]lbfgsb.Bound, p.N),
	}
	x0 := slices.Clone(p.X)
	for j := range prob.Bounds {
		lo, hi := p.XLow[j], p.XUpp[j]
		x0[j] = math.Min(math.Max(x0[j], lo), hi)
		if math.IsInf(lo, -1) {
			lo = math.NaN()
		}
		if math.IsInf(hi, 1) {
			hi = math.NaN()
		}
		prob.Bounds[j] = lbfgsb.Bound{Lower: lo, Upper: hi}
	}

	opt, err := prob.New(nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgument, err)
	}
	log.V(1).Info("Starting lbfgsb", "variables", p.N, "corrections", m)

	res := opt.Fit(x0, opt.Init())
	e.rethrow()

	out := &Output{X: res.X, Iterations: res.NumIter}
	out.Status, out.Message = terminate(res, e.err)
	e.finish(out, false, set.Accuracy)

	log.V(1).Info("Finished lbfgsb",
		"status", out.Status,
		"task", int(res.Status),
		"iterations", out.Iterations,
		"evaluations", out.Evaluations,
		"ninf", out.Ninf)

	notify(p, out, log)
	return out, nil
}

var epsilon = math.Nextafter(1, 2) - 1

// reductionFactor converts tol into the factor of lbfgsb's test
// (fₖ - fₖ₊₁)/max(|fₖ|,|fₖ₊₁|,1) ≤ factr·ε. A zero tol disables the test.
func reductionFactor(tol float64) float64 {
	if tol <= 0 {
		return math.NaN()
	}
	return math.Max(1, tol/epsilon)
}

func terminate(res *lbfgsb.Result, userErr error) (Status, string) {
	if userErr != nil {
		return UserTerminated, userErr.Error()
	}
	switch res.Status {
	case lbfgsb.ConvGradProgNorm:
		return Optimal, "norm of projected gradient below tolerance"
	case lbfgsb.ConvEnoughAccuracy:
		return Optimal, "relative reduction of objective below tolerance"
	case lbfgsb.OverGradThresh:
		return Optimal, "projected gradient is sufficiently small"
	case lbfgsb.OverIterLimit:
		return IterationLimit, "total number of iterations reached limit"
	case lbfgsb.OverEvalLimit:
		return IterationLimit, "total number of evaluations exceeds limit"
	case lbfgsb.OverTimeLimit:
		return IterationLimit, "evaluation time exceeds limit"
	case lbfgsb.StopAbnormalSearch:
		return LineSearchFailure, "abnormal termination in line search"
	case lbfgsb.HaltEvalPanic:
		return UserTerminated, "evaluation halted"
	}
	if res.OK {
		return Optimal, "converged"
	}
	return NumericalDifficulty, fmt.Sprintf("lbfgsb task %d", res.Status)
}
