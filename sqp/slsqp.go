// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/optimizer/slsqp"
	"github.com/go-logr/logr"
	"gonum.org/v1/gonum/mat"
)

// SLSQP solves sparse problems with the dense slsqp engine.
//
// Every row other than the objective becomes dense constraints on
// F(𝐱): an equality when both bounds are equal, otherwise one inequality
// per finite bound. The Jacobian is expanded to NF×N, so the backend
// suits problems with a few hundred variables at most.
//
// Fmul holds the Lagrange multipliers of the returned point, estimated by
// least squares from the stationarity of the Lagrangian over the active
// rows and variable bounds. They are zero when that system is singular.
type SLSQP struct {
	Logger logr.Logger
}

var _ Solver = SLSQP{}

// rowCons is sign·(F[row] - shift) for equalities and ≥ 0 inequalities.
type rowCons struct {
	row   int
	sign  float64
	shift float64
}

func (e *evaluation) objective() slsqp.Evaluation {
	row, add := e.p.ObjRow, e.p.ObjAdd
	return func(x, g []float64) float64 {
		if g != nil {
			e.gradient(x, row, 1, g)
		}
		return e.value(x, row) + add
	}
}

func (e *evaluation) constraint(rc rowCons) slsqp.Evaluation {
	return func(x, g []float64) float64 {
		if g != nil {
			e.gradient(x, rc.row, rc.sign, g)
		}
		return rc.sign * (e.value(x, rc.row) - rc.shift)
	}
}

// splitRows maps every bounded row onto equality and inequality constraints.
func splitRows(p *Problem) (eq, neq []rowCons) {
	for i := 0; i < p.NF; i++ {
		if i == p.ObjRow {
			continue
		}
		lo, hi := p.FLow[i], p.FUpp[i]
		hasLo, hasHi := !math.IsInf(lo, -1), !math.IsInf(hi, 1)
		if hasLo && hasHi && lo == hi {
			eq = append(eq, rowCons{i, 1, lo})
			continue
		}
		if hasLo {
			neq = append(neq, rowCons{i, 1, lo})
		}
		if hasHi {
			neq = append(neq, rowCons{i, -1, hi})
		}
	}
	return
}

// Solve runs slsqp from p.X. A panic raised by p.Func is re-raised once the
// engine has unwound.
func (s SLSQP) Solve(p *Problem, set Settings) (*Output, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	set = set.withDefaults()
	log := s.Logger.WithValues("problem", p.Name)

	e := newEvaluation(p)
	eqRows, neqRows := splitRows(p)

	prob := slsqp.Problem{
		N: p.N,
		Stop: slsqp.Termination{
			Accuracy:       set.Accuracy,
			MaxIterations:  set.MaxIterations,
			FEvalTolerance: math.NaN(),
			FDiffTolerance: set.FunctionTolerance,
			XDiffTolerance: set.StepTolerance,
		},
		Line:    slsqp.LineSearch{Exact: set.ExactLineSearch},
		Object:  e.objective(),
		EqCons:  make([]slsqp.Evaluation, len(eqRows)),
		NeqCons: make([]slsqp.Evaluation, len(neqRows)),
		Bounds:  make([]slsqp.Bound, p.N),
	}
	for k, rc := range eqRows {
		prob.EqCons[k] = e.constraint(rc)
	}
	for k, rc := range neqRows {
		prob.NeqCons[k] = e.constraint(rc)
	}
	x0 := slices.Clone(p.X)
	for j := range prob.Bounds {
		prob.Bounds[j] = slsqp.Bound{Lower: p.XLow[j], Upper: p.XUpp[j]}
		x0[j] = math.Min(math.Max(x0[j], p.XLow[j]), p.XUpp[j])
	}

	opt, err := prob.New()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArgument, err)
	}
	log.V(1).Info("Starting slsqp",
		"variables", p.N,
		"equalities", len(eqRows),
		"inequalities", len(neqRows))

	res := opt.Fit(x0, opt.Init())
	e.rethrow()

	out := &Output{X: res.X, Iterations: res.NumIter}
	out.Status, out.Message = classify(res, e.err)
	e.finish(out, true, set.Accuracy)

	if e.hasG && slices.Equal(e.x, out.X) {
		rows := slices.Concat(eqRows, neqRows)
		tol := math.Sqrt(set.Accuracy)
		if lambda, err := e.multipliers(rows, len(eqRows), tol); err != nil {
			log.V(1).Info("Multipliers left at zero", "reason", err.Error())
		} else {
			for k, rc := range rows {
				out.Fmul[rc.row] += rc.sign * lambda[k]
			}
		}
	}

	log.V(1).Info("Finished slsqp",
		"status", out.Status,
		"mode", int(res.Status),
		"iterations", out.Iterations,
		"evaluations", out.Evaluations,
		"ninf", out.Ninf)

	notify(p, out, log)
	return out, nil
}

// multipliers solves ∇f = Σ λₖ∇cₖ for λ in the least squares sense at the
// cached point. The sum runs over the equalities, the inequalities within
// tol of zero and the variable bounds within tol of x. Only the row part
// of λ is returned, indexed like rows.
func (e *evaluation) multipliers(rows []rowCons, meq int, tol float64) ([]float64, error) {
	p, n := e.p, e.p.N
	near := func(v, ref float64) bool { return math.Abs(v) <= tol*math.Max(1, math.Abs(ref)) }

	var (
		active []int
		cols   [][]float64
	)
	for k, rc := range rows {
		if k >= meq && !near(rc.sign*(e.F[rc.row]-rc.shift), rc.shift) {
			continue
		}
		col := make([]float64, n)
		for j, v := range e.jac[rc.row*n : (rc.row+1)*n] {
			col[j] = rc.sign * v
		}
		active = append(active, k)
		cols = append(cols, col)
	}
	for j, x := range e.x {
		lo, hi := p.XLow[j], p.XUpp[j]
		var sign float64
		switch {
		case !math.IsInf(lo, -1) && near(x-lo, lo):
			sign = 1
		case !math.IsInf(hi, 1) && near(hi-x, hi):
			sign = -1
		default:
			continue
		}
		col := make([]float64, n)
		col[j] = sign
		cols = append(cols, col)
	}

	lambda := make([]float64, len(rows))
	if len(cols) == 0 {
		return lambda, nil
	}
	a := mat.NewDense(n, len(cols), nil)
	for c, col := range cols {
		a.SetCol(c, col)
	}
	obj := p.ObjRow
	grad := mat.NewVecDense(n, slices.Clone(e.jac[obj*n:(obj+1)*n]))

	var sol mat.VecDense
	if err := sol.SolveVec(a, grad); err != nil {
		return nil, err
	}
	for c, k := range active {
		lambda[k] = sol.AtVec(c)
	}
	return lambda, nil
}

func classify(res *slsqp.Result, userErr error) (Status, string) {
	if userErr != nil {
		return UserTerminated, userErr.Error()
	}
	switch res.Status {
	case slsqp.OK:
		return Optimal, "optimization terminated successfully"
	case slsqp.SQPExceedMaxIter:
		return IterationLimit, "more than max iterations in SQP"
	case slsqp.ConsIncompatible:
		return Infeasible, "inequality constraints incompatible"
	case slsqp.SearchNotDescent:
		return LineSearchFailure, "positive directional derivative for line-search"
	case slsqp.BadArgument:
		return InvalidInput, "evaluation failed or input dimension unacceptable"
	case slsqp.NNLSExceedMaxIter:
		return NumericalDifficulty, "more than max iterations for solving NNLS"
	case slsqp.LSISingularE:
		return NumericalDifficulty, "matrix E is not of full rank in LSI"
	case slsqp.LSEISingularC:
		return NumericalDifficulty, "matrix C is not of full rank in LSEI"
	case slsqp.HFTIRankDefect:
		return NumericalDifficulty, "rank-deficient equality constraint in HFTI"
	}
	return NumericalDifficulty, fmt.Sprintf("slsqp mode %d", res.Status)
}
