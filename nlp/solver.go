// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package nlp solves problem.Problem values with a sparse SQP solver.
//
// A solve lays the objective and the constraints out as the rows of
//
//	F(𝐱) = f(𝐱) + 𝐀𝐱
//
// where 𝐀 holds the constant coefficients of every linear constraint and f
// the objective and nonlinear constraints, records the sparsity patterns of
// 𝐀 and ∂f/∂𝐱 and hands the flat arrays with an evaluation callback to an
// sqp.Solver.
package nlp

import (
	"errors"
	"fmt"
	"time"

	"github.com/go-logr/logr"

	"github.com/curioloop/sparsenlp/internal/logging"
	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// Solver solves one problem, as many times as Solve is called.
// A Solver is not safe for concurrent use.
type Solver struct {
	problem *problem.Problem
	cfg     *config
	monitor Monitor
	state   State
	result  Result
	solving bool
}

// NewSolver returns a solver for p. Options are applied in order.
func NewSolver(p *problem.Problem, opts ...Option) (*Solver, error) {
	return newSolver(p, opts, func(log logr.Logger) sqp.Solver {
		return sqp.SLSQP{Logger: log.WithName("slsqp")}
	})
}

// newSolver applies opts and falls back to the backend built by fallback
// when none is given.
func newSolver(p *problem.Problem, opts []Option, fallback func(logr.Logger) sqp.Solver) (*Solver, error) {
	if p == nil {
		return nil, &ConfigurationError{Op: "validate", Err: ErrNoObjective}
	}
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.backend == nil {
		cfg.backend = fallback(cfg.log)
	}
	return &Solver{problem: p, cfg: cfg}, nil
}

// SetIterationCallback registers m in place of any previous monitor; nil removes it.
func (s *Solver) SetIterationCallback(m Monitor) {
	s.monitor = m
}

// Problem returns the problem being solved.
func (s *Solver) Problem() *problem.Problem {
	return s.problem
}

// SolverState returns the state of the current or last solve.
func (s *Solver) SolverState() *State {
	return &s.state
}

// Result returns the outcome of the last completed solve, nil before the first one.
func (s *Solver) Result() Result {
	return s.result
}

// Solve runs the solver to completion and stores the outcome in Result.
//
// The returned error is a *ConfigurationError when the problem cannot be
// handed to the solver, or ErrReentrantSolve. Solver failures are not
// errors: they are reported by a *SolverError result.
func (s *Solver) Solve() error {
	if s.solving {
		return ErrReentrantSolve
	}
	s.solving = true
	defer func() { s.solving = false }()

	start := time.Now()
	log := s.cfg.log.WithValues("problem", s.problem.Name)

	prob, layout, err := s.prepare(log)
	if err != nil {
		s.cfg.metrics.solved(OutcomeConfiguration, time.Since(start))
		log.Error(err, "Rejected problem")
		return err
	}

	out, err := s.cfg.backend.Solve(prob, s.cfg.settings())
	if err != nil {
		s.result = rejected(err)
	} else {
		s.result = translate(out, layout)
	}

	elapsed := time.Since(start)
	switch r := s.result.(type) {
	case *Solution:
		s.cfg.metrics.solved(OutcomeSuccess, elapsed)
		log.Info("Solved",
			"value", r.Value,
			"iterations", r.Iterations,
			"evaluations", r.Evaluations,
			"elapsed", elapsed)
	case *SolverError:
		s.cfg.metrics.solved(OutcomeFailure, elapsed)
		log.Info("Solver failed",
			"status", r.Status,
			"message", r.Message,
			"elapsed", elapsed)
	}
	return nil
}

// prepare validates the problem and builds every array of the solve.
func (s *Solver) prepare(log logr.Logger) (*sqp.Problem, *Layout, error) {
	p := s.problem
	if err := validate(p); err != nil {
		return nil, nil, err
	}

	layout := NewLayout(p)
	linear := buildLinearPattern(p, layout)
	nonlinear, err := buildNonlinearPattern(p, layout, representativePoint(p, layout.N))
	if err != nil {
		return nil, nil, err
	}
	s.cfg.metrics.patterns(linear.NonZeros, nonlinear.NonZeros)

	xnames, fnames := layout.VariableNames(p), layout.RowNames(p)
	bounds, err := assembleBounds(p, layout, xnames, fnames, s.cfg.BoundTolerance)
	if err != nil {
		return nil, nil, err
	}

	log.V(logging.DEBUG).Info("Built sparse layout",
		"variables", layout.N,
		"rows", layout.NF,
		"nonlinearBlocks", len(layout.Nonlinear),
		"linearBlocks", len(layout.Linear),
		"linearNonZeros", linear.NonZeros,
		"jacobianNonZeros", nonlinear.NonZeros)

	s.state = State{}
	ev := &evaluator{
		problem:  p,
		layout:   layout,
		pattern:  nonlinear,
		monitor:  s.monitor,
		state:    &s.state,
		log:      log,
		metrics:  s.cfg.metrics,
		checkTol: s.cfg.JacobianCheck,
	}

	x := p.Start()
	if x == nil {
		x = make([]float64, layout.N)
	}
	return &sqp.Problem{
		Name:   p.Name,
		N:      layout.N,
		NF:     layout.NF,
		ObjRow: 0,
		IAfun:  linear.Rows,
		JAvar:  linear.Cols,
		A:      linear.Values,
		NeA:    linear.NonZeros,
		IGfun:  nonlinear.Rows,
		JGvar:  nonlinear.Cols,
		NeG:    nonlinear.NonZeros,
		XLow:   bounds.XLow,
		XUpp:   bounds.XUpp,
		FLow:   bounds.FLow,
		FUpp:   bounds.FUpp,
		XNames: xnames,
		FNames: fnames,
		X:      x,
		Func:   ev.usrfun,
	}, layout, nil
}

// validate checks every dimension and capability before anything is evaluated.
func validate(p *problem.Problem) error {
	obj := p.Objective
	if obj == nil {
		return &ConfigurationError{Op: "validate", Subject: p.Name, Err: ErrNoObjective}
	}
	name, n := obj.Name(), obj.InputSize()
	switch {
	case n <= 0:
		return configErr("validate", name, ErrDimensionMismatch, "objective takes %d variables", n)
	case obj.OutputSize() != 1:
		return configErr("validate", name, ErrDimensionMismatch, "objective has %d outputs, want 1", obj.OutputSize())
	case p.ArgumentBounds != nil && len(p.ArgumentBounds) != n:
		return configErr("validate", "argument bounds", ErrDimensionMismatch, "%d bounds for %d variables", len(p.ArgumentBounds), n)
	case p.StartingPoint != nil && len(p.StartingPoint) != n:
		return configErr("validate", "starting point", ErrDimensionMismatch, "%d values for %d variables", len(p.StartingPoint), n)
	case p.VariableNames != nil && len(p.VariableNames) != n:
		return configErr("validate", "variable names", ErrDimensionMismatch, "%d names for %d variables", len(p.VariableNames), n)
	}
	if _, ok := obj.(problem.Differentiable); !ok {
		return configErr("validate", name, ErrNotDifferentiable, "objective has no jacobian")
	}
	for k, c := range p.Constraints {
		if err := validateConstraint(k, c, n); err != nil {
			return err
		}
	}
	return nil
}

func validateConstraint(k int, c problem.Constraint, n int) error {
	subject := fmt.Sprintf("constraint %d", k)
	switch c := c.(type) {
	case *problem.Linear:
		if c == nil || c.A == nil {
			return configErr("validate", subject, ErrDimensionMismatch, "linear constraint without matrix")
		}
		subject += " (" + c.Label + ")"
		rows, cols := c.A.Dims()
		switch {
		case cols != n:
			return configErr("validate", subject, ErrDimensionMismatch, "matrix has %d columns for %d variables", cols, n)
		case c.B != nil && len(c.B) != rows:
			return configErr("validate", subject, ErrDimensionMismatch, "%d offsets for %d rows", len(c.B), rows)
		case len(c.Bounds) != rows:
			return configErr("validate", subject, ErrDimensionMismatch, "%d bounds for %d rows", len(c.Bounds), rows)
		}
	case *problem.Nonlinear:
		if c == nil || c.Fn == nil {
			return configErr("validate", subject, ErrDimensionMismatch, "nonlinear constraint without function")
		}
		subject += " (" + c.Fn.Name() + ")"
		m := c.Fn.OutputSize()
		switch {
		case c.Fn.InputSize() != n:
			return configErr("validate", subject, ErrDimensionMismatch, "function takes %d variables, want %d", c.Fn.InputSize(), n)
		case m <= 0:
			return configErr("validate", subject, ErrDimensionMismatch, "function has %d outputs", m)
		case len(c.Bounds) != m:
			return configErr("validate", subject, ErrDimensionMismatch, "%d bounds for %d outputs", len(c.Bounds), m)
		}
		if _, ok := c.Differentiable(); !ok {
			return configErr("validate", subject, ErrNotDifferentiable, "nonlinear constraint has no jacobian")
		}
	case nil:
		return configErr("validate", subject, ErrDimensionMismatch, "nil constraint")
	default:
		panic(internalf("unknown constraint variant %T", c))
	}
	return nil
}

// IsConfigurationError reports whether err was raised before solving.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
