// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"github.com/go-logr/logr"

	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// DifferentiableSolver minimises a differentiable function of one variable
// over its argument bound [a, b]. It runs the sqp.LBFGSB backend unless
// WithBackend selects another one.
//
// The relative and absolute accuracies map to the objective reduction and
// the projected gradient tolerances. The monitor, the options and the
// results are those of Solver.
type DifferentiableSolver struct {
	*Solver
}

// NewDifferentiableSolver returns a solver for p. It fails with a
// *ConfigurationError unless the objective takes exactly one variable and
// p has no constraint.
func NewDifferentiableSolver(p *problem.Problem, opts ...Option) (*DifferentiableSolver, error) {
	if err := oneVariable(p); err != nil {
		return nil, err
	}
	s, err := newSolver(p, opts, func(log logr.Logger) sqp.Solver {
		return sqp.LBFGSB{Logger: log.WithName("lbfgsb")}
	})
	if err != nil {
		return nil, err
	}
	return &DifferentiableSolver{Solver: s}, nil
}

// Solve checks again that the problem has a single variable and no
// constraint, then behaves like Solver.Solve.
func (d *DifferentiableSolver) Solve() error {
	if err := oneVariable(d.problem); err != nil {
		d.cfg.metrics.solved(OutcomeConfiguration, 0)
		d.cfg.log.Error(err, "Rejected problem", "problem", d.problem.Name)
		return err
	}
	return d.Solver.Solve()
}

func oneVariable(p *problem.Problem) error {
	if p == nil || p.Objective == nil {
		return &ConfigurationError{Op: "validate", Err: ErrNoObjective}
	}
	obj := p.Objective
	if n := obj.InputSize(); n != 1 {
		return configErr("validate", obj.Name(), ErrDimensionMismatch, "objective takes %d variables, want 1", n)
	}
	if k := len(p.Constraints); k > 0 {
		return configErr("validate", "constraints", ErrConstrained, "%d constraints given", k)
	}
	return nil
}
