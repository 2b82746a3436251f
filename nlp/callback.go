// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/curioloop/sparsenlp/internal/logging"
	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// State is the solver state published to the monitor.
type State struct {
	// X is a copy of the last evaluated point.
	X []float64
	// Evaluations counts the callback invocations of the current solve.
	Evaluations int
}

// Monitor is called after every evaluation on the solving goroutine.
// It must not modify the problem or the state, nor call Solve.
type Monitor func(p *problem.Problem, s *State)

// evaluator fills the rows and Jacobian values requested by the solver
// following layout and pattern. Its usrfun method is the sqp.UserFunc of a solve.
type evaluator struct {
	problem *problem.Problem
	layout  *Layout
	pattern *NonlinearPattern
	monitor Monitor
	state   *State

	log      logr.Logger
	metrics  *Metrics
	checkTol float64
}

var _ sqp.UserFunc = (*evaluator)(nil).usrfun

func (e *evaluator) usrfun(status sqp.CallStatus, x []float64, needF bool, f []float64, needG bool, g []float64) error {
	if status.IsFinal() {
		return nil
	}
	if needF {
		if err := e.values(x, f); err != nil {
			return err
		}
	}
	if needG {
		if err := e.jacobians(x, g); err != nil {
			return err
		}
	}
	if needF || needG {
		e.publish(x)
		e.log.V(logging.TRACE).Info("Evaluated",
			"status", status,
			"needF", needF,
			"needG", needG,
			"evaluations", e.state.Evaluations)
	}
	return nil
}

// values writes the objective into row 0 and every nonlinear constraint into
// its block. Linear rows are left to the constant pattern.
func (e *evaluator) values(x, f []float64) error {
	for _, s := range e.pattern.spans {
		if err := s.fn.Eval(x, f[s.row:s.row+s.size]); err != nil {
			return fmt.Errorf("evaluate %s: %w", s.label, err)
		}
	}
	e.metrics.evaluated("value")
	return nil
}

// jacobians writes every slot of the nonlinear pattern, in pattern order.
func (e *evaluator) jacobians(x, g []float64) error {
	written := 0
	for _, s := range e.pattern.spans {
		jac, err := s.fn.Jacobian(x)
		if err != nil {
			return fmt.Errorf("jacobian of %s: %w", s.label, err)
		}
		if r, c := jac.Dims(); r != s.size || c != e.layout.N {
			return fmt.Errorf("jacobian of %s is %d×%d, want %d×%d", s.label, r, c, s.size, e.layout.N)
		}
		n, err := e.fill(s, jac.Compress().Entries(), g)
		if err != nil {
			return err
		}
		written += n
		if e.checkTol > 0 {
			e.check(s, x)
		}
	}
	if written != e.pattern.NonZeros {
		panic(internalf("wrote %d jacobian entries, pattern has %d", written, e.pattern.NonZeros))
	}
	e.metrics.evaluated("jacobian")
	return nil
}

// fill merges the row-major entries of one function into its span. Slots
// without an entry are zeroed. A nonzero entry without slot is an error.
func (e *evaluator) fill(s span, entries []problem.Entry, g []float64) (int, error) {
	rows, cols := e.pattern.Rows, e.pattern.Cols
	k, n := s.start, 0
	for _, en := range entries {
		r := s.row + en.Row
		for ; k < s.end && (rows[k] < r || (rows[k] == r && cols[k] < en.Col)); k++ {
			g[k] = 0
			n++
		}
		if k < s.end && rows[k] == r && cols[k] == en.Col {
			g[k] = en.Val
			k, n = k+1, n+1
			continue
		}
		if en.Val != 0 {
			return n, &PatternError{Function: s.label, Row: r, Col: en.Col, Value: en.Val}
		}
	}
	for ; k < s.end; k++ {
		g[k] = 0
		n++
	}
	return n, nil
}

func (e *evaluator) check(s span, x []float64) {
	maxErr, err := problem.CheckJacobian(s.fn, x)
	switch {
	case err != nil:
		e.log.Error(err, "Jacobian check failed", "function", s.label)
	case maxErr > e.checkTol:
		e.log.Error(nil, "Jacobian does not match finite differences",
			"function", s.label,
			"maxError", maxErr,
			"tolerance", e.checkTol)
	}
}

func (e *evaluator) publish(x []float64) {
	e.state.Evaluations++
	e.state.X = append(e.state.X[:0], x...)
	if e.monitor != nil {
		e.monitor(e.problem, e.state)
	}
}
