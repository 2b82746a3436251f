// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"errors"
	"fmt"
)

var (
	// ErrNotDifferentiable reports an objective or nonlinear constraint without Jacobian.
	ErrNotDifferentiable = errors.New("function is not differentiable")
	// ErrDimensionMismatch reports sizes that do not agree with the problem.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrInconsistentBounds reports a bound pair with lower > upper after snapping.
	ErrInconsistentBounds = errors.New("inconsistent bounds")
	// ErrNoObjective reports a problem without objective.
	ErrNoObjective = errors.New("no objective")
	// ErrConstrained reports constraints given to a solver that handles none.
	ErrConstrained = errors.New("constraints are not supported")
	// ErrReentrantSolve is returned by Solve when called from a monitor.
	ErrReentrantSolve = errors.New("solve called while solving")
)

// ConfigurationError is returned by Solve when the problem cannot be handed
// to the solver. It is always raised before the first evaluation.
type ConfigurationError struct {
	Op      string // validate, pattern or bounds
	Subject string // the offending function, constraint or variable
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Subject == "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Subject, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func configErr(op, subject string, sentinel error, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{
		Op:      op,
		Subject: subject,
		Err:     fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...)),
	}
}

// PatternError reports a Jacobian entry missing from the pattern recorded
// before the solve. It stops the solve with a failure result.
type PatternError struct {
	Function string
	Row, Col int // combined row and variable
	Value    float64
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("jacobian of %s has entry (%d,%d) = %g outside the recorded sparsity pattern",
		e.Function, e.Row, e.Col, e.Value)
}

// InternalError is panicked when the adapter breaks one of its own invariants.
type InternalError struct {
	Msg string
}

func (e *InternalError) Error() string { return "sparsenlp internal error: " + e.Msg }

func internalf(format string, args ...any) *InternalError {
	return &InternalError{Msg: fmt.Sprintf(format, args...)}
}
