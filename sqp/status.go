// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import "fmt"

// Status classifies how a solve ended.
type Status int

const (
	// Optimal is a point satisfying the optimality conditions to the accuracy.
	Optimal Status = iota
	// IterationLimit is reported when the iteration or evaluation budget ran out.
	IterationLimit
	// Infeasible is reported when the linearised constraints have no solution.
	Infeasible
	// LineSearchFailure is reported when no step decreases the merit function.
	LineSearchFailure
	// NumericalDifficulty covers the remaining engine failures.
	NumericalDifficulty
	// UserTerminated is reported when the user function returned an error.
	UserTerminated
	// InvalidInput is reported when the engine refused the problem or an evaluation.
	InvalidInput
)

var statusText = map[Status]string{
	Optimal:             "optimal",
	IterationLimit:      "iteration limit",
	Infeasible:          "infeasible",
	LineSearchFailure:   "line search failure",
	NumericalDifficulty: "numerical difficulty",
	UserTerminated:      "terminated by user function",
	InvalidInput:        "invalid input",
}

// Success reports whether the status is an optimal point.
func (s Status) Success() bool { return s == Optimal }

func (s Status) String() string {
	if t, ok := statusText[s]; ok {
		return t
	}
	return fmt.Sprintf("status(%d)", int(s))
}
