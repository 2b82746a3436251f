// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package problem describes constrained nonlinear programs:
//
//	min 𝒇(𝐱)  s.t.  𝒍ᵢ ≤ 𝒄ᵢ(𝐱) ≤ 𝒖ᵢ,  𝒍 ≤ 𝐱 ≤ 𝒖
//
// where every 𝒄ᵢ is either affine (*Linear) or a general differentiable
// function (*Nonlinear).
package problem

import "slices"

// Problem is an objective with an ordered list of constraints.
// A Problem is not mutated by the solvers that consume it.
type Problem struct {
	Name      string
	Objective Function
	// Constraints are kept in insertion order.
	Constraints []Constraint
	// ArgumentBounds has one entry per variable, nil means unbounded.
	ArgumentBounds []Bound
	// StartingPoint is optional.
	StartingPoint []float64
	// VariableNames is optional.
	VariableNames []string
}

// New returns a problem minimizing objective.
func New(objective Function) *Problem {
	return &Problem{Objective: objective}
}

// AddConstraint appends c and returns p.
func (p *Problem) AddConstraint(c Constraint) *Problem {
	p.Constraints = append(p.Constraints, c)
	return p
}

// InputSize returns the number of variables, taken from the objective.
func (p *Problem) InputSize() int {
	if p.Objective == nil {
		return 0
	}
	return p.Objective.InputSize()
}

// Bound returns the bound of variable i.
func (p *Problem) Bound(i int) Bound {
	if p.ArgumentBounds == nil {
		return Unbounded()
	}
	return p.ArgumentBounds[i]
}

// Start returns a copy of the starting point, nil when absent.
func (p *Problem) Start() []float64 {
	return slices.Clone(p.StartingPoint)
}
