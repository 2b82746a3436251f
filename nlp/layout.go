// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"fmt"

	"github.com/curioloop/sparsenlp/problem"
)

// Block is the range of combined rows owned by one constraint.
type Block struct {
	Index      int // position in Problem.Constraints
	Constraint problem.Constraint
	Row, Size  int
}

// Layout is the combined row order of a solve:
//
//	row 0                objective
//	rows 1 …             nonlinear constraints, in list order
//	remaining rows       linear constraints, in list order
type Layout struct {
	N  int // variables
	NF int // rows

	Nonlinear []Block
	Linear    []Block
	blocks    []Block // in constraint order
}

// NewLayout computes the row layout of p. p must have been validated.
func NewLayout(p *problem.Problem) *Layout {
	l := &Layout{N: p.InputSize(), blocks: make([]Block, len(p.Constraints))}
	row := 1
	place := func(kind problem.Kind) []Block {
		var out []Block
		for k, c := range p.Constraints {
			if c.Kind() != kind {
				continue
			}
			b := Block{Index: k, Constraint: c, Row: row, Size: c.OutputSize()}
			row += b.Size
			l.blocks[k] = b
			out = append(out, b)
		}
		return out
	}
	l.Nonlinear = place(problem.KindNonlinear)
	l.Linear = place(problem.KindLinear)
	l.NF = row
	return l
}

// Block returns the rows of constraint k.
func (l *Layout) Block(k int) Block {
	return l.blocks[k]
}

// Rows returns the number of constraint rows, the objective excluded.
func (l *Layout) Rows() int {
	return l.NF - 1
}

// RowNames returns "<kind>, <name>, Output variable <i>" for every row.
func (l *Layout) RowNames(p *problem.Problem) []string {
	names := make([]string, l.NF)
	names[0] = rowName("cost", p.Objective.Name(), 0)
	for _, blocks := range [][]Block{l.Nonlinear, l.Linear} {
		for _, b := range blocks {
			for i := 0; i < b.Size; i++ {
				names[b.Row+i] = rowName(b.Constraint.Kind().String(), b.Constraint.Name(), i)
			}
		}
	}
	return names
}

// VariableNames returns the problem's names or "variable <i>".
func (l *Layout) VariableNames(p *problem.Problem) []string {
	names := make([]string, l.N)
	for j := range names {
		if p.VariableNames != nil && p.VariableNames[j] != "" {
			names[j] = p.VariableNames[j]
		} else {
			names[j] = fmt.Sprintf("variable %d", j)
		}
	}
	return names
}

func rowName(kind, name string, i int) string {
	return fmt.Sprintf("%s, %s, Output variable %d", kind, name, i)
}
