// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"fmt"
	"slices"

	"gonum.org/v1/gonum/mat"
)

// Entry is one stored element of a sparse Jacobian.
type Entry struct {
	Row, Col int
	Val      float64
}

// Jacobian is a sparse rows×cols derivative matrix in coordinate form.
//
// Every stored entry is a structural nonzero, even when its value is 0:
// the sparsity pattern of a solve is discovered from the stored entries
// and not from the values.
type Jacobian struct {
	rows, cols int
	entries    []Entry
	compressed bool
}

// NewJacobian returns an empty rows×cols Jacobian.
func NewJacobian(rows, cols int) *Jacobian {
	if rows <= 0 || cols <= 0 {
		panic(fmt.Sprintf("problem: bad jacobian shape %d×%d", rows, cols))
	}
	return &Jacobian{rows: rows, cols: cols, compressed: true}
}

// DenseJacobian stores every element of the row-major data, zeros included.
func DenseJacobian(rows, cols int, data []float64) *Jacobian {
	if len(data) != rows*cols {
		panic(fmt.Sprintf("problem: %d values for a %d×%d jacobian", len(data), rows, cols))
	}
	j := NewJacobian(rows, cols)
	j.entries = make([]Entry, 0, len(data))
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			j.entries = append(j.entries, Entry{r, c, data[r*cols+c]})
		}
	}
	return j
}

// JacobianFromMatrix stores the nonzero elements of m.
func JacobianFromMatrix(m mat.Matrix) *Jacobian {
	r, c := m.Dims()
	j := NewJacobian(r, c)
	for i := 0; i < r; i++ {
		for k := 0; k < c; k++ {
			if v := m.At(i, k); v != 0 {
				j.entries = append(j.entries, Entry{i, k, v})
			}
		}
	}
	return j
}

// Dims returns the shape of the Jacobian.
func (j *Jacobian) Dims() (rows, cols int) {
	return j.rows, j.cols
}

// Set stores v at (row, col). Storing the same position twice accumulates.
func (j *Jacobian) Set(row, col int, v float64) {
	if row < 0 || row >= j.rows || col < 0 || col >= j.cols {
		panic(fmt.Sprintf("problem: jacobian index (%d,%d) out of range %d×%d", row, col, j.rows, j.cols))
	}
	if n := len(j.entries); n > 0 {
		last := j.entries[n-1]
		if last.Row > row || (last.Row == row && last.Col >= col) {
			j.compressed = false
		}
	}
	j.entries = append(j.entries, Entry{row, col, v})
}

// NonZeros returns the number of stored entries.
func (j *Jacobian) NonZeros() int {
	return len(j.entries)
}

// Entries returns the stored entries. The slice is owned by j.
func (j *Jacobian) Entries() []Entry {
	return j.entries
}

// Compress orders the entries row-major and sums duplicates.
func (j *Jacobian) Compress() *Jacobian {
	if j.compressed {
		return j
	}
	slices.SortStableFunc(j.entries, func(a, b Entry) int {
		if a.Row != b.Row {
			return a.Row - b.Row
		}
		return a.Col - b.Col
	})
	out := j.entries[:0]
	for _, e := range j.entries {
		if n := len(out); n > 0 && out[n-1].Row == e.Row && out[n-1].Col == e.Col {
			out[n-1].Val += e.Val
			continue
		}
		out = append(out, e)
	}
	j.entries = out
	j.compressed = true
	return j
}

// Dense expands the Jacobian into a gonum matrix.
func (j *Jacobian) Dense() *mat.Dense {
	d := mat.NewDense(j.rows, j.cols, nil)
	for _, e := range j.entries {
		d.Set(e.Row, e.Col, d.At(e.Row, e.Col)+e.Val)
	}
	return d
}
