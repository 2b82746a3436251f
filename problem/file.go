// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// File is the YAML form of a problem with a quadratic objective and
// linear or quadratic constraints. Infinite bounds are written .inf / -.inf
// or left out. A start is given for every variable or for none.
//
//	name: simplex
//	variables:
//	  - {name: x0, lower: 0, upper: 10, start: 1}
//	  - {name: x1, lower: 0, upper: 10, start: 0}
//	objective:
//	  q: [[2, 0], [0, 2]]
//	constraints:
//	  - {name: sum, kind: linear, a: [[1, 1]], lower: [1], upper: [1]}
type File struct {
	Name        string           `yaml:"name"`
	Variables   []VariableSpec   `yaml:"variables"`
	Objective   QuadraticSpec    `yaml:"objective"`
	Constraints []ConstraintSpec `yaml:"constraints"`
}

type VariableSpec struct {
	Name  string   `yaml:"name"`
	Lower *float64 `yaml:"lower"`
	Upper *float64 `yaml:"upper"`
	Start *float64 `yaml:"start"`
}

// QuadraticSpec is ½𝐱ᵀ𝐐𝐱 + 𝐜ᵀ𝐱 + 𝒅 with a symmetric Q.
type QuadraticSpec struct {
	Q [][]float64 `yaml:"q,omitempty"`
	C []float64   `yaml:"c,omitempty"`
	D float64     `yaml:"d,omitempty"`
}

// ConstraintSpec is either kind linear (A, B) or kind quadratic (Q, C, D).
type ConstraintSpec struct {
	Name  string      `yaml:"name"`
	Kind  string      `yaml:"kind"`
	A     [][]float64 `yaml:"a,omitempty"`
	B     []float64   `yaml:"b,omitempty"`
	Lower []float64   `yaml:"lower,omitempty"`
	Upper []float64   `yaml:"upper,omitempty"`

	QuadraticSpec `yaml:",inline"`
}

// ErrFile reports a malformed problem file.
var ErrFile = errors.New("problem: malformed file")

// LoadFile reads a problem from the YAML file at path.
func LoadFile(path string) (*Problem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML problem from r.
func Decode(r io.Reader) (*Problem, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFile, err)
	}
	return file.Problem()
}

// Problem builds the described problem.
func (f *File) Problem() (*Problem, error) {
	n := len(f.Variables)
	if n == 0 {
		return nil, fmt.Errorf("%w: no variables", ErrFile)
	}
	obj, err := f.Objective.build("objective", n)
	if err != nil {
		return nil, err
	}

	p := New(obj)
	p.Name = f.Name
	p.ArgumentBounds = make([]Bound, n)
	p.VariableNames = make([]string, n)
	var start []float64
	given := 0
	for i, v := range f.Variables {
		p.VariableNames[i] = v.Name
		if p.VariableNames[i] == "" {
			p.VariableNames[i] = fmt.Sprintf("x%d", i)
		}
		p.ArgumentBounds[i] = Bound{orInf(v.Lower, -1), orInf(v.Upper, 1)}
		if v.Start != nil {
			if start == nil {
				start = make([]float64, n)
			}
			start[i] = *v.Start
			given++
		}
	}
	if given > 0 && given < n {
		return nil, fmt.Errorf("%w: start given for %d of %d variables", ErrFile, given, n)
	}
	p.StartingPoint = start

	for k, spec := range f.Constraints {
		c, err := spec.build(k, n)
		if err != nil {
			return nil, err
		}
		p.AddConstraint(c)
	}
	return p, nil
}

func (s *ConstraintSpec) build(k, n int) (Constraint, error) {
	name := s.Name
	if name == "" {
		name = fmt.Sprintf("constraint %d", k)
	}
	switch s.Kind {
	case "linear", "":
		a, err := matrix(name, s.A, -1, n)
		if err != nil {
			return nil, err
		}
		m, _ := a.Dims()
		if s.B != nil && len(s.B) != m {
			return nil, fmt.Errorf("%w: %s has %d offsets for %d rows", ErrFile, name, len(s.B), m)
		}
		bounds, err := s.bounds(name, m)
		if err != nil {
			return nil, err
		}
		return NewLinear(name, a, s.B, bounds), nil
	case "quadratic":
		q, err := s.QuadraticSpec.build(name, n)
		if err != nil {
			return nil, err
		}
		bounds, err := s.bounds(name, 1)
		if err != nil {
			return nil, err
		}
		return NewNonlinear(q, bounds), nil
	}
	return nil, fmt.Errorf("%w: %s has unknown kind %q", ErrFile, name, s.Kind)
}

// bounds pads absent lower and upper lists with infinities.
func (s *ConstraintSpec) bounds(name string, m int) ([]Bound, error) {
	if (s.Lower != nil && len(s.Lower) != m) || (s.Upper != nil && len(s.Upper) != m) {
		return nil, fmt.Errorf("%w: %s needs %d bounds", ErrFile, name, m)
	}
	bounds := make([]Bound, m)
	for i := range bounds {
		bounds[i] = Unbounded()
		if s.Lower != nil {
			bounds[i].Lower = s.Lower[i]
		}
		if s.Upper != nil {
			bounds[i].Upper = s.Upper[i]
		}
	}
	return bounds, nil
}

func (s *QuadraticSpec) build(name string, n int) (*Quadratic, error) {
	var q *mat.SymDense
	if s.Q != nil {
		d, err := matrix(name, s.Q, n, n)
		if err != nil {
			return nil, err
		}
		q = mat.NewSymDense(n, nil)
		for i := 0; i < n; i++ {
			for j := i; j < n; j++ {
				if d.At(i, j) != d.At(j, i) {
					return nil, fmt.Errorf("%w: %s Q is not symmetric at (%d,%d)", ErrFile, name, i, j)
				}
				q.SetSym(i, j, d.At(i, j))
			}
		}
	}
	quad, err := NewQuadratic(name, n, q, s.C, s.D)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFile, err)
	}
	return quad, nil
}

// matrix converts rows into a dense matrix; rows < 0 accepts any row count.
func matrix(name string, data [][]float64, rows, cols int) (*mat.Dense, error) {
	if len(data) == 0 || (rows >= 0 && len(data) != rows) {
		return nil, fmt.Errorf("%w: %s has %d rows", ErrFile, name, len(data))
	}
	d := mat.NewDense(len(data), cols, nil)
	for i, row := range data {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d columns, want %d", ErrFile, name, i, len(row), cols)
		}
		d.SetRow(i, row)
	}
	return d, nil
}

func orInf(v *float64, sign int) float64 {
	if v == nil {
		return math.Inf(sign)
	}
	return *v
}
