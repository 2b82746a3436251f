// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package problem

import (
	"fmt"
	"math"
	"slices"

	"github.com/curioloop/optimizer/numdiff"
)

type finiteDifference struct {
	Function
	method numdiff.Method
}

// FiniteDifference gives fn a Jacobian approximated by finite differences.
// Every element of the approximation is stored, so the sparsity pattern is dense.
func FiniteDifference(fn Function, method numdiff.Method) Differentiable {
	return &finiteDifference{Function: fn, method: method}
}

func (f *finiteDifference) Jacobian(x []float64) (*Jacobian, error) {
	data, err := approximate(f.Function, f.method, x)
	if err != nil {
		return nil, err
	}
	return DenseJacobian(f.OutputSize(), f.InputSize(), data), nil
}

// approximate returns the row-major m×n difference quotient of fn at x.
// x is not modified.
func approximate(fn Function, method numdiff.Method, x []float64) ([]float64, error) {
	var evalErr error
	spec := numdiff.ApproxSpec{
		N:      fn.InputSize(),
		M:      fn.OutputSize(),
		Method: method,
		Object: func(x, y []float64) {
			if err := fn.Eval(x, y); err != nil && evalErr == nil {
				evalErr = err
			}
		},
	}
	data := make([]float64, spec.N*spec.M)
	if err := spec.Diff(slices.Clone(x), data); err != nil {
		return nil, fmt.Errorf("approximate %s jacobian: %w", fn.Name(), err)
	}
	if evalErr != nil {
		return nil, evalErr
	}
	return data, nil
}

// CheckJacobian compares the analytic Jacobian of fn at x with a central
// difference approximation and returns the largest scaled deviation.
func CheckJacobian(fn Differentiable, x []float64) (float64, error) {
	jac, err := fn.Jacobian(x)
	if err != nil {
		return 0, err
	}
	approx, err := approximate(fn, numdiff.Central, x)
	if err != nil {
		return 0, err
	}
	return maxError(jac.Dense().RawMatrix().Data, approx), nil
}

// maxError is the largest |analytic - approx| scaled by max(1, |approx|).
// A NaN deviation wins.
func maxError(analytic, approx []float64) float64 {
	worst := 0.0
	for i, a := range approx {
		e := math.Abs(analytic[i]-a) / math.Max(1, math.Abs(a))
		if e > worst || math.IsNaN(e) {
			worst = e
		}
	}
	return worst
}
