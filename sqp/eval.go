// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sqp

import (
	"errors"
	"math"
	"slices"

	"github.com/go-logr/logr"
)

var errUserPanic = errors.New("sqp: user function panicked")

// evaluation caches the last callback results keyed on x.
type evaluation struct {
	p *Problem

	x, arg []float64
	f, g   []float64 // callback output
	F      []float64 // f + 𝐀𝐱
	jac    []float64 // ∂F/∂𝐱 row-major NF×N

	hasF, hasG bool
	first      bool
	evals      int

	err      error
	panicked bool
	panicVal any
}

func newEvaluation(p *Problem) *evaluation {
	e := &evaluation{
		p:     p,
		x:     make([]float64, p.N),
		arg:   make([]float64, p.N),
		f:     make([]float64, p.NF),
		g:     make([]float64, p.NeG),
		F:     make([]float64, p.NF),
		jac:   make([]float64, p.NF*p.N),
		first: true,
	}
	for i := range e.x {
		e.x[i] = math.NaN()
	}
	return e
}

// at makes F (and jac when needG is set) hold the values at x.
func (e *evaluation) at(x []float64, needG bool) error {
	if e.err != nil {
		return e.err
	}
	if !slices.Equal(x, e.x) {
		copy(e.x, x)
		e.hasF, e.hasG = false, false
	}
	needF := !e.hasF
	needG = needG && !e.hasG
	if !needF && !needG {
		return nil
	}

	status := Normal
	if e.first {
		status, e.first = First, false
	}
	if needF {
		clear(e.f)
	}
	if needG {
		clear(e.g)
	}
	if err := e.call(status, needF, needG); err != nil {
		e.err = err
		return err
	}
	e.evals++

	p, n := e.p, e.p.N
	if needF {
		copy(e.F, e.f)
		for k := 0; k < p.NeA; k++ {
			e.F[p.IAfun[k]] += p.A[k] * e.x[p.JAvar[k]]
		}
		e.hasF = true
	}
	if needG {
		clear(e.jac)
		for k := 0; k < p.NeG; k++ {
			e.jac[p.IGfun[k]*n+p.JGvar[k]] += e.g[k]
		}
		for k := 0; k < p.NeA; k++ {
			e.jac[p.IAfun[k]*n+p.JAvar[k]] += p.A[k]
		}
		e.hasG = true
	}
	return nil
}

func (e *evaluation) call(status CallStatus, needF, needG bool) (err error) {
	defer func() {
		if v := recover(); v != nil {
			e.panicked, e.panicVal = true, v
			err = errUserPanic
		}
	}()
	copy(e.arg, e.x)
	return e.p.Func(status, e.arg, needF, e.f, needG, e.g)
}

// value and gradient panic on callback failure so that the engine unwinds;
// the failure itself is kept in e.
func (e *evaluation) value(x []float64, row int) float64 {
	if err := e.at(x, false); err != nil {
		panic(err)
	}
	return e.F[row]
}

func (e *evaluation) gradient(x []float64, row int, sign float64, d []float64) {
	if err := e.at(x, true); err != nil {
		panic(err)
	}
	n := e.p.N
	for j, v := range e.jac[row*n : (row+1)*n] {
		d[j] = sign * v
	}
}

// rethrow re-raises a panic of the user function once the engine has unwound.
func (e *evaluation) rethrow() {
	if e.panicked {
		panic(e.panicVal)
	}
}

// finish evaluates out.X and fills the rows and the infeasibility of out.
// The Jacobian is evaluated too when needG is set.
func (e *evaluation) finish(out *Output, needG bool, tol float64) {
	p := e.p
	out.F = make([]float64, p.NF)
	out.Fmul = make([]float64, p.NF)

	if e.err == nil {
		if err := e.at(out.X, needG); err != nil {
			e.rethrow()
			out.Status, out.Message = UserTerminated, err.Error()
		}
	}
	if e.hasF && slices.Equal(e.x, out.X) {
		copy(out.F, e.F)
		out.Ninf, out.Sinf = infeasibility(p, out.X, out.F, tol)
	} else {
		for i := range out.F {
			out.F[i] = math.NaN()
		}
	}
	out.F[p.ObjRow] += p.ObjAdd
	out.Evaluations = e.evals
}

// notify sends the Final call. Its error is logged and otherwise ignored.
func notify(p *Problem, out *Output, log logr.Logger) {
	if err := p.Func(Final, slices.Clone(out.X), false, make([]float64, p.NF), false, make([]float64, p.NeG)); err != nil {
		log.Error(err, "Final notification failed")
	}
}

// infeasibility counts the rows and variables outside their bounds by more than tol.
func infeasibility(p *Problem, x, f []float64, tol float64) (ninf int, sinf float64) {
	add := func(v, lo, hi float64) {
		if d := max(lo-v, v-hi, 0); d > tol {
			ninf++
			sinf += d
		}
	}
	for j, v := range x {
		add(v, p.XLow[j], p.XUpp[j])
	}
	for i, v := range f {
		if i != p.ObjRow {
			add(v, p.FLow[i], p.FUpp[i])
		}
	}
	return
}
