// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"errors"

	"github.com/curioloop/optimizer/numdiff"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// quadratic is Σ (xᵢ - cᵢ)² up to a constant.
func quadratic(label string, centre ...float64) *problem.Quadratic {
	n := len(centre)
	q := mat.NewSymDense(n, nil)
	c := make([]float64, n)
	d := 0.0
	for i, v := range centre {
		q.SetSym(i, i, 2)
		c[i] = -2 * v
		d += v * v
	}
	f, err := problem.NewQuadratic(label, n, q, c, d)
	Expect(err).NotTo(HaveOccurred())
	return f
}

func rosenbrock() *problem.DiffFunc {
	return diffFunc("rosenbrock", 2, 1,
		func(x, y []float64) {
			a, b := 1-x[0], x[1]-x[0]*x[0]
			y[0] = a*a + 100*b*b
		},
		func(x []float64, jac *problem.Jacobian) {
			b := x[1] - x[0]*x[0]
			jac.Set(0, 0, -2*(1-x[0])-400*x[0]*b)
			jac.Set(0, 1, 200*b)
		})
}

// spyBackend runs slsqp and keeps the problem it was handed.
type spyBackend struct {
	sqp.SLSQP
	problem *sqp.Problem
}

func (b *spyBackend) Solve(p *sqp.Problem, s sqp.Settings) (*sqp.Output, error) {
	b.problem = p
	return b.SLSQP.Solve(p, s)
}

func solution(s *Solver) *Solution {
	GinkgoHelper()
	Expect(s.Result()).To(BeAssignableToTypeOf(&Solution{}))
	return s.Result().(*Solution)
}

func failure(s *Solver) *SolverError {
	GinkgoHelper()
	Expect(s.Result()).To(BeAssignableToTypeOf(&SolverError{}))
	return s.Result().(*SolverError)
}

var _ = Describe("Solver", func() {
	Context("with a bounded one dimensional objective", func() {
		It("should find the interior minimum", func() {
			p := problem.New(quadratic("shifted", 3))
			p.ArgumentBounds = []problem.Bound{problem.Interval(-10, 10)}
			p.StartingPoint = []float64{0}

			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Result()).To(BeNil())
			Expect(s.Solve()).To(Succeed())

			sol := solution(s)
			Expect(sol.X[0]).To(BeNumerically("~", 3, 1e-4))
			Expect(sol.Value).To(BeNumerically("~", 0, 1e-6))
			Expect(sol.Constraints).To(BeEmpty())
			Expect(sol.Iterations).To(BeNumerically(">", 0))
		})
	})

	Context("with a linear equality", func() {
		var (
			backend *spyBackend
			s       *Solver
		)

		BeforeEach(func() {
			p := problem.New(sumOfSquares(2)).AddConstraint(problem.NewLinear("sum",
				mat.NewDense(1, 2, []float64{1, 1}), nil, []problem.Bound{problem.Equal(1)}))
			p.ArgumentBounds = []problem.Bound{problem.Interval(0, 10), problem.Interval(0, 10)}

			backend = &spyBackend{}
			var err error
			s, err = NewSolver(p, WithBackend(backend))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())
		})

		It("should hand the constraint over as a linear row", func() {
			Expect(backend.problem.NF).To(Equal(2))
			Expect(backend.problem.FLow[1]).To(Equal(1.0))
			Expect(backend.problem.FUpp[1]).To(Equal(1.0))
			Expect(backend.problem.IAfun).To(Equal([]int{1, 1}))
			Expect(backend.problem.JAvar).To(Equal([]int{0, 1}))
			Expect(backend.problem.IGfun).To(Equal([]int{0, 0}))
		})

		It("should split the sum evenly", func() {
			sol := solution(s)
			Expect(sol.X[0]).To(BeNumerically("~", 0.5, 1e-5))
			Expect(sol.X[1]).To(BeNumerically("~", 0.5, 1e-5))
			Expect(sol.ConstraintValues(0)[0]).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.ConstraintMultipliers(0)[0]).To(BeNumerically("~", 1, 1e-4))
		})
	})

	Context("with a constant objective", func() {
		It("should report zero multipliers", func() {
			flat := diffFunc("flat", 2, 1, func(x, y []float64) { y[0] = 0 }, func([]float64, *problem.Jacobian) {})
			p := problem.New(flat).AddConstraint(problem.NewLinear("sum",
				mat.NewDense(1, 2, []float64{1, 1}), nil, []problem.Bound{problem.Equal(1)}))

			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())

			sol := solution(s)
			Expect(sol.ConstraintValues(0)[0]).To(BeNumerically("~", 1, 1e-6))
			Expect(sol.Lambda).To(HaveLen(1))
			Expect(sol.Lambda[0]).To(BeNumerically("~", 0, 1e-12))
		})
	})

	Context("with a nonlinear constraint", func() {
		It("should satisfy the active constraint", func() {
			// min (x₀-2)² + (x₁-2)² s.t. x₀² + x₁² ≤ 2
			ring := diffFunc("ring", 2, 1,
				func(x, y []float64) { y[0] = x[0]*x[0] + x[1]*x[1] },
				func(x []float64, jac *problem.Jacobian) {
					jac.Set(0, 0, 2*x[0])
					jac.Set(0, 1, 2*x[1])
				})
			p := problem.New(quadratic("target", 2, 2)).
				AddConstraint(problem.NewNonlinear(ring, []problem.Bound{problem.AtMost(2)}))
			p.StartingPoint = []float64{0.5, 0}

			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())

			sol := solution(s)
			Expect(sol.X[0]).To(BeNumerically("~", 1, 1e-4))
			Expect(sol.X[1]).To(BeNumerically("~", 1, 1e-4))
			Expect(sol.Value).To(BeNumerically("~", 2, 1e-4))
			Expect(sol.ConstraintValues(0)[0]).To(BeNumerically("~", 2, 1e-5))
			// an active upper bound has a nonpositive multiplier
			Expect(sol.ConstraintMultipliers(0)[0]).To(BeNumerically("<", 0))
		})
	})

	Context("with a constraint that has no jacobian", func() {
		It("should refuse to solve", func() {
			backend := &recordingBackend{}
			plain := &problem.Func{Label: "plain", In: 2, Out: 1, F: func(x, y []float64) { y[0] = x[0] }}
			p := problem.New(sumOfSquares(2)).
				AddConstraint(problem.NewNonlinear(plain, []problem.Bound{problem.AtLeast(0)}))

			s, err := NewSolver(p, WithBackend(backend))
			Expect(err).NotTo(HaveOccurred())
			err = s.Solve()
			Expect(err).To(MatchError(ErrNotDifferentiable))
			Expect(IsConfigurationError(err)).To(BeTrue())
			Expect(err.Error()).To(ContainSubstring("plain"))
			Expect(backend.calls).To(BeZero())
			Expect(s.Result()).To(BeNil())
		})

		It("should accept a finite difference wrapper", func() {
			plain := &problem.Func{Label: "plain", In: 2, Out: 1, F: func(x, y []float64) { y[0] = x[0] + x[1] }}
			p := problem.New(sumOfSquares(2)).
				AddConstraint(problem.NewNonlinear(problem.FiniteDifference(plain, numdiff.Central), []problem.Bound{problem.AtLeast(2)}))

			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())
			sol := solution(s)
			Expect(sol.X[0]).To(BeNumerically("~", 1, 1e-4))
			Expect(sol.X[1]).To(BeNumerically("~", 1, 1e-4))
		})
	})

	Context("when the solver does not converge", func() {
		It("should report the iteration limit", func() {
			p := problem.New(rosenbrock())
			p.StartingPoint = []float64{-1.2, 1}

			s, err := NewSolver(p, WithMaxIterations(1))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())

			se := failure(s)
			Expect(se.Status).To(Equal(sqp.IterationLimit))
			Expect(se.Message).NotTo(BeEmpty())
			Expect(se.LastState).NotTo(BeNil())
			Expect(se.LastState.X).To(HaveLen(2))
		})

		It("should carry a canned failure through", func() {
			backend := &recordingBackend{out: &sqp.Output{
				X:       []float64{0},
				F:       []float64{4},
				Fmul:    []float64{0},
				Status:  sqp.NumericalDifficulty,
				Message: "singular",
			}}
			s, err := NewSolver(problem.New(sumOfSquares(1)), WithBackend(backend))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())
			Expect(failure(s)).To(MatchError(ContainSubstring("singular")))
		})

		It("should report a rejected problem", func() {
			backend := &recordingBackend{err: errors.New("too many equality constraints")}
			s, err := NewSolver(problem.New(sumOfSquares(1)), WithBackend(backend))
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())

			se := failure(s)
			Expect(se.Status).To(Equal(sqp.InvalidInput))
			Expect(se.Message).To(Equal("too many equality constraints"))
		})
	})

	Context("when a jacobian leaves its pattern", func() {
		It("should stop with a pattern error", func() {
			p := problem.New(quadratic("offset", 1, 1)).
				AddConstraint(problem.NewNonlinear(drifting(1), []problem.Bound{problem.Unbounded()}))

			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())

			se := failure(s)
			Expect(se.Status).To(Equal(sqp.UserTerminated))
			Expect(se.Message).To(ContainSubstring("outside the recorded sparsity pattern"))
		})
	})

	Context("with a monitor", func() {
		var p *problem.Problem

		BeforeEach(func() {
			p = problem.New(sumOfSquares(2)).AddConstraint(problem.NewLinear("sum",
				mat.NewDense(1, 2, []float64{1, 1}), nil, []problem.Bound{problem.Equal(2)}))
		})

		It("should be called once per evaluation", func() {
			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			calls := 0
			s.SetIterationCallback(func(got *problem.Problem, st *State) {
				Expect(got).To(BeIdenticalTo(p))
				calls++
				Expect(st.Evaluations).To(Equal(calls))
			})
			Expect(s.Solve()).To(Succeed())

			sol := solution(s)
			Expect(calls).To(BeNumerically(">", 0))
			Expect(sol.Evaluations).To(Equal(calls))
			Expect(s.SolverState().Evaluations).To(Equal(calls))
		})

		It("should not let the monitor solve again", func() {
			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			var nested []error
			s.SetIterationCallback(func(*problem.Problem, *State) {
				nested = append(nested, s.Solve())
			})
			Expect(s.Solve()).To(Succeed())

			Expect(nested).NotTo(BeEmpty())
			for _, err := range nested {
				Expect(err).To(MatchError(ErrReentrantSolve))
			}
			Expect(solution(s).X[0]).To(BeNumerically("~", 1, 1e-5))
		})

		It("should reset the state on every solve", func() {
			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())
			first := s.SolverState().Evaluations
			Expect(s.Solve()).To(Succeed())
			Expect(s.SolverState().Evaluations).To(Equal(first))
		})
	})

	Context("with an invalid problem", func() {
		DescribeTable("should return a configuration error",
			func(build func() *problem.Problem, sentinel error, subject string) {
				backend := &recordingBackend{}
				s, err := NewSolver(build(), WithBackend(backend))
				Expect(err).NotTo(HaveOccurred())

				err = s.Solve()
				Expect(err).To(MatchError(sentinel))
				var ce *ConfigurationError
				Expect(errors.As(err, &ce)).To(BeTrue())
				Expect(ce.Subject).To(ContainSubstring(subject))
				Expect(backend.calls).To(BeZero())
				Expect(s.Result()).To(BeNil())
			},
			Entry("without objective", func() *problem.Problem {
				return problem.New(nil)
			}, ErrNoObjective, ""),
			Entry("with a vector objective", func() *problem.Problem {
				return problem.New(diffFunc("vector", 2, 2, func(x, y []float64) {}, func([]float64, *problem.Jacobian) {}))
			}, ErrDimensionMismatch, "vector"),
			Entry("with a short matrix", func() *problem.Problem {
				return problem.New(sumOfSquares(3)).AddConstraint(problem.NewLinear("narrow",
					mat.NewDense(1, 2, []float64{1, 1}), nil, []problem.Bound{problem.AtLeast(0)}))
			}, ErrDimensionMismatch, "narrow"),
			Entry("with missing row bounds", func() *problem.Problem {
				return problem.New(sumOfSquares(2)).AddConstraint(problem.NewLinear("rows",
					identity(2), nil, []problem.Bound{problem.AtLeast(0)}))
			}, ErrDimensionMismatch, "rows"),
			Entry("with a short starting point", func() *problem.Problem {
				p := problem.New(sumOfSquares(2))
				p.StartingPoint = []float64{1}
				return p
			}, ErrDimensionMismatch, "starting point"),
			Entry("with a nil constraint", func() *problem.Problem {
				return problem.New(sumOfSquares(2)).AddConstraint(nil)
			}, ErrDimensionMismatch, "constraint 0"),
			Entry("with empty row bounds", func() *problem.Problem {
				return problem.New(sumOfSquares(1)).AddConstraint(problem.NewLinear("empty",
					identity(1), nil, []problem.Bound{problem.Interval(1, 0)}))
			}, ErrInconsistentBounds, "empty"),
			Entry("with empty variable bounds", func() *problem.Problem {
				p := problem.New(sumOfSquares(1))
				p.ArgumentBounds = []problem.Bound{problem.Interval(2, 1)}
				return p
			}, ErrInconsistentBounds, "variable 0"),
		)

		It("should keep the previous result", func() {
			p := problem.New(sumOfSquares(1))
			s, err := NewSolver(p)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Solve()).To(Succeed())
			before := s.Result()
			Expect(before).NotTo(BeNil())

			p.ArgumentBounds = []problem.Bound{problem.Interval(2, 1)}
			Expect(s.Solve()).To(MatchError(ErrInconsistentBounds))
			Expect(s.Result()).To(BeIdenticalTo(before))
		})
	})

	It("should reject a nil problem", func() {
		_, err := NewSolver(nil)
		Expect(err).To(MatchError(ErrNoObjective))
	})
})
