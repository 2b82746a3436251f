// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"gonum.org/v1/gonum/mat"

	"github.com/curioloop/sparsenlp/problem"
	"github.com/curioloop/sparsenlp/sqp"
)

// calibrated fails to evaluate above its range.
type calibrated struct {
	*problem.Quadratic
	limit float64
}

func (c *calibrated) Eval(x, y []float64) error {
	if x[0] > c.limit {
		return errors.New("outside calibrated range")
	}
	return c.Quadratic.Eval(x, y)
}

var _ = Describe("DifferentiableSolver", func() {
	var p *problem.Problem

	BeforeEach(func() {
		p = problem.New(quadratic("shifted", 3))
		p.Name = "one"
		p.ArgumentBounds = []problem.Bound{problem.Interval(-10, 10)}
	})

	It("should find the interior minimum", func() {
		s, err := NewDifferentiableSolver(p, WithAccuracy(0, 1e-10))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Solve()).To(Succeed())

		sol := solution(s.Solver)
		Expect(sol.X).To(HaveLen(1))
		Expect(sol.X[0]).To(BeNumerically("~", 3, 1e-8))
		Expect(sol.Value).To(BeNumerically("~", 0, 1e-12))
		Expect(sol.Constraints).To(BeEmpty())
		Expect(sol.Lambda).To(BeEmpty())
	})

	It("should stop on the bound", func() {
		p.ArgumentBounds = []problem.Bound{problem.Interval(-1, 1)}
		p.StartingPoint = []float64{-1}

		s, err := NewDifferentiableSolver(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Solve()).To(Succeed())

		sol := solution(s.Solver)
		Expect(sol.X[0]).To(BeNumerically("~", 1, 1e-12))
		Expect(sol.Value).To(BeNumerically("~", 4, 1e-10))
	})

	It("should call the monitor after every evaluation", func() {
		s, err := NewDifferentiableSolver(p)
		Expect(err).NotTo(HaveOccurred())
		calls := 0
		s.SetIterationCallback(func(got *problem.Problem, st *State) {
			Expect(got).To(BeIdenticalTo(p))
			Expect(st.X).To(HaveLen(1))
			calls++
			Expect(st.Evaluations).To(Equal(calls))
		})
		Expect(s.Solve()).To(Succeed())
		Expect(calls).To(BeNumerically(">", 0))
		Expect(solution(s.Solver).Evaluations).To(Equal(calls))
	})

	It("should report a failing evaluation as a solver error", func() {
		p.Objective = &calibrated{Quadratic: quadratic("shifted", 3), limit: 2}
		p.StartingPoint = []float64{0}

		s, err := NewDifferentiableSolver(p)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Solve()).To(Succeed())

		se := failure(s.Solver)
		Expect(se.Status).To(Equal(sqp.UserTerminated))
		Expect(se.Message).To(ContainSubstring("outside calibrated range"))
		Expect(se.LastState).NotTo(BeNil())
	})

	It("should record the solve in the metrics", func() {
		m, err := NewMetrics(prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())
		s, err := NewDifferentiableSolver(p, WithMetrics(m))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Solve()).To(Succeed())
		Expect(testutil.ToFloat64(m.solves.WithLabelValues(OutcomeSuccess))).To(Equal(1.0))
		Expect(testutil.ToFloat64(m.evaluations.WithLabelValues("jacobian"))).To(BeNumerically(">", 0))
	})

	It("should honour another backend", func() {
		backend := &spyBackend{}
		s, err := NewDifferentiableSolver(p, WithBackend(backend))
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Solve()).To(Succeed())
		Expect(backend.problem.N).To(Equal(1))
		Expect(solution(s.Solver).X[0]).To(BeNumerically("~", 3, 1e-5))
	})

	DescribeTable("should refuse problems it cannot solve",
		func(build func() *problem.Problem, sentinel error) {
			_, err := NewDifferentiableSolver(build())
			Expect(err).To(MatchError(sentinel))
			Expect(IsConfigurationError(err)).To(BeTrue())
		},
		Entry("without objective", func() *problem.Problem {
			return problem.New(nil)
		}, ErrNoObjective),
		Entry("with two variables", func() *problem.Problem {
			return problem.New(sumOfSquares(2))
		}, ErrDimensionMismatch),
		Entry("with a constraint", func() *problem.Problem {
			return problem.New(sumOfSquares(1)).AddConstraint(problem.NewLinear("cap",
				mat.NewDense(1, 1, []float64{1}), nil, []problem.Bound{problem.AtMost(1)}))
		}, ErrConstrained),
	)

	It("should refuse a constraint added after construction", func() {
		m, err := NewMetrics(prometheus.NewRegistry())
		Expect(err).NotTo(HaveOccurred())
		s, err := NewDifferentiableSolver(p, WithMetrics(m))
		Expect(err).NotTo(HaveOccurred())

		p.AddConstraint(problem.NewLinear("cap", identity(1), nil, []problem.Bound{problem.AtMost(1)}))
		Expect(s.Solve()).To(MatchError(ErrConstrained))
		Expect(s.Result()).To(BeNil())
		Expect(testutil.ToFloat64(m.solves.WithLabelValues(OutcomeConfiguration))).To(Equal(1.0))
	})
})
