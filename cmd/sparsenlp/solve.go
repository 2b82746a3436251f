// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/curioloop/sparsenlp/nlp"
	"github.com/curioloop/sparsenlp/problem"
)

const keyMetrics = "metrics"

func newSolveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "solve FILE",
		Short: "Solve the problem in FILE and print the outcome as YAML",
		Args:  cobra.ExactArgs(1),
		RunE:  runSolve,
	}
	d := nlp.DefaultOptions()
	flags := cmd.Flags()
	flags.Int(nlp.KeyMaxIterations, d.MaxIterations, "major iteration limit")
	flags.Float64(nlp.KeyRelativeAccuracy, d.RelativeAccuracy, "relative objective tolerance, 0 for the solver default")
	flags.Float64(nlp.KeyAbsoluteAccuracy, d.AbsoluteAccuracy, "optimality and feasibility accuracy, 0 for the solver default")
	flags.Float64(nlp.KeyBoundTolerance, d.BoundTolerance, "tolerance for snapping near-equal and near-zero row bounds")
	flags.Float64(nlp.KeyJacobianCheck, d.JacobianCheck, "log jacobians farther than this from finite differences, 0 disables")
	flags.Bool(keyMetrics, false, "print solver metrics to stderr")
	return cmd
}

func runSolve(cmd *cobra.Command, args []string) error {
	v, err := configure(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(v)
	if err != nil {
		return err
	}
	opts, err := nlp.LoadOptions(v)
	if err != nil {
		return err
	}
	p, err := problem.LoadFile(args[0])
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	metrics, err := nlp.NewMetrics(reg)
	if err != nil {
		return err
	}
	s, err := nlp.NewSolver(p,
		nlp.WithOptions(opts),
		nlp.WithLogger(log.WithName("nlp")),
		nlp.WithMetrics(metrics))
	if err != nil {
		return err
	}
	if err := s.Solve(); err != nil {
		return err
	}

	if err := writeReport(cmd.OutOrStdout(), newReport(p, s.Result())); err != nil {
		return err
	}
	if v.GetBool(keyMetrics) {
		if err := writeMetrics(cmd.ErrOrStderr(), reg); err != nil {
			return err
		}
	}
	if se, ok := s.Result().(*nlp.SolverError); ok {
		return se
	}
	return nil
}

type namedValue struct {
	Name  string  `yaml:"name"`
	Value float64 `yaml:"value"`
}

type constraintReport struct {
	Name        string    `yaml:"name"`
	Kind        string    `yaml:"kind"`
	Values      []float64 `yaml:"values,flow"`
	Multipliers []float64 `yaml:"multipliers,flow"`
}

// report is the printed outcome of a solve.
type report struct {
	Problem     string             `yaml:"problem,omitempty"`
	Status      string             `yaml:"status"`
	Message     string             `yaml:"message,omitempty"`
	Objective   float64            `yaml:"objective"`
	Iterations  int                `yaml:"iterations"`
	Evaluations int                `yaml:"evaluations"`
	Variables   []namedValue       `yaml:"variables"`
	Constraints []constraintReport `yaml:"constraints,omitempty"`
}

func newReport(p *problem.Problem, r nlp.Result) *report {
	rep := &report{Problem: p.Name}
	var sol *nlp.Solution
	switch r := r.(type) {
	case *nlp.Solution:
		rep.Status, sol = "optimal", r
	case *nlp.SolverError:
		rep.Status, rep.Message = r.Status.String(), r.Message
		sol = r.LastState
	}
	if sol == nil {
		return rep
	}

	rep.Objective = sol.Value
	rep.Iterations, rep.Evaluations = sol.Iterations, sol.Evaluations
	for j, x := range sol.X {
		name := fmt.Sprintf("x%d", j)
		if j < len(p.VariableNames) && p.VariableNames[j] != "" {
			name = p.VariableNames[j]
		}
		rep.Variables = append(rep.Variables, namedValue{Name: name, Value: x})
	}
	for k, c := range p.Constraints {
		rep.Constraints = append(rep.Constraints, constraintReport{
			Name:        c.Name(),
			Kind:        c.Kind().String(),
			Values:      sol.ConstraintValues(k),
			Multipliers: sol.ConstraintMultipliers(k),
		})
	}
	return rep
}

func writeReport(w io.Writer, rep *report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(rep); err != nil {
		return err
	}
	return enc.Close()
}

func writeMetrics(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
