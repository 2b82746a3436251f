// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package nlp

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-logr/logr"
	"github.com/spf13/viper"

	"github.com/curioloop/sparsenlp/sqp"
)

// Option keys, shared by viper configuration and command line flags.
const (
	KeyMaxIterations    = "max-iterations"
	KeyRelativeAccuracy = "relative-accuracy"
	KeyAbsoluteAccuracy = "absolute-accuracy"
	KeyBoundTolerance   = "bound-tolerance"
	KeyJacobianCheck    = "jacobian-check"
)

// DefaultMaxIterations is the default major iteration limit.
const DefaultMaxIterations = 30

// ErrInvalidOption reports an option value out of range.
var ErrInvalidOption = errors.New("invalid option")

// Options are the named solve parameters. Zero accuracies select the
// solver defaults.
type Options struct {
	MaxIterations int `mapstructure:"max-iterations"`
	// RelativeAccuracy stops the solve once an iteration changes the
	// objective by less than it. The sqp.SLSQP backend compares the absolute
	// change |fₖ₊₁ - fₖ|, sqp.LBFGSB the change relative to max(|f|, 1).
	RelativeAccuracy float64 `mapstructure:"relative-accuracy"`
	// AbsoluteAccuracy is the optimality and feasibility accuracy, the
	// projected gradient tolerance for sqp.LBFGSB.
	AbsoluteAccuracy float64 `mapstructure:"absolute-accuracy"`
	BoundTolerance   float64 `mapstructure:"bound-tolerance"`
	// JacobianCheck compares every Jacobian with finite differences and
	// logs deviations above it. Zero disables the check.
	JacobianCheck float64 `mapstructure:"jacobian-check"`
}

// DefaultOptions returns the options used when none are given.
func DefaultOptions() Options {
	return Options{
		MaxIterations:  DefaultMaxIterations,
		BoundTolerance: DefaultBoundTolerance,
	}
}

// Validate checks the option ranges.
func (o Options) Validate() error {
	bad := func(key string, v any) error {
		return fmt.Errorf("%w: %s = %v", ErrInvalidOption, key, v)
	}
	negative := func(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	switch {
	case o.MaxIterations <= 0:
		return bad(KeyMaxIterations, o.MaxIterations)
	case negative(o.RelativeAccuracy):
		return bad(KeyRelativeAccuracy, o.RelativeAccuracy)
	case negative(o.AbsoluteAccuracy):
		return bad(KeyAbsoluteAccuracy, o.AbsoluteAccuracy)
	case negative(o.BoundTolerance):
		return bad(KeyBoundTolerance, o.BoundTolerance)
	case negative(o.JacobianCheck):
		return bad(KeyJacobianCheck, o.JacobianCheck)
	}
	return nil
}

func (o Options) settings() sqp.Settings {
	return sqp.Settings{
		MaxIterations:     o.MaxIterations,
		Accuracy:          o.AbsoluteAccuracy,
		FunctionTolerance: o.RelativeAccuracy,
	}
}

// SetDefaults registers the option defaults in v.
func SetDefaults(v *viper.Viper) {
	d := DefaultOptions()
	v.SetDefault(KeyMaxIterations, d.MaxIterations)
	v.SetDefault(KeyRelativeAccuracy, d.RelativeAccuracy)
	v.SetDefault(KeyAbsoluteAccuracy, d.AbsoluteAccuracy)
	v.SetDefault(KeyBoundTolerance, d.BoundTolerance)
	v.SetDefault(KeyJacobianCheck, d.JacobianCheck)
}

// LoadOptions reads the option keys from v, falling back to the defaults.
func LoadOptions(v *viper.Viper) (Options, error) {
	SetDefaults(v)
	var o Options
	if err := v.Unmarshal(&o); err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}
	if err := o.Validate(); err != nil {
		return Options{}, err
	}
	return o, nil
}

// Option configures a Solver.
type Option func(*config)

type config struct {
	Options
	log     logr.Logger
	metrics *Metrics
	backend sqp.Solver
}

func defaultConfig() *config {
	return &config{
		Options: DefaultOptions(),
		log:     logr.Discard(),
	}
}

// WithOptions replaces every named parameter.
func WithOptions(o Options) Option {
	return func(c *config) {
		c.Options = o
	}
}

// WithMaxIterations sets the major iteration limit.
func WithMaxIterations(n int) Option {
	return func(c *config) {
		c.MaxIterations = n
	}
}

// WithAccuracy sets the relative and absolute accuracies, 0 keeps the solver default.
func WithAccuracy(relative, absolute float64) Option {
	return func(c *config) {
		c.RelativeAccuracy, c.AbsoluteAccuracy = relative, absolute
	}
}

// WithBoundTolerance sets the bound snapping tolerance.
func WithBoundTolerance(tol float64) Option {
	return func(c *config) {
		c.BoundTolerance = tol
	}
}

// WithJacobianCheck enables the finite difference Jacobian check.
func WithJacobianCheck(tol float64) Option {
	return func(c *config) {
		c.JacobianCheck = tol
	}
}

// WithLogger sets the logger of the solve and of the default backend.
func WithLogger(log logr.Logger) Option {
	return func(c *config) {
		c.log = log
	}
}

// WithMetrics records the solves in m. A nil m records nothing.
func WithMetrics(m *Metrics) Option {
	return func(c *config) {
		c.metrics = m
	}
}

// WithBackend replaces the default sqp.SLSQP backend.
func WithBackend(b sqp.Solver) Option {
	return func(c *config) {
		c.backend = b
	}
}
