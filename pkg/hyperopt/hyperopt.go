// Package hyperopt finds the global maximum or minimum of an expensive
// black-box function over a box-shaped, optionally mixed-integer domain.
//
//	res, err := hyperopt.FindMinGlobal(ctx, func(x []float64) (float64, error) {
//		return math.Sin(x[0]*x[0]) / x[0], nil
//	}, []hyperopt.VariableSpec{hyperopt.Bounds(0, 3.5)},
//		new(hyperopt.Options).WithMaxIterations(10))
//
// With no options the search runs until every point of an all-integer domain
// has been evaluated, or forever on a continuous one; set MaxIterations or
// MaxRuntimeMs to bound it.
package hyperopt

import (
	"context"

	"go.uber.org/zap"

	"github.com/copyleftdev/hyperopt/internal/logging"
	"github.com/copyleftdev/hyperopt/internal/optimization"
	"github.com/copyleftdev/hyperopt/internal/optimization/bayesian"
	"github.com/copyleftdev/hyperopt/internal/optimization/lipo"
)

type (
	// ObjectiveFunc is the function being optimized.
	ObjectiveFunc = optimization.ObjectiveFunction
	// VariableSpec describes one dimension of the domain.
	VariableSpec = optimization.VariableSpec
	// Options bounds and tunes a search. A nil *Options means defaults.
	Options = optimization.Options
	// Result is the best point found and its objective value.
	Result = optimization.Result
	// Outcome is a Result plus how the search ended.
	Outcome = optimization.Outcome
	// Evaluation is the progress record passed to Options.OnEvaluation.
	Evaluation = optimization.Evaluation
	// State is a phase of a search; Outcome.Termination holds the terminal one.
	State = optimization.State
	// Error is the error type returned by every entry point.
	Error = optimization.Error
	// ErrorKind classifies an Error.
	ErrorKind = optimization.ErrorKind
)

const (
	StrategyLIPO     = optimization.StrategyLIPO
	StrategyBayesian = optimization.StrategyBayesian

	StateConverged       = optimization.StateConverged
	StateBudgetExhausted = optimization.StateBudgetExhausted
)

// Sentinels for errors.Is.
var (
	ErrInvalidObjective = optimization.ErrInvalidObjective
	ErrInvalidDomain    = optimization.ErrInvalidDomain
	ErrInvalidOptions   = optimization.ErrInvalidOptions
	ErrObjective        = optimization.ErrObjective
	ErrSearch           = optimization.ErrSearch
	ErrCanceled         = optimization.ErrCanceled
)

// Bounds returns a continuous variable spanning [lower, upper].
func Bounds(lower, upper float64) VariableSpec {
	return optimization.Bounds(lower, upper)
}

// IntegerBounds returns an integer variable spanning [lower, upper].
func IntegerBounds(lower, upper float64) VariableSpec {
	return optimization.IntegerBounds(lower, upper)
}

// KindOf returns the kind of err, or the unknown kind for foreign errors.
func KindOf(err error) ErrorKind {
	return optimization.KindOf(err)
}

// FindMaxGlobal searches domain for the point where objective is largest.
func FindMaxGlobal(ctx context.Context, objective ObjectiveFunc, domain []VariableSpec, opts *Options) (*Result, error) {
	out, err := FindMaxGlobalReport(ctx, objective, domain, opts)
	if err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// FindMinGlobal searches domain for the point where objective is smallest.
func FindMinGlobal(ctx context.Context, objective ObjectiveFunc, domain []VariableSpec, opts *Options) (*Result, error) {
	out, err := FindMinGlobalReport(ctx, objective, domain, opts)
	if err != nil {
		return nil, err
	}
	return &out.Result, nil
}

// FindMaxGlobalReport is FindMaxGlobal returning the full Outcome.
func FindMaxGlobalReport(ctx context.Context, objective ObjectiveFunc, domain []VariableSpec, opts *Options) (*Outcome, error) {
	return run(ctx, optimization.Maximize, objective, domain, opts)
}

// FindMinGlobalReport is FindMinGlobal returning the full Outcome.
func FindMinGlobalReport(ctx context.Context, objective ObjectiveFunc, domain []VariableSpec, opts *Options) (*Outcome, error) {
	return run(ctx, optimization.Minimize, objective, domain, opts)
}

func run(ctx context.Context, direction optimization.Direction, objective ObjectiveFunc, domain []VariableSpec, opts *Options) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := optimization.Validate(direction, objective, domain, opts)
	if err != nil {
		return nil, err
	}
	if opts == nil || opts.Logger == nil {
		if logger, ok := logging.ZapFromContext(ctx); ok {
			req.Settings.Logger = logger
		}
	}
	return optimization.Run(ctx, req, NewSearch)
}

// NewSearch builds the search procedure selected by settings.Strategy.
func NewSearch(settings optimization.Settings) (optimization.SearchProcedure, error) {
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch settings.Strategy {
	case optimization.StrategyBayesian:
		cfg := bayesian.Config{Seed: settings.Seed, Logger: logger}
		if limit, ok := settings.MaxIterations.Limit(); ok {
			cfg.InitialPoints = int(min(limit, 10))
		}
		return bayesian.NewBayesianOptimizer(cfg), nil
	case optimization.StrategyLIPO, "":
		cfg := lipo.DefaultConfig()
		cfg.Logger = logger
		return lipo.New(cfg), nil
	default:
		return nil, optimization.NewKindErrorf(optimization.KindInvalidOptions, "unknown strategy %q", settings.Strategy)
	}
}
