package optimization

import (
	"math"
	"time"

	"go.uber.org/zap"
)

// Search strategies understood by the public entry points.
const (
	StrategyLIPO     = "lipo"
	StrategyBayesian = "bayesian"
)

// DefaultSeed seeds randomized strategies when the caller does not.
const DefaultSeed int64 = 1

// Options holds caller-supplied settings. Nil fields take their defaults:
// unbounded iterations, unbounded runtime and an epsilon of 0.
type Options struct {
	// MaxIterations caps the number of objective evaluations.
	MaxIterations *int `json:"maxIterations,omitempty"`
	// MaxRuntimeMs caps the wall-clock time of the search, in milliseconds.
	MaxRuntimeMs *float64 `json:"maxRuntimeMs,omitempty"`
	// Epsilon is the accuracy to which the global optimum is sought.
	Epsilon *float64 `json:"epsilon,omitempty"`

	// Strategy names the search procedure; empty means StrategyLIPO.
	Strategy string `json:"strategy,omitempty"`
	// Seed feeds randomized strategies.
	Seed *int64 `json:"seed,omitempty"`

	Logger       *zap.Logger      `json:"-"`
	OnEvaluation func(Evaluation) `json:"-"`
}

// WithMaxIterations sets MaxIterations and returns o.
func (o *Options) WithMaxIterations(n int) *Options {
	o.MaxIterations = &n
	return o
}

// WithMaxRuntime sets MaxRuntimeMs from a duration and returns o.
func (o *Options) WithMaxRuntime(d time.Duration) *Options {
	ms := float64(d) / float64(time.Millisecond)
	o.MaxRuntimeMs = &ms
	return o
}

// WithEpsilon sets Epsilon and returns o.
func (o *Options) WithEpsilon(eps float64) *Options {
	o.Epsilon = &eps
	return o
}

// WithSeed sets Seed and returns o.
func (o *Options) WithSeed(seed int64) *Options {
	o.Seed = &seed
	return o
}

// IterationBudget bounds the number of objective evaluations.
// The zero value is unbounded.
type IterationBudget struct {
	limit uint64
}

// UnboundedIterations returns a budget that never runs out.
func UnboundedIterations() IterationBudget {
	return IterationBudget{}
}

// IterationLimit returns a budget of n evaluations. n must be positive.
func IterationLimit(n uint64) IterationBudget {
	return IterationBudget{limit: n}
}

// Limit returns the cap and whether there is one.
func (b IterationBudget) Limit() (uint64, bool) {
	return b.limit, b.limit > 0
}

// Exhausted reports whether count evaluations use up the budget.
func (b IterationBudget) Exhausted(count uint64) bool {
	return b.limit > 0 && count >= b.limit
}

// Settings are Options merged over the defaults and validated.
type Settings struct {
	MaxIterations IterationBudget
	// MaxRuntime is zero when unbounded.
	MaxRuntime   time.Duration
	Epsilon      float64
	Strategy     string
	Seed         int64
	Logger       *zap.Logger
	OnEvaluation func(Evaluation)
}

// DefaultSettings returns the settings used when no options are given.
func DefaultSettings() Settings {
	return Settings{
		MaxIterations: UnboundedIterations(),
		Strategy:      StrategyLIPO,
		Seed:          DefaultSeed,
		Logger:        zap.NewNop(),
	}
}

// ResolveOptions merges opts over DefaultSettings. A nil opts is valid.
func ResolveOptions(opts *Options) (Settings, error) {
	const op = "ResolveOptions"

	s := DefaultSettings()
	if opts == nil {
		return s, nil
	}

	if opts.MaxIterations != nil {
		if *opts.MaxIterations <= 0 {
			return Settings{}, optionsErrorf(op, "maxIterations must be > 0, got %d", *opts.MaxIterations)
		}
		s.MaxIterations = IterationLimit(uint64(*opts.MaxIterations))
	}

	if opts.MaxRuntimeMs != nil {
		ms := *opts.MaxRuntimeMs
		if math.IsNaN(ms) || ms <= 0 {
			return Settings{}, optionsErrorf(op, "maxRuntimeMs must be > 0, got %v", ms)
		}
		// Anything past the largest time.Duration is unbounded.
		if ns := ms * float64(time.Millisecond); ns < math.MaxInt64 {
			s.MaxRuntime = max(time.Duration(ns), time.Nanosecond)
		}
	}

	if opts.Epsilon != nil {
		eps := *opts.Epsilon
		if !isFinite(eps) || eps < 0 {
			return Settings{}, optionsErrorf(op, "epsilon must be a finite number >= 0, got %v", eps)
		}
		s.Epsilon = eps
	}

	switch opts.Strategy {
	case "":
	case StrategyLIPO, StrategyBayesian:
		s.Strategy = opts.Strategy
	default:
		return Settings{}, optionsErrorf(op, "unknown strategy %q", opts.Strategy)
	}

	if opts.Seed != nil {
		s.Seed = *opts.Seed
	}
	if opts.Logger != nil {
		s.Logger = opts.Logger
	}
	s.OnEvaluation = opts.OnEvaluation

	return s, nil
}

// ParseOptions converts a decoded JSON value into Options, reporting wrong
// types as InvalidOptions. A nil value means no options. Unknown keys are
// ignored. Range checks happen in ResolveOptions.
func ParseOptions(raw interface{}) (*Options, error) {
	const op = "ParseOptions"

	if raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, optionsErrorf(op, "options must be an object, got %s", typeName(raw))
	}

	opts := &Options{}

	if v, present := m["maxIterations"]; present && v != nil {
		f, ok := toFloat(v)
		if !ok {
			return nil, optionsErrorf(op, "maxIterations must be a number, got %s", typeName(v))
		}
		if f != math.Trunc(f) || math.IsInf(f, 0) {
			return nil, optionsErrorf(op, "maxIterations must be an integer, got %v", f)
		}
		// Keep the conversion to int well defined; anything this large is
		// effectively unbounded and anything non-positive is rejected later.
		f = math.Max(-1, math.Min(f, 1<<53))
		opts.WithMaxIterations(int(f))
	}

	if v, present := m["maxRuntimeMs"]; present && v != nil {
		f, ok := toFloat(v)
		if !ok {
			return nil, optionsErrorf(op, "maxRuntimeMs must be a number, got %s", typeName(v))
		}
		opts.MaxRuntimeMs = &f
	}

	if v, present := m["epsilon"]; present && v != nil {
		f, ok := toFloat(v)
		if !ok {
			return nil, optionsErrorf(op, "epsilon must be a number, got %s", typeName(v))
		}
		opts.Epsilon = &f
	}

	if v, present := m["strategy"]; present && v != nil {
		s, ok := v.(string)
		if !ok {
			return nil, optionsErrorf(op, "strategy must be a string, got %s", typeName(v))
		}
		opts.Strategy = s
	}

	if v, present := m["seed"]; present && v != nil {
		f, ok := toFloat(v)
		if !ok || f != math.Trunc(f) {
			return nil, optionsErrorf(op, "seed must be an integer, got %v", v)
		}
		opts.WithSeed(int64(f))
	}

	return opts, nil
}

func optionsErrorf(op, format string, args ...interface{}) *Error {
	return NewKindErrorf(KindInvalidOptions, format, args...).
		WithComponent("options").WithOperation(op)
}
