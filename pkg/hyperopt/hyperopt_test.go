package hyperopt_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copyleftdev/hyperopt/internal/logging"
	"github.com/copyleftdev/hyperopt/pkg/hyperopt"
)

var ctx = context.Background()

func sin(x []float64) (float64, error) { return math.Sin(x[0]), nil }

func rosenbrock(x []float64) (float64, error) {
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return a*a + 100*b*b, nil
}

func sum(x []float64) (float64, error) { return x[0] + x[1] + x[2], nil }

func TestSinExtrema(t *testing.T) {
	domain := []hyperopt.VariableSpec{hyperopt.Bounds(-3, 3)}

	maxRes, err := hyperopt.FindMaxGlobal(ctx, sin, domain, new(hyperopt.Options).WithMaxIterations(20))
	require.NoError(t, err)
	assert.InDelta(t, math.Pi/2, maxRes.X[0], 1e-8)
	assert.InDelta(t, 1, maxRes.Y, 1e-8)

	minRes, err := hyperopt.FindMinGlobal(ctx, sin, domain, new(hyperopt.Options).WithMaxIterations(20))
	require.NoError(t, err)
	assert.InDelta(t, -math.Pi/2, minRes.X[0], 1e-8)
	assert.InDelta(t, -1, minRes.Y, 1e-8)
}

func TestFindMinGlobalRosenbrock(t *testing.T) {
	res, err := hyperopt.FindMinGlobal(ctx, rosenbrock,
		[]hyperopt.VariableSpec{hyperopt.Bounds(-3.1, 6.51), hyperopt.Bounds(-5.2, 3.3)},
		new(hyperopt.Options).WithMaxIterations(250))
	require.NoError(t, err)

	assert.InDelta(t, 1, res.X[0], 1e-8)
	assert.InDelta(t, 1, res.X[1], 1e-8)
	assert.InDelta(t, 0, res.Y, 1e-16)
}

func TestHugeRuntimeIsUnbounded(t *testing.T) {
	opts := new(hyperopt.Options).WithMaxIterations(50)
	ms := 1e13
	opts.MaxRuntimeMs = &ms

	out, err := hyperopt.FindMaxGlobalReport(ctx, sin, []hyperopt.VariableSpec{hyperopt.Bounds(-3, 3)}, opts)
	require.NoError(t, err)

	assert.Equal(t, hyperopt.StateBudgetExhausted, out.Termination)
	assert.Equal(t, uint64(50), out.Evaluations)
}

func TestIntegerSum(t *testing.T) {
	domain := []hyperopt.VariableSpec{
		hyperopt.IntegerBounds(1, 3),
		hyperopt.IntegerBounds(0, 1),
		hyperopt.IntegerBounds(-1, 2),
	}
	res, err := hyperopt.FindMaxGlobal(ctx, sum, domain,
		new(hyperopt.Options).WithMaxIterations(10).WithEpsilon(1))
	require.NoError(t, err)

	assert.Equal(t, []float64{3, 1, 2}, res.X)
	assert.Equal(t, 6.0, res.Y)
}

func TestReadmeExample(t *testing.T) {
	res, err := hyperopt.FindMinGlobal(ctx, func(x []float64) (float64, error) {
		return math.Sin(x[0]*x[0]) / x[0], nil
	}, []hyperopt.VariableSpec{hyperopt.Bounds(0, 3.5)},
		new(hyperopt.Options).WithMaxIterations(10))
	require.NoError(t, err)

	assert.InDelta(t, -0.4633, res.Y, 1e-3)
	assert.InDelta(t, 2.1457, res.X[0], 5e-3)
}

func TestSmallLatticeConverges(t *testing.T) {
	domain := []hyperopt.VariableSpec{
		hyperopt.IntegerBounds(1, 3),
		hyperopt.IntegerBounds(0, 1),
		hyperopt.IntegerBounds(-1, 2),
	}
	out, err := hyperopt.FindMaxGlobalReport(ctx, sum, domain,
		new(hyperopt.Options).WithMaxIterations(1000))
	require.NoError(t, err)

	assert.Equal(t, hyperopt.StateConverged, out.Termination)
	assert.Equal(t, uint64(24), out.Evaluations)
	assert.Equal(t, 6.0, out.Result.Y)
}

func TestUnboundedIntegerSearchStops(t *testing.T) {
	out, err := hyperopt.FindMinGlobalReport(ctx, func(x []float64) (float64, error) {
		return math.Abs(x[0] - 3), nil
	}, []hyperopt.VariableSpec{hyperopt.IntegerBounds(-5, 5)}, nil)
	require.NoError(t, err)

	assert.Equal(t, hyperopt.StateConverged, out.Termination)
	assert.Equal(t, uint64(11), out.Evaluations)
	assert.Equal(t, []float64{3}, out.Result.X)
}

func TestMinIsNegatedMax(t *testing.T) {
	f := func(x []float64) (float64, error) {
		return math.Sin(3*x[0]) + math.Cos(x[1]) - 0.1*x[0]*x[1], nil
	}
	negF := func(x []float64) (float64, error) {
		v, err := f(x)
		return -v, err
	}
	domain := []hyperopt.VariableSpec{hyperopt.Bounds(-2, 2), hyperopt.Bounds(-2, 2)}

	minRes, err := hyperopt.FindMinGlobal(ctx, f, domain, new(hyperopt.Options).WithMaxIterations(30))
	require.NoError(t, err)
	maxRes, err := hyperopt.FindMaxGlobal(ctx, negF, domain, new(hyperopt.Options).WithMaxIterations(30))
	require.NoError(t, err)

	assert.Equal(t, minRes.Y, -maxRes.Y)
	assert.Equal(t, minRes.X, maxRes.X)
}

func TestDeterministicResults(t *testing.T) {
	domain := []hyperopt.VariableSpec{hyperopt.Bounds(-10, 10), hyperopt.Bounds(-10, 10)}
	opts := func() *hyperopt.Options { return new(hyperopt.Options).WithMaxIterations(40) }

	a, err := hyperopt.FindMinGlobalReport(ctx, rosenbrock, domain, opts())
	require.NoError(t, err)
	b, err := hyperopt.FindMinGlobalReport(ctx, rosenbrock, domain, opts())
	require.NoError(t, err)

	assert.Equal(t, a.Result, b.Result)
	assert.Equal(t, a.Evaluations, b.Evaluations)
}

func TestMaxRuntime(t *testing.T) {
	f := func(x []float64) (float64, error) {
		time.Sleep(2 * time.Millisecond)
		return -x[0] * x[0], nil
	}

	start := time.Now()
	out, err := hyperopt.FindMaxGlobalReport(ctx, f,
		[]hyperopt.VariableSpec{hyperopt.Bounds(-1, 1)},
		new(hyperopt.Options).WithMaxRuntime(500*time.Millisecond))
	elapsed := time.Since(start)
	require.NoError(t, err)

	assert.Equal(t, hyperopt.StateBudgetExhausted, out.Termination)
	assert.GreaterOrEqual(t, elapsed, 500*time.Millisecond)
	assert.Less(t, elapsed, 625*time.Millisecond)
	assert.GreaterOrEqual(t, out.Elapsed, 500*time.Millisecond)
}

func TestOnEvaluation(t *testing.T) {
	var iterations []uint64
	var best []float64
	opts := new(hyperopt.Options).WithMaxIterations(8)
	opts.OnEvaluation = func(ev hyperopt.Evaluation) {
		iterations = append(iterations, ev.Iteration)
		best = append(best, ev.BestValue)
	}

	res, err := hyperopt.FindMinGlobal(ctx, func(x []float64) (float64, error) {
		return (x[0] - 0.3) * (x[0] - 0.3), nil
	}, []hyperopt.VariableSpec{hyperopt.Bounds(-1, 1)}, opts)
	require.NoError(t, err)

	assert.Equal(t, []uint64{1, 2, 3, 4, 5, 6, 7, 8}, iterations)
	for i := 1; i < len(best); i++ {
		assert.LessOrEqual(t, best[i], best[i-1], "best value never gets worse")
	}
	assert.Equal(t, res.Y, best[len(best)-1])
}

func TestValidationErrors(t *testing.T) {
	zero := 0
	tests := []struct {
		name     string
		f        hyperopt.ObjectiveFunc
		domain   []hyperopt.VariableSpec
		opts     *hyperopt.Options
		sentinel error
	}{
		{
			name:     "nil objective wins over everything",
			domain:   nil,
			opts:     &hyperopt.Options{MaxIterations: &zero},
			sentinel: hyperopt.ErrInvalidObjective,
		},
		{
			name:     "domain before options",
			f:        sin,
			domain:   []hyperopt.VariableSpec{hyperopt.Bounds(2, 1)},
			opts:     &hyperopt.Options{MaxIterations: &zero},
			sentinel: hyperopt.ErrInvalidDomain,
		},
		{
			name:     "empty domain",
			f:        sin,
			sentinel: hyperopt.ErrInvalidDomain,
		},
		{
			name:     "fractional integer bounds",
			f:        sin,
			domain:   []hyperopt.VariableSpec{hyperopt.IntegerBounds(0, 2.5)},
			sentinel: hyperopt.ErrInvalidDomain,
		},
		{
			name:     "zero iterations",
			f:        sin,
			domain:   []hyperopt.VariableSpec{hyperopt.Bounds(0, 1)},
			opts:     &hyperopt.Options{MaxIterations: &zero},
			sentinel: hyperopt.ErrInvalidOptions,
		},
		{
			name:     "unknown strategy",
			f:        sin,
			domain:   []hyperopt.VariableSpec{hyperopt.Bounds(0, 1)},
			opts:     &hyperopt.Options{Strategy: "anneal"},
			sentinel: hyperopt.ErrInvalidOptions,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := hyperopt.FindMaxGlobal(ctx, tt.f, tt.domain, tt.opts)
			assert.Nil(t, res)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.sentinel)

			var herr *hyperopt.Error
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, hyperopt.KindOf(tt.sentinel), herr.Kind)
		})
	}
}

func TestObjectiveFailures(t *testing.T) {
	boom := errors.New("boom")
	domain := []hyperopt.VariableSpec{hyperopt.Bounds(0, 1)}
	opts := new(hyperopt.Options).WithMaxIterations(5)

	_, err := hyperopt.FindMinGlobal(ctx, func([]float64) (float64, error) { return 0, boom }, domain, opts)
	assert.ErrorIs(t, err, hyperopt.ErrObjective)
	assert.ErrorIs(t, err, boom)

	_, err = hyperopt.FindMinGlobal(ctx, func([]float64) (float64, error) { return math.NaN(), nil }, domain, opts)
	assert.ErrorIs(t, err, hyperopt.ErrObjective)

	_, err = hyperopt.FindMinGlobal(ctx, func([]float64) (float64, error) { panic("bad") }, domain, opts)
	assert.ErrorIs(t, err, hyperopt.ErrObjective)
}

func TestCanceledContext(t *testing.T) {
	cctx, cancel := context.WithCancel(ctx)
	cancel()

	_, err := hyperopt.FindMaxGlobal(cctx, sin, []hyperopt.VariableSpec{hyperopt.Bounds(-3, 3)}, nil)
	assert.ErrorIs(t, err, hyperopt.ErrCanceled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNilContext(t *testing.T) {
	//nolint:staticcheck // a nil context is accepted and treated as Background
	res, err := hyperopt.FindMaxGlobal(nil, sin, []hyperopt.VariableSpec{hyperopt.Bounds(-3, 3)},
		new(hyperopt.Options).WithMaxIterations(3))
	require.NoError(t, err)
	assert.NotNil(t, res)
}

func TestBayesianStrategy(t *testing.T) {
	opts := new(hyperopt.Options).WithMaxIterations(20).WithSeed(3)
	opts.Strategy = hyperopt.StrategyBayesian

	f := func(x []float64) (float64, error) { return -(x[0] - 0.3) * (x[0] - 0.3), nil }
	domain := []hyperopt.VariableSpec{hyperopt.Bounds(-1, 1)}

	a, err := hyperopt.FindMaxGlobalReport(ctx, f, domain, opts)
	require.NoError(t, err)
	assert.Equal(t, hyperopt.StateBudgetExhausted, a.Termination)
	assert.Equal(t, uint64(20), a.Evaluations)
	assert.GreaterOrEqual(t, a.Result.X[0], -1.0)
	assert.LessOrEqual(t, a.Result.X[0], 1.0)

	b, err := hyperopt.FindMaxGlobalReport(ctx, f, domain, opts)
	require.NoError(t, err)
	assert.Equal(t, a.Result, b.Result, "seeded runs are reproducible")
}

func TestContextLoggerIsUsed(t *testing.T) {
	var buf bytes.Buffer
	logger := &logging.CtxLogger{Logger: logging.New(logging.InfoLevel, &buf)}
	lctx := logger.WithContext(ctx)

	_, err := hyperopt.FindMaxGlobal(lctx, sin, []hyperopt.VariableSpec{hyperopt.Bounds(-3, 3)},
		new(hyperopt.Options).WithMaxIterations(2))
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "Optimization started")
	assert.Contains(t, buf.String(), "Optimization finished")
}
