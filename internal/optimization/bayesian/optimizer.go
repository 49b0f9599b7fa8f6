// Package bayesian implements a seeded Bayesian search procedure: a Latin
// hypercube design followed by Expected Improvement steps on a Gaussian
// process fitted to the standardized observations.
package bayesian

import (
	"math"
	"math/rand"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/copyleftdev/hyperopt/internal/optimization"
	"github.com/copyleftdev/hyperopt/internal/optimization/acquisition"
	"github.com/copyleftdev/hyperopt/internal/optimization/kernels"
)

// Config tunes the Bayesian search. Zero fields take defaults.
type Config struct {
	Seed int64
	// InitialPoints is the size of the Latin hypercube design evaluated
	// before the first model-based proposal.
	InitialPoints int
	// Kernel names the covariance function, see kernels.New.
	Kernel      string
	LengthScale float64
	Noise       float64
	Xi          float64
	// Restarts is the number of random Nelder-Mead starts used to maximize
	// the acquisition function, on top of the incumbent.
	Restarts int
	Logger   *zap.Logger
}

// DefaultConfig returns the defaults for a d-dimensional problem.
func DefaultConfig(d int) Config {
	return Config{
		Seed:          optimization.DefaultSeed,
		InitialPoints: max(5, 2*d+1),
		Kernel:        kernels.NameMatern52,
		LengthScale:   0.2,
		Noise:         1e-6,
		Xi:            0.01,
		Restarts:      5 + int(5*math.Sqrt(float64(d))),
		Logger:        zap.NewNop(),
	}
}

// BayesianOptimizer implements optimization.SearchProcedure with a Gaussian
// process surrogate. Points are modelled in unit-cube coordinates.
type BayesianOptimizer struct {
	config Config
	logger *zap.Logger

	gp          *GP
	acquisition *acquisition.ExpectedImprovement
	rng         *rand.Rand

	lower     []float64
	upper     []float64
	isInteger []bool
	dims      int

	design [][]float64
	us     [][]float64
	ys     []float64
	best   int

	initialized bool
}

var _ optimization.SearchProcedure = (*BayesianOptimizer)(nil)

// NewBayesianOptimizer returns an uninitialized optimizer. Defaults that
// depend on the dimension are filled in by Initialize.
func NewBayesianOptimizer(config Config) *BayesianOptimizer {
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}
	return &BayesianOptimizer{
		config: config,
		logger: config.Logger.Named("bayesian"),
	}
}

func boErrorf(op, format string, args ...interface{}) *optimization.Error {
	return optimization.NewErrorf(format, args...).WithComponent("bayesian").WithOperation(op)
}

// Initialize sets the box to search and draws the initial design. The
// Gaussian process has no notion of accuracy, so epsilon is ignored.
func (bo *BayesianOptimizer) Initialize(lower, upper []float64, isInteger []bool, epsilon float64) error {
	const op = "Initialize"

	d := len(lower)
	if d == 0 || len(upper) != d || len(isInteger) != d {
		return boErrorf(op, "bounds must be non-empty and of equal length, got %d/%d/%d", len(lower), len(upper), len(isInteger))
	}
	for j := 0; j < d; j++ {
		if !(lower[j] < upper[j]) || math.IsInf(lower[j], 0) || math.IsInf(upper[j], 0) {
			return boErrorf(op, "dimension %d: invalid bounds [%v, %v]", j, lower[j], upper[j])
		}
	}

	def := DefaultConfig(d)
	cfg := bo.config
	if cfg.InitialPoints < 1 {
		cfg.InitialPoints = def.InitialPoints
	}
	if cfg.LengthScale <= 0 {
		cfg.LengthScale = def.LengthScale
	}
	if cfg.Noise <= 0 {
		cfg.Noise = def.Noise
	}
	if cfg.Xi < 0 {
		cfg.Xi = def.Xi
	}
	if cfg.Restarts < 1 {
		cfg.Restarts = def.Restarts
	}

	kernel, err := kernels.New(cfg.Kernel, cfg.LengthScale, 1)
	if err != nil {
		return optimization.WrapErrorf(err, "create kernel").WithComponent("bayesian").WithOperation(op)
	}

	bo.lower = append([]float64(nil), lower...)
	bo.upper = append([]float64(nil), upper...)
	bo.isInteger = append([]bool(nil), isInteger...)
	bo.dims = d

	bo.rng = rand.New(rand.NewSource(cfg.Seed))
	bo.gp = NewGP(kernel, cfg.Noise, bo.logger)
	bo.acquisition = acquisition.NewExpectedImprovement(math.Inf(-1), cfg.Xi)
	bo.design = bo.latinHypercubeSample(cfg.InitialPoints)
	bo.us, bo.ys, bo.best = nil, nil, 0
	bo.config = cfg
	bo.initialized = true

	bo.logger.Debug("Bayesian search initialized",
		zap.Int("dims", d),
		zap.Int64("seed", cfg.Seed),
		zap.Int("initial_points", cfg.InitialPoints),
		zap.String("kernel", cfg.Kernel),
	)
	return nil
}

// ProposeNext returns the next design point, or once the design is spent,
// the maximizer of Expected Improvement under the fitted model.
func (bo *BayesianOptimizer) ProposeNext() ([]float64, error) {
	const op = "ProposeNext"

	if !bo.initialized {
		return nil, boErrorf(op, "optimizer not initialized")
	}
	if n := len(bo.us); n < len(bo.design) {
		return bo.fromUnit(bo.design[n]), nil
	}

	X, y := bo.prepareTrainingData()
	if err := bo.gp.Fit(X, y); err != nil {
		return nil, optimization.WrapErrorf(err, "fit surrogate").WithComponent("bayesian").WithOperation(op)
	}
	bo.acquisition.UpdateBest(y.AtVec(bo.best))

	u, ei := bo.maximizeAcquisition()
	bo.logger.Debug("Proposed point",
		zap.Float64s("u", u),
		zap.Float64("expected_improvement", ei),
	)
	return bo.fromUnit(u), nil
}

// ReportResult records y observed at x.
func (bo *BayesianOptimizer) ReportResult(x []float64, y float64) error {
	const op = "ReportResult"

	if !bo.initialized {
		return boErrorf(op, "optimizer not initialized")
	}
	if len(x) != bo.dims {
		return boErrorf(op, "point has %d dimensions, want %d", len(x), bo.dims)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return boErrorf(op, "value must be finite, got %v", y)
	}

	u := make([]float64, bo.dims)
	for j := range u {
		u[j] = (x[j] - bo.lower[j]) / (bo.upper[j] - bo.lower[j])
	}
	bo.us = append(bo.us, u)
	bo.ys = append(bo.ys, y)
	if len(bo.ys) == 1 || y > bo.ys[bo.best] {
		bo.best = len(bo.ys) - 1
	}
	return nil
}

// HasConverged always reports false; the model never certifies optimality.
func (bo *BayesianOptimizer) HasConverged() bool {
	return false
}

// prepareTrainingData stacks the unit-cube points and the standardized
// observations.
func (bo *BayesianOptimizer) prepareTrainingData() (*mat.Dense, *mat.VecDense) {
	n := len(bo.us)
	X := mat.NewDense(n, bo.dims, nil)
	for i, u := range bo.us {
		X.SetRow(i, u)
	}

	mean, std := stat.MeanStdDev(bo.ys, nil)
	if !(std > 0) {
		std = 1
	}
	y := mat.NewVecDense(n, nil)
	for i, v := range bo.ys {
		y.SetVec(i, (v-mean)/std)
	}
	return X, y
}

// latinHypercubeSample draws n stratified points in the unit cube.
func (bo *BayesianOptimizer) latinHypercubeSample(n int) [][]float64 {
	samples := make([][]float64, n)
	for i := range samples {
		samples[i] = make([]float64, bo.dims)
	}

	strata := make([]float64, n)
	for j := 0; j < bo.dims; j++ {
		for i := range strata {
			strata[i] = (float64(i) + bo.rng.Float64()) / float64(n)
		}
		bo.rng.Shuffle(n, func(a, b int) {
			strata[a], strata[b] = strata[b], strata[a]
		})
		for i := range samples {
			samples[i][j] = strata[i]
		}
	}
	return samples
}

// maximizeAcquisition runs Nelder-Mead on negative Expected Improvement from
// the incumbent and from random starts, returning the best unit-cube point.
func (bo *BayesianOptimizer) maximizeAcquisition() ([]float64, float64) {
	d := bo.dims
	clamped := make([]float64, d)
	point := mat.NewDense(1, d, clamped)

	negEI := func(u []float64) float64 {
		for j, v := range u {
			clamped[j] = math.Min(math.Max(v, 0), 1)
		}
		mu, variance, err := bo.gp.Predict(point)
		if err != nil {
			return math.Inf(1)
		}
		return -bo.acquisition.Compute(mu.AtVec(0), math.Sqrt(variance.AtVec(0)))
	}

	problem := optimize.Problem{Func: negEI}
	// negEI shares its scratch point and the GP's matrix pool, so evaluations
	// must not run concurrently.
	settings := &optimize.Settings{
		Concurrent:      1,
		FuncEvaluations: 200 * d,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-9,
			Relative:   1e-9,
			Iterations: 50,
		},
	}

	starts := make([][]float64, 0, bo.config.Restarts+1)
	starts = append(starts, append([]float64(nil), bo.us[bo.best]...))
	for i := 0; i < bo.config.Restarts; i++ {
		u := make([]float64, d)
		for j := range u {
			u[j] = bo.rng.Float64()
		}
		starts = append(starts, u)
	}

	bestU := starts[len(starts)-1]
	bestVal := negEI(bestU)
	for _, start := range starts {
		method := &optimize.NelderMead{SimplexSize: 0.1}
		result, err := optimize.Minimize(problem, start, settings, method)
		if err != nil || result == nil {
			continue
		}
		if result.F < bestVal {
			bestVal = result.F
			bestU = append([]float64(nil), result.X...)
		}
	}

	for j, v := range bestU {
		bestU[j] = math.Min(math.Max(v, 0), 1)
	}
	return bestU, -bestVal
}

func (bo *BayesianOptimizer) fromUnit(u []float64) []float64 {
	x := make([]float64, bo.dims)
	for j := range x {
		v := bo.lower[j] + u[j]*(bo.upper[j]-bo.lower[j])
		if bo.isInteger[j] {
			v = math.Round(v)
		}
		x[j] = math.Min(math.Max(v, bo.lower[j]), bo.upper[j])
	}
	return x
}
