// Package lipo implements the default global search procedure: a
// deterministic MaxLIPO search that alternates with a quadratic trust region
// model around the best point seen so far.
//
// Points are handled in unit-cube coordinates, u = (x - lower) / (upper - lower),
// so that a single Lipschitz constant and a single trust radius serve every
// dimension. Global steps score quasi-random Halton candidates against the
// Lipschitz upper bound; when no candidate can beat the incumbent by more
// than epsilon, the candidate farthest from every evaluated point is taken
// instead. Local steps fit a quadratic to the points nearest the incumbent
// and move to the maximizer of that model inside the trust radius.
package lipo

import (
	"encoding/binary"
	"math"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gonum.org/v1/gonum/floats"

	"github.com/copyleftdev/hyperopt/internal/optimization"
)

const (
	// DefaultCandidates is the number of Halton points scored per global step.
	DefaultCandidates = 5000
	// DefaultInitialRadius is the unit-cube trust radius every new local
	// search starts from.
	DefaultInitialRadius = 0.1
	// MaxTrackedLattice bounds the all-integer domains whose exhaustion is
	// tracked and reported as convergence.
	MaxTrackedLattice = 1 << 20
)

// Config tunes the search.
type Config struct {
	Candidates    int
	InitialRadius float64
	Logger        *zap.Logger
}

// DefaultConfig returns the configuration used by the public entry points.
func DefaultConfig() Config {
	return Config{
		Candidates:    DefaultCandidates,
		InitialRadius: DefaultInitialRadius,
		Logger:        zap.NewNop(),
	}
}

// Stats counts the proposals made so far, by kind.
type Stats struct {
	Evaluations      int
	GlobalSteps      int
	TrustRegionSteps int
	LatticeSteps     int
	Lipschitz        float64
	Radius           float64
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (st Stats) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddInt("evaluations", st.Evaluations)
	enc.AddInt("global_steps", st.GlobalSteps)
	enc.AddInt("trust_region_steps", st.TrustRegionSteps)
	enc.AddInt("lattice_steps", st.LatticeSteps)
	enc.AddFloat64("lipschitz", st.Lipschitz)
	enc.AddFloat64("radius", st.Radius)
	return nil
}

// Search is the MaxLIPO plus trust region procedure. It implements
// optimization.SearchProcedure and is not safe for concurrent use.
type Search struct {
	cfg    Config
	logger *zap.Logger

	lower     []float64
	upper     []float64
	isInteger []bool
	epsilon   float64
	dims      int

	primes      []uint64
	haltonIndex uint64

	xs        [][]float64
	us        [][]float64
	ys        []float64
	best      int
	lipschitz float64

	trustNext      bool
	localDone      bool
	minModelPoints int
	modelPoints    int
	radius         float64
	pending        *pendingStep

	lattice *lattice
	seen    map[string]struct{}

	stats       Stats
	initialized bool
}

var _ optimization.SearchProcedure = (*Search)(nil)

// New returns an uninitialized search. Zero config fields take defaults.
func New(cfg Config) *Search {
	def := DefaultConfig()
	if cfg.Candidates <= 0 {
		cfg.Candidates = def.Candidates
	}
	if cfg.InitialRadius <= 0 || cfg.InitialRadius > 1 {
		cfg.InitialRadius = def.InitialRadius
	}
	if cfg.Logger == nil {
		cfg.Logger = def.Logger
	}
	return &Search{
		cfg:    cfg,
		logger: cfg.Logger.Named("lipo"),
	}
}

// Initialize sets the box and accuracy the search works with and discards
// any previous history.
func (s *Search) Initialize(lower, upper []float64, isInteger []bool, epsilon float64) error {
	const op = "Initialize"

	d := len(lower)
	if d == 0 || len(upper) != d || len(isInteger) != d {
		return searchErrorf(op, "bounds must be non-empty and of equal length, got %d/%d/%d", len(lower), len(upper), len(isInteger))
	}
	for j := 0; j < d; j++ {
		lo, hi := lower[j], upper[j]
		if math.IsNaN(lo) || math.IsNaN(hi) || math.IsInf(lo, 0) || math.IsInf(hi, 0) || lo >= hi {
			return searchErrorf(op, "dimension %d: invalid bounds [%v, %v]", j, lo, hi)
		}
		if isInteger[j] && (lo != math.Trunc(lo) || hi != math.Trunc(hi)) {
			return searchErrorf(op, "dimension %d: integer bounds [%v, %v] are not integral", j, lo, hi)
		}
	}
	if math.IsNaN(epsilon) || math.IsInf(epsilon, 0) || epsilon < 0 {
		return searchErrorf(op, "epsilon must be finite and >= 0, got %v", epsilon)
	}

	s.lower = append([]float64(nil), lower...)
	s.upper = append([]float64(nil), upper...)
	s.isInteger = append([]bool(nil), isInteger...)
	s.epsilon = epsilon
	s.dims = d

	s.primes = firstPrimes(d)
	s.haltonIndex = 0

	s.xs, s.us, s.ys = nil, nil, nil
	s.best = 0
	s.lipschitz = 0

	s.trustNext = false
	s.localDone = false
	s.minModelPoints = (d + 1) * (d + 2) / 2
	s.modelPoints = s.minModelPoints + d
	s.radius = s.cfg.InitialRadius
	s.pending = nil

	s.lattice = newLattice(s.lower, s.upper, s.isInteger)
	s.seen = nil
	if s.lattice != nil {
		s.seen = make(map[string]struct{})
	}

	s.stats = Stats{}
	s.initialized = true

	s.logger.Debug("Search initialized",
		zap.Int("dims", d),
		zap.Float64("epsilon", epsilon),
		zap.Int("candidates", s.cfg.Candidates),
		zap.Bool("integer_lattice", s.lattice != nil),
	)
	return nil
}

// ProposeNext returns the next point to evaluate. The first proposal is the
// center of the box; afterwards trust region and global steps alternate,
// with a global step whenever the local model has nothing to offer.
func (s *Search) ProposeNext() ([]float64, error) {
	if !s.initialized {
		return nil, searchErrorf("ProposeNext", "search not initialized")
	}

	if len(s.xs) == 0 {
		center := make([]float64, s.dims)
		for j := range center {
			center[j] = 0.5
		}
		return s.fromUnit(center), nil
	}

	useTrust := s.trustNext
	s.trustNext = !s.trustNext

	if useTrust && !s.localDone && len(s.xs) >= s.minModelPoints {
		if x := s.trustRegionStep(); x != nil {
			s.stats.TrustRegionSteps++
			return x, nil
		}
	}

	if x := s.globalStep(); x != nil {
		s.stats.GlobalSteps++
		return x, nil
	}

	x, err := s.nextUnseen()
	if err != nil {
		return nil, err
	}
	s.stats.LatticeSteps++
	return x, nil
}

// ReportResult records the value y observed at x. Larger is better.
func (s *Search) ReportResult(x []float64, y float64) error {
	const op = "ReportResult"

	if !s.initialized {
		return searchErrorf(op, "search not initialized")
	}
	if len(x) != s.dims {
		return searchErrorf(op, "point has %d dimensions, want %d", len(x), s.dims)
	}
	if math.IsNaN(y) || math.IsInf(y, 0) {
		return searchErrorf(op, "value must be finite, got %v", y)
	}

	u := s.toUnit(x)
	improved := len(s.ys) == 0 || y > s.ys[s.best]

	if s.pending != nil {
		s.updateRadius(*s.pending, y)
		s.pending = nil
	} else if improved && len(s.ys) > 0 {
		// A global step found a better region; restart the local search there.
		s.radius = s.cfg.InitialRadius
	}

	s.updateLipschitz(u, y)

	s.xs = append(s.xs, append([]float64(nil), x...))
	s.us = append(s.us, u)
	s.ys = append(s.ys, y)
	if improved {
		s.best = len(s.ys) - 1
		s.localDone = false
	}
	if s.seen != nil {
		s.seen[pointKey(x)] = struct{}{}
	}
	s.stats.Evaluations++
	return nil
}

// HasConverged reports whether every point of an all-integer domain has been
// evaluated. Continuous and mixed domains never converge; they run until the
// caller's budget is spent.
func (s *Search) HasConverged() bool {
	return s.lattice != nil && s.lattice.size <= MaxTrackedLattice && uint64(len(s.seen)) >= s.lattice.size
}

// incumbent returns the best point reported so far and its value.
func (s *Search) incumbent() ([]float64, float64, bool) {
	if len(s.ys) == 0 {
		return nil, 0, false
	}
	return append([]float64(nil), s.xs[s.best]...), s.ys[s.best], true
}

// Stats returns proposal counters and the current model state.
func (s *Search) Stats() Stats {
	st := s.stats
	st.Lipschitz = s.lipschitz
	st.Radius = s.radius
	return st
}

// MarshalLogObject adds the procedure's counters to a log record.
func (s *Search) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	return s.Stats().MarshalLogObject(enc)
}

// fromUnit maps unit-cube coordinates to a point of the domain, rounding
// integer dimensions half away from zero.
func (s *Search) fromUnit(u []float64) []float64 {
	x := make([]float64, s.dims)
	for j := range x {
		v := s.lower[j] + u[j]*(s.upper[j]-s.lower[j])
		if s.isInteger[j] {
			v = math.Round(v)
		}
		x[j] = math.Min(math.Max(v, s.lower[j]), s.upper[j])
	}
	return x
}

func (s *Search) toUnit(x []float64) []float64 {
	u := make([]float64, s.dims)
	for j := range u {
		u[j] = (x[j] - s.lower[j]) / (s.upper[j] - s.lower[j])
	}
	return u
}

func distance(a, b []float64) float64 {
	return floats.Distance(a, b, 2)
}

func pointKey(x []float64) string {
	buf := make([]byte, 8*len(x))
	for j, v := range x {
		if v == 0 {
			v = 0 // fold -0 into +0
		}
		binary.LittleEndian.PutUint64(buf[8*j:], math.Float64bits(v))
	}
	return string(buf)
}

func searchErrorf(op, format string, args ...interface{}) *optimization.Error {
	return optimization.NewErrorf(format, args...).WithComponent("lipo").WithOperation(op)
}
