// Package optimization implements the request contract and driver for
// box-constrained, optionally mixed-integer global optimization of expensive
// black-box objectives.
//
// The point-selection strategy is a SearchProcedure supplied by the caller
// through a SearchFactory; see the lipo and bayesian sub-packages.
package optimization

import (
	"time"
)

// ObjectiveFunction defines the function to be optimized. The slice it
// receives is a private copy of the point; integer dimensions are already
// rounded. Returning an error aborts the optimization.
type ObjectiveFunction func(x []float64) (float64, error)

// Direction selects whether the objective is maximized or minimized.
type Direction int

const (
	// Maximize searches for the largest objective value.
	Maximize Direction = iota
	// Minimize searches for the smallest objective value.
	Minimize
)

// String returns "max" or "min".
func (d Direction) String() string {
	if d == Minimize {
		return "min"
	}
	return "max"
}

// sign maps caller-facing values onto the internally maximized scale and back.
func (d Direction) sign() float64 {
	if d == Minimize {
		return -1
	}
	return 1
}

// SearchProcedure is the global search strategy driven by the optimizer.
//
// Implementations must propose at least one point before HasConverged can
// return true, must never propose a point outside the bounds or with a
// fractional integer dimension, and must be deterministic for a fixed
// sequence of reported results (randomized procedures take an explicit seed).
// The driver always maximizes.
type SearchProcedure interface {
	// Initialize prepares the procedure for a new search space.
	Initialize(lower, upper []float64, isInteger []bool, epsilon float64) error

	// ProposeNext returns the next point to evaluate.
	ProposeNext() ([]float64, error)

	// ReportResult records the value observed at a proposed point.
	ReportResult(x []float64, y float64) error

	// HasConverged reports whether no improvement beyond epsilon remains provable.
	HasConverged() bool
}

// SearchFactory builds a fresh SearchProcedure for one optimization call.
type SearchFactory func(settings Settings) (SearchProcedure, error)

// Evaluation is a progress record emitted after every objective call.
// Values are on the caller's scale (not negated for minimization).
type Evaluation struct {
	Iteration uint64
	Point     []float64
	Value     float64
	BestPoint []float64
	BestValue float64
	Elapsed   time.Duration
}

// Result is the best point found and the objective's value there.
type Result struct {
	X []float64 `json:"x"`
	Y float64   `json:"y"`
}

// Outcome is a Result plus how the run ended.
type Outcome struct {
	Result      Result
	Termination State
	Evaluations uint64
	Elapsed     time.Duration
}
