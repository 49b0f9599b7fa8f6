// Package acquisition scores candidate points from a Gaussian process
// posterior.
package acquisition

import (
	"gonum.org/v1/gonum/stat/distuv"
)

// minSigma is the posterior deviation below which a prediction is treated
// as certain.
const minSigma = 1e-10

// ExpectedImprovement implements the Expected Improvement acquisition function
type ExpectedImprovement struct {
	// Best observed value so far
	bestObserved float64
	// Exploration-exploitation trade-off parameter (xi)
	xi float64
	// Whether lower values are better
	minimize bool
}

// NewExpectedImprovement creates an Expected Improvement acquisition function
// for maximization, the sense every search procedure works in.
func NewExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	return &ExpectedImprovement{
		bestObserved: bestObserved,
		xi:           xi,
	}
}

// NewMinimizingExpectedImprovement is NewExpectedImprovement for problems
// where lower values are better.
func NewMinimizingExpectedImprovement(bestObserved, xi float64) *ExpectedImprovement {
	ei := NewExpectedImprovement(bestObserved, xi)
	ei.minimize = true
	return ei
}

func (ei *ExpectedImprovement) improvement(mu float64) float64 {
	if ei.minimize {
		return ei.bestObserved - mu - ei.xi
	}
	return mu - ei.bestObserved - ei.xi
}

// Compute returns the expected improvement of a point whose posterior has
// mean mu and standard deviation sigma. The result is never negative.
func (ei *ExpectedImprovement) Compute(mu, sigma float64) float64 {
	improvement := ei.improvement(mu)

	if sigma <= minSigma {
		if improvement <= 0 {
			return 0
		}
		return improvement
	}

	// EI = improvement * Phi(z) + sigma * phi(z)
	z := improvement / sigma
	value := improvement*distuv.UnitNormal.CDF(z) + sigma*distuv.UnitNormal.Prob(z)
	if value < 0 {
		return 0
	}
	return value
}

// Gradient computes the directional derivative of the Expected Improvement
// given the derivatives dmu and dsigma of the posterior along that direction.
func (ei *ExpectedImprovement) Gradient(mu, dmu float64, sigma, dsigma float64) float64 {
	sign := 1.0
	if ei.minimize {
		sign = -1
	}

	if sigma <= minSigma {
		if ei.improvement(mu) <= 0 {
			return 0
		}
		return sign * dmu
	}

	z := ei.improvement(mu) / sigma
	return sign*distuv.UnitNormal.CDF(z)*dmu + distuv.UnitNormal.Prob(z)*dsigma
}

// UpdateBest updates the best observed value
func (ei *ExpectedImprovement) UpdateBest(best float64) {
	ei.bestObserved = best
}

// SetXi sets the exploration-exploitation trade-off parameter
func (ei *ExpectedImprovement) SetXi(xi float64) {
	ei.xi = xi
}

// BestObserved returns the best observed value
func (ei *ExpectedImprovement) BestObserved() float64 {
	return ei.bestObserved
}
