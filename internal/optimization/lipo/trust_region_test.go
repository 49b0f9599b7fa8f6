package lipo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func diag(v ...float64) *mat.SymDense {
	h := mat.NewSymDense(len(v), nil)
	for i, x := range v {
		h.SetSym(i, i, x)
	}
	return h
}

func TestMaximizeWithinInterior(t *testing.T) {
	// s - s^2 peaks at s = 0.5.
	s, ok := maximizeWithin([]float64{1, 0}, diag(-2, -2), 10)
	require.True(t, ok)
	assert.InDelta(t, 0.5, s[0], 1e-12)
	assert.InDelta(t, 0, s[1], 1e-12)
}

func TestMaximizeWithinBoundary(t *testing.T) {
	tests := []struct {
		name  string
		g     []float64
		h     *mat.SymDense
		limit float64
		want  []float64
	}{
		{"concave, peak outside", []float64{1, 0}, diag(-2, -2), 0.1, []float64{0.1, 0}},
		{"convex", []float64{1, 0}, diag(2, 2), 0.3, []float64{0.3, 0}},
		{"indefinite", []float64{0, 1}, diag(-4, 1), 0.5, []float64{0, 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, ok := maximizeWithin(tt.g, tt.h, tt.limit)
			require.True(t, ok)
			assert.InDelta(t, tt.limit, math.Hypot(s[0], s[1]), 1e-9)
			assert.InDelta(t, tt.want[0], s[0], 1e-6)
			assert.InDelta(t, tt.want[1], s[1], 1e-6)
		})
	}
}

func TestModelGain(t *testing.T) {
	assert.InDelta(t, 0.25, modelGain([]float64{1, 0}, diag(-2, -2), []float64{0.5, 0}), 1e-15)
	assert.InDelta(t, 1.5, modelGain([]float64{1, 1}, diag(1, 0), []float64{1, 0}), 1e-15)
}

func TestLeastSquares(t *testing.T) {
	a := mat.NewDense(3, 2, []float64{
		1, 0,
		0, 1,
		1, 1,
	})
	x, ok := leastSquares(a, mat.NewVecDense(3, []float64{1, 2, 3}))
	require.True(t, ok)
	assert.InDelta(t, 1, x[0], 1e-12)
	assert.InDelta(t, 2, x[1], 1e-12)

	// Rank deficient: the minimum norm solution splits the weight.
	rankOne := mat.NewDense(2, 2, []float64{1, 1, 1, 1})
	x, ok = leastSquares(rankOne, mat.NewVecDense(2, []float64{2, 2}))
	require.True(t, ok)
	assert.InDelta(t, 1, x[0], 1e-12)
	assert.InDelta(t, 1, x[1], 1e-12)
}

func TestFitQuadraticRecoversModel(t *testing.T) {
	s := newSearch(t, []float64{0, 0}, []float64{1, 1}, []bool{false, false}, 0)
	f := func(x []float64) float64 {
		return 1 + 2*x[0] - x[1] - 3*x[0]*x[0] + x[0]*x[1] - 0.5*x[1]*x[1]
	}
	for _, x := range [][]float64{{0.5, 0.5}, {1, 0.5}, {0.5, 1}, {0, 0}, {1, 1}, {0, 0.8}, {0.8, 0.1}} {
		require.NoError(t, s.ReportResult(x, f(x)))
	}

	center := s.us[s.best]
	neighbors := s.nearest(center, s.modelPoints)
	require.Len(t, neighbors, 7)

	g, h, ok := s.fitQuadratic(neighbors, center, 1)
	require.True(t, ok)

	// Exact gradient and Hessian of f at the incumbent.
	c := s.xs[s.best]
	assert.InDelta(t, 2-6*c[0]+c[1], g[0], 1e-7)
	assert.InDelta(t, -1+c[0]-c[1], g[1], 1e-7)
	assert.InDelta(t, -6, h.At(0, 0), 1e-7)
	assert.InDelta(t, 1, h.At(0, 1), 1e-7)
	assert.InDelta(t, -1, h.At(1, 1), 1e-7)
}

func TestUpdateRadius(t *testing.T) {
	s := newSearch(t, []float64{0}, []float64{1}, []bool{false}, 0)
	require.Equal(t, DefaultInitialRadius, s.radius)

	// Good prediction on the boundary grows the radius.
	s.updateRadius(pendingStep{predicted: 1, base: 0, length: 0.1}, 0.9)
	assert.InDelta(t, 0.2, s.radius, 1e-15)

	// Good prediction inside the region leaves it alone.
	s.updateRadius(pendingStep{predicted: 1, base: 0, length: 0.05}, 1)
	assert.InDelta(t, 0.2, s.radius, 1e-15)

	// Poor prediction shrinks it to half the step.
	s.updateRadius(pendingStep{predicted: 1, base: 0, length: 0.2}, 0.1)
	assert.InDelta(t, 0.1, s.radius, 1e-15)

	// Growth is capped at the unit cube.
	s.radius = 0.8
	s.updateRadius(pendingStep{predicted: 1, base: 0, length: 0.8}, 1)
	assert.Equal(t, 1.0, s.radius)
}
