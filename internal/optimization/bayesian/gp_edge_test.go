package bayesian

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/hyperopt/internal/optimization/kernels"
)

func TestGPKernelTypes(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	nSamples, nFeatures := 10, 2

	X := mat.NewDense(nSamples, nFeatures, nil)
	y := mat.NewVecDense(nSamples, nil)
	for i := 0; i < nSamples; i++ {
		for j := 0; j < nFeatures; j++ {
			X.Set(i, j, rng.Float64())
		}
		y.SetVec(i, rng.NormFloat64())
	}

	for _, name := range []string{kernels.NameRBF, kernels.NameMatern52} {
		t.Run(name, func(t *testing.T) {
			kernel, err := kernels.New(name, 0.5, 1.0)
			require.NoError(t, err)

			gp := NewGP(kernel, 1e-6, nil)
			require.NoError(t, gp.Fit(X, y))

			mean, variance, err := gp.Predict(mat.NewDense(2, nFeatures, []float64{0.5, 0.5, 0.25, 0.75}))
			require.NoError(t, err)
			assert.Equal(t, 2, mean.Len())
			assert.Equal(t, 2, variance.Len())
			for i := 0; i < 2; i++ {
				assert.GreaterOrEqual(t, variance.AtVec(i), 0.0)
				assert.LessOrEqual(t, variance.AtVec(i), 1.0+1e-9)
			}
		})
	}
}

func TestGPRefit(t *testing.T) {
	gp := NewGP(newRBF(t, 1, 1), 1e-6, nil)

	require.NoError(t, gp.Fit(mat.NewDense(2, 1, []float64{0, 1}), mat.NewVecDense(2, []float64{0, 1})))
	require.NoError(t, gp.Fit(mat.NewDense(3, 1, []float64{0, 1, 2}), mat.NewVecDense(3, []float64{0, 1, 4})))
	assert.Equal(t, 3, gp.Samples())

	mean, _, err := gp.Predict(mat.NewDense(1, 1, []float64{2}))
	require.NoError(t, err)
	assert.InDelta(t, 4, mean.AtVec(0), 1e-3)
}

func TestMatrixPool(t *testing.T) {
	p := NewMatrixPool()

	s := p.GetSymDense(3)
	s.SetSym(0, 1, 5)
	p.PutSymDense(s)

	again := p.GetSymDense(3)
	assert.Same(t, s, again, "same size is reused")
	assert.Zero(t, again.At(0, 1), "reused matrix is zeroed")

	other := p.GetSymDense(4)
	assert.NotSame(t, s, other)
	assert.Equal(t, 4, other.SymmetricDim())

	d := p.GetDense(2, 3)
	d.Set(1, 2, 7)
	p.PutDense(d)
	assert.NotSame(t, d, p.GetDense(3, 2), "shape is part of the key")
	reused := p.GetDense(2, 3)
	assert.Same(t, d, reused)
	assert.Zero(t, reused.At(1, 2))

	p.PutDense(nil)
	p.PutSymDense(&mat.SymDense{})
}
