package bayesian

import (
	"errors"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"github.com/copyleftdev/hyperopt/internal/optimization"
	"github.com/copyleftdev/hyperopt/internal/optimization/kernels"
)

const (
	initialJitter  = 1e-12
	maxJitterTries = 10
)

// GP implements a Gaussian Process model for Bayesian Optimization
type GP struct {
	kernel   kernels.Kernel
	noiseVar float64

	// Training data
	X *mat.Dense    // Input points (n_samples, n_features)
	y *mat.VecDense // Target values (n_samples)

	// Precomputed values
	alpha  *mat.VecDense
	chol   *mat.Cholesky
	jitter float64

	matrixPool *MatrixPool
	logger     *zap.Logger
}

// NewGP creates a new Gaussian Process model. A nil logger discards output.
func NewGP(kernel kernels.Kernel, noiseVar float64, logger *zap.Logger) *GP {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GP{
		kernel:     kernel,
		noiseVar:   noiseVar,
		matrixPool: NewMatrixPool(),
		logger:     logger.Named("gaussian_process"),
	}
}

func gpErrorf(op, format string, args ...interface{}) *optimization.Error {
	return optimization.NewErrorf(format, args...).WithComponent("gaussian_process").WithOperation(op)
}

// Fit conditions the model on X and y. The kernel matrix gets the noise
// variance on its diagonal plus as much jitter as the Cholesky factorization
// needs.
func (gp *GP) Fit(X *mat.Dense, y *mat.VecDense) error {
	const op = "GP.Fit"

	if X == nil || y == nil {
		return gpErrorf(op, "input matrices must not be nil")
	}
	if X.IsEmpty() || y.IsEmpty() {
		return gpErrorf(op, "input matrix X must not be empty")
	}

	nSamples, nFeatures := X.Dims()
	if nSamples != y.Len() {
		return gpErrorf(op, "dimension mismatch: X has %d samples but y has length %d", nSamples, y.Len())
	}

	K := gp.kernelMatrix(X)
	defer gp.matrixPool.PutSymDense(K)

	var chol mat.Cholesky
	jitter := initialJitter
	ok := false
	for try := 0; try < maxJitterTries; try++ {
		for i := 0; i < nSamples; i++ {
			K.SetSym(i, i, gp.kernel.Eval(X.RawRowView(i), X.RawRowView(i))+gp.noiseVar+jitter)
		}
		if chol.Factorize(K) {
			ok = true
			break
		}
		gp.logger.Debug("Cholesky factorization failed, increasing jitter",
			zap.Int("attempt", try+1),
			zap.Float64("jitter", jitter),
		)
		jitter *= 10
	}
	if !ok {
		return gpErrorf(op, "kernel matrix is not positive definite")
	}

	alpha := mat.NewVecDense(nSamples, nil)
	if err := chol.SolveVecTo(alpha, y); !wellConditioned(err) {
		return optimization.WrapErrorf(err, "solve for weights").
			WithComponent("gaussian_process").WithOperation(op)
	}

	gp.X = mat.DenseCopyOf(X)
	gp.y = mat.VecDenseCopyOf(y)
	gp.alpha = alpha
	gp.chol = &chol
	gp.jitter = jitter

	gp.logger.Debug("Fitted GP model",
		zap.Int("samples", nSamples),
		zap.Int("features", nFeatures),
		zap.Float64("noise_var", gp.noiseVar),
		zap.Float64("jitter", jitter),
	)
	return nil
}

// kernelMatrix fills the off-diagonal kernel values of X. The diagonal is
// left to Fit.
func (gp *GP) kernelMatrix(X *mat.Dense) *mat.SymDense {
	n, _ := X.Dims()
	K := gp.matrixPool.GetSymDense(n)
	for i := 0; i < n; i++ {
		xi := X.RawRowView(i)
		for j := i + 1; j < n; j++ {
			K.SetSym(i, j, gp.kernel.Eval(xi, X.RawRowView(j)))
		}
	}
	return K
}

// Predict returns the posterior mean and variance of the latent function at
// the rows of X.
func (gp *GP) Predict(X *mat.Dense) (*mat.VecDense, *mat.VecDense, error) {
	const op = "GP.Predict"

	if X == nil {
		return nil, nil, gpErrorf(op, "input matrix X is nil")
	}
	if gp.X == nil || gp.alpha == nil {
		return nil, nil, gpErrorf(op, "model not trained or no training data")
	}

	nTest, nFeatures := X.Dims()
	nTrain, trainFeatures := gp.X.Dims()
	if nFeatures != trainFeatures {
		return nil, nil, gpErrorf(op, "dimension mismatch: X has %d features, model has %d", nFeatures, trainFeatures)
	}

	Kstar := gp.matrixPool.GetDense(nTest, nTrain)
	defer gp.matrixPool.PutDense(Kstar)
	prior := make([]float64, nTest)
	for i := 0; i < nTest; i++ {
		xStar := X.RawRowView(i)
		prior[i] = gp.kernel.Eval(xStar, xStar)
		for j := 0; j < nTrain; j++ {
			Kstar.Set(i, j, gp.kernel.Eval(xStar, gp.X.RawRowView(j)))
		}
	}

	mean := mat.NewVecDense(nTest, nil)
	mean.MulVec(Kstar, gp.alpha)

	// variance = k** - diag(K* K^-1 K*')
	v := gp.matrixPool.GetDense(nTrain, nTest)
	defer gp.matrixPool.PutDense(v)
	if err := gp.chol.SolveTo(v, Kstar.T()); !wellConditioned(err) {
		return nil, nil, optimization.WrapErrorf(err, "solve for variance").
			WithComponent("gaussian_process").WithOperation(op)
	}

	variance := mat.NewVecDense(nTest, nil)
	for i := 0; i < nTest; i++ {
		reduction := mat.Dot(Kstar.RowView(i), v.ColView(i))
		variance.SetVec(i, math.Max(0, prior[i]-reduction))
	}

	return mean, variance, nil
}

// wellConditioned treats a condition number warning as success; the jitter
// already keeps the factorization usable.
func wellConditioned(err error) bool {
	var cond mat.Condition
	return err == nil || errors.As(err, &cond)
}

// Samples returns the number of training points.
func (gp *GP) Samples() int {
	if gp.X == nil {
		return 0
	}
	n, _ := gp.X.Dims()
	return n
}
