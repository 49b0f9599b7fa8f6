package lipo

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// Eigenvalues below this fraction of the largest are dropped when
	// solving the model's least squares problem.
	pinvCutoff = 1e-13
	// Bisection steps used to hit the trust radius boundary.
	boundaryIterations = 200
	minStepLength      = 1e-14
	minRadius          = 1e-12
)

// pendingStep remembers a trust region proposal until its value comes back.
type pendingStep struct {
	predicted float64
	base      float64
	length    float64
}

// updateRadius grows the trust radius after a good prediction that reached
// the boundary and shrinks it after a poor one.
func (s *Search) updateRadius(p pendingStep, y float64) {
	rho := (y - p.base) / p.predicted
	switch {
	case rho >= 0.75 && p.length >= 0.9*s.radius:
		s.radius = math.Min(2*s.radius, 1)
	case rho < 0.25:
		s.radius = 0.5 * p.length
	}
}

// trustRegionStep fits a quadratic model around the incumbent and proposes
// the model maximizer within the trust radius. It returns nil, and marks the
// local search as finished, when the model predicts no gain above epsilon or
// the step would land on an evaluated point.
func (s *Search) trustRegionStep() []float64 {
	center := s.us[s.best]
	neighbors := s.nearest(center, s.modelPoints)

	scale := 0.0
	for _, i := range neighbors {
		scale = math.Max(scale, distance(s.us[i], center))
	}
	if scale == 0 {
		return nil
	}
	limit := math.Min(s.radius, scale) / scale

	g, h, ok := s.fitQuadratic(neighbors, center, scale)
	if !ok {
		s.localDone = true
		return nil
	}
	step, ok := maximizeWithin(g, h, limit)
	if !ok {
		s.localDone = true
		return nil
	}

	cand := make([]float64, s.dims)
	for j := range cand {
		cand[j] = math.Min(math.Max(center[j]+scale*step[j], 0), 1)
	}
	x := s.fromUnit(cand)
	cu := s.toUnit(x)

	z := make([]float64, s.dims)
	for j := range z {
		z[j] = (cu[j] - center[j]) / scale
	}
	predicted := modelGain(g, h, z)
	length := distance(cu, center)

	if predicted <= s.epsilon || length < minStepLength || s.radius < minRadius {
		s.localDone = true
		return nil
	}
	for _, u := range s.us {
		if distance(u, cu) == 0 {
			s.localDone = true
			return nil
		}
	}

	s.pending = &pendingStep{
		predicted: predicted,
		base:      s.ys[s.best],
		length:    length,
	}
	return x
}

// nearest returns the indices of the m evaluated points closest to center,
// ties broken by evaluation order.
func (s *Search) nearest(center []float64, m int) []int {
	idx := make([]int, len(s.us))
	dist := make([]float64, len(s.us))
	for i, u := range s.us {
		idx[i] = i
		dist[i] = distance(u, center)
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return dist[idx[a]] < dist[idx[b]]
	})
	if len(idx) > m {
		idx = idx[:m]
	}
	return idx
}

// fitQuadratic fits y - y_best ~ c + g.z + z'Hz/2 over the given points,
// with z the offset from center divided by scale.
func (s *Search) fitQuadratic(points []int, center []float64, scale float64) ([]float64, *mat.SymDense, bool) {
	d := s.dims
	a := mat.NewDense(len(points), s.minModelPoints, nil)
	b := mat.NewVecDense(len(points), nil)

	z := make([]float64, d)
	for row, i := range points {
		for j := range z {
			z[j] = (s.us[i][j] - center[j]) / scale
		}
		a.Set(row, 0, 1)
		col := 1
		for j := 0; j < d; j++ {
			a.Set(row, col, z[j])
			col++
		}
		for j := 0; j < d; j++ {
			for k := j; k < d; k++ {
				a.Set(row, col, z[j]*z[k])
				col++
			}
		}
		b.SetVec(row, s.ys[i]-s.ys[s.best])
	}

	coef, ok := leastSquares(a, b)
	if !ok {
		return nil, nil, false
	}

	g := append([]float64(nil), coef[1:1+d]...)
	h := mat.NewSymDense(d, nil)
	col := 1 + d
	for j := 0; j < d; j++ {
		for k := j; k < d; k++ {
			if j == k {
				h.SetSym(j, j, 2*coef[col])
			} else {
				h.SetSym(j, k, coef[col])
			}
			col++
		}
	}
	return g, h, true
}

// leastSquares returns the minimum norm solution of a x = b through the
// eigendecomposition of a'a.
func leastSquares(a *mat.Dense, b *mat.VecDense) ([]float64, bool) {
	_, n := a.Dims()

	var ata mat.SymDense
	ata.SymOuterK(1, a.T())
	var atb mat.VecDense
	atb.MulVec(a.T(), b)

	var eig mat.EigenSym
	if !eig.Factorize(&ata, true) {
		return nil, false
	}
	values := eig.Values(nil)
	var vectors mat.Dense
	eig.VectorsTo(&vectors)

	largest := 0.0
	for _, e := range values {
		largest = math.Max(largest, math.Abs(e))
	}

	x := make([]float64, n)
	for k, e := range values {
		if e <= largest*pinvCutoff {
			continue
		}
		col := vectors.ColView(k)
		c := mat.Dot(col, &atb) / e
		for i := range x {
			x[i] += c * col.AtVec(i)
		}
	}
	return x, true
}

// maximizeWithin maximizes g.s + s'Hs/2 subject to |s| <= limit. It works on
// the equivalent minimization of s'Bs/2 - g.s with B = -H, picking the
// shift lambda >= max(0, -min eig B) whose step lies on the boundary.
func maximizeWithin(g []float64, h *mat.SymDense, limit float64) ([]float64, bool) {
	d := len(g)

	b := mat.NewSymDense(d, nil)
	b.ScaleSym(-1, h)

	var eig mat.EigenSym
	if !eig.Factorize(b, true) {
		return nil, false
	}
	values := eig.Values(nil)
	var q mat.Dense
	eig.VectorsTo(&q)

	// Gradient of the minimized model in the eigenbasis.
	proj := make([]float64, d)
	for k := 0; k < d; k++ {
		for i := 0; i < d; i++ {
			proj[k] -= q.At(i, k) * g[i]
		}
	}

	w := make([]float64, d)
	step := func(lambda float64) []float64 {
		for k := range w {
			w[k] = -proj[k] / (values[k] + lambda)
		}
		s := make([]float64, d)
		for i := range s {
			for k := range w {
				s[i] += q.At(i, k) * w[k]
			}
		}
		return s
	}
	norm := func(v []float64) float64 {
		return floats.Norm(v, 2)
	}

	smallest := floats.Min(values)
	if smallest > 0 {
		if s := step(0); norm(s) <= limit {
			return finiteStep(s)
		}
	}

	lo := math.Max(0, -smallest)
	lo += 1e-15 * math.Max(1, math.Abs(lo))
	hi := math.Max(2*lo, 1)
	for norm(step(hi)) > limit {
		hi *= 2
	}

	if s := step(lo); norm(s) < limit {
		return finiteStep(s)
	}
	for i := 0; i < boundaryIterations; i++ {
		mid := 0.5 * (lo + hi)
		if norm(step(mid)) > limit {
			lo = mid
		} else {
			hi = mid
		}
	}
	return finiteStep(step(hi))
}

func finiteStep(s []float64) ([]float64, bool) {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, false
		}
	}
	return s, true
}

// modelGain evaluates g.z + z'Hz/2.
func modelGain(g []float64, h *mat.SymDense, z []float64) float64 {
	zv := mat.NewVecDense(len(z), z)
	return floats.Dot(g, z) + 0.5*mat.Inner(zv, h, zv)
}
