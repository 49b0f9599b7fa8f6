package lipo

import (
	"math"
)

// updateLipschitz raises the Lipschitz estimate to cover the slope between
// the new observation and every earlier one.
func (s *Search) updateLipschitz(u []float64, y float64) {
	for i, ui := range s.us {
		d := distance(u, ui)
		if d == 0 {
			continue
		}
		if slope := math.Abs(y-s.ys[i]) / d; slope > s.lipschitz {
			s.lipschitz = slope
		}
	}
}

// upperBound returns the Lipschitz upper bound at u and the distance from u
// to the nearest evaluated point. The bound is +Inf when it is not in use.
func (s *Search) upperBound(u []float64, useBound bool) (bound, nearest float64) {
	bound, nearest = math.Inf(1), math.Inf(1)
	for i, ui := range s.us {
		d := distance(u, ui)
		if d < nearest {
			nearest = d
			if d == 0 {
				return bound, 0
			}
		}
		if useBound {
			if v := s.ys[i] + s.lipschitz*d; v < bound {
				bound = v
			}
		}
	}
	return bound, nearest
}

// globalStep scores the next batch of Halton candidates. It returns the
// candidate with the largest upper bound if that bound beats the incumbent by
// more than epsilon, else the candidate farthest from every evaluated point.
// It returns nil when every candidate duplicates an evaluated point.
func (s *Search) globalStep() []float64 {
	useBound := len(s.xs) >= 2 && s.lipschitz > 0

	bestBound := math.Inf(-1)
	var bounded []float64
	farthest := -1.0
	var spread []float64

	u := make([]float64, s.dims)
	for k := 0; k < s.cfg.Candidates; k++ {
		s.haltonIndex++
		haltonPoint(u, s.haltonIndex, s.primes)

		x := s.fromUnit(u)
		bound, nearest := s.upperBound(s.toUnit(x), useBound)
		if nearest == 0 {
			continue
		}
		if nearest > farthest {
			farthest = nearest
			spread = x
		}
		if useBound && bound > bestBound {
			bestBound = bound
			bounded = x
		}
	}

	if bounded != nil && bestBound > s.ys[s.best]+s.epsilon {
		return bounded
	}
	return spread
}
