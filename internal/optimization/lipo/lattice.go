package lipo

import (
	"math"
)

// lattice enumerates the points of an all-integer domain in mixed-radix
// order. It backs the search when every candidate of a global step
// duplicates an evaluated point.
type lattice struct {
	lower  []float64
	counts []uint64
	size   uint64
	cursor uint64
}

// newLattice returns nil unless every dimension is integer.
func newLattice(lower, upper []float64, isInteger []bool) *lattice {
	counts := make([]uint64, len(lower))
	size := 1.0
	for j := range lower {
		if !isInteger[j] {
			return nil
		}
		n := upper[j] - lower[j] + 1
		counts[j] = uint64(n)
		size *= n
	}

	l := &lattice{lower: lower, counts: counts}
	if size >= math.MaxInt64 {
		l.size = math.MaxInt64
	} else {
		l.size = uint64(size)
	}
	return l
}

func (l *lattice) point(index uint64) []float64 {
	x := make([]float64, len(l.counts))
	for j, n := range l.counts {
		x[j] = l.lower[j] + float64(index%n)
		index /= n
	}
	return x
}

// nextUnseen walks the lattice from where the previous walk stopped and
// returns the first point not yet evaluated. Evaluated points stay
// evaluated, so the cursor never needs to move back.
func (s *Search) nextUnseen() ([]float64, error) {
	if s.lattice == nil {
		return nil, searchErrorf("ProposeNext", "every candidate duplicates an evaluated point")
	}
	for s.lattice.cursor < s.lattice.size {
		x := s.lattice.point(s.lattice.cursor)
		s.lattice.cursor++
		if _, ok := s.seen[pointKey(x)]; !ok {
			return x, nil
		}
	}
	return nil, searchErrorf("ProposeNext", "every lattice point has been evaluated")
}
