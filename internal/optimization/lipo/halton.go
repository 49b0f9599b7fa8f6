package lipo

// firstPrimes returns the first n primes, the Halton bases for n dimensions.
func firstPrimes(n int) []uint64 {
	primes := make([]uint64, 0, n)
	for c := uint64(2); len(primes) < n; c++ {
		prime := true
		for _, p := range primes {
			if p*p > c {
				break
			}
			if c%p == 0 {
				prime = false
				break
			}
		}
		if prime {
			primes = append(primes, c)
		}
	}
	return primes
}

// radicalInverse mirrors the base-b digits of i around the radix point.
func radicalInverse(i, base uint64) float64 {
	b := float64(base)
	f, r := 1.0, 0.0
	for i > 0 {
		f /= b
		r += f * float64(i%base)
		i /= base
	}
	return r
}

// haltonPoint writes the index-th Halton point into u.
func haltonPoint(u []float64, index uint64, primes []uint64) {
	for j := range u {
		u[j] = radicalInverse(index, primes[j])
	}
}
