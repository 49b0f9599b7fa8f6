package optimization

// packageResult converts the driver's best point and internal value into the
// caller-facing Result: integer dimensions are rounded once more and the sign
// flip applied for minimization is undone.
func packageResult(domain *Domain, direction Direction, best []float64, g float64) Result {
	return Result{
		X: domain.Round(best),
		Y: direction.sign() * g,
	}
}
