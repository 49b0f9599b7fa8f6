package optimization

import (
	"math"

	apperrors "github.com/copyleftdev/hyperopt/internal/errors"
)

// objectiveAdapter wraps the caller's objective so the driver always
// maximizes g(x) = sign * f(x) over points that honor the domain.
type objectiveAdapter struct {
	f         ObjectiveFunction
	domain    *Domain
	direction Direction
}

func newObjectiveAdapter(f ObjectiveFunction, domain *Domain, direction Direction) *objectiveAdapter {
	return &objectiveAdapter{f: f, domain: domain, direction: direction}
}

// evaluate calls the objective at x. It returns the point actually handed to
// the objective (integer dimensions rounded), the caller-facing value and
// the internal, always-maximized value.
func (a *objectiveAdapter) evaluate(x []float64) (point []float64, value, g float64, err error) {
	const op = "evaluate"

	point = a.domain.Round(x)

	value, err = a.call(point)
	if err != nil {
		return nil, 0, 0, WrapKindErrorf(KindObjectiveError, err, "objective failed at %v", point).
			WithComponent("objective").WithOperation(op)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil, 0, 0, NewKindErrorf(KindObjectiveError, "objective returned non-finite value %v at %v", value, point).
			WithComponent("objective").WithOperation(op)
	}

	return point, value, a.direction.sign() * value, nil
}

// call invokes the objective on a private copy of point, turning a panic into
// an error.
func (a *objectiveAdapter) call(point []float64) (value float64, err error) {
	arg := make([]float64, len(point))
	copy(arg, point)

	defer func() {
		if rec := recover(); rec != nil {
			err = apperrors.FromPanic(rec).
				WithMessage("objective panicked").
				WithComponent("objective")
		}
	}()

	return a.f(arg)
}
