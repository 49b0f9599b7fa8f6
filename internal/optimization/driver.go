package optimization

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// State is a phase of an optimization run.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateConverged
	StateBudgetExhausted
	StateFailed
	StateDone
)

var stateNames = [...]string{
	StateIdle:            "idle",
	StateRunning:         "running",
	StateConverged:       "converged",
	StateBudgetExhausted: "budget_exhausted",
	StateFailed:          "failed",
	StateDone:            "done",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Terminal reports whether s ends the evaluate/propose loop.
func (s State) Terminal() bool {
	return s == StateConverged || s == StateBudgetExhausted || s == StateFailed
}

// Driver runs one optimization call: it asks the search procedure for points,
// evaluates them through the objective adapter and keeps the best one.
// A Driver is single-use and not safe for concurrent use.
type Driver struct {
	domain    *Domain
	settings  Settings
	direction Direction
	adapter   *objectiveAdapter
	search    SearchProcedure
	logger    *zap.Logger
	now       func() time.Time

	state       State
	termination State
	evaluations uint64
	start       time.Time

	bestPoint []float64
	bestG     float64
}

// NewDriver returns an idle driver. The inputs must already be validated.
func NewDriver(domain *Domain, settings Settings, direction Direction, objective ObjectiveFunction, search SearchProcedure) *Driver {
	logger := settings.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Driver{
		domain:    domain,
		settings:  settings,
		direction: direction,
		adapter:   newObjectiveAdapter(objective, domain, direction),
		search:    search,
		logger:    logger.Named("driver"),
		now:       time.Now,
		state:     StateIdle,
	}
}

// State returns the current phase of the run.
func (d *Driver) State() State {
	return d.state
}

// Run executes the evaluate/propose loop until convergence, budget
// exhaustion or failure. On failure no partial result is returned.
func (d *Driver) Run(ctx context.Context) (*Outcome, error) {
	if d.state != StateIdle {
		return nil, NewKindErrorf(KindSearchError, "driver already used (state %s)", d.state).
			WithComponent("driver").WithOperation("Run")
	}

	d.transition(StateRunning)
	d.start = d.now()

	d.logger.Info("Optimization started",
		zap.Stringer("direction", d.direction),
		zap.Int("dims", d.domain.Dims()),
		zap.String("strategy", d.settings.Strategy),
		zap.Float64("epsilon", d.settings.Epsilon),
		zap.Duration("max_runtime", d.settings.MaxRuntime),
	)

	if err := d.search.Initialize(d.domain.Lower, d.domain.Upper, d.domain.IsInteger, d.settings.Epsilon); err != nil {
		return nil, d.fail(WrapKindErrorf(KindSearchError, err, "initialize search procedure"))
	}

	for !d.state.Terminal() {
		if err := ctx.Err(); err != nil {
			return nil, d.fail(WrapKindErrorf(KindCanceled, err, "stopped after %d evaluations", d.evaluations))
		}
		if err := d.step(); err != nil {
			return nil, d.fail(err)
		}
	}

	elapsed := d.now().Sub(d.start)
	outcome := &Outcome{
		Result:      packageResult(d.domain, d.direction, d.bestPoint, d.bestG),
		Termination: d.termination,
		Evaluations: d.evaluations,
		Elapsed:     elapsed,
	}
	d.transition(StateDone)

	fields := []zap.Field{
		zap.Stringer("termination", outcome.Termination),
		zap.Uint64("evaluations", outcome.Evaluations),
		zap.Float64s("best_x", outcome.Result.X),
		zap.Float64("best_y", outcome.Result.Y),
		zap.Duration("elapsed", elapsed),
	}
	if stats, ok := d.search.(zapcore.ObjectMarshaler); ok {
		fields = append(fields, zap.Object("search", stats))
	}
	d.logger.Info("Optimization finished", fields...)

	return outcome, nil
}

// step performs one propose/evaluate/report cycle and the budget and
// convergence checks that follow it.
func (d *Driver) step() error {
	x, err := d.search.ProposeNext()
	if err != nil {
		return WrapKindErrorf(KindSearchError, err, "propose next point")
	}
	if !d.domain.Contains(x) {
		return NewKindErrorf(KindSearchError, "search procedure proposed %v outside the domain", x)
	}

	point, value, g, err := d.adapter.evaluate(x)
	if err != nil {
		return err
	}
	d.evaluations++

	if err := d.search.ReportResult(point, g); err != nil {
		return WrapKindErrorf(KindSearchError, err, "report result")
	}

	// Strictly greater: the first point observed with the best value wins.
	if d.bestPoint == nil || g > d.bestG {
		d.bestPoint = point
		d.bestG = g
	}

	elapsed := d.now().Sub(d.start)

	if d.logger.Core().Enabled(zap.DebugLevel) {
		d.logger.Debug("Evaluated objective",
			zap.Uint64("iteration", d.evaluations),
			zap.Float64s("x", point),
			zap.Float64("y", value),
			zap.Float64("best_y", d.direction.sign()*d.bestG),
		)
	}

	if d.settings.OnEvaluation != nil {
		d.settings.OnEvaluation(Evaluation{
			Iteration: d.evaluations,
			Point:     append([]float64(nil), point...),
			Value:     value,
			BestPoint: append([]float64(nil), d.bestPoint...),
			BestValue: d.direction.sign() * d.bestG,
			Elapsed:   elapsed,
		})
	}

	switch {
	case d.settings.MaxIterations.Exhausted(d.evaluations):
		d.terminate(StateBudgetExhausted)
	case d.settings.MaxRuntime > 0 && elapsed >= d.settings.MaxRuntime:
		d.terminate(StateBudgetExhausted)
	case d.search.HasConverged():
		d.terminate(StateConverged)
	}
	return nil
}

func (d *Driver) terminate(s State) {
	d.termination = s
	d.transition(s)
}

func (d *Driver) fail(err error) error {
	d.terminate(StateFailed)

	e, ok := IsOptimizationError(err)
	if ok && e.Component == "" {
		e.WithComponent("driver")
	}

	d.logger.Error("Optimization failed",
		zap.Uint64("evaluations", d.evaluations),
		zap.Stringer("kind", KindOf(err)),
		zap.Error(err),
	)
	d.transition(StateDone)
	return err
}

func (d *Driver) transition(to State) {
	d.logger.Debug("State transition",
		zap.Stringer("from", d.state),
		zap.Stringer("to", to),
	)
	d.state = to
}
