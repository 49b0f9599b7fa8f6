package server

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/copyleftdev/hyperopt/internal/logging"
	"github.com/copyleftdev/hyperopt/internal/objectives"
	"github.com/copyleftdev/hyperopt/internal/optimization"
)

// Job statuses.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

var (
	// ErrNotFound is returned for an unknown optimization id.
	ErrNotFound = errors.New("optimization not found")
	// ErrBusy is returned when the concurrent job limit is reached.
	ErrBusy = errors.New("too many concurrent optimizations")
	// ErrFinished is returned when cancelling a job that already ended.
	ErrFinished = errors.New("optimization already finished")
)

// OptimizationState represents the state of an optimization job.
// Fields are guarded by Server.optimizationsMu.
type OptimizationState struct {
	ID          string
	Objective   string
	Direction   optimization.Direction
	Strategy    string
	Status      string
	Termination string
	StartTime   time.Time
	EndTime     *time.Time
	LastUpdated time.Time

	Evaluations uint64
	Limit       uint64
	BestPoint   []float64
	BestValue   float64
	Result      *optimization.Result

	Err        string
	ErrKind    string
	CancelFunc context.CancelFunc
}

func (st *OptimizationState) terminal() bool {
	switch st.Status {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// startRequest is the body of POST /api/v1/optimize and the params object of
// optimization.start.
type startRequest struct {
	Objective interface{} `json:"objective"`
	Direction interface{} `json:"direction"`
	Domain    interface{} `json:"domain"`
	Options   interface{} `json:"options"`
}

func fromParams(params map[string]interface{}) startRequest {
	return startRequest{
		Objective: params["objective"],
		Direction: params["direction"],
		Domain:    params["domain"],
		Options:   params["options"],
	}
}

// validateStart checks a start request in the order objective, domain,
// options and returns the first failure as an *optimization.Error.
func (s *Server) validateStart(body startRequest) (string, *optimization.Request, error) {
	const op = "optimization.start"

	name, ok := body.Objective.(string)
	if !ok || name == "" {
		return "", nil, optimization.NewKindErrorf(optimization.KindInvalidObjective,
			"objective must be the name of a catalog function").WithOperation(op)
	}
	entry, err := objectives.Lookup(name)
	if err != nil {
		return "", nil, optimization.WrapKindErrorf(optimization.KindInvalidObjective, err,
			"resolve objective").WithOperation(op)
	}

	specs, domain, err := optimization.ParseDomain(body.Domain)
	if err != nil {
		return "", nil, err
	}

	objective, err := entry.Bind(domain.Dims())
	if err != nil {
		return "", nil, optimization.WrapKindErrorf(optimization.KindInvalidObjective, err,
			"bind objective").WithOperation(op)
	}

	direction := optimization.Maximize
	switch body.Direction {
	case nil, "max":
	case "min":
		direction = optimization.Minimize
	default:
		return "", nil, optimization.NewKindErrorf(optimization.KindInvalidOptions,
			`direction must be "max" or "min", got %v`, body.Direction).WithOperation(op)
	}

	opts, err := optimization.ParseOptions(body.Options)
	if err != nil {
		return "", nil, err
	}
	opts = s.applyLimits(opts)

	req, err := optimization.Validate(direction, objective, specs, opts)
	if err != nil {
		return "", nil, err
	}
	return name, req, nil
}

// applyLimits fills the service defaults into opts: a default strategy, an
// iteration cap for jobs without any budget and the global runtime cap.
func (s *Server) applyLimits(opts *optimization.Options) *optimization.Options {
	if opts == nil {
		opts = &optimization.Options{}
	}
	limits := s.cfg.Optimization

	if opts.Strategy == "" {
		opts.Strategy = limits.DefaultStrategy
	}
	if opts.MaxIterations == nil && opts.MaxRuntimeMs == nil {
		opts.WithMaxIterations(limits.DefaultMaxIterations)
	}
	if limits.MaxRuntime > 0 {
		capMs := float64(limits.MaxRuntime) / float64(time.Millisecond)
		if opts.MaxRuntimeMs == nil || *opts.MaxRuntimeMs > capMs {
			opts.WithMaxRuntime(limits.MaxRuntime)
		}
	}
	return opts
}

// startOptimization validates the request, registers a job and runs it in
// the background.
func (s *Server) startOptimization(body startRequest) (*OptimizationState, error) {
	name, req, err := s.validateStart(body)
	if err != nil {
		s.metrics.Rejected("invalid")
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())

	now := time.Now()
	state := &OptimizationState{
		ID:          uuid.NewString(),
		Objective:   name,
		Direction:   req.Direction,
		Strategy:    req.Settings.Strategy,
		Status:      StatusPending,
		StartTime:   now,
		LastUpdated: now,
		CancelFunc:  cancel,
	}
	state.Limit, _ = req.Settings.MaxIterations.Limit()

	s.optimizationsMu.Lock()
	if s.running >= s.cfg.Optimization.MaxConcurrentJobs {
		s.optimizationsMu.Unlock()
		cancel()
		s.metrics.Rejected("capacity")
		return nil, fmt.Errorf("%w: limit is %d", ErrBusy, s.cfg.Optimization.MaxConcurrentJobs)
	}
	s.running++
	s.optimizations[state.ID] = state
	s.optimizationsMu.Unlock()

	jobLogger := s.logger.WithFields(map[string]interface{}{
		"optimization_id": state.ID,
		"objective":       name,
		"strategy":        state.Strategy,
	})
	req.Settings.Logger = logging.NewZapLogger(jobLogger)
	req.Settings.OnEvaluation = func(ev optimization.Evaluation) {
		s.metrics.Evaluated(name)

		s.optimizationsMu.Lock()
		defer s.optimizationsMu.Unlock()
		state.Evaluations = ev.Iteration
		state.BestPoint = ev.BestPoint
		state.BestValue = ev.BestValue
		state.LastUpdated = time.Now()
	}

	s.metrics.JobStarted()
	s.wg.Add(1)
	go s.runOptimization(ctx, state, req, jobLogger)

	jobLogger.Info("Optimization started")
	return state, nil
}

// runOptimization executes the optimization process in a goroutine
func (s *Server) runOptimization(ctx context.Context, state *OptimizationState, req *optimization.Request, logger *logging.Logger) {
	defer s.wg.Done()
	defer state.CancelFunc()

	s.optimizationsMu.Lock()
	if state.Status == StatusPending {
		state.Status = StatusRunning
	}
	s.optimizationsMu.Unlock()

	start := time.Now()
	outcome, err := optimization.Run(ctx, req, s.newSearch)
	elapsed := time.Since(start)

	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	s.running--
	now := time.Now()
	state.EndTime = &now
	state.LastUpdated = now

	termination := optimization.StateFailed.String()
	switch {
	case err == nil:
		termination = outcome.Termination.String()
		state.Status = StatusCompleted
		state.Termination = termination
		state.Evaluations = outcome.Evaluations
		state.Result = &outcome.Result
		logger.Info("Optimization finished", map[string]interface{}{
			"termination": termination,
			"evaluations": outcome.Evaluations,
			"best_value":  outcome.Result.Y,
			"elapsed_ms":  float64(elapsed.Microseconds()) / 1000.0,
		})
	case optimization.KindOf(err) == optimization.KindCanceled:
		state.Status = StatusCancelled
		state.Err = err.Error()
		state.ErrKind = optimization.KindCanceled.String()
		logger.Info("Optimization cancelled", map[string]interface{}{
			"evaluations": state.Evaluations,
		})
	default:
		state.Status = StatusFailed
		state.Err = err.Error()
		state.ErrKind = optimization.KindOf(err).String()
		logger.WithError(err).Error("Optimization failed", map[string]interface{}{
			"error_kind": state.ErrKind,
		})
	}

	s.metrics.JobFinished(state.Strategy, termination, elapsed)
}

// cancelOptimization cancels a running job's context.
func (s *Server) cancelOptimization(id string) error {
	s.optimizationsMu.Lock()
	defer s.optimizationsMu.Unlock()

	state, exists := s.optimizations[id]
	if !exists {
		return ErrNotFound
	}
	if state.terminal() {
		return fmt.Errorf("%w with status %s", ErrFinished, state.Status)
	}

	state.CancelFunc()
	state.LastUpdated = time.Now()

	s.logger.Info("Optimization cancellation requested", map[string]interface{}{
		"optimization_id": id,
	})
	return nil
}

// statusResponse is the JSON view of an OptimizationState.
type statusResponse struct {
	ID          string               `json:"optimization_id"`
	Objective   string               `json:"objective"`
	Direction   string               `json:"direction"`
	Strategy    string               `json:"strategy"`
	Status      string               `json:"status"`
	Termination string               `json:"termination,omitempty"`
	Evaluations uint64               `json:"evaluations"`
	Progress    *float64             `json:"progress,omitempty"`
	StartTime   string               `json:"start_time"`
	LastUpdate  string               `json:"last_update"`
	EndTime     string               `json:"end_time,omitempty"`
	Best        *optimization.Result `json:"best,omitempty"`
	Result      *optimization.Result `json:"result,omitempty"`
	Error       string               `json:"error,omitempty"`
	ErrorKind   string               `json:"error_kind,omitempty"`
}

func (s *Server) optimizationStatus(id string) (*statusResponse, error) {
	s.optimizationsMu.RLock()
	defer s.optimizationsMu.RUnlock()

	state, exists := s.optimizations[id]
	if !exists {
		return nil, ErrNotFound
	}

	resp := &statusResponse{
		ID:          state.ID,
		Objective:   state.Objective,
		Direction:   state.Direction.String(),
		Strategy:    state.Strategy,
		Status:      state.Status,
		Termination: state.Termination,
		Evaluations: state.Evaluations,
		StartTime:   state.StartTime.Format(time.RFC3339),
		LastUpdate:  state.LastUpdated.Format(time.RFC3339),
		Result:      state.Result,
		Error:       state.Err,
		ErrorKind:   state.ErrKind,
	}
	if state.EndTime != nil {
		resp.EndTime = state.EndTime.Format(time.RFC3339)
	}
	if state.Limit > 0 {
		p := float64(state.Evaluations) / float64(state.Limit)
		resp.Progress = &p
	}
	if state.BestPoint != nil {
		resp.Best = &optimization.Result{X: state.BestPoint, Y: state.BestValue}
	}
	return resp, nil
}
