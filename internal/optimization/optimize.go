package optimization

import (
	"context"
)

// Request is a fully validated optimization call, ready to run.
type Request struct {
	Direction Direction
	Objective ObjectiveFunction
	Domain    *Domain
	Settings  Settings
}

// Validate checks an optimization call in a fixed order, reporting the first
// failure only: objective, then domain, then options.
func Validate(direction Direction, objective ObjectiveFunction, specs []VariableSpec, opts *Options) (*Request, error) {
	if objective == nil {
		return nil, NewKindErrorf(KindInvalidObjective, "objective must be a non-nil function").
			WithComponent("objective").WithOperation("Validate")
	}

	domain, err := NormalizeDomain(specs)
	if err != nil {
		return nil, err
	}

	settings, err := ResolveOptions(opts)
	if err != nil {
		return nil, err
	}

	return &Request{
		Direction: direction,
		Objective: objective,
		Domain:    domain,
		Settings:  settings,
	}, nil
}

// Run builds the search procedure for req and drives it to completion.
// A nil ctx is treated as context.Background.
func Run(ctx context.Context, req *Request, newSearch SearchFactory) (*Outcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if newSearch == nil {
		return nil, NewKindErrorf(KindSearchError, "no search procedure factory").
			WithComponent("driver").WithOperation("Run")
	}

	search, err := newSearch(req.Settings)
	if err != nil {
		return nil, WrapKindErrorf(KindSearchError, err, "create %s search procedure", req.Settings.Strategy).
			WithComponent("driver").WithOperation("Run")
	}

	return NewDriver(req.Domain, req.Settings, req.Direction, req.Objective, search).Run(ctx)
}

// Optimize validates the call and runs it.
func Optimize(ctx context.Context, direction Direction, objective ObjectiveFunction, specs []VariableSpec, opts *Options, newSearch SearchFactory) (*Outcome, error) {
	req, err := Validate(direction, objective, specs, opts)
	if err != nil {
		return nil, err
	}
	return Run(ctx, req, newSearch)
}
