// Package kernels provides stationary covariance functions for the Gaussian
// process used by the Bayesian search procedure.
package kernels

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// Kernel names accepted by New.
const (
	NameRBF      = "rbf"
	NameMatern52 = "matern52"
)

// Kernel represents a kernel function for Gaussian Processes
type Kernel interface {
	// Eval computes the kernel value between two points x1 and x2
	Eval(x1, x2 []float64) float64

	// Hyperparameters returns the length scale and signal variance.
	Hyperparameters() []float64

	// SetHyperparameters sets the length scale and signal variance.
	SetHyperparameters(params []float64) error
}

// New returns the kernel registered under name.
func New(name string, lengthScale, signalVar float64) (Kernel, error) {
	switch name {
	case NameRBF:
		return NewRBFKernel(lengthScale, signalVar)
	case NameMatern52, "":
		return NewMatern52Kernel(lengthScale, signalVar)
	default:
		return nil, fmt.Errorf("unknown kernel %q", name)
	}
}

// stationary holds the hyperparameters shared by the distance-based kernels.
type stationary struct {
	lengthScale float64
	signalVar   float64
}

func newStationary(lengthScale, signalVar float64) (stationary, error) {
	s := stationary{}
	if err := s.SetHyperparameters([]float64{lengthScale, signalVar}); err != nil {
		return stationary{}, err
	}
	return s, nil
}

// Hyperparameters returns the current hyperparameters
func (s *stationary) Hyperparameters() []float64 {
	return []float64{s.lengthScale, s.signalVar}
}

// SetHyperparameters sets the kernel's hyperparameters
func (s *stationary) SetHyperparameters(params []float64) error {
	if len(params) != 2 {
		return fmt.Errorf("expected 2 hyperparameters, got %d", len(params))
	}
	for _, p := range params {
		if !(p > 0) || math.IsInf(p, 0) {
			return fmt.Errorf("hyperparameters must be positive and finite, got %v", params)
		}
	}
	s.lengthScale = params[0]
	s.signalVar = params[1]
	return nil
}

// RBFKernel implements the Radial Basis Function (squared exponential) kernel
type RBFKernel struct {
	stationary
}

// NewRBFKernel creates a new RBF kernel with the given parameters
func NewRBFKernel(lengthScale, signalVar float64) (*RBFKernel, error) {
	s, err := newStationary(lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &RBFKernel{stationary: s}, nil
}

// Eval computes the RBF kernel value between x1 and x2
func (k *RBFKernel) Eval(x1, x2 []float64) float64 {
	r := floats.Distance(x1, x2, 2) / k.lengthScale
	return k.signalVar * math.Exp(-0.5*r*r)
}

// Matern52Kernel implements the Matérn 5/2 kernel
type Matern52Kernel struct {
	stationary
}

// NewMatern52Kernel creates a new Matérn 5/2 kernel with the given parameters
func NewMatern52Kernel(lengthScale, signalVar float64) (*Matern52Kernel, error) {
	s, err := newStationary(lengthScale, signalVar)
	if err != nil {
		return nil, err
	}
	return &Matern52Kernel{stationary: s}, nil
}

// Eval computes the Matérn 5/2 kernel value between x1 and x2
func (k *Matern52Kernel) Eval(x1, x2 []float64) float64 {
	r := math.Sqrt(5) * floats.Distance(x1, x2, 2) / k.lengthScale
	return k.signalVar * (1 + r + r*r/3) * math.Exp(-r)
}
