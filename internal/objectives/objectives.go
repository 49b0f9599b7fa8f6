// Package objectives is a catalog of named benchmark functions. The service
// resolves the "objective" field of a job against it.
package objectives

import (
	"fmt"
	"math"
	"sort"

	"github.com/copyleftdev/hyperopt/internal/optimization"
)

// Objective is a catalog entry.
type Objective struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	// Dims is the required dimension count; zero means any.
	Dims int `json:"dims,omitempty"`
	// Domain is a suggested search domain when Dims is fixed.
	Domain []optimization.VariableSpec `json:"domain,omitempty"`

	Func optimization.ObjectiveFunction `json:"-"`
}

var catalog = map[string]*Objective{}

func register(o *Objective) {
	if _, dup := catalog[o.Name]; dup {
		panic("objectives: duplicate name " + o.Name)
	}
	catalog[o.Name] = o
}

func init() {
	register(&Objective{
		Name:        "sphere",
		Description: "sum of x_i^2; minimum 0 at the origin",
		Func:        Sphere,
	})
	register(&Objective{
		Name:        "rosenbrock",
		Description: "(1-x)^2 + 100(y-x^2)^2; minimum 0 at (1, 1)",
		Dims:        2,
		Domain:      []optimization.VariableSpec{optimization.Bounds(-10, 10), optimization.Bounds(-10, 10)},
		Func:        Rosenbrock,
	})
	register(&Objective{
		Name:        "sin",
		Description: "sin(x); maximum 1 at pi/2 on [-3, 3]",
		Dims:        1,
		Domain:      []optimization.VariableSpec{optimization.Bounds(-3, 3)},
		Func:        Sin,
	})
	register(&Objective{
		Name:        "sinc-squared",
		Description: "sin(x^2)/x; minimum near -0.4633 at 2.1457 on [0, 3.5]",
		Dims:        1,
		Domain:      []optimization.VariableSpec{optimization.Bounds(0, 3.5)},
		Func:        SincSquared,
	})
	register(&Objective{
		Name:        "rastrigin",
		Description: "10n + sum(x_i^2 - 10cos(2 pi x_i)); minimum 0 at the origin",
		Func:        Rastrigin,
	})
	register(&Objective{
		Name:        "sum",
		Description: "sum of x_i; meant for integer domains",
		Func:        Sum,
	})
	register(&Objective{
		Name:        "himmelblau",
		Description: "(x^2+y-11)^2 + (x+y^2-7)^2; four minima of 0",
		Dims:        2,
		Domain:      []optimization.VariableSpec{optimization.Bounds(-5, 5), optimization.Bounds(-5, 5)},
		Func:        Himmelblau,
	})
}

// Lookup returns the named objective.
func Lookup(name string) (*Objective, error) {
	o, ok := catalog[name]
	if !ok {
		return nil, fmt.Errorf("unknown objective %q", name)
	}
	return o, nil
}

// List returns every objective sorted by name.
func List() []*Objective {
	out := make([]*Objective, 0, len(catalog))
	for _, o := range catalog {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Bind returns o's function checked against a dims-dimensional domain.
func (o *Objective) Bind(dims int) (optimization.ObjectiveFunction, error) {
	if o.Dims != 0 && o.Dims != dims {
		return nil, fmt.Errorf("objective %q needs %d dimensions, domain has %d", o.Name, o.Dims, dims)
	}
	return o.Func, nil
}

func Sphere(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v * v
	}
	return sum, nil
}

func Rosenbrock(x []float64) (float64, error) {
	a, b := 1-x[0], x[1]-x[0]*x[0]
	return a*a + 100*b*b, nil
}

func Sin(x []float64) (float64, error) {
	return math.Sin(x[0]), nil
}

// SincSquared is sin(x^2)/x, continued to 0 at x = 0.
func SincSquared(x []float64) (float64, error) {
	if x[0] == 0 {
		return 0, nil
	}
	return math.Sin(x[0]*x[0]) / x[0], nil
}

func Rastrigin(x []float64) (float64, error) {
	sum := 10 * float64(len(x))
	for _, v := range x {
		sum += v*v - 10*math.Cos(2*math.Pi*v)
	}
	return sum, nil
}

func Sum(x []float64) (float64, error) {
	sum := 0.0
	for _, v := range x {
		sum += v
	}
	return sum, nil
}

func Himmelblau(x []float64) (float64, error) {
	a := x[0]*x[0] + x[1] - 11
	b := x[0] + x[1]*x[1] - 7
	return a*a + b*b, nil
}
