package flux

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mathext"

	"imfitboot/domain/core"
	"imfitboot/domain/ensemble"
	"imfitboot/domain/model"
)

// profile computes the total flux of one function from its named parameters
type profile struct {
	params []string
	flux   func(p map[string]float64) (float64, error)
}

var profiles = map[string]profile{
	"Exponential": {
		params: []string{"ell", "I_0", "h"},
		flux: func(p map[string]float64) (float64, error) {
			if p["h"] <= 0 {
				return 0, core.NewUndefinedError(fmt.Sprintf("exponential scale length %g", p["h"]))
			}
			return 2 * math.Pi * p["I_0"] * p["h"] * p["h"] * (1 - p["ell"]), nil
		},
	},
	"Sersic": {
		params: []string{"ell", "n", "I_e", "r_e"},
		flux: func(p map[string]float64) (float64, error) {
			n, re := p["n"], p["r_e"]
			if n <= 0 || re <= 0 {
				return 0, core.NewUndefinedError(fmt.Sprintf("sersic n=%g r_e=%g", n, re))
			}
			b := SersicB(n)
			lg, _ := math.Lgamma(2 * n)
			scale := math.Exp(b + lg - 2*n*math.Log(b))
			return 2 * math.Pi * n * p["I_e"] * re * re * (1 - p["ell"]) * scale, nil
		},
	},
	"Gaussian": {
		params: []string{"ell", "I_0", "sigma"},
		flux: func(p map[string]float64) (float64, error) {
			s := p["sigma"]
			return 2 * math.Pi * p["I_0"] * s * s * (1 - p["ell"]), nil
		},
	},
	"Moffat": {
		params: []string{"ell", "I_0", "fwhm", "beta"},
		flux: func(p map[string]float64) (float64, error) {
			beta := p["beta"]
			if beta <= 1 {
				return 0, core.NewUndefinedError(fmt.Sprintf("moffat beta=%g has divergent flux", beta))
			}
			alpha := p["fwhm"] / (2 * math.Sqrt(math.Pow(2, 1/beta)-1))
			return math.Pi * alpha * alpha * p["I_0"] * (1 - p["ell"]) / (beta - 1), nil
		},
	},
	"FlatSky": {
		flux: func(map[string]float64) (float64, error) { return 0, nil },
	},
}

// SersicB solves γ(2n, b) = Γ(2n)/2 so that r_e encloses half the light.
func SersicB(n float64) float64 {
	return mathext.GammaIncRegInv(2*n, 0.5)
}

type component struct {
	label   string
	offset  int // index of the function's first parameter in the vector
	names   []string
	profile profile
}

// Evaluator computes per-function total fluxes for parameter vectors laid
// out like the model description it was built from.
type Evaluator struct {
	components []component
	size       int
	labels     []string
}

// NewEvaluator binds an evaluator to a model description. Every function
// type must have a known analytic total flux.
func NewEvaluator(desc *model.Description) (*Evaluator, error) {
	e := &Evaluator{size: desc.ParameterCount()}
	offset := 0
	for _, fs := range desc.Sets {
		offset += 2 // X0, Y0
		for _, f := range fs.Functions {
			prof, ok := profiles[f.Type]
			if !ok {
				return nil, core.NewUnsupportedFunctionError(f.Type)
			}
			names := make([]string, len(f.Params))
			for i, p := range f.Params {
				names[i] = p.Name
			}
			for _, want := range prof.params {
				if _, ok := f.Parameter(want); !ok {
					return nil, fmt.Errorf("function %s (%s) is missing parameter %s", f.Label, f.Type, want)
				}
			}
			e.components = append(e.components, component{label: f.Label, offset: offset, names: names, profile: prof})
			e.labels = append(e.labels, f.Label)
			offset += len(f.Params)
		}
	}
	return e, nil
}

// Labels returns the component labels in model order
func (e *Evaluator) Labels() []string {
	return append([]string(nil), e.labels...)
}

// EvaluateFluxes implements ports.FluxEvaluator
func (e *Evaluator) EvaluateFluxes(ctx context.Context, params ensemble.Vector) (ensemble.Fluxes, error) {
	if err := ctx.Err(); err != nil {
		return ensemble.Fluxes{}, err
	}
	if len(params) != e.size {
		return ensemble.Fluxes{}, core.NewDimensionError(e.size, len(params))
	}

	out := ensemble.Fluxes{
		Components: make([]float64, len(e.components)),
		Names:      e.Labels(),
	}
	for i, c := range e.components {
		named := make(map[string]float64, len(c.names))
		for j, name := range c.names {
			named[name] = params[c.offset+j]
		}
		f, err := c.profile.flux(named)
		if err != nil {
			return ensemble.Fluxes{}, fmt.Errorf("component %s: %w", c.label, err)
		}
		out.Components[i] = f
		out.Total += f
	}
	return out, nil
}
