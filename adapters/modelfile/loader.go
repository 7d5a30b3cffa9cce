package modelfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"imfitboot/domain/model"
	"imfitboot/ports"
)

// File is the YAML form of a model description
type File struct {
	Name    string             `yaml:"name"`
	Options map[string]float64 `yaml:"options"`
	Sets    []SetSpec          `yaml:"function_sets"`
}

// SetSpec is one function set: a shared centre and its functions
type SetSpec struct {
	Name      string         `yaml:"name"`
	X0        ParamSpec      `yaml:"x0"`
	Y0        ParamSpec      `yaml:"y0"`
	Functions []FunctionSpec `yaml:"functions"`
}

// FunctionSpec is one image function
type FunctionSpec struct {
	Type       string      `yaml:"type"`
	Label      string      `yaml:"label"`
	Parameters []ParamSpec `yaml:"parameters"`
}

// ParamSpec is one parameter. At most one of Limits, RelLimits and
// Tolerance may be given.
type ParamSpec struct {
	Name      string    `yaml:"name"`
	Value     float64   `yaml:"value"`
	Fixed     bool      `yaml:"fixed"`
	Limits    []float64 `yaml:"limits,flow"`
	RelLimits []float64 `yaml:"rel_limits,flow"`
	Tolerance *float64  `yaml:"tolerance"`
}

// Loader reads model descriptions from YAML files
type Loader struct{}

// NewLoader creates a YAML model loader
func NewLoader() *Loader { return &Loader{} }

// Load implements ports.ModelLoader
func (l *Loader) Load(path string) (*model.Description, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading model file: %w", err)
	}
	desc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return desc, nil
}

// Parse builds a description from YAML bytes
func Parse(data []byte) (*model.Description, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("invalid model YAML: %w", err)
	}
	if len(f.Sets) == 0 {
		return nil, fmt.Errorf("model has no function sets")
	}

	desc, err := model.NewDescription()
	if err != nil {
		return nil, err
	}
	desc.Name = f.Name
	for k, v := range f.Options {
		desc.Options[k] = v
	}

	for i, s := range f.Sets {
		name := s.Name
		if name == "" {
			name = fmt.Sprintf("fs%d", i)
		}
		x0, err := s.X0.build("X0")
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
		y0, err := s.Y0.build("Y0")
		if err != nil {
			return nil, fmt.Errorf("set %s: %w", name, err)
		}
		fs := model.NewFunctionSet(name, x0, y0)

		for _, fn := range s.Functions {
			if fn.Type == "" {
				return nil, fmt.Errorf("set %s: function without type", name)
			}
			f := model.NewFunction(fn.Type, fn.Label)
			for _, ps := range fn.Parameters {
				p, err := ps.build(ps.Name)
				if err != nil {
					return nil, fmt.Errorf("function %s: %w", f.Label, err)
				}
				f.AddParameter(p)
			}
			if err := fs.AddFunction(f); err != nil {
				return nil, err
			}
		}
		if err := desc.AddFunctionSet(fs); err != nil {
			return nil, err
		}
	}
	return desc, nil
}

func (ps ParamSpec) build(name string) (*model.Parameter, error) {
	if name == "" {
		return nil, fmt.Errorf("parameter without name")
	}
	given := 0
	for _, set := range []bool{ps.Limits != nil, ps.RelLimits != nil, ps.Tolerance != nil} {
		if set {
			given++
		}
	}
	if given > 1 {
		return nil, fmt.Errorf("parameter %s: limits, rel_limits and tolerance are exclusive", name)
	}

	p := model.NewParameter(name, ps.Value)
	p.Fixed = ps.Fixed
	switch {
	case ps.Limits != nil:
		if len(ps.Limits) != 2 {
			return nil, fmt.Errorf("parameter %s: limits need 2 values", name)
		}
		if err := p.SetLimits(ps.Limits[0], ps.Limits[1]); err != nil {
			return nil, err
		}
	case ps.RelLimits != nil:
		if len(ps.RelLimits) != 2 {
			return nil, fmt.Errorf("parameter %s: rel_limits need 2 values", name)
		}
		if err := p.SetLimitsRel(ps.RelLimits[0], ps.RelLimits[1]); err != nil {
			return nil, err
		}
	case ps.Tolerance != nil:
		if err := p.SetTolerance(*ps.Tolerance); err != nil {
			return nil, err
		}
	}
	return p, nil
}

var _ ports.ModelLoader = (*Loader)(nil)
