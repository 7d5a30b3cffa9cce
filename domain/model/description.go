package model

import (
	"fmt"
	"sort"
	"strings"
)

// Description is a complete image model: image-description options
// (GAIN, READNOISE, ORIGINAL_SKY, ...) and the function sets making up the model.
//
// A Description is built up with the Add* methods and then handed to a fitter;
// after that point callers treat it as read-only and use Clone / WithValues to
// derive variants.
type Description struct {
	Name    string             `json:"name,omitempty"`
	Options map[string]float64 `json:"options,omitempty"`
	Sets    []*FunctionSet     `json:"function_sets"`
}

// NewDescription creates a model description from function sets
func NewDescription(sets ...*FunctionSet) (*Description, error) {
	d := &Description{Options: map[string]float64{}}
	for _, fs := range sets {
		if err := d.AddFunctionSet(fs); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// NewSimpleDescription creates a single-function-set model centred at (x0, y0)
func NewSimpleDescription(x0, y0 *Parameter, functions ...*Function) (*Description, error) {
	fs := NewFunctionSet("fs0", x0, y0)
	for _, f := range functions {
		if err := fs.AddFunction(f); err != nil {
			return nil, err
		}
	}
	return NewDescription(fs)
}

// AddFunctionSet appends a function set; names must be unique.
func (d *Description) AddFunctionSet(fs *FunctionSet) error {
	for _, existing := range d.Sets {
		if existing.Name == fs.Name {
			return fmt.Errorf("function set named %s already exists", fs.Name)
		}
	}
	d.Sets = append(d.Sets, fs)
	return nil
}

// Functions returns every image function in model order
func (d *Description) Functions() []*Function {
	var out []*Function
	for _, fs := range d.Sets {
		out = append(out, fs.Functions...)
	}
	return out
}

// FunctionList returns the function types in model order
func (d *Description) FunctionList() []string {
	var out []string
	for _, f := range d.Functions() {
		out = append(out, f.Type)
	}
	return out
}

// FunctionLabels returns the function labels in model order
func (d *Description) FunctionLabels() []string {
	var out []string
	for _, f := range d.Functions() {
		out = append(out, f.Label)
	}
	return out
}

// FunctionSetIndices returns, for each function set, the index into
// FunctionList at which that set's functions start.
func (d *Description) FunctionSetIndices() []int {
	indices := make([]int, 0, len(d.Sets))
	start := 0
	for _, fs := range d.Sets {
		indices = append(indices, start)
		start += len(fs.Functions)
	}
	return indices
}

// ParameterList returns every parameter in config order
func (d *Description) ParameterList() []*Parameter {
	var out []*Parameter
	for _, fs := range d.Sets {
		out = append(out, fs.ParameterList()...)
	}
	return out
}

// ParameterCount is the length P of every parameter vector for this model
func (d *Description) ParameterCount() int {
	n := 0
	for _, fs := range d.Sets {
		n += 2
		for _, f := range fs.Functions {
			n += len(f.Params)
		}
	}
	return n
}

// FreeParameterCount counts parameters that are not held fixed
func (d *Description) FreeParameterCount() int {
	n := 0
	for _, p := range d.ParameterList() {
		if !p.Fixed {
			n++
		}
	}
	return n
}

// RawParameters returns the current parameter values in config order
func (d *Description) RawParameters() []float64 {
	params := d.ParameterList()
	out := make([]float64, len(params))
	for i, p := range params {
		out[i] = p.Value
	}
	return out
}

// ParameterLimits returns the limits of every parameter (nil where unconstrained)
func (d *Description) ParameterLimits() []*Limits {
	params := d.ParameterList()
	out := make([]*Limits, len(params))
	for i, p := range params {
		out[i] = p.Limits
	}
	return out
}

// ColumnNames labels each vector position the way imfit labels bootstrap
// columns: X0/Y0 carry the 1-based function-set number, function parameters
// carry the 1-based function number.
func (d *Description) ColumnNames() []string {
	names := make([]string, 0, d.ParameterCount())
	funcNum := 0
	for setIdx, fs := range d.Sets {
		names = append(names,
			fmt.Sprintf("%s_%d", fs.X0.Name, setIdx+1),
			fmt.Sprintf("%s_%d", fs.Y0.Name, setIdx+1))
		for _, f := range fs.Functions {
			funcNum++
			for _, p := range f.Params {
				names = append(names, fmt.Sprintf("%s_%d", p.Name, funcNum))
			}
		}
	}
	return names
}

// WithValues returns a copy of the description whose parameter values are
// replaced by values (config order). Limits are widened where needed.
func (d *Description) WithValues(values []float64) (*Description, error) {
	if len(values) != d.ParameterCount() {
		return nil, fmt.Errorf("expected %d parameter values, got %d", d.ParameterCount(), len(values))
	}
	c := d.Clone()
	for i, p := range c.ParameterList() {
		if err := p.SetValue(values[i], p.Limits, p.Fixed); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Clone returns a deep copy
func (d *Description) Clone() *Description {
	c := &Description{Name: d.Name, Options: make(map[string]float64, len(d.Options))}
	for k, v := range d.Options {
		c.Options[k] = v
	}
	for _, fs := range d.Sets {
		c.Sets = append(c.Sets, fs.clone())
	}
	return c
}

// Equal compares options and function sets
func (d *Description) Equal(other *Description) bool {
	if len(d.Options) != len(other.Options) || len(d.Sets) != len(other.Sets) {
		return false
	}
	for k, v := range d.Options {
		if ov, ok := other.Options[k]; !ok || ov != v {
			return false
		}
	}
	for i := range d.Sets {
		if !d.Sets[i].equal(other.Sets[i]) {
			return false
		}
	}
	return true
}

// String renders the description as an imfit configuration file
func (d *Description) String() string {
	keys := make([]string, 0, len(d.Options))
	for k := range d.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var lines []string
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s\t%s", k, formatValue(d.Options[k])))
	}
	for _, fs := range d.Sets {
		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, fs.String())
	}
	return strings.Join(lines, "\n") + "\n"
}
