package model

import (
	"fmt"
	"strings"
)

// Function is a single imfit image function (e.g. "Sersic", "Exponential")
// with an optional label such as "bulge" or "disk".
type Function struct {
	Type   string       `json:"type"`
	Label  string       `json:"label"`
	Params []*Parameter `json:"parameters"`
}

// NewFunction creates a function; the label defaults to the function type.
func NewFunction(funcType, label string, params ...*Parameter) *Function {
	if label == "" {
		label = funcType
	}
	return &Function{Type: funcType, Label: label, Params: params}
}

// AddParameter appends a parameter in config order
func (f *Function) AddParameter(p *Parameter) {
	f.Params = append(f.Params, p)
}

// Parameter looks a parameter up by name
func (f *Function) Parameter(name string) (*Parameter, bool) {
	for _, p := range f.Params {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (f *Function) clone() *Function {
	c := &Function{Type: f.Type, Label: f.Label, Params: make([]*Parameter, len(f.Params))}
	for i, p := range f.Params {
		c.Params[i] = p.Clone()
	}
	return c
}

func (f *Function) equal(other *Function) bool {
	if f.Type != other.Type || f.Label != other.Label || len(f.Params) != len(other.Params) {
		return false
	}
	for i := range f.Params {
		if !f.Params[i].Equal(other.Params[i]) {
			return false
		}
	}
	return true
}

func (f *Function) String() string {
	lines := []string{fmt.Sprintf("FUNCTION %s   # LABEL %s", f.Type, f.Label)}
	for _, p := range f.Params {
		lines = append(lines, p.String())
	}
	return strings.Join(lines, "\n")
}

// FunctionSet is a block of image functions sharing one (X0, Y0) center.
type FunctionSet struct {
	Name      string      `json:"name"`
	X0        *Parameter  `json:"x0"`
	Y0        *Parameter  `json:"y0"`
	Functions []*Function `json:"functions"`
}

// NewFunctionSet creates an empty function set centred at (0, 0) unless
// x0/y0 are supplied.
func NewFunctionSet(name string, x0, y0 *Parameter) *FunctionSet {
	if x0 == nil {
		x0 = NewParameter("X0", 0)
	}
	if y0 == nil {
		y0 = NewParameter("Y0", 0)
	}
	return &FunctionSet{Name: name, X0: x0, Y0: y0}
}

// AddFunction appends a function; labels must be unique within the set.
func (fs *FunctionSet) AddFunction(f *Function) error {
	for _, existing := range fs.Functions {
		if existing.Label == f.Label {
			return fmt.Errorf("function named %s already exists in set %s", f.Label, fs.Name)
		}
	}
	fs.Functions = append(fs.Functions, f)
	return nil
}

// ParameterList returns X0, Y0 followed by every function parameter
func (fs *FunctionSet) ParameterList() []*Parameter {
	params := []*Parameter{fs.X0, fs.Y0}
	for _, f := range fs.Functions {
		params = append(params, f.Params...)
	}
	return params
}

func (fs *FunctionSet) clone() *FunctionSet {
	c := &FunctionSet{Name: fs.Name, X0: fs.X0.Clone(), Y0: fs.Y0.Clone()}
	for _, f := range fs.Functions {
		c.Functions = append(c.Functions, f.clone())
	}
	return c
}

func (fs *FunctionSet) equal(other *FunctionSet) bool {
	if fs.Name != other.Name || !fs.X0.Equal(other.X0) || !fs.Y0.Equal(other.Y0) ||
		len(fs.Functions) != len(other.Functions) {
		return false
	}
	for i := range fs.Functions {
		if !fs.Functions[i].equal(other.Functions[i]) {
			return false
		}
	}
	return true
}

func (fs *FunctionSet) String() string {
	lines := []string{fs.X0.String(), fs.Y0.String()}
	for _, f := range fs.Functions {
		lines = append(lines, f.String())
	}
	return strings.Join(lines, "\n")
}
