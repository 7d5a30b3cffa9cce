package model

import (
	"fmt"
	"strconv"
)

// Limits is a closed [Lower, Upper] interval a parameter is allowed to vary within during a fit.
type Limits struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
}

// Parameter is one parameter line of an image-function block: a name, a current
// (initial or best-fit) value, optional fit limits and a fixed flag.
type Parameter struct {
	Name   string  `json:"name"`
	Value  float64 `json:"value"`
	Limits *Limits `json:"limits,omitempty"` // nil = unconstrained
	Fixed  bool    `json:"fixed"`
}

// NewParameter creates an unconstrained, free parameter
func NewParameter(name string, value float64) *Parameter {
	return &Parameter{Name: name, Value: value}
}

// SetValue sets the value, limits and fixed state together. Limits that do not
// contain the value are widened to include it; a degenerate or inverted interval
// is rejected.
func (p *Parameter) SetValue(value float64, limits *Limits, fixed bool) error {
	if limits != nil {
		lower, upper := limits.Lower, limits.Upper
		if value < lower {
			lower = value
		} else if value > upper {
			upper = value
		}
		if lower >= upper {
			return fmt.Errorf("parameter %s: lower limit must be < upper limit (got %g, %g)", p.Name, lower, upper)
		}
		p.Limits = &Limits{Lower: lower, Upper: upper}
	}
	p.Value = value
	p.Fixed = fixed
	return nil
}

// SetTolerance sets the limits to value*(1-tol) .. value*(1+tol), tol in [0,1].
func (p *Parameter) SetTolerance(tol float64) error {
	if tol < 0 || tol > 1 {
		return fmt.Errorf("parameter %s: tolerance must be between 0.0 and 1.0, got %g", p.Name, tol)
	}
	a, b := p.Value*(1-tol), p.Value*(1+tol)
	if a > b {
		a, b = b, a
	}
	p.Limits = &Limits{Lower: a, Upper: b}
	return nil
}

// SetLimitsRel sets the limits to [value - i1, value + i2]
func (p *Parameter) SetLimitsRel(i1, i2 float64) error {
	if i1 < 0 || i2 < 0 {
		return fmt.Errorf("parameter %s: limit intervals must be positive", p.Name)
	}
	return p.SetLimits(p.Value-i1, p.Value+i2)
}

// SetLimits sets absolute limits, widening them to include the current value
func (p *Parameter) SetLimits(v1, v2 float64) error {
	if v1 >= v2 {
		return fmt.Errorf("parameter %s: upper limit must be larger than lower limit", p.Name)
	}
	if v1 > p.Value {
		v1 = p.Value
	} else if v2 < p.Value {
		v2 = p.Value
	}
	p.Limits = &Limits{Lower: v1, Upper: v2}
	return nil
}

// Clone returns a deep copy
func (p *Parameter) Clone() *Parameter {
	c := *p
	if p.Limits != nil {
		l := *p.Limits
		c.Limits = &l
	}
	return &c
}

// Equal compares name, value, limits and fixed state
func (p *Parameter) Equal(other *Parameter) bool {
	if p == nil || other == nil {
		return p == other
	}
	if p.Name != other.Name || p.Value != other.Value || p.Fixed != other.Fixed {
		return false
	}
	if (p.Limits == nil) != (other.Limits == nil) {
		return false
	}
	return p.Limits == nil || *p.Limits == *other.Limits
}

// String renders the parameter as an imfit config line
func (p *Parameter) String() string {
	switch {
	case p.Fixed:
		return fmt.Sprintf("%s\t\t%s\t\tfixed", p.Name, formatValue(p.Value))
	case p.Limits != nil:
		return fmt.Sprintf("%s\t\t%s\t\t%s,%s", p.Name, formatValue(p.Value),
			formatValue(p.Limits.Lower), formatValue(p.Limits.Upper))
	default:
		return fmt.Sprintf("%s\t\t%s", p.Name, formatValue(p.Value))
	}
}

// formatValue writes the shortest representation that parses back to v,
// so small best-fit intensities survive a round trip through a config file.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
