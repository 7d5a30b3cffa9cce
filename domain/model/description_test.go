package model

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bulgeDisk(t *testing.T) *Description {
	t.Helper()
	bulge := NewFunction("Sersic", "bulge",
		NewParameter("PA", 10), NewParameter("ell", 0.1), NewParameter("n", 4),
		NewParameter("I_e", 15), NewParameter("r_e", 25))
	disk := NewFunction("Exponential", "disk",
		NewParameter("PA", 10), NewParameter("ell", 0.3), NewParameter("I_0", 80), NewParameter("h", 40))
	d, err := NewSimpleDescription(NewParameter("X0", 129), NewParameter("Y0", 130), bulge, disk)
	require.NoError(t, err)
	d.Options["GAIN"] = 4.725
	return d
}

func TestParameterSetValueWidensLimits(t *testing.T) {
	tests := []struct {
		name    string
		value   float64
		limits  *Limits
		want    *Limits
		wantErr bool
	}{
		{"inside", 5, &Limits{1, 10}, &Limits{1, 10}, false},
		{"below lower", 0.5, &Limits{1, 10}, &Limits{0.5, 10}, false},
		{"above upper", 12, &Limits{1, 10}, &Limits{1, 12}, false},
		{"degenerate", 3, &Limits{3, 3}, nil, true},
		{"unconstrained", 3, nil, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewParameter("n", 0)
			err := p.SetValue(tt.value, tt.limits, false)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.value, p.Value)
			assert.Equal(t, tt.want, p.Limits)
		})
	}
}

func TestParameterLimitHelpers(t *testing.T) {
	p := NewParameter("sigma", 1.0)

	require.NoError(t, p.SetTolerance(0.2))
	assert.InDelta(t, 0.8, p.Limits.Lower, 1e-12)
	assert.InDelta(t, 1.2, p.Limits.Upper, 1e-12)
	assert.Error(t, p.SetTolerance(1.5))

	require.NoError(t, p.SetLimitsRel(0.5, 2))
	assert.Equal(t, &Limits{0.5, 3}, p.Limits)
	assert.Error(t, p.SetLimitsRel(-1, 1))

	require.NoError(t, p.SetLimits(2, 5))
	assert.Equal(t, &Limits{1, 5}, p.Limits, "limits widen to contain the value")
	assert.Error(t, p.SetLimits(5, 2))
}

func TestParameterString(t *testing.T) {
	p := NewParameter("PA", 18)
	assert.Equal(t, "PA\t\t18", p.String())

	require.NoError(t, p.SetLimits(0, 90))
	assert.Equal(t, "PA\t\t18\t\t0,90", p.String())

	p.Fixed = true
	assert.Equal(t, "PA\t\t18\t\tfixed", p.String())

	small := NewParameter("I_e", 4.3e-5)
	assert.Equal(t, "I_e\t\t4.3e-05", small.String(), "small values keep their significant digits")
}

func TestDescriptionLayout(t *testing.T) {
	d := bulgeDisk(t)

	assert.Equal(t, 11, d.ParameterCount())
	assert.Equal(t, 11, d.FreeParameterCount())
	assert.Equal(t, []string{"Sersic", "Exponential"}, d.FunctionList())
	assert.Equal(t, []string{"bulge", "disk"}, d.FunctionLabels())
	assert.Equal(t, []int{0}, d.FunctionSetIndices())
	assert.Equal(t, []float64{129, 130, 10, 0.1, 4, 15, 25, 10, 0.3, 80, 40}, d.RawParameters())
	assert.Equal(t, []string{
		"X0_1", "Y0_1", "PA_1", "ell_1", "n_1", "I_e_1", "r_e_1", "PA_2", "ell_2", "I_0_2", "h_2",
	}, d.ColumnNames())

	d.Sets[0].Functions[0].Params[2].Fixed = true
	assert.Equal(t, 10, d.FreeParameterCount())
}

func TestDescriptionRejectsDuplicates(t *testing.T) {
	fs := NewFunctionSet("fs0", nil, nil)
	require.NoError(t, fs.AddFunction(NewFunction("Gaussian", "")))
	assert.Error(t, fs.AddFunction(NewFunction("Gaussian", "")))

	_, err := NewDescription(NewFunctionSet("a", nil, nil), NewFunctionSet("a", nil, nil))
	assert.Error(t, err)
}

func TestFunctionSetIndicesAcrossSets(t *testing.T) {
	a := NewFunctionSet("a", nil, nil)
	require.NoError(t, a.AddFunction(NewFunction("Gaussian", "g1")))
	require.NoError(t, a.AddFunction(NewFunction("Gaussian", "g2")))
	b := NewFunctionSet("b", nil, nil)
	require.NoError(t, b.AddFunction(NewFunction("Gaussian", "g3")))

	d, err := NewDescription(a, b)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, d.FunctionSetIndices())
}

func TestWithValuesAndClone(t *testing.T) {
	d := bulgeDisk(t)
	values := d.RawParameters()
	values[4] = 2.5

	updated, err := d.WithValues(values)
	require.NoError(t, err)
	assert.Equal(t, 2.5, updated.RawParameters()[4])
	assert.Equal(t, 4.0, d.RawParameters()[4], "original must not change")
	assert.False(t, d.Equal(updated))
	assert.True(t, d.Equal(d.Clone()))

	_, err = d.WithValues(values[:3])
	assert.Error(t, err)
}

func TestDescriptionString(t *testing.T) {
	out := bulgeDisk(t).String()

	assert.True(t, strings.HasPrefix(out, "GAIN\t4.725\n\nX0\t\t129\n"))
	assert.Contains(t, out, "FUNCTION Sersic   # LABEL bulge\n")
	assert.Contains(t, out, "FUNCTION Exponential   # LABEL disk\n")
	assert.Contains(t, out, "h\t\t40\n")
}
