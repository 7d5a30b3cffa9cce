package derived

import (
	"fmt"
	"strings"

	"imfitboot/domain/core"
)

// QuantityFunc maps the flux decomposition of one parameter vector to a
// scalar. It must be pure: the evaluator calls it concurrently and in any
// row order. Undefined results are reported as errors wrapping
// core.ErrUndefinedQuantity, never as NaN.
type QuantityFunc func(total float64, components []float64) (float64, error)

// Quantity is a named QuantityFunc. The name ends up in run manifests and reports.
type Quantity struct {
	Name string
	Func QuantityFunc
}

// ComponentFraction is component i's share of the total flux, e.g. B/T for
// the bulge component. Zero total flux is undefined.
func ComponentFraction(i int) QuantityFunc {
	return func(total float64, components []float64) (float64, error) {
		if i < 0 || i >= len(components) {
			return 0, fmt.Errorf("%w: component %d of %d", core.ErrDimensionMismatch, i, len(components))
		}
		if total == 0 {
			return 0, core.NewUndefinedError("total flux is zero")
		}
		return components[i] / total, nil
	}
}

// ComponentRatio is components[i] / components[j], e.g. bulge-to-disk.
func ComponentRatio(i, j int) QuantityFunc {
	return func(total float64, components []float64) (float64, error) {
		for _, k := range []int{i, j} {
			if k < 0 || k >= len(components) {
				return 0, fmt.Errorf("%w: component %d of %d", core.ErrDimensionMismatch, k, len(components))
			}
		}
		if components[j] == 0 {
			return 0, core.NewUndefinedError(fmt.Sprintf("component %d flux is zero", j))
		}
		return components[i] / components[j], nil
	}
}

// ComponentFlux is the integrated flux of component i
func ComponentFlux(i int) QuantityFunc {
	return func(total float64, components []float64) (float64, error) {
		if i < 0 || i >= len(components) {
			return 0, fmt.Errorf("%w: component %d of %d", core.ErrDimensionMismatch, i, len(components))
		}
		return components[i], nil
	}
}

// TotalFlux is the model's total integrated flux
func TotalFlux() QuantityFunc {
	return func(total float64, _ []float64) (float64, error) {
		return total, nil
	}
}

func indexOf(labels []string, label string) (int, error) {
	for i, l := range labels {
		if l == label {
			return i, nil
		}
	}
	return -1, fmt.Errorf("no component labelled %q (have %v)", label, labels)
}

// FractionByName resolves label against the model's component labels and
// returns the "fraction:<label>" quantity.
func FractionByName(labels []string, label string) (Quantity, error) {
	i, err := indexOf(labels, label)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Name: "fraction:" + label, Func: ComponentFraction(i)}, nil
}

// RatioOf resolves two labels and returns the "ratio:<a>/<b>" quantity
func RatioOf(labels []string, numerator, denominator string) (Quantity, error) {
	i, err := indexOf(labels, numerator)
	if err != nil {
		return Quantity{}, err
	}
	j, err := indexOf(labels, denominator)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Name: "ratio:" + numerator + "/" + denominator, Func: ComponentRatio(i, j)}, nil
}

// FluxOf resolves label and returns the "flux:<label>" quantity
func FluxOf(labels []string, label string) (Quantity, error) {
	i, err := indexOf(labels, label)
	if err != nil {
		return Quantity{}, err
	}
	return Quantity{Name: "flux:" + label, Func: ComponentFlux(i)}, nil
}

// Parse builds a quantity from its textual form: "fraction:bulge",
// "ratio:bulge/disk", "flux:disk" or "total".
func Parse(expr string, labels []string) (Quantity, error) {
	if expr == "total" {
		return Quantity{Name: "total", Func: TotalFlux()}, nil
	}
	kind, arg, _ := strings.Cut(expr, ":")
	switch kind {
	case "fraction":
		return FractionByName(labels, arg)
	case "flux":
		return FluxOf(labels, arg)
	case "ratio":
		if num, den, ok := strings.Cut(arg, "/"); ok {
			return RatioOf(labels, num, den)
		}
	}
	return Quantity{}, fmt.Errorf("unrecognised quantity %q (want fraction:<label>, ratio:<a>/<b>, flux:<label> or total)", expr)
}
