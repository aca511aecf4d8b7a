// Package viz turns column values into drawable chart primitives.
//
// The engine never draws anything: a host takes a Primitive and renders it
// with whatever toolkit it has (SVG, canvas, terminal cells). Chart kind is
// a tagged variant rather than a string-dispatched switch, so adding a
// kind means adding a type.
package viz

import (
	"fmt"
)

// Kind selects a chart variant for a column.
type Kind string

const (
	KindNone      Kind = ""
	KindBar       Kind = "bar"
	KindProgress  Kind = "progress"
	KindSparkline Kind = "sparkline"
	KindPie       Kind = "pie"
)

// DefaultColors is the palette used when the host supplies none.
var DefaultColors = []string{
	"#4e79a7", "#f28e2b", "#e15759", "#76b7b4", "#59a14f",
	"#edc948", "#b07aa1", "#ff9da7", "#9c755f", "#bab0ac",
}

// Primitive is a drawable chart description. Exactly one concrete type
// exists per Kind.
type Primitive interface {
	Kind() Kind
}

// Bar is a per-row bar chart scaled against the column maximum.
type Bar struct {
	Values []float64
	Max    float64
	Colors []string
}

func (Bar) Kind() Kind { return KindBar }

// Progress renders each value as a fill percentage of the column maximum.
type Progress struct {
	Values   []float64
	Percents []float64 // same order as Values, 0..100
	Color    string
}

func (Progress) Kind() Kind { return KindProgress }

// Sparkline is a compact line over the column's values in row order.
type Sparkline struct {
	Points []float64
	Min    float64
	Max    float64
	Color  string
}

func (Sparkline) Kind() Kind { return KindSparkline }

// Slice is one segment of a pie chart.
type Slice struct {
	Label   string
	Value   float64
	Share   float64 // 0..1
	Color   string
}

// Pie aggregates equal values into shares of the whole.
type Pie struct {
	Slices []Slice
}

func (Pie) Kind() Kind { return KindPie }

// Build computes the primitive for a column. labels pair with values for
// pie slices and may be nil for other kinds. Returns an error for an
// unknown kind or empty input.
func Build(kind Kind, values []float64, labels []string, colors []string) (Primitive, error) {
	if len(values) == 0 {
		return nil, fmt.Errorf("viz: no values for %q chart", kind)
	}
	if len(colors) == 0 {
		colors = DefaultColors
	}

	switch kind {
	case KindBar:
		return Bar{Values: values, Max: max(values), Colors: colors}, nil

	case KindProgress:
		m := max(values)
		pct := make([]float64, len(values))
		for i, v := range values {
			if m > 0 {
				pct[i] = v / m * 100
			}
		}
		return Progress{Values: values, Percents: pct, Color: colors[0]}, nil

	case KindSparkline:
		return Sparkline{Points: values, Min: min(values), Max: max(values), Color: colors[0]}, nil

	case KindPie:
		return buildPie(values, labels, colors), nil

	default:
		return nil, fmt.Errorf("viz: unknown chart kind %q", kind)
	}
}

func buildPie(values []float64, labels []string, colors []string) Pie {
	type bucket struct {
		label string
		sum   float64
	}
	var order []string
	sums := map[string]*bucket{}
	total := 0.0

	for i, v := range values {
		label := ""
		if i < len(labels) {
			label = labels[i]
		}
		if label == "" {
			label = fmt.Sprintf("%g", v)
		}
		b, ok := sums[label]
		if !ok {
			b = &bucket{label: label}
			sums[label] = b
			order = append(order, label)
		}
		b.sum += v
		total += v
	}

	pie := Pie{Slices: make([]Slice, 0, len(order))}
	for i, label := range order {
		b := sums[label]
		share := 0.0
		if total != 0 {
			share = b.sum / total
		}
		pie.Slices = append(pie.Slices, Slice{
			Label: b.label,
			Value: b.sum,
			Share: share,
			Color: colors[i%len(colors)],
		})
	}
	return pie
}

func max(nums []float64) float64 {
	m := nums[0]
	for _, n := range nums[1:] {
		if n > m {
			m = n
		}
	}
	return m
}

func min(nums []float64) float64 {
	m := nums[0]
	for _, n := range nums[1:] {
		if n < m {
			m = n
		}
	}
	return m
}
