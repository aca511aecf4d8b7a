// Package insight computes descriptive statistics over table columns and
// turns notable findings into host-displayable messages.
//
// Each finding type carries a fixed confidence score; the generator drops
// anything below its threshold so hosts can tune how chatty insights are.
package insight

import (
	"fmt"
	"math"
	"strings"

	"github.com/tablekit/tablekit/format"
)

// Type grades the severity of an insight.
type Type string

const (
	Info    Type = "info"
	Warning Type = "warning"
	Error   Type = "error"
)

// Insight is a single generated finding.
type Insight struct {
	Type       Type    `json:"type"`
	Column     string  `json:"column"`
	Message    string  `json:"message"`
	Detail     string  `json:"detail,omitempty"`
	Confidence float64 `json:"confidence"`
}

// Fixed confidence per finding type.
const (
	confSummary    = 0.95
	confOutliers   = 0.85
	confEmptiness  = 0.90
	confDuplicates = 0.95
)

// emptyRatioFlag is the empty-value share above which a column is flagged.
const emptyRatioFlag = 0.10

// Stats holds the numeric summary for one column.
type Stats struct {
	Count  int
	Min    float64
	Max    float64
	Mean   float64
	StdDev float64 // population standard deviation
}

// Generator analyzes columns and filters results by confidence.
type Generator struct {
	// Threshold drops insights with lower confidence. Zero keeps all.
	Threshold float64
}

// Analyze inspects every listed field across the rows.
func (g *Generator) Analyze(rows []map[string]any, fields []string) []Insight {
	var out []Insight
	for _, field := range fields {
		out = append(out, g.analyzeColumn(rows, field)...)
	}

	kept := out[:0]
	for _, ins := range out {
		if ins.Confidence >= g.Threshold {
			kept = append(kept, ins)
		}
	}
	return kept
}

func (g *Generator) analyzeColumn(rows []map[string]any, field string) []Insight {
	var insights []Insight

	var nonNull []any
	empty := 0
	for _, row := range rows {
		v := row[field]
		if v == nil || strings.TrimSpace(format.Stringify(v)) == "" {
			empty++
			continue
		}
		nonNull = append(nonNull, v)
	}

	// Numeric profile: decided by the first sampled value. Non-parseable
	// entries are excluded entirely, not zero-counted into the mean.
	if len(nonNull) > 0 {
		if _, ok := format.NumberValue(nonNull[0]); ok {
			nums := make([]float64, 0, len(nonNull))
			for _, v := range nonNull {
				if n, ok := format.NumberValue(v); ok {
					nums = append(nums, n)
				}
			}
			if st, ok := Summarize(nums); ok {
				insights = append(insights, Insight{
					Type:   Info,
					Column: field,
					Message: fmt.Sprintf("%s averages %s (min %s, max %s, n=%d)",
						field, format.FormatNumber(st.Mean), format.FormatNumber(st.Min),
						format.FormatNumber(st.Max), st.Count),
					Confidence: confSummary,
				})
				if outliers := Outliers(nums, st); len(outliers) > 0 {
					insights = append(insights, Insight{
						Type:   Warning,
						Column: field,
						Message: fmt.Sprintf("%s has %d outlier value(s) beyond 2 standard deviations",
							field, len(outliers)),
						Detail:     fmt.Sprintf("mean %.2f, stddev %.2f", st.Mean, st.StdDev),
						Confidence: confOutliers,
					})
				}
			}
		}
	}

	if len(rows) > 0 {
		ratio := float64(empty) / float64(len(rows))
		if ratio > emptyRatioFlag {
			insights = append(insights, Insight{
				Type:       Warning,
				Column:     field,
				Message:    fmt.Sprintf("%s is %.0f%% empty", field, ratio*100),
				Confidence: confEmptiness,
			})
		}
	}

	// Identifier columns should be unique; detect duplicates by set size.
	if strings.Contains(strings.ToLower(field), "id") && len(nonNull) > 1 {
		unique := make(map[string]struct{}, len(nonNull))
		for _, v := range nonNull {
			unique[format.Stringify(v)] = struct{}{}
		}
		if dups := len(nonNull) - len(unique); dups > 0 {
			insights = append(insights, Insight{
				Type:       Error,
				Column:     field,
				Message:    fmt.Sprintf("%s contains %d duplicate value(s)", field, dups),
				Detail:     fmt.Sprintf("%d values, %d unique", len(nonNull), len(unique)),
				Confidence: confDuplicates,
			})
		}
	}

	return insights
}

// Summarize computes count, min, max, mean, and population standard
// deviation. Returns false for an empty input.
func Summarize(nums []float64) (Stats, bool) {
	if len(nums) == 0 {
		return Stats{}, false
	}
	st := Stats{Count: len(nums), Min: nums[0], Max: nums[0]}
	sum := 0.0
	for _, n := range nums {
		sum += n
		if n < st.Min {
			st.Min = n
		}
		if n > st.Max {
			st.Max = n
		}
	}
	st.Mean = sum / float64(len(nums))

	variance := 0.0
	for _, n := range nums {
		d := n - st.Mean
		variance += d * d
	}
	st.StdDev = math.Sqrt(variance / float64(len(nums)))
	return st, true
}

// Outliers returns values more than two standard deviations from the mean.
// Detection needs more than three samples and a nonzero spread.
func Outliers(nums []float64, st Stats) []float64 {
	if st.Count <= 3 || st.StdDev == 0 {
		return nil
	}
	var out []float64
	for _, n := range nums {
		if math.Abs(n-st.Mean) > 2*st.StdDev {
			out = append(out, n)
		}
	}
	return out
}
