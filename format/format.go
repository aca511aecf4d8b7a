// Package format provides smart value formatting and type detection for
// table cells.
//
// These functions handle the messy reality of user-provided tabular data:
//   - Multiple date formats (US, EU, ISO, etc.)
//   - Currency symbols and thousand separators in numbers
//   - URLs and email addresses embedded in text columns
//
// Detection is opt-in per kind so a host can format numbers without
// linkifying URLs, and so the sort and insight layers can reuse the same
// parsing rules.
package format

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Kind classifies a cell value after detection.
type Kind int

const (
	KindText Kind = iota
	KindNumber
	KindDate
	KindURL
	KindEmail
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindDate:
		return "date"
	case KindURL:
		return "url"
	case KindEmail:
		return "email"
	default:
		return "text"
	}
}

// Detection controls which kinds the formatter attempts to detect.
// The zero value detects nothing; use DetectAll for everything.
type Detection struct {
	Numbers bool
	Dates   bool
	URLs    bool
	Emails  bool
}

// DetectAll enables every detection kind.
func DetectAll() Detection {
	return Detection{Numbers: true, Dates: true, URLs: true, Emails: true}
}

// numericRegex validates that a string is a valid numeric format after cleanup.
// Matches integers, decimals, and scientific notation.
var numericRegex = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

var (
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	urlRegex   = regexp.MustCompile(`^(https?|ftp)://[^\s]+$`)
)

// dateLayouts lists the accepted date formats, unambiguous four-digit-year
// layouts first.
var dateLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02", "2006/01/02", "2006.01.02",
	"1/2/2006", "01/02/2006", "1-2-2006", "01-02-2006",
	"Jan 2, 2006", "2 Jan 2006",
}

// ParseNumber parses a string as a number, tolerating currency symbols,
// thousands separators, and accounting-style negatives "(123.45)".
// Returns false for empty or non-numeric input.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, "€", "") // Euro
	s = strings.ReplaceAll(s, "£", "") // Pound
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if neg {
		s = "-" + s
	}

	if !numericRegex.MatchString(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// ParseDate parses a string as a calendar date or timestamp.
// Returns false if no known layout matches.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	// Bare numbers are never dates, even though some layouts would accept them.
	if numericRegex.MatchString(s) {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NumberValue extracts a float64 from an arbitrary cell value.
// Native numeric types convert directly; strings go through ParseNumber.
func NumberValue(v any) (float64, bool) {
	switch n := v.(type) {
	case nil:
		return 0, false
	case float64:
		if math.IsInf(n, 0) || math.IsNaN(n) {
			return 0, false
		}
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	case bool:
		return 0, false
	case string:
		return ParseNumber(n)
	default:
		return ParseNumber(fmt.Sprintf("%v", n))
	}
}

// DateValue extracts a time.Time from an arbitrary cell value.
func DateValue(v any) (time.Time, bool) {
	switch d := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return d, true
	case string:
		return ParseDate(d)
	default:
		return time.Time{}, false
	}
}

// Stringify renders a cell value as its plain string form.
// nil becomes the empty string.
func Stringify(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case time.Time:
		return s.Format("2006-01-02")
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", s)
	}
}

// Formatter applies smart formatting according to its detection settings.
type Formatter struct {
	detect Detection
}

// New creates a Formatter with the given detection settings.
func New(detect Detection) *Formatter {
	return &Formatter{detect: detect}
}

// Format returns the display string and detected kind for a value.
// Values that match no enabled detector pass through unchanged as text.
func (f *Formatter) Format(v any) (string, Kind) {
	raw := Stringify(v)
	if raw == "" {
		return "", KindText
	}

	if f.detect.Numbers {
		if n, ok := NumberValue(v); ok {
			return FormatNumber(n), KindNumber
		}
	}
	if f.detect.Dates {
		if t, ok := DateValue(v); ok {
			return t.Format("Jan 2, 2006"), KindDate
		}
	}
	if f.detect.URLs && urlRegex.MatchString(raw) {
		return raw, KindURL
	}
	if f.detect.Emails && emailRegex.MatchString(raw) {
		return raw, KindEmail
	}
	return raw, KindText
}

// FormatNumber renders a number with thousands separators.
// Integers drop the fractional part; other values keep two decimals.
func FormatNumber(n float64) string {
	var s string
	if n == math.Trunc(n) && math.Abs(n) < 1e15 {
		s = strconv.FormatFloat(n, 'f', 0, 64)
	} else {
		s = strconv.FormatFloat(n, 'f', 2, 64)
	}

	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	intPart, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		intPart, frac = s[:i], s[i:]
	}

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	for i, c := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	b.WriteString(frac)
	return b.String()
}
