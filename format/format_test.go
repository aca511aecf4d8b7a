package format

import (
	"testing"
	"time"
)

func TestParseNumber(t *testing.T) {
	tests := []struct {
		input string
		want  float64
		ok    bool
	}{
		{"123", 123, true},
		{"123.45", 123.45, true},
		{"-7", -7, true},
		{"$1,234.50", 1234.5, true},
		{"€99", 99, true},
		{"(123.45)", -123.45, true},
		{"1e3", 1000, true},
		{"", 0, false},
		{"abc", 0, false},
		{"12abc", 0, false},
		{"1.2.3", 0, false},
	}

	for _, tt := range tests {
		got, ok := ParseNumber(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseNumber(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got != tt.want {
			t.Errorf("ParseNumber(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"2024-03-15", "2024-03-15", true},
		{"3/15/2024", "2024-03-15", true},
		{"Mar 15, 2024", "2024-03-15", true},
		{"2024-03-15 10:30:00", "2024-03-15", true},
		{"not a date", "", false},
		{"", "", false},
		// Bare numbers must not parse as dates.
		{"20240315", "", false},
	}

	for _, tt := range tests {
		got, ok := ParseDate(tt.input)
		if ok != tt.ok {
			t.Errorf("ParseDate(%q) ok = %v, want %v", tt.input, ok, tt.ok)
			continue
		}
		if ok && got.Format("2006-01-02") != tt.want {
			t.Errorf("ParseDate(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestNumberValue(t *testing.T) {
	if v, ok := NumberValue(42); !ok || v != 42 {
		t.Errorf("NumberValue(42) = %v, %v", v, ok)
	}
	if v, ok := NumberValue("19.5"); !ok || v != 19.5 {
		t.Errorf("NumberValue(\"19.5\") = %v, %v", v, ok)
	}
	if _, ok := NumberValue(nil); ok {
		t.Error("NumberValue(nil) should not parse")
	}
	if _, ok := NumberValue(true); ok {
		t.Error("NumberValue(true) should not parse")
	}
}

func TestFormatterDetection(t *testing.T) {
	f := New(DetectAll())

	tests := []struct {
		input    any
		wantStr  string
		wantKind Kind
	}{
		{1234567, "1,234,567", KindNumber},
		{"1234.5", "1,234.50", KindNumber},
		{"2024-01-31", "Jan 31, 2024", KindDate},
		{"https://example.com/x", "https://example.com/x", KindURL},
		{"user@example.com", "user@example.com", KindEmail},
		{"plain text", "plain text", KindText},
		{nil, "", KindText},
	}

	for _, tt := range tests {
		gotStr, gotKind := f.Format(tt.input)
		if gotStr != tt.wantStr || gotKind != tt.wantKind {
			t.Errorf("Format(%v) = %q, %v; want %q, %v",
				tt.input, gotStr, gotKind, tt.wantStr, tt.wantKind)
		}
	}
}

func TestFormatterDisabledDetection(t *testing.T) {
	f := New(Detection{})

	gotStr, gotKind := f.Format("1234.5")
	if gotKind != KindText || gotStr != "1234.5" {
		t.Errorf("Format with detection off = %q, %v; want passthrough text", gotStr, gotKind)
	}
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		input float64
		want  string
	}{
		{0, "0"},
		{999, "999"},
		{1000, "1,000"},
		{-1234567, "-1,234,567"},
		{1234.5, "1,234.50"},
	}
	for _, tt := range tests {
		if got := FormatNumber(tt.input); got != tt.want {
			t.Errorf("FormatNumber(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStringify(t *testing.T) {
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	if got := Stringify(ts); got != "2024-05-01" {
		t.Errorf("Stringify(time) = %q", got)
	}
	if got := Stringify(nil); got != "" {
		t.Errorf("Stringify(nil) = %q", got)
	}
	if got := Stringify(2.5); got != "2.5" {
		t.Errorf("Stringify(2.5) = %q", got)
	}
}
