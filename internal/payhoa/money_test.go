package payhoa

import "testing"

func TestCentsDollars(t *testing.T) {
	tests := []struct {
		cents Cents
		want  string
	}{
		{0, "0.00"},
		{1, "0.01"},
		{-1, "-0.01"},
		{200, "2.00"},
		{2301777, "23017.77"},
		{-150050, "-1500.50"},
	}
	for _, tt := range tests {
		if got := tt.cents.Dollars(); got != tt.want {
			t.Errorf("Cents(%d).Dollars() = %q, want %q", tt.cents, got, tt.want)
		}
	}
}

func TestCentsString(t *testing.T) {
	if got := Cents(2301777).String(); got != "$23017.77" {
		t.Errorf("Expected $23017.77, got %s", got)
	}
	if got := Cents(-200).String(); got != "-$2.00" {
		t.Errorf("Expected -$2.00, got %s", got)
	}
	if got := Cents(0).String(); got != "$0.00" {
		t.Errorf("Expected $0.00, got %s", got)
	}
}

func TestCentsAbs(t *testing.T) {
	if got := Cents(-15000).Abs(); got != 15000 {
		t.Errorf("Expected 15000, got %d", got)
	}
	if got := Cents(15000).Abs(); got != 15000 {
		t.Errorf("Expected 15000, got %d", got)
	}
	if got := Cents(0).Abs(); got != 0 {
		t.Errorf("Expected 0, got %d", got)
	}
}

func TestParseDollars(t *testing.T) {
	tests := []struct {
		in   string
		want Cents
	}{
		{"150", 15000},
		{"2.00", 200},
		{"0.01", 1},
		{"-2.00", -200},
		{"-$2.00", -200},
		{"$1,234.56", 123456},
		{"  23017.77 ", 2301777},
		{"0", 0},
	}
	for _, tt := range tests {
		got, err := ParseDollars(tt.in)
		if err != nil {
			t.Errorf("ParseDollars(%q) returned error: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseDollars(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseDollars_Invalid(t *testing.T) {
	for _, in := range []string{"", "   ", "abc", "1.005", "12.3.4"} {
		if _, err := ParseDollars(in); err == nil {
			t.Errorf("ParseDollars(%q) expected error, got none", in)
		}
	}
}
