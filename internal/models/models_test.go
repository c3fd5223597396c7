package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewBalanceRecord(t *testing.T) {
	r := NewBalanceRecord(" cup ", " BPA ", " Ana ", " Nómina ", decimal.NewFromInt(100), decimal.NewFromInt(1))

	if r.CurrencyCode != "CUP" {
		t.Errorf("Expected currency CUP, got %s", r.CurrencyCode)
	}
	if r.BankCode != "BPA" {
		t.Errorf("Expected bank BPA, got %s", r.BankCode)
	}
	if r.Text() != "Ana BPA Nómina" {
		t.Errorf("Unexpected marker text %q", r.Text())
	}
}

func TestMaskInstrumentID(t *testing.T) {
	tests := []struct {
		id       string
		expected string
	}{
		{"9204 1299 7000 1234", "1234"},
		{"card-77", "77"},
		{"ABCD", NoMask},
		{"", NoMask},
		{"12345", "2345"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			if got := MaskInstrumentID(tt.id); got != tt.expected {
				t.Errorf("MaskInstrumentID(%q) = %q, want %q", tt.id, got, tt.expected)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input     string
		expected  string
		wantError bool
	}{
		{"100.50", "100.5", false},
		{"$1,000.00", "1000", false},
		{"-250", "-250", false},
		{"1 500", "1500", false},
		{"", "0", true},
		{"abc", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDecimalFromString(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("ParseDecimalFromString(%q) error = %v, wantError %v", tt.input, err, tt.wantError)
			}
			if !got.Equal(decimal.RequireFromString(tt.expected)) {
				t.Errorf("ParseDecimalFromString(%q) = %s, want %s", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCoerceDecimal(t *testing.T) {
	if d, ok := CoerceDecimal("n/a"); ok || !d.IsZero() {
		t.Errorf("expected zero and false for malformed input, got %s %v", d, ok)
	}
	if d, ok := CoerceDecimal("12.5"); !ok || !d.Equal(decimal.NewFromFloat(12.5)) {
		t.Errorf("expected 12.5 and true, got %s %v", d, ok)
	}
}

func TestParseTimeWithFormats(t *testing.T) {
	loc := time.FixedZone("CST", -5*3600)

	got, err := ParseTimeWithFormats("2025-03-04", loc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Location() != loc || got.Day() != 4 {
		t.Errorf("expected date in given location, got %v", got)
	}

	if _, err := ParseTimeWithFormats("03/04/2025", loc); err != nil {
		t.Errorf("expected day-first format to parse: %v", err)
	}
	if _, err := ParseTimeWithFormats("yesterday", loc); err == nil {
		t.Error("expected error for unparseable time")
	}
}

func TestRateDirection_IsValid(t *testing.T) {
	if !RateBuy.IsValid() || !RateSell.IsValid() {
		t.Error("expected buy and sell to be valid")
	}
	if RateDirection("mid").IsValid() {
		t.Error("did not expect mid to be valid")
	}
}

func TestMaxZero(t *testing.T) {
	if !MaxZero(decimal.NewFromInt(-3)).IsZero() {
		t.Error("expected negative to clamp to zero")
	}
	if !MaxZero(decimal.NewFromInt(3)).Equal(decimal.NewFromInt(3)) {
		t.Error("expected positive to pass through")
	}
}
