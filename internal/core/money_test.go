package core

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"15000", "15000", true},
		{"1.23", "1.23", true},
		{"1,23", "1.23", true},
		{"0.01", "0.01", true},
		{" 2.50 ", "2.5", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.00", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"1e3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || !got.Equal(decimal.RequireFromString(tc.out)) {
				t.Fatalf("%q expected %s, got %s (err=%v)", tc.in, tc.out, got, err)
			}
			continue
		}
		if !errors.Is(err, ErrInvalidAmount) {
			t.Fatalf("%q expected ErrInvalidAmount, got %v", tc.in, err)
		}
		if !errors.Is(err, ErrValidation) {
			t.Fatalf("%q expected a validation error, got %v", tc.in, err)
		}
	}
}
