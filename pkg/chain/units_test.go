package chain

import (
	"math/big"
	"testing"
)

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		amount   string
		decimals int32
		want     string
	}{
		{"0", 18, "0"},
		{"1000000000000000000", 18, "1"},
		{"1500000000000000000", 18, "1.5"},
		{"1", 18, "0.000000000000000001"},
		{"1000000", 6, "1"},
		{"1234567", 6, "1.234567"},
		{"1230000", 6, "1.23"},
		{"42", 0, "42"},
	}
	for _, tc := range cases {
		amount, _ := new(big.Int).SetString(tc.amount, 10)
		got := FormatUnits(amount, tc.decimals)
		if got != tc.want {
			t.Errorf("FormatUnits(%s, %d) = %s, want %s", tc.amount, tc.decimals, got, tc.want)
		}
	}
}

func TestParseUnits(t *testing.T) {
	cases := []struct {
		s        string
		decimals int32
		want     string
	}{
		{"1", 18, "1000000000000000000"},
		{"1.5", 18, "1500000000000000000"},
		{"0.000000000000000001", 18, "1"},
		{"1.23", 6, "1230000"},
		{"0", 6, "0"},
	}
	for _, tc := range cases {
		got, err := ParseUnits(tc.s, tc.decimals)
		if err != nil {
			t.Errorf("ParseUnits(%q, %d) failed: %v", tc.s, tc.decimals, err)
			continue
		}
		if got.String() != tc.want {
			t.Errorf("ParseUnits(%q, %d) = %s, want %s", tc.s, tc.decimals, got, tc.want)
		}
	}
}

func TestParseUnitsRejectsInvalid(t *testing.T) {
	invalid := []string{"", "-1", "1.2345678", "abc", "1.2.3"}
	for _, s := range invalid {
		if _, err := ParseUnits(s, 6); err == nil {
			t.Errorf("ParseUnits(%q) should fail", s)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	for _, s := range []string{"1", "0.5", "123.456789", "0.000001"} {
		parsed, err := ParseUnits(s, 6)
		if err != nil {
			t.Fatalf("ParseUnits(%q) failed: %v", s, err)
		}
		if got := FormatUnits(parsed, 6); got != s {
			t.Errorf("round trip %q -> %q", s, got)
		}
	}
}
