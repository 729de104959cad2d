package textutil

import (
	"testing"
	"time"
)

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"simple.mp4", "simple.mp4"},
		{"a/b\\c:d.zip", "a-b-c-d.zip"},
		{`camp<aign>"?.zip`, "campaign.zip"},
		{"  padded.mov  ", "padded.mov"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Errorf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Acme Corp", "acmecorp"},
		{"Summer-2026!", "summer2026"},
		{"   ", "unknown"},
		{"___", "unknown"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Errorf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestJobID(t *testing.T) {
	now := time.Date(2026, 8, 14, 9, 30, 5, 0, time.UTC)
	got := JobID("Acme Corporation Intl", "Summer Launch Campaign", now)
	want := "acmecorporation_summerlaunchca_20260814093005"
	if got != want {
		t.Fatalf("JobID = %q, want %q", got, want)
	}
}

func TestNormalizeDigits(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"۱۲۳۴", "1234"},
		{"٥٦٧", "567"},
		{"1,234", "1,234"},
		{"۱۲٫۵", "12.5"},
		{"views: ۹۰۰", "views: 900"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeDigits(tc.in); got != tc.want {
			t.Errorf("NormalizeDigits(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestHasNonASCIIDigits(t *testing.T) {
	if !HasNonASCIIDigits("۴۲") {
		t.Error("expected Persian digits to be detected")
	}
	if HasNonASCIIDigits("42") {
		t.Error("ASCII digits should not be flagged")
	}
}
