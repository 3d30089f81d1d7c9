package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"ON", false, true},
		{"0", true, false},
		{"no", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("JP_BOOL", tt.value)
		if got := ParseBoolEnv("JP_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	tests := []struct {
		value string
		want  time.Duration
	}{
		{"", time.Minute},
		{"90s", 90 * time.Second},
		{"24h", 24 * time.Hour},
		{"-5s", time.Minute},
		{"soon", time.Minute},
	}
	for _, tt := range tests {
		t.Setenv("JP_DURATION", tt.value)
		if got := ParseDurationEnv("JP_DURATION", time.Minute); got != tt.want {
			t.Errorf("ParseDurationEnv(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 5},
		{"12", 12},
		{"0", 5},
		{"x", 5},
	}
	for _, tt := range tests {
		t.Setenv("JP_INT", tt.value)
		if got := ParseIntEnv("JP_INT", 5); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestFirstNonEmptyEnv(t *testing.T) {
	t.Setenv("JP_A", "")
	t.Setenv("JP_B", "second")
	if got := FirstNonEmptyEnv("JP_A", "JP_B"); got != "second" {
		t.Errorf("FirstNonEmptyEnv() = %q, want second", got)
	}
	t.Setenv("JP_B", "")
	if got := FirstNonEmptyEnv("JP_A", "JP_B"); got != "" {
		t.Errorf("FirstNonEmptyEnv() = %q, want empty", got)
	}
}
