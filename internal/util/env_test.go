package util

import (
	"testing"
	"time"
)

func TestParseBoolEnv(t *testing.T) {
	t.Setenv("GEOSHIFT_TEST_BOOL", "yes")
	if !ParseBoolEnv("GEOSHIFT_TEST_BOOL", false) {
		t.Error("expected 'yes' to parse as true")
	}
	t.Setenv("GEOSHIFT_TEST_BOOL", "0")
	if ParseBoolEnv("GEOSHIFT_TEST_BOOL", true) {
		t.Error("expected '0' to parse as false")
	}
	t.Setenv("GEOSHIFT_TEST_BOOL", "maybe")
	if !ParseBoolEnv("GEOSHIFT_TEST_BOOL", true) {
		t.Error("expected invalid value to fall back to default")
	}
	if ParseBoolEnv("GEOSHIFT_TEST_BOOL_UNSET", false) {
		t.Error("expected unset variable to fall back to default")
	}
}

func TestParseIntEnv(t *testing.T) {
	t.Setenv("GEOSHIFT_TEST_INT", "42")
	if got := ParseIntEnv("GEOSHIFT_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("GEOSHIFT_TEST_INT", "not-a-number")
	if got := ParseIntEnv("GEOSHIFT_TEST_INT", 7); got != 7 {
		t.Errorf("expected default 7, got %d", got)
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("GEOSHIFT_TEST_DUR", "90s")
	if got := ParseDurationEnv("GEOSHIFT_TEST_DUR", time.Minute); got != 90*time.Second {
		t.Errorf("expected 90s, got %v", got)
	}
	t.Setenv("GEOSHIFT_TEST_DUR", "soon")
	if got := ParseDurationEnv("GEOSHIFT_TEST_DUR", time.Minute); got != time.Minute {
		t.Errorf("expected default 1m, got %v", got)
	}
}
