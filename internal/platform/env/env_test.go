package env

import (
	"strings"
	"testing"
	"time"
)

func TestStringFallsBackOnBlank(t *testing.T) {
	t.Setenv("ASSETS_TEST_STRING", "   ")
	if got := String("ASSETS_TEST_STRING", "def"); got != "def" {
		t.Fatalf("String()=%q, want def", got)
	}
	t.Setenv("ASSETS_TEST_STRING", " value ")
	if got := String("ASSETS_TEST_STRING", "def"); got != "value" {
		t.Fatalf("String()=%q, want value", got)
	}
}

func TestTypedValues(t *testing.T) {
	t.Setenv("ASSETS_TEST_DURATION", "90s")
	t.Setenv("ASSETS_TEST_BOOL", "true")
	t.Setenv("ASSETS_TEST_INT", "42")

	d, err := Duration("ASSETS_TEST_DURATION", time.Second)
	if err != nil || d != 90*time.Second {
		t.Fatalf("Duration()=%v err=%v", d, err)
	}
	b, err := Bool("ASSETS_TEST_BOOL", false)
	if err != nil || !b {
		t.Fatalf("Bool()=%v err=%v", b, err)
	}
	i, err := Int("ASSETS_TEST_INT", 0)
	if err != nil || i != 42 {
		t.Fatalf("Int()=%d err=%v", i, err)
	}
	if i, err := Int("ASSETS_TEST_INT_UNSET", 7); err != nil || i != 7 {
		t.Fatalf("Int() default=%d err=%v", i, err)
	}
}

func TestTypedValuesRejectGarbage(t *testing.T) {
	t.Setenv("ASSETS_TEST_BAD", "nope")
	if _, err := Duration("ASSETS_TEST_BAD", 0); err == nil || !strings.Contains(err.Error(), "ASSETS_TEST_BAD") {
		t.Fatalf("Duration() expected error naming the key, got %v", err)
	}
	if _, err := Bool("ASSETS_TEST_BAD", false); err == nil {
		t.Fatalf("Bool() expected error")
	}
	if _, err := Int("ASSETS_TEST_BAD", 0); err == nil {
		t.Fatalf("Int() expected error")
	}
}
