package envutil

import (
	"testing"
	"time"
)

func TestDurationAcceptsSecondsAndGoSyntax(t *testing.T) {
	t.Setenv("NS_TEST_DURATION", "90")
	if got := Duration("NS_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("seconds: want=%v got=%v", 90*time.Second, got)
	}
	t.Setenv("NS_TEST_DURATION", "1m30s")
	if got := Duration("NS_TEST_DURATION", time.Second); got != 90*time.Second {
		t.Fatalf("go syntax: want=%v got=%v", 90*time.Second, got)
	}
	t.Setenv("NS_TEST_DURATION", "soon")
	if got := Duration("NS_TEST_DURATION", time.Second); got != time.Second {
		t.Fatalf("fallback: want=%v got=%v", time.Second, got)
	}
}

func TestBoolFallsBackOnGarbage(t *testing.T) {
	t.Setenv("NS_TEST_BOOL", "maybe")
	if !Bool("NS_TEST_BOOL", true) {
		t.Fatalf("want fallback true")
	}
	t.Setenv("NS_TEST_BOOL", "off")
	if Bool("NS_TEST_BOOL", true) {
		t.Fatalf("want false for off")
	}
}
