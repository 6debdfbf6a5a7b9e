// Package system exercises the real-time clock adapter.
package system

import (
	"testing"
	"time"
)

// TestClockNowLocal ensures the default clock reports local time.
func TestClockNowLocal(t *testing.T) {
	t.Parallel()

	clk := New()
	requireNotNil(t, clk)

	before := time.Now().Add(-time.Second)
	got := clk.Now()
	after := time.Now().Add(time.Second)

	if got.Location() != time.Local {
		t.Fatalf("expected local location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
}

// TestClockNewIn checks the configured location is applied.
func TestClockNewIn(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("BRT", -3*60*60)
	clk := NewIn(loc)
	if got := clk.Now().Location(); got != loc {
		t.Fatalf("expected %v location, got %v", loc, got)
	}
	if got := NewIn(nil).Now().Location(); got != time.Local {
		t.Fatalf("expected nil location to fall back to local, got %v", got)
	}
}

// TestClockNowMonotonic checks successive timestamps are non-decreasing.
func TestClockNowMonotonic(t *testing.T) {
	t.Parallel()

	clk := New()
	first := clk.Now()
	second := clk.Now()
	if second.Before(first) {
		t.Fatalf("expected second call %v to be >= first %v", second, first)
	}
}

func requireNotNil(t *testing.T, v any) {
	t.Helper()
	if v == nil {
		t.Fatal("expected value to be non-nil")
	}
}
