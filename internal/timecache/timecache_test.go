package timecache

import (
	"testing"
	"time"
)

func TestMonotonicNeverGoesBack(t *testing.T) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ticks := []time.Time{
		base,
		base.Add(2 * time.Second),
		base.Add(-5 * time.Second), // clock stepped back
		base.Add(3 * time.Second),
	}
	i := 0
	clock := NewMonotonic(func() time.Time {
		t := ticks[i]
		i++
		return t
	})

	var prev time.Time
	for n := range ticks {
		got := clock.Now()
		if got.Before(prev) {
			t.Fatalf("tick %d went back: prev=%s got=%s", n, prev, got)
		}
		if got.Location() != time.UTC {
			t.Fatalf("tick %d not UTC: %s", n, got.Location())
		}
		prev = got
	}
	if !prev.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("unexpected final tick: %s", prev)
	}
}

func TestPartitionFormats(t *testing.T) {
	if len(DT()) != len("2006-01-02") {
		t.Fatalf("unexpected DT format: %q", DT())
	}
	if len(HR()) != 2 {
		t.Fatalf("unexpected HR format: %q", HR())
	}
	if Unix() <= 0 {
		t.Fatalf("unix cache not seeded")
	}
}
