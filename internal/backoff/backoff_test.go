package backoff

import (
	"testing"
	"time"
)

func TestJitter_ExponentialGrowth(t *testing.T) {
	base := 100 * time.Millisecond
	cap := 3200 * time.Millisecond

	for _, tc := range []struct {
		attempt int
		maxCap  time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{5, 3200 * time.Millisecond},
		{6, 3200 * time.Millisecond},  // capped
		{20, 3200 * time.Millisecond}, // capped
	} {
		for range 1000 {
			d := Jitter(tc.attempt, base, cap)
			if d > tc.maxCap {
				t.Errorf("Jitter(%d) = %v, exceeds expected cap %v", tc.attempt, d, tc.maxCap)
			}
		}
	}
}

func TestJitter_MinimumFloor(t *testing.T) {
	const minFloor = 50 * time.Millisecond
	for range 1000 {
		d := Jitter(0, 60*time.Millisecond, time.Second)
		if d < minFloor {
			t.Fatalf("got %v, want >= %v", d, minFloor)
		}
	}
}

func TestJitter_OverflowGuard(t *testing.T) {
	cap := 30 * time.Second
	for range 100 {
		d := Jitter(1000, time.Second, cap)
		if d >= cap || d <= 0 {
			t.Fatalf("attempt 1000: got %v, want (0, %v)", d, cap)
		}
	}
}
