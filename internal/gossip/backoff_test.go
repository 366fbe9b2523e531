package gossip

import (
	"testing"
	"time"
)

func TestBackoff_Next(t *testing.T) {
	b := Backoff{Base: 500 * time.Millisecond, Cap: 4 * time.Second}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
		{100, 4 * time.Second},
	}

	for _, tt := range tests {
		if got := b.Next(tt.attempt); got != tt.want {
			t.Errorf("Next(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestBackoff_MonotonicallyNonDecreasing(t *testing.T) {
	b := Backoff{Base: 200 * time.Millisecond, Cap: 10 * time.Second}

	prev := time.Duration(0)
	for attempt := 0; attempt < 64; attempt++ {
		d := b.Next(attempt)
		if d < prev {
			t.Fatalf("Backoff decreased at attempt %d: %v < %v", attempt, d, prev)
		}
		if d > b.Cap {
			t.Fatalf("Backoff exceeded cap at attempt %d: %v", attempt, d)
		}
		prev = d
	}
}

func TestBackoff_DegenerateConfigs(t *testing.T) {
	// Base at or above cap collapses to a fixed interval.
	b := Backoff{Base: 5 * time.Second, Cap: 2 * time.Second}
	if got := b.Next(0); got != 2*time.Second {
		t.Errorf("Expected cap for base >= cap, got %v", got)
	}

	b = Backoff{Base: 0, Cap: 2 * time.Second}
	if got := b.Next(3); got != 2*time.Second {
		t.Errorf("Expected cap for zero base, got %v", got)
	}
}
