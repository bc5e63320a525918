package util

import (
	"math"
	"testing"
)

// TestNewStats tests the summary statistics
func TestNewStats(t *testing.T) {
	stats := NewStats([]float64{2, 4, 4, 4, 5, 5, 7, 9})

	if stats.Mean != 5 {
		t.Errorf("Expected mean 5, got %f", stats.Mean)
	}
	if stats.StdDeviation != 2 {
		t.Errorf("Expected std deviation 2, got %f", stats.StdDeviation)
	}
	if stats.Min != 2 || stats.Max != 9 {
		t.Errorf("Expected min 2 and max 9, got %f and %f", stats.Min, stats.Max)
	}

	if empty := NewStats(nil); empty != (Stats{}) {
		t.Errorf("Expected zero stats for empty input, got %+v", empty)
	}
}

// TestDistributionStats tests that a perfectly even distribution has quality 1
func TestDistributionStats(t *testing.T) {
	even := NewDistributionStats([]float64{10, 10, 10, 10})
	if math.Abs(even.DistributionQuality-1) > 1e-9 {
		t.Errorf("Expected quality 1, got %f", even.DistributionQuality)
	}

	skewed := NewDistributionStats([]float64{1, 100})
	if skewed.DistributionQuality >= even.DistributionQuality {
		t.Errorf("Skewed distribution should have lower quality, got %f", skewed.DistributionQuality)
	}
}

// TestDepthHistogram tests sample tracking and percentiles
func TestDepthHistogram(t *testing.T) {
	h := NewDepthHistogram()

	if h.GetPercentile(50) != 0 || h.Average() != 0 {
		t.Error("Empty histogram should report zero")
	}

	for _, d := range []int{1, 2, 2, 3, 3, 3, 4, 4, 4, 4} {
		h.AddSample(d)
	}

	if h.GetCount() != 10 {
		t.Errorf("Expected 10 samples, got %d", h.GetCount())
	}
	if h.Average() != 3 {
		t.Errorf("Expected average 3, got %f", h.Average())
	}
	if h.Max() != 4 {
		t.Errorf("Expected max 4, got %d", h.Max())
	}
	if p := h.GetPercentile(50); p != 3 {
		t.Errorf("Expected median 3, got %d", p)
	}
	if p := h.GetPercentile(100); p != 4 {
		t.Errorf("Expected p100 4, got %d", p)
	}
	if p := h.GetPercentile(10); p != 1 {
		t.Errorf("Expected p10 1, got %d", p)
	}

	// very deep samples share the last bucket but keep the exact max
	h.AddSample(1000)
	if h.Max() != 1000 {
		t.Errorf("Expected max 1000, got %d", h.Max())
	}
}

// TestShuffledKeys tests that shuffled keys are a reproducible permutation
func TestShuffledKeys(t *testing.T) {
	a := ShuffledKeys(1000, 7)
	b := ShuffledKeys(1000, 7)

	seen := make(map[uint64]bool, len(a))
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("Same seed produced different orders at %d", i)
		}
		if a[i] < 1 || a[i] > 1000 || seen[a[i]] {
			t.Fatalf("Invalid or duplicate key %d", a[i])
		}
		seen[a[i]] = true
	}
}
