// Package util
//
// This file implements summary statistics and a depth histogram.
//
// Key features include:
//   - Summary statistics over a slice of samples (used for per-worker
//     throughput in the benchmark driver)
//   - A DepthHistogram that records search path lengths of a tree
//   - Thread-safe sample addition and querying
//
// Trees use the histogram to report their shape without an extra full scan.
package util

import (
	"math"
	"sync"
)

// ----------------------------------------------------------------------------
// Helper functions
// ----------------------------------------------------------------------------

type Stats struct {
	StdDeviation float64 `json:"std_deviation"`
	Min          float64 `json:"min"`
	Max          float64 `json:"max"`
	Mean         float64 `json:"mean"`
	MinMaxRatio  float64 `json:"min_max_ratio"`
}

// NewStats computes the standard deviation, minimum, and maximum values
// from an array of float64 values.
func NewStats(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}

	// initialize min and max with the first value
	min := values[0]
	max := values[0]

	// calculate sum for mean
	var sum float64
	for _, v := range values {
		sum += v

		// update min and max while iterating
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}

	// calculate mean
	mean := sum / float64(len(values))

	// calculate sum of squared differences from mean
	var sumSquaredDiffs float64
	for _, v := range values {
		diff := v - mean
		sumSquaredDiffs += diff * diff
	}

	// calculate standard deviation (population formula)
	stdDev := math.Sqrt(sumSquaredDiffs / float64(len(values)))

	// calculate min/max ratio
	var minMaxRatio float64 = 1.0
	if max > 0 {
		minMaxRatio = min / max
	}

	return Stats{
		StdDeviation: stdDev,
		Min:          min,
		Max:          max,
		Mean:         mean,
		MinMaxRatio:  minMaxRatio,
	}
}

type DistributionStats struct {
	Stats
	DistributionQuality float64 `json:"distribution_quality"`
}

// NewDistributionStats computes quality metrics for value distribution
// (e.g. the number of operations every benchmark worker completed)
func NewDistributionStats(values []float64) DistributionStats {
	// get statistics
	stats := NewStats(values)

	// calculate coefficient of variation
	var cv float64
	if stats.Mean > 0 {
		cv = stats.StdDeviation / stats.Mean
	}

	// distribution quality combines CV and min/max ratio
	// -> lower CV and higher min/max ratio indicate better distribution
	distributionQuality := (1.0-math.Min(1.0, cv))*0.5 + stats.MinMaxRatio*0.5

	return DistributionStats{
		Stats:               stats,
		DistributionQuality: distributionQuality,
	}
}

// ----------------------------------------------------------------------------
// DepthHistogram
// ----------------------------------------------------------------------------

// maxTrackedDepth is the deepest path that gets its own bucket. A balanced
// tree with 2^64 entries is far below this, deeper samples share the last bucket.
const maxTrackedDepth = 128

// DepthHistogram tracks the distribution of path lengths (depths) in a tree.
// Every depth has its own bucket, depths are small.
type DepthHistogram struct {
	mutex   sync.RWMutex
	buckets []int64 // buckets[d] counts samples with depth d
	count   int64   // Total number of samples
	sum     int64   // Sum of all sampled depths
	max     int     // Deepest sample seen
}

// NewDepthHistogram creates an empty depth histogram
func NewDepthHistogram() *DepthHistogram {
	return &DepthHistogram{
		buckets: make([]int64, maxTrackedDepth+1),
	}
}

// AddSample adds a depth sample to the histogram
//
// Thread-safe: This method is safe for concurrent use
func (h *DepthHistogram) AddSample(depth int) {
	if depth < 0 {
		depth = 0
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.buckets[min(depth, maxTrackedDepth)]++
	h.count++
	h.sum += int64(depth)
	if depth > h.max {
		h.max = depth
	}
}

// GetCount returns the total number of samples
//
// Thread-safe: This method is safe for concurrent use
func (h *DepthHistogram) GetCount() int64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.count
}

// Average returns the average depth across all samples
//
// Thread-safe: This method is safe for concurrent use
func (h *DepthHistogram) Average() float64 {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 {
		return 0
	}
	return float64(h.sum) / float64(h.count)
}

// Max returns the deepest sample
//
// Thread-safe: This method is safe for concurrent use
func (h *DepthHistogram) Max() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return h.max
}

// GetPercentile returns the smallest depth d such that at least percentile
// percent (0-100) of the samples are <= d.
//
// Thread-safe: This method is safe for concurrent use
func (h *DepthHistogram) GetPercentile(percentile int) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if h.count == 0 || percentile < 0 || percentile > 100 {
		return 0
	}

	targetCount := int64(math.Ceil(float64(h.count) * float64(percentile) / 100.0))
	if targetCount == 0 {
		targetCount = 1
	}
	cumulativeCount := int64(0)

	for depth, count := range h.buckets {
		cumulativeCount += count
		if cumulativeCount >= targetCount {
			return depth
		}
	}

	// Should never reach here
	return h.max
}
