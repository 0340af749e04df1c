// Package cadence summarises the timing of a capture loop: how evenly frames
// arrived compared to the nominal rate the loop was paced for.
package cadence

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

const (
	// intervalStabilityThreshold is the maximum interval standard deviation
	// as a fraction of the mean interval for a stable capture.
	intervalStabilityThreshold = 0.15

	// jitterStabilityThreshold is the maximum mean jitter as a fraction of
	// the nominal interval for a stable capture.
	jitterStabilityThreshold = 0.20
)

// Stats describes the inter-frame timing of one recording. Interval fields
// are in seconds.
type Stats struct {
	Frames   int
	Span     time.Duration // first to last frame
	Nominal  float64       // configured frames per second
	FPS      float64       // (Frames-1) / Span
	Mean     float64
	StdDev   float64
	Min      float64
	Max      float64
	P95      float64
	Jitter   float64 // mean |interval - 1/Nominal|
	IsStable bool

	Intervals []float64
}

// Analyze computes cadence statistics from frame capture times. Times must
// be in capture order. Fewer than two frames yield a zero Stats apart from
// Frames and Nominal.
func Analyze(times []time.Time, nominalFPS float64) Stats {
	s := Stats{Frames: len(times), Nominal: nominalFPS}
	if len(times) < 2 {
		return s
	}

	s.Span = times[len(times)-1].Sub(times[0])
	if s.Span > 0 {
		s.FPS = float64(len(times)-1) / s.Span.Seconds()
	}

	s.Intervals = make([]float64, len(times)-1)
	for i := 1; i < len(times); i++ {
		s.Intervals[i-1] = times[i].Sub(times[i-1]).Seconds()
	}

	s.Mean, s.StdDev = stat.PopMeanStdDev(s.Intervals, nil)
	s.Min = floats.Min(s.Intervals)
	s.Max = floats.Max(s.Intervals)

	sorted := append([]float64(nil), s.Intervals...)
	sort.Float64s(sorted)
	s.P95 = stat.Quantile(0.95, stat.Empirical, sorted, nil)

	expected := s.Mean
	if nominalFPS > 0 {
		expected = 1 / nominalFPS
	}
	jitters := make([]float64, len(s.Intervals))
	for i, iv := range s.Intervals {
		jitters[i] = math.Abs(iv - expected)
	}
	s.Jitter = stat.Mean(jitters, nil)

	if s.Mean > 0 {
		s.IsStable = s.StdDev < s.Mean*intervalStabilityThreshold &&
			s.Jitter < expected*jitterStabilityThreshold
	}
	return s
}
