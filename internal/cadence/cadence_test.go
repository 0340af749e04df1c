package cadence

import (
	"bytes"
	"image/png"
	"math"
	"testing"
	"time"
)

func evenTimes(n int, interval time.Duration) []time.Time {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	times := make([]time.Time, n)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * interval)
	}
	return times
}

func TestAnalyzeEven(t *testing.T) {
	s := Analyze(evenTimes(21, 100*time.Millisecond), 10)

	if s.Frames != 21 {
		t.Errorf("Frames = %d, want 21", s.Frames)
	}
	if s.Span != 2*time.Second {
		t.Errorf("Span = %v, want 2s", s.Span)
	}
	if math.Abs(s.FPS-10) > 1e-9 {
		t.Errorf("FPS = %v, want 10", s.FPS)
	}
	if math.Abs(s.Mean-0.1) > 1e-9 || s.StdDev > 1e-9 {
		t.Errorf("Mean/StdDev = %v/%v, want 0.1/0", s.Mean, s.StdDev)
	}
	if s.Jitter > 1e-9 {
		t.Errorf("Jitter = %v, want 0", s.Jitter)
	}
	if !s.IsStable {
		t.Error("even cadence should be stable")
	}
	if len(s.Intervals) != 20 {
		t.Errorf("len(Intervals) = %d, want 20", len(s.Intervals))
	}
}

func TestAnalyzeUneven(t *testing.T) {
	times := evenTimes(4, 100*time.Millisecond)
	// Stall before the last frame.
	times[3] = times[2].Add(400 * time.Millisecond)

	s := Analyze(times, 10)
	if math.Abs(s.Min-0.1) > 1e-9 || math.Abs(s.Max-0.4) > 1e-9 {
		t.Errorf("Min/Max = %v/%v, want 0.1/0.4", s.Min, s.Max)
	}
	if math.Abs(s.P95-0.4) > 1e-9 {
		t.Errorf("P95 = %v, want 0.4", s.P95)
	}
	if math.Abs(s.Jitter-0.1) > 1e-9 {
		t.Errorf("Jitter = %v, want 0.1", s.Jitter)
	}
	if s.IsStable {
		t.Error("stalled cadence should not be stable")
	}
}

func TestAnalyzeTooFew(t *testing.T) {
	for _, n := range []int{0, 1} {
		s := Analyze(evenTimes(n, time.Second), 5)
		if s.Frames != n || s.Nominal != 5 {
			t.Errorf("Analyze(%d) = %+v", n, s)
		}
		if s.IsStable || s.Intervals != nil {
			t.Errorf("Analyze(%d) should have no intervals", n)
		}
	}
}

func TestAnalyzeNoNominal(t *testing.T) {
	s := Analyze(evenTimes(5, 50*time.Millisecond), 0)
	if !s.IsStable {
		t.Error("even cadence without nominal rate should be stable against its own mean")
	}
}

func TestWritePlot(t *testing.T) {
	var buf bytes.Buffer
	if err := WritePlot(&buf, "cadence", Analyze(evenTimes(10, 100*time.Millisecond), 10)); err != nil {
		t.Fatalf("WritePlot() error = %v", err)
	}
	if _, err := png.Decode(&buf); err != nil {
		t.Errorf("png.Decode() error = %v", err)
	}

	if err := WritePlot(&buf, "empty", Stats{}); err == nil {
		t.Error("WritePlot(empty) expected error")
	}
}
