package capture

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "simcam"

// Metrics are the Prometheus collectors updated by sessions. One Metrics
// value may be shared by many sessions; series are labelled by subject.
type Metrics struct {
	framesTotal     *prometheus.CounterVec
	failuresTotal   *prometheus.CounterVec
	actionsTotal    *prometheus.CounterVec
	stepDuration    *prometheus.HistogramVec
	recordingsTotal *prometheus.CounterVec
	achievedFPS     *prometheus.GaugeVec
	recording       *prometheus.GaugeVec
}

// NewMetrics creates the capture collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "frames_captured_total",
				Help:      "Total number of samples captured",
			},
			[]string{"subject"},
		),
		failuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capture_failures_total",
				Help:      "Total number of dropped capture steps",
			},
			[]string{"subject", "op"}, // op: frame, pose
		),
		actionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "actions_issued_total",
				Help:      "Total number of policy actions issued",
			},
			[]string{"subject", "kind"},
		),
		stepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "capture_step_duration_seconds",
				Help:      "Duration of capture steps in seconds",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"subject"},
		),
		recordingsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "recordings_total",
				Help:      "Total number of stopped recordings by result",
			},
			[]string{"subject", "result"}, // result: ok, empty, encode_error, error, truncated
		),
		achievedFPS: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "achieved_fps",
				Help:      "Achieved capture rate of the last finalized recording",
			},
			[]string{"subject"},
		),
		recording: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "recording",
				Help:      "1 while the subject is recording",
			},
			[]string{"subject"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.framesTotal,
		m.failuresTotal,
		m.actionsTotal,
		m.stepDuration,
		m.recordingsTotal,
		m.achievedFPS,
		m.recording,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// The observe helpers accept a nil receiver so sessions without metrics
// skip them.

func (m *Metrics) observeStep(subject string, res StepResult, seconds float64) {
	if m == nil {
		return
	}
	m.stepDuration.WithLabelValues(subject).Observe(seconds)
	if !res.OK() {
		op := "unknown"
		if ce, ok := res.Err.(*CaptureError); ok {
			op = ce.Op
		}
		m.failuresTotal.WithLabelValues(subject, op).Inc()
		return
	}
	m.framesTotal.WithLabelValues(subject).Inc()
	for _, a := range res.Actions {
		m.actionsTotal.WithLabelValues(subject, string(a.Kind)).Inc()
	}
}

func (m *Metrics) setRecording(subject string, on bool) {
	if m == nil {
		return
	}
	v := 0.0
	if on {
		v = 1
	}
	m.recording.WithLabelValues(subject).Set(v)
}

func (m *Metrics) observeRecording(subject, result string, art *Artifact) {
	if m == nil {
		return
	}
	m.recordingsTotal.WithLabelValues(subject, result).Inc()
	if art != nil {
		m.achievedFPS.WithLabelValues(subject).Set(art.AchievedFPS)
	}
}
