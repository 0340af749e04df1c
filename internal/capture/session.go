package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/simcam/internal/monitoring"
	"github.com/banshee-data/simcam/internal/sim"
	"github.com/banshee-data/simcam/internal/timeutil"
)

// Options carry a Session's collaborators. Zero values select defaults.
type Options struct {
	Clock     timeutil.Clock
	Finalizer *Finalizer
	Metrics   *Metrics
}

// Session records one camera. It is reusable across start/stop cycles; each
// Stop finalizes and clears the buffers.
//
// The sample and action buffers are written only by the goroutine running
// the capture loop (the background loop in async mode, the caller in sync
// mode) and read only after that loop has been joined.
type Session struct {
	sim       sim.Simulator
	subject   sim.Subject
	cfg       Config
	policy    Policy
	clock     timeutil.Clock
	finalizer *Finalizer
	metrics   *Metrics

	// mu serialises lifecycle transitions and synchronous steps.
	mu   sync.Mutex
	mode Mode
	done chan struct{} // closed when the async loop exits

	// driven is set while an external controller moves the subject; the
	// movement policy is skipped.
	driven bool

	stopRequested atomic.Bool
	phase         atomic.Int32

	// Owned by the capture loop while recording.
	samples     []Sample
	actions     []Action
	startedAt   time.Time
	steps       int
	failuresRun int
	truncated   bool

	// Readable at any time for status reporting.
	capturedCount atomic.Int64
	failedCount   atomic.Int64
	stepCount     atomic.Int64
	startedNanos  atomic.Int64
	lastArtifact  atomic.Pointer[Artifact]

	// history keeps recent capture times for the live cadence chart.
	historyMu sync.Mutex
	history   []time.Time
}

// historyLimit bounds the live cadence window.
const historyLimit = 600

// NewSession validates cfg and sets the camera resolution once.
func NewSession(simulator sim.Simulator, subject sim.Subject, cfg Config, opts Options) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid capture config: %w", err)
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Finalizer == nil {
		opts.Finalizer = NewFinalizer()
		opts.Finalizer.Clock = opts.Clock
	}
	policy := cfg.Policy
	if policy == nil {
		policy = NewDefaultPolicy(nil)
	}

	if err := simulator.SetCameraResolution(subject.CameraID, cfg.Resolution); err != nil {
		return nil, fmt.Errorf("set camera %d resolution %s: %w", subject.CameraID, cfg.Resolution, err)
	}

	return &Session{
		sim:       simulator,
		subject:   subject,
		cfg:       cfg,
		policy:    policy,
		clock:     opts.Clock,
		finalizer: opts.Finalizer,
		metrics:   opts.Metrics,
	}, nil
}

// Subject returns the recorded subject.
func (s *Session) Subject() sim.Subject { return s.subject }

// Config returns the session configuration.
func (s *Session) Config() Config { return s.cfg }

// Phase returns the current lifecycle phase.
func (s *Session) Phase() Phase { return Phase(s.phase.Load()) }

// Start launches the background capture loop and returns immediately. The
// subject is assumed to be driven externally, so the movement policy is not
// run. Start fails with ErrAlreadyRecording while any recording is active,
// including one whose loop has already exited on its own.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ModeAsync); err != nil {
		return err
	}

	done := make(chan struct{})
	s.done = done
	go s.run(done)
	return nil
}

// Done returns a channel closed when the async capture loop exits on its
// own or after a stop request. It is nil outside async recording.
func (s *Session) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode != ModeAsync {
		return nil
	}
	return s.done
}

// StartSync begins a recording advanced one step at a time by Advance. The
// movement policy drives the subject.
func (s *Session) StartSync() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.beginLocked(ModeSync)
}

func (s *Session) beginLocked(mode Mode) error {
	if s.Phase() != PhaseIdle {
		return ErrAlreadyRecording
	}
	if mode == ModeSync && s.cfg.TargetFrames == 0 {
		return fmt.Errorf("synchronous recording needs a frame target")
	}

	s.resetLocked()
	s.mode = mode
	s.driven = mode == ModeAsync
	s.startedAt = s.clock.Now()
	s.startedNanos.Store(s.startedAt.UnixNano())
	s.stopRequested.Store(false)
	s.historyMu.Lock()
	s.history = nil
	s.historyMu.Unlock()
	s.phase.Store(int32(PhaseRecording))
	s.metrics.setRecording(s.subject.Name, true)

	monitoring.Logf("capture: %s: recording started (%s, camera %d, %s @ %.2f fps)",
		s.subject.Name, mode, s.subject.CameraID, s.cfg.Resolution, s.cfg.FPS)
	return nil
}

// run is the async capture loop. It exits on a stop request, when the
// frame target is reached, or when too many steps fail in a row.
func (s *Session) run(done chan struct{}) {
	defer close(done)

	interval := time.Duration(float64(time.Second) / s.cfg.FPS)
	for !s.stopRequested.Load() {
		began := s.clock.Now()
		if !s.step() {
			return
		}
		if s.targetReached() {
			monitoring.Logf("capture: %s: frame target %d reached, waiting for stop",
				s.subject.Name, s.cfg.TargetFrames)
			return
		}
		s.clock.Sleep(interval - s.clock.Since(began))
	}
}

// Advance performs one synchronous step: capture, then advance the
// simulation by one tick. It returns the step outcome; Err is
// ErrNotRecording outside a synchronous recording.
func (s *Session) Advance() StepResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked()
}

func (s *Session) advanceLocked() StepResult {
	if s.Phase() != PhaseRecording || s.mode != ModeSync {
		return StepResult{Err: ErrNotRecording}
	}
	res := s.stepResult()
	if err := s.sim.AdvanceTick(); err != nil {
		monitoring.Logf("capture: %s: advance tick: %v", s.subject.Name, err)
	}
	return res
}

// step runs one capture step and reports whether the loop may continue.
func (s *Session) step() bool {
	res := s.stepResult()
	return res.OK() || !s.truncated
}

func (s *Session) stepResult() StepResult {
	attempt := s.steps
	s.steps++
	s.stepCount.Add(1)

	began := s.clock.Now()
	res := s.captureStep(attempt, len(s.samples))
	s.metrics.observeStep(s.subject.Name, res, s.clock.Since(began).Seconds())

	if !res.OK() {
		s.failedCount.Add(1)
		s.failuresRun++
		monitoring.Logf("capture: %s: dropped step: %v", s.subject.Name, res.Err)
		if limit := s.cfg.MaxConsecutiveFailures; limit > 0 && s.failuresRun >= limit {
			monitoring.Warnf("capture: %s: %d consecutive capture failures, ending recording",
				s.subject.Name, s.failuresRun)
			s.truncated = true
		}
		return res
	}

	s.failuresRun = 0
	s.samples = append(s.samples, res.Sample)
	s.actions = append(s.actions, res.Actions...)
	s.capturedCount.Add(1)

	s.historyMu.Lock()
	s.history = append(s.history, res.Sample.CapturedAt)
	if len(s.history) > historyLimit {
		s.history = s.history[len(s.history)-historyLimit:]
	}
	s.historyMu.Unlock()
	return res
}

func (s *Session) targetReached() bool {
	return s.cfg.TargetFrames > 0 && len(s.samples) >= s.cfg.TargetFrames
}

// RecordSynchronous records TargetFrames samples on the calling goroutine,
// advancing the simulation one tick per step, then finalizes with the
// configured PreserveRealTime. Progress is logged every 10% of the target.
//
// The recording ends early, and the artifact is marked Truncated, when
// MaxConsecutiveFailures is exceeded or ctx is cancelled; in the latter
// case the context error is returned alongside the artifact.
func (s *Session) RecordSynchronous(ctx context.Context) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.beginLocked(ModeSync); err != nil {
		return nil, err
	}

	target := s.cfg.TargetFrames
	progressEvery := max(target/10, 1)
	lastReported := 0
	var ctxErr error
	for !s.targetReached() {
		if err := ctx.Err(); err != nil {
			ctxErr = err
			s.truncated = true
			break
		}
		s.advanceLocked()
		if s.truncated {
			break
		}
		if n := len(s.samples); n-lastReported >= progressEvery {
			lastReported = n
			monitoring.Logf("capture: %s: %d/%d frames (%d%%)", s.subject.Name, n, target, n*100/target)
		}
	}

	art, err := s.finishLocked(ctx, s.cfg.PreserveRealTime)
	if ctxErr != nil && err == nil {
		err = ctxErr
	}
	return art, err
}

// Stop ends the current recording and finalizes it. In async mode it sets
// the stop flag and waits for the loop to exit first; a step in flight
// always completes. Stop while idle logs a warning and returns
// ErrNotRecording without touching the filesystem.
func (s *Session) Stop(preserveRealTime bool) (*Artifact, error) {
	return s.StopContext(context.Background(), preserveRealTime)
}

// StopContext is Stop with a context passed to the finalizer's sink.
func (s *Session) StopContext(ctx context.Context, preserveRealTime bool) (*Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Phase() != PhaseRecording {
		monitoring.Warnf("capture: %s: stop called while not recording", s.subject.Name)
		return nil, ErrNotRecording
	}

	if s.mode == ModeAsync {
		s.stopRequested.Store(true)
		<-s.done
	}
	return s.finishLocked(ctx, preserveRealTime)
}

// finishLocked finalizes the joined buffers and returns to Idle.
func (s *Session) finishLocked(ctx context.Context, preserveRealTime bool) (*Artifact, error) {
	s.phase.Store(int32(PhaseFinalizing))
	defer func() {
		s.resetLocked()
		s.phase.Store(int32(PhaseIdle))
		s.metrics.setRecording(s.subject.Name, false)
	}()

	if len(s.samples) < 2 {
		monitoring.Warnf("capture: %s: only %d sample(s) captured, no recording produced",
			s.subject.Name, len(s.samples))
		s.metrics.observeRecording(s.subject.Name, "empty", nil)
		return nil, ErrNoFramesCaptured
	}

	art, err := s.finalizer.Finalize(ctx, Recording{
		Subject:     s.subject.Name,
		OutputDir:   s.cfg.OutputDir,
		NominalFPS:  s.cfg.FPS,
		CadencePlot: s.cfg.CadencePlot,
		StartedAt:   s.startedAt,
		Samples:     s.samples,
		Actions:     s.actions,
		Truncated:   s.truncated,
	}, preserveRealTime)

	result := "ok"
	var encErr *EncodingError
	switch {
	case errors.As(err, &encErr):
		result = "encode_error"
	case err != nil:
		result = "error"
	case art.Truncated:
		result = "truncated"
	}
	s.metrics.observeRecording(s.subject.Name, result, art)
	if art != nil {
		s.lastArtifact.Store(art)
	}
	return art, err
}

func (s *Session) resetLocked() {
	s.samples = nil
	s.actions = nil
	s.steps = 0
	s.failuresRun = 0
	s.truncated = false
	s.mode = ModeNone
	s.driven = false
	s.done = nil
	s.capturedCount.Store(0)
	s.failedCount.Store(0)
	s.stepCount.Store(0)
	s.startedNanos.Store(0)
}
