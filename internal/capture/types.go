// Package capture records a simulated camera feed into a video plus pose and
// action tables.
//
// A Session owns one camera's recording lifecycle. It can be driven
// synchronously, one Advance per simulation tick, or asynchronously by a
// background loop paced to the nominal frame rate while an external
// controller moves the subject. Stop joins the loop and hands the buffered
// samples to a Finalizer.
package capture

import (
	"fmt"
	"image"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/simcam/internal/cadence"
	"github.com/banshee-data/simcam/internal/sim"
)

// Sample is one captured frame and the camera pose taken with it.
type Sample struct {
	Seq        int
	Frame      image.Image
	Position   sim.Vec3
	Rotation   sim.Rotator
	CapturedAt time.Time
}

// Action is a control action issued at the step that produced sample Seq.
type Action struct {
	Seq       int
	Kind      sim.ActionKind
	Magnitude float64 // degrees; rotations only
}

// String formats the action for the action table: the kind, followed by
// ":<degrees>" for rotations.
func (a Action) String() string {
	if a.Kind.IsRotation() {
		return fmt.Sprintf("%s:%g", a.Kind, a.Magnitude)
	}
	return string(a.Kind)
}

// Config is fixed for the lifetime of a Session.
type Config struct {
	// TargetFrames caps the number of samples. Zero means run until
	// stopped, which is only valid for asynchronous recording.
	TargetFrames int

	Resolution sim.Resolution
	FPS        float64
	RenderMode sim.RenderMode
	OutputDir  string

	// Policy drives the subject while recording synchronously. Nil selects
	// a DefaultPolicy.
	Policy Policy

	// PreserveRealTime selects the output rate for RecordSynchronous.
	PreserveRealTime bool

	// MaxConsecutiveFailures ends a recording early once this many capture
	// steps in a row have failed. Zero means never.
	MaxConsecutiveFailures int

	// CadencePlot writes a PNG chart of inter-frame intervals next to the
	// video.
	CadencePlot bool
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TargetFrames < 0 {
		return fmt.Errorf("target frames must be non-negative, got %d", c.TargetFrames)
	}
	if c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %v", c.FPS)
	}
	if c.Resolution.Width <= 0 || c.Resolution.Height <= 0 {
		return fmt.Errorf("resolution must be positive, got %s", c.Resolution)
	}
	if !c.RenderMode.Valid() {
		return fmt.Errorf("unknown render mode %q", c.RenderMode)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output directory must be set")
	}
	if c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max consecutive failures must be non-negative, got %d", c.MaxConsecutiveFailures)
	}
	return nil
}

// Phase is the externally visible lifecycle state of a Session.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseRecording
	PhaseFinalizing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseRecording:
		return "recording"
	case PhaseFinalizing:
		return "finalizing"
	}
	return fmt.Sprintf("phase(%d)", int32(p))
}

// Mode is how the current recording is driven.
type Mode int32

const (
	ModeNone Mode = iota
	ModeSync
	ModeAsync
)

func (m Mode) String() string {
	switch m {
	case ModeSync:
		return "sync"
	case ModeAsync:
		return "async"
	}
	return "none"
}

// Artifact describes one finalized recording.
type Artifact struct {
	ID      uuid.UUID
	Subject string

	VideoPath  string
	PosePath   string
	ActionPath string
	PlotPath   string // empty unless a cadence plot was written

	Frames  int
	Actions int

	StartedAt time.Time
	Duration  time.Duration

	NominalFPS  float64
	AchievedFPS float64
	OutputFPS   float64

	PreserveRealTime bool

	// Truncated is set when the recording ended on consecutive capture
	// failures or cancellation before reaching its frame target.
	Truncated bool

	Cadence cadence.Stats
}
