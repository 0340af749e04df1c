package sim

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/simcam/internal/timeutil"
)

// Default camera settings for the synthetic engine.
const (
	defaultWidth  = 320
	defaultHeight = 240
	eyeHeightCM   = 160.0
)

type syntheticAgent struct {
	position Vec3
	yaw      float64
	cameraID int
}

// Synthetic is an in-process engine that renders simple frames and tracks
// agent poses from the actions it receives. It is safe for concurrent use,
// so a controller goroutine can move agents while a capture loop records.
type Synthetic struct {
	mu sync.Mutex

	clock   timeutil.Clock
	tick    uint64
	agents  map[int]*syntheticAgent
	cameras map[int]int // camera id -> agent id
	res     map[int]Resolution

	frameCalls int
	poseCalls  int
	actions    int

	// StepCM is the distance covered by one move_forward action.
	StepCM float64

	// Latency is slept on the engine clock for every CaptureFrame call.
	Latency time.Duration

	// FrameFault, when set, is consulted before each CaptureFrame call with
	// the 1-based call number; a non-nil return fails that call.
	FrameFault func(call int) error

	// PoseFault works like FrameFault for pose queries.
	PoseFault func(call int) error
}

// NewSynthetic creates a Synthetic engine using the given clock. A nil clock
// selects the real clock.
func NewSynthetic(clock timeutil.Clock) *Synthetic {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Synthetic{
		clock:   clock,
		agents:  make(map[int]*syntheticAgent),
		cameras: make(map[int]int),
		res:     make(map[int]Resolution),
		StepCM:  50,
	}
}

// Spawn places a subject in the world with its camera attached.
func (s *Synthetic) Spawn(subject Subject, at Vec3, yaw float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.agents[subject.ID] = &syntheticAgent{position: at, yaw: yaw, cameraID: subject.CameraID}
	s.cameras[subject.CameraID] = subject.ID
}

// CameraForAgent implements CameraLocator.
func (s *Synthetic) CameraForAgent(agentID int) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[agentID]
	if !ok {
		return 0, false
	}
	return a.cameraID, true
}

// CaptureFrame renders a gradient whose colours follow the tick and the
// agent heading, so consecutive frames differ.
func (s *Synthetic) CaptureFrame(cameraID int, mode RenderMode) (image.Image, error) {
	s.mu.Lock()
	s.frameCalls++
	call := s.frameCalls
	fault := s.FrameFault
	latency := s.Latency
	s.mu.Unlock()

	if latency > 0 {
		s.clock.Sleep(latency)
	}
	if fault != nil {
		if err := fault(call); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	agentID, ok := s.cameras[cameraID]
	if !ok {
		return nil, fmt.Errorf("capture frame from camera %d: %w", cameraID, ErrUnknownCamera)
	}
	res, ok := s.res[cameraID]
	if !ok {
		res = Resolution{Width: defaultWidth, Height: defaultHeight}
	}

	agent := s.agents[agentID]
	img := image.NewRGBA(image.Rect(0, 0, res.Width, res.Height))
	shade := uint8(s.tick % 256)
	heading := uint8(math.Mod(math.Abs(agent.yaw), 360) / 360 * 255)
	for y := 0; y < res.Height; y++ {
		for x := 0; x < res.Width; x++ {
			c := color.RGBA{
				R: uint8(x*255/res.Width) ^ shade,
				G: uint8(y*255/res.Height) ^ heading,
				B: shade,
				A: 255,
			}
			if mode == RenderDepth {
				g := uint8((int(c.R) + int(c.G)) / 2)
				c = color.RGBA{R: g, G: g, B: g, A: 255}
			}
			img.SetRGBA(x, y, c)
		}
	}
	return img, nil
}

// CameraPose returns the pose of the agent carrying the camera.
func (s *Synthetic) CameraPose(cameraID int) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.poseCalls++
	if s.PoseFault != nil {
		if err := s.PoseFault(s.poseCalls); err != nil {
			return Pose{}, err
		}
	}

	agentID, ok := s.cameras[cameraID]
	if !ok {
		return Pose{}, fmt.Errorf("camera pose %d: %w", cameraID, ErrUnknownCamera)
	}
	return s.poseLocked(s.agents[agentID]), nil
}

// SyncPoseAndFrame implements PoseSyncer.
func (s *Synthetic) SyncPoseAndFrame(subjectID, cameraID int) (Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.poseCalls++
	if s.PoseFault != nil {
		if err := s.PoseFault(s.poseCalls); err != nil {
			return Pose{}, err
		}
	}

	agent, ok := s.agents[subjectID]
	if !ok {
		return Pose{}, fmt.Errorf("sync pose for subject %d: %w", subjectID, ErrUnknownSubject)
	}
	if agent.cameraID != cameraID {
		return Pose{}, fmt.Errorf("sync pose for subject %d camera %d: %w", subjectID, cameraID, ErrUnknownCamera)
	}
	return s.poseLocked(agent), nil
}

func (s *Synthetic) poseLocked(a *syntheticAgent) Pose {
	pos := a.position
	pos.Z += eyeHeightCM
	return Pose{Position: pos, Rotation: Rotator{Yaw: a.yaw}}
}

// AdvanceTick steps the world clock.
func (s *Synthetic) AdvanceTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tick++
	return nil
}

// IssueAction moves or turns an agent.
func (s *Synthetic) IssueAction(subjectID int, kind ActionKind, magnitude float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	agent, ok := s.agents[subjectID]
	if !ok {
		return fmt.Errorf("issue %s to subject %d: %w", kind, subjectID, ErrUnknownSubject)
	}

	switch kind {
	case MoveForward:
		rad := agent.yaw * math.Pi / 180
		agent.position.X += s.StepCM * math.Cos(rad)
		agent.position.Y += s.StepCM * math.Sin(rad)
	case RotateLeft:
		agent.yaw = normaliseYaw(agent.yaw - magnitude)
	case RotateRight:
		agent.yaw = normaliseYaw(agent.yaw + magnitude)
	default:
		return fmt.Errorf("unsupported action %q", kind)
	}
	s.actions++
	return nil
}

// SetCameraResolution records the camera output size.
func (s *Synthetic) SetCameraResolution(cameraID int, res Resolution) error {
	if res.Width <= 0 || res.Height <= 0 {
		return fmt.Errorf("invalid resolution %s", res)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.res[cameraID] = res
	return nil
}

// Ticks returns the number of ticks advanced.
func (s *Synthetic) Ticks() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tick
}

// FrameCalls returns the number of CaptureFrame calls, including failures.
func (s *Synthetic) FrameCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frameCalls
}

// ActionsApplied returns the number of successfully applied actions.
func (s *Synthetic) ActionsApplied() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actions
}

// Resolution returns the resolution set for a camera.
func (s *Synthetic) Resolution(cameraID int) (Resolution, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.res[cameraID]
	return r, ok
}

func normaliseYaw(yaw float64) float64 {
	yaw = math.Mod(yaw, 360)
	if yaw > 180 {
		yaw -= 360
	} else if yaw <= -180 {
		yaw += 360
	}
	return yaw
}
