package capture

import (
	"github.com/banshee-data/simcam/internal/monitoring"
	"github.com/banshee-data/simcam/internal/sim"
)

// StepResult is the outcome of one capture step: a sample with the actions
// issued alongside it, or the reason the step was dropped.
type StepResult struct {
	Sample  Sample
	Actions []Action
	Err     error
}

// OK reports whether the step produced a sample.
func (r StepResult) OK() bool { return r.Err == nil }

// captureStep acquires one frame and pose for sample seq and, when the
// session drives its own subject, runs the movement policy. It never
// touches the buffers; the caller decides what to keep.
func (s *Session) captureStep(step, seq int) StepResult {
	frame, err := s.sim.CaptureFrame(s.subject.CameraID, s.cfg.RenderMode)
	if err != nil {
		return StepResult{Err: &CaptureError{Step: step, Op: "frame", Err: err}}
	}
	capturedAt := s.clock.Now()

	var pose sim.Pose
	if syncer, ok := s.sim.(sim.PoseSyncer); ok {
		pose, err = syncer.SyncPoseAndFrame(s.subject.ID, s.subject.CameraID)
	} else {
		pose, err = s.sim.CameraPose(s.subject.CameraID)
	}
	if err != nil {
		return StepResult{Err: &CaptureError{Step: step, Op: "pose", Err: err}}
	}

	res := StepResult{Sample: Sample{
		Seq:        seq,
		Frame:      frame,
		Position:   pose.Position,
		Rotation:   pose.Rotation,
		CapturedAt: capturedAt,
	}}

	if s.driven {
		return res
	}
	for _, a := range s.policy.Actions(seq) {
		a.Seq = seq
		if err := s.sim.IssueAction(s.subject.ID, a.Kind, a.Magnitude); err != nil {
			monitoring.Logf("capture: %s: issue %s at seq %d: %v", s.subject.Name, a, seq, err)
			continue
		}
		res.Actions = append(res.Actions, a)
	}
	return res
}
