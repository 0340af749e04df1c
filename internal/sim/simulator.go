package sim

import (
	"errors"
	"image"
)

// ErrUnknownCamera is returned when a camera id is not bound in the engine.
var ErrUnknownCamera = errors.New("unknown camera")

// ErrUnknownSubject is returned when an action targets an unknown subject.
var ErrUnknownSubject = errors.New("unknown subject")

// Simulator is the engine connection the capture core borrows. All methods
// may block on the transport; none of them are cancellable.
type Simulator interface {
	// CaptureFrame renders one frame from the camera in the given mode.
	CaptureFrame(cameraID int, mode RenderMode) (image.Image, error)

	// CameraPose returns the current camera location and rotation.
	CameraPose(cameraID int) (Pose, error)

	// AdvanceTick steps the simulation by one discrete tick.
	AdvanceTick() error

	// IssueAction applies a control action to a subject. Magnitude is in
	// degrees and ignored for non-rotation actions.
	IssueAction(subjectID int, kind ActionKind, magnitude float64) error

	// SetCameraResolution sets the camera output size.
	SetCameraResolution(cameraID int, res Resolution) error
}

// PoseSyncer is implemented by engines that can report the pose matching
// the most recently rendered frame in a single call.
type PoseSyncer interface {
	SyncPoseAndFrame(subjectID, cameraID int) (Pose, error)
}
