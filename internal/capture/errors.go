package capture

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyRecording is returned by Start and StartSync while a
	// recording is active. The active recording is not disturbed.
	ErrAlreadyRecording = errors.New("capture: already recording")

	// ErrNotRecording is returned by Stop and Advance when no recording is
	// active.
	ErrNotRecording = errors.New("capture: not recording")

	// ErrNoFramesCaptured is returned by Stop when fewer than two samples
	// were captured. No files are written.
	ErrNoFramesCaptured = errors.New("capture: no recording produced")
)

// CaptureError reports a failed capture step. The step is dropped and the
// recording continues.
type CaptureError struct {
	Step int    // attempt counter, not a sample Seq
	Op   string // "frame" or "pose"
	Err  error
}

func (e *CaptureError) Error() string {
	return fmt.Sprintf("capture step %d: %s: %v", e.Step, e.Op, e.Err)
}

func (e *CaptureError) Unwrap() error { return e.Err }

// EncodingError reports a video write failure. The pose and action tables
// are written regardless, so Stop returns it together with a partial
// Artifact.
type EncodingError struct {
	Path string
	Err  error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("encode video %s: %v", e.Path, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }
