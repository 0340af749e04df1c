// Package sim defines the boundary between the capture core and the
// simulation engine that renders the camera feed. The engine connection
// itself lives elsewhere; this package carries the shared value types, the
// Simulator contract, the id Registry and a Synthetic engine used by tests
// and the dev binary.
package sim

import (
	"fmt"
	"strconv"
	"strings"
)

// Vec3 is a location in engine units (centimetres).
type Vec3 struct {
	X, Y, Z float64
}

func (v Vec3) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v.X, v.Y, v.Z)
}

// Rotator is a camera orientation in degrees.
type Rotator struct {
	Pitch, Yaw, Roll float64
}

func (r Rotator) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", r.Pitch, r.Yaw, r.Roll)
}

// Pose is a camera location and orientation at one instant.
type Pose struct {
	Position Vec3
	Rotation Rotator
}

// ActionKind identifies a control action issued to a subject.
type ActionKind string

const (
	MoveForward ActionKind = "move_forward"
	RotateLeft  ActionKind = "rotate_left"
	RotateRight ActionKind = "rotate_right"
)

// IsRotation reports whether the action carries an angular magnitude.
func (k ActionKind) IsRotation() bool {
	return k == RotateLeft || k == RotateRight
}

// Valid reports whether k is a known action kind.
func (k ActionKind) Valid() bool {
	switch k {
	case MoveForward, RotateLeft, RotateRight:
		return true
	}
	return false
}

// RenderMode selects the camera buffer the engine renders.
type RenderMode string

const (
	RenderLit        RenderMode = "lit"
	RenderDepth      RenderMode = "depth"
	RenderNormal     RenderMode = "normal"
	RenderObjectMask RenderMode = "object_mask"
)

// Valid reports whether m is a supported render mode.
func (m RenderMode) Valid() bool {
	switch m {
	case RenderLit, RenderDepth, RenderNormal, RenderObjectMask:
		return true
	}
	return false
}

// Resolution is a camera output size in pixels.
type Resolution struct {
	Width  int
	Height int
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution parses a "WIDTHxHEIGHT" string such as "1440x720".
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want WIDTHxHEIGHT", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	return Resolution{Width: width, Height: height}, nil
}
