package sim

import (
	"fmt"
	"sync"
)

// Subject is a camera-bearing agent in the simulation.
type Subject struct {
	ID       int
	CameraID int
	Name     string
}

// CameraLocator resolves the camera actually bound to an agent. Engines may
// attach cameras in a different order than ids were handed out.
type CameraLocator interface {
	CameraForAgent(agentID int) (cameraID int, ok bool)
}

// Registry hands out agent and camera ids. Each Registry owns its counters;
// construct a fresh one per world (or per test) instead of sharing state.
type Registry struct {
	mu         sync.Mutex
	nextAgent  int
	nextCamera int
}

// NewRegistry creates a Registry starting both counters at zero.
func NewRegistry() *Registry {
	return &Registry{}
}

// NewSubject assigns the next agent and camera ids. When loc is non-nil and
// knows a camera for the new agent, that camera id replaces the assigned one.
func (r *Registry) NewSubject(kind string, loc CameraLocator) Subject {
	r.mu.Lock()
	s := Subject{ID: r.nextAgent, CameraID: r.nextCamera}
	r.nextAgent++
	r.nextCamera++
	r.mu.Unlock()

	if kind == "" {
		kind = "agent"
	}
	s.Name = fmt.Sprintf("%s_%d", kind, s.ID)

	if loc != nil {
		if cam, ok := loc.CameraForAgent(s.ID); ok {
			s.CameraID = cam
		}
	}
	return s
}
