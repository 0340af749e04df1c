package capture

import (
	"bytes"
	"encoding/csv"
	"errors"
	"image"
	"math/rand/v2"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/banshee-data/simcam/internal/fsutil"
	"github.com/banshee-data/simcam/internal/sim"
	"github.com/banshee-data/simcam/internal/timeutil"
)

var epoch = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

// fakeEncoder records what it was asked to encode and writes a stub file.
type fakeEncoder struct {
	mu     sync.Mutex
	fs     fsutil.FileSystem
	err    error
	calls  int
	frames int
	fps    float64
	paths  []string
}

func (e *fakeEncoder) Ext() string { return ".avi" }

func (e *fakeEncoder) Encode(path string, frames []image.Image, fps float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.frames = len(frames)
	e.fps = fps
	if e.err != nil {
		return e.err
	}
	e.paths = append(e.paths, path)
	return e.fs.WriteFile(path, []byte("RIFF"), 0o644)
}

type harness struct {
	sim     *sim.Synthetic
	subject sim.Subject
	clock   timeutil.Clock
	fs      *fsutil.MemoryFileSystem
	enc     *fakeEncoder
	fin     *Finalizer
	session *Session
}

func baseConfig() Config {
	return Config{
		TargetFrames: 10,
		Resolution:   sim.Resolution{Width: 8, Height: 6},
		FPS:          10,
		RenderMode:   sim.RenderLit,
		OutputDir:    "/rec",
		Policy:       NewDefaultPolicy(rand.New(rand.NewPCG(1, 2))),
	}
}

// newHarness builds a session over a Synthetic engine writing to memory.
// A nil clock selects a MockClock at epoch.
func newHarness(t *testing.T, cfg Config, clock timeutil.Clock) *harness {
	t.Helper()
	if clock == nil {
		clock = timeutil.NewMockClock(epoch)
	}
	engine := sim.NewSynthetic(clock)
	subject := sim.NewRegistry().NewSubject("humanoid", nil)
	engine.Spawn(subject, sim.Vec3{}, 0)

	mem := fsutil.NewMemoryFileSystem()
	enc := &fakeEncoder{fs: mem}
	fin := &Finalizer{Clock: clock, FS: mem, Encoder: enc}

	s, err := NewSession(engine, subject, cfg, Options{Clock: clock, Finalizer: fin})
	require.NoError(t, err)
	return &harness{sim: engine, subject: subject, clock: clock, fs: mem, enc: enc, fin: fin, session: s}
}

func readTable(t *testing.T, fs fsutil.FileSystem, path string) [][]string {
	t.Helper()
	data, err := fs.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	return rows
}

func seqColumn(t *testing.T, rows [][]string) []int {
	t.Helper()
	seqs := make([]int, 0, len(rows))
	for _, r := range rows[1:] {
		n, err := strconv.Atoi(r[0])
		require.NoError(t, err)
		seqs = append(seqs, n)
	}
	return seqs
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// scriptedSim is a minimal engine whose calls can be made to fail and
// which does not implement sim.PoseSyncer.
type scriptedSim struct {
	mu          sync.Mutex
	frameErr    func(call int) error
	actionErr   error
	resErr      error
	frameCalls  int
	poseCalls   int
	ticks       int
	resCalls    int
	actionCalls int
}

var errTransport = errors.New("transport reset")

func (s *scriptedSim) CaptureFrame(int, sim.RenderMode) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frameCalls++
	if s.frameErr != nil {
		if err := s.frameErr(s.frameCalls); err != nil {
			return nil, err
		}
	}
	return image.NewRGBA(image.Rect(0, 0, 4, 4)), nil
}

func (s *scriptedSim) CameraPose(int) (sim.Pose, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.poseCalls++
	return sim.Pose{Position: sim.Vec3{X: float64(s.poseCalls)}}, nil
}

func (s *scriptedSim) AdvanceTick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ticks++
	return nil
}

func (s *scriptedSim) IssueAction(int, sim.ActionKind, float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actionCalls++
	return s.actionErr
}

func (s *scriptedSim) SetCameraResolution(int, sim.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resCalls++
	return s.resErr
}

func newScriptedSession(t *testing.T, engine *scriptedSim, cfg Config) (*Session, *fsutil.MemoryFileSystem, *fakeEncoder) {
	t.Helper()
	clock := timeutil.NewMockClock(epoch)
	mem := fsutil.NewMemoryFileSystem()
	enc := &fakeEncoder{fs: mem}
	subject := sim.Subject{ID: 0, CameraID: 0, Name: "scripted_0"}
	s, err := NewSession(engine, subject, cfg, Options{
		Clock:     clock,
		Finalizer: &Finalizer{Clock: clock, FS: mem, Encoder: enc},
	})
	require.NoError(t, err)
	return s, mem, enc
}

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
