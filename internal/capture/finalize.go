package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/simcam/internal/cadence"
	"github.com/banshee-data/simcam/internal/fsutil"
	"github.com/banshee-data/simcam/internal/monitoring"
	"github.com/banshee-data/simcam/internal/timeutil"
	"github.com/banshee-data/simcam/internal/video"
)

// stemLayout timestamps artifact names.
const stemLayout = "20060102_150405"

// Sink receives every finalized recording, for example to catalog it.
type Sink interface {
	RecordArtifact(ctx context.Context, art *Artifact, samples []Sample, actions []Action) error
}

// Recording is the buffered output of one start/stop cycle.
type Recording struct {
	Subject     string
	OutputDir   string
	NominalFPS  float64
	CadencePlot bool
	StartedAt   time.Time
	Samples     []Sample
	Actions     []Action
	Truncated   bool
}

// Finalizer turns a Recording into files on disk.
type Finalizer struct {
	Clock   timeutil.Clock
	FS      fsutil.FileSystem
	Encoder video.Encoder

	// Sink is optional. Its failures are logged, not returned.
	Sink Sink
}

// NewFinalizer returns a Finalizer writing MJPEG AVI files to the OS
// filesystem on the real clock.
func NewFinalizer() *Finalizer {
	fs := fsutil.OSFileSystem{}
	return &Finalizer{
		Clock:   timeutil.RealClock{},
		FS:      fs,
		Encoder: &video.MJPEGEncoder{FS: fs},
	}
}

// Rates returns the achieved capture rate for n samples over d, and the
// output rate chosen by preserveRealTime. A non-positive d falls back to
// the nominal rate.
func Rates(n int, d time.Duration, nominal float64, preserveRealTime bool) (achieved, output float64) {
	achieved = nominal
	if d > 0 {
		achieved = float64(n) / d.Seconds()
	}
	if preserveRealTime {
		return achieved, achieved
	}
	return achieved, nominal
}

// Finalize encodes the recording and writes its tables. The video and both
// tables are attempted independently. When any of them fails the returned
// Artifact is still non-nil and the error joins every failure, so
// errors.As finds an *EncodingError whenever the video was not written.
func (f *Finalizer) Finalize(ctx context.Context, rec Recording, preserveRealTime bool) (*Artifact, error) {
	if len(rec.Samples) < 2 {
		return nil, ErrNoFramesCaptured
	}

	now := f.Clock.Now()
	duration := now.Sub(rec.StartedAt)
	achieved, output := Rates(len(rec.Samples), duration, rec.NominalFPS, preserveRealTime)

	if err := f.FS.MkdirAll(rec.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	stem := f.uniqueStem(rec.OutputDir, fmt.Sprintf("%s_%s", safeName(rec.Subject), now.Format(stemLayout)))

	art := &Artifact{
		ID:               uuid.New(),
		Subject:          rec.Subject,
		VideoPath:        stem + f.Encoder.Ext(),
		PosePath:         stem + "_camera_position.csv",
		ActionPath:       stem + "_humanoid_action.csv",
		Frames:           len(rec.Samples),
		Actions:          len(rec.Actions),
		StartedAt:        rec.StartedAt,
		Duration:         duration,
		NominalFPS:       rec.NominalFPS,
		AchievedFPS:      achieved,
		OutputFPS:        output,
		PreserveRealTime: preserveRealTime,
		Truncated:        rec.Truncated,
	}

	var encErr error // *EncodingError when set
	frames := make([]image.Image, len(rec.Samples))
	for i, s := range rec.Samples {
		frames[i] = s.Frame
	}
	if err := f.Encoder.Encode(art.VideoPath, frames, output); err != nil {
		encErr = &EncodingError{Path: art.VideoPath, Err: err}
		monitoring.Warnf("capture: %v; writing tables only", encErr)
	}

	// Each table is attempted regardless of the other outputs. A path is
	// cleared when its file could not be written.
	poseErr := f.writeFile(art.PosePath, func(w io.Writer) error {
		return writePoseTable(w, rec.Samples)
	})
	if poseErr != nil {
		monitoring.Warnf("capture: pose table: %v", poseErr)
		art.PosePath = ""
	}
	actionErr := f.writeFile(art.ActionPath, func(w io.Writer) error {
		return writeActionTable(w, rec.Actions)
	})
	if actionErr != nil {
		monitoring.Warnf("capture: action table: %v", actionErr)
		art.ActionPath = ""
	}

	times := make([]time.Time, len(rec.Samples))
	for i, s := range rec.Samples {
		times[i] = s.CapturedAt
	}
	art.Cadence = cadence.Analyze(times, rec.NominalFPS)

	if rec.CadencePlot {
		plotPath := stem + "_cadence.png"
		title := fmt.Sprintf("%s capture cadence", rec.Subject)
		if err := f.writeFile(plotPath, func(w io.Writer) error {
			return cadence.WritePlot(w, title, art.Cadence)
		}); err != nil {
			monitoring.Warnf("capture: cadence plot: %v", err)
		} else {
			art.PlotPath = plotPath
		}
	}

	if f.Sink != nil {
		if err := f.Sink.RecordArtifact(ctx, art, rec.Samples, rec.Actions); err != nil {
			monitoring.Warnf("capture: catalog recording %s: %v", art.ID, err)
		}
	}

	monitoring.Logf("capture: %s: %d frames in %s (achieved %.2f fps, output %.2f fps) -> %s",
		rec.Subject, art.Frames, duration.Round(time.Millisecond), achieved, output, art.VideoPath)

	return art, errors.Join(encErr, poseErr, actionErr)
}

// uniqueStem appends a counter to base until no artifact of that name
// exists, so cycles finalized within the same second do not collide.
func (f *Finalizer) uniqueStem(dir, base string) string {
	stem := filepath.Join(dir, base)
	for i := 1; f.FS.Exists(stem+f.Encoder.Ext()) || f.FS.Exists(stem+"_camera_position.csv"); i++ {
		stem = filepath.Join(dir, fmt.Sprintf("%s_%d", base, i))
	}
	return stem
}

// safeName keeps ASCII letters, digits, dot, underscore and dash, folding
// every other run of characters into one underscore.
func safeName(s string) string {
	const maxLen = 64
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.', r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "subject"
	}
	return out
}

func (f *Finalizer) writeFile(path string, write func(io.Writer) error) error {
	w, err := f.FS.Create(path)
	if err != nil {
		return err
	}
	if err := write(w); err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
