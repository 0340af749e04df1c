//go:build gst

package video

import (
	"fmt"
	"image"
	"image/draw"
	"time"

	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/banshee-data/simcam/internal/monitoring"
)

// GstName is the registry name of the GStreamer encoder.
const GstName = "gst"

const (
	defaultBitrateKbps = 4000
	busPollInterval    = 100 * time.Millisecond
	finishTimeout      = 30 * time.Second
)

func init() {
	Register(GstName, func(opts Options) Encoder {
		return &GstEncoder{BitrateKbps: opts.Quality}
	})
}

// GstEncoder encodes frames to H.264 in an MP4 container through a
// GStreamer pipeline:
//
//	appsrc → videoconvert → x264enc → mp4mux → filesink
type GstEncoder struct {
	// BitrateKbps is the x264 target bitrate. Zero means 4000.
	BitrateKbps int
}

// Ext implements Encoder.
func (e *GstEncoder) Ext() string { return ".mp4" }

// Encode implements Encoder.
func (e *GstEncoder) Encode(path string, frames []image.Image, fps float64) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	rate, err := RateFromFPS(fps)
	if err != nil {
		return err
	}
	bitrate := e.BitrateKbps
	if bitrate <= 0 {
		bitrate = defaultBitrateKbps
	}

	gst.Init(nil)

	bounds := frames[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	pipeline, err := gst.NewPipeline("")
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}
	defer pipeline.SetState(gst.StateNull)

	src, err := app.NewAppSrc()
	if err != nil {
		return fmt.Errorf("failed to create appsrc: %w", err)
	}
	src.SetCaps(gst.NewCapsFromString(fmt.Sprintf(
		"video/x-raw,format=RGBA,width=%d,height=%d,framerate=%d/%d",
		width, height, rate.Num, rate.Den)))
	src.SetProperty("format", gst.FormatTime)

	elements := make([]*gst.Element, 0, 4)
	for _, def := range []struct {
		factory string
		props   map[string]interface{}
	}{
		{"videoconvert", nil},
		{"x264enc", map[string]interface{}{"bitrate": uint(bitrate), "key-int-max": uint(rate.FPS()) + 1}},
		{"mp4mux", nil},
		{"filesink", map[string]interface{}{"location": path}},
	} {
		el, err := gst.NewElement(def.factory)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", def.factory, err)
		}
		for k, v := range def.props {
			if err := el.SetProperty(k, v); err != nil {
				return fmt.Errorf("set %s.%s: %w", def.factory, k, err)
			}
		}
		elements = append(elements, el)
	}

	chain := append([]*gst.Element{src.Element}, elements...)
	if err := pipeline.AddMany(chain...); err != nil {
		return fmt.Errorf("failed to add elements: %w", err)
	}
	if err := gst.ElementLinkMany(chain...); err != nil {
		return fmt.Errorf("failed to link elements: %w", err)
	}
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}

	frameDur := time.Duration(float64(time.Second) / rate.FPS())
	rgba := image.NewRGBA(image.Rect(0, 0, width, height))
	for i, img := range frames {
		draw.Draw(rgba, rgba.Bounds(), img, img.Bounds().Min, draw.Src)
		buf := gst.NewBufferFromBytes(append([]byte(nil), rgba.Pix...))
		buf.SetPresentationTimestamp(time.Duration(i) * frameDur)
		buf.SetDuration(frameDur)
		if ret := src.PushBuffer(buf); ret != gst.FlowOK {
			return fmt.Errorf("push frame %d: flow %v", i, ret)
		}
	}
	src.EndStream()

	bus := pipeline.GetPipelineBus()
	deadline := time.Now().Add(finishTimeout)
	for time.Now().Before(deadline) {
		msg := bus.TimedPop(busPollInterval)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			monitoring.Logf("video: wrote %d frames to %s at %s fps", len(frames), path, rate)
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			return fmt.Errorf("pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())
		}
	}
	return fmt.Errorf("timed out waiting for end of stream after %s", finishTimeout)
}
