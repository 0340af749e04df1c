// Package video writes buffered capture frames into a playable container.
//
// The default encoder is a dependency-free Motion-JPEG AVI writer. Builds with
// the gst tag also register a GStreamer H.264/MP4 encoder.
package video

import (
	"errors"
	"fmt"
	"image"
	"math"
	"sort"
	"sync"
)

// Encoder turns an ordered frame sequence into one video file.
type Encoder interface {
	// Encode writes frames to path at the given frame rate. All frames are
	// expected to share the dimensions of the first one.
	Encode(path string, frames []image.Image, fps float64) error

	// Ext is the file extension including the leading dot.
	Ext() string
}

// Factory builds an Encoder writing through the given options.
type Factory func(opts Options) Encoder

// Options configure a registered encoder.
type Options struct {
	// Quality is the JPEG quality (1-100) for MJPEG, or the x264 bitrate in
	// kbit/s for the GStreamer encoder. Zero selects the encoder default.
	Quality int
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes an encoder available by name. It panics on duplicates.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("video: Register called twice for encoder " + name)
	}
	registry[name] = f
}

// New returns the named encoder.
func New(name string, opts Options) (Encoder, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown video encoder %q (available: %v)", name, Names())
	}
	return f(opts), nil
}

// Names lists the registered encoders in sorted order.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Rate is a frame rate expressed as Num/Den frames per second.
type Rate struct {
	Num uint32
	Den uint32
}

// RateFromFPS converts a fractional frame rate to the closest rational
// whose numerator and denominator fit in 32 bits, using continued-fraction
// convergents. Non-positive or non-finite rates are rejected, as are rates
// too small or too large to represent.
func RateFromFPS(fps float64) (Rate, error) {
	if fps <= 0 || math.IsNaN(fps) || math.IsInf(fps, 0) {
		return Rate{}, fmt.Errorf("invalid frame rate %v", fps)
	}
	const limit = math.MaxUint32
	if fps > limit {
		return Rate{}, fmt.Errorf("frame rate %v too large", fps)
	}
	if fps < 1.0/limit {
		return Rate{}, fmt.Errorf("frame rate %v too small", fps)
	}

	// h and k hold the last two convergent numerators and denominators.
	h0, h1 := uint64(0), uint64(1)
	k0, k1 := uint64(1), uint64(0)
	x := fps
	for {
		a := math.Floor(x)
		if a > limit {
			break
		}
		h2 := uint64(a)*h1 + h0
		k2 := uint64(a)*k1 + k0
		if h2 > limit || k2 > limit {
			break
		}
		h0, h1, k0, k1 = h1, h2, k1, k2
		if h1 != 0 && math.Abs(float64(h1)/float64(k1)-fps) <= fps*rateTolerance {
			break
		}
		frac := x - a
		if frac == 0 {
			break
		}
		x = 1 / frac
	}
	if h1 == 0 || k1 == 0 {
		return Rate{}, fmt.Errorf("frame rate %v too small", fps)
	}
	return Rate{Num: uint32(h1), Den: uint32(k1)}, nil
}

// rateTolerance is the relative error at which convergent search stops.
const rateTolerance = 1e-9

// FPS returns the rate as a float.
func (r Rate) FPS() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

func (r Rate) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

func gcd(a, b uint64) uint64 {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

// ErrNoFrames is returned when Encode is called with an empty frame slice.
var ErrNoFrames = errors.New("no frames to encode")
