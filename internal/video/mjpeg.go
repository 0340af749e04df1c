package video

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"

	"github.com/banshee-data/simcam/internal/fsutil"
)

// MJPEGName is the registry name of the Motion-JPEG AVI encoder.
const MJPEGName = "mjpeg"

const (
	defaultJPEGQuality = 90

	avifHasIndex   = 0x10
	aviifKeyframe  = 0x10
	avihSize       = 56
	strhSize       = 56
	strfSize       = 40
	idxEntrySize   = 16
	hdrlListLength = 4 + (8 + avihSize) + (8 + 4 + (8 + strhSize) + (8 + strfSize))
)

func init() {
	Register(MJPEGName, func(opts Options) Encoder {
		return &MJPEGEncoder{Quality: opts.Quality}
	})
}

// MJPEGEncoder writes frames as a Motion-JPEG stream in an AVI (RIFF)
// container. Every frame is a keyframe.
type MJPEGEncoder struct {
	// FS receives the output file. Nil writes to the OS filesystem.
	FS fsutil.FileSystem

	// Quality is the JPEG quality, 1-100. Zero means 90.
	Quality int
}

// Ext implements Encoder.
func (e *MJPEGEncoder) Ext() string { return ".avi" }

// Encode implements Encoder.
func (e *MJPEGEncoder) Encode(path string, frames []image.Image, fps float64) error {
	fs := e.FS
	if fs == nil {
		fs = fsutil.OSFileSystem{}
	}
	f, err := fs.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := e.WriteTo(f, frames, fps); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// WriteTo encodes frames to w. All JPEG payloads are produced before the
// first byte is written, so the RIFF sizes are known up front and w does
// not need to be seekable.
func (e *MJPEGEncoder) WriteTo(w io.Writer, frames []image.Image, fps float64) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	rate, err := RateFromFPS(fps)
	if err != nil {
		return err
	}
	quality := e.Quality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	bounds := frames[0].Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	payloads := make([][]byte, len(frames))
	var maxFrame, moviLen int
	moviLen = 4
	for i, img := range frames {
		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return fmt.Errorf("encode frame %d: %w", i, err)
		}
		payloads[i] = buf.Bytes()
		if buf.Len() > maxFrame {
			maxFrame = buf.Len()
		}
		moviLen += 8 + padded(buf.Len())
	}

	n := len(frames)
	idxLen := idxEntrySize * n
	riffLen := 4 + (8 + hdrlListLength) + (8 + moviLen) + (8 + idxLen)
	if uint64(riffLen) > math.MaxUint32 {
		return fmt.Errorf("recording too large for AVI: %d bytes", riffLen)
	}

	usPerFrame := uint32(math.Min(math.Round(1e6*float64(rate.Den)/float64(rate.Num)), math.MaxUint32))
	bytesPerSec := uint32(math.Min(float64(maxFrame)*rate.FPS(), math.MaxUint32))

	bw := &riffWriter{w: bufio.NewWriter(w)}

	bw.fourcc("RIFF")
	bw.u32(uint32(riffLen))
	bw.fourcc("AVI ")

	bw.fourcc("LIST")
	bw.u32(hdrlListLength)
	bw.fourcc("hdrl")

	bw.fourcc("avih")
	bw.u32(avihSize)
	bw.u32(usPerFrame)
	bw.u32(bytesPerSec)
	bw.u32(0) // padding granularity
	bw.u32(avifHasIndex)
	bw.u32(uint32(n))
	bw.u32(0) // initial frames
	bw.u32(1) // streams
	bw.u32(uint32(maxFrame))
	bw.u32(uint32(width))
	bw.u32(uint32(height))
	bw.zeros(16)

	bw.fourcc("LIST")
	bw.u32(4 + (8 + strhSize) + (8 + strfSize))
	bw.fourcc("strl")

	bw.fourcc("strh")
	bw.u32(strhSize)
	bw.fourcc("vids")
	bw.fourcc("MJPG")
	bw.u32(0) // flags
	bw.u16(0) // priority
	bw.u16(0) // language
	bw.u32(0) // initial frames
	bw.u32(rate.Den)
	bw.u32(rate.Num)
	bw.u32(0) // start
	bw.u32(uint32(n))
	bw.u32(uint32(maxFrame))
	bw.u32(math.MaxUint32) // quality: driver default
	bw.u32(0)              // sample size
	bw.u16(0)
	bw.u16(0)
	bw.u16(uint16(width))
	bw.u16(uint16(height))

	bw.fourcc("strf")
	bw.u32(strfSize)
	bw.u32(strfSize)
	bw.u32(uint32(width))
	bw.u32(uint32(height))
	bw.u16(1)  // planes
	bw.u16(24) // bit count
	bw.fourcc("MJPG")
	bw.u32(uint32(width * height * 3))
	bw.zeros(16)

	bw.fourcc("LIST")
	bw.u32(uint32(moviLen))
	bw.fourcc("movi")
	for _, p := range payloads {
		bw.fourcc("00dc")
		bw.u32(uint32(len(p)))
		bw.bytes(p)
		if len(p)%2 == 1 {
			bw.zeros(1)
		}
	}

	bw.fourcc("idx1")
	bw.u32(uint32(idxLen))
	offset := uint32(4)
	for _, p := range payloads {
		bw.fourcc("00dc")
		bw.u32(aviifKeyframe)
		bw.u32(offset)
		bw.u32(uint32(len(p)))
		offset += uint32(8 + padded(len(p)))
	}

	return bw.flush()
}

func padded(n int) int {
	return n + n%2
}

// riffWriter keeps the first write error so the header layout above reads
// straight through.
type riffWriter struct {
	w   *bufio.Writer
	err error
	b   [4]byte
}

func (r *riffWriter) bytes(p []byte) {
	if r.err != nil {
		return
	}
	_, r.err = r.w.Write(p)
}

func (r *riffWriter) fourcc(s string) {
	r.bytes([]byte(s[:4]))
}

func (r *riffWriter) u32(v uint32) {
	binary.LittleEndian.PutUint32(r.b[:], v)
	r.bytes(r.b[:4])
}

func (r *riffWriter) u16(v uint16) {
	binary.LittleEndian.PutUint16(r.b[:2], v)
	r.bytes(r.b[:2])
}

func (r *riffWriter) zeros(n int) {
	r.bytes(make([]byte, n))
}

func (r *riffWriter) flush() error {
	if r.err != nil {
		return r.err
	}
	return r.w.Flush()
}
