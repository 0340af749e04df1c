package video

import (
	"bytes"
	"encoding/binary"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/banshee-data/simcam/internal/fsutil"
)

type aviInfo struct {
	riffLen     uint32
	fileLen     int
	usPerFrame  uint32
	totalFrames uint32
	width       uint32
	height      uint32
	scale       uint32
	rate        uint32
	length      uint32
	chunks      [][]byte
	indexCount  int
}

func parseAVI(t *testing.T, data []byte) aviInfo {
	t.Helper()
	le := binary.LittleEndian
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "AVI " {
		t.Fatalf("not an AVI file: %q", data[:12])
	}
	info := aviInfo{riffLen: le.Uint32(data[4:8]), fileLen: len(data)}

	avih := bytes.Index(data, []byte("avih"))
	if avih < 0 {
		t.Fatal("avih chunk missing")
	}
	h := data[avih+8:]
	info.usPerFrame = le.Uint32(h[0:4])
	info.totalFrames = le.Uint32(h[16:20])
	info.width = le.Uint32(h[32:36])
	info.height = le.Uint32(h[36:40])

	strh := bytes.Index(data, []byte("strh"))
	if strh < 0 {
		t.Fatal("strh chunk missing")
	}
	s := data[strh+8:]
	if string(s[0:4]) != "vids" || string(s[4:8]) != "MJPG" {
		t.Fatalf("stream type = %q/%q", s[0:4], s[4:8])
	}
	info.scale = le.Uint32(s[20:24])
	info.rate = le.Uint32(s[24:28])
	info.length = le.Uint32(s[32:36])

	movi := bytes.Index(data, []byte("movi"))
	if movi < 0 {
		t.Fatal("movi list missing")
	}
	moviLen := int(le.Uint32(data[movi-4 : movi]))
	pos := movi + 4
	end := movi + moviLen
	for pos < end {
		if string(data[pos:pos+4]) != "00dc" {
			t.Fatalf("unexpected chunk %q at %d", data[pos:pos+4], pos)
		}
		n := int(le.Uint32(data[pos+4 : pos+8]))
		info.chunks = append(info.chunks, data[pos+8:pos+8+n])
		pos += 8 + n + n%2
	}

	if string(data[pos:pos+4]) != "idx1" {
		t.Fatalf("idx1 missing at %d: %q", pos, data[pos:pos+4])
	}
	idxLen := int(le.Uint32(data[pos+4 : pos+8]))
	info.indexCount = idxLen / idxEntrySize
	for i := 0; i < info.indexCount; i++ {
		e := data[pos+8+i*idxEntrySize:]
		off := int(le.Uint32(e[8:12]))
		size := int(le.Uint32(e[12:16]))
		if size != len(info.chunks[i]) {
			t.Errorf("index %d size = %d, want %d", i, size, len(info.chunks[i]))
		}
		if got := string(data[movi+off : movi+off+4]); got != "00dc" {
			t.Errorf("index %d offset %d points at %q", i, off, got)
		}
	}
	return info
}

func solidFrames(n, w, h int) []image.Image {
	frames := make([]image.Image, n)
	for i := range frames {
		img := image.NewRGBA(image.Rect(0, 0, w, h))
		c := color.RGBA{R: uint8(i * 40), G: 100, B: 200, A: 255}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				img.SetRGBA(x, y, c)
			}
		}
		frames[i] = img
	}
	return frames
}

func TestMJPEGWriteTo(t *testing.T) {
	var buf bytes.Buffer
	enc := &MJPEGEncoder{Quality: 75}
	if err := enc.WriteTo(&buf, solidFrames(5, 32, 16), 10); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}

	info := parseAVI(t, buf.Bytes())
	if int(info.riffLen)+8 != info.fileLen {
		t.Errorf("RIFF length %d + 8 != file length %d", info.riffLen, info.fileLen)
	}
	if info.totalFrames != 5 || info.length != 5 || len(info.chunks) != 5 || info.indexCount != 5 {
		t.Errorf("frame counts: avih=%d strh=%d chunks=%d idx=%d, want 5",
			info.totalFrames, info.length, len(info.chunks), info.indexCount)
	}
	if info.width != 32 || info.height != 16 {
		t.Errorf("dimensions = %dx%d, want 32x16", info.width, info.height)
	}
	if info.rate != 10 || info.scale != 1 {
		t.Errorf("rate/scale = %d/%d, want 10/1", info.rate, info.scale)
	}
	if info.usPerFrame != 100000 {
		t.Errorf("usPerFrame = %d, want 100000", info.usPerFrame)
	}

	for i, c := range info.chunks {
		img, err := jpeg.Decode(bytes.NewReader(c))
		if err != nil {
			t.Fatalf("frame %d: jpeg.Decode() error = %v", i, err)
		}
		if b := img.Bounds(); b.Dx() != 32 || b.Dy() != 16 {
			t.Errorf("frame %d bounds = %v", i, b)
		}
	}
}

func TestMJPEGFractionalRate(t *testing.T) {
	var buf bytes.Buffer
	if err := (&MJPEGEncoder{}).WriteTo(&buf, solidFrames(3, 8, 8), 9.87); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	info := parseAVI(t, buf.Bytes())
	got := float64(info.rate) / float64(info.scale)
	if math.Abs(got-9.87) > 1e-9 {
		t.Errorf("rate = %d/%d (%v), want 9.87", info.rate, info.scale, got)
	}
}

func TestMJPEGSlowRate(t *testing.T) {
	// Two frames over three hours.
	fps := 2.0 / (3 * 3600)
	var buf bytes.Buffer
	if err := (&MJPEGEncoder{}).WriteTo(&buf, solidFrames(2, 8, 8), fps); err != nil {
		t.Fatalf("WriteTo() error = %v", err)
	}
	info := parseAVI(t, buf.Bytes())
	if info.rate != 1 || info.scale != 5400 {
		t.Errorf("rate = %d/%d, want 1/5400", info.rate, info.scale)
	}
}

func TestMJPEGErrors(t *testing.T) {
	enc := &MJPEGEncoder{}
	var buf bytes.Buffer

	if err := enc.WriteTo(&buf, nil, 10); !errors.Is(err, ErrNoFrames) {
		t.Errorf("WriteTo(nil) error = %v, want ErrNoFrames", err)
	}
	if err := enc.WriteTo(&buf, solidFrames(2, 4, 4), 0); err == nil {
		t.Error("WriteTo(fps=0) expected error")
	}
	if err := enc.WriteTo(&buf, solidFrames(2, 4, 4), math.NaN()); err == nil {
		t.Error("WriteTo(fps=NaN) expected error")
	}
}

func TestMJPEGEncodeFileSystem(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	enc := &MJPEGEncoder{FS: mem}

	if err := enc.Encode("/out/a.avi", solidFrames(2, 8, 8), 30); err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	data, err := mem.ReadFile("/out/a.avi")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	parseAVI(t, data)

	mem.FailCreate = map[string]error{"b.avi": errors.New("disk full")}
	if err := enc.Encode("/out/b.avi", solidFrames(2, 8, 8), 30); err == nil {
		t.Error("Encode() expected error when create fails")
	}
	if mem.Exists("/out/b.avi") {
		t.Error("failed encode should not leave a file")
	}
}

func TestRateFromFPS(t *testing.T) {
	tests := []struct {
		fps     float64
		want    Rate
		wantErr bool
	}{
		{10, Rate{10, 1}, false},
		{29.97, Rate{2997, 100}, false},
		{0.5, Rate{1, 2}, false},
		{12.345, Rate{2469, 200}, false},
		{0, Rate{}, true},
		{-1, Rate{}, true},
		{0.0001, Rate{1, 10000}, false},
		{1.0 / 300, Rate{1, 300}, false},
		{2.0 / (3 * 3600), Rate{1, 5400}, false},
		{1e-12, Rate{}, true},
		{5e9, Rate{}, true},
		{math.Inf(1), Rate{}, true},
	}
	for _, tt := range tests {
		got, err := RateFromFPS(tt.fps)
		if (err != nil) != tt.wantErr {
			t.Errorf("RateFromFPS(%v) error = %v, wantErr %v", tt.fps, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("RateFromFPS(%v) = %v, want %v", tt.fps, got, tt.want)
		}
	}
}

func TestRegistry(t *testing.T) {
	enc, err := New(MJPEGName, Options{Quality: 50})
	if err != nil {
		t.Fatalf("New(mjpeg) error = %v", err)
	}
	if enc.Ext() != ".avi" {
		t.Errorf("Ext() = %q, want .avi", enc.Ext())
	}
	if _, err := New("nope", Options{}); err == nil {
		t.Error("New(nope) expected error")
	}
	found := false
	for _, n := range Names() {
		if n == MJPEGName {
			found = true
		}
	}
	if !found {
		t.Errorf("Names() = %v, missing %q", Names(), MJPEGName)
	}
}
