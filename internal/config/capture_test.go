package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/banshee-data/simcam/internal/sim"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("Failed to write test config: %v", err)
	}
	return path
}

func TestDefaultCaptureConfig(t *testing.T) {
	cfg := DefaultCaptureConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults failed validation: %v", err)
	}

	c := cfg.ToCapture()
	if c.TargetFrames != 500 {
		t.Errorf("TargetFrames = %d, want 500", c.TargetFrames)
	}
	if c.Resolution != (sim.Resolution{Width: 1440, Height: 720}) {
		t.Errorf("Resolution = %s, want 1440x720", c.Resolution)
	}
	if c.FPS != 25 {
		t.Errorf("FPS = %v, want 25", c.FPS)
	}
	if c.RenderMode != sim.RenderLit {
		t.Errorf("RenderMode = %q, want lit", c.RenderMode)
	}
	if !c.PreserveRealTime {
		t.Error("PreserveRealTime = false, want true")
	}
	if err := c.Validate(); err != nil {
		t.Errorf("capture config invalid: %v", err)
	}
}

func TestEmptyConfigUsesDefaults(t *testing.T) {
	cfg := &CaptureConfig{}
	want := DefaultCaptureConfig().ToCapture()
	got := cfg.ToCapture()
	if got != want {
		t.Errorf("ToCapture() = %+v, want %+v", got, want)
	}
	if cfg.GetEncoder() != "mjpeg" {
		t.Errorf("GetEncoder() = %q, want mjpeg", cfg.GetEncoder())
	}
	if cfg.GetCatalogPath() != "simcam.db" {
		t.Errorf("GetCatalogPath() = %q, want simcam.db", cfg.GetCatalogPath())
	}
}

func TestLoadCaptureConfig(t *testing.T) {
	path := writeConfig(t, "capture.json", `{
  "target_frames": 0,
  "resolution": "640x480",
  "fps": 10,
  "render_mode": "depth",
  "preserve_real_time": false,
  "max_consecutive_failures": 5,
  "catalog_path": ""
}`)

	cfg, err := LoadCaptureConfig(path)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	c := cfg.ToCapture()
	if c.TargetFrames != 0 {
		t.Errorf("TargetFrames = %d, want 0", c.TargetFrames)
	}
	if c.Resolution != (sim.Resolution{Width: 640, Height: 480}) {
		t.Errorf("Resolution = %s, want 640x480", c.Resolution)
	}
	if c.FPS != 10 {
		t.Errorf("FPS = %v, want 10", c.FPS)
	}
	if c.RenderMode != sim.RenderDepth {
		t.Errorf("RenderMode = %q, want depth", c.RenderMode)
	}
	if c.PreserveRealTime {
		t.Error("PreserveRealTime = true, want false")
	}
	if c.MaxConsecutiveFailures != 5 {
		t.Errorf("MaxConsecutiveFailures = %d, want 5", c.MaxConsecutiveFailures)
	}
	// Omitted fields keep their defaults.
	if c.OutputDir != "." {
		t.Errorf("OutputDir = %q, want .", c.OutputDir)
	}
	if cfg.GetCatalogPath() != "" {
		t.Errorf("GetCatalogPath() = %q, want empty", cfg.GetCatalogPath())
	}
}

func TestLoadCaptureConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{"extension", "capture.yaml", `{}`, ".json extension"},
		{"bad json", "capture.json", `{"fps":`, "failed to parse"},
		{"negative frames", "capture.json", `{"target_frames": -1}`, "target_frames"},
		{"zero fps", "capture.json", `{"fps": 0}`, "fps must be positive"},
		{"bad resolution", "capture.json", `{"resolution": "wide"}`, "invalid resolution"},
		{"bad render mode", "capture.json", `{"render_mode": "xray"}`, "render_mode"},
		{"empty output dir", "capture.json", `{"output_dir": ""}`, "output_dir"},
		{"negative failures", "capture.json", `{"max_consecutive_failures": -2}`, "max_consecutive_failures"},
		{"unknown encoder", "capture.json", `{"encoder": "theora"}`, "unknown encoder"},
		{"negative quality", "capture.json", `{"quality": -1}`, "quality"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.file, tt.body)
			_, err := LoadCaptureConfig(path)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadCaptureConfigMissingFile(t *testing.T) {
	_, err := LoadCaptureConfig(filepath.Join(t.TempDir(), "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "failed to stat") {
		t.Errorf("expected stat error, got %v", err)
	}
}

func TestLoadCaptureConfigTooLarge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.json")
	big := make([]byte, 1024*1024+1)
	if err := os.WriteFile(path, big, 0644); err != nil {
		t.Fatal(err)
	}
	_, err := LoadCaptureConfig(path)
	if err == nil || !strings.Contains(err.Error(), "too large") {
		t.Errorf("expected size error, got %v", err)
	}
}

func TestDefaultsFileMatchesBuiltins(t *testing.T) {
	cfg, err := LoadCaptureConfig(filepath.Join("..", "..", DefaultConfigPath))
	if err != nil {
		t.Fatalf("Failed to load %s: %v", DefaultConfigPath, err)
	}
	if got, want := cfg.ToCapture(), DefaultCaptureConfig().ToCapture(); got != want {
		t.Errorf("defaults file = %+v, built-in = %+v", got, want)
	}
	if cfg.GetEncoder() != DefaultCaptureConfig().GetEncoder() {
		t.Errorf("encoder = %q, want %q", cfg.GetEncoder(), DefaultCaptureConfig().GetEncoder())
	}
}
