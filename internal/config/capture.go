package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/simcam/internal/capture"
	"github.com/banshee-data/simcam/internal/sim"
	"github.com/banshee-data/simcam/internal/video"
)

// DefaultConfigPath is the path to the canonical capture defaults file.
const DefaultConfigPath = "config/capture.defaults.json"

// Built-in defaults used when a field is absent from the JSON file.
const (
	defaultTargetFrames = 500
	defaultResolution   = "1440x720"
	defaultFPS          = 25.0
	defaultRenderMode   = sim.RenderLit
	defaultOutputDir    = "."
	defaultEncoder      = video.MJPEGName
	defaultQuality      = 0
	defaultCatalogPath  = "simcam.db"
)

// CaptureConfig is the on-disk recording configuration. Every field is a
// pointer so partial files only override what they name.
type CaptureConfig struct {
	TargetFrames           *int     `json:"target_frames,omitempty"`
	Resolution             *string  `json:"resolution,omitempty"` // "WIDTHxHEIGHT"
	FPS                    *float64 `json:"fps,omitempty"`
	RenderMode             *string  `json:"render_mode,omitempty"`
	OutputDir              *string  `json:"output_dir,omitempty"`
	PreserveRealTime       *bool    `json:"preserve_real_time,omitempty"`
	MaxConsecutiveFailures *int     `json:"max_consecutive_failures,omitempty"`
	CadencePlot            *bool    `json:"cadence_plot,omitempty"`

	Encoder *string `json:"encoder,omitempty"`
	// Quality is the JPEG quality for mjpeg or the bitrate in kbit/s for
	// gst. Zero selects the encoder default.
	Quality *int `json:"quality,omitempty"`

	// CatalogPath is the sqlite recording catalog. An empty string
	// disables the catalog.
	CatalogPath *string `json:"catalog_path,omitempty"`

	// PolicySeed makes the default movement policy reproducible.
	PolicySeed *uint64 `json:"policy_seed,omitempty"`
}

func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }

// DefaultCaptureConfig returns a config with every field set to its
// built-in default.
func DefaultCaptureConfig() *CaptureConfig {
	return &CaptureConfig{
		TargetFrames:           ptrInt(defaultTargetFrames),
		Resolution:             ptrString(defaultResolution),
		FPS:                    ptrFloat64(defaultFPS),
		RenderMode:             ptrString(string(defaultRenderMode)),
		OutputDir:              ptrString(defaultOutputDir),
		PreserveRealTime:       ptrBool(true),
		MaxConsecutiveFailures: ptrInt(0),
		CadencePlot:            ptrBool(false),
		Encoder:                ptrString(defaultEncoder),
		Quality:                ptrInt(defaultQuality),
		CatalogPath:            ptrString(defaultCatalogPath),
	}
}

// LoadCaptureConfig loads a CaptureConfig from a JSON file.
// The file must have a .json extension and be under 1MB. Omitted fields
// fall back to the Get* defaults.
func LoadCaptureConfig(path string) (*CaptureConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &CaptureConfig{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that are set.
func (c *CaptureConfig) Validate() error {
	if c.TargetFrames != nil && *c.TargetFrames < 0 {
		return fmt.Errorf("target_frames must be non-negative, got %d", *c.TargetFrames)
	}
	if c.Resolution != nil {
		if _, err := sim.ParseResolution(*c.Resolution); err != nil {
			return fmt.Errorf("invalid resolution: %w", err)
		}
	}
	if c.FPS != nil && *c.FPS <= 0 {
		return fmt.Errorf("fps must be positive, got %f", *c.FPS)
	}
	if c.RenderMode != nil && !sim.RenderMode(*c.RenderMode).Valid() {
		return fmt.Errorf("unknown render_mode %q", *c.RenderMode)
	}
	if c.OutputDir != nil && *c.OutputDir == "" {
		return fmt.Errorf("output_dir must not be empty")
	}
	if c.MaxConsecutiveFailures != nil && *c.MaxConsecutiveFailures < 0 {
		return fmt.Errorf("max_consecutive_failures must be non-negative, got %d", *c.MaxConsecutiveFailures)
	}
	if c.Quality != nil && *c.Quality < 0 {
		return fmt.Errorf("quality must be non-negative, got %d", *c.Quality)
	}
	if c.Encoder != nil {
		known := false
		for _, name := range video.Names() {
			if name == *c.Encoder {
				known = true
				break
			}
		}
		if !known {
			return fmt.Errorf("unknown encoder %q (available: %v)", *c.Encoder, video.Names())
		}
	}
	return nil
}

// GetTargetFrames returns the target_frames value or the default.
func (c *CaptureConfig) GetTargetFrames() int {
	if c.TargetFrames == nil {
		return defaultTargetFrames
	}
	return *c.TargetFrames
}

// GetResolution parses the resolution, falling back to the default on a
// missing or malformed value.
func (c *CaptureConfig) GetResolution() sim.Resolution {
	if c.Resolution != nil {
		if r, err := sim.ParseResolution(*c.Resolution); err == nil {
			return r
		}
	}
	r, _ := sim.ParseResolution(defaultResolution)
	return r
}

// GetFPS returns the fps value or the default.
func (c *CaptureConfig) GetFPS() float64 {
	if c.FPS == nil {
		return defaultFPS
	}
	return *c.FPS
}

// GetRenderMode returns the render_mode value or the default.
func (c *CaptureConfig) GetRenderMode() sim.RenderMode {
	if c.RenderMode == nil {
		return defaultRenderMode
	}
	return sim.RenderMode(*c.RenderMode)
}

// GetOutputDir returns the output_dir value or the default.
func (c *CaptureConfig) GetOutputDir() string {
	if c.OutputDir == nil {
		return defaultOutputDir
	}
	return *c.OutputDir
}

// GetPreserveRealTime returns the preserve_real_time value or the default.
func (c *CaptureConfig) GetPreserveRealTime() bool {
	if c.PreserveRealTime == nil {
		return true
	}
	return *c.PreserveRealTime
}

// GetMaxConsecutiveFailures returns the max_consecutive_failures value or
// the default (unlimited).
func (c *CaptureConfig) GetMaxConsecutiveFailures() int {
	if c.MaxConsecutiveFailures == nil {
		return 0
	}
	return *c.MaxConsecutiveFailures
}

// GetCadencePlot returns the cadence_plot value or the default.
func (c *CaptureConfig) GetCadencePlot() bool {
	if c.CadencePlot == nil {
		return false
	}
	return *c.CadencePlot
}

// GetEncoder returns the encoder name or the default.
func (c *CaptureConfig) GetEncoder() string {
	if c.Encoder == nil {
		return defaultEncoder
	}
	return *c.Encoder
}

// GetQuality returns the encoder quality or the default.
func (c *CaptureConfig) GetQuality() int {
	if c.Quality == nil {
		return defaultQuality
	}
	return *c.Quality
}

// GetCatalogPath returns the catalog_path value or the default.
func (c *CaptureConfig) GetCatalogPath() string {
	if c.CatalogPath == nil {
		return defaultCatalogPath
	}
	return *c.CatalogPath
}

// ToCapture builds the session config. The policy is left nil; the caller
// picks one, usually from PolicySeed.
func (c *CaptureConfig) ToCapture() capture.Config {
	return capture.Config{
		TargetFrames:           c.GetTargetFrames(),
		Resolution:             c.GetResolution(),
		FPS:                    c.GetFPS(),
		RenderMode:             c.GetRenderMode(),
		OutputDir:              c.GetOutputDir(),
		PreserveRealTime:       c.GetPreserveRealTime(),
		MaxConsecutiveFailures: c.GetMaxConsecutiveFailures(),
		CadencePlot:            c.GetCadencePlot(),
	}
}
