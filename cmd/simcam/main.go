// Command simcam records a camera mounted on a simulated subject into an
// MJPEG (or GStreamer MP4) video plus pose and action tables.
//
// In sync mode the recorder steps the simulation itself and drives the
// subject with the default movement policy. In async mode a background
// loop captures at the configured rate while a separate controller
// goroutine moves the subject, the way an external agent would.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/simcam/internal/capture"
	"github.com/banshee-data/simcam/internal/catalog"
	"github.com/banshee-data/simcam/internal/config"
	"github.com/banshee-data/simcam/internal/fsutil"
	"github.com/banshee-data/simcam/internal/sim"
	"github.com/banshee-data/simcam/internal/timeutil"
	"github.com/banshee-data/simcam/internal/version"
	"github.com/banshee-data/simcam/internal/video"
)

var (
	configPath = flag.String("config", "", "Path to a capture config JSON file (defaults built in)")
	mode       = flag.String("mode", "async", "Recording mode: sync or async")
	listen     = flag.String("listen", ":8090", "Debug HTTP listen address (empty disables)")
	frames     = flag.Int("frames", -1, "Override target frame count (0 = until stopped, async only)")
	fps        = flag.Float64("fps", 0, "Override nominal frame rate")
	outputDir  = flag.String("output", "", "Override output directory")
	encoder    = flag.String("encoder", "", "Override video encoder")
	catalogDB  = flag.String("catalog", "", "Override catalog database path")
	duration   = flag.Duration("duration", 0, "Async mode: stop after this long (0 = until target or signal)")
	latency    = flag.Duration("render-latency", 5*time.Millisecond, "Synthetic engine render latency per frame")
	controlInt = flag.Duration("control-interval", 200*time.Millisecond, "Async mode: interval between controller actions")
	keepPace   = flag.Bool("preserve-real-time", true, "Async mode: encode at the achieved rate instead of the nominal one")
	showVer    = flag.Bool("version", false, "Print version and exit")
)

func loadConfig() (*config.CaptureConfig, error) {
	if *configPath == "" {
		return config.DefaultCaptureConfig(), nil
	}
	return config.LoadCaptureConfig(*configPath)
}

func main() {
	flag.Parse()

	if *showVer {
		fmt.Println(version.String())
		return
	}
	log.Printf("starting %s", version.String())

	if *mode != "sync" && *mode != "async" {
		log.Fatalf("unknown mode %q (want sync or async)", *mode)
	}

	cc, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *frames >= 0 {
		cc.TargetFrames = frames
	}
	if *fps > 0 {
		cc.FPS = fps
	}
	if *outputDir != "" {
		cc.OutputDir = outputDir
	}
	if *encoder != "" {
		cc.Encoder = encoder
	}
	if *catalogDB != "" {
		cc.CatalogPath = catalogDB
	}
	if err := cc.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	cfg := cc.ToCapture()
	if cc.PolicySeed != nil {
		cfg.Policy = capture.NewDefaultPolicy(rand.New(rand.NewPCG(*cc.PolicySeed, *cc.PolicySeed)))
	}

	enc, err := video.New(cc.GetEncoder(), video.Options{Quality: cc.GetQuality()})
	if err != nil {
		log.Fatalf("failed to create encoder: %v", err)
	}
	fin := &capture.Finalizer{
		Clock:   timeutil.RealClock{},
		FS:      fsutil.OSFileSystem{},
		Encoder: enc,
	}

	var store *catalog.Store
	if path := cc.GetCatalogPath(); path != "" {
		store, err = catalog.Open(path)
		if err != nil {
			log.Fatalf("failed to open catalog: %v", err)
		}
		fin.Sink = store
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(version.Collector())
	metrics, err := capture.NewMetrics(reg)
	if err != nil {
		log.Fatalf("failed to register metrics: %v", err)
	}

	engine := sim.NewSynthetic(nil)
	engine.Latency = *latency
	subject := sim.NewRegistry().NewSubject("humanoid", engine)
	engine.Spawn(subject, sim.Vec3{}, 0)

	session, err := capture.NewSession(engine, subject, cfg, capture.Options{
		Finalizer: fin,
		Metrics:   metrics,
	})
	if err != nil {
		log.Fatalf("failed to create session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if *listen != "" {
		mux := http.NewServeMux()
		session.AttachAdminRoutes(mux)
		if store != nil {
			if err := store.AttachAdminRoutes(mux); err != nil {
				log.Fatalf("failed to attach catalog routes: %v", err)
			}
		}
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

		server := &http.Server{Addr: *listen, Handler: mux}
		wg.Add(1)
		go func() {
			defer wg.Done()
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Printf("debug server error: %v", err)
				}
			}()
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
			}
		}()
		log.Printf("debug routes on http://%s/debug/", *listen)
	}

	var art *capture.Artifact
	if *mode == "sync" {
		art, err = session.RecordSynchronous(ctx)
	} else {
		art, err = recordAsync(ctx, session, engine, subject, cfg.TargetFrames)
	}
	reportResult(art, err)

	stop()
	wg.Wait()
	if store != nil {
		store.Close()
	}

	if art == nil {
		os.Exit(1)
	}
}

// recordAsync starts the background recorder and a controller that moves
// the subject until the frame target, the duration limit or a signal.
func recordAsync(ctx context.Context, session *capture.Session, engine *sim.Synthetic, subject sim.Subject, target int) (*capture.Artifact, error) {
	if target == 0 && *duration == 0 {
		log.Printf("recording until interrupted")
	}
	began := time.Now()
	if err := session.Start(); err != nil {
		return nil, err
	}

	ctrlCtx, cancelCtrl := context.WithCancel(ctx)
	var ctrl sync.WaitGroup
	ctrl.Add(1)
	go func() {
		defer ctrl.Done()
		runController(ctrlCtx, engine, subject)
	}()

	var deadline <-chan time.Time
	if *duration > 0 {
		timer := time.NewTimer(*duration)
		defer timer.Stop()
		deadline = timer.C
	}

	select {
	case <-ctx.Done():
		log.Printf("interrupted, stopping recording")
	case <-deadline:
	case <-session.Done():
	}

	cancelCtrl()
	ctrl.Wait()
	return finishAsync(session, began, *keepPace)
}

// finishAsync stops the session. If an operator already stopped it through
// /debug/capture-stop, the artifact of that stop is returned instead.
func finishAsync(session *capture.Session, began time.Time, preserveRealTime bool) (*capture.Artifact, error) {
	art, err := session.Stop(preserveRealTime)
	if !errors.Is(err, capture.ErrNotRecording) {
		return art, err
	}
	if last := session.Status().LastArtifact; last != nil && !last.StartedAt.Before(began) {
		log.Printf("recording was stopped through the debug routes")
		return last, nil
	}
	return nil, err
}

// runController issues the default movement policy's actions directly to
// the engine, standing in for an external agent.
func runController(ctx context.Context, engine *sim.Synthetic, subject sim.Subject) {
	policy := capture.NewDefaultPolicy(nil)
	ticker := time.NewTicker(*controlInt)
	defer ticker.Stop()

	for step := 0; ; step++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, a := range policy.Actions(step) {
			if err := engine.IssueAction(subject.ID, a.Kind, a.Magnitude); err != nil {
				log.Printf("controller action %s failed: %v", a, err)
			}
		}
	}
}

func reportResult(art *capture.Artifact, err error) {
	var encErr *capture.EncodingError
	switch {
	case errors.Is(err, capture.ErrNoFramesCaptured):
		log.Printf("no recording written: %v", err)
		return
	case errors.As(err, &encErr):
		log.Printf("video encoding failed, tables kept: %v", err)
	case err != nil && art == nil:
		log.Printf("recording failed: %v", err)
		return
	case err != nil:
		log.Printf("recording ended early: %v", err)
	}
	if art == nil {
		return
	}
	log.Printf("recorded %d frames (%d actions) of %s in %s: %.2f fps achieved, encoded at %.2f fps",
		art.Frames, art.Actions, art.Subject, art.Duration.Round(time.Millisecond), art.AchievedFPS, art.OutputFPS)
	log.Printf("video: %s", art.VideoPath)
	log.Printf("poses: %s", art.PosePath)
	log.Printf("actions: %s", art.ActionPath)
	if art.PlotPath != "" {
		log.Printf("cadence plot: %s", art.PlotPath)
	}
}
