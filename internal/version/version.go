// Package version carries build metadata set with -ldflags -X.
package version

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Version is the release version.
	Version = "dev"
	// GitSHA is the git commit SHA.
	GitSHA = "unknown"
	// BuildTime is the build timestamp.
	BuildTime = "unknown"
)

// String formats the build metadata for logs and -version output.
func String() string {
	return fmt.Sprintf("simcam %s (%s, built %s)", Version, GitSHA, BuildTime)
}

// Collector returns a constant simcam_build_info gauge labelled with the
// build metadata.
func Collector() prometheus.Collector {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "simcam",
		Name:      "build_info",
		Help:      "Build metadata of the running binary; always 1.",
		ConstLabels: prometheus.Labels{
			"version":    Version,
			"git_sha":    GitSHA,
			"build_time": BuildTime,
		},
	})
	g.Set(1)
	return g
}
