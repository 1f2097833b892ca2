// Package version reports build information and registers it as a
// prometheus metric.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
)

// VERSION has the current software version (set in the build process)
var (
	VERSION    string
	buildTime  string
	gitVersion string
)

func init() {
	if len(gitVersion) == 0 {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, s := range info.Settings {
				if s.Key == "vcs.revision" && len(s.Value) >= 8 {
					gitVersion = s.Value[:8]
				}
			}
		}
	}
	if len(gitVersion) > 0 {
		VERSION = VERSION + "/" + gitVersion
	}
	if len(VERSION) == 0 {
		VERSION = "dev-snapshot"
	}
	Version()
}

var v string

// Version returns the version, build time and Go runtime version.
func Version() string {
	if len(v) > 0 {
		return v
	}
	extra := []string{}
	if len(buildTime) > 0 {
		extra = append(extra, buildTime)
	}
	extra = append(extra, runtime.Version())
	v = fmt.Sprintf("%s (%s)", VERSION, strings.Join(extra, ", "))
	return v
}

// RegisterMetric adds a build_info gauge for the named component.
func RegisterMetric(name string, registry prometheus.Registerer) {
	metricName := "build_info"
	if len(name) > 0 {
		metricName = name + "_" + metricName
	}
	buildInfo := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metricName,
			Help: "Build information",
		},
		[]string{"version", "buildtime", "gotime"},
	)
	registry.MustRegister(buildInfo)
	buildInfo.WithLabelValues(VERSION, buildTime, runtime.Version()).Set(1)
}
