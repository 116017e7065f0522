/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

// Package buildinfo reports the version of the running binary.
package buildinfo

import (
	"runtime/debug"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// AppName is used in the User-Agent of outgoing requests.
const AppName = "mobgames-site"

// PrometheusVersionLabel is the constant label with the binary version.
const PrometheusVersionLabel = "version"

const (
	develVersion    = "(devel)"
	fallbackVersion = "dev"
	shortRevision   = 12
)

var version string
var versionOnce sync.Once

// Version returns the module version of the binary. For builds from a work tree
// it's the VCS revision (with "-dirty" suffix for modified trees) or "dev".
func Version() string {
	versionOnce.Do(func() {
		info, _ := debug.ReadBuildInfo()
		version = extractVersion(info)
	})
	return version
}

// UserAgent returns the User-Agent for requests to upstream APIs.
func UserAgent() string {
	return AppName + "/" + Version()
}

// AddPrometheusVersionLabel returns a copy of labels with the version label added.
func AddPrometheusVersionLabel(labels prometheus.Labels) prometheus.Labels {
	labelsCopy := make(prometheus.Labels, len(labels)+1)
	for k, v := range labels {
		labelsCopy[k] = v
	}
	labelsCopy[PrometheusVersionLabel] = Version()
	return labelsCopy
}

func extractVersion(info *debug.BuildInfo) string {
	if info == nil {
		return fallbackVersion
	}
	if info.Main.Version != "" && info.Main.Version != develVersion {
		return info.Main.Version
	}
	var revision string
	var modified bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	if revision == "" {
		return fallbackVersion
	}
	if len(revision) > shortRevision {
		revision = revision[:shortRevision]
	}
	if modified {
		revision += "-dirty"
	}
	return revision
}
