package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gateview/gateview/internal/buildinfo"
)

var startTime = time.Now()

// HandleHealthz is the liveness probe.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleSystemInfo reports build and runtime information.
func HandleSystemInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"version":        buildinfo.Version,
			"git_commit":     buildinfo.GitCommit,
			"build_time":     buildinfo.BuildTime,
			"go_version":     runtime.Version(),
			"os":             runtime.GOOS,
			"arch":           runtime.GOARCH,
			"uptime_seconds": int64(time.Since(startTime).Seconds()),
		})
	}
}
