package api

import (
	"net/http"
	"time"

	"github.com/gateview/gateview/internal/store"
)

// HandleSignal serves the most recent sample: the poller's live value when
// present, otherwise the latest persisted row. 503 when neither exists yet.
func HandleSignal(poller Poller, repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if sample := poller.CurrentData(); sample != nil {
			WriteJSON(w, http.StatusOK, sample)
			return
		}
		sample, err := repo.LatestSignal()
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if sample == nil {
			WriteError(w, http.StatusServiceUnavailable, "No signal data available")
			return
		}
		WriteJSON(w, http.StatusOK, sample)
	}
}

// HandleSignalHistory serves ranged, optionally downsampled history.
// Query: duration_minutes (default 60), resolution (full|auto|seconds).
func HandleSignalHistory(repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		duration := queryInt(r, "duration_minutes", 60)
		if duration <= 0 {
			WriteError(w, http.StatusBadRequest, "duration_minutes must be positive")
			return
		}
		resolution := r.URL.Query().Get("resolution")
		if resolution == "" {
			resolution = "auto"
		}

		nowUnix := float64(time.Now().UnixNano()) / 1e9
		rows, effective, err := repo.QuerySignalHistory(store.SignalHistoryParams{
			DurationMinutes: duration,
			Resolution:      resolution,
		}, nowUnix)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"count":            len(rows),
			"duration_minutes": duration,
			"resolution":       effective,
			"data":             rows,
		})
	}
}

// HandleTowerHistory serves derived tower handoff records.
// Query: duration_minutes (default 1440).
func HandleTowerHistory(repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		duration := queryInt(r, "duration_minutes", 1440)
		nowUnix := float64(time.Now().UnixNano()) / 1e9
		changes, err := repo.TowerHistory(duration, nowUnix)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"count":            len(changes),
			"duration_minutes": duration,
			"data":             changes,
		})
	}
}
