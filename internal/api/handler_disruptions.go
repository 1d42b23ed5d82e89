package api

import (
	"net/http"
)

// HandleDisruptions serves disruption events with aggregate stats.
// Query: hours (default 24).
func HandleDisruptions(repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := queryInt(r, "hours", 24)
		if hours <= 0 {
			hours = 24
		}
		events, err := repo.QueryDisruptions(hours)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		stats, err := repo.QueryDisruptionStats(hours)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"period_hours": hours,
			"count":        len(events),
			"stats":        stats,
			"data":         events,
		})
	}
}

// HandleNetworkQuality serves background ping probe results.
// Query: hours (default 24).
func HandleNetworkQuality(repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := queryInt(r, "hours", 24)
		if hours <= 0 {
			hours = 24
		}
		rows, err := repo.QueryNetworkQuality(hours)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"period_hours": hours,
			"count":        len(rows),
			"data":         rows,
		})
	}
}
