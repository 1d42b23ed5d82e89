package api

import (
	"net/http"
)

// HandleActiveAlerts serves the currently active alerts as a bare array.
func HandleActiveAlerts(alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, emptyIfNil(alerts.Active()))
	}
}

// HandleAlertHistory serves recent alert history, newest first.
// Query: limit (default 100).
func HandleAlertHistory(alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 100)
		history := alerts.History(limit)
		WriteJSON(w, http.StatusOK, map[string]any{
			"count": len(history),
			"data":  emptyIfNil(history),
		})
	}
}

// HandleAcknowledgeAlert marks an active alert as seen.
func HandleAcknowledgeAlert(alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !alerts.Acknowledge(id) {
			WriteError(w, http.StatusNotFound, "alert not found: "+id)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"acknowledged": true, "id": id})
	}
}

// HandleClearAlert removes an active alert.
func HandleClearAlert(alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !alerts.Clear(id) {
			WriteError(w, http.StatusNotFound, "alert not found: "+id)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"cleared": true, "id": id})
	}
}

// HandleClearAllAlerts removes every active alert.
func HandleClearAllAlerts(alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		n := alerts.ClearAll()
		WriteJSON(w, http.StatusOK, map[string]any{"cleared": n})
	}
}

func emptyIfNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
