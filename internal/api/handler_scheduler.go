package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gateview/gateview/internal/sched"
)

// HandleSchedulerConfig serves the live scheduler configuration.
func HandleSchedulerConfig(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.Config())
	}
}

// HandlePatchSchedulerConfig merges the request body onto the current
// configuration. Omitted fields keep their values; an explicit null clears
// the time window bounds.
func HandlePatchSchedulerConfig(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg := s.Config()
		if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
		if err := s.UpdateConfig(cfg); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, s.Config())
	}
}

// HandleSchedulerStats serves run counters and next-fire timing.
func HandleSchedulerStats(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, s.Stats())
	}
}

// HandleSchedulerStart starts the scheduler loop. 409 when already running.
func HandleSchedulerStart(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Start(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sched.ErrAlreadyRunning) {
				status = http.StatusConflict
			}
			WriteError(w, status, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"running": true})
	}
}

// HandleSchedulerStop stops the scheduler loop. 409 when not running.
func HandleSchedulerStop(s Scheduler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Stop(); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, sched.ErrNotRunning) {
				status = http.StatusConflict
			}
			WriteError(w, status, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{"running": false})
	}
}
