package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gateview/gateview/internal/model"
	"github.com/gateview/gateview/internal/speedtest"
)

type runSpeedtestRequest struct {
	Tool string `json:"tool"`
}

// HandleRunSpeedtest triggers a one-shot speed test. A concurrent run yields
// 409 with the synthetic busy row; tool failures map timeout to 504 and
// everything else to 500, always carrying the persisted result.
func HandleRunSpeedtest(runner SpeedtestRunner, poller Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req runSpeedtestRequest
		if r.Body != nil {
			// An empty body selects the preferred tool.
			_ = json.NewDecoder(r.Body).Decode(&req)
		}

		rec, err := runner.Run(r.Context(), speedtest.RunOptions{
			Tool:        req.Tool,
			TriggeredBy: model.TriggerAPI,
			Snapshot:    poller.CurrentData(),
		})
		switch {
		case errors.Is(err, speedtest.ErrBusy):
			WriteJSON(w, http.StatusConflict, rec)
		case errors.Is(err, speedtest.ErrNoTool):
			WriteTypedError(w, http.StatusServiceUnavailable, err.Error(), string(model.SpeedtestError))
		case err != nil:
			WriteError(w, http.StatusInternalServerError, err.Error())
		case rec.Status == model.SpeedtestTimeout:
			WriteJSON(w, http.StatusGatewayTimeout, rec)
		case rec.Status != model.SpeedtestSuccess:
			WriteJSON(w, http.StatusInternalServerError, rec)
		default:
			WriteJSON(w, http.StatusOK, rec)
		}
	}
}

// HandleListSpeedtests serves recent results, newest first.
// Query: limit (default 20, max 500).
func HandleListSpeedtests(repo Repo) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", 20)
		if limit <= 0 || limit > 500 {
			limit = 20
		}
		rows, err := repo.QuerySpeedtests(limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"count": len(rows),
			"data":  rows,
		})
	}
}

// HandleSpeedtestTools lists the detected tools and the in-flight flag.
func HandleSpeedtestTools(runner SpeedtestRunner) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tools := runner.AvailableTools()
		if tools == nil {
			tools = []string{}
		}
		WriteJSON(w, http.StatusOK, map[string]any{
			"available_tools": tools,
			"running":         runner.Running(),
		})
	}
}
