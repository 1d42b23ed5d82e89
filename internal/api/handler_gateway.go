package api

import (
	"net/http"

	"github.com/gateview/gateview/internal/gateway"
)

// HandleGatewayStatus reports poller health plus a connectivity summary
// derived from the latest sample.
func HandleGatewayStatus(poller Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats := poller.Stats()
		resp := map[string]any{
			"stats":     stats,
			"connected": stats.CircuitState == gateway.CircuitClosed && !stats.OutageActive,
		}
		if sample := poller.CurrentData(); sample != nil {
			resp["connection_mode"] = sample.Mode()
			resp["last_sample_at"] = sample.Timestamp
			if sample.NRSINR != nil {
				resp["nr_sinr"] = *sample.NRSINR
			}
			if sample.LTESINR != nil {
				resp["lte_sinr"] = *sample.LTESINR
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleGatewayPoll forces an immediate poll cycle outside the loop cadence.
func HandleGatewayPoll(poller Poller) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sample, perr := poller.PollOnce(r.Context())
		if perr != nil {
			WriteTypedError(w, http.StatusBadGateway, perr.Error(), string(perr.Type))
			return
		}
		if sample == nil {
			WriteError(w, http.StatusServiceUnavailable, "poll skipped: circuit breaker open")
			return
		}
		WriteJSON(w, http.StatusOK, sample)
	}
}
