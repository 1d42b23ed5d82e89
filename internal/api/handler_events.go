package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// HandleEvents streams live updates over Server-Sent Events: decoded signal
// samples, gateway outage open/resolve events, and alert engine events
// (including its heartbeats). The stream runs until the client disconnects.
func HandleEvents(poller Poller, alerts Alerts) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			WriteError(w, http.StatusInternalServerError, "streaming unsupported")
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		signalToken, signalCh := poller.Subscribe()
		defer poller.Unsubscribe(signalToken)
		outageToken, outageCh := poller.SubscribeOutages()
		defer poller.UnsubscribeOutages(outageToken)
		alertCh, cancelAlerts := alerts.Subscribe()
		defer cancelAlerts()

		for {
			select {
			case <-r.Context().Done():
				return
			case sample, ok := <-signalCh:
				if !ok {
					return
				}
				writeSSE(w, flusher, "signal", sample)
			case ev, ok := <-outageCh:
				if !ok {
					return
				}
				writeSSE(w, flusher, "disruption", ev)
			case ev, ok := <-alertCh:
				if !ok {
					return
				}
				writeSSE(w, flusher, string(ev.Kind), ev)
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	flusher.Flush()
}
