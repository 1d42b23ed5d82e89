package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Deps carries the wired core components the server exposes.
type Deps struct {
	Poller    Poller
	Repo      Repo
	Speedtest SpeedtestRunner
	Scheduler Scheduler
	Alerts    Alerts
}

// Server wraps the HTTP server and mux for the gateview API.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates an API server wired with all routes.
func NewServer(listenAddress string, port int, deps Deps) *Server {
	mux := http.NewServeMux()

	mux.Handle("GET /healthz", HandleHealthz())
	mux.Handle("GET /api/system/info", HandleSystemInfo())

	mux.Handle("GET /api/signal", HandleSignal(deps.Poller, deps.Repo))
	mux.Handle("GET /api/signal/history", HandleSignalHistory(deps.Repo))
	mux.Handle("GET /api/signal/towers", HandleTowerHistory(deps.Repo))
	mux.Handle("GET /api/gateway/status", HandleGatewayStatus(deps.Poller))
	mux.Handle("POST /api/gateway/poll", HandleGatewayPoll(deps.Poller))

	mux.Handle("POST /api/speedtest", HandleRunSpeedtest(deps.Speedtest, deps.Poller))
	mux.Handle("GET /api/speedtest", HandleListSpeedtests(deps.Repo))
	mux.Handle("GET /api/speedtest/tools", HandleSpeedtestTools(deps.Speedtest))

	mux.Handle("GET /api/scheduler/config", HandleSchedulerConfig(deps.Scheduler))
	mux.Handle("PATCH /api/scheduler/config", HandlePatchSchedulerConfig(deps.Scheduler))
	mux.Handle("GET /api/scheduler/stats", HandleSchedulerStats(deps.Scheduler))
	mux.Handle("POST /api/scheduler/start", HandleSchedulerStart(deps.Scheduler))
	mux.Handle("POST /api/scheduler/stop", HandleSchedulerStop(deps.Scheduler))

	mux.Handle("GET /api/disruptions", HandleDisruptions(deps.Repo))
	mux.Handle("GET /api/quality", HandleNetworkQuality(deps.Repo))

	mux.Handle("GET /api/alerts", HandleActiveAlerts(deps.Alerts))
	mux.Handle("GET /api/alerts/history", HandleAlertHistory(deps.Alerts))
	mux.Handle("POST /api/alerts/{id}/acknowledge", HandleAcknowledgeAlert(deps.Alerts))
	mux.Handle("POST /api/alerts/{id}/clear", HandleClearAlert(deps.Alerts))
	mux.Handle("POST /api/alerts/clear-all", HandleClearAllAlerts(deps.Alerts))

	mux.Handle("GET /api/events", HandleEvents(deps.Poller, deps.Alerts))

	srv := &http.Server{
		Addr:    net.JoinHostPort(listenAddress, strconv.Itoa(port)),
		Handler: mux,
		// No WriteTimeout: /api/events streams indefinitely.
		ReadHeaderTimeout: 10 * time.Second,
	}
	return &Server{httpServer: srv, mux: mux}
}

// ListenAndServe starts the HTTP server. It blocks until the server stops.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler returns the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// queryInt parses an integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
