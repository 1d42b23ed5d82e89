// Package alert evaluates threshold policies against the latest signal and
// speedtest snapshots and maintains the in-memory alert state.
package alert

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gateview/gateview/internal/bus"
	"github.com/gateview/gateview/internal/model"
	"github.com/gateview/gateview/internal/scanloop"
)

// historyCap bounds the in-memory alert history; the oldest entries are
// dropped when full.
const historyCap = 1000

// SnapshotStore supplies the latest persisted snapshots for evaluation.
type SnapshotStore interface {
	LatestSignal() (*model.SignalSample, error)
	LatestSpeedtest() (*model.SpeedtestResult, error)
}

// EventKind discriminates alert bus payloads.
type EventKind string

const (
	KindAlert            EventKind = "alert"
	KindAlertCleared     EventKind = "alert_cleared"
	KindAllAlertsCleared EventKind = "all_alerts_cleared"
	KindHeartbeat        EventKind = "heartbeat"
)

// Event is one alert bus payload.
type Event struct {
	Kind      EventKind    `json:"kind"`
	Timestamp string       `json:"timestamp"`
	Alert     *model.Alert `json:"alert,omitempty"`
	AlertID   string       `json:"alert_id,omitempty"`
	Count     int          `json:"count,omitempty"`
}

// Engine owns all alert state. Mutations and reads funnel through a single
// goroutine via a command mailbox, so the maps need no locks and cooldown
// checks never interleave.
type Engine struct {
	store SnapshotStore
	bus   *bus.Bus[Event]

	cmdCh  chan func()
	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex
	running bool

	// Owned by the run goroutine; command closures are the only accessors
	// after Start.
	policy    Policy
	active    map[model.AlertType]*model.Alert
	history   []model.Alert
	cooldowns map[model.AlertType]time.Time

	idCounter atomic.Int64

	evalInterval      time.Duration
	heartbeatInterval time.Duration
	now               func() time.Time // injectable clock
}

// NewEngine creates an engine evaluating against store.
func NewEngine(policy Policy, store SnapshotStore) *Engine {
	return &Engine{
		store:             store,
		bus:               bus.New[Event](32),
		cmdCh:             make(chan func(), 64),
		policy:            policy,
		active:            make(map[model.AlertType]*model.Alert),
		cooldowns:         make(map[model.AlertType]time.Time),
		evalInterval:      30 * time.Second,
		heartbeatInterval: 30 * time.Second,
		now:               time.Now,
	}
}

// Start launches the mailbox goroutine and the periodic evaluation loop.
func (e *Engine) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})

	stopCh, doneCh := e.stopCh, e.doneCh
	go func() {
		defer close(doneCh)
		for {
			select {
			case cmd := <-e.cmdCh:
				cmd()
			case <-stopCh:
				return
			}
		}
	}()
	go scanloop.Run(stopCh, e.evalInterval, 0, e.EvaluateLatest)
	log.Printf("[alerts] engine started, interval=%s", e.evalInterval)
}

// Stop halts the mailbox and evaluation loops.
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stopCh, doneCh := e.stopCh, e.doneCh
	e.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Printf("[alerts] engine stopped")
}

// do runs fn on the owner goroutine and waits for it. Before Start (and
// after Stop) it runs fn inline, which keeps the engine usable in tests and
// during shutdown.
func (e *Engine) do(fn func()) {
	e.mu.Lock()
	running := e.running
	stopCh := e.stopCh
	e.mu.Unlock()

	if !running {
		fn()
		return
	}
	done := make(chan struct{})
	select {
	case e.cmdCh <- func() { fn(); close(done) }:
	case <-stopCh:
		fn()
		return
	}
	select {
	case <-done:
	case <-stopCh:
	}
}

// EvaluateLatest reads the latest snapshots and evaluates the policy.
// Read errors are logged and produce no alert.
func (e *Engine) EvaluateLatest() {
	sample, err := e.store.LatestSignal()
	if err != nil {
		log.Printf("[alerts] latest signal read failed: %v", err)
	}
	st, err := e.store.LatestSpeedtest()
	if err != nil {
		log.Printf("[alerts] latest speedtest read failed: %v", err)
	}
	if sample == nil && st == nil {
		return
	}
	e.Evaluate(sample, st)
}

// Evaluate runs the threshold rules over the given snapshots; either may be
// nil. It returns the alerts that fired (passed all suppression rules).
func (e *Engine) Evaluate(sample *model.SignalSample, st *model.SpeedtestResult) []model.Alert {
	var fired []model.Alert
	e.do(func() {
		if !e.policy.Enabled {
			return
		}
		for _, c := range e.candidates(sample, st) {
			if a := e.raise(c); a != nil {
				fired = append(fired, *a)
			}
		}
	})
	return fired
}

// candidate is a threshold violation before suppression.
type candidate struct {
	typ      model.AlertType
	severity model.Severity
	title    string
	message  string
	data     map[string]any
}

func (e *Engine) candidates(sample *model.SignalSample, st *model.SpeedtestResult) []candidate {
	var out []candidate
	if sample != nil {
		out = append(out, e.signalCandidates(sample)...)
	}
	if st != nil && st.Status == model.SpeedtestSuccess {
		out = append(out, e.speedtestCandidates(st)...)
	}
	return out
}

// signalCandidates checks SINR and RSRP on both radios against the critical
// then warning thresholds.
func (e *Engine) signalCandidates(s *model.SignalSample) []candidate {
	metrics := []struct {
		label    string
		value    *float64
		critical float64
		warning  float64
		unit     string
	}{
		{"5G SINR", s.NRSINR, e.policy.SINRCriticalDb, e.policy.SINRWarningDb, "dB"},
		{"5G RSRP", s.NRRSRP, e.policy.RSRPCriticalDbm, e.policy.RSRPWarningDbm, "dBm"},
		{"4G SINR", s.LTESINR, e.policy.SINRCriticalDb, e.policy.SINRWarningDb, "dB"},
		{"4G RSRP", s.LTERSRP, e.policy.RSRPCriticalDbm, e.policy.RSRPWarningDbm, "dBm"},
	}

	var out []candidate
	for _, m := range metrics {
		if m.value == nil {
			continue
		}
		v := *m.value
		switch {
		case v < m.critical:
			out = append(out, candidate{
				typ:      model.AlertSignalCritical,
				severity: model.SeverityCritical,
				title:    fmt.Sprintf("%s critically low", m.label),
				message:  fmt.Sprintf("%s is %.1f %s (critical threshold %.1f)", m.label, v, m.unit, m.critical),
				data:     map[string]any{"metric": m.label, "value": v, "threshold": m.critical},
			})
		case v < m.warning:
			out = append(out, candidate{
				typ:      model.AlertSignalDrop,
				severity: model.SeverityWarning,
				title:    fmt.Sprintf("%s low", m.label),
				message:  fmt.Sprintf("%s is %.1f %s (warning threshold %.1f)", m.label, v, m.unit, m.warning),
				data:     map[string]any{"metric": m.label, "value": v, "threshold": m.warning},
			})
		}
	}
	return out
}

func (e *Engine) speedtestCandidates(st *model.SpeedtestResult) []candidate {
	var out []candidate
	if st.DownloadMbps < e.policy.SpeedLowThresholdMbps {
		out = append(out, candidate{
			typ:      model.AlertSpeedLow,
			severity: model.SeverityWarning,
			title:    "Download speed low",
			message:  fmt.Sprintf("Download is %.1f Mbps (threshold %.1f)", st.DownloadMbps, e.policy.SpeedLowThresholdMbps),
			data:     map[string]any{"download_mbps": st.DownloadMbps, "threshold": e.policy.SpeedLowThresholdMbps},
		})
	}
	if st.PacketLossPercent != nil && *st.PacketLossPercent > e.policy.PacketLossThresholdPct {
		out = append(out, candidate{
			typ:      model.AlertPacketLoss,
			severity: model.SeverityWarning,
			title:    "Packet loss elevated",
			message:  fmt.Sprintf("Packet loss is %.1f%% (threshold %.1f%%)", *st.PacketLossPercent, e.policy.PacketLossThresholdPct),
			data:     map[string]any{"packet_loss_percent": *st.PacketLossPercent, "threshold": e.policy.PacketLossThresholdPct},
		})
	}
	if st.JitterMs != nil && *st.JitterMs > e.policy.JitterThresholdMs {
		out = append(out, candidate{
			typ:      model.AlertHighJitter,
			severity: model.SeverityWarning,
			title:    "Jitter elevated",
			message:  fmt.Sprintf("Jitter is %.1f ms (threshold %.1f)", *st.JitterMs, e.policy.JitterThresholdMs),
			data:     map[string]any{"jitter_ms": *st.JitterMs, "threshold": e.policy.JitterThresholdMs},
		})
	}
	return out
}

// raise applies the suppression rules and, when the candidate survives,
// stores and publishes the alert. Runs on the owner goroutine.
func (e *Engine) raise(c candidate) *model.Alert {
	if c.severity == model.SeverityWarning && !e.policy.NotifyOnWarning {
		return nil
	}
	if c.severity == model.SeverityCritical && !e.policy.NotifyOnCritical {
		return nil
	}
	now := e.now()
	cooldown := time.Duration(e.policy.CooldownMinutes) * time.Minute
	if last, ok := e.cooldowns[c.typ]; ok && now.Sub(last) < cooldown {
		return nil
	}
	e.cooldowns[c.typ] = now

	ts, tsUnix := model.Timestamps(now)
	a := &model.Alert{
		ID:            fmt.Sprintf("%d-%d", now.UnixMilli(), e.idCounter.Add(1)),
		Timestamp:     ts,
		TimestampUnix: tsUnix,
		Type:          c.typ,
		Severity:      c.severity,
		Title:         c.title,
		Message:       c.message,
		Data:          c.data,
	}
	e.active[c.typ] = a
	e.history = append(e.history, *a)
	if len(e.history) > historyCap {
		e.history = e.history[len(e.history)-historyCap:]
	}
	log.Printf("[alerts] %s (%s): %s", a.Type, a.Severity, a.Message)
	e.bus.Publish(Event{Kind: KindAlert, Timestamp: ts, Alert: a})
	return a
}

// Active returns the active alerts, one per type at most.
func (e *Engine) Active() []model.Alert {
	var out []model.Alert
	e.do(func() {
		for _, a := range e.active {
			out = append(out, *a)
		}
	})
	return out
}

// History returns up to limit most recent history entries, newest first.
func (e *Engine) History(limit int) []model.Alert {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}
	var out []model.Alert
	e.do(func() {
		n := len(e.history)
		if n > limit {
			n = limit
		}
		for i := 0; i < n; i++ {
			out = append(out, e.history[len(e.history)-1-i])
		}
	})
	return out
}

// Acknowledge stamps an acknowledgement time on the active entry and every
// history entry with the given id. It returns false when the id is unknown.
func (e *Engine) Acknowledge(id string) bool {
	var found bool
	e.do(func() {
		ts, _ := model.Timestamps(e.now())
		for _, a := range e.active {
			if a.ID == id {
				a.Acknowledged = true
				a.AcknowledgedAt = &ts
				found = true
			}
		}
		for i := range e.history {
			if e.history[i].ID == id {
				e.history[i].Acknowledged = true
				e.history[i].AcknowledgedAt = &ts
				found = true
			}
		}
	})
	return found
}

// Clear removes the alert with the given id from the active set and
// publishes an alert_cleared event. It returns false when no active alert
// has that id.
func (e *Engine) Clear(id string) bool {
	var found bool
	e.do(func() {
		for typ, a := range e.active {
			if a.ID != id {
				continue
			}
			delete(e.active, typ)
			found = true
			ts, _ := model.Timestamps(e.now())
			e.bus.Publish(Event{Kind: KindAlertCleared, Timestamp: ts, AlertID: id})
		}
	})
	return found
}

// ClearAll empties the active set and publishes the cleared count.
func (e *Engine) ClearAll() int {
	var count int
	e.do(func() {
		count = len(e.active)
		e.active = make(map[model.AlertType]*model.Alert)
		ts, _ := model.Timestamps(e.now())
		e.bus.Publish(Event{Kind: KindAllAlertsCleared, Timestamp: ts, Count: count})
	})
	return count
}

// Policy returns the current policy.
func (e *Engine) Policy() Policy {
	var p Policy
	e.do(func() { p = e.policy })
	return p
}

// SetPolicy replaces the policy. Cooldown stamps survive the change.
func (e *Engine) SetPolicy(p Policy) {
	e.do(func() { e.policy = p })
}

// Subscribe returns a live event stream with 30-second heartbeats woven in
// by a per-subscriber goroutine. Call the returned cancel function to
// release the subscription; it closes the stream.
func (e *Engine) Subscribe() (<-chan Event, func()) {
	token, src := e.bus.Subscribe()
	out := make(chan Event, 8)
	stop := make(chan struct{})

	go func() {
		defer close(out)
		ticker := time.NewTicker(e.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case ev, ok := <-src:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-stop:
					return
				}
			case t := <-ticker.C:
				ts, _ := model.Timestamps(t)
				select {
				case out <- Event{Kind: KindHeartbeat, Timestamp: ts}:
				default: // a stalled reader skips heartbeats
				}
			case <-stop:
				return
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(stop)
			e.bus.Unsubscribe(token)
		})
	}
	return out, cancel
}
