// Package speedtest multiplexes external speed-test tools and CDN download
// probes behind a single-flight orchestrator.
package speedtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// ErrNoTool is returned when neither the requested tool nor any preferred
// tool is available.
var ErrNoTool = errors.New("no speedtest tool available")

// ErrBusy is returned alongside the synthetic busy result when a test is
// already in flight.
var ErrBusy = errors.New("speedtest already running")

// Store persists speedtest invocations.
type Store interface {
	InsertSpeedtest(rec *model.SpeedtestResult) (int64, error)
}

// Options configures the orchestrator.
type Options struct {
	// Preference orders tool selection when the caller does not pin one.
	Preference []string
	// Timeout bounds one tool invocation end to end.
	Timeout time.Duration
	// ServerID optionally pins the ookla CLI to one server.
	ServerID string

	// Network-context labelling.
	IdleHours           []int
	BaselineLatencyMs   float64
	LightMultiplier     float64
	BusyMultiplier      float64
	LatencyProbeEnabled bool
}

// DefaultOptions returns the stock orchestrator configuration.
func DefaultOptions() Options {
	return Options{
		Preference:          []string{ToolFastCLI, ToolOokla, ToolSpeedtestCLI},
		Timeout:             120 * time.Second,
		IdleHours:           []int{2, 3, 4, 5},
		BaselineLatencyMs:   30,
		LightMultiplier:     1.5,
		BusyMultiplier:      3.0,
		LatencyProbeEnabled: true,
	}
}

// RunOptions parameterizes one invocation.
type RunOptions struct {
	// Tool pins a specific tool; empty selects by preference.
	Tool string
	// TriggeredBy tags who initiated the run.
	TriggeredBy model.TriggerSource
	// ContextOverride bypasses network-context classification.
	ContextOverride model.NetworkContext
	// Snapshot is the signal sample at test time, serialized into the row.
	Snapshot *model.SignalSample
}

// Orchestrator runs at most one speed test at a time.
type Orchestrator struct {
	opts       Options
	store      Store
	runner     Runner
	probe      LatencyProbe
	httpClient *http.Client

	available map[string]bool
	running   atomic.Bool

	now func() time.Time // injectable clock
}

// NewOrchestrator builds an orchestrator and detects the installed CLIs.
// Detection failures are silent: an undetected tool is simply unavailable.
func NewOrchestrator(opts Options, store Store, probe LatencyProbe) *Orchestrator {
	o := newOrchestrator(opts, store, probe, execRunner)
	o.DetectTools()
	return o
}

// newOrchestrator wires an orchestrator without detection, for tests that
// inject a runner.
func newOrchestrator(opts Options, store Store, probe LatencyProbe, runner Runner) *Orchestrator {
	if len(opts.Preference) == 0 {
		opts.Preference = DefaultOptions().Preference
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOptions().Timeout
	}
	if opts.BaselineLatencyMs <= 0 {
		opts.BaselineLatencyMs = 30
	}
	if opts.LightMultiplier <= 0 {
		opts.LightMultiplier = 1.5
	}
	if opts.BusyMultiplier <= opts.LightMultiplier {
		opts.BusyMultiplier = 3.0
	}
	o := &Orchestrator{
		opts:       opts,
		store:      store,
		runner:     runner,
		probe:      probe,
		httpClient: &http.Client{},
		available:  make(map[string]bool),
		now:        time.Now,
	}
	// CDN probes need no binary.
	for name := range cdnProbes {
		o.available[name] = true
	}
	return o
}

// DetectTools probes each supported CLI with a short version command.
func (o *Orchestrator) DetectTools() {
	for _, tool := range []string{ToolFastCLI, ToolOokla, ToolSpeedtestCLI} {
		cmd := detectCommand(tool)
		ctx, cancel := context.WithTimeout(context.Background(), detectTimeout)
		_, _, err := o.runner(ctx, cmd[0], cmd[1:]...)
		cancel()
		o.available[tool] = err == nil
	}
	log.Printf("[speedtest] available tools: %v", o.AvailableTools())
}

// AvailableTools lists the discovered tools in preference order, CDN probes
// last.
func (o *Orchestrator) AvailableTools() []string {
	var out []string
	for _, t := range o.opts.Preference {
		if o.available[t] {
			out = append(out, t)
		}
	}
	for _, t := range []string{ToolCDNCloudflare, ToolCDNHetzner, ToolCDNOVH} {
		if o.available[t] {
			out = append(out, t)
		}
	}
	return out
}

// Running reports whether a test is in flight.
func (o *Orchestrator) Running() bool {
	return o.running.Load()
}

// Run executes one speed test. A second call while one is in flight returns
// a persisted synthetic busy result and ErrBusy without spawning anything.
// Every invocation, busy and failed ones included, is persisted.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*model.SpeedtestResult, error) {
	if opts.TriggeredBy == "" {
		opts.TriggeredBy = model.TriggerManual
	}

	if !o.running.CompareAndSwap(false, true) {
		rec := o.newResult(opts, "", model.ContextUnknown, nil)
		rec.Status = model.SpeedtestBusy
		rec.ErrorMessage = "a speedtest is already running"
		o.persist(rec)
		return rec, ErrBusy
	}
	defer o.running.Store(false)

	tool, err := o.selectTool(opts.Tool)
	if err != nil {
		rec := o.newResult(opts, opts.Tool, model.ContextUnknown, nil)
		rec.Status = model.SpeedtestError
		rec.ErrorMessage = err.Error()
		o.persist(rec)
		return rec, err
	}

	netCtx := opts.ContextOverride
	var preLatency *float64
	if netCtx == "" {
		netCtx, preLatency = o.classifyContext(ctx, o.now())
	}

	log.Printf("[speedtest] running %s (context=%s, triggered_by=%s)", tool, netCtx, opts.TriggeredBy)
	toolCtx, cancel := context.WithTimeout(ctx, o.opts.Timeout)
	var res toolResult
	if isCDNTool(tool) {
		res = o.runCDNProbe(toolCtx, tool)
	} else {
		res = o.runCLITool(toolCtx, tool)
	}
	cancel()

	rec := o.newResult(opts, tool, netCtx, preLatency)
	rec.Status = res.Status
	rec.ErrorMessage = res.ErrorMessage
	if res.Status == model.SpeedtestSuccess {
		rec.DownloadMbps = res.DownloadMbps
		rec.UploadMbps = res.UploadMbps
		rec.PingMs = res.PingMs
		rec.JitterMs = res.JitterMs
		rec.PacketLossPercent = res.PacketLoss
		rec.ServerName = res.ServerName
		rec.ServerLocation = res.ServerLocation
		rec.ServerHost = res.ServerHost
		rec.ServerID = res.ServerID
		rec.ClientIP = res.ClientIP
		rec.ISP = res.ISP
		rec.ResultURL = res.ResultURL
		log.Printf("[speedtest] %s: %.1f down / %.1f up Mbps, %.1f ms",
			tool, rec.DownloadMbps, rec.UploadMbps, rec.PingMs)
	} else {
		log.Printf("[speedtest] %s failed (%s): %s", tool, rec.Status, rec.ErrorMessage)
	}

	o.persist(rec)
	return rec, nil
}

// selectTool resolves the tool to run: an explicitly requested available
// tool wins, otherwise the first available preference.
func (o *Orchestrator) selectTool(requested string) (string, error) {
	if requested != "" {
		if o.available[requested] {
			return requested, nil
		}
		return "", fmt.Errorf("%w: %q not detected", ErrNoTool, requested)
	}
	for _, t := range o.opts.Preference {
		if o.available[t] {
			return t, nil
		}
	}
	return "", ErrNoTool
}

func (o *Orchestrator) newResult(opts RunOptions, tool string, netCtx model.NetworkContext, preLatency *float64) *model.SpeedtestResult {
	ts, tsUnix := model.Timestamps(o.now())
	rec := &model.SpeedtestResult{
		Timestamp:        ts,
		TimestampUnix:    tsUnix,
		Tool:             tool,
		TriggeredBy:      opts.TriggeredBy,
		NetworkContext:   netCtx,
		PreTestLatencyMs: preLatency,
	}
	if opts.Snapshot != nil {
		if snap, err := json.Marshal(opts.Snapshot); err == nil {
			rec.SignalSnapshot = string(snap)
		}
	}
	return rec
}

func (o *Orchestrator) persist(rec *model.SpeedtestResult) {
	if _, err := o.store.InsertSpeedtest(rec); err != nil {
		log.Printf("[speedtest] persist failed: %v", err)
	}
}
