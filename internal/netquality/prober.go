// Package netquality periodically pings a set of targets and persists
// latency, jitter, and loss per target.
package netquality

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os/exec"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/gateview/gateview/internal/model"
)

// ResultStore persists probe rows.
type ResultStore interface {
	InsertNetworkQuality(rec *model.NetworkQualityResult) (int64, error)
}

// Options configures the prober.
type Options struct {
	// Schedule is a standard cron expression driving probe rounds.
	Schedule string
	// Targets maps host -> display name.
	Targets map[string]string
	// PingCount is the echo count per probe.
	PingCount int
	// PingTimeout is the per-echo timeout.
	PingTimeout time.Duration
}

// DefaultOptions returns the stock probe configuration.
func DefaultOptions() Options {
	return Options{
		Schedule: "*/5 * * * *",
		Targets: map[string]string{
			"8.8.8.8": "Google DNS",
			"1.1.1.1": "Cloudflare DNS",
		},
		PingCount:   20,
		PingTimeout: 5 * time.Second,
	}
}

// Prober runs cron-scheduled ping rounds.
type Prober struct {
	opts   Options
	store  ResultStore
	runner Runner

	mu      sync.Mutex
	cron    *cron.Cron
	entryID cron.EntryID
	rounds  int64

	now func() time.Time // injectable clock
}

// ExecRunner spawns the command and captures stdout and stderr separately.
// The context deadline terminates a wedged ping.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// NewProber creates a prober writing rows to store.
func NewProber(opts Options, store ResultStore) *Prober {
	if opts.PingCount <= 0 {
		opts.PingCount = 20
	}
	if opts.PingTimeout <= 0 {
		opts.PingTimeout = 5 * time.Second
	}
	if opts.Schedule == "" {
		opts.Schedule = "*/5 * * * *"
	}
	return &Prober{
		opts:   opts,
		store:  store,
		runner: ExecRunner,
		now:    time.Now,
	}
}

// Start registers the cron job and starts the scheduler. Calling it while
// running is a no-op.
func (p *Prober) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cron != nil {
		return nil
	}
	c := cron.New()
	id, err := c.AddFunc(p.opts.Schedule, p.ProbeAll)
	if err != nil {
		return fmt.Errorf("netquality schedule %q: %w", p.opts.Schedule, err)
	}
	p.cron = c
	p.entryID = id
	c.Start()
	log.Printf("[netquality] started, schedule=%q targets=%d", p.opts.Schedule, len(p.opts.Targets))
	return nil
}

// Stop halts the cron scheduler, waiting for an in-flight round.
func (p *Prober) Stop() {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	log.Printf("[netquality] stopped")
}

// ProbeAll probes every configured target once, in stable host order, and
// persists one row per target. Persistence failures are logged and do not
// abort the round.
func (p *Prober) ProbeAll() {
	hosts := make([]string, 0, len(p.opts.Targets))
	for host := range p.opts.Targets {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)

	for _, host := range hosts {
		rec := p.ProbeTarget(context.Background(), host, p.opts.Targets[host])
		if _, err := p.store.InsertNetworkQuality(rec); err != nil {
			log.Printf("[netquality] persist %s failed: %v", host, err)
		}
	}

	p.mu.Lock()
	p.rounds++
	p.mu.Unlock()
}

// ProbeTarget pings one target and derives its quality row. Status is
// success when at least one RTT was observed, else error.
func (p *Prober) ProbeTarget(ctx context.Context, host, name string) *model.NetworkQualityResult {
	ts, tsUnix := model.Timestamps(p.now())
	rec := &model.NetworkQualityResult{
		Timestamp:     ts,
		TimestampUnix: tsUnix,
		TargetHost:    host,
		TargetName:    name,
	}

	// The whole run gets the per-echo timeout times the echo count, plus
	// slack for process startup.
	deadline := p.opts.PingTimeout*time.Duration(p.opts.PingCount) + 10*time.Second
	probeCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	stats, err := Ping(probeCtx, p.runner, host, p.opts.PingCount, int(p.opts.PingTimeout.Seconds()))
	rec.JitterMs = stats.Jitter()
	rec.PacketLossPercent = stats.LossPercent()
	if len(stats.RTTs) == 0 {
		rec.Status = model.QualityError
		rec.PacketLossPercent = 100
		if err != nil {
			rec.ErrorMessage = err.Error()
		} else {
			rec.ErrorMessage = fmt.Sprintf("no echo replies from %s", host)
		}
		return rec
	}

	avg := stats.AvgRTT()
	rec.PingMs = &avg
	rec.Status = model.QualitySuccess
	return rec
}

// Rounds returns the number of completed probe rounds.
func (p *Prober) Rounds() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rounds
}
