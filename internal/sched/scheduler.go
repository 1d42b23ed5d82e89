// Package sched drives the speedtest orchestrator on a configurable cadence
// gated by time-of-day and day-of-week windows.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gateview/gateview/internal/config"
	"github.com/gateview/gateview/internal/model"
	"github.com/gateview/gateview/internal/speedtest"
)

// ErrAlreadyRunning is returned by Start when the scheduler is running.
var ErrAlreadyRunning = errors.New("scheduler already running")

// ErrNotRunning is returned by Stop when the scheduler is not running.
var ErrNotRunning = errors.New("scheduler not running")

// SpeedtestRunner is the orchestrator surface the scheduler drives.
type SpeedtestRunner interface {
	Run(ctx context.Context, opts speedtest.RunOptions) (*model.SpeedtestResult, error)
}

// Config is the scheduler configuration. TimeWindowStart and TimeWindowEnd
// are hours 0-23; nil leaves the window unbounded. A wrap-around window
// (start > end) spans midnight.
type Config struct {
	Enabled                  bool     `json:"enabled"`
	IntervalMinutes          int      `json:"interval_minutes"`
	TimeWindowStart          *int     `json:"time_window_start"`
	TimeWindowEnd            *int     `json:"time_window_end"`
	RunOnWeekends            bool     `json:"run_on_weekends"`
	ToolsToRun               []string `json:"tools_to_run"`
	DelayBetweenToolsSeconds int      `json:"delay_between_tools_seconds"`
}

// DefaultConfig returns the stock scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Enabled:                  false,
		IntervalMinutes:          60,
		RunOnWeekends:            true,
		DelayBetweenToolsSeconds: 10,
	}
}

// ApplyFileOverrides merges the optional YAML overrides into c.
func (c *Config) ApplyFileOverrides(f config.SchedulerFile) {
	if f.Enabled != nil {
		c.Enabled = *f.Enabled
	}
	if f.IntervalMinutes != nil {
		c.IntervalMinutes = *f.IntervalMinutes
	}
	if f.TimeWindowStart != nil {
		c.TimeWindowStart = f.TimeWindowStart
	}
	if f.TimeWindowEnd != nil {
		c.TimeWindowEnd = f.TimeWindowEnd
	}
	if f.RunOnWeekends != nil {
		c.RunOnWeekends = *f.RunOnWeekends
	}
	if f.ToolsToRun != nil {
		c.ToolsToRun = append([]string(nil), f.ToolsToRun...)
	}
	if f.DelayBetweenToolsSeconds != nil {
		c.DelayBetweenToolsSeconds = *f.DelayBetweenToolsSeconds
	}
}

// Validate checks every field range.
func (c *Config) Validate() error {
	if c.IntervalMinutes < 1 || c.IntervalMinutes > 1440 {
		return fmt.Errorf("interval_minutes must be 1-1440, got %d", c.IntervalMinutes)
	}
	for name, h := range map[string]*int{
		"time_window_start": c.TimeWindowStart,
		"time_window_end":   c.TimeWindowEnd,
	} {
		if h != nil && (*h < 0 || *h > 23) {
			return fmt.Errorf("%s must be 0-23, got %d", name, *h)
		}
	}
	if (c.TimeWindowStart == nil) != (c.TimeWindowEnd == nil) {
		return errors.New("time_window_start and time_window_end must be set together")
	}
	if len(c.ToolsToRun) > 10 {
		return fmt.Errorf("tools_to_run holds at most 10 entries, got %d", len(c.ToolsToRun))
	}
	if c.DelayBetweenToolsSeconds < 0 || c.DelayBetweenToolsSeconds > 300 {
		return fmt.Errorf("delay_between_tools_seconds must be 0-300, got %d", c.DelayBetweenToolsSeconds)
	}
	return nil
}

// Stats summarizes scheduler activity.
type Stats struct {
	Running         bool     `json:"running"`
	CompletedRuns   int64    `json:"completed_runs"`
	FailedRuns      int64    `json:"failed_runs"`
	LastTestTime    *string  `json:"last_test_time"`
	NextTestTime    *string  `json:"next_test_time"`
	NextTestInSecs  *float64 `json:"next_test_in_seconds"`
	AvgDownloadMbps float64  `json:"avg_download_mbps"`
	AvgUploadMbps   float64  `json:"avg_upload_mbps"`
}

// Scheduler owns the periodic speedtest cycle.
type Scheduler struct {
	runner SpeedtestRunner

	mu      sync.Mutex
	cfg     Config
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	// restartCh wakes the loop after an interval change so the new cadence
	// takes effect without a stop/start cycle.
	restartCh chan struct{}

	completed   int64
	failed      int64
	lastTest    *time.Time
	nextTest    *time.Time
	downloadSum float64
	uploadSum   float64
	successRuns int64

	now   func() time.Time              // injectable clock
	sleep func(d time.Duration) <-chan time.Time // injectable inter-tool delay
}

// NewScheduler builds a scheduler around the orchestrator.
func NewScheduler(cfg Config, runner SpeedtestRunner) *Scheduler {
	return &Scheduler{
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
		sleep:  time.After,
	}
}

// Start launches the cycle loop. It fails with ErrAlreadyRunning when the
// loop is active.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("scheduler config: %w", err)
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.restartCh = make(chan struct{}, 1)

	interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
	next := s.now().Add(interval)
	s.nextTest = &next

	go s.loop(s.stopCh, s.doneCh, s.restartCh)
	log.Printf("[scheduler] started, interval=%dm", s.cfg.IntervalMinutes)
	return nil
}

// Stop halts the loop. An in-flight speedtest cycle runs to completion
// under its own deadline. It fails with ErrNotRunning when stopped.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrNotRunning
	}
	s.running = false
	stopCh, doneCh := s.stopCh, s.doneCh
	s.nextTest = nil
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Printf("[scheduler] stopped")
	return nil
}

// Running reports whether the loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Config returns a copy of the current configuration.
func (s *Scheduler) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.ToolsToRun = append([]string(nil), s.cfg.ToolsToRun...)
	return cfg
}

// UpdateConfig validates and applies cfg. When the interval changed while
// running, the internal timer restarts without losing accumulated counters.
func (s *Scheduler) UpdateConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	intervalChanged := cfg.IntervalMinutes != s.cfg.IntervalMinutes
	s.cfg = cfg
	running := s.running
	restartCh := s.restartCh
	if running && intervalChanged {
		next := s.now().Add(time.Duration(cfg.IntervalMinutes) * time.Minute)
		s.nextTest = &next
	}
	s.mu.Unlock()

	if running && intervalChanged {
		select {
		case restartCh <- struct{}{}:
		default:
		}
		log.Printf("[scheduler] interval changed to %dm, timer restarted", cfg.IntervalMinutes)
	}
	return nil
}

func (s *Scheduler) loop(stopCh <-chan struct{}, doneCh chan<- struct{}, restartCh <-chan struct{}) {
	defer close(doneCh)

	for {
		s.mu.Lock()
		interval := time.Duration(s.cfg.IntervalMinutes) * time.Minute
		next := s.now().Add(interval)
		s.nextTest = &next
		s.mu.Unlock()

		timer := time.NewTimer(interval)
		select {
		case <-stopCh:
			timer.Stop()
			return
		case <-restartCh:
			timer.Stop()
			continue
		case <-timer.C:
		}

		s.RunCycle(stopCh)
	}
}

// RunCycle executes one scheduled cycle if enabled and inside the window.
func (s *Scheduler) RunCycle(stopCh <-chan struct{}) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()

	now := s.now()
	if !cfg.Enabled {
		return
	}
	if !InWindow(cfg, now) {
		log.Printf("[scheduler] outside window at %s, skipping", now.Format("15:04"))
		return
	}

	tools := cfg.ToolsToRun
	if len(tools) == 0 {
		tools = []string{""} // auto-select
	}
	for i, tool := range tools {
		s.runOne(tool)
		if i == len(tools)-1 {
			break
		}
		delay := time.Duration(cfg.DelayBetweenToolsSeconds) * time.Second
		if delay <= 0 {
			continue
		}
		select {
		case <-s.sleep(delay):
		case <-stopCh:
			return
		}
	}
}

func (s *Scheduler) runOne(tool string) {
	rec, err := s.runner.Run(context.Background(), speedtest.RunOptions{
		Tool:        tool,
		TriggeredBy: model.TriggerScheduler,
	})

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	s.lastTest = &now
	if err != nil || rec == nil || rec.Status != model.SpeedtestSuccess {
		s.failed++
		return
	}
	s.completed++
	s.successRuns++
	s.downloadSum += rec.DownloadMbps
	s.uploadSum += rec.UploadMbps
}

// InWindow evaluates the window predicate for cfg at t.
func InWindow(cfg Config, t time.Time) bool {
	if !cfg.RunOnWeekends {
		if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
			return false
		}
	}
	if cfg.TimeWindowStart == nil || cfg.TimeWindowEnd == nil {
		return true
	}
	start, end, hour := *cfg.TimeWindowStart, *cfg.TimeWindowEnd, t.Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	// Wrap-around window spanning midnight.
	return hour >= start || hour < end
}

// Stats snapshots counters and timing.
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{
		Running:       s.running,
		CompletedRuns: s.completed,
		FailedRuns:    s.failed,
	}
	if s.lastTest != nil {
		ts := s.lastTest.UTC().Format(model.TimeFormat)
		st.LastTestTime = &ts
	}
	if s.running && s.nextTest != nil {
		ts := s.nextTest.UTC().Format(model.TimeFormat)
		st.NextTestTime = &ts
		secs := s.nextTest.Sub(s.now()).Seconds()
		if secs < 0 {
			secs = 0
		}
		st.NextTestInSecs = &secs
	}
	if s.successRuns > 0 {
		st.AvgDownloadMbps = s.downloadSum / float64(s.successRuns)
		st.AvgUploadMbps = s.uploadSum / float64(s.successRuns)
	}
	return st
}
