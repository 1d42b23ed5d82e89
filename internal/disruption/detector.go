// Package disruption converts adjacent signal sample pairs into typed,
// persisted disruption events with per-type cooldown suppression.
package disruption

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v4"

	"github.com/gateview/gateview/internal/model"
)

// EventStore persists detected disruption events.
type EventStore interface {
	InsertDisruption(ev *model.DisruptionEvent) (int64, error)
}

// SampleSource is the live sample feed the detector consumes, normally the
// gateway poller's signal bus.
type SampleSource interface {
	Subscribe() (string, <-chan model.SignalSample)
	Unsubscribe(token string)
}

// Options tunes detection thresholds.
type Options struct {
	// SINRDrop5GDb and SINRDrop4GDb are the per-radio drop thresholds; a
	// drop greater than or equal to the threshold fires.
	SINRDrop5GDb float64
	SINRDrop4GDb float64
	// Critical5GDropDb escalates a 5G drop to critical severity.
	Critical5GDropDb float64
	// Cooldown is the minimum interval between two events of the same type.
	Cooldown time.Duration
}

// DefaultOptions returns the production thresholds.
func DefaultOptions() Options {
	return Options{
		SINRDrop5GDb:     10,
		SINRDrop4GDb:     10,
		Critical5GDropDb: 20,
		Cooldown:         60 * time.Second,
	}
}

// Detector runs the seven pairwise detectors over consecutive samples.
// Processing is strictly sequential so cooldown updates never interleave.
type Detector struct {
	opts  Options
	store EventStore

	// cooldowns maps event type to the last fire time. The run loop is the
	// only writer; Stats readers race it, hence the concurrent map.
	cooldowns *xsync.Map[model.EventType, time.Time]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	prev    *model.SignalSample

	detected  int64
	suppressed int64

	now func() time.Time // injectable clock
}

// NewDetector creates a detector writing events to store.
func NewDetector(opts Options, store EventStore) *Detector {
	if opts.SINRDrop5GDb <= 0 {
		opts.SINRDrop5GDb = 10
	}
	if opts.SINRDrop4GDb <= 0 {
		opts.SINRDrop4GDb = 10
	}
	if opts.Critical5GDropDb <= 0 {
		opts.Critical5GDropDb = 20
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = 60 * time.Second
	}
	return &Detector{
		opts:      opts,
		store:     store,
		cooldowns: xsync.NewMap[model.EventType, time.Time](),
		now:       time.Now,
	}
}

// Start subscribes to the sample source and processes pairs until Stop.
// Calling it while running is a no-op.
func (d *Detector) Start(source SampleSource) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})

	token, samples := source.Subscribe()
	stopCh, doneCh := d.stopCh, d.doneCh
	go func() {
		defer close(doneCh)
		defer source.Unsubscribe(token)
		for {
			select {
			case <-stopCh:
				return
			case s, ok := <-samples:
				if !ok {
					return
				}
				if _, err := d.Process(&s); err != nil {
					log.Printf("[detector] %v", err)
				}
			}
		}
	}()
	log.Printf("[detector] started, cooldown=%s", d.opts.Cooldown)
}

// Stop halts the processing loop. Calling it while stopped is a no-op.
func (d *Detector) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
	log.Printf("[detector] stopped")
}

// Process compares curr against the previously seen sample, persists every
// non-suppressed event, and returns the persisted events. The first sample
// establishes the baseline and produces nothing.
func (d *Detector) Process(curr *model.SignalSample) ([]model.DisruptionEvent, error) {
	d.mu.Lock()
	prev := d.prev
	clone := *curr
	d.prev = &clone
	d.mu.Unlock()

	if prev == nil {
		return nil, nil
	}
	return d.Compare(prev, curr)
}

// Compare runs every detector over the (prev, curr) pair and persists the
// events that fire and pass cooldown. Insert failures are collected so one
// bad write does not drop the remaining events.
func (d *Detector) Compare(prev, curr *model.SignalSample) ([]model.DisruptionEvent, error) {
	now := d.now()
	candidates := []*model.DisruptionEvent{
		d.detectSignalDrop5G(prev, curr, now),
		d.detectSignalDrop4G(prev, curr, now),
		d.detectTowerChange5G(prev, curr, now),
		d.detectTowerChange4G(prev, curr, now),
		d.detectBandSwitch5G(prev, curr, now),
		d.detectBandSwitch4G(prev, curr, now),
		d.detectModeChange(prev, curr, now),
	}

	var (
		fired    []model.DisruptionEvent
		firstErr error
	)
	for _, ev := range candidates {
		if ev == nil {
			continue
		}
		if !d.passCooldown(ev.EventType, now) {
			d.mu.Lock()
			d.suppressed++
			d.mu.Unlock()
			continue
		}
		if _, err := d.store.InsertDisruption(ev); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("insert %s: %w", ev.EventType, err)
			}
			continue
		}
		d.mu.Lock()
		d.detected++
		d.mu.Unlock()
		log.Printf("[detector] %s (%s): %s", ev.EventType, ev.Severity, ev.Description)
		fired = append(fired, *ev)
	}
	return fired, firstErr
}

// passCooldown reports whether the event type may fire and, if so, stamps
// its cooldown. The stamp is advanced regardless of persistence success.
func (d *Detector) passCooldown(t model.EventType, now time.Time) bool {
	last, ok := d.cooldowns.Load(t)
	if ok && now.Sub(last) < d.opts.Cooldown {
		return false
	}
	d.cooldowns.Store(t, now)
	return true
}

// Stats summarizes detector activity.
type Stats struct {
	Detected   int64            `json:"detected"`
	Suppressed int64            `json:"suppressed"`
	Cooldowns  map[string]int64 `json:"cooldowns"` // event type -> last fire unix
}

// Stats snapshots counters and cooldown stamps.
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	s := Stats{
		Detected:   d.detected,
		Suppressed: d.suppressed,
		Cooldowns:  make(map[string]int64),
	}
	d.mu.Unlock()

	d.cooldowns.Range(func(t model.EventType, last time.Time) bool {
		s.Cooldowns[string(t)] = last.Unix()
		return true
	})
	return s
}

// --- detectors ---

func (d *Detector) detectSignalDrop5G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.NRSINR == nil || curr.NRSINR == nil {
		return nil
	}
	drop := *prev.NRSINR - *curr.NRSINR
	if drop < d.opts.SINRDrop5GDb {
		return nil
	}
	severity := model.SeverityWarning
	if drop >= d.opts.Critical5GDropDb {
		severity = model.SeverityCritical
	}
	return newEvent(now, model.EventSignalDrop5G, severity,
		fmt.Sprintf("5G SINR dropped %.1f dB (%.1f -> %.1f)", drop, *prev.NRSINR, *curr.NRSINR),
		map[string]any{"nr_sinr": *prev.NRSINR},
		map[string]any{"nr_sinr": *curr.NRSINR})
}

// 4G drops stay warning regardless of magnitude; only the 5G detector
// escalates to critical.
func (d *Detector) detectSignalDrop4G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.LTESINR == nil || curr.LTESINR == nil {
		return nil
	}
	drop := *prev.LTESINR - *curr.LTESINR
	if drop < d.opts.SINRDrop4GDb {
		return nil
	}
	return newEvent(now, model.EventSignalDrop4G, model.SeverityWarning,
		fmt.Sprintf("4G SINR dropped %.1f dB (%.1f -> %.1f)", drop, *prev.LTESINR, *curr.LTESINR),
		map[string]any{"lte_sinr": *prev.LTESINR},
		map[string]any{"lte_sinr": *curr.LTESINR})
}

func (d *Detector) detectTowerChange5G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.NRGNBID == nil || curr.NRGNBID == nil || *prev.NRGNBID == *curr.NRGNBID {
		return nil
	}
	return newEvent(now, model.EventTowerChange5G, model.SeverityInfo,
		fmt.Sprintf("5G tower handoff %d -> %d", *prev.NRGNBID, *curr.NRGNBID),
		map[string]any{"nr_gnb_id": *prev.NRGNBID},
		map[string]any{"nr_gnb_id": *curr.NRGNBID})
}

func (d *Detector) detectTowerChange4G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.LTEENBID == nil || curr.LTEENBID == nil || *prev.LTEENBID == *curr.LTEENBID {
		return nil
	}
	return newEvent(now, model.EventTowerChange4G, model.SeverityInfo,
		fmt.Sprintf("4G tower handoff %d -> %d", *prev.LTEENBID, *curr.LTEENBID),
		map[string]any{"lte_enb_id": *prev.LTEENBID},
		map[string]any{"lte_enb_id": *curr.LTEENBID})
}

func (d *Detector) detectBandSwitch5G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.NRBands == nil || curr.NRBands == nil || *prev.NRBands == *curr.NRBands {
		return nil
	}
	return newEvent(now, model.EventBandSwitch5G, model.SeverityInfo,
		fmt.Sprintf("5G band switch %s -> %s", *prev.NRBands, *curr.NRBands),
		map[string]any{"nr_bands": *prev.NRBands},
		map[string]any{"nr_bands": *curr.NRBands})
}

func (d *Detector) detectBandSwitch4G(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	if prev.LTEBands == nil || curr.LTEBands == nil || *prev.LTEBands == *curr.LTEBands {
		return nil
	}
	return newEvent(now, model.EventBandSwitch4G, model.SeverityInfo,
		fmt.Sprintf("4G band switch %s -> %s", *prev.LTEBands, *curr.LTEBands),
		map[string]any{"lte_bands": *prev.LTEBands},
		map[string]any{"lte_bands": *curr.LTEBands})
}

func (d *Detector) detectModeChange(prev, curr *model.SignalSample, now time.Time) *model.DisruptionEvent {
	prevMode, currMode := prev.Mode(), curr.Mode()
	if prevMode == currMode {
		return nil
	}
	severity := model.SeverityInfo
	switch {
	case currMode == model.ModeNoSignal:
		severity = model.SeverityCritical
	case prevMode == model.ModeSA || prevMode == model.ModeNSA:
		// Losing the 5G leg is a downgrade.
		if currMode == model.ModeLTE {
			severity = model.SeverityWarning
		}
	}
	return newEvent(now, model.EventConnectionModeChange, severity,
		fmt.Sprintf("Connection mode changed %s -> %s", prevMode, currMode),
		map[string]any{"connection_mode": string(prevMode)},
		map[string]any{"connection_mode": string(currMode)})
}

func newEvent(now time.Time, t model.EventType, severity model.Severity, desc string, before, after map[string]any) *model.DisruptionEvent {
	ts, tsUnix := model.Timestamps(now)
	beforeJSON, _ := json.Marshal(before)
	afterJSON, _ := json.Marshal(after)
	return &model.DisruptionEvent{
		Timestamp:     ts,
		TimestampUnix: tsUnix,
		EventType:     t,
		Severity:      severity,
		Description:   desc,
		BeforeState:   string(beforeJSON),
		AfterState:    string(afterJSON),
	}
}
