// Package gateway polls the 5G gateway's diagnostics endpoint, classifies
// failures through a circuit breaker, and fans decoded samples out to the
// batch writer and live subscribers.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zeebo/xxh3"

	"github.com/gateview/gateview/internal/bus"
	"github.com/gateview/gateview/internal/model"
	"github.com/gateview/gateview/internal/scanloop"
)

// OutageStore persists gateway-unreachable disruption events.
type OutageStore interface {
	InsertDisruption(ev *model.DisruptionEvent) (int64, error)
	ResolveDisruption(id int64, durationSeconds float64, resolvedAt string, afterState string) error
}

// Options configures a Poller.
type Options struct {
	URL              string
	PollInterval     time.Duration
	Timeout          time.Duration
	FailureThreshold int
	RecoveryTimeout  time.Duration
	SINRDropDB       float64

	QueueSoft     int
	MaxBatch      int
	FlushInterval time.Duration
	InsertTimeout time.Duration
}

// Poller runs the high-frequency gateway poll loop.
type Poller struct {
	opts    Options
	client  *Client
	writer  *batchWriter
	breaker *circuitBreaker
	outages OutageStore

	signalBus *bus.Bus[model.SignalSample]
	outageBus *bus.Bus[model.DisruptionEvent]

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	// pollMu serializes poll cycles so a manual poll cannot interleave with
	// the loop's in-flight poll and reorder current against its predecessor.
	pollMu sync.Mutex

	current    *model.SignalSample
	currentRaw []byte
	lastHash   uint64

	outageID    int64 // 0 when no outage is active
	outageStart time.Time

	totalPolls       int64
	failedPolls      int64
	skippedPolls     int64
	distinctPayloads int64
	errorCounts      map[PollErrorType]int64
	lastError        string
}

// NewPoller wires a poller against the given store.
func NewPoller(opts Options, store SampleInserter, outages OutageStore) *Poller {
	return &Poller{
		opts:        opts,
		client:      NewClient(opts.URL, opts.Timeout),
		writer:      newBatchWriter(store, opts.QueueSoft, opts.MaxBatch, opts.FlushInterval, opts.InsertTimeout),
		breaker:     newCircuitBreaker(opts.FailureThreshold, opts.RecoveryTimeout),
		outages:     outages,
		signalBus:   bus.New[model.SignalSample](64),
		outageBus:   bus.New[model.DisruptionEvent](16),
		errorCounts: make(map[PollErrorType]int64),
	}
}

// Subscribe returns a live feed of decoded samples. The token releases the
// subscription via Unsubscribe on the same bus.
func (p *Poller) Subscribe() (string, <-chan model.SignalSample) {
	return p.signalBus.Subscribe()
}

// Unsubscribe releases a Subscribe feed.
func (p *Poller) Unsubscribe(token string) {
	p.signalBus.Unsubscribe(token)
}

// SubscribeOutages returns a live feed of gateway-unreachable open and
// resolve events.
func (p *Poller) SubscribeOutages() (string, <-chan model.DisruptionEvent) {
	return p.outageBus.Subscribe()
}

// UnsubscribeOutages releases a SubscribeOutages feed.
func (p *Poller) UnsubscribeOutages(token string) {
	p.outageBus.Unsubscribe(token)
}

// StartPolling launches the poll loop and the batch writer. Calling it while
// running is a no-op.
func (p *Poller) StartPolling() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.writer.Start()

	stopCh, doneCh := p.stopCh, p.doneCh
	go func() {
		defer close(doneCh)
		scanloop.RunNow(stopCh, p.opts.PollInterval, 0, func() { p.PollOnce(context.Background()) })
	}()
	log.Printf("[poller] started, interval=%s url=%s", p.opts.PollInterval, p.opts.URL)
}

// StopPolling stops the loop, waits for the in-flight poll, and flushes the
// writer. Calling it while stopped is a no-op.
func (p *Poller) StopPolling() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)
	<-doneCh
	p.writer.Stop()
	log.Printf("[poller] stopped")
}

// PollOnce performs a single poll cycle: breaker gate, fetch, decode, outage
// bookkeeping, persistence, and fan-out. It returns the decoded sample, or
// nil with the classified error on failure; a breaker-skipped cycle returns
// (nil, nil).
func (p *Poller) PollOnce(ctx context.Context) (*model.SignalSample, *PollError) {
	p.pollMu.Lock()
	defer p.pollMu.Unlock()

	if !p.breaker.Allow() {
		p.mu.Lock()
		p.skippedPolls++
		p.mu.Unlock()
		return nil, nil
	}

	p.mu.Lock()
	p.totalPolls++
	p.mu.Unlock()

	now := time.Now()
	raw, perr := p.client.Fetch(ctx)
	var sample *model.SignalSample
	if perr == nil {
		sample, perr = p.decode(raw, now)
	}
	if perr != nil {
		p.recordFailure(perr, now)
		return nil, perr
	}

	p.recordSuccess(sample, raw, now)
	p.writer.Enqueue(*sample)
	p.signalBus.Publish(*sample)
	return sample, nil
}

// decode parses raw, reusing the previous decode when the payload bytes are
// identical. The gateway frequently returns the same document across
// adjacent 200ms polls, so the identity hash skips most decode work.
func (p *Poller) decode(raw []byte, now time.Time) (*model.SignalSample, *PollError) {
	h := xxh3.Hash(raw)

	p.mu.Lock()
	prev, prevHash := p.current, p.lastHash
	p.mu.Unlock()

	if prev != nil && prevHash == h {
		clone := *prev
		clone.ID = 0
		clone.Timestamp, clone.TimestampUnix = model.Timestamps(now)
		return &clone, nil
	}

	sample, perr := decodeSample(raw, now)
	if perr != nil {
		return nil, perr
	}
	p.mu.Lock()
	p.distinctPayloads++
	p.mu.Unlock()
	return sample, nil
}

func (p *Poller) recordFailure(perr *PollError, now time.Time) {
	p.mu.Lock()
	p.failedPolls++
	p.errorCounts[perr.Type]++
	p.lastError = perr.Error()
	lastMode := model.ModeNoSignal
	if p.current != nil {
		lastMode = p.current.Mode()
	}
	p.mu.Unlock()

	// A parse failure means the gateway answered but its document was
	// malformed. The sample is dropped and the failure counted, but the
	// breaker only trips on transport-class errors.
	if perr.Type == ErrParse {
		return
	}

	opened := p.breaker.RecordFailure()
	if !opened {
		return
	}

	log.Printf("[poller] circuit opened after %d consecutive failures: %v", p.breaker.Failures(), perr)
	p.openOutage(lastMode, perr, now)
}

func (p *Poller) recordSuccess(sample *model.SignalSample, raw []byte, now time.Time) {
	recovered := p.breaker.RecordSuccess()

	p.mu.Lock()
	prev := p.current
	p.current = sample
	p.currentRaw = raw
	p.lastHash = xxh3.Hash(raw)
	p.lastError = ""
	p.mu.Unlock()

	if prev != nil && prev.NRSINR != nil && sample.NRSINR != nil {
		if drop := *prev.NRSINR - *sample.NRSINR; drop >= p.opts.SINRDropDB {
			log.Printf("[poller] 5G SINR dropped %.1f dB (%.1f -> %.1f)", drop, *prev.NRSINR, *sample.NRSINR)
		}
	}

	if recovered {
		p.closeOutage(sample, now)
	}
}

// openOutage records the start of a gateway-unreachable disruption.
func (p *Poller) openOutage(lastMode model.ConnectionMode, perr *PollError, now time.Time) {
	ts, tsUnix := model.Timestamps(now)
	before, _ := json.Marshal(map[string]any{"connection_mode": string(lastMode)})
	after, _ := json.Marshal(map[string]any{"error_type": string(perr.Type)})

	ev := &model.DisruptionEvent{
		Timestamp:     ts,
		TimestampUnix: tsUnix,
		EventType:     model.EventGatewayUnreachable,
		Severity:      model.SeverityCritical,
		Description:   fmt.Sprintf("Gateway unreachable: %v", perr),
		BeforeState:   string(before),
		AfterState:    string(after),
	}
	id, err := p.outages.InsertDisruption(ev)
	if err != nil {
		log.Printf("[poller] failed to record outage start: %v", err)
		return
	}
	ev.ID = id

	p.mu.Lock()
	p.outageID = id
	p.outageStart = now
	p.mu.Unlock()

	p.outageBus.Publish(*ev)
}

// closeOutage resolves the active gateway-unreachable disruption, if any.
func (p *Poller) closeOutage(sample *model.SignalSample, now time.Time) {
	p.mu.Lock()
	id, start := p.outageID, p.outageStart
	p.outageID = 0
	p.mu.Unlock()

	duration := now.Sub(start).Seconds()
	if id == 0 {
		log.Printf("[poller] gateway recovered with no recorded outage")
		return
	}

	ts, tsUnix := model.Timestamps(now)
	after, _ := json.Marshal(map[string]any{"connection_mode": string(sample.Mode())})
	if err := p.outages.ResolveDisruption(id, duration, ts, string(after)); err != nil {
		log.Printf("[poller] failed to resolve outage %d: %v", id, err)
		return
	}
	log.Printf("[poller] gateway recovered after %.1fs", duration)

	p.outageBus.Publish(model.DisruptionEvent{
		ID:              id,
		Timestamp:       ts,
		TimestampUnix:   tsUnix,
		EventType:       model.EventGatewayUnreachable,
		Severity:        model.SeverityCritical,
		Description:     fmt.Sprintf("Gateway recovered after %.1fs", duration),
		AfterState:      string(after),
		DurationSeconds: &duration,
		Resolved:        true,
		ResolvedAt:      &ts,
	})
}

// CurrentData returns the most recent decoded sample, nil before the first
// successful poll.
func (p *Poller) CurrentData() *model.SignalSample {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil {
		return nil
	}
	clone := *p.current
	return &clone
}

// CurrentRaw returns the raw bytes of the most recent successful poll.
func (p *Poller) CurrentRaw() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.currentRaw == nil {
		return nil
	}
	out := make([]byte, len(p.currentRaw))
	copy(out, p.currentRaw)
	return out
}

// Stats is a point-in-time snapshot of poller health.
type Stats struct {
	Running          bool             `json:"running"`
	TotalPolls       int64            `json:"total_polls"`
	FailedPolls      int64            `json:"failed_polls"`
	SkippedPolls     int64            `json:"skipped_polls"`
	DistinctPayloads int64            `json:"distinct_payloads"`
	ErrorCounts      map[string]int64 `json:"error_counts"`
	CircuitState     CircuitState     `json:"circuit_state"`
	ConsecutiveFails int              `json:"consecutive_failures"`
	OutageActive     bool             `json:"outage_active"`
	LastError        string           `json:"last_error,omitempty"`
	QueueDepth       int              `json:"write_queue_depth"`
	SamplesWritten   int64            `json:"samples_written"`
	SamplesDropped   int64            `json:"samples_dropped"`
	SamplesLost      int64            `json:"samples_lost"`
}

// Stats snapshots poll counters, breaker state, and writer health.
func (p *Poller) Stats() Stats {
	p.mu.Lock()
	counts := make(map[string]int64, len(p.errorCounts))
	for k, v := range p.errorCounts {
		counts[string(k)] = v
	}
	s := Stats{
		Running:          p.running,
		TotalPolls:       p.totalPolls,
		FailedPolls:      p.failedPolls,
		SkippedPolls:     p.skippedPolls,
		DistinctPayloads: p.distinctPayloads,
		ErrorCounts:      counts,
		OutageActive:     p.outageID != 0,
		LastError:        p.lastError,
	}
	p.mu.Unlock()

	s.CircuitState = p.breaker.State()
	s.ConsecutiveFails = p.breaker.Failures()
	s.QueueDepth = p.writer.QueueDepth()
	s.SamplesWritten = p.writer.Written()
	s.SamplesDropped = p.writer.Dropped()
	s.SamplesLost = p.writer.Lost()
	return s
}
