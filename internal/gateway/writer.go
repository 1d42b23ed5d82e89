package gateway

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// SampleInserter is the storage surface the batch writer needs.
type SampleInserter interface {
	InsertSignalHistory(ctx context.Context, records []model.SignalSample) (int, error)
}

// batchWriter decouples the poll loop from SQLite latency. Samples land in a
// bounded queue; a background loop drains it on a fixed cadence and writes
// one transaction per batch. When the queue is full the oldest sample is
// dropped so the poller never blocks.
type batchWriter struct {
	store         SampleInserter
	queue         chan model.SignalSample
	flushInterval time.Duration
	insertTimeout time.Duration
	maxBatch      int

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	written atomic.Int64 // rows committed
	dropped atomic.Int64 // evicted from a full queue
	lost    atomic.Int64 // in a batch whose insert failed
}

func newBatchWriter(store SampleInserter, queueSoft, maxBatch int, flushInterval, insertTimeout time.Duration) *batchWriter {
	if queueSoft <= 0 {
		queueSoft = 10000
	}
	if maxBatch <= 0 {
		maxBatch = 2000
	}
	return &batchWriter{
		store:         store,
		queue:         make(chan model.SignalSample, queueSoft),
		flushInterval: flushInterval,
		insertTimeout: insertTimeout,
		maxBatch:      maxBatch,
	}
}

// Start launches the flush loop. A running writer is left alone, so the
// poller's start path can call it unconditionally.
func (w *batchWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	w.stopCh = make(chan struct{})
	w.doneCh = make(chan struct{})
	go w.flushLoop(w.stopCh, w.doneCh)
}

// Enqueue queues a sample for the next flush, evicting the oldest queued
// sample when the queue is full.
func (w *batchWriter) Enqueue(s model.SignalSample) {
	select {
	case w.queue <- s:
		return
	default:
	}
	select {
	case <-w.queue:
		w.dropped.Add(1)
	default:
	}
	select {
	case w.queue <- s:
	default:
		w.dropped.Add(1)
	}
}

func (w *batchWriter) flushLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(w.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.drainAndFlush()
		case <-stopCh:
			w.drainAndFlush()
			return
		}
	}
}

// drainAndFlush empties the queue and writes it in maxBatch-sized chunks.
// A failed chunk is dropped, not retried: history is a telemetry stream and
// retrying against a wedged database would only grow the backlog.
func (w *batchWriter) drainAndFlush() {
	var pending []model.SignalSample
	for {
		select {
		case s := <-w.queue:
			pending = append(pending, s)
		default:
			goto drained
		}
	}
drained:
	for len(pending) > 0 {
		n := len(pending)
		if n > w.maxBatch {
			n = w.maxBatch
		}
		chunk := pending[:n]
		pending = pending[n:]

		ctx, cancel := context.WithTimeout(context.Background(), w.insertTimeout)
		inserted, err := w.store.InsertSignalHistory(ctx, chunk)
		cancel()
		if err != nil {
			w.lost.Add(int64(len(chunk)))
			log.Printf("[writer] batch insert failed, %d samples lost: %v", len(chunk), err)
			continue
		}
		w.written.Add(int64(inserted))
	}
}

// Stop flushes whatever is queued and shuts the loop down. Safe to call more
// than once; a stopped writer can be started again.
func (w *batchWriter) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	stopCh, doneCh := w.stopCh, w.doneCh
	w.mu.Unlock()

	close(stopCh)
	<-doneCh
}

func (w *batchWriter) QueueDepth() int { return len(w.queue) }
func (w *batchWriter) Written() int64  { return w.written.Load() }
func (w *batchWriter) Dropped() int64  { return w.dropped.Load() }
func (w *batchWriter) Lost() int64     { return w.lost.Load() }
