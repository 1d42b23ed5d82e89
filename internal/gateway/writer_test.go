package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gateview/gateview/internal/model"
)

type captureInserter struct {
	mu      sync.Mutex
	batches [][]model.SignalSample
	fail    bool
}

func (c *captureInserter) InsertSignalHistory(_ context.Context, recs []model.SignalSample) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail {
		return 0, errors.New("disk full")
	}
	batch := make([]model.SignalSample, len(recs))
	copy(batch, recs)
	c.batches = append(c.batches, batch)
	return len(recs), nil
}

func (c *captureInserter) total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, b := range c.batches {
		n += len(b)
	}
	return n
}

func sampleAt(unix float64) model.SignalSample {
	return model.SignalSample{TimestampUnix: unix}
}

func TestWriterFlushesInBatches(t *testing.T) {
	ins := &captureInserter{}
	w := newBatchWriter(ins, 100, 3, time.Hour, time.Second)

	for i := 0; i < 7; i++ {
		w.Enqueue(sampleAt(float64(i)))
	}
	w.drainAndFlush()

	if got := ins.total(); got != 7 {
		t.Fatalf("wrote %d samples, want 7", got)
	}
	ins.mu.Lock()
	sizes := make([]int, 0, len(ins.batches))
	for _, b := range ins.batches {
		sizes = append(sizes, len(b))
	}
	ins.mu.Unlock()
	want := []int{3, 3, 1}
	if len(sizes) != len(want) {
		t.Fatalf("batch sizes = %v, want %v", sizes, want)
	}
	for i := range want {
		if sizes[i] != want[i] {
			t.Fatalf("batch sizes = %v, want %v", sizes, want)
		}
	}
	if w.Written() != 7 {
		t.Fatalf("Written = %d, want 7", w.Written())
	}
}

func TestWriterDropsOldestWhenFull(t *testing.T) {
	ins := &captureInserter{}
	w := newBatchWriter(ins, 2, 10, time.Hour, time.Second)

	w.Enqueue(sampleAt(1))
	w.Enqueue(sampleAt(2))
	w.Enqueue(sampleAt(3)) // evicts 1

	if w.Dropped() != 1 {
		t.Fatalf("Dropped = %d, want 1", w.Dropped())
	}
	w.drainAndFlush()
	ins.mu.Lock()
	defer ins.mu.Unlock()
	if len(ins.batches) != 1 || len(ins.batches[0]) != 2 {
		t.Fatalf("unexpected batches %v", ins.batches)
	}
	if ins.batches[0][0].TimestampUnix != 2 || ins.batches[0][1].TimestampUnix != 3 {
		t.Fatalf("kept samples %v, want the two newest", ins.batches[0])
	}
}

func TestWriterFailedBatchIsLostNotRetried(t *testing.T) {
	ins := &captureInserter{fail: true}
	w := newBatchWriter(ins, 100, 10, time.Hour, time.Second)

	w.Enqueue(sampleAt(1))
	w.Enqueue(sampleAt(2))
	w.drainAndFlush()

	if w.Lost() != 2 {
		t.Fatalf("Lost = %d, want 2", w.Lost())
	}
	if w.QueueDepth() != 0 {
		t.Fatalf("queue depth = %d after failed flush, want 0", w.QueueDepth())
	}
}

func TestWriterStopFlushesRemainder(t *testing.T) {
	ins := &captureInserter{}
	w := newBatchWriter(ins, 100, 10, time.Hour, time.Second)
	w.Start()

	w.Enqueue(sampleAt(1))
	w.Enqueue(sampleAt(2))
	w.Stop()

	if got := ins.total(); got != 2 {
		t.Fatalf("wrote %d samples on Stop, want 2", got)
	}
}
