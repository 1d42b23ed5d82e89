package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gateview/gateview/internal/model"
)

type fakeOutageStore struct {
	mu       sync.Mutex
	nextID   int64
	inserted []model.DisruptionEvent
	resolved map[int64]float64
}

func newFakeOutageStore() *fakeOutageStore {
	return &fakeOutageStore{resolved: make(map[int64]float64)}
}

func (f *fakeOutageStore) InsertDisruption(ev *model.DisruptionEvent) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.inserted = append(f.inserted, *ev)
	return f.nextID, nil
}

func (f *fakeOutageStore) ResolveDisruption(id int64, durationSeconds float64, _ string, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resolved[id] = durationSeconds
	return nil
}

func testOptions(url string) Options {
	return Options{
		URL:              url,
		PollInterval:     time.Hour,
		Timeout:          time.Second,
		FailureThreshold: 2,
		RecoveryTimeout:  time.Millisecond,
		SINRDropDB:       10,
		QueueSoft:        100,
		MaxBatch:         100,
		FlushInterval:    time.Hour,
		InsertTimeout:    time.Second,
	}
}

const goodPayload = `{"signal":{"5g":{"sinr":15,"rsrp":-95,"gNBID":7}},"device":{"connectionStatus":"REGISTERED"}}`

func TestPollOnceSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	ins := &captureInserter{}
	p := NewPoller(testOptions(srv.URL), ins, newFakeOutageStore())

	sample, perr := p.PollOnce(context.Background())
	if perr != nil {
		t.Fatalf("PollOnce: %v", perr)
	}
	if sample.NRSINR == nil || *sample.NRSINR != 15 {
		t.Fatalf("NRSINR = %v, want 15", sample.NRSINR)
	}

	cur := p.CurrentData()
	if cur == nil || cur.NRGNBID == nil || *cur.NRGNBID != 7 {
		t.Fatalf("CurrentData = %+v", cur)
	}
	if raw := p.CurrentRaw(); string(raw) != goodPayload {
		t.Fatalf("CurrentRaw = %q", raw)
	}

	st := p.Stats()
	if st.TotalPolls != 1 || st.FailedPolls != 0 || st.CircuitState != CircuitClosed {
		t.Fatalf("stats = %+v", st)
	}
}

func TestPollOnceIdenticalPayloadSkipsDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	p := NewPoller(testOptions(srv.URL), &captureInserter{}, newFakeOutageStore())

	first, _ := p.PollOnce(context.Background())
	time.Sleep(2 * time.Millisecond)
	second, perr := p.PollOnce(context.Background())
	if perr != nil {
		t.Fatalf("PollOnce: %v", perr)
	}

	if st := p.Stats(); st.DistinctPayloads != 1 {
		t.Fatalf("DistinctPayloads = %d, want 1", st.DistinctPayloads)
	}
	if second.TimestampUnix <= first.TimestampUnix {
		t.Fatal("reused sample did not get a fresh timestamp")
	}
	if *second.NRSINR != *first.NRSINR {
		t.Fatal("reused sample lost metric values")
	}
}

func TestPollOnceOutageLifecycle(t *testing.T) {
	var mu sync.Mutex
	failing := true
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		f := failing
		mu.Unlock()
		if f {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	outages := newFakeOutageStore()
	p := NewPoller(testOptions(srv.URL), &captureInserter{}, outages)
	outTok, outCh := p.SubscribeOutages()
	defer p.UnsubscribeOutages(outTok)

	// Threshold is 2: second failure opens the circuit and records the outage.
	if _, perr := p.PollOnce(context.Background()); perr == nil || perr.Type != ErrHTTP {
		t.Fatalf("first failure = %v, want http_error", perr)
	}
	p.PollOnce(context.Background())

	if st := p.Stats(); st.CircuitState != CircuitOpen || !st.OutageActive {
		t.Fatalf("stats after threshold = %+v", st)
	}
	outages.mu.Lock()
	if len(outages.inserted) != 1 || outages.inserted[0].EventType != model.EventGatewayUnreachable {
		t.Fatalf("inserted outages = %+v", outages.inserted)
	}
	outages.mu.Unlock()

	select {
	case ev := <-outCh:
		if ev.Resolved {
			t.Fatal("first outage event already resolved")
		}
	default:
		t.Fatal("no outage event published")
	}

	// Recovery: after the dwell the probe succeeds and resolves the outage.
	mu.Lock()
	failing = false
	mu.Unlock()
	time.Sleep(2 * time.Millisecond)

	if _, perr := p.PollOnce(context.Background()); perr != nil {
		t.Fatalf("recovery poll: %v", perr)
	}

	outages.mu.Lock()
	if _, ok := outages.resolved[1]; !ok {
		t.Fatal("outage was not resolved")
	}
	outages.mu.Unlock()

	select {
	case ev := <-outCh:
		if !ev.Resolved || ev.DurationSeconds == nil {
			t.Fatalf("resolve event = %+v", ev)
		}
	default:
		t.Fatal("no resolve event published")
	}

	if st := p.Stats(); st.CircuitState != CircuitClosed || st.OutageActive {
		t.Fatalf("stats after recovery = %+v", st)
	}
}

func TestPollOnceSkipsWhileOpen(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	opts := testOptions(srv.URL)
	opts.RecoveryTimeout = time.Hour
	p := NewPoller(opts, &captureInserter{}, newFakeOutageStore())

	p.PollOnce(context.Background())
	p.PollOnce(context.Background()) // opens

	if sample, perr := p.PollOnce(context.Background()); sample != nil || perr != nil {
		t.Fatalf("open-circuit poll = (%v, %v), want (nil, nil)", sample, perr)
	}
	if st := p.Stats(); st.SkippedPolls != 1 {
		t.Fatalf("SkippedPolls = %d, want 1", st.SkippedPolls)
	}
}

func TestPollOnceParseErrorsDoNotOpenCircuit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	outages := newFakeOutageStore()
	p := NewPoller(testOptions(srv.URL), &captureInserter{}, outages)

	// Threshold is 2; well past it, parse failures alone must leave the
	// circuit closed and no outage recorded.
	for i := 0; i < 3; i++ {
		if _, perr := p.PollOnce(context.Background()); perr == nil || perr.Type != ErrParse {
			t.Fatalf("poll %d = %v, want parse_error", i+1, perr)
		}
	}

	st := p.Stats()
	if st.FailedPolls != 3 || st.ErrorCounts[string(ErrParse)] != 3 {
		t.Fatalf("stats = %+v", st)
	}
	if st.CircuitState != CircuitClosed || st.OutageActive {
		t.Fatalf("circuit = %s outage=%v, want closed and no outage", st.CircuitState, st.OutageActive)
	}
	outages.mu.Lock()
	if len(outages.inserted) != 0 {
		t.Fatalf("inserted outages = %+v", outages.inserted)
	}
	outages.mu.Unlock()
}

func TestPollOnceSerializesConcurrentCalls(t *testing.T) {
	var inFlight, overlapped atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if inFlight.Add(1) > 1 {
			overlapped.Store(1)
		}
		time.Sleep(10 * time.Millisecond)
		inFlight.Add(-1)
		w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	p := NewPoller(testOptions(srv.URL), &captureInserter{}, newFakeOutageStore())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, perr := p.PollOnce(context.Background()); perr != nil {
				t.Errorf("PollOnce: %v", perr)
			}
		}()
	}
	wg.Wait()

	if overlapped.Load() != 0 {
		t.Fatal("concurrent polls reached the gateway simultaneously")
	}
	if st := p.Stats(); st.TotalPolls != 4 {
		t.Fatalf("TotalPolls = %d, want 4", st.TotalPolls)
	}
}

func TestStartStopIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(goodPayload))
	}))
	defer srv.Close()

	p := NewPoller(testOptions(srv.URL), &captureInserter{}, newFakeOutageStore())
	p.StartPolling()
	p.StartPolling()

	deadline := time.Now().Add(2 * time.Second)
	for p.CurrentData() == nil {
		if time.Now().After(deadline) {
			t.Fatal("no sample after start")
		}
		time.Sleep(5 * time.Millisecond)
	}

	p.StopPolling()
	p.StopPolling()
	if st := p.Stats(); st.Running {
		t.Fatal("Stats reports running after stop")
	}
}
