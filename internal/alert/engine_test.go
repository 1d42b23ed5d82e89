package alert

import (
	"testing"
	"time"

	"github.com/gateview/gateview/internal/model"
)

type fakeSnapshots struct {
	sample *model.SignalSample
	st     *model.SpeedtestResult
}

func (f *fakeSnapshots) LatestSignal() (*model.SignalSample, error)      { return f.sample, nil }
func (f *fakeSnapshots) LatestSpeedtest() (*model.SpeedtestResult, error) { return f.st, nil }

func fptr(v float64) *float64 { return &v }

func newTestEngine(policy Policy) (*Engine, *time.Time) {
	e := NewEngine(policy, &fakeSnapshots{})
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }
	return e, &now
}

func TestSignalThresholds(t *testing.T) {
	cases := []struct {
		name     string
		sinr     float64
		wantType model.AlertType
		wantNone bool
	}{
		{"critical below -5", -8, model.AlertSignalCritical, false},
		{"warning below 0", -2, model.AlertSignalDrop, false},
		{"healthy", 12, "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e, _ := newTestEngine(DefaultPolicy())
			sample := &model.SignalSample{NRSINR: fptr(tc.sinr)}
			fired := e.Evaluate(sample, nil)
			if tc.wantNone {
				if len(fired) != 0 {
					t.Fatalf("fired %d alerts, want none", len(fired))
				}
				return
			}
			if len(fired) != 1 {
				t.Fatalf("fired %d alerts, want 1", len(fired))
			}
			if fired[0].Type != tc.wantType {
				t.Errorf("type = %s, want %s", fired[0].Type, tc.wantType)
			}
		})
	}
}

func TestSpeedtestThresholds(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())
	st := &model.SpeedtestResult{
		Status:            model.SpeedtestSuccess,
		DownloadMbps:      4.2,
		PacketLossPercent: fptr(8),
		JitterMs:          fptr(75),
	}
	fired := e.Evaluate(nil, st)
	if len(fired) != 3 {
		t.Fatalf("fired %d alerts, want 3", len(fired))
	}
	got := map[model.AlertType]bool{}
	for _, a := range fired {
		got[a.Type] = true
	}
	for _, want := range []model.AlertType{model.AlertSpeedLow, model.AlertPacketLoss, model.AlertHighJitter} {
		if !got[want] {
			t.Errorf("missing alert type %s", want)
		}
	}
}

func TestFailedSpeedtestProducesNoAlert(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())
	st := &model.SpeedtestResult{Status: model.SpeedtestError, DownloadMbps: 0}
	if fired := e.Evaluate(nil, st); len(fired) != 0 {
		t.Fatalf("failed speedtest fired %d alerts", len(fired))
	}
}

func TestSuppressionRules(t *testing.T) {
	t.Run("disabled engine", func(t *testing.T) {
		p := DefaultPolicy()
		p.Enabled = false
		e, _ := newTestEngine(p)
		if fired := e.Evaluate(&model.SignalSample{NRSINR: fptr(-20)}, nil); len(fired) != 0 {
			t.Fatalf("disabled engine fired %d alerts", len(fired))
		}
	})

	t.Run("warning muted", func(t *testing.T) {
		p := DefaultPolicy()
		p.NotifyOnWarning = false
		e, _ := newTestEngine(p)
		ch, cancel := e.Subscribe()
		defer cancel()

		if fired := e.Evaluate(&model.SignalSample{NRSINR: fptr(-2)}, nil); len(fired) != 0 {
			t.Fatalf("muted warning fired %d alerts", len(fired))
		}
		select {
		case ev := <-ch:
			t.Fatalf("unexpected published event %s", ev.Kind)
		default:
		}
	})

	t.Run("critical muted", func(t *testing.T) {
		p := DefaultPolicy()
		p.NotifyOnCritical = false
		e, _ := newTestEngine(p)
		if fired := e.Evaluate(&model.SignalSample{NRSINR: fptr(-20)}, nil); len(fired) != 0 {
			t.Fatalf("muted critical fired %d alerts", len(fired))
		}
	})
}

func TestCooldownPerType(t *testing.T) {
	e, now := newTestEngine(DefaultPolicy())
	sample := &model.SignalSample{NRSINR: fptr(-20)}

	if fired := e.Evaluate(sample, nil); len(fired) != 1 {
		t.Fatalf("first evaluate fired %d alerts", len(fired))
	}
	*now = now.Add(time.Minute)
	if fired := e.Evaluate(sample, nil); len(fired) != 0 {
		t.Fatalf("evaluate within cooldown fired %d alerts", len(fired))
	}
	*now = now.Add(5 * time.Minute)
	if fired := e.Evaluate(sample, nil); len(fired) != 1 {
		t.Fatalf("evaluate after cooldown fired %d alerts", len(fired))
	}
}

func TestActiveMapOnePerType(t *testing.T) {
	e, now := newTestEngine(DefaultPolicy())
	sample := &model.SignalSample{NRSINR: fptr(-20)}

	e.Evaluate(sample, nil)
	*now = now.Add(10 * time.Minute)
	e.Evaluate(sample, nil)

	active := e.Active()
	if len(active) != 1 {
		t.Fatalf("active = %d entries, want 1", len(active))
	}
	if len(e.History(10)) != 2 {
		t.Fatalf("history = %d entries, want 2", len(e.History(10)))
	}
}

func TestUniqueIDsInSameMillisecond(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())

	// Two different metrics violating distinct thresholds in one pass; the
	// frozen clock forces an identical millisecond timestamp.
	sample := &model.SignalSample{NRSINR: fptr(-20), NRRSRP: fptr(-105)}
	fired := e.Evaluate(sample, nil)
	if len(fired) != 2 {
		t.Fatalf("fired %d alerts, want 2", len(fired))
	}
	if fired[0].ID == fired[1].ID {
		t.Fatalf("alert ids collide: %s", fired[0].ID)
	}
}

func TestAcknowledgeAndClear(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())
	ch, cancel := e.Subscribe()
	defer cancel()

	fired := e.Evaluate(&model.SignalSample{NRSINR: fptr(-20)}, nil)
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts", len(fired))
	}
	id := fired[0].ID
	<-ch // the alert event

	if !e.Acknowledge(id) {
		t.Fatal("Acknowledge returned false")
	}
	active := e.Active()
	if len(active) != 1 || !active[0].Acknowledged || active[0].AcknowledgedAt == nil {
		t.Fatalf("active entry not acknowledged: %+v", active)
	}
	hist := e.History(1)
	if len(hist) != 1 || !hist[0].Acknowledged {
		t.Fatal("history entry not acknowledged")
	}

	if !e.Clear(id) {
		t.Fatal("Clear returned false")
	}
	if len(e.Active()) != 0 {
		t.Fatal("alert still active after Clear")
	}
	ev := <-ch
	if ev.Kind != KindAlertCleared || ev.AlertID != id {
		t.Fatalf("got event %s/%s, want alert_cleared/%s", ev.Kind, ev.AlertID, id)
	}

	if e.Clear(id) {
		t.Fatal("Clear of unknown id returned true")
	}
}

func TestClearAll(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())
	e.Evaluate(&model.SignalSample{NRSINR: fptr(-20), LTERSRP: fptr(-102)}, nil)

	ch, cancel := e.Subscribe()
	defer cancel()

	count := e.ClearAll()
	if count != 2 {
		t.Fatalf("ClearAll = %d, want 2", count)
	}
	ev := <-ch
	if ev.Kind != KindAllAlertsCleared || ev.Count != 2 {
		t.Fatalf("got %s count=%d, want all_alerts_cleared count=2", ev.Kind, ev.Count)
	}
	if len(e.Active()) != 0 {
		t.Fatal("active set not empty")
	}
}

func TestEngineStartStop(t *testing.T) {
	e, _ := newTestEngine(DefaultPolicy())
	e.Start()
	fired := e.Evaluate(&model.SignalSample{NRSINR: fptr(-20)}, nil)
	if len(fired) != 1 {
		t.Fatalf("fired %d alerts while running", len(fired))
	}
	e.Stop()
	e.Stop() // idempotent
}
