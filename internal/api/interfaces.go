package api

import (
	"context"

	"github.com/gateview/gateview/internal/alert"
	"github.com/gateview/gateview/internal/gateway"
	"github.com/gateview/gateview/internal/model"
	"github.com/gateview/gateview/internal/sched"
	"github.com/gateview/gateview/internal/speedtest"
	"github.com/gateview/gateview/internal/store"
)

// Poller is the gateway poller surface the handlers need.
type Poller interface {
	CurrentData() *model.SignalSample
	PollOnce(ctx context.Context) (*model.SignalSample, *gateway.PollError)
	Stats() gateway.Stats
	Subscribe() (string, <-chan model.SignalSample)
	Unsubscribe(token string)
	SubscribeOutages() (string, <-chan model.DisruptionEvent)
	UnsubscribeOutages(token string)
}

// Repo is the storage surface the read handlers need.
type Repo interface {
	LatestSignal() (*model.SignalSample, error)
	QuerySignalHistory(p store.SignalHistoryParams, nowUnix float64) ([]model.SignalSample, string, error)
	TowerHistory(durationMinutes int, nowUnix float64) ([]store.TowerChange, error)
	QuerySpeedtests(limit int) ([]model.SpeedtestResult, error)
	QueryDisruptions(hours int) ([]model.DisruptionEvent, error)
	QueryDisruptionStats(hours int) (*store.DisruptionStats, error)
	QueryNetworkQuality(hours int) ([]model.NetworkQualityResult, error)
}

// SpeedtestRunner runs one-shot speed tests.
type SpeedtestRunner interface {
	Run(ctx context.Context, opts speedtest.RunOptions) (*model.SpeedtestResult, error)
	AvailableTools() []string
	Running() bool
}

// Scheduler is the speedtest scheduler surface.
type Scheduler interface {
	Start() error
	Stop() error
	Running() bool
	Config() sched.Config
	UpdateConfig(cfg sched.Config) error
	Stats() sched.Stats
}

// Alerts is the alert engine surface.
type Alerts interface {
	Active() []model.Alert
	History(limit int) []model.Alert
	Acknowledge(id string) bool
	Clear(id string) bool
	ClearAll() int
	Subscribe() (<-chan alert.Event, func())
}
