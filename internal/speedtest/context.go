package speedtest

import (
	"context"
	"log"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// LatencyProbe measures current ping latency in milliseconds to a
// well-known target. Injectable; the production wiring pings through the
// network-quality prober's parser.
type LatencyProbe func(ctx context.Context) (float64, error)

// latencyProbeDeadline bounds the pre-test probe.
const latencyProbeDeadline = 5 * time.Second

// classifyContext derives the network-context label for a test about to
// run. Idle hours short-circuit to baseline; otherwise the pre-test latency
// is compared against the configured baseline. The returned latency pointer
// is nil when no probe ran or the probe failed.
func (o *Orchestrator) classifyContext(ctx context.Context, now time.Time) (model.NetworkContext, *float64) {
	for _, h := range o.opts.IdleHours {
		if now.Hour() == h {
			return model.ContextBaseline, nil
		}
	}
	if !o.opts.LatencyProbeEnabled || o.probe == nil {
		return model.ContextUnknown, nil
	}

	probeCtx, cancel := context.WithTimeout(ctx, latencyProbeDeadline)
	defer cancel()
	latency, err := o.probe(probeCtx)
	if err != nil {
		log.Printf("[speedtest] pre-test latency probe failed: %v", err)
		return model.ContextUnknown, nil
	}

	ratio := latency / o.opts.BaselineLatencyMs
	label := model.ContextBusy
	switch {
	case ratio < o.opts.LightMultiplier:
		label = model.ContextIdle
	case ratio < o.opts.BusyMultiplier:
		label = model.ContextLight
	}
	return label, &latency
}
