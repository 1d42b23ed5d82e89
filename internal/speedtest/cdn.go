package speedtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// cdnProbe is one download-only speed probe against a public CDN test file.
type cdnProbe struct {
	url    string
	server string // fixed server label per CDN
}

var cdnProbes = map[string]cdnProbe{
	ToolCDNCloudflare: {
		url:    "https://speed.cloudflare.com/__down?bytes=26214400",
		server: "Cloudflare CDN",
	},
	ToolCDNHetzner: {
		url:    "https://speed.hetzner.de/100MB.bin",
		server: "Hetzner CDN",
	},
	ToolCDNOVH: {
		url:    "https://proof.ovh.net/files/100Mb.dat",
		server: "OVH CDN",
	},
}

// runCDNProbe downloads the CDN test file, measuring transfer time over the
// full body. Upload stays zero: these probes are download-only.
func (o *Orchestrator) runCDNProbe(ctx context.Context, tool string) toolResult {
	probe, ok := cdnProbes[tool]
	if !ok {
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("unknown CDN probe %q", tool)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probe.url, nil)
	if err != nil {
		return toolResult{Status: model.SpeedtestError, ErrorMessage: err.Error()}
	}

	start := time.Now()
	resp, err := o.httpClient.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return toolResult{Status: model.SpeedtestTimeout, ErrorMessage: fmt.Sprintf("%s timed out", tool)}
		}
		return toolResult{Status: model.SpeedtestError, ErrorMessage: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("%s returned HTTP %d", tool, resp.StatusCode)}
	}
	ttfb := time.Since(start)

	n, err := io.Copy(io.Discard, resp.Body)
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return toolResult{Status: model.SpeedtestTimeout, ErrorMessage: fmt.Sprintf("%s timed out after %d bytes", tool, n)}
		}
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("%s transfer failed: %v", tool, err)}
	}
	if n == 0 || elapsed <= 0 {
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("%s returned an empty body", tool)}
	}

	return toolResult{
		Status:       model.SpeedtestSuccess,
		DownloadMbps: float64(n) * 8 / 1e6 / elapsed.Seconds(),
		PingMs:       float64(ttfb.Milliseconds()),
		ServerName:   probe.server,
	}
}

func isCDNTool(tool string) bool {
	_, ok := cdnProbes[tool]
	return ok
}
