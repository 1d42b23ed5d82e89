package speedtest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gateview/gateview/internal/model"
)

// Canonical tool names. The three CLIs are detected at construction; the
// CDN probes need no external binary and are always available.
const (
	ToolFastCLI       = "fast-cli"
	ToolOokla         = "speedtest"
	ToolSpeedtestCLI  = "speedtest-cli"
	ToolCDNCloudflare = "cdn-cloudflare"
	ToolCDNHetzner    = "cdn-hetzner"
	ToolCDNOVH        = "cdn-ovh"
)

// toolResult is the canonical internal outcome of one tool invocation.
type toolResult struct {
	Status       model.SpeedtestStatus
	DownloadMbps float64
	UploadMbps   float64
	PingMs       float64
	JitterMs     *float64
	PacketLoss   *float64

	ServerName     string
	ServerLocation string
	ServerHost     string
	ServerID       string
	ClientIP       string
	ISP            string
	ResultURL      string

	ErrorMessage string
}

// detectCommand returns the short probe invocation used to discover a CLI.
func detectCommand(tool string) []string {
	switch tool {
	case ToolFastCLI:
		return []string{"fast", "--help"}
	case ToolOokla:
		return []string{"speedtest", "--version"}
	case ToolSpeedtestCLI:
		return []string{"speedtest-cli", "--version"}
	}
	return nil
}

// detectTimeout bounds each detection probe.
const detectTimeout = 10 * time.Second

// runCLITool invokes one of the three external CLIs and parses its output.
// Deadline expiry maps to timeout, a non-zero exit with no stdout maps to
// error, and unparseable stdout maps to error.
func (o *Orchestrator) runCLITool(ctx context.Context, tool string) toolResult {
	var (
		args  []string
		parse func([]byte) (toolResult, error)
	)
	switch tool {
	case ToolFastCLI:
		args = []string{"fast", "--upload", "--json"}
		parse = parseFastCLI
	case ToolOokla:
		args = []string{"speedtest", "--accept-license", "--accept-gdpr", "--format=json"}
		if o.opts.ServerID != "" {
			args = append(args, "--server-id="+o.opts.ServerID)
		}
		parse = parseOokla
	case ToolSpeedtestCLI:
		args = []string{"speedtest-cli", "--json"}
		parse = parseSpeedtestCLI
	default:
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("unknown tool %q", tool)}
	}

	stdout, stderr, err := o.runner(ctx, args[0], args[1:]...)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return toolResult{Status: model.SpeedtestTimeout, ErrorMessage: fmt.Sprintf("%s timed out", tool)}
		}
		if len(stdout) == 0 {
			msg := strings.TrimSpace(string(stderr))
			if msg == "" {
				msg = err.Error()
			}
			return toolResult{Status: model.SpeedtestError, ErrorMessage: msg}
		}
		// Some tools exit non-zero after printing a usable document.
	}

	res, perr := parse(stdout)
	if perr != nil {
		return toolResult{Status: model.SpeedtestError, ErrorMessage: fmt.Sprintf("parse %s output: %v", tool, perr)}
	}
	res.Status = model.SpeedtestSuccess
	return res
}

// parseFastCLI parses `fast --upload --json`. Speeds are already Mbps.
func parseFastCLI(stdout []byte) (toolResult, error) {
	var doc struct {
		DownloadSpeed float64 `json:"downloadSpeed"`
		UploadSpeed   float64 `json:"uploadSpeed"`
		Latency       float64 `json:"latency"`
		BufferBloat   float64 `json:"bufferBloat"`
		UserLocation  string  `json:"userLocation"`
		UserIP        string  `json:"userIp"`
	}
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return toolResult{}, err
	}
	return toolResult{
		DownloadMbps:   doc.DownloadSpeed,
		UploadMbps:     doc.UploadSpeed,
		PingMs:         doc.Latency,
		ServerName:     "fast.com",
		ServerLocation: doc.UserLocation,
		ClientIP:       doc.UserIP,
	}, nil
}

// parseOokla parses `speedtest --format=json`. Bandwidth is bytes per
// second and is normalized to Mbps.
func parseOokla(stdout []byte) (toolResult, error) {
	var doc struct {
		Ping struct {
			Latency float64 `json:"latency"`
			Jitter  float64 `json:"jitter"`
		} `json:"ping"`
		Download struct {
			Bandwidth float64 `json:"bandwidth"`
		} `json:"download"`
		Upload struct {
			Bandwidth float64 `json:"bandwidth"`
		} `json:"upload"`
		PacketLoss *float64 `json:"packetLoss"`
		ISP        string   `json:"isp"`
		Interface  struct {
			ExternalIP string `json:"externalIp"`
		} `json:"interface"`
		Server struct {
			ID       int64  `json:"id"`
			Name     string `json:"name"`
			Location string `json:"location"`
			Host     string `json:"host"`
		} `json:"server"`
		Result struct {
			URL string `json:"url"`
		} `json:"result"`
	}
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return toolResult{}, err
	}
	jitter := doc.Ping.Jitter
	res := toolResult{
		DownloadMbps:   doc.Download.Bandwidth * 8 / 1e6,
		UploadMbps:     doc.Upload.Bandwidth * 8 / 1e6,
		PingMs:         doc.Ping.Latency,
		JitterMs:       &jitter,
		PacketLoss:     doc.PacketLoss,
		ServerName:     doc.Server.Name,
		ServerLocation: doc.Server.Location,
		ServerHost:     doc.Server.Host,
		ClientIP:       doc.Interface.ExternalIP,
		ISP:            doc.ISP,
		ResultURL:      doc.Result.URL,
	}
	if doc.Server.ID != 0 {
		res.ServerID = fmt.Sprintf("%d", doc.Server.ID)
	}
	return res, nil
}

// parseSpeedtestCLI parses `speedtest-cli --json`. Speeds are bits per
// second and are normalized to Mbps.
func parseSpeedtestCLI(stdout []byte) (toolResult, error) {
	var doc struct {
		Download float64 `json:"download"`
		Upload   float64 `json:"upload"`
		Ping     float64 `json:"ping"`
		Server   struct {
			ID      string `json:"id"`
			Sponsor string `json:"sponsor"`
			Name    string `json:"name"`
			Host    string `json:"host"`
			Country string `json:"country"`
		} `json:"server"`
		Client struct {
			IP  string `json:"ip"`
			ISP string `json:"isp"`
		} `json:"client"`
	}
	if err := json.Unmarshal(stdout, &doc); err != nil {
		return toolResult{}, err
	}
	return toolResult{
		DownloadMbps:   doc.Download / 1e6,
		UploadMbps:     doc.Upload / 1e6,
		PingMs:         doc.Ping,
		ServerName:     doc.Server.Sponsor,
		ServerLocation: fmt.Sprintf("%s, %s", doc.Server.Name, doc.Server.Country),
		ServerHost:     doc.Server.Host,
		ServerID:       doc.Server.ID,
		ClientIP:       doc.Client.IP,
		ISP:            doc.Client.ISP,
	}, nil
}
