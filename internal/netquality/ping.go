package netquality

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Runner executes the OS ping utility. Injectable for testing.
type Runner func(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)

// PingStats is the parsed outcome of one ping run.
type PingStats struct {
	RTTs     []float64 // per-echo round-trip times, ms
	Sent     int
	Received int
}

// AvgRTT returns the arithmetic mean of the observed RTTs, or 0 when none
// were observed.
func (p *PingStats) AvgRTT() float64 {
	if len(p.RTTs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range p.RTTs {
		sum += v
	}
	return sum / float64(len(p.RTTs))
}

// Jitter returns the mean absolute deviation of the RTTs around their mean.
func (p *PingStats) Jitter() float64 {
	if len(p.RTTs) < 2 {
		return 0
	}
	mean := p.AvgRTT()
	var dev float64
	for _, v := range p.RTTs {
		dev += math.Abs(v - mean)
	}
	return dev / float64(len(p.RTTs))
}

// LossPercent returns packet loss as a percentage, clamped to 100 when
// nothing came back or the counts were unparseable.
func (p *PingStats) LossPercent() float64 {
	if p.Sent <= 0 {
		if len(p.RTTs) == 0 {
			return 100
		}
		return 0
	}
	loss := float64(p.Sent-p.Received) / float64(p.Sent) * 100
	if loss < 0 {
		return 0
	}
	if loss > 100 {
		return 100
	}
	return loss
}

// pingArgs builds the platform ping invocation for count echoes with a
// per-echo timeout in whole seconds.
func pingArgs(host string, count, timeoutSec int) []string {
	if timeoutSec < 1 {
		timeoutSec = 1
	}
	if runtime.GOOS == "darwin" {
		// BSD ping takes the per-echo timeout in milliseconds via -W.
		return []string{"ping", "-c", strconv.Itoa(count), "-W", strconv.Itoa(timeoutSec * 1000), host}
	}
	return []string{"ping", "-c", strconv.Itoa(count), "-W", strconv.Itoa(timeoutSec), host}
}

var (
	// Linux: "64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=12.3 ms"
	// macOS: "64 bytes from 8.8.8.8: icmp_seq=0 ttl=117 time=12.345 ms"
	rttPattern = regexp.MustCompile(`time[=<]([\d.]+)\s*ms`)

	// Linux: "20 packets transmitted, 19 received, 5% packet loss"
	// macOS: "20 packets transmitted, 19 packets received, 5.0% packet loss"
	txRxPattern = regexp.MustCompile(`(\d+) packets transmitted, (\d+)(?: packets)? received`)
)

// parsePingOutput extracts RTTs and transmit/receive counts from ping's
// textual output on Linux and BSD/macOS.
func parsePingOutput(out string) PingStats {
	var stats PingStats
	for _, m := range rttPattern.FindAllStringSubmatch(out, -1) {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			stats.RTTs = append(stats.RTTs, v)
		}
	}
	if m := txRxPattern.FindStringSubmatch(out); m != nil {
		stats.Sent, _ = strconv.Atoi(m[1])
		stats.Received, _ = strconv.Atoi(m[2])
	}
	return stats
}

// Ping runs the OS ping utility against host and parses the result. The
// subprocess output is still parsed on a non-zero exit: ping exits non-zero
// on partial loss while reporting usable statistics.
func Ping(ctx context.Context, runner Runner, host string, count, timeoutSec int) (PingStats, error) {
	args := pingArgs(host, count, timeoutSec)
	stdout, stderr, err := runner(ctx, args[0], args[1:]...)
	out := string(stdout)
	stats := parsePingOutput(out)
	if err != nil && len(stats.RTTs) == 0 {
		msg := strings.TrimSpace(string(stderr))
		if msg == "" {
			msg = err.Error()
		}
		return stats, fmt.Errorf("ping %s: %s", host, msg)
	}
	return stats, nil
}
