// Package model defines domain structs shared across the monitoring pipeline
// and the persistence layer.
package model

import "time"

// TimeFormat is the ISO-8601 layout used for every textual timestamp column.
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Timestamps returns the paired textual and unix-seconds representation of t.
func Timestamps(t time.Time) (string, float64) {
	return t.UTC().Format(TimeFormat), float64(t.UnixNano()) / 1e9
}

// SignalSample is a snapshot of radio conditions at one poll instant.
// Metric pointers are nil when the gateway did not report the value; a sample
// with every metric nil represents "no signal" and is still persisted to
// preserve temporal continuity.
type SignalSample struct {
	ID            int64   `json:"id,omitempty"`
	Timestamp     string  `json:"timestamp"`
	TimestampUnix float64 `json:"timestamp_unix"`

	// 5G NR radio.
	NRSINR  *float64 `json:"nr_sinr"`
	NRRSRP  *float64 `json:"nr_rsrp"`
	NRRSRQ  *float64 `json:"nr_rsrq"`
	NRRSSI  *float64 `json:"nr_rssi"`
	NRBands *string  `json:"nr_bands"`
	NRGNBID *int64   `json:"nr_gnb_id"`
	NRCID   *int64   `json:"nr_cid"`

	// 4G LTE radio.
	LTESINR  *float64 `json:"lte_sinr"`
	LTERSRP  *float64 `json:"lte_rsrp"`
	LTERSRQ  *float64 `json:"lte_rsrq"`
	LTERSSI  *float64 `json:"lte_rssi"`
	LTEBands *string  `json:"lte_bands"`
	LTEENBID *int64   `json:"lte_enb_id"`
	LTECID   *int64   `json:"lte_cid"`

	RegistrationStatus string `json:"registration_status"`
	DeviceUptime       *int64 `json:"device_uptime"`
}

// HasNRSignal reports whether any 5G NR metric is present.
func (s *SignalSample) HasNRSignal() bool {
	return s.NRSINR != nil || s.NRRSRP != nil || s.NRRSRQ != nil || s.NRRSSI != nil
}

// HasLTESignal reports whether any LTE metric is present.
func (s *SignalSample) HasLTESignal() bool {
	return s.LTESINR != nil || s.LTERSRP != nil || s.LTERSRQ != nil || s.LTERSSI != nil
}

// ConnectionMode is the coarse registration mode inferred from which radios
// carry signal.
type ConnectionMode string

const (
	ModeSA       ConnectionMode = "SA"
	ModeNSA      ConnectionMode = "NSA"
	ModeLTE      ConnectionMode = "LTE"
	ModeNoSignal ConnectionMode = "No Signal"
)

// Mode infers the connection mode: 5G-only is SA, both radios is NSA,
// LTE-only is LTE, neither is No Signal.
func (s *SignalSample) Mode() ConnectionMode {
	nr, lte := s.HasNRSignal(), s.HasLTESignal()
	switch {
	case nr && lte:
		return ModeNSA
	case nr:
		return ModeSA
	case lte:
		return ModeLTE
	default:
		return ModeNoSignal
	}
}

// SpeedtestStatus is the outcome of a speedtest invocation.
type SpeedtestStatus string

const (
	SpeedtestSuccess SpeedtestStatus = "success"
	SpeedtestError   SpeedtestStatus = "error"
	SpeedtestTimeout SpeedtestStatus = "timeout"
	SpeedtestBusy    SpeedtestStatus = "busy"
)

// IsValid reports whether st is a known speedtest status.
func (st SpeedtestStatus) IsValid() bool {
	switch st {
	case SpeedtestSuccess, SpeedtestError, SpeedtestTimeout, SpeedtestBusy:
		return true
	}
	return false
}

// TriggerSource records what initiated a speedtest.
type TriggerSource string

const (
	TriggerManual    TriggerSource = "manual"
	TriggerScheduler TriggerSource = "scheduler"
	TriggerAPI       TriggerSource = "api"
)

// NetworkContext classifies ambient network load at speedtest time.
type NetworkContext string

const (
	ContextBaseline NetworkContext = "baseline"
	ContextIdle     NetworkContext = "idle"
	ContextLight    NetworkContext = "light"
	ContextBusy     NetworkContext = "busy"
	ContextUnknown  NetworkContext = "unknown"
)

// SpeedtestResult is one speedtest invocation outcome. Every invocation is
// recorded, including busy and failed ones; non-success rows carry zero speed
// fields and a populated ErrorMessage.
type SpeedtestResult struct {
	ID            int64   `json:"id,omitempty"`
	Timestamp     string  `json:"timestamp"`
	TimestampUnix float64 `json:"timestamp_unix"`

	DownloadMbps      float64  `json:"download_mbps"`
	UploadMbps        float64  `json:"upload_mbps"`
	PingMs            float64  `json:"ping_ms"`
	JitterMs          *float64 `json:"jitter_ms"`
	PacketLossPercent *float64 `json:"packet_loss_percent"`

	ServerName     string `json:"server_name,omitempty"`
	ServerLocation string `json:"server_location,omitempty"`
	ServerHost     string `json:"server_host,omitempty"`
	ServerID       string `json:"server_id,omitempty"`
	ClientIP       string `json:"client_ip,omitempty"`
	ISP            string `json:"isp,omitempty"`
	ResultURL      string `json:"result_url,omitempty"`

	Tool             string          `json:"tool"`
	Status           SpeedtestStatus `json:"status"`
	ErrorMessage     string          `json:"error_message,omitempty"`
	TriggeredBy      TriggerSource   `json:"triggered_by"`
	NetworkContext   NetworkContext  `json:"network_context"`
	PreTestLatencyMs *float64        `json:"pre_test_latency_ms"`
	SignalSnapshot   string          `json:"signal_snapshot,omitempty"`
}

// EventType identifies a disruption detector.
type EventType string

const (
	EventSignalDrop5G         EventType = "signal_drop_5g"
	EventSignalDrop4G         EventType = "signal_drop_4g"
	EventTowerChange5G        EventType = "tower_change_5g"
	EventTowerChange4G        EventType = "tower_change_4g"
	EventBandSwitch5G         EventType = "band_switch_5g"
	EventBandSwitch4G         EventType = "band_switch_4g"
	EventConnectionModeChange EventType = "connection_mode_change"
	EventGatewayUnreachable   EventType = "gateway_unreachable"
)

// Severity grades an event or alert.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// DisruptionEvent is a typed, optionally-resolved signal or connectivity
// disruption. Invariant: Resolved implies DurationSeconds and ResolvedAt are
// both set.
type DisruptionEvent struct {
	ID            int64   `json:"id,omitempty"`
	Timestamp     string  `json:"timestamp"`
	TimestampUnix float64 `json:"timestamp_unix"`

	EventType   EventType `json:"event_type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	BeforeState string    `json:"before_state"`
	AfterState  string    `json:"after_state"`

	DurationSeconds *float64 `json:"duration_seconds"`
	Resolved        bool     `json:"resolved"`
	ResolvedAt      *string  `json:"resolved_at"`
}

// QualityStatus is the outcome of one network-quality probe.
type QualityStatus string

const (
	QualitySuccess QualityStatus = "success"
	QualityError   QualityStatus = "error"
	QualityTimeout QualityStatus = "timeout"
)

// NetworkQualityResult holds latency, jitter, and loss derived from pinging
// one target.
type NetworkQualityResult struct {
	ID            int64   `json:"id,omitempty"`
	Timestamp     string  `json:"timestamp"`
	TimestampUnix float64 `json:"timestamp_unix"`

	TargetHost        string        `json:"target_host"`
	TargetName        string        `json:"target_name"`
	PingMs            *float64      `json:"ping_ms"`
	JitterMs          float64       `json:"jitter_ms"`
	PacketLossPercent float64       `json:"packet_loss_percent"`
	Status            QualityStatus `json:"status"`
	ErrorMessage      string        `json:"error_message,omitempty"`
}

// AlertType identifies a threshold alert category. At most one active alert
// exists per type.
type AlertType string

const (
	AlertSignalDrop     AlertType = "signal_drop"
	AlertSignalCritical AlertType = "signal_critical"
	AlertTowerChange    AlertType = "tower_change"
	AlertSpeedLow       AlertType = "speed_low"
	AlertPacketLoss     AlertType = "packet_loss"
	AlertHighJitter     AlertType = "high_jitter"
)

// Alert is an in-memory runtime alert. Alerts are not persisted; they live in
// the alert engine's active map and bounded history.
type Alert struct {
	ID            string         `json:"id"`
	Timestamp     string         `json:"timestamp"`
	TimestampUnix float64        `json:"timestamp_unix"`
	Type          AlertType      `json:"type"`
	Severity      Severity       `json:"severity"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	Data          map[string]any `json:"data,omitempty"`

	Acknowledged   bool    `json:"acknowledged"`
	AcknowledgedAt *string `json:"acknowledged_at,omitempty"`
	Resolved       bool    `json:"resolved"`
	ResolvedAt     *string `json:"resolved_at,omitempty"`
}
