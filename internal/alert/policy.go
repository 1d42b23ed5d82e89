package alert

import "github.com/gateview/gateview/internal/config"

// Policy holds the threshold configuration the engine evaluates against.
type Policy struct {
	Enabled bool `json:"enabled"`

	SINRCriticalDb  float64 `json:"sinr_critical_db"`
	SINRWarningDb   float64 `json:"sinr_warning_db"`
	RSRPCriticalDbm float64 `json:"rsrp_critical_dbm"`
	RSRPWarningDbm  float64 `json:"rsrp_warning_dbm"`
	RSRQCriticalDb  float64 `json:"rsrq_critical_db"`
	RSRQWarningDb   float64 `json:"rsrq_warning_db"`

	SpeedLowThresholdMbps  float64 `json:"speed_low_threshold_mbps"`
	PacketLossThresholdPct float64 `json:"packet_loss_threshold_percent"`
	JitterThresholdMs      float64 `json:"jitter_threshold_ms"`
	SignalDropThresholdDb  float64 `json:"signal_drop_threshold_db"`

	NotifyOnWarning  bool `json:"notify_on_warning"`
	NotifyOnCritical bool `json:"notify_on_critical"`
	CooldownMinutes  int  `json:"cooldown_minutes"`
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:                true,
		SINRCriticalDb:         -5,
		SINRWarningDb:          0,
		RSRPCriticalDbm:        -110,
		RSRPWarningDbm:         -100,
		RSRQCriticalDb:         -19,
		RSRQWarningDb:          -15,
		SpeedLowThresholdMbps:  10,
		PacketLossThresholdPct: 5,
		JitterThresholdMs:      50,
		SignalDropThresholdDb:  10,
		NotifyOnWarning:        true,
		NotifyOnCritical:       true,
		CooldownMinutes:        5,
	}
}

// ApplyFileOverrides merges the optional YAML overrides into p.
func (p *Policy) ApplyFileOverrides(f config.AlertPolicyFile) {
	if f.Enabled != nil {
		p.Enabled = *f.Enabled
	}
	if f.SINRCriticalDb != nil {
		p.SINRCriticalDb = *f.SINRCriticalDb
	}
	if f.SINRWarningDb != nil {
		p.SINRWarningDb = *f.SINRWarningDb
	}
	if f.RSRPCriticalDbm != nil {
		p.RSRPCriticalDbm = *f.RSRPCriticalDbm
	}
	if f.RSRPWarningDbm != nil {
		p.RSRPWarningDbm = *f.RSRPWarningDbm
	}
	if f.RSRQCriticalDb != nil {
		p.RSRQCriticalDb = *f.RSRQCriticalDb
	}
	if f.RSRQWarningDb != nil {
		p.RSRQWarningDb = *f.RSRQWarningDb
	}
	if f.SpeedLowThresholdMbps != nil {
		p.SpeedLowThresholdMbps = *f.SpeedLowThresholdMbps
	}
	if f.PacketLossThresholdPct != nil {
		p.PacketLossThresholdPct = *f.PacketLossThresholdPct
	}
	if f.JitterThresholdMs != nil {
		p.JitterThresholdMs = *f.JitterThresholdMs
	}
	if f.SignalDropThresholdDb != nil {
		p.SignalDropThresholdDb = *f.SignalDropThresholdDb
	}
	if f.NotifyOnWarning != nil {
		p.NotifyOnWarning = *f.NotifyOnWarning
	}
	if f.NotifyOnCritical != nil {
		p.NotifyOnCritical = *f.NotifyOnCritical
	}
	if f.CooldownMinutes != nil {
		p.CooldownMinutes = *f.CooldownMinutes
	}
}
