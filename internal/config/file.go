package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// FileConfig is the optional YAML config file pointed at by
// GATEVIEW_CONFIG_FILE. Absent keys keep built-in defaults; pointer fields
// distinguish "unset" from zero values.
type FileConfig struct {
	Alerts    AlertPolicyFile `yaml:"alerts"`
	Scheduler SchedulerFile   `yaml:"scheduler"`
}

// AlertPolicyFile overrides alert engine thresholds.
type AlertPolicyFile struct {
	Enabled                *bool    `yaml:"enabled"`
	SINRCriticalDb         *float64 `yaml:"sinr_critical_db"`
	SINRWarningDb          *float64 `yaml:"sinr_warning_db"`
	RSRPCriticalDbm        *float64 `yaml:"rsrp_critical_dbm"`
	RSRPWarningDbm         *float64 `yaml:"rsrp_warning_dbm"`
	RSRQCriticalDb         *float64 `yaml:"rsrq_critical_db"`
	RSRQWarningDb          *float64 `yaml:"rsrq_warning_db"`
	SpeedLowThresholdMbps  *float64 `yaml:"speed_low_threshold_mbps"`
	PacketLossThresholdPct *float64 `yaml:"packet_loss_threshold_percent"`
	JitterThresholdMs      *float64 `yaml:"jitter_threshold_ms"`
	SignalDropThresholdDb  *float64 `yaml:"signal_drop_threshold_db"`
	NotifyOnWarning        *bool    `yaml:"notify_on_warning"`
	NotifyOnCritical       *bool    `yaml:"notify_on_critical"`
	CooldownMinutes        *int     `yaml:"cooldown_minutes"`
}

// SchedulerFile overrides speedtest scheduler defaults.
type SchedulerFile struct {
	Enabled                  *bool    `yaml:"enabled"`
	IntervalMinutes          *int     `yaml:"interval_minutes"`
	TimeWindowStart          *int     `yaml:"time_window_start"`
	TimeWindowEnd            *int     `yaml:"time_window_end"`
	RunOnWeekends            *bool    `yaml:"run_on_weekends"`
	ToolsToRun               []string `yaml:"tools_to_run"`
	DelayBetweenToolsSeconds *int     `yaml:"delay_between_tools_seconds"`
}

// LoadFileConfig reads and parses the YAML config file at path. A missing
// path returns an empty config, not an error.
func LoadFileConfig(path string) (*FileConfig, error) {
	if path == "" {
		return &FileConfig{}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file %s: %w", path, err)
	}
	cfg := &FileConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return cfg, nil
}
