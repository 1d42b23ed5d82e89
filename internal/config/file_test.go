package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileConfigEmptyPath(t *testing.T) {
	cfg, err := LoadFileConfig("")
	if err != nil {
		t.Fatalf("empty path: %v", err)
	}
	if cfg.Alerts.Enabled != nil || cfg.Scheduler.IntervalMinutes != nil {
		t.Error("empty path must yield a config with every override unset")
	}
}

func TestLoadFileConfigMissingFile(t *testing.T) {
	if _, err := LoadFileConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file should error")
	}
}

func TestLoadFileConfigPartialOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateview.yaml")
	doc := `alerts:
  speed_low_threshold_mbps: 25
  notify_on_warning: false
scheduler:
  enabled: true
  interval_minutes: 30
  tools_to_run: [fast-cli, speedtest]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	cfg, err := LoadFileConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Alerts.SpeedLowThresholdMbps == nil || *cfg.Alerts.SpeedLowThresholdMbps != 25 {
		t.Errorf("speed threshold = %v", cfg.Alerts.SpeedLowThresholdMbps)
	}
	if cfg.Alerts.NotifyOnWarning == nil || *cfg.Alerts.NotifyOnWarning {
		t.Errorf("notify_on_warning = %v", cfg.Alerts.NotifyOnWarning)
	}
	// Keys absent from the file stay nil so defaults survive the merge.
	if cfg.Alerts.SINRCriticalDb != nil {
		t.Error("unset alert key must stay nil")
	}
	if cfg.Scheduler.Enabled == nil || !*cfg.Scheduler.Enabled {
		t.Errorf("scheduler enabled = %v", cfg.Scheduler.Enabled)
	}
	if got := cfg.Scheduler.ToolsToRun; len(got) != 2 || got[0] != "fast-cli" {
		t.Errorf("tools_to_run = %v", got)
	}
	if cfg.Scheduler.TimeWindowStart != nil {
		t.Error("unset scheduler key must stay nil")
	}
}

func TestLoadFileConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("alerts: [unclosed"), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	if _, err := LoadFileConfig(path); err == nil {
		t.Fatal("malformed YAML should error")
	}
}
