package config

import (
	"strings"
	"testing"
	"time"
)

// setEnvs sets multiple env vars for the duration of the test.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func TestLoadEnvConfig_Defaults(t *testing.T) {
	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Directories
	assertEqual(t, "StateDir", cfg.StateDir, "/var/lib/gateview")

	// API
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "0.0.0.0")
	assertEqual(t, "APIPort", cfg.APIPort, 8080)

	// Gateway polling
	assertEqual(t, "GatewayHost", cfg.GatewayHost, "192.168.12.1")
	assertEqual(t, "GatewayPort", cfg.GatewayPort, 80)
	assertEqual(t, "PollInterval", cfg.PollInterval, 200*time.Millisecond)
	assertEqual(t, "GatewayTimeout", cfg.GatewayTimeout, 2*time.Second)
	assertEqual(t, "FailureThreshold", cfg.FailureThreshold, 3)
	assertEqual(t, "RecoveryTimeout", cfg.RecoveryTimeout, 30*time.Second)
	assertEqual(t, "SINRDropThresholdDB", cfg.SINRDropThresholdDB, 10.0)

	// Database
	assertEqual(t, "DBName", cfg.DBName, "gateview.db")
	assertEqual(t, "DBHost", cfg.DBHost, "")
	assertEqual(t, "DBPort", cfg.DBPort, 0)

	// Batch writer
	assertEqual(t, "FlushInterval", cfg.FlushInterval, 5*time.Second)
	assertEqual(t, "InsertTimeout", cfg.InsertTimeout, 5*time.Second)
	assertEqual(t, "WriteQueueSoft", cfg.WriteQueueSoft, 10000)
	assertEqual(t, "MaxBatchSize", cfg.MaxBatchSize, 2000)

	// Speedtest
	assertEqual(t, "len(SpeedtestTools)", len(cfg.SpeedtestTools), 3)
	assertEqual(t, "SpeedtestTools[0]", cfg.SpeedtestTools[0], "fast-cli")
	assertEqual(t, "SpeedtestTimeout", cfg.SpeedtestTimeout, 120*time.Second)
	assertEqual(t, "len(IdleHours)", len(cfg.IdleHours), 4)
	assertEqual(t, "IdleHours[0]", cfg.IdleHours[0], 2)
	assertEqual(t, "BaselineLatencyMs", cfg.BaselineLatencyMs, 30.0)
	assertEqual(t, "LightLatencyMultiplier", cfg.LightLatencyMultiplier, 1.5)
	assertEqual(t, "BusyLatencyMultiplier", cfg.BusyLatencyMultiplier, 3.0)
	assertEqual(t, "LatencyProbeEnabled", cfg.LatencyProbeEnabled, true)

	// Network quality
	assertEqual(t, "QualityProbeSchedule", cfg.QualityProbeSchedule, "*/5 * * * *")
	assertEqual(t, "len(QualityTargets)", len(cfg.QualityTargets), 2)
	assertEqual(t, "QualityTargets[8.8.8.8]", cfg.QualityTargets["8.8.8.8"], "Google DNS")
	assertEqual(t, "PingCount", cfg.PingCount, 20)
	assertEqual(t, "PingTimeout", cfg.PingTimeout, 5*time.Second)

	assertEqual(t, "ConfigFile", cfg.ConfigFile, "")
}

func TestLoadEnvConfig_EnvOverrides(t *testing.T) {
	setEnvs(t, map[string]string{
		"GATEVIEW_STATE_DIR":                "/tmp/gateview",
		"GATEVIEW_LISTEN_ADDRESS":           "127.0.0.1",
		"GATEVIEW_PORT":                     "9090",
		"GATEWAY_HOST":                      "10.0.0.1",
		"GATEWAY_PORT":                      "8081",
		"GATEWAY_POLL_INTERVAL_MS":          "2000",
		"GATEWAY_TIMEOUT_SECONDS":           "1.5",
		"GATEWAY_FAILURE_THRESHOLD":         "5",
		"GATEWAY_RECOVERY_TIMEOUT_SECONDS":  "60",
		"GATEWAY_SINR_DROP_THRESHOLD_DB":    "8",
		"DB_NAME":                           "monitor.db",
		"GATEVIEW_FLUSH_INTERVAL":           "10s",
		"GATEVIEW_INSERT_TIMEOUT":           "3s",
		"GATEVIEW_WRITE_QUEUE_LIMIT":        "5000",
		"GATEVIEW_MAX_BATCH_SIZE":           "500",
		"GATEVIEW_SPEEDTEST_TOOLS":          `["speedtest","fast-cli"]`,
		"GATEVIEW_SPEEDTEST_TIMEOUT":        "3m",
		"GATEVIEW_IDLE_HOURS":               `[3,4]`,
		"GATEVIEW_BASELINE_LATENCY_MS":      "25",
		"GATEVIEW_LIGHT_LATENCY_MULTIPLIER": "2",
		"GATEVIEW_BUSY_LATENCY_MULTIPLIER":  "4",
		"GATEVIEW_LATENCY_PROBE_ENABLED":    "false",
		"GATEVIEW_QUALITY_PROBE_SCHEDULE":   "*/10 * * * *",
		"GATEVIEW_QUALITY_TARGETS":          `{"9.9.9.9":"Quad9"}`,
		"GATEVIEW_PING_COUNT":               "10",
		"GATEVIEW_PING_TIMEOUT":             "2s",
		"GATEVIEW_CONFIG_FILE":              "/etc/gateview.yaml",
	})

	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	assertEqual(t, "StateDir", cfg.StateDir, "/tmp/gateview")
	assertEqual(t, "ListenAddress", cfg.ListenAddress, "127.0.0.1")
	assertEqual(t, "APIPort", cfg.APIPort, 9090)
	assertEqual(t, "GatewayHost", cfg.GatewayHost, "10.0.0.1")
	assertEqual(t, "GatewayPort", cfg.GatewayPort, 8081)
	assertEqual(t, "PollInterval", cfg.PollInterval, 2*time.Second)
	assertEqual(t, "GatewayTimeout", cfg.GatewayTimeout, 1500*time.Millisecond)
	assertEqual(t, "FailureThreshold", cfg.FailureThreshold, 5)
	assertEqual(t, "RecoveryTimeout", cfg.RecoveryTimeout, time.Minute)
	assertEqual(t, "SINRDropThresholdDB", cfg.SINRDropThresholdDB, 8.0)
	assertEqual(t, "DBName", cfg.DBName, "monitor.db")
	assertEqual(t, "FlushInterval", cfg.FlushInterval, 10*time.Second)
	assertEqual(t, "InsertTimeout", cfg.InsertTimeout, 3*time.Second)
	assertEqual(t, "WriteQueueSoft", cfg.WriteQueueSoft, 5000)
	assertEqual(t, "MaxBatchSize", cfg.MaxBatchSize, 500)
	assertEqual(t, "len(SpeedtestTools)", len(cfg.SpeedtestTools), 2)
	assertEqual(t, "SpeedtestTools[0]", cfg.SpeedtestTools[0], "speedtest")
	assertEqual(t, "SpeedtestTimeout", cfg.SpeedtestTimeout, 3*time.Minute)
	assertEqual(t, "len(IdleHours)", len(cfg.IdleHours), 2)
	assertEqual(t, "IdleHours[0]", cfg.IdleHours[0], 3)
	assertEqual(t, "BaselineLatencyMs", cfg.BaselineLatencyMs, 25.0)
	assertEqual(t, "LightLatencyMultiplier", cfg.LightLatencyMultiplier, 2.0)
	assertEqual(t, "BusyLatencyMultiplier", cfg.BusyLatencyMultiplier, 4.0)
	assertEqual(t, "LatencyProbeEnabled", cfg.LatencyProbeEnabled, false)
	assertEqual(t, "QualityProbeSchedule", cfg.QualityProbeSchedule, "*/10 * * * *")
	assertEqual(t, "len(QualityTargets)", len(cfg.QualityTargets), 1)
	assertEqual(t, "QualityTargets[9.9.9.9]", cfg.QualityTargets["9.9.9.9"], "Quad9")
	assertEqual(t, "PingCount", cfg.PingCount, 10)
	assertEqual(t, "PingTimeout", cfg.PingTimeout, 2*time.Second)
	assertEqual(t, "ConfigFile", cfg.ConfigFile, "/etc/gateview.yaml")
}

func TestLoadEnvConfig_GatewayURL(t *testing.T) {
	cfg, err := LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "GatewayURL", cfg.GatewayURL(), "http://192.168.12.1:80/TMI/v1/gateway?get=all")

	setEnvs(t, map[string]string{
		"GATEWAY_HOST": "10.1.2.3",
		"GATEWAY_PORT": "8080",
	})
	cfg, err = LoadEnvConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertEqual(t, "GatewayURL", cfg.GatewayURL(), "http://10.1.2.3:8080/TMI/v1/gateway?get=all")
}

func TestLoadEnvConfig_ValidationErrors(t *testing.T) {
	cases := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"blank listen address", "GATEVIEW_LISTEN_ADDRESS", "  ", "GATEVIEW_LISTEN_ADDRESS must not be empty"},
		{"api port too large", "GATEVIEW_PORT", "70000", "GATEVIEW_PORT: port must be 1-65535, got 70000"},
		{"api port zero", "GATEVIEW_PORT", "0", "GATEVIEW_PORT: port must be 1-65535, got 0"},
		{"empty gateway host", "GATEWAY_HOST", "", "GATEWAY_HOST must not be empty"},
		{"negative gateway port", "GATEWAY_PORT", "-1", "GATEWAY_PORT: port must be 1-65535, got -1"},
		{"zero poll interval", "GATEWAY_POLL_INTERVAL_MS", "0", "GATEWAY_POLL_INTERVAL_MS must be positive"},
		{"negative poll interval", "GATEWAY_POLL_INTERVAL_MS", "-200", "GATEWAY_POLL_INTERVAL_MS must be positive"},
		{"non-numeric poll interval", "GATEWAY_POLL_INTERVAL_MS", "fast", `GATEWAY_POLL_INTERVAL_MS: invalid integer "fast"`},
		{"zero gateway timeout", "GATEWAY_TIMEOUT_SECONDS", "0", "GATEWAY_TIMEOUT_SECONDS must be positive"},
		{"zero failure threshold", "GATEWAY_FAILURE_THRESHOLD", "0", "GATEWAY_FAILURE_THRESHOLD: must be positive, got 0"},
		{"negative recovery timeout", "GATEWAY_RECOVERY_TIMEOUT_SECONDS", "-1", "GATEWAY_RECOVERY_TIMEOUT_SECONDS must be positive"},
		{"zero sinr threshold", "GATEWAY_SINR_DROP_THRESHOLD_DB", "0", "GATEWAY_SINR_DROP_THRESHOLD_DB must be positive"},
		{"empty db name", "DB_NAME", "", "DB_NAME must not be empty"},
		{"db port too large", "DB_PORT", "99999", "DB_PORT: port must be 1-65535, got 99999"},
		{"invalid flush interval", "GATEVIEW_FLUSH_INTERVAL", "soon", `GATEVIEW_FLUSH_INTERVAL: invalid duration "soon"`},
		{"zero queue limit", "GATEVIEW_WRITE_QUEUE_LIMIT", "0", "GATEVIEW_WRITE_QUEUE_LIMIT: must be positive, got 0"},
		{"negative batch size", "GATEVIEW_MAX_BATCH_SIZE", "-5", "GATEVIEW_MAX_BATCH_SIZE: must be positive, got -5"},
		{"malformed tools list", "GATEVIEW_SPEEDTEST_TOOLS", "fast-cli", "GATEVIEW_SPEEDTEST_TOOLS: invalid JSON string array"},
		{"idle hour out of range", "GATEVIEW_IDLE_HOURS", "[2,24]", "GATEVIEW_IDLE_HOURS: hour 24 out of range 0-23"},
		{"zero baseline latency", "GATEVIEW_BASELINE_LATENCY_MS", "0", "GATEVIEW_BASELINE_LATENCY_MS must be positive"},
		{"light multiplier not above 1", "GATEVIEW_LIGHT_LATENCY_MULTIPLIER", "1", "GATEVIEW_LIGHT_LATENCY_MULTIPLIER must be greater than 1"},
		{"busy multiplier below light", "GATEVIEW_BUSY_LATENCY_MULTIPLIER", "1.2", "GATEVIEW_BUSY_LATENCY_MULTIPLIER must be greater than GATEVIEW_LIGHT_LATENCY_MULTIPLIER"},
		{"invalid cron schedule", "GATEVIEW_QUALITY_PROBE_SCHEDULE", "every 5 minutes", "GATEVIEW_QUALITY_PROBE_SCHEDULE: invalid cron expression"},
		{"empty targets", "GATEVIEW_QUALITY_TARGETS", "{}", "GATEVIEW_QUALITY_TARGETS must not be empty"},
		{"malformed targets", "GATEVIEW_QUALITY_TARGETS", "8.8.8.8", "GATEVIEW_QUALITY_TARGETS: invalid JSON object"},
		{"zero ping count", "GATEVIEW_PING_COUNT", "0", "GATEVIEW_PING_COUNT: must be positive, got 0"},
		{"negative ping timeout", "GATEVIEW_PING_TIMEOUT", "-2s", "GATEVIEW_PING_TIMEOUT must be positive"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Setenv(c.key, c.value)
			_, err := LoadEnvConfig()
			if err == nil {
				t.Fatalf("expected error for %s=%q", c.key, c.value)
			}
			assertContains(t, err.Error(), c.wantErr)
		})
	}
}

func TestLoadEnvConfig_CollectsAllErrors(t *testing.T) {
	setEnvs(t, map[string]string{
		"GATEVIEW_PORT":            "0",
		"GATEWAY_POLL_INTERVAL_MS": "0",
		"DB_NAME":                  "",
	})

	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	msg := err.Error()
	assertContains(t, msg, "config validation failed")
	assertContains(t, msg, "GATEVIEW_PORT: port must be 1-65535")
	assertContains(t, msg, "GATEWAY_POLL_INTERVAL_MS must be positive")
	assertContains(t, msg, "DB_NAME must not be empty")
}

func TestLoadEnvConfig_InvalidIntegerKeepsDefault(t *testing.T) {
	// A malformed integer is reported and the default substituted, so later
	// range checks do not also fire off a zero value.
	t.Setenv("GATEWAY_FAILURE_THRESHOLD", "many")
	_, err := LoadEnvConfig()
	if err == nil {
		t.Fatal("expected error")
	}
	assertContains(t, err.Error(), `GATEWAY_FAILURE_THRESHOLD: invalid integer "many"`)
	if strings.Contains(err.Error(), "GATEWAY_FAILURE_THRESHOLD: must be positive") {
		t.Error("default was not applied after the parse failure")
	}
}

func assertEqual[T comparable](t *testing.T, name string, got, want T) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %v, want %v", name, got, want)
	}
}

func assertContains(t *testing.T, s, substr string) {
	t.Helper()
	if !strings.Contains(s, substr) {
		t.Errorf("%q does not contain %q", s, substr)
	}
}
