// Package config handles environment-based configuration loading and the
// optional YAML config file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// EnvConfig holds all environment-variable-driven settings (not hot-updatable).
type EnvConfig struct {
	// Directories
	StateDir string

	// API
	ListenAddress string
	APIPort       int

	// Gateway polling
	GatewayHost         string
	GatewayPort         int
	PollInterval        time.Duration
	GatewayTimeout      time.Duration
	FailureThreshold    int
	RecoveryTimeout     time.Duration
	SINRDropThresholdDB float64

	// Database. The store is SQLite; DBName is the database file name under
	// StateDir. DBHost/DBPort/DBUser/DBPassword are accepted for parity with
	// server-engine deployments and are unused by the embedded engine.
	DBName     string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string

	// Batch writer
	FlushInterval  time.Duration
	InsertTimeout  time.Duration
	WriteQueueSoft int
	MaxBatchSize   int

	// Speedtest
	SpeedtestTools         []string
	SpeedtestTimeout       time.Duration
	IdleHours              []int
	BaselineLatencyMs      float64
	LightLatencyMultiplier float64
	BusyLatencyMultiplier  float64
	LatencyProbeEnabled    bool

	// Network quality
	QualityProbeSchedule string
	QualityTargets       map[string]string
	PingCount            int
	PingTimeout          time.Duration

	// Optional YAML overrides (alert policy, scheduler defaults).
	ConfigFile string
}

// LoadEnvConfig reads environment variables and returns a validated EnvConfig.
// All validation problems are collected and returned as a single error.
func LoadEnvConfig() (*EnvConfig, error) {
	cfg := &EnvConfig{}
	var errs []string

	// --- Directories ---
	cfg.StateDir = envStr("GATEVIEW_STATE_DIR", "/var/lib/gateview")

	// --- API ---
	cfg.ListenAddress = strings.TrimSpace(envStr("GATEVIEW_LISTEN_ADDRESS", "0.0.0.0"))
	cfg.APIPort = envInt("GATEVIEW_PORT", 8080, &errs)

	// --- Gateway ---
	cfg.GatewayHost = envStr("GATEWAY_HOST", "192.168.12.1")
	cfg.GatewayPort = envInt("GATEWAY_PORT", 80, &errs)
	cfg.PollInterval = time.Duration(envInt("GATEWAY_POLL_INTERVAL_MS", 200, &errs)) * time.Millisecond
	cfg.GatewayTimeout = envSeconds("GATEWAY_TIMEOUT_SECONDS", 2.0, &errs)
	cfg.FailureThreshold = envInt("GATEWAY_FAILURE_THRESHOLD", 3, &errs)
	cfg.RecoveryTimeout = envSeconds("GATEWAY_RECOVERY_TIMEOUT_SECONDS", 30.0, &errs)
	cfg.SINRDropThresholdDB = envFloat("GATEWAY_SINR_DROP_THRESHOLD_DB", 10.0, &errs)

	// --- Database ---
	cfg.DBName = envStr("DB_NAME", "gateview.db")
	cfg.DBHost = envStr("DB_HOST", "")
	cfg.DBPort = envInt("DB_PORT", 0, &errs)
	cfg.DBUser = envStr("DB_USER", "")
	cfg.DBPassword = envStr("DB_PASSWORD", "")

	// --- Batch writer ---
	cfg.FlushInterval = envDuration("GATEVIEW_FLUSH_INTERVAL", 5*time.Second, &errs)
	cfg.InsertTimeout = envDuration("GATEVIEW_INSERT_TIMEOUT", 5*time.Second, &errs)
	cfg.WriteQueueSoft = envInt("GATEVIEW_WRITE_QUEUE_LIMIT", 10000, &errs)
	cfg.MaxBatchSize = envInt("GATEVIEW_MAX_BATCH_SIZE", 2000, &errs)

	// --- Speedtest ---
	cfg.SpeedtestTools = envStringSlice("GATEVIEW_SPEEDTEST_TOOLS",
		[]string{"fast-cli", "speedtest", "speedtest-cli"}, &errs)
	cfg.SpeedtestTimeout = envDuration("GATEVIEW_SPEEDTEST_TIMEOUT", 120*time.Second, &errs)
	cfg.IdleHours = envIntSlice("GATEVIEW_IDLE_HOURS", []int{2, 3, 4, 5}, &errs)
	cfg.BaselineLatencyMs = envFloat("GATEVIEW_BASELINE_LATENCY_MS", 30.0, &errs)
	cfg.LightLatencyMultiplier = envFloat("GATEVIEW_LIGHT_LATENCY_MULTIPLIER", 1.5, &errs)
	cfg.BusyLatencyMultiplier = envFloat("GATEVIEW_BUSY_LATENCY_MULTIPLIER", 3.0, &errs)
	cfg.LatencyProbeEnabled = envBool("GATEVIEW_LATENCY_PROBE_ENABLED", true, &errs)

	// --- Network quality ---
	cfg.QualityProbeSchedule = envStr("GATEVIEW_QUALITY_PROBE_SCHEDULE", "*/5 * * * *")
	cfg.QualityTargets = envStringMap("GATEVIEW_QUALITY_TARGETS", map[string]string{
		"8.8.8.8": "Google DNS",
		"1.1.1.1": "Cloudflare DNS",
	}, &errs)
	cfg.PingCount = envInt("GATEVIEW_PING_COUNT", 20, &errs)
	cfg.PingTimeout = envDuration("GATEVIEW_PING_TIMEOUT", 5*time.Second, &errs)

	cfg.ConfigFile = envStr("GATEVIEW_CONFIG_FILE", "")

	// --- Validation ---
	if cfg.ListenAddress == "" {
		errs = append(errs, "GATEVIEW_LISTEN_ADDRESS must not be empty")
	}
	validatePort("GATEVIEW_PORT", cfg.APIPort, &errs)
	if cfg.GatewayHost == "" {
		errs = append(errs, "GATEWAY_HOST must not be empty")
	}
	validatePort("GATEWAY_PORT", cfg.GatewayPort, &errs)
	if cfg.PollInterval <= 0 {
		errs = append(errs, "GATEWAY_POLL_INTERVAL_MS must be positive")
	}
	if cfg.GatewayTimeout <= 0 {
		errs = append(errs, "GATEWAY_TIMEOUT_SECONDS must be positive")
	}
	validatePositive("GATEWAY_FAILURE_THRESHOLD", cfg.FailureThreshold, &errs)
	if cfg.RecoveryTimeout <= 0 {
		errs = append(errs, "GATEWAY_RECOVERY_TIMEOUT_SECONDS must be positive")
	}
	if cfg.SINRDropThresholdDB <= 0 {
		errs = append(errs, "GATEWAY_SINR_DROP_THRESHOLD_DB must be positive")
	}
	if cfg.DBName == "" {
		errs = append(errs, "DB_NAME must not be empty")
	}
	if cfg.DBPort != 0 {
		validatePort("DB_PORT", cfg.DBPort, &errs)
	}
	if cfg.FlushInterval <= 0 {
		errs = append(errs, "GATEVIEW_FLUSH_INTERVAL must be positive")
	}
	if cfg.InsertTimeout <= 0 {
		errs = append(errs, "GATEVIEW_INSERT_TIMEOUT must be positive")
	}
	validatePositive("GATEVIEW_WRITE_QUEUE_LIMIT", cfg.WriteQueueSoft, &errs)
	validatePositive("GATEVIEW_MAX_BATCH_SIZE", cfg.MaxBatchSize, &errs)
	if cfg.SpeedtestTimeout <= 0 {
		errs = append(errs, "GATEVIEW_SPEEDTEST_TIMEOUT must be positive")
	}
	for _, h := range cfg.IdleHours {
		if h < 0 || h > 23 {
			errs = append(errs, fmt.Sprintf("GATEVIEW_IDLE_HOURS: hour %d out of range 0-23", h))
		}
	}
	if cfg.BaselineLatencyMs <= 0 {
		errs = append(errs, "GATEVIEW_BASELINE_LATENCY_MS must be positive")
	}
	if cfg.LightLatencyMultiplier <= 1 {
		errs = append(errs, "GATEVIEW_LIGHT_LATENCY_MULTIPLIER must be greater than 1")
	}
	if cfg.BusyLatencyMultiplier <= cfg.LightLatencyMultiplier {
		errs = append(errs, "GATEVIEW_BUSY_LATENCY_MULTIPLIER must be greater than GATEVIEW_LIGHT_LATENCY_MULTIPLIER")
	}
	if _, err := cron.ParseStandard(cfg.QualityProbeSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("GATEVIEW_QUALITY_PROBE_SCHEDULE: invalid cron expression %q: %v", cfg.QualityProbeSchedule, err))
	}
	if len(cfg.QualityTargets) == 0 {
		errs = append(errs, "GATEVIEW_QUALITY_TARGETS must not be empty")
	}
	validatePositive("GATEVIEW_PING_COUNT", cfg.PingCount, &errs)
	if cfg.PingTimeout <= 0 {
		errs = append(errs, "GATEVIEW_PING_TIMEOUT must be positive")
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("config validation failed:\n  %s", strings.Join(errs, "\n  "))
	}

	return cfg, nil
}

// GatewayURL returns the poll endpoint derived from host and port.
func (c *EnvConfig) GatewayURL() string {
	return fmt.Sprintf("http://%s:%d/TMI/v1/gateway?get=all", c.GatewayHost, c.GatewayPort)
}

// --- helpers ---

func envStr(key, defaultVal string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int, errs *[]string) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid integer %q", key, v))
		return defaultVal
	}
	return n
}

func envFloat(key string, defaultVal float64, errs *[]string) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid number %q", key, v))
		return defaultVal
	}
	return f
}

// envSeconds parses a float number of seconds into a duration.
func envSeconds(key string, defaultVal float64, errs *[]string) time.Duration {
	return time.Duration(envFloat(key, defaultVal, errs) * float64(time.Second))
}

func envBool(key string, defaultVal bool, errs *[]string) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid boolean %q", key, v))
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration, errs *[]string) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid duration %q", key, v))
		return defaultVal
	}
	return d
}

func envStringSlice(key string, defaultVal []string, errs *[]string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON string array %q", key, v))
		return defaultVal
	}
	if out == nil {
		return []string{}
	}
	return out
}

func envIntSlice(key string, defaultVal []int, errs *[]string) []int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []int
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON integer array %q", key, v))
		return defaultVal
	}
	return out
}

// envStringMap parses a JSON object of host->name pairs.
func envStringMap(key string, defaultVal map[string]string, errs *[]string) map[string]string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out map[string]string
	if err := json.Unmarshal([]byte(v), &out); err != nil {
		*errs = append(*errs, fmt.Sprintf("%s: invalid JSON object %q", key, v))
		return defaultVal
	}
	return out
}

func validatePort(name string, value int, errs *[]string) {
	if value < 1 || value > 65535 {
		*errs = append(*errs, fmt.Sprintf("%s: port must be 1-65535, got %d", name, value))
	}
}

func validatePositive(name string, value int, errs *[]string) {
	if value <= 0 {
		*errs = append(*errs, fmt.Sprintf("%s: must be positive, got %d", name, value))
	}
}
