package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gateview/gateview/internal/alert"
	"github.com/gateview/gateview/internal/api"
	"github.com/gateview/gateview/internal/buildinfo"
	"github.com/gateview/gateview/internal/config"
	"github.com/gateview/gateview/internal/disruption"
	"github.com/gateview/gateview/internal/gateway"
	"github.com/gateview/gateview/internal/netquality"
	"github.com/gateview/gateview/internal/sched"
	"github.com/gateview/gateview/internal/speedtest"
	"github.com/gateview/gateview/internal/store"
)

func main() {
	// 1. Load and validate environment config
	envCfg, err := config.LoadEnvConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	fileCfg, err := config.LoadFileConfig(envCfg.ConfigFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}

	log.Printf("gateview %s (%s, built %s)", buildinfo.Version, buildinfo.GitCommit, buildinfo.BuildTime)

	// 2. Storage
	repo, err := store.NewRepo(filepath.Join(envCfg.StateDir, envCfg.DBName))
	if err != nil {
		log.Fatalf("opening store: %v", err)
	}

	// 3. Gateway poller with batch writer and outage bookkeeping
	poller := gateway.NewPoller(gateway.Options{
		URL:              envCfg.GatewayURL(),
		PollInterval:     envCfg.PollInterval,
		Timeout:          envCfg.GatewayTimeout,
		FailureThreshold: envCfg.FailureThreshold,
		RecoveryTimeout:  envCfg.RecoveryTimeout,
		SINRDropDB:       envCfg.SINRDropThresholdDB,
		QueueSoft:        envCfg.WriteQueueSoft,
		MaxBatch:         envCfg.MaxBatchSize,
		FlushInterval:    envCfg.FlushInterval,
		InsertTimeout:    envCfg.InsertTimeout,
	}, repo, repo)

	// 4. Disruption detector on the poller's live feed
	detOpts := disruption.DefaultOptions()
	detOpts.SINRDrop5GDb = envCfg.SINRDropThresholdDB
	detOpts.SINRDrop4GDb = envCfg.SINRDropThresholdDB
	detector := disruption.NewDetector(detOpts, repo)

	// 5. Alert engine
	policy := alert.DefaultPolicy()
	policy.ApplyFileOverrides(fileCfg.Alerts)
	alerts := alert.NewEngine(policy, repo)

	// 6. Speedtest orchestrator. The pre-test latency probe pings through the
	// same parser the quality prober uses.
	probe := func(ctx context.Context) (float64, error) {
		stats, err := netquality.Ping(ctx, netquality.ExecRunner, "8.8.8.8", 3, 2)
		if err != nil {
			return 0, err
		}
		if len(stats.RTTs) == 0 {
			return 0, errors.New("latency probe: no echoes returned")
		}
		return stats.AvgRTT(), nil
	}
	orch := speedtest.NewOrchestrator(speedtest.Options{
		Preference:          envCfg.SpeedtestTools,
		Timeout:             envCfg.SpeedtestTimeout,
		IdleHours:           envCfg.IdleHours,
		BaselineLatencyMs:   envCfg.BaselineLatencyMs,
		LightMultiplier:     envCfg.LightLatencyMultiplier,
		BusyMultiplier:      envCfg.BusyLatencyMultiplier,
		LatencyProbeEnabled: envCfg.LatencyProbeEnabled,
	}, repo, probe)

	// 7. Speedtest scheduler. The loop always runs; disabled cycles no-op, so
	// an API PATCH enabling it takes effect without a restart.
	schedCfg := sched.DefaultConfig()
	schedCfg.ApplyFileOverrides(fileCfg.Scheduler)
	if err := schedCfg.Validate(); err != nil {
		log.Fatalf("scheduler config: %v", err)
	}
	scheduler := sched.NewScheduler(schedCfg, orch)

	// 8. Background network quality prober
	prober := netquality.NewProber(netquality.Options{
		Schedule:    envCfg.QualityProbeSchedule,
		Targets:     envCfg.QualityTargets,
		PingCount:   envCfg.PingCount,
		PingTimeout: envCfg.PingTimeout,
	}, repo)

	// 9. Start everything
	poller.StartPolling()
	detector.Start(poller)
	alerts.Start()
	if err := scheduler.Start(); err != nil {
		log.Fatalf("starting scheduler: %v", err)
	}
	if err := prober.Start(); err != nil {
		log.Fatalf("starting quality prober: %v", err)
	}

	srv := api.NewServer(envCfg.ListenAddress, envCfg.APIPort, api.Deps{
		Poller:    poller,
		Repo:      repo,
		Speedtest: orch,
		Scheduler: scheduler,
		Alerts:    alerts,
	})
	go func() {
		log.Printf("API server listening on %s:%d", envCfg.ListenAddress, envCfg.APIPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("API server error: %v", err)
		}
	}()

	// 10. Graceful shutdown, reverse start order
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Printf("Received signal %s, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	prober.Stop()
	if err := scheduler.Stop(); err != nil && !errors.Is(err, sched.ErrNotRunning) {
		log.Printf("Scheduler stop error: %v", err)
	}
	alerts.Stop()
	detector.Stop()
	poller.StopPolling()
	if err := repo.Close(); err != nil {
		log.Printf("Store close error: %v", err)
	}
	log.Println("Shutdown complete")
}
