package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/monjeychiang/SABIT-sub000/internal/config"
	"github.com/monjeychiang/SABIT-sub000/internal/connection"
	"github.com/monjeychiang/SABIT-sub000/internal/dispatch"
	"github.com/monjeychiang/SABIT-sub000/internal/latency"
	"github.com/monjeychiang/SABIT-sub000/internal/runtime"
	"github.com/monjeychiang/SABIT-sub000/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/rtcore.local.yaml", "path to config file")
	token := flag.String("token", "", "session token (falls back to SABIT_SESSION_TOKEN)")
	healthPort := flag.Int("health-port", 8080, "port for the health endpoint")
	latencyTest := flag.Bool("latency-test", false, "run one extended latency test after login")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	logger.Info("starting rtcore",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"channels", len(cfg.Channels),
		"ping_url", cfg.Probe.PingURL,
	)

	sessionToken := *token
	if sessionToken == "" {
		sessionToken = os.Getenv("SABIT_SESSION_TOKEN")
	}
	if sessionToken == "" {
		logger.Error("no session token: pass -token or set SABIT_SESSION_TOKEN")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	rt := runtime.New(cfg, logger)
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		rt.Close(shutdownCtx)
	}()

	session, err := rt.Login(ctx, sessionToken)
	if err != nil {
		logger.Error("login failed", "error", err)
		os.Exit(1)
	}
	logger.Info("logged in", "session_id", session.ID)

	// Fan inbound messages out to typed buffers; the browser-facing layer
	// consumes those.
	disp := dispatch.New(dispatch.DefaultConfig(), rt.Connections().Messages(), logger)
	if err := disp.Start(ctx); err != nil {
		logger.Error("failed to start dispatcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		disp.Stop(shutdownCtx)
	}()

	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *healthPort),
		Handler: createHealthHandler(rt, disp),
	}
	go func() {
		logger.Info("starting health server", "port", *healthPort)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if *latencyTest {
		res, err := rt.Probe().MeasureAverage(ctx, cfg.Probe.ExtendedDuration, latency.DefaultInterval,
			func(s latency.Sample) {
				logger.Info("latency sample", "rtt_ms", s.Millis(), "tier", s.Tier)
			})
		if err != nil {
			logger.Error("extended latency test failed", "error", err)
		} else {
			logger.Info("extended latency test result",
				"average_ms", res.AverageMillis,
				"tier", res.Tier,
				"samples", res.Samples,
				"failures", res.Failures,
			)
		}
	}

	logger.Info("rtcore running",
		"health_url", fmt.Sprintf("http://localhost:%d/health", *healthPort),
	)

	// Periodic status log until shutdown.
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down...")

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			healthServer.Shutdown(shutdownCtx)
			shutdownCancel()

			logger.Info("rtcore stopped")
			return

		case <-ticker.C:
			status := rt.Status()
			connected := 0
			for _, ch := range status.Channels {
				if ch.State == connection.StateConnected {
					connected++
				}
			}
			logger.Info("channel status",
				"connected", connected,
				"total", len(status.Channels),
				"all_connected", status.AllConnected,
			)
		}
	}
}

// createHealthHandler creates the HTTP handler for health checks.
func createHealthHandler(rt *runtime.Runtime, disp dispatch.Dispatcher) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		status := rt.Status()

		health := struct {
			Status   string         `json:"status"`
			Channels map[string]any `json:"channels"`
			Latency  map[string]any `json:"latency"`
			Dispatch dispatch.Stats `json:"dispatch"`
		}{
			Status:   "healthy",
			Channels: make(map[string]any),
			Latency:  make(map[string]any),
			Dispatch: disp.Stats(),
		}

		for _, ch := range status.Channels {
			health.Channels[ch.ID] = map[string]any{
				"state":   string(ch.State),
				"retries": ch.RetryCount,
			}
		}
		switch {
		case status.NoneConnected:
			health.Status = "unhealthy"
		case !status.AllConnected:
			health.Status = "degraded"
		}

		if sample, ok := rt.Probe().Latest(); ok {
			health.Latency["rtt_ms"] = sample.Millis()
			health.Latency["tier"] = string(sample.Tier)
			health.Latency["failed"] = sample.Failed()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(health)
	})

	return mux
}
