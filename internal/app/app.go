package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	server "prismwell/server"
	servernet "prismwell/server/internal/net"
	"prismwell/server/internal/observability"
	"prismwell/server/internal/sim"
	"prismwell/server/internal/telemetry"
	"prismwell/server/logging"
	loggingSinks "prismwell/server/logging/sinks"
)

type Config struct {
	Logger        telemetry.Logger
	Observability observability.Config
}

func Run(ctx context.Context, cfg Config) error {
	// Development convenience; a missing .env file is not an error.
	_ = godotenv.Load()

	telemetryLogger := cfg.Logger
	if telemetryLogger == nil {
		telemetryLogger = telemetry.WrapLogger(log.Default())
	}

	simCfg := sim.DefaultConfig()
	if raw := os.Getenv("PRISMWELL_PARTICLES"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			simCfg.ParticleCount = value
		} else {
			telemetryLogger.Printf("invalid PRISMWELL_PARTICLES=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("PRISMWELL_UPDATE_RATE"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil {
			simCfg.UpdateRate = value
		} else {
			telemetryLogger.Printf("invalid PRISMWELL_UPDATE_RATE=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("PRISMWELL_SEED"); raw != "" {
		simCfg.Seed = raw
	}

	hubCfg := server.HubConfig{Sim: simCfg, Logger: telemetryLogger}
	if raw := os.Getenv("PRISMWELL_BROADCAST_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			hubCfg.BroadcastInterval = time.Duration(value) * time.Millisecond
		} else {
			telemetryLogger.Printf("invalid PRISMWELL_BROADCAST_MS=%q: %v", raw, err)
		}
	}
	if raw := os.Getenv("PRISMWELL_FULL_INTERVAL_MS"); raw != "" {
		if value, err := strconv.Atoi(raw); err == nil && value > 0 {
			hubCfg.FullInterval = time.Duration(value) * time.Millisecond
		} else {
			telemetryLogger.Printf("invalid PRISMWELL_FULL_INTERVAL_MS=%q: %v", raw, err)
		}
	}

	observabilityCfg := cfg.Observability
	if raw := os.Getenv("ENABLE_PPROF_TRACE"); raw != "" {
		if value, err := strconv.ParseBool(raw); err == nil {
			observabilityCfg.EnablePprofTrace = value
		} else {
			telemetryLogger.Printf("invalid ENABLE_PPROF_TRACE=%q: %v", raw, err)
		}
	}

	logConfig := logging.DefaultConfig()
	if raw := os.Getenv("PRISMWELL_LOG_SINKS"); raw != "" {
		var enabled []string
		for _, name := range strings.Split(raw, ",") {
			if trimmed := strings.TrimSpace(name); trimmed != "" {
				enabled = append(enabled, trimmed)
			}
		}
		if len(enabled) > 0 {
			logConfig.EnabledSinks = enabled
		}
	}
	if logConfig.JSON.FilePath == "" {
		logConfig.JSON.FilePath = "prismwell-events.jsonl"
	}
	if raw := os.Getenv("PRISMWELL_LOG_JSON_PATH"); raw != "" {
		logConfig.JSON.FilePath = raw
	}

	var namedSinks []logging.NamedSink
	if logConfig.HasSink(logging.SinkConsole) {
		namedSinks = append(namedSinks, logging.NamedSink{
			Name: logging.SinkConsole,
			Sink: loggingSinks.NewConsoleSink(os.Stdout, logConfig.Console),
		})
	}
	if logConfig.HasSink(logging.SinkJSON) {
		file, err := os.OpenFile(logConfig.JSON.FilePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			telemetryLogger.Printf("cannot open event log %q: %v", logConfig.JSON.FilePath, err)
		} else {
			defer file.Close()
			namedSinks = append(namedSinks, logging.NamedSink{
				Name: logging.SinkJSON,
				Sink: loggingSinks.NewJSON(file, logConfig.JSON.FlushInterval),
			})
		}
	}

	router, err := logging.NewRouter(logging.SystemClock{}, logConfig, namedSinks)
	if err != nil {
		return fmt.Errorf("failed to construct logging router: %w", err)
	}
	defer func() {
		if cerr := router.Close(ctx); cerr != nil {
			telemetryLogger.Printf("failed to close logging router: %v", cerr)
		}
	}()

	hubCfg.Publisher = router
	hub := server.NewHubWithConfig(hubCfg)
	hub.Start()
	defer hub.Stop()

	addr := os.Getenv("PRISMWELL_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	clientDir := os.Getenv("PRISMWELL_CLIENT_DIR")
	if clientDir == "" {
		resolved, err := resolveClientDir()
		if err != nil {
			telemetryLogger.Printf("static client disabled: %v", err)
		} else {
			clientDir = resolved
		}
	}

	handler := servernet.NewHTTPHandler(hub, servernet.HTTPHandlerConfig{
		ClientDir:     clientDir,
		Logger:        telemetryLogger,
		Publisher:     router,
		Observability: observabilityCfg,
	})

	srv := &http.Server{Addr: addr, Handler: handler}
	telemetryLogger.Printf("server listening on %s", srv.Addr)

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}
