package net

import (
	"encoding/json"
	"log"
	nethttp "net/http"
	"net/http/pprof"
	"time"

	"prismwell/server"
	"prismwell/server/internal/net/ws"
	"prismwell/server/internal/observability"
	"prismwell/server/internal/sim"
	"prismwell/server/internal/telemetry"
	"prismwell/server/logging"
)

// HTTPHandlerConfig tunes the HTTP surface around the hub.
type HTTPHandlerConfig struct {
	ClientDir     string
	Logger        telemetry.Logger
	Publisher     logging.Publisher
	Observability observability.Config
}

// NewHTTPHandler assembles the health, diagnostics, websocket, and static
// client routes.
func NewHTTPHandler(hub *server.Hub, cfg HTTPHandlerConfig) nethttp.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}

	mux := nethttp.NewServeMux()

	mux.HandleFunc("/health", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("/diagnostics", func(w nethttp.ResponseWriter, r *nethttp.Request) {
		current := hub.CurrentConfig()
		payload := struct {
			Status          string                         `json:"status"`
			ServerTime      int64                          `json:"serverTime"`
			Subscribers     []server.DiagnosticsSubscriber `json:"subscribers"`
			TickRate        int                            `json:"tickRate"`
			SimulatedMillis float64                        `json:"simulatedMillis"`
			Ticks           uint64                         `json:"ticks"`
			Config          sim.Config                     `json:"config"`
			Telemetry       server.TelemetrySnapshot       `json:"telemetry"`
		}{
			Status:          "ok",
			ServerTime:      time.Now().UnixMilli(),
			Subscribers:     hub.DiagnosticsSnapshot(),
			TickRate:        current.UpdateRate,
			SimulatedMillis: hub.SimulatedMillis(),
			Ticks:           hub.Ticks(),
			Config:          current,
			Telemetry:       hub.TelemetrySnapshot(),
		}

		data, err := json.Marshal(payload)
		if err != nil {
			httpError(w, "failed to encode", nethttp.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	})

	mux.Handle("/ws", ws.NewHandler(hub, logger, cfg.Publisher))

	if cfg.Observability.EnablePprofTrace {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	if cfg.ClientDir != "" {
		fs := nethttp.FileServer(nethttp.Dir(cfg.ClientDir))
		mux.Handle("/", fs)
	}

	return mux
}

func httpError(w nethttp.ResponseWriter, msg string, code int) {
	nethttp.Error(w, msg, code)
}
