package net

import (
	"encoding/json"
	"net"
	nethttp "net/http"
	"net/http/httptest"
	"testing"
	"time"

	"prismwell/server"
	"prismwell/server/internal/observability"
	"prismwell/server/internal/sim"
	"prismwell/server/internal/telemetry"
)

type discardConn struct{}

func (discardConn) WriteMessage(messageType int, data []byte) error { return nil }
func (discardConn) SetWriteDeadline(t time.Time) error              { return nil }
func (discardConn) RemoteAddr() net.Addr                            { return nil }
func (discardConn) Close() error                                    { return nil }

func newDiagnosticsHub(t *testing.T) *server.Hub {
	t.Helper()
	cfg := sim.DefaultConfig()
	cfg.ParticleCount = sim.MinParticleCount
	return server.NewHubWithConfig(server.HubConfig{
		Sim:    cfg,
		Logger: telemetry.LoggerFunc(nil),
	})
}

func TestHTTPHealthRespondsOK(t *testing.T) {
	hub := newDiagnosticsHub(t)
	handler := NewHTTPHandler(hub, HTTPHandlerConfig{Logger: telemetry.LoggerFunc(nil)})

	req := httptest.NewRequest(nethttp.MethodGet, "/health", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != nethttp.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if body := resp.Body.String(); body != "ok" {
		t.Fatalf("expected body %q, got %q", "ok", body)
	}
}

func TestHTTPDiagnosticsReportsHubState(t *testing.T) {
	hub := newDiagnosticsHub(t)

	id, err := hub.Register(discardConn{})
	if err != nil {
		t.Fatalf("register subscriber: %v", err)
	}

	handler := NewHTTPHandler(hub, HTTPHandlerConfig{Logger: telemetry.LoggerFunc(nil)})

	req := httptest.NewRequest(nethttp.MethodGet, "/diagnostics", nil)
	resp := httptest.NewRecorder()
	handler.ServeHTTP(resp, req)

	if resp.Code != nethttp.StatusOK {
		t.Fatalf("expected status 200 OK, got %d", resp.Code)
	}
	if contentType := resp.Header().Get("Content-Type"); contentType != "application/json" {
		t.Fatalf("expected Content-Type application/json, got %q", contentType)
	}

	var payload struct {
		Status          string                         `json:"status"`
		ServerTime      int64                          `json:"serverTime"`
		Subscribers     []server.DiagnosticsSubscriber `json:"subscribers"`
		TickRate        int                            `json:"tickRate"`
		SimulatedMillis float64                        `json:"simulatedMillis"`
		Ticks           uint64                         `json:"ticks"`
		Config          sim.Config                     `json:"config"`
		Telemetry       server.TelemetrySnapshot       `json:"telemetry"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode diagnostics payload: %v", err)
	}

	if payload.Status != "ok" {
		t.Fatalf("expected status ok, got %q", payload.Status)
	}
	if payload.ServerTime == 0 {
		t.Fatalf("expected serverTime to be populated")
	}
	if len(payload.Subscribers) != 1 {
		t.Fatalf("expected one subscriber, got %d", len(payload.Subscribers))
	}
	if payload.Subscribers[0].ID != id {
		t.Fatalf("expected subscriber id %d, got %d", id, payload.Subscribers[0].ID)
	}
	if payload.Subscribers[0].SessionID == "" {
		t.Fatalf("expected subscriber session id to be populated")
	}
	if payload.TickRate != 60 {
		t.Fatalf("expected tick rate 60, got %d", payload.TickRate)
	}
	if payload.Config.ParticleCount != sim.MinParticleCount {
		t.Fatalf("expected particle count %d, got %d", sim.MinParticleCount, payload.Config.ParticleCount)
	}
	if payload.Ticks != 0 {
		t.Fatalf("expected zero ticks on an idle hub, got %d", payload.Ticks)
	}
}

func TestHTTPPprofRoutesGatedByObservability(t *testing.T) {
	hub := newDiagnosticsHub(t)

	disabled := NewHTTPHandler(hub, HTTPHandlerConfig{Logger: telemetry.LoggerFunc(nil)})
	req := httptest.NewRequest(nethttp.MethodGet, "/debug/pprof/", nil)
	resp := httptest.NewRecorder()
	disabled.ServeHTTP(resp, req)
	if resp.Code != nethttp.StatusNotFound {
		t.Fatalf("expected pprof index to 404 when disabled, got %d", resp.Code)
	}

	enabled := NewHTTPHandler(hub, HTTPHandlerConfig{
		Logger:        telemetry.LoggerFunc(nil),
		Observability: observability.Config{EnablePprofTrace: true},
	})
	resp = httptest.NewRecorder()
	enabled.ServeHTTP(resp, httptest.NewRequest(nethttp.MethodGet, "/debug/pprof/", nil))
	if resp.Code != nethttp.StatusOK {
		t.Fatalf("expected pprof index to respond when enabled, got %d", resp.Code)
	}
}
