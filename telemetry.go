package server

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"prismwell/server/internal/sim"
)

type telemetryCounters struct {
	bytesSent          atomic.Uint64
	framesSent         atomic.Uint64
	fullFrames         atomic.Uint64
	deltaFrames        atomic.Uint64
	lastBroadcastBytes atomic.Uint64
	stepDurationMicros atomic.Int64
	droppedSubscribers atomic.Uint64
	particlesRespawned atomic.Uint64
	particlesReflected atomic.Uint64
	fieldParticles     atomic.Uint64
	debug              bool
}

// TelemetrySnapshot is the point-in-time counter block served by the
// diagnostics endpoint.
type TelemetrySnapshot struct {
	BytesSent          uint64 `json:"bytesSent"`
	FramesSent         uint64 `json:"framesSent"`
	FullFrames         uint64 `json:"fullFrames"`
	DeltaFrames        uint64 `json:"deltaFrames"`
	LastBroadcastBytes uint64 `json:"lastBroadcastBytes"`
	StepDurationMicros int64  `json:"stepDurationMicros"`
	DroppedSubscribers uint64 `json:"droppedSubscribers"`
	ParticlesRespawned uint64 `json:"particlesRespawned"`
	ParticlesReflected uint64 `json:"particlesReflected"`
	FieldParticles     uint64 `json:"fieldParticles"`
}

func newTelemetryCounters() *telemetryCounters {
	t := &telemetryCounters{}
	if os.Getenv("DEBUG_TELEMETRY") == "1" {
		t.debug = true
	}
	return t
}

func (t *telemetryCounters) RecordBroadcast(bytes int, full bool) {
	if bytes < 0 {
		bytes = 0
	}
	t.bytesSent.Add(uint64(bytes))
	t.framesSent.Add(1)
	t.lastBroadcastBytes.Store(uint64(bytes))
	if full {
		t.fullFrames.Add(1)
	} else {
		t.deltaFrames.Add(1)
	}
}

func (t *telemetryCounters) RecordStepDuration(duration time.Duration) {
	micros := duration.Microseconds()
	if micros < 0 {
		micros = 0
	}
	t.stepDurationMicros.Store(micros)
	if t.debug {
		fmt.Printf(
			"[telemetry] step=%dus lastBytes=%d totalBytes=%d frames=%d\n",
			micros,
			t.lastBroadcastBytes.Load(),
			t.bytesSent.Load(),
			t.framesSent.Load(),
		)
	}
}

func (t *telemetryCounters) IncrementDroppedSubscriber() {
	t.droppedSubscribers.Add(1)
}

func (t *telemetryCounters) DebugEnabled() bool {
	return t.debug
}

// Add implements telemetry.Metrics for counters recorded inside the field.
func (t *telemetryCounters) Add(key string, delta uint64) {
	switch key {
	case sim.MetricParticlesRespawned:
		t.particlesRespawned.Add(delta)
	case sim.MetricParticlesReflected:
		t.particlesReflected.Add(delta)
	}
}

// Store implements telemetry.Metrics for gauges recorded inside the field.
func (t *telemetryCounters) Store(key string, value uint64) {
	switch key {
	case sim.MetricFieldParticles:
		t.fieldParticles.Store(value)
	}
}

func (t *telemetryCounters) Snapshot() TelemetrySnapshot {
	return TelemetrySnapshot{
		BytesSent:          t.bytesSent.Load(),
		FramesSent:         t.framesSent.Load(),
		FullFrames:         t.fullFrames.Load(),
		DeltaFrames:        t.deltaFrames.Load(),
		LastBroadcastBytes: t.lastBroadcastBytes.Load(),
		StepDurationMicros: t.stepDurationMicros.Load(),
		DroppedSubscribers: t.droppedSubscribers.Load(),
		ParticlesRespawned: t.particlesRespawned.Load(),
		ParticlesReflected: t.particlesReflected.Load(),
		FieldParticles:     t.fieldParticles.Load(),
	}
}
