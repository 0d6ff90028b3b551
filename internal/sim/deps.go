package sim

import "prismwell/server/internal/telemetry"

// Deps carries shared infrastructure dependencies injected into the particle field.
type Deps struct {
	Logger  telemetry.Logger
	Metrics telemetry.Metrics
}

// Metric keys recorded by the particle field.
const (
	MetricParticlesRespawned = "particles_respawned"
	MetricParticlesReflected = "particles_reflected"
	MetricFieldParticles     = "field_particles"
)
