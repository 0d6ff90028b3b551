package sim

import "strings"

const defaultSeed = "prism"

// Particle pool bounds enforced on every reset, including client requests.
const (
	MinParticleCount = 500
	MaxParticleCount = 10000
)

// Baseline well parameters applied when a player omits an override.
const (
	defaultLensingStrength = 0.1
	defaultPrismStrength   = 0.05
	defaultPrismDispersion = 0.5
)

// Config captures the tunables used when building a particle field.
type Config struct {
	ParticleCount   int     `json:"particleCount"`
	ParticleSpread  float64 `json:"particleSpread"`
	InitialSpeed    float64 `json:"initialSpeed"`
	VelocityDamping float64 `json:"velocityDamping"`
	GravityStrength float64 `json:"gravityStrength"`
	UpdateRate      int     `json:"updateRate"`
	PrismRadius     float64 `json:"prismRadius"`
	Seed            string  `json:"seed"`
}

// DefaultConfig returns the stock field tuning.
func DefaultConfig() Config {
	return Config{
		ParticleCount:   2000,
		ParticleSpread:  40,
		InitialSpeed:    0.3,
		VelocityDamping: 0.95,
		GravityStrength: 0.5,
		UpdateRate:      60,
		PrismRadius:     12,
		Seed:            defaultSeed,
	}
}

// Normalized returns a config with defaults applied and invalid values clamped.
func (cfg Config) Normalized() Config {
	normalized := cfg
	if normalized.ParticleCount == 0 {
		normalized.ParticleCount = DefaultConfig().ParticleCount
	}
	normalized.ParticleCount = ClampParticleCount(normalized.ParticleCount)
	if normalized.ParticleSpread <= 0 {
		normalized.ParticleSpread = DefaultConfig().ParticleSpread
	}
	if normalized.InitialSpeed < 0 {
		normalized.InitialSpeed = 0
	}
	if normalized.VelocityDamping <= 0 || normalized.VelocityDamping > 1 {
		normalized.VelocityDamping = DefaultConfig().VelocityDamping
	}
	if normalized.GravityStrength < 0 {
		normalized.GravityStrength = 0
	}
	if normalized.UpdateRate <= 0 {
		normalized.UpdateRate = DefaultConfig().UpdateRate
	}
	if normalized.PrismRadius <= 0 {
		normalized.PrismRadius = DefaultConfig().PrismRadius
	}
	normalized.Seed = strings.TrimSpace(normalized.Seed)
	if normalized.Seed == "" {
		normalized.Seed = defaultSeed
	}
	return normalized
}

// ClampParticleCount bounds a requested pool size to the supported range.
func ClampParticleCount(count int) int {
	if count < MinParticleCount {
		return MinParticleCount
	}
	if count > MaxParticleCount {
		return MaxParticleCount
	}
	return count
}
