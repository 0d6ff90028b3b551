package sim

import (
	"math"
	"math/rand"
)

// Spectral classes modulate how a particle reacts inside a prism zone.
// Assigned once when the pool is built and never re-derived.
const (
	SpectralRed = iota
	SpectralGreen
	SpectralBlue

	spectralBands = 3
)

// Integration tuning. The reference frame is 60 steps per second; a late tick
// advances further in one step but never more than two frames' worth.
const (
	baseFrameMillis = 1000.0 / 60.0
	maxTimeScale    = 2.0
)

// Force model tuning.
const (
	centralPullFactor   = 0.01
	centralDeadZone     = 1.0
	gravityRangeFloor   = 0.5
	gravityRangeScale   = 0.1
	lensingRangeFloor   = 0.1
	lensingRangeScale   = 0.05
	wellEpsilon         = 1e-6
	prismInfluenceSpan  = 1.5
	prismFalloffWidth   = 0.5
	dispersionContrast  = 0.3
	prismSwirlFactor    = 0.4
	prismJitterFactor   = 0.2
	innerClusterChance  = 0.3
	nearOriginEpsilon   = 0.1
	boundarySpanFactor  = 2.0
	boundaryRespawnOdds = 0.3
	boundaryRestitution = 0.5
	boundaryPullback    = 0.9
)

// Well is a point force source owned by one player: gravitational pull,
// lensing pull, and a color-dispersing prism zone around the well.
type Well struct {
	X               float64
	Y               float64
	GravityStrength float64
	LensingStrength float64
	PrismRadius     float64
	PrismStrength   float64
	PrismDispersion float64
}

// Field owns a fixed pool of particles on the z=0 plane. Positions and
// velocities are stored as flat x,y,z triplets so snapshots match the wire
// layout without repacking.
type Field struct {
	cfg        Config
	deps       Deps
	rng        *rand.Rand
	positions  []float64
	velocities []float64
	classes    []int
}

// NewField builds a field and populates the particle pool.
func NewField(cfg Config, deps Deps) *Field {
	f := &Field{deps: deps}
	f.Reset(cfg)
	return f
}

// Reset rebuilds the pool from cfg. Every particle is re-placed and re-classed;
// the generator restarts from the configured seed so identical configs produce
// identical fields.
func (f *Field) Reset(cfg Config) {
	f.cfg = cfg.Normalized()
	f.rng = NewDeterministicRNG(f.cfg.Seed, "field")

	count := f.cfg.ParticleCount
	f.positions = make([]float64, count*3)
	f.velocities = make([]float64, count*3)
	f.classes = make([]int, count)

	for i := 0; i < count; i++ {
		f.classes[i] = f.rng.Intn(spectralBands)
		f.placeParticle(i)
	}

	if f.deps.Metrics != nil {
		f.deps.Metrics.Store(MetricFieldParticles, uint64(count))
	}
	if f.deps.Logger != nil {
		f.deps.Logger.Printf("field reset: particles=%d spread=%.1f seed=%q", count, f.cfg.ParticleSpread, f.cfg.Seed)
	}
}

// Count reports the pool size.
func (f *Field) Count() int {
	return len(f.classes)
}

// Config returns the normalized tuning the field was built with.
func (f *Field) Config() Config {
	return f.cfg
}

// Snapshot copies the particle positions as flat x,y,z triplets.
func (f *Field) Snapshot() []float64 {
	positions := make([]float64, len(f.positions))
	copy(positions, f.positions)
	return positions
}

// FullSnapshot copies positions, velocities, and spectral classes.
func (f *Field) FullSnapshot() ([]float64, []float64, []int) {
	positions := make([]float64, len(f.positions))
	copy(positions, f.positions)
	velocities := make([]float64, len(f.velocities))
	copy(velocities, f.velocities)
	classes := make([]int, len(f.classes))
	copy(classes, f.classes)
	return positions, velocities, classes
}

// Step advances every particle by one tick. deltaMillis is the measured time
// since the previous step; lateness stretches the integration up to
// maxTimeScale, beyond which simulated time slows instead of exploding.
func (f *Field) Step(deltaMillis float64, wells []Well) {
	if deltaMillis <= 0 {
		return
	}
	scale := deltaMillis / baseFrameMillis
	if scale > maxTimeScale {
		scale = maxTimeScale
	}

	damping := math.Pow(f.cfg.VelocityDamping, scale)
	boundary := f.cfg.ParticleSpread * boundarySpanFactor
	respawned := 0
	reflected := 0

	for i := 0; i < len(f.classes); i++ {
		base := i * 3
		px := f.positions[base]
		py := f.positions[base+1]
		vx := f.velocities[base]
		vy := f.velocities[base+1]

		// Weak pull toward the origin keeps the cloud centered. Skipped
		// inside the dead zone so near-origin particles never see a
		// divergent force.
		dist := math.Hypot(px, py)
		if dist > centralDeadZone {
			pull := centralPullFactor * f.cfg.GravityStrength / (dist * dist)
			vx -= px / dist * pull * scale
			vy -= py / dist * pull * scale
		}

		for w := range wells {
			well := &wells[w]
			dx := well.X - px
			dy := well.Y - py
			wd := math.Hypot(dx, dy)
			if wd < wellEpsilon {
				continue
			}

			pull := well.GravityStrength/math.Max(wd*gravityRangeScale, gravityRangeFloor) +
				well.LensingStrength/math.Max(wd*lensingRangeScale, lensingRangeFloor)
			vx += dx / wd * pull * scale
			vy += dy / wd * pull * scale

			if wd < well.PrismRadius*prismInfluenceSpan {
				pvx, pvy := f.prismKick(i, well, -dx/wd, -dy/wd, wd)
				vx += pvx * scale
				vy += pvy * scale
			}
		}

		vx *= damping
		vy *= damping
		px += vx * scale
		py += vy * scale

		if math.Hypot(px, py) > boundary {
			if f.rng.Float64() < boundaryRespawnOdds {
				f.placeParticle(i)
				respawned++
				continue
			}
			nd := math.Hypot(px, py)
			nx := px / nd
			ny := py / nd
			dot := vx*nx + vy*ny
			vx = (vx - 2*dot*nx) * boundaryRestitution
			vy = (vy - 2*dot*ny) * boundaryRestitution
			px = nx * boundary * boundaryPullback
			py = ny * boundary * boundaryPullback
			reflected++
		}

		f.positions[base] = px
		f.positions[base+1] = py
		f.velocities[base] = vx
		f.velocities[base+1] = vy
	}

	if f.deps.Metrics != nil {
		if respawned > 0 {
			f.deps.Metrics.Add(MetricParticlesRespawned, uint64(respawned))
		}
		if reflected > 0 {
			f.deps.Metrics.Add(MetricParticlesReflected, uint64(reflected))
		}
	}
}

// prismKick computes the velocity delta a prism zone applies to particle i.
// ox,oy is the unit direction from the well out to the particle and wd the
// distance between them. Inside the radius the prism pushes outward; in the
// falloff band beyond it the prism pulls back in. The particle's spectral
// class scales the radial force and picks the swirl direction, so the three
// classes separate into counter-rotating, drifting, and co-rotating bands.
func (f *Field) prismKick(i int, well *Well, ox, oy, wd float64) (float64, float64) {
	var radial float64
	if wd < well.PrismRadius {
		radial = wd / well.PrismRadius * well.PrismStrength
	} else {
		falloff := 1 - (wd-well.PrismRadius)/(well.PrismRadius*prismFalloffWidth)
		if falloff < 0 {
			falloff = 0
		}
		radial = -falloff * well.PrismStrength
	}

	dispersion := well.PrismDispersion
	swirl := 1.0
	switch f.classes[i] {
	case SpectralRed:
		radial *= 1 - dispersionContrast*dispersion
		swirl = -1
	case SpectralGreen:
		if f.rng.Float64() < 0.5 {
			swirl = -1
		}
	case SpectralBlue:
		radial *= 1 + dispersionContrast*dispersion
	}

	tangential := swirl * prismSwirlFactor * dispersion * math.Abs(radial)
	tangential += (f.rng.Float64() - 0.5) * prismJitterFactor * dispersion * well.PrismStrength

	return ox*radial - oy*tangential, oy*radial + ox*tangential
}

// placeParticle assigns a spawn position and velocity to pool slot i. Most
// particles land in an annulus past half the prism radius with area-uniform
// density; the rest seed a loose core. Velocities start tangential so the
// cloud orbits instead of collapsing.
func (f *Field) placeParticle(i int) {
	var radius float64
	if f.rng.Float64() < innerClusterChance {
		radius = f.rng.Float64() * f.cfg.PrismRadius
	} else {
		inner := f.cfg.PrismRadius * 0.5
		radius = inner + math.Sqrt(f.rng.Float64())*f.cfg.ParticleSpread
	}
	angle := randomAngle(f.rng)
	px := radius * math.Cos(angle)
	py := radius * math.Sin(angle)

	speed := f.cfg.InitialSpeed * randomRange(f.rng, 0.8, 1.2)
	var vx, vy float64
	if radius < nearOriginEpsilon {
		direction := randomAngle(f.rng)
		vx = math.Cos(direction) * speed
		vy = math.Sin(direction) * speed
	} else {
		vx = -py / radius * speed
		vy = px / radius * speed
	}

	base := i * 3
	f.positions[base] = px
	f.positions[base+1] = py
	f.positions[base+2] = 0
	f.velocities[base] = vx
	f.velocities[base+1] = vy
	f.velocities[base+2] = 0
}
