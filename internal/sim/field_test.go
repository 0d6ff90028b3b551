package sim

import (
	"math"
	"testing"
)

type recordingMetrics struct {
	adds   map[string]uint64
	stores map[string]uint64
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{adds: make(map[string]uint64), stores: make(map[string]uint64)}
}

func (m *recordingMetrics) Add(key string, delta uint64) {
	m.adds[key] += delta
}

func (m *recordingMetrics) Store(key string, value uint64) {
	m.stores[key] = value
}

func defaultWell() Well {
	cfg := DefaultConfig()
	return Well{
		GravityStrength: cfg.GravityStrength,
		LensingStrength: defaultLensingStrength,
		PrismRadius:     cfg.PrismRadius,
		PrismStrength:   defaultPrismStrength,
		PrismDispersion: defaultPrismDispersion,
	}
}

func TestNewFieldHonorsParticleBounds(t *testing.T) {
	cases := []struct {
		name      string
		requested int
		want      int
	}{
		{"below minimum", 10, MinParticleCount},
		{"above maximum", 999999, MaxParticleCount},
		{"within range", 1234, 1234},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.ParticleCount = tc.requested
			field := NewField(cfg, Deps{})
			if got := field.Count(); got != tc.want {
				t.Fatalf("expected %d particles, got %d", tc.want, got)
			}
			if got := len(field.Snapshot()); got != tc.want*3 {
				t.Fatalf("expected %d position components, got %d", tc.want*3, got)
			}
		})
	}
}

func TestNewFieldPlacementWithinSpawnEnvelope(t *testing.T) {
	cfg := DefaultConfig()
	field := NewField(cfg, Deps{})

	maxRadius := cfg.PrismRadius*0.5 + cfg.ParticleSpread
	positions := field.Snapshot()
	for i := 0; i < field.Count(); i++ {
		base := i * 3
		radius := math.Hypot(positions[base], positions[base+1])
		if radius > maxRadius+1e-9 {
			t.Fatalf("particle %d spawned at radius %.3f beyond envelope %.3f", i, radius, maxRadius)
		}
		if positions[base+2] != 0 {
			t.Fatalf("particle %d spawned off the plane: z=%v", i, positions[base+2])
		}
	}
}

func TestStepKeepsPlaneFlat(t *testing.T) {
	field := NewField(DefaultConfig(), Deps{})
	wells := []Well{defaultWell()}

	for tick := 0; tick < 20; tick++ {
		field.Step(16.7, wells)
	}

	positions, velocities, _ := field.FullSnapshot()
	for i := 0; i < field.Count(); i++ {
		if positions[i*3+2] != 0 {
			t.Fatalf("particle %d drifted off the plane: z=%v", i, positions[i*3+2])
		}
		if velocities[i*3+2] != 0 {
			t.Fatalf("particle %d gained z velocity: %v", i, velocities[i*3+2])
		}
	}
}

func TestStepScalesWithMeasuredDelta(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParticleCount = MinParticleCount
	cfg.VelocityDamping = 1
	cfg.GravityStrength = 0
	cfg.ParticleSpread = 1e6

	t.Run("nominal frame advances one frame", func(t *testing.T) {
		field := NewField(cfg, Deps{})
		field.positions[0], field.positions[1] = 100, 50
		field.velocities[0], field.velocities[1] = 1, -2

		field.Step(baseFrameMillis, nil)

		if got := field.positions[0]; math.Abs(got-101) > 1e-9 {
			t.Fatalf("expected x=101, got %v", got)
		}
		if got := field.positions[1]; math.Abs(got-48) > 1e-9 {
			t.Fatalf("expected y=48, got %v", got)
		}
	})

	t.Run("late tick clamps at two frames", func(t *testing.T) {
		field := NewField(cfg, Deps{})
		field.positions[0], field.positions[1] = 100, 50
		field.velocities[0], field.velocities[1] = 1, -2

		field.Step(5000, nil)

		if got := field.positions[0]; math.Abs(got-102) > 1e-9 {
			t.Fatalf("expected clamped x=102, got %v", got)
		}
		if got := field.positions[1]; math.Abs(got-46) > 1e-9 {
			t.Fatalf("expected clamped y=46, got %v", got)
		}
	})

	t.Run("non-positive delta is ignored", func(t *testing.T) {
		field := NewField(cfg, Deps{})
		before := field.Snapshot()
		field.Step(0, nil)
		field.Step(-10, nil)
		after := field.Snapshot()
		for i := range before {
			if before[i] != after[i] {
				t.Fatalf("position component %d changed on zero delta", i)
			}
		}
	})
}

func TestStepBoundedOverLongRun(t *testing.T) {
	cfg := DefaultConfig()
	field := NewField(cfg, Deps{})
	wells := []Well{defaultWell()}

	for tick := 0; tick < 1000; tick++ {
		field.Step(33, wells)
	}

	limit := cfg.ParticleSpread * boundarySpanFactor * 1.1
	positions := field.Snapshot()
	for i := 0; i < field.Count(); i++ {
		base := i * 3
		x, y := positions[base], positions[base+1]
		if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(y) || math.IsInf(y, 0) {
			t.Fatalf("particle %d diverged to (%v, %v)", i, x, y)
		}
		if radius := math.Hypot(x, y); radius > limit {
			t.Fatalf("particle %d escaped to radius %.3f (limit %.3f)", i, radius, limit)
		}
	}
}

func TestRemovedWellLeavesNoResidualInfluence(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParticleCount = MinParticleCount

	touched := NewField(cfg, Deps{})
	pristine := NewField(cfg, Deps{})

	registry := NewRegistry(cfg)
	registry.Add(1, PlayerParams{})
	if !registry.Remove(1) {
		t.Fatalf("expected removal of registered player")
	}

	for tick := 0; tick < 10; tick++ {
		touched.Step(16.7, registry.Wells())
		pristine.Step(16.7, nil)
	}

	a := touched.Snapshot()
	b := pristine.Snapshot()
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("position component %d diverged after removal: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestResetIsDeterministicPerSeed(t *testing.T) {
	cfg := DefaultConfig()
	first := NewField(cfg, Deps{})
	second := NewField(cfg, Deps{})

	fp, _, fc := first.FullSnapshot()
	sp, _, sc := second.FullSnapshot()
	for i := range fp {
		if fp[i] != sp[i] {
			t.Fatalf("same seed produced different position component %d", i)
		}
	}
	for i := range fc {
		if fc[i] != sc[i] {
			t.Fatalf("same seed produced different class for particle %d", i)
		}
	}

	cfg.Seed = "alternate"
	third := NewField(cfg, Deps{})
	tp := third.Snapshot()
	same := true
	for i := range fp {
		if fp[i] != tp[i] {
			same = false
			break
		}
	}
	if same {
		t.Fatalf("different seeds produced identical placement")
	}
}

func TestSpectralClassesCoverAllBands(t *testing.T) {
	field := NewField(DefaultConfig(), Deps{})
	_, _, classes := field.FullSnapshot()

	var seen [spectralBands]int
	for i, class := range classes {
		if class < 0 || class >= spectralBands {
			t.Fatalf("particle %d has out-of-range class %d", i, class)
		}
		seen[class]++
	}
	for band, count := range seen {
		if count == 0 {
			t.Fatalf("spectral band %d is empty", band)
		}
	}
}

func TestParticleAtOriginStaysFinite(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParticleCount = MinParticleCount
	field := NewField(cfg, Deps{})
	field.positions[0], field.positions[1] = 0, 0
	field.velocities[0], field.velocities[1] = 0, 0

	field.Step(16.7, nil)

	if x, y := field.positions[0], field.positions[1]; x != 0 || y != 0 {
		t.Fatalf("origin particle moved without forces: (%v, %v)", x, y)
	}
}

func TestBoundaryHandlingRecapturesEscapees(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ParticleCount = MinParticleCount
	metrics := newRecordingMetrics()
	field := NewField(cfg, Deps{Metrics: metrics})

	boundary := cfg.ParticleSpread * boundarySpanFactor
	for i := 0; i < field.Count(); i++ {
		base := i * 3
		field.positions[base] = boundary * 2
		field.positions[base+1] = 0
		field.velocities[base] = 1
		field.velocities[base+1] = 0
	}

	field.Step(16.7, nil)

	positions := field.Snapshot()
	for i := 0; i < field.Count(); i++ {
		base := i * 3
		if radius := math.Hypot(positions[base], positions[base+1]); radius > boundary {
			t.Fatalf("particle %d still outside boundary at radius %.3f", i, radius)
		}
	}

	handled := metrics.adds[MetricParticlesRespawned] + metrics.adds[MetricParticlesReflected]
	if handled != uint64(field.Count()) {
		t.Fatalf("expected %d boundary events, recorded %d", field.Count(), handled)
	}
	if got := metrics.stores[MetricFieldParticles]; got != uint64(field.Count()) {
		t.Fatalf("expected pool gauge %d, got %d", field.Count(), got)
	}
}

func TestSnapshotsAreIsolatedCopies(t *testing.T) {
	field := NewField(DefaultConfig(), Deps{})

	snapshot := field.Snapshot()
	snapshot[0] += 1000
	if field.positions[0] == snapshot[0] {
		t.Fatalf("snapshot mutation leaked into the field")
	}

	positions, velocities, classes := field.FullSnapshot()
	positions[0] += 1000
	velocities[0] += 1000
	classes[0] = spectralBands + 1
	if field.positions[0] == positions[0] || field.velocities[0] == velocities[0] || field.classes[0] == classes[0] {
		t.Fatalf("full snapshot mutation leaked into the field")
	}
}
