package server

import (
	"context"
	"sync"
	"time"

	"prismwell/server/logging"
	simlog "prismwell/server/logging/simulation"
)

// clockConfig wires the fixed-rate driver to the physics step and observers.
type clockConfig struct {
	UpdateRate int
	Clock      logging.Clock
	Publisher  logging.Publisher
	Step       func(deltaMillis float64)
	AfterStep  func(cost time.Duration)
}

// simulationClock drives the physics step at a fixed rate and tracks the
// wall cost of each step. Overruns are reported, never batched: a late tick
// simply fires late.
type simulationClock struct {
	clock     logging.Clock
	publisher logging.Publisher
	step      func(deltaMillis float64)
	afterStep func(cost time.Duration)

	interval     time.Duration
	budgetMillis float64

	mu              sync.Mutex
	running         bool
	stop            chan struct{}
	lastTick        time.Time
	simulatedMillis float64
	ticks           uint64
	overrunStreak   uint64
	samples         [perfWindowSize]float64
	sampleCursor    int
	sampleCount     int
	lastCostMillis  float64
}

func newSimulationClock(cfg clockConfig) *simulationClock {
	rate := cfg.UpdateRate
	if rate <= 0 {
		rate = 60
	}
	clk := cfg.Clock
	if clk == nil {
		clk = logging.SystemClock{}
	}
	return &simulationClock{
		clock:        clk,
		publisher:    cfg.Publisher,
		step:         cfg.Step,
		afterStep:    cfg.AfterStep,
		interval:     time.Second / time.Duration(rate),
		budgetMillis: 1000.0 / float64(rate),
	}
}

// Start launches the ticker goroutine. Starting a running clock is a no-op.
func (c *simulationClock) Start() {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true
	stop := make(chan struct{})
	c.stop = stop
	c.lastTick = time.Time{}
	c.mu.Unlock()

	go c.run(stop)
}

// Stop halts the ticker goroutine. A tick already in flight may still finish
// its step; callers serialize resets against that through the step callback.
func (c *simulationClock) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	stop := c.stop
	c.stop = nil
	c.mu.Unlock()

	close(stop)
}

func (c *simulationClock) run(stop <-chan struct{}) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.Advance(c.clock.Now())
		}
	}
}

// Advance performs one tick as of now. Split out from the ticker loop so
// tests can drive the clock with synthetic timestamps.
func (c *simulationClock) Advance(now time.Time) {
	c.mu.Lock()
	deltaMillis := c.budgetMillis
	if !c.lastTick.IsZero() {
		if measured := now.Sub(c.lastTick).Seconds() * 1000.0; measured > 0 {
			deltaMillis = measured
		}
	}
	c.lastTick = now
	c.ticks++
	tick := c.ticks
	c.simulatedMillis += deltaMillis
	step := c.step
	c.mu.Unlock()

	if step == nil {
		return
	}

	start := c.clock.Now()
	step(deltaMillis)
	cost := c.clock.Now().Sub(start)

	c.recordCost(tick, cost)
	if c.afterStep != nil {
		c.afterStep(cost)
	}
}

func (c *simulationClock) recordCost(tick uint64, cost time.Duration) {
	costMillis := cost.Seconds() * 1000.0
	if costMillis < 0 {
		costMillis = 0
	}

	c.mu.Lock()
	c.lastCostMillis = costMillis
	c.samples[c.sampleCursor] = costMillis
	c.sampleCursor = (c.sampleCursor + 1) % perfWindowSize
	if c.sampleCount < perfWindowSize {
		c.sampleCount++
	}
	var streak uint64
	if costMillis > c.budgetMillis {
		c.overrunStreak++
		streak = c.overrunStreak
	} else {
		c.overrunStreak = 0
	}
	c.mu.Unlock()

	if streak == 0 || c.publisher == nil {
		return
	}
	simlog.TickBudgetOverrun(context.Background(), c.publisher, tick, simlog.TickBudgetOverrunPayload{
		DurationMillis: costMillis,
		BudgetMillis:   c.budgetMillis,
		Ratio:          costMillis / c.budgetMillis,
		Streak:         streak,
	}, nil)
}

// Running reports whether the ticker goroutine is live.
func (c *simulationClock) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// ResetTime rewinds simulated time to zero without disturbing the tick
// counter, so log correlation survives a field rebuild.
func (c *simulationClock) ResetTime() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.simulatedMillis = 0
	c.lastTick = time.Time{}
}

// SimulatedMillis reports how much wall time the field has integrated since
// the last reset.
func (c *simulationClock) SimulatedMillis() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulatedMillis
}

// Ticks reports how many steps have run since construction.
func (c *simulationClock) Ticks() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

// PerfSnapshot returns the last step cost and the rolling average over the
// sample window, both in milliseconds.
func (c *simulationClock) PerfSnapshot() (last float64, avg float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sampleCount == 0 {
		return 0, 0
	}
	total := 0.0
	for i := 0; i < c.sampleCount; i++ {
		total += c.samples[i]
	}
	return c.lastCostMillis, total / float64(c.sampleCount)
}
