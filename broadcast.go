package server

import (
	"sync"
	"time"

	"prismwell/server/logging"
)

// schedulerConfig tunes the state fan-out cadence.
type schedulerConfig struct {
	Interval     time.Duration
	FullInterval time.Duration
	Clock        logging.Clock
	Emit         func(full bool)
}

// broadcastScheduler decides, on its own cadence, whether the next outgoing
// frame is a full snapshot or a positions-only delta. Full frames recover
// clients that missed deltas; deltas keep steady-state bandwidth small.
type broadcastScheduler struct {
	clock        logging.Clock
	interval     time.Duration
	fullInterval time.Duration
	emit         func(full bool)

	mu       sync.Mutex
	running  bool
	stop     chan struct{}
	lastFull time.Time
}

func newBroadcastScheduler(cfg schedulerConfig) *broadcastScheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultBroadcastInterval
	}
	fullInterval := cfg.FullInterval
	if fullInterval <= 0 {
		fullInterval = defaultFullInterval
	}
	clk := cfg.Clock
	if clk == nil {
		clk = logging.SystemClock{}
	}
	return &broadcastScheduler{
		clock:        clk,
		interval:     interval,
		fullInterval: fullInterval,
		emit:         cfg.Emit,
	}
}

// Start launches the fan-out ticker. Starting a running scheduler is a no-op.
func (s *broadcastScheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	stop := make(chan struct{})
	s.stop = stop
	s.mu.Unlock()

	go s.run(stop)
}

// Stop halts the fan-out ticker.
func (s *broadcastScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop := s.stop
	s.stop = nil
	s.mu.Unlock()

	close(stop)
}

func (s *broadcastScheduler) run(stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.Fire(s.clock.Now())
		}
	}
}

// Fire performs one cadence decision as of now. Split out from the ticker
// loop so tests can drive the schedule with synthetic timestamps.
func (s *broadcastScheduler) Fire(now time.Time) {
	s.mu.Lock()
	full := s.lastFull.IsZero() || now.Sub(s.lastFull) >= s.fullInterval
	if full {
		s.lastFull = now
	}
	emit := s.emit
	s.mu.Unlock()

	if emit != nil {
		emit(full)
	}
}

// MarkFull records that a full snapshot just went out to every subscriber,
// pushing the next periodic full a whole interval away.
func (s *broadcastScheduler) MarkFull(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastFull = now
}
