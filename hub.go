package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"prismwell/server/internal/net/proto"
	"prismwell/server/internal/sim"
	"prismwell/server/internal/telemetry"
	"prismwell/server/logging"
	"prismwell/server/logging/lifecycle"
	netlog "prismwell/server/logging/network"
	simlog "prismwell/server/logging/simulation"
)

// Hub owns the particle field, the player registry, and every live subscriber.
// All state mutation is serialized behind a single mutex; fan-out always runs
// outside it so one slow connection cannot stall the simulation.
type Hub struct {
	mu          sync.Mutex
	field       *sim.Field
	registry    *sim.Registry
	subscribers map[uint64]*subscriber
	nextID      atomic.Uint64

	clock     *simulationClock
	scheduler *broadcastScheduler
	counters  *telemetryCounters
	logger    telemetry.Logger
	publisher logging.Publisher
	wallClock logging.Clock
}

// SubscriberConn is the slice of *websocket.Conn the hub touches. Tests
// substitute recording fakes; production always passes the real connection.
type SubscriberConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

type subscriber struct {
	conn        SubscriberConn
	mu          sync.Mutex
	sessionID   string
	connectedAt time.Time
	lastUpdate  time.Time // guarded by Hub.mu, not the write mutex
}

// WriteMessage serializes writes to the underlying connection and stamps a
// deadline so one stalled client cannot block the fan-out.
func (s *subscriber) WriteMessage(messageType int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(messageType, data)
}

// HubConfig bundles tuning and shared infrastructure for a hub.
type HubConfig struct {
	Sim               sim.Config
	BroadcastInterval time.Duration
	FullInterval      time.Duration
	Clock             logging.Clock
	Logger            telemetry.Logger
	Publisher         logging.Publisher
}

// NewHub creates a hub with default cadence and infrastructure.
func NewHub(cfg sim.Config) *Hub {
	return NewHubWithConfig(HubConfig{Sim: cfg})
}

// NewHubWithConfig creates a hub wired to the provided dependencies. Missing
// dependencies fall back to working defaults so tests can construct a hub
// from nothing but a sim.Config.
func NewHubWithConfig(cfg HubConfig) *Hub {
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	publisher := cfg.Publisher
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	wallClock := cfg.Clock
	if wallClock == nil {
		wallClock = logging.SystemClock{}
	}

	counters := newTelemetryCounters()
	simCfg := cfg.Sim.Normalized()

	hub := &Hub{
		subscribers: make(map[uint64]*subscriber),
		counters:    counters,
		logger:      logger,
		publisher:   publisher,
		wallClock:   wallClock,
	}
	hub.field = sim.NewField(simCfg, sim.Deps{Logger: logger, Metrics: counters})
	hub.registry = sim.NewRegistry(simCfg)
	hub.clock = newSimulationClock(clockConfig{
		UpdateRate: simCfg.UpdateRate,
		Clock:      wallClock,
		Publisher:  publisher,
		Step:       hub.stepSimulation,
		AfterStep:  counters.RecordStepDuration,
	})
	hub.scheduler = newBroadcastScheduler(schedulerConfig{
		Interval:     cfg.BroadcastInterval,
		FullInterval: cfg.FullInterval,
		Clock:        wallClock,
		Emit:         hub.emitState,
	})
	return hub
}

// Start launches the physics and broadcast tickers.
func (h *Hub) Start() {
	h.clock.Start()
	h.scheduler.Start()
}

// Stop halts both tickers. Connections stay open; they close through
// Unregister or when the HTTP server shuts down.
func (h *Hub) Stop() {
	h.scheduler.Stop()
	h.clock.Stop()
}

// Register admits a new connection: assigns the next id, seeds a registry
// record, writes the id frame and one full snapshot on the new channel, then
// announces the updated roster. The new subscriber only joins the fan-out set
// after both frames are written, so no periodic frame can arrive first.
func (h *Hub) Register(conn SubscriberConn) (uint64, error) {
	id := h.nextID.Add(1)
	sub := &subscriber{
		conn:        conn,
		sessionID:   uuid.NewString(),
		connectedAt: h.wallClock.Now(),
	}

	h.mu.Lock()
	h.registry.Add(id, sim.PlayerParams{})
	hello := proto.NewHello(id)
	full := h.fullStateLocked()
	h.mu.Unlock()

	if err := writeFrames(sub, hello, full); err != nil {
		h.mu.Lock()
		h.registry.Remove(id)
		h.mu.Unlock()
		return 0, fmt.Errorf("write welcome frames: %w", err)
	}

	h.mu.Lock()
	h.subscribers[id] = sub
	h.mu.Unlock()

	remote := ""
	if addr := conn.RemoteAddr(); addr != nil {
		remote = addr.String()
	}
	lifecycle.PlayerConnected(context.Background(), h.publisher, h.clock.Ticks(), playerRef(id), lifecycle.PlayerConnectedPayload{
		SessionID:  sub.sessionID,
		RemoteAddr: remote,
	}, nil)
	h.logger.Printf("player %d connected (session %s)", id, sub.sessionID)

	h.broadcastPlayerList()
	return id, nil
}

// Unregister removes a player and closes its connection if one is still
// attached. Calling it twice for the same id is harmless.
func (h *Hub) Unregister(id uint64, reason string) {
	h.mu.Lock()
	sub, subOK := h.subscribers[id]
	if subOK {
		delete(h.subscribers, id)
	}
	playerOK := h.registry.Remove(id)
	h.mu.Unlock()

	if subOK {
		sub.conn.Close()
	}
	if !subOK && !playerOK {
		return
	}

	sessionID := ""
	if subOK {
		sessionID = sub.sessionID
	}
	lifecycle.PlayerDisconnected(context.Background(), h.publisher, h.clock.Ticks(), playerRef(id), lifecycle.PlayerDisconnectedPayload{
		SessionID: sessionID,
		Reason:    reason,
	}, nil)
	h.logger.Printf("player %d disconnected: %s", id, reason)

	h.broadcastPlayerList()
}

// MarkActivity timestamps the most recent client message for diagnostics.
// Unknown ids are ignored.
func (h *Hub) MarkActivity(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[id]; ok {
		sub.lastUpdate = h.wallClock.Now()
	}
}

// UpdatePlayerPosition moves a player's gravity well and relays the merged
// record to every other subscriber. Unknown ids report false.
func (h *Hub) UpdatePlayerPosition(id uint64, x, y float64) bool {
	h.mu.Lock()
	player, ok := h.registry.UpdatePosition(id, x, y)
	if !ok {
		h.mu.Unlock()
		return false
	}
	subs := h.collectSubscribersLocked(id)
	h.mu.Unlock()

	h.relayPlayer(player, subs)
	return true
}

// UpdatePlayerParams merges physics parameter overrides into a player record
// and relays the result to every other subscriber. Unknown ids report false.
func (h *Hub) UpdatePlayerParams(id uint64, params sim.PlayerParams) bool {
	h.mu.Lock()
	player, ok := h.registry.UpdateParams(id, params)
	if !ok {
		h.mu.Unlock()
		return false
	}
	subs := h.collectSubscribersLocked(id)
	h.mu.Unlock()

	h.relayPlayer(player, subs)
	return true
}

// SetParticleCount rebuilds the field at the clamped size. The physics clock
// pauses for the rebuild, simulated time restarts at zero, and every
// subscriber receives a notice followed by an immediate full snapshot.
func (h *Hub) SetParticleCount(requested int) int {
	clamped := sim.ClampParticleCount(requested)

	wasRunning := h.clock.Running()
	h.clock.Stop()

	h.mu.Lock()
	cfg := h.field.Config()
	cfg.ParticleCount = clamped
	h.field.Reset(cfg)
	h.clock.ResetTime()
	notice := proto.NewSystemMessage(fmt.Sprintf("Particle count set to %d", clamped))
	full := h.fullStateLocked()
	subs := h.collectSubscribersLocked(0)
	h.mu.Unlock()

	if wasRunning {
		h.clock.Start()
	}
	h.scheduler.MarkFull(h.wallClock.Now())

	simlog.FieldReset(context.Background(), h.publisher, h.clock.Ticks(), simlog.FieldResetPayload{
		ParticleCount:  clamped,
		RequestedCount: requested,
		Seed:           cfg.Seed,
	}, nil)

	if len(subs) == 0 {
		return clamped
	}
	if data, err := json.Marshal(notice); err != nil {
		h.logger.Printf("failed to marshal system message: %v", err)
	} else {
		h.fanOut(subs, data)
	}
	if data, err := json.Marshal(full); err != nil {
		h.logger.Printf("failed to marshal full-state frame: %v", err)
	} else {
		h.fanOut(subs, data)
		h.counters.RecordBroadcast(len(data), true)
	}
	return clamped
}

// stepSimulation advances the field against the live wells. Runs under the
// hub mutex so registry edits never interleave with an integration step.
func (h *Hub) stepSimulation(deltaMillis float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.field.Step(deltaMillis, h.registry.Wells())
}

// emitState builds one outgoing frame and fans it out. Snapshots are taken
// under the mutex; marshaling and writes happen outside it.
func (h *Hub) emitState(full bool) {
	h.mu.Lock()
	if len(h.subscribers) == 0 {
		h.mu.Unlock()
		return
	}
	var msg any
	if full {
		msg = h.fullStateLocked()
	} else {
		msg = h.particleUpdateLocked()
	}
	subs := h.collectSubscribersLocked(0)
	h.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal state frame: %v", err)
		return
	}
	h.fanOut(subs, data)
	h.counters.RecordBroadcast(len(data), full)
}

func (h *Hub) fullStateLocked() proto.FullStateV1 {
	positions, velocities, classes := h.field.FullSnapshot()
	state := proto.StateV1{
		Particles: proto.ParticleSetV1{
			Positions:  positions,
			Velocities: velocities,
			Classes:    classes,
		},
		Players:        h.registry.Snapshot(),
		SimulationTime: h.clock.SimulatedMillis(),
	}
	return proto.NewFullState(state, h.metricsLocked())
}

func (h *Hub) particleUpdateLocked() proto.ParticleUpdateV1 {
	return proto.NewParticleUpdate(h.field.Snapshot(), h.clock.SimulatedMillis(), h.metricsLocked())
}

func (h *Hub) metricsLocked() proto.MetricsV1 {
	last, avg := h.clock.PerfSnapshot()
	return proto.MetricsV1{
		PhysicsTime:    last,
		AvgPhysicsTime: avg,
		ParticleCount:  h.field.Count(),
		PlayerCount:    h.registry.Len(),
	}
}

// collectSubscribersLocked copies the fan-out set, skipping one id when
// relaying a frame the origin client already knows about. Zero skips nobody;
// assigned ids start at one.
func (h *Hub) collectSubscribersLocked(skip uint64) map[uint64]*subscriber {
	subs := make(map[uint64]*subscriber, len(h.subscribers))
	for id, sub := range h.subscribers {
		if id == skip {
			continue
		}
		subs[id] = sub
	}
	return subs
}

func (h *Hub) broadcastPlayerList() {
	h.mu.Lock()
	msg := proto.NewPlayerList(h.registry.IDs())
	subs := h.collectSubscribersLocked(0)
	h.mu.Unlock()

	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Printf("failed to marshal roster frame: %v", err)
		return
	}
	h.fanOut(subs, data)
}

func (h *Hub) relayPlayer(player sim.Player, subs map[uint64]*subscriber) {
	if len(subs) == 0 {
		return
	}
	data, err := json.Marshal(proto.NewPlayerUpdate(player))
	if err != nil {
		h.logger.Printf("failed to marshal player update: %v", err)
		return
	}
	h.fanOut(subs, data)
}

// fanOut writes data to every subscriber in subs. A failed write disconnects
// that subscriber only; the remaining writes always proceed.
func (h *Hub) fanOut(subs map[uint64]*subscriber, data []byte) {
	for id, sub := range subs {
		err := sub.WriteMessage(websocket.TextMessage, data)
		if err == nil {
			continue
		}
		h.logger.Printf("failed to send frame to player %d: %v", id, err)
		netlog.SendFailed(context.Background(), h.publisher, h.clock.Ticks(), playerRef(id), netlog.SendFailedPayload{
			SessionID: sub.sessionID,
			Error:     err.Error(),
		}, nil)
		h.counters.IncrementDroppedSubscriber()
		go h.Unregister(id, "send failed")
	}
}

func writeFrames(sub *subscriber, frames ...any) error {
	for _, frame := range frames {
		data, err := json.Marshal(frame)
		if err != nil {
			return err
		}
		if err := sub.WriteMessage(websocket.TextMessage, data); err != nil {
			return err
		}
	}
	return nil
}

func playerRef(id uint64) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(id, 10), Kind: logging.EntityKindPlayer}
}

// DiagnosticsSubscriber describes one live connection for the diagnostics
// endpoint.
type DiagnosticsSubscriber struct {
	ID          uint64 `json:"id"`
	SessionID   string `json:"sessionId"`
	ConnectedAt int64  `json:"connectedAt"`
	LastUpdate  int64  `json:"lastUpdate,omitempty"`
}

// DiagnosticsSnapshot lists live connections sorted by id.
func (h *Hub) DiagnosticsSnapshot() []DiagnosticsSubscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := make([]DiagnosticsSubscriber, 0, len(h.subscribers))
	for id, sub := range h.subscribers {
		entry := DiagnosticsSubscriber{
			ID:          id,
			SessionID:   sub.sessionID,
			ConnectedAt: sub.connectedAt.UnixMilli(),
		}
		if !sub.lastUpdate.IsZero() {
			entry.LastUpdate = sub.lastUpdate.UnixMilli()
		}
		subs = append(subs, entry)
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].ID < subs[j].ID })
	return subs
}

// TelemetrySnapshot exposes the hub counters for the diagnostics endpoint.
func (h *Hub) TelemetrySnapshot() TelemetrySnapshot {
	return h.counters.Snapshot()
}

// CurrentConfig returns the live field tuning.
func (h *Hub) CurrentConfig() sim.Config {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.field.Config()
}

// SimulatedMillis reports how much time the field has integrated since the
// last reset.
func (h *Hub) SimulatedMillis() float64 {
	return h.clock.SimulatedMillis()
}

// Ticks reports how many physics steps have run.
func (h *Hub) Ticks() uint64 {
	return h.clock.Ticks()
}
