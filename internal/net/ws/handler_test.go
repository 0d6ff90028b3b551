package ws

import (
	"encoding/json"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"prismwell/server"
	"prismwell/server/internal/net/proto"
	"prismwell/server/internal/sim"
	"prismwell/server/internal/telemetry"
	"prismwell/server/logging"
)

type stateProbe struct {
	Particles      proto.ParticleSetV1   `json:"particles"`
	Players        map[uint64]sim.Player `json:"players"`
	SimulationTime float64               `json:"simulationTime"`
}

type frameProbe struct {
	Ver       int         `json:"ver"`
	Type      string      `json:"type"`
	ID        uint64      `json:"id"`
	PlayerID  uint64      `json:"playerId"`
	Text      string      `json:"text"`
	Players   []uint64    `json:"players"`
	Time      float64     `json:"time"`
	Particles []float64   `json:"particles"`
	State     *stateProbe `json:"state"`
	Data      *sim.Player `json:"data"`
}

func newWSHub(particles int) *server.Hub {
	cfg := sim.DefaultConfig()
	cfg.ParticleCount = particles
	return server.NewHubWithConfig(server.HubConfig{
		Sim:    cfg,
		Logger: telemetry.LoggerFunc(nil),
	})
}

func newSubscriberServer(t *testing.T, hub *server.Hub) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(NewHandler(hub, telemetry.LoggerFunc(nil), logging.NopPublisher()))
	t.Cleanup(srv.Close)
	return srv
}

func dialSubscriber(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) (frameProbe, bool) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
		t.Fatalf("set read deadline: %v", err)
	}
	_, payload, err := conn.ReadMessage()
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return frameProbe{}, false
		}
		t.Fatalf("read websocket frame: %v", err)
	}
	var frame frameProbe
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("decode websocket frame: %v", err)
	}
	return frame, true
}

func mustReadFrame(t *testing.T, conn *websocket.Conn) frameProbe {
	t.Helper()
	frame, ok := readFrame(t, conn)
	if !ok {
		t.Fatalf("timed out reading websocket frame")
	}
	return frame
}

func waitForFrame(t *testing.T, conn *websocket.Conn, match func(frameProbe) bool) frameProbe {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		frame, ok := readFrame(t, conn)
		if !ok {
			continue
		}
		if match(frame) {
			return frame
		}
	}
	t.Fatalf("timed out waiting for matching frame")
	return frameProbe{}
}

func drainWelcome(t *testing.T, conn *websocket.Conn, wantID uint64) {
	t.Helper()
	hello := mustReadFrame(t, conn)
	if hello.Type != proto.TypeHello || hello.ID != wantID {
		t.Fatalf("expected hello frame for player %d, got %+v", wantID, hello)
	}
	full := mustReadFrame(t, conn)
	if full.Type != proto.TypeFullState {
		t.Fatalf("expected full state frame, got %+v", full)
	}
	roster := mustReadFrame(t, conn)
	if roster.Type != proto.TypePlayerList {
		t.Fatalf("expected roster frame, got %+v", roster)
	}
}

func writeClientMessage(t *testing.T, conn *websocket.Conn, payload string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(payload)); err != nil {
		t.Fatalf("write client message: %v", err)
	}
}

func TestHandlerSendsHelloBeforeFullState(t *testing.T) {
	hub := newWSHub(sim.MinParticleCount)
	srv := newSubscriberServer(t, hub)
	conn := dialSubscriber(t, srv)

	hello := mustReadFrame(t, conn)
	if hello.Type != proto.TypeHello {
		t.Fatalf("expected first frame type %q, got %q", proto.TypeHello, hello.Type)
	}
	if hello.Ver != proto.Version {
		t.Fatalf("expected protocol version %d, got %d", proto.Version, hello.Ver)
	}
	if hello.ID != 1 {
		t.Fatalf("expected first assigned id 1, got %d", hello.ID)
	}

	full := mustReadFrame(t, conn)
	if full.Type != proto.TypeFullState {
		t.Fatalf("expected second frame type %q, got %q", proto.TypeFullState, full.Type)
	}
	if full.State == nil {
		t.Fatalf("expected full state payload, got %+v", full)
	}
	if got := len(full.State.Particles.Positions); got != 3*sim.MinParticleCount {
		t.Fatalf("expected %d position components, got %d", 3*sim.MinParticleCount, got)
	}
	if got := len(full.State.Particles.Classes); got != sim.MinParticleCount {
		t.Fatalf("expected %d spectral classes, got %d", sim.MinParticleCount, got)
	}
	if _, ok := full.State.Players[hello.ID]; !ok {
		t.Fatalf("expected own player record in full state, got %+v", full.State.Players)
	}
	if full.State.SimulationTime != 0 {
		t.Fatalf("expected zero simulation time on an idle hub, got %f", full.State.SimulationTime)
	}

	roster := mustReadFrame(t, conn)
	if roster.Type != proto.TypePlayerList {
		t.Fatalf("expected roster frame, got %+v", roster)
	}
	if len(roster.Players) != 1 || roster.Players[0] != hello.ID {
		t.Fatalf("expected roster [%d], got %v", hello.ID, roster.Players)
	}
}

func TestHandlerAnnouncesRosterChanges(t *testing.T) {
	hub := newWSHub(sim.MinParticleCount)
	srv := newSubscriberServer(t, hub)

	first := dialSubscriber(t, srv)
	drainWelcome(t, first, 1)

	second := dialSubscriber(t, srv)
	drainWelcome(t, second, 2)

	grown := waitForFrame(t, first, func(frame frameProbe) bool {
		return frame.Type == proto.TypePlayerList && len(frame.Players) == 2
	})
	if grown.Players[0] != 1 || grown.Players[1] != 2 {
		t.Fatalf("expected roster [1 2], got %v", grown.Players)
	}

	second.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	second.Close()

	shrunk := waitForFrame(t, first, func(frame frameProbe) bool {
		return frame.Type == proto.TypePlayerList && len(frame.Players) == 1
	})
	if shrunk.Players[0] != 1 {
		t.Fatalf("expected roster [1] after disconnect, got %v", shrunk.Players)
	}
}

func TestHandlerRelaysPositionUpdatesToOthersOnly(t *testing.T) {
	hub := newWSHub(sim.MinParticleCount)
	srv := newSubscriberServer(t, hub)

	mover := dialSubscriber(t, srv)
	drainWelcome(t, mover, 1)

	watcher := dialSubscriber(t, srv)
	drainWelcome(t, watcher, 2)

	waitForFrame(t, mover, func(frame frameProbe) bool {
		return frame.Type == proto.TypePlayerList && len(frame.Players) == 2
	})

	writeClientMessage(t, mover, `{"type":"updatePosition","position":{"x":5,"y":-6}}`)

	relayed := waitForFrame(t, watcher, func(frame frameProbe) bool {
		return frame.Type == proto.TypePlayerUpdate
	})
	if relayed.PlayerID != 1 {
		t.Fatalf("expected relay for player 1, got %d", relayed.PlayerID)
	}
	if relayed.Data == nil || relayed.Data.Position.X != 5 || relayed.Data.Position.Y != -6 {
		t.Fatalf("expected relayed position (5,-6), got %+v", relayed.Data)
	}

	// The mover must never see its own echo. Writes to one subscriber are
	// ordered, so after the watcher moves, the mover's next frame has to be
	// the watcher's update.
	writeClientMessage(t, watcher, `{"type":"updatePosition","position":{"x":9,"y":9}}`)

	next := mustReadFrame(t, mover)
	if next.Type != proto.TypePlayerUpdate || next.PlayerID != 2 {
		t.Fatalf("expected watcher relay as the mover's next frame, got %+v", next)
	}
}

func TestHandlerAppliesParticleCountCommands(t *testing.T) {
	hub := newWSHub(600)
	srv := newSubscriberServer(t, hub)
	conn := dialSubscriber(t, srv)
	drainWelcome(t, conn, 1)

	writeClientMessage(t, conn, `{"type":"setParticleCount","count":10}`)

	notice := waitForFrame(t, conn, func(frame frameProbe) bool {
		return frame.Type == proto.TypeSystemMessage
	})
	if notice.Text != "Particle count set to 500" {
		t.Fatalf("expected clamped notice, got %q", notice.Text)
	}

	full := mustReadFrame(t, conn)
	if full.Type != proto.TypeFullState {
		t.Fatalf("expected resync full state after the notice, got %+v", full)
	}
	if got := len(full.State.Particles.Classes); got != sim.MinParticleCount {
		t.Fatalf("expected %d spectral classes after clamp, got %d", sim.MinParticleCount, got)
	}
	if full.State.SimulationTime != 0 {
		t.Fatalf("expected simulation time reset, got %f", full.State.SimulationTime)
	}

	if got := hub.CurrentConfig().ParticleCount; got != sim.MinParticleCount {
		t.Fatalf("expected hub config particle count %d, got %d", sim.MinParticleCount, got)
	}
}

func TestHandlerSurvivesMalformedMessages(t *testing.T) {
	hub := newWSHub(sim.MinParticleCount)
	srv := newSubscriberServer(t, hub)

	sender := dialSubscriber(t, srv)
	drainWelcome(t, sender, 1)

	watcher := dialSubscriber(t, srv)
	drainWelcome(t, watcher, 2)

	writeClientMessage(t, sender, `not json`)
	writeClientMessage(t, sender, `{"ver":9,"type":"updatePosition","position":{"x":1,"y":2}}`)
	writeClientMessage(t, sender, `{"type":"teleport"}`)
	writeClientMessage(t, sender, `{"type":"updatePosition","position":{"x":3.5,"y":4.25}}`)

	relayed := waitForFrame(t, watcher, func(frame frameProbe) bool {
		return frame.Type == proto.TypePlayerUpdate && frame.PlayerID == 1
	})
	if relayed.Data == nil || relayed.Data.Position.X != 3.5 || relayed.Data.Position.Y != 4.25 {
		t.Fatalf("expected the valid update to survive the garbage, got %+v", relayed.Data)
	}
}

func TestHandlerStreamsParticleUpdatesWhileRunning(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.ParticleCount = sim.MinParticleCount
	hub := server.NewHubWithConfig(server.HubConfig{
		Sim:               cfg,
		BroadcastInterval: 10 * time.Millisecond,
		FullInterval:      time.Minute,
		Logger:            telemetry.LoggerFunc(nil),
	})
	hub.Start()
	defer hub.Stop()

	srv := newSubscriberServer(t, hub)
	conn := dialSubscriber(t, srv)

	update := waitForFrame(t, conn, func(frame frameProbe) bool {
		return frame.Type == proto.TypeParticleUpdate && frame.Time > 0
	})
	if got := len(update.Particles); got != 3*sim.MinParticleCount {
		t.Fatalf("expected %d position components per delta, got %d", 3*sim.MinParticleCount, got)
	}
	if update.Ver != proto.Version {
		t.Fatalf("expected protocol version %d, got %d", proto.Version, update.Ver)
	}
}
