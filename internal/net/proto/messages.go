package proto

import (
	"encoding/json"
	"fmt"

	"prismwell/server/internal/sim"
)

// Version tracks the wire-protocol revision expected by clients.
const Version = 1

// Client message type identifiers.
const (
	TypeUpdatePosition   = "updatePosition"
	TypeUpdateParams     = "updateParams"
	TypeSetParticleCount = "setParticleCount"
)

// Server message type identifiers.
const (
	TypeHello          = "id"
	TypeFullState      = "fullState"
	TypeParticleUpdate = "particleUpdate"
	TypePlayerUpdate   = "playerUpdate"
	TypePlayerList     = "players"
	TypeSystemMessage  = "systemMessage"
)

// ClientMessage captures an inbound websocket message. Every payload field is
// optional so a single decode covers all client message types.
type ClientMessage struct {
	Ver      int               `json:"ver,omitempty"`
	Type     string            `json:"type"`
	Position *sim.Vec2         `json:"position,omitempty"`
	Params   *sim.PlayerParams `json:"params,omitempty"`
	Count    *int              `json:"count,omitempty"`
}

// DecodeClientMessage converts a raw websocket payload into a structured message.
func DecodeClientMessage(payload []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, err
	}
	if msg.Ver == 0 {
		msg.Ver = Version
	}
	if msg.Ver != Version {
		return msg, fmt.Errorf("unsupported client protocol version %d", msg.Ver)
	}
	if msg.Type == "" {
		return msg, fmt.Errorf("missing message type")
	}
	return msg, nil
}

// MetricsV1 is the observational block attached to every state frame.
type MetricsV1 struct {
	PhysicsTime    float64 `json:"physicsTime"`
	AvgPhysicsTime float64 `json:"avgPhysicsTime"`
	ParticleCount  int     `json:"particleCount"`
	PlayerCount    int     `json:"playerCount"`
}

// ParticleSetV1 carries the complete particle arrays. Positions and velocities
// are flat x,y,z triplets; the z component is always zero.
type ParticleSetV1 struct {
	Positions  []float64 `json:"positions"`
	Velocities []float64 `json:"velocities"`
	Classes    []int     `json:"classes"`
}

// StateV1 is the authoritative simulation snapshot inside a full-state frame.
type StateV1 struct {
	Particles      ParticleSetV1         `json:"particles"`
	Players        map[uint64]sim.Player `json:"players"`
	SimulationTime float64               `json:"simulationTime"`
}

// HelloV1 delivers the assigned player id immediately after connect.
type HelloV1 struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	ID   uint64 `json:"id"`
}

// NewHello builds the id assignment frame.
func NewHello(id uint64) HelloV1 {
	return HelloV1{Ver: Version, Type: TypeHello, ID: id}
}

// FullStateV1 resynchronizes a client with the complete simulation state.
type FullStateV1 struct {
	Ver     int       `json:"ver"`
	Type    string    `json:"type"`
	State   StateV1   `json:"state"`
	Metrics MetricsV1 `json:"metrics"`
}

// NewFullState builds a full-state frame.
func NewFullState(state StateV1, metrics MetricsV1) FullStateV1 {
	return FullStateV1{Ver: Version, Type: TypeFullState, State: state, Metrics: metrics}
}

// ParticleUpdateV1 is the lightweight delta frame: positions only.
type ParticleUpdateV1 struct {
	Ver       int       `json:"ver"`
	Type      string    `json:"type"`
	Particles []float64 `json:"particles"`
	Time      float64   `json:"time"`
	Metrics   MetricsV1 `json:"metrics"`
}

// NewParticleUpdate builds a delta frame.
func NewParticleUpdate(positions []float64, simulationTime float64, metrics MetricsV1) ParticleUpdateV1 {
	return ParticleUpdateV1{Ver: Version, Type: TypeParticleUpdate, Particles: positions, Time: simulationTime, Metrics: metrics}
}

// PlayerUpdateV1 relays one player's merged record to other clients.
type PlayerUpdateV1 struct {
	Ver      int        `json:"ver"`
	Type     string     `json:"type"`
	PlayerID uint64     `json:"playerId"`
	Data     sim.Player `json:"data"`
}

// NewPlayerUpdate builds a player relay frame.
func NewPlayerUpdate(player sim.Player) PlayerUpdateV1 {
	return PlayerUpdateV1{Ver: Version, Type: TypePlayerUpdate, PlayerID: player.ID, Data: player}
}

// PlayerListV1 announces the current roster after a connect or disconnect.
type PlayerListV1 struct {
	Ver     int      `json:"ver"`
	Type    string   `json:"type"`
	Players []uint64 `json:"players"`
}

// NewPlayerList builds a roster frame.
func NewPlayerList(ids []uint64) PlayerListV1 {
	if ids == nil {
		ids = []uint64{}
	}
	return PlayerListV1{Ver: Version, Type: TypePlayerList, Players: ids}
}

// SystemMessageV1 carries human-readable administrative notices.
type SystemMessageV1 struct {
	Ver  int    `json:"ver"`
	Type string `json:"type"`
	Text string `json:"text"`
}

// NewSystemMessage builds an administrative notice frame.
func NewSystemMessage(text string) SystemMessageV1 {
	return SystemMessageV1{Ver: Version, Type: TypeSystemMessage, Text: text}
}
