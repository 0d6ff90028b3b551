package sim

import (
	"math"
	"sort"
)

// Vec2 is a position on the simulation plane.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Player is the authoritative record for one connected gravity well.
type Player struct {
	ID              uint64  `json:"id"`
	Position        Vec2    `json:"position"`
	GravityStrength float64 `json:"gravityStrength"`
	LensingStrength float64 `json:"lensingStrength"`
	PrismRadius     float64 `json:"prismRadius"`
	PrismStrength   float64 `json:"prismStrength"`
	PrismDispersion float64 `json:"prismDispersion"`
}

// PlayerParams carries optional overrides for a player record. Nil fields
// leave the stored value untouched.
type PlayerParams struct {
	GravityStrength *float64 `json:"gravityStrength,omitempty"`
	LensingStrength *float64 `json:"lensingStrength,omitempty"`
	PrismRadius     *float64 `json:"prismRadius,omitempty"`
	PrismStrength   *float64 `json:"prismStrength,omitempty"`
	PrismDispersion *float64 `json:"prismDispersion,omitempty"`
}

// Registry owns the player records for one hub. It is not internally
// synchronized; the hub serializes access alongside the particle field.
type Registry struct {
	players map[uint64]*Player
	base    Config
}

// NewRegistry builds an empty registry whose defaults derive from cfg.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		players: make(map[uint64]*Player),
		base:    cfg.Normalized(),
	}
}

// Add registers a player with defaults merged under the provided overrides.
// Re-adding an id replaces the stored record.
func (r *Registry) Add(id uint64, params PlayerParams) Player {
	player := &Player{
		ID:              id,
		GravityStrength: r.base.GravityStrength,
		LensingStrength: defaultLensingStrength,
		PrismRadius:     r.base.PrismRadius,
		PrismStrength:   defaultPrismStrength,
		PrismDispersion: defaultPrismDispersion,
	}
	player.apply(params)
	r.players[id] = player
	return *player
}

// Remove deletes a player record. Removing an absent id reports false.
func (r *Registry) Remove(id uint64) bool {
	if _, ok := r.players[id]; !ok {
		return false
	}
	delete(r.players, id)
	return true
}

// UpdatePosition moves a player's well. Unknown ids are ignored.
func (r *Registry) UpdatePosition(id uint64, x, y float64) (Player, bool) {
	player, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	if finite(x) {
		player.Position.X = x
	}
	if finite(y) {
		player.Position.Y = y
	}
	return *player, true
}

// UpdateParams merges overrides into a player record. Unknown ids are ignored.
func (r *Registry) UpdateParams(id uint64, params PlayerParams) (Player, bool) {
	player, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	player.apply(params)
	return *player, true
}

// Get returns a copy of the stored record.
func (r *Registry) Get(id uint64) (Player, bool) {
	player, ok := r.players[id]
	if !ok {
		return Player{}, false
	}
	return *player, true
}

// Len reports the number of registered players.
func (r *Registry) Len() int {
	return len(r.players)
}

// IDs returns the registered player ids in ascending order.
func (r *Registry) IDs() []uint64 {
	ids := make([]uint64, 0, len(r.players))
	for id := range r.players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Snapshot copies every player record keyed by id.
func (r *Registry) Snapshot() map[uint64]Player {
	players := make(map[uint64]Player, len(r.players))
	for id, player := range r.players {
		players[id] = *player
	}
	return players
}

// Wells returns the active gravity wells in id order so force accumulation
// stays deterministic across ticks.
func (r *Registry) Wells() []Well {
	wells := make([]Well, 0, len(r.players))
	for _, id := range r.IDs() {
		player := r.players[id]
		wells = append(wells, Well{
			X:               player.Position.X,
			Y:               player.Position.Y,
			GravityStrength: player.GravityStrength,
			LensingStrength: player.LensingStrength,
			PrismRadius:     player.PrismRadius,
			PrismStrength:   player.PrismStrength,
			PrismDispersion: player.PrismDispersion,
		})
	}
	return wells
}

// apply merges overrides field-wise, skipping values that would corrupt the
// simulation (non-finite numbers, non-positive prism radius).
func (p *Player) apply(params PlayerParams) {
	if params.GravityStrength != nil && finite(*params.GravityStrength) {
		p.GravityStrength = *params.GravityStrength
	}
	if params.LensingStrength != nil && finite(*params.LensingStrength) {
		p.LensingStrength = *params.LensingStrength
	}
	if params.PrismRadius != nil && finite(*params.PrismRadius) && *params.PrismRadius > 0 {
		p.PrismRadius = *params.PrismRadius
	}
	if params.PrismStrength != nil && finite(*params.PrismStrength) {
		p.PrismStrength = *params.PrismStrength
	}
	if params.PrismDispersion != nil && finite(*params.PrismDispersion) {
		p.PrismDispersion = *params.PrismDispersion
	}
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
