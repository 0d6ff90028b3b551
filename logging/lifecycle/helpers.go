package lifecycle

import (
	"context"

	"prismwell/server/logging"
)

const (
	// EventPlayerConnected is emitted when a player channel registers with the hub.
	EventPlayerConnected logging.EventType = "lifecycle.player_connected"
	// EventPlayerDisconnected is emitted when a player channel leaves the hub.
	EventPlayerDisconnected logging.EventType = "lifecycle.player_disconnected"
)

// PlayerConnectedPayload captures session metadata for a new player.
type PlayerConnectedPayload struct {
	SessionID  string `json:"sessionId"`
	RemoteAddr string `json:"remoteAddr,omitempty"`
}

// PlayerDisconnectedPayload captures the reason a player left.
type PlayerDisconnectedPayload struct {
	SessionID string `json:"sessionId"`
	Reason    string `json:"reason"`
}

// PlayerConnected publishes a player registration event.
func PlayerConnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerConnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerConnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.SessionID,
	}
	pub.Publish(ctx, event)
}

// PlayerDisconnected publishes a player removal event.
func PlayerDisconnected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload PlayerDisconnectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventPlayerDisconnected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLifecycle,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.SessionID,
	}
	pub.Publish(ctx, event)
}
