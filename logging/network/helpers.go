package network

import (
	"context"

	"prismwell/server/logging"
)

const (
	// EventSendFailed is emitted when a frame cannot be delivered to a subscriber.
	EventSendFailed logging.EventType = "network.send_failed"
	// EventMessageRejected is emitted when an inbound payload cannot be decoded.
	EventMessageRejected logging.EventType = "network.message_rejected"
)

// SendFailedPayload captures delivery failure details for one subscriber.
type SendFailedPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error"`
}

// SendFailed publishes a warning when a subscriber write fails.
func SendFailed(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload SendFailedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventSendFailed,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.SessionID,
	}
	pub.Publish(ctx, event)
}

// MessageRejectedPayload captures decode failure details for an inbound payload.
type MessageRejectedPayload struct {
	SessionID string `json:"sessionId,omitempty"`
	Error     string `json:"error"`
	Bytes     int    `json:"bytes"`
}

// MessageRejected publishes a warning when an inbound payload is discarded.
func MessageRejected(ctx context.Context, pub logging.Publisher, tick uint64, actor logging.EntityRef, payload MessageRejectedPayload, extra map[string]any) {
	if pub == nil {
		return
	}
	event := logging.Event{
		Type:     EventMessageRejected,
		Tick:     tick,
		Actor:    actor,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Payload:  payload,
		Extra:    extra,
		TraceID:  payload.SessionID,
	}
	pub.Publish(ctx, event)
}
