package ws

import (
	"context"
	"log"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"prismwell/server"
	"prismwell/server/internal/net/proto"
	"prismwell/server/internal/telemetry"
	"prismwell/server/logging"
	netlog "prismwell/server/logging/network"
)

// Handler upgrades websocket requests and pumps inbound client messages into
// the hub. It never writes frames itself; all outbound traffic flows through
// the hub fan-out so ordering guarantees hold in one place.
type Handler struct {
	hub       *server.Hub
	logger    telemetry.Logger
	publisher logging.Publisher
	upgrader  websocket.Upgrader
}

// NewHandler constructs a websocket handler for the given hub.
func NewHandler(hub *server.Hub, logger telemetry.Logger, publisher logging.Publisher) *Handler {
	if logger == nil {
		logger = telemetry.WrapLogger(log.Default())
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &Handler{
		hub:       hub,
		logger:    logger,
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// ServeHTTP upgrades the request, registers the player, and runs the read
// loop until the connection drops.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade failed: %v", err)
		return
	}

	id, err := h.hub.Register(conn)
	if err != nil {
		h.logger.Printf("player registration failed: %v", err)
		conn.Close()
		return
	}

	h.readLoop(id, conn)
}

// readLoop drains one connection. Malformed payloads are logged and dropped;
// the session only ends when the underlying read fails.
func (h *Handler) readLoop(id uint64, conn *websocket.Conn) {
	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.hub.Unregister(id, "connection closed")
			return
		}

		msg, err := proto.DecodeClientMessage(payload)
		if err != nil {
			h.logger.Printf("discarding malformed message from player %d: %v", id, err)
			netlog.MessageRejected(context.Background(), h.publisher, h.hub.Ticks(), connectionRef(id), netlog.MessageRejectedPayload{
				Error: err.Error(),
				Bytes: len(payload),
			}, nil)
			continue
		}

		h.hub.MarkActivity(id)

		switch msg.Type {
		case proto.TypeUpdatePosition:
			if msg.Position == nil {
				continue
			}
			h.hub.UpdatePlayerPosition(id, msg.Position.X, msg.Position.Y)
		case proto.TypeUpdateParams:
			if msg.Params == nil {
				continue
			}
			h.hub.UpdatePlayerParams(id, *msg.Params)
		case proto.TypeSetParticleCount:
			if msg.Count == nil {
				continue
			}
			h.hub.SetParticleCount(*msg.Count)
		default:
			h.logger.Printf("unknown message type %q from player %d", msg.Type, id)
		}
	}
}

func connectionRef(id uint64) logging.EntityRef {
	return logging.EntityRef{ID: strconv.FormatUint(id, 10), Kind: logging.EntityKindConnection}
}
