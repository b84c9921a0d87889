package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mediationai/mediator/internal/domain"
	"github.com/mediationai/mediator/internal/service"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

// Subscriber is the event feed the push channel reads from.
type Subscriber interface {
	Subscribe(disputeID uuid.UUID) (<-chan domain.Event, func())
}

type wsMessage struct {
	Type    string          `json:"type"`
	Dispute *domain.Dispute `json:"dispute,omitempty"`
}

// Clients authenticate with a bearer token, so any origin may connect.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type WSHandler struct {
	svc    *service.DisputeService
	events Subscriber
	logger *zap.Logger
}

func NewWSHandler(svc *service.DisputeService, events Subscriber, logger *zap.Logger) *WSHandler {
	return &WSHandler{svc: svc, events: events, logger: logger}
}

// DisputeEvents streams status changes of one dispute to a party. The first
// message is a snapshot of the dispute.
func (h *WSHandler) DisputeEvents(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, ok := uuidParam(w, r, "id", "dispute id")
	if !ok {
		return
	}

	// Subscribe before reading the snapshot so a change landing in between is
	// still delivered after it.
	events, cancel := h.events.Subscribe(id)
	defer cancel()

	d, err := h.svc.Get(r.Context(), id, user.ID)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "open event stream")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.serve(conn, events, &wsMessage{Type: "snapshot", Dispute: d})
}

// AllEvents streams events of every dispute to the admin console.
func (h *WSHandler) AllEvents(w http.ResponseWriter, r *http.Request) {
	events, cancel := h.events.Subscribe(uuid.Nil)
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	h.serve(conn, events, nil)
}

// serve owns conn until either side goes away. Only this goroutine writes;
// the reader hands ping replies over a channel.
func (h *WSHandler) serve(conn *websocket.Conn, events <-chan domain.Event, first *wsMessage) {
	defer func() { _ = conn.Close() }()

	pongs := make(chan struct{}, 1)
	readerDone := make(chan struct{})
	go h.readLoop(conn, pongs, readerDone)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if first != nil {
		if err := writeMessage(conn, first); err != nil {
			return
		}
	}

	for {
		select {
		case e, ok := <-events:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "subscription closed"),
					time.Now().Add(writeWait))
				return
			}
			if err := writeMessage(conn, e); err != nil {
				return
			}
		case <-pongs:
			if err := writeMessage(conn, wsMessage{Type: "pong"}); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-readerDone:
			return
		}
	}
}

func (h *WSHandler) readLoop(conn *websocket.Conn, pongs chan<- struct{}, done chan<- struct{}) {
	defer close(done)

	conn.SetReadLimit(maxInboundSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg wsMessage
		if json.Unmarshal(data, &msg) != nil || msg.Type != "ping" {
			continue
		}
		select {
		case pongs <- struct{}{}:
		default:
		}
	}
}

func writeMessage(conn *websocket.Conn, v any) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}
