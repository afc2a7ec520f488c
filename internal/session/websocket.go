package session

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"podnotes/api/internal/collab"
	"podnotes/api/internal/outline"
)

const (
	writeTimeout   = 5 * time.Second
	pongTimeout    = 60 * time.Second
	pingInterval   = 25 * time.Second
	maxMessageSize = 64 << 10

	codeForbidden = "forbidden"
)

// inbound is one client message: an outline operation, or one of
// "focus", "blur" and "resync".
type inbound struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params"`
}

type focusParams struct {
	UUID string `json:"uuid"`
}

type snapshotMessage struct {
	Type     string             `json:"type"`
	ID       string             `json:"id,omitempty"`
	Session  string             `json:"session_id"`
	Nodes    []outline.NodeView `json:"nodes"`
	Presence []collab.Presence  `json:"presence"`
}

type ackMessage struct {
	Type   string         `json:"type"`
	ID     string         `json:"id,omitempty"`
	Result outline.Result `json:"result"`
}

type errorMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Op      string `json:"op,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Handler serves the WebSocket transport for sessions.
type Handler struct {
	engine   Engine
	hub      Hub
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

func NewHandler(engine Engine, hub Hub, allowedOrigin string, logger zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		hub:    hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowedOrigin == "*" || origin == "" || strings.EqualFold(origin, allowedOrigin)
			},
		},
		log: logger,
	}
}

// Serve upgrades the request and runs the session until either side closes.
// A read-only session still receives events and may set presence.
func (h *Handler) Serve(w http.ResponseWriter, r *http.Request, containerID, userID string, readOnly bool) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sess, nodes, err := Open(ctx, h.engine, h.hub, containerID, userID, h.log)
	if err != nil {
		_ = writeJSON(conn, errorFor("", "open", err))
		return
	}
	defer sess.Close(context.Background())

	outbox := make(chan any, 16)
	outbox <- snapshotMessage{Type: "snapshot", Session: sess.ID, Nodes: outline.ViewsOf(nodes), Presence: sess.Presence()}

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, sess, outbox)
		cancel()
	}()

	h.readLoop(ctx, conn, sess, readOnly, outbox)
	cancel()
	<-done
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, sess *Session, readOnly bool, outbox chan<- any) {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var msg inbound
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("websocket read failed")
			}
			return
		}
		reply := h.handle(ctx, sess, readOnly, msg)
		if reply == nil {
			continue
		}
		select {
		case outbox <- reply:
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) handle(ctx context.Context, sess *Session, readOnly bool, msg inbound) any {
	name := strings.ToLower(strings.TrimSpace(msg.Op))
	switch name {
	case "focus", "blur":
		var params focusParams
		if err := json.Unmarshal(msg.Params, &params); err != nil || strings.TrimSpace(params.UUID) == "" {
			return errorMessage{Type: "error", ID: msg.ID, Op: msg.Op, Code: string(outline.KindValidation), Message: "uuid is required"}
		}
		if name == "focus" {
			sess.Focus(ctx, params.UUID)
		} else {
			sess.Blur(ctx, params.UUID)
		}
		return nil
	case "resync":
		nodes, err := sess.Resync(ctx)
		if err != nil {
			return errorFor(msg.ID, msg.Op, err)
		}
		return snapshotMessage{Type: "snapshot", ID: msg.ID, Session: sess.ID, Nodes: outline.ViewsOf(nodes), Presence: sess.Presence()}
	}

	op, err := outline.ParseOperation(msg.Op, msg.Params)
	if err != nil {
		return errorFor(msg.ID, msg.Op, err)
	}
	if readOnly {
		return errorMessage{Type: "error", ID: msg.ID, Op: msg.Op, Code: codeForbidden, Message: "session is read-only"}
	}
	result, err := sess.Submit(ctx, op)
	if err != nil {
		return errorFor(msg.ID, msg.Op, err)
	}
	return ackMessage{Type: "ack", ID: msg.ID, Result: result}
}

// writeLoop is the only writer on conn.
func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sess *Session, outbox <-chan any) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	events := sess.Receive()
	for {
		var msg any
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeTimeout))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
			continue
		case reply := <-outbox:
			msg = reply
		case evt, ok := <-events:
			if !ok {
				return
			}
			msg = evt
		case <-sess.NeedsResync():
			msg = collab.Event{Type: collab.EventResync, ContainerID: sess.ContainerID}
		}
		if err := writeJSON(conn, msg); err != nil {
			h.log.Debug().Err(err).Str("session_id", sess.ID).Msg("websocket write failed")
			return
		}
	}
}

func writeJSON(conn *websocket.Conn, msg any) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return conn.WriteJSON(msg)
}

func errorFor(id, op string, err error) errorMessage {
	code := string(outline.KindOf(err))
	message := err.Error()
	if code == "" {
		code = "internal"
		if errors.Is(err, context.Canceled) {
			code = "canceled"
		}
		message = "operation failed"
	}
	return errorMessage{Type: "error", ID: id, Op: op, Code: code, Message: message}
}
