package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/otcheredev/clinicflow/internal/notify"
	"github.com/otcheredev/clinicflow/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// Client actions
const (
	actionJoinClinic  = "join-clinic"
	actionLeaveClinic = "leave-clinic"
)

type wsClientMessage struct {
	Action   string    `json:"action"`
	ClinicID uuid.UUID `json:"clinic_id"`
}

type wsReply struct {
	Type     string    `json:"type"`
	ClinicID uuid.UUID `json:"clinic_id,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// WebSocketHandler streams clinic events to doctors watching their waiting
// rooms.
type WebSocketHandler struct {
	hub      *notify.Hub
	clinics  *services.ClinicService
	upgrader websocket.Upgrader
}

// NewWebSocketHandler creates the /ws handler. Browsers may connect from the
// serving origin or from allowedOrigins; "*" must be listed explicitly to
// accept any origin.
func NewWebSocketHandler(hub *notify.Hub, clinics *services.ClinicService, allowedOrigins []string) *WebSocketHandler {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &WebSocketHandler{
		hub:     hub,
		clinics: clinics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return allowOrigin(allowed, r)
			},
		},
	}
}

// allowOrigin admits clients without an Origin header (non-browser),
// same-origin pages and listed origins.
func allowOrigin(allowed map[string]bool, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || allowed["*"] || allowed[origin] {
		return true
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// Connect upgrades the request and serves the connection until it closes
func (h *WebSocketHandler) Connect(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	client := notify.NewClient(uuid.NewString(), p)
	h.hub.Register(client)
	log.Debug().Str("client_id", client.ID).Str("user_id", p.ID.String()).Msg("Websocket client connected")

	go h.writePump(client, conn)
	h.readPump(r.Context(), client, conn)
}

func (h *WebSocketHandler) readPump(ctx context.Context, client *notify.Client, conn *websocket.Conn) {
	defer func() {
		h.hub.Unregister(client)
		conn.Close()
		log.Debug().Str("client_id", client.ID).Msg("Websocket client disconnected")
	}()

	conn.SetReadLimit(wsMaxMessage)
	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			h.reply(client, wsReply{Type: "error", Error: "malformed message"})
			continue
		}
		h.handleMessage(ctx, client, msg)
	}
}

func (h *WebSocketHandler) handleMessage(ctx context.Context, client *notify.Client, msg wsClientMessage) {
	switch msg.Action {
	case actionJoinClinic:
		if _, err := h.clinics.Owned(ctx, client.Principal, msg.ClinicID); err != nil {
			reason := "not allowed to join this clinic"
			if e, ok := services.AsError(err); ok && e.Kind == services.KindNotFound {
				reason = "clinic not found"
			}
			h.reply(client, wsReply{Type: "error", ClinicID: msg.ClinicID, Error: reason})
			return
		}
		h.hub.Join(client, msg.ClinicID.String())
		h.reply(client, wsReply{Type: "joined", ClinicID: msg.ClinicID})
	case actionLeaveClinic:
		h.hub.Leave(client, msg.ClinicID.String())
		h.reply(client, wsReply{Type: "left", ClinicID: msg.ClinicID})
	default:
		h.reply(client, wsReply{Type: "error", Error: "unknown action"})
	}
}

func (h *WebSocketHandler) reply(client *notify.Client, msg wsReply) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *WebSocketHandler) writePump(client *notify.Client, conn *websocket.Conn) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
