package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/isdelr/ender-calendar-be/internal/auth"
	ws "github.com/isdelr/ender-calendar-be/internal/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocketHandler handles upgrading HTTP connections to WebSocket connections.
type WebSocketHandler struct {
	hub           *ws.Hub
	authenticator *auth.Authenticator
	upgrader      websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocketHandler. Browsers may only
// connect from allowedOrigins; "*" allows any origin.
func NewWebSocketHandler(hub *ws.Hub, authenticator *auth.Authenticator, allowedOrigins []string) *WebSocketHandler {
	origins := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[o] = true
	}
	return &WebSocketHandler{
		hub:           hub,
		authenticator: authenticator,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || origins["*"] || origins[origin]
			},
		},
	}
}

type authenticatePayload struct {
	Token string `json:"token"`
}

// Serve handles the WebSocket connection request. The connection starts out
// as the request's viewer, or as the owner of a ?token= query parameter.
func (h *WebSocketHandler) Serve(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	if token := r.URL.Query().Get("token"); token != "" && viewer == nil {
		v, err := h.authenticator.ViewerFromToken(token)
		if err != nil {
			WriteMessage(w, http.StatusUnauthorized, "Invalid auth token")
			return
		}
		viewer = v
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade websocket connection")
		return
	}

	client := ws.NewClient(h.hub, conn)
	h.hub.Register(client)
	if viewer != nil {
		h.hub.Identify(client, viewer)
	}

	go client.WritePump()
	go client.ReadPump(h.handleIncomingWSMessage)
}

// handleIncomingWSMessage processes messages received from a websocket client.
func (h *WebSocketHandler) handleIncomingWSMessage(client *ws.Client, message []byte) {
	var msg ws.Message
	if err := json.Unmarshal(message, &msg); err != nil {
		log.Warn().Err(err).Msg("Error decoding websocket message")
		client.Reply(ws.NewErrorMessage("Invalid message"))
		return
	}

	switch msg.Action {
	case ws.ActionAuthenticate:
		var payload authenticatePayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil || payload.Token == "" {
			client.Reply(ws.NewErrorMessage("Missing token"))
			return
		}
		viewer, err := h.authenticator.ViewerFromToken(payload.Token)
		if err != nil {
			log.Debug().Err(err).Msg("Websocket authentication failed")
			client.Reply(ws.NewErrorMessage("Invalid auth token"))
			return
		}
		h.hub.Identify(client, viewer)

	case ws.ActionLogout:
		h.hub.Identify(client, nil)

	case ws.ActionPing:
		client.Reply(ws.NewPongMessage())

	default:
		log.Warn().Str("action", msg.Action).Msg("Unknown websocket action received")
		client.Reply(ws.NewErrorMessage("Unknown action: " + msg.Action))
	}
}
