package websocket

import (
	"encoding/json"

	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/rs/zerolog/log"
)

// Message defines the structure for websocket messages.
type Message struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

const (
	ActionEventsChanged = "events_changed"
	ActionViewerChanged = "viewer_changed"
	ActionError         = "error"

	// Client-sent actions.
	ActionAuthenticate = "authenticate"
	ActionLogout       = "logout"
	ActionPing         = "ping"
	ActionPong         = "pong"
)

// NewEventsChangedMessage tells a client to re-fetch its visible events.
func NewEventsChangedMessage(change models.Change) []byte {
	return encode(ActionEventsChanged, change)
}

// NewViewerChangedMessage confirms the identity now bound to the connection. A nil viewer means anonymous.
func NewViewerChangedMessage(viewer *models.Viewer) []byte {
	return encode(ActionViewerChanged, map[string]*models.Viewer{"viewer": viewer})
}

func NewErrorMessage(message string) []byte {
	return encode(ActionError, map[string]string{"message": message})
}

func NewPongMessage() []byte {
	return encode(ActionPong, nil)
}

func encode(action string, payload any) []byte {
	msg := Message{Action: action}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			log.Error().Err(err).Str("action", action).Msg("Failed to encode websocket payload")
			return []byte(`{"action":"error"}`)
		}
		msg.Payload = raw
	}
	out, _ := json.Marshal(msg)
	return out
}
