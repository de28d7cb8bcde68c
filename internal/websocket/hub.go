package websocket

import (
	"context"

	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/rs/zerolog/log"
)

const changeBuffer = 64

type identification struct {
	client *Client
	viewer *models.Viewer
}

// Hub maintains the set of active clients and tells them when the event set
// they can see has changed. Changes to private events only reach the
// owner's connections.
type Hub struct {
	// Registered clients, mapped to the user id they authenticated as ("" when anonymous).
	clients map[*Client]string

	// A map of user IDs to the set of clients signed in as that user.
	viewers map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	identify   chan identification
	changes    chan models.Change
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]string),
		viewers:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		identify:   make(chan identification),
		changes:    make(chan models.Change, changeBuffer),
		done:       make(chan struct{}),
	}
}

// Run starts the Hub's message processing loop and returns once ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		for client := range h.clients {
			h.drop(client)
		}
		log.Info().Msg("Websocket hub stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.clients[client] = ""
			log.Info().Int("total_clients", len(h.clients)).Msg("Client connected")
		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				h.drop(client)
				log.Info().Int("total_clients", len(h.clients)).Msg("Client disconnected")
			}
		case id := <-h.identify:
			if _, ok := h.clients[id.client]; !ok {
				continue
			}
			h.removeViewer(id.client)
			uid := ""
			if id.viewer != nil {
				uid = id.viewer.UserID
				h.addViewer(id.client, uid)
			}
			h.clients[id.client] = uid
			id.client.trySend(NewViewerChangedMessage(id.viewer))
		case change := <-h.changes:
			h.dispatch(change)
		}
	}
}

// Register adds a client. It is a no-op once the hub has stopped.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client and closes its send channel.
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Identify binds client to viewer; a nil viewer makes the connection anonymous again.
func (h *Hub) Identify(client *Client, viewer *models.Viewer) {
	select {
	case h.identify <- identification{client: client, viewer: viewer}:
	case <-h.done:
	}
}

// Notify queues a change for delivery. It never blocks the caller; when the
// queue is full the change is dropped and clients catch up on their next one.
func (h *Hub) Notify(change models.Change) {
	select {
	case h.changes <- change:
	default:
		log.Warn().Str("change", string(change.Kind)).Str("event_id", change.EventID).Msg("Websocket change queue full, dropping notification")
	}
}

func (h *Hub) dispatch(change models.Change) {
	message := NewEventsChangedMessage(change)
	if !change.Public {
		for client := range h.viewers[change.OwnerID] {
			h.send(client, message)
		}
		return
	}

	bare := message
	if change.Withdrawn {
		bare = NewEventsChangedMessage(models.Change{Kind: change.Kind})
	}
	for client, uid := range h.clients {
		if uid == change.OwnerID {
			h.send(client, message)
		} else {
			h.send(client, bare)
		}
	}
}

func (h *Hub) send(client *Client, message []byte) {
	if !client.trySend(message) {
		log.Warn().Msg("Client send buffer full, disconnecting")
		h.drop(client)
	}
}

func (h *Hub) drop(client *Client) {
	h.removeViewer(client)
	delete(h.clients, client)
	client.close()
}

func (h *Hub) addViewer(client *Client, uid string) {
	if h.viewers[uid] == nil {
		h.viewers[uid] = make(map[*Client]bool)
	}
	h.viewers[uid][client] = true
}

func (h *Hub) removeViewer(client *Client) {
	uid := h.clients[client]
	if subs, ok := h.viewers[uid]; ok {
		delete(subs, client)
		if len(subs) == 0 {
			delete(h.viewers, uid)
		}
	}
}
