package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/ender-calendar-be/internal/auth"
	"github.com/isdelr/ender-calendar-be/internal/ical"
	"github.com/isdelr/ender-calendar-be/internal/models"
	"github.com/isdelr/ender-calendar-be/internal/services"
	"github.com/rs/zerolog/log"
)

// EventHandler handles HTTP requests for calendar events.
type EventHandler struct {
	service           services.EventServiceProvider
	legacyOpenListing bool
}

// NewEventHandler creates a new EventHandler. With legacyOpenListing the
// list endpoint returns every stored event instead of the viewer's visible set.
func NewEventHandler(service services.EventServiceProvider, legacyOpenListing bool) *EventHandler {
	return &EventHandler{service: service, legacyOpenListing: legacyOpenListing}
}

// eventView is an event as sent to a client, with the affordances the UI needs.
type eventView struct {
	models.Event
	IsAdminEvent bool `json:"isAdminEvent"`
	CanEdit      bool `json:"canEdit"`
}

func (h *EventHandler) view(viewer *models.Viewer, e models.Event) eventView {
	return eventView{Event: e, IsAdminEvent: e.IsGlobalAdminEvent, CanEdit: h.service.CanEdit(viewer, e)}
}

// List returns the events the viewer may see, newest start date first.
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())

	var events []models.Event
	var err error
	if h.legacyOpenListing {
		events, err = h.service.AllEvents(r.Context())
	} else {
		events, err = h.service.VisibleEvents(r.Context(), viewer)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	views := make([]eventView, 0, len(events))
	for _, e := range events {
		views = append(views, h.view(viewer, e))
	}
	writeJSON(w, http.StatusOK, views)
}

// Get returns a single event.
func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	event, err := h.service.GetEvent(r.Context(), viewer, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(viewer, event))
}

// Create handles new event creation.
func (h *EventHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft models.EventDraft
	if err := decodeJSON(w, r, &draft); err != nil {
		writeError(w, r, err)
		return
	}

	viewer := auth.ViewerFromContext(r.Context())
	event, err := h.service.CreateEvent(r.Context(), viewer, draft)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.view(viewer, event))
}

// Update handles partial updates of an existing event.
func (h *EventHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch models.EventPatch
	if err := decodeJSON(w, r, &patch); err != nil {
		writeError(w, r, err)
		return
	}

	viewer := auth.ViewerFromContext(r.Context())
	event, err := h.service.UpdateEvent(r.Context(), viewer, chi.URLParam(r, "id"), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(viewer, event))
}

// Delete handles the permanent deletion of an event.
func (h *EventHandler) Delete(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	if err := h.service.DeleteEvent(r.Context(), viewer, chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	WriteMessage(w, http.StatusOK, "Event deleted successfully")
}

// DeleteAdminEvents removes every event the administrator has created.
func (h *EventHandler) DeleteAdminEvents(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	n, err := h.service.DeleteOwnAdminEvents(r.Context(), viewer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deletedCount": n})
}

// Calendar serves the viewer's visible events as an iCalendar feed.
func (h *EventHandler) Calendar(w http.ResponseWriter, r *http.Request) {
	viewer := auth.ViewerFromContext(r.Context())
	events, err := h.service.VisibleEvents(r.Context(), viewer)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="calendar.ics"`)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(ical.Encode(events, "Calendar", ical.DefaultProductID))); err != nil {
		log.Warn().Err(err).Msg("Failed to write calendar feed")
	}
}

// Health reports whether the event store is reachable.
func (h *EventHandler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Ping(r.Context()); err != nil {
		log.Error().Err(err).Msg("Health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "message": "Event store unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
