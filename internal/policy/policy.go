// Package policy decides which calendar events a viewer may see and edit, and
// shapes the public/admin flags of every write. It performs no I/O.
package policy

import (
	"fmt"
	"sort"

	"github.com/isdelr/ender-calendar-be/internal/models"
)

// AdminEventPolicy controls how events written by the distinguished admin are flagged.
type AdminEventPolicy string

const (
	// AdminEventsAlwaysGlobal broadcasts every admin-authored event.
	AdminEventsAlwaysGlobal AdminEventPolicy = "always"
	// AdminEventsOptional lets the admin choose per event; the event is public either way.
	AdminEventsOptional AdminEventPolicy = "optional"
)

// ParseAdminEventPolicy validates a configured policy name.
func ParseAdminEventPolicy(s string) (AdminEventPolicy, error) {
	switch p := AdminEventPolicy(s); p {
	case AdminEventsAlwaysGlobal, AdminEventsOptional:
		return p, nil
	case "":
		return AdminEventsAlwaysGlobal, nil
	default:
		return "", fmt.Errorf("unknown admin event policy %q", s)
	}
}

// Engine holds the two configured inputs of every decision: the admin address and the admin event policy.
type Engine struct {
	adminEmail  string
	adminPolicy AdminEventPolicy
}

// New creates an Engine for the given admin email. An empty policy defaults to
// AdminEventsAlwaysGlobal.
func New(adminEmail string, adminPolicy AdminEventPolicy) *Engine {
	if adminPolicy == "" {
		adminPolicy = AdminEventsAlwaysGlobal
	}
	return &Engine{adminEmail: adminEmail, adminPolicy: adminPolicy}
}

// AdminPolicy returns the configured admin event policy.
func (e *Engine) AdminPolicy() AdminEventPolicy {
	return e.adminPolicy
}

// IsDistinguishedAdmin reports whether email is exactly the configured admin address.
// With no admin configured nobody matches.
func (e *Engine) IsDistinguishedAdmin(email string) bool {
	return e.adminEmail != "" && email == e.adminEmail
}

// IsAdminViewer is IsDistinguishedAdmin for a possibly anonymous viewer.
func (e *Engine) IsAdminViewer(v *models.Viewer) bool {
	return v != nil && e.IsDistinguishedAdmin(v.Email)
}

// CanView reports whether event belongs in the visible event set of v.
func (e *Engine) CanView(event models.Event, v *models.Viewer) bool {
	if event.IsPublic {
		return true
	}
	return v != nil && v.UserID != "" && event.CreatedBy == v.UserID
}

// CanEdit reports whether v may update or delete event. Owners can always edit
// their own events; the admin can additionally edit global admin events it
// does not own, but never another user's ordinary event.
func (e *Engine) CanEdit(event models.Event, v *models.Viewer) bool {
	if v == nil || v.UserID == "" {
		return false
	}
	if event.CreatedBy == v.UserID {
		return true
	}
	return e.IsDistinguishedAdmin(v.Email) && event.IsGlobalAdminEvent
}

// NormalizeOnWrite returns draft with its public and global flags forced into
// a consistent state for the given author.
func (e *Engine) NormalizeOnWrite(draft models.Event, authorIsAdmin bool) models.Event {
	if authorIsAdmin {
		draft.IsPublic = true
		if e.adminPolicy == AdminEventsAlwaysGlobal {
			draft.IsGlobalAdminEvent = true
		}
	} else {
		draft.IsGlobalAdminEvent = false
	}
	if draft.IsGlobalAdminEvent {
		draft.IsPublic = true
	}
	return draft
}

// MergeVisible unions the owned and public branches of a visible event set,
// keeping the first occurrence of every id, ordered by start date descending.
func MergeVisible(owned, public []models.Event) []models.Event {
	seen := make(map[string]struct{}, len(owned)+len(public))
	merged := make([]models.Event, 0, len(owned)+len(public))
	for _, branch := range [][]models.Event{owned, public} {
		for _, ev := range branch {
			if _, dup := seen[ev.ID]; dup {
				continue
			}
			seen[ev.ID] = struct{}{}
			merged = append(merged, ev)
		}
	}
	SortByStartDesc(merged)
	return merged
}

// SortByStartDesc orders events newest start first, ties broken by id.
func SortByStartDesc(events []models.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].StartDate.Equal(events[j].StartDate) {
			return events[i].StartDate.After(events[j].StartDate)
		}
		return events[i].ID < events[j].ID
	})
}
