package models

import "time"

// Event is a dated calendar entry owned by the viewer who created it.
type Event struct {
	ID                 string    `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	StartDate          time.Time `json:"startDate"`
	EndDate            time.Time `json:"endDate"`
	Location           string    `json:"location"`
	Category           string    `json:"category"`
	CreatedBy          string    `json:"createdBy"`
	Participants       []string  `json:"participants"`
	IsPublic           bool      `json:"isPublic"`
	IsGlobalAdminEvent bool      `json:"isGlobalAdminEvent"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Event dates must fall in [EarliestDate, LatestDate). The bounds sit inside
// the range of int64 nanoseconds since the Unix epoch.
var (
	EarliestDate = time.Date(1678, time.January, 1, 0, 0, 0, 0, time.UTC)
	LatestDate   = time.Date(2262, time.January, 1, 0, 0, 0, 0, time.UTC)
)

// ValidDate reports whether t is set and inside the supported range.
func ValidDate(t time.Time) bool {
	return !t.IsZero() && !t.Before(EarliestDate) && t.Before(LatestDate)
}

// EventDraft is the client payload for creating an event. Any createdBy sent
// by the client is dropped during decoding.
type EventDraft struct {
	Title              string     `json:"title" validate:"required,max=200"`
	Description        string     `json:"description" validate:"max=5000"`
	StartDate          time.Time  `json:"startDate" validate:"required"`
	EndDate            *time.Time `json:"endDate"`
	Location           string     `json:"location" validate:"max=500"`
	Category           string     `json:"category" validate:"max=100"`
	Participants       []string   `json:"participants"`
	IsPublic           bool       `json:"isPublic"`
	IsGlobalAdminEvent *bool      `json:"isGlobalAdminEvent"`
	IsAdminEvent       *bool      `json:"isAdminEvent"`
}

// GlobalFlag reports the requested global admin flag, accepting either field name.
func (d EventDraft) GlobalFlag() bool {
	if d.IsGlobalAdminEvent != nil {
		return *d.IsGlobalAdminEvent
	}
	return d.IsAdminEvent != nil && *d.IsAdminEvent
}

// Event converts the draft into an unsaved event. EndDate falls back to StartDate.
func (d EventDraft) Event() Event {
	end := d.StartDate
	if d.EndDate != nil && !d.EndDate.IsZero() {
		end = *d.EndDate
	}
	return Event{
		Title:              d.Title,
		Description:        d.Description,
		StartDate:          d.StartDate,
		EndDate:            end,
		Location:           d.Location,
		Category:           d.Category,
		Participants:       d.Participants,
		IsPublic:           d.IsPublic,
		IsGlobalAdminEvent: d.GlobalFlag(),
	}
}

// EventPatch is a partial update. Nil fields are left untouched; id, createdBy
// and createdAt have no counterpart here and can never be patched.
type EventPatch struct {
	Title              *string    `json:"title" validate:"omitempty,max=200"`
	Description        *string    `json:"description" validate:"omitempty,max=5000"`
	StartDate          *time.Time `json:"startDate"`
	EndDate            *time.Time `json:"endDate"`
	Location           *string    `json:"location" validate:"omitempty,max=500"`
	Category           *string    `json:"category" validate:"omitempty,max=100"`
	Participants       []string   `json:"participants"`
	IsPublic           *bool      `json:"isPublic"`
	IsGlobalAdminEvent *bool      `json:"isGlobalAdminEvent"`
	IsAdminEvent       *bool      `json:"isAdminEvent"`
}

// GlobalFlag returns the requested global admin flag, or nil when the patch does not touch it.
func (p EventPatch) GlobalFlag() *bool {
	if p.IsGlobalAdminEvent != nil {
		return p.IsGlobalAdminEvent
	}
	return p.IsAdminEvent
}

// Apply returns e with every non-nil field of the patch written over it.
func (p EventPatch) Apply(e Event) Event {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if p.StartDate != nil {
		e.StartDate = *p.StartDate
	}
	if p.EndDate != nil {
		e.EndDate = *p.EndDate
	}
	if p.Location != nil {
		e.Location = *p.Location
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Participants != nil {
		e.Participants = p.Participants
	}
	if p.IsPublic != nil {
		e.IsPublic = *p.IsPublic
	}
	if flag := p.GlobalFlag(); flag != nil {
		e.IsGlobalAdminEvent = *flag
	}
	return e
}
