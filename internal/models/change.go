package models

// ChangeKind names what happened to the event set.
type ChangeKind string

const (
	EventCreated ChangeKind = "created"
	EventUpdated ChangeKind = "updated"
	EventDeleted ChangeKind = "deleted"
	EventsPurged ChangeKind = "purged"
)

// Change is published after a successful write so subscribed viewers can
// re-fetch their visible event set. OwnerID and Public decide who is told.
type Change struct {
	Kind         ChangeKind `json:"change"`
	EventID      string     `json:"eventId,omitempty"`
	DeletedCount int        `json:"deletedCount,omitempty"`
	OwnerID      string     `json:"-"`
	// Public is true when the event was visible to everyone before or after the write.
	Public bool `json:"-"`
	// Withdrawn marks a public event that became private. Only the owner is
	// told which event changed.
	Withdrawn bool `json:"-"`
}
