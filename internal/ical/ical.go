// Package ical renders calendar events as an iCalendar (RFC 5545) feed so
// they can be subscribed to from desktop and mobile calendar apps.
package ical

import (
	"strings"

	ics "github.com/arran4/golang-ical"
	"github.com/isdelr/ender-calendar-be/internal/models"
)

// DefaultProductID identifies this server in the PRODID property.
const DefaultProductID = "-//ender//calendar//EN"

// Encode serialises events into a VCALENDAR. Callers pass only events the
// requesting viewer may see; no filtering happens here.
func Encode(events []models.Event, name, productID string) string {
	if productID == "" {
		productID = DefaultProductID
	}

	cal := ics.NewCalendar()
	cal.SetMethod(ics.MethodPublish)
	cal.SetProductId(productID)
	if name != "" {
		cal.SetXWRCalName(name)
	}

	for _, e := range events {
		event := cal.AddEvent(e.ID)
		event.SetCreatedTime(e.CreatedAt)
		event.SetDtStampTime(e.UpdatedAt)
		event.SetModifiedAt(e.UpdatedAt)
		event.SetStartAt(e.StartDate)
		event.SetEndAt(e.EndDate)
		event.SetSummary(e.Title)
		if e.Description != "" {
			event.SetDescription(e.Description)
		}
		if e.Location != "" {
			event.SetLocation(e.Location)
		}
		if category := strings.TrimSpace(e.Category); category != "" {
			event.AddProperty(ics.ComponentPropertyCategories, category)
		}
		if e.IsPublic {
			event.SetProperty(ics.ComponentPropertyClass, "PUBLIC")
		} else {
			event.SetProperty(ics.ComponentPropertyClass, "PRIVATE")
		}
	}

	return cal.Serialize()
}
