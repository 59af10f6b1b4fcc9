package ics

import (
	"time"

	ical "github.com/arran4/golang-ical"

	"studiocal/internal/model"
)

const productID = "-//studiocal//studio calendar//EN"

// Export renders sessions as a VCALENDAR that calendar apps can subscribe to.
// stamp is written as DTSTAMP on every event.
func Export(studio model.Studio, sessions []model.Session, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(productID)
	cal.SetXWRCalName(studio.Name)
	cal.SetXWRTimezone(studio.TimezoneOrUTC())

	for i := range sessions {
		s := &sessions[i]
		ev := cal.AddEvent(s.ID + "@studiocal")
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(s.StartTime.UTC())
		ev.SetEndAt(s.EndTime.UTC())
		ev.SetSummary(s.Label())
		if room := s.RoomName(); room != "" {
			ev.SetLocation(room)
		}
		if eng := s.Engineer.DisplayName(); eng != "" {
			ev.SetDescription("Engineer: " + eng)
		}
		switch s.Status {
		case model.StatusCancelled:
			ev.SetStatus(ical.ObjectStatusCancelled)
		default:
			ev.SetStatus(ical.ObjectStatusConfirmed)
		}
	}
	return cal.Serialize()
}
