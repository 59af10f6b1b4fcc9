package ics

import (
	"github.com/google/uuid"

	"studiocal/internal/model"
)

// sessionNamespace scopes the name-based UUIDs of feed sessions.
var sessionNamespace = uuid.MustParse("6f1c6f5e-52a4-4d1b-9a0e-3f1f6c2b7d40")

// SessionID returns the stable id of one feed occurrence. Re-importing the
// same feed yields the same ids.
func SessionID(o Occurrence) string {
	name := o.Source.StudioID + "|" + o.Source.ID + "|" + o.UID + "|" + o.InstanceKey
	return uuid.NewSHA1(sessionNamespace, []byte(name)).String()
}

// ToSessions converts occurrences to studio sessions. Instants without a
// duration cannot be placed on the grid and are skipped.
func ToSessions(occs []Occurrence) []model.Session {
	out := make([]model.Session, 0, len(occs))
	for _, o := range occs {
		if !o.End.After(o.Start) {
			continue
		}
		s := model.Session{
			ID:        SessionID(o),
			StudioID:  o.Source.StudioID,
			Title:     o.Summary,
			Source:    o.Source.SourceTag(),
			StartTime: o.Start.UTC(),
			EndTime:   o.End.UTC(),
			Status:    model.StatusScheduled,
		}
		if o.Cancelled {
			s.Status = model.StatusCancelled
		}
		if o.Location != "" {
			s.Room = &model.Room{Name: o.Location}
		}
		out = append(out, s)
	}
	return out
}
