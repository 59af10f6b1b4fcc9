package model

import "time"

// Status is the lifecycle state of a scheduled session.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// SourceDB marks sessions read from the studio database. Sessions imported
// from an external calendar feed use "feed:<feed id>".
const SourceDB = "db"

// Client is the artist a session is booked for.
type Client struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Room is the studio room a session takes place in.
type Room struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Engineer is the team member running the session.
type Engineer struct {
	ID       string `json:"id"`
	FullName string `json:"full_name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// DisplayName prefers the full name and falls back to the email address.
func (e *Engineer) DisplayName() string {
	if e == nil {
		return ""
	}
	if e.FullName != "" {
		return e.FullName
	}
	return e.Email
}

// Session is a booked block of studio time. The calendar engine consumes
// sessions read-only; relations are for display only.
type Session struct {
	ID       string `json:"id"`
	StudioID string `json:"studio_id"`

	// Title is set for sessions imported from calendar feeds.
	Title  string `json:"title,omitempty"`
	Source string `json:"source"`

	// StartTime / EndTime are absolute instants.
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	Status    Status    `json:"status"`

	Client   *Client   `json:"client,omitempty"`
	Room     *Room     `json:"room,omitempty"`
	Engineer *Engineer `json:"engineer,omitempty"`
}

// Label is the primary display text: client name, then title.
func (s *Session) Label() string {
	if s.Client != nil && s.Client.Name != "" {
		return s.Client.Name
	}
	if s.Title != "" {
		return s.Title
	}
	return "Session"
}

// RoomName returns the room name or "".
func (s *Session) RoomName() string {
	if s.Room == nil {
		return ""
	}
	return s.Room.Name
}

// Studio is the tenant that owns sessions.
type Studio struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// Timezone is an IANA name; empty means UTC.
	Timezone string `json:"timezone"`
}

// TimezoneOrUTC returns the configured timezone name, defaulting to "UTC".
func (s *Studio) TimezoneOrUTC() string {
	if s == nil || s.Timezone == "" {
		return "UTC"
	}
	return s.Timezone
}
