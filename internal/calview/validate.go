package calview

import "studiocal/internal/model"

// Rejection names a session dropped at ingestion and why.
type Rejection struct {
	SessionID string `json:"session_id"`
	Reason    string `json:"reason"`
}

// Validate keeps sessions with a start and end time where end > start.
// Everything else is returned as a rejection instead of reaching the grids
// as a degenerate block.
func Validate(sessions []model.Session) ([]model.Session, []Rejection) {
	valid := make([]model.Session, 0, len(sessions))
	var rejected []Rejection
	for _, s := range sessions {
		var reason string
		switch {
		case s.StartTime.IsZero():
			reason = "missing start time"
		case s.EndTime.IsZero():
			reason = "missing end time"
		case !s.EndTime.After(s.StartTime):
			reason = "end time is not after start time"
		case s.Status != "" && !s.Status.Valid():
			reason = "unknown status " + string(s.Status)
		}
		if reason != "" {
			rejected = append(rejected, Rejection{SessionID: s.ID, Reason: reason})
			continue
		}
		valid = append(valid, s)
	}
	return valid, rejected
}
