package analytics

import (
	"strconv"
	"time"
)

// Summary is one hourly dwell aggregate for a page zone. Page-level
// durations use an empty Zone.
type Summary struct {
	ID             int       `db:"id" json:"id"`
	Date           time.Time `db:"date" json:"date"`
	Hour           int       `db:"hour" json:"hour"`
	Page           string    `db:"page" json:"page"`
	Zone           string    `db:"zone" json:"zone"`
	Views          int64     `db:"views" json:"views"`
	TotalSeconds   int64     `db:"total_seconds" json:"totalSeconds"`
	UniqueSessions int64     `db:"unique_sessions" json:"uniqueSessions"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

func NewSummary(at time.Time, page, zone string, now time.Time) *Summary {
	at = at.UTC()
	return &Summary{
		Date:      at.Truncate(24 * time.Hour),
		Hour:      at.Hour(),
		Page:      page,
		Zone:      zone,
		UpdatedAt: now,
	}
}

func (s *Summary) AddView(seconds int) {
	s.Views++
	s.TotalSeconds += int64(seconds)
}

func (s *Summary) SetUniqueSessions(count int64) {
	s.UniqueSessions = count
}

func (s *Summary) cacheKey() string {
	return s.Date.Format("2006-01-02") + "|" + strconv.Itoa(s.Hour) + "|" + s.Page + "|" + s.Zone
}
