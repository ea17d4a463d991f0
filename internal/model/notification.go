package model

import (
	"encoding/json"
	"time"
)

type NotificationType string

const (
	NotificationMonthlyRankWin NotificationType = "MONTHLY_RANK_WIN"
	NotificationSystem         NotificationType = "SYSTEM"
)

type Notification struct {
	ID        string           `json:"id" db:"id"`
	UserID    string           `json:"-" db:"user_id"`
	Type      NotificationType `json:"type" db:"type"`
	Title     string           `json:"title,omitempty" db:"title"`
	IsRead    bool             `json:"isRead" db:"is_read"`
	Metadata  json.RawMessage  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt time.Time        `json:"createdAt" db:"created_at"`
}

type RankWinMetadata struct {
	Rank  int    `json:"rank"`
	Month string `json:"month"`
}

// RankWin decodes the metadata of a MONTHLY_RANK_WIN notification.
func (n Notification) RankWin() (RankWinMetadata, bool) {
	if n.Type != NotificationMonthlyRankWin || len(n.Metadata) == 0 {
		return RankWinMetadata{}, false
	}
	var meta RankWinMetadata
	if err := json.Unmarshal(n.Metadata, &meta); err != nil {
		return RankWinMetadata{}, false
	}
	return meta, true
}

// Envelope is the response shape of every collector endpoint.
type Envelope[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type DailyLoginReward struct {
	Awarded bool `json:"awarded"`
	Points  int  `json:"points"`
	Streak  int  `json:"streak"`
}
