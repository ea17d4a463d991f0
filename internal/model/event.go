package model

import (
	"encoding/json"
	"time"
)

type Action string

const (
	ActionPageView    Action = "page_view"
	ActionPageViewEnd Action = "page_view_end"
	ActionClick       Action = "click"
	ActionStart       Action = "start"
	ActionSubmit      Action = "submit"
	ActionComplete    Action = "complete"
	ActionZoneView    Action = "zone_view"
)

// TimestampLayout matches the millisecond ISO-8601 form browsers emit.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// TrackedEvent is one event as delivered to the ingestion endpoint.
// Identity fields and Timestamp are stamped when the batch is sent.
type TrackedEvent struct {
	SessionID string         `json:"sessionId"`
	UserID    *string        `json:"userId"`
	Device    string         `json:"device,omitempty"`
	Referrer  string         `json:"referrer,omitempty"`
	Page      string         `json:"page"`
	Zone      string         `json:"zone,omitempty"`
	Component string         `json:"component,omitempty"`
	Action    Action         `json:"action"`
	Value     *int           `json:"value,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Timestamp string         `json:"timestamp"`
}

type TrackBatch struct {
	Events []TrackedEvent `json:"events"`
}

// CornerRecord is a qualified dwell on a numbered corner of the legacy layout.
type CornerRecord struct {
	Corner      int    `json:"corner"`
	DurationSec int    `json:"durationSec"`
	Timestamp   string `json:"timestamp"`
}

type CornerBatch struct {
	Events []CornerRecord `json:"events"`
}

// MinCornerDwellSec is the shortest dwell, in seconds, worth recording.
const MinCornerDwellSec = 3

func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp accepts both the millisecond layout and plain RFC3339.
func ParseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(TimestampLayout, s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}

// Seconds is a helper for building optional durations.
func Seconds(v int) *int {
	return &v
}

// MarshalMetadata returns the metadata as raw JSON, or nil when empty.
func (e *TrackedEvent) MarshalMetadata() (json.RawMessage, error) {
	if len(e.Metadata) == 0 {
		return nil, nil
	}
	return json.Marshal(e.Metadata)
}
