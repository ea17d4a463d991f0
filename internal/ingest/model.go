package ingest

import (
	"encoding/json"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/model"
	"github.com/google/uuid"
)

// Event is one stored tracked event.
type Event struct {
	ID         uuid.UUID       `db:"id" json:"id"`
	SessionID  string          `db:"session_id" json:"sessionId"`
	UserID     *string         `db:"user_id" json:"userId"`
	Device     string          `db:"device" json:"device,omitempty"`
	Referrer   string          `db:"referrer" json:"referrer,omitempty"`
	Page       string          `db:"page" json:"page"`
	Zone       *string         `db:"zone" json:"zone,omitempty"`
	Component  *string         `db:"component" json:"component,omitempty"`
	Action     model.Action    `db:"action" json:"action"`
	Value      *int            `db:"value" json:"value,omitempty"`
	Metadata   json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	ClientIP   string          `db:"client_ip" json:"clientIp,omitempty"`
	OccurredAt time.Time       `db:"occurred_at" json:"timestamp"`
	ReceivedAt time.Time       `db:"received_at" json:"receivedAt"`
}

var knownActions = map[model.Action]bool{
	model.ActionPageView:    true,
	model.ActionPageViewEnd: true,
	model.ActionClick:       true,
	model.ActionStart:       true,
	model.ActionSubmit:      true,
	model.ActionComplete:    true,
	model.ActionZoneView:    true,
}

// NewEvent validates a wire event and turns it into a row. A missing
// timestamp falls back to receivedAt.
func NewEvent(te model.TrackedEvent, clientIP string, receivedAt time.Time) (*Event, error) {
	if te.SessionID == "" {
		return nil, ErrMissingSessionID
	}
	if te.Page == "" {
		return nil, ErrMissingPage
	}
	if !knownActions[te.Action] {
		return nil, ErrInvalidAction
	}
	if te.Value != nil && *te.Value < 0 {
		return nil, ErrNegativeValue
	}

	occurredAt := receivedAt
	if te.Timestamp != "" {
		t, err := model.ParseTimestamp(te.Timestamp)
		if err != nil {
			return nil, ErrInvalidTimestamp
		}
		occurredAt = t.UTC()
	}

	metadata, err := te.MarshalMetadata()
	if err != nil {
		return nil, err
	}

	return &Event{
		ID:         uuid.New(),
		SessionID:  te.SessionID,
		UserID:     te.UserID,
		Device:     te.Device,
		Referrer:   te.Referrer,
		Page:       te.Page,
		Zone:       optional(te.Zone),
		Component:  optional(te.Component),
		Action:     te.Action,
		Value:      te.Value,
		Metadata:   metadata,
		ClientIP:   clientIP,
		OccurredAt: occurredAt,
		ReceivedAt: receivedAt,
	}, nil
}

// Tracked converts the row back to the wire shape published to kafka.
func (e *Event) Tracked() model.TrackedEvent {
	te := model.TrackedEvent{
		SessionID: e.SessionID,
		UserID:    e.UserID,
		Device:    e.Device,
		Referrer:  e.Referrer,
		Page:      e.Page,
		Action:    e.Action,
		Value:     e.Value,
		Timestamp: model.FormatTimestamp(e.OccurredAt),
	}
	if e.Zone != nil {
		te.Zone = *e.Zone
	}
	if e.Component != nil {
		te.Component = *e.Component
	}
	if len(e.Metadata) > 0 {
		_ = json.Unmarshal(e.Metadata, &te.Metadata)
	}
	return te
}

type CornerView struct {
	ID          uuid.UUID `db:"id"`
	Corner      int       `db:"corner"`
	DurationSec int       `db:"duration_sec"`
	ClientIP    string    `db:"client_ip"`
	OccurredAt  time.Time `db:"occurred_at"`
	ReceivedAt  time.Time `db:"received_at"`
}

func NewCornerView(rec model.CornerRecord, clientIP string, receivedAt time.Time) (*CornerView, error) {
	if rec.Corner < 0 {
		return nil, ErrInvalidCorner
	}
	if rec.DurationSec < model.MinCornerDwellSec {
		return nil, ErrDwellTooShort
	}

	occurredAt := receivedAt
	if rec.Timestamp != "" {
		t, err := model.ParseTimestamp(rec.Timestamp)
		if err != nil {
			return nil, ErrInvalidTimestamp
		}
		occurredAt = t.UTC()
	}

	return &CornerView{
		ID:          uuid.New(),
		Corner:      rec.Corner,
		DurationSec: rec.DurationSec,
		ClientIP:    clientIP,
		OccurredAt:  occurredAt,
		ReceivedAt:  receivedAt,
	}, nil
}

type Result struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
