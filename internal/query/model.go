package query

import (
	"time"
)

type Granularity string

const (
	GranularityHour  Granularity = "hour"
	GranularityDay   Granularity = "day"
	GranularityTotal Granularity = "total"
)

// ZoneStat is the dwell total for one page zone inside a time bucket.
// Bucket is zero for GranularityTotal.
type ZoneStat struct {
	Bucket         time.Time `json:"bucket,omitzero"`
	Page           string    `json:"page"`
	Zone           string    `json:"zone"`
	Views          int64     `json:"views"`
	TotalSeconds   int64     `json:"totalSeconds"`
	AvgSeconds     float64   `json:"avgSeconds"`
	UniqueSessions int64     `json:"uniqueSessions"`
}

type ZoneStatsRequest struct {
	From        time.Time
	To          time.Time
	Page        string
	Granularity Granularity
}
