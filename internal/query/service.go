package query

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/RoofStorm/tiger-engagement/internal/analytics"
	"go.uber.org/zap"
)

var (
	ErrInvalidRange       = errors.New("from must not be after to")
	ErrInvalidGranularity = errors.New("granularity must be hour, day or total")
)

type SummaryReader interface {
	GetSummariesByDateRange(ctx context.Context, from, to time.Time, page string) ([]*analytics.Summary, error)
}

type Service struct {
	summaries SummaryReader
	logger    *zap.Logger
}

func NewService(summaries SummaryReader, logger *zap.Logger) *Service {
	return &Service{
		summaries: summaries,
		logger:    logger,
	}
}

func (s *Service) GetZoneStats(ctx context.Context, req ZoneStatsRequest) ([]*ZoneStat, error) {
	if req.From.After(req.To) {
		return nil, ErrInvalidRange
	}
	switch req.Granularity {
	case "":
		req.Granularity = GranularityTotal
	case GranularityHour, GranularityDay, GranularityTotal:
	default:
		return nil, ErrInvalidGranularity
	}

	from := req.From.UTC().Truncate(24 * time.Hour)
	to := req.To.UTC().Truncate(24 * time.Hour)
	summaries, err := s.summaries.GetSummariesByDateRange(ctx, from, to, req.Page)
	if err != nil {
		s.logger.Error("Failed to get summaries",
			zap.Error(err),
			zap.Time("from", from),
			zap.Time("to", to))
		return nil, fmt.Errorf("failed to get summaries: %w", err)
	}

	stats := groupByGranularity(summaries, req)

	s.logger.Info("Zone stats retrieved",
		zap.Int("count", len(stats)),
		zap.String("granularity", string(req.Granularity)),
	)
	return stats, nil
}

type groupKey struct {
	bucket time.Time
	page   string
	zone   string
}

// groupByGranularity drops hours outside [From, To] and merges the rest.
// Unique sessions cannot be summed across hours, so the largest bucket
// count is reported as a lower bound.
func groupByGranularity(summaries []*analytics.Summary, req ZoneStatsRequest) []*ZoneStat {
	lower := req.From.UTC().Truncate(time.Hour)
	grouped := make(map[groupKey]*ZoneStat)

	for _, summary := range summaries {
		hour := time.Date(
			summary.Date.Year(),
			summary.Date.Month(),
			summary.Date.Day(),
			summary.Hour,
			0, 0, 0,
			time.UTC,
		)
		if hour.Before(lower) || hour.After(req.To) {
			continue
		}

		key := groupKey{page: summary.Page, zone: summary.Zone}
		switch req.Granularity {
		case GranularityHour:
			key.bucket = hour
		case GranularityDay:
			key.bucket = hour.Truncate(24 * time.Hour)
		}

		stat, ok := grouped[key]
		if !ok {
			stat = &ZoneStat{Bucket: key.bucket, Page: key.page, Zone: key.zone}
			grouped[key] = stat
		}
		stat.Views += summary.Views
		stat.TotalSeconds += summary.TotalSeconds
		stat.UniqueSessions = max(stat.UniqueSessions, summary.UniqueSessions)
	}

	stats := make([]*ZoneStat, 0, len(grouped))
	for _, stat := range grouped {
		if stat.Views > 0 {
			stat.AvgSeconds = float64(stat.TotalSeconds) / float64(stat.Views)
		}
		stats = append(stats, stat)
	}
	slices.SortFunc(stats, func(a, b *ZoneStat) int {
		return cmp.Or(
			a.Bucket.Compare(b.Bucket),
			cmp.Compare(a.Page, b.Page),
			cmp.Compare(a.Zone, b.Zone),
		)
	})
	return stats
}
