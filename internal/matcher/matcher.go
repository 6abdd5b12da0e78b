package matcher

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/example/trip-matching/internal/models"
	"github.com/example/trip-matching/internal/observability"
	"github.com/example/trip-matching/internal/route"
)

// Service ranks drivers by the length of the detour route
// driver -> pickup -> destination.
type Service struct {
	Router         route.Client
	ThresholdKm    float64
	TopN           int
	MaxConcurrency int
	Logger         *slog.Logger
}

func (s *Service) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Match filters drivers, requests one combined route per candidate with at
// most MaxConcurrency requests in flight, and waits for all of them. A
// candidate whose route fails is dropped. The result is sorted by total
// distance, ties kept in filter order, and cut to TopN. An error is returned
// only when ctx ends first.
func (s *Service) Match(ctx context.Context, start, end models.Coord, drivers []models.Driver) ([]models.Match, error) {
	began := time.Now()
	threshold := s.ThresholdKm
	if threshold <= 0 {
		threshold = DefaultThresholdKm
	}
	topN := s.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}
	limit := s.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}

	cands := FindCandidates(start, end, drivers, threshold)
	observability.MatchCandidates.Observe(float64(len(cands)))

	results := make([]*models.Match, len(cands))
	var g errgroup.Group
	g.SetLimit(limit)
	for i, d := range cands {
		g.Go(func() error {
			r, err := s.Router.FetchRoute(ctx, []models.Coord{d.CurrentLocation.Coordinates, start, end})
			if err != nil {
				s.logger().Debug("combined route failed", "driver_id", d.ID, "error", err)
				return nil
			}
			m := models.NewMatch(d, r)
			results[i] = &m
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matches := make([]models.Match, 0, len(results))
	for _, m := range results {
		if m != nil {
			matches = append(matches, *m)
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].TotalDistanceKm < matches[j].TotalDistanceKm })
	if len(matches) > topN {
		matches = matches[:topN]
	}

	observability.MatchLatency.Observe(time.Since(began).Seconds())
	s.logger().Info("match completed",
		"candidates", len(cands),
		"routed", countRouted(results),
		"returned", len(matches),
		"duration_ms", time.Since(began).Milliseconds(),
	)
	return matches, nil
}

func countRouted(rs []*models.Match) int {
	n := 0
	for _, r := range rs {
		if r != nil {
			n++
		}
	}
	return n
}
