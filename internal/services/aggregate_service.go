package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"tipped/internal/cache"
	"tipped/internal/core"
)

// AggregateStore is the read contract the aggregate service needs.
type AggregateStore interface {
	QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Tip, error)
}

// WidgetSnapshot is the compact view the today widget renders: the
// running total for the business day and the latest tips.
type WidgetSnapshot struct {
	Date   core.Date
	Total  core.Money
	Count  int
	Recent []core.Tip
}

const widgetRecentLimit = 5

// AggregateService answers aggregate queries over a period. Results
// are cached per canonical period and invalidated on writes.
type AggregateService struct {
	store AggregateStore
	cache *cache.LRUCache[core.Summary]
}

func NewAggregateService(store AggregateStore, summaryCache *cache.LRUCache[core.Summary]) *AggregateService {
	return &AggregateService{
		store: store,
		cache: summaryCache,
	}
}

// FetchAggregates returns the per-day groups, period total, and chart
// series for the period containing anchor.
func (s *AggregateService) FetchAggregates(ctx context.Context, g core.Granularity, anchor core.Date) (core.Summary, error) {
	if err := g.Validate(); err != nil {
		return core.Summary{}, err
	}
	if err := anchor.Validate(); err != nil {
		return core.Summary{}, err
	}

	key := summaryCacheKey(g, anchor)
	if s.cache != nil {
		if summary, ok := s.cache.Get(key); ok {
			return summary, nil
		}
	}

	start, end := core.RangeFor(g, anchor)
	tips, err := s.store.QueryByDateRange(ctx, start, end)
	if err != nil {
		return core.Summary{}, fmt.Errorf("query tips for %s aggregates: %w", g, err)
	}

	summary := core.Summarize(tips, g, anchor)
	if s.cache != nil {
		s.cache.Set(key, summary)
	}
	return summary, nil
}

// TodaySnapshot returns the widget view for the business day of now.
func (s *AggregateService) TodaySnapshot(ctx context.Context, now time.Time) (WidgetSnapshot, error) {
	today := core.DateOf(now)

	tips, err := s.store.QueryByDateRange(ctx, today, today)
	if err != nil {
		return WidgetSnapshot{}, fmt.Errorf("query today's tips: %w", err)
	}

	recent := append([]core.Tip(nil), tips...)
	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].CreatedAt.After(recent[j].CreatedAt)
	})
	if len(recent) > widgetRecentLimit {
		recent = recent[:widgetRecentLimit]
	}

	return WidgetSnapshot{
		Date:   today,
		Total:  core.Total(tips),
		Count:  len(tips),
		Recent: recent,
	}, nil
}

// Invalidate drops every cached period containing the given business
// date. Called after any write touching that date.
func (s *AggregateService) Invalidate(date core.Date) {
	if s.cache == nil {
		return
	}
	for _, g := range []core.Granularity{core.Daily, core.Weekly, core.Monthly, core.Yearly} {
		s.cache.Delete(summaryCacheKey(g, date))
	}
}

// summaryCacheKey normalizes the anchor to its period start so every
// anchor inside a period shares one cache entry.
func summaryCacheKey(g core.Granularity, anchor core.Date) string {
	start, _ := core.RangeFor(g, anchor)
	return string(g) + "|" + start.String()
}
