package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"tipped/internal/cache"
	"tipped/internal/core"
	"tipped/internal/storage"
)

func seedTip(t *testing.T, store *fakeStore, cents int64, date core.Date, createdAt time.Time) core.Tip {
	t.Helper()

	tip, err := core.NewTip(core.Money{Cents: cents}, "", date, createdAt)
	if err != nil {
		t.Fatalf("NewTip() error = %v", err)
	}
	store.records[tip.ID] = &storage.TipRecord{Tip: tip, Version: 1, SyncStatus: storage.SyncPending}
	return tip
}

func TestFetchAggregatesDay(t *testing.T) {
	store := newFakeStore()
	anchor := core.NewDate(2024, 3, 12)
	seedTip(t, store, 1000, anchor, time.Date(2024, 3, 12, 9, 15, 0, 0, time.UTC))
	seedTip(t, store, 550, anchor, time.Date(2024, 3, 12, 14, 40, 0, 0, time.UTC))

	service := NewAggregateService(store, nil)

	summary, err := service.FetchAggregates(context.Background(), core.Daily, anchor)
	if err != nil {
		t.Fatalf("FetchAggregates() error = %v", err)
	}

	if summary.Total.Cents != 1550 {
		t.Errorf("Total = %d, want 1550", summary.Total.Cents)
	}
	if len(summary.Days) != 1 {
		t.Errorf("Days = %d, want 1", len(summary.Days))
	}
	if len(summary.Series) != 24 {
		t.Errorf("Series length = %d, want 24", len(summary.Series))
	}
	if summary.Unit != core.UnitHour {
		t.Errorf("Unit = %s, want hour", summary.Unit)
	}
}

func TestFetchAggregatesValidation(t *testing.T) {
	service := NewAggregateService(newFakeStore(), nil)
	ctx := context.Background()

	if _, err := service.FetchAggregates(ctx, "decade", core.NewDate(2024, 1, 1)); !errors.Is(err, core.ErrInvalidGranularity) {
		t.Errorf("bad granularity error = %v, want ErrInvalidGranularity", err)
	}
	if _, err := service.FetchAggregates(ctx, core.Daily, core.Date{}); !errors.Is(err, core.ErrInvalidDate) {
		t.Errorf("zero anchor error = %v, want ErrInvalidDate", err)
	}
}

func TestFetchAggregatesUsesCache(t *testing.T) {
	store := newFakeStore()
	anchor := core.NewDate(2024, 3, 12)
	seedTip(t, store, 700, anchor, time.Date(2024, 3, 12, 10, 0, 0, 0, time.UTC))

	summaryCache := cache.NewLRUCache[core.Summary](8, time.Minute)
	service := NewAggregateService(store, summaryCache)
	ctx := context.Background()

	first, err := service.FetchAggregates(ctx, core.Weekly, anchor)
	if err != nil {
		t.Fatalf("FetchAggregates() error = %v", err)
	}

	// Fail the store: a cached result must not touch it
	store.queryErr = errors.New("store offline")
	cached, err := service.FetchAggregates(ctx, core.Weekly, anchor)
	if err != nil {
		t.Fatalf("FetchAggregates() from cache error = %v", err)
	}
	if cached.Total != first.Total {
		t.Errorf("cached Total = %d, want %d", cached.Total.Cents, first.Total.Cents)
	}

	// Any anchor in the same week shares the entry
	if _, err := service.FetchAggregates(ctx, core.Weekly, anchor.AddDays(2)); err != nil {
		t.Errorf("FetchAggregates() same week different anchor error = %v", err)
	}

	// Invalidation drops the entry and the store error surfaces
	service.Invalidate(anchor)
	if _, err := service.FetchAggregates(ctx, core.Weekly, anchor); err == nil {
		t.Error("FetchAggregates() after invalidation should hit the failing store")
	}
}

func TestTodaySnapshot(t *testing.T) {
	store := newFakeStore()
	now := time.Date(2024, 3, 12, 21, 0, 0, 0, time.UTC)
	today := core.DateOf(now)

	for hour := 10; hour <= 16; hour++ {
		seedTip(t, store, 100, today, time.Date(2024, 3, 12, hour, 0, 0, 0, time.UTC))
	}
	// A tip from yesterday must not show up
	seedTip(t, store, 9999, today.AddDays(-1), time.Date(2024, 3, 11, 12, 0, 0, 0, time.UTC))

	service := NewAggregateService(store, nil)

	snapshot, err := service.TodaySnapshot(context.Background(), now)
	if err != nil {
		t.Fatalf("TodaySnapshot() error = %v", err)
	}

	if snapshot.Date != today {
		t.Errorf("Date = %s, want %s", snapshot.Date, today)
	}
	if snapshot.Total.Cents != 700 {
		t.Errorf("Total = %d, want 700", snapshot.Total.Cents)
	}
	if snapshot.Count != 7 {
		t.Errorf("Count = %d, want 7", snapshot.Count)
	}
	if len(snapshot.Recent) != 5 {
		t.Fatalf("Recent = %d tips, want 5", len(snapshot.Recent))
	}
	// newest first
	if got := snapshot.Recent[0].CreatedAt.Hour(); got != 16 {
		t.Errorf("Recent[0] hour = %d, want 16", got)
	}
	for i := 1; i < len(snapshot.Recent); i++ {
		if snapshot.Recent[i].CreatedAt.After(snapshot.Recent[i-1].CreatedAt) {
			t.Errorf("Recent not ordered newest first at %d", i)
		}
	}
}
