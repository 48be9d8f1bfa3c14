// Package services orchestrates tip operations across the local
// store, the aggregate cache, and the async ledger sync pipeline.
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tipped/internal/amqp"
	"tipped/internal/core"
	"tipped/internal/storage"
)

// TipStore is the persistence contract the tip service needs.
type TipStore interface {
	InsertTip(ctx context.Context, tip core.Tip) error
	UpdateTip(ctx context.Context, id uuid.UUID, amount core.Money, comment string) (core.Tip, error)
	DeleteTip(ctx context.Context, id uuid.UUID) error
	GetTip(ctx context.Context, id uuid.UUID) (core.Tip, error)
	GetTipRecord(ctx context.Context, id uuid.UUID) (storage.TipRecord, error)
	QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Tip, error)
	SearchByComment(ctx context.Context, query string) ([]core.Tip, error)
	Close() error
}

// SyncPublisher pushes sync messages toward the ledger worker.
type SyncPublisher interface {
	PublishTipSync(ctx context.Context, msg *amqp.TipSyncMessage) error
	Close() error
}

// TipService handles tip writes locally first and notifies the sync
// pipeline best-effort. A failed publish never fails the request; the
// sync processor picks pending rows up later.
type TipService struct {
	store     TipStore
	publisher SyncPublisher
}

func NewTipService(store TipStore, publisher SyncPublisher) *TipService {
	return &TipService{
		store:     store,
		publisher: publisher,
	}
}

// CreateTip validates and stores a new tip, then enqueues a sync.
func (s *TipService) CreateTip(ctx context.Context, amount core.Money, comment string, businessDate core.Date, createdAt time.Time) (core.Tip, error) {
	tip, err := core.NewTip(amount, comment, businessDate, createdAt)
	if err != nil {
		return core.Tip{}, err
	}

	if err := s.store.InsertTip(ctx, tip); err != nil {
		return core.Tip{}, fmt.Errorf("save tip: %w", err)
	}

	s.publishUpsert(ctx, tip.ID, 1)
	return tip, nil
}

// UpdateTip changes the amount and comment of an existing tip. The
// business date and logging time stay as they were.
func (s *TipService) UpdateTip(ctx context.Context, id uuid.UUID, amount core.Money, comment string) (core.Tip, error) {
	tip, err := s.store.UpdateTip(ctx, id, amount, comment)
	if err != nil {
		return core.Tip{}, err
	}

	version := int64(0)
	if record, err := s.store.GetTipRecord(ctx, id); err == nil {
		version = record.Version
	}
	s.publishUpsert(ctx, id, version)

	return tip, nil
}

// DeleteTip removes a tip locally and enqueues the remote removal.
func (s *TipService) DeleteTip(ctx context.Context, id uuid.UUID) error {
	if err := s.store.DeleteTip(ctx, id); err != nil {
		return err
	}

	s.publishDelete(ctx, id)
	return nil
}

// GetTip returns a single tip by ID.
func (s *TipService) GetTip(ctx context.Context, id uuid.UUID) (core.Tip, error) {
	return s.store.GetTip(ctx, id)
}

// SearchTips returns tips whose comment matches the free-text query.
func (s *TipService) SearchTips(ctx context.Context, query string) ([]core.Tip, error) {
	tips, err := s.store.SearchByComment(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search tips: %w", err)
	}
	return tips, nil
}

func (s *TipService) publishUpsert(ctx context.Context, id uuid.UUID, version int64) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Sync publisher not available, tip stays pending", "tip_id", id)
		return
	}
	if err := s.publisher.PublishTipSync(ctx, amqp.NewTipUpsertMessage(id, version)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish tip sync message",
			"tip_id", id, "error", err)
	}
}

func (s *TipService) publishDelete(ctx context.Context, id uuid.UUID) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "Sync publisher not available, deletion stays pending", "tip_id", id)
		return
	}
	if err := s.publisher.PublishTipSync(ctx, amqp.NewTipDeleteMessage(id)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish tip delete message",
			"tip_id", id, "error", err)
	}
}

// Close closes both the store and the publisher.
func (s *TipService) Close() error {
	var errs []error

	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close tip service: %v", errs)
	}

	return nil
}
