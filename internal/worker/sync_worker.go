// Package worker consumes tip sync messages and mirrors tips into
// the remote ledger. The SyncProcessor in internal/services covers
// rows the broker never delivered; this worker is the fast path.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tipped/internal/amqp"
	"tipped/internal/services"
)

// SyncWorker handles synchronization of tips into the remote ledger.
type SyncWorker struct {
	processor *services.SyncProcessor
	batchSize int
	store     services.SyncStore
}

func NewSyncWorker(processor *services.SyncProcessor, store services.SyncStore, batchSize int) *SyncWorker {
	return &SyncWorker{
		processor: processor,
		store:     store,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single tip sync message from AMQP.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TipSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"tip_id", msg.ID,
		"op", msg.Op,
		"version", msg.Version)

	switch msg.Op {
	case amqp.OpUpsert:
		if err := w.processor.SyncTip(ctx, msg.ID); err != nil {
			return fmt.Errorf("sync tip to ledger: %w", err)
		}
		return nil
	case amqp.OpDelete:
		if err := w.processor.SyncDeletion(ctx, msg.ID); err != nil {
			return fmt.Errorf("sync tip deletion to ledger: %w", err)
		}
		return nil
	default:
		// Unknown ops are dropped, requeueing them would loop forever
		slog.WarnContext(ctx, "Dropping sync message with unknown op",
			"tip_id", msg.ID, "op", msg.Op)
		return nil
	}
}

// StartupSyncCheck reconciles tips and deletions left pending while
// the worker was down or messages were lost.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	pending, err := w.store.GetPendingSyncTips(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending tips for startup check: %w", err)
	}
	deletions, err := w.store.GetPendingDeletions(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending deletions for startup check: %w", err)
	}

	if len(pending) == 0 && len(deletions) == 0 {
		slog.InfoContext(ctx, "No pending tips found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending work on startup, processing...",
		"tips", len(pending), "deletions", len(deletions))

	successCount := 0
	errorCount := 0

	for _, item := range pending {
		if err := w.processor.SyncTip(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to sync tip during startup",
				"tip_id", item.ID, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	for _, id := range deletions {
		if err := w.processor.SyncDeletion(ctx, id); err != nil {
			slog.ErrorContext(ctx, "Failed to sync deletion during startup",
				"tip_id", id, "error", err)
			errorCount++
			continue
		}
		successCount++
	}

	slog.InfoContext(ctx, "Startup sync completed",
		"total", len(pending)+len(deletions),
		"synced", successCount,
		"errors", errorCount)

	return nil
}
