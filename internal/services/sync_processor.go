package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"tipped/internal/core"
	"tipped/internal/ledger"
	"tipped/internal/storage"
)

// SyncStore is the bookkeeping contract the processor drives.
type SyncStore interface {
	GetTipRecord(ctx context.Context, id uuid.UUID) (storage.TipRecord, error)
	GetPendingSyncTips(ctx context.Context, limit int) ([]storage.PendingSyncTip, error)
	GetPendingDeletions(ctx context.Context, limit int) ([]uuid.UUID, error)
	MarkSynced(ctx context.Context, id uuid.UUID, ledgerRef string) error
	MarkSyncError(ctx context.Context, id uuid.UUID) error
	MarkDeletionSynced(ctx context.Context, id uuid.UUID) error
	MarkDeletionSyncError(ctx context.Context, id uuid.UUID) error
}

// SyncProcessorConfig holds configuration for the sync processor
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending rows (default: 10s)
	PollInterval time.Duration

	// BatchSize is the max number of rows to process per poll cycle (default: 10)
	BatchSize int
}

// DefaultSyncProcessorConfig returns sensible defaults
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval: 10 * time.Second,
		BatchSize:    10,
	}
}

// SyncProcessor is the catch-up path of the sync pipeline: it polls
// for tips and deletions still marked pending and reconciles them
// with the ledger. The AMQP consumer handles the fast path; this loop
// covers lost messages and rows written while the broker was down.
type SyncProcessor struct {
	store    SyncStore
	appender ledger.TipAppender
	remover  ledger.TipRemover
	config   SyncProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(store SyncStore, appender ledger.TipAppender, remover ledger.TipRemover, config SyncProcessorConfig) *SyncProcessor {
	return &SyncProcessor{
		store:    store,
		appender: appender,
		remover:  remover,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)

	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	return nil
}

// IsRunning returns whether the processor is currently running
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	// Process immediately on startup
	p.ProcessBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.ProcessBatch(ctx)
		}
	}
}

// ProcessBatch reconciles one batch of pending tips and deletions.
func (p *SyncProcessor) ProcessBatch(ctx context.Context) {
	pending, err := p.store.GetPendingSyncTips(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch pending sync tips", "error", err)
	} else {
		for _, item := range pending {
			if p.stopped(ctx) {
				return
			}
			if err := p.SyncTip(ctx, item.ID); err != nil {
				slog.WarnContext(ctx, "Tip sync failed",
					"tip_id", item.ID, "error", err)
			}
		}
	}

	deletions, err := p.store.GetPendingDeletions(ctx, p.config.BatchSize)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to fetch pending deletions", "error", err)
		return
	}
	for _, id := range deletions {
		if p.stopped(ctx) {
			return
		}
		if err := p.SyncDeletion(ctx, id); err != nil {
			slog.WarnContext(ctx, "Tip deletion sync failed",
				"tip_id", id, "error", err)
		}
	}
}

// SyncTip pushes one tip to the ledger and updates its sync status.
func (p *SyncProcessor) SyncTip(ctx context.Context, id uuid.UUID) error {
	record, err := p.store.GetTipRecord(ctx, id)
	if err != nil {
		if errors.Is(err, core.ErrTipNotFound) {
			// Deleted before it ever synced; the tombstone covers it
			slog.InfoContext(ctx, "Pending tip vanished before sync", "tip_id", id)
			return nil
		}
		return fmt.Errorf("get tip %s: %w", id, err)
	}

	ref, err := p.appender.Append(ctx, record.Tip)
	if err != nil {
		if markErr := p.store.MarkSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark tip sync error",
				"tip_id", id, "error", markErr)
		}
		return fmt.Errorf("append to ledger: %w", err)
	}

	if err := p.store.MarkSynced(ctx, id, ref); err != nil {
		// The append succeeded; the row will just be re-synced later
		slog.WarnContext(ctx, "Failed to mark tip as synced",
			"tip_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Synced tip to ledger", "tip_id", id, "ledger_ref", ref)
	return nil
}

// SyncDeletion removes one deleted tip from the ledger.
func (p *SyncProcessor) SyncDeletion(ctx context.Context, id uuid.UUID) error {
	if p.remover == nil {
		slog.WarnContext(ctx, "No ledger remover configured, skipping deletion", "tip_id", id)
		return nil
	}

	if err := p.remover.Remove(ctx, id); err != nil {
		if markErr := p.store.MarkDeletionSyncError(ctx, id); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark deletion sync error",
				"tip_id", id, "error", markErr)
		}
		return fmt.Errorf("remove from ledger: %w", err)
	}

	if err := p.store.MarkDeletionSynced(ctx, id); err != nil {
		slog.WarnContext(ctx, "Failed to mark deletion as synced",
			"tip_id", id, "error", err)
	}

	slog.InfoContext(ctx, "Synced tip deletion to ledger", "tip_id", id)
	return nil
}

func (p *SyncProcessor) stopped(ctx context.Context) bool {
	select {
	case <-p.stopCh:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}
