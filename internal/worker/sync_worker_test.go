package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"

	"tipped/internal/amqp"
	"tipped/internal/core"
	"tipped/internal/services"
	"tipped/internal/storage"
)

type stubStore struct {
	records   map[uuid.UUID]*storage.TipRecord
	deletions map[uuid.UUID]string
}

func newStubStore() *stubStore {
	return &stubStore{
		records:   make(map[uuid.UUID]*storage.TipRecord),
		deletions: make(map[uuid.UUID]string),
	}
}

func (s *stubStore) GetTipRecord(ctx context.Context, id uuid.UUID) (storage.TipRecord, error) {
	record, ok := s.records[id]
	if !ok {
		return storage.TipRecord{}, core.ErrTipNotFound
	}
	return *record, nil
}

func (s *stubStore) GetPendingSyncTips(ctx context.Context, limit int) ([]storage.PendingSyncTip, error) {
	var pending []storage.PendingSyncTip
	for _, record := range s.records {
		if record.SyncStatus == storage.SyncPending {
			pending = append(pending, storage.PendingSyncTip{ID: record.Tip.ID, Version: record.Version})
		}
	}
	return pending, nil
}

func (s *stubStore) GetPendingDeletions(ctx context.Context, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id, status := range s.deletions {
		if status == storage.SyncPending {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *stubStore) MarkSynced(ctx context.Context, id uuid.UUID, ledgerRef string) error {
	if record, ok := s.records[id]; ok {
		record.SyncStatus = storage.SyncSynced
		record.LedgerRef = ledgerRef
	}
	return nil
}

func (s *stubStore) MarkSyncError(ctx context.Context, id uuid.UUID) error {
	if record, ok := s.records[id]; ok {
		record.SyncStatus = storage.SyncError
	}
	return nil
}

func (s *stubStore) MarkDeletionSynced(ctx context.Context, id uuid.UUID) error {
	s.deletions[id] = storage.SyncSynced
	return nil
}

func (s *stubStore) MarkDeletionSyncError(ctx context.Context, id uuid.UUID) error {
	s.deletions[id] = storage.SyncError
	return nil
}

type stubLedger struct {
	appended []core.Tip
	removed  []uuid.UUID
}

func (l *stubLedger) Append(ctx context.Context, tip core.Tip) (string, error) {
	l.appended = append(l.appended, tip)
	return fmt.Sprintf("row:%d", len(l.appended)), nil
}

func (l *stubLedger) Remove(ctx context.Context, id uuid.UUID) error {
	l.removed = append(l.removed, id)
	return nil
}

func newTestWorker(store *stubStore, led *stubLedger) *SyncWorker {
	processor := services.NewSyncProcessor(store, led, led, services.DefaultSyncProcessorConfig())
	return NewSyncWorker(processor, store, 10)
}

func seedTip(t *testing.T, store *stubStore) core.Tip {
	t.Helper()

	tip, err := core.NewTip(core.Money{Cents: 1200}, "seed",
		core.NewDate(2024, 7, 4), time.Date(2024, 7, 4, 18, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("NewTip() error = %v", err)
	}
	store.records[tip.ID] = &storage.TipRecord{Tip: tip, Version: 1, SyncStatus: storage.SyncPending}
	return tip
}

func TestHandleSyncMessageUpsert(t *testing.T) {
	store := newStubStore()
	led := &stubLedger{}
	w := newTestWorker(store, led)

	tip := seedTip(t, store)

	if err := w.HandleSyncMessage(context.Background(), amqp.NewTipUpsertMessage(tip.ID, 1)); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}
	if len(led.appended) != 1 || led.appended[0].ID != tip.ID {
		t.Errorf("ledger got %d appends, want the tip", len(led.appended))
	}
	if store.records[tip.ID].SyncStatus != storage.SyncSynced {
		t.Errorf("SyncStatus = %q, want synced", store.records[tip.ID].SyncStatus)
	}
}

func TestHandleSyncMessageDelete(t *testing.T) {
	store := newStubStore()
	led := &stubLedger{}
	w := newTestWorker(store, led)

	id := uuid.New()
	store.deletions[id] = storage.SyncPending

	if err := w.HandleSyncMessage(context.Background(), amqp.NewTipDeleteMessage(id)); err != nil {
		t.Fatalf("HandleSyncMessage() error = %v", err)
	}
	if len(led.removed) != 1 || led.removed[0] != id {
		t.Errorf("ledger removals = %v, want [%v]", led.removed, id)
	}
}

func TestHandleSyncMessageUnknownOp(t *testing.T) {
	store := newStubStore()
	led := &stubLedger{}
	w := newTestWorker(store, led)

	msg := &amqp.TipSyncMessage{ID: uuid.New(), Op: "rename"}
	if err := w.HandleSyncMessage(context.Background(), msg); err != nil {
		t.Errorf("HandleSyncMessage(unknown op) error = %v, want nil (drop)", err)
	}
	if len(led.appended) != 0 || len(led.removed) != 0 {
		t.Error("unknown ops must not touch the ledger")
	}
}

func TestStartupSyncCheck(t *testing.T) {
	store := newStubStore()
	led := &stubLedger{}
	w := newTestWorker(store, led)

	first := seedTip(t, store)
	second := seedTip(t, store)
	deleted := uuid.New()
	store.deletions[deleted] = storage.SyncPending

	if err := w.StartupSyncCheck(context.Background()); err != nil {
		t.Fatalf("StartupSyncCheck() error = %v", err)
	}

	if len(led.appended) != 2 {
		t.Errorf("ledger got %d appends, want 2", len(led.appended))
	}
	if len(led.removed) != 1 {
		t.Errorf("ledger removals = %d, want 1", len(led.removed))
	}
	for _, tip := range []core.Tip{first, second} {
		if store.records[tip.ID].SyncStatus != storage.SyncSynced {
			t.Errorf("tip %v not marked synced", tip.ID)
		}
	}
	if store.deletions[deleted] != storage.SyncSynced {
		t.Errorf("deletion status = %q, want synced", store.deletions[deleted])
	}
}
