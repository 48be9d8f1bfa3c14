// Package memory provides an in-memory tip store with the same
// behavior as the SQLite repository. Used for tests and for running
// the server without a database file.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"tipped/internal/core"
	"tipped/internal/storage"
)

type Store struct {
	mu        sync.RWMutex
	records   map[uuid.UUID]*storage.TipRecord
	deletions map[uuid.UUID]string // id -> sync status
}

func NewStore() *Store {
	return &Store{
		records:   make(map[uuid.UUID]*storage.TipRecord),
		deletions: make(map[uuid.UUID]string),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) InsertTip(ctx context.Context, tip core.Tip) error {
	if err := tip.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[tip.ID] = &storage.TipRecord{
		Tip:        tip,
		Version:    1,
		SyncStatus: storage.SyncPending,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (s *Store) UpdateTip(ctx context.Context, id uuid.UUID, amount core.Money, comment string) (core.Tip, error) {
	if err := amount.Validate(); err != nil {
		return core.Tip{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[id]
	if !ok {
		return core.Tip{}, core.ErrTipNotFound
	}

	record.Tip.Amount = amount
	record.Tip.Comment = comment
	record.Version++
	record.SyncStatus = storage.SyncPending
	record.UpdatedAt = time.Now().UTC()

	return record.Tip, nil
}

func (s *Store) DeleteTip(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[id]; !ok {
		return core.ErrTipNotFound
	}

	delete(s.records, id)
	s.deletions[id] = storage.SyncPending
	return nil
}

func (s *Store) GetTip(ctx context.Context, id uuid.UUID) (core.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return core.Tip{}, core.ErrTipNotFound
	}
	return record.Tip, nil
}

func (s *Store) GetTipRecord(ctx context.Context, id uuid.UUID) (storage.TipRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return storage.TipRecord{}, core.ErrTipNotFound
	}
	return *record, nil
}

func (s *Store) QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tips []core.Tip
	for _, record := range s.records {
		d := record.Tip.BusinessDate
		if d.Before(start.Time) || d.After(end.Time) {
			continue
		}
		tips = append(tips, record.Tip)
	}

	sort.SliceStable(tips, func(i, j int) bool {
		if !tips[i].BusinessDate.Equal(tips[j].BusinessDate.Time) {
			return tips[i].BusinessDate.Before(tips[j].BusinessDate.Time)
		}
		return tips[i].CreatedAt.Before(tips[j].CreatedAt)
	})
	return tips, nil
}

func (s *Store) SearchByComment(ctx context.Context, query string) ([]core.Tip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var tips []core.Tip
	for _, record := range s.records {
		if strings.Contains(strings.ToLower(record.Tip.Comment), needle) {
			tips = append(tips, record.Tip)
		}
	}

	// newest first, matching the SQLite repository
	sort.SliceStable(tips, func(i, j int) bool {
		if !tips[i].BusinessDate.Equal(tips[j].BusinessDate.Time) {
			return tips[i].BusinessDate.After(tips[j].BusinessDate.Time)
		}
		return tips[i].CreatedAt.After(tips[j].CreatedAt)
	})
	return tips, nil
}

func (s *Store) GetPendingSyncTips(ctx context.Context, limit int) ([]storage.PendingSyncTip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var pending []storage.PendingSyncTip
	for _, record := range s.records {
		if record.SyncStatus != storage.SyncPending {
			continue
		}
		pending = append(pending, storage.PendingSyncTip{
			ID:        record.Tip.ID,
			Version:   record.Version,
			CreatedAt: record.Tip.CreatedAt,
		})
	}

	sort.Slice(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (s *Store) GetPendingDeletions(ctx context.Context, limit int) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []uuid.UUID
	for id, status := range s.deletions {
		if status == storage.SyncPending {
			ids = append(ids, id)
		}
	}

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (s *Store) MarkSynced(ctx context.Context, id uuid.UUID, ledgerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok {
		record.SyncStatus = storage.SyncSynced
		record.LedgerRef = ledgerRef
	}
	return nil
}

func (s *Store) MarkSyncError(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record, ok := s.records[id]; ok {
		record.SyncStatus = storage.SyncError
	}
	return nil
}

func (s *Store) MarkDeletionSynced(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deletions[id]; ok {
		s.deletions[id] = storage.SyncSynced
	}
	return nil
}

func (s *Store) MarkDeletionSyncError(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deletions[id]; ok {
		s.deletions[id] = storage.SyncError
	}
	return nil
}
