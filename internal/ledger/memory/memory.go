// Package memory is an in-memory ledger adapter used in tests and
// when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"tipped/internal/core"
)

type Store struct {
	mu    sync.Mutex
	items map[uuid.UUID]core.Tip
	order []uuid.UUID
}

func New() *Store {
	return &Store{items: make(map[uuid.UUID]core.Tip)}
}

// Append stores the tip and returns a synthetic row reference.
func (s *Store) Append(_ context.Context, tip core.Tip) (string, error) {
	if err := tip.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[tip.ID]; !ok {
		s.order = append(s.order, tip.ID)
	}
	s.items[tip.ID] = tip
	return fmt.Sprintf("mem:%d", len(s.order)), nil
}

// Remove drops the tip. Unknown IDs are already removed.
func (s *Store) Remove(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.items[id]; !ok {
		return nil
	}
	delete(s.items, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// Tips returns the stored tips in append order.
func (s *Store) Tips() []core.Tip {
	s.mu.Lock()
	defer s.mu.Unlock()

	tips := make([]core.Tip, 0, len(s.order))
	for _, id := range s.order {
		tips = append(tips, s.items[id])
	}
	return tips
}
