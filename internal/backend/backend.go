// Package backend assembles the storage, sync, and service layers for a
// given configuration.
package backend

import (
	"tipped/internal/cache"
	"tipped/internal/services"
)

// BackendType selects the storage implementation.
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// CleanupFunc releases resources held by a backend.
type CleanupFunc func() error

// Backend bundles the wired services an entry point needs.
type Backend struct {
	Tips       *services.TipService
	Aggregates *services.AggregateService
	Cache      *cache.Manager
	Cleanup    CleanupFunc
}
