// Package ledger defines the outbound ports for the remote tip
// ledger. The sync worker mirrors local tips into the ledger through
// these interfaces; adapters live in the subpackages.
package ledger

import (
	"context"

	"github.com/google/uuid"

	"tipped/internal/core"
)

type (
	// TipAppender appends a tip row to the remote ledger and returns
	// an adapter-specific row reference.
	TipAppender interface {
		Append(ctx context.Context, tip core.Tip) (rowRef string, err error)
	}

	// TipRemover removes the ledger row for a deleted tip. Removing a
	// tip that never reached the ledger is not an error.
	TipRemover interface {
		Remove(ctx context.Context, id uuid.UUID) error
	}
)
