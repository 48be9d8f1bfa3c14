package amqp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Sync operations carried by a TipSyncMessage.
const (
	OpUpsert = "upsert"
	OpDelete = "delete"
)

// TipSyncMessage tells the worker to reconcile one tip with the
// remote ledger. For upserts it carries only the ID and version; the
// worker reads the full tip from the database. For deletes the row is
// already gone, so the ID is all there is.
type TipSyncMessage struct {
	ID        uuid.UUID `json:"id"`
	Op        string    `json:"op"`
	Version   int64     `json:"version"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTipUpsertMessage creates a sync message for a created or edited tip
func NewTipUpsertMessage(id uuid.UUID, version int64) *TipSyncMessage {
	return &TipSyncMessage{
		ID:        id,
		Op:        OpUpsert,
		Version:   version,
		Timestamp: time.Now(),
	}
}

// NewTipDeleteMessage creates a sync message for a removed tip
func NewTipDeleteMessage(id uuid.UUID) *TipSyncMessage {
	return &TipSyncMessage{
		ID:        id,
		Op:        OpDelete,
		Timestamp: time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TipSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TipSyncMessageFromJSON creates a message from JSON bytes
func TipSyncMessageFromJSON(data []byte) (*TipSyncMessage, error) {
	var msg TipSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
