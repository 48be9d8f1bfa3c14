// Package storage persists tips in SQLite and keeps the bookkeeping
// the ledger sync worker needs: per-row sync status, versions, and a
// tombstone table for deletions that still have to reach the remote
// ledger.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"tipped/internal/core"

	_ "modernc.org/sqlite"
)

// Sync states for tips and deletion tombstones.
const (
	SyncPending = "pending"
	SyncSynced  = "synced"
	SyncError   = "error"
)

// TipRecord is a stored tip plus its sync bookkeeping.
type TipRecord struct {
	Tip        core.Tip
	Version    int64
	SyncStatus string
	LedgerRef  string
	UpdatedAt  time.Time
}

// PendingSyncTip is the minimal row data needed to enqueue a sync message.
type PendingSyncTip struct {
	ID        uuid.UUID
	Version   int64
	CreatedAt time.Time
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrateSchema(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// InsertTip stores a new tip with sync status pending.
func (r *SQLiteRepository) InsertTip(ctx context.Context, tip core.Tip) error {
	if err := tip.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tips (id, amount_cents, comment, business_date, created_at, updated_at, version, sync_status)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?)`,
		tip.ID.String(),
		tip.Amount.Cents,
		tip.Comment,
		tip.BusinessDate.String(),
		tip.CreatedAt.UTC().Format(time.RFC3339Nano),
		time.Now().UTC().Format(time.RFC3339Nano),
		SyncPending,
	)
	if err != nil {
		return fmt.Errorf("insert tip: %w", err)
	}

	slog.InfoContext(ctx, "Tip saved to SQLite",
		"tip_id", tip.ID,
		"amount_cents", tip.Amount.Cents,
		"business_date", tip.BusinessDate.String())

	return nil
}

// UpdateTip changes the amount and comment of an existing tip. The
// business date and creation time never change after the fact; the
// version bumps and the row goes back to pending.
func (r *SQLiteRepository) UpdateTip(ctx context.Context, id uuid.UUID, amount core.Money, comment string) (core.Tip, error) {
	if err := amount.Validate(); err != nil {
		return core.Tip{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE tips
		SET amount_cents = ?, comment = ?, updated_at = ?, version = version + 1, sync_status = ?, sync_attempts = 0
		WHERE id = ?`,
		amount.Cents,
		comment,
		time.Now().UTC().Format(time.RFC3339Nano),
		SyncPending,
		id.String(),
	)
	if err != nil {
		return core.Tip{}, fmt.Errorf("update tip: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return core.Tip{}, fmt.Errorf("update tip rows affected: %w", err)
	}
	if affected == 0 {
		return core.Tip{}, core.ErrTipNotFound
	}

	record, err := r.GetTipRecord(ctx, id)
	if err != nil {
		return core.Tip{}, err
	}

	slog.InfoContext(ctx, "Tip updated",
		"tip_id", id,
		"amount_cents", amount.Cents,
		"version", record.Version)

	return record.Tip, nil
}

// DeleteTip removes a tip and records a tombstone so the deletion can
// still be propagated to the remote ledger.
func (r *SQLiteRepository) DeleteTip(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM tips WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete tip: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete tip rows affected: %w", err)
	}
	if affected == 0 {
		return core.ErrTipNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tip_deletions (id, deleted_at, sync_status)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET sync_status = excluded.sync_status, sync_attempts = 0`,
		id.String(),
		time.Now().UTC().Format(time.RFC3339Nano),
		SyncPending,
	)
	if err != nil {
		return fmt.Errorf("record tip deletion: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit delete tx: %w", err)
	}

	slog.InfoContext(ctx, "Tip deleted", "tip_id", id)
	return nil
}

// GetTip retrieves a single tip by ID.
func (r *SQLiteRepository) GetTip(ctx context.Context, id uuid.UUID) (core.Tip, error) {
	record, err := r.GetTipRecord(ctx, id)
	if err != nil {
		return core.Tip{}, err
	}
	return record.Tip, nil
}

// GetTipRecord retrieves a tip together with its sync bookkeeping.
func (r *SQLiteRepository) GetTipRecord(ctx context.Context, id uuid.UUID) (TipRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, amount_cents, comment, business_date, created_at, updated_at, version, sync_status, ledger_ref
		FROM tips WHERE id = ?`, id.String())

	record, err := scanTipRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return TipRecord{}, core.ErrTipNotFound
	}
	if err != nil {
		return TipRecord{}, fmt.Errorf("get tip by id: %w", err)
	}
	return record, nil
}

// QueryByDateRange returns tips whose business date falls in
// [start, end], ordered by business date then creation time.
func (r *SQLiteRepository) QueryByDateRange(ctx context.Context, start, end core.Date) ([]core.Tip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, comment, business_date, created_at, updated_at, version, sync_status, ledger_ref
		FROM tips
		WHERE business_date >= ? AND business_date <= ?
		ORDER BY business_date ASC, created_at ASC`,
		start.String(), end.String())
	if err != nil {
		return nil, fmt.Errorf("query tips by date range: %w", err)
	}
	defer rows.Close()

	return collectTips(rows)
}

// SearchByComment returns tips whose comment contains the query,
// case-insensitively, newest first.
func (r *SQLiteRepository) SearchByComment(ctx context.Context, query string) ([]core.Tip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, amount_cents, comment, business_date, created_at, updated_at, version, sync_status, ledger_ref
		FROM tips
		WHERE comment LIKE '%' || ? || '%' COLLATE NOCASE
		ORDER BY business_date DESC, created_at DESC`,
		query)
	if err != nil {
		return nil, fmt.Errorf("search tips by comment: %w", err)
	}
	defer rows.Close()

	return collectTips(rows)
}

// GetPendingSyncTips returns tips that still need to reach the ledger.
func (r *SQLiteRepository) GetPendingSyncTips(ctx context.Context, limit int) ([]PendingSyncTip, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, version, created_at
		FROM tips
		WHERE sync_status = ?
		ORDER BY created_at ASC
		LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending sync tips: %w", err)
	}
	defer rows.Close()

	var pending []PendingSyncTip
	for rows.Next() {
		var (
			idStr      string
			version    int64
			createdRaw string
		)
		if err := rows.Scan(&idStr, &version, &createdRaw); err != nil {
			return nil, fmt.Errorf("scan pending sync tip: %w", err)
		}

		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse pending tip id %q: %w", idStr, err)
		}
		createdAt, err := parseStoredTime(createdRaw)
		if err != nil {
			return nil, fmt.Errorf("parse pending tip created_at: %w", err)
		}

		pending = append(pending, PendingSyncTip{ID: id, Version: version, CreatedAt: createdAt})
	}
	return pending, rows.Err()
}

// GetPendingDeletions returns IDs of deleted tips not yet removed remotely.
func (r *SQLiteRepository) GetPendingDeletions(ctx context.Context, limit int) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM tip_deletions
		WHERE sync_status = ?
		ORDER BY deleted_at ASC
		LIMIT ?`,
		SyncPending, limit)
	if err != nil {
		return nil, fmt.Errorf("get pending deletions: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, fmt.Errorf("scan pending deletion: %w", err)
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("parse pending deletion id %q: %w", idStr, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// MarkSynced marks a tip as successfully synced to the ledger.
func (r *SQLiteRepository) MarkSynced(ctx context.Context, id uuid.UUID, ledgerRef string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tips SET sync_status = ?, ledger_ref = ? WHERE id = ?`,
		SyncSynced, ledgerRef, id.String())
	if err != nil {
		return fmt.Errorf("mark tip synced: %w", err)
	}

	slog.InfoContext(ctx, "Tip marked as synced", "tip_id", id, "ledger_ref", ledgerRef)
	return nil
}

// MarkSyncError marks a tip as having failed to sync.
func (r *SQLiteRepository) MarkSyncError(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tips SET sync_status = ?, sync_attempts = sync_attempts + 1 WHERE id = ?`,
		SyncError, id.String())
	if err != nil {
		return fmt.Errorf("mark tip sync error: %w", err)
	}

	slog.WarnContext(ctx, "Tip marked with sync error", "tip_id", id)
	return nil
}

// MarkDeletionSynced clears a deletion tombstone after the remote row
// has been removed.
func (r *SQLiteRepository) MarkDeletionSynced(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tip_deletions SET sync_status = ? WHERE id = ?`,
		SyncSynced, id.String())
	if err != nil {
		return fmt.Errorf("mark deletion synced: %w", err)
	}

	slog.InfoContext(ctx, "Tip deletion marked as synced", "tip_id", id)
	return nil
}

// MarkDeletionSyncError marks a deletion tombstone as failed.
func (r *SQLiteRepository) MarkDeletionSyncError(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE tip_deletions SET sync_status = ?, sync_attempts = sync_attempts + 1 WHERE id = ?`,
		SyncError, id.String())
	if err != nil {
		return fmt.Errorf("mark deletion sync error: %w", err)
	}

	slog.WarnContext(ctx, "Tip deletion marked with sync error", "tip_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTipRecord(row rowScanner) (TipRecord, error) {
	var (
		idStr       string
		amountCents int64
		comment     string
		dateStr     string
		createdRaw  string
		updatedRaw  string
		version     int64
		syncStatus  string
		ledgerRef   string
	)

	if err := row.Scan(&idStr, &amountCents, &comment, &dateStr, &createdRaw, &updatedRaw, &version, &syncStatus, &ledgerRef); err != nil {
		return TipRecord{}, err
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		return TipRecord{}, fmt.Errorf("parse tip id %q: %w", idStr, err)
	}
	businessDate, err := core.ParseDate(dateStr)
	if err != nil {
		return TipRecord{}, fmt.Errorf("parse business date %q: %w", dateStr, err)
	}
	createdAt, err := parseStoredTime(createdRaw)
	if err != nil {
		return TipRecord{}, fmt.Errorf("parse created_at %q: %w", createdRaw, err)
	}
	updatedAt, err := parseStoredTime(updatedRaw)
	if err != nil {
		return TipRecord{}, fmt.Errorf("parse updated_at %q: %w", updatedRaw, err)
	}

	return TipRecord{
		Tip: core.Tip{
			ID:           id,
			Amount:       core.Money{Cents: amountCents},
			Comment:      comment,
			BusinessDate: businessDate,
			CreatedAt:    createdAt,
		},
		Version:    version,
		SyncStatus: syncStatus,
		LedgerRef:  ledgerRef,
		UpdatedAt:  updatedAt,
	}, nil
}

func collectTips(rows *sql.Rows) ([]core.Tip, error) {
	var tips []core.Tip
	for rows.Next() {
		record, err := scanTipRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tip: %w", err)
		}
		tips = append(tips, record.Tip)
	}
	return tips, rows.Err()
}

// parseStoredTime accepts the formats SQLite hands back depending on
// how the value was written.
func parseStoredTime(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time format %q", s)
}
