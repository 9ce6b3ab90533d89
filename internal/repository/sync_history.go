package repository

import (
	"database/sql"
	"time"

	"portfolio_bridge/internal/database"
	"portfolio_bridge/internal/models"
)

// SyncHistoryRepository handles sync history database operations.
type SyncHistoryRepository struct {
	db  *database.DB
	now func() time.Time
}

// NewSyncHistoryRepository creates a new SyncHistoryRepository.
func NewSyncHistoryRepository(db *database.DB) *SyncHistoryRepository {
	return &SyncHistoryRepository{db: db, now: time.Now}
}

// Start creates a new sync history entry with status "started" and returns its ID.
func (r *SyncHistoryRepository) Start(provider models.Provider, syncType string) (int64, error) {
	result, err := r.db.Exec(`
		INSERT INTO sync_history (provider, sync_type, status, started_at)
		VALUES (?, ?, 'started', ?)
	`, string(provider), syncType, r.now())
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// Complete marks a sync as successful.
func (r *SyncHistoryRepository) Complete(id int64, positionsSynced int) error {
	return r.finish(id, "success", positionsSynced, "")
}

// Fail marks a sync as failed with an error message.
func (r *SyncHistoryRepository) Fail(id int64, errorMsg string) error {
	return r.finish(id, "error", 0, errorMsg)
}

func (r *SyncHistoryRepository) finish(id int64, status string, positionsSynced int, errorMsg string) error {
	var startedAt time.Time
	if err := r.db.QueryRow(`SELECT started_at FROM sync_history WHERE id = ?`, id).Scan(&startedAt); err != nil {
		return err
	}

	now := r.now()
	_, err := r.db.Exec(`
		UPDATE sync_history
		SET status = ?, positions_synced = ?, error_message = ?, completed_at = ?, duration_ms = ?
		WHERE id = ?
	`, status, positionsSynced, nullString(errorMsg), now, now.Sub(startedAt).Milliseconds(), id)
	return err
}

// GetByID retrieves a sync history entry by ID.
func (r *SyncHistoryRepository) GetByID(id int64) (*models.SyncHistory, error) {
	row := r.db.QueryRow(`
		SELECT id, provider, sync_type, status, positions_synced, error_message, started_at, completed_at, duration_ms
		FROM sync_history
		WHERE id = ?
	`, id)

	return r.scanHistory(row)
}

// GetRecent retrieves the most recent sync history entries across providers.
func (r *SyncHistoryRepository) GetRecent(limit int) ([]*models.SyncHistory, error) {
	rows, err := r.db.Query(`
		SELECT id, provider, sync_type, status, positions_synced, error_message, started_at, completed_at, duration_ms
		FROM sync_history
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanHistories(rows)
}

// GetByProvider retrieves sync history for a provider, most recent first.
func (r *SyncHistoryRepository) GetByProvider(provider models.Provider, limit int) ([]*models.SyncHistory, error) {
	rows, err := r.db.Query(`
		SELECT id, provider, sync_type, status, positions_synced, error_message, started_at, completed_at, duration_ms
		FROM sync_history
		WHERE provider = ?
		ORDER BY started_at DESC, id DESC
		LIMIT ?
	`, string(provider), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return r.scanHistories(rows)
}

// DeleteOlderThan removes sync history entries older than the given time.
func (r *SyncHistoryRepository) DeleteOlderThan(before time.Time) (int64, error) {
	result, err := r.db.Exec(`DELETE FROM sync_history WHERE started_at < ?`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

type scanner interface {
	Scan(dest ...any) error
}

// scanHistory scans a single row into a SyncHistory.
func (r *SyncHistoryRepository) scanHistory(row *sql.Row) (*models.SyncHistory, error) {
	history, err := scanHistoryFrom(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return history, err
}

// scanHistories scans multiple rows into SyncHistories.
func (r *SyncHistoryRepository) scanHistories(rows *sql.Rows) ([]*models.SyncHistory, error) {
	histories := make([]*models.SyncHistory, 0)
	for rows.Next() {
		history, err := scanHistoryFrom(rows)
		if err != nil {
			return nil, err
		}
		histories = append(histories, history)
	}
	return histories, rows.Err()
}

func scanHistoryFrom(s scanner) (*models.SyncHistory, error) {
	history := &models.SyncHistory{}
	var provider string
	var errorMsg sql.NullString
	var completedAt sql.NullTime
	var durationMs sql.NullInt64

	err := s.Scan(
		&history.ID,
		&provider,
		&history.SyncType,
		&history.Status,
		&history.PositionsSynced,
		&errorMsg,
		&history.StartedAt,
		&completedAt,
		&durationMs,
	)
	if err != nil {
		return nil, err
	}

	history.Provider = models.Provider(provider)
	if errorMsg.Valid {
		history.ErrorMessage = errorMsg.String
	}
	if completedAt.Valid {
		history.CompletedAt = &completedAt.Time
	}
	if durationMs.Valid {
		history.DurationMs = durationMs.Int64
	}

	return history, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
