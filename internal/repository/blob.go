// Package repository provides data access for the portfolio bridge.
package repository

import (
	"database/sql"
	"time"

	"portfolio_bridge/internal/database"
)

// BlobRepository stores opaque documents under string keys.
type BlobRepository struct {
	db *database.DB
}

// NewBlobRepository creates a new BlobRepository.
func NewBlobRepository(db *database.DB) *BlobRepository {
	return &BlobRepository{db: db}
}

// Get returns the document stored under key, or nil if there is none.
func (r *BlobRepository) Get(key string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(`SELECT data FROM blobs WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Put replaces the document stored under key.
func (r *BlobRepository) Put(key string, data []byte) error {
	_, err := r.db.Exec(`
		INSERT INTO blobs (key, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at
	`, key, data, time.Now())
	return err
}

// Delete removes the document stored under key.
func (r *BlobRepository) Delete(key string) error {
	_, err := r.db.Exec(`DELETE FROM blobs WHERE key = ?`, key)
	return err
}
