package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.CursorStore = (*CursorStore)(nil)

// CursorStore implements driven.CursorStore using PostgreSQL
type CursorStore struct {
	db *DB
}

// NewCursorStore creates a new CursorStore
func NewCursorStore(db *DB) *CursorStore {
	return &CursorStore{db: db}
}

// Get returns the stored cursor of a stream, or "" if none
func (s *CursorStore) Get(ctx context.Context, stream string) (string, error) {
	var cursor string
	err := s.db.QueryRowContext(ctx, `SELECT cursor FROM change_cursors WHERE stream = $1`, stream).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get cursor: %w", err)
	}
	return cursor, nil
}

// Save replaces the cursor of a stream
func (s *CursorStore) Save(ctx context.Context, stream, cursor string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO change_cursors (stream, cursor, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (stream) DO UPDATE SET cursor = EXCLUDED.cursor, updated_at = EXCLUDED.updated_at`,
		stream, cursor, time.Now())
	if err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	return nil
}
