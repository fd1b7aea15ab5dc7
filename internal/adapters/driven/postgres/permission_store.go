package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.PermissionStore = (*PermissionStore)(nil)

// PermissionStore implements driven.PermissionStore using PostgreSQL.
// Principals are a text[] column, so a snapshot is always replaced in one row write.
type PermissionStore struct {
	db *DB
}

// NewPermissionStore creates a new PermissionStore
func NewPermissionStore(db *DB) *PermissionStore {
	return &PermissionStore{db: db}
}

// Save replaces a snapshot unless the stored one is newer
func (s *PermissionStore) Save(ctx context.Context, snap *domain.PermissionSnapshot) error {
	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		if err := xactLock(ctx, tx, "permission", snap.FileID); err != nil {
			return err
		}

		var stored string
		err := tx.QueryRowContext(ctx,
			`SELECT revision_token FROM permission_snapshots WHERE file_id = $1`, snap.FileID).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read snapshot revision: %w", err)
		case domain.CompareRevisions(stored, snap.RevisionToken) > 0:
			return domain.ErrStaleRevision
		}

		query := `
			INSERT INTO permission_snapshots (file_id, principals, revision_token, captured_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (file_id) DO UPDATE SET
				principals = EXCLUDED.principals,
				revision_token = EXCLUDED.revision_token,
				captured_at = EXCLUDED.captured_at
		`
		_, err = tx.ExecContext(ctx, query,
			snap.FileID,
			pq.Array(snap.Principals),
			snap.RevisionToken,
			snap.CapturedAt,
		)
		if err != nil {
			return fmt.Errorf("save snapshot: %w", err)
		}
		return nil
	})
}

// Get retrieves the snapshot of a file
func (s *PermissionStore) Get(ctx context.Context, fileID string) (*domain.PermissionSnapshot, error) {
	query := `
		SELECT file_id, principals, revision_token, captured_at
		FROM permission_snapshots
		WHERE file_id = $1
	`

	snap, err := scanSnapshot(s.db.QueryRowContext(ctx, query, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	return snap, nil
}

// GetMany retrieves the snapshots that exist for fileIDs
func (s *PermissionStore) GetMany(ctx context.Context, fileIDs []string) (map[string]*domain.PermissionSnapshot, error) {
	out := make(map[string]*domain.PermissionSnapshot, len(fileIDs))
	if len(fileIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT file_id, principals, revision_token, captured_at
		FROM permission_snapshots
		WHERE file_id = ANY($1)
	`
	rows, err := s.db.QueryContext(ctx, query, pq.Array(fileIDs))
	if err != nil {
		return nil, fmt.Errorf("get snapshots: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out[snap.FileID] = snap
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanSnapshot(row rowScanner) (*domain.PermissionSnapshot, error) {
	var (
		snap       domain.PermissionSnapshot
		principals pq.StringArray
	)
	if err := row.Scan(&snap.FileID, &principals, &snap.RevisionToken, &snap.CapturedAt); err != nil {
		return nil, err
	}
	snap.Principals = domain.NormalizePrincipals(principals)
	return &snap, nil
}
