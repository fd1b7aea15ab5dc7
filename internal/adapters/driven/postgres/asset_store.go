package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.AssetStore = (*AssetStore)(nil)

// AssetStore implements driven.AssetStore using PostgreSQL
type AssetStore struct {
	db *DB
}

// NewAssetStore creates a new AssetStore
func NewAssetStore(db *DB) *AssetStore {
	return &AssetStore{db: db}
}

const assetColumns = `file_id, scope_id, name, path, parent_id, tags, confidence,
	author_name, source_created_at, size_bytes, mime_type, revision_token,
	index_state, source_url, indexed_at, updated_at`

// Get retrieves an asset by file ID
func (s *AssetStore) Get(ctx context.Context, fileID string) (*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE file_id = $1`

	asset, err := scanAsset(s.db.QueryRowContext(ctx, query, fileID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get asset: %w", err)
	}
	return asset, nil
}

// Upsert writes an asset unless the stored revision is newer.
// A per-file advisory lock serializes the read-compare-write.
func (s *AssetStore) Upsert(ctx context.Context, asset *domain.Asset) error {
	tags, err := json.Marshal(asset.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	return s.db.inTx(ctx, func(tx *sql.Tx) error {
		if err := xactLock(ctx, tx, "asset", asset.FileID); err != nil {
			return err
		}

		var stored string
		err := tx.QueryRowContext(ctx,
			`SELECT revision_token FROM assets WHERE file_id = $1`, asset.FileID).Scan(&stored)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("read revision: %w", err)
		case domain.CompareRevisions(stored, asset.RevisionToken) > 0:
			return domain.ErrStaleRevision
		}

		query := `
			INSERT INTO assets (` + assetColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
			ON CONFLICT (file_id) DO UPDATE SET
				scope_id = EXCLUDED.scope_id,
				name = EXCLUDED.name,
				path = EXCLUDED.path,
				parent_id = EXCLUDED.parent_id,
				tags = EXCLUDED.tags,
				confidence = EXCLUDED.confidence,
				author_name = EXCLUDED.author_name,
				source_created_at = EXCLUDED.source_created_at,
				size_bytes = EXCLUDED.size_bytes,
				mime_type = EXCLUDED.mime_type,
				revision_token = EXCLUDED.revision_token,
				index_state = EXCLUDED.index_state,
				source_url = EXCLUDED.source_url,
				indexed_at = EXCLUDED.indexed_at,
				updated_at = EXCLUDED.updated_at
		`
		_, err = tx.ExecContext(ctx, query,
			asset.FileID,
			asset.ScopeID,
			asset.Name,
			asset.Path,
			asset.ParentID,
			tags,
			string(asset.Confidence),
			asset.IntrinsicMetadata.AuthorName,
			nullZeroTime(asset.IntrinsicMetadata.CreatedAt),
			asset.IntrinsicMetadata.SizeBytes,
			asset.IntrinsicMetadata.MimeType,
			asset.RevisionToken,
			string(asset.IndexState),
			asset.SourceURL,
			asset.IndexedAt,
			asset.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert asset: %w", err)
		}
		return nil
	})
}

// ListByScope returns every asset recorded under a scope
func (s *AssetStore) ListByScope(ctx context.Context, scopeID string) ([]*domain.Asset, error) {
	query := `SELECT ` + assetColumns + ` FROM assets WHERE scope_id = $1 ORDER BY file_id`

	rows, err := s.db.QueryContext(ctx, query, scopeID)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// List pages through all assets by file ID
func (s *AssetStore) List(ctx context.Context, afterFileID string, limit int) ([]*domain.Asset, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + assetColumns + ` FROM assets WHERE file_id > $1 ORDER BY file_id LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, afterFileID, limit)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	return scanAssets(rows)
}

// CountByScope counts non-deleted assets of a scope
func (s *AssetStore) CountByScope(ctx context.Context, scopeID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE scope_id = $1 AND index_state <> $2`,
		scopeID, string(domain.IndexStateDeleted),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count assets: %w", err)
	}
	return n, nil
}

// Ping checks database connectivity
func (s *AssetStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row rowScanner) (*domain.Asset, error) {
	var (
		a         domain.Asset
		tags      []byte
		createdAt sql.NullTime
	)
	err := row.Scan(
		&a.FileID,
		&a.ScopeID,
		&a.Name,
		&a.Path,
		&a.ParentID,
		&tags,
		&a.Confidence,
		&a.IntrinsicMetadata.AuthorName,
		&createdAt,
		&a.IntrinsicMetadata.SizeBytes,
		&a.IntrinsicMetadata.MimeType,
		&a.RevisionToken,
		&a.IndexState,
		&a.SourceURL,
		&a.IndexedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if createdAt.Valid {
		a.IntrinsicMetadata.CreatedAt = createdAt.Time
	}
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &a.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &a, nil
}

func scanAssets(rows *sql.Rows) ([]*domain.Asset, error) {
	var assets []*domain.Asset
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}
