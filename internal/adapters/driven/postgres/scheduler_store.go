package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/custodia-labs/drive-index/internal/core/domain"
	"github.com/custodia-labs/drive-index/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.ScheduleStore = (*ScheduleStore)(nil)

// ScheduleStore implements driven.ScheduleStore using PostgreSQL
type ScheduleStore struct {
	db *DB
}

// NewScheduleStore creates a new ScheduleStore
func NewScheduleStore(db *DB) *ScheduleStore {
	return &ScheduleStore{db: db}
}

const scheduleColumns = `id, scope_id, interval_ns, enabled, next_run, last_run, last_error`

// Get retrieves a schedule by ID
func (s *ScheduleStore) Get(ctx context.Context, id string) (*domain.ScheduledCrawl, error) {
	query := `SELECT ` + scheduleColumns + ` FROM crawl_schedules WHERE id = $1`

	rows, err := s.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	schedules, err := scanSchedules(rows)
	if err != nil {
		return nil, err
	}
	if len(schedules) == 0 {
		return nil, domain.ErrNotFound
	}
	return schedules[0], nil
}

// List retrieves all schedules
func (s *ScheduleStore) List(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+scheduleColumns+` FROM crawl_schedules ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// Save creates or updates a schedule
func (s *ScheduleStore) Save(ctx context.Context, sc *domain.ScheduledCrawl) error {
	query := `
		INSERT INTO crawl_schedules (` + scheduleColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			scope_id = EXCLUDED.scope_id,
			interval_ns = EXCLUDED.interval_ns,
			enabled = EXCLUDED.enabled,
			next_run = EXCLUDED.next_run,
			last_run = EXCLUDED.last_run,
			last_error = EXCLUDED.last_error
	`

	_, err := s.db.ExecContext(ctx, query,
		sc.ID,
		sc.ScopeID,
		int64(sc.Interval),
		sc.Enabled,
		sc.NextRun,
		nullTime(sc.LastRun),
		sc.LastError,
	)
	return err
}

// Delete removes a schedule
func (s *ScheduleStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM crawl_schedules WHERE id = $1`, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// Due retrieves enabled schedules whose next run has passed
func (s *ScheduleStore) Due(ctx context.Context) ([]*domain.ScheduledCrawl, error) {
	query := `
		SELECT ` + scheduleColumns + `
		FROM crawl_schedules
		WHERE enabled = true AND next_run <= $1
		ORDER BY next_run ASC
	`

	rows, err := s.db.QueryContext(ctx, query, time.Now())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSchedules(rows)
}

// UpdateLastRun stamps a run and advances next_run by the stored interval in one statement
func (s *ScheduleStore) UpdateLastRun(ctx context.Context, id string, lastError string) error {
	now := time.Now()
	query := `
		UPDATE crawl_schedules
		SET last_run = $1,
			next_run = $1 + (interval_ns / 1000) * INTERVAL '1 microsecond',
			last_error = $2
		WHERE id = $3
	`

	result, err := s.db.ExecContext(ctx, query, now, lastError, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSchedules(rows *sql.Rows) ([]*domain.ScheduledCrawl, error) {
	var schedules []*domain.ScheduledCrawl
	for rows.Next() {
		var (
			sc         domain.ScheduledCrawl
			lastRun    sql.NullTime
			intervalNs int64
		)
		err := rows.Scan(
			&sc.ID,
			&sc.ScopeID,
			&intervalNs,
			&sc.Enabled,
			&sc.NextRun,
			&lastRun,
			&sc.LastError,
		)
		if err != nil {
			return nil, err
		}

		sc.Interval = time.Duration(intervalNs)
		sc.LastRun = timePtr(lastRun)
		schedules = append(schedules, &sc)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}
	return schedules, nil
}
