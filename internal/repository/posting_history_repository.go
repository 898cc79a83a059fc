package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/maheshrc27/postpilot/internal/models"
)

type PostingHistoryRepository interface {
	Create(ctx context.Context, ph *models.PostingHistory) (int64, error)
	ListByPostUID(ctx context.Context, uid string) ([]*models.PostingHistory, error)
}

const postingHistorySchema = `
	CREATE TABLE IF NOT EXISTS posting_history (
		id BIGSERIAL PRIMARY KEY,
		post_uid TEXT NOT NULL,
		platform TEXT NOT NULL,
		platform_post_id TEXT NOT NULL DEFAULT '',
		permalink TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)
`

type postingHistoryRepository struct {
	db *sql.DB
}

func NewPostingHistoryRepository(db *sql.DB) PostingHistoryRepository {
	return &postingHistoryRepository{db: db}
}

// EnsurePostingHistorySchema creates the audit table when it is missing.
func EnsurePostingHistorySchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, postingHistorySchema); err != nil {
		return fmt.Errorf("ensure posting_history: %w", err)
	}
	return nil
}

func (r *postingHistoryRepository) Create(ctx context.Context, ph *models.PostingHistory) (int64, error) {
	query := `
		INSERT INTO posting_history (post_uid, platform, platform_post_id, permalink, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`

	attemptedAt := ph.CreatedAt
	if attemptedAt.IsZero() {
		attemptedAt = time.Now().UTC()
	}

	var id int64
	err := r.db.QueryRowContext(ctx, query, ph.PostUID, ph.Platform, ph.PlatformPostID, ph.Permalink, ph.ErrorMessage, attemptedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert posting history: %w", err)
	}

	return id, nil
}

func (r *postingHistoryRepository) ListByPostUID(ctx context.Context, uid string) ([]*models.PostingHistory, error) {
	query := `SELECT id, post_uid, platform, platform_post_id, permalink, error_message, created_at FROM posting_history WHERE post_uid = $1 ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, uid)
	if err != nil {
		return nil, fmt.Errorf("query posting history: %w", err)
	}
	defer rows.Close()

	var phs []*models.PostingHistory
	for rows.Next() {
		var ph models.PostingHistory
		err := rows.Scan(&ph.ID, &ph.PostUID, &ph.Platform, &ph.PlatformPostID, &ph.Permalink, &ph.ErrorMessage, &ph.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan posting history: %w", err)
		}
		phs = append(phs, &ph)
	}
	return phs, rows.Err()
}

// nopPostingHistoryRepository is used when no audit database is configured.
type nopPostingHistoryRepository struct{}

func NewNopPostingHistoryRepository() PostingHistoryRepository {
	return nopPostingHistoryRepository{}
}

func (nopPostingHistoryRepository) Create(context.Context, *models.PostingHistory) (int64, error) {
	return 0, nil
}

func (nopPostingHistoryRepository) ListByPostUID(context.Context, string) ([]*models.PostingHistory, error) {
	return nil, nil
}
