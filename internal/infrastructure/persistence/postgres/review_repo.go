package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReviewRepository implements review.Store for PostgreSQL.
type ReviewRepository struct {
	conn *Connection
}

// NewReviewRepository creates a new ReviewRepository.
func NewReviewRepository(conn *Connection) *ReviewRepository {
	return &ReviewRepository{conn: conn}
}

// Get returns the queue item for (userID, aloID).
// Returns shared.ErrNotFound when the object has never been scheduled.
func (r *ReviewRepository) Get(ctx context.Context, userID, aloID string) (*review.QueueItem, error) {
	query := `
		SELECT user_id, alo_id, kc_id, interval_days, reps, ease_factor, lapses,
			   next_due, last_reviewed_at
		FROM review_queue
		WHERE user_id = $1 AND alo_id = $2
	`

	var item review.QueueItem
	err := r.conn.QueryRow(ctx, query, userID, aloID).Scan(
		&item.UserID,
		&item.ALOID,
		&item.KCID,
		&item.IntervalDays,
		&item.Reps,
		&item.EaseFactor,
		&item.Lapses,
		&item.NextDue,
		&item.LastReviewedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get review queue item: %w", err)
	}

	return &item, nil
}

// LoadQueue returns the entire review queue of a user, keyed by aloID.
func (r *ReviewRepository) LoadQueue(ctx context.Context, userID string) (map[string]*review.QueueItem, error) {
	query := `
		SELECT user_id, alo_id, kc_id, interval_days, reps, ease_factor, lapses,
			   next_due, last_reviewed_at
		FROM review_queue
		WHERE user_id = $1
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load review queue: %w", err)
	}
	defer rows.Close()

	queue := make(map[string]*review.QueueItem)
	for rows.Next() {
		var item review.QueueItem
		err := rows.Scan(
			&item.UserID,
			&item.ALOID,
			&item.KCID,
			&item.IntervalDays,
			&item.Reps,
			&item.EaseFactor,
			&item.Lapses,
			&item.NextDue,
			&item.LastReviewedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review queue item: %w", err)
		}
		queue[item.ALOID] = &item
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return queue, nil
}

// Upsert saves a queue item, inserting or updating by (user_id, alo_id).
func (r *ReviewRepository) Upsert(ctx context.Context, item *review.QueueItem) error {
	if err := item.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO review_queue (
			user_id, alo_id, kc_id, interval_days, reps, ease_factor, lapses,
			next_due, last_reviewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT(user_id, alo_id) DO UPDATE SET
			kc_id = EXCLUDED.kc_id,
			interval_days = EXCLUDED.interval_days,
			reps = EXCLUDED.reps,
			ease_factor = EXCLUDED.ease_factor,
			lapses = EXCLUDED.lapses,
			next_due = EXCLUDED.next_due,
			last_reviewed_at = EXCLUDED.last_reviewed_at
	`

	_, err := r.conn.Exec(ctx, query,
		item.UserID,
		item.ALOID,
		item.KCID,
		item.IntervalDays,
		item.Reps,
		item.EaseFactor,
		item.Lapses,
		item.NextDue,
		item.LastReviewedAt,
	)
	if err != nil {
		return WriteError("upsert review queue item", err)
	}

	return nil
}

// DueCounts returns the number of due review items per user at the given
// instant. Used by the daily digest job.
func (r *ReviewRepository) DueCounts(ctx context.Context, now time.Time) (map[string]int, error) {
	query := `
		SELECT user_id, COUNT(*)
		FROM review_queue
		WHERE next_due <= $1
		GROUP BY user_id
	`

	rows, err := r.conn.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to count due reviews: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var userID string
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan due count: %w", err)
		}
		counts[userID] = n
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return counts, nil
}
