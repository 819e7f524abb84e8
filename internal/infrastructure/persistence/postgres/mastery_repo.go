package postgres

import (
	"context"
	"fmt"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MASTERY STORE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// MasteryRepository implements mastery.Store for PostgreSQL.
type MasteryRepository struct {
	conn *Connection
}

// NewMasteryRepository creates a new MasteryRepository.
func NewMasteryRepository(conn *Connection) *MasteryRepository {
	return &MasteryRepository{conn: conn}
}

// Get returns the estimate for (userID, kcID).
// Returns shared.ErrNotFound when no evidence has been recorded yet.
func (r *MasteryRepository) Get(ctx context.Context, userID, kcID string) (*mastery.Estimate, error) {
	query := `
		SELECT user_id, kc_id, theta, attempts_count, correct_count, updated_at
		FROM mastery_estimates
		WHERE user_id = $1 AND kc_id = $2
	`

	var est mastery.Estimate
	err := r.conn.QueryRow(ctx, query, userID, kcID).Scan(
		&est.UserID,
		&est.KCID,
		&est.Theta,
		&est.AttemptsCount,
		&est.CorrectCount,
		&est.UpdatedAt,
	)
	if IsNoRows(err) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mastery estimate: %w", err)
	}

	return &est, nil
}

// LoadAll returns all estimates for a user, keyed by kcID.
func (r *MasteryRepository) LoadAll(ctx context.Context, userID string) (map[string]*mastery.Estimate, error) {
	query := `
		SELECT user_id, kc_id, theta, attempts_count, correct_count, updated_at
		FROM mastery_estimates
		WHERE user_id = $1
	`

	rows, err := r.conn.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load mastery estimates: %w", err)
	}
	defer rows.Close()

	estimates := make(map[string]*mastery.Estimate)
	for rows.Next() {
		var est mastery.Estimate
		err := rows.Scan(
			&est.UserID,
			&est.KCID,
			&est.Theta,
			&est.AttemptsCount,
			&est.CorrectCount,
			&est.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mastery estimate: %w", err)
		}
		estimates[est.KCID] = &est
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return estimates, nil
}

// Upsert saves an estimate, inserting or updating by (user_id, kc_id).
func (r *MasteryRepository) Upsert(ctx context.Context, est *mastery.Estimate) error {
	if err := est.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO mastery_estimates (user_id, kc_id, theta, attempts_count, correct_count, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(user_id, kc_id) DO UPDATE SET
			theta = EXCLUDED.theta,
			attempts_count = EXCLUDED.attempts_count,
			correct_count = EXCLUDED.correct_count,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.conn.Exec(ctx, query,
		est.UserID,
		est.KCID,
		est.Theta,
		est.AttemptsCount,
		est.CorrectCount,
		est.UpdatedAt,
	)
	if err != nil {
		return WriteError("upsert mastery estimate", err)
	}

	return nil
}
