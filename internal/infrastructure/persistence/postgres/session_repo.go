package postgres

import (
	"context"
	"fmt"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION ARCHIVE IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// SessionArchive implements session.Archive for PostgreSQL.
type SessionArchive struct {
	conn *Connection
}

// NewSessionArchive creates a new SessionArchive.
func NewSessionArchive(conn *Connection) *SessionArchive {
	return &SessionArchive{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Summaries
// ─────────────────────────────────────────────────────────────────────────────

// SaveSummary archives the summary of an ended session. Saving the same
// session twice is a no-op, matching the idempotent end semantics.
func (r *SessionArchive) SaveSummary(ctx context.Context, summary *session.Summary) error {
	query := `
		INSERT INTO session_summaries (
			session_id, user_id, course_id, reason, started_at, ended_at,
			duration_sec, items_seen, attempts_count, correct_count, accuracy, unsynced
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT(session_id) DO NOTHING
	`

	_, err := r.conn.Exec(ctx, query,
		summary.SessionID,
		summary.UserID,
		summary.CourseID,
		summary.Reason,
		summary.StartedAt,
		summary.EndedAt,
		summary.DurationSec,
		summary.ItemsSeen,
		summary.AttemptsCount,
		summary.CorrectCount,
		summary.Accuracy,
		summary.Unsynced,
	)
	if err != nil {
		return WriteError("save session summary", err)
	}

	return nil
}

// SummariesForUser returns summaries of a user's ended sessions, newest first.
func (r *SessionArchive) SummariesForUser(ctx context.Context, userID string, limit int) ([]*session.Summary, error) {
	query := `
		SELECT session_id, user_id, course_id, reason, started_at, ended_at,
			   duration_sec, items_seen, attempts_count, correct_count, accuracy, unsynced
		FROM session_summaries
		WHERE user_id = $1
		ORDER BY ended_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query session summaries: %w", err)
	}
	defer rows.Close()

	var summaries []*session.Summary
	for rows.Next() {
		var s session.Summary
		err := rows.Scan(
			&s.SessionID,
			&s.UserID,
			&s.CourseID,
			&s.Reason,
			&s.StartedAt,
			&s.EndedAt,
			&s.DurationSec,
			&s.ItemsSeen,
			&s.AttemptsCount,
			&s.CorrectCount,
			&s.Accuracy,
			&s.Unsynced,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session summary: %w", err)
		}
		summaries = append(summaries, &s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return summaries, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Attempt Log
// ─────────────────────────────────────────────────────────────────────────────

// AppendAttempt appends one graded attempt to the attempt log.
func (r *SessionArchive) AppendAttempt(ctx context.Context, attempt *session.Attempt) error {
	query := `
		INSERT INTO attempts (
			id, session_id, user_id, course_id, alo_id, kc_id, source,
			correct, weak_pass, latency_ms, hints_used, theta_before, theta_after, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.conn.Exec(ctx, query,
		attempt.ID,
		attempt.SessionID,
		attempt.UserID,
		attempt.CourseID,
		attempt.ALOID,
		attempt.KCID,
		attempt.Source,
		attempt.Correct,
		attempt.WeakPass,
		attempt.LatencyMs,
		attempt.HintsUsed,
		attempt.ThetaBefore,
		attempt.ThetaAfter,
		attempt.CreatedAt,
	)
	if err != nil {
		// A retried write of an already logged attempt id is a no-op.
		if IsUniqueViolation(err) {
			return nil
		}
		return WriteError("append attempt", err)
	}

	return nil
}

// RecentAttempts returns the most recent attempts of a user, newest first.
func (r *SessionArchive) RecentAttempts(ctx context.Context, userID string, limit int) ([]*session.Attempt, error) {
	query := `
		SELECT id, session_id, user_id, course_id, alo_id, kc_id, source,
			   correct, weak_pass, latency_ms, hints_used, theta_before, theta_after, created_at
		FROM attempts
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query attempts: %w", err)
	}
	defer rows.Close()

	return r.scanAttempts(rows)
}

// scanAttempts scans attempt rows.
func (r *SessionArchive) scanAttempts(rows pgx.Rows) ([]*session.Attempt, error) {
	var attempts []*session.Attempt
	for rows.Next() {
		var a session.Attempt
		err := rows.Scan(
			&a.ID,
			&a.SessionID,
			&a.UserID,
			&a.CourseID,
			&a.ALOID,
			&a.KCID,
			&a.Source,
			&a.Correct,
			&a.WeakPass,
			&a.LatencyMs,
			&a.HintsUsed,
			&a.ThetaBefore,
			&a.ThetaAfter,
			&a.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, &a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return attempts, nil
}
