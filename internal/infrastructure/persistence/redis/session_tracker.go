package redis

import (
	"context"
	"errors"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION TRACKER
// Keeps a sessionID -> (userID, courseID) map with a TTL matching the
// engine's idle window. The engine owns the authoritative session state in
// memory; the tracker only answers "whose session is this" for inbound
// messages and lets operators see live sessions across restarts.
// ══════════════════════════════════════════════════════════════════════════════

// trackedSession is the stored record of one live session.
type trackedSession struct {
	UserID    string    `json:"user_id"`
	CourseID  string    `json:"course_id"`
	TrackedAt time.Time `json:"tracked_at"`
}

// SessionTracker implements session.Tracker on top of Redis.
type SessionTracker struct {
	cache *Cache
}

// NewSessionTracker creates a new SessionTracker.
func NewSessionTracker(cache *Cache) *SessionTracker {
	return &SessionTracker{cache: cache}
}

// Track registers a live session with the given TTL.
func (t *SessionTracker) Track(ctx context.Context, sessionID, userID, courseID string, ttl time.Duration) error {
	if sessionID == "" {
		return ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLLiveSession
	}

	rec := trackedSession{
		UserID:    userID,
		CourseID:  courseID,
		TrackedAt: time.Now().UTC(),
	}
	return t.cache.Set(ctx, SessionKey(sessionID), rec, ttl)
}

// Refresh extends the TTL of a live session. A session whose key already
// expired is treated as unknown.
func (t *SessionTracker) Refresh(ctx context.Context, sessionID string, ttl time.Duration) error {
	if sessionID == "" {
		return ErrCacheKeyEmpty
	}
	if ttl <= 0 {
		ttl = TTLLiveSession
	}

	ok, err := t.cache.Expire(ctx, SessionKey(sessionID), ttl)
	if err != nil {
		return err
	}
	if !ok {
		return shared.ErrSessionNotFound
	}
	return nil
}

// Lookup returns the (userID, courseID) of a live session.
// Returns shared.ErrSessionNotFound for an unknown or expired session.
func (t *SessionTracker) Lookup(ctx context.Context, sessionID string) (string, string, error) {
	if sessionID == "" {
		return "", "", ErrCacheKeyEmpty
	}

	var rec trackedSession
	err := t.cache.Get(ctx, SessionKey(sessionID), &rec)
	if errors.Is(err, ErrCacheMiss) {
		return "", "", shared.ErrSessionNotFound
	}
	if err != nil {
		return "", "", err
	}

	return rec.UserID, rec.CourseID, nil
}

// Forget removes a session from the tracker.
func (t *SessionTracker) Forget(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return ErrCacheKeyEmpty
	}

	return t.cache.Delete(ctx, SessionKey(sessionID))
}
