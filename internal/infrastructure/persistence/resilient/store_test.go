package resilient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/infrastructure/persistence/postgres"
	"github.com/lyo-hub/lyo-session-engine/pkg/circuitbreaker"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

// flakyMasteryStore fails every Upsert with a fixed error and counts calls.
type flakyMasteryStore struct {
	mu      sync.Mutex
	upserts int
	err     error
}

func (s *flakyMasteryStore) Get(ctx context.Context, userID, kcID string) (*mastery.Estimate, error) {
	return nil, shared.ErrNotFound
}

func (s *flakyMasteryStore) LoadAll(ctx context.Context, userID string) (map[string]*mastery.Estimate, error) {
	return nil, nil
}

func (s *flakyMasteryStore) Upsert(ctx context.Context, est *mastery.Estimate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	return s.err
}

func (s *flakyMasteryStore) upsertCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.upserts
}

func quietBreaker() *circuitbreaker.CircuitBreaker {
	return NewStoreBreaker(logger.New(logger.Options{Output: io.Discard, Level: logger.LevelError}))
}

func TestMasteryStore_ConstraintViolationIsNotRetried(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23502"}
	inner := &flakyMasteryStore{
		err: postgres.WriteError("upsert mastery estimate", fmt.Errorf("exec: %w", pgErr)),
	}
	s := NewMasteryStore(inner, quietBreaker())

	err := s.Upsert(context.Background(), &mastery.Estimate{UserID: "u1", KCID: "kc-1"})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))

	// The statement the schema rejected is not re-run.
	assert.Equal(t, 1, inner.upsertCount())
}

func TestMasteryStore_TransientErrorIsRetried(t *testing.T) {
	inner := &flakyMasteryStore{err: errors.New("connection reset")}
	s := NewMasteryStore(inner, quietBreaker())

	err := s.Upsert(context.Background(), &mastery.Estimate{UserID: "u1", KCID: "kc-1"})
	require.Error(t, err)
	assert.Equal(t, 3, inner.upsertCount())
}
