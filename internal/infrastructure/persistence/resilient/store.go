// Package resilient decorates durable stores with retry and circuit breaking.
// The engine treats a write that still fails after these layers as unsynced
// and keeps serving the session from memory.
package resilient

import (
	"context"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/pkg/circuitbreaker"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
	"github.com/lyo-hub/lyo-session-engine/pkg/retry"
)

// classify marks errors for the retrier. Not-found and validation errors
// are final answers from the store, everything else is transient.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if shared.IsNotFound(err) || shared.IsValidation(err) {
		return retry.Permanent(err)
	}
	return retry.Retryable(err)
}

// ══════════════════════════════════════════════════════════════════════════════
// MASTERY STORE
// ══════════════════════════════════════════════════════════════════════════════

// MasteryStore wraps a mastery.Store with retries and a shared breaker.
type MasteryStore struct {
	inner   mastery.Store
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewMasteryStore creates a resilient mastery store. The breaker is shared
// with other stores backed by the same database.
func NewMasteryStore(inner mastery.Store, breaker *circuitbreaker.CircuitBreaker) *MasteryStore {
	return &MasteryStore{
		inner:   inner,
		retrier: retry.StoreRetrier(),
		breaker: breaker,
	}
}

// Get returns the estimate for (userID, kcID).
func (s *MasteryStore) Get(ctx context.Context, userID, kcID string) (*mastery.Estimate, error) {
	var est *mastery.Estimate
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			var opErr error
			est, opErr = s.inner.Get(ctx, userID, kcID)
			return classify(opErr)
		})
	})
	if err != nil {
		return nil, err
	}
	return est, nil
}

// LoadAll returns all estimates of a user.
func (s *MasteryStore) LoadAll(ctx context.Context, userID string) (map[string]*mastery.Estimate, error) {
	var estimates map[string]*mastery.Estimate
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			var opErr error
			estimates, opErr = s.inner.LoadAll(ctx, userID)
			return classify(opErr)
		})
	})
	if err != nil {
		return nil, err
	}
	return estimates, nil
}

// Upsert saves an estimate.
func (s *MasteryStore) Upsert(ctx context.Context, est *mastery.Estimate) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return classify(s.inner.Upsert(ctx, est))
		})
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW STORE
// ══════════════════════════════════════════════════════════════════════════════

// ReviewStore wraps a review.Store with retries and a shared breaker.
type ReviewStore struct {
	inner   review.Store
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
}

// NewReviewStore creates a resilient review store.
func NewReviewStore(inner review.Store, breaker *circuitbreaker.CircuitBreaker) *ReviewStore {
	return &ReviewStore{
		inner:   inner,
		retrier: retry.StoreRetrier(),
		breaker: breaker,
	}
}

// Get returns the queue item for (userID, aloID).
func (s *ReviewStore) Get(ctx context.Context, userID, aloID string) (*review.QueueItem, error) {
	var item *review.QueueItem
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			var opErr error
			item, opErr = s.inner.Get(ctx, userID, aloID)
			return classify(opErr)
		})
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// LoadQueue returns the review queue of a user.
func (s *ReviewStore) LoadQueue(ctx context.Context, userID string) (map[string]*review.QueueItem, error) {
	var queue map[string]*review.QueueItem
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			var opErr error
			queue, opErr = s.inner.LoadQueue(ctx, userID)
			return classify(opErr)
		})
	})
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// Upsert saves a queue item.
func (s *ReviewStore) Upsert(ctx context.Context, item *review.QueueItem) error {
	return s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.retrier.Do(ctx, func(ctx context.Context) error {
			return classify(s.inner.Upsert(ctx, item))
		})
	})
}

// NewStoreBreaker builds the shared durable-store breaker with state
// transitions logged.
func NewStoreBreaker(log *logger.Logger) *circuitbreaker.CircuitBreaker {
	return circuitbreaker.StoreBreaker(func(name string, from, to circuitbreaker.State) {
		log.Warn("circuit breaker state changed",
			logger.Component(name),
			logger.String("from", from.String()),
			logger.String("to", to.String()),
		)
	})
}
