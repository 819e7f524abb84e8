package review

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// memStore is an in-memory Store with a switchable failure mode.
type memStore struct {
	mu   sync.Mutex
	data map[string]map[string]*QueueItem
	fail bool
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]map[string]*QueueItem)}
}

func (s *memStore) Get(ctx context.Context, userID, aloID string) (*QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	item, ok := s.data[userID][aloID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return item.Clone(), nil
}

func (s *memStore) LoadQueue(ctx context.Context, userID string) (map[string]*QueueItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return nil, errors.New("store unavailable")
	}
	out := make(map[string]*QueueItem, len(s.data[userID]))
	for aloID, item := range s.data[userID] {
		out[aloID] = item.Clone()
	}
	return out, nil
}

func (s *memStore) Upsert(ctx context.Context, item *QueueItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("store unavailable")
	}
	if s.data[item.UserID] == nil {
		s.data[item.UserID] = make(map[string]*QueueItem)
	}
	s.data[item.UserID][item.ALOID] = item.Clone()
	return nil
}

func (s *memStore) setFail(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = fail
}

func seed(t *testing.T, store *memStore, item *QueueItem) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), item))
}

func TestRecordOutcome_FirstContact(t *testing.T) {
	s := NewScheduler(newMemStore(), nil)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	res, err := s.RecordOutcome(context.Background(), "u1", "alo1", "kc1", true, now)
	require.NoError(t, err)

	assert.Equal(t, 1, res.IntervalDays)
	assert.Equal(t, 1, res.Reps)
	assert.False(t, res.Lapsed)
	assert.True(t, res.Synced)
	assert.Equal(t, now.Add(24*time.Hour), res.NextDue)
}

func TestRecordOutcome_IntervalGrowsWithStreak(t *testing.T) {
	// Interval 8 after a short streak: the next success multiplies by
	// the base ease, round(8 * 1.3) = 10.
	store := newMemStore()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seed(t, store, &QueueItem{
		UserID: "u1", ALOID: "alo1", KCID: "kc1",
		IntervalDays: 8, Reps: 2, EaseFactor: BaseEase,
		NextDue: now, LastReviewedAt: now.AddDate(0, 0, -8),
	})

	s := NewScheduler(store, nil)
	res, err := s.RecordOutcome(context.Background(), "u1", "alo1", "kc1", true, now)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Reps)
	assert.Equal(t, 10, res.IntervalDays)
}

func TestRecordOutcome_EaseBonusAndCap(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seed(t, store, &QueueItem{
		UserID: "u1", ALOID: "alo1", KCID: "kc1",
		IntervalDays: 10, Reps: 3, EaseFactor: BaseEase, NextDue: now,
	})

	s := NewScheduler(store, nil)
	ctx := context.Background()

	// Fourth success earns the first bonus: ease 1.3 + 0.05.
	res, err := s.RecordOutcome(ctx, "u1", "alo1", "kc1", true, now)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Reps)
	assert.Equal(t, 14, res.IntervalDays) // round(10 * 1.35)

	// A long streak caps at MaxEase.
	seed(t, store, &QueueItem{
		UserID: "u2", ALOID: "alo1", KCID: "kc1",
		IntervalDays: 10, Reps: 20, EaseFactor: MaxEase, NextDue: now,
	})
	res, err = s.RecordOutcome(ctx, "u2", "alo1", "kc1", true, now)
	require.NoError(t, err)
	assert.Equal(t, 16, res.IntervalDays) // round(10 * 1.6)

	q := s.Queue(ctx, "u2")
	assert.InDelta(t, MaxEase, q["alo1"].EaseFactor, 1e-9)
}

func TestRecordOutcome_LapseResetsStreak(t *testing.T) {
	store := newMemStore()
	now := time.Now().UTC()
	seed(t, store, &QueueItem{
		UserID: "u1", ALOID: "alo1", KCID: "kc1",
		IntervalDays: 21, Reps: 6, EaseFactor: 1.45, NextDue: now,
	})

	s := NewScheduler(store, nil)
	res, err := s.RecordOutcome(context.Background(), "u1", "alo1", "kc1", false, now)
	require.NoError(t, err)

	assert.True(t, res.Lapsed)
	assert.Equal(t, 0, res.Reps)
	assert.Equal(t, MinIntervalDays, res.IntervalDays)
	assert.Equal(t, now.Add(24*time.Hour), res.NextDue)

	q := s.Queue(context.Background(), "u1")
	assert.Equal(t, 1, q["alo1"].Lapses)
	assert.InDelta(t, BaseEase, q["alo1"].EaseFactor, 1e-9)
}

func TestDueItems_OrderingAndBoundary(t *testing.T) {
	store := newMemStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seed(t, store, &QueueItem{ // most overdue
		UserID: "u1", ALOID: "alo-old", KCID: "kc1",
		IntervalDays: 1, EaseFactor: BaseEase, NextDue: now.AddDate(0, 0, -3),
	})
	seed(t, store, &QueueItem{ // due exactly now
		UserID: "u1", ALOID: "alo-now", KCID: "kc1",
		IntervalDays: 1, EaseFactor: BaseEase, NextDue: now,
	})
	seed(t, store, &QueueItem{ // not due yet
		UserID: "u1", ALOID: "alo-future", KCID: "kc1",
		IntervalDays: 1, EaseFactor: BaseEase, NextDue: now.Add(time.Hour),
	})
	// Same overdue as alo-old but harder: loses the tie-break.
	seed(t, store, &QueueItem{
		UserID: "u1", ALOID: "alo-hard", KCID: "kc1",
		IntervalDays: 1, EaseFactor: BaseEase, NextDue: now.AddDate(0, 0, -3),
	})

	s := NewScheduler(store, nil)
	diff := func(aloID string) int {
		if aloID == "alo-hard" {
			return 5
		}
		return 2
	}

	due := s.DueItems(context.Background(), "u1", now, diff)
	require.Len(t, due, 3)
	assert.Equal(t, "alo-old", due[0].ALOID)
	assert.Equal(t, "alo-hard", due[1].ALOID)
	assert.Equal(t, "alo-now", due[2].ALOID)
}

func TestRecordOutcome_PublishesEvent(t *testing.T) {
	bus := &capturingBus{}
	s := NewScheduler(newMemStore(), bus)
	now := time.Now().UTC()

	_, err := s.RecordOutcome(context.Background(), "u1", "alo1", "kc1", false, now)
	require.NoError(t, err)

	require.Len(t, bus.events, 1)
	evt, ok := bus.events[0].(shared.ReviewScheduledEvent)
	require.True(t, ok)
	assert.Equal(t, "alo1", evt.ALOID)
	assert.True(t, evt.Lapsed)
	assert.Equal(t, MinIntervalDays, evt.IntervalDays)
}

func TestFlushUser_RetriesDirtyItems(t *testing.T) {
	store := newMemStore()
	s := NewScheduler(store, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	store.setFail(true)
	res, err := s.RecordOutcome(ctx, "u1", "alo1", "kc1", true, now)
	require.NoError(t, err)
	assert.False(t, res.Synced)

	assert.Equal(t, 1, s.FlushUser(ctx, "u1"))

	store.setFail(false)
	assert.Equal(t, 0, s.FlushUser(ctx, "u1"))

	stored, err := store.Get(ctx, "u1", "alo1")
	require.NoError(t, err)
	assert.Equal(t, res.IntervalDays, stored.IntervalDays)
}

func TestForget_KeepsDirtyItems(t *testing.T) {
	store := newMemStore()
	s := NewScheduler(store, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	store.setFail(true)
	_, err := s.RecordOutcome(ctx, "u1", "alo1", "kc1", true, now)
	require.NoError(t, err)

	s.Forget("u1")

	store.setFail(false)
	q := s.Queue(ctx, "u1")
	require.Contains(t, q, "alo1")
	assert.True(t, q["alo1"].Dirty())
}

func TestScheduler_ConcurrentUsersShareCache(t *testing.T) {
	// Forget and RecordOutcome for one user rewrite the shared top-level
	// cache while sessions of other users iterate their own queues.
	store := newMemStore()
	s := NewScheduler(store, nil)
	ctx := context.Background()
	now := time.Now().UTC()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		userID := fmt.Sprintf("u%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, err := s.RecordOutcome(ctx, userID, "alo1", "kc1", j%2 == 0, now); err != nil {
					t.Error(err)
					return
				}
				s.DueItems(ctx, userID, now.Add(48*time.Hour), nil)
				s.FlushUser(ctx, userID)
				s.Forget(userID)
			}
		}()
	}
	wg.Wait()

	for i := 0; i < 8; i++ {
		q := s.Queue(ctx, fmt.Sprintf("u%d", i))
		assert.Contains(t, q, "alo1")
	}
}

func TestQueueItem_Validate(t *testing.T) {
	now := time.Now().UTC()
	item := NewQueueItem("u1", "alo1", "kc1", now)
	assert.NoError(t, item.Validate())

	item.EaseFactor = 2.0
	assert.ErrorIs(t, item.Validate(), ErrInvalidItem)

	item.EaseFactor = BaseEase
	item.IntervalDays = 0
	assert.ErrorIs(t, item.Validate(), ErrInvalidItem)
}

// capturingBus records published events.
type capturingBus struct {
	mu     sync.Mutex
	events []shared.Event
}

func (b *capturingBus) Publish(event shared.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
	return nil
}
