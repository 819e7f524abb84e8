// Package projections implements read models for CQRS pattern.
package projections

import (
	"sort"
	"sync"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNER PROGRESS VIEW - Denormalized Read Model for Learner Activity
// ══════════════════════════════════════════════════════════════════════════════

// LearnerProgressView is an in-memory denormalized view of learner
// activity, maintained from engine events. It answers "how is this
// learner doing" without touching the estimator, the scheduler or the
// archive, so ops endpoints and the digest can read it cheaply.
//
// The view is eventually consistent: it trails the write path by
// however long event dispatch takes.
type LearnerProgressView struct {
	mu sync.RWMutex

	// cards holds all learner cards indexed by user ID.
	cards map[string]*LearnerCard

	// unsynced indexes users whose latest session summary failed to
	// persist. The ops surface exposes this set for manual recovery.
	unsynced map[string]struct{}

	// lastUpdated is the timestamp of the last applied event.
	lastUpdated time.Time

	// version is incremented on each applied event.
	version int64
}

// LearnerCard is a denormalized view of one learner.
type LearnerCard struct {
	UserID string `json:"user_id"`

	// ───────────────────────────────────────────────────────────────────────────
	// Sessions
	// ───────────────────────────────────────────────────────────────────────────

	SessionsStarted int `json:"sessions_started"`
	SessionsEnded   int `json:"sessions_ended"`

	// LastSessionAt is the end time of the most recent session.
	LastSessionAt       time.Time `json:"last_session_at"`
	LastSessionReason   string    `json:"last_session_reason"`
	LastSessionAccuracy float64   `json:"last_session_accuracy"`
	LastSessionUnsynced bool      `json:"last_session_unsynced"`

	TotalItemsSeen int `json:"total_items_seen"`

	// ───────────────────────────────────────────────────────────────────────────
	// Mastery
	// ───────────────────────────────────────────────────────────────────────────

	// Thetas holds the latest observed estimate per knowledge component.
	Thetas map[string]float64 `json:"thetas"`

	SignalsTotal   int `json:"signals_total"`
	SignalsCorrect int `json:"signals_correct"`

	// ───────────────────────────────────────────────────────────────────────────
	// Reviews
	// ───────────────────────────────────────────────────────────────────────────

	ReviewsScheduled int `json:"reviews_scheduled"`
	ReviewLapses     int `json:"review_lapses"`

	// CoursesCompleted lists courses this learner exhausted, oldest first.
	CoursesCompleted []string `json:"courses_completed,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// NewLearnerProgressView creates an empty view.
func NewLearnerProgressView() *LearnerProgressView {
	return &LearnerProgressView{
		cards:    make(map[string]*LearnerCard),
		unsynced: make(map[string]struct{}),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// Event application
// ══════════════════════════════════════════════════════════════════════════════

// Apply folds one engine event into the view. Unknown event types are
// ignored so the view can be subscribed to the full stream.
func (v *LearnerProgressView) Apply(event shared.Event) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	switch e := event.(type) {
	case shared.SessionStartedEvent:
		card := v.card(e.UserID)
		card.SessionsStarted++
		v.touch(card, event)

	case shared.SessionEndedEvent:
		card := v.card(e.UserID)
		card.SessionsEnded++
		card.LastSessionAt = e.OccurredAt()
		card.LastSessionReason = e.Reason
		card.LastSessionAccuracy = e.Accuracy
		card.LastSessionUnsynced = e.Unsynced
		card.TotalItemsSeen += e.ItemsSeen
		if e.Unsynced {
			v.unsynced[e.UserID] = struct{}{}
		} else {
			delete(v.unsynced, e.UserID)
		}
		v.touch(card, event)

	case shared.MasteryUpdatedEvent:
		card := v.card(e.UserID)
		if card.Thetas == nil {
			card.Thetas = make(map[string]float64)
		}
		card.Thetas[e.KCID] = e.NewTheta
		card.SignalsTotal++
		if e.Correct {
			card.SignalsCorrect++
		}
		v.touch(card, event)

	case shared.ReviewScheduledEvent:
		card := v.card(e.UserID)
		card.ReviewsScheduled++
		if e.Lapsed {
			card.ReviewLapses++
		}
		v.touch(card, event)

	case shared.CourseCompletedEvent:
		card := v.card(e.UserID)
		for _, id := range card.CoursesCompleted {
			if id == e.CourseID {
				v.touch(card, event)
				return nil
			}
		}
		card.CoursesCompleted = append(card.CoursesCompleted, e.CourseID)
		v.touch(card, event)
	}

	return nil
}

// card returns the card for userID, creating it if needed.
// Caller must hold the write lock.
func (v *LearnerProgressView) card(userID string) *LearnerCard {
	card, ok := v.cards[userID]
	if !ok {
		card = &LearnerCard{UserID: userID}
		v.cards[userID] = card
	}
	return card
}

// touch stamps the card and advances the view version.
// Caller must hold the write lock.
func (v *LearnerProgressView) touch(card *LearnerCard, event shared.Event) {
	card.UpdatedAt = event.OccurredAt()
	v.lastUpdated = event.OccurredAt()
	v.version++
}

// ══════════════════════════════════════════════════════════════════════════════
// Read API
// ══════════════════════════════════════════════════════════════════════════════

// Get returns a copy of the card for userID.
func (v *LearnerProgressView) Get(userID string) (LearnerCard, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	card, ok := v.cards[userID]
	if !ok {
		return LearnerCard{}, false
	}
	return cloneCard(card), true
}

// All returns copies of all cards, sorted by user ID.
func (v *LearnerProgressView) All() []LearnerCard {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]LearnerCard, 0, len(v.cards))
	for _, card := range v.cards {
		result = append(result, cloneCard(card))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].UserID < result[j].UserID
	})
	return result
}

// UnsyncedUsers returns users whose latest session summary is not
// persisted, sorted by user ID.
func (v *LearnerProgressView) UnsyncedUsers() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	result := make([]string, 0, len(v.unsynced))
	for userID := range v.unsynced {
		result = append(result, userID)
	}
	sort.Strings(result)
	return result
}

// Len returns the number of tracked learners.
func (v *LearnerProgressView) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.cards)
}

// Version returns the current view version and last update time.
func (v *LearnerProgressView) Version() (int64, time.Time) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.version, v.lastUpdated
}

// Forget drops a learner's card, for account deletion.
func (v *LearnerProgressView) Forget(userID string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.cards, userID)
	delete(v.unsynced, userID)
	v.version++
}

func cloneCard(card *LearnerCard) LearnerCard {
	out := *card

	if card.Thetas != nil {
		out.Thetas = make(map[string]float64, len(card.Thetas))
		for k, t := range card.Thetas {
			out.Thetas[k] = t
		}
	}
	if card.CoursesCompleted != nil {
		out.CoursesCompleted = append([]string(nil), card.CoursesCompleted...)
	}
	return out
}
