// Package shared contains common domain types, errors, and events that are
// used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the engine.
const (
	// Session lifecycle events
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"
	EventSessionIdle    EventType = "session.idle_timeout"

	// Delivery events
	EventALODelivered    EventType = "delivery.alo_delivered"
	EventCourseCompleted EventType = "delivery.course_completed"

	// Learning events
	EventSignalReceived  EventType = "learning.signal_received"
	EventMasteryUpdated  EventType = "learning.mastery_updated"
	EventReviewScheduled EventType = "learning.review_scheduled"
	EventEvidenceGraded  EventType = "learning.evidence_graded"

	// System events
	EventSummaryUnsynced EventType = "system.summary_unsynced"
	EventGraphLoaded     EventType = "system.graph_loaded"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type        EventType `json:"type"`
	Timestamp   time.Time `json:"timestamp"`
	AggregateId string    `json:"aggregate_id"`
	Version     int       `json:"version"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted when a learning session starts.
type SessionStartedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.AggregateId,
		"user_id":    e.UserID,
		"course_id":  e.CourseID,
	}
}

// NewSessionStartedEvent creates a new session started event.
func NewSessionStartedEvent(sessionID, userID, courseID string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, sessionID),
		UserID:    userID,
		CourseID:  courseID,
	}
}

// SessionEndedEvent is emitted when a learning session ends.
type SessionEndedEvent struct {
	BaseEvent
	UserID    string        `json:"user_id"`
	Reason    string        `json:"reason"`
	Duration  time.Duration `json:"duration"`
	ItemsSeen int           `json:"items_seen"`
	Accuracy  float64       `json:"accuracy"`
	Unsynced  bool          `json:"unsynced"`
}

// Payload implements Event interface.
func (e SessionEndedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.AggregateId,
		"user_id":    e.UserID,
		"reason":     e.Reason,
		"duration":   e.Duration.String(),
		"items_seen": e.ItemsSeen,
		"accuracy":   e.Accuracy,
		"unsynced":   e.Unsynced,
	}
}

// NewSessionEndedEvent creates a new session ended event.
func NewSessionEndedEvent(sessionID, userID, reason string, duration time.Duration, itemsSeen int, accuracy float64, unsynced bool) SessionEndedEvent {
	return SessionEndedEvent{
		BaseEvent: NewBaseEvent(EventSessionEnded, sessionID),
		UserID:    userID,
		Reason:    reason,
		Duration:  duration,
		ItemsSeen: itemsSeen,
		Accuracy:  accuracy,
		Unsynced:  unsynced,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning Events
// ═══════════════════════════════════════════════════════════════════════════

// MasteryUpdatedEvent is emitted after a theta update.
type MasteryUpdatedEvent struct {
	BaseEvent
	UserID   string  `json:"user_id"`
	KCID     string  `json:"kc_id"`
	OldTheta float64 `json:"old_theta"`
	NewTheta float64 `json:"new_theta"`
	Correct  bool    `json:"correct"`
}

// Payload implements Event interface.
func (e MasteryUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID,
		"kc_id":     e.KCID,
		"old_theta": e.OldTheta,
		"new_theta": e.NewTheta,
		"correct":   e.Correct,
	}
}

// NewMasteryUpdatedEvent creates a new mastery updated event.
func NewMasteryUpdatedEvent(userID, kcID string, oldTheta, newTheta float64, correct bool) MasteryUpdatedEvent {
	return MasteryUpdatedEvent{
		BaseEvent: NewBaseEvent(EventMasteryUpdated, userID),
		UserID:    userID,
		KCID:      kcID,
		OldTheta:  oldTheta,
		NewTheta:  newTheta,
		Correct:   correct,
	}
}

// ReviewScheduledEvent is emitted when a spaced review is (re)scheduled.
type ReviewScheduledEvent struct {
	BaseEvent
	UserID       string    `json:"user_id"`
	ALOID        string    `json:"alo_id"`
	IntervalDays int       `json:"interval_days"`
	NextDue      time.Time `json:"next_due"`
	Lapsed       bool      `json:"lapsed"`
}

// Payload implements Event interface.
func (e ReviewScheduledEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":       e.UserID,
		"alo_id":        e.ALOID,
		"interval_days": e.IntervalDays,
		"next_due":      e.NextDue.Format(time.RFC3339),
		"lapsed":        e.Lapsed,
	}
}

// NewReviewScheduledEvent creates a new review scheduled event.
func NewReviewScheduledEvent(userID, aloID string, intervalDays int, nextDue time.Time, lapsed bool) ReviewScheduledEvent {
	return ReviewScheduledEvent{
		BaseEvent:    NewBaseEvent(EventReviewScheduled, userID),
		UserID:       userID,
		ALOID:        aloID,
		IntervalDays: intervalDays,
		NextDue:      nextDue,
		Lapsed:       lapsed,
	}
}

// CourseCompletedEvent is emitted when selection exhausts a course for a user.
type CourseCompletedEvent struct {
	BaseEvent
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`
}

// Payload implements Event interface.
func (e CourseCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.AggregateId,
		"user_id":    e.UserID,
		"course_id":  e.CourseID,
	}
}

// NewCourseCompletedEvent creates a new course completed event.
func NewCourseCompletedEvent(sessionID, userID, courseID string) CourseCompletedEvent {
	return CourseCompletedEvent{
		BaseEvent: NewBaseEvent(EventCourseCompleted, sessionID),
		UserID:    userID,
		CourseID:  courseID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// GraphLoadedEvent is emitted when a course graph compiles successfully.
type GraphLoadedEvent struct {
	BaseEvent
	CourseID   string `json:"course_id"`
	Components int    `json:"components"`
	Objects    int    `json:"objects"`
}

// Payload implements Event interface.
func (e GraphLoadedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"course_id":  e.CourseID,
		"components": e.Components,
		"objects":    e.Objects,
	}
}

// NewGraphLoadedEvent creates a new graph loaded event.
func NewGraphLoadedEvent(courseID string, components, objects int) GraphLoadedEvent {
	return GraphLoadedEvent{
		BaseEvent:  NewBaseEvent(EventGraphLoaded, courseID),
		CourseID:   courseID,
		Components: components,
		Objects:    objects,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Bus Interfaces
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
