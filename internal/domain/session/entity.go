// Package session содержит агрегат учебной сессии и её конечный автомат.
// Все мутации сессии проходят через методы-переходы; оркестратор никогда
// не трогает поля напрямую.
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEARNING SESSION
// Конечный автомат:
//
//	Idle -> Delivering -> AwaitingSignal -> Grading -> (Delivering | Ending)
//	                                                -> Ending -> Ended
//
// Ended - терминальное состояние, выход из него невозможен.
// ══════════════════════════════════════════════════════════════════════════════

// State - состояние учебной сессии.
type State string

const (
	StateIdle           State = "idle"
	StateDelivering     State = "delivering"
	StateAwaitingSignal State = "awaiting_signal"
	StateGrading        State = "grading"
	StateEnding         State = "ending"
	StateEnded          State = "ended"
)

// IsValid проверяет корректность состояния.
func (s State) IsValid() bool {
	switch s {
	case StateIdle, StateDelivering, StateAwaitingSignal, StateGrading, StateEnding, StateEnded:
		return true
	}
	return false
}

// Terminal возвращает true для терминального состояния.
func (s State) Terminal() bool {
	return s == StateEnded
}

// Причины завершения сессии.
const (
	EndReasonUserRequested  = "user_requested"
	EndReasonCourseComplete = "course_complete"
	EndReasonIdleTimeout    = "idle_timeout"
	EndReasonShutdown       = "shutdown"
)

// LearningSession - одна непрерывная сессия пользователя в курсе.
// Каталожных данных не содержит, только ссылки.
type LearningSession struct {
	// ID - идентификатор сессии.
	ID string

	// UserID и CourseID - владелец и курс сессии.
	UserID   string
	CourseID string

	// State - текущее состояние автомата.
	State State

	// CurrentALOID - объект, доставленный и ожидающий сигнала.
	// Пустая строка вне AwaitingSignal/Grading.
	CurrentALOID string

	// StartedAt и EndedAt - границы сессии.
	StartedAt time.Time
	EndedAt   time.Time

	// LastActivityAt - время последнего входящего события.
	// По нему работает idle-TTL.
	LastActivityAt time.Time

	// AttemptsCount и CorrectCount - счётчики попыток за сессию.
	AttemptsCount int
	CorrectCount  int

	// seen - объекты, уже доставленные в этой сессии.
	seen map[string]bool

	// summary - сводка, вычисленная при завершении. Повторный End
	// отдаёт её же, не пересчитывая.
	summary *Summary

	// unsynced - хотя бы одно изменение прогресса не дошло до
	// durable store и живёт только в памяти.
	unsynced bool
}

// NewLearningSession создаёт сессию в состоянии Idle.
func NewLearningSession(userID, courseID string) (*LearningSession, error) {
	if userID == "" {
		return nil, shared.NewDomainError("session", "New", shared.ErrInvalidInput, "user id is required")
	}
	if courseID == "" {
		return nil, shared.NewDomainError("session", "New", shared.ErrInvalidInput, "course id is required")
	}
	now := time.Now().UTC()
	return &LearningSession{
		ID:             uuid.New().String(),
		UserID:         userID,
		CourseID:       courseID,
		State:          StateIdle,
		StartedAt:      now,
		LastActivityAt: now,
		seen:           make(map[string]bool),
	}, nil
}

// transition выполняет переход from -> to с проверкой текущего состояния.
func (s *LearningSession) transition(op string, from, to State) error {
	if s.State == StateEnded {
		return shared.ErrSessionEnded
	}
	if s.State != from {
		return shared.NewDomainError("session", op, shared.ErrStateTransition,
			"transition "+string(from)+" -> "+string(to)+" not allowed from "+string(s.State))
	}
	s.State = to
	return nil
}

// BeginDelivery переводит сессию Idle -> Delivering (старт сессии).
func (s *LearningSession) BeginDelivery() error {
	return s.transition("BeginDelivery", StateIdle, StateDelivering)
}

// MarkDelivered фиксирует доставленный объект и переводит сессию
// Delivering -> AwaitingSignal.
func (s *LearningSession) MarkDelivered(aloID string) error {
	if aloID == "" {
		return shared.NewDomainError("session", "MarkDelivered", shared.ErrInvalidInput, "alo id is required")
	}
	if err := s.transition("MarkDelivered", StateDelivering, StateAwaitingSignal); err != nil {
		return err
	}
	s.CurrentALOID = aloID
	s.seen[aloID] = true
	return nil
}

// BeginGrading переводит сессию AwaitingSignal -> Grading после того,
// как входящее событие сопоставлено с доставленным объектом.
func (s *LearningSession) BeginGrading() error {
	return s.transition("BeginGrading", StateAwaitingSignal, StateGrading)
}

// ContinueDelivery переводит сессию Grading -> Delivering: оценка учтена,
// выбирается следующий объект.
func (s *LearningSession) ContinueDelivery() error {
	if err := s.transition("ContinueDelivery", StateGrading, StateDelivering); err != nil {
		return err
	}
	s.CurrentALOID = ""
	return nil
}

// BeginEnding переводит сессию в Ending из любого нетерминального состояния.
func (s *LearningSession) BeginEnding() error {
	if s.State == StateEnded {
		return shared.ErrSessionEnded
	}
	s.State = StateEnding
	s.CurrentALOID = ""
	return nil
}

// CompleteEnd завершает сессию: вычисляет сводку и переводит
// Ending -> Ended. Сводка запоминается для идемпотентного повторного End.
func (s *LearningSession) CompleteEnd(reason string, now time.Time) (*Summary, error) {
	if s.State == StateEnded {
		return s.summary, nil
	}
	if s.State != StateEnding {
		return nil, shared.NewDomainError("session", "CompleteEnd", shared.ErrStateTransition,
			"end must be completed from ending state, got "+string(s.State))
	}

	s.State = StateEnded
	s.EndedAt = now

	s.summary = &Summary{
		SessionID:     s.ID,
		UserID:        s.UserID,
		CourseID:      s.CourseID,
		Reason:        reason,
		StartedAt:     s.StartedAt,
		EndedAt:       now,
		DurationSec:   int(now.Sub(s.StartedAt).Seconds()),
		ItemsSeen:     len(s.seen),
		AttemptsCount: s.AttemptsCount,
		CorrectCount:  s.CorrectCount,
		Accuracy:      s.Accuracy(),
		Unsynced:      s.unsynced,
	}
	return s.summary, nil
}

// LastSummary возвращает сводку завершённой сессии или nil.
func (s *LearningSession) LastSummary() *Summary {
	return s.summary
}

// RecordAttempt учитывает одну попытку в счётчиках сессии.
func (s *LearningSession) RecordAttempt(correct bool) {
	s.AttemptsCount++
	if correct {
		s.CorrectCount++
	}
}

// MarkUnsynced помечает сессию как содержащую несинхронизированный прогресс.
func (s *LearningSession) MarkUnsynced() {
	s.unsynced = true
}

// Unsynced возвращает true, если часть прогресса не дошла до durable store.
func (s *LearningSession) Unsynced() bool {
	return s.unsynced
}

// Touch обновляет время последней активности.
func (s *LearningSession) Touch(now time.Time) {
	s.LastActivityAt = now
}

// IdleFor возвращает, сколько сессия простаивает на момент now.
func (s *LearningSession) IdleFor(now time.Time) time.Duration {
	return now.Sub(s.LastActivityAt)
}

// Active возвращает true для нетерминальной сессии.
func (s *LearningSession) Active() bool {
	return s.State != StateEnded
}

// Seen возвращает true, если объект уже доставлялся в этой сессии.
func (s *LearningSession) Seen(aloID string) bool {
	return s.seen[aloID]
}

// SeenCount возвращает количество доставленных объектов.
func (s *LearningSession) SeenCount() int {
	return len(s.seen)
}

// Accuracy возвращает долю верных попыток за сессию (0 без попыток).
func (s *LearningSession) Accuracy() float64 {
	if s.AttemptsCount == 0 {
		return 0
	}
	return float64(s.CorrectCount) / float64(s.AttemptsCount)
}
