// Package review реализует планировщик интервального повторения
// (SM-2-подобный) поверх очереди повторений пользователя.
package review

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW QUEUE ITEM
// Один элемент очереди повторений: (UserID, ALOID) с состоянием расписания.
// ══════════════════════════════════════════════════════════════════════════════

// Доменные константы планировщика.
const (
	// BaseEase - базовый множитель интервала.
	BaseEase = 1.3

	// MaxEase - потолок множителя после бонусов за серию повторений.
	MaxEase = 1.6

	// EaseBonusPerRep - прибавка к ease за каждое успешное повторение
	// сверх EaseBonusFreeReps.
	EaseBonusPerRep = 0.05

	// EaseBonusFreeReps - длина серии, после которой начинают
	// начисляться бонусы к ease.
	EaseBonusFreeReps = 3

	// MinIntervalDays - минимальный интервал между повторениями.
	MinIntervalDays = 1
)

// QueueItem - состояние одного ALO в очереди повторений пользователя.
// Ключ: (UserID, ALOID). Мутируется только планировщиком.
type QueueItem struct {
	// UserID - идентификатор пользователя.
	UserID string

	// ALOID - идентификатор учебного объекта.
	ALOID string

	// KCID - компонент знаний, которому принадлежит объект.
	// Денормализован из графа для отчётов и выборок.
	KCID string

	// IntervalDays - текущий интервал в днях, всегда >= MinIntervalDays.
	IntervalDays int

	// Reps - длина текущей серии успешных повторений. Сбрасывается
	// в ноль при провале (lapse).
	Reps int

	// EaseFactor - текущий множитель интервала.
	EaseFactor float64

	// Lapses - сколько раз серия сбрасывалась.
	Lapses int

	// NextDue - момент, когда объект снова подлежит повторению.
	NextDue time.Time

	// LastReviewedAt - время последнего учтённого повторения.
	LastReviewedAt time.Time

	// dirty - есть несинхронизированные с durable store изменения.
	dirty bool
}

// Доменные ошибки очереди повторений.
var (
	// ErrInvalidItem - нарушен инвариант элемента очереди.
	ErrInvalidItem = errors.New("invalid review queue item")
)

// NewQueueItem создаёт элемент очереди при первом контакте с объектом.
// Первое повторение назначается через MinIntervalDays от now.
func NewQueueItem(userID, aloID, kcID string, now time.Time) *QueueItem {
	return &QueueItem{
		UserID:         userID,
		ALOID:          aloID,
		KCID:           kcID,
		IntervalDays:   MinIntervalDays,
		Reps:           0,
		EaseFactor:     BaseEase,
		NextDue:        now.Add(MinIntervalDays * 24 * time.Hour),
		LastReviewedAt: now,
	}
}

// Validate проверяет инварианты элемента.
func (q *QueueItem) Validate() error {
	if q.UserID == "" || q.ALOID == "" {
		return ErrInvalidItem
	}
	if q.IntervalDays < MinIntervalDays {
		return ErrInvalidItem
	}
	if q.Reps < 0 || q.Lapses < 0 {
		return ErrInvalidItem
	}
	if q.EaseFactor < BaseEase || q.EaseFactor > MaxEase {
		return ErrInvalidItem
	}
	return nil
}

// Due возвращает true, если объект подлежит повторению на момент now.
func (q *QueueItem) Due(now time.Time) bool {
	return !q.NextDue.After(now)
}

// OverdueBy возвращает, насколько объект просрочен на момент now.
// Для непросроченных возвращает отрицательную длительность.
func (q *QueueItem) OverdueBy(now time.Time) time.Duration {
	return now.Sub(q.NextDue)
}

// Dirty возвращает true, если есть несинхронизированные изменения.
func (q *QueueItem) Dirty() bool {
	return q.dirty
}

// MarkDirty помечает элемент как несинхронизированный.
func (q *QueueItem) MarkDirty() {
	q.dirty = true
}

// MarkSynced помечает элемент как синхронизированный.
func (q *QueueItem) MarkSynced() {
	q.dirty = false
}

// Clone создаёт копию элемента.
func (q *QueueItem) Clone() *QueueItem {
	if q == nil {
		return nil
	}
	clone := *q
	return &clone
}
