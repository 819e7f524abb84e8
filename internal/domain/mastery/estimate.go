// Package mastery содержит модель оценки освоения (theta) и онлайн-алгоритм
// её обновления (IRT-lite логистическое обновление).
package mastery

import (
	"errors"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// MASTERY ESTIMATE
// ══════════════════════════════════════════════════════════════════════════════

// Доменные константы оценки освоения.
const (
	// PriorTheta - априорная оценка до первого свидетельства.
	PriorTheta = 0.3

	// MinTheta и MaxTheta - жёсткие границы theta.
	MinTheta = 0.0
	MaxTheta = 1.0
)

// Estimate - оценка освоения одного KC одним пользователем.
// Ключ: (UserID, KCID). Мутируется только эстиматором.
type Estimate struct {
	// UserID - идентификатор пользователя.
	UserID string

	// KCID - идентификатор Knowledge Component.
	KCID string

	// Theta - скалярная оценка освоения, всегда в [0,1].
	Theta float64

	// AttemptsCount - количество учтённых попыток.
	AttemptsCount int

	// CorrectCount - количество верных попыток. Инвариант:
	// AttemptsCount >= CorrectCount >= 0.
	CorrectCount int

	// UpdatedAt - время последнего обновления.
	UpdatedAt time.Time

	// dirty - есть несинхронизированные с durable store изменения.
	dirty bool
}

// Доменные ошибки оценки освоения.
var (
	// ErrInvalidEstimate - нарушен инвариант оценки.
	ErrInvalidEstimate = errors.New("invalid mastery estimate")
)

// NewEstimate создаёт пустую оценку с априорной theta.
func NewEstimate(userID, kcID string) *Estimate {
	return &Estimate{
		UserID:    userID,
		KCID:      kcID,
		Theta:     PriorTheta,
		UpdatedAt: time.Now().UTC(),
	}
}

// Validate проверяет инварианты оценки.
func (e *Estimate) Validate() error {
	if e.UserID == "" || e.KCID == "" {
		return ErrInvalidEstimate
	}
	if e.Theta < MinTheta || e.Theta > MaxTheta {
		return ErrInvalidEstimate
	}
	if e.CorrectCount < 0 || e.AttemptsCount < e.CorrectCount {
		return ErrInvalidEstimate
	}
	return nil
}

// Accuracy возвращает долю верных попыток (0, если попыток не было).
func (e *Estimate) Accuracy() float64 {
	if e.AttemptsCount == 0 {
		return 0
	}
	return float64(e.CorrectCount) / float64(e.AttemptsCount)
}

// Mastered возвращает true, если theta достигла порога освоения.
func (e *Estimate) Mastered(threshold float64) bool {
	return e.Theta >= threshold
}

// Attempted возвращает true, если по KC было хотя бы одно свидетельство.
func (e *Estimate) Attempted() bool {
	return e.AttemptsCount > 0
}

// Dirty возвращает true, если есть несинхронизированные изменения.
func (e *Estimate) Dirty() bool {
	return e.dirty
}

// MarkDirty помечает оценку как несинхронизированную.
func (e *Estimate) MarkDirty() {
	e.dirty = true
}

// MarkSynced помечает оценку как синхронизированную.
func (e *Estimate) MarkSynced() {
	e.dirty = false
}

// Clone создаёт копию оценки.
func (e *Estimate) Clone() *Estimate {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}
