package session

import (
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SIGNAL EVENT / EVIDENCE
// Эфемерный вход сессии: как есть не сохраняется, а превращается
// в мутации оценки освоения и очереди повторений.
// ══════════════════════════════════════════════════════════════════════════════

// SignalKind - вид входящего учебного сигнала.
type SignalKind string

const (
	SignalAnswered      SignalKind = "answered"
	SignalCompleted     SignalKind = "completed"
	SignalHelpRequested SignalKind = "help_requested"
	SignalSkipped       SignalKind = "skipped"
)

// IsValid проверяет корректность вида сигнала.
func (k SignalKind) IsValid() bool {
	switch k {
	case SignalAnswered, SignalCompleted, SignalHelpRequested, SignalSkipped:
		return true
	}
	return false
}

// Gradable возвращает true для сигналов, которые несут результат и
// должны обновлять оценку освоения и очередь повторений.
func (k SignalKind) Gradable() bool {
	return k == SignalAnswered || k == SignalCompleted
}

// Пороги ослабленного успеха: формально верный ответ, добытый через
// чрезмерные подсказки или слишком долго, не должен раздувать интервал
// повторения.
const (
	// WeakPassMaxHints - больше подсказок означает ослабленный успех.
	WeakPassMaxHints = 2

	// WeakPassMaxLatencyMs - дольше означает ослабленный успех.
	WeakPassMaxLatencyMs = 120_000
)

// SignalEvent - один входящий учебный сигнал.
type SignalEvent struct {
	// ALOID - объект, к которому относится сигнал. Должен совпадать
	// с доставленным объектом сессии.
	ALOID string

	// Kind - вид сигнала.
	Kind SignalKind

	// Correct - результат для оцениваемых сигналов. nil для
	// help_requested/skipped.
	Correct *bool

	// LatencyMs - задержка ответа по данным клиента. nil, если неизвестна.
	LatencyMs *int

	// HintsUsed - количество использованных подсказок.
	HintsUsed int

	// Payload - свободная полезная нагрузка клиента. Движком не
	// интерпретируется.
	Payload map[string]any
}

// Validate проверяет сигнал до каких-либо мутаций.
func (e SignalEvent) Validate() error {
	if e.ALOID == "" {
		return shared.NewDomainError("session", "Signal", shared.ErrValidation, "alo_id is required")
	}
	if !e.Kind.IsValid() {
		return shared.NewDomainError("session", "Signal", shared.ErrValidation,
			"unknown signal event "+string(e.Kind))
	}
	if e.Kind.Gradable() && e.Correct == nil {
		return shared.NewDomainError("session", "Signal", shared.ErrValidation,
			string(e.Kind)+" signal requires correct flag")
	}
	if e.HintsUsed < 0 {
		return shared.NewDomainError("session", "Signal", shared.ErrValidation, "hints_used must be non-negative")
	}
	if e.LatencyMs != nil && *e.LatencyMs < 0 {
		return shared.NewDomainError("session", "Signal", shared.ErrValidation, "latency_ms must be non-negative")
	}
	return nil
}

// IsCorrect возвращает результат сигнала (false, если не оцениваемый).
func (e SignalEvent) IsCorrect() bool {
	return e.Correct != nil && *e.Correct
}

// Latency возвращает задержку в миллисекундах (0, если неизвестна).
func (e SignalEvent) Latency() int {
	if e.LatencyMs == nil {
		return 0
	}
	return *e.LatencyMs
}

// WeakPass возвращает true для формально верного, но ослабленного ответа:
// слишком много подсказок или слишком долго. Оценка освоения засчитывает
// такой ответ как верный, очередь повторений - как провал.
func (e SignalEvent) WeakPass() bool {
	if !e.IsCorrect() {
		return false
	}
	if e.HintsUsed > WeakPassMaxHints {
		return true
	}
	return e.LatencyMs != nil && *e.LatencyMs > WeakPassMaxLatencyMs
}

// ─────────────────────────────────────────────────────────────────────────────
// Evidence
// ─────────────────────────────────────────────────────────────────────────────

// Artifact - один артефакт, приложенный к свидетельству выполнения.
type Artifact struct {
	// Kind - вид артефакта (code, text, url, file).
	Kind string

	// URI - ссылка на внешний артефакт. Пусто для встроенных.
	URI string

	// Inline - встроенное содержимое артефакта.
	Inline string
}

// EvidenceCheck - одна проверка свидетельства с её результатом.
type EvidenceCheck struct {
	// Name - имя проверки из рубрики.
	Name string

	// Passed - результат проверки.
	Passed bool

	// Feedback - пояснение для пользователя.
	Feedback string
}

// EvidenceSubmission - заявка на оценку свидетельства выполнения.
// Допустима только для типов объектов, принимающих свидетельства
// (exercise, project).
type EvidenceSubmission struct {
	// ALOID - объект, к которому относится свидетельство.
	ALOID string

	// Artifacts - приложенные артефакты.
	Artifacts []Artifact

	// Checks - проверки с результатами.
	Checks []EvidenceCheck
}

// Validate проверяет заявку до каких-либо мутаций.
func (s EvidenceSubmission) Validate() error {
	if s.ALOID == "" {
		return shared.NewDomainError("session", "SubmitEvidence", shared.ErrValidation, "alo_id is required")
	}
	if len(s.Checks) == 0 {
		return shared.NewDomainError("session", "SubmitEvidence", shared.ErrValidation,
			"evidence must carry at least one check")
	}
	for _, c := range s.Checks {
		if c.Name == "" {
			return shared.NewDomainError("session", "SubmitEvidence", shared.ErrValidation, "check name is required")
		}
	}
	return nil
}

// Passed возвращает агрегированный результат: все проверки прошли.
func (s EvidenceSubmission) Passed() bool {
	for _, c := range s.Checks {
		if !c.Passed {
			return false
		}
	}
	return true
}

// FailedChecks возвращает имена непройденных проверок.
func (s EvidenceSubmission) FailedChecks() []string {
	var failed []string
	for _, c := range s.Checks {
		if !c.Passed {
			failed = append(failed, c.Name)
		}
	}
	return failed
}
