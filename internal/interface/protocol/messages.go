// Package protocol реализует JSON-протокол движка поверх двунаправленного
// транспорта. Конверт с дискриминатором type; исходящие сообщения:
// alo, next, end, error; входящие: signal, submit_evidence.
package protocol

import (
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// Типы сообщений протокола.
const (
	// Исходящие.
	TypeALO   = "alo"
	TypeNext  = "next"
	TypeEnd   = "end"
	TypeError = "error"

	// Входящие.
	TypeSignal         = "signal"
	TypeSubmitEvidence = "submit_evidence"
)

// ─────────────────────────────────────────────────────────────────────────────
// Outbound
// ─────────────────────────────────────────────────────────────────────────────

// ALOMessage доставляет учебный объект в начале сессии.
type ALOMessage struct {
	Type string          `json:"type"`
	ALO  *skillgraph.ALO `json:"alo"`
}

// NextMessage доставляет следующий объект после оценки. ALO равен null,
// когда курс завершён; Reason объясняет отсутствие объекта.
type NextMessage struct {
	Type   string          `json:"type"`
	ALO    *skillgraph.ALO `json:"alo"`
	Reason *string         `json:"reason"`
}

// EndMessage несёт сводку завершённой сессии.
type EndMessage struct {
	Type    string           `json:"type"`
	Summary *session.Summary `json:"summary"`
}

// ErrorMessage сообщает об ошибке, не меняя состояния сессии.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// EvidenceResultMessage - ответ на submit_evidence: агрегированный
// результат, обратная связь по непройденным проверкам и новая theta.
type EvidenceResultMessage struct {
	Type         string   `json:"type"`
	ALOID        string   `json:"alo_id"`
	Passed       bool     `json:"passed"`
	FailedChecks []string `json:"failed_checks,omitempty"`
	Theta        float64  `json:"theta"`
}

// TypeEvidenceResult - тип ответа на submit_evidence.
const TypeEvidenceResult = "evidence_result"

// ─────────────────────────────────────────────────────────────────────────────
// Inbound
// ─────────────────────────────────────────────────────────────────────────────

// SignalMessage - входящий учебный сигнал.
type SignalMessage struct {
	Type      string         `json:"type"`
	ALOID     string         `json:"alo_id"`
	Event     string         `json:"event"`
	Correct   *bool          `json:"correct"`
	LatencyMs *int           `json:"latency_ms"`
	HintsUsed int            `json:"hints_used"`
	Payload   map[string]any `json:"payload"`
}

// Domain переводит сообщение в доменный SignalEvent.
func (m SignalMessage) Domain() session.SignalEvent {
	return session.SignalEvent{
		ALOID:     m.ALOID,
		Kind:      session.SignalKind(m.Event),
		Correct:   m.Correct,
		LatencyMs: m.LatencyMs,
		HintsUsed: m.HintsUsed,
		Payload:   m.Payload,
	}
}

// ArtifactPayload - артефакт свидетельства на проводе.
type ArtifactPayload struct {
	Kind   string `json:"kind"`
	URI    string `json:"uri,omitempty"`
	Inline string `json:"inline,omitempty"`
}

// CheckPayload - проверка свидетельства на проводе.
type CheckPayload struct {
	Name     string `json:"name"`
	Passed   bool   `json:"passed"`
	Feedback string `json:"feedback,omitempty"`
}

// SubmitEvidenceMessage - входящая заявка на оценку свидетельства.
type SubmitEvidenceMessage struct {
	Type      string            `json:"type"`
	ALOID     string            `json:"alo_id"`
	Artifacts []ArtifactPayload `json:"artifacts"`
	Checks    []CheckPayload    `json:"checks"`
}

// Domain переводит сообщение в доменную EvidenceSubmission.
func (m SubmitEvidenceMessage) Domain() session.EvidenceSubmission {
	sub := session.EvidenceSubmission{ALOID: m.ALOID}
	for _, a := range m.Artifacts {
		sub.Artifacts = append(sub.Artifacts, session.Artifact{Kind: a.Kind, URI: a.URI, Inline: a.Inline})
	}
	for _, c := range m.Checks {
		sub.Checks = append(sub.Checks, session.EvidenceCheck{Name: c.Name, Passed: c.Passed, Feedback: c.Feedback})
	}
	return sub
}
