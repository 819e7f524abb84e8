package protocol

import (
	"encoding/json"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ─────────────────────────────────────────────────────────────────────────────
// Encode
// ─────────────────────────────────────────────────────────────────────────────

// EncodeALO сериализует сообщение доставки объекта.
func EncodeALO(alo *skillgraph.ALO) ([]byte, error) {
	return json.Marshal(ALOMessage{Type: TypeALO, ALO: alo})
}

// EncodeNext сериализует сообщение следующего объекта. alo может быть nil,
// тогда reason объясняет отсутствие (course_complete).
func EncodeNext(alo *skillgraph.ALO, reason string) ([]byte, error) {
	msg := NextMessage{Type: TypeNext, ALO: alo}
	if reason != "" {
		msg.Reason = &reason
	}
	return json.Marshal(msg)
}

// EncodeEnd сериализует сводку завершённой сессии.
func EncodeEnd(summary *session.Summary) ([]byte, error) {
	return json.Marshal(EndMessage{Type: TypeEnd, Summary: summary})
}

// EncodeError сериализует сообщение об ошибке.
func EncodeError(message string) ([]byte, error) {
	return json.Marshal(ErrorMessage{Type: TypeError, Message: message})
}

// EncodeEvidenceResult сериализует ответ на submit_evidence.
func EncodeEvidenceResult(aloID string, passed bool, failedChecks []string, theta float64) ([]byte, error) {
	return json.Marshal(EvidenceResultMessage{
		Type:         TypeEvidenceResult,
		ALOID:        aloID,
		Passed:       passed,
		FailedChecks: failedChecks,
		Theta:        theta,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Decode
// ─────────────────────────────────────────────────────────────────────────────

// Inbound - декодированное входящее сообщение: SignalMessage
// или SubmitEvidenceMessage.
type Inbound interface {
	inbound()
}

func (SignalMessage) inbound()         {}
func (SubmitEvidenceMessage) inbound() {}

// envelope - минимальный конверт для чтения дискриминатора.
type envelope struct {
	Type string `json:"type"`
}

// Decode разбирает входящее сообщение по дискриминатору type.
// Неизвестный тип или битый JSON дают shared.ErrProtocol; состояние
// сессии такие ошибки не меняют.
func Decode(raw []byte) (Inbound, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, shared.WrapError("protocol", "Decode", shared.ErrProtocol, "malformed message", err)
	}

	switch env.Type {
	case TypeSignal:
		var msg SignalMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, shared.WrapError("protocol", "Decode", shared.ErrProtocol, "malformed signal message", err)
		}
		return msg, nil

	case TypeSubmitEvidence:
		var msg SubmitEvidenceMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, shared.WrapError("protocol", "Decode", shared.ErrProtocol, "malformed submit_evidence message", err)
		}
		return msg, nil

	case "":
		return nil, shared.NewDomainError("protocol", "Decode", shared.ErrProtocol, "message type is required")

	default:
		return nil, shared.NewDomainError("protocol", "Decode", shared.ErrUnknownMessage,
			"unknown message type "+env.Type)
	}
}
