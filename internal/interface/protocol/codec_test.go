package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

func TestDecode_Signal(t *testing.T) {
	raw := []byte(`{
		"type": "signal",
		"alo_id": "alo-1",
		"event": "answered",
		"correct": true,
		"latency_ms": 4200,
		"hints_used": 1,
		"payload": {"client": "web"}
	}`)

	in, err := Decode(raw)
	require.NoError(t, err)

	msg, ok := in.(SignalMessage)
	require.True(t, ok)
	assert.Equal(t, "alo-1", msg.ALOID)
	assert.Equal(t, "answered", msg.Event)
	require.NotNil(t, msg.Correct)
	assert.True(t, *msg.Correct)
	require.NotNil(t, msg.LatencyMs)
	assert.Equal(t, 4200, *msg.LatencyMs)

	evt := msg.Domain()
	assert.Equal(t, session.SignalAnswered, evt.Kind)
	assert.NoError(t, evt.Validate())
	assert.True(t, evt.IsCorrect())
	assert.Equal(t, 4200, evt.Latency())
}

func TestDecode_SignalWithoutOptionalFields(t *testing.T) {
	in, err := Decode([]byte(`{"type":"signal","alo_id":"alo-1","event":"skipped"}`))
	require.NoError(t, err)

	msg := in.(SignalMessage)
	assert.Nil(t, msg.Correct)
	assert.Nil(t, msg.LatencyMs)
	assert.Zero(t, msg.Domain().Latency())
}

func TestDecode_SubmitEvidence(t *testing.T) {
	raw := []byte(`{
		"type": "submit_evidence",
		"alo_id": "alo-proj",
		"artifacts": [{"kind": "url", "uri": "https://git.example/repo"}],
		"checks": [
			{"name": "builds", "passed": true},
			{"name": "lint", "passed": false, "feedback": "3 warnings"}
		]
	}`)

	in, err := Decode(raw)
	require.NoError(t, err)

	msg, ok := in.(SubmitEvidenceMessage)
	require.True(t, ok)

	sub := msg.Domain()
	assert.NoError(t, sub.Validate())
	assert.Equal(t, "alo-proj", sub.ALOID)
	assert.False(t, sub.Passed())
	assert.Equal(t, []string{"lint"}, sub.FailedChecks())
	require.Len(t, sub.Artifacts, 1)
	assert.Equal(t, "https://git.example/repo", sub.Artifacts[0].URI)
}

func TestDecode_Errors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := Decode([]byte(`{"type": "signal"`))
		assert.ErrorIs(t, err, shared.ErrProtocol)
	})

	t.Run("missing type", func(t *testing.T) {
		_, err := Decode([]byte(`{"alo_id": "alo-1"}`))
		assert.ErrorIs(t, err, shared.ErrProtocol)
	})

	t.Run("unknown type", func(t *testing.T) {
		_, err := Decode([]byte(`{"type": "telemetry"}`))
		assert.ErrorIs(t, err, shared.ErrUnknownMessage)
	})

	t.Run("outbound type is not accepted inbound", func(t *testing.T) {
		_, err := Decode([]byte(`{"type": "alo"}`))
		assert.ErrorIs(t, err, shared.ErrUnknownMessage)
	})
}

func TestEncodeALO(t *testing.T) {
	alo := &skillgraph.ALO{
		ID:         "alo-1",
		LOID:       "lo-1",
		Type:       skillgraph.ALOTypeExplain,
		Content:    skillgraph.ExplainContent{Markdown: "# Loops"},
		EstTimeSec: 120,
		Difficulty: 2,
	}

	data, err := EncodeALO(alo)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeALO, out["type"])
	require.IsType(t, map[string]any{}, out["alo"])
	assert.Equal(t, "alo-1", out["alo"].(map[string]any)["id"])
}

func TestEncodeNext_CourseComplete(t *testing.T) {
	data, err := EncodeNext(nil, "course_complete")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeNext, out["type"])
	assert.Nil(t, out["alo"])
	assert.Equal(t, "course_complete", out["reason"])
}

func TestEncodeNext_WithObject(t *testing.T) {
	alo := &skillgraph.ALO{
		ID: "alo-2", LOID: "lo-1", Type: skillgraph.ALOTypeQuiz,
		Content:    skillgraph.QuizContent{Question: "?", Choices: []string{"a", "b"}, AnswerIndex: 1},
		EstTimeSec: 60, Difficulty: 3,
	}

	data, err := EncodeNext(alo, "")
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(data, &out))
	assert.NotNil(t, out["alo"])
	assert.Nil(t, out["reason"])
}

func TestEncodeEnd(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sum := &session.Summary{
		SessionID:     "s1",
		UserID:        "u1",
		CourseID:      "course-go",
		Reason:        session.EndReasonUserRequested,
		StartedAt:     now,
		EndedAt:       now.Add(5 * time.Minute),
		DurationSec:   300,
		ItemsSeen:     4,
		AttemptsCount: 4,
		CorrectCount:  3,
		Accuracy:      0.75,
	}

	data, err := EncodeEnd(sum)
	require.NoError(t, err)

	var out EndMessage
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeEnd, out.Type)
	require.NotNil(t, out.Summary)
	assert.Equal(t, "s1", out.Summary.SessionID)
	assert.Equal(t, session.EndReasonUserRequested, out.Summary.Reason)
	assert.Equal(t, 300, out.Summary.DurationSec)
	assert.Equal(t, 4, out.Summary.ItemsSeen)
	assert.Equal(t, 4, out.Summary.AttemptsCount)
	assert.Equal(t, 3, out.Summary.CorrectCount)
	assert.InDelta(t, 0.75, out.Summary.Accuracy, 1e-9)
	assert.False(t, out.Summary.Unsynced)
}

func TestEncodeError(t *testing.T) {
	data, err := EncodeError("signal does not match the delivered object")
	require.NoError(t, err)

	var out ErrorMessage
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeError, out.Type)
	assert.Equal(t, "signal does not match the delivered object", out.Message)
}

func TestEncodeEvidenceResult(t *testing.T) {
	data, err := EncodeEvidenceResult("alo-proj", false, []string{"lint"}, 0.42)
	require.NoError(t, err)

	var out EvidenceResultMessage
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, TypeEvidenceResult, out.Type)
	assert.Equal(t, "alo-proj", out.ALOID)
	assert.False(t, out.Passed)
	assert.Equal(t, []string{"lint"}, out.FailedChecks)
	assert.InDelta(t, 0.42, out.Theta, 1e-9)
}
