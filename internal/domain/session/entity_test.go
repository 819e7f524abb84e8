package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

func newTestSession(t *testing.T) *LearningSession {
	t.Helper()
	s, err := NewLearningSession("u1", "course-go")
	require.NoError(t, err)
	return s
}

func TestNewLearningSession(t *testing.T) {
	s := newTestSession(t)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, StateIdle, s.State)
	assert.True(t, s.Active())
	assert.Zero(t, s.SeenCount())

	_, err := NewLearningSession("", "course-go")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)

	_, err = NewLearningSession("u1", "")
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestStateMachine_HappyPath(t *testing.T) {
	s := newTestSession(t)

	require.NoError(t, s.BeginDelivery())
	assert.Equal(t, StateDelivering, s.State)

	require.NoError(t, s.MarkDelivered("alo1"))
	assert.Equal(t, StateAwaitingSignal, s.State)
	assert.Equal(t, "alo1", s.CurrentALOID)
	assert.True(t, s.Seen("alo1"))

	require.NoError(t, s.BeginGrading())
	assert.Equal(t, StateGrading, s.State)

	require.NoError(t, s.ContinueDelivery())
	assert.Equal(t, StateDelivering, s.State)
	assert.Empty(t, s.CurrentALOID)
}

func TestStateMachine_IllegalTransitions(t *testing.T) {
	s := newTestSession(t)

	// Cannot grade before anything was delivered.
	assert.ErrorIs(t, s.BeginGrading(), shared.ErrStateTransition)

	// Cannot deliver twice without a signal in between.
	require.NoError(t, s.BeginDelivery())
	require.NoError(t, s.MarkDelivered("alo1"))
	assert.ErrorIs(t, s.MarkDelivered("alo2"), shared.ErrStateTransition)

	// Starting an already started session is rejected.
	assert.ErrorIs(t, s.BeginDelivery(), shared.ErrStateTransition)
}

func TestMarkDelivered_RequiresALOID(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.BeginDelivery())

	assert.ErrorIs(t, s.MarkDelivered(""), shared.ErrInvalidInput)
	assert.Equal(t, StateDelivering, s.State)
}

func TestEnd_ComputesSummary(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.BeginDelivery())
	require.NoError(t, s.MarkDelivered("alo1"))
	require.NoError(t, s.BeginGrading())
	s.RecordAttempt(true)
	require.NoError(t, s.ContinueDelivery())
	require.NoError(t, s.MarkDelivered("alo2"))
	require.NoError(t, s.BeginGrading())
	s.RecordAttempt(false)

	require.NoError(t, s.BeginEnding())
	assert.Equal(t, StateEnding, s.State)

	end := s.StartedAt.Add(90 * time.Second)
	sum, err := s.CompleteEnd(EndReasonUserRequested, end)
	require.NoError(t, err)
	require.NotNil(t, sum)

	assert.Equal(t, s.ID, sum.SessionID)
	assert.Equal(t, EndReasonUserRequested, sum.Reason)
	assert.Equal(t, 90, sum.DurationSec)
	assert.Equal(t, 2, sum.ItemsSeen)
	assert.Equal(t, 2, sum.AttemptsCount)
	assert.Equal(t, 1, sum.CorrectCount)
	assert.InDelta(t, 0.5, sum.Accuracy, 1e-9)
	assert.False(t, sum.Unsynced)

	assert.Equal(t, StateEnded, s.State)
	assert.False(t, s.Active())
}

func TestEnd_IsIdempotent(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.BeginEnding())

	now := time.Now().UTC()
	first, err := s.CompleteEnd(EndReasonIdleTimeout, now)
	require.NoError(t, err)

	// A second end returns the same summary and does not recompute it.
	second, err := s.CompleteEnd(EndReasonUserRequested, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, EndReasonIdleTimeout, second.Reason)

	// No transition leaves the terminal state.
	assert.ErrorIs(t, s.BeginDelivery(), shared.ErrSessionEnded)
	assert.ErrorIs(t, s.BeginEnding(), shared.ErrSessionEnded)
}

func TestEnd_FromAnyActiveState(t *testing.T) {
	s := newTestSession(t)
	require.NoError(t, s.BeginDelivery())
	require.NoError(t, s.MarkDelivered("alo1"))

	// Ending from awaiting_signal drops the delivered object.
	require.NoError(t, s.BeginEnding())
	assert.Empty(t, s.CurrentALOID)

	_, err := s.CompleteEnd(EndReasonShutdown, time.Now().UTC())
	require.NoError(t, err)
}

func TestCompleteEnd_RequiresEndingState(t *testing.T) {
	s := newTestSession(t)

	_, err := s.CompleteEnd(EndReasonUserRequested, time.Now().UTC())
	assert.ErrorIs(t, err, shared.ErrStateTransition)
}

func TestUnsyncedFlag(t *testing.T) {
	s := newTestSession(t)
	assert.False(t, s.Unsynced())

	s.MarkUnsynced()
	assert.True(t, s.Unsynced())

	require.NoError(t, s.BeginEnding())
	sum, err := s.CompleteEnd(EndReasonUserRequested, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, sum.Unsynced)
}

func TestIdleFor(t *testing.T) {
	s := newTestSession(t)
	now := time.Now().UTC()

	s.Touch(now)
	assert.Equal(t, 10*time.Minute, s.IdleFor(now.Add(10*time.Minute)))

	s.Touch(now.Add(25 * time.Minute))
	assert.Equal(t, 5*time.Minute, s.IdleFor(now.Add(30*time.Minute)))
}

func TestAccuracy_NoAttempts(t *testing.T) {
	s := newTestSession(t)
	assert.Zero(t, s.Accuracy())

	s.RecordAttempt(true)
	s.RecordAttempt(true)
	s.RecordAttempt(false)
	assert.InDelta(t, 2.0/3.0, s.Accuracy(), 1e-9)
}

func TestSignalEvent_Validate(t *testing.T) {
	correct := true
	negative := -1

	tests := []struct {
		name    string
		event   SignalEvent
		wantErr bool
	}{
		{"answered with result", SignalEvent{ALOID: "a", Kind: SignalAnswered, Correct: &correct}, false},
		{"completed with result", SignalEvent{ALOID: "a", Kind: SignalCompleted, Correct: &correct}, false},
		{"help request without result", SignalEvent{ALOID: "a", Kind: SignalHelpRequested}, false},
		{"skip without result", SignalEvent{ALOID: "a", Kind: SignalSkipped}, false},
		{"missing alo", SignalEvent{Kind: SignalAnswered, Correct: &correct}, true},
		{"unknown event", SignalEvent{ALOID: "a", Kind: "paused"}, true},
		{"answered without result", SignalEvent{ALOID: "a", Kind: SignalAnswered}, true},
		{"negative hints", SignalEvent{ALOID: "a", Kind: SignalSkipped, HintsUsed: -1}, true},
		{"negative latency", SignalEvent{ALOID: "a", Kind: SignalAnswered, Correct: &correct, LatencyMs: &negative}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.event.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestSignalEvent_WeakPass(t *testing.T) {
	correct := true
	incorrect := false
	slow := WeakPassMaxLatencyMs + 1
	fast := 2_000

	assert.False(t, SignalEvent{Kind: SignalAnswered, Correct: &correct, LatencyMs: &fast}.WeakPass())
	assert.True(t, SignalEvent{Kind: SignalAnswered, Correct: &correct, HintsUsed: WeakPassMaxHints + 1}.WeakPass())
	assert.True(t, SignalEvent{Kind: SignalAnswered, Correct: &correct, LatencyMs: &slow}.WeakPass())

	// An incorrect answer is a plain failure, not a weak pass.
	assert.False(t, SignalEvent{Kind: SignalAnswered, Correct: &incorrect, HintsUsed: 10}.WeakPass())

	// At the boundary the answer still counts as a full pass.
	boundary := WeakPassMaxLatencyMs
	assert.False(t, SignalEvent{Kind: SignalAnswered, Correct: &correct, HintsUsed: WeakPassMaxHints, LatencyMs: &boundary}.WeakPass())
}

func TestEvidenceSubmission_Validate(t *testing.T) {
	sub := EvidenceSubmission{
		ALOID: "alo1",
		Checks: []EvidenceCheck{
			{Name: "compiles", Passed: true},
			{Name: "tests pass", Passed: false, Feedback: "2 of 5 failed"},
		},
	}
	assert.NoError(t, sub.Validate())
	assert.False(t, sub.Passed())
	assert.Equal(t, []string{"tests pass"}, sub.FailedChecks())

	sub.Checks[1].Passed = true
	assert.True(t, sub.Passed())
	assert.Empty(t, sub.FailedChecks())

	assert.ErrorIs(t, EvidenceSubmission{Checks: sub.Checks}.Validate(), shared.ErrValidation)
	assert.ErrorIs(t, EvidenceSubmission{ALOID: "alo1"}.Validate(), shared.ErrValidation)
	assert.ErrorIs(t, EvidenceSubmission{ALOID: "alo1", Checks: []EvidenceCheck{{Passed: true}}}.Validate(), shared.ErrValidation)
}
