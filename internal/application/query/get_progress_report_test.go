package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ──────────────────────────────────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────────────────────────────────

type masteryMemStore struct {
	estimates map[string]map[string]*mastery.Estimate // userID -> kcID
}

func newMasteryMemStore() *masteryMemStore {
	return &masteryMemStore{estimates: make(map[string]map[string]*mastery.Estimate)}
}

func (s *masteryMemStore) Get(ctx context.Context, userID, kcID string) (*mastery.Estimate, error) {
	if est, ok := s.estimates[userID][kcID]; ok {
		return est.Clone(), nil
	}
	return nil, shared.ErrNotFound
}

func (s *masteryMemStore) LoadAll(ctx context.Context, userID string) (map[string]*mastery.Estimate, error) {
	out := make(map[string]*mastery.Estimate, len(s.estimates[userID]))
	for kcID, est := range s.estimates[userID] {
		out[kcID] = est.Clone()
	}
	return out, nil
}

func (s *masteryMemStore) Upsert(ctx context.Context, est *mastery.Estimate) error {
	if s.estimates[est.UserID] == nil {
		s.estimates[est.UserID] = make(map[string]*mastery.Estimate)
	}
	s.estimates[est.UserID][est.KCID] = est.Clone()
	return nil
}

type reviewMemStore struct {
	items map[string]map[string]*review.QueueItem // userID -> aloID
}

func newReviewMemStore() *reviewMemStore {
	return &reviewMemStore{items: make(map[string]map[string]*review.QueueItem)}
}

func (s *reviewMemStore) Get(ctx context.Context, userID, aloID string) (*review.QueueItem, error) {
	if item, ok := s.items[userID][aloID]; ok {
		return item.Clone(), nil
	}
	return nil, shared.ErrNotFound
}

func (s *reviewMemStore) LoadQueue(ctx context.Context, userID string) (map[string]*review.QueueItem, error) {
	out := make(map[string]*review.QueueItem, len(s.items[userID]))
	for aloID, item := range s.items[userID] {
		out[aloID] = item.Clone()
	}
	return out, nil
}

func (s *reviewMemStore) Upsert(ctx context.Context, item *review.QueueItem) error {
	if s.items[item.UserID] == nil {
		s.items[item.UserID] = make(map[string]*review.QueueItem)
	}
	s.items[item.UserID][item.ALOID] = item.Clone()
	return nil
}

type memArchive struct {
	summaries []*session.Summary
	attempts  []*session.Attempt
}

func (a *memArchive) SaveSummary(ctx context.Context, summary *session.Summary) error {
	a.summaries = append(a.summaries, summary)
	return nil
}

func (a *memArchive) AppendAttempt(ctx context.Context, attempt *session.Attempt) error {
	a.attempts = append(a.attempts, attempt)
	return nil
}

func (a *memArchive) RecentAttempts(ctx context.Context, userID string, limit int) ([]*session.Attempt, error) {
	return nil, nil
}

func (a *memArchive) SummariesForUser(ctx context.Context, userID string, limit int) ([]*session.Summary, error) {
	var out []*session.Summary
	for _, s := range a.summaries {
		if s.UserID == userID {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fixedGraphProvider struct {
	graph *skillgraph.SkillGraph
	err   error
}

func (p *fixedGraphProvider) Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error) {
	return p.graph, p.err
}

// gatedCourse has kc-b gated behind kc-a, one quiz per component plus a
// second object on kc-a for review seeding.
func gatedCourse() skillgraph.CourseDefinition {
	return skillgraph.CourseDefinition{
		CourseID: "course-go",
		Components: []skillgraph.KnowledgeComponent{
			{ID: "kc-a", Slug: "loops", Title: "Loops"},
			{ID: "kc-b", Slug: "funcs", Title: "Functions"},
		},
		Objectives: []skillgraph.LearningObjective{
			{ID: "lo-a", KCID: "kc-a", Verb: "apply", Difficulty: 1},
			{ID: "lo-b", KCID: "kc-b", Verb: "apply", Difficulty: 2},
		},
		Objects: []skillgraph.ALO{
			{ID: "alo-a1", LOID: "lo-a", Type: skillgraph.ALOTypeQuiz,
				Content:    skillgraph.QuizContent{Question: "?", Choices: []string{"x", "y"}, AnswerIndex: 0},
				EstTimeSec: 60, Difficulty: 1},
			{ID: "alo-a2", LOID: "lo-a", Type: skillgraph.ALOTypeQuiz,
				Content:    skillgraph.QuizContent{Question: "??", Choices: []string{"x", "y"}, AnswerIndex: 1},
				EstTimeSec: 60, Difficulty: 2},
			{ID: "alo-b1", LOID: "lo-b", Type: skillgraph.ALOTypeQuiz,
				Content:    skillgraph.QuizContent{Question: "???", Choices: []string{"x", "y"}, AnswerIndex: 0},
				EstTimeSec: 60, Difficulty: 1},
		},
		Prerequisites: []skillgraph.Prerequisite{
			{KCID: "kc-b", PrereqKCID: "kc-a"},
		},
	}
}

func buildGraph(t *testing.T, def skillgraph.CourseDefinition) *skillgraph.SkillGraph {
	t.Helper()
	g, err := skillgraph.Build(def)
	require.NoError(t, err)
	return g
}

// ──────────────────────────────────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────────────────────────────────

func TestGetProgressReport_Validation(t *testing.T) {
	h := NewGetProgressReportHandler(nil, nil, nil, nil, 0.6)

	_, err := h.Handle(context.Background(), GetProgressReportQuery{CourseID: "course-go"})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), GetProgressReportQuery{UserID: "u1"})
	assert.True(t, shared.IsValidation(err))
}

func TestGetProgressReport_FullReport(t *testing.T) {
	ctx := context.Background()
	graphs := &fixedGraphProvider{graph: buildGraph(t, gatedCourse())}
	estimator := mastery.NewEstimator(mastery.DefaultConfig(), newMasteryMemStore(), nil)
	scheduler := review.NewScheduler(newReviewMemStore(), nil)
	archive := &memArchive{}

	// Master kc-a with a streak of correct answers.
	for i := 0; i < 8; i++ {
		_, err := estimator.UpdateMastery(ctx, "u1", "kc-a", true, 1, 0)
		require.NoError(t, err)
	}
	require.GreaterOrEqual(t, estimator.CurrentTheta(ctx, "u1", "kc-a"), 0.6)

	// One review item of this course is overdue; one foreign item is not
	// part of the report.
	past := time.Now().UTC().Add(-48 * time.Hour)
	_, err := scheduler.RecordOutcome(ctx, "u1", "alo-a1", "kc-a", true, past)
	require.NoError(t, err)
	_, err = scheduler.RecordOutcome(ctx, "u1", "alo-foreign", "kc-zz", true, past)
	require.NoError(t, err)

	require.NoError(t, archive.SaveSummary(ctx, &session.Summary{
		SessionID: "s1", UserID: "u1", CourseID: "course-go", Reason: "user_requested"}))
	require.NoError(t, archive.SaveSummary(ctx, &session.Summary{
		SessionID: "s2", UserID: "u1", CourseID: "course-sql", Reason: "user_requested"}))

	h := NewGetProgressReportHandler(graphs, estimator, scheduler, archive, 0.6)
	report, err := h.Handle(ctx, GetProgressReportQuery{UserID: "u1", CourseID: "course-go"})
	require.NoError(t, err)

	assert.Equal(t, "u1", report.UserID)
	require.Len(t, report.Components, 2)

	// Components come in topological order: the prerequisite first.
	kcA, kcB := report.Components[0], report.Components[1]
	assert.Equal(t, "kc-a", kcA.KCID)
	assert.True(t, kcA.Mastered)
	assert.True(t, kcA.Unlocked)
	assert.Equal(t, 8, kcA.AttemptsCount)
	assert.Equal(t, 8, kcA.CorrectCount)

	assert.Equal(t, "kc-b", kcB.KCID)
	assert.False(t, kcB.Mastered)
	assert.True(t, kcB.Unlocked, "kc-a is mastered, so kc-b is unlocked")
	assert.InDelta(t, mastery.PriorTheta, kcB.Theta, 1e-9)
	assert.Zero(t, kcB.AttemptsCount)

	assert.Equal(t, 1, report.MasteredCount)
	assert.Equal(t, 1, report.DueReviewCount, "foreign course items are excluded")

	require.Len(t, report.RecentSummaries, 1)
	assert.Equal(t, "s1", report.RecentSummaries[0].SessionID)
}

func TestGetProgressReport_LockedComponent(t *testing.T) {
	ctx := context.Background()
	graphs := &fixedGraphProvider{graph: buildGraph(t, gatedCourse())}
	estimator := mastery.NewEstimator(mastery.DefaultConfig(), newMasteryMemStore(), nil)
	scheduler := review.NewScheduler(newReviewMemStore(), nil)

	h := NewGetProgressReportHandler(graphs, estimator, scheduler, nil, 0.6)
	report, err := h.Handle(ctx, GetProgressReportQuery{UserID: "u-new", CourseID: "course-go"})
	require.NoError(t, err)

	require.Len(t, report.Components, 2)
	assert.True(t, report.Components[0].Unlocked, "a root component is always unlocked")
	assert.False(t, report.Components[1].Unlocked)
	assert.Zero(t, report.MasteredCount)
	assert.Zero(t, report.DueReviewCount)
	assert.Empty(t, report.RecentSummaries)
}

func TestGetProgressReport_GraphLoadFailurePropagates(t *testing.T) {
	graphs := &fixedGraphProvider{err: shared.ErrCourseNotFound}
	h := NewGetProgressReportHandler(graphs, nil, nil, nil, 0.6)

	_, err := h.Handle(context.Background(), GetProgressReportQuery{UserID: "u1", CourseID: "ghost"})
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestGetProgressReportQuery_Defaults(t *testing.T) {
	q := GetProgressReportQuery{UserID: "u1", CourseID: "c1"}
	require.NoError(t, q.Validate())
	assert.Equal(t, 5, q.RecentSessions)

	q = GetProgressReportQuery{UserID: "u1", CourseID: "c1", RecentSessions: 500}
	require.NoError(t, q.Validate())
	assert.Equal(t, 50, q.RecentSessions)
}
