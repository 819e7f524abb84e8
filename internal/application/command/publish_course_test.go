package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

type fakeReloader struct {
	graph       *skillgraph.SkillGraph
	err         error
	invalidated []string
	loaded      []string
}

func (f *fakeReloader) Invalidate(ctx context.Context, courseID string) {
	f.invalidated = append(f.invalidated, courseID)
}

func (f *fakeReloader) Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error) {
	f.loaded = append(f.loaded, courseID)
	return f.graph, f.err
}

func smallCourseGraph(t *testing.T) *skillgraph.SkillGraph {
	t.Helper()
	g, err := skillgraph.Build(skillgraph.CourseDefinition{
		CourseID: "course-go",
		Components: []skillgraph.KnowledgeComponent{
			{ID: "kc-a", Slug: "loops", Title: "Loops"},
		},
		Objectives: []skillgraph.LearningObjective{
			{ID: "lo-a", KCID: "kc-a", Verb: "apply", Difficulty: 1},
		},
		Objects: []skillgraph.ALO{
			{ID: "alo-a1", LOID: "lo-a", Type: skillgraph.ALOTypeQuiz,
				Content:    skillgraph.QuizContent{Question: "?", Choices: []string{"x", "y"}, AnswerIndex: 0},
				EstTimeSec: 60, Difficulty: 1},
		},
	})
	require.NoError(t, err)
	return g
}

func TestPublishCourse(t *testing.T) {
	loader := &fakeReloader{graph: smallCourseGraph(t)}
	h := NewPublishCourseHandler(loader)

	result, err := h.Handle(context.Background(), PublishCourseCommand{CourseID: "course-go"})
	require.NoError(t, err)

	assert.Equal(t, "course-go", result.CourseID)
	assert.Equal(t, 1, result.Components)
	assert.Equal(t, 1, result.Objects)
	assert.False(t, result.PublishedAt.IsZero())

	// The cache is dropped before the recompile.
	assert.Equal(t, []string{"course-go"}, loader.invalidated)
	assert.Equal(t, []string{"course-go"}, loader.loaded)
}

func TestPublishCourse_Validation(t *testing.T) {
	h := NewPublishCourseHandler(&fakeReloader{})

	_, err := h.Handle(context.Background(), PublishCourseCommand{})
	assert.True(t, shared.IsValidation(err))
}

func TestPublishCourse_BrokenDefinition(t *testing.T) {
	loader := &fakeReloader{err: shared.ErrGraphCycle}
	h := NewPublishCourseHandler(loader)

	_, err := h.Handle(context.Background(), PublishCourseCommand{CourseID: "course-go"})
	assert.ErrorIs(t, err, shared.ErrGraphCycle)

	// Invalidation already happened: the next session retries the load.
	assert.Equal(t, []string{"course-go"}, loader.invalidated)
}
