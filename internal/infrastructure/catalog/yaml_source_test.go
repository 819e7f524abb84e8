package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

const courseYAML = `course_id: course-go
title: Go Basics
knowledge_components:
  - id: kc-loops
    slug: loops
    title: Loops
    tags: [basics]
  - id: kc-funcs
    slug: functions
    title: Functions
learning_objectives:
  - id: lo-loops
    kc_id: kc-loops
    verb: apply
    difficulty: 2
    rubric:
      criteria: [uses a for loop]
      pass_threshold: 0.8
  - id: lo-funcs
    kc_id: kc-funcs
    verb: apply
    difficulty: 3
learning_objects:
  - id: alo-loops-1
    lo_id: lo-loops
    type: explain
    content:
      markdown: "# For loops"
    est_time_sec: 120
    difficulty: 1
  - id: alo-loops-2
    lo_id: lo-loops
    type: quiz
    content:
      question: "What does range do?"
      choices: [iterates, panics]
      answer_index: 0
    est_time_sec: 60
    difficulty: 2
  - id: alo-funcs-1
    lo_id: lo-funcs
    type: exercise
    content:
      prompt: "Write a function"
    est_time_sec: 300
    difficulty: 2
prerequisites:
  - kc_id: kc-funcs
    prereq_kc_id: kc-loops
`

func writeCourse(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestLoadCourse(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "course-go.yaml", courseYAML)

	src := NewYAMLSource(dir)
	def, err := src.LoadCourse(context.Background(), "course-go")
	require.NoError(t, err)

	assert.Equal(t, "course-go", def.CourseID)
	require.Len(t, def.Components, 2)
	assert.Equal(t, skillgraph.Slug("loops"), def.Components[0].Slug)
	assert.Equal(t, []string{"basics"}, def.Components[0].Tags)

	require.Len(t, def.Objectives, 2)
	assert.Equal(t, skillgraph.Difficulty(2), def.Objectives[0].Difficulty)
	assert.Equal(t, []string{"uses a for loop"}, def.Objectives[0].Rubric.Criteria)
	assert.InDelta(t, 0.8, def.Objectives[0].Rubric.PassThreshold, 1e-9)

	require.Len(t, def.Objects, 3)
	quiz, ok := def.Objects[1].Content.(skillgraph.QuizContent)
	require.True(t, ok)
	assert.Equal(t, "What does range do?", quiz.Question)
	assert.Equal(t, 0, quiz.AnswerIndex)

	require.Len(t, def.Prerequisites, 1)
	assert.Equal(t, "kc-funcs", def.Prerequisites[0].KCID)
	assert.Equal(t, "kc-loops", def.Prerequisites[0].PrereqKCID)

	// The loaded definition compiles into a graph.
	g, err := skillgraph.Build(*def)
	require.NoError(t, err)
	assert.Equal(t, 2, g.ComponentCount())
	assert.Equal(t, 3, g.ObjectCount())
}

func TestLoadCourse_NotFound(t *testing.T) {
	src := NewYAMLSource(t.TempDir())

	_, err := src.LoadCourse(context.Background(), "course-ghost")
	assert.ErrorIs(t, err, shared.ErrCourseNotFound)
}

func TestLoadCourse_CourseIDMismatch(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "course-a.yaml", "course_id: course-b\n")

	src := NewYAMLSource(dir)
	_, err := src.LoadCourse(context.Background(), "course-a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "course-b")
}

func TestLoadCourse_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "broken.yaml", "course_id: [unclosed\n")

	src := NewYAMLSource(dir)
	_, err := src.LoadCourse(context.Background(), "broken")
	assert.Error(t, err)
}

func TestLoadCourse_UnknownObjectType(t *testing.T) {
	dir := t.TempDir()
	writeCourse(t, dir, "course-x.yaml", `course_id: course-x
learning_objects:
  - id: alo-1
    lo_id: lo-1
    type: video
    content:
      url: http://example.com
`)

	src := NewYAMLSource(dir)
	_, err := src.LoadCourse(context.Background(), "course-x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alo-1")
}

func TestLoadCourse_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := NewYAMLSource(t.TempDir())
	_, err := src.LoadCourse(ctx, "course-go")
	assert.ErrorIs(t, err, context.Canceled)
}
