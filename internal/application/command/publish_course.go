// Package command содержит операции записи (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// PUBLISH COURSE COMMAND
// Публикация новой версии курса: сбрасывает закэшированный граф и
// компилирует определение заново. Живые сессии продолжают работать на
// старом графе до завершения.
// ══════════════════════════════════════════════════════════════════════════════

// GraphReloader - срез загрузчика графов, нужный команде.
type GraphReloader interface {
	Invalidate(ctx context.Context, courseID string)
	Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error)
}

// PublishCourseCommand содержит параметры команды.
type PublishCourseCommand struct {
	// CourseID - курс, который был изменён в каталоге.
	CourseID string
}

// Validate проверяет корректность параметров.
func (c *PublishCourseCommand) Validate() error {
	if c.CourseID == "" {
		return errors.New("course_id must be provided")
	}
	return nil
}

// PublishCourseResult содержит результат команды.
type PublishCourseResult struct {
	CourseID string `json:"course_id"`

	// Components и Objects - размеры перекомпилированного графа.
	Components int `json:"components"`
	Objects    int `json:"objects"`

	PublishedAt time.Time `json:"published_at"`
}

// PublishCourseHandler обрабатывает команды публикации курса.
type PublishCourseHandler struct {
	loader GraphReloader
}

// NewPublishCourseHandler создаёт новый обработчик.
func NewPublishCourseHandler(loader GraphReloader) *PublishCourseHandler {
	return &PublishCourseHandler{loader: loader}
}

// Handle выполняет команду. Если новое определение не компилируется,
// кэш остаётся пустым и ошибка возвращается вызывающему: следующая
// сессия повторит загрузку.
func (h *PublishCourseHandler) Handle(ctx context.Context, cmd PublishCourseCommand) (*PublishCourseResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("command", "PublishCourse", shared.ErrValidation, err.Error(), err)
	}

	h.loader.Invalidate(ctx, cmd.CourseID)

	g, err := h.loader.Load(ctx, cmd.CourseID)
	if err != nil {
		return nil, err
	}

	return &PublishCourseResult{
		CourseID:    cmd.CourseID,
		Components:  g.ComponentCount(),
		Objects:     g.ObjectCount(),
		PublishedAt: time.Now().UTC(),
	}, nil
}
