package query

import (
	"context"
	"errors"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROGRESS REPORT QUERY
// Отчёт о прогрессе пользователя в курсе: theta по каждому KC в
// топологическом порядке, число просроченных повторений и последние
// сводки сессий.
// ══════════════════════════════════════════════════════════════════════════════

// GraphProvider - срез загрузчика графов, нужный запросу.
type GraphProvider interface {
	Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error)
}

// GetProgressReportQuery содержит параметры запроса.
type GetProgressReportQuery struct {
	// UserID - пользователь.
	UserID string

	// CourseID - курс.
	CourseID string

	// RecentSessions - сколько последних сводок включить (по умолчанию 5).
	RecentSessions int
}

// Validate проверяет корректность параметров.
func (q *GetProgressReportQuery) Validate() error {
	if q.UserID == "" {
		return errors.New("user_id must be provided")
	}
	if q.CourseID == "" {
		return errors.New("course_id must be provided")
	}
	if q.RecentSessions <= 0 {
		q.RecentSessions = 5
	}
	if q.RecentSessions > 50 {
		q.RecentSessions = 50
	}
	return nil
}

// KCProgressDTO - прогресс по одному KC.
type KCProgressDTO struct {
	KCID  string `json:"kc_id"`
	Slug  string `json:"slug"`
	Title string `json:"title"`

	// Theta - текущая оценка освоения (prior, если попыток не было).
	Theta float64 `json:"theta"`

	AttemptsCount int `json:"attempts_count"`
	CorrectCount  int `json:"correct_count"`

	// Mastered - theta не ниже порога гейтинга.
	Mastered bool `json:"mastered"`

	// Unlocked - все предпосылки KC освоены.
	Unlocked bool `json:"unlocked"`
}

// GetProgressReportResult содержит результат запроса.
type GetProgressReportResult struct {
	UserID   string `json:"user_id"`
	CourseID string `json:"course_id"`

	// Components - прогресс по KC в топологическом порядке курса.
	Components []KCProgressDTO `json:"components"`

	// MasteredCount - сколько KC освоено.
	MasteredCount int `json:"mastered_count"`

	// DueReviewCount - сколько повторений просрочено сейчас.
	DueReviewCount int `json:"due_review_count"`

	// RecentSummaries - последние сводки сессий, новые первыми.
	RecentSummaries []*session.Summary `json:"recent_summaries,omitempty"`

	// GeneratedAt - время генерации.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetProgressReportHandler обрабатывает запросы отчёта о прогрессе.
type GetProgressReportHandler struct {
	graphs    GraphProvider
	estimator *mastery.Estimator
	scheduler *review.Scheduler
	archive   session.Archive // может быть nil

	threshold float64
}

// NewGetProgressReportHandler создаёт новый обработчик.
func NewGetProgressReportHandler(
	graphs GraphProvider,
	estimator *mastery.Estimator,
	scheduler *review.Scheduler,
	archive session.Archive,
	masteryThreshold float64,
) *GetProgressReportHandler {
	return &GetProgressReportHandler{
		graphs:    graphs,
		estimator: estimator,
		scheduler: scheduler,
		archive:   archive,
		threshold: masteryThreshold,
	}
}

// Handle выполняет запрос.
func (h *GetProgressReportHandler) Handle(ctx context.Context, query GetProgressReportQuery) (*GetProgressReportResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetProgressReport", shared.ErrValidation, err.Error(), err)
	}

	g, err := h.graphs.Load(ctx, query.CourseID)
	if err != nil {
		return nil, err
	}

	estimates := h.estimator.Estimates(ctx, query.UserID)
	thetas := h.estimator.Snapshot(ctx, query.UserID)

	result := &GetProgressReportResult{
		UserID:      query.UserID,
		CourseID:    query.CourseID,
		Components:  make([]KCProgressDTO, 0, len(g.TopoOrder())),
		GeneratedAt: time.Now().UTC(),
	}

	for _, kcID := range g.TopoOrder() {
		kc, err := g.GetKC(kcID)
		if err != nil {
			continue
		}

		dto := KCProgressDTO{
			KCID:     kc.ID,
			Slug:     string(kc.Slug),
			Title:    kc.Title,
			Theta:    h.estimator.CurrentTheta(ctx, query.UserID, kcID),
			Unlocked: g.PrerequisitesSatisfied(thetas, kcID, h.threshold),
		}

		if est, ok := estimates[kcID]; ok {
			dto.AttemptsCount = est.AttemptsCount
			dto.CorrectCount = est.CorrectCount
			dto.Mastered = est.Mastered(h.threshold)
		}

		if dto.Mastered {
			result.MasteredCount++
		}
		result.Components = append(result.Components, dto)
	}

	// Просроченные повторения считаем только по объектам этого курса.
	due := h.scheduler.DueItems(ctx, query.UserID, time.Now().UTC(), func(aloID string) int {
		alo, err := g.GetALO(aloID)
		if err != nil {
			return int(skillgraph.MaxDifficulty)
		}
		return int(alo.Difficulty)
	})
	for _, item := range due {
		if _, err := g.GetALO(item.ALOID); err == nil {
			result.DueReviewCount++
		}
	}

	if h.archive != nil {
		summaries, err := h.archive.SummariesForUser(ctx, query.UserID, query.RecentSessions)
		if err == nil {
			for _, s := range summaries {
				if s.CourseID == query.CourseID {
					result.RecentSummaries = append(result.RecentSummaries, s)
				}
			}
		}
	}

	return result, nil
}
