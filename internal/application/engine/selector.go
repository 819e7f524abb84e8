package engine

import (
	"context"
	"sort"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
)

// ══════════════════════════════════════════════════════════════════════════════
// SELECTOR
// Выбор следующего объекта, по убыванию приоритета:
//
//	1. просроченные повторения (сначала самые просроченные);
//	2. первый невиданный ALO в топологическом порядке KC
//	   с удовлетворёнными предпосылками;
//	3. ремедиальный ALO для KC с наименьшей theta среди начатых,
//	   но не освоенных;
//	4. курс завершён.
//
// Тай-брейк внутри любого уровня - наименьшая сложность.
// ══════════════════════════════════════════════════════════════════════════════

// Причины выбора, попадающие в сообщение next.
const (
	ReasonReviewDue      = "review_due"
	ReasonNewContent     = "new_content"
	ReasonRemedial       = "remedial"
	ReasonCourseComplete = "course_complete"
)

// Selection - результат одного прохода селекции.
type Selection struct {
	// ALO - выбранный объект. nil, когда курс завершён.
	ALO *skillgraph.ALO

	// Reason - причина выбора.
	Reason string
}

// Selector выбирает следующий объект для сессии. Без собственного
// состояния: читает граф, оценки и очередь повторений.
type Selector struct {
	estimator *mastery.Estimator
	scheduler *review.Scheduler

	masteryThreshold float64
}

// NewSelector создаёт селектор с порогом освоения для гейтинга предпосылок.
func NewSelector(estimator *mastery.Estimator, scheduler *review.Scheduler, masteryThreshold float64) *Selector {
	if masteryThreshold <= 0 || masteryThreshold >= 1 {
		masteryThreshold = 0.6
	}
	return &Selector{
		estimator:        estimator,
		scheduler:        scheduler,
		masteryThreshold: masteryThreshold,
	}
}

// MasteryThreshold возвращает порог освоения селектора.
func (s *Selector) MasteryThreshold() float64 {
	return s.masteryThreshold
}

// Next выбирает следующий объект для сессии sess по графу g.
// Никогда не возвращает ALO, чей KC имеет неудовлетворённую предпосылку,
// кроме ремедиального уровня, который по построению бьёт в сам
// неосвоенный KC.
func (s *Selector) Next(ctx context.Context, g *skillgraph.SkillGraph, sess *session.LearningSession, now time.Time) Selection {
	queue := s.scheduler.Queue(ctx, sess.UserID)

	// Уровень 1: просроченные повторения.
	if alo := s.pickDueReview(ctx, g, sess, now); alo != nil {
		return Selection{ALO: alo, Reason: ReasonReviewDue}
	}

	// Уровень 2: новый контент в топологическом порядке.
	thetas := s.estimator.Snapshot(ctx, sess.UserID)
	for _, kcID := range g.TopoOrder() {
		if !g.PrerequisitesSatisfied(thetas, kcID, s.masteryThreshold) {
			continue
		}
		for _, alo := range g.ALOsForKC(kcID) {
			if sess.Seen(alo.ID) {
				continue
			}
			// Элемент в очереди повторений означает прошлый контакт
			// в другой сессии: объект не новый.
			if _, exposed := queue[alo.ID]; exposed {
				continue
			}
			return Selection{ALO: alo, Reason: ReasonNewContent}
		}
	}

	// Уровень 3: ремедиальный объект для самого слабого начатого KC.
	if alo := s.pickRemedial(ctx, g, sess); alo != nil {
		return Selection{ALO: alo, Reason: ReasonRemedial}
	}

	// Уровень 4: курс завершён.
	return Selection{Reason: ReasonCourseComplete}
}

// pickDueReview возвращает самый приоритетный просроченный объект курса.
func (s *Selector) pickDueReview(ctx context.Context, g *skillgraph.SkillGraph, sess *session.LearningSession, now time.Time) *skillgraph.ALO {
	difficulty := func(aloID string) int {
		if alo, err := g.GetALO(aloID); err == nil {
			return int(alo.Difficulty)
		}
		return int(skillgraph.MaxDifficulty)
	}

	for _, item := range s.scheduler.DueItems(ctx, sess.UserID, now, difficulty) {
		// Очередь общая на пользователя и может содержать объекты
		// других курсов.
		alo, err := g.GetALO(item.ALOID)
		if err != nil {
			continue
		}
		return alo
	}
	return nil
}

// pickRemedial возвращает самый лёгкий объект KC с наименьшей theta
// среди начатых, но не освоенных KC курса.
func (s *Selector) pickRemedial(ctx context.Context, g *skillgraph.SkillGraph, sess *session.LearningSession) *skillgraph.ALO {
	estimates := s.estimator.Estimates(ctx, sess.UserID)

	type weak struct {
		kcID  string
		theta float64
	}
	var candidates []weak
	for kcID, est := range estimates {
		if _, err := g.GetKC(kcID); err != nil {
			continue
		}
		if est.Attempted() && !est.Mastered(s.masteryThreshold) {
			candidates = append(candidates, weak{kcID: kcID, theta: est.Theta})
		}
	}
	if len(candidates) == 0 {
		return nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].theta != candidates[j].theta {
			return candidates[i].theta < candidates[j].theta
		}
		return candidates[i].kcID < candidates[j].kcID
	})

	// ALOsForKC отсортированы по возрастанию сложности; первый
	// невиданный в этой сессии, иначе просто самый лёгкий.
	for _, cand := range candidates {
		alos := g.ALOsForKC(cand.kcID)
		if len(alos) == 0 {
			continue
		}
		for _, alo := range alos {
			if !sess.Seen(alo.ID) {
				return alo
			}
		}
		return alos[0]
	}
	return nil
}
