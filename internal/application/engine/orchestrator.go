package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
	"github.com/lyo-hub/lyo-session-engine/internal/interface/protocol"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ORCHESTRATOR
// Конечный автомат одной сессии. Все вызовы оркестратора сериализуются
// mailbox-горутиной сессии (см. engine.go), поэтому внутри него
// синхронизация не нужна.
// ══════════════════════════════════════════════════════════════════════════════

// Orchestrator ведёт одну учебную сессию: выбирает объекты, валидирует
// сигналы и свидетельства, обновляет оценки и очередь повторений,
// кодирует исходящие сообщения.
type Orchestrator struct {
	graph     *skillgraph.SkillGraph
	sess      *session.LearningSession
	selector  *Selector
	estimator *mastery.Estimator
	scheduler *review.Scheduler
	archive   session.Archive       // может быть nil
	bus       shared.EventPublisher // может быть nil
	flags     SessionFlags
	log       *logger.Logger

	// now подменяется в тестах.
	now func() time.Time
}

// NewOrchestrator создаёт оркестратор для сессии sess поверх графа g.
func NewOrchestrator(
	g *skillgraph.SkillGraph,
	sess *session.LearningSession,
	selector *Selector,
	estimator *mastery.Estimator,
	scheduler *review.Scheduler,
	archive session.Archive,
	bus shared.EventPublisher,
	flags SessionFlags,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		graph:     g,
		sess:      sess,
		selector:  selector,
		estimator: estimator,
		scheduler: scheduler,
		archive:   archive,
		bus:       bus,
		flags:     flags,
		log: log.With(
			logger.SessionID(sess.ID),
			logger.UserID(sess.UserID),
			logger.CourseID(sess.CourseID)),
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Session возвращает агрегат сессии оркестратора.
func (o *Orchestrator) Session() *session.LearningSession {
	return o.sess
}

// Start запускает сессию: Idle -> Delivering -> AwaitingSignal.
// Возвращает закодированные исходящие сообщения: alo для первого объекта
// или end, если курс уже завершён для этого пользователя.
func (o *Orchestrator) Start(ctx context.Context) ([][]byte, error) {
	if err := o.sess.BeginDelivery(); err != nil {
		return nil, err
	}

	if o.bus != nil {
		_ = o.bus.Publish(shared.NewSessionStartedEvent(o.sess.ID, o.sess.UserID, o.sess.CourseID))
	}

	now := o.now()
	o.sess.Touch(now)

	sel := o.selector.Next(ctx, o.graph, o.sess, now)
	if sel.ALO == nil {
		// Курсу нечего предложить уже на старте.
		return o.endFromWithin(ctx, session.EndReasonCourseComplete)
	}

	if err := o.sess.MarkDelivered(sel.ALO.ID); err != nil {
		return nil, err
	}

	o.log.Info("alo delivered",
		logger.ALOID(sel.ALO.ID),
		logger.Reason(sel.Reason))

	out, err := protocol.EncodeALO(sel.ALO)
	if err != nil {
		return nil, shared.WrapError("engine", "Start", shared.ErrProtocol, "encode alo message", err)
	}
	return [][]byte{out}, nil
}

// OnSignal обрабатывает входящий учебный сигнал.
// Допустим только в AwaitingSignal; несовпадение alo_id с доставленным
// объектом отклоняется без каких-либо мутаций, сессия остаётся в
// AwaitingSignal.
func (o *Orchestrator) OnSignal(ctx context.Context, ev session.SignalEvent) ([][]byte, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	if err := o.matchDelivered("OnSignal", ev.ALOID, shared.ErrSignalMismatch); err != nil {
		return nil, err
	}

	alo, err := o.graph.GetALO(ev.ALOID)
	if err != nil {
		return nil, err
	}
	kc, err := o.graph.OwningKC(ev.ALOID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	o.sess.Touch(now)

	if err := o.sess.BeginGrading(); err != nil {
		return nil, err
	}

	if ev.Kind.Gradable() {
		weakPass := ev.WeakPass() && o.flags.WeakPassRemediation
		o.grade(ctx, alo, kc, ev.IsCorrect(), weakPass, ev.Latency(), ev.HintsUsed, session.AttemptSourceSignal, now)
	}

	return o.advance(ctx, now)
}

// OnSubmitEvidence обрабатывает заявку на оценку свидетельства.
// Допустимо только для доставленного объекта типа exercise или project.
// Результат (все проверки прошли) идёт тем же путём, что и сигнал
// корректности.
func (o *Orchestrator) OnSubmitEvidence(ctx context.Context, sub session.EvidenceSubmission) ([][]byte, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}
	if !o.flags.EvidenceGrading {
		return nil, shared.ErrEvidenceDisabled
	}
	if err := o.matchDelivered("OnSubmitEvidence", sub.ALOID, shared.ErrEvidenceMismatch); err != nil {
		return nil, err
	}

	alo, err := o.graph.GetALO(sub.ALOID)
	if err != nil {
		return nil, err
	}
	if !alo.Type.AcceptsEvidence() {
		return nil, shared.ErrEvidenceNotGraded
	}
	kc, err := o.graph.OwningKC(sub.ALOID)
	if err != nil {
		return nil, err
	}

	now := o.now()
	o.sess.Touch(now)

	if err := o.sess.BeginGrading(); err != nil {
		return nil, err
	}

	passed := sub.Passed()
	o.grade(ctx, alo, kc, passed, false, 0, 0, session.AttemptSourceEvidence, now)

	theta := o.estimator.CurrentTheta(ctx, o.sess.UserID, kc.ID)
	result, err := protocol.EncodeEvidenceResult(sub.ALOID, passed, sub.FailedChecks(), theta)
	if err != nil {
		return nil, shared.WrapError("engine", "OnSubmitEvidence", shared.ErrProtocol, "encode evidence result", err)
	}

	rest, err := o.advance(ctx, now)
	if err != nil {
		return nil, err
	}
	return append([][]byte{result}, rest...), nil
}

// End завершает сессию из любого нетерминального состояния.
// Идемпотентен: End для уже завершённой сессии заново отдаёт последнюю
// сводку, ничего не пересчитывая.
func (o *Orchestrator) End(ctx context.Context, reason string) ([][]byte, error) {
	if !o.sess.Active() {
		out, err := protocol.EncodeEnd(o.sess.LastSummary())
		if err != nil {
			return nil, shared.WrapError("engine", "End", shared.ErrProtocol, "encode end message", err)
		}
		return [][]byte{out}, nil
	}
	return o.endFromWithin(ctx, reason)
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// matchDelivered проверяет, что вход относится к доставленному объекту.
// До этой проверки никакие мутации не выполняются.
func (o *Orchestrator) matchDelivered(op, aloID string, mismatch error) error {
	if !o.sess.Active() {
		return shared.ErrSessionEnded
	}
	if o.sess.State != session.StateAwaitingSignal || o.sess.CurrentALOID == "" {
		return shared.ErrNoDeliveredALO
	}
	if aloID != o.sess.CurrentALOID {
		return mismatch
	}
	return nil
}

// grade применяет один результат к оценке освоения и очереди повторений.
// Ослабленный успех (weakPass) для оценки освоения считается верным,
// для очереди повторений - провалом.
func (o *Orchestrator) grade(
	ctx context.Context,
	alo *skillgraph.ALO,
	kc *skillgraph.KnowledgeComponent,
	correct, weakPass bool,
	latencyMs, hintsUsed int,
	source string,
	now time.Time,
) {
	upd, err := o.estimator.UpdateMastery(ctx, o.sess.UserID, kc.ID, correct, int(alo.Difficulty), latencyMs)
	if err != nil {
		// Сложность приходит из каталога и прошла валидацию при
		// загрузке графа, поэтому сюда попадать не должны.
		o.log.Error("mastery update rejected", logger.KCID(kc.ID), logger.Err(err))
		return
	}

	reviewCorrect := correct && !weakPass
	sched, err := o.scheduler.RecordOutcome(ctx, o.sess.UserID, alo.ID, kc.ID, reviewCorrect, now)
	if err != nil {
		o.log.Error("review outcome rejected", logger.ALOID(alo.ID), logger.Err(err))
	}

	if !upd.Synced || (err == nil && !sched.Synced) {
		o.sess.MarkUnsynced()
		o.log.Warn("progress kept in memory only",
			logger.KCID(kc.ID),
			logger.ALOID(alo.ID))
	}

	o.sess.RecordAttempt(correct)

	o.log.Info("attempt graded",
		logger.ALOID(alo.ID),
		logger.KCID(kc.ID),
		logger.Bool("correct", correct),
		logger.Bool("weak_pass", weakPass),
		logger.Theta(upd.NewTheta))

	if o.archive != nil {
		attempt := &session.Attempt{
			ID:          uuid.New().String(),
			SessionID:   o.sess.ID,
			UserID:      o.sess.UserID,
			CourseID:    o.sess.CourseID,
			ALOID:       alo.ID,
			KCID:        kc.ID,
			Source:      source,
			Correct:     correct,
			WeakPass:    weakPass,
			LatencyMs:   latencyMs,
			HintsUsed:   hintsUsed,
			ThetaBefore: upd.OldTheta,
			ThetaAfter:  upd.NewTheta,
			CreatedAt:   now,
		}
		if err := o.archive.AppendAttempt(ctx, attempt); err != nil {
			o.log.Warn("attempt log write failed", logger.Err(err))
		}
	}
}

// advance переводит сессию Grading -> Delivering, выбирает следующий
// объект и кодирует next либо завершает сессию по course_complete.
func (o *Orchestrator) advance(ctx context.Context, now time.Time) ([][]byte, error) {
	if err := o.sess.ContinueDelivery(); err != nil {
		return nil, err
	}

	sel := o.selector.Next(ctx, o.graph, o.sess, now)
	if sel.ALO == nil {
		if o.bus != nil {
			_ = o.bus.Publish(shared.NewCourseCompletedEvent(o.sess.ID, o.sess.UserID, o.sess.CourseID))
		}
		next, err := protocol.EncodeNext(nil, session.EndReasonCourseComplete)
		if err != nil {
			return nil, shared.WrapError("engine", "advance", shared.ErrProtocol, "encode next message", err)
		}
		rest, err := o.endFromWithin(ctx, session.EndReasonCourseComplete)
		if err != nil {
			return nil, err
		}
		return append([][]byte{next}, rest...), nil
	}

	if err := o.sess.MarkDelivered(sel.ALO.ID); err != nil {
		return nil, err
	}

	o.log.Info("alo delivered",
		logger.ALOID(sel.ALO.ID),
		logger.Reason(sel.Reason))

	out, err := protocol.EncodeNext(sel.ALO, sel.Reason)
	if err != nil {
		return nil, shared.WrapError("engine", "advance", shared.ErrProtocol, "encode next message", err)
	}
	return [][]byte{out}, nil
}

// endFromWithin завершает активную сессию: дожимает несинхронизированный
// прогресс, считает сводку, пишет архив и кодирует end.
func (o *Orchestrator) endFromWithin(ctx context.Context, reason string) ([][]byte, error) {
	if err := o.sess.BeginEnding(); err != nil {
		return nil, err
	}

	// Последняя попытка дослать dirty-состояние перед подсчётом сводки.
	if remaining := o.estimator.FlushUser(ctx, o.sess.UserID); remaining > 0 {
		o.sess.MarkUnsynced()
	}
	if remaining := o.scheduler.FlushUser(ctx, o.sess.UserID); remaining > 0 {
		o.sess.MarkUnsynced()
	}

	now := o.now()
	summary, err := o.sess.CompleteEnd(reason, now)
	if err != nil {
		return nil, err
	}

	if o.archive != nil {
		if err := o.archive.SaveSummary(ctx, summary); err != nil {
			o.log.Warn("summary archive write failed", logger.Err(err))
		}
	}

	if o.bus != nil {
		_ = o.bus.Publish(shared.NewSessionEndedEvent(
			o.sess.ID, o.sess.UserID, reason,
			now.Sub(summary.StartedAt), summary.ItemsSeen, summary.Accuracy, summary.Unsynced))
	}

	o.log.Info("session ended",
		logger.Reason(reason),
		logger.Int("items_seen", summary.ItemsSeen),
		logger.Float64("accuracy", summary.Accuracy),
		logger.Bool("unsynced", summary.Unsynced))

	out, err := protocol.EncodeEnd(summary)
	if err != nil {
		return nil, shared.WrapError("engine", "End", shared.ErrProtocol, "encode end message", err)
	}
	return [][]byte{out}, nil
}
