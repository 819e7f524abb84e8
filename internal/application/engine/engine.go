package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/mastery"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/review"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/interface/protocol"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// Реестр активных сессий и транспортная поверхность движка:
//
//	HandleInbound(sessionID, bytes) - единственный вход;
//	OutboundSink                    - единственный выход.
//
// На каждую активную сессию - одна mailbox-горутина: все переходы
// автомата и вызовы эстиматора/планировщика для сессии строго
// последовательны, порядок протокольных сообщений сохраняется.
// Сессии независимы: заблокированная на I/O сессия не тормозит остальные.
// ══════════════════════════════════════════════════════════════════════════════

// OutboundSink доставляет закодированное исходящее сообщение транспорту.
// Вызывается из mailbox-горутины сессии; реализация не должна блокировать
// надолго.
type OutboundSink func(sessionID string, payload []byte)

// Config содержит настройки движка.
type Config struct {
	// MasteryThreshold - порог theta для гейтинга предпосылок.
	MasteryThreshold float64

	// IdleTTL - простой, после которого сессия принудительно
	// завершается с причиной idle_timeout.
	IdleTTL time.Duration

	// GraphCacheTTL - TTL кеша определений курсов.
	GraphCacheTTL time.Duration

	// MailboxSize - ёмкость mailbox-канала сессии.
	MailboxSize int

	// ResolveFlags решает фич-флаги пользователя на старте сессии.
	// nil означает, что все фичи включены.
	ResolveFlags func(userID string) SessionFlags
}

// SessionFlags - решённые на старте сессии фич-флаги пользователя.
// Флаги фиксируются на всё время жизни сессии.
type SessionFlags struct {
	// WeakPassRemediation - верный ответ с подсказками или долгой
	// задержкой считается провалом для очереди повторений.
	WeakPassRemediation bool

	// EvidenceGrading - принимать сообщения submit_evidence.
	EvidenceGrading bool

	// ResumableSessions - регистрировать сессию в трекере, чтобы её
	// можно было возобновить по id в пределах idle TTL.
	ResumableSessions bool
}

// AllSessionFlags возвращает флаги со всеми включёнными фичами.
func AllSessionFlags() SessionFlags {
	return SessionFlags{
		WeakPassRemediation: true,
		EvidenceGrading:     true,
		ResumableSessions:   true,
	}
}

// DefaultConfig возвращает настройки движка по умолчанию.
func DefaultConfig() Config {
	return Config{
		MasteryThreshold: 0.6,
		IdleTTL:          30 * time.Minute,
		GraphCacheTTL:    time.Hour,
		MailboxSize:      16,
	}
}

// Engine управляет всеми активными сессиями процесса.
type Engine struct {
	cfg       Config
	loader    *GraphLoader
	selector  *Selector
	estimator *mastery.Estimator
	scheduler *review.Scheduler
	archive   session.Archive       // может быть nil
	tracker   session.Tracker       // может быть nil
	bus       shared.EventPublisher // может быть nil
	log       *logger.Logger
	outbound  OutboundSink

	mu       sync.RWMutex
	sessions map[string]*sessionRunner
	closed   bool
}

// New создаёт движок. archive, tracker и bus могут быть nil.
func New(
	cfg Config,
	loader *GraphLoader,
	estimator *mastery.Estimator,
	scheduler *review.Scheduler,
	archive session.Archive,
	tracker session.Tracker,
	bus shared.EventPublisher,
	log *logger.Logger,
	outbound OutboundSink,
) *Engine {
	def := DefaultConfig()
	if cfg.MasteryThreshold <= 0 || cfg.MasteryThreshold >= 1 {
		cfg.MasteryThreshold = def.MasteryThreshold
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = def.IdleTTL
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = def.MailboxSize
	}

	return &Engine{
		cfg:       cfg,
		loader:    loader,
		selector:  NewSelector(estimator, scheduler, cfg.MasteryThreshold),
		estimator: estimator,
		scheduler: scheduler,
		archive:   archive,
		tracker:   tracker,
		bus:       bus,
		log:       log.With(logger.Component("engine")),
		outbound:  outbound,
		sessions:  make(map[string]*sessionRunner),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Session runner (mailbox)
// ─────────────────────────────────────────────────────────────────────────────

// command - одна единица работы сессии. Результат уходит в reply.
type command struct {
	run   func(ctx context.Context) ([][]byte, error)
	reply chan commandResult
}

type commandResult struct {
	out [][]byte
	err error
}

// sessionRunner владеет оркестратором одной сессии и исполняет её
// команды строго последовательно.
type sessionRunner struct {
	orch    *Orchestrator
	mailbox chan command
	done    chan struct{}
}

func newSessionRunner(orch *Orchestrator, mailboxSize int) *sessionRunner {
	r := &sessionRunner{
		orch:    orch,
		mailbox: make(chan command, mailboxSize),
		done:    make(chan struct{}),
	}
	go r.loop()
	return r
}

// loop исполняет команды до закрытия mailbox.
func (r *sessionRunner) loop() {
	defer close(r.done)
	for cmd := range r.mailbox {
		out, err := cmd.run(context.Background())
		cmd.reply <- commandResult{out: out, err: err}
	}
}

// do ставит команду в mailbox и ждёт её результата. Ошибка только
// при остановленном runner или отменённом контексте.
func (r *sessionRunner) do(ctx context.Context, fn func(ctx context.Context) ([][]byte, error)) ([][]byte, error) {
	cmd := command{run: fn, reply: make(chan commandResult, 1)}

	select {
	case r.mailbox <- cmd:
	case <-r.done:
		return nil, shared.ErrSessionNotFound
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-cmd.reply:
		return res.out, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// stop закрывает mailbox и дожидается завершения горутины.
func (r *sessionRunner) stop() {
	close(r.mailbox)
	<-r.done
}

// ─────────────────────────────────────────────────────────────────────────────
// Public surface
// ─────────────────────────────────────────────────────────────────────────────

// StartSession создаёт и запускает новую сессию пользователя в курсе.
// Возвращает идентификатор сессии; первый объект уходит через OutboundSink.
//
// Ошибки графа (цикл, висячая ссылка, неизвестный курс) возвращаются
// вызывающему до создания сессии.
func (e *Engine) StartSession(ctx context.Context, userID, courseID string) (string, error) {
	g, err := e.loader.Load(ctx, courseID)
	if err != nil {
		return "", err
	}

	sess, err := session.NewLearningSession(userID, courseID)
	if err != nil {
		return "", err
	}

	flags := e.flagsFor(userID)
	orch := NewOrchestrator(g, sess, e.selector, e.estimator, e.scheduler, e.archive, e.bus, flags, e.log)
	runner := newSessionRunner(orch, e.cfg.MailboxSize)

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		runner.stop()
		return "", shared.NewDomainError("engine", "StartSession", shared.ErrInvalidState, "engine is shut down")
	}
	e.sessions[sess.ID] = runner
	e.mu.Unlock()

	if e.tracker != nil && flags.ResumableSessions {
		if err := e.tracker.Track(ctx, sess.ID, userID, courseID, e.cfg.IdleTTL); err != nil {
			e.log.Warn("session tracker write failed",
				logger.SessionID(sess.ID),
				logger.Err(err))
		}
	}

	out, err := runner.do(ctx, func(ctx context.Context) ([][]byte, error) {
		return orch.Start(ctx)
	})
	if err != nil {
		e.remove(sess.ID)
		runner.stop()
		return "", err
	}
	e.emit(sess.ID, out)

	// Стартовая селекция могла сразу завершить курс.
	if !sess.Active() {
		e.retire(context.WithoutCancel(ctx), sess.ID, runner)
	}

	return sess.ID, nil
}

// HandleInbound - транспортный вход движка: сырые байты одного
// сообщения сессии. Протокольные и доменные ошибки уходят обратно
// сообщением error и не меняют состояние сессии.
func (e *Engine) HandleInbound(sessionID string, raw []byte) {
	ctx := context.Background()

	runner := e.lookup(sessionID)
	if runner == nil {
		e.sendError(sessionID, shared.ErrSessionNotFound)
		return
	}

	msg, err := protocol.Decode(raw)
	if err != nil {
		e.sendError(sessionID, err)
		return
	}

	var out [][]byte
	switch m := msg.(type) {
	case protocol.SignalMessage:
		out, err = runner.do(ctx, func(ctx context.Context) ([][]byte, error) {
			return runner.orch.OnSignal(ctx, m.Domain())
		})
	case protocol.SubmitEvidenceMessage:
		out, err = runner.do(ctx, func(ctx context.Context) ([][]byte, error) {
			return runner.orch.OnSubmitEvidence(ctx, m.Domain())
		})
	default:
		err = shared.NewDomainError("engine", "HandleInbound", shared.ErrUnknownMessage, "unroutable message")
	}
	if err != nil {
		e.sendError(sessionID, err)
		return
	}
	e.emit(sessionID, out)

	if e.tracker != nil && runner.orch.flags.ResumableSessions {
		if err := e.tracker.Refresh(ctx, sessionID, e.cfg.IdleTTL); err != nil && !shared.IsNotFound(err) {
			e.log.Warn("session tracker refresh failed",
				logger.SessionID(sessionID),
				logger.Err(err))
		}
	}

	if !runner.orch.Session().Active() {
		e.retire(ctx, sessionID, runner)
	}
}

// EndSession завершает сессию по инициативе вызывающего.
// Идемпотентен: завершение уже завершённой сессии заново отдаёт сводку.
func (e *Engine) EndSession(ctx context.Context, sessionID, reason string) error {
	runner := e.lookup(sessionID)
	if runner == nil {
		return shared.ErrSessionNotFound
	}
	if reason == "" {
		reason = session.EndReasonUserRequested
	}

	out, err := runner.do(ctx, func(ctx context.Context) ([][]byte, error) {
		return runner.orch.End(ctx, reason)
	})
	if err != nil {
		return err
	}
	e.emit(sessionID, out)

	e.retire(ctx, sessionID, runner)
	return nil
}

// ExpireIdle принудительно завершает сессии, простаивающие дольше
// IdleTTL. Возвращает количество завершённых сессий. Вызывается
// фоновой задачей планировщика.
func (e *Engine) ExpireIdle(ctx context.Context) int {
	now := time.Now().UTC()

	e.mu.RLock()
	var expired []string
	for id, runner := range e.sessions {
		sess := runner.orch.Session()
		if sess.Active() && sess.IdleFor(now) > e.cfg.IdleTTL {
			expired = append(expired, id)
		}
	}
	e.mu.RUnlock()

	ended := 0
	for _, id := range expired {
		if err := e.EndSession(ctx, id, session.EndReasonIdleTimeout); err != nil {
			if !errors.Is(err, shared.ErrNotFound) {
				e.log.Warn("idle session end failed",
					logger.SessionID(id),
					logger.Err(err))
			}
			continue
		}
		ended++
	}
	if ended > 0 {
		e.log.Info("idle sessions expired", logger.Int("count", ended))
	}
	return ended
}

// ActiveSessions возвращает количество живых сессий.
func (e *Engine) ActiveSessions() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

// SessionSnapshot - моментальный снимок живой сессии для запросов
// чтения. Вычисляется в mailbox-горутине сессии, поэтому консистентен.
type SessionSnapshot struct {
	SessionID      string    `json:"session_id"`
	UserID         string    `json:"user_id"`
	CourseID       string    `json:"course_id"`
	State          string    `json:"state"`
	CurrentALOID   string    `json:"current_alo_id,omitempty"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ItemsSeen      int       `json:"items_seen"`
	AttemptsCount  int       `json:"attempts_count"`
	CorrectCount   int       `json:"correct_count"`
	Accuracy       float64   `json:"accuracy"`
	Unsynced       bool      `json:"unsynced"`
}

// Snapshot возвращает снимок живой сессии.
// Для неизвестной или завершённой сессии - shared.ErrSessionNotFound.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (*SessionSnapshot, error) {
	runner := e.lookup(sessionID)
	if runner == nil {
		return nil, shared.ErrSessionNotFound
	}

	var snap *SessionSnapshot
	_, err := runner.do(ctx, func(ctx context.Context) ([][]byte, error) {
		sess := runner.orch.Session()
		snap = &SessionSnapshot{
			SessionID:      sess.ID,
			UserID:         sess.UserID,
			CourseID:       sess.CourseID,
			State:          string(sess.State),
			CurrentALOID:   sess.CurrentALOID,
			StartedAt:      sess.StartedAt,
			LastActivityAt: sess.LastActivityAt,
			ItemsSeen:      sess.SeenCount(),
			AttemptsCount:  sess.AttemptsCount,
			CorrectCount:   sess.CorrectCount,
			Accuracy:       sess.Accuracy(),
			Unsynced:       sess.Unsynced(),
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// Shutdown завершает все активные сессии с причиной shutdown.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	e.closed = true
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	e.mu.Unlock()

	group, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		group.Go(func() error {
			if err := e.EndSession(ctx, id, session.EndReasonShutdown); err != nil &&
				!errors.Is(err, shared.ErrNotFound) {
				return err
			}
			return nil
		})
	}
	return group.Wait()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internals
// ─────────────────────────────────────────────────────────────────────────────

// flagsFor решает фич-флаги сессии пользователя.
func (e *Engine) flagsFor(userID string) SessionFlags {
	if e.cfg.ResolveFlags == nil {
		return AllSessionFlags()
	}
	return e.cfg.ResolveFlags(userID)
}

func (e *Engine) lookup(sessionID string) *sessionRunner {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions[sessionID]
}

func (e *Engine) remove(sessionID string) {
	e.mu.Lock()
	delete(e.sessions, sessionID)
	e.mu.Unlock()
}

// retire убирает завершённую сессию из реестра и выбрасывает
// пользовательские кеши, если это была его последняя сессия.
func (e *Engine) retire(ctx context.Context, sessionID string, runner *sessionRunner) {
	e.remove(sessionID)
	runner.stop()

	if e.tracker != nil {
		if err := e.tracker.Forget(ctx, sessionID); err != nil && !shared.IsNotFound(err) {
			e.log.Warn("session tracker forget failed",
				logger.SessionID(sessionID),
				logger.Err(err))
		}
	}

	userID := runner.orch.Session().UserID
	if !e.userHasSessions(userID) {
		e.estimator.Forget(userID)
		e.scheduler.Forget(userID)
	}
}

func (e *Engine) userHasSessions(userID string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, runner := range e.sessions {
		if runner.orch.Session().UserID == userID {
			return true
		}
	}
	return false
}

// emit отдаёт исходящие сообщения транспорту.
func (e *Engine) emit(sessionID string, out [][]byte) {
	if e.outbound == nil {
		return
	}
	for _, payload := range out {
		e.outbound(sessionID, payload)
	}
}

// sendError кодирует и отправляет сообщение error.
func (e *Engine) sendError(sessionID string, cause error) {
	msg := cause.Error()
	var derr *shared.DomainError
	if errors.As(cause, &derr) {
		msg = derr.Message
	}
	payload, err := protocol.EncodeError(msg)
	if err != nil {
		return
	}
	e.emit(sessionID, [][]byte{payload})
}
