package session

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Attempt - одна учтённая попытка для журнала попыток. В отличие от
// SignalEvent сохраняется надолго и используется отчётами о прогрессе.
type Attempt struct {
	ID        string
	SessionID string
	UserID    string
	CourseID  string
	ALOID     string
	KCID      string

	// Source - источник попытки: signal или evidence.
	Source string

	Correct   bool
	WeakPass  bool
	LatencyMs int
	HintsUsed int

	// ThetaBefore и ThetaAfter - оценка освоения KC до и после попытки.
	ThetaBefore float64
	ThetaAfter  float64

	CreatedAt time.Time
}

// Источники попыток.
const (
	AttemptSourceSignal   = "signal"
	AttemptSourceEvidence = "evidence"
)

// Archive - durable-архив завершённых сессий и журнала попыток.
type Archive interface {
	// SaveSummary сохраняет сводку завершённой сессии.
	SaveSummary(ctx context.Context, summary *Summary) error

	// AppendAttempt дописывает попытку в журнал.
	AppendAttempt(ctx context.Context, attempt *Attempt) error

	// RecentAttempts возвращает последние попытки пользователя,
	// новые первыми.
	RecentAttempts(ctx context.Context, userID string, limit int) ([]*Attempt, error)

	// SummariesForUser возвращает сводки завершённых сессий пользователя,
	// новые первыми.
	SummariesForUser(ctx context.Context, userID string, limit int) ([]*Summary, error)
}

// Tracker отслеживает живые сессии вне процесса движка (Redis):
// отображение sessionID -> (userID, courseID) с TTL, чтобы сессию можно
// было возобновить по идентификатору в пределах idle-окна.
type Tracker interface {
	// Track регистрирует живую сессию с TTL.
	Track(ctx context.Context, sessionID, userID, courseID string, ttl time.Duration) error

	// Refresh продлевает TTL живой сессии.
	Refresh(ctx context.Context, sessionID string, ttl time.Duration) error

	// Lookup возвращает (userID, courseID) живой сессии.
	// Возвращает shared.ErrSessionNotFound для неизвестной или истёкшей.
	Lookup(ctx context.Context, sessionID string) (userID, courseID string, err error)

	// Forget удаляет сессию из трекера.
	Forget(ctx context.Context, sessionID string) error
}
