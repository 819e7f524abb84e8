// Package eventhandler содержит подписчиков на события движка.
package eventhandler

import (
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION AUDIT HANDLER
// Журнал жизненного цикла сессий: каждый старт, завершение и таймаут
// пишется в структурированный лог. Несинхронизированные сводки
// логируются как предупреждение, чтобы их было видно в алертах.
// ══════════════════════════════════════════════════════════════════════════════

// SessionAuditHandler логирует события сессий.
type SessionAuditHandler struct {
	logger *logger.Logger
}

// NewSessionAuditHandler создаёт новый обработчик.
func NewSessionAuditHandler(log *logger.Logger) *SessionAuditHandler {
	return &SessionAuditHandler{
		logger: log.With(logger.Component("session_audit")),
	}
}

// Handle обрабатывает одно событие. Всегда возвращает nil: журнал не
// должен вызывать ретраи диспетчера.
func (h *SessionAuditHandler) Handle(event shared.Event) error {
	switch e := event.(type) {
	case shared.SessionStartedEvent:
		h.logger.Info("session started",
			logger.SessionID(e.AggregateID()),
			logger.UserID(e.UserID),
			logger.CourseID(e.CourseID),
		)

	case shared.SessionEndedEvent:
		fields := []logger.Field{
			logger.SessionID(e.AggregateID()),
			logger.UserID(e.UserID),
			logger.Reason(e.Reason),
			logger.Duration("duration", e.Duration),
			logger.Int("items_seen", e.ItemsSeen),
			logger.Float64("accuracy", e.Accuracy),
		}
		if e.Unsynced {
			h.logger.Warn("session ended with unsynced summary", fields...)
		} else {
			h.logger.Info("session ended", fields...)
		}

	case shared.CourseCompletedEvent:
		h.logger.Info("course completed",
			logger.SessionID(e.AggregateID()),
			logger.UserID(e.UserID),
			logger.CourseID(e.CourseID),
		)

	case shared.GraphLoadedEvent:
		h.logger.Info("course graph loaded",
			logger.CourseID(e.CourseID),
			logger.Int("components", e.Components),
			logger.Int("objects", e.Objects),
		)
	}

	return nil
}
