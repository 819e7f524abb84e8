package eventhandler

import (
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// Registrar - срез диспетчера событий, нужный для подписки.
type Registrar interface {
	Register(eventType shared.EventType, name string, handler shared.EventHandler) error
	RegisterSync(eventType shared.EventType, name string, handler shared.EventHandler) error
}

// ProgressProjector - read-модель, в которую складываются события.
type ProgressProjector interface {
	Apply(event shared.Event) error
}

// RegisterAll подписывает стандартный набор потребителей.
//
// Проекция прогресса подписана синхронно: её Apply - это запись в
// память под мьютексом, и синхронная доставка сохраняет порядок
// событий одного пользователя. Журнал аудита подписан асинхронно.
func RegisterAll(d Registrar, view ProgressProjector, audit *SessionAuditHandler) error {
	projected := []shared.EventType{
		shared.EventSessionStarted,
		shared.EventSessionEnded,
		shared.EventMasteryUpdated,
		shared.EventReviewScheduled,
		shared.EventCourseCompleted,
	}
	for _, et := range projected {
		if err := d.RegisterSync(et, "learner_progress_view", view.Apply); err != nil {
			return err
		}
	}

	audited := []shared.EventType{
		shared.EventSessionStarted,
		shared.EventSessionEnded,
		shared.EventCourseCompleted,
		shared.EventGraphLoaded,
	}
	for _, et := range audited {
		if err := d.Register(et, "session_audit", audit.Handle); err != nil {
			return err
		}
	}

	return nil
}
