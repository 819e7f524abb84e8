package session

import (
	"time"
)

// Summary - сводка завершённой сессии. Сериализуется в протокольное
// сообщение end и в архив сессий, поэтому несёт json-теги.
type Summary struct {
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	CourseID  string `json:"course_id"`

	// Reason - причина завершения (user_requested, course_complete,
	// idle_timeout, shutdown).
	Reason string `json:"reason"`

	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`

	// DurationSec - длительность сессии в целых секундах.
	DurationSec int `json:"duration_sec"`

	// ItemsSeen - количество доставленных объектов.
	ItemsSeen int `json:"items_seen"`

	AttemptsCount int `json:"attempts_count"`
	CorrectCount  int `json:"correct_count"`

	// Accuracy - CorrectCount / AttemptsCount за сессию.
	Accuracy float64 `json:"accuracy"`

	// Unsynced - true, если часть прогресса не дошла до durable store
	// и сводка вычислена по данным из памяти.
	Unsynced bool `json:"unsynced"`
}
