// Package query содержит операции чтения (CQRS - Queries).
package query

import (
	"context"
	"errors"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/application/engine"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/session"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET SESSION SNAPSHOT QUERY
// Снимок сессии по идентификатору: живая сессия читается из движка,
// завершённая - из архива сводок.
// ══════════════════════════════════════════════════════════════════════════════

// SessionInspector - срез движка, нужный запросу.
type SessionInspector interface {
	Snapshot(ctx context.Context, sessionID string) (*engine.SessionSnapshot, error)
}

// GetSessionSnapshotQuery содержит параметры запроса.
type GetSessionSnapshotQuery struct {
	// SessionID - идентификатор сессии.
	SessionID string

	// UserID нужен для поиска в архиве, когда сессия уже завершена.
	// Для живой сессии может быть пустым.
	UserID string
}

// Validate проверяет корректность параметров.
func (q *GetSessionSnapshotQuery) Validate() error {
	if q.SessionID == "" {
		return errors.New("session_id must be provided")
	}
	return nil
}

// GetSessionSnapshotResult содержит результат запроса.
type GetSessionSnapshotResult struct {
	// Live - сессия активна в движке.
	Live bool `json:"live"`

	// Snapshot - снимок живой сессии (только при Live).
	Snapshot *engine.SessionSnapshot `json:"snapshot,omitempty"`

	// Summary - сводка завершённой сессии (только при !Live).
	Summary *session.Summary `json:"summary,omitempty"`

	// GeneratedAt - время генерации.
	GeneratedAt time.Time `json:"generated_at"`
}

// GetSessionSnapshotHandler обрабатывает запросы снимка сессии.
type GetSessionSnapshotHandler struct {
	engine  SessionInspector
	archive session.Archive // может быть nil
}

// NewGetSessionSnapshotHandler создаёт новый обработчик.
func NewGetSessionSnapshotHandler(engine SessionInspector, archive session.Archive) *GetSessionSnapshotHandler {
	return &GetSessionSnapshotHandler{
		engine:  engine,
		archive: archive,
	}
}

// Handle выполняет запрос.
func (h *GetSessionSnapshotHandler) Handle(ctx context.Context, query GetSessionSnapshotQuery) (*GetSessionSnapshotResult, error) {
	if err := query.Validate(); err != nil {
		return nil, shared.WrapError("query", "GetSessionSnapshot", shared.ErrValidation, err.Error(), err)
	}

	snap, err := h.engine.Snapshot(ctx, query.SessionID)
	if err == nil {
		return &GetSessionSnapshotResult{
			Live:        true,
			Snapshot:    snap,
			GeneratedAt: time.Now().UTC(),
		}, nil
	}
	if !shared.IsNotFound(err) {
		return nil, err
	}

	// Сессии нет в движке: ищем сводку в архиве.
	if h.archive == nil || query.UserID == "" {
		return nil, shared.ErrSessionNotFound
	}

	summaries, err := h.archive.SummariesForUser(ctx, query.UserID, 100)
	if err != nil {
		return nil, shared.WrapError("query", "GetSessionSnapshot", shared.ErrPersistence, "archive read failed", err)
	}
	for _, s := range summaries {
		if s.SessionID == query.SessionID {
			return &GetSessionSnapshotResult{
				Summary:     s,
				GeneratedAt: time.Now().UTC(),
			}, nil
		}
	}

	return nil, shared.ErrSessionNotFound
}
