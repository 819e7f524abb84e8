package mastery

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store - durable-хранилище оценок освоения. Движок считает его источником
// истины и кеширует оценки в памяти на время активных сессий.
type Store interface {
	// Get возвращает оценку по ключу (userID, kcID).
	// Возвращает shared.ErrNotFound, если свидетельств ещё не было.
	Get(ctx context.Context, userID, kcID string) (*Estimate, error)

	// LoadAll возвращает все оценки пользователя, ключ - kcID.
	LoadAll(ctx context.Context, userID string) (map[string]*Estimate, error)

	// Upsert сохраняет оценку (insert или update по ключу).
	Upsert(ctx context.Context, est *Estimate) error
}
