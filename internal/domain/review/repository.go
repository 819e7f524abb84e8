package review

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Store - durable-хранилище очереди повторений.
type Store interface {
	// Get возвращает элемент очереди по ключу (userID, aloID).
	// Возвращает shared.ErrNotFound, если объект ещё не встречался.
	Get(ctx context.Context, userID, aloID string) (*QueueItem, error)

	// LoadQueue возвращает всю очередь пользователя, ключ - aloID.
	LoadQueue(ctx context.Context, userID string) (map[string]*QueueItem, error)

	// Upsert сохраняет элемент очереди (insert или update по ключу).
	Upsert(ctx context.Context, item *QueueItem) error
}
