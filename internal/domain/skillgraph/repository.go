package skillgraph

import (
	"context"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт между движком и контентным пайплайном.
// Реализации находятся в infrastructure/persistence и infrastructure/catalog.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogSource отдаёт сырое определение курса. Движок только читает каталог;
// наполнением занимается внешний контентный пайплайн.
type CatalogSource interface {
	// LoadCourse возвращает полное определение курса.
	// Возвращает shared.ErrCourseNotFound, если курс неизвестен.
	LoadCourse(ctx context.Context, courseID string) (*CourseDefinition, error)
}

// Cache кеширует скомпилированные графы, чтобы не перечитывать каталог
// при каждом старте сессии.
type Cache interface {
	// Get возвращает скомпилированное определение курса из кеша.
	// Возвращает shared.ErrNotFound при промахе кеша.
	Get(ctx context.Context, courseID string) (*CourseDefinition, error)

	// Set сохраняет определение курса в кеш.
	Set(ctx context.Context, def *CourseDefinition, ttl time.Duration) error

	// Invalidate удаляет курс из кеша (при перепубликации контента).
	Invalidate(ctx context.Context, courseID string) error
}
