// Package engine содержит оркестрацию учебных сессий: загрузку графа
// навыков, выбор следующего объекта, конечный автомат сессии и
// маршрутизацию протокольных сообщений.
package engine

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
	"github.com/lyo-hub/lyo-session-engine/internal/domain/skillgraph"
	"github.com/lyo-hub/lyo-session-engine/pkg/circuitbreaker"
	"github.com/lyo-hub/lyo-session-engine/pkg/logger"
	"github.com/lyo-hub/lyo-session-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// GRAPH LOADER
// Загружает и компилирует граф навыков курса. Загрузка "всё или ничего":
// курс с циклом или висячей ссылкой не обслуживается вовсе.
// Конкурентные загрузки одного курса дедуплицируются через singleflight.
// ══════════════════════════════════════════════════════════════════════════════

// GraphLoader отдаёт скомпилированные графы курсов. Скомпилированный граф
// неизменяем и разделяется всеми сессиями курса без блокировок.
type GraphLoader struct {
	source  skillgraph.CatalogSource
	cache   skillgraph.Cache // может быть nil
	retrier *retry.Retrier
	breaker *circuitbreaker.CircuitBreaker
	log     *logger.Logger
	bus     shared.EventPublisher // может быть nil

	cacheTTL time.Duration

	group singleflight.Group

	// mu защищает graphs - скомпилированные графы в памяти процесса.
	mu     sync.RWMutex
	graphs map[string]*skillgraph.SkillGraph
}

// NewGraphLoader создаёт загрузчик графов.
// cache и bus могут быть nil.
func NewGraphLoader(
	source skillgraph.CatalogSource,
	cache skillgraph.Cache,
	log *logger.Logger,
	bus shared.EventPublisher,
	cacheTTL time.Duration,
) *GraphLoader {
	if cacheTTL <= 0 {
		cacheTTL = time.Hour
	}
	l := &GraphLoader{
		source:   source,
		cache:    cache,
		retrier:  retry.CatalogRetrier(),
		log:      log.With(logger.Component("graph_loader")),
		bus:      bus,
		cacheTTL: cacheTTL,
		graphs:   make(map[string]*skillgraph.SkillGraph),
	}
	l.breaker = circuitbreaker.CatalogBreaker(func(name string, from, to circuitbreaker.State) {
		l.log.Warn("catalog circuit state changed",
			logger.String("breaker", name),
			logger.String("from", from.String()),
			logger.String("to", to.String()))
	})
	return l
}

// Load возвращает скомпилированный граф курса, загружая его при
// необходимости. N сессий, стартующих один курс одновременно, загружают
// его один раз.
//
// Ошибки графа (цикл, висячая ссылка) фатальны только для этой загрузки
// и возвращаются вызывающему до старта любой сессии курса.
func (l *GraphLoader) Load(ctx context.Context, courseID string) (*skillgraph.SkillGraph, error) {
	if courseID == "" {
		return nil, shared.NewDomainError("engine", "Load", shared.ErrInvalidInput, "course id is required")
	}

	l.mu.RLock()
	if g, ok := l.graphs[courseID]; ok {
		l.mu.RUnlock()
		return g, nil
	}
	l.mu.RUnlock()

	v, err, _ := l.group.Do(courseID, func() (any, error) {
		// Повторная проверка: пока мы ждали очередь singleflight,
		// граф мог быть уже собран.
		l.mu.RLock()
		if g, ok := l.graphs[courseID]; ok {
			l.mu.RUnlock()
			return g, nil
		}
		l.mu.RUnlock()

		def, err := l.loadDefinition(ctx, courseID)
		if err != nil {
			return nil, err
		}

		g, err := skillgraph.Build(*def)
		if err != nil {
			l.log.Error("course graph rejected",
				logger.CourseID(courseID),
				logger.Err(err))
			return nil, err
		}

		l.mu.Lock()
		l.graphs[courseID] = g
		l.mu.Unlock()

		l.log.Info("course graph loaded",
			logger.CourseID(courseID),
			logger.Int("components", g.ComponentCount()),
			logger.Int("objects", g.ObjectCount()))

		if l.bus != nil {
			_ = l.bus.Publish(shared.NewGraphLoadedEvent(courseID, g.ComponentCount(), g.ObjectCount()))
		}
		return g, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*skillgraph.SkillGraph), nil
}

// loadDefinition достаёт определение курса: сначала кеш, затем источник
// каталога за ретраями и предохранителем.
func (l *GraphLoader) loadDefinition(ctx context.Context, courseID string) (*skillgraph.CourseDefinition, error) {
	if l.cache != nil {
		if def, err := l.cache.Get(ctx, courseID); err == nil && def != nil {
			return def, nil
		}
	}

	var def *skillgraph.CourseDefinition
	err := l.breaker.Execute(ctx, func(ctx context.Context) error {
		return l.retrier.Do(ctx, func(ctx context.Context) error {
			loaded, err := l.source.LoadCourse(ctx, courseID)
			if err != nil {
				if shared.IsNotFound(err) {
					return retry.Permanent(err)
				}
				return retry.Retryable(err)
			}
			def = loaded
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if l.cache != nil {
		if err := l.cache.Set(ctx, def, l.cacheTTL); err != nil {
			l.log.Warn("course definition cache write failed",
				logger.CourseID(courseID),
				logger.Err(err))
		}
	}
	return def, nil
}

// Invalidate выбрасывает граф курса из памяти и из кеша
// (при перепубликации контента).
func (l *GraphLoader) Invalidate(ctx context.Context, courseID string) {
	l.mu.Lock()
	delete(l.graphs, courseID)
	l.mu.Unlock()

	if l.cache != nil {
		if err := l.cache.Invalidate(ctx, courseID); err != nil {
			l.log.Warn("course cache invalidation failed",
				logger.CourseID(courseID),
				logger.Err(err))
		}
	}
}

// Loaded возвращает true, если граф курса уже в памяти.
func (l *GraphLoader) Loaded(courseID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.graphs[courseID]
	return ok
}
