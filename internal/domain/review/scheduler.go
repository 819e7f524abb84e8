package review

import (
	"context"
	"hash/fnv"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULER
// Интервальное повторение в духе SM-2:
//
//	успех:  reps++, ease = min(BaseEase + 0.05*max(0, reps-3), MaxEase),
//	        interval = max(1, round(prev * ease))
//	провал: reps = 0, interval = 1, lapses++
//
// Интервалы растут только при подряд идущих успехах; любой провал
// возвращает объект в короткий цикл.
// ══════════════════════════════════════════════════════════════════════════════

// OutcomeResult - результат учёта одного повторения.
type OutcomeResult struct {
	// IntervalDays - назначенный интервал.
	IntervalDays int

	// NextDue - момент следующего повторения.
	NextDue time.Time

	// Reps - длина серии после учёта.
	Reps int

	// Lapsed - true, если это повторение сбросило серию.
	Lapsed bool

	// Synced - false, если изменение живёт только в памяти.
	Synced bool
}

// DifficultyFn возвращает порядковую сложность ALO для сортировки выдачи.
// Для неизвестных объектов возвращает любое стабильное значение.
type DifficultyFn func(aloID string) int

// Scheduler поддерживает очереди повторений всех активных пользователей.
// Мутации очереди одного пользователя сериализуются шардированным мьютексом,
// поэтому конкурентные сессии не теряют обновлений.
type Scheduler struct {
	store Store
	bus   shared.EventPublisher // может быть nil

	locks [lockShards]sync.Mutex

	mu    sync.RWMutex
	cache map[string]map[string]*QueueItem // userID -> aloID -> item
}

const lockShards = 64

// NewScheduler создаёт планировщик поверх durable-хранилища.
// bus может быть nil - тогда события не публикуются.
func NewScheduler(store Store, bus shared.EventPublisher) *Scheduler {
	return &Scheduler{
		store: store,
		bus:   bus,
		cache: make(map[string]map[string]*QueueItem),
	}
}

// lockUser возвращает мьютекс шарда для очереди пользователя.
func (s *Scheduler) lockUser(userID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &s.locks[h.Sum32()%lockShards]
}

// RecordOutcome учитывает результат повторения объекта (userID, aloID).
// При первом контакте элемент создаётся с reps=0 и коротким интервалом.
func (s *Scheduler) RecordOutcome(ctx context.Context, userID, aloID, kcID string, correct bool, now time.Time) (OutcomeResult, error) {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	item := s.cachedLocked(userID, aloID)
	if item == nil {
		stored, err := s.store.Get(ctx, userID, aloID)
		switch {
		case err == nil && stored != nil:
			item = stored
		case shared.IsNotFound(err) || stored == nil:
			item = NewQueueItem(userID, aloID, kcID, now)
		}
		s.rememberLocked(item)
	}

	lapsed := false
	if correct {
		item.Reps++
		bonusReps := item.Reps - EaseBonusFreeReps
		if bonusReps < 0 {
			bonusReps = 0
		}
		item.EaseFactor = math.Min(BaseEase+EaseBonusPerRep*float64(bonusReps), MaxEase)

		next := int(math.Round(float64(item.IntervalDays) * item.EaseFactor))
		if next < MinIntervalDays {
			next = MinIntervalDays
		}
		item.IntervalDays = next
	} else {
		// Lapse: серия и интервал сбрасываются, объект вернётся завтра.
		item.Reps = 0
		item.Lapses++
		item.IntervalDays = MinIntervalDays
		item.EaseFactor = BaseEase
		lapsed = true
	}

	item.LastReviewedAt = now
	item.NextDue = now.Add(time.Duration(item.IntervalDays) * 24 * time.Hour)

	synced := true
	if err := s.store.Upsert(ctx, item); err != nil {
		item.MarkDirty()
		synced = false
	} else {
		item.MarkSynced()
	}

	if s.bus != nil {
		_ = s.bus.Publish(shared.NewReviewScheduledEvent(userID, aloID, item.IntervalDays, item.NextDue, lapsed))
	}

	return OutcomeResult{
		IntervalDays: item.IntervalDays,
		NextDue:      item.NextDue,
		Reps:         item.Reps,
		Lapsed:       lapsed,
		Synced:       synced,
	}, nil
}

// DueItems возвращает объекты, подлежащие повторению на момент now:
// сначала самые просроченные, при равной просрочке - более лёгкие.
// difficulty нужна только для сортировки и может быть nil.
func (s *Scheduler) DueItems(ctx context.Context, userID string, now time.Time, difficulty DifficultyFn) []*QueueItem {
	lock := s.lockUser(userID)
	lock.Lock()
	s.hydrateLocked(ctx, userID)

	var due []*QueueItem
	for _, item := range s.queueLocked(userID) {
		if item.Due(now) {
			due = append(due, item.Clone())
		}
	}
	lock.Unlock()

	diffOf := func(aloID string) int {
		if difficulty == nil {
			return 0
		}
		return difficulty(aloID)
	}
	sort.Slice(due, func(i, j int) bool {
		oi, oj := due[i].OverdueBy(now), due[j].OverdueBy(now)
		if oi != oj {
			return oi > oj
		}
		di, dj := diffOf(due[i].ALOID), diffOf(due[j].ALOID)
		if di != dj {
			return di < dj
		}
		return due[i].ALOID < due[j].ALOID
	})

	return due
}

// Queue возвращает копию всей очереди пользователя.
func (s *Scheduler) Queue(ctx context.Context, userID string) map[string]*QueueItem {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	s.hydrateLocked(ctx, userID)

	queue := s.queueLocked(userID)
	out := make(map[string]*QueueItem, len(queue))
	for aloID, item := range queue {
		out[aloID] = item.Clone()
	}
	return out
}

// FlushUser пытается дослать в durable store все несинхронизированные
// элементы очереди пользователя. Возвращает количество оставшихся dirty.
func (s *Scheduler) FlushUser(ctx context.Context, userID string) int {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	remaining := 0
	for _, item := range s.queueLocked(userID) {
		if !item.Dirty() {
			continue
		}
		if err := s.store.Upsert(ctx, item); err != nil {
			remaining++
		} else {
			item.MarkSynced()
		}
	}
	return remaining
}

// Forget выбрасывает кешированную очередь пользователя.
// Несинхронизированные элементы не выбрасываются.
func (s *Scheduler) Forget(userID string) {
	lock := s.lockUser(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	items := s.cache[userID]
	for aloID, item := range items {
		if !item.Dirty() {
			delete(items, aloID)
		}
	}
	if len(items) == 0 {
		delete(s.cache, userID)
	}
}

// hydrateLocked подтягивает сохранённую очередь пользователя в кеш.
// Кешированные (в том числе dirty) элементы имеют приоритет.
// Вызывается под user-локом.
func (s *Scheduler) hydrateLocked(ctx context.Context, userID string) {
	stored, err := s.store.LoadQueue(ctx, userID)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byALO, ok := s.cache[userID]
	if !ok {
		byALO = make(map[string]*QueueItem, len(stored))
		s.cache[userID] = byALO
	}
	for aloID, item := range stored {
		if _, cached := byALO[aloID]; !cached {
			byALO[aloID] = item
		}
	}
}

// queueLocked возвращает ссылку на кешированную очередь пользователя.
// Вызывается под user-локом: содержимое внутренней map мутируется только
// под ним, s.mu защищает структуру верхнего кеша, которую Forget и
// rememberLocked переписывают от имени других пользователей.
func (s *Scheduler) queueLocked(userID string) map[string]*QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[userID]
}

// cachedLocked возвращает элемент из кеша. Вызывается под user-локом.
func (s *Scheduler) cachedLocked(userID, aloID string) *QueueItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cache[userID][aloID]
}

// rememberLocked кладёт элемент в кеш. Вызывается под user-локом.
func (s *Scheduler) rememberLocked(item *QueueItem) {
	if item == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	byALO, ok := s.cache[item.UserID]
	if !ok {
		byALO = make(map[string]*QueueItem)
		s.cache[item.UserID] = byALO
	}
	byALO[item.ALOID] = item
}
