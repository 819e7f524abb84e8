package mastery

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"time"

	"github.com/lyo-hub/lyo-session-engine/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// ESTIMATOR
// Онлайн-обновление theta по логистической модели (IRT-lite):
//
//	predicted = sigmoid(theta - difficultyScaled)
//	K         = K0 / sqrt(attempts + 1)
//	theta'    = clamp(theta + K*(outcome - predicted), 0, 1)
//
// Затухающий learning rate двигает оценку быстро на ранних свидетельствах
// и дошлифовывает на поздних, не давая ей осциллировать.
// ══════════════════════════════════════════════════════════════════════════════

// Config содержит настройки эстиматора.
type Config struct {
	// K0 - базовый learning rate до затухания.
	K0 float64

	// MinDifficulty и MaxDifficulty - допустимый диапазон порядковой сложности.
	MinDifficulty int
	MaxDifficulty int
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		K0:            0.4,
		MinDifficulty: 1,
		MaxDifficulty: 5,
	}
}

// UpdateResult - результат одного обновления освоения.
type UpdateResult struct {
	// OldTheta и NewTheta - оценка до и после обновления.
	OldTheta float64
	NewTheta float64

	// AttemptsCount - количество попыток после обновления.
	AttemptsCount int

	// Synced - false, если durable store недоступен и изменение
	// живёт только в памяти (сводка сессии будет помечена unsynced).
	Synced bool
}

// Estimator поддерживает оценки освоения для всех активных пользователей.
// Обновление по одному ключу (userID, kcID) атомарно: конкурентные сессии
// одного пользователя сериализуются через шардированные мьютексы, поэтому
// потерянных обновлений не бывает.
type Estimator struct {
	cfg   Config
	store Store
	bus   shared.EventPublisher // может быть nil

	// locks - шардированные мьютексы по ключу (userID, kcID).
	locks [lockShards]sync.Mutex

	// mu защищает кеш оценок целиком (только структуру map,
	// содержимое Estimate защищено key-локами).
	mu    sync.RWMutex
	cache map[string]map[string]*Estimate // userID -> kcID -> estimate
}

const lockShards = 64

// NewEstimator создаёт эстиматор поверх durable-хранилища.
// bus может быть nil - тогда события не публикуются.
func NewEstimator(cfg Config, store Store, bus shared.EventPublisher) *Estimator {
	if cfg.K0 <= 0 {
		cfg.K0 = DefaultConfig().K0
	}
	if cfg.MaxDifficulty <= cfg.MinDifficulty {
		cfg.MinDifficulty = DefaultConfig().MinDifficulty
		cfg.MaxDifficulty = DefaultConfig().MaxDifficulty
	}
	return &Estimator{
		cfg:   cfg,
		store: store,
		bus:   bus,
		cache: make(map[string]map[string]*Estimate),
	}
}

// lockKey возвращает мьютекс шарда для ключа (userID, kcID).
func (e *Estimator) lockKey(userID, kcID string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(userID))
	h.Write([]byte{0})
	h.Write([]byte(kcID))
	return &e.locks[h.Sum32()%lockShards]
}

// CurrentTheta возвращает текущую theta или априорное значение,
// если свидетельств ещё не было.
func (e *Estimator) CurrentTheta(ctx context.Context, userID, kcID string) float64 {
	if est := e.cached(userID, kcID); est != nil {
		return est.Theta
	}
	est, err := e.store.Get(ctx, userID, kcID)
	if err != nil || est == nil {
		return PriorTheta
	}
	e.remember(est)
	return est.Theta
}

// Snapshot возвращает карту kcID -> theta для пользователя: кешированные
// оценки поверх сохранённых. Используется проверкой предпосылок и селекцией.
func (e *Estimator) Snapshot(ctx context.Context, userID string) map[string]float64 {
	out := make(map[string]float64)

	if stored, err := e.store.LoadAll(ctx, userID); err == nil {
		for kcID, est := range stored {
			out[kcID] = est.Theta
		}
	}

	e.mu.RLock()
	for kcID, est := range e.cache[userID] {
		out[kcID] = est.Theta
	}
	e.mu.RUnlock()

	return out
}

// Estimates возвращает копии всех известных оценок пользователя.
func (e *Estimator) Estimates(ctx context.Context, userID string) map[string]*Estimate {
	out := make(map[string]*Estimate)

	if stored, err := e.store.LoadAll(ctx, userID); err == nil {
		for kcID, est := range stored {
			out[kcID] = est.Clone()
		}
	}

	e.mu.RLock()
	for kcID, est := range e.cache[userID] {
		out[kcID] = est.Clone()
	}
	e.mu.RUnlock()

	return out
}

// UpdateMastery применяет одно свидетельство к оценке (userID, kcID).
//
// latencyMs - телеметрия клиента; в формулу обновления не входит,
// но проходит валидацию (отрицательная задержка отбрасывается).
//
// Возвращает shared.ErrInvalidDifficulty для сложности вне диапазона -
// в этом случае оценка не мутируется вовсе.
func (e *Estimator) UpdateMastery(ctx context.Context, userID, kcID string, correct bool, difficulty int, latencyMs int) (UpdateResult, error) {
	if difficulty < e.cfg.MinDifficulty || difficulty > e.cfg.MaxDifficulty {
		return UpdateResult{}, shared.ErrInvalidDifficulty
	}
	if latencyMs < 0 {
		return UpdateResult{}, shared.NewDomainError("mastery", "UpdateMastery",
			shared.ErrValueOutOfRange, "latency must be non-negative")
	}

	lock := e.lockKey(userID, kcID)
	lock.Lock()
	defer lock.Unlock()

	est := e.cached(userID, kcID)
	if est == nil {
		stored, err := e.store.Get(ctx, userID, kcID)
		switch {
		case err == nil && stored != nil:
			est = stored
		case shared.IsNotFound(err) || stored == nil:
			est = NewEstimate(userID, kcID)
		}
		e.remember(est)
	}

	oldTheta := est.Theta
	outcome := 0.0
	if correct {
		outcome = 1.0
	}

	predicted := sigmoid(oldTheta - e.difficultyScaled(difficulty))
	k := e.cfg.K0 / math.Sqrt(float64(est.AttemptsCount)+1)
	newTheta := clamp(oldTheta+k*(outcome-predicted), MinTheta, MaxTheta)

	est.Theta = newTheta
	est.AttemptsCount++
	if correct {
		est.CorrectCount++
	}
	est.UpdatedAt = time.Now().UTC()

	synced := true
	if err := e.store.Upsert(ctx, est); err != nil {
		// Durable store недоступен: продолжаем в памяти, сводка сессии
		// будет помечена unsynced. Прогресс пользователя не теряется молча.
		est.MarkDirty()
		synced = false
	} else {
		est.MarkSynced()
	}

	if e.bus != nil {
		_ = e.bus.Publish(shared.NewMasteryUpdatedEvent(userID, kcID, oldTheta, newTheta, correct))
	}

	return UpdateResult{
		OldTheta:      oldTheta,
		NewTheta:      newTheta,
		AttemptsCount: est.AttemptsCount,
		Synced:        synced,
	}, nil
}

// FlushUser пытается дослать в durable store все несинхронизированные
// оценки пользователя. Возвращает количество оставшихся dirty-оценок.
func (e *Estimator) FlushUser(ctx context.Context, userID string) int {
	e.mu.RLock()
	var dirty []*Estimate
	for _, est := range e.cache[userID] {
		if est.Dirty() {
			dirty = append(dirty, est)
		}
	}
	e.mu.RUnlock()

	remaining := 0
	for _, est := range dirty {
		lock := e.lockKey(est.UserID, est.KCID)
		lock.Lock()
		if est.Dirty() {
			if err := e.store.Upsert(ctx, est); err != nil {
				remaining++
			} else {
				est.MarkSynced()
			}
		}
		lock.Unlock()
	}
	return remaining
}

// Forget выбрасывает кешированные оценки пользователя (после конца
// последней активной сессии). Несинхронизированные оценки не выбрасываются.
func (e *Estimator) Forget(userID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ests := e.cache[userID]
	for kcID, est := range ests {
		if !est.Dirty() {
			delete(ests, kcID)
		}
	}
	if len(ests) == 0 {
		delete(e.cache, userID)
	}
}

// cached возвращает оценку из кеша или nil.
func (e *Estimator) cached(userID, kcID string) *Estimate {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cache[userID][kcID]
}

// remember кладёт оценку в кеш.
func (e *Estimator) remember(est *Estimate) {
	if est == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	byKC, ok := e.cache[est.UserID]
	if !ok {
		byKC = make(map[string]*Estimate)
		e.cache[est.UserID] = byKC
	}
	byKC[est.KCID] = est
}

// difficultyScaled переводит порядковую сложность на шкалу theta:
// линейно MinDifficulty..MaxDifficulty -> 0.1..0.9.
func (e *Estimator) difficultyScaled(difficulty int) float64 {
	span := float64(e.cfg.MaxDifficulty - e.cfg.MinDifficulty)
	frac := float64(difficulty-e.cfg.MinDifficulty) / span
	return 0.1 + 0.8*frac
}

func sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
