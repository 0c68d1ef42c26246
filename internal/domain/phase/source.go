package phase

import (
	"context"
	"sync"
	"time"
)

// Source - источник сырой конфигурации фаз (редактируемое администратором хранилище).
// Ошибки трактуются вызывающим кодом как "конфигурация недоступна".
type Source interface {
	GetRawPhaseConfig(ctx context.Context) ([]RawDefinition, error)
}

// SourceFunc адаптирует функцию к интерфейсу Source.
type SourceFunc func(ctx context.Context) ([]RawDefinition, error)

// GetRawPhaseConfig вызывает f.
func (f SourceFunc) GetRawPhaseConfig(ctx context.Context) ([]RawDefinition, error) {
	return f(ctx)
}

// StaticSource - фиксированная конфигурация (тесты, CLI).
type StaticSource []RawDefinition

// GetRawPhaseConfig возвращает копию конфигурации.
func (s StaticSource) GetRawPhaseConfig(context.Context) ([]RawDefinition, error) {
	return cloneRaw(s), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// CACHED SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// CachedSource - кэш сырой конфигурации в памяти с TTL и явной инвалидацией.
// Создаётся вызывающим кодом и передаётся явно; глобального состояния нет.
// Кэшируется только сырой ввод: нормализация выполняется заново на каждый вызов.
type CachedSource struct {
	next Source
	ttl  time.Duration
	now  func() time.Time

	mu       sync.Mutex
	cached   []RawDefinition
	loadedAt time.Time
	valid    bool
}

// CacheOption настраивает CachedSource.
type CacheOption func(*CachedSource)

// WithCacheClock заменяет источник времени.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(c *CachedSource) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCachedSource оборачивает next. ttl <= 0 означает "до явной инвалидации".
func NewCachedSource(next Source, ttl time.Duration, opts ...CacheOption) *CachedSource {
	c := &CachedSource{next: next, ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetRawPhaseConfig возвращает копию закэшированной конфигурации или загружает её.
// Ошибки загрузки не кэшируются.
func (c *CachedSource) GetRawPhaseConfig(ctx context.Context) ([]RawDefinition, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.valid && (c.ttl <= 0 || c.now().Sub(c.loadedAt) < c.ttl) {
		return cloneRaw(c.cached), nil
	}

	raw, err := c.next.GetRawPhaseConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.cached = cloneRaw(raw)
	c.loadedAt = c.now()
	c.valid = true
	return cloneRaw(raw), nil
}

// Invalidate сбрасывает кэш; следующий вызов загрузит конфигурацию заново.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.valid = false
	c.cached = nil
}

func cloneRaw(in []RawDefinition) []RawDefinition {
	if in == nil {
		return nil
	}
	out := make([]RawDefinition, len(in))
	copy(out, in)
	return out
}
