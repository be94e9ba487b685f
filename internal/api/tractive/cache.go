package tractive

import (
	"sync"
	"time"

	"github.com/langchou/petgazer/internal/clock"
)

// DefaultCacheTTL 默认缓存时长
const DefaultCacheTTL = 300 * time.Second

// CacheEntry 缓存项
type CacheEntry struct {
	Key       string
	Payload   any
	FetchedAt time.Time
}

// Cache 按资源名缓存响应，读取时惰性淘汰过期项
type Cache struct {
	mu      sync.Mutex
	enabled bool
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]CacheEntry
}

// NewCache 创建缓存，enabled 为 false 时所有读取都未命中
func NewCache(enabled bool, ttl time.Duration, clk clock.Clock) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Cache{
		enabled: enabled,
		ttl:     ttl,
		clock:   clk,
		entries: make(map[string]CacheEntry),
	}
}

// Get 读取缓存
func (c *Cache) Get(key string) (any, bool) {
	if c == nil || !c.enabled {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.clock.Now().Sub(entry.FetchedAt) > c.ttl {
		delete(c.entries, key)
		return nil, false
	}
	return entry.Payload, true
}

// Set 写入缓存
func (c *Cache) Set(key string, payload any) {
	if c == nil || !c.enabled {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = CacheEntry{Key: key, Payload: payload, FetchedAt: c.clock.Now()}
}

// Delete 删除单个缓存项
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear 清空缓存
func (c *Cache) Clear() {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]CacheEntry)
}

// Len 缓存项数量（含尚未淘汰的过期项）
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
