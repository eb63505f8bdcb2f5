package cache

import (
	"sort"
	"sync"
	"time"
)

// Cache 通用缓存接口
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V, ttl time.Duration)
	Delete(key K)
	Clear()
	Size() int
}

// InMemoryCache 内存缓存实现
type InMemoryCache[K comparable, V any] struct {
	items      map[K]*cacheItem[V]
	mu         sync.RWMutex
	defaultTTL time.Duration
	now        func() time.Time

	stopOnce sync.Once
	stop     chan struct{}
}

// cacheItem 缓存项
type cacheItem[V any] struct {
	value     V
	storedAt  time.Time
	expiresAt time.Time
}

// NewInMemoryCache 创建新的内存缓存；cleanupInterval<=0 时不启动后台清理
func NewInMemoryCache[K comparable, V any](defaultTTL, cleanupInterval time.Duration) *InMemoryCache[K, V] {
	c := &InMemoryCache[K, V]{
		items:      make(map[K]*cacheItem[V]),
		defaultTTL: defaultTTL,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	if cleanupInterval > 0 {
		go c.startCleanup(cleanupInterval)
	}
	return c
}

// SetClock 替换时间源（测试用）
func (c *InMemoryCache[K, V]) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Get 获取缓存值，过期视为不存在
func (c *InMemoryCache[K, V]) Get(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || c.now().After(item.expiresAt) {
		var zero V
		return zero, false
	}
	return item.value, true
}

// Set 设置缓存值，ttl=0 使用默认 TTL
func (c *InMemoryCache[K, V]) Set(key K, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl == 0 {
		ttl = c.defaultTTL
	}
	now := c.now()
	c.items[key] = &cacheItem[V]{
		value:     value,
		storedAt:  now,
		expiresAt: now.Add(ttl),
	}
}

// Delete 删除缓存项
func (c *InMemoryCache[K, V]) Delete(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Clear 清空缓存
func (c *InMemoryCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[K]*cacheItem[V])
}

// Size 获取缓存大小（包含尚未清理的过期项）
func (c *InMemoryCache[K, V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Close 停止后台清理
func (c *InMemoryCache[K, V]) Close() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *InMemoryCache[K, V]) startCleanup(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-c.stop:
			return
		}
	}
}

// cleanup 清理过期项
func (c *InMemoryCache[K, V]) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiresAt) {
			delete(c.items, key)
		}
	}
}

// Quote 一条现货报价
type Quote struct {
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PriceBoard 各标的现货价格看板（symbol -> 最新价格，带 TTL）
type PriceBoard struct {
	cache *InMemoryCache[string, float64]
}

// NewPriceBoard 创建价格看板
func NewPriceBoard(ttl time.Duration) *PriceBoard {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PriceBoard{
		cache: NewInMemoryCache[string, float64](ttl, ttl),
	}
}

// Get 获取价格
func (pb *PriceBoard) Get(symbol string) (float64, bool) {
	return pb.cache.Get(symbol)
}

// Set 设置价格
func (pb *PriceBoard) Set(symbol string, price float64) {
	pb.cache.Set(symbol, price, 0)
}

// SetAll 批量设置价格
func (pb *PriceBoard) SetAll(prices map[string]float64) {
	for sym, p := range prices {
		pb.Set(sym, p)
	}
}

// Snapshot 返回未过期的全部报价，按 symbol 排序
func (pb *PriceBoard) Snapshot() []Quote {
	c := pb.cache
	c.mu.RLock()
	now := c.now()
	out := make([]Quote, 0, len(c.items))
	for sym, item := range c.items {
		if now.After(item.expiresAt) {
			continue
		}
		out = append(out, Quote{Symbol: sym, Price: item.value, UpdatedAt: item.storedAt})
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// SetClock 替换时间源（测试用）
func (pb *PriceBoard) SetClock(now func() time.Time) {
	pb.cache.SetClock(now)
}

// Close 停止后台清理
func (pb *PriceBoard) Close() {
	pb.cache.Close()
}
