package cache

import (
	"context"
	"crypto/sha1" //nolint:gosec // G505: sha1 for cache keys, not security
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"modelgate/internal/core"
)

// LRUCache is a thread-safe LRU cache with expiration
type LRUCache struct {
	capacity int
	items    map[string]*CacheItem
	mu       sync.RWMutex
	head     *CacheItem
	tail     *CacheItem
	ctx      context.Context
	cancel   context.CancelFunc
}

// CacheItem represents an item in the cache with LRU links
type CacheItem struct {
	Value      any
	Expiration int64
	key        string
	prev       *CacheItem
	next       *CacheItem
}

// NewCache creates a new LRU Cache
func NewCache() *LRUCache {
	ctx, cancel := context.WithCancel(context.Background())
	c := &LRUCache{
		capacity: core.CacheDefaultCapacity,
		items:    make(map[string]*CacheItem),
		ctx:      ctx,
		cancel:   cancel,
	}

	c.head = &CacheItem{}
	c.tail = &CacheItem{}
	c.head.next = c.tail
	c.tail.prev = c.head

	go c.startCleanupWorker()
	return c
}

func (c *LRUCache) startCleanupWorker() {
	ticker := time.NewTicker(core.CacheCleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanupExpired()
		case <-c.ctx.Done():
			return
		}
	}
}

// Stop terminates the cache cleanup worker goroutine.
func (c *LRUCache) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Set stores a value in the cache with the given TTL.
func (c *LRUCache) Set(key string, value any, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if item, exists := c.items[key]; exists {
		item.Value = value
		item.Expiration = time.Now().Add(duration).UnixNano()
		c.moveToFront(item)
		return
	}

	item := &CacheItem{
		Value:      value,
		Expiration: time.Now().Add(duration).UnixNano(),
		key:        key,
	}

	c.addToFront(item)
	c.items[key] = item

	if len(c.items) > c.capacity {
		c.evict()
	}
}

// Get retrieves a value from the cache, returning false if not found or expired.
func (c *LRUCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	item, found := c.items[key]
	if !found {
		return nil, false
	}

	if time.Now().UnixNano() > item.Expiration {
		c.remove(item)
		delete(c.items, key)
		return nil, false
	}

	c.moveToFront(item)
	return item.Value, true
}

func (c *LRUCache) addToFront(item *CacheItem) {
	item.next = c.head.next
	item.prev = c.head
	c.head.next.prev = item
	c.head.next = item
}

func (c *LRUCache) moveToFront(item *CacheItem) {
	c.remove(item)
	c.addToFront(item)
}

func (c *LRUCache) remove(item *CacheItem) {
	item.prev.next = item.next
	item.next.prev = item.prev
}

func (c *LRUCache) evict() {
	if c.tail.prev == c.head {
		return
	}
	item := c.tail.prev
	c.remove(item)
	delete(c.items, item.key)
}

func (c *LRUCache) cleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now().UnixNano()
	for key, item := range c.items {
		if now > item.Expiration {
			c.remove(item)
			delete(c.items, key)
		}
	}
}

// Clear clears all cache items
func (c *LRUCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.head.next = c.tail
	c.tail.prev = c.head
	c.items = make(map[string]*CacheItem)
}

// CacheService bundles the general-purpose cache with the rendered
// system prompt cache.
type CacheService struct {
	general *LRUCache
	prompts *LRUCache
}

// NewCacheService creates a new CacheService.
func NewCacheService() *CacheService {
	return &CacheService{
		general: NewCache(),
		prompts: NewCache(),
	}
}

// GetPrompt retrieves a rendered system prompt from the prompt cache.
func (cs *CacheService) GetPrompt(key string) (string, bool) {
	cached, found := cs.prompts.Get(key)
	if !found {
		return "", false
	}

	prompt, ok := cached.(string)
	if !ok {
		return "", false
	}

	return prompt, true
}

// SetPrompt stores a rendered system prompt in the prompt cache.
func (cs *CacheService) SetPrompt(key, prompt string, duration time.Duration) {
	cs.prompts.Set(key, prompt, duration)
}

// ClearPrompts removes all items from the prompt cache.
func (cs *CacheService) ClearPrompts() {
	cs.prompts.Clear()
}

// Get retrieves a value from the general cache.
func (cs *CacheService) Get(key string) (any, bool) {
	return cs.general.Get(key)
}

// Set stores a value in the general cache.
func (cs *CacheService) Set(key string, value any, duration time.Duration) {
	cs.general.Set(key, value, duration)
}

// Stop stops both caches' cleanup workers.
func (cs *CacheService) Stop() {
	cs.general.Stop()
	cs.prompts.Stop()
}

// Close implements io.Closer for symmetric shutdown handling.
func (cs *CacheService) Close() error {
	cs.Stop()
	return nil
}

// GeneratePromptCacheKey builds a stable key for a prompt override plus
// user context combination.
func GeneratePromptCacheKey(systemPrompt string, uc *core.UserContext) string {
	h := sha1.New() //nolint:gosec // G401: cache key, not security
	_, _ = fmt.Fprintf(h, "%s|%s", core.CacheKeyVersion, systemPrompt)
	if uc != nil {
		_, _ = fmt.Fprintf(h, "|%s|%s|%s|%s", uc.Name, uc.Company, uc.Role, uc.Tier)
	}
	return "prompt:" + hex.EncodeToString(h.Sum(nil))
}

// TruncateCacheKey shortens a cache key for log output.
func TruncateCacheKey(key string, maxLen int) string {
	if len(key) <= maxLen {
		return key
	}
	return key[:maxLen] + "..."
}
