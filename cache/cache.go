// Package cache is the two-tier search result cache (§4.5): an in-process
// O(1) LRU backed by a doubly linked list, with an optional Redis tier for
// cross-instance sharing. Keys are normalized-query hashes; values are
// LotResult slices with a TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/zakupai/search-core/types"
	"go.uber.org/zap"
)

// ErrMiss is returned by Get when no tier holds the key.
var ErrMiss = errors.New("cache miss")

// Config tunes the two tiers independently.
type Config struct {
	LocalMaxSize int
	LocalTTL     time.Duration
	RedisTTL     time.Duration
	EnableLocal  bool
	EnableRedis  bool
}

// DefaultConfig matches §6's cache_ttl_s default of 300 seconds for both tiers.
func DefaultConfig() Config {
	return Config{
		LocalMaxSize: 2000,
		LocalTTL:     5 * time.Minute,
		RedisTTL:     5 * time.Minute,
		EnableLocal:  true,
		EnableRedis:  true,
	}
}

// SearchCache is the multi-level cache consumed by the orchestrator.
type SearchCache struct {
	local  *lruCache
	redis  *redis.Client
	config Config
	logger *zap.Logger
}

// New builds a SearchCache. rdb may be nil, in which case config.EnableRedis
// is forced off.
func New(rdb *redis.Client, config Config, logger *zap.Logger) *SearchCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rdb == nil {
		config.EnableRedis = false
	}

	var local *lruCache
	if config.EnableLocal {
		local = newLRUCache(config.LocalMaxSize)
	}

	return &SearchCache{
		local:  local,
		redis:  rdb,
		config: config,
		logger: logger.With(zap.String("component", "search_cache")),
	}
}

// Key hashes a normalized query string into a stable cache key.
func Key(normalizedQuery string) string {
	sum := sha256.Sum256([]byte(normalizedQuery))
	return "search:" + hex.EncodeToString(sum[:16])
}

// Get checks the local tier then the Redis tier, backfilling local on a
// Redis hit.
func (c *SearchCache) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	if c.config.EnableLocal && c.local != nil {
		if entry, ok := c.local.get(key); ok {
			c.logger.Debug("local cache hit", zap.String("key", key))
			return entry, nil
		}
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := c.redis.Get(ctx, c.redisKey(key)).Bytes()
		if err == nil {
			var entry types.CacheEntry
			if err := json.Unmarshal(data, &entry); err == nil {
				if c.config.EnableLocal && c.local != nil {
					c.local.set(key, &entry, c.config.LocalTTL)
				}
				c.logger.Debug("redis cache hit", zap.String("key", key))
				return &entry, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("redis get error", zap.Error(err))
		}
	}

	return nil, ErrMiss
}

// Set writes both tiers with the configured TTL, stamping CreatedAt/TTLSecs.
func (c *SearchCache) Set(ctx context.Context, key string, results []types.LotResult) error {
	entry := &types.CacheEntry{
		Key:       key,
		Value:     results,
		CreatedAt: time.Now(),
		TTLSecs:   int(c.config.RedisTTL.Seconds()),
	}

	if c.config.EnableLocal && c.local != nil {
		c.local.set(key, entry, c.config.LocalTTL)
	}

	if c.config.EnableRedis && c.redis != nil {
		data, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := c.redis.Set(ctx, c.redisKey(key), data, c.config.RedisTTL).Err(); err != nil {
			c.logger.Warn("redis set error", zap.Error(err))
			return err
		}
	}
	return nil
}

// Invalidate removes key from both tiers.
func (c *SearchCache) Invalidate(ctx context.Context, key string) error {
	if c.local != nil {
		c.local.delete(key)
	}
	if c.config.EnableRedis && c.redis != nil {
		return c.redis.Del(ctx, c.redisKey(key)).Err()
	}
	return nil
}

func (c *SearchCache) redisKey(key string) string {
	return "search_core:cache:" + key
}

// lruCache is an O(1) doubly-linked-list LRU with per-entry TTL.
type lruCache struct {
	mu       sync.RWMutex
	capacity int
	items    map[string]*lruNode
	head     *lruNode
	tail     *lruNode
}

type lruNode struct {
	key       string
	entry     *types.CacheEntry
	expiresAt time.Time
	prev      *lruNode
	next      *lruNode
}

func newLRUCache(capacity int) *lruCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &lruCache{capacity: capacity, items: make(map[string]*lruNode)}
}

func (c *lruCache) get(key string) (*types.CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	node, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(node.expiresAt) {
		c.removeNode(node)
		delete(c.items, key)
		return nil, false
	}

	c.moveToHead(node)
	return node.entry, true
}

func (c *lruCache) set(key string, entry *types.CacheEntry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if node, ok := c.items[key]; ok {
		node.entry = entry
		node.expiresAt = time.Now().Add(ttl)
		c.moveToHead(node)
		return
	}

	if len(c.items) >= c.capacity {
		c.evictTail()
	}

	node := &lruNode{key: key, entry: entry, expiresAt: time.Now().Add(ttl)}
	c.items[key] = node
	c.addToHead(node)
}

func (c *lruCache) delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if node, ok := c.items[key]; ok {
		c.removeNode(node)
		delete(c.items, key)
	}
}

func (c *lruCache) addToHead(node *lruNode) {
	node.prev = nil
	node.next = c.head
	if c.head != nil {
		c.head.prev = node
	}
	c.head = node
	if c.tail == nil {
		c.tail = node
	}
}

func (c *lruCache) removeNode(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		c.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		c.tail = node.prev
	}
}

func (c *lruCache) moveToHead(node *lruNode) {
	if node == c.head {
		return
	}
	c.removeNode(node)
	c.addToHead(node)
}

func (c *lruCache) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.items, c.tail.key)
	c.removeNode(c.tail)
}
