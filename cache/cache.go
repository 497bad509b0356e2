package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"sync"
	"time"

	"github.com/use-agent/tietpapers/models"
)

// entry holds a cached response with its creation timestamp.
type entry struct {
	response  models.RunResponse
	createdAt time.Time
}

// Cache keeps recent wrapper run outputs so an identical request inside the
// max-age window is answered without launching another browser.
// It is safe for concurrent use.
type Cache struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	ttl        time.Duration
}

// New creates a Cache holding at most maxEntries outputs. Entries older than
// ttl are evicted by a background goroutine; ttl <= 0 disables the sweep.
func New(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}

	if ttl > 0 {
		go c.cleanupLoop()
	}
	return c
}

// Key derives a cache key from the request fields that affect the output.
func Key(req *models.RunRequest) string {
	h := sha256.New()
	h.Write([]byte(req.Option))
	h.Write([]byte("|"))
	h.Write([]byte(req.Value))
	h.Write([]byte("|"))
	h.Write([]byte(strconv.FormatBool(req.MergePdfs)))
	h.Write([]byte("|"))
	h.Write([]byte(req.ExamFilter))
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns a copy of the cached response if it exists and is younger
// than maxAge. If maxAge <= 0, no lookup is performed.
func (c *Cache) Get(key string, maxAge time.Duration) (models.RunResponse, bool) {
	if maxAge <= 0 {
		return models.RunResponse{}, false
	}

	c.mu.RLock()
	e, ok := c.store[key]
	c.mu.RUnlock()

	if !ok || time.Since(e.createdAt) > maxAge {
		return models.RunResponse{}, false
	}
	return e.response, true
}

// Set stores a response. If the cache is at capacity, a random entry is
// evicted to make room.
func (c *Cache) Set(key string, resp models.RunResponse) {
	if c.maxEntries <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Map iteration order is random.
	if _, exists := c.store[key]; !exists && len(c.store) >= c.maxEntries {
		for k := range c.store {
			delete(c.store, k)
			break
		}
	}

	c.store[key] = &entry{
		response:  resp,
		createdAt: time.Now(),
	}
}

// Len reports the number of stored entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.store)
}

func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(c.ttl)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-c.ttl)
		c.mu.Lock()
		for k, e := range c.store {
			if e.createdAt.Before(cutoff) {
				delete(c.store, k)
			}
		}
		c.mu.Unlock()
	}
}
