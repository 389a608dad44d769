package embedding

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/patrickmn/go-cache"
)

// Cache keeps embedding vectors in process memory. It is shared by all runs and safe
// for concurrent use.
type Cache struct {
	store *cache.Cache
}

func NewCache(ttl, cleanupInterval time.Duration) *Cache {
	return &Cache{store: cache.New(ttl, cleanupInterval)}
}

// Key identifies a vector by backend, model and input text.
func Key(baseURL, model, text string) string {
	sum := sha256.Sum256([]byte(baseURL + "|" + model + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (c *Cache) Get(key string) ([]float32, bool) {
	v, ok := c.store.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	return vec, ok
}

// Set stores a vector with the default expiration. Empty vectors are never stored.
func (c *Cache) Set(key string, vec []float32) {
	if len(vec) == 0 {
		return
	}
	c.store.SetDefault(key, vec)
}

func (c *Cache) Len() int {
	return c.store.ItemCount()
}
