package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// A Cache is a JSON-persisted map of named string pools. It lets separate
// runs of the loader share exactly the same namespace and pod names, so data
// sent on different days lands in the same streams.
type Cache struct {
	lock      sync.RWMutex
	store     map[string][]string
	storePath string
}

// NewCache returns a properly configured cache with the initial size provided
// and a fully-qualified path for file storage.
func NewCache(size int, storePath string) *Cache {
	return &Cache{
		store:     make(map[string][]string, size),
		storePath: storePath,
	}
}

func (c *Cache) Add(key string, values []string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	c.store[key] = values
}

func (c *Cache) Get(key string) []string {
	c.lock.RLock()
	defer c.lock.RUnlock()

	return c.store[key]
}

func (c *Cache) Del(key string) {
	c.lock.Lock()
	defer c.lock.Unlock()

	delete(c.store, key)
}

// Load reads the cache from the file back into memory
func (c *Cache) Load() error {
	c.lock.Lock()
	defer c.lock.Unlock()

	data, err := os.ReadFile(c.storePath)
	if err != nil {
		return fmt.Errorf("failed to load cache from %s: %w", c.storePath, err)
	}

	err = json.Unmarshal(data, &c.store)
	if err != nil {
		return fmt.Errorf("failed to unmarshal cache from %s: %w", c.storePath, err)
	}

	return nil
}

// Persist stores the cache out to a file
func (c *Cache) Persist() error {
	c.lock.RLock()
	defer c.lock.RUnlock()

	data, err := json.Marshal(c.store)
	if err != nil {
		return fmt.Errorf("failed to marshal cache: %w", err)
	}

	err = os.WriteFile(c.storePath, data, 0644)
	if err != nil {
		return fmt.Errorf("failed to persist to %s: %w", c.storePath, err)
	}

	return nil
}
