// Package contentcache maps interaction path keys to fully generated screens.
package contentcache

import (
	"sort"
	"sync"
	"time"
)

// Entry is one cached screen and its last-write marker.
type Entry struct {
	Content   string    `json:"content"`
	WrittenAt time.Time `json:"written_at"`
	Writes    int       `json:"writes"`
}

// Cache has session lifetime and no eviction. The stateless app never reads
// or writes entries, so every visit to it regenerates.
type Cache struct {
	mu           sync.RWMutex
	entries      map[string]Entry
	statelessApp string
	now          func() time.Time
}

func New(statelessApp string) *Cache {
	return &Cache{
		entries:      make(map[string]Entry),
		statelessApp: statelessApp,
		now:          time.Now,
	}
}

// Get returns the content for key. It always misses for the stateless app.
func (c *Cache) Get(key, appID string) (string, bool) {
	if c.excluded(appID) {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return "", false
	}
	return e.Content, true
}

// Put stores content under key when it differs from what is stored. It
// reports whether a write happened.
func (c *Cache) Put(key, appID, content string) bool {
	if c.excluded(appID) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.entries[key]
	if ok && prev.Content == content {
		return false
	}
	c.entries[key] = Entry{
		Content:   content,
		WrittenAt: c.now().UTC(),
		Writes:    prev.Writes + 1,
	}
	return true
}

// Lookup returns the raw entry regardless of app exclusion.
func (c *Cache) Lookup(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e, ok
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Keys returns the stored keys in lexical order.
func (c *Cache) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (c *Cache) StatelessApp() string { return c.statelessApp }

func (c *Cache) excluded(appID string) bool {
	return c.statelessApp != "" && appID == c.statelessApp
}
