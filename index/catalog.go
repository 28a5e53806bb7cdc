package index

import (
	"sync"
	"time"
)

// Catalog holds the currently published NEODatabase. Readers get a consistent
// snapshot; an import replaces the whole database at once.
type Catalog struct {
	mu       sync.RWMutex
	db       *NEODatabase
	loadedAt time.Time
	version  time.Time
}

// NewCatalog returns a catalog publishing db, which may be nil
func NewCatalog(db *NEODatabase) *Catalog {
	c := &Catalog{}
	if db != nil {
		c.Swap(db)
	}
	return c
}

// Current returns the published database, or nil before the first load
func (c *Catalog) Current() *NEODatabase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db
}

// LoadedAt returns when the current database was published
func (c *Catalog) LoadedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.loadedAt
}

// Swap publishes db unconditionally, versioned as of now
func (c *Catalog) Swap(db *NEODatabase) {
	now := time.Now()
	c.mu.Lock()
	c.db = db
	c.loadedAt = now
	c.version = now
	c.mu.Unlock()
}

// Publish replaces the database only if version is newer than the published one.
// Imports pass their submission time so a slow older import cannot overwrite a newer one.
func (c *Catalog) Publish(db *NEODatabase, version time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db != nil && !version.After(c.version) {
		return false
	}
	c.db = db
	c.loadedAt = time.Now()
	c.version = version
	return true
}
