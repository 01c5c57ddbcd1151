// Package cache holds computed report pages keyed by everything that
// affects their content, so a definition change or different view
// parameters never serve stale rows.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rpattn/reportql/internal/domain"
	"github.com/rpattn/reportql/internal/pager"
)

const (
	// DefaultTTL is how long a computed page stays valid.
	DefaultTTL = 5 * time.Minute
	// DefaultSize caps how many pages the cache retains.
	DefaultSize = 1024
)

// Key identifies one cached page. Two executions share an entry only when
// the report, page coordinates, sort order and filter set all match.
type Key struct {
	ReportID          uuid.UUID
	Page              int
	PageSize          int
	SortField         string
	SortDirection     string
	FilterFingerprint string
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d:%s:%s:%s",
		k.ReportID, k.Page, k.PageSize, k.SortField, k.SortDirection, k.FilterFingerprint)
}

// FingerprintFilters hashes a filter set into a stable string so the key
// stays bounded no matter how many filters a report carries.
func FingerprintFilters(filters []domain.ReportFilter) string {
	type entry struct {
		FieldPath string `json:"field_path"`
		Operator  string `json:"operator"`
		Value     any    `json:"value"`
	}
	entries := make([]entry, 0, len(filters))
	for _, f := range filters {
		entries = append(entries, entry{
			FieldPath: f.FieldPath,
			Operator:  string(f.Operator),
			Value:     f.Value,
		})
	}
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Sprintf("unhashable:%d", len(filters))
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// ResultCache is a TTL-bounded LRU of computed report pages.
type ResultCache struct {
	lru *expirable.LRU[string, pager.Page]
}

// New builds a cache with the given capacity and entry TTL; zero values
// fall back to the defaults.
func New(size int, ttl time.Duration) *ResultCache {
	if size <= 0 {
		size = DefaultSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ResultCache{lru: expirable.NewLRU[string, pager.Page](size, nil, ttl)}
}

// Get returns the cached page for the key, if still valid.
func (c *ResultCache) Get(key Key) (pager.Page, bool) {
	return c.lru.Get(key.String())
}

// Put stores a computed page under the key.
func (c *ResultCache) Put(key Key, page pager.Page) {
	c.lru.Add(key.String(), page)
}

// Invalidate drops every entry for the given report, used after any
// definition mutation. The LRU has no prefix scan so this walks the keys.
func (c *ResultCache) Invalidate(reportID uuid.UUID) {
	prefix := reportID.String() + ":"
	for _, k := range c.lru.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			c.lru.Remove(k)
		}
	}
}

// Purge empties the cache.
func (c *ResultCache) Purge() {
	c.lru.Purge()
}

// GetOrCompute returns the cached page for the key or computes, stores and
// returns it. With bypass set the computation always runs and refreshes
// the entry.
func (c *ResultCache) GetOrCompute(key Key, bypass bool, compute func() (pager.Page, error)) (pager.Page, bool, error) {
	if !bypass {
		if page, ok := c.Get(key); ok {
			return page, true, nil
		}
	}
	page, err := compute()
	if err != nil {
		return pager.Page{}, false, err
	}
	c.Put(key, page)
	return page, false, nil
}
