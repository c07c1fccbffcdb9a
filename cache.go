package warden

import (
	"fmt"
	"sync"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/singleflight"
)

// CompiledStatement is a fully compiled, filter-injected statement.
type CompiledStatement struct {
	Query string
	Args  []any
}

// CacheKey identifies a compiled statement. The badge fingerprint is part
// of the key: a statement compiled for one badge embeds that badge's
// filters, so reusing it for a different badge would silently apply the
// wrong restrictions. Caching keyed by shape alone is exactly the baked
// query failure mode this layer rejects at session construction.
type CacheKey struct {
	Table string
	Op    string
	Shape string
	Badge string
}

// String returns the string form of the key.
func (k CacheKey) String() string {
	return k.Table + "\x00" + k.Op + "\x00" + k.Shape + "\x00" + k.Badge
}

// BadgeFingerprint returns the cache-key fragment for a badge. Actor
// badges are fingerprinted by dynamic type and value.
func BadgeFingerprint(b Badge) string {
	switch {
	case isAllow(b):
		return "allow"
	case b == Deny:
		return "deny"
	default:
		return fmt.Sprintf("%T:%v", b, b)
	}
}

// StatementCache caches compiled statements across queries, and possibly
// across sessions. Implementations must partition entries by badge;
// BadgeScoped is how a session verifies that at construction time.
type StatementCache interface {
	// Do returns the cached statement for key, or builds, stores and
	// returns it. Build errors are returned without being stored.
	Do(key CacheKey, build func() (CompiledStatement, error)) (CompiledStatement, error)

	// BadgeScoped reports whether entries are partitioned by badge.
	// Sessions reject caches that report false.
	BadgeScoped() bool
}

// MemoryStatementCache is an in-memory, badge-scoped StatementCache.
// Entries are stored msgpack-encoded; concurrent builds of the same key
// are collapsed with singleflight, so a cache shared by many sessions
// compiles each (shape, badge) pair once.
type MemoryStatementCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
	group   singleflight.Group
}

// NewMemoryStatementCache returns an empty MemoryStatementCache.
func NewMemoryStatementCache() *MemoryStatementCache {
	return &MemoryStatementCache{entries: make(map[string][]byte)}
}

// BadgeScoped reports that entries are partitioned by badge.
func (c *MemoryStatementCache) BadgeScoped() bool { return true }

// Len returns the number of cached statements.
func (c *MemoryStatementCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Do implements StatementCache.
func (c *MemoryStatementCache) Do(key CacheKey, build func() (CompiledStatement, error)) (CompiledStatement, error) {
	k := key.String()
	c.mu.RLock()
	enc, ok := c.entries[k]
	c.mu.RUnlock()
	if ok {
		return decodeStatement(enc)
	}
	v, err, _ := c.group.Do(k, func() (any, error) {
		stmt, err := build()
		if err != nil {
			return CompiledStatement{}, err
		}
		enc, err := msgpack.Marshal(stmt)
		if err != nil {
			return CompiledStatement{}, err
		}
		c.mu.Lock()
		c.entries[k] = enc
		c.mu.Unlock()
		return stmt, nil
	})
	if err != nil {
		return CompiledStatement{}, err
	}
	return v.(CompiledStatement), nil
}

func decodeStatement(enc []byte) (CompiledStatement, error) {
	var stmt CompiledStatement
	if err := msgpack.Unmarshal(enc, &stmt); err != nil {
		return CompiledStatement{}, fmt.Errorf("warden: decode cached statement: %w", err)
	}
	return stmt, nil
}
