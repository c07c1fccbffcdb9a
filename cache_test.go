package warden

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgeFingerprint(t *testing.T) {
	assert.Equal(t, "allow", BadgeFingerprint(Allow))
	assert.Equal(t, "allow", BadgeFingerprint(nil))
	assert.Equal(t, "deny", BadgeFingerprint(Deny))
	assert.Equal(t, "int:7", BadgeFingerprint(7))
	assert.NotEqual(t, BadgeFingerprint(7), BadgeFingerprint("7"))
}

func TestCacheKeyString(t *testing.T) {
	k1 := CacheKey{Table: "docs", Op: "select", Shape: "SELECT *", Badge: "int:1"}
	k2 := k1
	k2.Badge = "int:2"
	assert.NotEqual(t, k1.String(), k2.String())
}

func TestMemoryStatementCacheDo(t *testing.T) {
	cache := NewMemoryStatementCache()
	key := CacheKey{Table: "docs", Op: "select", Shape: "s", Badge: "int:1"}

	builds := 0
	build := func() (CompiledStatement, error) {
		builds++
		return CompiledStatement{Query: "SELECT 1", Args: []any{int64(7)}}, nil
	}

	stmt, err := cache.Do(key, build)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", stmt.Query)
	assert.Equal(t, 1, builds)
	assert.Equal(t, 1, cache.Len())

	// Second call is a hit; the statement round-trips intact.
	stmt, err = cache.Do(key, build)
	require.NoError(t, err)
	assert.Equal(t, "SELECT 1", stmt.Query)
	assert.Equal(t, []any{int64(7)}, stmt.Args)
	assert.Equal(t, 1, builds)
}

func TestMemoryStatementCacheDoesNotStoreErrors(t *testing.T) {
	cache := NewMemoryStatementCache()
	key := CacheKey{Table: "docs", Op: "select", Shape: "s", Badge: "deny"}

	boom := errors.New("build failed")
	_, err := cache.Do(key, func() (CompiledStatement, error) {
		return CompiledStatement{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, cache.Len())

	stmt, err := cache.Do(key, func() (CompiledStatement, error) {
		return CompiledStatement{Query: "ok"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", stmt.Query)
	assert.Equal(t, 1, cache.Len())
}

func TestMemoryStatementCacheIsBadgeScoped(t *testing.T) {
	assert.True(t, NewMemoryStatementCache().BadgeScoped())
}
