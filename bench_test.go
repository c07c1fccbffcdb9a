package warden

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/syssam/warden/dialect"
	"github.com/syssam/warden/dialect/sql"
)

func benchSession(b *testing.B, opts ...SessionOption) *Session {
	b.Helper()
	db, _, err := sqlmock.New()
	require.NoError(b, err)
	b.Cleanup(func() { _ = db.Close() })
	s, err := NewSession(sql.OpenDB(dialect.SQLite, db), opts...)
	require.NoError(b, err)
	return s
}

func BenchmarkCompile(b *testing.B) {
	s := benchSession(b, WithBadge(7))
	q := s.Query(doc).Where(sql.GT("docs.id", 0)).OrderBy("id").Limit(10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := q.SQL(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkCompileCached(b *testing.B) {
	s := benchSession(b, WithBadge(7), WithStatementCache(NewMemoryStatementCache()))
	q := s.Query(doc).Where(sql.GT("docs.id", 0)).OrderBy("id").Limit(10)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := q.SQL(); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkRecordGet(b *testing.B) {
	s := &Session{bctx: NewBadgeContext(2), name: dialect.SQLite}
	r := NewRecord(profile)
	_ = r.Set("owner", 1)
	_ = r.Set("email", "a@b.c")
	r.attach(s)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.Get("email"); err != nil {
			b.Fatal(err)
		}
	}
}
