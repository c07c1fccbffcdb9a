package sql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/warden/dialect"
)

func TestSelectorQuery(t *testing.T) {
	tests := []struct {
		name      string
		input     *Selector
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "All",
			input:     Select().From(Table("users")),
			wantQuery: "SELECT * FROM `users`",
		},
		{
			name: "Columns",
			input: Select("users.id", "users.name").
				From(Table("users")),
			wantQuery: "SELECT `users`.`id`, `users`.`name` FROM `users`",
		},
		{
			name: "Where",
			input: Select("id").From(Table("users")).
				Where(EQ("name", "a")).
				Where(GT("age", 18)),
			wantQuery: "SELECT `id` FROM `users` WHERE (`name` = ?) AND (`age` > ?)",
			wantArgs:  []any{"a", 18},
		},
		{
			name: "Join",
			input: Select("users.id").From(Table("users")).
				Join(Table("pets")).
				On("users.id", "pets.owner_id"),
			wantQuery: "SELECT `users`.`id` FROM `users` JOIN `pets` ON `users`.`id` = `pets`.`owner_id`",
		},
		{
			name: "LeftJoinWithAlias",
			input: Select("u.id").From(Table("users").As("u")).
				LeftJoin(Table("pets").As("p")).
				On("u.id", "p.owner_id"),
			wantQuery: "SELECT `u`.`id` FROM `users` AS `u` LEFT JOIN `pets` AS `p` ON `u`.`id` = `p`.`owner_id`",
		},
		{
			name: "MultiFrom",
			input: Select("a.id", "b.id").
				From(Table("users").As("a")).
				From(Table("groups").As("b")),
			wantQuery: "SELECT `a`.`id`, `b`.`id` FROM `users` AS `a`, `groups` AS `b`",
		},
		{
			name: "OrderLimitOffset",
			input: Select("id").From(Table("users")).
				OrderBy("name").Limit(10).Offset(5),
			wantQuery: "SELECT `id` FROM `users` ORDER BY `name` LIMIT 10 OFFSET 5",
		},
		{
			name: "DistinctGroupBy",
			input: Select("owner").From(Table("docs")).
				Distinct().GroupBy("owner"),
			wantQuery: "SELECT DISTINCT `owner` FROM `docs` GROUP BY `owner`",
		},
		{
			name: "Expression",
			input: Select("COUNT(*)").
				From(Table("docs")).
				Where(In("owner", 1, 2)),
			wantQuery: "SELECT COUNT(*) FROM `docs` WHERE `owner` IN (?, ?)",
			wantArgs:  []any{1, 2},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := tt.input.Query()
			assert.Equal(t, tt.wantQuery, query)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestSelectorPostgresPlaceholders(t *testing.T) {
	query, args := Select("id").From(Table("users")).
		SetDialect(dialect.Postgres).
		Where(And(EQ("name", "a"), EQ("age", 1))).
		Query()
	assert.Equal(t, `SELECT "id" FROM "users" WHERE ("name" = $1) AND ("age" = $2)`, query)
	assert.Equal(t, []any{"a", 1}, args)
}

func TestPredicates(t *testing.T) {
	tests := []struct {
		input     *Predicate
		wantQuery string
		wantArgs  []any
	}{
		{NEQ("a", 1), "`a` <> ?", []any{1}},
		{GTE("a", 1), "`a` >= ?", []any{1}},
		{LT("a", 1), "`a` < ?", []any{1}},
		{LTE("a", 1), "`a` <= ?", []any{1}},
		{Like("a", "x%"), "`a` LIKE ?", []any{"x%"}},
		{IsNull("a"), "`a` IS NULL", nil},
		{NotNull("a"), "`a` IS NOT NULL", nil},
		{In("a"), "FALSE", nil},
		{NotIn("a"), "TRUE", nil},
		{ColumnsEQ("t1.a", "t2.b"), "`t1`.`a` = `t2`.`b`", nil},
		{Not(EQ("a", 1)), "NOT (`a` = ?)", []any{1}},
		{Or(EQ("a", 1), EQ("b", 2)), "(`a` = ?) OR (`b` = ?)", []any{1, 2}},
		{ExprP("a = ? + ?", 1, 2), "a = ? + ?", []any{1, 2}},
	}
	for _, tt := range tests {
		query, args := tt.input.Query()
		assert.Equal(t, tt.wantQuery, query)
		assert.Equal(t, tt.wantArgs, args)
	}
}

func TestSelectorClone(t *testing.T) {
	base := Select("id").From(Table("users")).Where(EQ("a", 1))
	clone := base.Clone().Where(EQ("b", 2)).OrderBy("id")

	baseQuery, baseArgs := base.Query()
	assert.Equal(t, "SELECT `id` FROM `users` WHERE `a` = ?", baseQuery)
	assert.Equal(t, []any{1}, baseArgs)

	cloneQuery, cloneArgs := clone.Query()
	assert.Equal(t, "SELECT `id` FROM `users` WHERE (`a` = ?) AND (`b` = ?) ORDER BY `id`", cloneQuery)
	assert.Equal(t, []any{1, 2}, cloneArgs)
}

func TestSelectorCountQuery(t *testing.T) {
	query, args := Select("id").From(Table("users")).
		Where(EQ("a", 1)).Limit(3).
		CountQuery()
	assert.Equal(t, "SELECT COUNT(*) FROM (SELECT `id` FROM `users` WHERE `a` = ? LIMIT 3) AS count_rows", query)
	assert.Equal(t, []any{1}, args)
}

func TestUpdateBuilder(t *testing.T) {
	query, args := Update("users").
		Set("name", "a").Set("age", 2).
		Where(EQ("id", 1)).
		Query()
	assert.Equal(t, "UPDATE `users` SET `name` = ?, `age` = ? WHERE `id` = ?", query)
	assert.Equal(t, []any{"a", 2, 1}, args)
}

func TestDeleteBuilder(t *testing.T) {
	query, args := Delete("users").Where(EQ("id", 1)).Query()
	assert.Equal(t, "DELETE FROM `users` WHERE `id` = ?", query)
	assert.Equal(t, []any{1}, args)
}

func TestInsertBuilder(t *testing.T) {
	query, args := Insert("users").Set("name", "a").Set("age", 1).Query()
	assert.Equal(t, "INSERT INTO `users` (`name`, `age`) VALUES (?, ?)", query)
	assert.Equal(t, []any{"a", 1}, args)

	query, args = Insert("users").Query()
	assert.Equal(t, "INSERT INTO `users` DEFAULT VALUES", query)
	assert.Empty(t, args)
}

func TestSelectTable(t *testing.T) {
	tbl := Table("users").As("u")
	assert.Equal(t, "users", tbl.Name())
	assert.Equal(t, "u", tbl.Alias())
	assert.Equal(t, "u.id", tbl.C("id"))
	assert.Equal(t, []string{"u.id", "u.name"}, tbl.Columns("id", "name"))
	require.Equal(t, "users", Table("users").Alias())
}

func TestBuilderIdent(t *testing.T) {
	b := NewBuilder(dialect.SQLite)
	b.Ident("users.name")
	assert.Equal(t, "`users`.`name`", b.String())

	b = NewBuilder(dialect.SQLite)
	b.Ident("COUNT(*)")
	assert.Equal(t, "COUNT(*)", b.String())

	b = NewBuilder(dialect.SQLite)
	b.Ident("1")
	assert.Equal(t, "1", b.String())
}
