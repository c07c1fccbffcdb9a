package sql

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/syssam/warden/dialect"
)

// Querier wraps the Query method. It is implemented by all statement
// builders in this package.
type Querier interface {
	// Query returns the query representation of the element
	// and its arguments (if any).
	Query() (string, []any)
}

// Builder is the base SQL builder. It accumulates statement text and
// arguments and renders placeholders according to the configured dialect.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// NewBuilder returns a Builder for the given dialect.
func NewBuilder(dialect string) *Builder {
	return &Builder{dialect: dialect}
}

// Dialect returns the dialect of the builder.
func (b *Builder) Dialect() string { return b.dialect }

// WriteString appends raw text to the statement.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Ident appends a quoted identifier to the statement. Identifiers that
// already contain a quote or a function call, and numeric literals, are
// written as-is.
func (b *Builder) Ident(s string) *Builder {
	switch {
	case s == "*" || strings.ContainsAny(s, "`\"() "):
		b.sb.WriteString(s)
	case s != "" && s[0] >= '0' && s[0] <= '9':
		b.sb.WriteString(s)
	case strings.Contains(s, "."):
		parts := strings.Split(s, ".")
		for i, p := range parts {
			if i > 0 {
				b.sb.WriteByte('.')
			}
			b.quote(p)
		}
	default:
		b.quote(s)
	}
	return b
}

func (b *Builder) quote(s string) {
	q := "`"
	if b.dialect == dialect.Postgres {
		q = `"`
	}
	b.sb.WriteString(q)
	b.sb.WriteString(s)
	b.sb.WriteString(q)
}

// Arg appends an argument placeholder to the statement and records
// the argument value.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteString("$" + strconv.Itoa(len(b.args)))
	} else {
		b.sb.WriteByte('?')
	}
	return b
}

// Args appends a comma-separated list of argument placeholders.
func (b *Builder) Args(vs ...any) *Builder {
	for i, v := range vs {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Arg(v)
	}
	return b
}

// String returns the accumulated statement text.
func (b *Builder) String() string { return b.sb.String() }

// Predicate is a where-clause predicate. Predicates compose with And,
// Or and Not, and render themselves into a Builder at query time.
type Predicate struct {
	fns []func(*Builder)
}

// P returns a new empty predicate.
func P() *Predicate { return &Predicate{} }

func (p *Predicate) append(fn func(*Builder)) *Predicate {
	p.fns = append(p.fns, fn)
	return p
}

func (p *Predicate) build(b *Builder) {
	for _, fn := range p.fns {
		fn(b)
	}
}

// Query returns the predicate text and arguments for the default dialect.
func (p *Predicate) Query() (string, []any) {
	b := NewBuilder("")
	p.build(b)
	return b.String(), b.args
}

func binary(col, op string, v any) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" " + op + " ").Arg(v)
	})
}

// EQ returns a column = value predicate.
func EQ(col string, v any) *Predicate { return binary(col, "=", v) }

// NEQ returns a column <> value predicate.
func NEQ(col string, v any) *Predicate { return binary(col, "<>", v) }

// GT returns a column > value predicate.
func GT(col string, v any) *Predicate { return binary(col, ">", v) }

// GTE returns a column >= value predicate.
func GTE(col string, v any) *Predicate { return binary(col, ">=", v) }

// LT returns a column < value predicate.
func LT(col string, v any) *Predicate { return binary(col, "<", v) }

// LTE returns a column <= value predicate.
func LTE(col string, v any) *Predicate { return binary(col, "<=", v) }

// Like returns a column LIKE pattern predicate.
func Like(col, pattern string) *Predicate { return binary(col, "LIKE", pattern) }

// In returns a column IN (values...) predicate. An empty value list
// renders as FALSE.
func In(col string, vs ...any) *Predicate {
	return P().append(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("FALSE")
			return
		}
		b.Ident(col).WriteString(" IN (").Args(vs...).WriteString(")")
	})
}

// NotIn returns a column NOT IN (values...) predicate. An empty value
// list renders as TRUE.
func NotIn(col string, vs ...any) *Predicate {
	return P().append(func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("TRUE")
			return
		}
		b.Ident(col).WriteString(" NOT IN (").Args(vs...).WriteString(")")
	})
}

// IsNull returns a column IS NULL predicate.
func IsNull(col string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NULL")
	})
}

// NotNull returns a column IS NOT NULL predicate.
func NotNull(col string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col).WriteString(" IS NOT NULL")
	})
}

// ColumnsEQ returns a column = column predicate, used for join conditions.
func ColumnsEQ(col1, col2 string) *Predicate {
	return P().append(func(b *Builder) {
		b.Ident(col1).WriteString(" = ").Ident(col2)
	})
}

// ExprP returns a predicate from a raw SQL expression and its arguments.
func ExprP(expr string, args ...any) *Predicate {
	return P().append(func(b *Builder) {
		i := 0
		for _, r := range expr {
			if r == '?' && i < len(args) {
				b.Arg(args[i])
				i++
				continue
			}
			b.sb.WriteRune(r)
		}
	})
}

func compose(op string, preds []*Predicate) *Predicate {
	switch len(preds) {
	case 0:
		return P()
	case 1:
		return preds[0]
	}
	return P().append(func(b *Builder) {
		for i, p := range preds {
			if i > 0 {
				b.WriteString(" " + op + " ")
			}
			b.WriteString("(")
			p.build(b)
			b.WriteString(")")
		}
	})
}

// And returns the conjunction of the given predicates.
func And(preds ...*Predicate) *Predicate { return compose("AND", preds) }

// Or returns the disjunction of the given predicates.
func Or(preds ...*Predicate) *Predicate { return compose("OR", preds) }

// Not negates the given predicate.
func Not(p *Predicate) *Predicate {
	return P().append(func(b *Builder) {
		b.WriteString("NOT (")
		p.build(b)
		b.WriteString(")")
	})
}

// SelectTable is a table reference in a SELECT statement, optionally
// carrying an alias.
type SelectTable struct {
	name string
	as   string
}

// Table returns a new table reference.
func Table(name string) *SelectTable {
	return &SelectTable{name: name}
}

// As sets the table alias.
func (t *SelectTable) As(alias string) *SelectTable {
	t.as = alias
	return t
}

// Name returns the table name.
func (t *SelectTable) Name() string { return t.name }

// Alias returns the table alias, or the table name if no alias is set.
func (t *SelectTable) Alias() string {
	if t.as != "" {
		return t.as
	}
	return t.name
}

// C returns the given column qualified with the table alias.
func (t *SelectTable) C(col string) string {
	return t.Alias() + "." + col
}

// Columns returns the given columns qualified with the table alias.
func (t *SelectTable) Columns(cols ...string) []string {
	qualified := make([]string, len(cols))
	for i, c := range cols {
		qualified[i] = t.C(c)
	}
	return qualified
}

func (t *SelectTable) ref(b *Builder) {
	b.Ident(t.name)
	if t.as != "" {
		b.WriteString(" AS ")
		b.Ident(t.as)
	}
}

type join struct {
	kind  string // "JOIN" or "LEFT JOIN"
	table *SelectTable
	on    *Predicate
}

// Selector builds a SELECT statement.
type Selector struct {
	dialect  string
	columns  []string
	froms    []*SelectTable
	joins    []join
	where    *Predicate
	orderBy  []string
	groupBy  []string
	limit    *int
	offset   *int
	distinct bool
}

// Select returns a Selector for the given columns.
func Select(columns ...string) *Selector {
	return &Selector{columns: columns}
}

// SetDialect sets the dialect used for rendering.
func (s *Selector) SetDialect(dialect string) *Selector {
	s.dialect = dialect
	return s
}

// Select replaces the selected columns.
func (s *Selector) Select(columns ...string) *Selector {
	s.columns = columns
	return s
}

// AppendSelect appends columns to the selection.
func (s *Selector) AppendSelect(columns ...string) *Selector {
	s.columns = append(s.columns, columns...)
	return s
}

// SelectedColumns returns the columns currently selected.
func (s *Selector) SelectedColumns() []string {
	return append([]string(nil), s.columns...)
}

// From appends a source table to the selection. Multiple source tables
// render as a comma-separated FROM list (an implicit cross join).
func (s *Selector) From(t *SelectTable) *Selector {
	s.froms = append(s.froms, t)
	return s
}

// TableName returns the name of the first source table.
func (s *Selector) TableName() string {
	if len(s.froms) == 0 {
		return ""
	}
	return s.froms[0].name
}

// C returns the given column qualified with the first source table alias.
func (s *Selector) C(col string) string {
	if len(s.froms) == 0 {
		return col
	}
	return s.froms[0].C(col)
}

// Join adds an INNER JOIN to the selection. The returned selector is the
// receiver; On must be called to set the join condition.
func (s *Selector) Join(t *SelectTable) *Selector {
	s.joins = append(s.joins, join{kind: "JOIN", table: t})
	return s
}

// LeftJoin adds a LEFT JOIN to the selection.
func (s *Selector) LeftJoin(t *SelectTable) *Selector {
	s.joins = append(s.joins, join{kind: "LEFT JOIN", table: t})
	return s
}

// On sets the condition of the most recently added join.
func (s *Selector) On(col1, col2 string) *Selector {
	return s.OnP(ColumnsEQ(col1, col2))
}

// OnP sets the condition of the most recently added join from a predicate.
func (s *Selector) OnP(p *Predicate) *Selector {
	if len(s.joins) > 0 {
		s.joins[len(s.joins)-1].on = p
	}
	return s
}

// Where appends the given predicate to the WHERE clause with AND.
func (s *Selector) Where(p *Predicate) *Selector {
	if p == nil {
		return s
	}
	if s.where == nil {
		s.where = p
	} else {
		s.where = And(s.where, p)
	}
	return s
}

// OrderBy appends columns to the ORDER BY clause.
func (s *Selector) OrderBy(columns ...string) *Selector {
	s.orderBy = append(s.orderBy, columns...)
	return s
}

// GroupBy appends columns to the GROUP BY clause.
func (s *Selector) GroupBy(columns ...string) *Selector {
	s.groupBy = append(s.groupBy, columns...)
	return s
}

// Limit sets the LIMIT clause.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the OFFSET clause.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Distinct marks the selection as DISTINCT.
func (s *Selector) Distinct() *Selector {
	s.distinct = true
	return s
}

// Clone returns a deep copy of the selector. The where predicate is
// shared; predicates are immutable once composed.
func (s *Selector) Clone() *Selector {
	if s == nil {
		return nil
	}
	c := *s
	c.columns = append([]string(nil), s.columns...)
	c.froms = append([]*SelectTable(nil), s.froms...)
	c.joins = append([]join(nil), s.joins...)
	c.orderBy = append([]string(nil), s.orderBy...)
	c.groupBy = append([]string(nil), s.groupBy...)
	if s.where != nil {
		w := *s.where
		w.fns = append(make([]func(*Builder), 0, len(s.where.fns)), s.where.fns...)
		c.where = &w
	}
	return &c
}

// Query returns the SELECT statement and its arguments.
func (s *Selector) Query() (string, []any) {
	b := NewBuilder(s.dialect)
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("DISTINCT ")
	}
	if len(s.columns) == 0 {
		b.WriteString("*")
	}
	for i, c := range s.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	if len(s.froms) > 0 {
		b.WriteString(" FROM ")
		for i, t := range s.froms {
			if i > 0 {
				b.WriteString(", ")
			}
			t.ref(b)
		}
	}
	for _, j := range s.joins {
		b.WriteString(" " + j.kind + " ")
		j.table.ref(b)
		if j.on != nil {
			b.WriteString(" ON ")
			j.on.build(b)
		}
	}
	if s.where != nil {
		b.WriteString(" WHERE ")
		s.where.build(b)
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		for i, c := range s.groupBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		for i, c := range s.orderBy {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Ident(c)
		}
	}
	if s.limit != nil {
		b.WriteString(" LIMIT " + strconv.Itoa(*s.limit))
	}
	if s.offset != nil {
		b.WriteString(" OFFSET " + strconv.Itoa(*s.offset))
	}
	return b.String(), b.args
}

// CountQuery returns a statement counting the rows produced by the
// selector. The selection is wrapped in a subquery so LIMIT and OFFSET
// keep their meaning.
func (s *Selector) CountQuery() (string, []any) {
	inner, args := s.Query()
	return fmt.Sprintf("SELECT COUNT(*) FROM (%s) AS count_rows", inner), args
}

// UpdateBuilder builds an UPDATE statement.
type UpdateBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
	where   *Predicate
}

// Update returns an UpdateBuilder for the given table.
func Update(table string) *UpdateBuilder {
	return &UpdateBuilder{table: table}
}

// SetDialect sets the dialect used for rendering.
func (u *UpdateBuilder) SetDialect(dialect string) *UpdateBuilder {
	u.dialect = dialect
	return u
}

// Set assigns a value to a column.
func (u *UpdateBuilder) Set(col string, v any) *UpdateBuilder {
	u.columns = append(u.columns, col)
	u.values = append(u.values, v)
	return u
}

// Where appends the given predicate to the WHERE clause with AND.
func (u *UpdateBuilder) Where(p *Predicate) *UpdateBuilder {
	if p == nil {
		return u
	}
	if u.where == nil {
		u.where = p
	} else {
		u.where = And(u.where, p)
	}
	return u
}

// Query returns the UPDATE statement and its arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := NewBuilder(u.dialect)
	b.WriteString("UPDATE ")
	b.Ident(u.table)
	b.WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	if u.where != nil {
		b.WriteString(" WHERE ")
		u.where.build(b)
	}
	return b.String(), b.args
}

// DeleteBuilder builds a DELETE statement.
type DeleteBuilder struct {
	dialect string
	table   string
	where   *Predicate
}

// Delete returns a DeleteBuilder for the given table.
func Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{table: table}
}

// SetDialect sets the dialect used for rendering.
func (d *DeleteBuilder) SetDialect(dialect string) *DeleteBuilder {
	d.dialect = dialect
	return d
}

// Where appends the given predicate to the WHERE clause with AND.
func (d *DeleteBuilder) Where(p *Predicate) *DeleteBuilder {
	if p == nil {
		return d
	}
	if d.where == nil {
		d.where = p
	} else {
		d.where = And(d.where, p)
	}
	return d
}

// Query returns the DELETE statement and its arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := NewBuilder(d.dialect)
	b.WriteString("DELETE FROM ")
	b.Ident(d.table)
	if d.where != nil {
		b.WriteString(" WHERE ")
		d.where.build(b)
	}
	return b.String(), b.args
}

// InsertBuilder builds an INSERT statement.
type InsertBuilder struct {
	dialect string
	table   string
	columns []string
	values  []any
}

// Insert returns an InsertBuilder for the given table.
func Insert(table string) *InsertBuilder {
	return &InsertBuilder{table: table}
}

// SetDialect sets the dialect used for rendering.
func (i *InsertBuilder) SetDialect(dialect string) *InsertBuilder {
	i.dialect = dialect
	return i
}

// Set assigns a value to a column.
func (i *InsertBuilder) Set(col string, v any) *InsertBuilder {
	i.columns = append(i.columns, col)
	i.values = append(i.values, v)
	return i
}

// Query returns the INSERT statement and its arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := NewBuilder(i.dialect)
	b.WriteString("INSERT INTO ")
	b.Ident(i.table)
	if len(i.columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
		return b.String(), b.args
	}
	b.WriteString(" (")
	for j, c := range i.columns {
		if j > 0 {
			b.WriteString(", ")
		}
		b.Ident(c)
	}
	b.WriteString(") VALUES (")
	b.Args(i.values...)
	b.WriteString(")")
	return b.String(), b.args
}
