package warden

import (
	"context"
	"fmt"
	"sort"

	"github.com/syssam/warden/dialect/sql"
)

// Selection is one output column of a query: either a column backed by a
// mapped entity, or a raw expression (a literal, an aggregate) backed by
// nothing. Expression selections contribute no entity to filter
// resolution; that is expected, not an error.
type Selection struct {
	entity Entity
	column string
	expr   string
}

// Col selects a column of the given entity.
func Col(e Entity, column string) Selection {
	return Selection{entity: e, column: column}
}

// Expr selects a raw SQL expression, e.g. "COUNT(*)" or "MAX(id)".
func Expr(expr string) Selection {
	return Selection{expr: expr}
}

// entityRef is an entity bound to the alias it carries in one query.
type entityRef struct {
	entity Entity
	alias  string // empty: the table name itself
}

func (r entityRef) name() string {
	if r.alias != "" {
		return r.alias
	}
	return r.entity.Table()
}

func (r entityRef) table() *sql.SelectTable {
	t := sql.Table(r.entity.Table())
	if r.alias != "" {
		t.As(r.alias)
	}
	return t
}

type queryJoin struct {
	ref     entityRef
	kind    string // "JOIN" or "LEFT JOIN"
	fromCol string // column on the primary from target
	toCol   string // column on the joined target
}

// Query is an in-flight, filterable query. Before it is compiled,
// executed, bulk-updated or bulk-deleted, the set of entities it touches
// is resolved and each entity contributes its implicit filters for the
// session's current badge.
type Query struct {
	session    *Session
	selections []Selection
	froms      []entityRef
	joins      []queryJoin
	preds      []*sql.Predicate
	orderBy    []string
	limit      *int
	offset     *int
	distinct   bool

	// filterTarget is the preferred filter target hint: while an entity's
	// AddAuthFilters callback runs, it points at that entity's reference
	// so FilterEQ binds columns without ambiguity about which joined
	// table they belong to.
	filterTarget *entityRef
	// filtering guards against re-entrant filter injection: rendering the
	// query from inside a filter callback returns the in-progress result
	// instead of applying filters twice or recursing.
	filtering bool

	err error
}

func newQuery(s *Session) *Query {
	return &Query{session: s}
}

// addFrom accumulates a from-clause target, deduplicated by entity.
func (q *Query) addFrom(e Entity, alias string) {
	for _, f := range q.froms {
		if f.entity == e {
			return
		}
	}
	q.froms = append(q.froms, entityRef{entity: e, alias: alias})
}

// From adds a from-clause target without selecting its columns
// (select-from). The target participates in filter resolution.
func (q *Query) From(e Entity) *Query {
	q.addFrom(e, "")
	return q
}

// Select narrows the selection to the given columns of the query's
// primary entity. Narrowed queries still filter identically to
// full-entity queries; their results are read with Values.
func (q *Query) Select(columns ...string) *Query {
	if len(q.froms) == 0 {
		q.err = fmt.Errorf("warden: Select requires a from target")
		return q
	}
	e := q.froms[0].entity
	q.selections = q.selections[:0]
	for _, c := range columns {
		q.selections = append(q.selections, Col(e, c))
	}
	return q
}

// Join adds an inner join against the given entity. fromCol names a
// column of the primary from target; toCol a column of e. The joined
// entity participates in filter resolution even when none of its columns
// are selected.
func (q *Query) Join(e Entity, fromCol, toCol string) *Query {
	return q.join(e, "", "JOIN", fromCol, toCol)
}

// JoinAs is Join with an explicit table alias.
func (q *Query) JoinAs(e Entity, alias, fromCol, toCol string) *Query {
	return q.join(e, alias, "JOIN", fromCol, toCol)
}

// LeftJoin adds a left outer join against the given entity.
func (q *Query) LeftJoin(e Entity, fromCol, toCol string) *Query {
	return q.join(e, "", "LEFT JOIN", fromCol, toCol)
}

func (q *Query) join(e Entity, alias, kind, fromCol, toCol string) *Query {
	q.joins = append(q.joins, queryJoin{
		ref:     entityRef{entity: e, alias: alias},
		kind:    kind,
		fromCol: fromCol,
		toCol:   toCol,
	})
	return q
}

// Where appends an explicit predicate. Implicit filters injected later
// AND-compose with it; the composition order carries no meaning.
func (q *Query) Where(p *sql.Predicate) *Query {
	q.preds = append(q.preds, p)
	return q
}

// FilterEQ appends a column = value predicate with the column bound to
// the preferred filter target: inside an AddAuthFilters callback that is
// the entity being filtered, otherwise the primary from target. This lets
// entity callbacks use simple equality filters under joins without
// naming tables.
func (q *Query) FilterEQ(column string, v any) *Query {
	return q.Where(sql.EQ(q.qualify(column), v))
}

// C returns the given column qualified with the alias the entity carries
// in this query.
func (q *Query) C(e Entity, column string) string {
	for _, f := range q.froms {
		if f.entity == e {
			return f.name() + "." + column
		}
	}
	for _, j := range q.joins {
		if j.ref.entity == e {
			return j.ref.name() + "." + column
		}
	}
	return e.Table() + "." + column
}

func (q *Query) qualify(column string) string {
	if q.filterTarget != nil {
		return q.filterTarget.name() + "." + column
	}
	if len(q.froms) > 0 {
		return q.froms[0].name() + "." + column
	}
	return column
}

// OrderBy appends ordering columns.
func (q *Query) OrderBy(columns ...string) *Query {
	q.orderBy = append(q.orderBy, columns...)
	return q
}

// Limit bounds the number of returned rows.
func (q *Query) Limit(n int) *Query {
	q.limit = &n
	return q
}

// Offset skips the first n rows.
func (q *Query) Offset(n int) *Query {
	q.offset = &n
	return q
}

// Distinct marks the selection as DISTINCT.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Clone returns a copy of the query sharing the session. The copy starts
// with the filter-injection state cleared.
func (q *Query) Clone() *Query {
	c := *q
	c.selections = append([]Selection(nil), q.selections...)
	c.froms = append([]entityRef(nil), q.froms...)
	c.joins = append([]queryJoin(nil), q.joins...)
	c.preds = append([]*sql.Predicate(nil), q.preds...)
	c.orderBy = append([]string(nil), q.orderBy...)
	c.filterTarget = nil
	c.filtering = false
	return &c
}

// resolveEntities returns the deduplicated set of entities the query
// touches: entities behind output columns, from-clause targets, and join
// targets, in that order. Expression selections contribute nothing. A
// selection that names a column its entity does not declare indicates a
// misdeclared query shape and fails with a *ResolutionError.
func (q *Query) resolveEntities() ([]entityRef, error) {
	var refs []entityRef
	seen := make(map[Entity]bool)
	add := func(ref entityRef) {
		if !seen[ref.entity] {
			seen[ref.entity] = true
			refs = append(refs, ref)
		}
	}
	for i, sel := range q.selections {
		switch {
		case sel.entity != nil:
			if len(sel.entity.Columns()) == 0 {
				return nil, NewResolutionError(fmt.Sprintf(
					"entity %s declares no columns", EntityLabel(sel.entity)))
			}
			if !columnOf(sel.entity, sel.column) {
				return nil, NewResolutionError(fmt.Sprintf(
					"selection %d: column %q is not declared by %s",
					i, sel.column, EntityLabel(sel.entity)))
			}
			add(q.refOf(sel.entity))
		case sel.expr != "":
			// Not backed by a mapped entity; excluded from the set.
		default:
			return nil, NewResolutionError(fmt.Sprintf(
				"selection %d has neither a mapped entity nor an expression", i))
		}
	}
	for _, f := range q.froms {
		add(f)
	}
	for _, j := range q.joins {
		add(j.ref)
	}
	return refs, nil
}

// refOf returns the reference e carries in this query, preferring the
// alias it was joined or selected under.
func (q *Query) refOf(e Entity) entityRef {
	for _, f := range q.froms {
		if f.entity == e {
			return f
		}
	}
	for _, j := range q.joins {
		if j.ref.entity == e {
			return j.ref
		}
	}
	return entityRef{entity: e}
}

func columnOf(e Entity, column string) bool {
	for _, c := range e.Columns() {
		if c == column {
			return true
		}
	}
	return false
}

// applyAuthFilters is the filter-injection point. It enforces the Deny
// short-circuit and the Allow bypass, resolves the query's entities and
// lets each contribute its filters, threading the badge through. Repeated
// invocation for the same (query, badge) pair yields an equivalent result
// because injection always starts from a clone of the user-built query.
func (q *Query) applyAuthFilters() (*Query, error) {
	if q.err != nil {
		return nil, q.err
	}
	badge := q.session.Badge()
	if badge == Deny {
		return nil, NewAccessDeniedError("query", badge)
	}
	if isAllow(badge) {
		return q, nil
	}
	if q.filtering {
		// Re-entered from a display path (a filter callback rendering the
		// query it is filtering). Return the in-progress state rather
		// than recursing or applying filters twice.
		return q, nil
	}
	refs, err := q.resolveEntities()
	if err != nil {
		return nil, err
	}
	q.filtering = true
	defer func() { q.filtering = false }()
	fq := q.Clone()
	fq.filtering = true
	for _, ref := range refs {
		fc, ok := ref.entity.(FilterContributor)
		if !ok {
			continue
		}
		ref := ref
		fq.filterTarget = &ref
		out := fc.AddAuthFilters(fq, badge)
		if out != nil {
			fq = out
		}
	}
	fq.filterTarget = nil
	fq.filtering = false
	return fq, nil
}

// selector builds the SQL selector for the query as it currently stands,
// with no filter injection.
func (q *Query) selector() (*sql.Selector, error) {
	if q.err != nil {
		return nil, q.err
	}
	if len(q.froms) == 0 {
		return nil, NewResolutionError("query has no from target")
	}
	sel := sql.Select().SetDialect(q.session.name)
	for _, f := range q.froms {
		sel.From(f.table())
	}
	primary := q.froms[0]
	for _, j := range q.joins {
		t := j.ref.table()
		switch j.kind {
		case "LEFT JOIN":
			sel.LeftJoin(t)
		default:
			sel.Join(t)
		}
		sel.On(primary.name()+"."+j.fromCol, j.ref.name()+"."+j.toCol)
	}
	for _, s := range q.selections {
		if s.entity != nil {
			sel.AppendSelect(q.refOf(s.entity).name() + "." + s.column)
		} else {
			sel.AppendSelect(s.expr)
		}
	}
	for _, p := range q.preds {
		sel.Where(p)
	}
	if q.distinct {
		sel.Distinct()
	}
	if len(q.orderBy) > 0 {
		sel.OrderBy(q.orderBy...)
	}
	if q.limit != nil {
		sel.Limit(*q.limit)
	}
	if q.offset != nil {
		sel.Offset(*q.offset)
	}
	return sel, nil
}

// compile resolves filters and renders the final statement. When the
// session carries a statement cache, the compiled statement is cached
// keyed by (table, op, shape, badge), never by shape alone.
func (q *Query) compile() (string, []any, error) {
	if q.session.closed {
		return "", nil, ErrSessionClosed
	}
	fq, err := q.applyAuthFilters()
	if err != nil {
		return "", nil, err
	}
	build := func() (CompiledStatement, error) {
		sel, err := fq.selector()
		if err != nil {
			return CompiledStatement{}, err
		}
		query, args := sel.Query()
		return CompiledStatement{Query: query, Args: args}, nil
	}
	if c := q.session.cache; c != nil {
		base, err := q.selector()
		if err != nil {
			return "", nil, err
		}
		shape, shapeArgs := base.Query()
		key := CacheKey{
			Table: base.TableName(),
			Op:    "select",
			Shape: shape + "|" + fmt.Sprint(shapeArgs...),
			Badge: BadgeFingerprint(q.session.Badge()),
		}
		stmt, err := c.Do(key, build)
		if err != nil {
			return "", nil, err
		}
		return stmt.Query, stmt.Args, nil
	}
	stmt, err := build()
	if err != nil {
		return "", nil, err
	}
	return stmt.Query, stmt.Args, nil
}

// SQL renders the compiled, filter-injected statement without executing
// it. Rendering is deterministic and idempotent: calling it any number of
// times, including between executions, yields an equivalent statement and
// never mutates the query.
func (q *Query) SQL() (string, []any, error) {
	return q.compile()
}

// recordEntity validates that the query selects exactly the full column
// set of a single entity, which is what materializes gate-able records.
func (q *Query) recordEntity() (Entity, error) {
	if len(q.froms) == 0 {
		return nil, NewResolutionError("query has no from target")
	}
	e := q.froms[0].entity
	cols := e.Columns()
	if len(q.selections) != len(cols) {
		return nil, fmt.Errorf("warden: query does not select the full %s entity; use Values", EntityLabel(e))
	}
	for i, sel := range q.selections {
		if sel.entity != e || sel.column != cols[i] {
			return nil, fmt.Errorf("warden: query does not select the full %s entity; use Values", EntityLabel(e))
		}
	}
	return e, nil
}

// All executes the query and materializes the result rows as gate-able
// records. Each record is handed the session's badge context, so later
// column access is evaluated against the badge current at access time.
func (q *Query) All(ctx context.Context) ([]*Record, error) {
	e, err := q.recordEntity()
	if err != nil {
		return nil, err
	}
	query, args, err := q.compile()
	if err != nil {
		return nil, err
	}
	var rows sql.Rows
	if err := q.session.conn.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	cols := e.Columns()
	var records []*Record
	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		r := &Record{
			entity:    e,
			values:    make(map[string]any, len(cols)),
			persisted: true,
		}
		for i, c := range cols {
			r.values[c] = *(dest[i].(*any))
		}
		r.attach(q.session)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Values executes the query and returns the result rows as value tuples.
// This is the read path for narrowed, multi-entity and expression
// selections; tuples are not gate-able.
func (q *Query) Values(ctx context.Context) ([][]any, error) {
	query, args, err := q.compile()
	if err != nil {
		return nil, err
	}
	var rows sql.Rows
	if err := q.session.conn.Query(ctx, query, args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanValues(&rows)
}

// First returns the first matching record, or a *NotFoundError.
func (q *Query) First(ctx context.Context) (*Record, error) {
	records, err := q.Clone().Limit(1).All(ctx)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &NotFoundError{label: q.label()}
	}
	return records[0], nil
}

// Only returns the single matching record. It fails with a
// *NotFoundError when no record matches and a *NotSingularError when
// more than one does.
func (q *Query) Only(ctx context.Context) (*Record, error) {
	records, err := q.Clone().Limit(2).All(ctx)
	if err != nil {
		return nil, err
	}
	switch len(records) {
	case 1:
		return records[0], nil
	case 0:
		return nil, &NotFoundError{label: q.label()}
	default:
		return nil, &NotSingularError{label: q.label()}
	}
}

// Count returns the number of rows the filtered query produces. The
// selection is counted as a subquery, so Limit and Offset keep their
// meaning.
func (q *Query) Count(ctx context.Context) (int, error) {
	if q.session.closed {
		return 0, ErrSessionClosed
	}
	fq, err := q.applyAuthFilters()
	if err != nil {
		return 0, err
	}
	sel, err := fq.selector()
	if err != nil {
		return 0, err
	}
	query, args := sel.CountQuery()
	var rows sql.Rows
	if err := q.session.conn.Query(ctx, query, args, &rows); err != nil {
		return 0, err
	}
	defer rows.Close()
	if !rows.Next() {
		return 0, rows.Err()
	}
	var n int
	if err := rows.Scan(&n); err != nil {
		return 0, err
	}
	return n, rows.Err()
}

// Exist reports whether the filtered query produces any row.
func (q *Query) Exist(ctx context.Context) (bool, error) {
	n, err := q.Clone().Limit(1).Count(ctx)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Update runs a bulk update scoped by the same filter injection as reads:
// only rows the current badge may see are updated. It returns the number
// of affected rows. Bulk mutations over joined or multi-entity queries
// are unsupported.
func (q *Query) Update(ctx context.Context, values map[string]any) (int64, error) {
	fq, e, err := q.bulkTarget()
	if err != nil {
		return 0, err
	}
	upd := sql.Update(e.Table()).SetDialect(q.session.name)
	cols := make([]string, 0, len(values))
	for c := range values {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	for _, c := range cols {
		upd.Set(c, values[c])
	}
	for _, p := range fq.preds {
		upd.Where(p)
	}
	query, args := upd.Query()
	var res sql.Result
	if err := q.session.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete runs a bulk delete scoped by the same filter injection as reads.
// It returns the number of affected rows.
func (q *Query) Delete(ctx context.Context) (int64, error) {
	fq, e, err := q.bulkTarget()
	if err != nil {
		return 0, err
	}
	del := sql.Delete(e.Table()).SetDialect(q.session.name)
	for _, p := range fq.preds {
		del.Where(p)
	}
	query, args := del.Query()
	var res sql.Result
	if err := q.session.conn.Exec(ctx, query, args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// bulkTarget runs filter injection for a bulk mutation and validates that
// the query shape maps to a single table.
func (q *Query) bulkTarget() (*Query, Entity, error) {
	if q.session.closed {
		return nil, nil, ErrSessionClosed
	}
	fq, err := q.applyAuthFilters()
	if err != nil {
		return nil, nil, err
	}
	if len(fq.froms) != 1 || len(fq.joins) > 0 {
		return nil, nil, NewResolutionError("bulk mutations require a single-entity query")
	}
	return fq, fq.froms[0].entity, nil
}

func (q *Query) label() string {
	if len(q.froms) > 0 {
		return EntityLabel(q.froms[0].entity)
	}
	return "record"
}

func scanValues(rows *sql.Rows) ([][]any, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]any
	for rows.Next() {
		dest := make([]any, len(cols))
		for i := range dest {
			dest[i] = new(any)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		vals := make([]any, len(cols))
		for i := range dest {
			vals[i] = *(dest[i].(*any))
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}
