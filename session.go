package warden

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/syssam/warden/dialect"
	"github.com/syssam/warden/dialect/sql"
)

// Session is the unit of work of the authorization layer. It owns the
// badge context, creates queries that inherit it, and hands it to every
// gate-able record it materializes.
//
// A session is single-caller: its badge slot, in-flight queries and
// loaded records are not synchronized. Two sessions must never share a
// BadgeContext. Note the related foot-gun described in the package
// documentation: wrapping a session in a global holder and mutating the
// holder's badge does not affect sessions created before the mutation.
type Session struct {
	drv    dialect.Driver      // nil for transaction-bound sessions
	conn   dialect.ExecQuerier // drv, or the transaction
	name   string              // dialect name
	bctx   *BadgeContext
	cache  StatementCache
	id     uuid.UUID
	closed bool
}

// SessionOption configures a session at construction time.
type SessionOption func(*Session)

// WithBadge sets the initial badge. The default is Allow.
func WithBadge(b Badge) SessionOption {
	return func(s *Session) { s.bctx.SetBadge(b) }
}

// WithStatementCache attaches a compiled-statement cache to the session.
// The cache must be badge-scoped; NewSession rejects one that is not.
func WithStatementCache(c StatementCache) SessionOption {
	return func(s *Session) { s.cache = c }
}

// NewSession returns a session over the given driver. It fails with an
// *UnsupportedConfigurationError when the configuration would let a
// statement compiled for one badge be reused for another.
func NewSession(drv dialect.Driver, opts ...SessionOption) (*Session, error) {
	s := &Session{
		drv:  drv,
		conn: drv,
		name: drv.Dialect(),
		bctx: NewBadgeContext(Allow),
		id:   uuid.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache != nil && !s.cache.BadgeScoped() {
		return nil, NewUnsupportedConfigurationError(
			"statement cache is not badge-scoped; caching by statement shape alone reapplies one badge's filters to another")
	}
	return s, nil
}

// ID returns the session identifier carried in diagnostics.
func (s *Session) ID() uuid.UUID { return s.id }

// BadgeContext returns the session's badge context. The context is shared
// with every query and record the session produces.
func (s *Session) BadgeContext() *BadgeContext { return s.bctx }

// Badge returns the session's current badge.
func (s *Session) Badge() Badge { return s.bctx.Badge() }

// SetBadge replaces the session's badge. The change is immediately
// visible to records already loaded through this session.
func (s *Session) SetBadge(b Badge) { s.bctx.SetBadge(b) }

// SwitchBadge temporarily replaces the badge; defer the returned restore
// function to put the previous badge back on scope exit.
func (s *Session) SwitchBadge(b Badge) (restore func()) {
	return s.bctx.SwitchBadge(b)
}

// Dialect returns the dialect name of the underlying driver.
func (s *Session) Dialect() string { return s.name }

func (s *Session) active() bool { return !s.closed }

// Close marks the session inactive. Records loaded through the session
// fall back to ungated access (they are no longer part of an active unit
// of work); new operations fail with ErrSessionClosed. The underlying
// driver is owned by the caller and stays open.
func (s *Session) Close() error {
	s.closed = true
	return nil
}

// Query returns a query selecting every column of the given entity.
// Results materialize as gate-able records.
func (s *Session) Query(e Entity) *Query {
	q := newQuery(s)
	for _, c := range e.Columns() {
		q.selections = append(q.selections, Col(e, c))
	}
	q.addFrom(e, "")
	return q
}

// Select returns a query over arbitrary selections: entity columns,
// raw expressions, or a mix. Results are read with Values.
func (s *Session) Select(selections ...Selection) *Query {
	q := newQuery(s)
	q.selections = append(q.selections, selections...)
	for _, sel := range selections {
		if sel.entity != nil {
			q.addFrom(sel.entity, "")
		}
	}
	return q
}

// Raw returns a raw statement bound to the session. Raw statements have
// no structured entity model, so no filters can be injected into them;
// they execute as written. This is a recognized limitation of raw
// execution, not an error. A Deny badge still rejects them.
func (s *Session) Raw(stmt string, args ...any) *RawStatement {
	return &RawStatement{session: s, stmt: stmt, args: args}
}

// Tx starts a transaction. The returned Tx is a session view bound to the
// transaction: it shares this session's badge context (it is the same
// logical caller), and records it loads become ungated once the
// transaction commits or rolls back.
func (s *Session) Tx(ctx context.Context) (*Tx, error) {
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.drv == nil {
		return nil, fmt.Errorf("warden: cannot start a transaction within a transaction")
	}
	dtx, err := s.drv.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &Tx{
		Session: &Session{
			conn:  dtx,
			name:  s.name,
			bctx:  s.bctx,
			cache: s.cache,
			id:    s.id,
		},
		dtx: dtx,
	}, nil
}

// Tx is a transaction-bound session view.
type Tx struct {
	*Session
	dtx dialect.Tx
}

// Commit commits the transaction and deactivates the view.
func (tx *Tx) Commit() error {
	tx.closed = true
	return tx.dtx.Commit()
}

// Rollback rolls back the transaction and deactivates the view.
func (tx *Tx) Rollback() error {
	tx.closed = true
	return tx.dtx.Rollback()
}

// Save persists the record. On first persistence the insertion hook runs:
// a Deny badge rejects the operation before the record is staged; an
// Allow badge stamps nothing; any other badge is handed to the entity's
// AddAuthInsertData callback, exactly once per record. Saving an
// already-persisted record updates it by its ID column without
// re-stamping, regardless of the badge it is re-saved under.
func (s *Session) Save(ctx context.Context, r *Record) error {
	if s.closed {
		return ErrSessionClosed
	}
	badge := s.Badge()
	if badge == Deny {
		op := "update"
		if !r.persisted {
			op = "insert"
		}
		return NewAccessDeniedError(op, badge)
	}
	if r.persisted {
		return s.update(ctx, r)
	}
	if !isAllow(badge) {
		if st, ok := r.entity.(InsertStamper); ok {
			st.AddAuthInsertData(r, badge)
		}
	}
	return s.insert(ctx, r)
}

func (s *Session) insert(ctx context.Context, r *Record) error {
	ins := sql.Insert(r.entity.Table()).SetDialect(s.name)
	for _, c := range r.entity.Columns() {
		if v, ok := r.values[c]; ok {
			ins.Set(c, v)
		}
	}
	query, args := ins.Query()
	var res sql.Result
	if err := s.conn.Exec(ctx, query, args, &res); err != nil {
		return err
	}
	id := idColumn(r.entity)
	if _, ok := r.values[id]; !ok {
		if lastID, err := res.LastInsertId(); err == nil {
			r.values[id] = lastID
		}
	}
	r.persisted = true
	r.attach(s)
	return nil
}

func (s *Session) update(ctx context.Context, r *Record) error {
	id := idColumn(r.entity)
	idv, ok := r.values[id]
	if !ok {
		return fmt.Errorf("warden: cannot update %s without %q", EntityLabel(r.entity), id)
	}
	upd := sql.Update(r.entity.Table()).SetDialect(s.name)
	for _, c := range r.entity.Columns() {
		if c == id {
			continue
		}
		if v, ok := r.values[c]; ok {
			upd.Set(c, v)
		}
	}
	upd.Where(sql.EQ(id, idv))
	query, args := upd.Query()
	if err := s.conn.Exec(ctx, query, args, nil); err != nil {
		return err
	}
	r.attach(s)
	return nil
}

// RawStatement is a statement the layer cannot filter. Execution is still
// subject to the Deny short-circuit.
type RawStatement struct {
	session *Session
	stmt    string
	args    []any
}

func (r *RawStatement) guard(op string) error {
	if r.session.closed {
		return ErrSessionClosed
	}
	if r.session.Badge() == Deny {
		return NewAccessDeniedError(op, Deny)
	}
	return nil
}

// All executes the statement and returns its rows as value tuples,
// unfiltered.
func (r *RawStatement) All(ctx context.Context) ([][]any, error) {
	if err := r.guard("raw query"); err != nil {
		return nil, err
	}
	var rows sql.Rows
	if err := r.session.conn.Query(ctx, r.stmt, r.args, &rows); err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanValues(&rows)
}

// Exec executes the statement and returns the number of affected rows.
func (r *RawStatement) Exec(ctx context.Context) (int64, error) {
	if err := r.guard("raw exec"); err != nil {
		return 0, err
	}
	var res sql.Result
	if err := r.session.conn.Exec(ctx, r.stmt, r.args, &res); err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
