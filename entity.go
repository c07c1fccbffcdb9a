package warden

import "github.com/go-openapi/inflect"

// Entity describes a mapped entity type: the table it lives in and the
// columns it declares. Entities are usually package-level singletons;
// their interface value is the identity used to deduplicate the entity
// set of a query.
type Entity interface {
	Table() string
	Columns() []string
}

// FilterContributor is implemented by entity types that narrow queries
// touching them. AddAuthFilters receives the in-flight query with the
// preferred filter target already pointing at this entity, so FilterEQ
// calls bind unambiguously even under joins. Returning the input
// unchanged (or nil) means "no restriction". The callback must be pure
// with respect to the badge and must not mutate global state.
//
// It is never invoked with the Allow or Deny badge.
type FilterContributor interface {
	AddAuthFilters(q *Query, badge Badge) *Query
}

// InsertStamper is implemented by entity types that stamp implicit
// ownership or audit columns on first persistence. AddAuthInsertData may
// mutate the record's own columns only. It runs exactly once per record,
// before the insert statement is issued, and never with the Allow or
// Deny badge.
type InsertStamper interface {
	AddAuthInsertData(r *Record, badge Badge)
}

// ReadBlocker is implemented by entity types whose records block reads of
// specific columns. The callback may read the record's own columns; the
// gating reentrancy guard keeps that from recursing. It is never invoked
// with the Allow badge or outside an active session.
type ReadBlocker interface {
	BlockedReadAttributes(r *Record, badge Badge) []string
}

// WriteBlocker is implemented by entity types whose blocked-write set
// differs from their blocked-read set. When absent, writes are gated by
// BlockedReadAttributes.
type WriteBlocker interface {
	BlockedWriteAttributes(r *Record, badge Badge) []string
}

// Labeled is implemented by entity types that carry a human-readable
// label for diagnostics. When absent, the table name is used.
type Labeled interface {
	Label() string
}

// Keyed is implemented by entity types whose primary-key column is not
// named "id".
type Keyed interface {
	IDColumn() string
}

// EntityLabel returns the diagnostic label of an entity.
func EntityLabel(e Entity) string {
	if l, ok := e.(Labeled); ok {
		return l.Label()
	}
	return e.Table()
}

func idColumn(e Entity) string {
	if k, ok := e.(Keyed); ok {
		return k.IDColumn()
	}
	return "id"
}

// EntityDef is an embeddable entity descriptor. It satisfies the Entity
// interface; entity types embed it and add whichever capability methods
// they need.
//
//	var User = &userEntity{warden.EntityDef{
//		Name: "User",
//		Cols: []string{"id", "name", "company_id"},
//	}}
type EntityDef struct {
	// Name is the entity label, e.g. "User".
	Name string
	// TableName overrides the derived table name when set.
	TableName string
	// Cols are the declared columns, primary key included.
	Cols []string
}

// Table returns the table name. When no override is set it is derived
// from the entity name: snake_case, pluralized ("WorkOrder" → "work_orders").
func (d EntityDef) Table() string {
	if d.TableName != "" {
		return d.TableName
	}
	return inflect.Pluralize(inflect.Underscore(d.Name))
}

// Columns returns the declared columns.
func (d EntityDef) Columns() []string { return d.Cols }

// Label returns the snake_case entity label used in diagnostics.
func (d EntityDef) Label() string { return inflect.Underscore(d.Name) }
