package warden

import (
	"fmt"
	"sort"
)

// Record is a gate-able instance of an entity: a materialized row whose
// column reads and writes are checked against the current badge of the
// session that produced it.
//
// Records constructed with NewRecord are detached: they have no badge
// context, so population during construction is never blocked. A record
// becomes gated once a session materializes it from a query or persists
// it through Save, at which point it holds a live reference to the
// session's badge context. The reference observes the shared badge slot;
// changing the session's badge changes the gating of records already
// loaded.
type Record struct {
	entity    Entity
	values    map[string]any
	bctx      *BadgeContext
	session   *Session
	checking  bool // reentrancy flag: set while a blocklist callback runs
	persisted bool
}

// NewRecord returns a detached record of the given entity type.
func NewRecord(e Entity) *Record {
	return &Record{entity: e, values: make(map[string]any, len(e.Columns()))}
}

// Entity returns the record's entity descriptor.
func (r *Record) Entity() Entity { return r.entity }

// Persisted reports whether the record has been written to storage.
func (r *Record) Persisted() bool { return r.persisted }

// attach hands the record its badge context at materialization time.
func (r *Record) attach(s *Session) {
	r.session = s
	r.bctx = s.bctx
}

// bypass reports whether gating is skipped entirely: the badge is Allow,
// the record was constructed outside any session, or the owning session
// or transaction is no longer active.
func (r *Record) bypass() bool {
	if r.bctx == nil || r.session == nil || !r.session.active() {
		return true
	}
	return isAllow(r.bctx.Badge())
}

func (r *Record) hasColumn(name string) bool {
	for _, c := range r.entity.Columns() {
		if c == name {
			return true
		}
	}
	return false
}

// blockedRead computes the blocked-read set for the current badge. The
// reentrancy flag is held for the duration of the callback so the policy
// may read the record's own columns without recursing; it is cleared by
// defer so a panicking callback cannot leave the record unguarded.
func (r *Record) blockedRead() []string {
	r.checking = true
	defer func() { r.checking = false }()
	if r.bypass() {
		return nil
	}
	rb, ok := r.entity.(ReadBlocker)
	if !ok {
		return nil
	}
	return rb.BlockedReadAttributes(r, r.bctx.Badge())
}

// blockedWrite computes the blocked-write set, falling back to the
// blocked-read set when the entity declares no write policy.
func (r *Record) blockedWrite() []string {
	r.checking = true
	defer func() { r.checking = false }()
	if r.bypass() {
		return nil
	}
	if wb, ok := r.entity.(WriteBlocker); ok {
		return wb.BlockedWriteAttributes(r, r.bctx.Badge())
	}
	rb, ok := r.entity.(ReadBlocker)
	if !ok {
		return nil
	}
	return rb.BlockedReadAttributes(r, r.bctx.Badge())
}

// Get returns the value of the named column, or a *BlockedAttributeError
// when the column is blocked for the current badge. While a blocklist
// callback is running, Get bypasses all checks and returns the raw value.
func (r *Record) Get(name string) (any, error) {
	if r.checking {
		return r.values[name], nil
	}
	if !r.hasColumn(name) {
		return nil, fmt.Errorf("warden: unknown column %q on %s", name, EntityLabel(r.entity))
	}
	blocked := r.blockedRead()
	for _, c := range blocked {
		if c == name {
			return nil, &BlockedAttributeError{
				Column:  name,
				Badge:   r.bctx.Badge(),
				Entity:  EntityLabel(r.entity),
				Blocked: blocked,
			}
		}
	}
	return r.values[name], nil
}

// Set assigns the value of the named column, or returns a
// *BlockedAttributeError when the column is write-blocked for the
// current badge.
func (r *Record) Set(name string, v any) error {
	if r.checking {
		r.values[name] = v
		return nil
	}
	if !r.hasColumn(name) {
		return fmt.Errorf("warden: unknown column %q on %s", name, EntityLabel(r.entity))
	}
	blocked := r.blockedWrite()
	for _, c := range blocked {
		if c == name {
			return &BlockedAttributeError{
				Column:  name,
				Badge:   r.bctx.Badge(),
				Entity:  EntityLabel(r.entity),
				Blocked: blocked,
				Write:   true,
			}
		}
	}
	r.values[name] = v
	return nil
}

// MustGet is like Get but panics on a blocked or unknown column.
func (r *Record) MustGet(name string) any {
	v, err := r.Get(name)
	if err != nil {
		panic(err)
	}
	return v
}

// GetString returns the named column as a string.
func (r *Record) GetString(name string) (string, error) {
	v, err := r.Get(name)
	if err != nil {
		return "", err
	}
	switch v := v.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// GetInt returns the named column as an int64.
func (r *Record) GetInt(name string) (int64, error) {
	v, err := r.Get(name)
	if err != nil {
		return 0, err
	}
	switch v := v.(type) {
	case nil:
		return 0, nil
	case int64:
		return v, nil
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case float64:
		return int64(v), nil
	default:
		return 0, fmt.Errorf("warden: column %q on %s is %T, not an integer",
			name, EntityLabel(r.entity), v)
	}
}

// ReadableColumns returns the declared columns minus the blocked-read set,
// sorted. Intended for introspection and serialization call sites that
// filter a whole record instead of checking single columns.
func (r *Record) ReadableColumns() []string {
	return subtract(r.entity.Columns(), r.blockedRead())
}

// WritableColumns returns the declared columns minus the blocked-write set,
// sorted.
func (r *Record) WritableColumns() []string {
	return subtract(r.entity.Columns(), r.blockedWrite())
}

func subtract(columns, blocked []string) []string {
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		skip := false
		for _, b := range blocked {
			if b == c {
				skip = true
				break
			}
		}
		if !skip {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// String identifies the record without reading any column values, so it
// is safe to use in messages about blocked access.
func (r *Record) String() string {
	return fmt.Sprintf("%s record", EntityLabel(r.entity))
}
