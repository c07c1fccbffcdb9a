// Package warden is a row-level and column-level authorization layer that
// sits between application code and a relational store.
//
// It enforces access control through two cooperating mechanisms. Filter
// injection narrows every structured query before execution: each entity
// the query touches may contribute implicit predicates for the session's
// current badge, so callers cannot read or bulk-mutate rows outside their
// slice of the data. Attribute gating guards materialized records: column
// reads and writes on a Record are checked against per-entity blocklists
// evaluated with the same badge.
//
// The badge is the authorization token of the caller. Two sentinel badges
// have fixed meaning everywhere: Allow bypasses all checks, Deny rejects
// every operation before it reaches the database. Any other value is an
// actor badge that entity callbacks interpret; the layer itself never
// inspects it.
//
// A Session owns a single mutable badge slot, the BadgeContext. Queries
// and records created through the session share that slot by reference,
// which gives badge changes retroactive effect:
//
//	s, _ := warden.NewSession(drv, warden.WithBadge(userA))
//	r, _ := s.Query(Document).First(ctx)
//	s.SetBadge(userB)
//	// r is now gated as userB, even though it was loaded as userA.
//
// SwitchBadge scopes a temporary elevation; defer the restore function:
//
//	restore := s.SwitchBadge(warden.Allow)
//	defer restore()
//
// A common foot-gun follows from the sharing rule. Holding one session in
// a global and mutating a surrounding holder's badge does not reach
// sessions or records created earlier; conversely, reusing one session
// across callers silently re-gates every record the previous caller still
// holds. Create one session per logical caller and change badges only
// through that session.
//
// Raw statements (Session.Raw) bypass filter injection entirely, since
// there is no entity model to resolve filters from. They still honor the
// Deny short-circuit.
package warden
