// Package rule provides composable building blocks for entity
// authorization callbacks: query filters that narrow row visibility and
// blocklists that hide or freeze columns.
//
// The helpers interpret actor badges through the Actor interface. Badges
// that do not implement it are treated as opaque scalar identities.
package rule

import (
	"slices"

	"github.com/syssam/warden"
	"github.com/syssam/warden/dialect/sql"
)

// Actor is the interface application badge types implement to expose
// identity, roles and tenancy to the rule helpers.
type Actor interface {
	// ActorID returns the actor's unique identifier.
	ActorID() string
	// Roles returns the actor's roles.
	Roles() []string
	// TenantID returns the actor's tenant identifier, or an empty string
	// when multi-tenancy does not apply.
	TenantID() string
}

// SimpleActor is a basic Actor implementation for tests and simple
// applications.
type SimpleActor struct {
	ID         string
	Tenant     string
	ActorRoles []string
}

// ActorID returns the actor identifier.
func (a *SimpleActor) ActorID() string { return a.ID }

// Roles returns the actor's roles.
func (a *SimpleActor) Roles() []string { return a.ActorRoles }

// TenantID returns the tenant identifier.
func (a *SimpleActor) TenantID() string { return a.Tenant }

// ActorOf returns the badge as an Actor when it implements the interface.
func ActorOf(badge warden.Badge) (Actor, bool) {
	a, ok := badge.(Actor)
	return a, ok
}

// HasRole reports whether the badge is an Actor carrying the given role.
func HasRole(badge warden.Badge, role string) bool {
	a, ok := ActorOf(badge)
	return ok && slices.Contains(a.Roles(), role)
}

// identity returns the comparable identity of a badge: the actor ID for
// Actor badges, otherwise the badge value itself.
func identity(badge warden.Badge) any {
	if a, ok := ActorOf(badge); ok {
		return a.ActorID()
	}
	return badge
}

// Filter narrows a query for a badge. Filters plug directly into an
// entity's AddAuthFilters method:
//
//	func (docEntity) AddAuthFilters(q *warden.Query, badge warden.Badge) *warden.Query {
//		return rule.Chain(
//			rule.UnlessRole("admin", rule.OwnedBy("owner_id")),
//		)(q, badge)
//	}
type Filter func(q *warden.Query, badge warden.Badge) *warden.Query

// Chain applies the given filters in order. Their predicates AND-compose.
func Chain(filters ...Filter) Filter {
	return func(q *warden.Query, badge warden.Badge) *warden.Query {
		for _, f := range filters {
			q = f(q, badge)
		}
		return q
	}
}

// OwnedBy narrows to rows whose column equals the badge identity.
func OwnedBy(column string) Filter {
	return func(q *warden.Query, badge warden.Badge) *warden.Query {
		return q.FilterEQ(column, identity(badge))
	}
}

// TenantScoped narrows to rows whose column equals the actor's tenant.
// Badges without a tenant match no rows; a missing tenant must fail
// closed, not fall open.
func TenantScoped(column string) Filter {
	return func(q *warden.Query, badge warden.Badge) *warden.Query {
		a, ok := ActorOf(badge)
		if !ok || a.TenantID() == "" {
			return Nothing()(q, badge)
		}
		return q.FilterEQ(column, a.TenantID())
	}
}

// UnlessRole applies f except for actors carrying the given role, which
// see everything.
func UnlessRole(role string, f Filter) Filter {
	return func(q *warden.Query, badge warden.Badge) *warden.Query {
		if HasRole(badge, role) {
			return q
		}
		return f(q, badge)
	}
}

// Nothing narrows to no rows at all.
func Nothing() Filter {
	return func(q *warden.Query, badge warden.Badge) *warden.Query {
		return q.Where(sql.ExprP("FALSE"))
	}
}

// Blocklist computes the blocked columns of a record for a badge.
// Blocklists plug into BlockedReadAttributes and BlockedWriteAttributes.
type Blocklist func(r *warden.Record, badge warden.Badge) []string

// Merge unions the given blocklists.
func Merge(blocklists ...Blocklist) Blocklist {
	return func(r *warden.Record, badge warden.Badge) []string {
		var out []string
		for _, bl := range blocklists {
			for _, c := range bl(r, badge) {
				if !slices.Contains(out, c) {
					out = append(out, c)
				}
			}
		}
		return out
	}
}

// HideUnlessOwner blocks the given columns unless the badge identity
// matches the record's owner column.
func HideUnlessOwner(ownerColumn string, hidden ...string) Blocklist {
	return func(r *warden.Record, badge warden.Badge) []string {
		owner, err := r.Get(ownerColumn)
		if err == nil && owner == identity(badge) {
			return nil
		}
		return hidden
	}
}

// HideUnlessRole blocks the given columns unless the badge carries the
// given role.
func HideUnlessRole(role string, hidden ...string) Blocklist {
	return func(r *warden.Record, badge warden.Badge) []string {
		if HasRole(badge, role) {
			return nil
		}
		return hidden
	}
}
