package warden

// Badge is the acting identity for authorization purposes. It is either
// one of the distinguished values Allow and Deny, or an opaque
// application-defined actor value (a user ID, a user object, a role).
//
// The core never interprets actor badges; entity callbacks decide what
// they mean. Badges are compared by equality.
type Badge any

type access string

// Distinguished badge values.
var (
	// Allow bypasses all authorization: no filters are injected and no
	// attributes are blocked. Behavior is identical to the layer being
	// absent. A nil badge is treated as Allow.
	Allow Badge = access("allow")

	// Deny rejects all query execution and all mutation before any
	// statement reaches the driver.
	Deny Badge = access("deny")
)

func (a access) String() string { return string(a) }

// isAllow reports whether b bypasses authorization.
func isAllow(b Badge) bool { return b == nil || b == Allow }

// BadgeContext is a single mutable slot holding the current badge of a
// session. It is shared by reference with every query the session creates
// and with every gate-able record the session materializes, so mutating
// the slot retroactively changes the authorization behavior of live
// records: gating always reflects who is asking now, not who asked at
// load time.
//
// A BadgeContext belongs to exactly one session and is not synchronized.
// Sharing one context between concurrently used sessions is a caller
// error, not a supported mode.
type BadgeContext struct {
	badge Badge
}

// NewBadgeContext returns a context holding the given badge.
// A nil initial badge defaults to Allow.
func NewBadgeContext(initial Badge) *BadgeContext {
	if initial == nil {
		initial = Allow
	}
	return &BadgeContext{badge: initial}
}

// Badge returns the current badge.
func (c *BadgeContext) Badge() Badge { return c.badge }

// SetBadge replaces the current badge. A nil badge is stored as Allow.
func (c *BadgeContext) SetBadge(b Badge) {
	if b == nil {
		b = Allow
	}
	c.badge = b
}

// SwitchBadge sets the badge for the dynamic extent of a scope and returns
// a restore function that puts back the badge that was active at the call.
// The restore function must be deferred so it runs on both normal exit and
// panic. Switches nest in strict LIFO order: each restore reinstates the
// immediately enclosing badge.
//
//	restore := ctx.SwitchBadge(user)
//	defer restore()
func (c *BadgeContext) SwitchBadge(b Badge) (restore func()) {
	prev := c.badge
	c.SetBadge(b)
	return func() { c.badge = prev }
}
