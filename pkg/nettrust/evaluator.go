package nettrust

// Change describes a network or trust transition.
type Change struct {
	Previous      Network
	PreviousTrust TrustLevel
	Next          Network
	NextTrust     TrustLevel
	// CachedTrust is the stored trust of Next, Unknown when nothing is stored.
	CachedTrust TrustLevel
	// Active is set when a VPN connection is currently up.
	Active bool
}

// NeedsReconnect decides whether a trust or network change requires the tunnel
// to be re-established. It has no side effects.
func NeedsReconnect(c Change) bool {
	if c.Next.IsNone() || !c.Active {
		return false
	}

	if c.NextTrust.Less(c.PreviousTrust) {
		return true
	}
	if c.Previous.Same(c.Next) {
		return false
	}

	cached := c.CachedTrust
	if cached == "" {
		cached = Unknown
	}
	next := c.NextTrust
	if next == "" {
		next = Unknown
	}

	return next != cached
}
