package model

// Tiers holds one backend per tier. Either may be nil.
type Tiers struct {
	Fast    Backend
	Capable Backend
}

// Get returns the backend for tier, or an unavailability error.
func (t *Tiers) Get(tier Tier) (Backend, error) {
	var b Backend
	if t != nil {
		switch tier {
		case TierFast:
			b = t.Fast
		case TierCapable:
			b = t.Capable
		}
	}
	if b == nil {
		return nil, Unavailable(tier, "no backend configured")
	}
	return b, nil
}

// Available reports whether any tier is configured.
func (t *Tiers) Available() bool {
	return t != nil && (t.Fast != nil || t.Capable != nil)
}
