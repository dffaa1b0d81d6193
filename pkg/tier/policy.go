package tier

// Tier is the account classification gating quotas and feature access.
type Tier string

const (
	Free    Tier = "Free"
	Premium Tier = "Premium"
)

// FreeLinkCap is the maximum number of active links a Free account may hold.
const FreeLinkCap = 10

// ParseTier maps a claim value onto a known tier, defaulting to Free.
func ParseTier(s string) Tier {
	if s == string(Premium) {
		return Premium
	}
	return Free
}

// DenialKind tells callers which rule rejected the request.
type DenialKind int

const (
	DenyQuota DenialKind = iota
	DenyFeature
)

// Denial is a user-visible policy rejection. It is not a server fault.
type Denial struct {
	Kind   DenialKind
	Reason string
}

func (d *Denial) Error() string { return d.Reason }

// AuthorizeCreate decides whether an account may create one more link.
// activeLinks is the account's current active-link count; customAlias reports
// whether the request carries a custom alias. A nil return means allow.
func AuthorizeCreate(t Tier, activeLinks int64, customAlias bool) *Denial {
	if t == Premium {
		return nil
	}
	if activeLinks >= FreeLinkCap {
		return &Denial{Kind: DenyQuota, Reason: "Free tier limit reached. Upgrade to Premium for unlimited URLs."}
	}
	if customAlias {
		return &Denial{Kind: DenyFeature, Reason: "Custom aliases are a Premium feature."}
	}
	return nil
}

// AnalyticsScope reports which analytics the tier may see.
type AnalyticsScope struct {
	Locations  bool
	TimeSeries bool
}

func AnalyticsScopeFor(t Tier) AnalyticsScope {
	if t == Premium {
		return AnalyticsScope{Locations: true, TimeSeries: true}
	}
	return AnalyticsScope{}
}
