package models

// Plan describes a rentable proxy plan. The catalog is fixed; plans are
// priced per connection per duration.
type Plan struct {
	ID                string
	Name              string
	PriceUSD          float64
	DurationDays      int
	IPChangeAvailable bool
}

// GetPlan resolves a plan id from the catalog.
func GetPlan(planID string) (*Plan, bool) {
	switch planID {
	case "mobile-7d":
		return &Plan{ID: planID, Name: "Mobile Proxy 7 Days", PriceUSD: 15, DurationDays: 7, IPChangeAvailable: true}, true
	case "mobile-30d":
		return &Plan{ID: planID, Name: "Mobile Proxy 30 Days", PriceUSD: 45, DurationDays: 30, IPChangeAvailable: true}, true
	case "mobile-90d":
		return &Plan{ID: planID, Name: "Mobile Proxy 90 Days", PriceUSD: 120, DurationDays: 90, IPChangeAvailable: true}, true
	default:
		return nil, false
	}
}
