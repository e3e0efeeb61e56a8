package types

// RateTier is one analyst tier of the rate table
type RateTier struct {
	Name            string  `json:"name"`
	HourlyRate      float64 `json:"hourlyRate"`      // USD/hr
	ToolingOverhead float64 `json:"toolingOverhead"` // USD/hr
	Reference       bool    `json:"reference"`       // tier used for the privacy floor
}

// EffectiveRate is the all-in hourly cost of the tier
func (t RateTier) EffectiveRate() float64 {
	return t.HourlyRate + t.ToolingOverhead
}

// TierCost is the cost range for one rate tier
type TierCost struct {
	Tier     RateTier `json:"tier"`
	CostLow  float64  `json:"costLow"`
	CostHigh float64  `json:"costHigh"`
}

// Multipliers breaks down the effective multiplier
type Multipliers struct {
	Mixing    float64 `json:"mixing"`
	Branch    float64 `json:"branch"`
	FanIn     float64 `json:"fanIn"`
	Taproot   float64 `json:"taproot"`
	Effective float64 `json:"effective"`
}

// CostEstimate is the output of the cost model
type CostEstimate struct {
	HoursLow            float64      `json:"hoursLow"`
	HoursHigh           float64      `json:"hoursHigh"`
	BaseHoursPerHop     float64      `json:"baseHoursPerHop"`
	Hops                int          `json:"hops"`
	UnresolvedPaths     int          `json:"unresolvedPaths"`
	UnresolvedHours     float64      `json:"unresolvedHours"`
	Tiers               []TierCost   `json:"tiers"`
	Multipliers         Multipliers  `json:"multipliers"`
	AttributionRate     float64      `json:"attributionRate"`
	Coverage            float64      `json:"coverage"`
	Attributed          int          `json:"attributed"`
	Checked             int          `json:"checked"`
	TotalAddresses      int          `json:"totalAddresses"`
	TaprootFraction     float64      `json:"taprootFraction"`
	SourcesExhausted    bool         `json:"sourcesExhausted"`
	Confidence          Confidence   `json:"confidence"`
	ConfidenceNote      string       `json:"confidenceNote,omitempty"`
	PrivacyFloor        PrivacyFloor `json:"privacyFloor"`
	PrivacyFloorSummary string       `json:"privacyFloorSummary"`
	MinimumCaseNote     string       `json:"minimumCaseNote,omitempty"`
}

// ReferenceTier returns the tier cost marked as reference, falling back to the
// middle tier of the table
func (e *CostEstimate) ReferenceTier() (TierCost, bool) {
	if len(e.Tiers) == 0 {
		return TierCost{}, false
	}
	for _, t := range e.Tiers {
		if t.Tier.Reference {
			return t, true
		}
	}
	return e.Tiers[len(e.Tiers)/2], true
}
