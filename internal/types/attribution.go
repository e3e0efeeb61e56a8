package types

// AttributionResult is the outcome of resolving one address against the tiers.
// Checked distinguishes "looked up and found nothing" from "never fully looked up".
type AttributionResult struct {
	Address  string            `json:"address"`
	Matched  bool              `json:"matched"`
	Label    string            `json:"label,omitempty"`
	Category string            `json:"category,omitempty"`
	Source   AttributionSource `json:"source"`
	Checked  bool              `json:"checked"`
}

// AttributionReport is the resolver's view of a run, consumed by the cost model
type AttributionReport struct {
	Results          map[string]AttributionResult `json:"results"`
	SourcesUsed      []AttributionSource          `json:"sourcesUsed"`
	SourcesExhausted bool                         `json:"sourcesExhausted"`
	BySource         map[AttributionSource]int    `json:"bySource"`
	ByCategory       map[string]int               `json:"byCategory"`
	SampleQueried    int                          `json:"sampleQueried"`
	SampleSkipped    int                          `json:"sampleSkipped"`
	Warnings         []string                     `json:"warnings,omitempty"`
}

// Coverage counts attributed and checked addresses among the given graph addresses.
// Addresses with no result count as unchecked.
func (r *AttributionReport) Coverage(addresses []Address) (attributed, checked int) {
	if r == nil {
		return 0, 0
	}
	for _, a := range addresses {
		res, ok := r.Results[a.Value]
		if !ok {
			continue
		}
		if res.Matched {
			attributed++
		}
		if res.Checked {
			checked++
		}
	}
	return attributed, checked
}
