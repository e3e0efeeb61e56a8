// Package cost turns a traversal result and its attribution coverage into an
// analyst-hours and dollar estimate with a confidence rating.
//
// Estimate is a pure function: it never fails on a well-formed result.
package cost

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustline/internal/types"
)

const (
	// MixingMultiplier applies when any visited node is a mixing round
	MixingMultiplier = 3.5
	// TaprootMultiplier applies when taproot addresses are the majority
	TaprootMultiplier = 1.4
	// TaprootThreshold is the taproot share that must be exceeded
	TaprootThreshold = 0.5
	// BranchDivisor normalizes the average output count
	BranchDivisor = 5.0
	// FanInDivisor normalizes the largest consolidation input count
	FanInDivisor = 5.0
	// HighEstimateFactor widens the low estimate into the high one
	HighEstimateFactor = 1.6
	// UnresolvedHoursEach is added to the high estimate per unresolved path
	UnresolvedHoursEach = 8.0
	// MinimumCaseThreshold is the smallest engagement most forensic firms accept, in USD
	MinimumCaseThreshold = 5_000.0
	// LowCoverageNote is the coverage below which a confidence note is attached
	LowCoverageNote = 0.4
)

// base hours per hop, strict descending attribution-rate thresholds
var baseHourBands = []struct {
	above float64
	hours float64
}{
	{0.7, 12.0 / 60},
	{0.4, 45.0 / 60},
	{0.1, 3},
}

const unattributedBaseHours = 8.0

// floor bands by reference-tier low cost, upper bounds exclusive
var floorBands = []struct {
	below float64
	floor types.PrivacyFloor
}{
	{500, types.FloorTraceable},
	{5_000, types.FloorCostly},
	{50_000, types.FloorExpensive},
	{500_000, types.FloorHigh},
}

// Estimate computes the cost of tracing the graph. depth is the number of
// hops to price, normally the traversal's MaxDepthReached.
func Estimate(result *types.TraversalResult, report *types.AttributionReport, depth int, rates []types.RateTier) *types.CostEstimate {
	var (
		nodes      []*types.TransactionNode
		addresses  []types.Address
		unresolved int
	)
	if result != nil {
		nodes = result.OrderedNodes()
		addresses = result.Addresses
		unresolved = result.UnresolvedPaths
	}
	if depth < 0 {
		depth = 0
	}

	total := len(addresses)
	attributed, checked := report.Coverage(addresses)
	exhausted := report != nil && report.SourcesExhausted

	est := &types.CostEstimate{
		Hops:             depth,
		UnresolvedPaths:  unresolved,
		Attributed:       attributed,
		Checked:          checked,
		TotalAddresses:   total,
		AttributionRate:  ratio(attributed, total),
		Coverage:         ratio(checked, total),
		TaprootFraction:  TaprootFraction(addresses),
		SourcesExhausted: exhausted,
	}

	est.Multipliers = types.Multipliers{
		Mixing:  mixingMultiplier(nodes),
		Branch:  BranchMultiplier(nodes),
		FanIn:   FanInMultiplier(nodes),
		Taproot: taprootMultiplier(est.TaprootFraction),
	}
	est.Multipliers.Effective = est.Multipliers.Mixing * est.Multipliers.Branch *
		est.Multipliers.FanIn * est.Multipliers.Taproot

	est.BaseHoursPerHop = BaseHoursPerHop(est.AttributionRate)
	est.HoursLow = est.BaseHoursPerHop * float64(depth) * est.Multipliers.Effective
	est.UnresolvedHours = float64(unresolved) * UnresolvedHoursEach
	est.HoursHigh = est.HoursLow*HighEstimateFactor + est.UnresolvedHours

	est.Tiers = make([]types.TierCost, 0, len(rates))
	for _, tier := range rates {
		rate := tier.EffectiveRate()
		est.Tiers = append(est.Tiers, types.TierCost{
			Tier:     tier,
			CostLow:  est.HoursLow * rate,
			CostHigh: est.HoursHigh * rate,
		})
	}

	est.Confidence = Confidence(est.Coverage, unresolved, exhausted)
	est.ConfidenceNote = confidenceNote(est)

	est.PrivacyFloor = types.FloorTraceable
	if ref, ok := est.ReferenceTier(); ok {
		est.PrivacyFloor = ClassifyFloor(ref.CostLow)
		est.PrivacyFloorSummary = floorSummary(est.PrivacyFloor, ref)
		if ref.CostHigh < MinimumCaseThreshold {
			est.MinimumCaseNote = fmt.Sprintf(
				"Most forensic firms require a minimum %s investigation value.", formatUSD(MinimumCaseThreshold))
		}
	}
	return est
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// BaseHoursPerHop selects analyst hours per hop from the attribution rate.
// Thresholds are strict: exactly 70% falls into the 45 minute band.
func BaseHoursPerHop(attributionRate float64) float64 {
	for _, band := range baseHourBands {
		if attributionRate > band.above {
			return band.hours
		}
	}
	return unattributedBaseHours
}

func mixingMultiplier(nodes []*types.TransactionNode) float64 {
	for _, n := range nodes {
		if n.MixingDetected {
			return MixingMultiplier
		}
	}
	return 1.0
}

// BranchMultiplier is max(1, average outputs per transaction / 5)
func BranchMultiplier(nodes []*types.TransactionNode) float64 {
	if len(nodes) == 0 {
		return 1.0
	}
	outputs := 0
	for _, n := range nodes {
		outputs += n.OutputCount()
	}
	avg := float64(outputs) / float64(len(nodes))
	return max(1.0, avg/BranchDivisor)
}

// FanInMultiplier is max(1, largest consolidation input count / 5), uncapped.
// Every observed consolidation node counts, whatever the traversal direction.
func FanInMultiplier(nodes []*types.TransactionNode) float64 {
	largest := 0
	for _, n := range nodes {
		if n.Pattern == types.PatternConsolidation && n.InputCount() > largest {
			largest = n.InputCount()
		}
	}
	if largest == 0 {
		return 1.0
	}
	return max(1.0, float64(largest)/FanInDivisor)
}

// TaprootFraction is the share of taproot addresses in the graph
func TaprootFraction(addresses []types.Address) float64 {
	taproot := 0
	for _, a := range addresses {
		if a.Type == types.AddressTaproot {
			taproot++
		}
	}
	return ratio(taproot, len(addresses))
}

func taprootMultiplier(fraction float64) float64 {
	if fraction > TaprootThreshold {
		return TaprootMultiplier
	}
	return 1.0
}

// Confidence rates the estimate from coverage and unresolved paths. When every
// source was consulted for every address the rating is at least moderate.
func Confidence(coverage float64, unresolved int, sourcesExhausted bool) types.Confidence {
	var c types.Confidence
	switch {
	case coverage >= 0.7 && unresolved == 0:
		c = types.ConfidenceHigh
	case coverage >= 0.4:
		c = types.ConfidenceModerate
	case coverage >= 0.1:
		c = types.ConfidenceLow
	default:
		c = types.ConfidenceVeryLow
	}
	if sourcesExhausted {
		c = c.AtLeast(types.ConfidenceModerate)
	}
	return c
}

func confidenceNote(est *types.CostEstimate) string {
	if est.TotalAddresses == 0 || est.Coverage >= LowCoverageNote {
		return ""
	}
	prefix := fmt.Sprintf("Only %.0f%% of addresses were checked (%d/%d) and %d attributed.",
		est.Coverage*100, est.Checked, est.TotalAddresses, est.Attributed)
	if est.SourcesExhausted {
		return prefix + " Unattributed addresses may include unlabeled exchange or service nodes."
	}
	return prefix + " The estimate may be overstated if unchecked addresses belong to exchanges or services; run in thorough mode to check all addresses."
}

// ClassifyFloor maps a reference-tier cost to its privacy floor band
func ClassifyFloor(costUSD float64) types.PrivacyFloor {
	for _, band := range floorBands {
		if costUSD < band.below {
			return band.floor
		}
	}
	return types.FloorImpractical
}

func floorSummary(floor types.PrivacyFloor, ref types.TierCost) string {
	costRange := fmt.Sprintf("%s to %s for %s", formatUSD(ref.CostLow), formatUSD(ref.CostHigh), ref.Tier.Name)
	switch floor {
	case types.FloorTraceable:
		return costRange + ". Any motivated party can afford this trace."
	case types.FloorCostly:
		return costRange + ". Viable for law enforcement, out of reach for most private actors."
	case types.FloorExpensive:
		return costRange + ". Requires significant financial motivation."
	case types.FloorHigh:
		return costRange + ". Only justified by very large amounts at stake."
	default:
		return costRange + ". Economically invisible to all but nation-state actors."
	}
}

// formatUSD renders whole dollars with thousands separators
func formatUSD(v float64) string {
	digits := strconv.FormatFloat(v, 'f', 0, 64)
	neg := strings.HasPrefix(digits, "-")
	digits = strings.TrimPrefix(digits, "-")

	var b strings.Builder
	for i, r := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if neg {
		return "-$" + b.String()
	}
	return "$" + b.String()
}
