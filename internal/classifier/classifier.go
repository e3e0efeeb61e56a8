// Package classifier assigns structural tags to Bitcoin transactions.
//
// Classification is a pure function of the input and output lists. CoinJoin
// detection runs first and overrides every structural rule.
package classifier

import (
	"fmt"

	"github.com/dustline/internal/types"
)

// Fixed mixing denominations in satoshis
var knownDenominations = map[int64]struct{}{
	100_000:    {}, // 0.001 BTC (Whirlpool)
	1_000_000:  {}, // 0.01 BTC (Whirlpool)
	2_500_000:  {}, // 0.025 BTC (Ashigaru)
	5_000_000:  {}, // 0.05 BTC (Whirlpool)
	10_000_000: {}, // 0.1 BTC (Wasabi v1)
	25_000_000: {}, // 0.25 BTC (Ashigaru)
	50_000_000: {}, // 0.5 BTC (Whirlpool)
}

const (
	// MinCoinJoinOutputs is the output count below which CoinJoin is never suspected
	MinCoinJoinOutputs = 5
	// MinDenominationMatches is the equal-output count needed at a known denomination
	MinDenominationMatches = 3
	// MinDominantEqualOutputs is the equal-output count needed at an arbitrary value
	MinDominantEqualOutputs = 5
	// DominantShare is the share of outputs the equal group must exceed
	DominantShare = 0.5
	// MinEqualGroups is the number of equal-value groups for variable-denomination rounds
	MinEqualGroups = 3
	// MinGroupSize is the size of one equal-value group
	MinGroupSize = 3
)

// Classify returns the structural pattern of a transaction and whether mixing was detected
func Classify(inputs []types.TxInput, outputs []types.TxOutput) (types.Pattern, bool) {
	if IsCoinJoin(outputs) {
		return types.PatternCoinJoin, true
	}

	nIn, nOut := len(inputs), len(outputs)
	switch {
	case nIn >= 5 && nOut <= 2:
		return types.PatternConsolidation, false
	case nIn <= 3 && nOut >= 5:
		return types.PatternFanOut, false
	case nIn <= 2 && nOut == 2:
		return types.PatternPeelChain, false
	default:
		return types.PatternSimple, false
	}
}

// IsCoinJoin reports whether the output set looks like a mixing round.
// Values are compared exactly; zero-value outputs are ignored.
func IsCoinJoin(outputs []types.TxOutput) bool {
	if len(outputs) < MinCoinJoinOutputs {
		return false
	}

	counts := make(map[int64]int)
	for _, out := range outputs {
		if out.Amount > 0 {
			counts[out.Amount]++
		}
	}
	if len(counts) == 0 {
		return false
	}

	dominant := 0
	groups := 0
	for value, count := range counts {
		if _, known := knownDenominations[value]; known && count >= MinDenominationMatches {
			return true
		}
		if count > dominant {
			dominant = count
		}
		if count >= MinGroupSize {
			groups++
		}
	}

	if dominant >= MinDominantEqualOutputs && float64(dominant)/float64(len(outputs)) > DominantShare {
		return true
	}

	return groups >= MinEqualGroups
}

// SignalsRBF reports whether any non-coinbase input opts into replace-by-fee
func SignalsRBF(inputs []types.TxInput) bool {
	for _, in := range inputs {
		if in.Coinbase {
			continue
		}
		if in.Sequence < types.SequenceFinal {
			return true
		}
	}
	return false
}

// ShapeDetail renders the input/output shape, e.g. "8-in → 2-out"
func ShapeDetail(nIn, nOut int) string {
	return fmt.Sprintf("%d-in → %d-out", nIn, nOut)
}

// IsKnownDenomination reports whether value is one of the fixed mixing denominations
func IsKnownDenomination(value int64) bool {
	_, ok := knownDenominations[value]
	return ok
}
