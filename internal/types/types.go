// Package types provides common type definitions for the dustline cost estimator.
package types

import (
	"regexp"
	"strings"
)

// Direction represents which way the transaction graph is walked from the origin
type Direction string

const (
	// DirectionForward follows outputs to the transactions that spend them
	DirectionForward Direction = "forward"
	// DirectionBackward follows inputs to the transactions that funded them
	DirectionBackward Direction = "backward"
	// DirectionBoth walks both ways, sharing one visited set
	DirectionBoth Direction = "both"
)

// IsValid reports whether d is one of the supported directions
func (d Direction) IsValid() bool {
	switch d {
	case DirectionForward, DirectionBackward, DirectionBoth:
		return true
	default:
		return false
	}
}

// Forward reports whether outputs are followed
func (d Direction) Forward() bool {
	return d == DirectionForward || d == DirectionBoth
}

// Backward reports whether inputs are followed
func (d Direction) Backward() bool {
	return d == DirectionBackward || d == DirectionBoth
}

// AddressType represents the script family an address belongs to
type AddressType string

const (
	// AddressLegacy covers base58 P2PKH and P2SH addresses
	AddressLegacy AddressType = "legacy"
	// AddressSegwitV0 covers bech32 witness v0 addresses
	AddressSegwitV0 AddressType = "segwit-v0"
	// AddressTaproot covers bech32m witness v1 addresses
	AddressTaproot AddressType = "taproot"
	// AddressOther is anything that matches none of the above
	AddressOther AddressType = "other"
)

// ClassifyAddress derives the address type from its prefix
func ClassifyAddress(address string) AddressType {
	a := strings.ToLower(strings.TrimSpace(address))
	for _, hrp := range []string{"bc1", "tb1", "bcrt1"} {
		if !strings.HasPrefix(a, hrp) || len(a) <= len(hrp) {
			continue
		}
		switch a[len(hrp)] {
		case 'q':
			return AddressSegwitV0
		case 'p':
			return AddressTaproot
		default:
			return AddressOther
		}
	}
	if address == "" {
		return AddressOther
	}
	switch address[0] {
	case '1', '3', 'm', 'n', '2':
		return AddressLegacy
	}
	return AddressOther
}

// Address is a chain address plus its derived type
type Address struct {
	Value string      `json:"value"`
	Type  AddressType `json:"type"`
}

// NewAddress builds an Address with its type filled in
func NewAddress(value string) Address {
	return Address{Value: value, Type: ClassifyAddress(value)}
}

var (
	base58Address = regexp.MustCompile(`^[13mn2][1-9A-HJ-NP-Za-km-z]{25,34}$`)
	bech32Address = regexp.MustCompile(`^(bc|tb|bcrt)1[02-9ac-hj-np-z]{8,87}$`)
)

// ValidateAddress reports whether the string is shaped like a Bitcoin address.
// Checksums are not verified; the data source rejects anything it cannot resolve.
func ValidateAddress(address string) bool {
	if base58Address.MatchString(address) {
		return true
	}
	lower := strings.ToLower(address)
	if lower != address && strings.ToUpper(address) != address {
		return false // bech32 forbids mixed case
	}
	return bech32Address.MatchString(lower)
}

// Pattern is the structural tag assigned to a transaction
type Pattern string

const (
	PatternSimple        Pattern = "simple"
	PatternPeelChain     Pattern = "peel_chain"
	PatternFanOut        Pattern = "fan_out"
	PatternConsolidation Pattern = "consolidation"
	PatternCoinJoin      Pattern = "coinjoin"
)

// Label returns the display label for the pattern
func (p Pattern) Label() string {
	switch p {
	case PatternPeelChain:
		return "PEEL CHAIN"
	case PatternFanOut:
		return "FAN-OUT"
	case PatternConsolidation:
		return "CONSOLIDATION"
	case PatternCoinJoin:
		return "COINJOIN"
	default:
		return "SIMPLE"
	}
}

// AttributionSource identifies the tier that produced an attribution
type AttributionSource string

const (
	SourceLocal          AttributionSource = "local"
	SourceWalletExplorer AttributionSource = "walletexplorer"
	SourceArkham         AttributionSource = "arkham"
	SourceNone           AttributionSource = "none"
)

// Confidence is the qualitative confidence attached to a cost estimate
type Confidence string

const (
	ConfidenceHigh     Confidence = "high"
	ConfidenceModerate Confidence = "moderate"
	ConfidenceLow      Confidence = "low"
	ConfidenceVeryLow  Confidence = "very low"
)

// rank orders confidence levels so a floor can be applied
func (c Confidence) rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceModerate:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// AtLeast returns c, raised to floor if c is below it
func (c Confidence) AtLeast(floor Confidence) Confidence {
	if c.rank() < floor.rank() {
		return floor
	}
	return c
}

// PrivacyFloor is the five-band classification of tracing economics
type PrivacyFloor string

const (
	FloorTraceable   PrivacyFloor = "traceable"   // < $500
	FloorCostly      PrivacyFloor = "costly"      // $500 - $5,000
	FloorExpensive   PrivacyFloor = "expensive"   // $5,000 - $50,000
	FloorHigh        PrivacyFloor = "high_floor"  // $50,000 - $500,000
	FloorImpractical PrivacyFloor = "impractical" // > $500,000
)

// ServiceError represents a structured error response
type ServiceError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func (e *ServiceError) Error() string {
	return e.Message
}
