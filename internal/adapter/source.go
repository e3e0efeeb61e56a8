package adapter

import (
	"context"
	"errors"
	"fmt"

	"github.com/dustline/internal/types"
)

// TransactionSource supplies raw transaction data to the traversal engine.
type TransactionSource interface {
	// GetTransaction returns the inputs and outputs of a transaction.
	// Outputs carry the spending txid when the source knows it.
	// Returns ErrNotFound when the transaction does not exist.
	GetTransaction(ctx context.Context, txid string) (*types.TransactionRecord, error)

	// GetHistory returns txids involving the address, most recent first.
	GetHistory(ctx context.Context, address string) ([]string, error)
}

// LabelMatch is one attribution tier's answer for an address.
// A nil *LabelMatch with a nil error means the tier knows nothing about it.
type LabelMatch struct {
	Label     string `json:"label,omitempty"`
	Category  string `json:"category,omitempty"`
	ClusterID string `json:"clusterId,omitempty"` // set when the tier clusters the address without naming it
}

// Named reports whether the match carries an entity label
func (m *LabelMatch) Named() bool {
	return m != nil && m.Label != ""
}

// LabelSource is one external attribution service.
type LabelSource interface {
	Name() string
	Lookup(ctx context.Context, address string) (*LabelMatch, error)
}

// Common error types for data sources

var (
	// ErrNotFound indicates the requested transaction or address is unknown to the source
	ErrNotFound = errors.New("not found")

	// ErrProviderUnavailable indicates every endpoint of the source failed
	ErrProviderUnavailable = errors.New("data provider unavailable")

	// ErrProviderRateLimit indicates the provider rate limit was exceeded
	ErrProviderRateLimit = errors.New("provider rate limit exceeded")

	// ErrInvalidResponse indicates the provider returned a payload we could not decode
	ErrInvalidResponse = errors.New("invalid provider response")
)

// SourceError wraps errors with the source and operation that failed
type SourceError struct {
	Source  string
	Op      string // e.g. "GetTransaction", "Lookup"
	Err     error
	Details map[string]interface{}
}

func (e *SourceError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("source error [%s:%s]: %v (details: %+v)", e.Source, e.Op, e.Err, e.Details)
	}
	return fmt.Sprintf("source error [%s:%s]: %v", e.Source, e.Op, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// NewSourceError creates a new SourceError
func NewSourceError(source, op string, err error, details map[string]interface{}) *SourceError {
	return &SourceError{
		Source:  source,
		Op:      op,
		Err:     err,
		Details: details,
	}
}
