package attribution

import (
	"context"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/storage"
	"github.com/dustline/internal/types"
)

// Provider is one attribution tier. Lookup returns nil, nil when the tier
// has a definitive "unknown" answer for the address; any error means the
// tier could not answer.
type Provider interface {
	Source() types.AttributionSource
	Lookup(ctx context.Context, address string) (*adapter.LabelMatch, error)
}

// LocalProvider serves the LOCAL tier from the label store
type LocalProvider struct {
	store storage.LabelStore
}

// NewLocalProvider wraps a label store
func NewLocalProvider(store storage.LabelStore) *LocalProvider {
	return &LocalProvider{store: store}
}

// Source implements Provider
func (p *LocalProvider) Source() types.AttributionSource {
	return types.SourceLocal
}

// Lookup implements Provider
func (p *LocalProvider) Lookup(ctx context.Context, address string) (*adapter.LabelMatch, error) {
	rec, err := p.store.Lookup(ctx, address)
	if err != nil || rec == nil {
		return nil, err
	}
	return &adapter.LabelMatch{Label: rec.Entity, Category: rec.Category}, nil
}

// RemoteProvider serves a tier backed by an external label service
type RemoteProvider struct {
	source types.AttributionSource
	labels adapter.LabelSource
}

// NewRemoteProvider wraps an external label source
func NewRemoteProvider(source types.AttributionSource, labels adapter.LabelSource) *RemoteProvider {
	return &RemoteProvider{source: source, labels: labels}
}

// Source implements Provider
func (p *RemoteProvider) Source() types.AttributionSource {
	return p.source
}

// Lookup implements Provider
func (p *RemoteProvider) Lookup(ctx context.Context, address string) (*adapter.LabelMatch, error) {
	return p.labels.Lookup(ctx, address)
}
