package attribution

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/storage"
	"github.com/dustline/internal/types"
)

// fakeProvider answers from a fixed table and records every query
type fakeProvider struct {
	source  types.AttributionSource
	labels  map[string]*adapter.LabelMatch
	fail    map[string]bool
	mu      sync.Mutex
	queried []string
}

func newFake(source types.AttributionSource) *fakeProvider {
	return &fakeProvider{source: source, labels: map[string]*adapter.LabelMatch{}, fail: map[string]bool{}}
}

func (f *fakeProvider) Source() types.AttributionSource { return f.source }

func (f *fakeProvider) Lookup(_ context.Context, address string) (*adapter.LabelMatch, error) {
	f.mu.Lock()
	f.queried = append(f.queried, address)
	f.mu.Unlock()
	if f.fail[address] {
		return nil, errors.New("timeout")
	}
	return f.labels[address], nil
}

func (f *fakeProvider) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queried)
}

func (f *fakeProvider) wasQueried(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queried {
		if q == address {
			return true
		}
	}
	return false
}

func TestResolver_TierOrderShortCircuits(t *testing.T) {
	local := NewLocalProvider(storage.NewMemoryLabelStore(storage.EntityRecord{
		Address: "1Local", Entity: "Binance", Category: "exchange",
	}))
	we := newFake(types.SourceWalletExplorer)
	we.labels["1WE"] = &adapter.LabelMatch{Label: "Huobi.com", ClusterID: "00ab"}
	ark := newFake(types.SourceArkham)
	ark.labels["1Ark"] = &adapter.LabelMatch{Label: "Kraken", Category: "cex"}

	r := NewResolver(Options{}, local, we, ark)
	ctx := context.Background()
	results := r.ResolveAll(ctx, []string{"1Local", "1WE", "1Ark", "1Nobody"})

	assert.Equal(t, types.AttributionResult{
		Address: "1Local", Matched: true, Label: "Binance", Category: "exchange", Source: types.SourceLocal, Checked: true,
	}, results["1Local"])
	assert.Equal(t, types.SourceWalletExplorer, results["1WE"].Source)
	assert.Equal(t, types.SourceArkham, results["1Ark"].Source)
	assert.Equal(t, "cex", results["1Ark"].Category)

	nobody := results["1Nobody"]
	assert.False(t, nobody.Matched)
	assert.True(t, nobody.Checked)
	assert.Equal(t, types.SourceNone, nobody.Source)

	assert.False(t, we.wasQueried("1Local"))
	assert.False(t, ark.wasQueried("1Local"))
	assert.False(t, ark.wasQueried("1WE"))
	assert.True(t, ark.wasQueried("1Nobody"))
}

func TestResolver_AnonymousClusterIsNotAttribution(t *testing.T) {
	we := newFake(types.SourceWalletExplorer)
	we.labels["1Anon"] = &adapter.LabelMatch{ClusterID: "0056ef"}
	ark := newFake(types.SourceArkham)

	r := NewResolver(Options{}, NewLocalProvider(storage.NewMemoryLabelStore()), we, ark)
	res := r.Resolve(context.Background(), "1Anon")

	assert.False(t, res.Matched)
	assert.Empty(t, res.Label)
	assert.True(t, res.Checked)
	assert.True(t, ark.wasQueried("1Anon"))
}

func TestResolver_FailureLeavesUnchecked(t *testing.T) {
	we := newFake(types.SourceWalletExplorer)
	we.fail["1Flaky"] = true
	ark := newFake(types.SourceArkham)
	ark.labels["1Flaky"] = &adapter.LabelMatch{Label: "Bitfinex"}

	r := NewResolver(Options{}, we)
	res := r.Resolve(context.Background(), "1Flaky")
	assert.False(t, res.Matched)
	assert.False(t, res.Checked)

	report := r.Report([]string{"1Flaky"})
	assert.False(t, report.SourcesExhausted)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "1 lookups failed")

	// a later tier can still match after an earlier one failed
	r = NewResolver(Options{}, we, ark)
	res = r.Resolve(context.Background(), "1Flaky")
	assert.True(t, res.Matched)
	assert.True(t, res.Checked)
	assert.Equal(t, types.SourceArkham, res.Source)
}

func TestResolver_SamplingIsDeterministic(t *testing.T) {
	var addrs []string
	for i := 0; i < 12; i++ {
		addrs = append(addrs, fmt.Sprintf("1Addr%02d", i))
	}

	run := func() (*fakeProvider, *types.AttributionReport) {
		we := newFake(types.SourceWalletExplorer)
		r := NewResolver(Options{SampleSize: 5, Concurrency: 3}, NewLocalProvider(storage.NewMemoryLabelStore()), we)
		r.ResolveAll(context.Background(), addrs)
		return we, r.Report(addrs)
	}

	we, report := run()
	assert.Equal(t, 5, we.count())
	for _, a := range addrs[:5] {
		assert.True(t, we.wasQueried(a), a)
		assert.True(t, report.Results[a].Checked)
	}
	for _, a := range addrs[5:] {
		assert.False(t, we.wasQueried(a), a)
		assert.False(t, report.Results[a].Checked)
		assert.False(t, report.Results[a].Matched)
	}
	assert.Equal(t, 5, report.SampleQueried)
	assert.Equal(t, 7, report.SampleSkipped)
	assert.False(t, report.SourcesExhausted)
	require.NotEmpty(t, report.Warnings)
	assert.Contains(t, report.Warnings[0], "queried 5 of 12")

	_, again := run()
	assert.Equal(t, report.Results, again.Results)
}

func TestResolver_SampleCapSpansCalls(t *testing.T) {
	we := newFake(types.SourceWalletExplorer)
	r := NewResolver(Options{SampleSize: 3}, we)
	ctx := context.Background()

	r.ResolveAll(ctx, []string{"1A", "1B"})
	r.ResolveAll(ctx, []string{"1C", "1D"})

	assert.Equal(t, 3, we.count())
	assert.True(t, r.Resolve(ctx, "1C").Checked)
	assert.False(t, r.Resolve(ctx, "1D").Checked)
}

func TestResolver_ThoroughQueriesEverything(t *testing.T) {
	var addrs []string
	for i := 0; i < 10; i++ {
		addrs = append(addrs, fmt.Sprintf("1T%02d", i))
	}
	we := newFake(types.SourceWalletExplorer)
	r := NewResolver(Options{SampleSize: 2, Thorough: true}, we)
	r.ResolveAll(context.Background(), addrs)

	assert.Equal(t, 10, we.count())
	report := r.Report(addrs)
	assert.True(t, report.SourcesExhausted)
	assert.Zero(t, report.SampleSkipped)
	assert.Empty(t, report.Warnings)
}

func TestResolver_CachesPerRun(t *testing.T) {
	we := newFake(types.SourceWalletExplorer)
	we.labels["1X"] = &adapter.LabelMatch{Label: "Exchange"}
	r := NewResolver(Options{}, we)
	ctx := context.Background()

	first := r.Resolve(ctx, "1X")
	second := r.Resolve(ctx, "1X")
	r.ResolveAll(ctx, []string{"1X", "1X", ""})

	assert.Equal(t, first, second)
	assert.Equal(t, 1, we.count())
}

func TestResolver_Report(t *testing.T) {
	local := NewLocalProvider(storage.NewMemoryLabelStore(
		storage.EntityRecord{Address: "1A", Entity: "Binance", Category: "exchange"},
		storage.EntityRecord{Address: "1B", Entity: "F2Pool", Category: "mining_pool"},
	))
	we := newFake(types.SourceWalletExplorer)
	we.labels["1C"] = &adapter.LabelMatch{Label: "Huobi.com"}

	r := NewResolver(Options{}, local, we)
	addrs := []string{"1A", "1B", "1C", "1D"}
	r.ResolveAll(context.Background(), addrs)

	report := r.Report(append(addrs, "1NeverResolved"))
	assert.Equal(t, []types.AttributionSource{types.SourceLocal, types.SourceWalletExplorer}, report.SourcesUsed)
	assert.Equal(t, 2, report.BySource[types.SourceLocal])
	assert.Equal(t, 1, report.BySource[types.SourceWalletExplorer])
	assert.Equal(t, map[string]int{"exchange": 1, "mining_pool": 1}, report.ByCategory)
	assert.False(t, report.Results["1NeverResolved"].Checked)
	assert.False(t, report.SourcesExhausted)

	report = r.Report(addrs)
	assert.True(t, report.SourcesExhausted)

	attributed, checked := report.Coverage([]types.Address{
		types.NewAddress("1A"), types.NewAddress("1B"), types.NewAddress("1C"), types.NewAddress("1D"),
	})
	assert.Equal(t, 3, attributed)
	assert.Equal(t, 4, checked)
}

func TestResolver_EmptyReportIsNotExhausted(t *testing.T) {
	r := NewResolver(Options{}, NewLocalProvider(storage.NewMemoryLabelStore()))
	report := r.Report(nil)
	assert.False(t, report.SourcesExhausted)
	assert.Empty(t, report.Results)
}
