// Package attribution resolves addresses to known-entity labels through an
// ordered list of tiers.
//
// Tiers are consulted in order and the first named match wins. One tier may
// be sampled: only the first SampleSize addresses that reach it, in the order
// they were submitted, are queried. Addresses past the cap are left unchecked.
package attribution

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/types"
)

const (
	// DefaultSampleSize caps sampled-tier queries per run
	DefaultSampleSize = 200
	// DefaultConcurrency bounds in-flight lookups per tier
	DefaultConcurrency = 5
)

// Options configures a Resolver
type Options struct {
	// Thorough disables the sample cap
	Thorough bool
	// SampleSize caps queries to the sampled tier; zero means DefaultSampleSize
	SampleSize int
	// SampledSource names the tier the cap applies to
	SampledSource types.AttributionSource
	// Concurrency bounds in-flight lookups; rate limits are enforced by the providers
	Concurrency int
}

// Resolver resolves addresses for one run. Results are cached for the
// lifetime of the Resolver; create one per run.
type Resolver struct {
	providers []Provider
	opts      Options

	mu            sync.Mutex
	cache         map[string]types.AttributionResult
	sampleQueried int
	sampleSkipped int
	failures      map[types.AttributionSource]int
}

// NewResolver creates a resolver consulting providers in the given order
func NewResolver(opts Options, providers ...Provider) *Resolver {
	if opts.SampleSize <= 0 {
		opts.SampleSize = DefaultSampleSize
	}
	if opts.SampledSource == "" {
		opts.SampledSource = types.SourceWalletExplorer
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Resolver{
		providers: providers,
		opts:      opts,
		cache:     make(map[string]types.AttributionResult),
		failures:  make(map[types.AttributionSource]int),
	}
}

// Sources returns the configured tiers in consultation order
func (r *Resolver) Sources() []types.AttributionSource {
	out := make([]types.AttributionSource, len(r.providers))
	for i, p := range r.providers {
		out[i] = p.Source()
	}
	return out
}

// Resolve resolves a single address
func (r *Resolver) Resolve(ctx context.Context, address string) types.AttributionResult {
	return r.ResolveAll(ctx, []string{address})[address]
}

// pending tracks one address while it moves through the tiers
type pending struct {
	address    string
	match      *adapter.LabelMatch
	source     types.AttributionSource
	incomplete bool // some tier skipped or failed
}

// ResolveAll resolves every address, consulting each tier for all still
// unmatched addresses before moving to the next tier. Sample slots are
// handed out in input order, so identical input yields identical sampling.
func (r *Resolver) ResolveAll(ctx context.Context, addresses []string) map[string]types.AttributionResult {
	out := make(map[string]types.AttributionResult, len(addresses))

	var work []*pending
	seen := make(map[string]struct{}, len(addresses))
	r.mu.Lock()
	for _, addr := range addresses {
		if addr == "" {
			continue
		}
		if _, dup := seen[addr]; dup {
			continue
		}
		seen[addr] = struct{}{}
		if res, ok := r.cache[addr]; ok {
			out[addr] = res
			continue
		}
		work = append(work, &pending{address: addr})
	}
	r.mu.Unlock()

	for _, p := range r.providers {
		var todo []*pending
		for _, w := range work {
			if !w.match.Named() {
				todo = append(todo, w)
			}
		}
		if len(todo) == 0 {
			break
		}
		if p.Source() == r.opts.SampledSource && !r.opts.Thorough {
			todo = r.takeSample(todo)
		}
		r.consult(ctx, p, todo)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range work {
		res := types.AttributionResult{Address: w.address, Source: types.SourceNone}
		if w.match.Named() {
			res.Matched = true
			res.Label = w.match.Label
			res.Category = w.match.Category
			res.Source = w.source
		}
		res.Checked = res.Matched || !w.incomplete
		r.cache[w.address] = res
		out[w.address] = res
	}
	return out
}

// takeSample returns the addresses that still fit under the sample cap and
// marks the rest incomplete
func (r *Resolver) takeSample(todo []*pending) []*pending {
	r.mu.Lock()
	defer r.mu.Unlock()

	room := r.opts.SampleSize - r.sampleQueried
	if room < 0 {
		room = 0
	}
	if room >= len(todo) {
		r.sampleQueried += len(todo)
		return todo
	}
	for _, w := range todo[room:] {
		w.incomplete = true
	}
	r.sampleQueried += room
	r.sampleSkipped += len(todo) - room
	return todo[:room]
}

// consult queries one tier for every pending address. Failures never
// propagate; they leave the address incomplete.
func (r *Resolver) consult(ctx context.Context, p Provider, todo []*pending) {
	logger := logging.FromContext(ctx).WithField("tier", string(p.Source()))

	var g errgroup.Group
	g.SetLimit(r.opts.Concurrency)
	for _, w := range todo {
		w := w
		g.Go(func() error {
			match, err := p.Lookup(ctx, w.address)
			if err != nil {
				w.incomplete = true
				r.mu.Lock()
				r.failures[p.Source()]++
				r.mu.Unlock()
				logger.WithError(err).WithField("address", w.address).Debug("attribution tier lookup failed")
				return nil
			}
			if match.Named() {
				w.match = match
				w.source = p.Source()
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Report summarizes the results for the given graph addresses
func (r *Resolver) Report(addresses []string) *types.AttributionReport {
	r.mu.Lock()
	defer r.mu.Unlock()

	report := &types.AttributionReport{
		Results:       make(map[string]types.AttributionResult, len(addresses)),
		SourcesUsed:   make([]types.AttributionSource, 0, len(r.providers)),
		BySource:      make(map[types.AttributionSource]int),
		ByCategory:    make(map[string]int),
		SampleQueried: r.sampleQueried,
		SampleSkipped: r.sampleSkipped,
	}
	for _, p := range r.providers {
		report.SourcesUsed = append(report.SourcesUsed, p.Source())
	}

	allChecked := true
	for _, addr := range addresses {
		res, ok := r.cache[addr]
		if !ok {
			res = types.AttributionResult{Address: addr, Source: types.SourceNone}
		}
		report.Results[addr] = res
		if !res.Checked {
			allChecked = false
		}
		if res.Matched {
			report.BySource[res.Source]++
			if res.Category != "" {
				report.ByCategory[res.Category]++
			}
		}
	}
	report.SourcesExhausted = len(addresses) > 0 && allChecked

	if r.sampleSkipped > 0 {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"%s: queried %d of %d unattributed addresses (capped for speed); use thorough mode to check all",
			r.opts.SampledSource, r.sampleQueried, r.sampleQueried+r.sampleSkipped))
	}

	failed := make([]string, 0, len(r.failures))
	for src := range r.failures {
		failed = append(failed, string(src))
	}
	sort.Strings(failed)
	for _, src := range failed {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"%s: %d lookups failed and were left unchecked", src, r.failures[types.AttributionSource(src)]))
	}

	return report
}
