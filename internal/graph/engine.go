// Package graph walks the Bitcoin transaction graph outward from an address.
//
// Traversal is breadth-first and layer by layer. Every transaction in a layer
// is fetched concurrently, then the layer is processed sequentially in queue
// order, so the result depends only on the data source's answers and never on
// goroutine scheduling.
package graph

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/dustline/internal/adapter"
	"github.com/dustline/internal/classifier"
	"github.com/dustline/internal/config"
	apperrors "github.com/dustline/internal/errors"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/types"
)

// DefaultWorkers bounds concurrent fetches within one layer
const DefaultWorkers = 5

// Attributor resolves addresses as the traversal discovers them
type Attributor interface {
	ResolveAll(ctx context.Context, addresses []string) map[string]types.AttributionResult
}

// Options bounds one traversal
type Options struct {
	Direction types.Direction
	MaxDepth  int // inclusive hop bound
	MaxNodes  int // distinct transactions fetched
	// Attributor is called once per layer with the addresses first seen in it; nil disables attribution
	Attributor Attributor
}

// Validate checks the bounds before any network call is made
func (o Options) Validate() error {
	if !o.Direction.IsValid() {
		return apperrors.NewInvalidParameterError("direction",
			fmt.Sprintf("must be one of forward, backward, both (got %q)", o.Direction))
	}
	if o.MaxDepth < config.MinDepth || o.MaxDepth > config.MaxDepth {
		return apperrors.NewInvalidParameterError("depth",
			fmt.Sprintf("must be between %d and %d (got %d)", config.MinDepth, config.MaxDepth, o.MaxDepth))
	}
	if o.MaxNodes < config.MinNodeLimit || o.MaxNodes > config.MaxNodeLimit {
		return apperrors.NewInvalidParameterError("nodeLimit",
			fmt.Sprintf("must be between %d and %d (got %d)", config.MinNodeLimit, config.MaxNodeLimit, o.MaxNodes))
	}
	return nil
}

// Engine traverses the transaction graph. It holds no per-run state and is
// safe for concurrent use.
type Engine struct {
	source  adapter.TransactionSource
	workers int
}

// NewEngine creates an engine reading from source
func NewEngine(source adapter.TransactionSource, workers int) *Engine {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Engine{source: source, workers: workers}
}

// frontierEntry is one queued transaction
type frontierEntry struct {
	txid  string
	depth int
}

// run is the state owned by a single Traverse call
type run struct {
	opts      Options
	result    *types.TraversalResult
	seen      map[string]struct{} // visited or queued txids
	truncated map[string]struct{} // pending txids cut by depth or node limits
	fetched   int
	logger    *logging.Logger
}

// Traverse walks the graph from origin. Data source failures become
// unresolved paths and never fail the call; only invalid options or a
// cancelled context return an error.
func (e *Engine) Traverse(ctx context.Context, origin string, opts Options) (*types.TraversalResult, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	r := &run{
		opts:      opts,
		result:    types.NewTraversalResult(origin, opts.Direction, opts.MaxDepth, opts.MaxNodes),
		seen:      make(map[string]struct{}),
		truncated: make(map[string]struct{}),
		logger: logging.FromContext(ctx).WithFields(map[string]interface{}{
			"origin":    origin,
			"direction": string(opts.Direction),
			"maxDepth":  opts.MaxDepth,
			"maxNodes":  opts.MaxNodes,
		}),
	}

	history, err := e.source.GetHistory(ctx, origin)
	if err != nil {
		if ctx.Err() != nil {
			return r.result, ctx.Err()
		}
		r.logger.WithError(err).Warn("origin history unavailable")
		r.result.UnresolvedPaths++
		r.result.AddWarning("Could not fetch transaction history for the origin address")
		return r.result, nil
	}
	if len(history) == 0 {
		r.result.AddWarning("No transaction history found for the origin address")
		return r.result, nil
	}

	layer := r.enqueue(nil, history, 1)
	for len(layer) > 0 {
		if err := ctx.Err(); err != nil {
			r.result.UnresolvedPaths += len(layer)
			r.finalize()
			return r.result, err
		}
		layer = r.limit(layer)
		records, errs := e.fetchLayer(ctx, layer)
		layer = r.processLayer(ctx, layer, records, errs)
	}

	r.finalize()
	r.logger.WithFields(map[string]interface{}{
		"nodes":      r.result.NodeCount(),
		"addresses":  len(r.result.Addresses),
		"unresolved": r.result.UnresolvedPaths,
		"depth":      r.result.MaxDepthReached,
	}).Info("traversal complete")
	return r.result, nil
}

// enqueue appends unseen txids at depth, or marks them truncated past the depth bound
func (r *run) enqueue(next []frontierEntry, txids []string, depth int) []frontierEntry {
	for _, txid := range txids {
		if txid == "" {
			continue
		}
		if _, ok := r.seen[txid]; ok {
			continue
		}
		if depth > r.opts.MaxDepth {
			r.truncated[txid] = struct{}{}
			continue
		}
		r.seen[txid] = struct{}{}
		next = append(next, frontierEntry{txid: txid, depth: depth})
	}
	return next
}

// limit trims the layer to the remaining node budget
func (r *run) limit(layer []frontierEntry) []frontierEntry {
	room := r.opts.MaxNodes - r.fetched
	if room >= len(layer) {
		return layer
	}
	if room < 0 {
		room = 0
	}
	for _, entry := range layer[room:] {
		r.truncated[entry.txid] = struct{}{}
	}
	r.result.NodeLimitHit = true
	return layer[:room]
}

// fetchLayer loads every transaction of the layer with bounded concurrency
func (e *Engine) fetchLayer(ctx context.Context, layer []frontierEntry) ([]*types.TransactionRecord, []error) {
	records := make([]*types.TransactionRecord, len(layer))
	errs := make([]error, len(layer))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, entry := range layer {
		i, entry := i, entry
		g.Go(func() error {
			records[i], errs[i] = e.source.GetTransaction(ctx, entry.txid)
			return nil
		})
	}
	_ = g.Wait()
	return records, errs
}

// processLayer turns fetched records into nodes in queue order and returns the next layer
func (r *run) processLayer(ctx context.Context, layer []frontierEntry, records []*types.TransactionRecord, errs []error) []frontierEntry {
	var next []frontierEntry
	var discovered []string

	for i, entry := range layer {
		r.fetched++
		if errs[i] != nil || records[i] == nil {
			r.result.UnresolvedPaths++
			r.logger.WithError(errs[i]).WithField("txid", entry.txid).Debug("transaction unavailable; branch dropped")
			continue
		}

		node := buildNode(records[i], entry.depth)
		if !r.result.AddNode(node) {
			continue
		}

		for _, addr := range r.nodeAddresses(node) {
			if r.result.AddAddress(addr) {
				discovered = append(discovered, addr)
			}
		}

		next = r.enqueue(next, neighbors(node, r.opts.Direction), entry.depth+1)
	}

	if r.opts.Attributor != nil && len(discovered) > 0 {
		r.opts.Attributor.ResolveAll(ctx, discovered)
	}
	return next
}

// buildNode classifies a record before anything else looks at it
func buildNode(rec *types.TransactionRecord, depth int) *types.TransactionNode {
	pattern, mixing := classifier.Classify(rec.Inputs, rec.Outputs)
	return &types.TransactionNode{
		TxID:           rec.TxID,
		Inputs:         rec.Inputs,
		Outputs:        rec.Outputs,
		Pattern:        pattern,
		MixingDetected: mixing,
		RBFSignaled:    classifier.SignalsRBF(rec.Inputs),
		Coinbase:       rec.IsCoinbase(),
		Depth:          depth,
	}
}

// nodeAddresses returns the addresses recorded for a node under the run's direction
func (r *run) nodeAddresses(node *types.TransactionNode) []string {
	var out []string
	if r.opts.Direction.Backward() {
		for _, in := range node.Inputs {
			if in.Address != "" {
				out = append(out, in.Address)
			}
		}
	}
	if r.opts.Direction.Forward() {
		for _, o := range node.Outputs {
			if o.Address != "" {
				out = append(out, o.Address)
			}
		}
	}
	return out
}

// neighbors lists adjacent txids: spenders of the outputs going forward,
// funders of the inputs going backward
func neighbors(node *types.TransactionNode, dir types.Direction) []string {
	var out []string
	if dir.Forward() {
		for _, o := range node.Outputs {
			if o.SpentByID != "" {
				out = append(out, o.SpentByID)
			}
		}
	}
	if dir.Backward() {
		for _, in := range node.Inputs {
			if !in.Coinbase && in.PrevTxID != "" {
				out = append(out, in.PrevTxID)
			}
		}
	}
	return out
}

// finalize folds truncated edges into the unresolved count and fills in summary fields
func (r *run) finalize() {
	res := r.result
	for txid := range r.truncated {
		if _, visited := res.Nodes[txid]; !visited {
			res.UnresolvedPaths++
		}
	}
	if res.NodeLimitHit {
		res.AddWarning(fmt.Sprintf("Node limit of %d reached; the graph was truncated", r.opts.MaxNodes))
	}

	nodes := res.OrderedNodes()
	if len(nodes) == 0 {
		return
	}
	root := nodes[0]
	res.RootPattern = root.Pattern
	res.RootPatternDetail = classifier.ShapeDetail(root.InputCount(), root.OutputCount())

	if isDormant(res.Origin, nodes) {
		res.Dormant = true
		res.AddWarning("No outgoing transactions found: the address has received funds but never spent them")
	}
}

// isDormant reports whether origin never appears as an input of a visited node
func isDormant(origin string, nodes []*types.TransactionNode) bool {
	for _, n := range nodes {
		for _, in := range n.Inputs {
			if in.Address == origin {
				return false
			}
		}
	}
	return true
}
