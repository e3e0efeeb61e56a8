package types

// TraversalResult is everything the traversal engine learned in one run
type TraversalResult struct {
	Origin            string                      `json:"origin"`
	Direction         Direction                   `json:"direction"`
	RequestedMaxDepth int                         `json:"requestedMaxDepth"`
	RequestedMaxNodes int                         `json:"requestedMaxNodes"`
	Nodes             map[string]*TransactionNode `json:"nodes"`
	VisitOrder        []string                    `json:"visitOrder"`
	Addresses         []Address                   `json:"addresses"` // distinct, in first-seen order
	UnresolvedPaths   int                         `json:"unresolvedPaths"`
	MaxDepthReached   int                         `json:"maxDepthReached"`
	NodeLimitHit      bool                        `json:"nodeLimitHit"`
	Dormant           bool                        `json:"dormant"`
	RootPattern       Pattern                     `json:"rootPattern,omitempty"`
	RootPatternDetail string                      `json:"rootPatternDetail,omitempty"`
	TotalOutputValue  int64                       `json:"totalOutputValue"` // satoshis across visited nodes
	AddressTypes      map[AddressType]int         `json:"addressTypes"`
	Warnings          []string                    `json:"warnings,omitempty"`

	addressIndex map[string]struct{}
}

// NewTraversalResult creates an empty result for the given origin
func NewTraversalResult(origin string, direction Direction, maxDepth, maxNodes int) *TraversalResult {
	return &TraversalResult{
		Origin:            origin,
		Direction:         direction,
		RequestedMaxDepth: maxDepth,
		RequestedMaxNodes: maxNodes,
		Nodes:             make(map[string]*TransactionNode),
		AddressTypes:      make(map[AddressType]int),
		addressIndex:      make(map[string]struct{}),
	}
}

// AddNode records a visited node. It returns false if the txid was already present.
func (r *TraversalResult) AddNode(node *TransactionNode) bool {
	if _, exists := r.Nodes[node.TxID]; exists {
		return false
	}
	r.Nodes[node.TxID] = node
	r.VisitOrder = append(r.VisitOrder, node.TxID)
	for _, out := range node.Outputs {
		r.TotalOutputValue += out.Amount
	}
	if node.Depth > r.MaxDepthReached {
		r.MaxDepthReached = node.Depth
	}
	return true
}

// AddAddress records an address. It returns true the first time the address is seen.
func (r *TraversalResult) AddAddress(address string) bool {
	if address == "" {
		return false
	}
	if r.addressIndex == nil {
		r.addressIndex = make(map[string]struct{}, len(r.Addresses))
		for _, a := range r.Addresses {
			r.addressIndex[a.Value] = struct{}{}
		}
	}
	if _, seen := r.addressIndex[address]; seen {
		return false
	}
	r.addressIndex[address] = struct{}{}
	a := NewAddress(address)
	r.Addresses = append(r.Addresses, a)
	if r.AddressTypes == nil {
		r.AddressTypes = make(map[AddressType]int)
	}
	r.AddressTypes[a.Type]++
	return true
}

// HasAddress reports whether the address was observed
func (r *TraversalResult) HasAddress(address string) bool {
	if r.addressIndex != nil {
		_, ok := r.addressIndex[address]
		return ok
	}
	for _, a := range r.Addresses {
		if a.Value == address {
			return true
		}
	}
	return false
}

// NodeCount returns the number of visited transactions
func (r *TraversalResult) NodeCount() int {
	return len(r.Nodes)
}

// OrderedNodes returns the visited nodes in visitation order
func (r *TraversalResult) OrderedNodes() []*TransactionNode {
	nodes := make([]*TransactionNode, 0, len(r.VisitOrder))
	for _, txid := range r.VisitOrder {
		if n, ok := r.Nodes[txid]; ok {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// AddressValues returns the distinct addresses in first-seen order
func (r *TraversalResult) AddressValues() []string {
	out := make([]string, len(r.Addresses))
	for i, a := range r.Addresses {
		out[i] = a.Value
	}
	return out
}

// AddWarning appends a warning once
func (r *TraversalResult) AddWarning(msg string) {
	for _, w := range r.Warnings {
		if w == msg {
			return
		}
	}
	r.Warnings = append(r.Warnings, msg)
}
