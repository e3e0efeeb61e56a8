package types

// SequenceFinal is the sequence number at or above which an input opts out of RBF
const SequenceFinal uint32 = 0xFFFFFFFE

// TxInput is one input of a transaction as reported by the data source
type TxInput struct {
	Address  string `json:"address,omitempty"` // empty for coinbase or non-standard scripts
	Amount   int64  `json:"amount"`            // satoshis
	Sequence uint32 `json:"sequence"`
	PrevTxID string `json:"prevTxid,omitempty"`
	PrevVout uint32 `json:"prevVout"`
	Coinbase bool   `json:"coinbase,omitempty"`
}

// TxOutput is one output of a transaction as reported by the data source
type TxOutput struct {
	Address   string `json:"address,omitempty"` // empty for OP_RETURN or non-standard scripts
	Amount    int64  `json:"amount"`            // satoshis
	SpentByID string `json:"spentBy,omitempty"` // spending txid when known
}

// TransactionRecord is the raw transaction payload served by the data source
type TransactionRecord struct {
	TxID        string     `json:"txid"`
	Inputs      []TxInput  `json:"inputs"`
	Outputs     []TxOutput `json:"outputs"`
	Fee         int64      `json:"fee"`
	BlockHeight *int64     `json:"blockHeight,omitempty"`
	BlockTime   *int64     `json:"blockTime,omitempty"`
}

// IsCoinbase reports whether the transaction mints new coins
func (r *TransactionRecord) IsCoinbase() bool {
	for _, in := range r.Inputs {
		if in.Coinbase {
			return true
		}
	}
	return false
}

// TransactionNode is a visited transaction in the traversal graph.
// It is built once per visit and never modified afterwards.
type TransactionNode struct {
	TxID           string     `json:"txid"`
	Inputs         []TxInput  `json:"inputs"`
	Outputs        []TxOutput `json:"outputs"`
	Pattern        Pattern    `json:"pattern"`
	MixingDetected bool       `json:"mixingDetected"`
	RBFSignaled    bool       `json:"rbfSignaled"`
	Coinbase       bool       `json:"coinbase"`
	Depth          int        `json:"depth"`
}

// InputCount returns the number of inputs
func (n *TransactionNode) InputCount() int { return len(n.Inputs) }

// OutputCount returns the number of outputs
func (n *TransactionNode) OutputCount() int { return len(n.Outputs) }
