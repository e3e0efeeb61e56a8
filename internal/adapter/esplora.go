package adapter

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/dustline/internal/circuitbreaker"
	"github.com/dustline/internal/logging"
	"github.com/dustline/internal/ratelimit"
	"github.com/dustline/internal/retry"
	"github.com/dustline/internal/types"
)

// defaultSequence is what an input without an explicit sequence carries
const defaultSequence uint32 = 0xFFFFFFFF

// EsploraConfig configures the Esplora transaction source
type EsploraConfig struct {
	// Endpoints are base URLs in priority order, e.g. mempool.space then blockstream.info
	Endpoints    []string
	Timeout      time.Duration
	HistoryLimit int
	Retry        *retry.RetryConfig
}

// EsploraClient fetches transactions from Esplora-compatible REST APIs
type EsploraClient struct {
	pool         *EndpointPool
	http         *httpGetter
	historyLimit int
}

// Esplora response shapes

type esploraTx struct {
	TxID   string        `json:"txid"`
	Vin    []esploraVin  `json:"vin"`
	Vout   []esploraVout `json:"vout"`
	Fee    int64         `json:"fee"`
	Status esploraStatus `json:"status"`
}

type esploraVin struct {
	TxID       string       `json:"txid"`
	Vout       uint32       `json:"vout"`
	Prevout    *esploraVout `json:"prevout"`
	Sequence   *uint32      `json:"sequence"`
	IsCoinbase bool         `json:"is_coinbase"`
}

type esploraVout struct {
	ScriptPubKeyAddress string `json:"scriptpubkey_address"`
	ScriptPubKeyType    string `json:"scriptpubkey_type"`
	Value               int64  `json:"value"`
}

type esploraStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight *int64 `json:"block_height"`
	BlockTime   *int64 `json:"block_time"`
}

type esploraOutspend struct {
	Spent bool   `json:"spent"`
	TxID  string `json:"txid"`
}

// NewEsploraClient creates a client that fails over across cfg.Endpoints
func NewEsploraClient(cfg EsploraConfig, limits *ratelimit.Registry, breakers *circuitbreaker.Manager) (*EsploraClient, error) {
	pool, err := NewEndpointPool(ratelimit.SourceEsplora, breakers, cfg.Endpoints...)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 25
	}

	return &EsploraClient{
		pool:         pool,
		http:         newHTTPGetter(ratelimit.SourceEsplora, &http.Client{Timeout: timeout}, limits, cfg.Retry),
		historyLimit: historyLimit,
	}, nil
}

// GetTransaction fetches a transaction and the spending txid of each output.
// A failed outspends lookup leaves SpentByID empty rather than failing the call.
func (c *EsploraClient) GetTransaction(ctx context.Context, txid string) (*types.TransactionRecord, error) {
	var tx esploraTx
	err := c.pool.Do(ctx, func(ctx context.Context, baseURL string) error {
		return c.http.getJSON(ctx, baseURL+"/tx/"+url.PathEscape(txid), nil, &tx)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, NewSourceError(ratelimit.SourceEsplora, "GetTransaction", err, map[string]interface{}{"txid": txid})
	}

	var outspends []esploraOutspend
	err = c.pool.Do(ctx, func(ctx context.Context, baseURL string) error {
		return c.http.getJSON(ctx, baseURL+"/tx/"+url.PathEscape(txid)+"/outspends", nil, &outspends)
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logging.FromContext(ctx).WithField("txid", txid).WithError(err).Debug("Outspends unavailable")
		outspends = nil
	}

	return convertEsploraTx(&tx, outspends), nil
}

// GetHistory returns up to the configured number of most recent txids for an address
func (c *EsploraClient) GetHistory(ctx context.Context, address string) ([]string, error) {
	var txs []struct {
		TxID string `json:"txid"`
	}
	err := c.pool.Do(ctx, func(ctx context.Context, baseURL string) error {
		return c.http.getJSON(ctx, baseURL+"/address/"+url.PathEscape(address)+"/txs", nil, &txs)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, NewSourceError(ratelimit.SourceEsplora, "GetHistory", err, map[string]interface{}{"address": address})
	}

	limit := c.historyLimit
	if len(txs) < limit {
		limit = len(txs)
	}
	txids := make([]string, 0, limit)
	for _, t := range txs[:limit] {
		if t.TxID != "" {
			txids = append(txids, t.TxID)
		}
	}
	return txids, nil
}

// Health reports per-endpoint health
func (c *EsploraClient) Health() []*ProviderHealth {
	return c.pool.Health()
}

func convertEsploraTx(tx *esploraTx, outspends []esploraOutspend) *types.TransactionRecord {
	record := &types.TransactionRecord{
		TxID:    tx.TxID,
		Inputs:  make([]types.TxInput, 0, len(tx.Vin)),
		Outputs: make([]types.TxOutput, 0, len(tx.Vout)),
		Fee:     tx.Fee,
	}
	if tx.Status.Confirmed {
		record.BlockHeight = tx.Status.BlockHeight
		record.BlockTime = tx.Status.BlockTime
	}

	for _, vin := range tx.Vin {
		in := types.TxInput{
			PrevTxID: vin.TxID,
			PrevVout: vin.Vout,
			Sequence: defaultSequence,
			Coinbase: vin.IsCoinbase,
		}
		if vin.Sequence != nil {
			in.Sequence = *vin.Sequence
		}
		if vin.IsCoinbase {
			in.PrevTxID = ""
		}
		if vin.Prevout != nil {
			in.Address = vin.Prevout.ScriptPubKeyAddress
			in.Amount = vin.Prevout.Value
		}
		record.Inputs = append(record.Inputs, in)
	}

	for i, vout := range tx.Vout {
		out := types.TxOutput{
			Address: vout.ScriptPubKeyAddress,
			Amount:  vout.Value,
		}
		if i < len(outspends) && outspends[i].Spent {
			out.SpentByID = outspends[i].TxID
		}
		record.Outputs = append(record.Outputs, out)
	}

	return record
}

// String describes the client for logs
func (c *EsploraClient) String() string {
	return fmt.Sprintf("esplora(%d endpoints)", len(c.pool.endpoints))
}
