package bitcoin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrBodyBytes    = 4 << 10
)

var errNotFound = errors.New("esplora: not found")

// TxStatus is the confirmation state Esplora reports for a transaction.
type TxStatus struct {
	Confirmed   bool   `json:"confirmed"`
	BlockHeight uint64 `json:"block_height"`
	BlockHash   string `json:"block_hash"`
	BlockTime   int64  `json:"block_time"`
}

// UTXO is an unspent output of an address.
type UTXO struct {
	TxID   string   `json:"txid"`
	Vout   uint32   `json:"vout"`
	Value  int64    `json:"value"`
	Status TxStatus `json:"status"`
}

// Tx is the part of /tx/{txid} the adapter reads: the addresses its inputs
// spend from.
type Tx struct {
	TxID string `json:"txid"`
	Vin  []struct {
		Prevout *struct {
			Address string `json:"scriptpubkey_address"`
		} `json:"prevout"`
	} `json:"vin"`
}

// SpendsFrom reports whether any input of tx spends an output of address.
func (tx *Tx) SpendsFrom(address string) bool {
	for _, in := range tx.Vin {
		if in.Prevout != nil && in.Prevout.Address == address {
			return true
		}
	}
	return false
}

type addressStats struct {
	FundedTxoSum int64 `json:"funded_txo_sum"`
	SpentTxoSum  int64 `json:"spent_txo_sum"`
}

// AddressInfo is the /address/{address} summary.
type AddressInfo struct {
	Address    string       `json:"address"`
	ChainStats addressStats `json:"chain_stats"`
}

// Esplora is a minimal client of the Esplora REST API (blockstream.info,
// mempool.space and self-hosted electrs).
type Esplora struct {
	baseURL    string
	httpClient *http.Client
}

// NewEsplora creates a client for baseURL, e.g. https://blockstream.info/api.
func NewEsplora(baseURL string, timeout time.Duration) *Esplora {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &Esplora{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Address returns the confirmed funding summary of address.
func (e *Esplora) Address(ctx context.Context, address string) (*AddressInfo, error) {
	var info AddressInfo
	if err := e.getJSON(ctx, "/address/"+address, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// UTXOs lists unspent outputs of address, mempool outputs included.
func (e *Esplora) UTXOs(ctx context.Context, address string) ([]UTXO, error) {
	var utxos []UTXO
	if err := e.getJSON(ctx, "/address/"+address+"/utxo", &utxos); err != nil {
		return nil, err
	}
	return utxos, nil
}

// TipHeight returns the height of the best block.
func (e *Esplora) TipHeight(ctx context.Context) (uint64, error) {
	body, err := e.do(ctx, http.MethodGet, "/blocks/tip/height", nil)
	if err != nil {
		return 0, err
	}
	h, err := strconv.ParseUint(strings.TrimSpace(string(body)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid tip height %q: %w", body, err)
	}
	return h, nil
}

// TxStatus returns the confirmation state of txid; errNotFound when unknown.
func (e *Esplora) TxStatus(ctx context.Context, txid string) (*TxStatus, error) {
	var st TxStatus
	if err := e.getJSON(ctx, "/tx/"+txid+"/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Tx returns txid with its inputs' previous outputs; errNotFound when unknown.
func (e *Esplora) Tx(ctx context.Context, txid string) (*Tx, error) {
	var tx Tx
	if err := e.getJSON(ctx, "/tx/"+txid, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// Broadcast submits a raw transaction in hex and returns its txid.
func (e *Esplora) Broadcast(ctx context.Context, rawHex string) (string, error) {
	body, err := e.do(ctx, http.MethodPost, "/tx", strings.NewReader(rawHex))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func (e *Esplora) getJSON(ctx context.Context, path string, out any) error {
	body, err := e.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return nil
}

func (e *Esplora) do(ctx context.Context, method, path string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, e.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "text/plain")
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, readHTTPError(method, path, resp)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func readHTTPError(method, path string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	msg := strings.TrimSpace(string(b))
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s %s", chain.ErrRateLimited, method, path)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s %s: %s", errNotFound, method, path, msg)
	}
	return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, msg)
}
