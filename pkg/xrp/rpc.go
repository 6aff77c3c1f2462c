package xrp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
)

const (
	defaultHTTPTimeout = 15 * time.Second
	maxErrBodyBytes    = 4 << 10
)

// RPCError is an error result returned by rippled.
type RPCError struct {
	Code    string
	Message string
}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return "xrpl: " + e.Code
	}
	return fmt.Sprintf("xrpl: %s: %s", e.Code, e.Message)
}

func isRPCError(err error, code string) bool {
	var rpcErr *RPCError
	return errors.As(err, &rpcErr) && rpcErr.Code == code
}

// AccountInfo is the account_info result.
type AccountInfo struct {
	AccountData struct {
		Account  string `json:"Account"`
		Balance  string `json:"Balance"`
		Sequence uint32 `json:"Sequence"`
	} `json:"account_data"`
	LedgerCurrentIndex uint32 `json:"ledger_current_index"`
	LedgerIndex        uint32 `json:"ledger_index"`
	Validated          bool   `json:"validated"`
}

// TxJSON is the subset of transaction fields the adapter reads.
type TxJSON struct {
	Hash            string  `json:"hash"`
	TransactionType string  `json:"TransactionType"`
	Account         string  `json:"Account"`
	Destination     string  `json:"Destination"`
	DestinationTag  *uint32 `json:"DestinationTag"`
	Date            int64   `json:"date"`
	LedgerIndex     uint32  `json:"ledger_index"`
}

// TxMeta is transaction metadata. DeliveredAmount is a drops string for XRP
// and an object for issued currencies.
type TxMeta struct {
	TransactionResult string          `json:"TransactionResult"`
	DeliveredAmount   json.RawMessage `json:"delivered_amount"`
}

// AccountTxEntry is one element of account_tx. API v1 nodes put the
// transaction under tx, v2 under tx_json with the hash alongside.
type AccountTxEntry struct {
	Tx        *TxJSON `json:"tx"`
	TxV2      *TxJSON `json:"tx_json"`
	Hash      string  `json:"hash"`
	Meta      TxMeta  `json:"meta"`
	Validated bool    `json:"validated"`
}

// Transaction returns the embedded transaction with its hash filled in.
func (e AccountTxEntry) Transaction() *TxJSON {
	tx := e.Tx
	if tx == nil {
		tx = e.TxV2
	}
	if tx != nil && tx.Hash == "" {
		tx.Hash = e.Hash
	}
	return tx
}

// AccountTx is the account_tx result.
type AccountTx struct {
	LedgerIndexMin int64            `json:"ledger_index_min"`
	LedgerIndexMax int64            `json:"ledger_index_max"`
	Transactions   []AccountTxEntry `json:"transactions"`
	Marker         json.RawMessage  `json:"marker"`
}

// TxResult is the tx result.
type TxResult struct {
	TxJSON
	Meta      TxMeta `json:"meta"`
	Validated bool   `json:"validated"`
}

// SubmitResult is the submit result.
type SubmitResult struct {
	EngineResult        string `json:"engine_result"`
	EngineResultMessage string `json:"engine_result_message"`
	TxJSON              struct {
		Hash string `json:"hash"`
	} `json:"tx_json"`
}

// JSONRPC calls rippled's JSON-RPC interface.
type JSONRPC struct {
	url        string
	httpClient *http.Client
}

// NewJSONRPC creates a client for url.
func NewJSONRPC(url string, timeout time.Duration) *JSONRPC {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &JSONRPC{url: url, httpClient: &http.Client{Timeout: timeout}}
}

// AccountInfo reads account at ledger ("validated" or "current"). A missing
// account yields an actNotFound RPCError.
func (c *JSONRPC) AccountInfo(ctx context.Context, account, ledger string) (*AccountInfo, error) {
	var out AccountInfo
	err := c.call(ctx, "account_info", map[string]any{
		"account":      account,
		"ledger_index": ledger,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LedgerCurrent returns the index of the open ledger.
func (c *JSONRPC) LedgerCurrent(ctx context.Context) (uint32, error) {
	var out struct {
		LedgerCurrentIndex uint32 `json:"ledger_current_index"`
	}
	if err := c.call(ctx, "ledger_current", map[string]any{}, &out); err != nil {
		return 0, err
	}
	return out.LedgerCurrentIndex, nil
}

// AccountTx lists validated transactions of account from ledger minLedger
// onwards, oldest first. A negative minLedger means the earliest available.
func (c *JSONRPC) AccountTx(ctx context.Context, account string, minLedger int64, limit int) (*AccountTx, error) {
	var out AccountTx
	err := c.call(ctx, "account_tx", map[string]any{
		"account":          account,
		"ledger_index_min": minLedger,
		"ledger_index_max": -1,
		"limit":            limit,
		"forward":          true,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Tx looks a transaction up by hash. Unknown hashes yield a txnNotFound
// RPCError.
func (c *JSONRPC) Tx(ctx context.Context, hash string) (*TxResult, error) {
	var out TxResult
	if err := c.call(ctx, "tx", map[string]any{"transaction": hash}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Submit submits a signed transaction blob in hex.
func (c *JSONRPC) Submit(ctx context.Context, blob string) (*SubmitResult, error) {
	var out SubmitResult
	if err := c.call(ctx, "submit", map[string]any{"tx_blob": blob}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type request struct {
	Method string `json:"method"`
	Params []any  `json:"params"`
}

type envelope struct {
	Result json.RawMessage `json:"result"`
}

type status struct {
	Status       string `json:"status"`
	Error        string `json:"error"`
	ErrorMessage string `json:"error_message"`
}

func (c *JSONRPC) call(ctx context.Context, method string, params any, out any) error {
	body, err := json.Marshal(request{Method: method, Params: []any{params}})
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readHTTPError(method, resp)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	var st status
	if err := json.Unmarshal(env.Result, &st); err != nil {
		return fmt.Errorf("failed to decode %s status: %w", method, err)
	}
	if st.Status == "error" || st.Error != "" {
		if st.Error == "slowDown" {
			return fmt.Errorf("%w: %s", chain.ErrRateLimited, method)
		}
		return fmt.Errorf("%s: %w", method, &RPCError{Code: st.Error, Message: st.ErrorMessage})
	}
	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s result: %w", method, err)
	}
	return nil
}

func readHTTPError(method string, resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrBodyBytes))
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusServiceUnavailable {
		return fmt.Errorf("%w: %s returned %d", chain.ErrRateLimited, method, resp.StatusCode)
	}
	return fmt.Errorf("%s returned %d: %s", method, resp.StatusCode, bytes.TrimSpace(b))
}
