package xrp

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/config"
	"github.com/JPCompany544/arbix-sub001/pkg/keys"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

const (
	testMnemonic = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"
	genesis      = "rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTh"
	genesisID    = "B5F762798A53D543A014CAF8B297CFF8F2F937E8"
)

func TestAccountIDEncoding(t *testing.T) {
	raw, err := hex.DecodeString(genesisID)
	require.NoError(t, err)
	var id AccountID
	copy(id[:], raw)
	assert.Equal(t, genesis, id.String())
	assert.Equal(t, "rrrrrrrrrrrrrrrrrrrrrhoLvTp", AccountID{}.String())

	back, err := DecodeAddress(genesis)
	require.NoError(t, err)
	assert.Equal(t, id, back)

	for _, bad := range []string{
		"",
		"0x9858EfFD232B4033E47d90003D41EC34EcaEda94",
		"rHb9CJAWyB4rj91VRWn96DkukG4bwdtyTj",
		"bc1qcr8te4kr609gcawutmrza0j4xv80jy8z306fyu",
	} {
		_, err := DecodeAddress(bad)
		assert.Error(t, err, bad)
	}
}

func TestPayment_SignAndSerialize(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	dest, err := DecodeAddress(genesis)
	require.NoError(t, err)

	tag := uint32(42)
	p := &Payment{
		Account:            AccountIDFromPublicKey(key.PubKey()),
		Destination:        dest,
		DestinationTag:     &tag,
		Amount:             25_000_000,
		Fee:                12,
		Sequence:           7,
		LastLedgerSequence: 1020,
	}

	_, err = p.Blob()
	require.Error(t, err, "unsigned payments have no blob")

	require.NoError(t, p.Sign(key))
	blob, err := p.Blob()
	require.NoError(t, err)

	// canonical header: TransactionType, Flags, Sequence, DestinationTag, LastLedgerSequence
	want := []byte{0x12, 0x00, 0x00, 0x22, 0x80, 0x00, 0x00, 0x00, 0x24, 0, 0, 0, 7, 0x2E, 0, 0, 0, 42, 0x20, 0x1B, 0, 0, 0x03, 0xFC}
	assert.Equal(t, want, blob[:len(want)])

	// Amount then Fee as positive native amounts
	rest := blob[len(want):]
	assert.Equal(t, byte(0x61), rest[0])
	assert.Equal(t, uint64(amountPositive|25_000_000), binary.BigEndian.Uint64(rest[1:9]))
	assert.Equal(t, byte(0x68), rest[9])
	assert.Equal(t, uint64(amountPositive|12), binary.BigEndian.Uint64(rest[10:18]))

	// accounts close the object
	tail := append([]byte{0x81, 0x14}, p.Account[:]...)
	tail = append(tail, 0x83, 0x14)
	tail = append(tail, dest[:]...)
	assert.True(t, bytes.HasSuffix(blob, tail))

	signing, err := p.signingBytes()
	require.NoError(t, err)
	digest := sha512Half(prefixTxSign, signing)
	sig, err := ecdsa.ParseDERSignature(p.TxnSignature)
	require.NoError(t, err)
	assert.True(t, sig.Verify(digest[:], key.PubKey()))

	hash, err := p.Hash()
	require.NoError(t, err)
	assert.Len(t, hash, 64)
	assert.Equal(t, strings.ToUpper(hash), hash)
}

func TestPayment_RejectsBadAmounts(t *testing.T) {
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	assert.Error(t, (&Payment{Amount: 0, Fee: 12}).Sign(key))
	assert.Error(t, (&Payment{Amount: maxDrops + 1, Fee: 12}).Sign(key))
}

// fakeRippled answers the JSON-RPC methods the adapter calls.
type fakeRippled struct {
	mu sync.Mutex

	balance   string
	sequence  uint32
	ledger    uint32
	funded    bool
	accountTx AccountTx
	txs       map[string]TxResult
	results   []string
	submitted []string
	minLedger []int64

	slowDown   bool
	submitDown bool
	txDown     bool
}

func newFakeRippled(t *testing.T) (*fakeRippled, string) {
	f := &fakeRippled{
		balance:  "100000000",
		sequence: 5,
		ledger:   1000,
		funded:   true,
		txs:      make(map[string]TxResult),
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv.URL
}

func (f *fakeRippled) serve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Method string           `json:"method"`
		Params []map[string]any `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	params := req.Params[0]

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.slowDown {
		reply(w, map[string]any{"status": "error", "error": "slowDown"})
		return
	}

	if (f.submitDown && req.Method == "submit") || (f.txDown && req.Method == "tx") {
		if req.Method == "submit" {
			f.submitted = append(f.submitted, params["tx_blob"].(string))
		}
		http.Error(w, "bad gateway", http.StatusBadGateway)
		return
	}

	switch req.Method {
	case "account_info":
		if !f.funded {
			reply(w, map[string]any{"status": "error", "error": "actNotFound", "error_message": "Account not found."})
			return
		}
		reply(w, map[string]any{
			"status":               "success",
			"account_data":         map[string]any{"Account": params["account"], "Balance": f.balance, "Sequence": f.sequence},
			"ledger_current_index": f.ledger,
		})
	case "ledger_current":
		reply(w, map[string]any{"status": "success", "ledger_current_index": f.ledger})
	case "account_tx":
		f.minLedger = append(f.minLedger, int64(params["ledger_index_min"].(float64)))
		reply(w, f.accountTx)
	case "tx":
		res, ok := f.txs[params["transaction"].(string)]
		if !ok {
			reply(w, map[string]any{"status": "error", "error": "txnNotFound"})
			return
		}
		reply(w, res)
	case "submit":
		blob := params["tx_blob"].(string)
		f.submitted = append(f.submitted, blob)
		result := "tesSUCCESS"
		if len(f.results) > 0 {
			result, f.results = f.results[0], f.results[1:]
		}
		reply(w, map[string]any{"status": "success", "engine_result": result})
	default:
		reply(w, map[string]any{"status": "error", "error": "unknownCmd"})
	}
}

func reply(w http.ResponseWriter, result any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"result": result})
}

// sequences reads the Sequence field of every submitted blob. It sits right
// after the fixed TransactionType and Flags fields.
func (f *fakeRippled) sequences(t *testing.T) []uint32 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []uint32
	for _, b := range f.submitted {
		raw, err := hex.DecodeString(b)
		require.NoError(t, err)
		require.Equal(t, byte(0x24), raw[8])
		out = append(out, binary.BigEndian.Uint32(raw[9:13]))
	}
	return out
}

func newTestClient(t *testing.T) (*Client, *fakeRippled) {
	t.Helper()
	fake, url := newFakeRippled(t)

	seed, err := keys.SeedFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	queue := nonce.NewQueue(time.Minute)
	t.Cleanup(queue.Close)

	cfg := &config.XRPConfig{
		Enabled:        true,
		RPCURL:         url,
		FeeDrops:       12,
		LedgerOffset:   20,
		RequestTimeout: 5 * time.Second,
	}
	return New(cfg, keys.NewDeriver(seed), queue, nonce.NewManager(), zap.NewNop()), fake
}

func TestClient_SharedAddress(t *testing.T) {
	client, _ := newTestClient(t)
	assert.Equal(t, chain.ModeShared, client.Mode())

	a0, err := client.DeriveAddress(0)
	require.NoError(t, err)
	a9, err := client.DeriveAddress(9)
	require.NoError(t, err)
	assert.Equal(t, a0, a9)
	assert.True(t, client.IsValidAddress(a0))
	assert.True(t, strings.HasPrefix(a0, "r"))
}

func TestClient_SendTracksSequence(t *testing.T) {
	client, fake := newTestClient(t)
	hot, err := client.DeriveAddress(0)
	require.NoError(t, err)

	tag := uint32(3)
	req := chain.SendRequest{ExpectedFrom: hot, To: genesis, Value: amount.FromInt64(1_000_000), DestinationTag: &tag}
	for i := 0; i < 3; i++ {
		hash, err := client.Send(context.Background(), req)
		require.NoError(t, err)
		assert.Len(t, hash, 64)
	}
	assert.Equal(t, []uint32{5, 6, 7}, fake.sequences(t))

	// a rejected submit drops the cached sequence; the next send refetches it
	fake.mu.Lock()
	fake.results = []string{"tefPAST_SEQ"}
	fake.sequence = 11
	fake.mu.Unlock()

	_, err = client.Send(context.Background(), req)
	require.Error(t, err)
	_, err = client.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []uint32{5, 6, 7, 8, 11}, fake.sequences(t))
}

func TestClient_SendSubmitFailure(t *testing.T) {
	client, fake := newTestClient(t)
	req := chain.SendRequest{To: genesis, Value: amount.FromInt64(1_000_000)}

	fake.mu.Lock()
	fake.submitDown = true
	fake.mu.Unlock()
	hash, err := client.Send(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, hash, "an unknown hash on the node means nothing was applied")

	fake.mu.Lock()
	fake.txDown = true
	fake.mu.Unlock()
	hash, err = client.Send(context.Background(), req)
	require.ErrorIs(t, err, chain.ErrBroadcastUnknown)
	assert.Len(t, hash, 64)
	assert.True(t, chain.MaybeBroadcast(hash, err))
}

func TestClient_SendRejections(t *testing.T) {
	client, fake := newTestClient(t)
	hot, err := client.DeriveAddress(0)
	require.NoError(t, err)

	tests := []struct {
		name    string
		req     chain.SendRequest
		wantErr error
	}{
		{"invalid destination", chain.SendRequest{To: "0xdead", Value: amount.FromInt64(1)}, chain.ErrInvalidAddress},
		{"self payment", chain.SendRequest{To: hot, Value: amount.FromInt64(1)}, chain.ErrInvalidAddress},
		{"wrong source", chain.SendRequest{ExpectedFrom: genesis, To: genesis, Value: amount.FromInt64(1)}, chain.ErrDerivationMismatch},
		// 100 XRP held, 1 XRP reserve and 12 drops fee
		{"reserve not covered", chain.SendRequest{To: genesis, Value: amount.FromInt64(99_000_000)}, chain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Send(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
	assert.Empty(t, fake.submitted)
}

func payment(hash, dest string, tag *uint32, ledger uint32, delivered string, result string) AccountTxEntry {
	return AccountTxEntry{
		Tx: &TxJSON{
			Hash:            hash,
			TransactionType: "Payment",
			Destination:     dest,
			DestinationTag:  tag,
			Date:            700_000_000,
			LedgerIndex:     ledger,
		},
		Meta:      TxMeta{TransactionResult: result, DeliveredAmount: json.RawMessage(delivered)},
		Validated: true,
	}
}

func TestClient_ScanFiltersPayments(t *testing.T) {
	client, fake := newTestClient(t)
	hot, err := client.DeriveAddress(0)
	require.NoError(t, err)

	tag := func(v uint32) *uint32 { return &v }
	unvalidated := payment("E5", hot, tag(4), 1003, `"1000"`, "tesSUCCESS")
	unvalidated.Validated = false
	offer := payment("E6", hot, tag(4), 1003, `"1000"`, "tesSUCCESS")
	offer.Tx.TransactionType = "OfferCreate"

	fake.accountTx = AccountTx{
		LedgerIndexMax: 1010,
		Transactions: []AccountTxEntry{
			payment("A1", hot, tag(7), 1001, `"2500000"`, "tesSUCCESS"),
			payment("B2", hot, nil, 1002, `"1000"`, "tesSUCCESS"),
			payment("C3", genesis, tag(7), 1002, `"1000"`, "tesSUCCESS"),
			payment("D4", hot, tag(8), 1002, `{"currency":"USD","issuer":"`+genesis+`","value":"5"}`, "tesSUCCESS"),
			payment("E4", hot, tag(8), 1002, `"1000"`, "tecPATH_DRY"),
			unvalidated,
			offer,
		},
	}

	res, err := client.Scan(context.Background(), chain.ScanRequest{Cursor: "1000"})
	require.NoError(t, err)
	assert.Equal(t, []int64{1001}, fake.minLedger)
	assert.Equal(t, "1010", res.Cursor)

	require.Len(t, res.Deposits, 1)
	dep := res.Deposits[0]
	assert.Equal(t, "A1", dep.TxHash)
	assert.Equal(t, hot, dep.To)
	require.NotNil(t, dep.DestinationTag)
	assert.Equal(t, uint32(7), *dep.DestinationTag)
	assert.Equal(t, "2.5", client.ToHumanUnit(dep.Amount))
	assert.True(t, dep.Confirmed)
	assert.Equal(t, time.Unix(700_000_000+rippleEpoch, 0), dep.Timestamp)

	_, err = client.Scan(context.Background(), chain.ScanRequest{})
	require.NoError(t, err)
	assert.Equal(t, []int64{1001, -1}, fake.minLedger)
}

func TestClient_GetTransactionStatus(t *testing.T) {
	client, fake := newTestClient(t)
	fake.txs["OK"] = TxResult{TxJSON: TxJSON{LedgerIndex: 900}, Meta: TxMeta{TransactionResult: "tesSUCCESS"}, Validated: true}
	fake.txs["BAD"] = TxResult{Meta: TxMeta{TransactionResult: "tecUNFUNDED_PAYMENT"}, Validated: true}
	fake.txs["OPEN"] = TxResult{}

	tests := []struct {
		hash string
		want chain.TxState
	}{
		{"OK", chain.TxConfirmed},
		{"BAD", chain.TxFailed},
		{"OPEN", chain.TxPending},
		{"GONE", chain.TxNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.hash, func(t *testing.T) {
			st, err := client.GetTransactionStatus(context.Background(), tt.hash, chain.Outbound)
			require.NoError(t, err)
			assert.Equal(t, tt.want, st.State)
		})
	}
}

func TestClient_GetBalance(t *testing.T) {
	client, fake := newTestClient(t)
	hot, err := client.DeriveAddress(0)
	require.NoError(t, err)

	bal, err := client.GetBalance(context.Background(), hot)
	require.NoError(t, err)
	assert.Equal(t, "100", client.ToHumanUnit(bal))

	fake.mu.Lock()
	fake.funded = false
	fake.mu.Unlock()
	bal, err = client.GetBalance(context.Background(), hot)
	require.NoError(t, err)
	assert.True(t, bal.IsZero())

	fake.mu.Lock()
	fake.slowDown = true
	fake.mu.Unlock()
	_, err = client.GetBalance(context.Background(), hot)
	assert.ErrorIs(t, err, chain.ErrRateLimited)
}
