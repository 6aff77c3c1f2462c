package bitcoin

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/nonce"
)

// dustLimit is the smallest change output worth creating; anything at or
// below it is left to the miner.
const dustLimit = 546

// broadcastTimeout bounds the detached broadcast.
const broadcastTimeout = 30 * time.Second

type selection struct {
	inputs []UTXO
	total  int64
	change int64
}

// selectUTXOs picks confirmed outputs largest first until they cover
// value + fee.
func selectUTXOs(utxos []UTXO, value, fee int64) (selection, error) {
	candidates := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		if u.Status.Confirmed {
			candidates = append(candidates, u)
		}
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Value > candidates[j].Value })

	target := value + fee
	var sel selection
	for _, u := range candidates {
		if sel.total >= target {
			break
		}
		sel.inputs = append(sel.inputs, u)
		sel.total += u.Value
	}
	if sel.total < target {
		return selection{}, fmt.Errorf("%w: confirmed utxos hold %d sats, transfer needs %d",
			chain.ErrInsufficientFunds, sel.total, target)
	}
	if change := sel.total - target; change > dustLimit {
		sel.change = change
	}
	return sel, nil
}

// Send spends confirmed UTXOs of the address at req.FromIndex. Sends from one
// address are serialized so concurrent withdrawals never pick the same output.
func (c *Client) Send(ctx context.Context, req chain.SendRequest) (string, error) {
	to, err := c.decodeAddress(req.To)
	if err != nil {
		return "", err
	}
	if req.Value.Sign() <= 0 || !req.Value.Big().IsInt64() {
		return "", fmt.Errorf("invalid transfer value %s", req.Value)
	}

	from, key, err := c.deriveKey(req.FromIndex)
	if err != nil {
		return "", err
	}
	if req.ExpectedFrom != "" && req.ExpectedFrom != from.EncodeAddress() {
		return "", fmt.Errorf("%w: index %d derives %s, expected %s",
			chain.ErrDerivationMismatch, req.FromIndex, from.EncodeAddress(), req.ExpectedFrom)
	}

	return c.queue.Do(ctx, nonce.Key(chain.BTC.String(), from.EncodeAddress()), func(ctx context.Context) (string, error) {
		return c.send(ctx, key, from, to, req.Value.Big().Int64())
	})
}

func (c *Client) send(
	ctx context.Context,
	key *btcec.PrivateKey,
	from *btcutil.AddressWitnessPubKeyHash,
	to btcutil.Address,
	value int64,
) (string, error) {
	source := from.EncodeAddress()
	utxos, err := c.api.UTXOs(ctx, source)
	if err != nil {
		return "", fmt.Errorf("failed to list utxos: %w", err)
	}

	sel, err := selectUTXOs(c.spendable(source, utxos), value, c.config.FeeSats)
	if err != nil {
		return "", err
	}

	tx, err := buildTx(sel, from, to, value)
	if err != nil {
		return "", err
	}
	if err := signTx(tx, sel.inputs, from, key); err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		return "", fmt.Errorf("failed to serialize transaction: %w", err)
	}

	// Signed inputs are committed once handed to the node, so the caller's
	// ctx no longer decides the outcome.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), broadcastTimeout)
	defer cancel()

	txid := tx.TxHash().String()
	if _, err := c.api.Broadcast(bctx, hex.EncodeToString(buf.Bytes())); err != nil {
		sendErr := fmt.Errorf("failed to broadcast transaction: %w", err)
		_, lookupErr := c.api.TxStatus(bctx, txid)
		switch {
		case errors.Is(lookupErr, errNotFound):
			return "", sendErr
		case lookupErr != nil:
			c.reserve(source, tx)
			c.logger.Warn("Broadcast failed and the node could not be asked about it",
				zap.String("tx_hash", txid),
				zap.NamedError("send_error", err),
				zap.Error(lookupErr))
			return txid, fmt.Errorf("%w: %w", chain.ErrBroadcastUnknown, sendErr)
		}
		c.logger.Warn("Broadcast reported an error but the node holds the transaction",
			zap.String("tx_hash", txid),
			zap.Error(err))
	}
	c.reserve(source, tx)

	c.logger.Info("Transfer broadcast",
		zap.String("tx_hash", txid),
		zap.String("from", source),
		zap.String("to", to.EncodeAddress()),
		zap.String("amount", c.units.Format(amount.FromInt64(value))),
		zap.Int("inputs", len(sel.inputs)),
		zap.Int64("change", sel.change))

	return txid, nil
}

func buildTx(sel selection, from *btcutil.AddressWitnessPubKeyHash, to btcutil.Address, value int64) (*wire.MsgTx, error) {
	tx := wire.NewMsgTx(wire.TxVersion)
	for _, u := range sel.inputs {
		op, err := outPoint(u)
		if err != nil {
			return nil, err
		}
		tx.AddTxIn(wire.NewTxIn(op, nil, nil))
	}

	toScript, err := txscript.PayToAddrScript(to)
	if err != nil {
		return nil, fmt.Errorf("failed to build output script: %w", err)
	}
	tx.AddTxOut(wire.NewTxOut(value, toScript))

	if sel.change > 0 {
		changeScript, err := txscript.PayToAddrScript(from)
		if err != nil {
			return nil, fmt.Errorf("failed to build change script: %w", err)
		}
		tx.AddTxOut(wire.NewTxOut(sel.change, changeScript))
	}
	return tx, nil
}

// signTx adds a P2WPKH witness to every input. All inputs belong to from.
func signTx(tx *wire.MsgTx, inputs []UTXO, from *btcutil.AddressWitnessPubKeyHash, key *btcec.PrivateKey) error {
	pkScript, err := txscript.PayToAddrScript(from)
	if err != nil {
		return fmt.Errorf("failed to build source script: %w", err)
	}

	fetcher := txscript.NewMultiPrevOutFetcher(nil)
	for i, u := range inputs {
		fetcher.AddPrevOut(tx.TxIn[i].PreviousOutPoint, wire.NewTxOut(u.Value, pkScript))
	}
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)

	for i, u := range inputs {
		witness, err := txscript.WitnessSignature(tx, sigHashes, i, u.Value, pkScript, txscript.SigHashAll, key, true)
		if err != nil {
			return fmt.Errorf("failed to sign input %d: %w", i, err)
		}
		tx.TxIn[i].Witness = witness
	}
	return nil
}

func outPoint(u UTXO) (*wire.OutPoint, error) {
	hash, err := chainhash.NewHashFromStr(u.TxID)
	if err != nil {
		return nil, fmt.Errorf("invalid utxo txid %q: %w", u.TxID, err)
	}
	return wire.NewOutPoint(hash, u.Vout), nil
}

// spendable drops outputs consumed by our earlier broadcasts. Reservations
// the API no longer lists are released.
func (c *Client) spendable(address string, utxos []UTXO) []UTXO {
	c.mu.Lock()
	defer c.mu.Unlock()

	held := c.reserved[address]
	if len(held) == 0 {
		return utxos
	}

	listed := make(map[wire.OutPoint]struct{}, len(utxos))
	out := make([]UTXO, 0, len(utxos))
	for _, u := range utxos {
		op, err := outPoint(u)
		if err != nil {
			continue
		}
		listed[*op] = struct{}{}
		if _, ok := held[*op]; !ok {
			out = append(out, u)
		}
	}
	for op := range held {
		if _, ok := listed[op]; !ok {
			delete(held, op)
		}
	}
	return out
}

func (c *Client) reserve(address string, tx *wire.MsgTx) {
	c.mu.Lock()
	defer c.mu.Unlock()

	held, ok := c.reserved[address]
	if !ok {
		held = make(map[wire.OutPoint]struct{})
		c.reserved[address] = held
	}
	for _, in := range tx.TxIn {
		held[in.PreviousOutPoint] = struct{}{}
	}
}

func blockTime(unix int64) time.Time {
	if unix <= 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
