package xrp

import (
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
)

// XRPL encodes addresses as base58check with its own alphabet. The
// translation below maps bitcoin-alphabet output onto it position by
// position, which is equivalent because both use the same digit order.
const (
	bitcoinAlphabet = "123456789ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz"
	rippleAlphabet  = "rpshnaf39wBUDNEGHJKLM4PQRST7VWXYZ2bcdeCg65jkm8oFqi1tuvAxyz"

	accountIDVersion = 0x00
	accountIDLen     = 20
)

var (
	toRipple  = strings.NewReplacer(pairs(bitcoinAlphabet, rippleAlphabet)...)
	toBitcoin = strings.NewReplacer(pairs(rippleAlphabet, bitcoinAlphabet)...)
)

func pairs(from, to string) []string {
	out := make([]string, 0, 2*len(from))
	for i := range from {
		out = append(out, from[i:i+1], to[i:i+1])
	}
	return out
}

// AccountID is the 20-byte account identifier behind a classic address.
type AccountID [accountIDLen]byte

// AccountIDFromPublicKey is RIPEMD160(SHA256(compressed pubkey)).
func AccountIDFromPublicKey(pub *btcec.PublicKey) AccountID {
	var id AccountID
	copy(id[:], btcutil.Hash160(pub.SerializeCompressed()))
	return id
}

// String returns the classic r-address.
func (id AccountID) String() string {
	return toRipple.Replace(base58.CheckEncode(id[:], accountIDVersion))
}

// DecodeAddress parses a classic r-address.
func DecodeAddress(address string) (AccountID, error) {
	var id AccountID
	if !strings.HasPrefix(address, "r") {
		return id, fmt.Errorf("address %q does not start with r", address)
	}
	payload, version, err := base58.CheckDecode(toBitcoin.Replace(address))
	if err != nil {
		return id, fmt.Errorf("address %q: %w", address, err)
	}
	if version != accountIDVersion || len(payload) != accountIDLen {
		return id, fmt.Errorf("address %q is not an account id", address)
	}
	copy(id[:], payload)
	return id, nil
}
