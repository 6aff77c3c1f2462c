package keys

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/base58"
	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const hardened = hdkeychain.HardenedKeyStart

// Path is a BIP-32 derivation path.
type Path []uint32

func (p Path) String() string {
	var b strings.Builder
	b.WriteString("m")
	for _, idx := range p {
		b.WriteByte('/')
		if idx >= hardened {
			b.WriteString(strconv.FormatUint(uint64(idx-hardened), 10))
			b.WriteByte('\'')
		} else {
			b.WriteString(strconv.FormatUint(uint64(idx), 10))
		}
	}
	return b.String()
}

// EVMPath is m/44'/60'/0'/0/{index}.
func EVMPath(index uint32) Path {
	return Path{hardened + 44, hardened + 60, hardened + 0, 0, index}
}

// BitcoinPath is the BIP-84 path m/84'/{0'|1'}/0'/0/{index}.
func BitcoinPath(index uint32, params *chaincfg.Params) Path {
	coin := uint32(0)
	if params.Net != chaincfg.MainNetParams.Net {
		coin = 1
	}
	return Path{hardened + 84, hardened + coin, hardened + 0, 0, index}
}

// SolanaPath is the all-hardened SLIP-10 path m/44'/501'/{index}'/0'.
func SolanaPath(index uint32) Path {
	return Path{hardened + 44, hardened + 501, hardened + index, hardened + 0}
}

// XRPPath is m/44'/144'/0'/0/{index}.
func XRPPath(index uint32) Path {
	return Path{hardened + 44, hardened + 144, hardened + 0, 0, index}
}

// Deriver derives per-index keys from the process Seed.
type Deriver struct {
	seed *Seed
}

// NewDeriver creates a deriver over seed.
func NewDeriver(seed *Seed) *Deriver {
	return &Deriver{seed: seed}
}

func (d *Deriver) secp256k1(path Path) (*btcec.PrivateKey, error) {
	var priv *btcec.PrivateKey
	err := d.seed.withBytes(func(seed []byte) error {
		key, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
		if err != nil {
			return fmt.Errorf("failed to create master key: %w", err)
		}
		for _, idx := range path {
			key, err = key.Derive(idx)
			if err != nil {
				return fmt.Errorf("failed to derive %s: %w", path, err)
			}
		}
		priv, err = key.ECPrivKey()
		return err
	})
	return priv, err
}

// EVMKey returns the secp256k1 key at EVMPath(index).
func (d *Deriver) EVMKey(index uint32) (*ecdsa.PrivateKey, error) {
	priv, err := d.secp256k1(EVMPath(index))
	if err != nil {
		return nil, err
	}
	return ethcrypto.ToECDSA(priv.Serialize())
}

// EVMAddress returns the checksummed address at EVMPath(index).
func (d *Deriver) EVMAddress(index uint32) (common.Address, error) {
	key, err := d.EVMKey(index)
	if err != nil {
		return common.Address{}, err
	}
	return ethcrypto.PubkeyToAddress(key.PublicKey), nil
}

// BitcoinKey returns the key at BitcoinPath(index, params).
func (d *Deriver) BitcoinKey(index uint32, params *chaincfg.Params) (*btcec.PrivateKey, error) {
	return d.secp256k1(BitcoinPath(index, params))
}

// BitcoinAddress returns the P2WPKH address for BitcoinKey(index, params).
func (d *Deriver) BitcoinAddress(index uint32, params *chaincfg.Params) (*btcutil.AddressWitnessPubKeyHash, error) {
	key, err := d.BitcoinKey(index, params)
	if err != nil {
		return nil, err
	}
	return btcutil.NewAddressWitnessPubKeyHash(btcutil.Hash160(key.PubKey().SerializeCompressed()), params)
}

// XRPKey returns the secp256k1 key at XRPPath(index).
func (d *Deriver) XRPKey(index uint32) (*btcec.PrivateKey, error) {
	return d.secp256k1(XRPPath(index))
}

// SolanaKey returns the ed25519 key at SolanaPath(index).
func (d *Deriver) SolanaKey(index uint32) (ed25519.PrivateKey, error) {
	var priv ed25519.PrivateKey
	err := d.seed.withBytes(func(seed []byte) error {
		k, err := deriveEd25519(seed, SolanaPath(index))
		if err != nil {
			return err
		}
		priv = ed25519.NewKeyFromSeed(k)
		wipe(k)
		return nil
	})
	return priv, err
}

// SolanaAddress returns the base58 public key for SolanaKey(index).
func (d *Deriver) SolanaAddress(index uint32) (string, error) {
	priv, err := d.SolanaKey(index)
	if err != nil {
		return "", err
	}
	return base58.Encode(priv.Public().(ed25519.PublicKey)), nil
}
