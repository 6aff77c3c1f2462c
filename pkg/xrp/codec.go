package xrp

import (
	"bytes"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
)

// Serialized field type codes.
const (
	typeUInt16    = 1
	typeUInt32    = 2
	typeAmount    = 6
	typeBlob      = 7
	typeAccountID = 8
)

const (
	txTypePayment       = 0
	tfFullyCanonicalSig = 0x80000000

	amountPositive = 0x4000000000000000
	maxDrops       = 100_000_000_000_000_000
)

var (
	prefixTxSign = []byte{'S', 'T', 'X', 0}
	prefixTxID   = []byte{'T', 'X', 'N', 0}
)

// Payment is a native XRP payment. Only the fields a custody withdrawal sets
// are supported; they are serialized in canonical (type, field) order.
type Payment struct {
	Account            AccountID
	Destination        AccountID
	DestinationTag     *uint32
	Amount             uint64
	Fee                uint64
	Sequence           uint32
	LastLedgerSequence uint32
	SigningPubKey      []byte
	TxnSignature       []byte
}

// signingBytes is the canonical encoding without TxnSignature.
func (p *Payment) signingBytes() ([]byte, error) {
	return p.encode(false)
}

// Blob is the canonical encoding of the signed transaction.
func (p *Payment) Blob() ([]byte, error) {
	if len(p.TxnSignature) == 0 {
		return nil, fmt.Errorf("payment is not signed")
	}
	return p.encode(true)
}

func (p *Payment) encode(withSignature bool) ([]byte, error) {
	if p.Amount == 0 || p.Amount > maxDrops {
		return nil, fmt.Errorf("amount %d drops out of range", p.Amount)
	}
	if p.Fee > maxDrops {
		return nil, fmt.Errorf("fee %d drops out of range", p.Fee)
	}

	var buf bytes.Buffer
	writeUInt16(&buf, 2, txTypePayment)
	writeUInt32(&buf, 2, tfFullyCanonicalSig)
	writeUInt32(&buf, 4, p.Sequence)
	if p.DestinationTag != nil {
		writeUInt32(&buf, 14, *p.DestinationTag)
	}
	if p.LastLedgerSequence > 0 {
		writeUInt32(&buf, 27, p.LastLedgerSequence)
	}
	writeDrops(&buf, 1, p.Amount)
	writeDrops(&buf, 8, p.Fee)
	writeBlob(&buf, 3, p.SigningPubKey)
	if withSignature {
		writeBlob(&buf, 4, p.TxnSignature)
	}
	writeAccount(&buf, 1, p.Account)
	writeAccount(&buf, 3, p.Destination)
	return buf.Bytes(), nil
}

// Sign sets SigningPubKey and a canonical DER signature over the signing
// hash.
func (p *Payment) Sign(key *btcec.PrivateKey) error {
	p.SigningPubKey = key.PubKey().SerializeCompressed()
	p.TxnSignature = nil

	raw, err := p.signingBytes()
	if err != nil {
		return err
	}
	digest := sha512Half(prefixTxSign, raw)
	p.TxnSignature = ecdsa.Sign(key, digest[:]).Serialize()
	return nil
}

// Hash is the transaction id of the signed payment, uppercase hex.
func (p *Payment) Hash() (string, error) {
	blob, err := p.Blob()
	if err != nil {
		return "", err
	}
	id := sha512Half(prefixTxID, blob)
	return strings.ToUpper(hex.EncodeToString(id[:])), nil
}

func sha512Half(prefix, data []byte) [32]byte {
	h := sha512.New()
	h.Write(prefix)
	h.Write(data)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func writeFieldID(buf *bytes.Buffer, typeCode, fieldCode byte) {
	switch {
	case typeCode < 16 && fieldCode < 16:
		buf.WriteByte(typeCode<<4 | fieldCode)
	case typeCode < 16:
		buf.WriteByte(typeCode << 4)
		buf.WriteByte(fieldCode)
	case fieldCode < 16:
		buf.WriteByte(fieldCode)
		buf.WriteByte(typeCode)
	default:
		buf.WriteByte(0)
		buf.WriteByte(typeCode)
		buf.WriteByte(fieldCode)
	}
}

func writeUInt16(buf *bytes.Buffer, field byte, v uint16) {
	writeFieldID(buf, typeUInt16, field)
	_ = binary.Write(buf, binary.BigEndian, v)
}

func writeUInt32(buf *bytes.Buffer, field byte, v uint32) {
	writeFieldID(buf, typeUInt32, field)
	_ = binary.Write(buf, binary.BigEndian, v)
}

func writeDrops(buf *bytes.Buffer, field byte, drops uint64) {
	writeFieldID(buf, typeAmount, field)
	_ = binary.Write(buf, binary.BigEndian, amountPositive|drops)
}

func writeBlob(buf *bytes.Buffer, field byte, b []byte) {
	writeFieldID(buf, typeBlob, field)
	writeLength(buf, len(b))
	buf.Write(b)
}

func writeAccount(buf *bytes.Buffer, field byte, id AccountID) {
	writeFieldID(buf, typeAccountID, field)
	writeLength(buf, accountIDLen)
	buf.Write(id[:])
}

// writeLength writes a variable-length prefix. Blobs here never exceed the
// 12480-byte two-byte form.
func writeLength(buf *bytes.Buffer, n int) {
	if n <= 192 {
		buf.WriteByte(byte(n))
		return
	}
	n -= 193
	buf.WriteByte(byte(193 + n>>8))
	buf.WriteByte(byte(n & 0xff))
}
