package keys

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/binary"
	"errors"
)

var errNonHardened = errors.New("ed25519 derivation supports hardened indexes only")

// deriveEd25519 implements SLIP-0010 private key derivation for ed25519 and
// returns the 32-byte key seed at path.
func deriveEd25519(seed []byte, path Path) ([]byte, error) {
	mac := hmac.New(sha512.New, []byte("ed25519 seed"))
	mac.Write(seed)
	sum := mac.Sum(nil)
	key, chainCode := sum[:32], sum[32:]

	for _, idx := range path {
		if idx < hardened {
			return nil, errNonHardened
		}
		data := make([]byte, 0, 37)
		data = append(data, 0x00)
		data = append(data, key...)
		data = binary.BigEndian.AppendUint32(data, idx)

		mac = hmac.New(sha512.New, chainCode)
		mac.Write(data)
		next := mac.Sum(nil)
		wipe(key)
		key, chainCode = next[:32], next[32:]
	}

	out := make([]byte, 32)
	copy(out, key)
	wipe(key)
	return out, nil
}
