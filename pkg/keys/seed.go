package keys

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic = errors.New("invalid BIP-39 mnemonic")
	ErrSeedWiped       = errors.New("seed material has been wiped")
)

// Seed is the process-wide BIP-39 seed. It is resolved once at startup and
// shared read-only by every adapter.
type Seed struct {
	mu    sync.RWMutex
	bytes []byte
}

// LoadSeed resolves the mnemonic through provider, validates its checksum and
// expands it with passphrase. Any failure here must stop the process.
func LoadSeed(ctx context.Context, provider SecretProvider, passphrase string) (*Seed, error) {
	if provider == nil {
		return nil, fmt.Errorf("%w: nil secret provider", ErrMissingSecret)
	}
	mnemonic, err := provider.Mnemonic(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve mnemonic: %w", err)
	}
	return SeedFromMnemonic(mnemonic, passphrase)
}

// SeedFromMnemonic expands a mnemonic into a Seed.
func SeedFromMnemonic(mnemonic, passphrase string) (*Seed, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	seed, err := bip39.NewSeedWithErrorChecking(mnemonic, passphrase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMnemonic, err)
	}
	return &Seed{bytes: seed}, nil
}

func (s *Seed) withBytes(fn func([]byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.bytes == nil {
		return ErrSeedWiped
	}
	return fn(s.bytes)
}

// Wipe zeroes the seed. Derivation fails afterwards.
func (s *Seed) Wipe() {
	s.mu.Lock()
	defer s.mu.Unlock()
	wipe(s.bytes)
	s.bytes = nil
}
