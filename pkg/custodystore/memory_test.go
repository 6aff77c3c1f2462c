package custodystore

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
)

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) (context.Context, Store) {
		return context.Background(), NewMemoryStore()
	})
}

func TestMemoryStore_ConcurrentAllocationIsUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	const users = 50
	indexes := make(chan uint32, users)
	var wg sync.WaitGroup
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			w, err := s.AllocateIndex(ctx, string(rune('a'+i%26))+string(rune('A'+i/26)), chain.ETH)
			assert.NoError(t, err)
			indexes <- w.DerivationIndex
		}(i)
	}
	wg.Wait()
	close(indexes)

	seen := make(map[uint32]bool)
	for idx := range indexes {
		assert.False(t, seen[idx], "index %d handed out twice", idx)
		assert.NotZero(t, idx, "index 0 belongs to the hot wallet")
		seen[idx] = true
	}
	assert.Len(t, seen, users)
}

func TestMemoryStore_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Adjust(ctx, "alice", chain.ETH, eth("10"), "seed"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := s.DebitForWithdrawal(ctx, ledger.WithdrawalDebit{
				TxID:        "tx-" + string(rune('a'+i)),
				UserID:      "alice",
				Chain:       chain.ETH,
				FromAddress: "0xhot",
				ToAddress:   "0xdest",
				Amount:      eth("1"),
			})
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	requireBalance(ctx, t, s, "alice", chain.ETH, "0")
}
