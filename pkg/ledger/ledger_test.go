package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
)

func TestReconstruct_SignConvention(t *testing.T) {
	entries := []Entry{
		{Type: Deposit, Amount: amount.MustParse("20000000000000000")},
		{Type: Deposit, Amount: amount.MustParse("5")},
		{Type: Withdrawal, Amount: amount.MustParse("7")},
		{Type: Adjustment, Amount: amount.MustParse("7")},
		{Type: Adjustment, Amount: amount.MustParse("-3")},
		{Type: Earning, Amount: amount.MustParse("1")},
		{Type: Transfer, Amount: amount.MustParse("-1")},
	}
	require.Equal(t, "20000000000000002", Reconstruct(entries).String())
}

func TestReconstruct_Empty(t *testing.T) {
	require.True(t, Reconstruct(nil).IsZero())
}

func TestRefundReference(t *testing.T) {
	require.Equal(t, "REFUND:4f1c", RefundReference("4f1c"))
}

func TestOutcomeString(t *testing.T) {
	require.Equal(t, "credited", Credited.String())
	require.Equal(t, "duplicate", Duplicate.String())
	require.Equal(t, "upgraded", Upgraded.String())
	require.Equal(t, "rebased", Rebased.String())
}

func TestUpgradeSince(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := ScannedDeposit{UpgradeWindow: 10 * time.Minute, Now: now}

	tests := []struct {
		name    string
		sighted time.Time
		seen    bool
		want    time.Time
	}{
		{name: "never recorded", want: now.Add(-10 * time.Minute)},
		{name: "recorded long ago", sighted: now.Add(-40 * time.Minute), seen: true, want: now.Add(-50 * time.Minute)},
		{name: "recorded in the future", sighted: now.Add(time.Minute), seen: true, want: now.Add(-10 * time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, UpgradeSince(d, tt.sighted, tt.seen))
		})
	}
}
