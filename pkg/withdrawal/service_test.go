package withdrawal_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	apperrors "github.com/JPCompany544/arbix-sub001/pkg/app/errors"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/chain/chaintest"
	"github.com/JPCompany544/arbix-sub001/pkg/events"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/withdrawal"
	"github.com/JPCompany544/arbix-sub001/pkg/withdrawal/mocks"
)

const (
	userID      = "user-1"
	hotWallet   = "eth-addr-0"
	destination = "0xExternalRecipient"
)

func newService(store withdrawal.Store, rec *events.Recorder, adapters ...chain.Adapter) withdrawal.Service {
	return withdrawal.NewService(store, chain.NewRegistry(adapters...), rec, zap.NewNop())
}

func withdrawalFor(value string) interface{} {
	return mock.MatchedBy(func(w ledger.WithdrawalDebit) bool {
		return w.TxID != "" &&
			w.UserID == userID &&
			w.Chain == chain.ETH &&
			w.FromAddress == hotWallet &&
			w.ToAddress == destination &&
			w.Amount.String() == value
	})
}

func TestWithdraw_Success(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SetBalance(hotWallet, amount.MustParse("1000000000000000000"))
	rec := &events.Recorder{}

	var debitedTx string
	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("300000000000000000")).
		Run(func(_ context.Context, w ledger.WithdrawalDebit) { debitedTx = w.TxID }).
		Return(nil).Once()
	storeMock.EXPECT().MarkBroadcasted(mock.Anything, mock.AnythingOfType("string"), "eth-tx-1").Return(nil).Once()

	res, err := newService(storeMock, rec, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("300000000000000000"),
	})
	require.NoError(t, err)
	require.Equal(t, debitedTx, res.TxID)
	require.Equal(t, "eth-tx-1", res.TxHash)

	sent := eth.Sent()
	require.Len(t, sent, 1)
	require.Equal(t, chain.HotWalletIndex, sent[0].FromIndex)
	require.Equal(t, hotWallet, sent[0].ExpectedFrom)

	broadcasts := rec.OfType(events.WithdrawalBroadcast)
	require.Len(t, broadcasts, 1)
	require.Equal(t, res.TxID, broadcasts[0].Reference)
	require.Empty(t, rec.OfType(events.WithdrawalRefunded))
}

func TestWithdraw_InsufficientBalance(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("5")).
		Return(ledger.ErrInsufficientBalance).Once()

	_, err := newService(storeMock, &events.Recorder{}, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("5"),
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientBalance)
	require.True(t, apperrors.Is(err, apperrors.CategoryDataError))
	require.Empty(t, eth.Sent())
}

func TestWithdraw_SendFailureRefunds(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SendErr = errors.New("node unavailable")
	rec := &events.Recorder{}

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("100")).Return(nil).Once()
	storeMock.EXPECT().RefundWithdrawal(mock.Anything, mock.AnythingOfType("string"), "node unavailable").
		Return(true, nil).Once()

	_, err := newService(storeMock, rec, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("100"),
	})
	require.Error(t, err)
	require.True(t, apperrors.Is(err, apperrors.CategoryDependencyFailure))

	refunds := rec.OfType(events.WithdrawalRefunded)
	require.Len(t, refunds, 1)
	require.Equal(t, "100", refunds[0].Amount)
	require.Empty(t, rec.OfType(events.WithdrawalBroadcast))
}

func TestWithdraw_LostReplyIsTrackedNotRefunded(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SetBalance(hotWallet, amount.MustParse("1000"))
	eth.SendLost = errors.New("read: connection reset by peer")
	rec := &events.Recorder{}

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("100")).Return(nil).Once()
	storeMock.EXPECT().MarkBroadcasted(mock.Anything, mock.AnythingOfType("string"), "eth-tx-1").Return(nil).Once()

	res, err := newService(storeMock, rec, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("100"),
	})
	require.NoError(t, err)
	require.Equal(t, "eth-tx-1", res.TxHash)
	require.Len(t, eth.Sent(), 1)
	require.Empty(t, rec.OfType(events.WithdrawalRefunded))
	require.Len(t, rec.OfType(events.WithdrawalBroadcast), 1)
}

func TestWithdraw_CancelledCallerStillRecordsHash(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SetBalance(hotWallet, amount.MustParse("1000"))

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("100")).
		Run(func(context.Context, ledger.WithdrawalDebit) { cancel() }).
		Return(nil).Once()
	storeMock.EXPECT().MarkBroadcasted(
		mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }),
		mock.AnythingOfType("string"), "eth-tx-1").
		Return(nil).Once()

	res, err := newService(storeMock, &events.Recorder{}, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("100"),
	})
	require.NoError(t, err)
	require.Equal(t, "eth-tx-1", res.TxHash)
}

func TestWithdraw_RepeatedRefundPublishesNothing(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SendErr = errors.New("nonce too low")
	rec := &events.Recorder{}

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("100")).Return(nil).Once()
	storeMock.EXPECT().RefundWithdrawal(mock.Anything, mock.AnythingOfType("string"), "nonce too low").
		Return(false, nil).Once()

	_, err := newService(storeMock, rec, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("100"),
	})
	require.Error(t, err)
	require.Empty(t, rec.Events())
}

func TestWithdraw_BroadcastRecordFailureStillSucceeds(t *testing.T) {
	ctx := context.Background()
	eth := chaintest.NewAdapter(chain.ETH)
	eth.SetBalance(hotWallet, amount.MustParse("1000"))

	storeMock := mocks.NewStore(t)
	storeMock.EXPECT().DebitForWithdrawal(ctx, withdrawalFor("100")).Return(nil).Once()
	storeMock.EXPECT().MarkBroadcasted(mock.Anything, mock.AnythingOfType("string"), "eth-tx-1").
		Return(errors.New("db down")).Once()

	res, err := newService(storeMock, &events.Recorder{}, eth).Withdraw(ctx, withdrawal.Request{
		UserID: userID,
		Chain:  chain.ETH,
		To:     destination,
		Amount: amount.MustParse("100"),
	})
	require.NoError(t, err)
	require.Equal(t, "eth-tx-1", res.TxHash)
}

func TestWithdraw_Validation(t *testing.T) {
	eth := chaintest.NewAdapter(chain.ETH)

	tests := []struct {
		name     string
		req      withdrawal.Request
		category apperrors.Category
	}{
		{
			name:     "unsupported chain",
			req:      withdrawal.Request{UserID: userID, Chain: chain.SOL, To: destination, Amount: amount.MustParse("1")},
			category: apperrors.CategoryNotSupported,
		},
		{
			name:     "missing user",
			req:      withdrawal.Request{Chain: chain.ETH, To: destination, Amount: amount.MustParse("1")},
			category: apperrors.CategoryDataError,
		},
		{
			name:     "zero amount",
			req:      withdrawal.Request{UserID: userID, Chain: chain.ETH, To: destination, Amount: amount.Zero()},
			category: apperrors.CategoryDataError,
		},
		{
			name:     "invalid address",
			req:      withdrawal.Request{UserID: userID, Chain: chain.ETH, To: "not an address", Amount: amount.MustParse("1")},
			category: apperrors.CategoryDataError,
		},
		{
			name:     "hot wallet destination",
			req:      withdrawal.Request{UserID: userID, Chain: chain.ETH, To: hotWallet, Amount: amount.MustParse("1")},
			category: apperrors.CategoryDataError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			storeMock := mocks.NewStore(t)
			_, err := newService(storeMock, &events.Recorder{}, eth).Withdraw(context.Background(), tt.req)
			require.Error(t, err)
			require.True(t, apperrors.Is(err, tt.category), "unexpected error: %v", err)
		})
	}
	require.Empty(t, eth.Sent())
}
