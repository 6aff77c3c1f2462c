package custodystore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/JPCompany544/arbix-sub001/pkg/amount"
	"github.com/JPCompany544/arbix-sub001/pkg/chain"
	"github.com/JPCompany544/arbix-sub001/pkg/ledger"
	"github.com/JPCompany544/arbix-sub001/pkg/sweep"
	"github.com/JPCompany544/arbix-sub001/pkg/transaction"
	"github.com/JPCompany544/arbix-sub001/pkg/treasury"
	"github.com/JPCompany544/arbix-sub001/pkg/wallet"
)

type balanceKey struct {
	userID string
	chain  chain.Chain
}

type accountKey struct {
	name, currency, network string
}

// MemoryStore is an in-process Store. It backs tests and single-node dry
// runs; every method holds one mutex so operations are atomic.
type MemoryStore struct {
	mu  sync.Mutex
	now func() time.Time

	wallets    []*wallet.Wallet
	balances   map[balanceKey]*ledger.Balance
	entries    []ledger.Entry
	txs        map[string]*transaction.Tx
	cursors    map[chain.Chain]string
	states     map[chain.Chain]*treasury.State
	sweeps     map[string]*sweep.Sweep
	accounts   map[accountKey]*treasury.Account
	ledgers    map[string]*treasury.Ledger
	tEntries   []treasury.Entry
	nextID     int64
	nextTxSeq  int64
	sweepOrder []string
}

// SetClock replaces the clock used for rows the store timestamps itself.
func (m *MemoryStore) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// NewMemoryStore creates an empty in-memory custody store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      func() time.Time { return time.Now().UTC() },
		balances: make(map[balanceKey]*ledger.Balance),
		txs:      make(map[string]*transaction.Tx),
		cursors:  make(map[chain.Chain]string),
		states:   make(map[chain.Chain]*treasury.State),
		sweeps:   make(map[string]*sweep.Sweep),
		accounts: make(map[accountKey]*treasury.Account),
		ledgers:  make(map[string]*treasury.Ledger),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

// ---------------------------------------------------------------------------
// Wallets

func (m *MemoryStore) findWallet(userID string, c chain.Chain) *wallet.Wallet {
	for _, w := range m.wallets {
		if w.UserID == userID && w.Chain == c {
			return w
		}
	}
	return nil
}

func (m *MemoryStore) walletByID(id int64) *wallet.Wallet {
	for _, w := range m.wallets {
		if w.ID == id {
			return w
		}
	}
	return nil
}

func copyWallet(w *wallet.Wallet) *wallet.Wallet {
	out := *w
	return &out
}

func (m *MemoryStore) GetWallet(_ context.Context, userID string, c chain.Chain) (*wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.findWallet(userID, c)
	if w == nil {
		return nil, wallet.ErrWalletNotFound
	}
	return copyWallet(w), nil
}

func (m *MemoryStore) AllocateIndex(_ context.Context, userID string, c chain.Chain) (*wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w := m.findWallet(userID, c); w != nil {
		return copyWallet(w), nil
	}
	var maxIndex uint32
	for _, w := range m.wallets {
		if w.Chain == c && w.DerivationIndex > maxIndex {
			maxIndex = w.DerivationIndex
		}
	}
	now := m.now()
	w := &wallet.Wallet{
		ID:               m.id(),
		UserID:           userID,
		Chain:            c,
		DerivationIndex:  maxIndex + 1,
		Address:          wallet.PlaceholderAddress(c, maxIndex+1),
		LastKnownBalance: amount.Zero(),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	m.wallets = append(m.wallets, w)
	return copyWallet(w), nil
}

func (m *MemoryStore) FinalizeWallet(_ context.Context, id int64, address string, baseline amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w := m.walletByID(id)
	if w == nil {
		return wallet.ErrWalletNotFound
	}
	w.Address = address
	w.LastKnownBalance = baseline
	w.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ListWallets(_ context.Context, c chain.Chain) ([]*wallet.Wallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*wallet.Wallet
	for _, w := range m.wallets {
		if w.Chain == c {
			out = append(out, copyWallet(w))
		}
	}
	return out, nil
}

func (m *MemoryStore) RebaseWallet(_ context.Context, walletID int64, balance amount.Amount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w := m.walletByID(walletID); w != nil {
		w.LastKnownBalance = balance
		w.UpdatedAt = m.now()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Ledger

func (m *MemoryStore) GetBalance(_ context.Context, userID string, c chain.Chain) (*ledger.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[balanceKey{userID, c}]
	if !ok {
		return nil, ledger.ErrBalanceNotFound
	}
	out := *b
	return &out, nil
}

func (m *MemoryStore) ListEntries(_ context.Context, userID string, c chain.Chain) ([]ledger.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userEntries(userID, c), nil
}

func (m *MemoryStore) userEntries(userID string, c chain.Chain) []ledger.Entry {
	var out []ledger.Entry
	for _, e := range m.entries {
		if e.UserID == userID && e.Chain == c {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) ReconstructBalance(_ context.Context, userID string, c chain.Chain) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return ledger.Reconstruct(m.userEntries(userID, c)), nil
}

func (m *MemoryStore) credit(userID string, c chain.Chain, value amount.Amount, now time.Time) {
	key := balanceKey{userID, c}
	b, ok := m.balances[key]
	if !ok {
		b = &ledger.Balance{UserID: userID, Chain: c, Balance: amount.Zero()}
		m.balances[key] = b
	}
	b.Balance = b.Balance.Add(value)
	b.UpdatedAt = now
}

func (m *MemoryStore) debit(userID string, c chain.Chain, value amount.Amount, now time.Time) error {
	b, ok := m.balances[balanceKey{userID, c}]
	if !ok || b.Balance.Cmp(value) < 0 {
		return ledger.ErrInsufficientBalance
	}
	b.Balance = b.Balance.Sub(value)
	b.UpdatedAt = now
	return nil
}

func (m *MemoryStore) hasReference(userID string, c chain.Chain, t ledger.EntryType, reference string) bool {
	for _, e := range m.entries {
		if e.UserID == userID && e.Chain == c && e.Type == t && e.ReferenceID == reference {
			return true
		}
	}
	return false
}

func (m *MemoryStore) appendEntry(e ledger.Entry) {
	e.ID = m.id()
	m.entries = append(m.entries, e)
}

func (m *MemoryStore) CreditPolledDeposit(_ context.Context, d ledger.PolledDeposit) (ledger.Outcome, error) {
	if d.Amount.Sign() <= 0 {
		return ledger.Rebased, ledger.ErrInvalidEntryAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	outcome := ledger.Credited
	since := d.Now.Add(-d.Window)
	for _, e := range m.entries {
		if e.UserID == d.UserID && e.Chain == d.Chain && e.Type == ledger.Deposit &&
			e.Amount.Equal(d.Amount) && !e.CreatedAt.Before(since) {
			outcome = ledger.Rebased
			break
		}
	}
	if outcome == ledger.Credited {
		m.credit(d.UserID, d.Chain, d.Amount, d.Now)
		m.appendEntry(ledger.Entry{
			UserID:      d.UserID,
			Chain:       d.Chain,
			Amount:      d.Amount,
			Type:        ledger.Deposit,
			ReferenceID: ledger.PollingReference,
			CreatedAt:   d.Now,
		})
	}
	if w := m.walletByID(d.WalletID); w != nil {
		w.LastKnownBalance = d.Observed
		w.UpdatedAt = d.Now
	}
	return outcome, nil
}

func (m *MemoryStore) CreditScannedDeposit(_ context.Context, d ledger.ScannedDeposit) (ledger.Outcome, error) {
	if d.Amount.Sign() <= 0 {
		return ledger.Duplicate, ledger.ErrInvalidEntryAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasReference(d.UserID, d.Chain, ledger.Deposit, d.TxHash) {
		return ledger.Duplicate, nil
	}

	sighted, seen := m.inboundSighting(d)
	since := ledger.UpgradeSince(d, sighted, seen)
	latest := -1
	for i, e := range m.entries {
		if e.UserID == d.UserID && e.Chain == d.Chain && e.Type == ledger.Deposit &&
			e.ReferenceID == ledger.PollingReference && e.Amount.Equal(d.Amount) &&
			!e.CreatedAt.Before(since) {
			if latest < 0 || e.CreatedAt.After(m.entries[latest].CreatedAt) {
				latest = i
			}
		}
	}
	if latest >= 0 {
		m.entries[latest].ReferenceID = d.TxHash
		return ledger.Upgraded, nil
	}

	m.credit(d.UserID, d.Chain, d.Amount, d.Now)
	m.appendEntry(ledger.Entry{
		UserID:      d.UserID,
		Chain:       d.Chain,
		Amount:      d.Amount,
		Type:        ledger.Deposit,
		ReferenceID: d.TxHash,
		CreatedAt:   d.Now,
	})
	if d.AdvanceBaseline {
		if w := m.walletByID(d.WalletID); w != nil {
			w.LastKnownBalance = w.LastKnownBalance.Add(d.Amount)
			w.UpdatedAt = d.Now
		}
	}
	return ledger.Credited, nil
}

// inboundSighting returns when the deposit was first recorded as an inbound
// transaction.
func (m *MemoryStore) inboundSighting(d ledger.ScannedDeposit) (time.Time, bool) {
	for _, tx := range m.txs {
		if tx.Chain == d.Chain && tx.Direction == chain.Inbound && tx.TxHash == d.TxHash &&
			tx.UserID == d.UserID {
			return tx.CreatedAt, true
		}
	}
	return time.Time{}, false
}

func (m *MemoryStore) DebitForWithdrawal(_ context.Context, w ledger.WithdrawalDebit) error {
	if w.Amount.Sign() <= 0 {
		return ledger.ErrInvalidEntryAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if err := m.debit(w.UserID, w.Chain, w.Amount, now); err != nil {
		return err
	}
	m.appendEntry(ledger.Entry{
		UserID:      w.UserID,
		Chain:       w.Chain,
		Amount:      w.Amount,
		Type:        ledger.Withdrawal,
		ReferenceID: w.TxID,
		CreatedAt:   now,
	})
	out := transaction.NewOutbound(w.UserID, w.Chain, w.FromAddress, w.ToAddress, w.Amount)
	out.ID = w.TxID
	m.putTx(out, now)
	return nil
}

func (m *MemoryStore) RefundWithdrawal(_ context.Context, txID, reason string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx, ok := m.txs[txID]
	if !ok {
		return false, transaction.ErrTransactionNotFound
	}
	if tx.Direction != chain.Outbound {
		return false, fmt.Errorf("transaction %s is not a withdrawal", txID)
	}
	if tx.Status == transaction.StatusConfirmed {
		return false, transaction.ErrTransactionSettled
	}

	now := m.now()
	reference := ledger.RefundReference(txID)
	refunded := false
	if !m.hasReference(tx.UserID, tx.Chain, ledger.Adjustment, reference) {
		m.credit(tx.UserID, tx.Chain, tx.Amount, now)
		m.appendEntry(ledger.Entry{
			UserID:      tx.UserID,
			Chain:       tx.Chain,
			Amount:      tx.Amount,
			Type:        ledger.Adjustment,
			ReferenceID: reference,
			CreatedAt:   now,
		})
		refunded = true
	}
	tx.Status = transaction.StatusFailed
	tx.Error = reason
	tx.UpdatedAt = now
	return refunded, nil
}

func (m *MemoryStore) Adjust(_ context.Context, userID string, c chain.Chain, delta amount.Amount, reference string) error {
	if delta.IsZero() {
		return ledger.ErrInvalidEntryAmount
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.hasReference(userID, c, ledger.Adjustment, reference) {
		return ledger.ErrDuplicateEntry
	}
	now := m.now()
	if delta.Sign() > 0 {
		m.credit(userID, c, delta, now)
	} else if err := m.debit(userID, c, delta.Neg(), now); err != nil {
		return err
	}
	m.appendEntry(ledger.Entry{
		UserID:      userID,
		Chain:       c,
		Amount:      delta,
		Type:        ledger.Adjustment,
		ReferenceID: reference,
		CreatedAt:   now,
	})
	return nil
}

// ---------------------------------------------------------------------------
// Transactions

func (m *MemoryStore) putTx(tx *transaction.Tx, now time.Time) {
	m.nextTxSeq++
	if tx.CreatedAt.IsZero() {
		// Keeps ListInFlight ordering stable when the clock does not move.
		tx.CreatedAt = now.Add(time.Duration(m.nextTxSeq))
	}
	tx.UpdatedAt = now
	cp := *tx
	m.txs[tx.ID] = &cp
}

func (m *MemoryStore) RecordInbound(_ context.Context, tx *transaction.Tx) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, existing := range m.txs {
		if existing.Chain != tx.Chain || existing.Direction != chain.Inbound || existing.TxHash != tx.TxHash {
			continue
		}
		if tx.Status != transaction.StatusConfirmed || existing.Status.Terminal() {
			return false, nil
		}
		existing.Status = transaction.StatusConfirmed
		existing.ConfirmedAt = tx.ConfirmedAt
		if tx.BlockNumber != nil {
			block := *tx.BlockNumber
			existing.BlockNumber = &block
		}
		existing.UpdatedAt = now
		return true, nil
	}
	m.putTx(tx, now)
	return true, nil
}

func (m *MemoryStore) GetTransaction(_ context.Context, id string) (*transaction.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok {
		return nil, transaction.ErrTransactionNotFound
	}
	out := *tx
	return &out, nil
}

func (m *MemoryStore) MarkBroadcasted(_ context.Context, txID, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[txID]
	if !ok || tx.Status != transaction.StatusPending {
		return transaction.ErrTransactionNotFound
	}
	tx.TxHash = txHash
	tx.Status = transaction.StatusBroadcasted
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkConfirmed(_ context.Context, id string, blockNumber uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status == transaction.StatusFailed {
		return nil
	}
	tx.Status = transaction.StatusConfirmed
	tx.ConfirmedAt = &at
	if blockNumber > 0 {
		block := blockNumber
		tx.BlockNumber = &block
	}
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) MarkFailed(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx, ok := m.txs[id]
	if !ok || tx.Status == transaction.StatusConfirmed {
		return nil
	}
	tx.Status = transaction.StatusFailed
	tx.Error = reason
	tx.UpdatedAt = m.now()
	return nil
}

func (m *MemoryStore) ListInFlight(_ context.Context, limit int) ([]*transaction.Tx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*transaction.Tx
	for _, tx := range m.txs {
		if tx.Status == transaction.StatusBroadcasted {
			cp := *tx
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) GetCursor(_ context.Context, c chain.Chain) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursors[c], nil
}

func (m *MemoryStore) SaveCursor(_ context.Context, c chain.Chain, cursor string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[c] = cursor
	return nil
}

// ---------------------------------------------------------------------------
// Treasury state

func (m *MemoryStore) SumWalletBaselines(_ context.Context, c chain.Chain) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	latest := make(map[string]*wallet.Wallet)
	for _, w := range m.wallets {
		if w.Chain != c || strings.HasPrefix(w.Address, "pending:") {
			continue
		}
		if prev, ok := latest[w.Address]; !ok || w.UpdatedAt.After(prev.UpdatedAt) {
			latest[w.Address] = w
		}
	}
	total := amount.Zero()
	for _, w := range latest {
		total = total.Add(w.LastKnownBalance)
	}
	return total, nil
}

func (m *MemoryStore) SumLiabilities(_ context.Context, c chain.Chain) (amount.Amount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := amount.Zero()
	for key, b := range m.balances {
		if key.chain == c {
			total = total.Add(b.Balance)
		}
	}
	return total, nil
}

func (m *MemoryStore) GetState(_ context.Context, c chain.Chain) (*treasury.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.states[c]
	if !ok {
		return nil, treasury.ErrStateNotFound
	}
	out := *st
	return &out, nil
}

func (m *MemoryStore) state(c chain.Chain) *treasury.State {
	st, ok := m.states[c]
	if !ok {
		st = &treasury.State{
			Chain:                c,
			TotalOnchainBalance:  amount.Zero(),
			TotalUserLiabilities: amount.Zero(),
			SweepableBalance:     amount.Zero(),
		}
		m.states[c] = st
	}
	return st
}

func (m *MemoryStore) UpsertFigures(_ context.Context, in *treasury.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(in.Chain)
	st.TotalOnchainBalance = in.TotalOnchainBalance
	st.TotalUserLiabilities = in.TotalUserLiabilities
	st.SweepableBalance = in.SweepableBalance
	st.UpdatedAt = in.UpdatedAt
	return nil
}

func (m *MemoryStore) AcquireLock(_ context.Context, c chain.Chain, by string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.state(c)
	if st.Locked {
		return false, nil
	}
	st.Locked = true
	st.LockedAt = &at
	st.LockedBy = by
	st.UpdatedAt = at
	return true, nil
}

func (m *MemoryStore) ReleaseLock(_ context.Context, c chain.Chain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok := m.states[c]; ok {
		st.Locked = false
		st.LockedAt = nil
		st.LockedBy = ""
		st.UpdatedAt = m.now()
	}
	return nil
}

// ---------------------------------------------------------------------------
// Sweeps

func (m *MemoryStore) CreateSweep(_ context.Context, sw *sweep.Sweep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sweeps[sw.ID]; ok {
		return fmt.Errorf("sweep %s already exists", sw.ID)
	}
	now := m.now()
	if sw.CreatedAt.IsZero() {
		sw.CreatedAt = now
	}
	sw.UpdatedAt = now
	cp := *sw
	m.sweeps[sw.ID] = &cp
	m.sweepOrder = append(m.sweepOrder, sw.ID)
	return nil
}

func (m *MemoryStore) UpdateSweep(_ context.Context, sw *sweep.Sweep) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.sweeps[sw.ID]
	if !ok {
		return sweep.ErrSweepNotFound
	}
	sw.UpdatedAt = m.now()
	existing.Status = sw.Status
	existing.TxHash = sw.TxHash
	existing.Error = sw.Error
	existing.UpdatedAt = sw.UpdatedAt
	return nil
}

func (m *MemoryStore) GetSweep(_ context.Context, id string) (*sweep.Sweep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	sw, ok := m.sweeps[id]
	if !ok {
		return nil, sweep.ErrSweepNotFound
	}
	out := *sw
	return &out, nil
}

func (m *MemoryStore) ListSweeps(_ context.Context, c chain.Chain, limit int) ([]*sweep.Sweep, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*sweep.Sweep
	for i := len(m.sweepOrder) - 1; i >= 0; i-- {
		sw := m.sweeps[m.sweepOrder[i]]
		if sw.Chain != c {
			continue
		}
		cp := *sw
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Treasury journal

func (m *MemoryStore) EnsureAccounts(_ context.Context, currency, network string, names []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, name := range names {
		key := accountKey{name, currency, network}
		if _, ok := m.accounts[key]; !ok {
			m.accounts[key] = &treasury.Account{ID: m.id(), Name: name, Currency: currency, Network: network}
		}
	}
	return nil
}

func (m *MemoryStore) GetAccount(_ context.Context, name, currency, network string) (*treasury.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	acc, ok := m.accounts[accountKey{name, currency, network}]
	if !ok {
		return nil, treasury.ErrAccountNotFound
	}
	out := *acc
	return &out, nil
}

func (m *MemoryStore) CreateLedger(_ context.Context, l *treasury.Ledger) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ledgers[l.ID]; ok {
		return fmt.Errorf("treasury ledger %s already exists", l.ID)
	}
	cp := *l
	m.ledgers[l.ID] = &cp
	return nil
}

func (m *MemoryStore) GetLedger(_ context.Context, id string) (*treasury.Ledger, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.ledgers[id]
	if !ok {
		return nil, treasury.ErrLedgerNotFound
	}
	out := *l
	return &out, nil
}

func (m *MemoryStore) openLedger(id string) (*treasury.Ledger, error) {
	l, ok := m.ledgers[id]
	if !ok {
		return nil, treasury.ErrLedgerNotFound
	}
	if l.Locked {
		return nil, treasury.ErrLedgerLocked
	}
	return l, nil
}

func (m *MemoryStore) InsertEntry(_ context.Context, e *treasury.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.openLedger(e.LedgerID); err != nil {
		return err
	}
	e.ID = m.id()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = m.now()
	}
	m.tEntries = append(m.tEntries, *e)
	return nil
}

func (m *MemoryStore) ListLedgerEntries(_ context.Context, ledgerID string) ([]treasury.Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ledgerEntries(ledgerID), nil
}

func (m *MemoryStore) ledgerEntries(ledgerID string) []treasury.Entry {
	var out []treasury.Entry
	for _, e := range m.tEntries {
		if e.LedgerID == ledgerID {
			out = append(out, e)
		}
	}
	return out
}

func (m *MemoryStore) LockLedger(_ context.Context, ledgerID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, err := m.openLedger(ledgerID)
	if err != nil {
		return err
	}
	if err := treasury.CheckBalanced(m.ledgerEntries(ledgerID)); err != nil {
		return err
	}
	l.Locked = true
	l.LockedAt = &at
	return nil
}

func (m *MemoryStore) UpdateEntry(_ context.Context, e *treasury.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.openLedger(e.LedgerID); err != nil {
		return err
	}
	for i := range m.tEntries {
		if m.tEntries[i].ID == e.ID && m.tEntries[i].LedgerID == e.LedgerID {
			m.tEntries[i].AccountID = e.AccountID
			m.tEntries[i].Debit = e.Debit
			m.tEntries[i].Credit = e.Credit
		}
	}
	return nil
}

func (m *MemoryStore) DeleteEntry(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.tEntries {
		if e.ID != id {
			continue
		}
		if _, err := m.openLedger(e.LedgerID); err != nil {
			return err
		}
		m.tEntries = append(m.tEntries[:i], m.tEntries[i+1:]...)
		return nil
	}
	return treasury.ErrInvalidEntry
}

func (m *MemoryStore) DeleteLedger(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.openLedger(id); err != nil {
		return err
	}
	kept := m.tEntries[:0]
	for _, e := range m.tEntries {
		if e.LedgerID != id {
			kept = append(kept, e)
		}
	}
	m.tEntries = kept
	delete(m.ledgers, id)
	return nil
}
