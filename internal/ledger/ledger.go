// Package ledger keeps the authoritative in-memory player balances and the
// append-only entry journal behind them. All mutations serialize per player;
// a journal sink receives every entry for asynchronous persistence.
package ledger

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/model"
	"lottery-group-bot/internal/pkg/lock"
)

// Sentinel errors for balance operations.
var (
	ErrPlayerNotFound      = errors.New("player not found")
	ErrInvalidAmount       = errors.New("amount must be positive")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBalanceLimit        = errors.New("balance limit exceeded")
)

// Sink receives every journal entry as it is appended. Implementations
// must not block; persistence failures are their problem to retry.
type Sink interface {
	Append(entry model.LedgerEntry)
}

// nopSink discards entries, used when no persistence is configured.
type nopSink struct{}

func (nopSink) Append(model.LedgerEntry) {}

// recentEntriesKept bounds the per-player in-memory history window.
const recentEntriesKept = 50

type playerState struct {
	balance model.PlayerBalance
	recent  []model.LedgerEntry
}

// Ledger is the concurrent balance book. The in-memory state is
// authoritative; the sink only journals for recovery and audit.
type Ledger struct {
	mu       sync.RWMutex
	players  map[string]*playerState
	locks    *lock.PlayerLock
	sink     Sink
	maxScore decimal.Decimal
	log      zerolog.Logger
}

// New creates a ledger. maxScore zero means no cap.
func New(sink Sink, maxScore decimal.Decimal, log zerolog.Logger) *Ledger {
	if sink == nil {
		sink = nopSink{}
	}
	return &Ledger{
		players:  make(map[string]*playerState),
		locks:    lock.NewPlayerLock(),
		sink:     sink,
		maxScore: maxScore,
		log:      log.With().Str("component", "ledger").Logger(),
	}
}

// getOrCreate returns the player state, creating a zero balance on first
// contact. Caller must hold the player lock for mutations.
func (l *Ledger) getOrCreate(playerID, nickname string) *playerState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.players[playerID]
	if !ok {
		st = &playerState{balance: model.PlayerBalance{
			PlayerID:   playerID,
			Nickname:   nickname,
			LastUpdate: time.Now(),
		}}
		l.players[playerID] = st
	}
	if nickname != "" {
		st.balance.Nickname = nickname
	}
	return st
}

func (l *Ledger) appendEntry(st *playerState, kind model.EntryKind, delta decimal.Decimal, before decimal.Decimal, note string) model.LedgerEntry {
	entry := model.LedgerEntry{
		ID:            uuid.NewString(),
		PlayerID:      st.balance.PlayerID,
		AmountDelta:   delta,
		Kind:          kind,
		BalanceBefore: before,
		BalanceAfter:  st.balance.Balance,
		Timestamp:     time.Now(),
		Note:          note,
	}
	st.recent = append(st.recent, entry)
	if len(st.recent) > recentEntriesKept {
		st.recent = st.recent[len(st.recent)-recentEntriesKept:]
	}
	l.sink.Append(entry)
	return entry
}

// Deposit credits a player (up-score). Amount must be positive.
func (l *Ledger) Deposit(playerID, nickname string, amount decimal.Decimal) (model.PlayerBalance, error) {
	if !amount.IsPositive() {
		return model.PlayerBalance{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st := l.getOrCreate(playerID, nickname)
		next := st.balance.Balance.Add(amount)
		if !l.maxScore.IsZero() && next.GreaterThan(l.maxScore) {
			return fmt.Errorf("%w: %s over cap %s", ErrBalanceLimit, next, l.maxScore)
		}
		before := st.balance.Balance
		st.balance.Balance = next
		st.balance.TotalDeposited = st.balance.TotalDeposited.Add(amount)
		st.balance.LastUpdate = time.Now()
		l.appendEntry(st, model.EntryDeposit, amount, before, model.NoteUpScore)
		out = st.balance
		return nil
	})
	if err != nil {
		return model.PlayerBalance{}, err
	}
	l.log.Info().Str("player", playerID).Str("amount", amount.String()).
		Str("balance", out.Balance.String()).Msg("deposit")
	return out, nil
}

// Withdraw debits a player (down-score). Fails without mutation when the
// available balance does not cover the amount.
func (l *Ledger) Withdraw(playerID string, amount decimal.Decimal) (model.PlayerBalance, error) {
	if !amount.IsPositive() {
		return model.PlayerBalance{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st, ok := l.lookup(playerID)
		if !ok {
			return ErrPlayerNotFound
		}
		if st.balance.Balance.LessThan(amount) {
			return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, st.balance.Balance, amount)
		}
		before := st.balance.Balance
		st.balance.Balance = st.balance.Balance.Sub(amount)
		st.balance.TotalWithdrawn = st.balance.TotalWithdrawn.Add(amount)
		st.balance.LastUpdate = time.Now()
		l.appendEntry(st, model.EntryWithdrawal, amount.Neg(), before, model.NoteDownScore)
		out = st.balance
		return nil
	})
	if err != nil {
		return model.PlayerBalance{}, err
	}
	l.log.Info().Str("player", playerID).Str("amount", amount.String()).
		Str("balance", out.Balance.String()).Msg("withdraw")
	return out, nil
}

// ReserveStake moves amount from balance into the reserved bucket for a
// pending bet. The whole reservation is atomic: on insufficient balance
// nothing changes.
func (l *Ledger) ReserveStake(playerID, nickname string, amount decimal.Decimal, note string) (model.PlayerBalance, error) {
	if !amount.IsPositive() {
		return model.PlayerBalance{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st := l.getOrCreate(playerID, nickname)
		if st.balance.Balance.LessThan(amount) {
			return fmt.Errorf("%w: have %s, want %s", ErrInsufficientBalance, st.balance.Balance, amount)
		}
		before := st.balance.Balance
		st.balance.Balance = st.balance.Balance.Sub(amount)
		st.balance.ReservedScore = st.balance.ReservedScore.Add(amount)
		st.balance.TotalStaked = st.balance.TotalStaked.Add(amount)
		st.balance.LastUpdate = time.Now()
		l.appendEntry(st, model.EntryStake, amount.Neg(), before, note)
		out = st.balance
		return nil
	})
	return out, err
}

// ReleaseStake returns a reserved stake to the balance (bet cancel or
// period void). Releasing more than is reserved is a programming error
// and is clamped with a warning rather than corrupting the book.
func (l *Ledger) ReleaseStake(playerID string, amount decimal.Decimal, note string) (model.PlayerBalance, error) {
	if !amount.IsPositive() {
		return model.PlayerBalance{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st, ok := l.lookup(playerID)
		if !ok {
			return ErrPlayerNotFound
		}
		if st.balance.ReservedScore.LessThan(amount) {
			l.log.Warn().Str("player", playerID).Str("amount", amount.String()).
				Str("reserved", st.balance.ReservedScore.String()).Msg("release exceeds reservation, clamping")
			amount = st.balance.ReservedScore
		}
		before := st.balance.Balance
		st.balance.Balance = st.balance.Balance.Add(amount)
		st.balance.ReservedScore = st.balance.ReservedScore.Sub(amount)
		st.balance.TotalStaked = st.balance.TotalStaked.Sub(amount)
		st.balance.LastUpdate = time.Now()
		l.appendEntry(st, model.EntryAdjustment, amount, before, note)
		out = st.balance
		return nil
	})
	return out, err
}

// SettleStake consumes a reserved stake (the bet lost or is being paid
// out) and optionally credits a payout in the same atomic step.
func (l *Ledger) SettleStake(playerID string, stake, payout decimal.Decimal, note string) (model.PlayerBalance, error) {
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st, ok := l.lookup(playerID)
		if !ok {
			return ErrPlayerNotFound
		}
		if st.balance.ReservedScore.LessThan(stake) {
			return fmt.Errorf("%w: reserved %s, settling %s", ErrInsufficientBalance, st.balance.ReservedScore, stake)
		}
		st.balance.ReservedScore = st.balance.ReservedScore.Sub(stake)
		if payout.IsPositive() {
			before := st.balance.Balance
			st.balance.Balance = st.balance.Balance.Add(payout)
			st.balance.TotalWon = st.balance.TotalWon.Add(payout)
			l.appendEntry(st, model.EntryWin, payout, before, note)
		}
		st.balance.LastUpdate = time.Now()
		out = st.balance
		return nil
	})
	return out, err
}

// Credit adds a non-wager reward (guess prize, bonus, rebate).
func (l *Ledger) Credit(playerID, nickname string, amount decimal.Decimal, note string) (model.PlayerBalance, error) {
	if !amount.IsPositive() {
		return model.PlayerBalance{}, fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	var out model.PlayerBalance
	err := l.locks.WithLock(playerID, func() error {
		st := l.getOrCreate(playerID, nickname)
		before := st.balance.Balance
		st.balance.Balance = st.balance.Balance.Add(amount)
		st.balance.LastUpdate = time.Now()
		l.appendEntry(st, model.EntryAdjustment, amount, before, note)
		out = st.balance
		return nil
	})
	return out, err
}

func (l *Ledger) lookup(playerID string) (*playerState, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	st, ok := l.players[playerID]
	return st, ok
}

// Balance returns a copy of the player's current balance. An unknown
// player reads as a zero balance; no record is created.
func (l *Ledger) Balance(playerID string) model.PlayerBalance {
	st, ok := l.lookup(playerID)
	if !ok {
		return model.PlayerBalance{PlayerID: playerID}
	}
	l.locks.Lock(playerID)
	defer l.locks.Unlock(playerID)
	return st.balance
}

// Recent returns up to n most recent journal entries for a player,
// newest last.
func (l *Ledger) Recent(playerID string, n int) ([]model.LedgerEntry, error) {
	st, ok := l.lookup(playerID)
	if !ok {
		return nil, ErrPlayerNotFound
	}
	l.locks.Lock(playerID)
	defer l.locks.Unlock(playerID)
	if n <= 0 || n > len(st.recent) {
		n = len(st.recent)
	}
	out := make([]model.LedgerEntry, n)
	copy(out, st.recent[len(st.recent)-n:])
	return out, nil
}

// Snapshot returns a copy of every player balance, for stats and reports.
func (l *Ledger) Snapshot() []model.PlayerBalance {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]model.PlayerBalance, 0, len(l.players))
	for _, st := range l.players {
		out = append(out, st.balance)
	}
	return out
}

// Restore seeds a player balance from persisted state at startup.
// Not journaled; it reflects entries already on disk.
func (l *Ledger) Restore(b model.PlayerBalance) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.players[b.PlayerID] = &playerState{balance: b}
}
