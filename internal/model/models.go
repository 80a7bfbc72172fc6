// Package model defines the data models shared across the lottery group bot.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ChatMessage is a decoded chat event. Immutable once produced by the codec.
type ChatMessage struct {
	ID         string
	GroupID    string // empty for private messages
	SenderID   string
	SenderNick string
	Text       string
	RawBytes   []byte
	Timestamp  time.Time
	IsFromSelf bool
}

// IsGroupMessage reports whether the message was sent in a group.
func (m *ChatMessage) IsGroupMessage() bool {
	return m.GroupID != ""
}

// PlayerBalance is a player's current ledger-derived state.
// Mutated only through ledger operations.
type PlayerBalance struct {
	PlayerID       string
	Nickname       string
	Balance        decimal.Decimal
	ReservedScore  decimal.Decimal
	TotalDeposited decimal.Decimal
	TotalWithdrawn decimal.Decimal
	TotalStaked    decimal.Decimal
	TotalWon       decimal.Decimal
	LastUpdate     time.Time
}

// EntryKind categorizes a ledger entry.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryStake      EntryKind = "stake"
	EntryWin        EntryKind = "win"
	EntryAdjustment EntryKind = "adjustment"
)

// LedgerEntry is one append-only record in the balance journal.
// Balances must reconcile against the sum of entries per player.
type LedgerEntry struct {
	ID            string
	PlayerID      string
	AmountDelta   decimal.Decimal
	Kind          EntryKind
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Timestamp     time.Time
	Note          string
}

// BetKind is the category a wager code belongs to.
type BetKind string

const (
	BetBigSmall BetKind = "bigsmall" // 大 / 小
	BetOddEven  BetKind = "oddeven"  // 单 / 双
	BetCombo    BetKind = "combo"    // 大单 大双 小单 小双
	BetDigit    BetKind = "digit"    // 0-27 sum
	BetShape    BetKind = "shape"    // 豹子 顺子 对子
	BetExtreme  BetKind = "extreme"  // 极大 极小
)

// BetItem is one wager unit (code + amount) inside a bet message.
type BetItem struct {
	Kind   BetKind
	Code   string
	Amount decimal.Decimal
}

// BetRecord is one recognized wager message, captured for settlement.
type BetRecord struct {
	Period      int64
	PlayerID    string
	Nickname    string
	GroupID     string
	RawText     string
	Items       []BetItem
	TotalAmount decimal.Decimal
	ScoreBefore decimal.Decimal
	CapturedAt  time.Time
	Settled     bool
}

// DrawResult is an externally supplied lottery draw for one period.
type DrawResult struct {
	Period int64
	Nums   [3]int
	Sum    int
	Time   time.Time
}

// NewDrawResult derives the sum from the three draw components.
func NewDrawResult(period int64, n1, n2, n3 int) DrawResult {
	return DrawResult{
		Period: period,
		Nums:   [3]int{n1, n2, n3},
		Sum:    n1 + n2 + n3,
		Time:   time.Now(),
	}
}

// IsLeopard reports whether all three components are equal.
func (d DrawResult) IsLeopard() bool {
	return d.Nums[0] == d.Nums[1] && d.Nums[1] == d.Nums[2]
}

// IsPair reports whether exactly two components are equal.
func (d DrawResult) IsPair() bool {
	if d.IsLeopard() {
		return false
	}
	return d.Nums[0] == d.Nums[1] || d.Nums[1] == d.Nums[2] || d.Nums[0] == d.Nums[2]
}

// IsStraight reports whether the components form a consecutive run.
func (d DrawResult) IsStraight() bool {
	lo, mid, hi := sort3(d.Nums[0], d.Nums[1], d.Nums[2])
	return mid-lo == 1 && hi-mid == 1
}

// IsHalfStraight reports whether exactly one adjacent pair is consecutive.
func (d DrawResult) IsHalfStraight() bool {
	if d.IsStraight() || d.IsLeopard() || d.IsPair() {
		return false
	}
	lo, mid, hi := sort3(d.Nums[0], d.Nums[1], d.Nums[2])
	return mid-lo == 1 || hi-mid == 1
}

func sort3(a, b, c int) (int, int, int) {
	if a > b {
		a, b = b, a
	}
	if b > c {
		b, c = c, b
	}
	if a > b {
		a, b = b, a
	}
	return a, b, c
}

// SettlementEntry records the outcome of one player's bets in one period.
type SettlementEntry struct {
	Period        int64
	PlayerID      string
	Nickname      string
	Stake         decimal.Decimal
	Payout        decimal.Decimal // total credited (stake x odds over winning items)
	Profit        decimal.Decimal // payout minus stake
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Detail        string
	SettledAt     time.Time
}

// PeriodState is a phase of the betting/draw cycle.
type PeriodState string

const (
	PeriodOpen         PeriodState = "open"
	PeriodReminding    PeriodState = "reminding"
	PeriodSealed       PeriodState = "sealed"
	PeriodAwaitingDraw PeriodState = "awaiting_draw"
	PeriodSettling     PeriodState = "settling"
)

// Period is one betting/draw cycle. Identity is a deterministic function of
// wall-clock time and the configured draw interval.
type Period struct {
	ID     int64
	OpenAt time.Time
	SealAt time.Time
	DrawAt time.Time
	State  PeriodState
}

// Ledger entry notes for the standard operations.
const (
	NoteUpScore    = "up-score"
	NoteDownScore  = "down-score"
	NoteBetStake   = "bet-stake"
	NoteBetRefund  = "bet-refund"
	NoteBetPayout  = "bet-payout"
	NoteGuessPrize = "guess-prize"
	NoteBonus      = "bonus"
	NoteRebate     = "rebate"
)
