// Package bet implements the wager grammar, the score-command grammar and
// the odds tables used to price and validate bets.
package bet

import (
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// defaultDigitOdds is the symmetric payout table for exact-sum bets,
// keyed by distance from the edges (0 and 27 pay the same, and so on).
var defaultDigitOdds = map[int]float64{
	0: 1000, 1: 500, 2: 166, 3: 98, 4: 64, 5: 44, 6: 33,
	7: 26, 8: 21, 9: 18, 10: 16, 11: 15, 12: 14.4, 13: 14,
}

// Odds is an immutable pricing snapshot. Handlers read the snapshot that
// was current when the bet was captured; operator updates swap in a new
// snapshot without touching in-flight settlements.
type Odds struct {
	BigSmall     decimal.Decimal
	OddEven      decimal.Decimal
	Combo        decimal.Decimal
	Leopard      decimal.Decimal
	Straight     decimal.Decimal
	Pair         decimal.Decimal
	ExtremeBig   decimal.Decimal
	ExtremeSmall decimal.Decimal
	Digits       map[int]decimal.Decimal

	BigMin          int
	ExtremeBigMin   int
	ExtremeSmallMax int

	MinBet     decimal.Decimal
	MaxBet     decimal.Decimal
	MaxDigit   decimal.Decimal
	MaxShape   decimal.Decimal
	MaxMessage decimal.Decimal
}

// FromConfig converts the file-level odds configuration into a snapshot.
// Digits absent from the file fall back to the symmetric default table.
func FromConfig(cfg config.OddsFileConfig) *Odds {
	o := &Odds{
		BigSmall:        decimal.NewFromFloat(cfg.BigSmall),
		OddEven:         decimal.NewFromFloat(cfg.OddEven),
		Combo:           decimal.NewFromFloat(cfg.Combo),
		Leopard:         decimal.NewFromFloat(cfg.Leopard),
		Straight:        decimal.NewFromFloat(cfg.Straight),
		Pair:            decimal.NewFromFloat(cfg.Pair),
		ExtremeBig:      decimal.NewFromFloat(cfg.ExtremeBig),
		ExtremeSmall:    decimal.NewFromFloat(cfg.ExtremeSmall),
		Digits:          make(map[int]decimal.Decimal, 28),
		BigMin:          cfg.BigMin,
		ExtremeBigMin:   cfg.ExtremeBigMin,
		ExtremeSmallMax: cfg.ExtremeSmallMax,
		MinBet:          decimal.NewFromInt(cfg.MinBet),
		MaxBet:          decimal.NewFromInt(cfg.MaxBet),
		MaxDigit:        decimal.NewFromInt(cfg.MaxDigit),
		MaxShape:        decimal.NewFromInt(cfg.MaxShape),
		MaxMessage:      decimal.NewFromInt(cfg.MaxMessage),
	}
	for n := 0; n <= 27; n++ {
		edge := n
		if n > 13 {
			edge = 27 - n
		}
		o.Digits[n] = decimal.NewFromFloat(defaultDigitOdds[edge])
	}
	for key, mult := range cfg.Digits {
		n, err := strconv.Atoi(key)
		if err != nil || n < 0 || n > 27 {
			continue
		}
		o.Digits[n] = decimal.NewFromFloat(mult)
	}
	return o
}

// For returns the multiplier for a bet item.
func (o *Odds) For(item model.BetItem) (decimal.Decimal, bool) {
	switch item.Kind {
	case model.BetBigSmall:
		return o.BigSmall, true
	case model.BetOddEven:
		return o.OddEven, true
	case model.BetCombo:
		return o.Combo, true
	case model.BetDigit:
		n, err := strconv.Atoi(item.Code)
		if err != nil {
			return decimal.Zero, false
		}
		mult, ok := o.Digits[n]
		return mult, ok
	case model.BetShape:
		switch item.Code {
		case CodeLeopard:
			return o.Leopard, true
		case CodeStraight:
			return o.Straight, true
		case CodePair:
			return o.Pair, true
		}
	case model.BetExtreme:
		switch item.Code {
		case CodeExtremeBig:
			return o.ExtremeBig, true
		case CodeExtremeSmall:
			return o.ExtremeSmall, true
		}
	}
	return decimal.Zero, false
}

// ceilingFor returns the per-item stake cap for a bet category.
func (o *Odds) ceilingFor(kind model.BetKind) decimal.Decimal {
	switch kind {
	case model.BetDigit:
		return o.MaxDigit
	case model.BetShape, model.BetExtreme:
		return o.MaxShape
	default:
		return o.MaxBet
	}
}

// Validate checks accumulated bet items against floors, per-category
// ceilings and the whole-message cap. All-or-nothing: the first violation
// rejects the entire message.
func (o *Odds) Validate(items []model.BetItem) error {
	total := decimal.Zero
	for _, item := range items {
		if item.Amount.LessThan(o.MinBet) {
			return fmt.Errorf("%w: %s%s below minimum %s", ErrBetTooSmall, item.Code, item.Amount, o.MinBet)
		}
		if ceiling := o.ceilingFor(item.Kind); item.Amount.GreaterThan(ceiling) {
			return fmt.Errorf("%w: %s%s over limit %s", ErrBetTooLarge, item.Code, item.Amount, ceiling)
		}
		total = total.Add(item.Amount)
	}
	if total.GreaterThan(o.MaxMessage) {
		return fmt.Errorf("%w: message total %s over %s", ErrBetTooLarge, total, o.MaxMessage)
	}
	return nil
}

// Book holds the current odds snapshot behind an atomic pointer so that
// operator updates never race with pricing reads.
type Book struct {
	p atomic.Pointer[Odds]
}

// NewBook creates a Book with an initial snapshot.
func NewBook(o *Odds) *Book {
	b := &Book{}
	b.p.Store(o)
	return b
}

// Current returns the live snapshot. Callers must treat it as read-only.
func (b *Book) Current() *Odds {
	return b.p.Load()
}

// Update swaps in a new snapshot.
func (b *Book) Update(o *Odds) {
	b.p.Store(o)
}

// Accumulate merges items with identical codes, preserving first-seen
// order. "大100 大50" is one 大150 wager.
func Accumulate(items []model.BetItem) []model.BetItem {
	if len(items) <= 1 {
		return items
	}
	index := make(map[string]int, len(items))
	out := make([]model.BetItem, 0, len(items))
	for _, item := range items {
		if i, ok := index[item.Code]; ok {
			out[i].Amount = out[i].Amount.Add(item.Amount)
			continue
		}
		index[item.Code] = len(out)
		out = append(out, item)
	}
	return out
}
