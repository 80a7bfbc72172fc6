// Package settle owns the bet book for open periods and the settlement
// engine that prices every record against a draw result exactly once.
package settle

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/model"
)

// Sentinel errors for bet capture and settlement.
var (
	ErrPeriodSealed    = errors.New("period is sealed")
	ErrAlreadySettled  = errors.New("period already settled")
	ErrNoBets          = errors.New("no bets for player in period")
	ErrCancelForbidden = errors.New("bet cancel is disabled")
)

// Category names shared with the streak tracker.
const (
	CategoryBigSmall = "bigsmall"
	CategoryOddEven  = "oddeven"
	CategoryCombo    = "combo"
)

// StreakSource supplies odds reductions for streaking codes. Implemented
// by the streak tracker; pricing subtracts the reduction captured at bet
// time, floored at a multiplier of 1.
type StreakSource interface {
	Reduction(category, code string) decimal.Decimal
	Observe(outcomes map[string]string)
}

type nopStreaks struct{}

func (nopStreaks) Reduction(string, string) decimal.Decimal { return decimal.Zero }
func (nopStreaks) Observe(map[string]string)                {}

// Sink receives finished settlement entries for persistence. Must not block.
type Sink interface {
	SaveSettlement(entry model.SettlementEntry)
}

type nopSink struct{}

func (nopSink) SaveSettlement(model.SettlementEntry) {}

// priced is one bet record plus the multipliers frozen at capture time.
type priced struct {
	rec   *model.BetRecord
	mults map[string]decimal.Decimal // code -> effective multiplier
}

// DayStats aggregates settled periods for the daily report.
type DayStats struct {
	Date         string
	Periods      int
	TotalStaked  decimal.Decimal
	TotalPayout  decimal.Decimal
	HouseNet     decimal.Decimal
	PlayersSeen  int
	settledSeen  map[string]bool
}

// Engine captures bets for open periods and settles them against draws.
type Engine struct {
	mu            sync.Mutex
	led           *ledger.Ledger
	book          *bet.Book
	streaks       StreakSource
	sink          Sink
	log           zerolog.Logger
	allowCancel   bool
	periods       map[int64]map[string]*priced
	sealed        map[int64]bool
	settledGuards map[int64]*sync.Once
	settled       map[int64][]model.SettlementEntry
	stats         DayStats
}

// New creates an engine. streaks and sink may be nil.
func New(led *ledger.Ledger, book *bet.Book, streaks StreakSource, sink Sink, allowCancel bool, log zerolog.Logger) *Engine {
	if streaks == nil {
		streaks = nopStreaks{}
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Engine{
		led:           led,
		book:          book,
		streaks:       streaks,
		sink:          sink,
		log:           log.With().Str("component", "settle").Logger(),
		allowCancel:   allowCancel,
		periods:       make(map[int64]map[string]*priced),
		sealed:        make(map[int64]bool),
		settledGuards: make(map[int64]*sync.Once),
		settled:       make(map[int64][]model.SettlementEntry),
		stats:         DayStats{Date: today(), settledSeen: make(map[string]bool)},
	}
}

func today() string { return time.Now().Format("2006-01-02") }

func categoryOf(item model.BetItem) (string, bool) {
	switch item.Kind {
	case model.BetBigSmall:
		return CategoryBigSmall, true
	case model.BetOddEven:
		return CategoryOddEven, true
	case model.BetCombo:
		return CategoryCombo, true
	}
	return "", false
}

// PlaceBet validates and books one wager message for a player. The whole
// message is all-or-nothing: validation or stake reservation failure books
// nothing. Repeated messages in the same period accumulate onto one record.
func (e *Engine) PlaceBet(period int64, msg *model.ChatMessage, items []model.BetItem) (*model.BetRecord, error) {
	odds := e.book.Current()
	if err := odds.Validate(items); err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.sealed[period] {
		e.mu.Unlock()
		return nil, fmt.Errorf("%w: period %d", ErrPeriodSealed, period)
	}
	e.mu.Unlock()

	total := bet.Total(items)
	balance, err := e.led.ReserveStake(msg.SenderID, msg.SenderNick, total, model.NoteBetStake)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sealed[period] {
		// Sealed while we were reserving; give the stake back.
		e.led.ReleaseStake(msg.SenderID, total, model.NoteBetRefund)
		return nil, fmt.Errorf("%w: period %d", ErrPeriodSealed, period)
	}
	byPlayer, ok := e.periods[period]
	if !ok {
		byPlayer = make(map[string]*priced)
		e.periods[period] = byPlayer
	}
	p, ok := byPlayer[msg.SenderID]
	if !ok {
		p = &priced{
			rec: &model.BetRecord{
				Period:      period,
				PlayerID:    msg.SenderID,
				Nickname:    msg.SenderNick,
				GroupID:     msg.GroupID,
				CapturedAt:  time.Now(),
				ScoreBefore: balance.Balance.Add(total),
			},
			mults: make(map[string]decimal.Decimal),
		}
		byPlayer[msg.SenderID] = p
	}
	p.rec.RawText = msg.Text
	p.rec.Items = bet.Accumulate(append(p.rec.Items, items...))
	p.rec.TotalAmount = p.rec.TotalAmount.Add(total)

	for _, item := range items {
		if _, seen := p.mults[item.Code]; seen {
			continue
		}
		mult, ok := odds.For(item)
		if !ok {
			// Validate covered code sanity; defensive fallback to stake-back.
			mult = decimal.NewFromInt(1)
		}
		if category, tracked := categoryOf(item); tracked {
			mult = mult.Sub(e.streaks.Reduction(category, item.Code))
			if mult.LessThan(decimal.NewFromInt(1)) {
				mult = decimal.NewFromInt(1)
			}
		}
		p.mults[item.Code] = mult
	}

	e.log.Info().Int64("period", period).Str("player", msg.SenderID).
		Str("bets", bet.Summary(items)).Str("total", total.String()).Msg("bet booked")
	rec := *p.rec
	return &rec, nil
}

// CancelBets refunds all of a player's reservations for a period.
func (e *Engine) CancelBets(period int64, playerID string) (decimal.Decimal, error) {
	if !e.allowCancel {
		return decimal.Zero, ErrCancelForbidden
	}
	e.mu.Lock()
	if e.sealed[period] {
		e.mu.Unlock()
		return decimal.Zero, fmt.Errorf("%w: period %d", ErrPeriodSealed, period)
	}
	byPlayer := e.periods[period]
	p, ok := byPlayer[playerID]
	if !ok || p.rec.Settled {
		e.mu.Unlock()
		return decimal.Zero, ErrNoBets
	}
	refund := p.rec.TotalAmount
	delete(byPlayer, playerID)
	e.mu.Unlock()

	if _, err := e.led.ReleaseStake(playerID, refund, model.NoteBetRefund); err != nil {
		return decimal.Zero, err
	}
	e.log.Info().Int64("period", period).Str("player", playerID).
		Str("refund", refund.String()).Msg("bets cancelled")
	return refund, nil
}

// Seal closes a period for new bets and cancels.
func (e *Engine) Seal(period int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sealed[period] = true
}

// RecordFor returns a copy of the player's current record in a period.
func (e *Engine) RecordFor(period int64, playerID string) (model.BetRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.periods[period][playerID]
	if !ok {
		return model.BetRecord{}, false
	}
	return *p.rec, true
}

// WinningCodes derives every winning wager code from a draw.
func WinningCodes(d model.DrawResult, odds *bet.Odds) map[string]bool {
	out := make(map[string]bool, 8)
	big := d.Sum >= odds.BigMin
	odd := d.Sum%2 == 1
	if big {
		out[bet.CodeBig] = true
	} else {
		out[bet.CodeSmall] = true
	}
	if odd {
		out[bet.CodeOdd] = true
	} else {
		out[bet.CodeEven] = true
	}
	switch {
	case big && odd:
		out[bet.CodeBigOdd] = true
	case big && !odd:
		out[bet.CodeBigEven] = true
	case !big && odd:
		out[bet.CodeSmallOdd] = true
	default:
		out[bet.CodeSmallEven] = true
	}
	out[strconv.Itoa(d.Sum)] = true
	if d.IsLeopard() {
		out[bet.CodeLeopard] = true
	}
	if d.IsStraight() {
		out[bet.CodeStraight] = true
	}
	if d.IsPair() {
		out[bet.CodePair] = true
	}
	if d.Sum >= odds.ExtremeBigMin {
		out[bet.CodeExtremeBig] = true
	}
	if d.Sum <= odds.ExtremeSmallMax {
		out[bet.CodeExtremeSmall] = true
	}
	return out
}

// Outcomes maps streak categories to this draw's outcome code.
func Outcomes(d model.DrawResult, odds *bet.Odds) map[string]string {
	big := d.Sum >= odds.BigMin
	odd := d.Sum%2 == 1
	out := make(map[string]string, 3)
	if big {
		out[CategoryBigSmall] = bet.CodeBig
	} else {
		out[CategoryBigSmall] = bet.CodeSmall
	}
	if odd {
		out[CategoryOddEven] = bet.CodeOdd
	} else {
		out[CategoryOddEven] = bet.CodeEven
	}
	switch {
	case big && odd:
		out[CategoryCombo] = bet.CodeBigOdd
	case big && !odd:
		out[CategoryCombo] = bet.CodeBigEven
	case !big && odd:
		out[CategoryCombo] = bet.CodeSmallOdd
	default:
		out[CategoryCombo] = bet.CodeSmallEven
	}
	return out
}

// Settle prices every record of the period against the draw, credits
// winners through the ledger and returns the per-player entries. Exactly
// once per period: repeat calls return ErrAlreadySettled.
func (e *Engine) Settle(draw model.DrawResult) ([]model.SettlementEntry, error) {
	e.mu.Lock()
	guard, ok := e.settledGuards[draw.Period]
	if !ok {
		guard = &sync.Once{}
		e.settledGuards[draw.Period] = guard
	}
	e.mu.Unlock()

	var (
		entries []model.SettlementEntry
		ran     bool
		runErr  error
	)
	guard.Do(func() {
		ran = true
		entries, runErr = e.settleOnce(draw)
	})
	if !ran {
		e.mu.Lock()
		prior := e.settled[draw.Period]
		e.mu.Unlock()
		return prior, ErrAlreadySettled
	}
	return entries, runErr
}

func (e *Engine) settleOnce(draw model.DrawResult) ([]model.SettlementEntry, error) {
	odds := e.book.Current()
	winners := WinningCodes(draw, odds)

	e.mu.Lock()
	e.sealed[draw.Period] = true
	byPlayer := e.periods[draw.Period]
	records := make([]*priced, 0, len(byPlayer))
	for _, p := range byPlayer {
		if !p.rec.Settled {
			records = append(records, p)
		}
	}
	e.mu.Unlock()

	entries := make([]model.SettlementEntry, 0, len(records))
	for _, p := range records {
		payout := decimal.Zero
		detail := ""
		for _, item := range p.rec.Items {
			if !winners[item.Code] {
				continue
			}
			mult, ok := p.mults[item.Code]
			if !ok {
				mult, _ = odds.For(item)
			}
			credit := item.Amount.Mul(mult)
			payout = payout.Add(credit)
			if detail != "" {
				detail += " "
			}
			detail += fmt.Sprintf("%s%s中%s", item.Code, item.Amount, credit)
		}

		before := e.led.Balance(p.rec.PlayerID)
		balance, err := e.led.SettleStake(p.rec.PlayerID, p.rec.TotalAmount, payout, model.NoteBetPayout)
		if err != nil {
			e.log.Error().Err(err).Int64("period", draw.Period).
				Str("player", p.rec.PlayerID).Msg("settle stake failed")
			continue
		}

		entry := model.SettlementEntry{
			Period:        draw.Period,
			PlayerID:      p.rec.PlayerID,
			Nickname:      p.rec.Nickname,
			Stake:         p.rec.TotalAmount,
			Payout:        payout,
			Profit:        payout.Sub(p.rec.TotalAmount),
			BalanceBefore: before.Balance,
			BalanceAfter:  balance.Balance,
			Detail:        detail,
			SettledAt:     time.Now(),
		}
		entries = append(entries, entry)
		e.sink.SaveSettlement(entry)

		e.mu.Lock()
		p.rec.Settled = true
		e.mu.Unlock()
	}

	e.streaks.Observe(Outcomes(draw, odds))

	e.mu.Lock()
	e.settled[draw.Period] = entries
	delete(e.periods, draw.Period)
	e.rollStats(entries)
	e.pruneBefore(draw.Period - settledRetention)
	e.mu.Unlock()

	e.log.Info().Int64("period", draw.Period).
		Ints("nums", draw.Nums[:]).Int("sum", draw.Sum).
		Int("players", len(entries)).Msg("period settled")
	return entries, nil
}

// settledRetention is how many past periods keep their seal and
// settlement records for late duplicate draws. Periods run on a fixed
// cadence, so anything older is noise from a resynchronizing feed.
const settledRetention = 32

// pruneBefore drops seal flags, settle guards and stored entries for
// periods older than the cutoff. Caller holds mu.
func (e *Engine) pruneBefore(cutoff int64) {
	for p := range e.sealed {
		if p < cutoff {
			delete(e.sealed, p)
		}
	}
	for p := range e.settledGuards {
		if p < cutoff {
			delete(e.settledGuards, p)
		}
	}
	for p := range e.settled {
		if p < cutoff {
			delete(e.settled, p)
		}
	}
}

// rollStats folds settled entries into the daily aggregate. Caller holds mu.
func (e *Engine) rollStats(entries []model.SettlementEntry) {
	if d := today(); d != e.stats.Date {
		e.stats = DayStats{Date: d, settledSeen: make(map[string]bool)}
	}
	e.stats.Periods++
	for _, entry := range entries {
		e.stats.TotalStaked = e.stats.TotalStaked.Add(entry.Stake)
		e.stats.TotalPayout = e.stats.TotalPayout.Add(entry.Payout)
		if !e.stats.settledSeen[entry.PlayerID] {
			e.stats.settledSeen[entry.PlayerID] = true
			e.stats.PlayersSeen++
		}
	}
	e.stats.HouseNet = e.stats.TotalStaked.Sub(e.stats.TotalPayout)
}

// Stats returns a copy of today's aggregate.
func (e *Engine) Stats() DayStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.stats
	s.settledSeen = nil
	return s
}
