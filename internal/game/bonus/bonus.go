// Package bonus credits the daily sign-in bonus and turnover rebates.
package bonus

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/model"
)

// Service grants at most one daily bonus per player per calendar day and
// pays rebates as a configured fraction of daily turnover.
type Service struct {
	mu          sync.Mutex
	enabled     bool
	dailyBonus  decimal.Decimal
	rebateRate  decimal.Decimal
	rebateFloor decimal.Decimal
	led         *ledger.Ledger
	log         zerolog.Logger
	granted     map[string]string // playerID -> last bonus day
	now         func() time.Time
}

// New builds the service. A nil config disables everything.
func New(cfg config.BonusConfig, led *ledger.Ledger, log zerolog.Logger) *Service {
	return &Service{
		enabled:     cfg.Enabled,
		dailyBonus:  decimal.NewFromInt(cfg.DailyBonus),
		rebateRate:  decimal.NewFromFloat(cfg.RebateRate),
		rebateFloor: decimal.NewFromInt(cfg.RebateMinTurn),
		led:         led,
		log:         log.With().Str("component", "bonus").Logger(),
		granted:     make(map[string]string),
		now:         time.Now,
	}
}

// MaybeDailyBonus credits the daily bonus on a player's first activity of
// the day. Returns the credited amount, zero when nothing was granted.
func (s *Service) MaybeDailyBonus(playerID, nickname string) decimal.Decimal {
	if !s.enabled || !s.dailyBonus.IsPositive() {
		return decimal.Zero
	}
	day := s.now().Format("2006-01-02")

	s.mu.Lock()
	if s.granted[playerID] == day {
		s.mu.Unlock()
		return decimal.Zero
	}
	s.granted[playerID] = day
	s.mu.Unlock()

	if _, err := s.led.Credit(playerID, nickname, s.dailyBonus, model.NoteBonus); err != nil {
		s.log.Error().Err(err).Str("player", playerID).Msg("daily bonus credit failed")
		s.mu.Lock()
		delete(s.granted, playerID)
		s.mu.Unlock()
		return decimal.Zero
	}
	s.log.Info().Str("player", playerID).Str("amount", s.dailyBonus.String()).Msg("daily bonus")
	return s.dailyBonus
}

// RebateFor computes the rebate on a day's turnover without crediting it.
func (s *Service) RebateFor(turnover decimal.Decimal) decimal.Decimal {
	if !s.enabled || !s.rebateRate.IsPositive() || turnover.LessThan(s.rebateFloor) {
		return decimal.Zero
	}
	return turnover.Mul(s.rebateRate).RoundDown(2)
}

// PayRebate credits the rebate for a player's turnover and returns the
// amount paid.
func (s *Service) PayRebate(playerID, nickname string, turnover decimal.Decimal) decimal.Decimal {
	amount := s.RebateFor(turnover)
	if !amount.IsPositive() {
		return decimal.Zero
	}
	if _, err := s.led.Credit(playerID, nickname, amount, model.NoteRebate); err != nil {
		s.log.Error().Err(err).Str("player", playerID).Msg("rebate credit failed")
		return decimal.Zero
	}
	s.log.Info().Str("player", playerID).Str("amount", amount.String()).Msg("rebate paid")
	return amount
}
