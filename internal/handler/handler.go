// Package handler implements the pipeline stages that turn chat messages
// into ledger, bet and game operations. Handlers are registered on the
// dispatcher in priority order; each stage either consumes the message or
// passes it on.
package handler

import (
	"lottery-group-bot/internal/model"
)

// Pipeline priorities. Lower runs first.
const (
	PriorityDraw    = 5
	PriorityTrustee = 6
	PriorityReport  = 7
	PriorityGuard   = 8
	PriorityScore   = 10
	PriorityGuess   = 15
	PriorityBet     = 20
)

// PeriodSource tells handlers which period is open right now.
type PeriodSource interface {
	CurrentPeriod() model.Period
}

// TrusteeState gates the money-moving stages. With trustee mode off the
// bot observes but never touches balances.
type TrusteeState interface {
	TrusteeEnabled() bool
	SetTrustee(enabled bool)
}

// DrawSubmitter accepts an externally obtained draw result.
type DrawSubmitter interface {
	SubmitDraw(draw model.DrawResult)
}
