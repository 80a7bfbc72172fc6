package handler

import (
	"github.com/rs/zerolog"

	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/game/guess"
)

// GuessHandler books guess-the-sum submissions for the current period.
type GuessHandler struct {
	game    *guess.Game
	periods PeriodSource
	trustee TrusteeState
	log     zerolog.Logger
}

// NewGuessHandler creates the guess stage.
func NewGuessHandler(game *guess.Game, periods PeriodSource, trustee TrusteeState, log zerolog.Logger) *GuessHandler {
	return &GuessHandler{
		game:    game,
		periods: periods,
		trustee: trustee,
		log:     log.With().Str("handler", "guess").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *GuessHandler) Name() string { return "guess" }

// Handle implements dispatch.Handler. Submissions are silent; the prize
// notice goes out at settlement.
func (h *GuessHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	if !msg.IsGroupMessage() {
		return dispatch.NotHandled
	}
	digit, ok := h.game.TryParse(msg.Text)
	if !ok {
		return dispatch.NotHandled
	}
	if !h.trustee.TrusteeEnabled() {
		return dispatch.Terminal
	}

	p := h.periods.CurrentPeriod()
	if err := h.game.Submit(p.ID, msg.SenderID, digit); err != nil {
		h.log.Debug().Err(err).Str("player", msg.SenderID).Int("digit", digit).Msg("guess rejected")
	}
	return dispatch.Terminal
}
