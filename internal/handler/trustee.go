package handler

import (
	"github.com/rs/zerolog"

	"lottery-group-bot/internal/dispatch"
)

// Trustee toggle commands, issued from the operator's own account.
const (
	trusteeOnText  = "开启托管"
	trusteeOffText = "停止托管"
)

// TrusteeHandler flips trustee mode on operator command.
type TrusteeHandler struct {
	state TrusteeState
	log   zerolog.Logger
}

// NewTrusteeHandler creates the trustee toggle stage.
func NewTrusteeHandler(state TrusteeState, log zerolog.Logger) *TrusteeHandler {
	return &TrusteeHandler{
		state: state,
		log:   log.With().Str("handler", "trustee").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *TrusteeHandler) Name() string { return "trustee" }

// Handle implements dispatch.Handler.
func (h *TrusteeHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	if !ctx.Msg.IsFromSelf {
		return dispatch.NotHandled
	}
	switch ctx.Msg.Text {
	case trusteeOnText:
		h.state.SetTrustee(true)
		h.log.Info().Msg("trustee mode on")
		return dispatch.Terminal
	case trusteeOffText:
		h.state.SetTrustee(false)
		h.log.Info().Msg("trustee mode off")
		return dispatch.Terminal
	}
	return dispatch.NotHandled
}
