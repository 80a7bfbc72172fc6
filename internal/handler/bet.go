package handler

import (
	"errors"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
)

// BetHandler recognizes wager messages and books them with the engine.
type BetHandler struct {
	eng     *settle.Engine
	led     *ledger.Ledger
	periods PeriodSource
	trustee TrusteeState
	render  *template.Renderer
	log     zerolog.Logger
}

// NewBetHandler creates the wager stage.
func NewBetHandler(
	eng *settle.Engine,
	led *ledger.Ledger,
	periods PeriodSource,
	trustee TrusteeState,
	render *template.Renderer,
	log zerolog.Logger,
) *BetHandler {
	return &BetHandler{
		eng:     eng,
		led:     led,
		periods: periods,
		trustee: trustee,
		render:  render,
		log:     log.With().Str("handler", "bet").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *BetHandler) Name() string { return "bet" }

// Handle implements dispatch.Handler. Only group messages can wager.
func (h *BetHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	if !msg.IsGroupMessage() {
		return dispatch.NotHandled
	}
	items, ok := bet.TryParse(msg.Text)
	if !ok {
		return dispatch.NotHandled
	}
	if !h.trustee.TrusteeEnabled() {
		return dispatch.Terminal
	}

	p := h.periods.CurrentPeriod()
	rec, err := h.eng.PlaceBet(p.ID, msg, items)
	if err != nil {
		reason := "下注失败"
		switch {
		case errors.Is(err, settle.ErrPeriodSealed):
			reason = "已封盘"
		case errors.Is(err, ledger.ErrInsufficientBalance):
			reason = "余额不足"
		case errors.Is(err, bet.ErrBetTooSmall):
			reason = "低于最低限额"
		case errors.Is(err, bet.ErrBetTooLarge):
			reason = "超过限额"
		}
		ctx.Reply(h.render.BetRejected(msg.SenderID, msg.SenderNick, reason))
		return dispatch.Terminal
	}

	balance := h.led.Balance(msg.SenderID).Balance.String()
	ctx.Reply(h.render.BetAccepted(*rec, balance))
	return dispatch.Terminal
}
