package handler

import (
	"errors"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/game/bonus"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
)

// ScoreHandler services up/down-score commands, balance queries, the
// current-period bill and bet cancels.
type ScoreHandler struct {
	led      *ledger.Ledger
	eng      *settle.Engine
	periods  PeriodSource
	trustee  TrusteeState
	render   *template.Renderer
	bonusSvc *bonus.Service
	minScore decimal.Decimal
	maxScore decimal.Decimal
	log      zerolog.Logger
}

// NewScoreHandler creates the score stage.
func NewScoreHandler(
	led *ledger.Ledger,
	eng *settle.Engine,
	periods PeriodSource,
	trustee TrusteeState,
	render *template.Renderer,
	bonusSvc *bonus.Service,
	score config.ScoreConfig,
	log zerolog.Logger,
) *ScoreHandler {
	return &ScoreHandler{
		led:      led,
		eng:      eng,
		periods:  periods,
		trustee:  trustee,
		render:   render,
		bonusSvc: bonusSvc,
		minScore: decimal.NewFromInt(score.MinScore),
		maxScore: decimal.NewFromInt(score.MaxScore),
		log:      log.With().Str("handler", "score").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *ScoreHandler) Name() string { return "score" }

// Handle implements dispatch.Handler.
func (h *ScoreHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	cmd, ok := bet.ParseCommand(ctx.Msg.Text)
	if !ok {
		return dispatch.NotHandled
	}
	if !h.trustee.TrusteeEnabled() {
		// Passive mode: recognize the command so later stages do not
		// misread it as a wager, but touch nothing.
		return dispatch.Terminal
	}

	msg := ctx.Msg
	switch cmd.Kind {
	case bet.CmdUpScore:
		return h.upScore(ctx, cmd.Amount)
	case bet.CmdDownScore:
		return h.downScore(ctx, cmd.Amount)
	case bet.CmdQueryBalance:
		return h.queryBalance(ctx)
	case bet.CmdQueryBill:
		return h.queryBill(ctx)
	case bet.CmdCancelBet:
		return h.cancel(ctx)
	default:
		h.log.Warn().Str("text", msg.Text).Msg("unroutable command")
		return dispatch.NotHandled
	}
}

func (h *ScoreHandler) upScore(ctx *dispatch.Context, amount decimal.Decimal) dispatch.Result {
	// Out-of-range requests are ignored without a reply.
	if amount.LessThan(h.minScore) || amount.GreaterThan(h.maxScore) {
		return dispatch.Terminal
	}
	msg := ctx.Msg
	if h.bonusSvc != nil {
		h.bonusSvc.MaybeDailyBonus(msg.SenderID, msg.SenderNick)
	}
	if _, err := h.led.Deposit(msg.SenderID, msg.SenderNick, amount); err != nil {
		h.log.Error().Err(err).Str("player", msg.SenderID).Msg("deposit failed")
		return dispatch.Terminal
	}
	ctx.Reply(h.render.UpScoreNotice(msg.SenderID, msg.SenderNick, amount.String()))
	return dispatch.Terminal
}

func (h *ScoreHandler) downScore(ctx *dispatch.Context, amount decimal.Decimal) dispatch.Result {
	if amount.LessThan(h.minScore) || amount.GreaterThan(h.maxScore) {
		return dispatch.Terminal
	}
	msg := ctx.Msg
	b, err := h.led.Withdraw(msg.SenderID, amount)
	if err != nil {
		reason := "余额不足"
		if errors.Is(err, ledger.ErrPlayerNotFound) {
			reason = "无账户"
		}
		ctx.Reply(h.render.DownScoreFail(msg.SenderID, msg.SenderNick, reason))
		return dispatch.Terminal
	}
	ctx.Reply(h.render.DownScoreOK(msg.SenderID, msg.SenderNick, amount.String(), b.Balance.String()))
	return dispatch.Terminal
}

func (h *ScoreHandler) queryBalance(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	b := h.led.Balance(msg.SenderID)
	if b.Nickname == "" {
		b.Nickname = msg.SenderNick
	}
	ctx.Reply(h.render.BalanceQuery(b))
	return dispatch.Terminal
}

func (h *ScoreHandler) queryBill(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	p := h.periods.CurrentPeriod()
	rec, ok := h.eng.RecordFor(p.ID, msg.SenderID)
	if !ok {
		ctx.Reply(h.render.BetRejected(msg.SenderID, msg.SenderNick, "本期无注单"))
		return dispatch.Terminal
	}
	balance := h.led.Balance(msg.SenderID).Balance.String()
	ctx.Reply(h.render.Bill(rec, balance))
	return dispatch.Terminal
}

func (h *ScoreHandler) cancel(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	p := h.periods.CurrentPeriod()
	refund, err := h.eng.CancelBets(p.ID, msg.SenderID)
	if err != nil {
		reason := "取消失败"
		switch {
		case errors.Is(err, settle.ErrCancelForbidden):
			reason = "本群禁止取消"
		case errors.Is(err, settle.ErrNoBets):
			reason = "本期无注单"
		case errors.Is(err, settle.ErrPeriodSealed):
			reason = "已封盘"
		}
		ctx.Reply(h.render.BetRejected(msg.SenderID, msg.SenderNick, reason))
		return dispatch.Terminal
	}
	ctx.Reply(h.render.BetRejected(msg.SenderID, msg.SenderNick, "已取消 退"+refund.String()))
	return dispatch.Terminal
}
