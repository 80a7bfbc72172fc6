// Package template renders operator-editable reply texts. Templates use
// {name} placeholders substituted from a variable map.
package template

import (
	"fmt"
	"strconv"
	"strings"

	"lottery-group-bot/internal/bet"
	"lottery-group-bot/internal/codec"
	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// Renderer binds the configured template set.
type Renderer struct {
	cfg config.TemplateConfig
}

// New creates a renderer.
func New(cfg config.TemplateConfig) *Renderer {
	return &Renderer{cfg: cfg}
}

// Render substitutes {key} placeholders. Unknown placeholders are left
// in place so template typos are visible in the chat, not silent.
func Render(tpl string, vars map[string]string) string {
	if len(vars) == 0 {
		return tpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

// ShortID returns the tail of an account id for compact display.
func ShortID(playerID string) string {
	if len(playerID) <= 4 {
		return playerID
	}
	return playerID[len(playerID)-4:]
}

func (r *Renderer) playerVars(playerID, nickname string) map[string]string {
	return map[string]string{
		"nick":  nickname,
		"at":    codec.FormatMention(playerID),
		"short": ShortID(playerID),
	}
}

// BetAccepted renders the booking confirmation.
func (r *Renderer) BetAccepted(rec model.BetRecord, balance string) string {
	vars := r.playerVars(rec.PlayerID, rec.Nickname)
	vars["bets"] = bet.Summary(rec.Items)
	vars["balance"] = balance
	return Render(r.cfg.BetAccepted, vars)
}

// BetRejected renders a reasoned rejection.
func (r *Renderer) BetRejected(playerID, nickname, reason string) string {
	vars := r.playerVars(playerID, nickname)
	vars["reason"] = reason
	return Render(r.cfg.BetRejected, vars)
}

// BalanceQuery renders the balance reply.
func (r *Renderer) BalanceQuery(b model.PlayerBalance) string {
	vars := r.playerVars(b.PlayerID, b.Nickname)
	vars["balance"] = b.Balance.String()
	vars["turnover"] = b.TotalStaked.String()
	return Render(r.cfg.BalanceQuery, vars)
}

// UpScoreNotice renders the deposit acknowledgment.
func (r *Renderer) UpScoreNotice(playerID, nickname, amount string) string {
	vars := r.playerVars(playerID, nickname)
	vars["amount"] = amount
	return Render(r.cfg.UpScoreNotice, vars)
}

// DownScoreOK renders a successful withdrawal.
func (r *Renderer) DownScoreOK(playerID, nickname, amount, balance string) string {
	vars := r.playerVars(playerID, nickname)
	vars["amount"] = amount
	vars["balance"] = balance
	return Render(r.cfg.DownScoreOK, vars)
}

// DownScoreFail renders a failed withdrawal.
func (r *Renderer) DownScoreFail(playerID, nickname, reason string) string {
	vars := r.playerVars(playerID, nickname)
	vars["reason"] = reason
	return Render(r.cfg.DownScoreFail, vars)
}

// SealNotice renders the seal-line banner.
func (r *Renderer) SealNotice(p model.Period) string {
	return Render(r.cfg.SealNotice, map[string]string{
		"period": strconv.FormatInt(p.ID, 10),
	})
}

// Reminder renders the countdown notice.
func (r *Renderer) Reminder(p model.Period, secondsLeft int) string {
	return Render(r.cfg.ReminderNotice, map[string]string{
		"period":  strconv.FormatInt(p.ID, 10),
		"seconds": strconv.Itoa(secondsLeft),
	})
}

// OpenNotice renders the new-period banner.
func (r *Renderer) OpenNotice(p model.Period) string {
	return Render(r.cfg.OpenNotice, map[string]string{
		"period": strconv.FormatInt(p.ID, 10),
	})
}

// GuessWin renders the guess-game prize notice.
func (r *Renderer) GuessWin(playerID, nickname string, digit int, reward string) string {
	vars := r.playerVars(playerID, nickname)
	vars["digit"] = strconv.Itoa(digit)
	vars["reward"] = reward
	return Render(r.cfg.GuessWin, vars)
}

// SettleReport renders the draw header plus one line per settled player.
func (r *Renderer) SettleReport(draw model.DrawResult, entries []model.SettlementEntry) string {
	var b strings.Builder
	b.WriteString(Render(r.cfg.SettleHeader, map[string]string{
		"period": strconv.FormatInt(draw.Period, 10),
		"n1":     strconv.Itoa(draw.Nums[0]),
		"n2":     strconv.Itoa(draw.Nums[1]),
		"n3":     strconv.Itoa(draw.Nums[2]),
		"sum":    strconv.Itoa(draw.Sum),
	}))
	for _, e := range entries {
		b.WriteString("\n")
		if e.Payout.IsPositive() {
			fmt.Fprintf(&b, "%s(%s) 中%s 余额:%s", e.Nickname, ShortID(e.PlayerID), e.Payout, e.BalanceAfter)
		} else {
			fmt.Fprintf(&b, "%s(%s) 未中 余额:%s", e.Nickname, ShortID(e.PlayerID), e.BalanceAfter)
		}
	}
	return b.String()
}

// Bill renders a player's current-period bet slip.
func (r *Renderer) Bill(rec model.BetRecord, balance string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s(%s) 第%d期\n", rec.Nickname, ShortID(rec.PlayerID), rec.Period)
	fmt.Fprintf(&b, "%s\n", bet.Summary(rec.Items))
	fmt.Fprintf(&b, "共:%s 余:%s", rec.TotalAmount, balance)
	return b.String()
}

// DayReport renders the daily aggregate for operators.
func DayReport(date string, periods, players int, staked, payout, net string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "日报 %s\n", date)
	fmt.Fprintf(&b, "期数:%d 玩家:%d\n", periods, players)
	fmt.Fprintf(&b, "流水:%s 派彩:%s 盈亏:%s", staked, payout, net)
	return b.String()
}
