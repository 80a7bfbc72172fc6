// Package bot wires the transport, the handler pipeline, the period
// scheduler and the settlement engine into one running group controller.
package bot

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/game/bonus"
	"lottery-group-bot/internal/game/guess"
	"lottery-group-bot/internal/handler"
	"lottery-group-bot/internal/ledger"
	"lottery-group-bot/internal/model"
	"lottery-group-bot/internal/period"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
	"lottery-group-bot/internal/transport"
)

// Deps collects everything the controller coordinates. All fields are
// required except Guess and Bonus, which may be nil when the side games
// are disabled.
type Deps struct {
	Config    *config.Config
	Transport transport.Transport
	Ledger    *ledger.Ledger
	Engine    *settle.Engine
	Calendar  *period.Calendar
	Renderer  *template.Renderer
	Guess     *guess.Game
	Bonus     *bonus.Service
	Logger    zerolog.Logger
}

// Controller runs the chat group: it feeds inbound messages to the
// dispatcher, announces period phases, seals the book on schedule and
// settles draws as they arrive.
type Controller struct {
	cfg     *config.Config
	tr      transport.Transport
	led     *ledger.Ledger
	eng     *settle.Engine
	cal     *period.Calendar
	render  *template.Renderer
	guesses *guess.Game
	bonuses *bonus.Service
	disp    *dispatch.Dispatcher
	log     zerolog.Logger

	trustee atomic.Bool
	draws   chan model.DrawResult
}

// New assembles the controller and registers the handler pipeline.
// Trustee mode starts enabled.
func New(d Deps) *Controller {
	c := &Controller{
		cfg:     d.Config,
		tr:      d.Transport,
		led:     d.Ledger,
		eng:     d.Engine,
		cal:     d.Calendar,
		render:  d.Renderer,
		guesses: d.Guess,
		bonuses: d.Bonus,
		disp:    dispatch.New(d.Transport, 0, d.Logger),
		log:     d.Logger.With().Str("component", "bot").Logger(),
		draws:   make(chan model.DrawResult, 16),
	}
	c.trustee.Store(true)

	c.disp.Register(handler.PriorityDraw, handler.NewDrawHandler(c, d.Logger))
	c.disp.Register(handler.PriorityTrustee, handler.NewTrusteeHandler(c, d.Logger))
	c.disp.Register(handler.PriorityReport, handler.NewReportHandler(d.Engine, d.Logger))
	c.disp.Register(handler.PriorityGuard, handler.NewGuardHandler(d.Config))
	c.disp.Register(handler.PriorityScore, handler.NewScoreHandler(
		d.Ledger, d.Engine, c, c, d.Renderer, d.Bonus, d.Config.Score, d.Logger))
	if d.Guess != nil {
		c.disp.Register(handler.PriorityGuess, handler.NewGuessHandler(d.Guess, c, c, d.Logger))
	}
	c.disp.Register(handler.PriorityBet, handler.NewBetHandler(
		d.Engine, d.Ledger, c, c, d.Renderer, d.Logger))
	return c
}

// CurrentPeriod implements handler.PeriodSource.
func (c *Controller) CurrentPeriod() model.Period {
	return c.cal.Current(time.Now())
}

// TrusteeEnabled implements handler.TrusteeState.
func (c *Controller) TrusteeEnabled() bool { return c.trustee.Load() }

// SetTrustee implements handler.TrusteeState.
func (c *Controller) SetTrustee(enabled bool) {
	c.trustee.Store(enabled)
	c.log.Info().Bool("enabled", enabled).Msg("trustee mode switched")
}

// SubmitDraw implements handler.DrawSubmitter. Settlement happens on the
// controller's run loop so draws serialize with scheduler events.
func (c *Controller) SubmitDraw(d model.DrawResult) {
	select {
	case c.draws <- d:
	default:
		c.log.Error().Int64("period", d.Period).Msg("draw queue full, result dropped")
	}
}

// Run starts the transport and the scheduler, then pumps messages and
// draws until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	c.disp.Start(ctx)
	if err := c.tr.Start(ctx); err != nil {
		return err
	}
	defer c.tr.Stop()

	sched := period.NewScheduler(c.cal, c.cfg.Period.ReminderLeads, period.Hooks{
		OnOpen:     c.onOpen,
		OnReminder: c.onReminder,
		OnSeal:     c.onSeal,
	}, c.log)
	schedDone := make(chan error, 1)
	go func() { schedDone <- sched.Run(ctx) }()

	c.log.Info().Int64("period", c.CurrentPeriod().ID).Msg("controller running")
	for {
		select {
		case <-ctx.Done():
			c.disp.Wait()
			<-schedDone
			return ctx.Err()
		case err := <-schedDone:
			return err
		case msg, ok := <-c.tr.Messages():
			if !ok {
				return nil
			}
			if err := c.disp.Dispatch(msg); err != nil {
				c.log.Warn().Err(err).Str("group", msg.GroupID).Msg("message dropped")
			}
		case d := <-c.draws:
			c.settleDraw(ctx, d)
		}
	}
}

func (c *Controller) onOpen(p model.Period) {
	ctx := context.Background()
	if c.cfg.Period.AutoMute {
		c.muteGroups(ctx, false)
	}
	if !c.trustee.Load() || !c.cfg.Period.AutoAnnounce {
		return
	}
	c.broadcast(ctx, c.render.OpenNotice(p))
}

func (c *Controller) onReminder(p model.Period, secondsLeft int) {
	if !c.trustee.Load() || !c.cfg.Period.AutoAnnounce {
		return
	}
	c.broadcast(context.Background(), c.render.Reminder(p, secondsLeft))
}

// onSeal closes the book whether or not announcements are on: bets must
// never slip in after the seal line.
func (c *Controller) onSeal(p model.Period) {
	c.eng.Seal(p.ID)
	ctx := context.Background()
	if c.trustee.Load() && c.cfg.Period.AutoAnnounce {
		c.broadcast(ctx, c.render.SealNotice(p))
	}
	if c.cfg.Period.AutoMute {
		c.muteGroups(ctx, true)
	}
}

func (c *Controller) settleDraw(ctx context.Context, d model.DrawResult) {
	entries, err := c.eng.Settle(d)
	if err != nil {
		c.log.Warn().Err(err).Int64("period", d.Period).Msg("settle skipped")
		return
	}
	if c.trustee.Load() {
		c.broadcast(ctx, c.render.SettleReport(d, entries))
	}
	c.payGuessPrizes(ctx, d)
}

// payGuessPrizes credits every correct guess with the reward for the
// winner's post-settlement balance tier.
func (c *Controller) payGuessPrizes(ctx context.Context, d model.DrawResult) {
	if c.guesses == nil {
		return
	}
	for _, win := range c.guesses.Winners(d) {
		b := c.led.Balance(win.PlayerID)
		reward := c.guesses.RewardFor(b.Balance)
		if !reward.IsPositive() {
			continue
		}
		if _, err := c.led.Credit(win.PlayerID, b.Nickname, reward, model.NoteGuessPrize); err != nil {
			c.log.Error().Err(err).Str("player", win.PlayerID).Msg("guess prize credit failed")
			continue
		}
		if c.trustee.Load() {
			c.broadcast(ctx, c.render.GuessWin(win.PlayerID, b.Nickname, win.Digit, reward.String()))
		}
	}
}

func (c *Controller) broadcast(ctx context.Context, text string) {
	for _, groupID := range c.cfg.Groups.IDs {
		if err := c.tr.SendText(ctx, groupID, text); err != nil {
			c.log.Error().Err(err).Str("group", groupID).Msg("broadcast failed")
		}
	}
}

func (c *Controller) muteGroups(ctx context.Context, muted bool) {
	for _, groupID := range c.cfg.Groups.IDs {
		if err := c.tr.SetMuted(ctx, groupID, muted); err != nil {
			c.log.Warn().Err(err).Str("group", groupID).Bool("muted", muted).Msg("mute toggle failed")
		}
	}
}
