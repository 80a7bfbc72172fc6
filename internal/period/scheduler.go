package period

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/model"
)

// Hooks are the scheduler's callbacks into the group controller. Nil
// hooks are skipped. Callbacks run on the scheduler goroutine; heavy work
// belongs elsewhere.
type Hooks struct {
	OnOpen      func(model.Period)
	OnReminder  func(model.Period, int)
	OnSeal      func(model.Period)
	OnAwaitDraw func(model.Period)
}

type event struct {
	at   time.Time
	kind model.PeriodState
	lead int
}

// Scheduler walks the calendar and fires each phase event of every period
// exactly once, even when the process wakes up late.
type Scheduler struct {
	cal   *Calendar
	leads []int
	hooks Hooks
	log   zerolog.Logger
	now   func() time.Time
}

// NewScheduler builds a scheduler. leads are reminder offsets in seconds
// before the seal line, fired in descending order.
func NewScheduler(cal *Calendar, leads []int, hooks Hooks, log zerolog.Logger) *Scheduler {
	sorted := append([]int(nil), leads...)
	sort.Sort(sort.Reverse(sort.IntSlice(sorted)))
	return &Scheduler{
		cal:   cal,
		leads: sorted,
		hooks: hooks,
		log:   log.With().Str("component", "scheduler").Logger(),
		now:   time.Now,
	}
}

func (s *Scheduler) eventsFor(p model.Period) []event {
	events := make([]event, 0, len(s.leads)+3)
	events = append(events, event{at: p.OpenAt, kind: model.PeriodOpen})
	for _, lead := range s.leads {
		at := p.SealAt.Add(-time.Duration(lead) * time.Second)
		if !at.After(p.OpenAt) {
			continue
		}
		events = append(events, event{at: at, kind: model.PeriodReminding, lead: lead})
	}
	events = append(events, event{at: p.SealAt, kind: model.PeriodSealed})
	events = append(events, event{at: p.DrawAt, kind: model.PeriodAwaitingDraw})
	return events
}

// Run drives the cycle until the context is cancelled. Events already in
// the past on wake-up fire immediately, once each, in schedule order.
func (s *Scheduler) Run(ctx context.Context) error {
	p := s.cal.Current(s.now())
	for {
		s.log.Debug().Int64("period", p.ID).Time("draw_at", p.DrawAt).Msg("cycle start")

		for _, ev := range s.eventsFor(p) {
			if err := s.sleepUntil(ctx, ev.at); err != nil {
				return err
			}
			s.fire(p, ev)
		}

		// Monotonic advance: a backward drift adjustment must not replay
		// a finished period, a forward one may skip ahead.
		next := s.cal.ByID(p.ID + 1)
		if cur := s.cal.Current(s.now()); cur.ID > next.ID {
			next = cur
		}
		p = next
	}
}

func (s *Scheduler) fire(p model.Period, ev event) {
	p.State = ev.kind
	switch ev.kind {
	case model.PeriodOpen:
		s.log.Info().Int64("period", p.ID).Msg("period open")
		if s.hooks.OnOpen != nil {
			s.hooks.OnOpen(p)
		}
	case model.PeriodReminding:
		if s.hooks.OnReminder != nil {
			s.hooks.OnReminder(p, ev.lead)
		}
	case model.PeriodSealed:
		s.log.Info().Int64("period", p.ID).Msg("period sealed")
		if s.hooks.OnSeal != nil {
			s.hooks.OnSeal(p)
		}
	case model.PeriodAwaitingDraw:
		s.log.Info().Int64("period", p.ID).Msg("awaiting draw")
		if s.hooks.OnAwaitDraw != nil {
			s.hooks.OnAwaitDraw(p)
		}
	}
}

// sleepUntil blocks until the drift-adjusted clock reaches target.
func (s *Scheduler) sleepUntil(ctx context.Context, target time.Time) error {
	d := target.Sub(s.cal.adjusted(s.now()))
	if d <= 0 {
		return ctx.Err()
	}
	return s.sleepFor(ctx, d)
}

func (s *Scheduler) sleepFor(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
