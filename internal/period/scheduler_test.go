package period

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lottery-group-bot/internal/model"
)

func zerologNop() zerolog.Logger { return zerolog.Nop() }

type firedEvent struct {
	period int64
	state  model.PeriodState
	lead   int
}

type recorder struct {
	mu     sync.Mutex
	events []firedEvent
}

func (r *recorder) add(e firedEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) snapshot() []firedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]firedEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnOpen:      func(p model.Period) { r.add(firedEvent{p.ID, model.PeriodOpen, 0}) },
		OnReminder:  func(p model.Period, lead int) { r.add(firedEvent{p.ID, model.PeriodReminding, lead}) },
		OnSeal:      func(p model.Period) { r.add(firedEvent{p.ID, model.PeriodSealed, 0}) },
		OnAwaitDraw: func(p model.Period) { r.add(firedEvent{p.ID, model.PeriodAwaitingDraw, 0}) },
	}
}

// fastCalendar builds a sub-second calendar anchored in the recent past,
// bypassing the config path which only speaks whole seconds.
func fastCalendar(interval, sealLead time.Duration) *Calendar {
	return &Calendar{
		base:     100,
		anchor:   time.Now().Add(-50 * time.Millisecond),
		interval: interval,
		sealLead: sealLead,
	}
}

func TestSchedulerFiresPhasesInOrderExactlyOnce(t *testing.T) {
	cal := fastCalendar(400*time.Millisecond, 150*time.Millisecond)
	rec := &recorder{}
	s := NewScheduler(cal, nil, rec.hooks(), zerologNop())

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	err := s.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	events := rec.snapshot()
	require.NotEmpty(t, events)

	// Per period: open, seal, await-draw, in that order, once each.
	type key struct {
		id    int64
		state model.PeriodState
	}
	seen := make(map[key]int)
	for _, e := range events {
		seen[key{e.period, e.state}]++
	}
	for k, n := range seen {
		assert.Equal(t, 1, n, "event %v fired %d times", k, n)
	}

	first := events[0].period
	assert.Equal(t, model.PeriodOpen, events[0].state)
	if len(events) >= 3 {
		assert.Equal(t, []model.PeriodState{model.PeriodOpen, model.PeriodSealed, model.PeriodAwaitingDraw},
			[]model.PeriodState{events[0].state, events[1].state, events[2].state})
		assert.Equal(t, first, events[1].period)
		assert.Equal(t, first, events[2].period)
	}
}

func TestSchedulerFiresMissedEventsOnceWhenLate(t *testing.T) {
	// Anchor far enough back that open, the reminder and the seal line of
	// the current period are all already in the past on startup.
	cal := &Calendar{
		base:     100,
		anchor:   time.Now().Add(-360 * time.Millisecond),
		interval: 400 * time.Millisecond,
		sealLead: 150 * time.Millisecond,
	}
	rec := &recorder{}
	s := NewScheduler(cal, nil, rec.hooks(), zerologNop())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	events := rec.snapshot()
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, firedEvent{100, model.PeriodOpen, 0}, events[0])
	assert.Equal(t, firedEvent{100, model.PeriodSealed, 0}, events[1])
}

func TestSchedulerStopsOnCancel(t *testing.T) {
	cal := fastCalendar(time.Hour, time.Minute)
	s := NewScheduler(cal, nil, Hooks{}, zerologNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop on cancel")
	}
}
