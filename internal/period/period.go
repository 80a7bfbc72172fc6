// Package period derives the betting cycle calendar from wall-clock time
// and drives the open/remind/seal/await-draw state machine.
package period

import (
	"fmt"
	"sync/atomic"
	"time"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// Calendar maps wall-clock time to period identity. Period N opens at
// anchor + (N - base) * interval and draws one interval later; the seal
// line sits sealLead before the draw. An operator-set drift offset shifts
// the whole calendar to match the official feed.
type Calendar struct {
	base     int64
	anchor   time.Time
	interval time.Duration
	sealLead time.Duration
	driftNs  atomic.Int64
}

// NewCalendar builds a calendar from configuration. BaseDate anchors the
// base period at local midnight.
func NewCalendar(cfg config.PeriodConfig) (*Calendar, error) {
	if cfg.IntervalSeconds <= 0 {
		return nil, fmt.Errorf("period interval must be positive, got %d", cfg.IntervalSeconds)
	}
	if cfg.SealLeadSeconds < 0 || cfg.SealLeadSeconds >= cfg.IntervalSeconds {
		return nil, fmt.Errorf("seal lead %d out of range for interval %d", cfg.SealLeadSeconds, cfg.IntervalSeconds)
	}
	day, err := time.ParseInLocation("2006-01-02", cfg.BaseDate, time.Local)
	if err != nil {
		return nil, fmt.Errorf("base date: %w", err)
	}
	c := &Calendar{
		base:     cfg.BasePeriod,
		anchor:   day,
		interval: time.Duration(cfg.IntervalSeconds) * time.Second,
		sealLead: time.Duration(cfg.SealLeadSeconds) * time.Second,
	}
	c.driftNs.Store(int64(time.Duration(cfg.DriftSeconds) * time.Second))
	return c, nil
}

// SetDrift replaces the drift offset. Takes effect on the next calendar
// query, so in-flight cycles finish on the old clock.
func (c *Calendar) SetDrift(d time.Duration) {
	c.driftNs.Store(int64(d))
}

// Drift returns the current offset.
func (c *Calendar) Drift() time.Duration {
	return time.Duration(c.driftNs.Load())
}

func (c *Calendar) adjusted(now time.Time) time.Time {
	return now.Add(c.Drift())
}

// Current returns the period containing now.
func (c *Calendar) Current(now time.Time) model.Period {
	elapsed := c.adjusted(now).Sub(c.anchor)
	n := int64(elapsed / c.interval)
	if elapsed < 0 && elapsed%c.interval != 0 {
		n--
	}
	return c.ByID(c.base + n)
}

// ByID returns the schedule for a specific period.
func (c *Calendar) ByID(id int64) model.Period {
	openAt := c.anchor.Add(time.Duration(id-c.base) * c.interval)
	drawAt := openAt.Add(c.interval)
	return model.Period{
		ID:     id,
		OpenAt: openAt,
		SealAt: drawAt.Add(-c.sealLead),
		DrawAt: drawAt,
		State:  model.PeriodOpen,
	}
}

// StateAt derives the phase of a period at a moment. A period past its
// draw time without a result is AwaitingDraw indefinitely; Settling is
// entered by the controller when the result arrives, not by the clock.
func (c *Calendar) StateAt(p model.Period, now time.Time) model.PeriodState {
	t := c.adjusted(now)
	switch {
	case t.Before(p.SealAt):
		return model.PeriodOpen
	case t.Before(p.DrawAt):
		return model.PeriodSealed
	default:
		return model.PeriodAwaitingDraw
	}
}
