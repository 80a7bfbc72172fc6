package handler

import (
	"github.com/rs/zerolog"

	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/settle"
	"lottery-group-bot/internal/template"
)

// StatsSource supplies the daily settlement aggregate.
type StatsSource interface {
	Stats() settle.DayStats
}

// ReportHandler replies to the operator's 日报 command with today's
// settlement aggregate.
type ReportHandler struct {
	stats StatsSource
	log   zerolog.Logger
}

// NewReportHandler creates the day-report stage.
func NewReportHandler(stats StatsSource, log zerolog.Logger) *ReportHandler {
	return &ReportHandler{
		stats: stats,
		log:   log.With().Str("handler", "report").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *ReportHandler) Name() string { return "report" }

// Handle implements dispatch.Handler. Operator-only, like the draw stage.
func (h *ReportHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	if !ctx.Msg.IsFromSelf || ctx.Msg.Text != "日报" {
		return dispatch.NotHandled
	}
	s := h.stats.Stats()
	ctx.Reply(template.DayReport(
		s.Date, s.Periods, s.PlayersSeen,
		s.TotalStaked.String(), s.TotalPayout.String(), s.HouseNet.String()))
	return dispatch.Terminal
}
