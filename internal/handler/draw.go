package handler

import (
	"regexp"
	"strconv"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/dispatch"
	"lottery-group-bot/internal/model"
)

// drawPattern matches the manual result command: 开奖 <period> <n1> <n2> <n3>.
var drawPattern = regexp.MustCompile(`^开奖\s+(\d+)\s+(\d)\s+(\d)\s+(\d)$`)

// DrawHandler accepts manually posted draw results from the operator's
// own account, as a fallback when the feed is down.
type DrawHandler struct {
	submitter DrawSubmitter
	log       zerolog.Logger
}

// NewDrawHandler creates the manual draw stage.
func NewDrawHandler(submitter DrawSubmitter, log zerolog.Logger) *DrawHandler {
	return &DrawHandler{
		submitter: submitter,
		log:       log.With().Str("handler", "draw").Logger(),
	}
}

// Name implements dispatch.Handler.
func (h *DrawHandler) Name() string { return "draw" }

// Handle implements dispatch.Handler. Runs before the guard so it can see
// the operator's self messages; everything else falls through.
func (h *DrawHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	if !ctx.Msg.IsFromSelf {
		return dispatch.NotHandled
	}
	m := drawPattern.FindStringSubmatch(ctx.Msg.Text)
	if m == nil {
		return dispatch.NotHandled
	}
	period, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return dispatch.NotHandled
	}
	n1, _ := strconv.Atoi(m[2])
	n2, _ := strconv.Atoi(m[3])
	n3, _ := strconv.Atoi(m[4])

	h.log.Info().Int64("period", period).Ints("nums", []int{n1, n2, n3}).Msg("manual draw")
	h.submitter.SubmitDraw(model.NewDrawResult(period, n1, n2, n3))
	return dispatch.Terminal
}
