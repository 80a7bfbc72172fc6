package handler

import (
	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/dispatch"
)

// GuardHandler drops traffic the rest of the pipeline must never see:
// the bot's own messages and groups outside the managed list.
type GuardHandler struct {
	cfg *config.Config
}

// NewGuardHandler creates the guard stage.
func NewGuardHandler(cfg *config.Config) *GuardHandler {
	return &GuardHandler{cfg: cfg}
}

// Name implements dispatch.Handler.
func (h *GuardHandler) Name() string { return "guard" }

// Handle implements dispatch.Handler.
func (h *GuardHandler) Handle(ctx *dispatch.Context) dispatch.Result {
	msg := ctx.Msg
	if msg.IsFromSelf {
		return dispatch.Terminal
	}
	if msg.IsGroupMessage() && !h.cfg.IsManagedGroup(msg.GroupID) {
		return dispatch.Terminal
	}
	if msg.Text == "" {
		return dispatch.Terminal
	}
	return dispatch.NotHandled
}
