// Package transport abstracts the chat connection: a Telegram adapter for
// normal operation and a capture adapter that speaks to the desktop
// sniffer agent over TCP.
package transport

import (
	"context"

	"lottery-group-bot/internal/model"
)

// Transport is the chat connection contract the bot controller runs on.
// Implementations own their receive loop and deliver decoded messages on
// the Messages channel until Stop.
type Transport interface {
	// Start begins receiving. Non-blocking; the receive loop ends when
	// ctx is cancelled.
	Start(ctx context.Context) error
	// Stop tears the connection down and closes the message channel.
	Stop()
	// Messages delivers inbound chat messages in arrival order.
	Messages() <-chan *model.ChatMessage
	// SendText posts text to a group or a player.
	SendText(ctx context.Context, target string, text string) error
	// SendImage posts an image from a local file to a group or a player.
	SendImage(ctx context.Context, target string, path string) error
	// SetMuted toggles group-wide mute around the seal line. Advisory:
	// transports without the capability return nil.
	SetMuted(ctx context.Context, groupID string, muted bool) error
}
