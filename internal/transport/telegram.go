package transport

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v3"

	"lottery-group-bot/internal/config"
	"lottery-group-bot/internal/model"
)

// Telegram adapts a telebot long-poller to the Transport contract.
type Telegram struct {
	bot      *tele.Bot
	selfID   string
	out      chan *model.ChatMessage
	log      zerolog.Logger
	stopOnce sync.Once
}

// NewTelegram creates the adapter. The token must be set.
func NewTelegram(cfg config.BotConfig, log zerolog.Logger) (*Telegram, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("bot token is required")
	}
	pref := tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: 10 * time.Second},
	}
	b, err := tele.NewBot(pref)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	return &Telegram{
		bot:    b,
		selfID: strconv.FormatInt(b.Me.ID, 10),
		out:    make(chan *model.ChatMessage, 512),
		log:    log.With().Str("component", "telegram").Logger(),
	}, nil
}

// Start registers the text handler and begins long polling.
func (t *Telegram) Start(_ context.Context) error {
	t.bot.Handle(tele.OnText, func(c tele.Context) error {
		msg := t.convert(c.Message())
		if msg == nil {
			return nil
		}
		select {
		case t.out <- msg:
		default:
			t.log.Warn().Str("group", msg.GroupID).Msg("inbound channel full, dropping")
		}
		return nil
	})

	go t.bot.Start()
	return nil
}

// Stop halts polling and closes the message channel. Idempotent; the
// controller owns shutdown and may race a signal-driven caller.
func (t *Telegram) Stop() {
	t.stopOnce.Do(func() {
		t.bot.Stop()
		close(t.out)
	})
}

// Messages implements Transport.
func (t *Telegram) Messages() <-chan *model.ChatMessage {
	return t.out
}

func (t *Telegram) convert(m *tele.Message) *model.ChatMessage {
	if m == nil || m.Sender == nil {
		return nil
	}
	msg := &model.ChatMessage{
		ID:         strconv.Itoa(m.ID),
		SenderID:   strconv.FormatInt(m.Sender.ID, 10),
		SenderNick: displayName(m.Sender),
		Text:       strings.TrimSpace(m.Text),
		Timestamp:  m.Time(),
		IsFromSelf: strconv.FormatInt(m.Sender.ID, 10) == t.selfID,
	}
	if m.Chat != nil && m.Chat.Type != tele.ChatPrivate {
		msg.GroupID = strconv.FormatInt(m.Chat.ID, 10)
	}
	return msg
}

func displayName(u *tele.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.Username
	}
	return name
}

// SendText implements Transport.
func (t *Telegram) SendText(_ context.Context, target, text string) error {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", target, err)
	}
	_, err = t.bot.Send(tele.ChatID(id), text)
	return err
}

// SendImage implements Transport.
func (t *Telegram) SendImage(_ context.Context, target, path string) error {
	id, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", target, err)
	}
	_, err = t.bot.Send(tele.ChatID(id), &tele.Photo{File: tele.FromDisk(path)})
	return err
}

// SetMuted toggles send-message permission for all group members.
func (t *Telegram) SetMuted(_ context.Context, groupID string, muted bool) error {
	id, err := strconv.ParseInt(groupID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", groupID, err)
	}
	params := map[string]interface{}{
		"chat_id": id,
		"permissions": map[string]bool{
			"can_send_messages": !muted,
		},
	}
	_, err = t.bot.Raw("setChatPermissions", params)
	return err
}
