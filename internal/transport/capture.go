package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/codec"
	"lottery-group-bot/internal/model"
)

// Capture connects to the desktop capture agent over TCP. The agent
// forwards raw platform frames one per line; outbound commands go back on
// the same connection as JSON lines.
type Capture struct {
	addr string
	dec  *codec.Decoder
	out  chan *model.ChatMessage
	log  zerolog.Logger

	mu       sync.Mutex
	conn     net.Conn
	stop     context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once
}

// maxFrameSize bounds one capture line; attachment frames can be large.
const maxFrameSize = 1 << 20

// NewCapture creates the adapter around a frame decoder.
func NewCapture(addr string, dec *codec.Decoder, log zerolog.Logger) *Capture {
	return &Capture{
		addr: addr,
		dec:  dec,
		out:  make(chan *model.ChatMessage, 512),
		log:  log.With().Str("component", "capture").Logger(),
		done: make(chan struct{}),
	}
}

// Start launches the connect/receive loop with reconnect backoff.
func (c *Capture) Start(ctx context.Context) error {
	ctx, c.stop = context.WithCancel(ctx)
	go c.run(ctx)
	return nil
}

// Stop cancels the receive loop and closes the message channel.
// Idempotent.
func (c *Capture) Stop() {
	c.stopOnce.Do(func() {
		if c.stop != nil {
			c.stop()
		}
		<-c.done
		close(c.out)
	})
}

// Messages implements Transport.
func (c *Capture) Messages() <-chan *model.ChatMessage {
	return c.out
}

func (c *Capture) run(ctx context.Context) {
	defer close(c.done)
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := (&net.Dialer{Timeout: 5 * time.Second}).DialContext(ctx, "tcp", c.addr)
		if err != nil {
			c.log.Warn().Err(err).Str("addr", c.addr).Dur("retry_in", backoff).Msg("agent dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second
		c.log.Info().Str("addr", c.addr).Msg("agent connected")

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		go func() {
			<-ctx.Done()
			conn.Close()
		}()
		c.receive(conn)

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
	}
}

func (c *Capture) receive(conn net.Conn) {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), maxFrameSize)
	for scanner.Scan() {
		raw := make([]byte, len(scanner.Bytes()))
		copy(raw, scanner.Bytes())

		msg, err := c.dec.Decode(raw)
		switch {
		case errors.Is(err, codec.ErrNotChatMessage):
			continue
		case err != nil:
			c.log.Debug().Err(err).Int("bytes", len(raw)).Msg("frame dropped")
			continue
		}
		select {
		case c.out <- msg:
		default:
			c.log.Warn().Str("group", msg.GroupID).Msg("inbound channel full, dropping")
		}
	}
	if err := scanner.Err(); err != nil {
		c.log.Warn().Err(err).Msg("agent connection lost")
	}
}

type agentCommand struct {
	Cmd   string `json:"cmd"`
	To    string `json:"to,omitempty"`
	Text  string `json:"text,omitempty"`
	Path  string `json:"path,omitempty"`
	Muted bool   `json:"muted,omitempty"`
}

func (c *Capture) send(cmd agentCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("agent not connected")
	}
	line, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = c.conn.Write(line)
	return err
}

// SendText implements Transport.
func (c *Capture) SendText(_ context.Context, target, text string) error {
	return c.send(agentCommand{Cmd: "send", To: target, Text: text})
}

// SendImage implements Transport. The agent resolves the path on its
// own filesystem.
func (c *Capture) SendImage(_ context.Context, target, path string) error {
	return c.send(agentCommand{Cmd: "image", To: target, Path: path})
}

// SetMuted implements Transport.
func (c *Capture) SetMuted(_ context.Context, groupID string, muted bool) error {
	return c.send(agentCommand{Cmd: "mute", To: groupID, Muted: muted})
}
