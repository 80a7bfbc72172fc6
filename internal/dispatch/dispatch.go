// Package dispatch routes decoded chat messages through a priority-ordered
// handler pipeline. Messages from the same group are processed strictly in
// arrival order; different groups proceed independently.
package dispatch

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"lottery-group-bot/internal/model"
)

// Result tells the pipeline what to do after a handler ran.
type Result int

const (
	// NotHandled passes the message to the next handler.
	NotHandled Result = iota
	// HandledContinue records a match but still offers the message to
	// later handlers (observers, loggers).
	HandledContinue
	// Terminal stops the pipeline for this message.
	Terminal
)

// ErrQueueFull is returned when a group's inbox is saturated.
var ErrQueueFull = errors.New("dispatch queue full")

// Sender delivers replies back to the chat transport.
type Sender interface {
	SendText(ctx context.Context, target string, text string) error
}

// Context carries one message through the pipeline. Handled flips once
// any stage claims the message with HandledContinue, so later observers
// can tell a claimed message from plain chat.
type Context struct {
	context.Context
	Msg     *model.ChatMessage
	Handled bool
	sender  Sender
}

// NewContext builds a pipeline context outside the dispatcher, for
// handler tests and synthetic messages.
func NewContext(ctx context.Context, msg *model.ChatMessage, sender Sender) *Context {
	return &Context{Context: ctx, Msg: msg, sender: sender}
}

// Reply sends text to where the message came from: the group for group
// messages, the sender for private ones.
func (c *Context) Reply(text string) error {
	target := c.Msg.GroupID
	if target == "" {
		target = c.Msg.SenderID
	}
	return c.sender.SendText(c.Context, target, text)
}

// Handler processes one message.
type Handler interface {
	Name() string
	Handle(ctx *Context) Result
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc struct {
	HandlerName string
	Fn          func(ctx *Context) Result
}

func (h HandlerFunc) Name() string               { return h.HandlerName }
func (h HandlerFunc) Handle(ctx *Context) Result { return h.Fn(ctx) }

type registered struct {
	priority int
	handler  Handler
	seq      int
}

// Dispatcher owns the handler chain and the per-group inboxes.
type Dispatcher struct {
	mu        sync.Mutex
	handlers  []registered
	queues    map[string]chan *model.ChatMessage
	queueSize int
	sender    Sender
	log       zerolog.Logger
	wg        sync.WaitGroup
	runCtx    context.Context
	started   bool
}

// New creates a dispatcher with the given per-group inbox capacity.
func New(sender Sender, queueSize int, log zerolog.Logger) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		queues:    make(map[string]chan *model.ChatMessage),
		queueSize: queueSize,
		sender:    sender,
		log:       log.With().Str("component", "dispatch").Logger(),
	}
}

// Register adds a handler. Lower priority values run first; ties run in
// registration order. Must be called before Start.
func (d *Dispatcher) Register(priority int, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers = append(d.handlers, registered{priority: priority, handler: h, seq: len(d.handlers)})
	sort.SliceStable(d.handlers, func(i, j int) bool {
		if d.handlers[i].priority != d.handlers[j].priority {
			return d.handlers[i].priority < d.handlers[j].priority
		}
		return d.handlers[i].seq < d.handlers[j].seq
	})
}

// Start binds the dispatcher to a lifetime context.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.runCtx = ctx
	d.started = true
}

// Dispatch enqueues a message onto its group's ordered inbox, spawning
// the group loop on first contact. Returns ErrQueueFull instead of
// blocking when the group is backlogged.
func (d *Dispatcher) Dispatch(msg *model.ChatMessage) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return errors.New("dispatcher not started")
	}
	key := msg.GroupID
	if key == "" {
		key = "p2p:" + msg.SenderID
	}
	q, ok := d.queues[key]
	if !ok {
		q = make(chan *model.ChatMessage, d.queueSize)
		d.queues[key] = q
		d.wg.Add(1)
		go d.groupLoop(key, q)
	}
	d.mu.Unlock()

	select {
	case q <- msg:
		return nil
	default:
		d.log.Warn().Str("queue", key).Msg("inbox full, dropping message")
		return ErrQueueFull
	}
}

// Wait blocks until every group loop has drained after context cancel.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) groupLoop(key string, q chan *model.ChatMessage) {
	defer d.wg.Done()
	for {
		select {
		case <-d.runCtx.Done():
			return
		case msg := <-q:
			d.process(msg)
		}
	}
}

func (d *Dispatcher) process(msg *model.ChatMessage) {
	d.mu.Lock()
	chain := make([]registered, len(d.handlers))
	copy(chain, d.handlers)
	d.mu.Unlock()

	ctx := &Context{Context: d.runCtx, Msg: msg, sender: d.sender}
	for _, r := range chain {
		switch d.safeHandle(r.handler, ctx) {
		case HandledContinue:
			ctx.Handled = true
		case Terminal:
			return
		}
	}
}

// safeHandle converts a handler panic into NotHandled so one bad message
// cannot take down the group loop.
func (d *Dispatcher) safeHandle(h Handler, ctx *Context) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error().Interface("panic", r).Str("handler", h.Name()).
				Str("text", ctx.Msg.Text).Msg("handler panicked")
			result = NotHandled
		}
	}()
	return h.Handle(ctx)
}
