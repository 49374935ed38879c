// Package notify delivers best-effort chat notifications. Sends never block the
// scheduler: messages are buffered, throttled and delivered by a background goroutine.
package notify

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"
)

// Color follows the chat embed convention: red = fail, green = success, blue = informational.
type Color string

const (
	ColorNone  Color = ""
	ColorRed   Color = "red"
	ColorGreen Color = "green"
	ColorBlue  Color = "blue"
)

type Message struct {
	Target      int64  `json:"target"`
	Content     string `json:"content,omitempty"`
	Description string `json:"description,omitempty"`
	Color       Color  `json:"color,omitempty"`
}

// Notifier is the sink the scheduler loops talk to.
type Notifier interface {
	Send(ctx context.Context, msg Message)
}

// Sink performs the actual delivery.
type Sink interface {
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher is an asynchronous, rate-limited Notifier in front of a Sink.
type Dispatcher struct {
	sink    Sink
	limiter *rate.Limiter
	queue   chan Message
	log     *slog.Logger
}

func NewDispatcher(sink Sink, perSecond float64, buffer int, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		sink:    sink,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		queue:   make(chan Message, buffer),
		log:     log,
	}
}

// Send drops the message when the buffer is full.
func (d *Dispatcher) Send(_ context.Context, msg Message) {
	select {
	case d.queue <- msg:
	default:
		d.log.Warn("notification dropped, buffer full", "target", msg.Target, "description", msg.Description)
	}
}

// Run delivers messages until ctx is cancelled. Pending messages are discarded on exit.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-d.queue:
			if err := d.limiter.Wait(ctx); err != nil {
				return
			}
			if err := d.sink.Deliver(ctx, msg); err != nil {
				d.log.Error("error sending message",
					"error", err,
					"target", msg.Target,
					"content", msg.Content,
					"description", msg.Description,
					"color", msg.Color)
			}
		}
	}
}

// Discard is a Notifier that drops everything.
type Discard struct{}

func (Discard) Send(context.Context, Message) {}
