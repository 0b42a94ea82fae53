// Package notification renders and delivers the emails a registration sends.
//
// Delivery is best-effort by contract: Send never returns an error, it
// returns a Delivery describing what happened so callers can record it.
package notification

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"onboard/pkg/platform/circuit"
)

// Template names a message kind.
type Template string

const (
	TemplateVerification    Template = "verification"
	TemplateReviewerRequest Template = "reviewer_request"
	TemplatePendingAck      Template = "pending_ack"
	TemplateApproved        Template = "approved"
	TemplateRejected        Template = "rejected"
)

type DeliveryStatus string

const (
	DeliverySent    DeliveryStatus = "sent"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliverySkipped DeliveryStatus = "skipped"
)

// ErrCircuitOpen is the Delivery error while the sender is considered down.
var ErrCircuitOpen = errors.New("notification circuit open")

// ErrNoRecipient is the Delivery error when there is nobody to send to.
var ErrNoRecipient = errors.New("notification has no recipient")

// Delivery is the typed outcome of one Send.
type Delivery struct {
	Status DeliveryStatus
	Err    error
}

func (d Delivery) Sent() bool {
	return d.Status == DeliverySent
}

// Recipient is an addressee.
type Recipient struct {
	Email string
	Name  string
}

// Message is a rendered email ready for a Sender.
type Message struct {
	To      Recipient
	Subject string
	Text    string
	HTML    string
}

// Sender hands a rendered message to a mail transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Gateway renders templates and delivers them through a Sender guarded by a
// circuit breaker. An open circuit skips delivery instead of waiting on a
// transport that is known to be failing.
type Gateway struct {
	sender    Sender
	templates *Renderer
	breaker   *circuit.Breaker
	logger    *slog.Logger
	timeout   time.Duration
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(g *Gateway) {
		if b != nil {
			g.breaker = b
		}
	}
}

// WithSendTimeout bounds a single delivery attempt.
func WithSendTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func NewGateway(sender Sender, templates *Renderer, opts ...Option) *Gateway {
	g := &Gateway{
		sender:    sender,
		templates: templates,
		breaker:   circuit.New("notification"),
		logger:    slog.Default(),
		timeout:   10 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Send renders tmpl with data and delivers it to the recipient.
func (g *Gateway) Send(ctx context.Context, to Recipient, tmpl Template, data any) Delivery {
	d := g.send(ctx, to, tmpl, data)
	deliveriesTotal.WithLabelValues(string(tmpl), string(d.Status)).Inc()

	switch d.Status {
	case DeliverySent:
		g.logger.DebugContext(ctx, "notification sent", "template", tmpl)
	case DeliverySkipped:
		g.logger.WarnContext(ctx, "notification skipped", "template", tmpl, "reason", d.Err)
	default:
		g.logger.ErrorContext(ctx, "notification failed", "template", tmpl, "error", d.Err)
	}
	return d
}

func (g *Gateway) send(ctx context.Context, to Recipient, tmpl Template, data any) Delivery {
	if to.Email == "" {
		return Delivery{Status: DeliverySkipped, Err: ErrNoRecipient}
	}

	msg, err := g.templates.Render(tmpl, data)
	if err != nil {
		return Delivery{Status: DeliveryFailed, Err: err}
	}
	msg.To = to

	if !g.breaker.Allow() {
		return Delivery{Status: DeliverySkipped, Err: ErrCircuitOpen}
	}

	sendCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if err := g.sender.Send(sendCtx, msg); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			circuitState.Set(1)
			g.logger.WarnContext(ctx, "notification circuit opened", "breaker", g.breaker.Name())
		}
		return Delivery{Status: DeliveryFailed, Err: err}
	}
	if _, change := g.breaker.RecordSuccess(); change.Closed {
		circuitState.Set(0)
		g.logger.InfoContext(ctx, "notification circuit closed", "breaker", g.breaker.Name())
	}
	return Delivery{Status: DeliverySent}
}
