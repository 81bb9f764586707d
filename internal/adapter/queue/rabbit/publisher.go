package rabbit

import (
	"context"
	"fmt"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// Publisher is the fan-out publishing role: Init declares the exchange,
// Drive runs the user work loop, Publish writes to the exchange with an
// empty routing key. It implements domain.Publisher for the work loop.
type Publisher struct {
	Exchange string
	// Work drives emission; it runs on the agent goroutine and calls
	// Publish whenever it has something to say.
	Work func(ctx context.Context, pub domain.Publisher) error

	sess Session
}

// NewPublisher constructs the publishing role for a fan-out exchange.
func NewPublisher(exchange string, work func(ctx context.Context, pub domain.Publisher) error) *Publisher {
	return &Publisher{Exchange: exchange, Work: work}
}

// Name identifies the role in logs.
func (p *Publisher) Name() string { return "publisher:" + p.Exchange }

// Init declares the fan-out exchange and adopts the session.
func (p *Publisher) Init(s Session) error {
	if err := s.ExchangeDeclare(p.Exchange, "fanout", false); err != nil {
		return err
	}
	p.sess = s
	return nil
}

// Drive hands control to the user work loop.
func (p *Publisher) Drive(ctx context.Context, _ Session) error {
	return p.Work(ctx, p)
}

// Publish writes one message to the fan-out exchange.
func (p *Publisher) Publish(ctx context.Context, body []byte) error {
	if p.sess == nil {
		return fmt.Errorf("op=rabbit.Publisher.Publish: not connected: %w", domain.ErrUnavailable)
	}
	return p.sess.Publish(ctx, p.Exchange, "", body)
}
