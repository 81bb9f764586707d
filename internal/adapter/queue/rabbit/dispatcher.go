package rabbit

import (
	"context"
	"fmt"

	"github.com/saifu/pricing-pipeline/internal/domain"
)

// Dispatcher is the work-queue producing role: Init declares the direct
// exchange and the durable work queue both ends share, Drive runs the
// user work loop, Dispatch publishes with the fixed routing key so
// exactly one bound worker picks each job up. It implements
// domain.Dispatcher for the work loop.
type Dispatcher struct {
	Queue string
	// Work drives emission; it runs on the agent goroutine.
	Work func(ctx context.Context, disp domain.Dispatcher) error

	sess Session
}

// NewDispatcher constructs the dispatching role for the named durable
// work queue.
func NewDispatcher(queue string, work func(ctx context.Context, disp domain.Dispatcher) error) *Dispatcher {
	return &Dispatcher{Queue: queue, Work: work}
}

// Name identifies the role in logs.
func (d *Dispatcher) Name() string { return "dispatcher:" + d.Queue }

// Init declares the direct exchange and the durable work queue, bound
// with the fixed routing key. The worker declares the same objects;
// declarations are idempotent, and jobs dispatched before any worker
// ever ran still land in the queue.
func (d *Dispatcher) Init(s Session) error {
	if err := s.ExchangeDeclare(DirectExchange, "direct", false); err != nil {
		return err
	}
	if _, err := s.QueueDeclare(d.Queue, true, false); err != nil {
		return err
	}
	if err := s.QueueBind(d.Queue, DirectRoutingKey, DirectExchange); err != nil {
		return err
	}
	d.sess = s
	return nil
}

// Drive hands control to the user work loop.
func (d *Dispatcher) Drive(ctx context.Context, _ Session) error {
	return d.Work(ctx, d)
}

// Dispatch publishes one job onto the direct exchange with the fixed key.
func (d *Dispatcher) Dispatch(ctx context.Context, body []byte) error {
	if d.sess == nil {
		return fmt.Errorf("op=rabbit.Dispatcher.Dispatch: not connected: %w", domain.ErrUnavailable)
	}
	return d.sess.Publish(ctx, DirectExchange, DirectRoutingKey, body)
}
