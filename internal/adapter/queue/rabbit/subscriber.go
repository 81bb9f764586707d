package rabbit

import (
	"context"
	"fmt"
)

// Subscriber is the fan-out consuming role: Init declares the exchange
// and binds an exclusive server-named queue to it, Drive consumes without
// acknowledgement and hands each body to Received. Errors returned by
// Received abort the consume loop; data-level problems must be absorbed
// inside the handler.
type Subscriber struct {
	Exchange string
	Received func(ctx context.Context, body []byte) error

	queue string
}

// NewSubscriber constructs the subscribing role for a fan-out exchange.
func NewSubscriber(exchange string, received func(ctx context.Context, body []byte) error) *Subscriber {
	return &Subscriber{Exchange: exchange, Received: received}
}

// Name identifies the role in logs.
func (s *Subscriber) Name() string { return "subscriber:" + s.Exchange }

// Init declares the exchange and an exclusive auto-named queue bound with
// an empty routing key. Nothing on the fan-out side is durable.
func (s *Subscriber) Init(sess Session) error {
	if err := sess.ExchangeDeclare(s.Exchange, "fanout", false); err != nil {
		return err
	}
	queue, err := sess.QueueDeclare("", false, true)
	if err != nil {
		return err
	}
	if err := sess.QueueBind(queue, "", s.Exchange); err != nil {
		return err
	}
	s.queue = queue
	return nil
}

// Drive consumes deliveries until the channel closes (transport loss) or
// the context ends (clean stop).
func (s *Subscriber) Drive(ctx context.Context, sess Session) error {
	deliveries, err := sess.Consume(ctx, s.queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("op=rabbit.Subscriber.Drive: %s: consume channel closed", s.Name())
			}
			if err := s.Received(ctx, d.Body); err != nil {
				return err
			}
		}
	}
}
