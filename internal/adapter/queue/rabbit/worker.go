package rabbit

import (
	"context"
	"fmt"
)

// Worker is the work-queue consuming role: Init declares the direct
// exchange and the named durable queue bound with the fixed routing key,
// Drive consumes without acknowledgement and hands each body to Handle.
// The broker therefore re-delivers nothing; a job lost mid-handle is lost.
type Worker struct {
	Queue  string
	Handle func(ctx context.Context, body []byte) error
}

// NewWorker constructs the consuming role for the named durable work queue.
func NewWorker(queue string, handle func(ctx context.Context, body []byte) error) *Worker {
	return &Worker{Queue: queue, Handle: handle}
}

// Name identifies the role in logs.
func (w *Worker) Name() string { return "worker:" + w.Queue }

// Init declares the direct exchange and the durable work queue, bound
// with the fixed routing key.
func (w *Worker) Init(sess Session) error {
	if err := sess.ExchangeDeclare(DirectExchange, "direct", false); err != nil {
		return err
	}
	if _, err := sess.QueueDeclare(w.Queue, true, false); err != nil {
		return err
	}
	return sess.QueueBind(w.Queue, DirectRoutingKey, DirectExchange)
}

// Drive consumes jobs until the channel closes (transport loss) or the
// context ends (clean stop).
func (w *Worker) Drive(ctx context.Context, sess Session) error {
	deliveries, err := sess.Consume(ctx, w.Queue)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("op=rabbit.Worker.Drive: %s: consume channel closed", w.Name())
			}
			if err := w.Handle(ctx, d.Body); err != nil {
				return err
			}
		}
	}
}
