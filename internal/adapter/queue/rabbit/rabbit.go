// Package rabbit provides the broker-agent framework over RabbitMQ.
//
// Every pipeline service is built from agents: long-lived supervised
// loops that own exactly one broker connection and channel, redial on
// transport failure, and drive one of four roles (publisher, subscriber,
// dispatcher, worker). Consumes are auto-acknowledged; the design trades
// loss of in-flight messages on a crash for a simpler ownership model.
package rabbit

import (
	"context"
	"fmt"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/saifu/pricing-pipeline/internal/config"
)

const (
	// DirectExchange routes pricing jobs to the durable work queue.
	DirectExchange = "Direct-X"
	// DirectRoutingKey is the fixed key binding the work queue.
	DirectRoutingKey = "Key1"

	dialTimeout = 5 * time.Second
	heartbeat   = 10 * time.Second
)

// Delivery is one consumed message body.
type Delivery struct {
	Body []byte
}

// Session is one broker connection+channel pair. A session is owned by
// exactly one agent goroutine and is never shared.
type Session interface {
	ExchangeDeclare(name, kind string, durable bool) error
	// QueueDeclare declares a queue and returns its name; pass an empty
	// name for a server-named queue.
	QueueDeclare(name string, durable, exclusive bool) (string, error)
	QueueBind(queue, key, exchange string) error
	Publish(ctx context.Context, exchange, key string, body []byte) error
	// Consume starts an auto-acknowledged consume on the queue. The
	// returned channel closes when the transport goes away or ctx ends.
	Consume(ctx context.Context, queue string) (<-chan Delivery, error)
	Close() error
}

// Transport dials broker sessions. The production implementation is
// Connector; tests substitute a scripted fake.
type Transport interface {
	Dial(ctx context.Context) (Session, error)
}

// Connector dials RabbitMQ using the configured endpoint and credentials.
type Connector struct {
	cfg config.MQ
}

// NewConnector constructs a Connector from the mq config section.
func NewConnector(cfg config.MQ) *Connector { return &Connector{cfg: cfg} }

// URL renders the amqp connection string. The default port applies when
// the host does not carry one.
func (c *Connector) URL() string {
	host := c.cfg.Host
	if !strings.Contains(host, ":") {
		host += ":5672"
	}
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.cfg.Credentials.Username, c.cfg.Credentials.Password),
		Host:   host,
		Path:   "/",
	}
	return u.String()
}

// Dial opens one connection and one channel.
func (c *Connector) Dial(_ context.Context) (Session, error) {
	conn, err := amqp.DialConfig(c.URL(), amqp.Config{
		Heartbeat: heartbeat,
		Dial:      amqp.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("op=rabbit.dial %s: %w", c.cfg.Host, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("op=rabbit.channel: %w", err)
	}
	return &amqpSession{conn: conn, ch: ch}, nil
}

// amqpSession adapts one amqp091 connection+channel to Session.
type amqpSession struct {
	conn *amqp.Connection
	ch   *amqp.Channel
}

func (s *amqpSession) ExchangeDeclare(name, kind string, durable bool) error {
	return s.ch.ExchangeDeclare(name, kind, durable, false, false, false, nil)
}

func (s *amqpSession) QueueDeclare(name string, durable, exclusive bool) (string, error) {
	q, err := s.ch.QueueDeclare(name, durable, false, exclusive, false, nil)
	if err != nil {
		return "", err
	}
	return q.Name, nil
}

func (s *amqpSession) QueueBind(queue, key, exchange string) error {
	return s.ch.QueueBind(queue, key, exchange, false, nil)
}

func (s *amqpSession) Publish(ctx context.Context, exchange, key string, body []byte) error {
	return s.ch.PublishWithContext(ctx, exchange, key, false, false, amqp.Publishing{
		ContentType: "application/json",
		MessageId:   newMessageID(),
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (s *amqpSession) Consume(ctx context.Context, queue string) (<-chan Delivery, error) {
	deliveries, err := s.ch.Consume(queue, "", true, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				select {
				case out <- Delivery{Body: d.Body}:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *amqpSession) Close() error {
	if s.conn.IsClosed() {
		return nil
	}
	return s.conn.Close()
}

var (
	ulidMu      sync.Mutex
	ulidEntropy = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0) //nolint:gosec // Weak random is sufficient for ULID entropy.
)

func newMessageID() string {
	ulidMu.Lock()
	defer ulidMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(time.Now()), ulidEntropy)
	if err != nil {
		return time.Now().UTC().Format("20060102150405.000000000")
	}
	return id.String()
}
