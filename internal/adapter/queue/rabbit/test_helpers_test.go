package rabbit

import (
	"context"
	"sync"
)

// Scripted in-memory transport standing in for the broker. Each Dial
// yields the next scripted session (or error); sessions record declares,
// binds and publishes, and deliver from a test-fed channel.

type exchangeDecl struct {
	name    string
	kind    string
	durable bool
}

type queueDecl struct {
	name      string
	durable   bool
	exclusive bool
}

type bindDecl struct {
	queue    string
	key      string
	exchange string
}

type published struct {
	exchange string
	key      string
	body     []byte
}

type fakeSession struct {
	mu         sync.Mutex
	exchanges  []exchangeDecl
	queues     []queueDecl
	binds      []bindDecl
	pubs       []published
	deliveries chan Delivery

	queueName  string // server-assigned name for empty declares
	declareErr error
	consumeErr error
	publishErr error
	closed     bool
}

func newFakeSession() *fakeSession {
	return &fakeSession{deliveries: make(chan Delivery, 16), queueName: "amq.gen-test"}
}

func (s *fakeSession) ExchangeDeclare(name, kind string, durable bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declareErr != nil {
		return s.declareErr
	}
	s.exchanges = append(s.exchanges, exchangeDecl{name: name, kind: kind, durable: durable})
	return nil
}

func (s *fakeSession) QueueDeclare(name string, durable, exclusive bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declareErr != nil {
		return "", s.declareErr
	}
	if name == "" {
		name = s.queueName
	}
	s.queues = append(s.queues, queueDecl{name: name, durable: durable, exclusive: exclusive})
	return name, nil
}

func (s *fakeSession) QueueBind(queue, key, exchange string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.declareErr != nil {
		return s.declareErr
	}
	s.binds = append(s.binds, bindDecl{queue: queue, key: key, exchange: exchange})
	return nil
}

func (s *fakeSession) Publish(_ context.Context, exchange, key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.publishErr != nil {
		return s.publishErr
	}
	s.pubs = append(s.pubs, published{exchange: exchange, key: key, body: body})
	return nil
}

func (s *fakeSession) Consume(_ context.Context, _ string) (<-chan Delivery, error) {
	if s.consumeErr != nil {
		return nil, s.consumeErr
	}
	return s.deliveries, nil
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSession) publishedBodies() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.pubs))
	for i, p := range s.pubs {
		out[i] = p.body
	}
	return out
}

type fakeTransport struct {
	mu       sync.Mutex
	sessions []*fakeSession
	dialErrs []error // consumed one per dial before sessions are handed out
	dials    int
}

func (t *fakeTransport) Dial(_ context.Context) (Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dials++
	if len(t.dialErrs) > 0 {
		err := t.dialErrs[0]
		t.dialErrs = t.dialErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if len(t.sessions) == 0 {
		return nil, context.DeadlineExceeded
	}
	s := t.sessions[0]
	t.sessions = t.sessions[1:]
	return s, nil
}

func (t *fakeTransport) dialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dials
}
