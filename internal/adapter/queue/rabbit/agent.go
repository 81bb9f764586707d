package rabbit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	backoff "github.com/cenkalti/backoff/v4"

	"github.com/saifu/pricing-pipeline/internal/adapter/observability"
	"github.com/saifu/pricing-pipeline/internal/domain"
)

// Role is the per-agent specialization plugged into the shared run loop.
// Init declares the role's exchanges, queues and bindings on a fresh
// session; Drive produces or consumes until the session dies or the
// context ends.
type Role interface {
	Name() string
	Init(s Session) error
	Drive(ctx context.Context, s Session) error
}

// Agent runs one role through the connect → initialize → drive lifecycle,
// redialing on transport failure when reconnect is enabled. One agent owns
// one session at a time; the session is never shared.
type Agent struct {
	role      Role
	transport Transport
	reconnect bool
}

// NewAgent constructs an agent for the role. With reconnect enabled the
// agent redials forever on transport errors; disabled, the first transport
// error fails the agent.
func NewAgent(role Role, t Transport, reconnect bool) *Agent {
	return &Agent{role: role, transport: t, reconnect: reconnect}
}

// Name identifies the agent in logs and supervisor errors.
func (a *Agent) Name() string { return a.role.Name() }

// Run loops the agent lifecycle until the context is cancelled (clean
// stop, returns nil), the role reports an invariant violation (fatal,
// no redial), or a transport error occurs with reconnect disabled.
func (a *Agent) Run(ctx context.Context) error {
	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = 500 * time.Millisecond
	expo.MaxInterval = 30 * time.Second
	expo.MaxElapsedTime = 0 // redial until stopped

	for {
		if ctx.Err() != nil {
			return nil
		}
		err := a.cycle(ctx, expo)
		switch {
		case ctx.Err() != nil:
			slog.Info("agent stopped", slog.String("agent", a.Name()))
			return nil
		case errors.Is(err, domain.ErrInvariant):
			slog.Error("agent aborting on invariant violation",
				slog.String("agent", a.Name()), slog.Any("error", err))
			return err
		case err == nil:
			// The drive loop finished on its own while the service was
			// still up; surface it so the supervisor can fail fast.
			return fmt.Errorf("op=rabbit.Agent.Run: %s: drive loop exited", a.Name())
		case !a.reconnect:
			return fmt.Errorf("op=rabbit.Agent.Run: %s: %w", a.Name(), err)
		}

		observability.AgentReconnected(a.Name())
		wait := expo.NextBackOff()
		slog.Warn("agent lost broker transport, will reconnect",
			slog.String("agent", a.Name()),
			slog.Duration("wait", wait),
			slog.Any("error", err))
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(wait):
		}
	}
}

// cycle runs one connect → initialize → drive pass and always closes the
// session on the way out.
func (a *Agent) cycle(ctx context.Context, expo *backoff.ExponentialBackOff) error {
	slog.Info("agent connecting to broker", slog.String("agent", a.Name()))
	sess, err := a.transport.Dial(ctx)
	if err != nil {
		return err
	}

	// Closing the session from the watcher goroutine is what unblocks a
	// ranging consume when stop is requested.
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = sess.Close()
		case <-done:
		}
	}()
	defer func() {
		close(done)
		_ = sess.Close()
	}()

	if err := a.role.Init(sess); err != nil {
		return fmt.Errorf("op=rabbit.init %s: %w", a.Name(), err)
	}
	expo.Reset()
	slog.Info("agent running", slog.String("agent", a.Name()))
	return a.role.Drive(ctx, sess)
}
