// Package app assembles agents, routers and side listeners into runnable
// services.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Agent is one supervised run loop. The rabbit agents satisfy this, as do
// ad-hoc loops wrapped in AgentFunc.
type Agent interface {
	Name() string
	Run(ctx context.Context) error
}

// AgentFunc adapts a bare run function to the Agent interface.
type AgentFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (f AgentFunc) Name() string { return f.Label }

func (f AgentFunc) Run(ctx context.Context) error { return f.Fn(ctx) }

// Supervisor runs a fixed set of agents, one goroutine each, under a
// shared cancellable context. The first agent to return, error or not,
// brings the group down.
type Supervisor struct {
	agents []Agent
}

// NewSupervisor builds a supervisor over the given agents.
func NewSupervisor(agents ...Agent) *Supervisor {
	return &Supervisor{agents: agents}
}

// Run blocks until every agent has stopped and returns nil only for a
// clean, context-driven stop. An agent exiting while the context is still
// live is an error even when the agent itself returned nil; the service
// must not keep running half its loops.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range s.agents {
		g.Go(func() error {
			slog.Info("agent supervised", slog.String("agent", a.Name()))
			if err := a.Run(gctx); err != nil {
				return fmt.Errorf("op=app.Supervisor: agent %s: %w", a.Name(), err)
			}
			if gctx.Err() == nil {
				return fmt.Errorf("op=app.Supervisor: agent %s exited early", a.Name())
			}
			return nil
		})
	}
	return g.Wait()
}
