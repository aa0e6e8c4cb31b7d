package sandnet

import (
	"github.com/wippyai/sandnet/config"
	"github.com/wippyai/sandnet/dial"
	"github.com/wippyai/sandnet/env"
	"github.com/wippyai/sandnet/listen"
	"github.com/wippyai/sandnet/registry"
	"github.com/wippyai/sandnet/sched"
	"github.com/wippyai/sandnet/transport"
)

// Options overrides the collaborators a Stack is wired with. Nil
// fields get the production implementations.
type Options struct {
	Transport transport.Transport
	Scheduler sched.Scheduler
	Clock     env.Clock
	Resolver  env.Resolver
}

// Stack bundles one fully wired socket layer: a port registry, a
// dialer, and a listener manager sharing the same transport.
type Stack struct {
	Registry  *registry.Registry
	Dialer    *dial.Dialer
	Listeners *listen.Manager

	sch sched.Scheduler
}

// New wires a Stack from the given configuration. Pass config.Default()
// when no file-based configuration applies.
func New(cfg *config.Config, opts Options) (*Stack, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	tr := opts.Transport
	if tr == nil {
		tr = transport.NewMemory()
	}
	sch := opts.Scheduler
	if sch == nil {
		sch = sched.NewRunLoop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = env.SystemClock{}
	}

	reg := registry.NewRegistry(registry.Config{
		LocalAddress: cfg.LocalAddress,
		FirstPort:    cfg.FirstPort,
		LastPort:     cfg.LastPort,
	})

	dialer := dial.NewDialer(tr, reg, dial.Config{
		Resolver:         opts.Resolver,
		Clock:            clock,
		Timeout:          cfg.DefaultTimeout.Std(),
		CleanupThreshold: cfg.CleanupThreshold.Std(),
		Backoff:          cfg.ConflictBackoff.Std(),
	})

	listeners := listen.NewManager(tr, reg, sch, listen.Config{
		Budget: env.NewEventBudget(int(cfg.EventBudget)),
		Clock:  clock,
	})

	return &Stack{
		Registry:  reg,
		Dialer:    dialer,
		Listeners: listeners,
		sch:       sch,
	}, nil
}

// Shutdown stops the stack's scheduler. Listeners must be stopped by
// their own stop functions first; Shutdown does not chase them.
func (s *Stack) Shutdown() {
	if rl, ok := s.sch.(*sched.RunLoop); ok {
		rl.Shutdown()
	}
}
