package listen

import (
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/sandnet/env"
	"github.com/wippyai/sandnet/errors"
	"github.com/wippyai/sandnet/registry"
	"github.com/wippyai/sandnet/sched"
	"github.com/wippyai/sandnet/socket"
	"github.com/wippyai/sandnet/transport"
)

// DefaultPollInterval is how often a listener's poll task runs when the
// caller does not choose one.
const DefaultPollInterval = 100 * time.Millisecond

// TCPCallback handles one accepted connection. It runs on a pool worker
// or an ad-hoc goroutine, concurrently with the poll loop and with other
// callbacks.
type TCPCallback func(remote transport.Endpoint, conn *socket.Socket)

// DatagramCallback handles one received datagram.
type DatagramCallback func(dgram transport.Datagram)

// ErrorDelegate receives listener failures: the protocol tag ("TCP" or
// "UDP"), the bound tuple and a diagnostic string. Panics and errors
// escaping the delegate itself are swallowed.
type ErrorDelegate func(proto string, tuple transport.Endpoint, diag string)

// Stop reverses a listener registration: it unschedules the poll task,
// closes the listening socket and releases the tuple. When destroyPool
// is true a caller-supplied pool is shut down too. A second invocation
// is a no-op.
type Stop func(destroyPool bool)

// Options tunes one listener registration.
type Options struct {
	// Pool dispatches callbacks when set; its queue is the
	// backpressure. Without a pool each callback runs on its own
	// goroutine, gated by the global event budget.
	Pool         sched.Pool
	PollInterval time.Duration
	// ErrorDelegate defaults to logging through the package logger.
	ErrorDelegate ErrorDelegate
}

// Config wires a Manager's collaborators. Nil Budget and Clock get
// defaults.
type Config struct {
	Budget *env.EventBudget
	Clock  env.Clock
}

// Manager registers accept-poll listeners on the run-loop scheduler and
// contains every failure mode so a misbehaving callback can never crash
// the scheduler or leak an accepted connection.
type Manager struct {
	tr     transport.Transport
	reg    *registry.Registry
	sch    sched.Scheduler
	budget *env.EventBudget
	clock  env.Clock
}

// NewManager creates a listener manager over the given transport,
// registry and scheduler.
func NewManager(tr transport.Transport, reg *registry.Registry, sch sched.Scheduler, cfg Config) *Manager {
	if cfg.Budget == nil {
		cfg.Budget = env.NewEventBudget(0)
	}
	if cfg.Clock == nil {
		cfg.Clock = env.SystemClock{}
	}
	return &Manager{tr: tr, reg: reg, sch: sch, budget: cfg.Budget, clock: cfg.Clock}
}

type listener struct {
	m        *Manager
	proto    registry.Protocol
	tuple    transport.Endpoint
	handle   transport.Handle
	pool     sched.Pool
	delegate ErrorDelegate

	mu      sync.Mutex
	job     sched.JobHandle
	stopped bool
}

// ListenTCP opens a listening endpoint at the tuple, registers it, and
// schedules an accept-poll task that wraps each inbound connection in a
// Socket and dispatches callback.
func (m *Manager) ListenTCP(localAddress string, localPort uint16, callback TCPCallback, opts Options) (Stop, error) {
	if callback == nil {
		return nil, errors.InvalidArgument(errors.PhaseListen, "callback must not be nil")
	}
	l, err := m.register(registry.TCP, localAddress, localPort, &opts)
	if err != nil {
		return nil, err
	}

	m.schedule(l, opts.PollInterval, func() { l.pollTCP(callback) })
	return l.stop, nil
}

// ListenUDP is the datagram analog of ListenTCP: each pending datagram
// is handed to callback as an (address, port, payload) tuple.
func (m *Manager) ListenUDP(localAddress string, localPort uint16, callback DatagramCallback, opts Options) (Stop, error) {
	if callback == nil {
		return nil, errors.InvalidArgument(errors.PhaseListen, "callback must not be nil")
	}
	l, err := m.register(registry.UDP, localAddress, localPort, &opts)
	if err != nil {
		return nil, err
	}

	m.schedule(l, opts.PollInterval, func() { l.pollUDP(callback) })
	return l.stop, nil
}

func (m *Manager) register(proto registry.Protocol, localAddress string, localPort uint16, opts *Options) (*listener, error) {
	if opts.PollInterval < 0 {
		return nil, errors.InvalidArgument(errors.PhaseListen, "poll interval must be positive, got %v", opts.PollInterval)
	}
	if localAddress == "" {
		localAddress = m.reg.LocalAddress()
	}
	if !registry.ValidIPv4(localAddress) {
		return nil, errors.InvalidArgument(errors.PhaseListen, "address %q is not a dotted-quad IPv4 string", localAddress)
	}
	if opts.ErrorDelegate == nil {
		opts.ErrorDelegate = logDelegate
	}

	var (
		h   transport.Handle
		err error
	)
	if proto == registry.UDP {
		h, err = m.tr.ListenDatagram(localAddress, localPort)
	} else {
		h, err = m.tr.Listen(localAddress, localPort)
	}
	if err != nil {
		if transport.IsPortConflict(err) || transport.IsCleanupInProgress(err) {
			return nil, errors.New(errors.PhaseListen, conflictKind(err)).
				Tuple(localAddress, localPort).
				Cause(err).
				Build()
		}
		return nil, errors.Transport(errors.PhaseListen, err)
	}

	if err := m.reg.Register(proto, localAddress, localPort); err != nil {
		_ = m.tr.Close(h)
		return nil, err
	}

	return &listener{
		m:        m,
		proto:    proto,
		tuple:    transport.Endpoint{Address: localAddress, Port: localPort},
		handle:   h,
		pool:     opts.Pool,
		delegate: opts.ErrorDelegate,
	}, nil
}

func conflictKind(err error) errors.Kind {
	switch {
	case transport.IsCleanupInProgress(err):
		return errors.KindCleanupInProgress
	case transport.IsPortConflict(err):
		if stderrors.Is(err, transport.ErrDuplicateBinding) {
			return errors.KindDuplicateBinding
		}
		return errors.KindAlreadyInUse
	default:
		return errors.KindTransport
	}
}

func (m *Manager) schedule(l *listener, interval time.Duration, task func()) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	job := m.sch.ScheduleEvery(interval, task)
	l.mu.Lock()
	if l.stopped {
		// torn down before the job handle landed
		m.sch.Cancel(job)
	} else {
		l.job = job
	}
	l.mu.Unlock()
}

// pollTCP drains pending inbound connections. It never blocks: accept
// attempts are non-blocking and each success is dispatched elsewhere.
func (l *listener) pollTCP(callback TCPCallback) {
	for {
		if l.isStopped() {
			return
		}
		usesBudget := l.pool == nil
		if usesBudget && !l.m.budget.Acquire() {
			return
		}

		remote, h, err := l.m.tr.Accept(l.handle)
		if err != nil {
			if usesBudget {
				l.m.budget.Release()
			}
			if transport.IsWouldBlock(err) {
				return
			}
			l.fail(err)
			return
		}

		conn := socket.New(l.m.tr, h, l.tuple, remote, l.m.clock)
		l.dispatch(func() {
			defer func() {
				if rec := recover(); rec != nil {
					// an accepted connection must never leak past a
					// misbehaving callback
					_ = conn.Close()
					l.notify(errors.Callback(errors.PhaseListen, l.tuple.String(), rec).Error())
				}
			}()
			callback(remote, conn)
		})
	}
}

// pollUDP drains pending datagrams.
func (l *listener) pollUDP(callback DatagramCallback) {
	for {
		if l.isStopped() {
			return
		}
		usesBudget := l.pool == nil
		if usesBudget && !l.m.budget.Acquire() {
			return
		}

		dgram, err := l.m.tr.ReceiveDatagram(l.handle)
		if err != nil {
			if usesBudget {
				l.m.budget.Release()
			}
			if transport.IsWouldBlock(err) {
				return
			}
			l.fail(err)
			return
		}

		l.dispatch(func() {
			defer func() {
				if rec := recover(); rec != nil {
					l.notify(errors.Callback(errors.PhaseListen, l.tuple.String(), rec).Error())
				}
			}()
			callback(dgram)
		})
	}
}

func (l *listener) dispatch(run func()) {
	if l.pool != nil {
		l.pool.Submit(run)
		return
	}
	go func() {
		defer l.m.budget.Release()
		run()
	}()
}

// fail tears the listener down after a non-would-block poll error and
// reports it to the delegate.
func (l *listener) fail(cause error) {
	l.teardown()
	l.notify(fmt.Sprintf("poll failed: %v", cause))
}

// notify invokes the error delegate, swallowing anything that escapes
// it.
func (l *listener) notify(diag string) {
	defer func() {
		if rec := recover(); rec != nil {
			Logger().Debug("error delegate panicked", zap.Any("panic", rec))
		}
	}()
	l.delegate(l.proto.String(), l.tuple, diag)
}

func (l *listener) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// teardown unschedules, closes and deregisters exactly once.
func (l *listener) teardown() bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.stopped = true
	job := l.job
	l.mu.Unlock()

	if job != "" {
		l.m.sch.Cancel(job)
	}
	_ = l.m.tr.Close(l.handle)
	l.m.reg.Deregister(l.proto, l.tuple.Address, l.tuple.Port)
	return true
}

// stop is the Stop function returned to the caller.
func (l *listener) stop(destroyPool bool) {
	if !l.teardown() {
		return
	}
	if destroyPool && l.pool != nil {
		l.pool.Shutdown()
	}
}

// logDelegate is the default error delegate.
func logDelegate(proto string, tuple transport.Endpoint, diag string) {
	Logger().Warn("listener error",
		zap.String("proto", proto),
		zap.String("tuple", tuple.String()),
		zap.String("diag", diag))
}
