package dial

import (
	stderrors "errors"
	"time"

	"go.uber.org/zap"

	"github.com/wippyai/sandnet/env"
	"github.com/wippyai/sandnet/errors"
	"github.com/wippyai/sandnet/registry"
	"github.com/wippyai/sandnet/socket"
	"github.com/wippyai/sandnet/transport"
)

const (
	// DefaultTimeout bounds an outbound connect when the caller does
	// not supply one.
	DefaultTimeout = 60 * time.Second

	// DefaultCleanupThreshold is how much remaining deadline is too
	// little to keep retrying a tuple that reported cleanup-in-progress;
	// retrying with a near-zero timeout would mask the condition.
	DefaultCleanupThreshold = time.Second

	// ConflictBackoff is the fixed wait before retrying after a
	// cleanup-in-progress report.
	ConflictBackoff = 200 * time.Millisecond
)

// Config tunes a Dialer. Zero values become the defaults above; nil
// collaborators become the system implementations.
type Config struct {
	Resolver         env.Resolver
	Clock            env.Clock
	Timeout          time.Duration
	CleanupThreshold time.Duration
	Backoff          time.Duration
}

func (c Config) withDefaults() Config {
	if c.Resolver == nil {
		c.Resolver = env.SystemResolver{}
	}
	if c.Clock == nil {
		c.Clock = env.SystemClock{}
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.CleanupThreshold <= 0 {
		c.CleanupThreshold = DefaultCleanupThreshold
	}
	if c.Backoff <= 0 {
		c.Backoff = ConflictBackoff
	}
	return c
}

// Dialer establishes outbound TCP connections and sends UDP datagrams,
// rotating through registry-supplied local ports when the caller lets it
// pick one.
type Dialer struct {
	tr  transport.Transport
	reg *registry.Registry
	cfg Config
}

// NewDialer creates a dialer over the given transport and port registry.
func NewDialer(tr transport.Transport, reg *registry.Registry, cfg Config) *Dialer {
	return &Dialer{tr: tr, reg: reg, cfg: cfg.withDefaults()}
}

// Options pins the local side of an outbound operation. A zero LocalPort
// means auto-port mode: the dialer draws candidates from the registry
// and rotates through them on conflict. A zero Timeout means the
// dialer's default; Timeout only applies to Connect.
type Options struct {
	LocalAddress string
	LocalPort    uint16
	Timeout      time.Duration
}

// resolveArgs validates the shared argument set and resolves the remote
// host to a literal address.
func (d *Dialer) resolveArgs(phase errors.Phase, remoteHost string, remotePort uint16, opts Options) (remoteAddr, localAddr string, err error) {
	if remoteHost == "" {
		return "", "", errors.InvalidArgument(phase, "remote host must not be empty")
	}
	if remotePort == 0 {
		return "", "", errors.InvalidArgument(phase, "remote port must not be zero")
	}
	if opts.Timeout < 0 {
		return "", "", errors.InvalidArgument(phase, "timeout must be positive, got %v", opts.Timeout)
	}

	remoteAddr = remoteHost
	if !registry.ValidIPv4(remoteAddr) {
		remoteAddr, err = d.cfg.Resolver.Resolve(remoteHost)
		if err != nil {
			return "", "", err
		}
	}

	localAddr = opts.LocalAddress
	if localAddr == "" {
		localAddr = d.reg.LocalAddress()
	}
	if !registry.ValidIPv4(localAddr) {
		return "", "", errors.InvalidArgument(phase, "local address %q is not a dotted-quad IPv4 string", localAddr)
	}
	return remoteAddr, localAddr, nil
}

// candidates draws the local port list. In auto-port mode exact
// self-loop matches (local tuple identical to remote tuple) are skipped
// up front; rotation skips them again as it advances.
func (d *Dialer) candidates(phase errors.Phase, proto registry.Protocol, localAddr, remoteAddr string, remotePort uint16, opts Options) ([]uint16, bool, error) {
	if opts.LocalPort != 0 {
		return []uint16{opts.LocalPort}, false, nil
	}

	var (
		ports []uint16
		err   error
	)
	if proto == registry.UDP {
		ports, err = d.reg.AvailableMessagePorts(localAddr)
	} else {
		ports, err = d.reg.AvailableConnectPorts(localAddr)
	}
	if err != nil {
		return nil, false, err
	}

	ports = skipSelfLoop(ports, localAddr, remoteAddr, remotePort)
	if len(ports) == 0 {
		return nil, false, errors.ResourceExhausted(phase, "every candidate port would self-loop")
	}
	return ports, true, nil
}

func skipSelfLoop(ports []uint16, localAddr, remoteAddr string, remotePort uint16) []uint16 {
	if localAddr != remoteAddr {
		return ports
	}
	out := ports[:0]
	for _, p := range ports {
		if p != remotePort {
			out = append(out, p)
		}
	}
	return out
}

// Connect establishes an outbound TCP connection to remoteHost:remotePort
// under a hard wall-clock deadline, rotating through candidate local
// ports on conflict in auto-port mode and backing off briefly when the
// transport reports the tuple is still being torn down.
func (d *Dialer) Connect(remoteHost string, remotePort uint16, opts Options) (*socket.Socket, error) {
	const phase = errors.PhaseConnect

	remoteAddr, localAddr, err := d.resolveArgs(phase, remoteHost, remotePort, opts)
	if err != nil {
		return nil, err
	}

	ports, autoPort, err := d.candidates(phase, registry.TCP, localAddr, remoteAddr, remotePort, opts)
	if err != nil {
		return nil, err
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = d.cfg.Timeout
	}
	deadline := d.cfg.Clock.Now().Add(timeout)

	idx := 0
	cleanupSeen := false
	for {
		remaining := deadline.Sub(d.cfg.Clock.Now())
		if cleanupSeen && remaining <= d.cfg.CleanupThreshold {
			// too little time left to retry a mid-teardown tuple;
			// retrying with a near-zero timeout would mask the
			// condition
			return nil, errors.CleanupInProgress(phase, localAddr, ports[idx])
		}
		if remaining <= 0 {
			return nil, errors.Timeout(phase, "no connection to %s:%d within %v", remoteAddr, remotePort, timeout)
		}

		port := ports[idx]
		h, err := d.tr.Connect(remoteAddr, remotePort, localAddr, port, remaining)
		if err == nil {
			local := transport.Endpoint{Address: localAddr, Port: port}
			remote := transport.Endpoint{Address: remoteAddr, Port: remotePort}
			return socket.New(d.tr, h, local, remote, d.cfg.Clock), nil
		}

		cleanup := transport.IsCleanupInProgress(err)
		conflict := transport.IsPortConflict(err)
		if !cleanup && !conflict {
			return nil, errors.Transport(phase, err)
		}
		if cleanup {
			cleanupSeen = true
		}

		if autoPort {
			next, ok := nextCandidate(ports, idx, localAddr, remoteAddr, remotePort)
			if ok {
				Logger().Debug("local port conflict, rotating",
					zap.String("local", localAddr),
					zap.Uint16("port", port),
					zap.Uint16("next", ports[next]))
				idx = next
				continue
			}
			if !cleanup {
				return nil, errors.New(phase, errors.KindResourceExhausted).
					Detail("all %d candidate local ports conflicted", len(ports)).
					Cause(err).
					Build()
			}
			// candidates exhausted but the last condition was
			// transient; wait out the teardown and rotate again
			d.cfg.Clock.Sleep(d.cfg.Backoff)
			idx = 0
			continue
		}

		// pinned local port
		if cleanup {
			d.cfg.Clock.Sleep(d.cfg.Backoff)
			continue
		}
		return nil, conflictError(phase, err, localAddr, port)
	}
}

// nextCandidate advances through the candidate list, skipping an exact
// self-loop match.
func nextCandidate(ports []uint16, idx int, localAddr, remoteAddr string, remotePort uint16) (int, bool) {
	for i := idx + 1; i < len(ports); i++ {
		if localAddr == remoteAddr && ports[i] == remotePort {
			continue
		}
		return i, true
	}
	return 0, false
}

func conflictError(phase errors.Phase, cause error, address string, port uint16) error {
	kind := errors.KindAlreadyInUse
	if stderrors.Is(cause, transport.ErrDuplicateBinding) {
		kind = errors.KindDuplicateBinding
	}
	return errors.New(phase, kind).
		Tuple(address, port).
		Cause(cause).
		Build()
}

// SendMessage transmits one UDP datagram and returns the byte count the
// transport accepted. Same resolution, candidate drawing and self-loop
// avoidance as Connect, but a single attempt per candidate and no
// deadline loop; a connectionless transport has no cleanup state.
func (d *Dialer) SendMessage(remoteHost string, remotePort uint16, payload []byte, opts Options) (int, error) {
	const phase = errors.PhaseSend

	remoteAddr, localAddr, err := d.resolveArgs(phase, remoteHost, remotePort, opts)
	if err != nil {
		return 0, err
	}

	ports, autoPort, err := d.candidates(phase, registry.UDP, localAddr, remoteAddr, remotePort, opts)
	if err != nil {
		return 0, err
	}

	for idx := 0; ; {
		port := ports[idx]
		n, err := d.tr.SendDatagram(remoteAddr, remotePort, localAddr, port, payload)
		if err == nil {
			return n, nil
		}
		if !transport.IsPortConflict(err) {
			return 0, errors.Transport(phase, err)
		}
		if !autoPort {
			return 0, conflictError(phase, err, localAddr, port)
		}

		next, ok := nextCandidate(ports, idx, localAddr, remoteAddr, remotePort)
		if !ok {
			return 0, errors.New(phase, errors.KindResourceExhausted).
				Detail("all %d candidate local ports conflicted", len(ports)).
				Cause(err).
				Build()
		}
		idx = next
	}
}
