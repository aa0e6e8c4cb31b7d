package registry

import (
	"sync"

	"github.com/wippyai/sandnet/errors"
	"github.com/wippyai/sandnet/transport"
)

// Protocol selects which binding set a tuple belongs to.
type Protocol uint8

const (
	TCP Protocol = iota
	UDP
)

func (p Protocol) String() string {
	if p == UDP {
		return "UDP"
	}
	return "TCP"
}

// Default port range handed to components that draw candidates.
const (
	DefaultFirstPort uint16 = 63100
	DefaultLastPort  uint16 = 63180
)

// Config describes the local port namespace the registry manages.
type Config struct {
	// LocalAddress is the machine's resolved address, used when a
	// caller does not supply one.
	LocalAddress string
	FirstPort    uint16
	LastPort     uint16
}

func (c Config) withDefaults() Config {
	if c.FirstPort == 0 {
		c.FirstPort = DefaultFirstPort
	}
	if c.LastPort == 0 {
		c.LastPort = DefaultLastPort
	}
	return c
}

// Registry is the single source of truth for which local (address, port)
// tuples this layer currently holds. It is explicitly owned and injected
// into the dial and listen components; all mutation is mutex-guarded.
type Registry struct {
	mu  sync.Mutex
	tcp map[transport.Endpoint]struct{}
	udp map[transport.Endpoint]struct{}
	cfg Config
}

// NewRegistry creates an empty registry for the given port namespace.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		tcp: make(map[transport.Endpoint]struct{}),
		udp: make(map[transport.Endpoint]struct{}),
		cfg: cfg.withDefaults(),
	}
}

// LocalAddress returns the configured default local address.
func (r *Registry) LocalAddress() string {
	return r.cfg.LocalAddress
}

// Register records a tuple as held for the given protocol. A tuple may
// appear in at most one protocol's set at a time; a repeat registration
// fails with a duplicate-binding error rather than silently stacking.
func (r *Registry) Register(proto Protocol, address string, port uint16) error {
	if !ValidIPv4(address) {
		return errors.InvalidArgument(errors.PhaseRegistry, "address %q is not a dotted-quad IPv4 string", address)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tuple := transport.Endpoint{Address: address, Port: port}
	if _, ok := r.tcp[tuple]; ok {
		return errors.DuplicateBinding(errors.PhaseRegistry, address, port)
	}
	if _, ok := r.udp[tuple]; ok {
		return errors.DuplicateBinding(errors.PhaseRegistry, address, port)
	}

	r.set(proto)[tuple] = struct{}{}
	return nil
}

// Deregister removes a tuple from the protocol's set. Removing a tuple
// that is not present is benign.
func (r *Registry) Deregister(proto Protocol, address string, port uint16) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.set(proto), transport.Endpoint{Address: address, Port: port})
}

// Held reports whether the tuple is currently registered for the
// protocol.
func (r *Registry) Held(proto Protocol, address string, port uint16) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.set(proto)[transport.Endpoint{Address: address, Port: port}]
	return ok
}

func (r *Registry) set(proto Protocol) map[transport.Endpoint]struct{} {
	if proto == UDP {
		return r.udp
	}
	return r.tcp
}

// AvailableConnectPorts returns, ascending, every port in the configured
// range not registered for TCP at the address. An empty localAddress
// means the configured default.
func (r *Registry) AvailableConnectPorts(localAddress string) ([]uint16, error) {
	return r.available(TCP, localAddress)
}

// AvailableMessagePorts is the UDP analog of AvailableConnectPorts.
func (r *Registry) AvailableMessagePorts(localAddress string) ([]uint16, error) {
	return r.available(UDP, localAddress)
}

func (r *Registry) available(proto Protocol, localAddress string) ([]uint16, error) {
	if localAddress == "" {
		localAddress = r.cfg.LocalAddress
	}
	if !ValidIPv4(localAddress) {
		return nil, errors.InvalidArgument(errors.PhaseRegistry, "address %q is not a dotted-quad IPv4 string", localAddress)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	held := r.set(proto)
	var ports []uint16
	for p := r.cfg.FirstPort; ; p++ {
		if _, ok := held[transport.Endpoint{Address: localAddress, Port: p}]; !ok {
			ports = append(ports, p)
		}
		if p == r.cfg.LastPort {
			break
		}
	}

	if len(ports) == 0 {
		return nil, errors.ResourceExhausted(errors.PhaseRegistry, "no "+proto.String()+" ports available at "+localAddress)
	}
	return ports, nil
}

// ValidIPv4 reports whether s is a well-formed dotted-quad IPv4 string:
// exactly four decimal octets, each in 0..255.
func ValidIPv4(s string) bool {
	octets := 0
	i := 0
	for octets < 4 {
		if i >= len(s) {
			return false
		}
		val, digits := 0, 0
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			val = val*10 + int(s[i]-'0')
			digits++
			i++
		}
		if digits == 0 || digits > 3 || val > 255 {
			return false
		}
		octets++
		if octets < 4 {
			if i >= len(s) || s[i] != '.' {
				return false
			}
			i++
		}
	}
	return i == len(s)
}
