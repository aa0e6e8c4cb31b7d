package env

import (
	"net"

	"github.com/wippyai/sandnet/errors"
)

// Resolver turns hostnames into dotted-quad IPv4 addresses.
type Resolver interface {
	Resolve(hostname string) (string, error)
}

// SystemResolver resolves through the host's stub resolver, keeping the
// first IPv4 answer.
type SystemResolver struct{}

func (SystemResolver) Resolve(hostname string) (string, error) {
	ips, err := net.LookupIP(hostname)
	if err != nil {
		return "", errors.New(errors.PhaseResolve, errors.KindTransport).
			Detail("lookup %q", hostname).
			Cause(err).
			Build()
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4.String(), nil
		}
	}
	return "", errors.New(errors.PhaseResolve, errors.KindTransport).
		Detail("no IPv4 address for %q", hostname).
		Build()
}

// StaticResolver resolves from a fixed table, for tests and hermetic
// setups.
type StaticResolver map[string]string

func (r StaticResolver) Resolve(hostname string) (string, error) {
	addr, ok := r[hostname]
	if !ok {
		return "", errors.New(errors.PhaseResolve, errors.KindTransport).
			Detail("unknown host %q", hostname).
			Build()
	}
	return addr, nil
}
