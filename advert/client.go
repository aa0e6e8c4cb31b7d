package advert

import (
	"time"

	"github.com/kolo/xmlrpc"
	"go.uber.org/zap"

	"github.com/wippyai/sandnet/errors"
)

// DefaultTTL is the announcement lifetime used when the caller passes
// zero.
const DefaultTTL = 240 * time.Second

// Caller is the XML-RPC transport surface the client needs. The real
// implementation is kolo/xmlrpc's Client; tests substitute a fake.
type Caller interface {
	Call(serviceMethod string, args any, reply any) error
}

// Config describes the advertisement service endpoints. The first
// server is primary; on failure each remaining one is tried in order.
type Config struct {
	Servers []string
}

// Client announces (key, value) pairs to a DHT advertisement service
// and looks existing values up. It is thin glue over XML-RPC: no
// retries beyond the configured server list, no local state.
type Client struct {
	callers []Caller
	urls    []string
}

// NewClient dials the configured advertisement servers.
func NewClient(cfg Config) (*Client, error) {
	if len(cfg.Servers) == 0 {
		return nil, errors.InvalidArgument(errors.PhaseAdvertise, "at least one server URL is required")
	}

	c := &Client{}
	for _, url := range cfg.Servers {
		rpc, err := xmlrpc.NewClient(url, nil)
		if err != nil {
			return nil, errors.New(errors.PhaseAdvertise, errors.KindInvalidArgument).
				Detail("bad server URL %q", url).
				Cause(err).
				Build()
		}
		c.callers = append(c.callers, rpc)
		c.urls = append(c.urls, url)
	}
	return c, nil
}

// newClientWithCallers is the test seam.
func newClientWithCallers(callers []Caller, urls []string) *Client {
	return &Client{callers: callers, urls: urls}
}

// Announce publishes value under key for ttl. A zero ttl means
// DefaultTTL.
func (c *Client) Announce(key, value string, ttl time.Duration) error {
	if key == "" {
		return errors.InvalidArgument(errors.PhaseAdvertise, "key must not be empty")
	}
	if ttl < 0 {
		return errors.InvalidArgument(errors.PhaseAdvertise, "ttl must be non-negative, got %v", ttl)
	}
	if ttl == 0 {
		ttl = DefaultTTL
	}

	args := []any{key, value, int(ttl / time.Second)}
	return c.each("announce", func(caller Caller) error {
		return caller.Call("put", args, nil)
	})
}

// Lookup returns up to max values previously announced under key.
func (c *Client) Lookup(key string, max int) ([]string, error) {
	if key == "" {
		return nil, errors.InvalidArgument(errors.PhaseAdvertise, "key must not be empty")
	}
	if max <= 0 {
		return nil, errors.InvalidArgument(errors.PhaseAdvertise, "max must be positive, got %d", max)
	}

	var values []string
	err := c.each("lookup", func(caller Caller) error {
		values = values[:0]
		return caller.Call("get", []any{key, max}, &values)
	})
	if err != nil {
		return nil, err
	}
	if len(values) > max {
		values = values[:max]
	}
	return values, nil
}

// each runs op against the servers in order until one succeeds.
func (c *Client) each(what string, op func(Caller) error) error {
	var lastErr error
	for i, caller := range c.callers {
		err := op(caller)
		if err == nil {
			return nil
		}
		lastErr = err
		Logger().Warn("advertisement server failed",
			zap.String("op", what),
			zap.String("server", c.urls[i]),
			zap.Error(err))
	}
	return errors.New(errors.PhaseAdvertise, errors.KindTransport).
		Detail("%s failed on all %d servers", what, len(c.callers)).
		Cause(lastErr).
		Build()
}
