package socket

import (
	"runtime"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/wippyai/sandnet/env"
	"github.com/wippyai/sandnet/errors"
	"github.com/wippyai/sandnet/transport"
)

// Forever configures a direction to block indefinitely. A zero timeout
// never blocks; a positive timeout bounds the wait.
const Forever time.Duration = -1

const (
	// MinReadChunk is the smallest raw read issued against the
	// transport, amortizing per-call overhead; surplus bytes are
	// retained in the receive buffer.
	MinReadChunk = 4096

	// recvRingSize bounds retained surplus. A raw read never returns
	// more than max(n, MinReadChunk) bytes and the ring is drained
	// before the next raw read, so surplus stays under MinReadChunk.
	recvRingSize = 64 * 1024

	// DefaultPollInterval is how often a blocked direction re-attempts
	// the raw operation.
	DefaultPollInterval = 100 * time.Millisecond
)

// Socket wraps one established or accepted raw connection with blocking
// semantics, internal receive buffering and timeout-bounded operations.
// The receive and send paths are each serialized by their own lock; the
// two directions never block each other.
type Socket struct {
	tr     transport.Transport
	handle transport.Handle
	local  transport.Endpoint
	remote transport.Endpoint
	clock  env.Clock

	recvMu sync.Mutex
	sendMu sync.Mutex
	buf    *ringbuffer.RingBuffer

	stateMu      sync.Mutex
	timeout      time.Duration
	pollInterval time.Duration
	closed       bool
}

// New wraps an established raw connection. A nil clock means the system
// clock. The wrapper owns the handle from here on; a finalizer closes it
// if the caller forgets, but destruction timing is not guaranteed and
// callers must still Close explicitly.
func New(tr transport.Transport, handle transport.Handle, local, remote transport.Endpoint, clock env.Clock) *Socket {
	if clock == nil {
		clock = env.SystemClock{}
	}
	s := &Socket{
		tr:           tr,
		handle:       handle,
		local:        local,
		remote:       remote,
		clock:        clock,
		buf:          ringbuffer.New(recvRingSize),
		timeout:      Forever,
		pollInterval: DefaultPollInterval,
	}
	runtime.SetFinalizer(s, (*Socket).Close)
	return s
}

// LocalEndpoint returns the connection's local (address, port) tuple.
func (s *Socket) LocalEndpoint() transport.Endpoint {
	return s.local
}

// RemoteEndpoint returns the connection's remote (address, port) tuple.
func (s *Socket) RemoteEndpoint() transport.Endpoint {
	return s.remote
}

// SetTimeout configures both directions: Forever blocks indefinitely,
// zero never blocks, positive bounds the wait. Other negative values are
// rejected.
func (s *Socket) SetTimeout(d time.Duration) error {
	if d < 0 && d != Forever {
		return errors.InvalidArgument(errors.PhaseValidate, "timeout must be Forever, zero or positive, got %v", d)
	}
	s.stateMu.Lock()
	s.timeout = d
	s.stateMu.Unlock()
	return nil
}

// Timeout returns the configured timeout.
func (s *Socket) Timeout() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.timeout
}

// SetPollInterval configures how often a blocked direction re-attempts
// the raw operation. Must be strictly positive.
func (s *Socket) SetPollInterval(d time.Duration) error {
	if d <= 0 {
		return errors.InvalidArgument(errors.PhaseValidate, "poll interval must be positive, got %v", d)
	}
	s.stateMu.Lock()
	s.pollInterval = d
	s.stateMu.Unlock()
	return nil
}

// PollInterval returns the configured poll interval.
func (s *Socket) PollInterval() time.Duration {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.pollInterval
}

// Close releases the raw handle. Safe to call multiple times.
func (s *Socket) Close() error {
	s.stateMu.Lock()
	if s.closed {
		s.stateMu.Unlock()
		return nil
	}
	s.closed = true
	s.stateMu.Unlock()

	runtime.SetFinalizer(s, nil)
	return s.tr.Close(s.handle)
}

func (s *Socket) isClosed() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.closed
}

// Receive returns up to n bytes. Buffered bytes are delivered first and
// a short read against the buffer is legitimate; only an empty buffer
// triggers raw I/O. With a zero timeout a would-block condition is
// surfaced immediately; otherwise the call polls until data arrives or
// the timeout expires.
func (s *Socket) Receive(n int) ([]byte, error) {
	if n <= 0 {
		return nil, errors.InvalidArgument(errors.PhaseReceive, "receive size must be positive, got %d", n)
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.isClosed() {
		return nil, errors.Closed(errors.PhaseReceive)
	}

	return s.receiveLocked(n, s.Timeout())
}

// receiveLocked implements the buffered poll-read. Caller holds recvMu.
func (s *Socket) receiveLocked(n int, timeout time.Duration) ([]byte, error) {
	if s.buf.Length() > 0 {
		return s.drainBuffer(n), nil
	}

	chunk := n
	if chunk < MinReadChunk {
		chunk = MinReadChunk
	}

	var deadline time.Time
	if timeout > 0 {
		deadline = s.clock.Now().Add(timeout)
	}

	for {
		raw, err := s.tr.Receive(s.handle, chunk)
		if err == nil {
			if len(raw) > n {
				_, _ = s.buf.Write(raw[n:])
				raw = raw[:n]
			}
			return raw, nil
		}
		if !transport.IsWouldBlock(err) {
			return nil, errors.Transport(errors.PhaseReceive, err)
		}

		switch {
		case timeout == 0:
			return nil, errors.WouldBlock(errors.PhaseReceive)
		case timeout > 0 && !s.clock.Now().Before(deadline):
			return nil, errors.Timeout(errors.PhaseReceive, "no data within %v", timeout)
		}
		s.clock.Sleep(s.PollInterval())
	}
}

// drainBuffer pops up to n bytes from the front of the receive buffer.
func (s *Socket) drainBuffer(n int) []byte {
	if l := s.buf.Length(); l < n {
		n = l
	}
	out := make([]byte, n)
	_, _ = s.buf.Read(out)
	return out
}

// Send writes data and returns the byte count the transport accepted,
// which may be short; completing a partial transfer is SendAll's job.
// Empty input returns zero without touching the transport.
func (s *Socket) Send(data []byte) (int, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.isClosed() {
		return 0, errors.Closed(errors.PhaseSend)
	}
	if len(data) == 0 {
		return 0, nil
	}

	return s.sendLocked(data, s.Timeout())
}

// sendLocked implements the poll-write. Caller holds sendMu.
func (s *Socket) sendLocked(data []byte, timeout time.Duration) (int, error) {
	var deadline time.Time
	if timeout > 0 {
		deadline = s.clock.Now().Add(timeout)
	}

	for {
		n, err := s.tr.Send(s.handle, data)
		if err == nil {
			return n, nil
		}
		if !transport.IsWouldBlock(err) {
			return 0, errors.Transport(errors.PhaseSend, err)
		}

		switch {
		case timeout == 0:
			return 0, errors.WouldBlock(errors.PhaseSend)
		case timeout > 0 && !s.clock.Now().Before(deadline):
			return 0, errors.Timeout(errors.PhaseSend, "no capacity within %v", timeout)
		}
		s.clock.Sleep(s.PollInterval())
	}
}

// ReceiveAll accumulates exactly n bytes, waiting as long as it takes
// and ignoring the configured timeout. Any transport error, including a
// clean close, terminates the accumulation: the short result is
// returned with a nil error, and the shortfall itself is the signal.
func (s *Socket) ReceiveAll(n int) ([]byte, error) {
	if n < 0 {
		return nil, errors.InvalidArgument(errors.PhaseReceive, "receive size must be non-negative, got %d", n)
	}

	s.recvMu.Lock()
	defer s.recvMu.Unlock()

	if s.isClosed() {
		return nil, errors.Closed(errors.PhaseReceive)
	}

	got := make([]byte, 0, n)
	for len(got) < n {
		part, err := s.receiveLocked(n-len(got), Forever)
		if err != nil {
			break
		}
		got = append(got, part...)
	}
	return got, nil
}

// SendAll keeps sending until all of data is accepted or the transport
// errors, waiting as long as it takes and ignoring the configured
// timeout. The count actually sent is returned, possibly short, with a
// nil error.
func (s *Socket) SendAll(data []byte) (int, error) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.isClosed() {
		return 0, errors.Closed(errors.PhaseSend)
	}

	sent := 0
	for sent < len(data) {
		n, err := s.sendLocked(data[sent:], Forever)
		if err != nil {
			break
		}
		sent += n
	}
	return sent, nil
}
