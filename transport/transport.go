package transport

import (
	"errors"
	"fmt"
	"time"
)

// Handle identifies a connection, listening endpoint or datagram endpoint
// owned by a Transport. Handles are opaque and transport-scoped.
type Handle uint32

// Endpoint is an (address, port) tuple identifying one side of a binding.
type Endpoint struct {
	Address string
	Port    uint16
}

func (e Endpoint) String() string {
	return fmt.Sprintf("%s:%d", e.Address, e.Port)
}

// Datagram is one received message together with its sender.
type Datagram struct {
	Remote  Endpoint
	Payload []byte
}

// Condition sentinels raised by Transport implementations. Callers test
// them with errors.Is; everything else a transport returns is an opaque
// transport error that higher layers never reinterpret.
var (
	// ErrWouldBlock signals a non-blocking operation found no data or
	// capacity currently available.
	ErrWouldBlock = errors.New("operation would block")

	// ErrAlreadyInUse signals the local tuple is held by the underlying
	// transport.
	ErrAlreadyInUse = errors.New("address already in use")

	// ErrDuplicateBinding signals the local tuple is held by this layer.
	ErrDuplicateBinding = errors.New("duplicate binding")

	// ErrCleanupInProgress signals a prior binding at the tuple has not
	// finished being torn down.
	ErrCleanupInProgress = errors.New("cleanup in progress")
)

// IsWouldBlock reports whether err is the would-block condition.
func IsWouldBlock(err error) bool {
	return errors.Is(err, ErrWouldBlock)
}

// IsPortConflict reports whether err is a hard port-conflict condition,
// whichever side of the layer boundary holds the tuple.
func IsPortConflict(err error) bool {
	return errors.Is(err, ErrAlreadyInUse) || errors.Is(err, ErrDuplicateBinding)
}

// IsCleanupInProgress reports whether err is the transient mid-teardown
// condition.
func IsCleanupInProgress(err error) bool {
	return errors.Is(err, ErrCleanupInProgress)
}

// Transport is the raw, non-blocking socket primitive layer this library
// wraps. All calls are non-blocking except Connect, which bounds its own
// wait by the supplied timeout.
type Transport interface {
	// Connect establishes an outbound stream connection from the local
	// tuple to the remote tuple, waiting at most timeout.
	Connect(remoteAddr string, remotePort uint16, localAddr string, localPort uint16, timeout time.Duration) (Handle, error)

	// Send writes as many bytes of p as the transport will currently
	// accept and returns that count. ErrWouldBlock when it accepts none.
	Send(h Handle, p []byte) (int, error)

	// Receive reads up to maxBytes currently pending bytes.
	// ErrWouldBlock when none are pending and the peer is still open.
	Receive(h Handle, maxBytes int) ([]byte, error)

	// Close releases the handle. Safe to call more than once.
	Close(h Handle) error

	// Listen opens a stream listening endpoint at the tuple.
	Listen(addr string, port uint16) (Handle, error)

	// Accept pops one pending inbound connection from a listening
	// endpoint. ErrWouldBlock when none are pending.
	Accept(l Handle) (Endpoint, Handle, error)

	// ListenDatagram opens a datagram receiving endpoint at the tuple.
	ListenDatagram(addr string, port uint16) (Handle, error)

	// SendDatagram transmits one datagram from the local tuple and
	// returns the byte count the transport accepted.
	SendDatagram(remoteAddr string, remotePort uint16, localAddr string, localPort uint16, payload []byte) (int, error)

	// ReceiveDatagram pops one pending datagram from a receiving
	// endpoint. ErrWouldBlock when none are pending.
	ReceiveDatagram(l Handle) (Datagram, error)
}
