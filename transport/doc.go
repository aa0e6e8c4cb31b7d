// Package transport defines the raw socket primitive contract that sandnet
// wraps, and provides Memory, a process-local loopback implementation of it.
//
// The contract is deliberately minimal and non-blocking: every operation
// either completes immediately or raises ErrWouldBlock. Blocking semantics,
// buffering and timeouts are layered on top by the socket package; retry and
// port-rotation policy by the dial package. Condition sentinels
// (ErrWouldBlock, ErrAlreadyInUse, ErrDuplicateBinding, ErrCleanupInProgress)
// are the only errors the upper layers interpret; anything else a transport
// returns passes through untouched.
//
// Memory exists so the whole stack can run hermetically: tests and the demo
// CLI speak real stream and datagram semantics, including partial writes,
// accept backlogs and a post-close cleanup window, without touching the
// host network.
package transport
