// Package socket wraps one raw, non-blocking connection into a socket with
// configurable blocking semantics.
//
// The timeout is tri-state: Forever blocks until data or space is
// available, zero surfaces would-block immediately, and a positive value
// polls at the configured interval until it expires. Receive keeps a FIFO
// buffer of surplus bytes from oversized raw reads; bytes are delivered at
// most once, in order, always from the front.
//
// ReceiveAll and SendAll complete exact-length transfers with an unbounded
// wait: a transport error, including a clean close, ends the transfer with
// a short count rather than an error, so early termination is always
// observable as a shortfall.
package socket
