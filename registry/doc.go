// Package registry tracks which local (address, port) tuples this layer
// currently holds, per protocol, and computes the candidate ports the dial
// package rotates through.
//
// The registry is plain shared state with a mutex, created once and injected
// into the components that consult it. It never talks to the transport: a
// port absent from the registry can still be held by the underlying
// transport, which is why the dial package treats conflict errors from the
// transport as a second, independent rejection layer.
package registry
