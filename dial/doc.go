// Package dial establishes outbound connections and sends datagrams over
// the raw transport, handling the resource contention of a shared local
// port namespace.
//
// In auto-port mode the dialer draws its candidate ports from the registry
// and rotates strictly ascending through them when the transport rejects a
// tuple. Connect additionally runs under a hard wall-clock deadline and
// distinguishes permanent conflicts (give up, or rotate) from a transport
// still tearing a tuple down (back off briefly, then retry) so transient
// cleanup races do not burn the whole deadline on one port. SendMessage is
// the connectionless analog: one attempt per candidate, no deadline loop.
package dial
