// Package sandnet is a socket abstraction layer for sandboxed
// networking environments where the raw transport is non-blocking and
// local ports come from a narrow, contended range.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct
// responsibilities:
//
//	sandnet/             Root package wiring a full stack from configuration
//	├── registry/        Port registry: the owned (address, port) namespace
//	├── dial/            TCP connect with port rotation, UDP message send
//	├── socket/          Buffered, timeout-aware wrapper over raw handles
//	├── listen/          Accept-poll listener manager with error containment
//	├── transport/       Raw non-blocking transport interface + in-memory loopback
//	├── sched/           Run-loop scheduler and worker pool
//	├── env/             Clock, resolver, and event budget collaborators
//	├── advert/          XML-RPC advertisement client for peer discovery
//	├── errors/          Structured error types for debugging
//	└── config/          YAML configuration
//
// # Quick Start
//
// Wire a stack and connect a socket over the in-memory transport:
//
//	stack, err := sandnet.New(config.Default(), sandnet.Options{})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer stack.Shutdown()
//
//	stop, err := stack.Listeners.ListenTCP("127.0.0.1", 63100,
//	    func(remote transport.Endpoint, conn *socket.Socket) {
//	        defer conn.Close()
//	        data, _ := conn.Receive(64)
//	        conn.Send(data)
//	    }, listen.Options{})
//	defer stop(true)
//
//	conn, err := stack.Dialer.Connect("127.0.0.1", 63100, dial.Options{})
//
// # Port Rotation
//
// When the caller does not pin a local port, Connect draws candidate
// ports from the registry and rotates through them on conflict,
// backing off when the transport reports a tuple still cooling down
// from a previous connection. A pinned port never rotates; conflicts
// on it surface to the caller.
//
// # Error Containment
//
// Listener callbacks run contained: a panicking callback is caught,
// its connection force-closed, and the failure reported through the
// listener's error delegate. A panicking delegate is swallowed. The
// scheduler never sees either.
//
// # Thread Safety
//
// Registry, Dialer, and Manager are safe for concurrent use. A Socket
// serializes each direction independently; concurrent Receive calls
// (or concurrent Send calls) on the same socket are serialized, and
// a Send never blocks a Receive.
package sandnet
