// Package listen runs the accept side of the stack: it registers a tuple,
// schedules a non-blocking poll task on the run-loop, and dispatches each
// inbound connection or datagram to a caller callback on a thread pool or
// an ad-hoc goroutine.
//
// The poll task itself never blocks and never panics outward. Callback
// failures are contained: caught, converted to a diagnostic string,
// reported to the error delegate, and for TCP the accepted socket is
// force-closed so it cannot leak. Errors from the delegate are swallowed.
// Any non-would-block poll error tears the listener down (unschedule,
// close, deregister) and notifies the delegate; other listeners are
// unaffected.
package listen
