// Package env holds the environment collaborators the core components
// consume as black boxes: a monotonic clock with process-wide sleep, a
// hostname resolver, and the global event budget that caps ad-hoc callback
// dispatch.
//
// Each collaborator ships a real implementation and a test double
// (FakeClock, StaticResolver) so the timeout and resolution paths can be
// exercised hermetically.
package env
