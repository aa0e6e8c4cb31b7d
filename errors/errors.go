package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseValidate  Phase = "validate"  // argument validation
	PhaseResolve   Phase = "resolve"   // hostname resolution
	PhaseRegistry  Phase = "registry"  // port registry operations
	PhaseConnect   Phase = "connect"   // outbound TCP establishment
	PhaseSend      Phase = "send"      // outbound data transfer
	PhaseReceive   Phase = "receive"   // inbound data transfer
	PhaseListen    Phase = "listen"    // listener lifecycle
	PhaseAdvertise Phase = "advertise" // DHT advertisement
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindResourceExhausted Kind = "resource_exhausted"
	KindTimeout           Kind = "timeout"
	KindCleanupInProgress Kind = "cleanup_in_progress"
	KindAlreadyInUse      Kind = "already_in_use"
	KindDuplicateBinding  Kind = "duplicate_binding"
	KindWouldBlock        Kind = "would_block"
	KindTransport         Kind = "transport"
	KindCallback          Kind = "callback"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
	Tuple  string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Tuple != "" {
		b.WriteString(" at ")
		b.WriteString(e.Tuple)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error. A target with an empty
// Phase matches any phase, so sentinel comparisons can be kind-only.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		if t.Phase != "" && e.Phase != t.Phase {
			return false
		}
		return e.Kind == t.Kind
	}
	return false
}

// IsKind reports whether err or anything in its chain is a structured
// error of the given kind.
func IsKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Tuple sets the (address, port) tuple the error concerns
func (b *Builder) Tuple(address string, port uint16) *Builder {
	b.err.Tuple = fmt.Sprintf("%s:%d", address, port)
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// InvalidArgument creates an invalid argument error
func InvalidArgument(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// ResourceExhausted creates an error for an empty port candidate set
func ResourceExhausted(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindResourceExhausted,
		Detail: detail,
	}
}

// Timeout creates a timeout error
func Timeout(phase Phase, detail string, args ...any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindTimeout,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// CleanupInProgress creates an error for a tuple still mid-teardown
func CleanupInProgress(phase Phase, address string, port uint16) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCleanupInProgress,
		Tuple:  fmt.Sprintf("%s:%d", address, port),
		Detail: "local tuple has not finished being torn down",
	}
}

// AlreadyInUse creates a hard port-conflict error
func AlreadyInUse(phase Phase, address string, port uint16) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindAlreadyInUse,
		Tuple: fmt.Sprintf("%s:%d", address, port),
	}
}

// DuplicateBinding creates an error for a tuple already bound by this layer
func DuplicateBinding(phase Phase, address string, port uint16) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindDuplicateBinding,
		Tuple: fmt.Sprintf("%s:%d", address, port),
	}
}

// WouldBlock creates an error for a non-blocking call with nothing pending
func WouldBlock(phase Phase) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindWouldBlock,
	}
}

// Closed creates an error for an operation on a closed socket
func Closed(phase Phase) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindClosed,
		Detail: "socket is closed",
	}
}

// Transport wraps an underlying transport error without reinterpreting it
func Transport(phase Phase, cause error) *Error {
	return &Error{
		Phase: phase,
		Kind:  KindTransport,
		Cause: cause,
	}
}

// Callback creates an error describing a recovered listener callback failure
func Callback(phase Phase, tuple string, recovered any) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindCallback,
		Tuple:  tuple,
		Detail: fmt.Sprintf("callback panicked: %v", recovered),
		Value:  recovered,
	}
}
