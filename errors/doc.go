// Package errors provides structured error types for the sandnet library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes the affected (address, port) tuple and a
// cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseConnect, errors.KindAlreadyInUse).
//		Tuple("10.0.0.1", 63100).
//		Detail("local port held by another connection").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.Timeout(errors.PhaseReceive, "no data within %v", d)
//	err := errors.AlreadyInUse(errors.PhaseConnect, addr, port)
//
// All errors implement the standard error interface and support errors.Is/As.
// Kind-only sentinels match regardless of phase, so call sites can branch on
// the taxonomy without caring which component produced the error.
package errors
