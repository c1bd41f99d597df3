// Package errors provides structured error types for the safe-core bridge.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type includes rich context: field path, managed/native type names, the
// native error code, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseLower, errors.KindTypeMismatch).
//		Path("data", "version").
//		ManagedType("String").
//		NativeType("u64").
//		Detail("expected long").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.InvalidLength(errors.PhaseLower, path, 0, -1)
//	err := errors.Native(7, "no such data")
//
// # Envelopes
//
// Every error that crosses into the managed runtime is reduced to an Envelope
// (code, message). Native codes are positive and passed through verbatim; bridge
// codes are negative and stable per Kind:
//
//	-100 invalid argument     -104 overflow          -200 cancelled
//	-101 null argument        -105 field missing     -201 not loaded
//	-102 invalid encoding     -106 type mismatch     -300 protocol violation
//	-103 invalid length       -107 result decode     -301 attachment failure
//
// CategoryOf splits errors into the recoverable classes (marshaling, native,
// cancelled), which are delivered through the callback error path, and the fatal
// ones (protocol violation, attachment), which go to the runtime's fatal channel.
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
