package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in the bridge the error occurred
type Phase string

const (
	PhaseLower    Phase = "lower"    // managed to native
	PhaseLift     Phase = "lift"     // native to managed
	PhaseSubmit   Phase = "submit"   // native submission
	PhaseDispatch Phase = "dispatch" // trampoline delivery
	PhaseAttach   Phase = "attach"   // thread attachment
	PhaseRegistry Phase = "registry" // handle registry
	PhaseNative   Phase = "native"   // reported by the native library
	PhaseLoad     Phase = "load"     // bridge lifecycle
	PhaseConfig   Phase = "config"   // configuration
)

// Kind categorizes the error
type Kind string

const (
	KindInvalidArgument   Kind = "invalid_argument"
	KindNullArgument      Kind = "null_argument"
	KindInvalidEncoding   Kind = "invalid_encoding"
	KindInvalidLength     Kind = "invalid_length"
	KindOverflow          Kind = "overflow"
	KindFieldMissing      Kind = "field_missing"
	KindTypeMismatch      Kind = "type_mismatch"
	KindInvalidData       Kind = "invalid_data"
	KindNative            Kind = "native"
	KindCancelled         Kind = "cancelled"
	KindNotLoaded         Kind = "not_loaded"
	KindProtocolViolation Kind = "protocol_violation"
	KindAttachment        Kind = "attachment"
	KindClosed            Kind = "closed"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value       any
	Cause       error
	Phase       Phase
	Kind        Kind
	ManagedType string
	NativeType  string
	Detail      string
	Path        []string
	// Code is set for native errors and carries the library's own code.
	Code int32
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	if e.ManagedType != "" || e.NativeType != "" {
		b.WriteString(": ")
		if e.ManagedType != "" && e.NativeType != "" {
			b.WriteString("managed type ")
			b.WriteString(e.ManagedType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		} else if e.ManagedType != "" {
			b.WriteString("managed type ")
			b.WriteString(e.ManagedType)
		} else {
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if e.ManagedType != "" || e.NativeType != "" {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
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

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// ManagedType sets the managed-runtime type name
func (b *Builder) ManagedType(t string) *Builder {
	b.err.ManagedType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
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

// Code sets the native error code
func (b *Builder) Code(code int32) *Builder {
	b.err.Code = code
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

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, managedType, nativeType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindTypeMismatch,
		Path:        path,
		ManagedType: managedType,
		NativeType:  nativeType,
	}
}

// InvalidUTF16 creates an invalid encoding error for a managed string
// containing an unpaired surrogate at index.
func InvalidUTF16(phase Phase, path []string, index int, unit uint16) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEncoding,
		Path:   path,
		Detail: fmt.Sprintf("unpaired surrogate 0x%04x at index %d", unit, index),
		Value:  unit,
	}
}

// InvalidUTF8 creates an invalid encoding error for native text
func InvalidUTF8(phase Phase, path []string, data []byte) *Error {
	preview := data
	if len(preview) > 32 {
		preview = preview[:32]
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidEncoding,
		Path:   path,
		Detail: fmt.Sprintf("invalid UTF-8 sequence: %x", preview),
	}
}

// NullArgument creates a null argument error
func NullArgument(phase Phase, path []string, managedType string) *Error {
	return &Error{
		Phase:       phase,
		Kind:        KindNullArgument,
		Path:        path,
		ManagedType: managedType,
		Detail:      "null reference",
	}
}

// InvalidLength creates a buffer length error. want < 0 means "non-empty".
func InvalidLength(phase Phase, path []string, got, want int) *Error {
	detail := fmt.Sprintf("length %d, want %d", got, want)
	if want < 0 {
		detail = "buffer must not be empty"
	}
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidLength,
		Path:   path,
		Detail: detail,
		Value:  got,
	}
}

// FieldMissing creates a missing field error
func FieldMissing(phase Phase, path []string, fieldName string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindFieldMissing,
		Path:   path,
		Detail: fmt.Sprintf("required field %q not found", fieldName),
	}
}

// Overflow creates an overflow error
func Overflow(phase Phase, path []string, value any, targetType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindOverflow,
		Path:       path,
		NativeType: targetType,
		Detail:     fmt.Sprintf("value %v overflows %s", value, targetType),
		Value:      value,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, path []string, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Path:   path,
		Detail: detail,
	}
}

// Native wraps a failure reported by the native library. Code and message
// are carried verbatim.
func Native(code int32, message string) *Error {
	return &Error{
		Phase:  PhaseNative,
		Kind:   KindNative,
		Code:   code,
		Detail: message,
	}
}

// Cancelled creates the error delivered when a request is cancelled.
func Cancelled(op string) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindCancelled,
		Detail: fmt.Sprintf("%s cancelled", op),
	}
}

// NotLoaded creates the error reported when no bridge instance is loaded.
func NotLoaded() *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindNotLoaded,
		Detail: "bridge not loaded",
	}
}

// ProtocolViolation creates an error for a native contract breach.
func ProtocolViolation(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseDispatch,
		Kind:   KindProtocolViolation,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// AttachmentFailed creates an error for a thread that could not be attached.
func AttachmentFailed(tid uint64, cause error) *Error {
	return &Error{
		Phase:  PhaseAttach,
		Kind:   KindAttachment,
		Detail: fmt.Sprintf("attach thread %d", tid),
		Value:  tid,
		Cause:  cause,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid argument error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidArgument,
		Detail: detail,
	}
}
