package errors

import (
	stderrors "errors"
	"strconv"
)

// Category is the cross-boundary failure class of an error.
type Category uint8

const (
	CategoryUnknown Category = iota
	// CategoryMarshaling covers bad argument shape, encoding or range.
	CategoryMarshaling
	// CategoryNative covers failures reported by the wrapped library.
	CategoryNative
	// CategoryCancelled covers requests cancelled by the host.
	CategoryCancelled
	// CategoryProtocolViolation covers native contract breaches. Always fatal.
	CategoryProtocolViolation
	// CategoryAttachment covers threads that could not be attached. Always fatal.
	CategoryAttachment
)

func (c Category) String() string {
	switch c {
	case CategoryMarshaling:
		return "marshaling"
	case CategoryNative:
		return "native"
	case CategoryCancelled:
		return "cancelled"
	case CategoryProtocolViolation:
		return "protocol_violation"
	case CategoryAttachment:
		return "attachment"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this category must go to the fatal channel
// instead of the callback error path.
func (c Category) Fatal() bool {
	return c == CategoryProtocolViolation || c == CategoryAttachment
}

// Stable bridge codes. Native codes are positive and passed through
// verbatim; bridge codes are negative so the two never collide.
const (
	CodeInvalidArgument   int32 = -100
	CodeNullArgument      int32 = -101
	CodeInvalidEncoding   int32 = -102
	CodeInvalidLength     int32 = -103
	CodeOverflow          int32 = -104
	CodeFieldMissing      int32 = -105
	CodeTypeMismatch      int32 = -106
	CodeResultDecode      int32 = -107
	CodeCancelled         int32 = -200
	CodeNotLoaded         int32 = -201
	CodeProtocolViolation int32 = -300
	CodeAttachmentFailure int32 = -301
)

var kindCodes = map[Kind]int32{
	KindInvalidArgument:   CodeInvalidArgument,
	KindNullArgument:      CodeNullArgument,
	KindInvalidEncoding:   CodeInvalidEncoding,
	KindInvalidLength:     CodeInvalidLength,
	KindOverflow:          CodeOverflow,
	KindFieldMissing:      CodeFieldMissing,
	KindTypeMismatch:      CodeTypeMismatch,
	KindInvalidData:       CodeInvalidArgument,
	KindCancelled:         CodeCancelled,
	KindNotLoaded:         CodeNotLoaded,
	KindClosed:            CodeNotLoaded,
	KindProtocolViolation: CodeProtocolViolation,
	KindAttachment:        CodeAttachmentFailure,
}

// CategoryOf classifies err. Errors that are not *Error are unknown.
func CategoryOf(err error) Category {
	var e *Error
	if !stderrors.As(err, &e) {
		return CategoryUnknown
	}
	switch e.Kind {
	case KindNative:
		return CategoryNative
	case KindCancelled:
		return CategoryCancelled
	case KindProtocolViolation:
		return CategoryProtocolViolation
	case KindAttachment:
		return CategoryAttachment
	case KindNotLoaded, KindClosed:
		return CategoryNative
	default:
		return CategoryMarshaling
	}
}

// CodeOf returns the stable code for err.
func CodeOf(err error) int32 {
	var e *Error
	if !stderrors.As(err, &e) {
		return CodeInvalidArgument
	}
	if e.Kind == KindNative {
		return e.Code
	}
	if e.Phase == PhaseLift && e.Kind != KindProtocolViolation {
		return CodeResultDecode
	}
	if code, ok := kindCodes[e.Kind]; ok {
		return code
	}
	return CodeInvalidArgument
}

// Envelope is the (code, description) pair handed to the managed runtime.
type Envelope struct {
	Message string
	Code    int32
}

func (e Envelope) String() string {
	return strconv.Itoa(int(e.Code)) + ": " + e.Message
}

// EnvelopeOf converts err into an Envelope. Native errors keep the library's
// code and message unchanged.
func EnvelopeOf(err error) Envelope {
	var e *Error
	if stderrors.As(err, &e) && e.Kind == KindNative {
		return Envelope{Code: e.Code, Message: e.Detail}
	}
	return Envelope{Code: CodeOf(err), Message: err.Error()}
}
