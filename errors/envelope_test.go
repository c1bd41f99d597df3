package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int32
	}{
		{"null", NullArgument(PhaseLower, nil, "byte[]"), CodeNullArgument},
		{"encoding", InvalidUTF16(PhaseLower, nil, 0, 0xDC00), CodeInvalidEncoding},
		{"length", InvalidLength(PhaseLower, nil, 0, -1), CodeInvalidLength},
		{"overflow", Overflow(PhaseLower, nil, -1, "u32"), CodeOverflow},
		{"missing", FieldMissing(PhaseLower, nil, "name"), CodeFieldMissing},
		{"mismatch", TypeMismatch(PhaseLower, nil, "String", "u64"), CodeTypeMismatch},
		{"native passthrough", Native(7, "not found"), 7},
		{"cancelled", Cancelled("get"), CodeCancelled},
		{"not loaded", NotLoaded(), CodeNotLoaded},
		{"protocol", ProtocolViolation("double delivery"), CodeProtocolViolation},
		{"attachment", AttachmentFailed(1, nil), CodeAttachmentFailure},
		{"lift failure", InvalidData(PhaseLift, nil, "truncated listing"), CodeResultDecode},
		{"wrapped", fmt.Errorf("put: %w", Overflow(PhaseLower, nil, 1, "u8")), CodeOverflow},
		{"foreign", errors.New("plain"), CodeInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		err   error
		want  Category
		fatal bool
	}{
		{InvalidLength(PhaseLower, nil, 0, -1), CategoryMarshaling, false},
		{Native(7, "not found"), CategoryNative, false},
		{Cancelled("get"), CategoryCancelled, false},
		{ProtocolViolation("x"), CategoryProtocolViolation, true},
		{AttachmentFailed(1, nil), CategoryAttachment, true},
		{errors.New("plain"), CategoryUnknown, false},
	}

	for _, tt := range tests {
		t.Run(tt.want.String(), func(t *testing.T) {
			got := CategoryOf(tt.err)
			if got != tt.want {
				t.Errorf("CategoryOf() = %v, want %v", got, tt.want)
			}
			if got.Fatal() != tt.fatal {
				t.Errorf("Fatal() = %v, want %v", got.Fatal(), tt.fatal)
			}
		})
	}
}

func TestEnvelopeOf(t *testing.T) {
	env := EnvelopeOf(Native(7, "no such data"))
	if env.Code != 7 || env.Message != "no such data" {
		t.Errorf("native envelope = %+v", env)
	}

	err := InvalidLength(PhaseLower, []string{"name"}, 0, -1)
	env = EnvelopeOf(err)
	if env.Code != CodeInvalidLength {
		t.Errorf("Code = %d, want %d", env.Code, CodeInvalidLength)
	}
	if env.Message != err.Error() {
		t.Errorf("Message = %q, want %q", env.Message, err.Error())
	}
	if env.String() != "-103: "+err.Error() {
		t.Errorf("String() = %q", env.String())
	}
}
