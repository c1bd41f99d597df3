package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:       PhaseLower,
				Kind:        KindTypeMismatch,
				Path:        []string{"data", "owners", "0"},
				ManagedType: "String",
				NativeType:  "[]byte",
				Detail:      "cannot convert",
			},
			contains: []string{"[lower]", "type_mismatch", "data.owners.0", "String", "[]byte", "cannot convert"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseLift,
				Kind:  KindInvalidData,
			},
			contains: []string{"[lift]", "invalid_data"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseAttach,
				Kind:   KindAttachment,
				Detail: "attach thread 12",
				Cause:  errors.New("out of memory"),
			},
			contains: []string{"[attach]", "attachment", "thread 12", "caused by", "out of memory"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLower,
		Kind:  KindInvalidData,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(errors.Unwrap(err), cause) {
		t.Error("errors.Unwrap did not return cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseLower,
		Kind:  KindOverflow,
		Path:  []string{"chunk_size"},
	}

	if !err.Is(&Error{Phase: PhaseLower, Kind: KindOverflow}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLift, Kind: KindOverflow}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseLower, Kind: KindInvalidLength}) {
		t.Error("Is should not match different kind")
	}

	wrapped := fmt.Errorf("submit get: %w", err)
	if !errors.Is(wrapped, &Error{Phase: PhaseLower, Kind: KindOverflow}) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseLower, KindTypeMismatch).
		Path("data", "version").
		ManagedType("String").
		NativeType("u64").
		Value(42).
		Code(3).
		Cause(cause).
		Detail("expected %s, got %s", "long", "String").
		Build()

	if err.Phase != PhaseLower || err.Kind != KindTypeMismatch {
		t.Errorf("Phase/Kind = %v/%v", err.Phase, err.Kind)
	}
	if len(err.Path) != 2 || err.Path[0] != "data" || err.Path[1] != "version" {
		t.Errorf("Path = %v, want [data version]", err.Path)
	}
	if err.ManagedType != "String" || err.NativeType != "u64" {
		t.Errorf("ManagedType=%v NativeType=%v", err.ManagedType, err.NativeType)
	}
	if err.Value != 42 || err.Code != 3 {
		t.Errorf("Value=%v Code=%v", err.Value, err.Code)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected long, got String" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("InvalidUTF16", func(t *testing.T) {
		err := InvalidUTF16(PhaseLower, []string{"locator"}, 3, 0xD800)
		if err.Kind != KindInvalidEncoding {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Detail, "0xd800") || !strings.Contains(err.Detail, "index 3") {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("InvalidUTF8 truncates preview", func(t *testing.T) {
		data := make([]byte, 100)
		err := InvalidUTF8(PhaseLift, nil, data)
		if len(err.Detail) > 100 {
			t.Errorf("preview not truncated: %q", err.Detail)
		}
	})

	t.Run("InvalidLength non-empty", func(t *testing.T) {
		err := InvalidLength(PhaseLower, []string{"name"}, 0, -1)
		if err.Detail != "buffer must not be empty" {
			t.Errorf("Detail = %q", err.Detail)
		}
	})

	t.Run("InvalidLength exact", func(t *testing.T) {
		err := InvalidLength(PhaseLower, []string{"name"}, 31, 32)
		if err.Detail != "length 31, want 32" || err.Value != 31 {
			t.Errorf("Detail = %q Value = %v", err.Detail, err.Value)
		}
	})

	t.Run("Overflow", func(t *testing.T) {
		err := Overflow(PhaseLower, []string{"chunk_size"}, int64(1)<<40, "u32")
		if err.Kind != KindOverflow || err.NativeType != "u32" {
			t.Errorf("Kind=%v NativeType=%v", err.Kind, err.NativeType)
		}
	})

	t.Run("Native", func(t *testing.T) {
		err := Native(7, "no such data")
		if err.Code != 7 || err.Detail != "no such data" {
			t.Errorf("Code=%d Detail=%q", err.Code, err.Detail)
		}
	})

	t.Run("ProtocolViolation", func(t *testing.T) {
		err := ProtocolViolation("second terminal event for context %#x", 0x10)
		if err.Kind != KindProtocolViolation || !strings.Contains(err.Detail, "0x10") {
			t.Errorf("err = %v", err)
		}
	})

	t.Run("AttachmentFailed", func(t *testing.T) {
		cause := errors.New("vm shutting down")
		err := AttachmentFailed(99, cause)
		if !errors.Is(err, cause) {
			t.Error("cause not wrapped")
		}
	})
}
