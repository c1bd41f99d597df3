package native

import (
	"strings"
	"testing"
)

func TestBuffer_FreeOnce(t *testing.T) {
	var a Allocator
	src := []byte("chunk")
	b := a.Alloc(src)

	src[0] = 'X'
	if string(b.Bytes()) != "chunk" {
		t.Fatal("Alloc must copy its input")
	}
	if a.Live() != 1 {
		t.Fatalf("Live = %d, want 1", a.Live())
	}

	b.Free()
	if a.Live() != 0 || !b.Freed() {
		t.Fatal("buffer not freed")
	}
	if b.Len() != 0 {
		t.Fatalf("Len after free = %d", b.Len())
	}

	defer func() {
		r := recover()
		if r == nil || !strings.Contains(r.(string), "double free") {
			t.Fatalf("second Free: recover = %v", r)
		}
	}()
	b.Free()
}

func TestBuffer_UseAfterFree(t *testing.T) {
	var a Allocator
	b := a.Alloc([]byte{1})
	b.Free()

	defer func() {
		if recover() == nil {
			t.Fatal("Bytes after Free must panic")
		}
	}()
	b.Bytes()
}

func TestMessage(t *testing.T) {
	tests := []struct {
		code int32
		want string
	}{
		{CodeNoSuchData, "not found"},
		{CodeOperationForbidden, "operation forbidden for this client"},
		{99, "native error 99"},
	}
	for _, tt := range tests {
		if got := Message(tt.code); got != tt.want {
			t.Errorf("Message(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestEventKind(t *testing.T) {
	if EventProgress.Terminal() {
		t.Error("progress is not terminal")
	}
	if !EventSuccess.Terminal() || !EventFailure.Terminal() {
		t.Error("success and failure are terminal")
	}
	ev := Failure(CodeNoSuchData)
	if ev.Code != 7 || ev.Message != "not found" {
		t.Fatalf("Failure(7) = %+v", ev)
	}
}

func TestDataKind(t *testing.T) {
	if DataKind(0).Valid() || DataKind(5).Valid() {
		t.Error("out of range kinds must be invalid")
	}
	if DataImmutable.Mutable() || !DataStructured.Mutable() {
		t.Error("mutability")
	}
	id := DataID{Kind: DataStructured, TypeTag: 9}
	if !strings.HasPrefix(id.String(), "structured/") || !strings.HasSuffix(id.String(), "/9") {
		t.Fatalf("String = %q", id.String())
	}
}
