package simvm

import (
	"sync"
	"sync/atomic"
	"unicode/utf16"

	"github.com/Fraser999/safe-core/managed"
)

// String is a managed string held as raw UTF-16 code units. It may hold
// unpaired surrogates, which a real runtime allows.
type String []uint16

// NewString encodes s as UTF-16.
func NewString(s string) String {
	return String(utf16.Encode([]rune(s)))
}

func (s String) UTF16() []uint16 { return s }

// GoString decodes a managed string for assertions. Unpaired surrogates
// become U+FFFD.
func GoString(s managed.String) string {
	if s == nil {
		return ""
	}
	return string(utf16.Decode(s.UTF16()))
}

// Array is a managed byte array that counts outstanding pins.
type Array struct {
	data []byte
	pins atomic.Int32
}

// NewArray copies b into a managed array.
func NewArray(b []byte) *Array {
	return &Array{data: append([]byte{}, b...)}
}

func (a *Array) Len() int { return len(a.data) }

func (a *Array) Pin() []byte {
	a.pins.Add(1)
	return a.data
}

func (a *Array) Unpin() {
	if a.pins.Add(-1) < 0 {
		panic("simvm: unbalanced Unpin")
	}
}

// Pinned returns the number of outstanding pins.
func (a *Array) Pinned() int32 { return a.pins.Load() }

// Bytes returns a copy of the array contents.
func (a *Array) Bytes() []byte { return append([]byte{}, a.data...) }

// Fill overwrites every byte of the array.
func (a *Array) Fill(v byte) {
	for i := range a.data {
		a.data[i] = v
	}
}

// Object is a managed object with a class and named fields.
type Object struct {
	fields map[string]managed.Value
	class  string
	mu     sync.RWMutex
}

// NewObject creates an object. The fields map is copied.
func NewObject(class string, fields map[string]managed.Value) *Object {
	o := &Object{class: class, fields: make(map[string]managed.Value, len(fields))}
	for k, v := range fields {
		o.fields[k] = v
	}
	return o
}

func (o *Object) Class() string { return o.class }

func (o *Object) Field(name string) (managed.Value, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.fields[name]
	return v, ok
}

// Set assigns a field.
func (o *Object) Set(name string, v managed.Value) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fields[name] = v
}

// Delete removes a field.
func (o *Object) Delete(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.fields, name)
}
