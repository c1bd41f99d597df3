package hostvm

import (
	"unicode/utf16"

	"github.com/Fraser999/safe-core/managed"
)

// String is UTF-16 text.
type String []uint16

// NewString encodes s as UTF-16. Invalid UTF-8 in s becomes U+FFFD, so
// callers holding untrusted text check it with utf8.ValidString first.
func NewString(s string) String {
	return String(utf16.Encode([]rune(s)))
}

func (s String) UTF16() []uint16 { return s }

func (s String) String() string { return string(utf16.Decode(s)) }

// Bytes is a byte array owned by the host. Pinning is a no-op because host
// memory does not move.
type Bytes []byte

func (b Bytes) Len() int     { return len(b) }
func (b Bytes) Pin() []byte  { return b }
func (b Bytes) Unpin()       {}
func (b Bytes) Copy() []byte { return append([]byte(nil), b...) }

// Object is an immutable host object.
type Object struct {
	fields map[string]managed.Value
	class  string
}

// NewObject creates an object. The fields map is retained.
func NewObject(class string, fields map[string]managed.Value) *Object {
	if fields == nil {
		fields = map[string]managed.Value{}
	}
	return &Object{class: class, fields: fields}
}

func (o *Object) Class() string { return o.class }

func (o *Object) Field(name string) (managed.Value, bool) {
	v, ok := o.fields[name]
	return v, ok
}
