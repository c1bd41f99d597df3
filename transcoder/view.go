package transcoder

import "github.com/Fraser999/safe-core/managed"

// View is a borrowed window onto a managed byte array. It is valid until the
// Lowerer that created it is released and must never be retained by native
// code past the submitting call.
type View struct {
	arr  managed.ByteArray
	data []byte
}

// Bytes returns the borrowed storage.
func (v View) Bytes() []byte { return v.data }

// Len returns the view length.
func (v View) Len() int { return len(v.data) }

// Copy returns an owned copy of the view.
func (v View) Copy() []byte {
	return append([]byte(nil), v.data...)
}
