// Package native defines the contract of the asynchronous storage client the
// bridge wraps: request and result types, error codes, event delivery through
// trampolines, and ownership of native memory.
//
// # Ownership
//
// Slices passed into a Client belong to the caller and are only valid for the
// duration of the submitting call. Buffers handed out in events belong to the
// receiver, which frees them exactly once:
//
//	rec := ev.Value.(native.Record)
//	content := append([]byte(nil), rec.Content.Bytes()...)
//	rec.Content.Free()
package native
