// Package bridge exposes an asynchronous native storage client to a managed
// runtime.
//
// Each entry point takes managed arguments and a callback object, and
// returns immediately:
//
//	b, err := bridge.Load(bridge.Options{VM: vm, Client: client})
//	ctx := b.Get(env, id, cb) // cb.onSuccess(Data) or cb.onFailure(code, message)
//	...
//	b.Cancel(ctx)
//
// The returned context identifies the request for Cancel. It is 0 when the
// request failed before reaching the native client; the failure has already
// been delivered to the callback on the calling thread by then.
//
// # Error Codes
//
// onFailure receives native error codes (positive) unchanged. Errors raised
// by the bridge itself use negative codes from package errors: argument
// errors from -100, cancellation and lifecycle from -200, and native
// misbehaviour from -300.
//
// # Threads
//
// Results usually arrive on native worker threads, which the bridge attaches
// to the runtime for the duration of each callback, or permanently under the
// Persistent policy. When the native client completes a request before the
// submitting call returns, the callback runs on the caller's own thread.
//
// # Lifecycle
//
// Load installs a process-wide Bridge returned by Default. Unload delivers a
// cancellation error to every outstanding request and releases its
// references; events that arrive afterwards are dropped. Close and Unload
// must not be called from inside a callback.
package bridge
