// Package managed defines the contract between the bridge and the managed
// runtime that hosts it.
//
// The managed runtime owns its objects. The bridge sees them only through
// Env, which is bound to one OS thread, and through global references (Ref)
// that stay valid across threads until deleted:
//
//	VM   ──GetEnv/AttachCurrentThread──▶ Env (per thread)
//	Env  ──NewGlobalRef──▶ Ref ──CallVoidMethod──▶ callback object
//
// Callback objects receive MethodSuccess, MethodFailure and, for streaming
// requests, MethodProgress. Managed strings are UTF-16; byte arrays are pinned
// only for the duration of one native call.
package managed
