// Package dispatch delivers native completion events to managed callbacks.
//
// Every outstanding request is a Call pinned in the registry. The registry
// handle doubles as the native request context, so the trampoline can find
// the Call again from whatever thread the native library completes on:
//
//	call := dispatch.NewCall("get", ref)
//	ctx, err := d.Register(call)
//	status := client.Get(id, d.Trampoline, ctx)
//
// # States
//
//	Pending ──► Delivering ──► Delivered
//	   ▲            │     └──► Failed
//	   └─ progress ─┘
//
// Progress events return the Call to Pending. The terminal event retires the
// handle with a take-once Take, so completion, cancellation and abandonment
// race safely: exactly one of them delivers and releases the callback
// references. A second terminal event for the same context is a protocol
// violation, reported through the FatalHandler and never delivered.
//
// # Failures Inside Delivery
//
// Exceptions thrown by managed callbacks go to Env.ReportUnhandled. Go
// panics are recovered at the trampoline boundary and treated as protocol
// violations. References are released in both cases.
package dispatch
