// Package registry tracks every live cross-boundary reference held by the bridge.
//
// A request pins its callback state in the registry and receives a Handle. The
// handle travels through the native library as the opaque request context and
// comes back with every completion event:
//
//	reg := registry.New(registry.Options{})
//	h, err := reg.Pin(call)
//
//	// progress: look without retiring
//	v, ok := reg.Get(h)
//
//	// terminal completion or cancellation: exactly one caller wins
//	v, prior, ok := reg.Take(h, registry.OutcomeDelivered)
//
// # Take-once
//
// Take is the single release point. When completion and cancellation race for
// the same handle, the registry lets one of them retire it; the loser receives
// ok == false together with the outcome the winner recorded, and must not touch
// the value.
//
// # Generations and quarantine
//
// Handles carry a slot generation, so a handle whose slot has been reused never
// resolves to the new occupant. Retired slots keep their outcome as a tombstone
// and are recycled first-in first-out only after Options.Quarantine newer slots
// have been retired in the same shard, which lets the dispatcher tell a duplicate
// delivery (OutcomeDelivered) from a late completion of a cancelled request
// (OutcomeCancelled).
//
// # Sharding
//
// Slots are spread across independently locked shards so concurrent
// completions on different native threads rarely contend.
package registry
