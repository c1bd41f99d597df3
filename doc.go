// Package safecore bridges a callback-driven asynchronous storage client to
// a managed runtime.
//
// Managed code submits requests through entry points that return
// immediately. Results, progress and failures come back later, on worker
// threads, through callback objects the bridge keeps alive for exactly as
// long as the request is outstanding.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	safecore/            Root package (documentation only)
//	├── bridge/          Entry points, lifecycle and the process-wide bridge
//	├── registry/        Sharded table of pinned callbacks keyed by context
//	├── attach/          Worker thread attachment to the managed runtime
//	├── dispatch/        Routing native events to callbacks, exactly once
//	├── transcoder/      Lowering managed values, lifting native results
//	├── errors/          Structured errors and stable error codes
//	├── managed/         The managed runtime interfaces
//	│   ├── simvm/       In-process runtime with runtime rule checks
//	│   └── hostvm/      Runtime for C hosts, results encoded as CBOR
//	├── native/          Storage client interface and value types
//	│   └── mocknet/     Local storage network with memory or SQLite vaults
//	├── nfs/             Directory listings stored as structured data
//	├── config/          YAML configuration
//	└── cmd/
//	    ├── safecore/    Scripted and interactive driver
//	    └── libsafecore/ C shared library
//
// # Quick Start
//
// Create a bridge over a client and submit a request from an attached
// thread:
//
//	client := mocknet.New(mocknet.Options{})
//	b, err := bridge.New(bridge.Options{VM: vm, Client: client, CloseClient: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer b.Close()
//
//	ctx := b.Get(env, id, callback)
//	// callback.onSuccess(Data) or callback.onFailure(code, message) follows
//
// # Error Codes
//
// Failures reach callbacks as a code and a message. Positive codes come from
// the storage client unchanged. Negative codes belong to the bridge: -1xx for
// argument conversion, -2xx for request lifecycle and -3xx for runtime
// faults.
//
// # Thread Safety
//
// Bridge is safe for concurrent use. An Env belongs to the thread it was
// obtained on. Callbacks may run before the submitting entry point returns.
package safecore
