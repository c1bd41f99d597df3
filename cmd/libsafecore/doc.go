// Command libsafecore builds the bridge as a C shared library:
//
//	go build -buildmode=c-shared -o libsafecore.so ./cmd/libsafecore
//
// safecore.h declares the callback struct. A host calls safe_init once with
// an optional YAML configuration (see package config) and an optional fatal
// handler, then submits requests:
//
//	safe_init(yaml, yaml_len, on_fatal, user);
//
//	safe_callback cb = {user, on_success, on_failure, on_progress};
//	int64_t ctx = safe_get(1, name, 32, 0, &cb);
//
// Each submit function returns the request context, 0 when the request was
// rejected and on_failure already ran, or a negative bridge code when the
// callback itself was unusable (-101) or the library is not initialised
// (-201). A context can be passed to safe_cancel.
//
// Results are CBOR maps mirroring the managed objects. The "@type" key holds
// the object's class (Data, DataIdentifier, AccountInfo, Stats,
// DirectoryListing) and the other keys are its fields: kind, name, typeTag,
// version, content, used, available and so on. safe_put_directory takes a
// CBOR listing in the same form nfs.Marshal produces.
//
// safe_set_root_dir_id and safe_root_dir_id keep the user (1) and config (2)
// root directory ids in the account.
//
// Protocol violations and attachment failures go to the fatal handler; with
// a NULL handler they print to stderr and abort. Host strings must be UTF-8:
// invalid sequences fail the request with -102 instead of being replaced.
//
// Threads are identified by kernel id on Linux, by thread id on Windows and
// by pthread_self elsewhere; the library always builds with cgo.
//
// Callbacks run on library threads. Buffers handed to them are only valid
// for the duration of the call. safe_shutdown delivers a cancellation error
// to every outstanding request before returning.
package main
