// Package transcoder converts values between the managed runtime and the
// native client.
//
// Lowering turns managed call arguments into native request values:
//
//	Managed          Native
//	──────────────────────────────────
//	String (UTF-16)  string (UTF-8)
//	byte[]           View (pinned, borrowed)
//	byte[32]         XorName (copied)
//	int              u8 (range checked)
//	long             u32 (range checked) / u64 (bit pattern)
//	Object           DataID, Data, Append, DirectoryListing
//
// Lifting is the inverse for results. Native buffers are copied into managed
// arrays and freed exactly once by the Lifter.
//
// # Borrowed Views
//
// Byte arrays are pinned, not copied. A View is valid until the Lowerer that
// produced it is released, which entry points do once the native submit
// call returns:
//
//	l := transcoder.NewLowerer()
//	defer l.Release()
//	data, err := l.Data(path, obj)
//	...
//	client.Put(data, trampoline, ctx)
//
// # Error Handling
//
// Errors use the structured types from the errors package and carry the
// path to the offending field:
//
//	[lower] invalid_encoding at data.id.name: unpaired surrogate 0xd800 at index 3
//	[lower] invalid_length at data.content: buffer must not be empty
//
// # Thread Safety
//
// A Lowerer belongs to one call and is NOT thread-safe. A Lifter is bound to
// the Env of one thread.
package transcoder
