package native

// EventKind distinguishes the events a request produces.
type EventKind uint8

const (
	// EventProgress reports a chunk of a streamed fetch. Zero or more
	// progress events precede the terminal event.
	EventProgress EventKind = iota + 1
	// EventSuccess is terminal.
	EventSuccess
	// EventFailure is terminal.
	EventFailure
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// Terminal reports whether the event ends its request.
func (k EventKind) Terminal() bool {
	return k == EventSuccess || k == EventFailure
}

// Event is what the client hands to a trampoline.
//
// On success Value is nil, a Record, an AccountInfo or a DataID depending on
// the operation. On progress Chunk holds the next slice of content. Buffers
// inside an event are owned by the receiver.
type Event struct {
	Value   any
	Chunk   *Buffer
	Message string
	Done    uint64
	Total   uint64
	Code    int32
	Kind    EventKind
}

// Success builds a success event.
func Success(v any) Event {
	return Event{Kind: EventSuccess, Value: v}
}

// Failure builds a failure event with the canonical message for code.
func Failure(code int32) Event {
	return Event{Kind: EventFailure, Code: code, Message: Message(code)}
}

// Failuref builds a failure event with a custom message.
func Failuref(code int32, msg string) Event {
	return Event{Kind: EventFailure, Code: code, Message: msg}
}

// Trampoline receives the events of a request on a client worker thread, or
// on the submitting thread when the client completes synchronously. It must
// not block indefinitely.
type Trampoline func(ctx Context, ev Event)

// Client is the asynchronous storage client. Every submitting call returns
// immediately. A StatusOK submission produces exactly one terminal event,
// unless cancelled first. Clients never retain slices passed in after the
// submitting call returns.
type Client interface {
	CreateAccount(creds Credentials, tr Trampoline, ctx Context) Status
	Login(creds Credentials, tr Trampoline, ctx Context) Status
	GetAccountInfo(tr Trampoline, ctx Context) Status

	// Get succeeds with a Record.
	Get(id DataID, tr Trampoline, ctx Context) Status
	// GetStream delivers the content in chunks of at most chunkSize bytes as
	// progress events and then succeeds with a Record without content.
	GetStream(id DataID, chunkSize uint32, tr Trampoline, ctx Context) Status
	// Put succeeds with the DataID the data was stored under.
	Put(data Data, tr Trampoline, ctx Context) Status
	Post(data Data, tr Trampoline, ctx Context) Status
	Delete(id DataID, version uint64, tr Trampoline, ctx Context) Status
	Append(app Append, tr Trampoline, ctx Context) Status

	// PutRecover is Put that also succeeds when mutable data owned by the
	// account already exists under the id. It succeeds with a Record without
	// content carrying the stored version.
	PutRecover(data Data, tr Trampoline, ctx Context) Status
	// DeleteRecover is Delete that also succeeds when the data is gone.
	DeleteRecover(id DataID, version uint64, tr Trampoline, ctx Context) Status

	// SetRootDir records id in the session packet of the logged in account.
	// A root can be set once; later attempts fail with CodeRootDirExists.
	SetRootDir(which RootDir, id DataID, tr Trampoline, ctx Context) Status
	// RootDir returns the id recorded for which, as of the current login.
	RootDir(which RootDir) (DataID, bool)

	// Cancel withdraws a request that has not yet produced its terminal
	// event. No event for ctx is delivered after a successful Cancel, except
	// one already in flight.
	Cancel(ctx Context) Status

	Stats() Stats
	Close() error
}

// ThreadHooks is offered by clients that run their own worker threads.
type ThreadHooks interface {
	// OnThreadExit registers fn to run on the calling worker thread just
	// before it exits. It reports false when the caller is not a worker.
	OnThreadExit(fn func()) bool
}
