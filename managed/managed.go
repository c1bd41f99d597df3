package managed

import (
	"errors"
	"strings"
)

// ErrDetached is returned by VM.GetEnv when the calling thread is not
// attached to the managed runtime.
var ErrDetached = errors.New("managed: thread not attached")

// Callback method names invoked on pinned callback objects.
const (
	MethodSuccess  = "onSuccess"  // (result Value)
	MethodFailure  = "onFailure"  // (code int32, message String)
	MethodProgress = "onProgress" // (done int64, total int64, chunk ByteArray)
)

// Class names of objects built by the bridge.
const (
	ClassData             = "safe/core/Data"
	ClassAccountInfo      = "safe/core/AccountInfo"
	ClassStats            = "safe/core/Stats"
	ClassDirectoryListing = "safe/nfs/DirectoryListing"
	ClassMetadata         = "safe/nfs/Metadata"
	ClassFile             = "safe/nfs/File"
	ClassContainerInfo    = "safe/nfs/ContainerInfo"
	ClassDataID           = "safe/core/DataIdentifier"
	ClassAppend           = "safe/core/AppendWrapper"
)

// Field names of the objects exchanged with the runtime.
const (
	FieldKind      = "kind"    // int32
	FieldName      = "name"    // ByteArray for ids, String for metadata
	FieldTypeTag   = "typeTag" // int64
	FieldID        = "id"
	FieldVersion   = "version" // int64
	FieldContent   = "content" // ByteArray
	FieldTarget    = "target"  // Object
	FieldUsed      = "used"    // int64
	FieldAvailable = "available"

	FieldGets    = "gets"
	FieldPuts    = "puts"
	FieldPosts   = "posts"
	FieldDeletes = "deletes"
	FieldAppends = "appends"

	FieldMetadata       = "metadata"       // Object
	FieldUserMetadata   = "userMetadata"   // ByteArray
	FieldCreated        = "created"        // int64 unix nanoseconds
	FieldModified       = "modified"       // int64 unix nanoseconds
	FieldSize           = "size"           // int64
	FieldSubDirectories = "subDirectories" // []Value
	FieldFiles          = "files"          // []Value
	FieldDataMap        = "dataMap"        // ByteArray
)

// Value is a managed value crossing the boundary. Its dynamic type is one of
// nil, bool, int32, int64, String, ByteArray, Object or []Value.
type Value = any

// Ref is a global reference that keeps a managed object alive across calls
// and threads until deleted. Ref 0 is the null reference.
type Ref uint64

// String is a managed text value stored as UTF-16 code units.
type String interface {
	UTF16() []uint16
}

// ByteArray is a managed byte array.
type ByteArray interface {
	Len() int
	// Pin returns a view of the array's storage. The view is borrowed: it is
	// valid only until the matching Unpin and must never be retained.
	Pin() []byte
	Unpin()
}

// Object is a managed object with named fields.
type Object interface {
	Class() string
	Field(name string) (Value, bool)
}

// Env is the per-thread interface into the managed runtime. An Env must only
// be used on the thread it was obtained on.
type Env interface {
	NewGlobalRef(obj Object) (Ref, error)
	DeleteGlobalRef(ref Ref)

	// CallVoidMethod invokes method on the object behind ref. A non-nil error
	// is an exception thrown by the managed method.
	CallVoidMethod(ref Ref, method string, args ...Value) error

	NewString(s string) String
	NewByteArray(b []byte) ByteArray
	NewObject(class string, fields map[string]Value) (Object, error)

	// Throw raises err in the calling managed frame once the current entry
	// point returns.
	Throw(err error)
	// ReportUnhandled hands an exception nobody can catch to the runtime's
	// uncaught-exception handler.
	ReportUnhandled(err error)
}

// VM is the process-wide managed runtime.
type VM interface {
	// GetEnv returns the Env of the calling thread or ErrDetached.
	GetEnv() (Env, error)
	// AttachCurrentThread attaches the calling thread. Attaching an attached
	// thread returns its existing Env.
	AttachCurrentThread(name string) (Env, error)
	// DetachCurrentThread detaches the calling thread.
	DetachCurrentThread() error
	// FatalError reports an unrecoverable failure through the runtime's fatal
	// channel.
	FatalError(err error)
}

// Exception is an exception thrown by managed code.
type Exception struct {
	Class   string
	Message string
}

func (e *Exception) Error() string {
	var b strings.Builder
	b.WriteString(e.Class)
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	return b.String()
}
