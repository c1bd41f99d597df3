package native

import (
	"encoding/hex"
	"fmt"
)

// Context is the opaque correlation token passed to every asynchronous call
// and handed back to the trampoline. The native side never interprets it.
type Context uintptr

// Status is the immediate result of submitting a request.
type Status int32

// StatusOK means the request was accepted. Any other status is a native
// error code and no event will follow.
const StatusOK Status = 0

// Native error codes. They are stable and reach the managed runtime verbatim.
const (
	CodeOperationAborted   int32 = 1
	CodeOperationForbidden int32 = 2
	CodeAccountExists      int32 = 3
	CodeNoSuchAccount      int32 = 4
	CodeDataExists         int32 = 5
	CodeInvalidSuccessor   int32 = 6
	CodeNoSuchData         int32 = 7
	CodeInvalidOperation   int32 = 8
	CodeLowBalance         int32 = 9
	CodeUnsupported        int32 = 10
	CodeClosed             int32 = 11
	CodeRootDirExists      int32 = 12
)

var codeMessages = map[int32]string{
	CodeOperationAborted:   "operation aborted",
	CodeOperationForbidden: "operation forbidden for this client",
	CodeAccountExists:      "account already exists",
	CodeNoSuchAccount:      "no such account",
	CodeDataExists:         "data already exists",
	CodeInvalidSuccessor:   "invalid successor version",
	CodeNoSuchData:         "not found",
	CodeInvalidOperation:   "invalid operation",
	CodeLowBalance:         "insufficient account balance",
	CodeUnsupported:        "unsupported operation",
	CodeClosed:             "client closed",
	CodeRootDirExists:      "root directory already exists",
}

// Message returns the canonical text for a native error code.
func Message(code int32) string {
	if m, ok := codeMessages[code]; ok {
		return m
	}
	return fmt.Sprintf("native error %d", code)
}

// XorNameLen is the size of a network name in bytes.
const XorNameLen = 32

// XorName is a 256-bit network address.
type XorName [XorNameLen]byte

func (n XorName) String() string {
	return hex.EncodeToString(n[:])
}

// Short returns the first four bytes in hex, for logs.
func (n XorName) Short() string {
	return hex.EncodeToString(n[:4])
}

// DataKind selects the storage semantics of a piece of data.
type DataKind uint8

const (
	DataImmutable DataKind = iota + 1
	DataStructured
	DataPubAppendable
	DataPrivAppendable
)

func (k DataKind) String() string {
	switch k {
	case DataImmutable:
		return "immutable"
	case DataStructured:
		return "structured"
	case DataPubAppendable:
		return "pub-appendable"
	case DataPrivAppendable:
		return "priv-appendable"
	default:
		return fmt.Sprintf("kind(%d)", k)
	}
}

// Valid reports whether k names a known kind.
func (k DataKind) Valid() bool {
	return k >= DataImmutable && k <= DataPrivAppendable
}

// Mutable reports whether data of this kind can be posted, deleted or
// appended to.
func (k DataKind) Mutable() bool {
	return k != DataImmutable
}

// DataID identifies a piece of data on the network. TypeTag is ignored for
// immutable data.
type DataID struct {
	Name    XorName
	TypeTag uint64
	Kind    DataKind
}

func (id DataID) String() string {
	if id.Kind == DataImmutable {
		return fmt.Sprintf("%s/%s", id.Kind, id.Name.Short())
	}
	return fmt.Sprintf("%s/%s/%d", id.Kind, id.Name.Short(), id.TypeTag)
}

// RootDir selects one of the directory ids an account keeps in its session
// packet.
type RootDir uint8

const (
	RootUser RootDir = iota + 1
	RootConfig
)

func (r RootDir) String() string {
	switch r {
	case RootUser:
		return "user"
	case RootConfig:
		return "config"
	default:
		return fmt.Sprintf("root(%d)", r)
	}
}

// Valid reports whether r names a known root.
func (r RootDir) Valid() bool {
	return r == RootUser || r == RootConfig
}

// Data is a request payload. Content is owned by the caller and copied by
// the client before the submitting call returns.
type Data struct {
	Content []byte
	ID      DataID
	Version uint64
}

// Append adds Content to the appendable data at Target.
type Append struct {
	Content []byte
	Target  DataID
}

// Credentials authenticate an account.
type Credentials struct {
	Locator  string
	Password string
}

// AccountInfo reports account usage in units of stored chunks.
type AccountInfo struct {
	Used      uint64
	Available uint64
}

// Record is a fetched piece of data. Content is allocated by the client and
// owned by whoever receives the event; it must be freed exactly once.
type Record struct {
	Content *Buffer
	ID      DataID
	Version uint64
}

// Stats counts the requests a client has issued to the network.
type Stats struct {
	Gets    uint64
	Puts    uint64
	Posts   uint64
	Deletes uint64
	Appends uint64
}
