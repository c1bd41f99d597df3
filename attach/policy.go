package attach

import (
	"fmt"
	"strings"

	"github.com/Fraser999/safe-core/managed"
)

// Policy decides how long a native thread stays attached to the managed
// runtime after the manager attached it.
type Policy uint8

const (
	// Ephemeral detaches after every delivery the manager attached for.
	Ephemeral Policy = iota
	// Persistent keeps the thread attached until it exits.
	Persistent
)

func (p Policy) String() string {
	switch p {
	case Ephemeral:
		return "ephemeral"
	case Persistent:
		return "persistent"
	default:
		return fmt.Sprintf("policy(%d)", uint8(p))
	}
}

// ParsePolicy parses a policy name as used in configuration files.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "ephemeral":
		return Ephemeral, nil
	case "persistent":
		return Persistent, nil
	default:
		return 0, fmt.Errorf("unknown attach policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Policy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Policy) UnmarshalText(b []byte) error {
	v, err := ParsePolicy(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

// Token describes the attachment of the calling thread for one delivery.
// It is handed back to Manager.Release on the same thread.
type Token struct {
	env managed.Env
	tid uint64
	// attached is set when this Attach call attached the thread.
	attached bool
	// host is set when the thread was attached by someone else.
	host bool
	// keep is set when the attachment outlives the delivery.
	keep bool
}

// Env returns the Env of the attached thread.
func (t Token) Env() managed.Env { return t.env }

// Thread returns the OS thread id, or 0 when unknown.
func (t Token) Thread() uint64 { return t.tid }

// Host reports whether the thread was attached by the host rather than by
// the manager. Host threads are never detached.
func (t Token) Host() bool { return t.host }
