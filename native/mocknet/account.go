package mocknet

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/zeebo/blake3"
	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/Fraser999/safe-core/internal/codec"
	"github.com/Fraser999/safe-core/native"
)

// Type tags of the structured data the client keeps for accounts.
const (
	TagSessionPacket uint64 = 5483
	TagAccountUsage  uint64 = 5484
)

// DefaultQuota is the number of chunks a new account may store.
const DefaultQuota = 1000

const (
	saltLen  = 16
	nonceLen = 24

	argonTime    = 1
	argonMemory  = 8 * 1024
	argonThreads = 2
)

var errBadCredentials = errors.New("invalid credentials")

// sessionPacket is sealed with a key derived from the account password.
type sessionPacket struct {
	UserRoot   *native.DataID `cbor:"2,keyasint,omitempty"`
	ConfigRoot *native.DataID `cbor:"3,keyasint,omitempty"`
	Owner      native.XorName `cbor:"1,keyasint"`
}

// root returns the slot holding which, or nil for an unknown root.
func (p *sessionPacket) root(which native.RootDir) **native.DataID {
	switch which {
	case native.RootUser:
		return &p.UserRoot
	case native.RootConfig:
		return &p.ConfigRoot
	default:
		return nil
	}
}

// session is the account the client is logged in to. The password is kept
// so the packet can be resealed when a root directory is recorded.
type session struct {
	creds  native.Credentials
	packet sessionPacket
}

// accountUsage is the network-side record of an account's storage use.
type accountUsage struct {
	Used      uint64 `cbor:"1,keyasint"`
	Available uint64 `cbor:"2,keyasint"`
}

// ImmutableName returns the network name of immutable content.
func ImmutableName(content []byte) native.XorName {
	return native.XorName(blake3.Sum256(content))
}

// sessionID returns where the session packet of locator lives.
func sessionID(locator string) native.DataID {
	h, _ := blake3.NewKeyed(sessionKey[:])
	_, _ = h.Write([]byte(locator))
	var id native.DataID
	id.Kind = native.DataStructured
	id.TypeTag = TagSessionPacket
	copy(id.Name[:], h.Sum(nil))
	return id
}

var sessionKey = blake3.Sum256([]byte("safe-core session packet location"))

func usageID(owner native.XorName) native.DataID {
	return native.DataID{Kind: native.DataStructured, Name: owner, TypeTag: TagAccountUsage}
}

func deriveKey(password string, salt []byte) *[32]byte {
	var k [32]byte
	copy(k[:], argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, 32))
	return &k
}

// sealSession encrypts the session packet as salt || nonce || box.
func sealSession(p sessionPacket, password string) ([]byte, error) {
	plain, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode session packet: %w", err)
	}
	out := make([]byte, saltLen+nonceLen, saltLen+nonceLen+len(plain)+secretbox.Overhead)
	if _, err := rand.Read(out); err != nil {
		return nil, err
	}
	var nonce [nonceLen]byte
	copy(nonce[:], out[saltLen:])
	return secretbox.Seal(out, plain, &nonce, deriveKey(password, out[:saltLen])), nil
}

func openSession(sealed []byte, password string) (sessionPacket, error) {
	var p sessionPacket
	if len(sealed) < saltLen+nonceLen+secretbox.Overhead {
		return p, errBadCredentials
	}
	var nonce [nonceLen]byte
	copy(nonce[:], sealed[saltLen:saltLen+nonceLen])
	plain, ok := secretbox.Open(nil, sealed[saltLen+nonceLen:], &nonce, deriveKey(password, sealed[:saltLen]))
	if !ok {
		return p, errBadCredentials
	}
	if err := codec.Unmarshal(plain, &p); err != nil {
		return p, fmt.Errorf("decode session packet: %w", err)
	}
	return p, nil
}

func newOwner() (native.XorName, error) {
	var n native.XorName
	_, err := rand.Read(n[:])
	return n, err
}

func encodeUsage(u accountUsage) []byte {
	b, _ := codec.Marshal(u)
	return b
}

func decodeUsage(b []byte) (accountUsage, error) {
	var u accountUsage
	err := codec.Unmarshal(b, &u)
	return u, err
}
