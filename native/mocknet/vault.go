package mocknet

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Fraser999/safe-core/native"
)

// ErrVaultClosed is returned by a vault after Close.
var ErrVaultClosed = errors.New("mocknet: vault closed")

// Chunk is a piece of data as held by a vault. Content is in stored form.
type Chunk struct {
	Content     []byte
	ID          native.DataID
	Owner       native.XorName
	Version     uint64
	Size        int
	Compression Compression
}

// Vault stores chunks. Implementations must be safe for concurrent use.
type Vault interface {
	// Load returns the chunk stored under id. ok is false when there is none.
	Load(id native.DataID) (c Chunk, ok bool, err error)
	// Store inserts or replaces a chunk.
	Store(c Chunk) error
	// Remove deletes a chunk. Removing a missing chunk is not an error.
	Remove(id native.DataID) error
	// Len returns the number of stored chunks.
	Len() (int, error)
	Close() error
}

// key identifies a chunk independent of the vault backend.
func key(id native.DataID) string {
	if id.Kind == native.DataImmutable {
		return fmt.Sprintf("%d:%x", id.Kind, id.Name[:])
	}
	return fmt.Sprintf("%d:%x:%d", id.Kind, id.Name[:], id.TypeTag)
}

// MemoryVault is an in-memory Vault.
type MemoryVault struct {
	chunks map[string]Chunk
	mu     sync.RWMutex
	closed bool
}

// NewMemoryVault creates an empty in-memory vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{chunks: make(map[string]Chunk)}
}

func (v *MemoryVault) Load(id native.DataID) (Chunk, bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return Chunk{}, false, ErrVaultClosed
	}
	c, ok := v.chunks[key(id)]
	if ok {
		c.Content = append([]byte(nil), c.Content...)
	}
	return c, ok, nil
}

func (v *MemoryVault) Store(c Chunk) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrVaultClosed
	}
	c.Content = append([]byte(nil), c.Content...)
	v.chunks[key(c.ID)] = c
	return nil
}

func (v *MemoryVault) Remove(id native.DataID) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.closed {
		return ErrVaultClosed
	}
	delete(v.chunks, key(id))
	return nil
}

func (v *MemoryVault) Len() (int, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	if v.closed {
		return 0, ErrVaultClosed
	}
	return len(v.chunks), nil
}

func (v *MemoryVault) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.closed = true
	v.chunks = nil
	return nil
}
