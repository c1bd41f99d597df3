package mocknet

import (
	"bytes"
	"crypto/rand"
	"path/filepath"
	"testing"

	"github.com/Fraser999/safe-core/native"
)

func TestVaults(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) Vault
	}{
		{"memory", func(*testing.T) Vault { return NewMemoryVault() }},
		{"sqlite", func(t *testing.T) Vault {
			v, err := OpenSQLiteVault(filepath.Join(t.TempDir(), "vault.db"))
			if err != nil {
				t.Fatal(err)
			}
			return v
		}},
	}

	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			v := b.open(t)
			defer v.Close()

			id := structured(5, 77)
			if _, ok, err := v.Load(id); err != nil || ok {
				t.Fatalf("Load of missing chunk = %v, %v", ok, err)
			}

			c := Chunk{ID: id, Version: 3, Size: 4, Compression: CompressionNone, Content: []byte("data")}
			c.Owner[0] = 0xAA
			if err := v.Store(c); err != nil {
				t.Fatal(err)
			}
			got, ok, err := v.Load(id)
			if err != nil || !ok {
				t.Fatalf("Load = %v, %v", ok, err)
			}
			if got.ID != id || got.Version != 3 || got.Owner != c.Owner || !bytes.Equal(got.Content, c.Content) {
				t.Fatalf("Load = %+v", got)
			}

			c.Version = 4
			c.Content = []byte("more")
			if err := v.Store(c); err != nil {
				t.Fatal(err)
			}
			got, _, _ = v.Load(id)
			if got.Version != 4 || string(got.Content) != "more" {
				t.Fatalf("replace: %+v", got)
			}
			if n, _ := v.Len(); n != 1 {
				t.Fatalf("Len = %d", n)
			}

			// same name, different tag
			other := structured(5, 78)
			if _, ok, _ := v.Load(other); ok {
				t.Fatal("type tag must be part of the key")
			}

			if err := v.Remove(id); err != nil {
				t.Fatal(err)
			}
			if err := v.Remove(id); err != nil {
				t.Fatal("removing a missing chunk must not fail")
			}
			if _, ok, _ := v.Load(id); ok {
				t.Fatal("chunk still present after Remove")
			}
		})
	}
}

func TestSQLiteVault_Persists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.db")
	id := structured(1, 2)

	v, err := OpenSQLiteVault(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := v.Store(Chunk{ID: id, Size: 1, Content: []byte("x")}); err != nil {
		t.Fatal(err)
	}
	v.Close()

	v, err = OpenSQLiteVault(path)
	if err != nil {
		t.Fatal(err)
	}
	defer v.Close()
	if _, ok, err := v.Load(id); !ok || err != nil {
		t.Fatalf("reopened vault lost chunk: %v, %v", ok, err)
	}
}

func TestCompression(t *testing.T) {
	text := bytes.Repeat([]byte("the same line again\n"), 100)
	noise := make([]byte, 512)
	rand.Read(noise)

	for _, c := range []Compression{CompressionNone, CompressionLZ4, CompressionZstd} {
		for _, in := range [][]byte{text, noise, {}} {
			stored, tag, err := compress(in, c)
			if err != nil {
				t.Fatalf("%s: %v", c, err)
			}
			if c != CompressionNone && len(in) == len(text) && tag != c {
				t.Errorf("%s: compressible input stored as %s", c, tag)
			}
			out, err := decompress(stored, tag, len(in))
			if err != nil {
				t.Fatalf("%s: %v", c, err)
			}
			if !bytes.Equal(out, in) {
				t.Fatalf("%s: round trip mismatch", c)
			}
		}
	}

	if _, err := ParseCompression("brotli"); err == nil {
		t.Fatal("unknown compression must fail to parse")
	}
	if c, _ := ParseCompression("zstd"); c != CompressionZstd {
		t.Fatal("parse zstd")
	}
}

func TestLRU(t *testing.T) {
	c := newLRU(2)
	a, b, d := native.XorName{1}, native.XorName{2}, native.XorName{3}

	c.put(a, []byte("a"))
	c.put(b, []byte("b"))
	c.get(a)
	c.put(d, []byte("d"))

	if _, ok := c.get(b); ok {
		t.Fatal("least recently used entry must be evicted")
	}
	if _, ok := c.get(a); !ok {
		t.Fatal("recently used entry evicted")
	}
	if c.len() != 2 {
		t.Fatalf("len = %d", c.len())
	}

	off := newLRU(-1)
	off.put(a, []byte("a"))
	if _, ok := off.get(a); ok {
		t.Fatal("disabled cache must not store")
	}
}

func TestSessionPacket(t *testing.T) {
	owner := native.XorName{9, 9, 9}
	sealed, err := sealSession(sessionPacket{Owner: owner}, "pw")
	if err != nil {
		t.Fatal(err)
	}
	p, err := openSession(sealed, "pw")
	if err != nil || p.Owner != owner {
		t.Fatalf("open = %+v, %v", p, err)
	}
	if _, err := openSession(sealed, "other"); err == nil {
		t.Fatal("wrong password must not open the packet")
	}
	if sessionID("alice") == sessionID("bob") {
		t.Fatal("locators must map to distinct names")
	}
}
