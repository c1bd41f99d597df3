package nfs

import (
	"crypto/rand"
	"fmt"
	"slices"
	"time"

	"github.com/Fraser999/safe-core/internal/codec"
	"github.com/Fraser999/safe-core/native"
)

// TagDirectoryListing is the type tag directory listings are stored under.
const TagDirectoryListing uint64 = 5500

// MaxNameLen bounds file and directory names in bytes.
const MaxNameLen = 255

// Metadata describes a file or directory.
type Metadata struct {
	Created      time.Time `cbor:"3,keyasint"`
	Modified     time.Time `cbor:"4,keyasint"`
	Name         string    `cbor:"1,keyasint"`
	UserMetadata []byte    `cbor:"2,keyasint"`
	Size         uint64    `cbor:"5,keyasint,omitempty"`
}

// NewMetadata stamps a new entry with the current time.
func NewMetadata(name string, userMetadata []byte) Metadata {
	now := time.Now().UTC()
	return Metadata{Name: name, UserMetadata: userMetadata, Created: now, Modified: now}
}

// ContainerInfo is a directory's entry in its parent.
type ContainerInfo struct {
	Metadata Metadata       `cbor:"2,keyasint"`
	ID       native.XorName `cbor:"1,keyasint"`
}

// File is a file entry. DataMap locates the content.
type File struct {
	DataMap  []byte   `cbor:"2,keyasint"`
	Metadata Metadata `cbor:"1,keyasint"`
}

// DirectoryListing is the stored form of a directory.
type DirectoryListing struct {
	Metadata       Metadata        `cbor:"2,keyasint"`
	SubDirectories []ContainerInfo `cbor:"3,keyasint"`
	Files          []File          `cbor:"4,keyasint"`
	ID             native.XorName  `cbor:"1,keyasint"`
}

// NewDirectoryListing creates an empty directory with a random id.
func NewDirectoryListing(name string, userMetadata []byte) (*DirectoryListing, error) {
	d := &DirectoryListing{Metadata: NewMetadata(name, userMetadata)}
	if _, err := rand.Read(d.ID[:]); err != nil {
		return nil, fmt.Errorf("directory id: %w", err)
	}
	return d, nil
}

// DataID returns where the listing is stored.
func (d *DirectoryListing) DataID() native.DataID {
	return native.DataID{Kind: native.DataStructured, Name: d.ID, TypeTag: TagDirectoryListing}
}

// Info returns the entry describing d in its parent.
func (d *DirectoryListing) Info() ContainerInfo {
	return ContainerInfo{ID: d.ID, Metadata: d.Metadata}
}

// FindFile returns the file called name.
func (d *DirectoryListing) FindFile(name string) (File, bool) {
	i := slices.IndexFunc(d.Files, func(f File) bool { return f.Metadata.Name == name })
	if i < 0 {
		return File{}, false
	}
	return d.Files[i], true
}

// FindSubDirectory returns the sub-directory called name.
func (d *DirectoryListing) FindSubDirectory(name string) (ContainerInfo, bool) {
	i := slices.IndexFunc(d.SubDirectories, func(c ContainerInfo) bool { return c.Metadata.Name == name })
	if i < 0 {
		return ContainerInfo{}, false
	}
	return d.SubDirectories[i], true
}

// UpsertFile adds f or replaces the file with the same name.
func (d *DirectoryListing) UpsertFile(f File) {
	d.touch()
	if i := slices.IndexFunc(d.Files, func(e File) bool { return e.Metadata.Name == f.Metadata.Name }); i >= 0 {
		d.Files[i] = f
		return
	}
	d.Files = append(d.Files, f)
}

// UpsertSubDirectory adds info or replaces the entry with the same id.
func (d *DirectoryListing) UpsertSubDirectory(info ContainerInfo) {
	d.touch()
	if i := slices.IndexFunc(d.SubDirectories, func(c ContainerInfo) bool { return c.ID == info.ID }); i >= 0 {
		d.SubDirectories[i] = info
		return
	}
	d.SubDirectories = append(d.SubDirectories, info)
}

// RemoveFile deletes the file called name and reports whether it existed.
func (d *DirectoryListing) RemoveFile(name string) bool {
	n := len(d.Files)
	d.Files = slices.DeleteFunc(d.Files, func(f File) bool { return f.Metadata.Name == name })
	if len(d.Files) == n {
		return false
	}
	d.touch()
	return true
}

// RemoveSubDirectory deletes the sub-directory called name.
func (d *DirectoryListing) RemoveSubDirectory(name string) bool {
	n := len(d.SubDirectories)
	d.SubDirectories = slices.DeleteFunc(d.SubDirectories, func(c ContainerInfo) bool { return c.Metadata.Name == name })
	if len(d.SubDirectories) == n {
		return false
	}
	d.touch()
	return true
}

func (d *DirectoryListing) touch() {
	d.Metadata.Modified = time.Now().UTC()
}

// Validate checks names are present, bounded and unique per entry kind.
func (d *DirectoryListing) Validate() error {
	if err := validName(d.Metadata.Name); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	seen := make(map[string]struct{}, len(d.Files))
	for _, f := range d.Files {
		if err := validName(f.Metadata.Name); err != nil {
			return fmt.Errorf("file: %w", err)
		}
		if _, dup := seen[f.Metadata.Name]; dup {
			return fmt.Errorf("duplicate file %q", f.Metadata.Name)
		}
		seen[f.Metadata.Name] = struct{}{}
	}
	clear(seen)
	for _, c := range d.SubDirectories {
		if err := validName(c.Metadata.Name); err != nil {
			return fmt.Errorf("sub-directory: %w", err)
		}
		if _, dup := seen[c.Metadata.Name]; dup {
			return fmt.Errorf("duplicate sub-directory %q", c.Metadata.Name)
		}
		seen[c.Metadata.Name] = struct{}{}
	}
	return nil
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("empty name")
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("name of %d bytes exceeds %d", len(name), MaxNameLen)
	}
	return nil
}

func (d *DirectoryListing) String() string {
	return fmt.Sprintf("id: %s, name: %s, %d dirs, %d files",
		d.ID.Short(), d.Metadata.Name, len(d.SubDirectories), len(d.Files))
}

// Marshal encodes a validated listing.
func Marshal(d *DirectoryListing) ([]byte, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return codec.Marshal(d)
}

// Unmarshal decodes and validates a listing.
func Unmarshal(data []byte) (*DirectoryListing, error) {
	var d DirectoryListing
	if err := codec.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("decode directory listing: %w", err)
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return &d, nil
}
