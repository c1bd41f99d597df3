package transcoder

import (
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/nfs"
)

// Lifter converts native results into managed values through env. Every
// native buffer passed to a Lifter is copied into managed memory and freed,
// whether or not the conversion succeeds.
type Lifter struct {
	env managed.Env
}

// NewLifter creates a Lifter bound to the Env of the delivering thread.
func NewLifter(env managed.Env) Lifter {
	return Lifter{env: env}
}

// Buffer copies b into a managed array and frees it. A nil buffer lifts to
// an empty array.
func (l Lifter) Buffer(b *native.Buffer) managed.ByteArray {
	if b == nil {
		return l.env.NewByteArray(nil)
	}
	defer b.Free()
	return l.env.NewByteArray(b.Bytes())
}

func (l Lifter) newObject(path []string, class string, fields map[string]managed.Value) (managed.Object, error) {
	obj, err := l.env.NewObject(class, fields)
	if err != nil {
		return nil, errors.New(errors.PhaseLift, errors.KindInvalidData).
			Path(path...).
			NativeType(class).
			Cause(err).
			Build()
	}
	return obj, nil
}

// DataID lifts a data identifier.
func (l Lifter) DataID(id native.DataID) (managed.Object, error) {
	fields := map[string]managed.Value{
		managed.FieldKind: int32(id.Kind),
		managed.FieldName: l.env.NewByteArray(id.Name[:]),
	}
	if id.Kind != native.DataImmutable {
		fields[managed.FieldTypeTag] = int64(id.TypeTag)
	}
	return l.newObject([]string{"id"}, managed.ClassDataID, fields)
}

// Record lifts a fetched record and frees its content.
func (l Lifter) Record(r native.Record) (managed.Object, error) {
	content := l.Buffer(r.Content)
	id, err := l.DataID(r.ID)
	if err != nil {
		return nil, err
	}
	return l.newObject(nil, managed.ClassData, map[string]managed.Value{
		managed.FieldID:      id,
		managed.FieldVersion: int64(r.Version),
		managed.FieldContent: content,
	})
}

// AccountInfo lifts account usage.
func (l Lifter) AccountInfo(info native.AccountInfo) (managed.Object, error) {
	return l.newObject(nil, managed.ClassAccountInfo, map[string]managed.Value{
		managed.FieldUsed:      int64(info.Used),
		managed.FieldAvailable: int64(info.Available),
	})
}

// Stats lifts request counters.
func (l Lifter) Stats(s native.Stats) (managed.Object, error) {
	return l.newObject(nil, managed.ClassStats, map[string]managed.Value{
		managed.FieldGets:    int64(s.Gets),
		managed.FieldPuts:    int64(s.Puts),
		managed.FieldPosts:   int64(s.Posts),
		managed.FieldDeletes: int64(s.Deletes),
		managed.FieldAppends: int64(s.Appends),
	})
}

func (l Lifter) metadata(m nfs.Metadata) (managed.Object, error) {
	return l.newObject([]string{managed.FieldMetadata}, managed.ClassMetadata, map[string]managed.Value{
		managed.FieldName:         l.env.NewString(m.Name),
		managed.FieldUserMetadata: l.env.NewByteArray(m.UserMetadata),
		managed.FieldCreated:      toUnixNano(m.Created),
		managed.FieldModified:     toUnixNano(m.Modified),
		managed.FieldSize:         int64(m.Size),
	})
}

// Listing lifts a directory listing.
func (l Lifter) Listing(d *nfs.DirectoryListing) (managed.Object, error) {
	md, err := l.metadata(d.Metadata)
	if err != nil {
		return nil, err
	}

	dirs := make([]managed.Value, 0, len(d.SubDirectories))
	for _, info := range d.SubDirectories {
		imd, err := l.metadata(info.Metadata)
		if err != nil {
			return nil, err
		}
		o, err := l.newObject([]string{managed.FieldSubDirectories}, managed.ClassContainerInfo, map[string]managed.Value{
			managed.FieldID:       l.env.NewByteArray(info.ID[:]),
			managed.FieldMetadata: imd,
		})
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, o)
	}

	files := make([]managed.Value, 0, len(d.Files))
	for _, f := range d.Files {
		fmd, err := l.metadata(f.Metadata)
		if err != nil {
			return nil, err
		}
		o, err := l.newObject([]string{managed.FieldFiles}, managed.ClassFile, map[string]managed.Value{
			managed.FieldMetadata: fmd,
			managed.FieldDataMap:  l.env.NewByteArray(f.DataMap),
		})
		if err != nil {
			return nil, err
		}
		files = append(files, o)
	}

	return l.newObject(nil, managed.ClassDirectoryListing, map[string]managed.Value{
		managed.FieldID:             l.env.NewByteArray(d.ID[:]),
		managed.FieldMetadata:       md,
		managed.FieldSubDirectories: dirs,
		managed.FieldFiles:          files,
	})
}

// ListingRecord decodes a record holding an encoded directory listing and
// frees its content.
func (l Lifter) ListingRecord(r native.Record) (managed.Object, error) {
	if r.Content == nil {
		return nil, errors.InvalidData(errors.PhaseLift, []string{"content"}, "record has no content")
	}
	data := append([]byte(nil), r.Content.Bytes()...)
	r.Content.Free()

	d, err := nfs.Unmarshal(data)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseLift, errors.KindInvalidData, err, "directory listing")
	}
	return l.Listing(d)
}

// Value lifts the payload of a success event.
func (l Lifter) Value(v any) (managed.Value, error) {
	switch v := v.(type) {
	case nil:
		return nil, nil
	case native.Record:
		return l.Record(v)
	case native.DataID:
		return l.DataID(v)
	case native.AccountInfo:
		return l.AccountInfo(v)
	case *native.Buffer:
		return l.Buffer(v), nil
	default:
		return nil, errors.New(errors.PhaseLift, errors.KindTypeMismatch).
			NativeType(typeName(v)).
			Detail("unsupported native result").
			Build()
	}
}

// Failure lifts an envelope into the onFailure arguments.
func (l Lifter) Failure(e errors.Envelope) (int32, managed.String) {
	return e.Code, l.env.NewString(e.Message)
}

// Progress lifts a progress event into the onProgress arguments and frees
// the chunk.
func (l Lifter) Progress(ev native.Event) (int64, int64, managed.ByteArray) {
	return int64(ev.Done), int64(ev.Total), l.Buffer(ev.Chunk)
}

// Release frees the native buffers of an event that will not be lifted.
func Release(v any) {
	switch v := v.(type) {
	case native.Record:
		if v.Content != nil && !v.Content.Freed() {
			v.Content.Free()
		}
	case *native.Buffer:
		if v != nil && !v.Freed() {
			v.Free()
		}
	}
}
