package transcoder

import (
	"fmt"
	"math"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/nfs"
)

// Safety limits for lowered values.
const (
	MaxStringLen = 1 << 16 // UTF-16 code units
	MaxListLen   = 1 << 16 // elements of a managed array
)

// Lowerer converts managed arguments into native values. Byte arrays are
// pinned rather than copied; Release unpins them. A Lowerer is used by one
// entry point call at a time and is NOT thread-safe.
type Lowerer struct {
	views []View
}

// NewLowerer returns a pooled Lowerer.
func NewLowerer() *Lowerer {
	return lowererPool.Get().(*Lowerer)
}

// Release unpins every view handed out and returns l to the pool. Views are
// invalid afterwards.
func (l *Lowerer) Release() {
	for i := len(l.views) - 1; i >= 0; i-- {
		l.views[i].arr.Unpin()
		l.views[i] = View{}
	}
	l.views = l.views[:0]
	if cap(l.views) <= poolMaxViews {
		lowererPool.Put(l)
	}
}

// Pinned returns the number of views currently pinned.
func (l *Lowerer) Pinned() int { return len(l.views) }

func sub(path []string, elem string) []string {
	out := make([]string, len(path)+1)
	copy(out, path)
	out[len(path)] = elem
	return out
}

func index(path []string, i int) []string {
	if len(path) == 0 {
		return []string{fmt.Sprintf("[%d]", i)}
	}
	out := append([]string(nil), path...)
	out[len(out)-1] += fmt.Sprintf("[%d]", i)
	return out
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case int32:
		return "int"
	case int64:
		return "long"
	case managed.String:
		return "String"
	case managed.ByteArray:
		return "byte[]"
	case managed.Object:
		return "Object"
	case []managed.Value:
		return "Object[]"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// String converts a managed string to UTF-8. Unpaired surrogates are an
// encoding error.
func (l *Lowerer) String(path []string, s managed.String) (string, error) {
	if s == nil {
		return "", errors.NullArgument(errors.PhaseLower, path, "String")
	}
	units := s.UTF16()
	if len(units) > MaxStringLen {
		return "", errors.New(errors.PhaseLower, errors.KindInvalidLength).
			Path(path...).
			Detail("string of %d code units exceeds %d", len(units), MaxStringLen).
			Value(len(units)).
			Build()
	}

	buf := getScratch()
	defer putScratch(buf)

	out := *buf
	for i := 0; i < len(units); i++ {
		u := units[i]
		switch {
		case !utf16.IsSurrogate(rune(u)):
			out = utf8.AppendRune(out, rune(u))
		case u < 0xDC00 && i+1 < len(units) && units[i+1] >= 0xDC00 && units[i+1] <= 0xDFFF:
			out = utf8.AppendRune(out, utf16.DecodeRune(rune(u), rune(units[i+1])))
			i++
		default:
			*buf = out
			return "", errors.InvalidUTF16(errors.PhaseLower, path, i, u)
		}
	}
	*buf = out
	return string(out), nil
}

// NonEmptyString is String with an empty result rejected.
func (l *Lowerer) NonEmptyString(path []string, s managed.String) (string, error) {
	str, err := l.String(path, s)
	if err != nil {
		return "", err
	}
	if str == "" {
		return "", errors.InvalidLength(errors.PhaseLower, path, 0, -1)
	}
	return str, nil
}

// Bytes pins a managed byte array. Empty arrays are rejected unless
// allowEmpty is set.
func (l *Lowerer) Bytes(path []string, a managed.ByteArray, allowEmpty bool) (View, error) {
	if a == nil {
		return View{}, errors.NullArgument(errors.PhaseLower, path, "byte[]")
	}
	if a.Len() == 0 && !allowEmpty {
		return View{}, errors.InvalidLength(errors.PhaseLower, path, 0, -1)
	}
	v := View{arr: a, data: a.Pin()}
	l.views = append(l.views, v)
	return v, nil
}

// XorName copies a managed byte array of exactly native.XorNameLen bytes.
func (l *Lowerer) XorName(path []string, a managed.ByteArray) (native.XorName, error) {
	var n native.XorName
	if a == nil {
		return n, errors.NullArgument(errors.PhaseLower, path, "byte[]")
	}
	if a.Len() != native.XorNameLen {
		return n, errors.InvalidLength(errors.PhaseLower, path, a.Len(), native.XorNameLen)
	}
	copy(n[:], a.Pin())
	a.Unpin()
	return n, nil
}

// Uint8 range-checks a managed int against u8.
func Uint8(path []string, v int32) (uint8, error) {
	if v < 0 || v > math.MaxUint8 {
		return 0, errors.Overflow(errors.PhaseLower, path, v, "u8")
	}
	return uint8(v), nil
}

// Uint32 range-checks a managed long against u32.
func Uint32(path []string, v int64) (uint32, error) {
	if v < 0 || v > math.MaxUint32 {
		return 0, errors.Overflow(errors.PhaseLower, path, v, "u32")
	}
	return uint32(v), nil
}

// Uint64 reinterprets a managed long as u64. Managed runtimes have no
// unsigned long, so the bit pattern is carried unchanged.
func Uint64(v int64) uint64 {
	return uint64(v)
}

// field reads a required, non-null field of type T.
func field[T any](obj managed.Object, path []string, name, nativeType string) (T, error) {
	var zero T
	v, ok := obj.Field(name)
	if !ok {
		return zero, errors.FieldMissing(errors.PhaseLower, path, name)
	}
	if v == nil {
		return zero, errors.NullArgument(errors.PhaseLower, sub(path, name), nativeType)
	}
	t, ok := v.(T)
	if !ok {
		return zero, errors.TypeMismatch(errors.PhaseLower, sub(path, name), typeName(v), nativeType)
	}
	return t, nil
}

// optional reads a field of type T that may be missing or null.
func optional[T any](obj managed.Object, path []string, name, nativeType string) (T, bool, error) {
	var zero T
	v, ok := obj.Field(name)
	if !ok || v == nil {
		return zero, false, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, false, errors.TypeMismatch(errors.PhaseLower, sub(path, name), typeName(v), nativeType)
	}
	return t, true, nil
}

func object(path []string, obj managed.Object, class string) error {
	if obj == nil {
		return errors.NullArgument(errors.PhaseLower, path, class)
	}
	if c := obj.Class(); c != class {
		return errors.TypeMismatch(errors.PhaseLower, path, c, class)
	}
	return nil
}

// DataID lowers a DataIdentifier object. The name may be absent only for
// immutable data when nameOptional is set, since the network derives it.
func (l *Lowerer) DataID(path []string, obj managed.Object, nameOptional bool) (native.DataID, error) {
	var id native.DataID
	if err := object(path, obj, managed.ClassDataID); err != nil {
		return id, err
	}

	kind, err := field[int32](obj, path, managed.FieldKind, "u8")
	if err != nil {
		return id, err
	}
	k, err := Uint8(sub(path, managed.FieldKind), kind)
	if err != nil {
		return id, err
	}
	id.Kind = native.DataKind(k)
	if !id.Kind.Valid() {
		return id, errors.New(errors.PhaseLower, errors.KindInvalidArgument).
			Path(sub(path, managed.FieldKind)...).
			Detail("unknown data kind %d", k).
			Value(kind).
			Build()
	}

	name, present, err := optional[managed.ByteArray](obj, path, managed.FieldName, "XorName")
	if err != nil {
		return id, err
	}
	switch {
	case present:
		if id.Name, err = l.XorName(sub(path, managed.FieldName), name); err != nil {
			return id, err
		}
	case !(nameOptional && id.Kind == native.DataImmutable):
		return id, errors.FieldMissing(errors.PhaseLower, path, managed.FieldName)
	}

	if id.Kind == native.DataImmutable {
		return id, nil
	}
	tag, err := field[int64](obj, path, managed.FieldTypeTag, "u64")
	if err != nil {
		return id, err
	}
	id.TypeTag = Uint64(tag)
	return id, nil
}

// Data lowers a Data object. Content is a borrowed view.
func (l *Lowerer) Data(path []string, obj managed.Object) (native.Data, error) {
	var d native.Data
	if err := object(path, obj, managed.ClassData); err != nil {
		return d, err
	}

	idObj, err := field[managed.Object](obj, path, managed.FieldID, managed.ClassDataID)
	if err != nil {
		return d, err
	}
	if d.ID, err = l.DataID(sub(path, managed.FieldID), idObj, true); err != nil {
		return d, err
	}

	version, err := field[int64](obj, path, managed.FieldVersion, "u64")
	if err != nil {
		return d, err
	}
	d.Version = Uint64(version)

	content, err := field[managed.ByteArray](obj, path, managed.FieldContent, "byte[]")
	if err != nil {
		return d, err
	}
	view, err := l.Bytes(sub(path, managed.FieldContent), content, true)
	if err != nil {
		return d, err
	}
	d.Content = view.Bytes()
	return d, nil
}

// Append lowers an AppendWrapper object. The appended content must not be
// empty.
func (l *Lowerer) Append(path []string, obj managed.Object) (native.Append, error) {
	var a native.Append
	if err := object(path, obj, managed.ClassAppend); err != nil {
		return a, err
	}

	target, err := field[managed.Object](obj, path, managed.FieldTarget, managed.ClassDataID)
	if err != nil {
		return a, err
	}
	if a.Target, err = l.DataID(sub(path, managed.FieldTarget), target, false); err != nil {
		return a, err
	}

	content, err := field[managed.ByteArray](obj, path, managed.FieldContent, "byte[]")
	if err != nil {
		return a, err
	}
	view, err := l.Bytes(sub(path, managed.FieldContent), content, false)
	if err != nil {
		return a, err
	}
	a.Content = view.Bytes()
	return a, nil
}

// Credentials lowers an account locator and password. Neither may be empty.
func (l *Lowerer) Credentials(locator, password managed.String) (native.Credentials, error) {
	var c native.Credentials
	var err error
	if c.Locator, err = l.NonEmptyString([]string{"locator"}, locator); err != nil {
		return c, err
	}
	if c.Password, err = l.NonEmptyString([]string{"password"}, password); err != nil {
		return c, err
	}
	return c, nil
}

func (l *Lowerer) metadata(path []string, obj managed.Object) (nfs.Metadata, error) {
	var m nfs.Metadata
	if err := object(path, obj, managed.ClassMetadata); err != nil {
		return m, err
	}

	name, err := field[managed.String](obj, path, managed.FieldName, "String")
	if err != nil {
		return m, err
	}
	if m.Name, err = l.NonEmptyString(sub(path, managed.FieldName), name); err != nil {
		return m, err
	}

	um, ok, err := optional[managed.ByteArray](obj, path, managed.FieldUserMetadata, "byte[]")
	if err != nil {
		return m, err
	}
	if ok && um.Len() > 0 {
		m.UserMetadata = append([]byte(nil), um.Pin()...)
		um.Unpin()
	}

	for _, ts := range []struct {
		name string
		dst  *time.Time
	}{
		{managed.FieldCreated, &m.Created},
		{managed.FieldModified, &m.Modified},
	} {
		n, err := field[int64](obj, path, ts.name, "timestamp")
		if err != nil {
			return m, err
		}
		*ts.dst = fromUnixNano(n)
	}

	size, ok, err := optional[int64](obj, path, managed.FieldSize, "u64")
	if err != nil {
		return m, err
	}
	if ok {
		m.Size = Uint64(size)
	}
	return m, nil
}

func list(obj managed.Object, path []string, name string) ([]managed.Value, error) {
	vals, ok, err := optional[[]managed.Value](obj, path, name, "Object[]")
	if err != nil || !ok {
		return nil, err
	}
	if len(vals) > MaxListLen {
		return nil, errors.New(errors.PhaseLower, errors.KindInvalidLength).
			Path(sub(path, name)...).
			Detail("list of %d elements exceeds %d", len(vals), MaxListLen).
			Build()
	}
	return vals, nil
}

func asObject(path []string, v managed.Value, class string) (managed.Object, error) {
	if v == nil {
		return nil, errors.NullArgument(errors.PhaseLower, path, class)
	}
	o, ok := v.(managed.Object)
	if !ok {
		return nil, errors.TypeMismatch(errors.PhaseLower, path, typeName(v), class)
	}
	return o, nil
}

// Listing lowers a DirectoryListing object. The result is validated the same
// way it would be before encoding.
func (l *Lowerer) Listing(path []string, obj managed.Object) (*nfs.DirectoryListing, error) {
	if err := object(path, obj, managed.ClassDirectoryListing); err != nil {
		return nil, err
	}
	d := &nfs.DirectoryListing{}

	idArr, err := field[managed.ByteArray](obj, path, managed.FieldID, "XorName")
	if err != nil {
		return nil, err
	}
	if d.ID, err = l.XorName(sub(path, managed.FieldID), idArr); err != nil {
		return nil, err
	}

	mdObj, err := field[managed.Object](obj, path, managed.FieldMetadata, managed.ClassMetadata)
	if err != nil {
		return nil, err
	}
	if d.Metadata, err = l.metadata(sub(path, managed.FieldMetadata), mdObj); err != nil {
		return nil, err
	}

	dirs, err := list(obj, path, managed.FieldSubDirectories)
	if err != nil {
		return nil, err
	}
	for i, v := range dirs {
		p := index(sub(path, managed.FieldSubDirectories), i)
		o, err := asObject(p, v, managed.ClassContainerInfo)
		if err != nil {
			return nil, err
		}
		info, err := l.containerInfo(p, o)
		if err != nil {
			return nil, err
		}
		d.SubDirectories = append(d.SubDirectories, info)
	}

	files, err := list(obj, path, managed.FieldFiles)
	if err != nil {
		return nil, err
	}
	for i, v := range files {
		p := index(sub(path, managed.FieldFiles), i)
		o, err := asObject(p, v, managed.ClassFile)
		if err != nil {
			return nil, err
		}
		f, err := l.file(p, o)
		if err != nil {
			return nil, err
		}
		d.Files = append(d.Files, f)
	}

	if err := d.Validate(); err != nil {
		return nil, errors.Wrap(errors.PhaseLower, errors.KindInvalidArgument, err, "directory listing")
	}
	return d, nil
}

func (l *Lowerer) containerInfo(path []string, obj managed.Object) (nfs.ContainerInfo, error) {
	var info nfs.ContainerInfo
	if err := object(path, obj, managed.ClassContainerInfo); err != nil {
		return info, err
	}
	idArr, err := field[managed.ByteArray](obj, path, managed.FieldID, "XorName")
	if err != nil {
		return info, err
	}
	if info.ID, err = l.XorName(sub(path, managed.FieldID), idArr); err != nil {
		return info, err
	}
	md, err := field[managed.Object](obj, path, managed.FieldMetadata, managed.ClassMetadata)
	if err != nil {
		return info, err
	}
	info.Metadata, err = l.metadata(sub(path, managed.FieldMetadata), md)
	return info, err
}

func (l *Lowerer) file(path []string, obj managed.Object) (nfs.File, error) {
	var f nfs.File
	if err := object(path, obj, managed.ClassFile); err != nil {
		return f, err
	}
	md, err := field[managed.Object](obj, path, managed.FieldMetadata, managed.ClassMetadata)
	if err != nil {
		return f, err
	}
	if f.Metadata, err = l.metadata(sub(path, managed.FieldMetadata), md); err != nil {
		return f, err
	}
	dm, err := field[managed.ByteArray](obj, path, managed.FieldDataMap, "byte[]")
	if err != nil {
		return f, err
	}
	if dm.Len() > 0 {
		f.DataMap = append([]byte(nil), dm.Pin()...)
		dm.Unpin()
	}
	return f, nil
}

// fromUnixNano maps a managed timestamp to UTC. 0 is the epoch, not the
// zero time.Time, so a listing created at the epoch survives lowering.
func fromUnixNano(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

// toUnixNano maps a native timestamp to nanoseconds since the epoch. The zero
// time.Time has no managed representation and lifts as the epoch.
func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}
