package transcoder

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/simvm"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/nfs"
)

func codeOf(t *testing.T, err error) int32 {
	t.Helper()
	if err == nil {
		t.Fatal("expected error")
	}
	return errors.CodeOf(err)
}

func TestLowerer_String(t *testing.T) {
	tests := []struct {
		name  string
		in    managed.String
		want  string
		code  int32
		fails bool
	}{
		{name: "ascii", in: simvm.NewString("alice"), want: "alice"},
		{name: "empty", in: simvm.NewString(""), want: ""},
		{name: "surrogate pair", in: simvm.NewString("a\U0001F600b"), want: "a\U0001F600b"},
		{name: "bmp", in: simvm.NewString("żółw"), want: "żółw"},
		{name: "null", in: nil, fails: true, code: errors.CodeNullArgument},
		{name: "lone high at end", in: simvm.String{'a', 0xD83D}, fails: true, code: errors.CodeInvalidEncoding},
		{name: "lone low", in: simvm.String{0xDE00, 'a'}, fails: true, code: errors.CodeInvalidEncoding},
		{name: "high then ascii", in: simvm.String{0xD83D, 'a'}, fails: true, code: errors.CodeInvalidEncoding},
		{name: "too long", in: make(simvm.String, MaxStringLen+1), fails: true, code: errors.CodeInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLowerer()
			defer l.Release()
			got, err := l.String([]string{"s"}, tt.in)
			if tt.fails {
				if code := codeOf(t, err); code != tt.code {
					t.Fatalf("code = %d, want %d (%v)", code, tt.code, err)
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLowerer_StringErrorPosition(t *testing.T) {
	l := NewLowerer()
	defer l.Release()
	_, err := l.String([]string{"locator"}, simvm.String{'x', 'y', 0xDC00})
	if err == nil || !strings.Contains(err.Error(), "index 2") || !strings.Contains(err.Error(), "at locator") {
		t.Fatalf("err = %v", err)
	}
}

func TestLowerer_MaxLengthString(t *testing.T) {
	units := make(simvm.String, MaxStringLen)
	for i := range units {
		units[i] = 'a' + uint16(i%26)
	}
	l := NewLowerer()
	defer l.Release()
	s, err := l.String(nil, units)
	if err != nil {
		t.Fatal(err)
	}
	if len(s) != MaxStringLen {
		t.Fatalf("len = %d", len(s))
	}
	if simvm.GoString(simvm.NewString(s)) != s {
		t.Fatal("round trip")
	}
}

func TestLowerer_Bytes(t *testing.T) {
	l := NewLowerer()

	if _, err := l.Bytes([]string{"b"}, nil, true); codeOf(t, err) != errors.CodeNullArgument {
		t.Fatal("nil array must be a null argument")
	}
	empty := simvm.NewArray(nil)
	if _, err := l.Bytes([]string{"b"}, empty, false); codeOf(t, err) != errors.CodeInvalidLength {
		t.Fatal("empty array must be rejected")
	}
	if _, err := l.Bytes([]string{"b"}, empty, true); err != nil {
		t.Fatal(err)
	}

	arr := simvm.NewArray([]byte{1, 2, 3})
	v, err := l.Bytes([]string{"b"}, arr, false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(v.Bytes(), []byte{1, 2, 3}) || arr.Pinned() != 1 {
		t.Fatal("view must borrow the pinned array")
	}
	owned := v.Copy()
	arr.Fill(9)
	if owned[0] != 1 {
		t.Fatal("Copy must not alias")
	}

	if l.Pinned() != 2 {
		t.Fatalf("pinned = %d", l.Pinned())
	}
	l.Release()
	if arr.Pinned() != 0 || empty.Pinned() != 0 {
		t.Fatal("Release must unpin every view")
	}
}

func TestLowerer_XorName(t *testing.T) {
	l := NewLowerer()
	defer l.Release()

	for _, n := range []int{0, 31, 33} {
		_, err := l.XorName([]string{"name"}, simvm.NewArray(make([]byte, n)))
		if codeOf(t, err) != errors.CodeInvalidLength {
			t.Fatalf("length %d: %v", n, err)
		}
	}
	src := bytes.Repeat([]byte{7}, 32)
	arr := simvm.NewArray(src)
	name, err := l.XorName(nil, arr)
	if err != nil || name[31] != 7 {
		t.Fatal(err)
	}
	if arr.Pinned() != 0 {
		t.Fatal("XorName copies and unpins")
	}
}

func TestIntegerRanges(t *testing.T) {
	if v, err := Uint8(nil, 255); err != nil || v != 255 {
		t.Fatal("255 fits u8")
	}
	for _, v := range []int32{-1, 256, math.MaxInt32} {
		if _, err := Uint8(nil, v); codeOf(t, err) != errors.CodeOverflow {
			t.Fatalf("%d must overflow u8", v)
		}
	}
	if v, err := Uint32(nil, math.MaxUint32); err != nil || v != math.MaxUint32 {
		t.Fatal("max u32 fits")
	}
	for _, v := range []int64{-1, math.MaxUint32 + 1} {
		if _, err := Uint32(nil, v); codeOf(t, err) != errors.CodeOverflow {
			t.Fatalf("%d must overflow u32", v)
		}
	}
	if Uint64(-1) != math.MaxUint64 || Uint64(0) != 0 || Uint64(math.MaxInt64) != math.MaxInt64 {
		t.Fatal("u64 carries the bit pattern")
	}
}

func dataIDObject(kind int32, name []byte, tag int64) *simvm.Object {
	fields := map[string]managed.Value{managed.FieldKind: kind, managed.FieldTypeTag: tag}
	if name != nil {
		fields[managed.FieldName] = simvm.NewArray(name)
	}
	return simvm.NewObject(managed.ClassDataID, fields)
}

func TestLowerer_DataID(t *testing.T) {
	name := bytes.Repeat([]byte{1}, 32)

	tests := []struct {
		name         string
		obj          managed.Object
		nameOptional bool
		code         int32
	}{
		{"structured", dataIDObject(2, name, 10), false, 0},
		{"immutable without name", dataIDObject(1, nil, 0), true, 0},
		{"structured without name", dataIDObject(2, nil, 10), true, errors.CodeFieldMissing},
		{"immutable name required", dataIDObject(1, nil, 0), false, errors.CodeFieldMissing},
		{"unknown kind", dataIDObject(9, name, 0), false, errors.CodeInvalidArgument},
		{"kind overflow", dataIDObject(300, name, 0), false, errors.CodeOverflow},
		{"short name", dataIDObject(2, name[:5], 0), false, errors.CodeInvalidLength},
		{"null object", nil, false, errors.CodeNullArgument},
		{"wrong class", simvm.NewObject(managed.ClassData, nil), false, errors.CodeTypeMismatch},
		{"kind wrong type", simvm.NewObject(managed.ClassDataID, map[string]managed.Value{
			managed.FieldKind: int64(2),
		}), false, errors.CodeTypeMismatch},
		{"missing kind", simvm.NewObject(managed.ClassDataID, nil), false, errors.CodeFieldMissing},
		{"null kind", simvm.NewObject(managed.ClassDataID, map[string]managed.Value{
			managed.FieldKind: nil,
		}), false, errors.CodeNullArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLowerer()
			defer l.Release()
			_, err := l.DataID([]string{"id"}, tt.obj, tt.nameOptional)
			if tt.code == 0 {
				if err != nil {
					t.Fatal(err)
				}
				return
			}
			if code := codeOf(t, err); code != tt.code {
				t.Fatalf("code = %d, want %d (%v)", code, tt.code, err)
			}
		})
	}
}

func TestLowerer_Append(t *testing.T) {
	l := NewLowerer()
	defer l.Release()

	obj := simvm.NewObject(managed.ClassAppend, map[string]managed.Value{
		managed.FieldTarget:  dataIDObject(3, make([]byte, 32), 1),
		managed.FieldContent: simvm.NewArray(nil),
	})
	_, err := l.Append([]string{"append"}, obj)
	if codeOf(t, err) != errors.CodeInvalidLength {
		t.Fatalf("empty append content: %v", err)
	}
	if !strings.Contains(err.Error(), "append.content") {
		t.Fatalf("path missing from %v", err)
	}
}

func TestLowerer_Credentials(t *testing.T) {
	l := NewLowerer()
	defer l.Release()

	c, err := l.Credentials(simvm.NewString("alice"), simvm.NewString("pw"))
	if err != nil || c.Locator != "alice" || c.Password != "pw" {
		t.Fatalf("%+v %v", c, err)
	}
	if _, err := l.Credentials(simvm.NewString(""), simvm.NewString("pw")); codeOf(t, err) != errors.CodeInvalidLength {
		t.Fatal("empty locator")
	}
	if _, err := l.Credentials(simvm.NewString("a"), nil); codeOf(t, err) != errors.CodeNullArgument {
		t.Fatal("null password")
	}
}

func fieldOf(t *testing.T, obj managed.Value, name string) managed.Value {
	t.Helper()
	o, ok := obj.(managed.Object)
	if !ok {
		t.Fatalf("%T is not an object", obj)
	}
	v, ok := o.Field(name)
	if !ok {
		t.Fatalf("field %q missing from %s", name, o.Class())
	}
	return v
}

func arrayBytes(t *testing.T, v managed.Value) []byte {
	t.Helper()
	return v.(*simvm.Array).Bytes()
}

// Data lowered from managed values and lifted back must keep every field.
func TestRoundTrip_Data(t *testing.T) {
	vm := simvm.New()
	env, leave := vm.Enter()
	defer leave()

	var alloc native.Allocator
	name := bytes.Repeat([]byte{0xAB}, 32)

	tests := []struct {
		name    string
		kind    int32
		version int64
		tag     int64
		content []byte
	}{
		{"zero", 2, 0, 0, []byte{}},
		{"max long", 2, math.MaxInt64, math.MaxInt64, []byte("x")},
		{"max u64", 4, -1, -1, bytes.Repeat([]byte{0xFF}, 4096)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := simvm.NewObject(managed.ClassData, map[string]managed.Value{
				managed.FieldID:      dataIDObject(tt.kind, name, tt.tag),
				managed.FieldVersion: tt.version,
				managed.FieldContent: simvm.NewArray(tt.content),
			})

			l := NewLowerer()
			d, err := l.Data([]string{"data"}, obj)
			if err != nil {
				t.Fatal(err)
			}
			rec := native.Record{ID: d.ID, Version: d.Version, Content: alloc.Alloc(d.Content)}
			l.Release()

			out, err := NewLifter(env).Record(rec)
			if err != nil {
				t.Fatal(err)
			}
			if fieldOf(t, out, managed.FieldVersion) != tt.version {
				t.Fatalf("version = %v", fieldOf(t, out, managed.FieldVersion))
			}
			if !bytes.Equal(arrayBytes(t, fieldOf(t, out, managed.FieldContent)), tt.content) {
				t.Fatal("content changed")
			}
			id := fieldOf(t, out, managed.FieldID)
			if fieldOf(t, id, managed.FieldKind) != tt.kind || fieldOf(t, id, managed.FieldTypeTag) != tt.tag {
				t.Fatal("id changed")
			}
			if !bytes.Equal(arrayBytes(t, fieldOf(t, id, managed.FieldName)), name) {
				t.Fatal("name changed")
			}
		})
	}
	if alloc.Live() != 0 {
		t.Fatalf("live buffers = %d", alloc.Live())
	}
}

func metadataObject(name string, created int64) *simvm.Object {
	return simvm.NewObject(managed.ClassMetadata, map[string]managed.Value{
		managed.FieldName:         simvm.NewString(name),
		managed.FieldUserMetadata: simvm.NewArray([]byte("meta")),
		managed.FieldCreated:      created,
		managed.FieldModified:     created + 1,
		managed.FieldSize:         int64(-1),
	})
}

func TestRoundTrip_Listing(t *testing.T) {
	vm := simvm.New()
	env, leave := vm.Enter()
	defer leave()

	now := time.Now().UnixNano()
	id := bytes.Repeat([]byte{3}, 32)
	obj := simvm.NewObject(managed.ClassDirectoryListing, map[string]managed.Value{
		managed.FieldID:       simvm.NewArray(id),
		managed.FieldMetadata: metadataObject("root", now),
		managed.FieldSubDirectories: []managed.Value{
			simvm.NewObject(managed.ClassContainerInfo, map[string]managed.Value{
				managed.FieldID:       simvm.NewArray(bytes.Repeat([]byte{4}, 32)),
				managed.FieldMetadata: metadataObject("docs", 0),
			}),
		},
		managed.FieldFiles: []managed.Value{
			simvm.NewObject(managed.ClassFile, map[string]managed.Value{
				managed.FieldMetadata: metadataObject("a.txt", now),
				managed.FieldDataMap:  simvm.NewArray([]byte("dm")),
			}),
		},
	})

	l := NewLowerer()
	d, err := l.Listing([]string{"dir"}, obj)
	l.Release()
	if err != nil {
		t.Fatal(err)
	}
	if d.Metadata.Size != math.MaxUint64 || !d.SubDirectories[0].Metadata.Created.Equal(time.Unix(0, 0)) {
		t.Fatalf("lowered %+v", d.Metadata)
	}

	encoded, err := nfs.Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	var alloc native.Allocator
	out, err := NewLifter(env).ListingRecord(native.Record{Content: alloc.Alloc(encoded)})
	if err != nil {
		t.Fatal(err)
	}
	if alloc.Live() != 0 {
		t.Fatal("record content not freed")
	}

	if !bytes.Equal(arrayBytes(t, fieldOf(t, out, managed.FieldID)), id) {
		t.Fatal("id changed")
	}
	md := fieldOf(t, out, managed.FieldMetadata)
	if simvm.GoString(fieldOf(t, md, managed.FieldName).(managed.String)) != "root" {
		t.Fatal("name changed")
	}
	if fieldOf(t, md, managed.FieldCreated) != now || fieldOf(t, md, managed.FieldModified) != now+1 {
		t.Fatal("timestamps changed")
	}
	if fieldOf(t, md, managed.FieldSize) != int64(-1) {
		t.Fatal("size changed")
	}
	dirs := fieldOf(t, out, managed.FieldSubDirectories).([]managed.Value)
	if len(dirs) != 1 || fieldOf(t, fieldOf(t, dirs[0], managed.FieldMetadata), managed.FieldCreated) != int64(0) {
		t.Fatal("sub-directories changed")
	}
	files := fieldOf(t, out, managed.FieldFiles).([]managed.Value)
	if len(files) != 1 || string(arrayBytes(t, fieldOf(t, files[0], managed.FieldDataMap))) != "dm" {
		t.Fatal("files changed")
	}
}

func TestTimestamps_Epoch(t *testing.T) {
	epoch := fromUnixNano(0)
	if epoch.IsZero() || epoch.Unix() != 0 || epoch.Location() != time.UTC {
		t.Fatalf("epoch lowered to %v", epoch)
	}
	if n := toUnixNano(epoch); n != 0 {
		t.Fatalf("epoch lifted to %d", n)
	}
	if n := toUnixNano(time.Time{}); n != 0 {
		t.Fatalf("zero time lifted to %d", n)
	}
	before := time.Unix(-1, 0)
	if got := fromUnixNano(toUnixNano(before)); !got.Equal(before) {
		t.Fatalf("pre-epoch timestamp became %v", got)
	}
}

func TestLowerer_ListingErrors(t *testing.T) {
	dup := simvm.NewObject(managed.ClassDirectoryListing, map[string]managed.Value{
		managed.FieldID:       simvm.NewArray(make([]byte, 32)),
		managed.FieldMetadata: metadataObject("root", 1),
		managed.FieldFiles: []managed.Value{
			simvm.NewObject(managed.ClassFile, map[string]managed.Value{
				managed.FieldMetadata: metadataObject("a", 1),
				managed.FieldDataMap:  simvm.NewArray(nil),
			}),
			simvm.NewObject(managed.ClassFile, map[string]managed.Value{
				managed.FieldMetadata: metadataObject("a", 1),
				managed.FieldDataMap:  simvm.NewArray(nil),
			}),
		},
	})
	badElem := simvm.NewObject(managed.ClassDirectoryListing, map[string]managed.Value{
		managed.FieldID:       simvm.NewArray(make([]byte, 32)),
		managed.FieldMetadata: metadataObject("root", 1),
		managed.FieldFiles:    []managed.Value{int32(5)},
	})

	l := NewLowerer()
	defer l.Release()
	if _, err := l.Listing(nil, dup); codeOf(t, err) != errors.CodeInvalidArgument {
		t.Fatalf("duplicate files: %v", err)
	}
	_, err := l.Listing([]string{"dir"}, badElem)
	if codeOf(t, err) != errors.CodeTypeMismatch || !strings.Contains(err.Error(), "dir.files[0]") {
		t.Fatalf("bad element: %v", err)
	}
}

func TestLifter_Value(t *testing.T) {
	vm := simvm.New()
	env, leave := vm.Enter()
	defer leave()
	lf := NewLifter(env)

	var alloc native.Allocator

	if v, err := lf.Value(nil); v != nil || err != nil {
		t.Fatal("nil lifts to nil")
	}
	info, err := lf.Value(native.AccountInfo{Used: 1, Available: math.MaxUint64})
	if err != nil || fieldOf(t, info, managed.FieldAvailable) != int64(-1) {
		t.Fatalf("account info: %v", err)
	}
	arr, err := lf.Value(alloc.Alloc([]byte("raw")))
	if err != nil || string(arrayBytes(t, arr)) != "raw" {
		t.Fatal("buffer")
	}
	imm, err := lf.Value(native.DataID{Kind: native.DataImmutable})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := imm.(managed.Object).Field(managed.FieldTypeTag); ok {
		t.Fatal("immutable ids carry no type tag")
	}

	_, err = lf.Value(struct{}{})
	if codeOf(t, err) != errors.CodeResultDecode {
		t.Fatalf("unknown result: %v", err)
	}
	_, err = lf.ListingRecord(native.Record{Content: alloc.Alloc([]byte{0xff})})
	if codeOf(t, err) != errors.CodeResultDecode {
		t.Fatalf("bad listing: %v", err)
	}
	if alloc.Live() != 0 {
		t.Fatalf("live = %d", alloc.Live())
	}

	code, msg := lf.Failure(errors.Envelope{Code: 7, Message: "not found"})
	if code != 7 || simvm.GoString(msg) != "not found" {
		t.Fatal("failure")
	}

	done, total, chunk := lf.Progress(native.Event{Kind: native.EventProgress, Done: 4, Total: 10, Chunk: alloc.Alloc([]byte("0123"))})
	if done != 4 || total != 10 || chunk.Len() != 4 || alloc.Live() != 0 {
		t.Fatal("progress")
	}

	rec := native.Record{Content: alloc.Alloc([]byte("x"))}
	Release(rec)
	Release(rec)
	if alloc.Live() != 0 {
		t.Fatal("Release")
	}
}
