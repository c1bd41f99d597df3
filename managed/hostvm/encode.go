package hostvm

import (
	"fmt"
	"strings"

	"github.com/Fraser999/safe-core/internal/codec"
	"github.com/Fraser999/safe-core/managed"
)

// TypeKey is the map key that carries an object's short class name in
// encoded results, e.g. "Data" for safe/core/Data.
const TypeKey = "@type"

// Encode converts a managed value into CBOR for the host. Objects become
// maps of their fields plus TypeKey, byte arrays become byte strings and
// strings become text.
func Encode(v managed.Value) ([]byte, error) {
	plain, err := plain(v, 0)
	if err != nil {
		return nil, err
	}
	return codec.Marshal(plain)
}

const maxDepth = 32

func plain(v managed.Value, depth int) (any, error) {
	if depth > maxDepth {
		return nil, fmt.Errorf("hostvm: value nested deeper than %d", maxDepth)
	}
	switch v := v.(type) {
	case nil, bool, int32, int64:
		return v, nil
	case managed.String:
		return String(v.UTF16()).String(), nil
	case managed.ByteArray:
		b := v.Pin()
		defer v.Unpin()
		return append([]byte{}, b...), nil
	case []managed.Value:
		out := make([]any, len(v))
		for i, e := range v {
			p, err := plain(e, depth+1)
			if err != nil {
				return nil, err
			}
			out[i] = p
		}
		return out, nil
	case *Object:
		out := make(map[string]any, len(v.fields)+1)
		for k, f := range v.fields {
			p, err := plain(f, depth+1)
			if err != nil {
				return nil, fmt.Errorf("%s.%s: %w", v.class, k, err)
			}
			out[k] = p
		}
		out[TypeKey] = shortClass(v.class)
		return out, nil
	default:
		return nil, fmt.Errorf("hostvm: cannot encode %T", v)
	}
}

func shortClass(class string) string {
	if i := strings.LastIndexByte(class, '/'); i >= 0 {
		return class[i+1:]
	}
	return class
}
