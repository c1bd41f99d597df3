package main

import (
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/simvm"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/nfs"
	"github.com/Fraser999/safe-core/transcoder"
)

// typeTag is the tag used for structured and appendable data named by key.
const typeTag = 1000

type param struct {
	name string
	kind string
}

type command struct {
	name   string
	help   string
	params []param
	run    func(s *session, args []string) (outcome, error)
}

var commands = []command{
	{
		name:   "create-account",
		help:   "register an account and log in",
		params: []param{{"locator", "string"}, {"password", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.CreateAccount(env, simvm.NewString(args[0]), simvm.NewString(args[1]), cb)
			})
		},
	},
	{
		name:   "login",
		help:   "log in to an existing account",
		params: []param{{"locator", "string"}, {"password", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Login(env, simvm.NewString(args[0]), simvm.NewString(args[1]), cb)
			})
		},
	},
	{
		name: "account-info",
		help: "show storage usage",
		run: func(s *session, _ []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.GetAccountInfo(env, cb)
			})
		},
	},
	{
		name:   "store",
		help:   "store immutable content",
		params: []param{{"content", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				id := idObject(native.DataImmutable, nil)
				return s.b.Put(env, dataObject(id, 0, []byte(args[0])), cb)
			})
		},
	},
	{
		name:   "fetch",
		help:   "fetch immutable content by hex name",
		params: []param{{"name", "hex"}},
		run: func(s *session, args []string) (outcome, error) {
			name, err := hex.DecodeString(args[0])
			if err != nil {
				return outcome{}, fmt.Errorf("name: %w", err)
			}
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Get(env, idObject(native.DataImmutable, name), cb)
			})
		},
	},
	{
		name:   "put",
		help:   "create mutable data (prefix the key with log: for appendable data)",
		params: []param{{"key", "string"}, {"content", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Put(env, dataObject(keyObject(args[0]), 0, []byte(args[1])), cb)
			})
		},
	},
	{
		name:   "post",
		help:   "replace mutable data with the next version",
		params: []param{{"key", "string"}, {"version", "u64"}, {"content", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return outcome{}, fmt.Errorf("version: %w", err)
			}
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Post(env, dataObject(keyObject(args[0]), version, []byte(args[2])), cb)
			})
		},
	},
	{
		name:   "get",
		help:   "fetch mutable data",
		params: []param{{"key", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Get(env, keyObject(args[0]), cb)
			})
		},
	},
	{
		name:   "stream",
		help:   "fetch mutable data in chunks (0 for the default size)",
		params: []param{{"key", "string"}, {"chunk", "u32"}},
		run: func(s *session, args []string) (outcome, error) {
			size, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return outcome{}, fmt.Errorf("chunk: %w", err)
			}
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.GetStream(env, keyObject(args[0]), size, cb)
			})
		},
	},
	{
		name:   "delete",
		help:   "delete mutable data; version is the next version",
		params: []param{{"key", "string"}, {"version", "u64"}},
		run: func(s *session, args []string) (outcome, error) {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return outcome{}, fmt.Errorf("version: %w", err)
			}
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.Delete(env, keyObject(args[0]), version, cb)
			})
		},
	},
	{
		name:   "append",
		help:   "append to appendable data",
		params: []param{{"key", "string"}, {"content", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				app := simvm.NewObject(managed.ClassAppend, map[string]managed.Value{
					managed.FieldTarget:  keyObject(args[0]),
					managed.FieldContent: simvm.NewArray([]byte(args[1])),
				})
				return s.b.Append(env, app, cb)
			})
		},
	},
	{
		name:   "put-recover",
		help:   "create mutable data, succeeding if this account already stored it",
		params: []param{{"key", "string"}, {"content", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.PutRecover(env, dataObject(keyObject(args[0]), 0, []byte(args[1])), cb)
			})
		},
	},
	{
		name:   "delete-recover",
		help:   "delete mutable data, succeeding if it is already gone",
		params: []param{{"key", "string"}, {"version", "u64"}},
		run: func(s *session, args []string) (outcome, error) {
			version, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return outcome{}, fmt.Errorf("version: %w", err)
			}
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.DeleteRecover(env, keyObject(args[0]), version, cb)
			})
		},
	},
	{
		name:   "set-root",
		help:   "record a directory as the user or config root of the account",
		params: []param{{"root", "user|config"}, {"name", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			set, err := rootSetter(s, args[0])
			if err != nil {
				return outcome{}, err
			}
			name := keyName(args[1])
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return set(env, idObject(native.DataStructured, name[:]), cb)
			})
		},
	},
	{
		name:   "root",
		help:   "show the user or config root directory of the account",
		params: []param{{"root", "user|config"}},
		run: func(s *session, args []string) (outcome, error) {
			var get func(managed.Env) (managed.Object, error)
			switch args[0] {
			case "user":
				get = s.b.UserRootDirID
			case "config":
				get = s.b.ConfigRootDirID
			default:
				return outcome{}, fmt.Errorf("root: want user or config, got %q", args[0])
			}
			var out outcome
			var err error
			s.exec(func(env *simvm.Env) {
				var id managed.Object
				if id, err = get(env); id != nil {
					out.value = id
				}
			})
			return out, err
		},
	},
	{
		name:   "limit",
		help:   "allow only n more network requests (0 removes the limit)",
		params: []param{{"n", "u64"}},
		run: func(s *session, args []string) (outcome, error) {
			n, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return outcome{}, fmt.Errorf("n: %w", err)
			}
			s.client.SetNetworkLimits(n)
			return outcome{}, nil
		},
	},
	{
		name:   "mkdir",
		help:   "store an empty directory listing",
		params: []param{{"name", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			d, err := nfs.NewDirectoryListing(args[0], nil)
			if err != nil {
				return outcome{}, err
			}
			d.ID = keyName(args[0])
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				listing, err := transcoder.NewLifter(env).Listing(d)
				if err != nil {
					env.Throw(err)
					return 0
				}
				return s.b.PutDirectory(env, listing, cb)
			})
		},
	},
	{
		name:   "ls",
		help:   "fetch a directory listing",
		params: []param{{"name", "string"}},
		run: func(s *session, args []string) (outcome, error) {
			name := keyName(args[0])
			return s.call(func(env *simvm.Env, cb *simvm.Callback) int64 {
				return s.b.GetDirectory(env, simvm.NewArray(name[:]), cb)
			})
		},
	},
	{
		name: "stats",
		help: "show issued request counters",
		run: func(s *session, _ []string) (outcome, error) {
			var out outcome
			var err error
			s.exec(func(env *simvm.Env) {
				out.value, err = s.b.Stats(env)
			})
			return out, err
		},
	},
}

func rootSetter(s *session, root string) (func(managed.Env, managed.Object, managed.Object) int64, error) {
	switch root {
	case "user":
		return s.b.SetUserRootDirID, nil
	case "config":
		return s.b.SetConfigRootDirID, nil
	default:
		return nil, fmt.Errorf("root: want user or config, got %q", root)
	}
}

func lookup(name string) (command, bool) {
	for _, c := range commands {
		if c.name == name {
			return c, true
		}
	}
	return command{}, false
}

// execute runs one command line.
func execute(s *session, line string) (command, outcome, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, outcome{}, fmt.Errorf("empty command")
	}
	c, ok := lookup(fields[0])
	if !ok {
		return command{}, outcome{}, fmt.Errorf("unknown command %q", fields[0])
	}
	args := fields[1:]
	if len(args) != len(c.params) {
		return c, outcome{}, fmt.Errorf("%s takes %d arguments, got %d", c.name, len(c.params), len(args))
	}
	out, err := c.run(s, args)
	return c, out, err
}

func keyName(key string) native.XorName {
	return native.XorName(blake3.Sum256([]byte(key)))
}

func keyObject(key string) *simvm.Object {
	name := keyName(key)
	if strings.HasPrefix(key, "log:") {
		return idObject(native.DataPubAppendable, name[:])
	}
	return idObject(native.DataStructured, name[:])
}

func idObject(kind native.DataKind, name []byte) *simvm.Object {
	fields := map[string]managed.Value{
		managed.FieldKind:    int32(kind),
		managed.FieldTypeTag: int64(typeTag),
	}
	if name != nil {
		fields[managed.FieldName] = simvm.NewArray(name)
	}
	return simvm.NewObject(managed.ClassDataID, fields)
}

func dataObject(id managed.Object, version int64, content []byte) *simvm.Object {
	return simvm.NewObject(managed.ClassData, map[string]managed.Value{
		managed.FieldID:      id,
		managed.FieldVersion: version,
		managed.FieldContent: simvm.NewArray(content),
	})
}

// format renders a command outcome on one line.
func format(out outcome) string {
	if out.failed {
		return fmt.Sprintf("error %d: %s", out.code, out.message)
	}
	var b strings.Builder
	b.WriteString("ok")
	if out.progress > 0 {
		fmt.Fprintf(&b, " (%d chunks, %d bytes)", out.progress, out.streamed)
	}
	if out.value != nil {
		b.WriteString(" ")
		b.WriteString(describe(out.value))
	}
	return b.String()
}

func describe(v managed.Value) string {
	switch v := v.(type) {
	case nil:
		return "null"
	case int32, int64, bool:
		return fmt.Sprint(v)
	case managed.String:
		return strconv.Quote(simvm.GoString(v))
	case *simvm.Array:
		data := v.Bytes()
		if len(data) == native.XorNameLen {
			return hex.EncodeToString(data)
		}
		return strconv.Quote(string(data))
	case []managed.Value:
		parts := make([]string, len(v))
		for i, e := range v {
			parts[i] = describe(e)
		}
		return "[" + strings.Join(parts, " ") + "]"
	case *simvm.Object:
		return describeObject(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

var objectFields = []string{
	managed.FieldKind, managed.FieldName, managed.FieldTypeTag, managed.FieldID,
	managed.FieldVersion, managed.FieldContent, managed.FieldUsed, managed.FieldAvailable,
	managed.FieldGets, managed.FieldPuts, managed.FieldPosts, managed.FieldDeletes, managed.FieldAppends,
	managed.FieldMetadata, managed.FieldSize, managed.FieldSubDirectories, managed.FieldFiles,
}

func describeObject(o *simvm.Object) string {
	class := o.Class()
	if i := strings.LastIndexByte(class, '/'); i >= 0 {
		class = class[i+1:]
	}
	var parts []string
	for _, f := range objectFields {
		if v, ok := o.Field(f); ok {
			parts = append(parts, f+"="+describe(v))
		}
	}
	sort.Strings(parts)
	return class + "{" + strings.Join(parts, " ") + "}"
}
