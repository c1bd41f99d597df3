package main

import (
	"fmt"
	"runtime"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/config"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/hostvm"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/native/mocknet"
	"github.com/Fraser999/safe-core/nfs"
	"github.com/Fraser999/safe-core/transcoder"
)

// library is the process-wide state behind the exported functions.
type library struct {
	vm     *hostvm.VM
	vault  mocknet.Vault
	client *mocknet.Client
	log    *zap.Logger
	mu     sync.Mutex
}

var lib library

// load parses the YAML configuration (empty selects defaults) and loads the
// bridge. onFatal receives protocol violations and attachment failures. It
// returns 0 or a negative error code.
func (l *library) load(yaml []byte, onFatal func(error)) (int32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vm != nil {
		return errors.CodeInvalidArgument, fmt.Errorf("library already initialised")
	}

	cfg, err := config.Parse(yaml)
	if err != nil {
		return errors.CodeInvalidArgument, err
	}
	log, err := cfg.Logger()
	if err != nil {
		return errors.CodeInvalidArgument, err
	}
	vault, err := cfg.OpenVault()
	if err != nil {
		return errors.CodeNotLoaded, err
	}

	vm := hostvm.New(log.Named("host"), onFatal)
	client := mocknet.New(cfg.NetOptions(vault, log.Named("mocknet")))
	if _, err := bridge.Load(cfg.BridgeOptions(vm, client, log.Named("bridge"))); err != nil {
		_ = client.Close()
		_ = vault.Close()
		return errors.CodeNotLoaded, err
	}

	l.vm, l.vault, l.client, l.log = vm, vault, client, log
	log.Info("library initialised", zap.String("vault", cfg.Native.Vault))
	return 0, nil
}

// unload abandons outstanding requests and releases everything load
// created.
func (l *library) unload() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.vm == nil {
		return nil
	}

	vm := l.vm
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if _, err := vm.Enter(); err == nil {
		defer func() { _ = vm.DetachCurrentThread() }()
	}

	err := bridge.Unload()
	if cerr := l.client.Close(); err == nil {
		err = cerr
	}
	if verr := l.vault.Close(); err == nil {
		err = verr
	}
	_ = l.log.Sync()
	l.vm, l.vault, l.client, l.log = nil, nil, nil, nil
	return err
}

// submit runs one entry point on the calling host thread. It returns the
// request context, 0 when the failure was already delivered to the
// callback, or a negative code when nothing could be delivered.
func (l *library) submit(fn func(env *hostvm.Env, b *bridge.Bridge) int64) int64 {
	return l.enter(fn)
}

// stats returns the CBOR encoded request counters and 0, or nil and a
// negative code.
func (l *library) stats() ([]byte, int32) {
	var out []byte
	code := l.enter(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		obj, err := b.Stats(env)
		if err == nil {
			out, err = hostvm.Encode(obj)
		}
		if err != nil {
			env.Throw(err)
		}
		return 0
	})
	if code != 0 {
		return nil, int32(code)
	}
	return out, 0
}

// rootDir returns the CBOR encoded root directory id, nil when it is not
// set, or a negative code.
func (l *library) rootDir(root int32) ([]byte, int32) {
	var out []byte
	code := l.enter(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		var obj managed.Object
		var err error
		switch native.RootDir(root) {
		case native.RootUser:
			obj, err = b.UserRootDirID(env)
		case native.RootConfig:
			obj, err = b.ConfigRootDirID(env)
		default:
			err = rootOutOfRange(root)
		}
		if err == nil && obj != nil {
			out, err = hostvm.Encode(obj)
		}
		if err != nil {
			env.Throw(err)
		}
		return 0
	})
	if code != 0 {
		return nil, int32(code)
	}
	return out, 0
}

func (l *library) enter(fn func(env *hostvm.Env, b *bridge.Bridge) int64) int64 {
	l.mu.Lock()
	vm := l.vm
	l.mu.Unlock()
	if vm == nil {
		return int64(errors.CodeNotLoaded)
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	env, err := vm.Enter()
	if err != nil {
		return int64(errors.CodeAttachmentFailure)
	}
	ctx := fn(env, bridge.Default())
	if err := env.TakeThrown(); err != nil {
		return int64(errors.CodeOf(err))
	}
	return ctx
}

// account submits CreateAccount or Login. Host strings arrive as raw
// bytes; invalid UTF-8 is reported to cb instead of being replaced.
func (l *library) account(login bool, locator, password *string, cb managed.Object) int64 {
	loc, lerr := text("locator", locator)
	pw, perr := text("password", password)
	return l.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		for _, err := range []error{lerr, perr} {
			if err != nil && cb != nil {
				return fail(env, cb, err)
			}
		}
		if login {
			return b.Login(env, loc, pw, cb)
		}
		return b.CreateAccount(env, loc, pw, cb)
	})
}

// text converts a host string. A nil s stays null for the bridge to reject.
func text(path string, s *string) (managed.String, error) {
	if s == nil {
		return nil, nil
	}
	if !utf8.ValidString(*s) {
		return nil, errors.InvalidUTF8(errors.PhaseLower, []string{path}, []byte(*s))
	}
	return hostvm.NewString(*s), nil
}

func dataID(kind int32, name []byte, tag uint64) *hostvm.Object {
	fields := map[string]managed.Value{
		managed.FieldKind:    kind,
		managed.FieldTypeTag: int64(tag),
	}
	if name != nil {
		fields[managed.FieldName] = hostvm.Bytes(name)
	}
	return hostvm.NewObject(managed.ClassDataID, fields)
}

func data(id managed.Object, version uint64, content []byte) *hostvm.Object {
	var c managed.Value
	if content != nil {
		c = hostvm.Bytes(content)
	}
	return hostvm.NewObject(managed.ClassData, map[string]managed.Value{
		managed.FieldID:      id,
		managed.FieldVersion: int64(version),
		managed.FieldContent: c,
	})
}

func appendWrapper(target managed.Object, content []byte) *hostvm.Object {
	var c managed.Value
	if content != nil {
		c = hostvm.Bytes(content)
	}
	return hostvm.NewObject(managed.ClassAppend, map[string]managed.Value{
		managed.FieldTarget:  target,
		managed.FieldContent: c,
	})
}

// setRootDir submits SetUserRootDirID or SetConfigRootDirID.
func setRootDir(env *hostvm.Env, b *bridge.Bridge, root int32, id managed.Object, cb managed.Object) int64 {
	switch native.RootDir(root) {
	case native.RootUser:
		return b.SetUserRootDirID(env, id, cb)
	case native.RootConfig:
		return b.SetConfigRootDirID(env, id, cb)
	}
	if cb == nil {
		env.Throw(errors.NullArgument(errors.PhaseLower, []string{"callback"}, "Callback"))
		return 0
	}
	return fail(env, cb, rootOutOfRange(root))
}

func rootOutOfRange(root int32) error {
	return errors.New(errors.PhaseLower, errors.KindInvalidArgument).
		Path("root").
		Detail("root %d is neither user (1) nor config (2)", root).
		Build()
}

// putDirectory decodes a CBOR directory listing from the host and stores it.
func putDirectory(env *hostvm.Env, b *bridge.Bridge, encoded []byte, cb managed.Object) int64 {
	d, err := nfs.Unmarshal(encoded)
	if err != nil {
		return fail(env, cb, errors.Wrap(errors.PhaseLower, errors.KindInvalidData, err, "decode directory listing"))
	}
	listing, err := transcoder.NewLifter(env).Listing(d)
	if err != nil {
		return fail(env, cb, err)
	}
	return b.PutDirectory(env, listing, cb)
}

// fail delivers err to cb before anything was submitted.
func fail(env *hostvm.Env, cb managed.Object, err error) int64 {
	if cb == nil {
		env.Throw(err)
		return 0
	}
	e := errors.EnvelopeOf(err)
	ref, rerr := env.NewGlobalRef(cb)
	if rerr != nil {
		env.Throw(err)
		return 0
	}
	defer env.DeleteGlobalRef(ref)
	if cerr := env.CallVoidMethod(ref, managed.MethodFailure, e.Code, env.NewString(e.Message)); cerr != nil {
		env.ReportUnhandled(cerr)
	}
	return 0
}
