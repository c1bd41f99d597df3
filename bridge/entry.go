package bridge

import (
	"runtime"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/dispatch"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/native"
	"github.com/Fraser999/safe-core/nfs"
	"github.com/Fraser999/safe-core/transcoder"
)

// submitFunc lowers the arguments of one request and hands it to the native
// client. A non-nil error means nothing was submitted.
type submitFunc func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error)

type request struct {
	submit   submitFunc
	lift     dispatch.LiftFunc
	success  managed.Object
	failure  managed.Object
	op       string
	split    bool
	progress bool
}

// start runs the common entry point sequence: pin the callbacks, lower the
// arguments, submit, and report any failure before submission through the
// error path on the calling thread. It returns the request context, or 0
// when the request already completed with an error.
func (b *Bridge) start(env managed.Env, r request) int64 {
	if r.success == nil || r.failure == nil {
		err := errors.NullArgument(errors.PhaseLower, []string{"callback"}, "Callback")
		if r.failure != nil {
			return reject(env, r.failure, err)
		}
		env.Throw(err)
		return 0
	}
	if b == nil {
		return reject(env, r.failure, errors.NotLoaded())
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return reject(env, r.failure, errors.NotLoaded())
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	b.disp.Reap(env)

	call, err := b.pin(env, r)
	if err != nil {
		return reject(env, r.failure, err)
	}
	ctx, err := b.disp.Register(call)
	if err != nil {
		unpin(env, call)
		return reject(env, r.failure, err)
	}

	l := transcoder.NewLowerer()
	defer l.Release()

	status, err := r.submit(l, b.disp.Trampoline, ctx)
	if err != nil {
		b.log.Debug("request rejected",
			zap.String("op", r.op),
			zap.Int32("code", errors.CodeOf(err)),
			zap.Error(err))
		b.disp.Fail(ctx, err)
		return 0
	}
	if status != native.StatusOK {
		code := int32(status)
		b.log.Debug("native submission refused", zap.String("op", r.op), zap.Int32("code", code))
		b.disp.Fail(ctx, errors.Native(code, native.Message(code)))
		return 0
	}

	b.log.Debug("request submitted", zap.String("op", r.op), zap.Uint64("ctx", uint64(ctx)))
	return int64(ctx)
}

func (b *Bridge) pin(env managed.Env, r request) (*dispatch.Call, error) {
	success, err := env.NewGlobalRef(r.success)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseRegistry, errors.KindNullArgument, err, "pin success callback")
	}
	if !r.split {
		call := dispatch.NewCall(r.op, success)
		call.Progress = r.progress
		call.Lift = r.lift
		return call, nil
	}
	failure, err := env.NewGlobalRef(r.failure)
	if err != nil {
		env.DeleteGlobalRef(success)
		return nil, errors.Wrap(errors.PhaseRegistry, errors.KindNullArgument, err, "pin failure callback")
	}
	call := dispatch.NewSplitCall(r.op, success, failure)
	call.Progress = r.progress
	call.Lift = r.lift
	return call, nil
}

func unpin(env managed.Env, call *dispatch.Call) {
	env.DeleteGlobalRef(call.Success)
	if call.Failure != call.Success {
		env.DeleteGlobalRef(call.Failure)
	}
}

// reject delivers err to a callback that was never pinned.
func reject(env managed.Env, failure managed.Object, err error) int64 {
	ref, rerr := env.NewGlobalRef(failure)
	if rerr != nil {
		env.Throw(err)
		return 0
	}
	defer env.DeleteGlobalRef(ref)

	e := errors.EnvelopeOf(err)
	if cerr := env.CallVoidMethod(ref, managed.MethodFailure, e.Code, env.NewString(e.Message)); cerr != nil {
		env.ReportUnhandled(cerr)
	}
	return 0
}

func unified(op string, cb managed.Object, submit submitFunc) request {
	return request{op: op, success: cb, failure: cb, submit: submit}
}

// CreateAccount registers a new account and logs the client in to it.
func (b *Bridge) CreateAccount(env managed.Env, locator, password managed.String, cb managed.Object) int64 {
	return b.start(env, unified("create_account", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		creds, err := l.Credentials(locator, password)
		if err != nil {
			return 0, err
		}
		return b.client.CreateAccount(creds, tr, ctx), nil
	}))
}

// Login logs the client in to an existing account.
func (b *Bridge) Login(env managed.Env, locator, password managed.String, cb managed.Object) int64 {
	return b.start(env, unified("login", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		creds, err := l.Credentials(locator, password)
		if err != nil {
			return 0, err
		}
		return b.client.Login(creds, tr, ctx), nil
	}))
}

// GetAccountInfo fetches the account's storage usage.
func (b *Bridge) GetAccountInfo(env managed.Env, cb managed.Object) int64 {
	return b.start(env, unified("get_account_info", cb, func(_ *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		return b.client.GetAccountInfo(tr, ctx), nil
	}))
}

func (b *Bridge) get(id managed.Object) submitFunc {
	return func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		nid, err := l.DataID([]string{"id"}, id, false)
		if err != nil {
			return 0, err
		}
		return b.client.Get(nid, tr, ctx), nil
	}
}

// Get fetches a data item. onSuccess receives a Data object.
func (b *Bridge) Get(env managed.Env, id managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("get", cb, b.get(id)))
}

// GetSplit is Get with separate success and failure callback objects.
func (b *Bridge) GetSplit(env managed.Env, id managed.Object, onSuccess, onFailure managed.Object) int64 {
	return b.start(env, request{
		op:      "get",
		success: onSuccess,
		failure: onFailure,
		split:   true,
		submit:  b.get(id),
	})
}

// GetStream fetches a data item in chunks delivered through onProgress. A
// chunkSize of 0 selects the configured default. onSuccess receives the Data
// object without content.
func (b *Bridge) GetStream(env managed.Env, id managed.Object, chunkSize int64, cb managed.Object) int64 {
	r := unified("get_stream", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		nid, err := l.DataID([]string{"id"}, id, false)
		if err != nil {
			return 0, err
		}
		size, err := transcoder.Uint32([]string{"chunkSize"}, chunkSize)
		if err != nil {
			return 0, err
		}
		if size == 0 {
			size = b.opts.ChunkSize
		}
		return b.client.GetStream(nid, size, tr, ctx), nil
	})
	r.progress = true
	return b.start(env, r)
}

// Put stores new data. onSuccess receives the DataIdentifier it was stored
// under, which for immutable data is derived from the content.
func (b *Bridge) Put(env managed.Env, data managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("put", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		d, err := l.Data([]string{"data"}, data)
		if err != nil {
			return 0, err
		}
		return b.client.Put(d, tr, ctx), nil
	}))
}

// Post replaces mutable data with its successor version.
func (b *Bridge) Post(env managed.Env, data managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("post", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		d, err := l.Data([]string{"data"}, data)
		if err != nil {
			return 0, err
		}
		return b.client.Post(d, tr, ctx), nil
	}))
}

// Delete removes mutable data. version must be the successor of the stored
// version.
func (b *Bridge) Delete(env managed.Env, id managed.Object, version int64, cb managed.Object) int64 {
	return b.start(env, unified("delete", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		nid, err := l.DataID([]string{"id"}, id, false)
		if err != nil {
			return 0, err
		}
		return b.client.Delete(nid, transcoder.Uint64(version), tr, ctx), nil
	}))
}

// Append adds content to appendable data.
func (b *Bridge) Append(env managed.Env, app managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("append", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		a, err := l.Append([]string{"append"}, app)
		if err != nil {
			return 0, err
		}
		return b.client.Append(a, tr, ctx), nil
	}))
}

// PutRecover stores data like Put and also succeeds when mutable data the
// account owns is already stored under the id. onSuccess receives a Data
// object without content carrying the stored version.
func (b *Bridge) PutRecover(env managed.Env, data managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("put_recover", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		d, err := l.Data([]string{"data"}, data)
		if err != nil {
			return 0, err
		}
		return b.client.PutRecover(d, tr, ctx), nil
	}))
}

// DeleteRecover is Delete that also succeeds when the data is already gone.
func (b *Bridge) DeleteRecover(env managed.Env, id managed.Object, version int64, cb managed.Object) int64 {
	return b.start(env, unified("delete_recover", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		nid, err := l.DataID([]string{"id"}, id, false)
		if err != nil {
			return 0, err
		}
		return b.client.DeleteRecover(nid, transcoder.Uint64(version), tr, ctx), nil
	}))
}

// SetUserRootDirID records the root of the user's directory tree in the
// account. It can be set once per account.
func (b *Bridge) SetUserRootDirID(env managed.Env, id managed.Object, cb managed.Object) int64 {
	return b.setRootDir(env, "set_user_root_dir_id", native.RootUser, id, cb)
}

// SetConfigRootDirID records the root of the configuration directory tree in
// the account. It can be set once per account.
func (b *Bridge) SetConfigRootDirID(env managed.Env, id managed.Object, cb managed.Object) int64 {
	return b.setRootDir(env, "set_config_root_dir_id", native.RootConfig, id, cb)
}

func (b *Bridge) setRootDir(env managed.Env, op string, which native.RootDir, id managed.Object, cb managed.Object) int64 {
	return b.start(env, unified(op, cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		nid, err := l.DataID([]string{"id"}, id, false)
		if err != nil {
			return 0, err
		}
		return b.client.SetRootDir(which, nid, tr, ctx), nil
	}))
}

// UserRootDirID returns the DataIdentifier recorded by SetUserRootDirID, or
// nil when the logged in account has none.
func (b *Bridge) UserRootDirID(env managed.Env) (managed.Object, error) {
	return b.rootDir(env, native.RootUser)
}

// ConfigRootDirID returns the DataIdentifier recorded by
// SetConfigRootDirID, or nil when the logged in account has none.
func (b *Bridge) ConfigRootDirID(env managed.Env) (managed.Object, error) {
	return b.rootDir(env, native.RootConfig)
}

func (b *Bridge) rootDir(env managed.Env, which native.RootDir) (managed.Object, error) {
	if b == nil {
		return nil, errors.NotLoaded()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.NotLoaded()
	}
	id, ok := b.client.RootDir(which)
	if !ok {
		return nil, nil
	}
	return transcoder.NewLifter(env).DataID(id)
}

// PutDirectory stores a new directory listing. onSuccess receives the
// DataIdentifier of the listing.
func (b *Bridge) PutDirectory(env managed.Env, listing managed.Object, cb managed.Object) int64 {
	return b.start(env, unified("put_directory", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		d, err := l.Listing([]string{"directory"}, listing)
		if err != nil {
			return 0, err
		}
		encoded, err := nfs.Marshal(d)
		if err != nil {
			return 0, errors.Wrap(errors.PhaseLower, errors.KindInvalidData, err, "encode directory listing")
		}
		return b.client.Put(native.Data{ID: d.DataID(), Content: encoded}, tr, ctx), nil
	}))
}

// GetDirectory fetches the directory listing stored under name. onSuccess
// receives a DirectoryListing object.
func (b *Bridge) GetDirectory(env managed.Env, name managed.ByteArray, cb managed.Object) int64 {
	r := unified("get_directory", cb, func(l *transcoder.Lowerer, tr native.Trampoline, ctx native.Context) (native.Status, error) {
		xn, err := l.XorName([]string{"name"}, name)
		if err != nil {
			return 0, err
		}
		id := native.DataID{Kind: native.DataStructured, Name: xn, TypeTag: nfs.TagDirectoryListing}
		return b.client.Get(id, tr, ctx), nil
	})
	r.lift = liftListing
	return b.start(env, r)
}

func liftListing(l transcoder.Lifter, v any) (managed.Value, error) {
	rec, ok := v.(native.Record)
	if !ok {
		transcoder.Release(v)
		return nil, errors.New(errors.PhaseLift, errors.KindTypeMismatch).
			Path("directory").
			NativeType("Record").
			Detail("unexpected result for directory fetch").
			Build()
	}
	return l.ListingRecord(rec)
}

// Cancel withdraws an outstanding request. onFailure receives a
// cancellation error unless the request already completed, in which case
// Cancel reports false and nothing is delivered.
func (b *Bridge) Cancel(ctx int64) bool {
	if b == nil || ctx == 0 {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}

	c := native.Context(ctx)
	if !b.disp.Cancel(c) {
		return false
	}
	if st := b.client.Cancel(c); st != native.StatusOK {
		// the terminal event is already in flight and will be dropped
		b.log.Debug("native cancel refused", zap.Uint64("ctx", uint64(c)), zap.Int32("code", int32(st)))
	}
	return true
}

// Stats returns the client's issued-request counters as a managed Stats
// object.
func (b *Bridge) Stats(env managed.Env) (managed.Object, error) {
	if b == nil {
		return nil, errors.NotLoaded()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, errors.NotLoaded()
	}
	return transcoder.NewLifter(env).Stats(b.client.Stats())
}
