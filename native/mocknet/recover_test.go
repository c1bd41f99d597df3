package mocknet

import (
	"testing"

	"github.com/Fraser999/safe-core/native"
)

func TestClient_PutRecover(t *testing.T) {
	vault := NewMemoryVault()
	a := registered(t, Options{Vault: vault})
	id := structured(3, 10)

	put := func(c *Client, version uint64) native.Event {
		return do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
			return c.PutRecover(native.Data{ID: id, Version: version, Content: []byte("v")}, tr, ctx)
		})
	}

	ev := put(a, 0)
	expectSuccess(t, ev)
	if rec := ev.Value.(native.Record); rec.ID != id || rec.Version != 0 || rec.Content != nil {
		t.Fatalf("record = %+v", rec)
	}

	expectSuccess(t, do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return a.Post(native.Data{ID: id, Version: 1, Content: []byte("w")}, tr, ctx)
	}))
	ev = put(a, 0)
	expectSuccess(t, ev)
	if rec := ev.Value.(native.Record); rec.Version != 1 {
		t.Fatalf("recovered version = %d", rec.Version)
	}

	b := New(Options{Vault: vault})
	defer b.Close()
	expectSuccess(t, do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return b.CreateAccount(native.Credentials{Locator: "bob", Password: "pw"}, tr, ctx)
	}))
	expectFailure(t, put(b, 0), native.CodeDataExists)

	ev = do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return a.PutRecover(native.Data{ID: native.DataID{Kind: native.DataImmutable}, Content: []byte("i")}, tr, ctx)
	})
	expectSuccess(t, ev)
	if got := ev.Value.(native.DataID); got.Name != ImmutableName([]byte("i")) {
		t.Fatalf("immutable recover stored under %v", got)
	}
}

func TestClient_DeleteRecover(t *testing.T) {
	c := registered(t, Options{})
	id := structured(4, 10)

	expectSuccess(t, do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return c.Put(native.Data{ID: id, Content: []byte("x")}, tr, ctx)
	}))
	del := func(version uint64) native.Event {
		return do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
			return c.DeleteRecover(id, version, tr, ctx)
		})
	}
	expectFailure(t, del(5), native.CodeInvalidSuccessor)
	expectSuccess(t, del(1))
	expectSuccess(t, del(1))

	ev := do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return c.Delete(id, 1, tr, ctx)
	})
	expectFailure(t, ev, native.CodeNoSuchData)
}

func TestClient_RootDirs(t *testing.T) {
	vault := NewMemoryVault()
	a := registered(t, Options{Vault: vault})
	user, cfg := structured(7, 15000), structured(8, 15000)

	if _, ok := a.RootDir(native.RootUser); ok {
		t.Fatal("new account has a user root")
	}
	set := func(c *Client, which native.RootDir, id native.DataID) native.Event {
		return do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
			return c.SetRootDir(which, id, tr, ctx)
		})
	}
	expectSuccess(t, set(a, native.RootUser, user))
	expectFailure(t, set(a, native.RootUser, cfg), native.CodeRootDirExists)
	if _, ok := a.RootDir(native.RootConfig); ok {
		t.Fatal("config root set by user root")
	}
	expectSuccess(t, set(a, native.RootConfig, cfg))

	b := New(Options{Vault: vault})
	defer b.Close()
	expectFailure(t, set(b, native.RootUser, user), native.CodeOperationForbidden)
	expectSuccess(t, do(t, func(tr native.Trampoline, ctx native.Context) native.Status {
		return b.Login(testCreds, tr, ctx)
	}))
	if got, ok := b.RootDir(native.RootUser); !ok || got != user {
		t.Fatalf("user root after login = %v %v", got, ok)
	}
	if got, ok := b.RootDir(native.RootConfig); !ok || got != cfg {
		t.Fatalf("config root after login = %v %v", got, ok)
	}

	if st := a.SetRootDir(native.RootDir(9), user, newSink().tr, 2); st != native.Status(native.CodeInvalidOperation) {
		t.Fatalf("unknown root status = %d", st)
	}
}

func TestClient_NetworkLimits(t *testing.T) {
	c := registered(t, Options{MaxOps: 2})
	info := func() native.Event { return do(t, c.GetAccountInfo) }

	expectSuccess(t, info())
	ev := info()
	expectFailure(t, ev, native.CodeOperationAborted)
	if ev.Message != "network operation limit reached" {
		t.Fatalf("message = %q", ev.Message)
	}

	c.SetNetworkLimits(1)
	expectSuccess(t, info())
	expectFailure(t, info(), native.CodeOperationAborted)

	c.SetNetworkLimits(0)
	for _i := 0; _i < 3; _i++ {
		expectSuccess(t, info())
	}
}
