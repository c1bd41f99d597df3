package main

/*
#include <stdint.h>
#include <stdlib.h>
#include "safecore.h"
*/
import "C"

import (
	"unsafe"

	"go.uber.org/zap"

	"github.com/Fraser999/safe-core/bridge"
	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/hostvm"
)

func goBytes(p *C.uint8_t, n C.size_t) []byte {
	if p == nil {
		return nil
	}
	if n == 0 {
		return []byte{}
	}
	return C.GoBytes(unsafe.Pointer(p), C.int(n))
}

func goString(p *C.char) *string {
	if p == nil {
		return nil
	}
	s := C.GoString(p)
	return &s
}

// safe_init loads the library. fatal may be NULL, in which case fatal
// bridge errors abort the process.
//
//export safe_init
func safe_init(config *C.char, n C.size_t, fatal C.safe_fatal_fn, user unsafe.Pointer) C.int32_t {
	code, err := lib.load(goBytes((*C.uint8_t)(unsafe.Pointer(config)), n), fatalHandler(fatal, user))
	if err != nil {
		bridge.Logger().Error("safe_init failed", zap.Error(err))
	}
	return C.int32_t(code)
}

//export safe_shutdown
func safe_shutdown() C.int32_t {
	if err := lib.unload(); err != nil {
		bridge.Logger().Error("safe_shutdown failed", zap.Error(err))
		return -1
	}
	return 0
}

//export safe_create_account
func safe_create_account(locator, password *C.char, cb *C.safe_callback) C.int64_t {
	return C.int64_t(lib.account(false, goString(locator), goString(password), callback(cb)))
}

//export safe_login
func safe_login(locator, password *C.char, cb *C.safe_callback) C.int64_t {
	return C.int64_t(lib.account(true, goString(locator), goString(password), callback(cb)))
}

//export safe_get_account_info
func safe_get_account_info(cb *C.safe_callback) C.int64_t {
	c := callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.GetAccountInfo(env, c)
	}))
}

//export safe_get
func safe_get(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, cb *C.safe_callback) C.int64_t {
	id, c := dataID(int32(kind), goBytes(name, nameLen), uint64(tag)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.Get(env, id, c)
	}))
}

//export safe_get_stream
func safe_get_stream(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, chunkSize C.int64_t, cb *C.safe_callback) C.int64_t {
	id, c := dataID(int32(kind), goBytes(name, nameLen), uint64(tag)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.GetStream(env, id, int64(chunkSize), c)
	}))
}

//export safe_put
func safe_put(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, version C.uint64_t, content *C.uint8_t, contentLen C.size_t, cb *C.safe_callback) C.int64_t {
	id := dataID(int32(kind), goBytes(name, nameLen), uint64(tag))
	d, c := data(id, uint64(version), goBytes(content, contentLen)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.Put(env, d, c)
	}))
}

//export safe_post
func safe_post(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, version C.uint64_t, content *C.uint8_t, contentLen C.size_t, cb *C.safe_callback) C.int64_t {
	id := dataID(int32(kind), goBytes(name, nameLen), uint64(tag))
	d, c := data(id, uint64(version), goBytes(content, contentLen)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.Post(env, d, c)
	}))
}

//export safe_delete
func safe_delete(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, version C.uint64_t, cb *C.safe_callback) C.int64_t {
	id, c := dataID(int32(kind), goBytes(name, nameLen), uint64(tag)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.Delete(env, id, int64(version), c)
	}))
}

//export safe_append
func safe_append(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, content *C.uint8_t, contentLen C.size_t, cb *C.safe_callback) C.int64_t {
	id := dataID(int32(kind), goBytes(name, nameLen), uint64(tag))
	a, c := appendWrapper(id, goBytes(content, contentLen)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.Append(env, a, c)
	}))
}

//export safe_put_recover
func safe_put_recover(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, version C.uint64_t, content *C.uint8_t, contentLen C.size_t, cb *C.safe_callback) C.int64_t {
	id := dataID(int32(kind), goBytes(name, nameLen), uint64(tag))
	d, c := data(id, uint64(version), goBytes(content, contentLen)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.PutRecover(env, d, c)
	}))
}

//export safe_delete_recover
func safe_delete_recover(kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, version C.uint64_t, cb *C.safe_callback) C.int64_t {
	id, c := dataID(int32(kind), goBytes(name, nameLen), uint64(tag)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.DeleteRecover(env, id, int64(version), c)
	}))
}

// safe_set_root_dir_id records a root directory in the account. root is 1
// for the user root and 2 for the config root.
//
//export safe_set_root_dir_id
func safe_set_root_dir_id(root C.int32_t, kind C.int32_t, name *C.uint8_t, nameLen C.size_t, tag C.uint64_t, cb *C.safe_callback) C.int64_t {
	id, c := dataID(int32(kind), goBytes(name, nameLen), uint64(tag)), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return setRootDir(env, b, int32(root), id, c)
	}))
}

// safe_root_dir_id stores a malloc'd CBOR DataIdentifier map in *out, or
// NULL when the root is not set. The caller frees it with safe_free.
//
//export safe_root_dir_id
func safe_root_dir_id(root C.int32_t, out **C.uint8_t, n *C.size_t) C.int32_t {
	if out == nil || n == nil {
		return C.int32_t(errors.CodeNullArgument)
	}
	encoded, code := lib.rootDir(int32(root))
	if code != 0 {
		return C.int32_t(code)
	}
	*out, *n = nil, 0
	if encoded != nil {
		*out = (*C.uint8_t)(C.CBytes(encoded))
		*n = C.size_t(len(encoded))
	}
	return 0
}

//export safe_put_directory
func safe_put_directory(listing *C.uint8_t, n C.size_t, cb *C.safe_callback) C.int64_t {
	encoded, c := goBytes(listing, n), callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return putDirectory(env, b, encoded, c)
	}))
}

//export safe_get_directory
func safe_get_directory(name *C.uint8_t, n C.size_t, cb *C.safe_callback) C.int64_t {
	var key managed.ByteArray
	if raw := goBytes(name, n); raw != nil {
		key = hostvm.Bytes(raw)
	}
	c := callback(cb)
	return C.int64_t(lib.submit(func(env *hostvm.Env, b *bridge.Bridge) int64 {
		return b.GetDirectory(env, key, c)
	}))
}

//export safe_cancel
func safe_cancel(ctx C.int64_t) C.int {
	if bridge.Default().Cancel(int64(ctx)) {
		return 1
	}
	return 0
}

// safe_stats stores a malloc'd CBOR Stats map in *out. The caller frees it
// with safe_free.
//
//export safe_stats
func safe_stats(out **C.uint8_t, n *C.size_t) C.int32_t {
	if out == nil || n == nil {
		return C.int32_t(errors.CodeNullArgument)
	}
	encoded, code := lib.stats()
	if code != 0 {
		return C.int32_t(code)
	}
	*out = (*C.uint8_t)(C.CBytes(encoded))
	*n = C.size_t(len(encoded))
	return 0
}

//export safe_free
func safe_free(p unsafe.Pointer) {
	C.free(p)
}

func main() {}
