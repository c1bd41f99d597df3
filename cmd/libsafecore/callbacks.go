package main

/*
#include <stdio.h>
#include <stdlib.h>
#include "safecore.h"

static void safe_call_success(safe_callback cb, const uint8_t *p, size_t n) {
	cb.on_success(cb.user, p, n);
}

static void safe_call_failure(safe_callback cb, int32_t code, const char *msg) {
	cb.on_failure(cb.user, code, msg);
}

static void safe_call_progress(safe_callback cb, int64_t done, int64_t total, const uint8_t *p, size_t n) {
	if (cb.on_progress != NULL) {
		cb.on_progress(cb.user, done, total, p, n);
	}
}

static void safe_call_fatal(safe_fatal_fn fn, void *user, int32_t code, const char *msg) {
	if (fn == NULL) {
		fprintf(stderr, "safecore: fatal error %d: %s\n", code, msg);
		abort();
	}
	fn(user, code, msg);
}

static int safe_callback_valid(const safe_callback *cb) {
	return cb != NULL && cb->on_success != NULL && cb->on_failure != NULL;
}
*/
import "C"

import (
	"unsafe"

	"github.com/Fraser999/safe-core/errors"
	"github.com/Fraser999/safe-core/managed"
	"github.com/Fraser999/safe-core/managed/hostvm"
)

// cHandler forwards results to a C callback struct. Buffers passed to C are
// only valid for the duration of the call.
type cHandler struct {
	cb C.safe_callback
}

func bytesPtr(b []byte) (*C.uint8_t, C.size_t) {
	if len(b) == 0 {
		return nil, 0
	}
	return (*C.uint8_t)(unsafe.Pointer(&b[0])), C.size_t(len(b))
}

func (h cHandler) OnSuccess(result []byte) {
	p, n := bytesPtr(result)
	C.safe_call_success(h.cb, p, n)
}

func (h cHandler) OnFailure(code int32, message string) {
	msg := C.CString(message)
	defer C.free(unsafe.Pointer(msg))
	C.safe_call_failure(h.cb, C.int32_t(code), msg)
}

func (h cHandler) OnProgress(done, total int64, chunk []byte) {
	p, n := bytesPtr(chunk)
	C.safe_call_progress(h.cb, C.int64_t(done), C.int64_t(total), p, n)
}

// callback wraps a C callback struct as a managed callback object. It
// returns nil when the struct or one of its required functions is NULL.
func callback(cb *C.safe_callback) managed.Object {
	if C.safe_callback_valid(cb) == 0 {
		return nil
	}
	return &hostvm.Callback{Handler: cHandler{cb: *cb}}
}

// fatalHandler reports fatal bridge errors to fn, or aborts when fn is NULL.
func fatalHandler(fn C.safe_fatal_fn, user unsafe.Pointer) func(error) {
	return func(err error) {
		e := errors.EnvelopeOf(err)
		msg := C.CString(e.Message)
		defer C.free(unsafe.Pointer(msg))
		C.safe_call_fatal(fn, user, C.int32_t(e.Code), msg)
	}
}
