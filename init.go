// Copyright (C) 2017. See AUTHORS.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

/*
Package openssl drives OpenSSL's TLS state machine through in-memory BIO pairs
so that servers can terminate TLS with a non-blocking wrap/unwrap record API.

A process first calls Initialize once. Each TLS endpoint then gets a Context,
built from a Config and made ready with Init; every accepted connection asks
the Context for an SSLEngine and pumps bytes through Wrap and Unwrap:

	if err := openssl.Initialize(openssl.LibraryConfig{}); err != nil {
		log.Fatal(err)
	}
	ctx, err := openssl.NewContext(&openssl.Config{
		Protocols: []string{"TLSv1.2", "TLSv1.3"},
		Certificates: []*openssl.CertificateConfig{{
			CertificateFile:    "server.pem",
			CertificateKeyFile: "server.key",
		}},
	}, []string{"h2", "http/1.1"})
	if err != nil {
		log.Fatal(err)
	}
	if err := ctx.Init(); err != nil {
		log.Fatal(err)
	}
	engine, err := ctx.NewEngine()

Conn wraps an SSLEngine around a net.Conn for callers that prefer blocking
I/O.

Every call into OpenSSL runs with its goroutine locked to the OS thread, since
OpenSSL keeps a per-thread error queue that has to be drained by the same
thread that filled it.
*/
package openssl

// #include "shim.h"
import "C"

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/spacemonkeygo/spacelog"
)

var logger = spacelog.GetLogger()

func init() {
	if rc := C.X_shim_init(); rc != 1 {
		panic(fmt.Errorf("openssl: shim initialization failed: %v",
			errorFromErrorQueue()))
	}
}

// QueueError carries every entry drained from OpenSSL's error queue, oldest
// first.
type QueueError struct {
	Entries []string
}

func (e *QueueError) Error() string {
	return "SSL errors: " + strings.Join(e.Entries, "\n")
}

// errorFromErrorQueue needs to run in the same OS thread as the operation
// that caused the possible error
func errorFromErrorQueue() error {
	var entries []string
	buf := make([]byte, 256)
	for {
		code := C.ERR_get_error()
		if code == 0 {
			break
		}
		n := C.X_ERR_error_string(code,
			(*C.char)(unsafe.Pointer(&buf[0])), C.int(len(buf)))
		entries = append(entries, string(buf[:n]))
	}
	if len(entries) == 0 {
		entries = append(entries, "0:Error unavailable")
	}
	return &QueueError{Entries: entries}
}

// lastError drains the error queue and returns nil if it was empty. Like
// errorFromErrorQueue it must run on the thread that made the failing call.
func lastError() error {
	if C.ERR_peek_error() == 0 {
		return nil
	}
	return errorFromErrorQueue()
}

func clearErrorQueue() {
	C.ERR_clear_error()
}
