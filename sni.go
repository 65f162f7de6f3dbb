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

package openssl

// #include "shim.h"
import "C"

import (
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
)

// ServerName returns the host name requested through SNI, on a server engine
// once the ClientHello has been read, or the name set with SetServerName on a
// client engine.
func (e *SSLEngine) ServerName() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return e.serverName
	}
	name := C.SSL_get_servername(e.ssl, C.TLSEXT_NAMETYPE_host_name)
	if name == nil {
		return e.serverName
	}
	e.serverName = C.GoString(name)
	return e.serverName
}

// SetServerName sets the SNI host name a client engine sends. It must be
// called before the handshake starts.
func (e *SSLEngine) SetServerName(name string) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return ErrEngineClosed
	}
	if !e.client {
		return errors.New("openssl: server name can only be set on client engines")
	}
	if e.accepted != notAccepted {
		return errors.New("openssl: server name set after handshake start")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	if C.X_SSL_set_tlsext_host_name(e.ssl, cname) != 1 {
		return errorFromErrorQueue()
	}
	e.serverName = name
	return nil
}
