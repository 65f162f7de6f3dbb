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
	"os"
	"unsafe"

	"github.com/pkg/errors"
)

const alpnFallback = "http/1.1"

// withALPNFallback copies protocols and appends http/1.1 when the list is not
// empty and does not already carry it.
func withALPNFallback(protocols []string) []string {
	if len(protocols) == 0 {
		return nil
	}
	out := append([]string(nil), protocols...)
	for _, p := range out {
		if p == alpnFallback {
			return out
		}
	}
	return append(out, alpnFallback)
}

// encodeALPN produces the length-prefixed wire list a client offers.
func encodeALPN(protocols []string) ([]byte, error) {
	var wire []byte
	for _, p := range protocols {
		if len(p) == 0 || len(p) > 255 {
			return nil, errors.Errorf("openssl: invalid ALPN protocol %q", p)
		}
		wire = append(wire, byte(len(p)))
		wire = append(wire, p...)
	}
	return wire, nil
}

// selectALPN picks the first of the server's protocols that the client
// offered. offered is the client's wire list. It returns the offset and
// length of the chosen name inside offered.
func selectALPN(server []string, offered []byte) (offset, length int,
	ok bool) {
	for _, want := range server {
		for i := 0; i < len(offered); {
			n := int(offered[i])
			start := i + 1
			if n == 0 || start+n > len(offered) {
				// malformed list, nothing after this point can be trusted
				break
			}
			if string(offered[start:start+n]) == want {
				return start, n, true
			}
			i = start + n
		}
	}
	return 0, 0, false
}

//export go_ssl_alpn_select_thunk
func go_ssl_alpn_select_thunk(p unsafe.Pointer, in *C.uchar, inlen C.uint,
	offset *C.int) C.int {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: alpn select callback panic'd: %v", err)
			os.Exit(1)
		}
	}()

	e := engineFromHandle(p)
	if e == nil || in == nil || inlen == 0 {
		return 0
	}
	offered := C.GoBytes(unsafe.Pointer(in), C.int(inlen))
	off, n, ok := selectALPN(e.ctx.alpn, offered)
	if !ok {
		return 0
	}
	*offset = C.int(off)
	return C.int(n)
}
