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
	"errors"
	"io"
	"unsafe"
)

// networkBio is the half of a BIO pair that faces the wire. The other half is
// owned by the SSL session: ciphertext written here is what SSL_read consumes,
// and whatever SSL_write or the handshake produces can be read back from here.
type networkBio struct {
	b *C.BIO
}

// newNetworkBio creates a BIO pair with size bytes of buffer in each
// direction and hands the internal half to ssl.
func newNetworkBio(ssl *C.SSL, size int) (*networkBio, error) {
	b := C.X_SSL_make_network_bio(ssl, C.int(size))
	if b == nil {
		return nil, errorFromErrorQueue()
	}
	return &networkBio{b: b}, nil
}

// pending is the number of ciphertext bytes waiting to go out.
func (n *networkBio) pending() int {
	return int(C.BIO_ctrl_pending(n.b))
}

// read drains up to len(dst) pending bytes. It returns 0 when nothing is
// pending.
func (n *networkBio) read(dst []byte) int {
	if len(dst) == 0 {
		return 0
	}
	rv := int(C.BIO_read(n.b, unsafe.Pointer(&dst[0]), C.int(len(dst))))
	if rv < 0 {
		return 0
	}
	return rv
}

// write feeds ciphertext received from the peer. It returns how much the pair
// accepted, which may be less than len(src) when its buffer is full.
func (n *networkBio) write(src []byte) int {
	if len(src) == 0 {
		return 0
	}
	rv := int(C.BIO_write(n.b, unsafe.Pointer(&src[0]), C.int(len(src))))
	if rv < 0 {
		return 0
	}
	return rv
}

func (n *networkBio) free() {
	if n.b != nil {
		C.BIO_free(n.b)
		n.b = nil
	}
}

// newMemBio returns a read-only memory BIO over data. data must stay
// reachable until the BIO is freed.
func newMemBio(data []byte) (*C.BIO, error) {
	if len(data) == 0 {
		return nil, errors.New("empty buffer")
	}
	bio := C.BIO_new_mem_buf(unsafe.Pointer(&data[0]), C.int(len(data)))
	if bio == nil {
		return nil, errors.New("failed creating bio")
	}
	return bio, nil
}

type anyBio C.BIO

func asAnyBio(b *C.BIO) *anyBio { return (*anyBio)(b) }

func (b *anyBio) Read(buf []byte) (n int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n = int(C.BIO_read((*C.BIO)(b), unsafe.Pointer(&buf[0]), C.int(len(buf))))
	if n <= 0 {
		return 0, io.EOF
	}
	return n, nil
}

func (b *anyBio) Write(buf []byte) (written int, err error) {
	if len(buf) == 0 {
		return 0, nil
	}
	n := int(C.BIO_write((*C.BIO)(b), unsafe.Pointer(&buf[0]),
		C.int(len(buf))))
	if n != len(buf) {
		return n, errors.New("BIO write failed")
	}
	return n, nil
}
