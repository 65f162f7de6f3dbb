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

const ticketKeyLength = 48

// TLSTicketKey is the RFC 5077 session ticket key material: a key name sent
// in the clear, an AES key and an HMAC key.
type TLSTicketKey struct {
	Name []byte
	AES  []byte
	HMAC []byte
}

// NewTLSTicketKey splits a 48 byte block into its three 16 byte parts.
func NewTLSTicketKey(block []byte) (*TLSTicketKey, error) {
	if len(block) != ticketKeyLength {
		return nil, ErrInvalidTicketKey
	}
	return &TLSTicketKey{
		Name: block[:16],
		AES:  block[16:32],
		HMAC: block[32:48]}, nil
}

func (k *TLSTicketKey) bytes() []byte {
	out := make([]byte, 0, ticketKeyLength)
	out = append(out, k.Name...)
	out = append(out, k.AES...)
	return append(out, k.HMAC...)
}

func setTicketKey(ctx *C.SSL_CTX, block []byte) error {
	key, err := NewTLSTicketKey(block)
	if err != nil {
		return err
	}
	keys := key.bytes()
	if C.X_SSL_CTX_set_ticket_keys(ctx,
		(*C.uchar)(unsafe.Pointer(&keys[0])), C.int(len(keys))) != 1 {
		return errors.Wrap(errorFromErrorQueue(), "installing ticket key")
	}
	return nil
}

// SetSessionTicketKey replaces the ticket key, e.g. on rotation. Tickets
// issued under the previous key can no longer be resumed.
func (c *Context) SetSessionTicketKey(block []byte) error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return ErrContextDestroyed
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return setTicketKey(c.ctx, block)
}
