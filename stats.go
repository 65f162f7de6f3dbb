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

// SessionStats are the session counters of a context. All but Number only
// ever grow.
type SessionStats struct {
	Number             int64
	Connect            int64
	ConnectGood        int64
	ConnectRenegotiate int64
	Accept             int64
	AcceptGood         int64
	AcceptRenegotiate  int64
	Hits               int64
	CallbackHits       int64
	Misses             int64
	Timeouts           int64
	CacheFull          int64
}

// SessionStats reads the native counters. It returns zeros once the context
// is destroyed.
func (c *Context) SessionStats() SessionStats {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return SessionStats{}
	}
	ctx := c.ctx
	return SessionStats{
		Number:             int64(C.X_SSL_CTX_sess_number(ctx)),
		Connect:            int64(C.X_SSL_CTX_sess_connect(ctx)),
		ConnectGood:        int64(C.X_SSL_CTX_sess_connect_good(ctx)),
		ConnectRenegotiate: int64(C.X_SSL_CTX_sess_connect_renegotiate(ctx)),
		Accept:             int64(C.X_SSL_CTX_sess_accept(ctx)),
		AcceptGood:         int64(C.X_SSL_CTX_sess_accept_good(ctx)),
		AcceptRenegotiate:  int64(C.X_SSL_CTX_sess_accept_renegotiate(ctx)),
		Hits:               int64(C.X_SSL_CTX_sess_hits(ctx)),
		CallbackHits:       int64(C.X_SSL_CTX_sess_cb_hits(ctx)),
		Misses:             int64(C.X_SSL_CTX_sess_misses(ctx)),
		Timeouts:           int64(C.X_SSL_CTX_sess_timeouts(ctx)),
		CacheFull:          int64(C.X_SSL_CTX_sess_cache_full(ctx)),
	}
}

// SessionCacheSize is the capacity of the server session cache, zero once the
// context is destroyed.
func (c *Context) SessionCacheSize() int64 {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return 0
	}
	return int64(C.X_SSL_CTX_sess_get_cache_size(c.ctx))
}
