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

import (
	"net"

	"github.com/pkg/errors"
)

type listener struct {
	net.Listener
	ctx *Context
}

func (l *listener) Accept() (c net.Conn, err error) {
	c, err = l.Listener.Accept()
	if err != nil {
		return nil, err
	}
	conn, err := Server(c, l.ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	return conn, nil
}

// NewListener wraps inner so that accepted connections are TLS server
// connections using ctx. The handshake runs on first use of each connection.
func NewListener(inner net.Listener, ctx *Context) net.Listener {
	return &listener{
		Listener: inner,
		ctx:      ctx}
}

func Listen(network, laddr string, ctx *Context) (net.Listener, error) {
	if ctx == nil {
		return nil, errors.New("openssl: no context provided")
	}
	if ctx.State() != ContextReady {
		return nil, ErrContextNotReady
	}
	l, err := net.Listen(network, laddr)
	if err != nil {
		return nil, err
	}
	return NewListener(l, ctx), nil
}

type DialFlags int

const (
	InsecureSkipHostVerification DialFlags = 1 << iota
)

// Dial connects to addr, sends the host part as SNI, completes the handshake
// and, unless told otherwise, checks the server certificate against the
// host name. ctx must be a ready client context.
func Dial(network, addr string, ctx *Context, flags DialFlags) (*Conn, error) {
	if ctx == nil {
		return nil, errors.New("openssl: no context provided")
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	c, err := net.Dial(network, addr)
	if err != nil {
		return nil, err
	}
	conn, err := Client(c, ctx)
	if err != nil {
		c.Close()
		return nil, err
	}
	if net.ParseIP(host) == nil {
		if err := conn.Engine().SetServerName(host); err != nil {
			conn.Close()
			return nil, err
		}
	}
	if err := conn.Handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	if flags&InsecureSkipHostVerification == 0 {
		if err := conn.VerifyHostname(host); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
