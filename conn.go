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
	"crypto/x509"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"

	"github.com/spacemonkeygo/tlsengine/utils"
)

// Conn drives an SSLEngine over a stream connection with blocking reads and
// writes.
type Conn struct {
	conn   net.Conn
	engine *SSLEngine

	handshakeMtx  sync.Mutex
	handshakeDone bool
	handshakeErr  error

	// readMtx guards inbound and readBuf; writeMtx guards outBuf and writes
	// to conn. Holders of both take readMtx first.
	readMtx  sync.Mutex
	inbound  []byte
	readBuf  []byte
	writeMtx sync.Mutex
	outBuf   []byte

	closed int32
}

func newConn(conn net.Conn, ctx *Context) (*Conn, error) {
	engine, err := ctx.NewEngine()
	if err != nil {
		return nil, err
	}
	return &Conn{
		conn:    conn,
		engine:  engine,
		readBuf: make([]byte, MaxEncryptedPacketLength),
		outBuf:  make([]byte, MaxEncryptedPacketLength),
	}, nil
}

// Client wraps an existing stream connection with an engine from a client
// context.
//
// IMPORTANT NOTE: if you use this method instead of Dial to construct a TLS
// connection, you are responsible for verifying the peer's hostname.
func Client(conn net.Conn, ctx *Context) (*Conn, error) {
	if !ctx.client {
		return nil, errors.New("openssl: client connection needs a client context")
	}
	return newConn(conn, ctx)
}

// Server wraps an existing stream connection with an engine from a server
// context.
func Server(conn net.Conn, ctx *Context) (*Conn, error) {
	if ctx.client {
		return nil, errors.New("openssl: server connection needs a server context")
	}
	return newConn(conn, ctx)
}

// Engine returns the engine behind the connection.
func (c *Conn) Engine() *SSLEngine {
	return c.engine
}

// Handshake runs the TLS handshake. If it is not called explicitly, it runs
// before the first Read or Write. Later calls return the first outcome.
func (c *Conn) Handshake() error {
	c.handshakeMtx.Lock()
	defer c.handshakeMtx.Unlock()
	if c.handshakeDone {
		return c.handshakeErr
	}
	c.handshakeErr = c.runHandshake()
	c.handshakeDone = true
	return c.handshakeErr
}

func (c *Conn) runHandshake() error {
	c.readMtx.Lock()
	defer c.readMtx.Unlock()
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	if err := c.engine.BeginHandshake(); err != nil {
		return err
	}
	for {
		switch status := c.engine.HandshakeStatus(); status {
		case NeedWrap:
			if err := c.flush(); err != nil {
				return err
			}
		case NeedUnwrap:
			if _, err := c.unwrap(nil, true); err != nil {
				return err
			}
		case Finished, NotHandshaking:
			if c.engine.IsInboundDone() {
				return io.ErrUnexpectedEOF
			}
			return nil
		default:
			return errors.Errorf("openssl: unexpected handshake status %s",
				status)
		}
	}
}

// flush sends every record the engine has queued. writeMtx must be held.
func (c *Conn) flush() error {
	for {
		res, err := c.engine.Wrap(nil, c.outBuf)
		if err != nil {
			return err
		}
		if res.BytesProduced == 0 {
			return nil
		}
		if _, err := c.conn.Write(c.outBuf[:res.BytesProduced]); err != nil {
			return err
		}
	}
}

// unwrap feeds buffered ciphertext to the engine, reading from the network
// when the engine wants more. It returns once plaintext was produced into
// dst, the handshake moved on, or the inbound side closed. readMtx must be
// held, and writeMtx too if holdsWrite is set.
func (c *Conn) unwrap(dst []byte, holdsWrite bool) (int, error) {
	for {
		src := c.inbound
		if len(src) > MaxEncryptedPacketLength {
			src = src[:MaxEncryptedPacketLength]
		}
		var dsts [][]byte
		if len(dst) > 0 {
			dsts = [][]byte{dst}
		}
		res, err := c.engine.Unwrap(src, dsts)
		if err != nil {
			return 0, err
		}
		c.inbound = c.inbound[res.BytesConsumed:]

		if res.HandshakeStatus == NeedWrap {
			// post handshake messages or our close_notify reply. The peer
			// may already be gone once it sent close_notify.
			err := c.flushFromRead(holdsWrite)
			if err != nil && res.Status != StatusClosed {
				return res.BytesProduced, err
			}
		}
		if res.BytesProduced > 0 {
			return res.BytesProduced, nil
		}
		if res.Status == StatusClosed {
			return 0, io.EOF
		}
		if dst == nil && res.HandshakeStatus != NeedUnwrap {
			return 0, nil
		}
		if res.BytesConsumed > 0 && len(c.inbound) > 0 {
			continue
		}
		if err := c.fill(); err != nil {
			return 0, err
		}
	}
}

func (c *Conn) flushFromRead(holdsWrite bool) error {
	if holdsWrite {
		return c.flush()
	}
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()
	return c.flush()
}

func (c *Conn) fill() error {
	n, err := c.conn.Read(c.readBuf)
	c.inbound = append(c.inbound, c.readBuf[:n]...)
	if n > 0 {
		return nil
	}
	if err == io.EOF {
		if cerr := c.engine.CloseInbound(); cerr != nil {
			return io.ErrUnexpectedEOF
		}
		return io.EOF
	}
	if err == nil {
		return errors.New("openssl: empty read from connection")
	}
	return err
}

// Read reads decrypted application data into b. It returns io.EOF once the
// peer closed the session cleanly.
func (c *Conn) Read(b []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	if len(b) == 0 {
		return 0, nil
	}
	c.readMtx.Lock()
	defer c.readMtx.Unlock()
	if c.engine.IsInboundDone() {
		return 0, io.EOF
	}
	return c.unwrap(b, false)
}

// Write encrypts b and writes the records to the underlying connection.
func (c *Conn) Write(b []byte) (int, error) {
	if err := c.Handshake(); err != nil {
		return 0, err
	}
	c.writeMtx.Lock()
	defer c.writeMtx.Unlock()

	written := 0
	for written < len(b) {
		res, err := c.engine.Wrap([][]byte{b[written:]}, c.outBuf)
		if err != nil {
			return written, err
		}
		written += res.BytesConsumed
		if res.BytesProduced > 0 {
			_, err := c.conn.Write(c.outBuf[:res.BytesProduced])
			if err != nil {
				return written, err
			}
			continue
		}
		if res.Status == StatusClosed {
			return written, ErrEngineClosed
		}
		if res.BytesConsumed == 0 {
			return written, errors.Errorf(
				"openssl: write stalled, engine needs %s", res.HandshakeStatus)
		}
	}
	return written, nil
}

// Close sends close_notify and closes the underlying connection. It does not
// wait for the peer's reply.
func (c *Conn) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	var errs utils.ErrorGroup
	c.engine.CloseOutbound()
	c.writeMtx.Lock()
	errs.Add(c.flush())
	c.writeMtx.Unlock()
	c.engine.Shutdown()
	errs.Add(c.conn.Close())
	return errs.Finalize()
}

// PeerCertificates returns the peer's chain, leaf first. Only valid after a
// handshake.
func (c *Conn) PeerCertificates() ([]*x509.Certificate, error) {
	return c.engine.PeerCertificates()
}

// VerifyHostname checks the peer's leaf certificate against host.
func (c *Conn) VerifyHostname(host string) error {
	chain, err := c.PeerCertificates()
	if err != nil {
		return err
	}
	if len(chain) == 0 {
		return errors.New("openssl: no peer certificate found")
	}
	return chain[0].VerifyHostname(host)
}

// LocalAddr returns the underlying connection's local address
func (c *Conn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// RemoteAddr returns the underlying connection's remote address
func (c *Conn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

// SetDeadline calls SetDeadline on the underlying connection.
func (c *Conn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

// SetReadDeadline calls SetReadDeadline on the underlying connection.
func (c *Conn) SetReadDeadline(t time.Time) error {
	return c.conn.SetReadDeadline(t)
}

// SetWriteDeadline calls SetWriteDeadline on the underlying connection.
func (c *Conn) SetWriteDeadline(t time.Time) error {
	return c.conn.SetWriteDeadline(t)
}
