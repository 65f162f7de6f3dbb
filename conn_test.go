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
	"bytes"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func newConnPair(t *testing.T) (net.Listener, *Context) {
	pki := newTestPKI(t)
	serverCtx := newReadyContext(t, &Config{
		Certificates: []*CertificateConfig{pki.serverCertificate(t)},
	}, nil)
	clientCtx := newReadyClientContext(t, &Config{
		CertificateVerification: CertificateVerificationRequired,
		CACertificateFile:       pki.caFile(t),
		DisableOCSPCheck:        true,
	}, nil)

	inner, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	l := NewListener(inner, serverCtx)
	t.Cleanup(func() { l.Close() })
	return l, clientCtx
}

// serveEcho answers every read with the same bytes until the peer closes.
func serveEcho(l net.Listener) <-chan error {
	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 4096)
		for {
			n, err := conn.Read(buf)
			if err == io.EOF {
				done <- nil
				return
			}
			if err != nil {
				done <- err
				return
			}
			if _, err := conn.Write(buf[:n]); err != nil {
				done <- err
				return
			}
		}
	}()
	return done
}

func TestConnEcho(t *testing.T) {
	l, clientCtx := newConnPair(t)
	done := serveEcho(l)

	conn, err := Dial("tcp", l.Addr().String(), clientCtx, 0)
	require.NoError(t, err)

	peers, err := conn.PeerCertificates()
	require.NoError(t, err)
	require.NotEmpty(t, peers)
	require.NoError(t, conn.VerifyHostname("localhost"))
	require.Error(t, conn.VerifyHostname("example.com"))

	for _, msg := range [][]byte{
		[]byte("ping"),
		bytes.Repeat([]byte("x"), 3*MaxPlaintextLength),
	} {
		n, err := conn.Write(msg)
		require.NoError(t, err)
		require.Equal(t, len(msg), n)
		got := make([]byte, len(msg))
		_, err = io.ReadFull(conn, got)
		require.NoError(t, err)
		require.Equal(t, msg, got)
	}

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	require.NoError(t, <-done)
}

func TestConnReadAfterPeerClose(t *testing.T) {
	l, clientCtx := newConnPair(t)
	done := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			done <- err
			return
		}
		if _, err := conn.Write([]byte("bye")); err != nil {
			done <- err
			return
		}
		done <- conn.Close()
	}()

	conn, err := Dial("tcp", l.Addr().String(), clientCtx, 0)
	require.NoError(t, err)
	defer conn.Close()

	got := make([]byte, 3)
	_, err = io.ReadFull(conn, got)
	require.NoError(t, err)
	require.Equal(t, []byte("bye"), got)
	require.NoError(t, <-done)

	_, err = conn.Read(got)
	require.Equal(t, io.EOF, err)
}

func TestListenNeedsReadyContext(t *testing.T) {
	pki := newTestPKI(t)
	ctx, err := NewContext(&Config{
		Certificates: []*CertificateConfig{pki.serverCertificate(t)},
	}, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	_, err = Listen("tcp", "127.0.0.1:0", ctx)
	require.ErrorIs(t, err, ErrContextNotReady)
	_, err = Listen("tcp", "127.0.0.1:0", nil)
	require.Error(t, err)
}

func TestConnSideChecks(t *testing.T) {
	l, clientCtx := newConnPair(t)
	serverCtx := l.(*listener).ctx

	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()
	_, err := Client(a, serverCtx)
	require.Error(t, err)
	_, err = Server(b, clientCtx)
	require.Error(t, err)
}
