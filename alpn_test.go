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
	"testing"

	"github.com/stretchr/testify/require"
)

func wireALPN(t *testing.T, protocols ...string) []byte {
	wire, err := encodeALPN(protocols)
	require.NoError(t, err)
	return wire
}

func TestSelectALPN(t *testing.T) {
	offered := wireALPN(t, "http/1.1", "h2")

	// server preference wins over client order
	off, n, ok := selectALPN([]string{"h2", "http/1.1"}, offered)
	require.True(t, ok)
	require.Equal(t, "h2", string(offered[off:off+n]))

	off, n, ok = selectALPN([]string{"spdy/3", "http/1.1"}, offered)
	require.True(t, ok)
	require.Equal(t, "http/1.1", string(offered[off:off+n]))

	_, _, ok = selectALPN([]string{"spdy/3"}, offered)
	require.False(t, ok)

	_, _, ok = selectALPN([]string{"h2"}, nil)
	require.False(t, ok)

	// a truncated list never reads past its end
	_, _, ok = selectALPN([]string{"h2"}, []byte{9, 'h', '2'})
	require.False(t, ok)
}

func TestEncodeALPN(t *testing.T) {
	require.Equal(t, []byte("\x02h2\x08http/1.1"), wireALPN(t, "h2", "http/1.1"))
	_, err := encodeALPN([]string{""})
	require.Error(t, err)
}

func TestALPNFallback(t *testing.T) {
	require.Nil(t, withALPNFallback(nil))
	require.Equal(t, []string{"h2", "http/1.1"}, withALPNFallback([]string{"h2"}))
	require.Equal(t, []string{"http/1.1", "h2"},
		withALPNFallback([]string{"http/1.1", "h2"}))
}

func TestEngineALPN(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx := newReadyContext(t, &Config{
		Certificates: []*CertificateConfig{pki.serverCertificate(t)},
	}, []string{"h2"})

	cases := []struct {
		offer []string
		want  string
	}{
		{[]string{"http/1.1", "h2"}, "h2"},
		{[]string{"http/1.1"}, "http/1.1"},
		{[]string{"spdy/3"}, ""},
		{nil, ""},
	}
	for _, tc := range cases {
		clientCtx := newReadyClientContext(t, &Config{}, tc.offer)
		client, server := newEnginePair(t, clientCtx, serverCtx)
		require.NoError(t, pump(client, server))
		require.Equal(t, tc.want, server.ApplicationProtocol(), "offer %v",
			tc.offer)
		require.Equal(t, tc.want, client.ApplicationProtocol(), "offer %v",
			tc.offer)
	}
}

func TestHTTPContextAnswersHTTP1(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx, err := newHTTPContext(pki.write(t, "http.pem", pki.server.certPEM),
		pki.write(t, "http.key", pki.server.keyPEM))
	require.NoError(t, err)
	defer serverCtx.Destroy()

	clientCtx := newReadyClientContext(t, &Config{}, []string{"h2", "http/1.1"})
	client, server := newEnginePair(t, clientCtx, serverCtx)
	require.NoError(t, pump(client, server))
	require.Equal(t, "http/1.1", server.ApplicationProtocol())
}
