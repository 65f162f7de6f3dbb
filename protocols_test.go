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

func TestParseProtocols(t *testing.T) {
	enabled, err := parseProtocols([]string{ProtocolSSLv2Hello,
		ProtocolTLSv1_2})
	require.NoError(t, err)
	require.Equal(t, map[ProtocolVersion]bool{VersionTLS1_2: true}, enabled)

	enabled, err = parseProtocols([]string{ProtocolAll})
	require.NoError(t, err)
	require.Len(t, enabled, 4)
	require.False(t, enabled[VersionSSL3])

	_, err = parseProtocols([]string{"TLSv9"})
	require.Error(t, err)
}

func TestProtocolBounds(t *testing.T) {
	min, max, err := protocolBounds(map[ProtocolVersion]bool{
		VersionTLS1_3: true, VersionTLS1: true})
	require.NoError(t, err)
	require.Equal(t, VersionTLS1, min)
	require.Equal(t, VersionTLS1_3, max)

	enabled, err := parseProtocols([]string{ProtocolSSLv2})
	require.NoError(t, err)
	_, _, err = protocolBounds(enabled)
	require.Error(t, err)
}

func TestProtocolsInRange(t *testing.T) {
	require.Equal(t, []string{ProtocolTLSv1_2, ProtocolTLSv1_3},
		protocolsInRange(VersionTLS1_2, VersionUnknown))
	require.Equal(t, []string{ProtocolSSLv3, ProtocolTLSv1},
		protocolsInRange(VersionUnknown, VersionTLS1))
	require.Equal(t, "TLSv1.1", VersionTLS1_1.String())
	require.Equal(t, "UNKNOWN", ProtocolVersion(0x0200).String())
}

func TestContextProtocols(t *testing.T) {
	pki := newTestPKI(t)
	ctx := newReadyContext(t, &Config{
		Protocols:    []string{ProtocolTLSv1_2, ProtocolTLSv1_3},
		Certificates: []*CertificateConfig{pki.serverCertificate(t)},
	}, nil)
	require.Equal(t, VersionTLS1_2, ctx.MinProtocol())
	require.Equal(t, VersionTLS1_3, ctx.MaxProtocol())
	require.Equal(t, []string{ProtocolTLSv1_2, ProtocolTLSv1_3},
		ctx.EnabledProtocols())
	require.NotEmpty(t, ctx.EnabledCiphers())
}
