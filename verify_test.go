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

func TestJudgeVerifyResult(t *testing.T) {
	cases := []struct {
		name string
		mode CertificateVerification
		ok   bool
		code int
		want verifyVerdict
	}{
		{"trusted", CertificateVerificationRequired, true, verifyOK,
			verifyVerdict{ok: true, code: verifyOK, revocation: true}},
		{"untrusted required", CertificateVerificationRequired, false,
			verifyErrIssuerNotLocal,
			verifyVerdict{ok: false, code: verifyErrIssuerNotLocal}},
		{"untrusted optional", CertificateVerificationOptional, false,
			verifyErrDepthZeroSelfSigned,
			verifyVerdict{ok: false, code: verifyErrDepthZeroSelfSigned}},
		{"untrusted optional no ca", CertificateVerificationOptionalNoCA,
			false, verifyErrSelfSignedInChain,
			verifyVerdict{ok: true, code: verifyOK, revocation: true}},
		{"unverifiable leaf optional no ca",
			CertificateVerificationOptionalNoCA, false, verifyErrLeafSignature,
			verifyVerdict{ok: true, code: verifyOK, revocation: true}},
		{"expired crl", CertificateVerificationOptionalNoCA, false,
			verifyErrCRLHasExpired,
			verifyVerdict{ok: false, code: verifyErrGeneric}},
		{"revoked", CertificateVerificationOptionalNoCA, false,
			verifyErrCertRevoked,
			verifyVerdict{ok: false, code: verifyErrCertRevoked}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, judgeVerifyResult(tc.mode, tc.ok, tc.code))
		})
	}
}

func TestOptionalVerifyErrors(t *testing.T) {
	for _, code := range []int{
		verifyErrDepthZeroSelfSigned,
		verifyErrSelfSignedInChain,
		verifyErrIssuerNotLocal,
		verifyErrCertUntrusted,
		verifyErrLeafSignature,
	} {
		require.True(t, isOptionalVerifyError(code), "code %d", code)
	}
	require.False(t, isOptionalVerifyError(verifyOK))
	require.False(t, isOptionalVerifyError(verifyErrCertRevoked))
	require.False(t, isOptionalVerifyError(verifyErrChainTooLong))
}

func TestAuthMethod(t *testing.T) {
	cases := []struct {
		kx, auth int
		want     string
	}{
		{nidKxRSA, nidAuthRSA, "RSA"},
		{nidKxDHE, nidAuthRSA, "DHE_RSA"},
		{nidKxDHE, nidAuthDSS, "DHE_DSS"},
		{nidKxDHE, nidAuthNull, "DH_anon"},
		{nidKxECDHE, nidAuthRSA, "ECDHE_RSA"},
		{nidKxECDHE, nidAuthECDSA, "ECDHE_ECDSA"},
		{nidKxECDHE, nidAuthNull, "ECDH_anon"},
		{nidKxECDHE, nidAuthPSK, "ECDHE_PSK"},
		{nidKxPSK, nidAuthPSK, "PSK"},
		{nidKxAny, nidAuthECDSA, "UNKNOWN"},
		{nidUndef, nidUndef, "UNKNOWN"},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, authMethod(tc.kx, tc.auth))
	}
}

func TestVerifyDepthLimit(t *testing.T) {
	pki := newTestPKI(t)
	intermediate := issue(t, certOptions{ca: true,
		commonName: "tlsengine test intermediate"}, newKey(t), pki.ca)
	leaf := issue(t, certOptions{commonName: "localhost"}, newKey(t),
		intermediate)
	serverCfg := &Config{Certificates: []*CertificateConfig{{
		CertificateFile:      pki.write(t, "leaf.pem", leaf.certPEM),
		CertificateKeyFile:   pki.write(t, "leaf.key", leaf.keyPEM),
		CertificateChainFile: pki.write(t, "chain.pem", intermediate.certPEM),
	}}}

	for _, tc := range []struct {
		depth int
		ok    bool
	}{{1, false}, {2, true}} {
		client, server := newTLSPair(t, serverCfg, &Config{
			CertificateVerification:      CertificateVerificationRequired,
			CertificateVerificationDepth: tc.depth,
			CACertificateFile:            pki.caFile(t),
			DisableOCSPCheck:             true,
		})
		err := pump(client, server)
		if tc.ok {
			require.NoError(t, err, "depth %d", tc.depth)
		} else {
			require.Error(t, err, "depth %d", tc.depth)
		}
	}
}
