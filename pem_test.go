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
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMarshal(t *testing.T) {
	pki := newTestPKI(t)
	cert, err := LoadCertificateFromPEM(pki.server.certPEM)
	require.NoError(t, err)

	pemBytes, err := cert.MarshalPEM()
	require.NoError(t, err)
	require.Equal(t, pki.server.certPEM, pemBytes)

	der, err := cert.MarshalDER()
	require.NoError(t, err)
	require.Equal(t, pki.server.cert.Raw, der)

	parsed, err := cert.ToX509()
	require.NoError(t, err)
	require.Equal(t, "localhost", parsed.Subject.CommonName)

	fromDER, err := LoadCertificateFromDER(der)
	require.NoError(t, err)
	subject, err := fromDER.GetSubjectName()
	require.NoError(t, err)
	require.Contains(t, subject.String(), "CN=localhost")
	issuer, err := fromDER.GetIssuerName()
	require.NoError(t, err)
	require.Contains(t, issuer.String(), "CN=tlsengine test CA")

	key, err := LoadPrivateKeyFromPEM(pki.server.keyPEM)
	require.NoError(t, err)
	require.Equal(t, KeyTypeEC, key.KeyType())
	require.Equal(t, 256, key.Bits())

	keyPEM, err := key.MarshalPKCS8PrivateKeyPEM()
	require.NoError(t, err)
	block, _ := pem.Decode(keyPEM)
	require.NotNil(t, block)
	goKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	require.NoError(t, err)
	require.True(t, pki.server.key.(*ecdsa.PrivateKey).Equal(goKey))

	pubDER, err := key.MarshalPKIXPublicKeyDER()
	require.NoError(t, err)
	goPub, err := x509.ParsePKIXPublicKey(pubDER)
	require.NoError(t, err)
	require.True(t, pki.server.key.Public().(*ecdsa.PublicKey).Equal(goPub))

	certPub, err := cert.PublicKey()
	require.NoError(t, err)
	certPubDER, err := certPub.MarshalPKIXPublicKeyDER()
	require.NoError(t, err)
	require.Equal(t, pubDER, certPubDER)
}

func TestFingerprint(t *testing.T) {
	pki := newTestPKI(t)
	cert, err := LoadCertificateFromPEM(pki.ca.certPEM)
	require.NoError(t, err)

	sum, err := cert.Fingerprint(EVP_SHA256)
	require.NoError(t, err)
	want := sha256.Sum256(pki.ca.cert.Raw)
	require.Equal(t, want[:], sum)
	require.Len(t, sum, EVP_SHA256.Size())
}

func TestSplitPEM(t *testing.T) {
	pki := newTestPKI(t)
	var bundle []byte
	bundle = append(bundle, pki.server.certPEM...)
	bundle = append(bundle, pki.server.keyPEM...)
	bundle = append(bundle, pki.ca.certPEM...)

	blocks := SplitPEM(bundle)
	require.Len(t, blocks, 3)

	certs, err := loadCertificatesFromPEM(bundle)
	require.NoError(t, err)
	require.Len(t, certs, 2)
	der, err := certs[1].MarshalDER()
	require.NoError(t, err)
	require.Equal(t, pki.ca.cert.Raw, der)
}
