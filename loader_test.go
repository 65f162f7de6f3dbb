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
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadPEMKeyMismatch(t *testing.T) {
	pki := newTestPKI(t)
	ctx, err := NewContext(&Config{
		Certificates: []*CertificateConfig{{
			CertificateFile:    pki.write(t, "server.pem", pki.server.certPEM),
			CertificateKeyFile: pki.write(t, "client.key", pki.client.keyPEM),
		}},
	}, nil)
	require.NoError(t, err)
	defer ctx.Destroy()

	err = ctx.Init()
	require.ErrorIs(t, err, ErrKeyMismatch)
	require.Equal(t, ContextFailed, ctx.State())

	// a repeated Init reports the first outcome
	require.ErrorIs(t, ctx.Init(), ErrKeyMismatch)
}

func TestLoadCombinedPEMWithChain(t *testing.T) {
	pki := newTestPKI(t)
	combined := append(append([]byte(nil), pki.server.certPEM...),
		pki.ca.certPEM...)
	combined = append(combined, pki.server.keyPEM...)

	client, server := newTLSPair(t,
		&Config{Certificates: []*CertificateConfig{{
			CertificateFile: pki.write(t, "combined.pem", combined),
		}}},
		&Config{})
	require.NoError(t, pump(client, server))

	chain, err := client.PeerCertificates()
	require.NoError(t, err)
	require.Len(t, chain, 2)
	require.Equal(t, pki.ca.cert.Raw, chain[1].Raw)
}

func TestLoadEncryptedKey(t *testing.T) {
	pki := newTestPKI(t)
	der, err := x509.MarshalECPrivateKey(pki.server.key.(*ecdsa.PrivateKey))
	require.NoError(t, err)
	//nolint:staticcheck // legacy PEM encryption is what OpenSSL reads here
	block, err := x509.EncryptPEMBlock(rand.Reader, "EC PRIVATE KEY", der,
		[]byte("hunter2"), x509.PEMCipherAES256)
	require.NoError(t, err)
	keyFile := pki.write(t, "encrypted.key", pem.EncodeToMemory(block))
	certFile := pki.write(t, "server.pem", pki.server.certPEM)

	good := newReadyContext(t, &Config{Certificates: []*CertificateConfig{{
		CertificateFile:        certFile,
		CertificateKeyFile:     keyFile,
		CertificateKeyPassword: "hunter2",
	}}}, nil)
	require.Equal(t, ContextReady, good.State())

	bad, err := NewContext(&Config{Certificates: []*CertificateConfig{{
		CertificateFile:        certFile,
		CertificateKeyFile:     keyFile,
		CertificateKeyPassword: "wrong",
	}}}, nil)
	require.NoError(t, err)
	defer bad.Destroy()
	require.Error(t, bad.Init())
}

func TestLoadKeystore(t *testing.T) {
	pki := newTestPKI(t)
	cert, err := LoadCertificateFromPEM(pki.server.certPEM)
	require.NoError(t, err)
	key, err := LoadPrivateKeyFromPEM(pki.server.keyPEM)
	require.NoError(t, err)
	ca, err := LoadCertificateFromPEM(pki.ca.certPEM)
	require.NoError(t, err)

	p12 := &PKCS12{
		Name:        "server",
		Certificate: cert,
		PrivateKey:  key,
		CaCerts:     []*Certificate{ca},
	}
	data, err := p12.Marshal("changeit")
	require.NoError(t, err)

	client, server := newTLSPair(t,
		&Config{Certificates: []*CertificateConfig{{
			CertificateFile:             pki.write(t, "server.p12", data),
			CertificateKeystorePassword: "changeit",
		}}},
		&Config{})
	require.NoError(t, pump(client, server))

	chain, err := client.PeerCertificates()
	require.NoError(t, err)
	require.Len(t, chain, 2)
}

func TestLoadFromKeyManager(t *testing.T) {
	pki := newTestPKI(t)
	km := NewMemoryKeyManager()
	require.NoError(t, km.Add("edge", []*x509.Certificate{pki.server.cert,
		pki.ca.cert}, pki.server.key))

	client, server := newTLSPair(t,
		&Config{
			KeyManager: km,
			Certificates: []*CertificateConfig{{
				CertificateKeyAlias: "edge",
			}},
		},
		&Config{})
	require.NoError(t, pump(client, server))
	chain, err := client.PeerCertificates()
	require.NoError(t, err)
	require.Equal(t, pki.server.cert.Raw, chain[0].Raw)

	// without an alias the key manager picks one by key type
	newReadyContext(t, &Config{KeyManager: km}, nil)

	missing, err := NewContext(&Config{
		KeyManager:   km,
		Certificates: []*CertificateConfig{{CertificateKeyAlias: "nope"}},
	}, nil)
	require.NoError(t, err)
	defer missing.Destroy()
	require.ErrorIs(t, missing.Init(), ErrNoKeyManagerAlias)
}

func TestServerNeedsCertificate(t *testing.T) {
	ctx, err := NewContext(&Config{}, nil)
	require.NoError(t, err)
	defer ctx.Destroy()
	require.ErrorIs(t, ctx.Init(), ErrNoCertificate)

	newReadyClientContext(t, &Config{}, nil)
}
