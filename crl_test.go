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
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// signCRL issues a CRL from the test CA revoking the given identities.
func (p *testPKI) signCRL(t *testing.T, nextUpdate time.Time,
	revoked ...*testIdentity) []byte {
	var entries []x509.RevocationListEntry
	for _, id := range revoked {
		entries = append(entries, x509.RevocationListEntry{
			SerialNumber:   id.cert.SerialNumber,
			RevocationTime: time.Now().Add(-time.Hour),
		})
	}
	der, err := x509.CreateRevocationList(rand.Reader, &x509.RevocationList{
		Number:                    big.NewInt(time.Now().UnixNano()),
		ThisUpdate:                nextUpdate.Add(-48 * time.Hour),
		NextUpdate:                nextUpdate,
		RevokedCertificateEntries: entries,
	}, p.ca.cert, p.ca.key)
	require.NoError(t, err)
	return pem.EncodeToMemory(&pem.Block{Type: "X509 CRL", Bytes: der})
}

func crlServerConfig(t *testing.T, pki *testPKI) *Config {
	return &Config{
		Protocols:               []string{ProtocolTLSv1_2},
		Certificates:            []*CertificateConfig{pki.serverCertificate(t)},
		CertificateVerification: CertificateVerificationRequired,
		CACertificateFile:       pki.caFile(t),
		DisableOCSPCheck:        true,
	}
}

func crlClientConfig(t *testing.T, pki *testPKI) *Config {
	return &Config{
		Protocols:    []string{ProtocolTLSv1_2},
		Certificates: []*CertificateConfig{pki.clientCertificate(t)},
	}
}

func TestRevocationFile(t *testing.T) {
	pki := newTestPKI(t)
	tomorrow := time.Now().Add(24 * time.Hour)

	cfg := crlServerConfig(t, pki)
	cfg.RevocationFile = pki.write(t, "empty.crl", pki.signCRL(t, tomorrow))
	client, server := newTLSPair(t, cfg, crlClientConfig(t, pki))
	require.NoError(t, pump(client, server))

	cfg = crlServerConfig(t, pki)
	cfg.RevocationFile = pki.write(t, "revoked.crl",
		pki.signCRL(t, tomorrow, pki.client))
	client, server = newTLSPair(t, cfg, crlClientConfig(t, pki))
	err := pump(client, server)
	require.Error(t, err)
	require.Contains(t, err.Error(), "certificate revoked")
}

func TestRevocationFileMissing(t *testing.T) {
	pki := newTestPKI(t)
	cfg := crlServerConfig(t, pki)
	cfg.RevocationFile = filepath.Join(pki.dir, "absent.crl")
	ctx, err := NewContext(cfg, nil)
	require.NoError(t, err)
	defer ctx.Destroy()
	require.Error(t, ctx.Init())
}

func TestRevocationPath(t *testing.T) {
	pki := newTestPKI(t)
	ca, err := LoadCertificateFromPEM(pki.ca.certPEM)
	require.NoError(t, err)
	subject, err := ca.GetSubjectName()
	require.NoError(t, err)

	dir := t.TempDir()
	cfg := crlServerConfig(t, pki)
	cfg.RevocationPath = dir
	serverCtx := newReadyContext(t, cfg, nil)
	clientCtx := newReadyClientContext(t, crlClientConfig(t, pki), nil)

	// CRL checking is on and nothing covers the issuer yet
	client, server := newEnginePair(t, clientCtx, serverCtx)
	require.Error(t, pump(client, server))

	// the directory is consulted per handshake
	name := fmt.Sprintf("%08x.r0", subject.Hash())
	require.NoError(t, os.WriteFile(filepath.Join(dir, name),
		pki.signCRL(t, time.Now().Add(24*time.Hour), pki.client), 0600))
	client, server = newEnginePair(t, clientCtx, serverCtx)
	err = pump(client, server)
	require.Error(t, err)
	require.Contains(t, err.Error(), "certificate revoked")
}

func TestCertificateStoreAddCRL(t *testing.T) {
	pki := newTestPKI(t)
	serverCtx := newReadyContext(t, crlServerConfig(t, pki), nil)
	clientCtx := newReadyClientContext(t, crlClientConfig(t, pki), nil)

	client, server := newEnginePair(t, clientCtx, serverCtx)
	require.NoError(t, pump(client, server))

	crl, err := LoadCRLFromPEM(
		pki.signCRL(t, time.Now().Add(24*time.Hour), pki.client))
	require.NoError(t, err)
	issuer, err := crl.GetIssuer()
	require.NoError(t, err)
	ca, err := LoadCertificateFromPEM(pki.ca.certPEM)
	require.NoError(t, err)
	subject, err := ca.GetSubjectName()
	require.NoError(t, err)
	require.Equal(t, subject.String(), issuer.String())
	require.Equal(t, subject.Hash(), issuer.Hash())

	store, err := serverCtx.GetCertificateStore()
	require.NoError(t, err)
	require.NoError(t, store.AddCRL(crl))

	client, server = newEnginePair(t, clientCtx, serverCtx)
	err = pump(client, server)
	require.Error(t, err)
	require.Contains(t, err.Error(), "certificate revoked")
}

func TestLoadCRLFromPEMGarbage(t *testing.T) {
	_, err := LoadCRLFromPEM([]byte("not a crl"))
	require.Error(t, err)
}

func TestExpiredCRLFailsUnderEveryMode(t *testing.T) {
	pki := newTestPKI(t)
	stale := pki.write(t, "stale.crl",
		pki.signCRL(t, time.Now().Add(-24*time.Hour)))

	for _, mode := range []CertificateVerification{
		CertificateVerificationOptionalNoCA,
		CertificateVerificationOptional,
		CertificateVerificationRequired,
	} {
		cfg := crlServerConfig(t, pki)
		cfg.CertificateVerification = mode
		cfg.RevocationFile = stale
		client, server := newTLSPair(t, cfg, crlClientConfig(t, pki))
		err := pump(client, server)
		require.Error(t, err, mode.String())
		// reported as a generic failure rather than an expired certificate
		require.Contains(t, err.Error(), "certificate unknown", mode.String())
		require.NotContains(t, err.Error(), "expired", mode.String())
	}
}
