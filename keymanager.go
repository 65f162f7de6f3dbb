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
	"crypto"
	"crypto/dsa"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// KeyManager supplies certificates and keys that do not come from files.
type KeyManager interface {
	// CertificateChain returns the chain for alias, leaf first, or nil.
	CertificateChain(alias string) []*x509.Certificate
	// PrivateKey returns the key for alias, or nil.
	PrivateKey(alias string) crypto.PrivateKey
	// ChooseServerAlias picks an alias holding a key of the given type,
	// optionally one issued by a name in issuers. It returns "" if none fits.
	ChooseServerAlias(keyType KeyType, issuers []pkix.Name) string
}

// TrustManager decides whether client certificate chains are trusted.
type TrustManager interface {
	// CheckClientTrusted returns an error if chain, leaf first, is not
	// trusted for a handshake authenticated with authType (e.g. "ECDHE_RSA").
	CheckClientTrusted(chain []*x509.Certificate, authType string) error
	// AcceptedIssuers are advertised to clients as acceptable CAs.
	AcceptedIssuers() []*x509.Certificate
}

func keyTypeOf(pub crypto.PublicKey) KeyType {
	switch pub.(type) {
	case *rsa.PublicKey:
		return KeyTypeRSA
	case *dsa.PublicKey:
		return KeyTypeDSA
	case *ecdsa.PublicKey:
		return KeyTypeEC
	}
	return KeyTypeUndefined
}

type keyEntry struct {
	chain []*x509.Certificate
	key   crypto.PrivateKey
}

// MemoryKeyManager is a KeyManager over entries added in memory.
type MemoryKeyManager struct {
	mtx     sync.RWMutex
	entries map[string]keyEntry
}

func NewMemoryKeyManager() *MemoryKeyManager {
	return &MemoryKeyManager{entries: make(map[string]keyEntry)}
}

// Add stores chain and key under alias, replacing any previous entry.
func (m *MemoryKeyManager) Add(alias string, chain []*x509.Certificate,
	key crypto.PrivateKey) error {
	if len(chain) == 0 {
		return ErrNoCertificate
	}
	if key == nil {
		return errors.Errorf("openssl: no private key for alias %q", alias)
	}
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.entries[alias] = keyEntry{chain: chain, key: key}
	return nil
}

func (m *MemoryKeyManager) CertificateChain(alias string) []*x509.Certificate {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.entries[alias].chain
}

func (m *MemoryKeyManager) PrivateKey(alias string) crypto.PrivateKey {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	return m.entries[alias].key
}

func (m *MemoryKeyManager) ChooseServerAlias(keyType KeyType,
	issuers []pkix.Name) string {
	m.mtx.RLock()
	defer m.mtx.RUnlock()
	aliases := make([]string, 0, len(m.entries))
	for alias := range m.entries {
		aliases = append(aliases, alias)
	}
	sort.Strings(aliases)
	for _, alias := range aliases {
		leaf := m.entries[alias].chain[0]
		if keyType != KeyTypeUndefined && keyTypeOf(leaf.PublicKey) != keyType {
			continue
		}
		if len(issuers) > 0 && !issuedByAny(leaf, issuers) {
			continue
		}
		return alias
	}
	return ""
}

func issuedByAny(cert *x509.Certificate, issuers []pkix.Name) bool {
	issuer := cert.Issuer.String()
	for _, name := range issuers {
		if name.String() == issuer {
			return true
		}
	}
	return false
}

// PoolTrustManager trusts chains that verify against a root pool.
type PoolTrustManager struct {
	roots   *x509.CertPool
	issuers []*x509.Certificate
}

// NewPoolTrustManager trusts the given CA certificates.
func NewPoolTrustManager(cas ...*x509.Certificate) *PoolTrustManager {
	roots := x509.NewCertPool()
	for _, ca := range cas {
		roots.AddCert(ca)
	}
	return &PoolTrustManager{roots: roots, issuers: cas}
}

func (p *PoolTrustManager) CheckClientTrusted(chain []*x509.Certificate,
	authType string) error {
	if len(chain) == 0 {
		return ErrNoCertificate
	}
	intermediates := x509.NewCertPool()
	for _, cert := range chain[1:] {
		intermediates.AddCert(cert)
	}
	_, err := chain[0].Verify(x509.VerifyOptions{
		Roots:         p.roots,
		Intermediates: intermediates,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	if err != nil {
		return errors.Wrapf(err, "client chain (%s) not trusted", authType)
	}
	return nil
}

func (p *PoolTrustManager) AcceptedIssuers() []*x509.Certificate {
	return p.issuers
}
