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

// #include "shim.h"
import "C"

import (
	"crypto/x509"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// loadCertificates installs every configured certificate and key on the
// native context. It runs with the OS thread locked.
func (c *Context) loadCertificates() error {
	cfg := c.config
	if len(cfg.Certificates) == 0 {
		switch {
		case cfg.KeyManager != nil:
			return c.loadFromKeyManager(&CertificateConfig{})
		case c.client:
			return nil
		}
		return ErrNoCertificate
	}
	for _, cc := range cfg.Certificates {
		if err := c.loadCertificate(cc); err != nil {
			return err
		}
	}
	return nil
}

func (c *Context) loadCertificate(cc *CertificateConfig) error {
	switch {
	case cc.CertificateKeystoreFile != "" || isKeystoreFile(cc.CertificateFile):
		return c.loadKeystore(cc)
	case cc.CertificateFile != "":
		return c.loadPEMFiles(cc)
	case c.config.KeyManager != nil:
		return c.loadFromKeyManager(cc)
	}
	return ErrNoCertificate
}

func isKeystoreFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".p12", ".pfx", ".pkcs12":
		return true
	}
	return false
}

func (c *Context) loadPEMFiles(cc *CertificateConfig) error {
	data, err := os.ReadFile(cc.CertificateFile)
	if err != nil {
		return errors.Wrapf(err, "certificate file %s", cc.CertificateFile)
	}
	certs, err := loadCertificatesFromPEM(data)
	if err != nil {
		return errors.Wrapf(err, "certificate file %s", cc.CertificateFile)
	}
	if len(certs) == 0 {
		return errors.Wrapf(ErrNoCertificate, "certificate file %s",
			cc.CertificateFile)
	}

	keyFile := cc.CertificateKeyFile
	keyData := data
	if keyFile == "" {
		keyFile = cc.CertificateFile
	} else if keyData, err = os.ReadFile(keyFile); err != nil {
		return errors.Wrapf(err, "key file %s", keyFile)
	}
	c.setPassword(cc.CertificateKeyPassword)
	key, err := loadPrivateKeyFromPEM(keyData, c.handle)
	c.setPassword("")
	if err != nil {
		return errors.Wrapf(err, "key file %s", keyFile)
	}

	if err := c.useKeyPair(certs[0], key); err != nil {
		return errors.Wrapf(err, "certificate file %s", cc.CertificateFile)
	}
	if err := c.addChain(certs[1:]); err != nil {
		return errors.Wrapf(err, "certificate file %s", cc.CertificateFile)
	}

	// parameters appended to the certificate file pre-seed ephemeral key
	// exchange
	if C.X_EVP_PKEY_is_rsa_or_dsa(key.key) == 1 {
		if dh, err := LoadDHParametersFromPEM(data); err == nil {
			if C.X_SSL_CTX_set_tmp_dh(c.ctx, dh.dh) != 1 {
				logger.Warnf("openssl: ignoring DH parameters in %s: %v",
					cc.CertificateFile, errorFromErrorQueue())
			}
			dh.Free()
		}
	}
	if bio, err := newMemBio(data); err == nil {
		nid := C.X_PEM_read_bio_curve_nid(bio)
		C.BIO_free(bio)
		clearErrorQueue()
		if nid > 0 && C.X_SSL_CTX_set1_curve(c.ctx, nid) != 1 {
			logger.Warnf("openssl: ignoring EC curve in %s: %v",
				cc.CertificateFile, errorFromErrorQueue())
		}
	}

	if cc.CertificateChainFile != "" {
		chainData, err := os.ReadFile(cc.CertificateChainFile)
		if err != nil {
			return errors.Wrapf(err, "chain file %s", cc.CertificateChainFile)
		}
		chain, err := loadCertificatesFromPEM(chainData)
		if err != nil {
			return errors.Wrapf(err, "chain file %s", cc.CertificateChainFile)
		}
		if err := c.addChain(chain); err != nil {
			return errors.Wrapf(err, "chain file %s", cc.CertificateChainFile)
		}
	}
	return nil
}

func (c *Context) loadKeystore(cc *CertificateConfig) error {
	path := cc.CertificateKeystoreFile
	if path == "" {
		path = cc.CertificateFile
	}
	password := cc.CertificateKeystorePassword
	if password == "" {
		password = cc.CertificateKeyPassword
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, "keystore %s", path)
	}
	p12, err := UnmarshalPKCS12(data, password)
	if err != nil {
		return errors.Wrapf(err, "keystore %s", path)
	}
	if err := c.useKeyPair(p12.Certificate, p12.PrivateKey); err != nil {
		return errors.Wrapf(err, "keystore %s", path)
	}
	return errors.Wrapf(c.addChain(p12.CaCerts), "keystore %s", path)
}

func (c *Context) loadFromKeyManager(cc *CertificateConfig) error {
	km := c.config.KeyManager
	if km == nil {
		return ErrNoCertificate
	}
	alias := cc.CertificateKeyAlias
	if alias == "" {
		alias = DefaultKeyAlias
	}
	chain := km.CertificateChain(alias)
	if len(chain) == 0 && cc.CertificateKeyAlias == "" {
		alias = km.ChooseServerAlias(cc.Type, nil)
		if alias != "" {
			chain = km.CertificateChain(alias)
		}
	}
	if len(chain) == 0 {
		return ErrNoKeyManagerAlias
	}
	privateKey := km.PrivateKey(alias)
	if privateKey == nil {
		return errors.Errorf("openssl: key manager has no key for alias %q",
			alias)
	}

	leaf, err := LoadCertificateFromDER(chain[0].Raw)
	if err != nil {
		return errors.Wrapf(err, "key manager alias %s", alias)
	}
	der, err := x509.MarshalPKCS8PrivateKey(privateKey)
	if err != nil {
		return errors.Wrapf(err, "key manager alias %s", alias)
	}
	key, err := LoadPrivateKeyFromDER(der)
	if err != nil {
		return errors.Wrapf(err, "key manager alias %s", alias)
	}
	if err := c.useKeyPair(leaf, key); err != nil {
		return errors.Wrapf(err, "key manager alias %s", alias)
	}
	intermediates := make([]*Certificate, 0, len(chain)-1)
	for _, cert := range chain[1:] {
		native, err := LoadCertificateFromDER(cert.Raw)
		if err != nil {
			return errors.Wrapf(err, "key manager alias %s", alias)
		}
		intermediates = append(intermediates, native)
	}
	return errors.Wrapf(c.addChain(intermediates), "key manager alias %s",
		alias)
}

// useKeyPair installs cert and key and checks that they belong together.
func (c *Context) useKeyPair(cert *Certificate, key PrivateKey) error {
	if C.X509_check_private_key(cert.x, key.evpPKey()) != 1 {
		clearErrorQueue()
		return ErrKeyMismatch
	}
	if C.SSL_CTX_use_certificate(c.ctx, cert.x) != 1 {
		return errorFromErrorQueue()
	}
	if C.SSL_CTX_use_PrivateKey(c.ctx, key.evpPKey()) != 1 {
		return errorFromErrorQueue()
	}
	if C.SSL_CTX_check_private_key(c.ctx) != 1 {
		clearErrorQueue()
		return ErrKeyMismatch
	}
	return nil
}

// addChain appends intermediates sent after the leaf certificate.
func (c *Context) addChain(certs []*Certificate) error {
	for _, cert := range certs {
		// the context takes over a reference
		C.X509_up_ref(cert.x)
		if C.X_SSL_CTX_add_extra_chain_cert(c.ctx, cert.x) != 1 {
			C.X509_free(cert.x)
			return errorFromErrorQueue()
		}
	}
	return nil
}
