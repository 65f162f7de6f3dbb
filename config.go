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
	"time"

	"github.com/pkg/errors"
)

// CertificateVerification is how a server treats client certificates.
type CertificateVerification int

const (
	// CertificateVerificationNone never asks for a client certificate.
	CertificateVerificationNone CertificateVerification = iota
	// CertificateVerificationOptional asks for a certificate and verifies it
	// if one is sent.
	CertificateVerificationOptional
	// CertificateVerificationOptionalNoCA is like Optional but tolerates
	// certificates that do not chain to a configured CA.
	CertificateVerificationOptionalNoCA
	// CertificateVerificationRequired fails the handshake without a valid
	// client certificate.
	CertificateVerificationRequired
)

func (v CertificateVerification) String() string {
	switch v {
	case CertificateVerificationNone:
		return "NONE"
	case CertificateVerificationOptional:
		return "OPTIONAL"
	case CertificateVerificationOptionalNoCA:
		return "OPTIONAL_NO_CA"
	case CertificateVerificationRequired:
		return "REQUIRED"
	}
	return "UNKNOWN"
}

const (
	DefaultCertificateVerificationDepth = 10
	DefaultOCSPTimeout                  = 5 * time.Second
	DefaultSessionCacheSize             = 256
	DefaultSessionTimeout               = 4 * time.Hour

	// DefaultKeyAlias is the alias asked of a KeyManager when
	// CertificateConfig.CertificateKeyAlias is empty.
	DefaultKeyAlias = "tomcat"
)

// DefaultProtocols are enabled when Config.Protocols is empty.
var DefaultProtocols = []string{ProtocolTLSv1_2, ProtocolTLSv1_3}

// CertificateConfig describes one certificate and key for a context. Either
// the PEM fields, the keystore fields or a Config.KeyManager supply it.
type CertificateConfig struct {
	CertificateFile        string
	CertificateKeyFile     string
	CertificateKeyPassword string
	CertificateChainFile   string

	// CertificateKeystoreFile is a PKCS#12 bundle. A CertificateFile ending
	// in .p12, .pfx or .pkcs12 is read as one too.
	CertificateKeystoreFile     string
	CertificateKeystorePassword string

	// CertificateKeyAlias picks the key manager entry.
	CertificateKeyAlias string

	// Type is the key algorithm, used to ask a key manager for an alias when
	// the configured one has no entry.
	Type KeyType
}

// ConfCommand is a raw OpenSSL SSL_CONF command, applied after everything
// else is configured.
type ConfCommand struct {
	Name  string
	Value string
}

// Config is the TLS configuration of one endpoint.
type Config struct {
	// Protocols is the enabled protocol set: SSLv2Hello, SSLv2, SSLv3,
	// TLSv1, TLSv1.1, TLSv1.2, TLSv1.3 or "all". The SSLv2 names are
	// accepted and ignored.
	Protocols []string

	// CipherList is the OpenSSL cipher string for TLSv1.2 and below.
	CipherList string
	// CipherSuites is the TLSv1.3 ciphersuite list.
	CipherSuites     string
	HonorCipherOrder bool

	Certificates []*CertificateConfig

	CertificateVerification      CertificateVerification
	CertificateVerificationDepth int

	CACertificateFile string
	CACertificatePath string
	RevocationFile    string
	RevocationPath    string

	DisableOCSPCheck bool
	OCSPTimeout      time.Duration
	// OCSPCacheSize bounds the cache of definitive OCSP answers. Zero
	// disables caching.
	OCSPCacheSize int

	// SessionTicketKey is 16 bytes of key name, 16 of AES key and 16 of
	// HMAC key.
	SessionTicketKey      []byte
	DisableSessionTickets bool

	SessionCacheEnabled bool
	SessionCacheSize    int
	SessionTimeout      time.Duration
	SessionIDContext    []byte

	ConfCommands []ConfCommand

	KeyManager   KeyManager
	TrustManager TrustManager
}

func (c *Config) setDefaults() {
	if len(c.Protocols) == 0 {
		c.Protocols = append([]string(nil), DefaultProtocols...)
	}
	if c.CertificateVerificationDepth == 0 {
		c.CertificateVerificationDepth = DefaultCertificateVerificationDepth
	}
	if c.OCSPTimeout == 0 {
		c.OCSPTimeout = DefaultOCSPTimeout
	}
	if c.SessionCacheSize == 0 {
		c.SessionCacheSize = DefaultSessionCacheSize
	}
	if c.SessionTimeout == 0 {
		c.SessionTimeout = DefaultSessionTimeout
	}
	if len(c.SessionIDContext) == 0 {
		c.SessionIDContext = []byte("tlsengine")
	}
}

func (c *Config) validate() error {
	if _, err := parseProtocols(c.Protocols); err != nil {
		return err
	}
	if c.SessionTicketKey != nil && len(c.SessionTicketKey) != ticketKeyLength {
		return ErrInvalidTicketKey
	}
	if c.CertificateVerificationDepth < 0 {
		return errors.Errorf("openssl: negative verification depth %d",
			c.CertificateVerificationDepth)
	}
	switch c.CertificateVerification {
	case CertificateVerificationNone, CertificateVerificationOptional,
		CertificateVerificationOptionalNoCA, CertificateVerificationRequired:
	default:
		return errors.Errorf("openssl: unknown certificate verification %d",
			int(c.CertificateVerification))
	}
	if len(c.SessionIDContext) > 32 {
		return errors.New("openssl: session id context longer than 32 bytes")
	}
	return nil
}

// clone copies the config so defaults never leak into the caller's value.
func (c *Config) clone() *Config {
	if c == nil {
		return &Config{}
	}
	out := *c
	out.Protocols = append([]string(nil), c.Protocols...)
	out.Certificates = append([]*CertificateConfig(nil), c.Certificates...)
	out.ConfCommands = append([]ConfCommand(nil), c.ConfCommands...)
	out.SessionTicketKey = append([]byte(nil), c.SessionTicketKey...)
	if c.SessionTicketKey == nil {
		out.SessionTicketKey = nil
	}
	out.SessionIDContext = append([]byte(nil), c.SessionIDContext...)
	return &out
}
