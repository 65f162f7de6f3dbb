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
	"unsafe"
)

const (
	verifyOK                      = int(C.X509_V_OK)
	verifyErrCRLHasExpired        = int(C.X509_V_ERR_CRL_HAS_EXPIRED)
	verifyErrCertRevoked          = int(C.X509_V_ERR_CERT_REVOKED)
	verifyErrCertUntrusted        = int(C.X509_V_ERR_CERT_UNTRUSTED)
	verifyErrChainTooLong         = int(C.X509_V_ERR_CERT_CHAIN_TOO_LONG)
	verifyErrDepthZeroSelfSigned  = int(C.X509_V_ERR_DEPTH_ZERO_SELF_SIGNED_CERT)
	verifyErrSelfSignedInChain    = int(C.X509_V_ERR_SELF_SIGNED_CERT_IN_CHAIN)
	verifyErrIssuerNotLocal       = int(C.X509_V_ERR_UNABLE_TO_GET_ISSUER_CERT_LOCALLY)
	verifyErrLeafSignature        = int(C.X509_V_ERR_UNABLE_TO_VERIFY_LEAF_SIGNATURE)
	verifyErrApplicationVerifying = int(C.X509_V_ERR_APPLICATION_VERIFICATION)

	// verifyErrGeneric has no alert mapping of its own, so the peer sees
	// certificate_unknown.
	verifyErrGeneric = -1
)

// isOptionalVerifyError reports whether code is one of the trust failures
// that OPTIONAL_NO_CA tolerates.
func isOptionalVerifyError(code int) bool {
	switch code {
	case verifyErrDepthZeroSelfSigned,
		verifyErrSelfSignedInChain,
		verifyErrIssuerNotLocal,
		verifyErrCertUntrusted,
		verifyErrLeafSignature:
		return true
	}
	return false
}

// verifyVerdict is the outcome of looking at one preverified certificate.
type verifyVerdict struct {
	ok   bool
	code int
	// revocation is set when an OCSP lookup could still change the answer.
	revocation bool
}

func judgeVerifyResult(mode CertificateVerification, ok bool,
	code int) verifyVerdict {
	switch {
	case isOptionalVerifyError(code):
		if mode == CertificateVerificationOptionalNoCA {
			return verifyVerdict{ok: true, code: verifyOK, revocation: true}
		}
		return verifyVerdict{ok: false, code: code}
	case code == verifyErrCRLHasExpired:
		return verifyVerdict{ok: false, code: verifyErrGeneric}
	}
	return verifyVerdict{ok: ok, code: code, revocation: ok}
}

//export go_ssl_verify_thunk
func go_ssl_verify_thunk(p unsafe.Pointer, preverified C.int,
	store *C.X509_STORE_CTX) C.int {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: verify callback panic'd: %v", err)
			os.Exit(1)
		}
	}()

	e := engineFromHandle(p)
	if e == nil {
		return 0
	}
	if e.verify == CertificateVerificationNone {
		return 1
	}

	code := int(C.X509_STORE_CTX_get_error(store))
	depth := int(C.X509_STORE_CTX_get_error_depth(store))
	verdict := judgeVerifyResult(e.verify, preverified == 1, code)
	if verdict.code != code {
		C.X509_STORE_CTX_set_error(store, C.int(verdict.code))
	}

	ok := verdict.ok
	if ok && verdict.revocation && e.ctx.ocsp != nil {
		switch e.revocationStatus(store, depth) {
		case ocspRevoked:
			C.X509_STORE_CTX_set_error(store, C.int(verifyErrCertRevoked))
			ok = false
		case ocspGood:
			C.X509_STORE_CTX_set_error(store, C.int(verifyOK))
		}
	}
	if depth > e.ctx.depth {
		C.X509_STORE_CTX_set_error(store, C.int(verifyErrChainTooLong))
		ok = false
	}
	if !ok {
		return 0
	}
	if depth == 0 {
		e.completePostHandshakeAuth()
	}
	return 1
}

// completePostHandshakeAuth counts an accepted post-handshake client
// certificate as a finished handshake. Not every library version reports
// HANDSHAKE_DONE for it.
func (e *engineState) completePostHandshakeAuth() {
	if e.pha == phaStarted {
		e.pha = phaComplete
		e.handshakeCount++
	}
}

// revocationStatus asks the OCSP responders of the certificate at depth. Chain
// roots have no issuer to build a request from and stay unknown.
func (e *engineState) revocationStatus(store *C.X509_STORE_CTX,
	depth int) ocspStatus {
	current := C.X509_STORE_CTX_get_current_cert(store)
	if current == nil {
		return ocspUnknown
	}
	issuerX := C.X_STORE_CTX_verified_cert(store, C.int(depth+1))
	if issuerX == nil {
		return ocspUnknown
	}
	cert, err := borrowCertificate(current).ToX509()
	if err != nil {
		return ocspUnknown
	}
	issuer, err := borrowCertificate(issuerX).ToX509()
	if err != nil {
		return ocspUnknown
	}
	return e.ctx.ocsp.check(cert, issuer)
}

// storeChain copies the chain the peer presented, leaf first.
func storeChain(store *C.X509_STORE_CTX) ([]*x509.Certificate, error) {
	n := int(C.X_STORE_CTX_chain_len(store))
	chain := make([]*x509.Certificate, 0, n)
	for i := 0; i < n; i++ {
		x := C.X_STORE_CTX_chain_cert(store, C.int(i))
		if x == nil {
			break
		}
		cert, err := borrowCertificate(x).ToX509()
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	return chain, nil
}

//export go_ssl_cert_verify_thunk
func go_ssl_cert_verify_thunk(p unsafe.Pointer,
	store *C.X509_STORE_CTX) C.int {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: certificate verify callback panic'd: %v",
				err)
			os.Exit(1)
		}
	}()

	e := engineFromHandle(p)
	if e == nil || e.ctx.trust == nil {
		return 0
	}
	if e.verify == CertificateVerificationNone {
		return 1
	}

	fail := func(code int) C.int {
		C.X509_STORE_CTX_set_error(store, C.int(code))
		return 0
	}

	chain, err := storeChain(store)
	if err != nil || len(chain) == 0 {
		logger.Debugf("unreadable peer chain: %v", err)
		return fail(verifyErrApplicationVerifying)
	}
	if len(chain)-1 > e.ctx.depth {
		return fail(verifyErrChainTooLong)
	}

	authType := authMethod(int(C.X_SSL_cipher_kx_nid(e.ssl)),
		int(C.X_SSL_cipher_auth_nid(e.ssl)))
	if err := e.ctx.trust.CheckClientTrusted(chain, authType); err != nil {
		logger.Debugf("peer %q not trusted: %v",
			chain[0].Subject.String(), err)
		return fail(verifyErrCertUntrusted)
	}

	if e.ctx.ocsp != nil && len(chain) > 1 &&
		e.ctx.ocsp.check(chain[0], chain[1]) == ocspRevoked {
		return fail(verifyErrCertRevoked)
	}

	C.X509_STORE_CTX_set_error(store, C.int(verifyOK))
	e.completePostHandshakeAuth()
	return 1
}
