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
	"bytes"
	"crypto/x509"
	"encoding/hex"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/crypto/ocsp"
)

// maxOCSPResponse bounds how much of a responder's body is read.
const maxOCSPResponse = 1 << 20

type ocspStatus int

const (
	ocspUnknown ocspStatus = iota
	ocspGood
	ocspRevoked
)

func (s ocspStatus) String() string {
	switch s {
	case ocspGood:
		return "good"
	case ocspRevoked:
		return "revoked"
	}
	return "unknown"
}

// ocspAnswer is a definitive answer. A zero until never expires, which is
// how revocations are kept.
type ocspAnswer struct {
	status ocspStatus
	until  time.Time
}

// ocspClient asks OCSP responders about peer certificates. It runs inside
// the verify callback, so everything it does is bounded by the HTTP timeout.
type ocspClient struct {
	http  *http.Client
	cache *lru.Cache[string, ocspAnswer]
	now   func() time.Time
}

func newOCSPClient(timeout time.Duration, cacheSize int) (*ocspClient, error) {
	c := &ocspClient{
		http: &http.Client{Timeout: timeout},
		now:  time.Now,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, ocspAnswer](cacheSize)
		if err != nil {
			return nil, errors.Wrap(err, "openssl: OCSP cache")
		}
		c.cache = cache
	}
	return c, nil
}

// ocspCacheKey is the SHA-256 fingerprint of the certificate, as computed by
// the native library.
func ocspCacheKey(cert *x509.Certificate) (string, error) {
	native, err := LoadCertificateFromDER(cert.Raw)
	if err != nil {
		return "", err
	}
	sum, err := native.Fingerprint(EVP_SHA256)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// check returns the first definitive answer from the certificate's
// responders. Failures of any kind only make the answer unknown.
func (o *ocspClient) check(cert, issuer *x509.Certificate) ocspStatus {
	key, err := ocspCacheKey(cert)
	if err != nil {
		logger.Warnf("OCSP answers for %q not cached: %v",
			cert.Subject.String(), err)
	}
	if status, ok := o.cached(key); ok {
		return status
	}

	urls, err := ocspResponders(cert)
	if err != nil {
		logger.Warnf("OCSP check of %q inconclusive: %v",
			cert.Subject.String(), err)
		return ocspUnknown
	}
	if len(urls) == 0 {
		return ocspUnknown
	}
	req, err := ocsp.CreateRequest(cert, issuer, nil)
	if err != nil {
		logger.Warnf("OCSP check of %q inconclusive: %v",
			cert.Subject.String(), err)
		return ocspUnknown
	}

	for _, url := range urls {
		resp, err := o.query(url, req, cert, issuer)
		if err != nil {
			logger.Warnf("OCSP responder %s inconclusive: %v", url, err)
			continue
		}
		var status ocspStatus
		switch resp.Status {
		case ocsp.Good:
			status = ocspGood
		case ocsp.Revoked:
			status = ocspRevoked
		default:
			continue
		}
		o.remember(key, status, resp.NextUpdate)
		return status
	}
	return ocspUnknown
}

func (o *ocspClient) query(url string, req []byte, cert,
	issuer *x509.Certificate) (*ocsp.Response, error) {
	hreq, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(req))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/ocsp-request")
	hreq.Header.Set("Accept", "application/ocsp-response")

	resp, err := o.http.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("unexpected HTTP status %q", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxOCSPResponse))
	if err != nil {
		return nil, err
	}
	return ocsp.ParseResponseForCert(body, cert, issuer)
}

func (o *ocspClient) cached(key string) (ocspStatus, bool) {
	if o.cache == nil || key == "" {
		return ocspUnknown, false
	}
	answer, ok := o.cache.Get(key)
	if !ok {
		return ocspUnknown, false
	}
	if !answer.until.IsZero() && !o.now().Before(answer.until) {
		o.cache.Remove(key)
		return ocspUnknown, false
	}
	return answer.status, true
}

// remember caches definitive answers. Good answers live until the responder
// says to refresh; without a NextUpdate they are not cached at all.
func (o *ocspClient) remember(key string, status ocspStatus,
	nextUpdate time.Time) {
	if o.cache == nil || key == "" {
		return
	}
	switch status {
	case ocspRevoked:
		o.cache.Add(key, ocspAnswer{status: ocspRevoked})
	case ocspGood:
		if nextUpdate.IsZero() {
			return
		}
		if prev, ok := o.cache.Peek(key); ok && prev.status == ocspRevoked {
			return
		}
		o.cache.Add(key, ocspAnswer{status: ocspGood, until: nextUpdate})
	}
}
