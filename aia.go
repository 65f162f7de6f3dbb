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
	"crypto/x509"
	"encoding/asn1"

	"github.com/pkg/errors"
	"golang.org/x/crypto/cryptobyte"
	cbasn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidAuthorityInfoAccess = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 1}
	oidAccessMethodOCSP    = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 1}

	tagURI = cbasn1.Tag(6).ContextSpecific()
)

// ocspResponders lists the OCSP URLs from the certificate's Authority
// Information Access extension, in the order they appear.
func ocspResponders(cert *x509.Certificate) ([]string, error) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oidAuthorityInfoAccess) {
			return parseOCSPResponders(ext.Value)
		}
	}
	return nil, nil
}

func parseOCSPResponders(der []byte) ([]string, error) {
	input := cryptobyte.String(der)
	var descriptions cryptobyte.String
	if !input.ReadASN1(&descriptions, cbasn1.SEQUENCE) || !input.Empty() {
		return nil, errors.New("openssl: malformed authority information access")
	}
	var urls []string
	for !descriptions.Empty() {
		var (
			desc     cryptobyte.String
			method   asn1.ObjectIdentifier
			location cryptobyte.String
			tag      cbasn1.Tag
		)
		if !descriptions.ReadASN1(&desc, cbasn1.SEQUENCE) ||
			!desc.ReadASN1ObjectIdentifier(&method) ||
			!desc.ReadAnyASN1(&location, &tag) {
			return nil, errors.New(
				"openssl: malformed access description in authority information access")
		}
		if tag == tagURI && method.Equal(oidAccessMethodOCSP) {
			urls = append(urls, string(location))
		}
	}
	return urls, nil
}
