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
	"encoding/asn1"
	"testing"

	"github.com/stretchr/testify/require"
)

type accessDescription struct {
	Method   asn1.ObjectIdentifier
	Location asn1.RawValue
}

func uriLocation(uri string) asn1.RawValue {
	return asn1.RawValue{Class: asn1.ClassContextSpecific, Tag: 6,
		Bytes: []byte(uri)}
}

func TestOCSPRespondersFromCertificate(t *testing.T) {
	urls := []string{"http://ocsp-a.test/", "http://ocsp-b.test/"}
	pki := newTestPKI(t, urls...)

	got, err := ocspResponders(pki.server.cert)
	require.NoError(t, err)
	require.Equal(t, urls, got)

	got, err = ocspResponders(pki.ca.cert)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestParseOCSPRespondersSkipsOtherMethods(t *testing.T) {
	caIssuers := asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 48, 2}
	der, err := asn1.Marshal([]accessDescription{
		{Method: caIssuers, Location: uriLocation("http://ca.test/ca.crt")},
		{Method: oidAccessMethodOCSP, Location: uriLocation("http://ocsp.test")},
		// a directoryName location is not a URL
		{Method: oidAccessMethodOCSP, Location: asn1.RawValue{
			Class: asn1.ClassContextSpecific, Tag: 4, IsCompound: true,
			Bytes: []byte{0x30, 0x00}}},
	})
	require.NoError(t, err)

	got, err := parseOCSPResponders(der)
	require.NoError(t, err)
	require.Equal(t, []string{"http://ocsp.test"}, got)
}

func TestParseOCSPRespondersMalformed(t *testing.T) {
	for _, der := range [][]byte{
		nil,
		{0x30},
		{0x30, 0x03, 0x30, 0x01, 0x06},
		{0x30, 0x00, 0x00},
	} {
		_, err := parseOCSPResponders(der)
		require.Error(t, err, "%x", der)
	}
}
