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
	"regexp"
)

var pemSplit *regexp.Regexp = regexp.MustCompile(`(?sm)` +
	`(^-----[\s-]*?BEGIN.*?-----$` +
	`.*?` +
	`^-----[\s-]*?END.*?-----$)`)

// SplitPEM returns every PEM block in data, in order.
func SplitPEM(data []byte) [][]byte {
	var results [][]byte
	for _, block := range pemSplit.FindAll(data, -1) {
		results = append(results, block)
	}
	return results
}

var certificateBegin = []byte("-----BEGIN CERTIFICATE-----")

// loadCertificatesFromPEM parses every certificate block in data, skipping
// keys and parameters that share the file.
func loadCertificatesFromPEM(data []byte) ([]*Certificate, error) {
	var certs []*Certificate
	for _, block := range SplitPEM(data) {
		if !bytes.HasPrefix(bytes.TrimSpace(block), certificateBegin) {
			continue
		}
		cert, err := LoadCertificateFromPEM(block)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}
	return certs, nil
}
