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

const (
	nidUndef = int(C.NID_undef)

	nidKxRSA   = int(C.NID_kx_rsa)
	nidKxDHE   = int(C.NID_kx_dhe)
	nidKxECDHE = int(C.NID_kx_ecdhe)
	nidKxPSK   = int(C.NID_kx_psk)
	nidKxAny   = int(C.NID_kx_any)

	nidAuthRSA   = int(C.NID_auth_rsa)
	nidAuthDSS   = int(C.NID_auth_dss)
	nidAuthECDSA = int(C.NID_auth_ecdsa)
	nidAuthNull  = int(C.NID_auth_null)
	nidAuthPSK   = int(C.NID_auth_psk)
)

// authMethod names the key exchange and authentication of a cipher the way
// trust managers expect to see it, e.g. "ECDHE_RSA".
func authMethod(kx, auth int) string {
	switch kx {
	case nidKxRSA:
		return "RSA"
	case nidKxDHE:
		switch auth {
		case nidAuthRSA:
			return "DHE_RSA"
		case nidAuthDSS:
			return "DHE_DSS"
		case nidAuthNull:
			return "DH_anon"
		case nidAuthPSK:
			return "DHE_PSK"
		}
	case nidKxECDHE:
		switch auth {
		case nidAuthRSA:
			return "ECDHE_RSA"
		case nidAuthECDSA:
			return "ECDHE_ECDSA"
		case nidAuthNull:
			return "ECDH_anon"
		case nidAuthPSK:
			return "ECDHE_PSK"
		}
	case nidKxPSK:
		return "PSK"
	}
	// TLSv1.3 suites carry no key exchange of their own (kx_any)
	return "UNKNOWN"
}
