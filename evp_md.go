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

import "fmt"

// EVP_MD names a message digest usable for certificate fingerprints.
type EVP_MD int

const (
	EVP_SHA1 EVP_MD = iota
	EVP_SHA224
	EVP_SHA256
	EVP_SHA384
	EVP_SHA512
)

// Size returns the size of the digest in bytes.
func (evp EVP_MD) Size() int {
	switch evp {
	case EVP_SHA1:
		return 20
	case EVP_SHA224:
		return 28
	case EVP_SHA256:
		return 32
	case EVP_SHA384:
		return 48
	case EVP_SHA512:
		return 64
	}
	return 0
}

func (evp EVP_MD) String() string {
	switch evp {
	case EVP_SHA1:
		return "SHA1"
	case EVP_SHA224:
		return "SHA224"
	case EVP_SHA256:
		return "SHA256"
	case EVP_SHA384:
		return "SHA384"
	case EVP_SHA512:
		return "SHA512"
	}
	return fmt.Sprintf("EVP_MD(%d)", int(evp))
}

func (evp EVP_MD) c() *C.EVP_MD {
	switch evp {
	case EVP_SHA1:
		return C.EVP_sha1()
	case EVP_SHA224:
		return C.EVP_sha224()
	case EVP_SHA256:
		return C.EVP_sha256()
	case EVP_SHA384:
		return C.EVP_sha384()
	case EVP_SHA512:
		return C.EVP_sha512()
	}
	return nil
}
