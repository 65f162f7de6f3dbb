// Copyright (C) 2014 Space Monkey, Inc.
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

// Version returns the version string of the OpenSSL library linked at run
// time, e.g. "OpenSSL 3.0.13 30 Jan 2024".
func Version() string {
	return C.GoString(C.X_OpenSSL_version())
}

// VersionNumber returns OPENSSL_VERSION_NUMBER of the library linked at run
// time.
func VersionNumber() uint64 {
	return uint64(C.X_OpenSSL_version_num())
}

// buildVersionNumber is the OPENSSL_VERSION_NUMBER of the headers this
// package was compiled against.
func buildVersionNumber() uint64 {
	return uint64(C.OPENSSL_VERSION_NUMBER)
}
