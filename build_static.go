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

//go:build openssl_static
// +build openssl_static

package openssl

// The shim targets the OpenSSL 1.1.1 API; 3.x keeps it behind the
// compatibility macros.

// #cgo linux darwin pkg-config: --static libssl libcrypto
// #cgo linux darwin CFLAGS: -DOPENSSL_API_COMPAT=0x10101000L -Wno-deprecated-declarations
// #cgo linux LDFLAGS: -ldl -lpthread
import "C"
