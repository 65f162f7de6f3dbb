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

import "errors"

var (
	ErrLibraryNotInitialized = errors.New("openssl: library not initialized")
	ErrFIPSNotActive         = errors.New("openssl: FIPS mode requested but not active")

	ErrContextNotReady  = errors.New("openssl: context not initialized")
	ErrContextDestroyed = errors.New("openssl: context destroyed")
	ErrInvalidTicketKey = errors.New("openssl: session ticket key must be 48 bytes")

	ErrKeyMismatch       = errors.New("openssl: private key does not match the certificate public key")
	ErrNoCertificate     = errors.New("openssl: no certificate configured")
	ErrNoKeyManagerAlias = errors.New("openssl: key manager has no usable alias")

	ErrEngineClosed    = errors.New("openssl: engine closed")
	ErrOversizedPacket = errors.New("openssl: oversized TLS record")
	// ErrInboundClosed is reported by CloseInbound when the peer never sent
	// close_notify. The engine is torn down regardless.
	ErrInboundClosed = errors.New("openssl: inbound closed before receiving peer close_notify")
)
