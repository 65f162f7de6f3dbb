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
	"encoding/pem"
	"errors"
	"io"
	"runtime"
	"unsafe"
)

// KeyType is the algorithm of a certificate's key. Key managers are asked for
// an alias by key type.
type KeyType int

const (
	KeyTypeUndefined KeyType = iota
	KeyTypeRSA
	KeyTypeDSA
	KeyTypeEC
)

func (k KeyType) String() string {
	switch k {
	case KeyTypeRSA:
		return "RSA"
	case KeyTypeDSA:
		return "DSA"
	case KeyTypeEC:
		return "EC"
	}
	return "UNDEFINED"
}

type PublicKey interface {
	// MarshalPKIXPublicKeyPEM converts the public key to PEM-encoded PKIX
	// format
	MarshalPKIXPublicKeyPEM() (pem_block []byte, err error)

	// MarshalPKIXPublicKeyDER converts the public key to DER-encoded PKIX
	// format
	MarshalPKIXPublicKeyDER() (der_block []byte, err error)

	// KeyType reports the key algorithm.
	KeyType() KeyType

	// Bits is the key size.
	Bits() int

	evpPKey() *C.EVP_PKEY
}

type PrivateKey interface {
	PublicKey

	// MarshalPKCS8PrivateKeyPEM converts the private key to PEM-encoded
	// unencrypted PKCS8 format
	MarshalPKCS8PrivateKeyPEM() (pem_block []byte, err error)
}

type pKey struct {
	key *C.EVP_PKEY
}

// newPKey takes ownership of key.
func newPKey(key *C.EVP_PKEY) *pKey {
	p := &pKey{key: key}
	runtime.SetFinalizer(p, func(p *pKey) {
		C.EVP_PKEY_free(p.key)
	})
	return p
}

func (key *pKey) evpPKey() *C.EVP_PKEY { return key.key }

func (key *pKey) KeyType() KeyType {
	switch C.EVP_PKEY_base_id(key.key) {
	case C.EVP_PKEY_RSA:
		return KeyTypeRSA
	case C.EVP_PKEY_DSA:
		return KeyTypeDSA
	case C.EVP_PKEY_EC:
		return KeyTypeEC
	}
	return KeyTypeUndefined
}

func (key *pKey) Bits() int {
	return int(C.EVP_PKEY_bits(key.key))
}

func (key *pKey) MarshalPKCS8PrivateKeyPEM() (pem_block []byte,
	err error) {
	bio := C.BIO_new(C.BIO_s_mem())
	if bio == nil {
		return nil, errors.New("failed to allocate memory BIO")
	}
	defer C.BIO_free(bio)
	if int(C.PEM_write_bio_PrivateKey(bio, key.key, nil, nil, C.int(0), nil,
		nil)) != 1 {
		return nil, errors.New("failed dumping private key")
	}
	return io.ReadAll(asAnyBio(bio))
}

func (key *pKey) MarshalPKIXPublicKeyPEM() (pem_block []byte,
	err error) {
	bio := C.BIO_new(C.BIO_s_mem())
	if bio == nil {
		return nil, errors.New("failed to allocate memory BIO")
	}
	defer C.BIO_free(bio)
	if int(C.PEM_write_bio_PUBKEY(bio, key.key)) != 1 {
		return nil, errors.New("failed dumping public key")
	}
	return io.ReadAll(asAnyBio(bio))
}

func (key *pKey) MarshalPKIXPublicKeyDER() (der_block []byte,
	err error) {
	pem_block, err := key.MarshalPKIXPublicKeyPEM()
	if err != nil {
		return nil, err
	}
	p, _ := pem.Decode(pem_block)
	if p == nil {
		return nil, errors.New("something went wrong with PEM generation")
	}
	return p.Bytes, nil
}

// LoadPrivateKeyFromPEM loads an unencrypted private key from a PEM-encoded
// block.
func LoadPrivateKeyFromPEM(pem_block []byte) (PrivateKey, error) {
	return loadPrivateKeyFromPEM(pem_block, nil)
}

// loadPrivateKeyFromPEM reads a possibly encrypted key. handle identifies the
// context whose password the native password callback should hand out.
func loadPrivateKeyFromPEM(pem_block []byte, handle unsafe.Pointer) (
	*pKey, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	bio, err := newMemBio(pem_block)
	if err != nil {
		return nil, err
	}
	key := C.X_PEM_read_bio_PrivateKey(bio, handle)
	C.BIO_free(bio)
	if key == nil {
		return nil, errorFromErrorQueue()
	}
	return newPKey(key), nil
}

// LoadPrivateKeyFromDER loads a private key from PKCS1, SEC1 or unencrypted
// PKCS8 DER.
func LoadPrivateKeyFromDER(der_block []byte) (PrivateKey, error) {
	if len(der_block) == 0 {
		return nil, errors.New("empty der block")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	key := C.X_d2i_PrivateKey((*C.uchar)(unsafe.Pointer(&der_block[0])),
		C.int(len(der_block)))
	if key == nil {
		return nil, errorFromErrorQueue()
	}
	return newPKey(key), nil
}
