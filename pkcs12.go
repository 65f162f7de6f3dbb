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
	"errors"
	"io"
	"runtime"
	"unsafe"
)

// PKCS12 is the content of a PKCS#12 keystore: one key entry plus the CA
// certificates stored next to it.
type PKCS12 struct {
	Name        string
	Certificate *Certificate
	PrivateKey  PrivateKey
	CaCerts     []*Certificate
}

// Marshal the pkcs12 data with default options
func (this *PKCS12) Marshal(password string) ([]byte, error) {
	return this.MarshalEx(password, 2048, 1)
}

// MarshalEx encodes the keystore with the library's default PBE algorithms.
func (this *PKCS12) MarshalEx(password string, iter int, maciter int) (
	[]byte, error) {
	if this.Certificate == nil {
		return nil, errors.New("Require certificate")
	}
	key, ok := this.PrivateKey.(*pKey)
	if !ok {
		return nil, errors.New("Unsupported private key type")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var cCACerts *C.X_STACK_OF_X509
	if len(this.CaCerts) > 0 {
		cCACerts = C.X_sk_X509_new_null()
		if cCACerts == nil {
			return nil, errors.New("Failed to create STACK_OF(X509)")
		}
		defer C.X_sk_X509_free(cCACerts)
		for _, caCert := range this.CaCerts {
			if C.X_sk_X509_push(cCACerts, caCert.x) <= 0 {
				return nil, errors.New("Failed to add ca certificate")
			}
		}
	}
	var pass *C.char
	if len(password) > 0 {
		pass = C.CString(password)
		defer C.free(unsafe.Pointer(pass))
	}
	var name *C.char
	if len(this.Name) > 0 {
		name = C.CString(this.Name)
		defer C.free(unsafe.Pointer(name))
	}
	pkcs12 := C.PKCS12_create(pass, name, key.key, this.Certificate.x,
		cCACerts, 0, 0, C.int(iter), C.int(maciter), 0)
	if pkcs12 == nil {
		return nil, errorFromErrorQueue()
	}
	defer C.PKCS12_free(pkcs12)
	bio := C.BIO_new(C.BIO_s_mem())
	if bio == nil {
		return nil, errors.New("Failed to allocate memory BIO")
	}
	defer C.BIO_free(bio)
	if C.i2d_PKCS12_bio(bio, pkcs12) <= 0 {
		return nil, errors.New("Failed to dump PKCS12 object")
	}
	C.X_BIO_flush(bio)
	return io.ReadAll(asAnyBio(bio))
}

// UnmarshalPKCS12 decodes a keystore, verifying its MAC with password.
func UnmarshalPKCS12(bytes []byte, password string) (*PKCS12, error) {
	if len(bytes) == 0 {
		return nil, errors.New("Empty pkcs12 bytes")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	bio, err := newMemBio(bytes)
	if err != nil {
		return nil, err
	}
	defer C.BIO_free(bio)
	pkcs12 := C.d2i_PKCS12_bio(bio, nil)
	if pkcs12 == nil {
		return nil, errorFromErrorQueue()
	}
	defer C.PKCS12_free(pkcs12)

	var pass *C.char
	if len(password) > 0 {
		pass = C.CString(password)
		defer C.free(unsafe.Pointer(pass))
	}
	var cX509 *C.X509
	var cPKey *C.EVP_PKEY
	var cCACerts *C.X_STACK_OF_X509
	if C.X_PKCS12_parse(pkcs12, pass, &cPKey, &cX509, &cCACerts) != 1 {
		return nil, errorFromErrorQueue()
	}
	if cCACerts != nil {
		// the certificates move into Go wrappers below, only the stack goes
		defer C.X_sk_X509_free(cCACerts)
	}
	if cX509 == nil {
		if cPKey != nil {
			C.EVP_PKEY_free(cPKey)
		}
		return nil, errors.New("No certificate found")
	}
	cert := newCertificate(cX509)
	if cPKey == nil {
		return nil, errors.New("No private key found")
	}

	var name string
	var cNameLength C.int
	cName := C.X509_alias_get0(cX509, &cNameLength)
	if cName != nil {
		name = string(C.GoBytes(unsafe.Pointer(cName), cNameLength))
	}

	var caCerts []*Certificate
	if cCACerts != nil {
		count := int(C.X_sk_X509_num(cCACerts))
		for i := 0; i < count; i++ {
			caCerts = append(caCerts,
				newCertificate(C.X_sk_X509_value(cCACerts, C.int(i))))
		}
	}
	return &PKCS12{
		Name:        name,
		Certificate: cert,
		PrivateKey:  newPKey(cPKey),
		CaCerts:     caCerts,
	}, nil
}
