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
	"runtime"
	"unsafe"

	"github.com/pkg/errors"
)

type CRL struct {
	x   *C.X509_CRL
	ref interface{}
}

// LoadCRLFromPEM loads an X509_CRL from a PEM-encoded block.
func LoadCRLFromPEM(pem_block []byte) (*CRL, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	bio, err := newMemBio(pem_block)
	if err != nil {
		return nil, err
	}
	crl := C.PEM_read_bio_X509_CRL(bio, nil, nil, nil)
	C.BIO_free(bio)
	if crl == nil {
		return nil, errorFromErrorQueue()
	}
	x := &CRL{x: crl}
	runtime.SetFinalizer(x, func(x *CRL) {
		C.X509_CRL_free(x.x)
	})
	return x, nil
}

func (c *CRL) GetIssuer() (*Name, error) {
	n := C.X509_CRL_get_issuer(c.x)
	if n == nil {
		return nil, errors.New("failed to get issuer")
	}
	return &Name{name: n, ref: c}, nil
}

// AddCRL adds a revocation list to the store and turns on CRL checking for
// the whole chain.
func (s *CertificateStore) AddCRL(crl *CRL) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if C.X509_STORE_add_crl(s.store, crl.x) != 1 {
		return errorFromErrorQueue()
	}
	s.enableCRLCheck()
	return nil
}

// LoadRevocation registers a CRL file and/or a hashed CRL directory with the
// store. Either may be empty; with both empty nothing changes.
func (s *CertificateStore) LoadRevocation(file, dir string) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	return s.loadRevocation(file, dir)
}

func (s *CertificateStore) loadRevocation(file, dir string) error {
	if file == "" && dir == "" {
		return nil
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if file != "" {
		lookup := C.X509_STORE_add_lookup(s.store, C.X509_LOOKUP_file())
		if lookup == nil {
			return errors.Wrapf(errorFromErrorQueue(),
				"revocation file %s", file)
		}
		cfile := C.CString(file)
		defer C.free(unsafe.Pointer(cfile))
		if C.X509_load_crl_file(lookup, cfile, C.X509_FILETYPE_PEM) <= 0 {
			return errors.Wrapf(errorFromErrorQueue(),
				"revocation file %s", file)
		}
	}
	if dir != "" {
		lookup := C.X509_STORE_add_lookup(s.store, C.X509_LOOKUP_hash_dir())
		if lookup == nil {
			return errors.Wrapf(errorFromErrorQueue(),
				"revocation path %s", dir)
		}
		cdir := C.CString(dir)
		defer C.free(unsafe.Pointer(cdir))
		if C.X_X509_LOOKUP_add_dir(lookup, cdir) != 1 {
			return errors.Wrapf(errorFromErrorQueue(),
				"revocation path %s", dir)
		}
	}
	s.enableCRLCheck()
	return nil
}

func (s *CertificateStore) enableCRLCheck() {
	C.X509_STORE_set_flags(s.store,
		C.X509_V_FLAG_CRL_CHECK|C.X509_V_FLAG_CRL_CHECK_ALL)
}
