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
	"crypto/x509"
	"errors"
	"io"
	"runtime"
	"unsafe"
)

// Certificate is a reference to a native X509.
type Certificate struct {
	x   *C.X509
	ref interface{}
}

// newCertificate takes ownership of x.
func newCertificate(x *C.X509) *Certificate {
	c := &Certificate{x: x}
	runtime.SetFinalizer(c, func(c *Certificate) {
		C.X509_free(c.x)
	})
	return c
}

// borrowCertificate wraps an X509 owned by someone else (a chain stack or a
// store context) by taking an additional reference.
func borrowCertificate(x *C.X509) *Certificate {
	if x == nil {
		return nil
	}
	C.X509_up_ref(x)
	return newCertificate(x)
}

type Name struct {
	name *C.X509_NAME
	ref  interface{}
}

// String renders the name in RFC 2253 form.
func (n *Name) String() string {
	bio := C.BIO_new(C.BIO_s_mem())
	if bio == nil {
		return ""
	}
	defer C.BIO_free(bio)
	if C.X509_NAME_print_ex(bio, n.name, 0, C.XN_FLAG_RFC2253) < 0 {
		return ""
	}
	out, _ := io.ReadAll(asAnyBio(bio))
	return string(out)
}

// Hash is the subject hash used to name files in a hashed certificate or
// CRL directory.
func (n *Name) Hash() uint32 {
	return uint32(C.X_X509_NAME_hash(n.name))
}

func (c *Certificate) GetSubjectName() (*Name, error) {
	n := C.X509_get_subject_name(c.x)
	if n == nil {
		return nil, errors.New("failed to get subject name")
	}
	return &Name{name: n, ref: c}, nil
}

func (c *Certificate) GetIssuerName() (*Name, error) {
	n := C.X509_get_issuer_name(c.x)
	if n == nil {
		return nil, errors.New("failed to get issuer name")
	}
	return &Name{name: n, ref: c}, nil
}

// LoadCertificateFromPEM loads an X509 certificate from a PEM-encoded block.
// Only the first certificate in the block is read; see SplitPEM.
func LoadCertificateFromPEM(pem_block []byte) (*Certificate, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	bio, err := newMemBio(pem_block)
	if err != nil {
		return nil, err
	}
	cert := C.PEM_read_bio_X509(bio, nil, nil, nil)
	C.BIO_free(bio)
	if cert == nil {
		return nil, errorFromErrorQueue()
	}
	return newCertificate(cert), nil
}

// LoadCertificateFromDER loads an X509 certificate from its DER encoding.
func LoadCertificateFromDER(der []byte) (*Certificate, error) {
	if len(der) == 0 {
		return nil, errors.New("empty der block")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	cert := C.X_d2i_X509((*C.uchar)(unsafe.Pointer(&der[0])), C.int(len(der)))
	if cert == nil {
		return nil, errorFromErrorQueue()
	}
	return newCertificate(cert), nil
}

// MarshalPEM converts the X509 certificate to PEM-encoded format
func (c *Certificate) MarshalPEM() (pem_block []byte, err error) {
	bio := C.BIO_new(C.BIO_s_mem())
	if bio == nil {
		return nil, errors.New("failed to allocate memory BIO")
	}
	defer C.BIO_free(bio)
	if int(C.PEM_write_bio_X509(bio, c.x)) != 1 {
		return nil, errors.New("failed dumping certificate")
	}
	return io.ReadAll(asAnyBio(bio))
}

// MarshalDER converts the X509 certificate to its DER encoding.
func (c *Certificate) MarshalDER() (der_block []byte, err error) {
	size := int(C.X_i2d_X509_len(c.x))
	if size <= 0 {
		return nil, errors.New("failed sizing certificate")
	}
	buf := make([]byte, size)
	n := int(C.X_i2d_X509_buf(c.x, (*C.uchar)(unsafe.Pointer(&buf[0])),
		C.int(size)))
	if n != size {
		return nil, errors.New("failed dumping certificate")
	}
	return buf, nil
}

// ToX509 parses the certificate with crypto/x509, which is the form handed to
// key and trust managers and to the OCSP client.
func (c *Certificate) ToX509() (*x509.Certificate, error) {
	der, err := c.MarshalDER()
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(der)
}

// Fingerprint returns the digest of the DER encoding.
func (c *Certificate) Fingerprint(md EVP_MD) ([]byte, error) {
	cmd := md.c()
	if cmd == nil {
		return nil, errors.New("unsupported digest")
	}
	buf := make([]byte, C.EVP_MAX_MD_SIZE)
	var n C.uint
	if C.X509_digest(c.x, cmd, (*C.uchar)(unsafe.Pointer(&buf[0])), &n) != 1 {
		return nil, errors.New("failed computing fingerprint")
	}
	return buf[:n], nil
}

// PublicKey returns the public key embedded in the X509 certificate.
func (c *Certificate) PublicKey() (PublicKey, error) {
	pkey := C.X509_get_pubkey(c.x)
	if pkey == nil {
		return nil, errors.New("no public key found")
	}
	return newPKey(pkey), nil
}
