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
	"os"
	"runtime"
	"sort"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

type DH struct {
	dh   *C.DH
	once sync.Once
}

// LoadDHParametersFromPEM loads the Diffie-Hellman parameters from
// a PEM-encoded block.
func LoadDHParametersFromPEM(pem_block []byte) (*DH, error) {
	if len(pem_block) == 0 {
		return nil, errors.New("empty pem block")
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	bio := C.BIO_new_mem_buf(unsafe.Pointer(&pem_block[0]),
		C.int(len(pem_block)))
	if bio == nil {
		return nil, errors.New("failed creating bio")
	}
	defer C.BIO_free(bio)

	params := C.X_PEM_read_bio_DHparams(bio)
	if params == nil {
		// files without DH parameters leave a PEM "no start line" entry behind
		clearErrorQueue()
		return nil, errors.New("failed reading dh parameters")
	}
	dhparams := &DH{dh: params}
	runtime.SetFinalizer(dhparams, (*DH).Free)
	return dhparams, nil
}

// Free releases the parameters. It is safe to call more than once.
func (d *DH) Free() {
	d.once.Do(func() {
		C.X_DH_free(d.dh)
	})
}

// dhParam is one entry of the table consulted by the ephemeral DH callback:
// dh serves private keys of at least minKeyBits bits.
type dhParam struct {
	minKeyBits int
	bits       int
	dh         *C.DH
}

var dhGroups = []struct{ minKeyBits, bits int }{
	{6145, 8192},
	{0, 1024},
	{2049, 3072},
	{1025, 2048},
	{4097, 6144},
	{3073, 4096},
}

// newDHTable builds the RFC 2409/3526 groups, sorted ascending by minimum key
// length.
func newDHTable() ([]dhParam, error) {
	table := make([]dhParam, 0, len(dhGroups))
	for _, g := range dhGroups {
		dh := C.X_DH_new_rfc_group(C.int(g.bits))
		if dh == nil {
			freeDHTable(table)
			return nil, errors.Wrapf(errorFromErrorQueue(),
				"openssl: building %d bit DH group", g.bits)
		}
		table = append(table, dhParam{
			minKeyBits: g.minKeyBits, bits: g.bits, dh: dh})
	}
	sort.Slice(table, func(i, j int) bool {
		return table[i].minKeyBits < table[j].minKeyBits
	})
	return table, nil
}

func freeDHTable(table []dhParam) {
	for _, p := range table {
		C.X_DH_free(p.dh)
	}
}

// selectDHParam picks the largest group whose minimum key length does not
// exceed keyBits.
func selectDHParam(table []dhParam, keyBits int) *dhParam {
	var selected *dhParam
	for i := range table {
		if table[i].minKeyBits > keyBits {
			break
		}
		selected = &table[i]
	}
	return selected
}

//export go_tmp_dh_thunk
func go_tmp_dh_thunk(keyBits C.int) *C.DH {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: tmp dh callback panic'd: %v", err)
			os.Exit(1)
		}
	}()

	library.mtx.RLock()
	defer library.mtx.RUnlock()
	p := selectDHParam(library.dhParams, int(keyBits))
	if p == nil {
		return nil
	}
	return p.dh
}
