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
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// LibraryConfig selects the process-wide crypto setup applied by Initialize.
type LibraryConfig struct {
	// Engine is the id of an OpenSSL ENGINE to load and make the default for
	// all algorithms. Empty means the built-in implementations.
	Engine string
	// RandomSeedFile, if set, is mixed into the random number generator.
	RandomSeedFile string
	// FIPSMode requires the library to run in FIPS mode. Initialize fails
	// with ErrFIPSNotActive if the mode cannot be entered.
	FIPSMode bool
}

type libraryState struct {
	mtx         sync.RWMutex
	initialized bool
	fips        bool
	engine      *Engine
	dhParams    []dhParam
}

var library libraryState

// Initialize prepares the native library once per process. Later calls
// return nil without doing anything until Destroy is called.
func Initialize(cfg LibraryConfig) (err error) {
	library.mtx.Lock()
	defer library.mtx.Unlock()
	if library.initialized {
		return nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var engine *Engine
	defer func() {
		if err != nil && engine != nil {
			engine.Free()
		}
	}()
	if cfg.Engine != "" {
		engine, err = EngineById(cfg.Engine)
		if err != nil {
			return err
		}
	}

	if cfg.RandomSeedFile != "" {
		cfile := C.CString(cfg.RandomSeedFile)
		rc := C.X_RAND_load_file(cfile)
		C.free(unsafe.Pointer(cfile))
		if rc <= 0 {
			// the generator seeds itself, a missing file only loses entropy
			logger.Warnf("openssl: could not load random seed file %s: %v",
				cfg.RandomSeedFile, errorFromErrorQueue())
		}
	}

	if cfg.FIPSMode {
		if !FIPSMode() {
			if err = FIPSModeSet(true); err != nil {
				logger.Errorf("openssl: entering FIPS mode: %v", err)
				return errors.Wrap(ErrFIPSNotActive, err.Error())
			}
		}
		if !FIPSMode() {
			return ErrFIPSNotActive
		}
	}

	table, err := newDHTable()
	if err != nil {
		return err
	}

	library.engine = engine
	library.fips = cfg.FIPSMode
	library.dhParams = table
	library.initialized = true
	logger.Infof("openssl: initialized %s (built against %x)", Version(),
		buildVersionNumber())
	return nil
}

// Destroy releases what Initialize acquired. Contexts created before must
// already be destroyed.
func Destroy() error {
	library.mtx.Lock()
	defer library.mtx.Unlock()
	if !library.initialized {
		return nil
	}
	freeDHTable(library.dhParams)
	library.dhParams = nil
	if library.engine != nil {
		library.engine.Free()
		library.engine = nil
	}
	if library.fips {
		if err := FIPSModeSet(false); err != nil {
			logger.Warnf("openssl: leaving FIPS mode: %v", err)
		}
		library.fips = false
	}
	library.initialized = false
	logger.Infof("openssl: library destroyed")
	return nil
}

// Initialized reports whether Initialize has completed.
func Initialized() bool {
	library.mtx.RLock()
	defer library.mtx.RUnlock()
	return library.initialized
}
