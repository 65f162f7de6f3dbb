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
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// Engine is an OpenSSL ENGINE module that has been initialized and
// registered as the default implementation for every algorithm it offers.
type Engine struct {
	e    unsafe.Pointer
	name string
	once sync.Once
}

// EngineById loads the engine with the given id and makes it the default for
// all methods.
func EngineById(name string) (*Engine, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cname := C.CString(name)
	defer C.free(unsafe.Pointer(cname))
	e := C.X_ENGINE_by_id(cname)
	if e == nil {
		clearErrorQueue()
		return nil, fmt.Errorf("engine %s missing", name)
	}
	if C.X_ENGINE_init(e) == 0 {
		C.X_ENGINE_free(e)
		clearErrorQueue()
		return nil, fmt.Errorf("engine %s not initialized", name)
	}
	if C.X_ENGINE_set_default(e) == 0 {
		err := errorFromErrorQueue()
		C.X_ENGINE_finish(e)
		C.X_ENGINE_free(e)
		return nil, errors.Wrapf(err, "engine %s", name)
	}
	engine := &Engine{e: e, name: name}
	runtime.SetFinalizer(engine, (*Engine).Free)
	return engine, nil
}

// Name returns the id the engine was loaded with.
func (e *Engine) Name() string { return e.name }

// Free releases the engine. It is safe to call more than once.
func (e *Engine) Free() {
	e.once.Do(func() {
		C.X_ENGINE_finish(e.e)
		C.X_ENGINE_free(e.e)
	})
}
