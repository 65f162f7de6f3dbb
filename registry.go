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

import (
	"unsafe"

	pointer "github.com/mattn/go-pointer"
)

// Native objects never hold Go pointers. Instead an owner is saved in the
// registry and OpenSSL is given the opaque handle, which the exported
// callbacks turn back into the owner. Entries must be released before the
// native object that carries the handle is freed.

func registerHandle(owner interface{}) unsafe.Pointer {
	return pointer.Save(owner)
}

func releaseHandle(handle unsafe.Pointer) {
	if handle != nil {
		pointer.Unref(handle)
	}
}

// engineFromHandle returns nil for unknown handles so that callbacks fail
// closed.
func engineFromHandle(handle unsafe.Pointer) *engineState {
	if handle == nil {
		return nil
	}
	e, _ := pointer.Restore(handle).(*engineState)
	return e
}

func contextFromHandle(handle unsafe.Pointer) *contextState {
	if handle == nil {
		return nil
	}
	c, _ := pointer.Restore(handle).(*contextState)
	return c
}
