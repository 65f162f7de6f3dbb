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

import "runtime"

// FIPSModeSet enables a FIPS 140 validated mode of operation. On OpenSSL 3
// this loads the fips provider and makes it the default property query.
func FIPSModeSet(mode bool) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var on C.int
	if mode {
		on = 1
	}
	if C.X_FIPS_mode_set(on) != 1 {
		return errorFromErrorQueue()
	}
	return nil
}

// FIPSMode reports whether FIPS mode is currently active.
func FIPSMode() bool {
	return C.X_FIPS_mode() == 1
}
