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
	"unsafe"

	"github.com/pkg/errors"
)

// applyConfCommands passes raw SSL_CONF commands to the native context. It
// runs last in Init since the commands may override protocols and ciphers.
func (c *Context) applyConfCommands(cmds []ConfCommand) error {
	cctx := C.SSL_CONF_CTX_new()
	if cctx == nil {
		return errorFromErrorQueue()
	}
	c.confCtx = cctx

	flags := C.uint(C.SSL_CONF_FLAG_FILE | C.SSL_CONF_FLAG_CERTIFICATE |
		C.SSL_CONF_FLAG_SHOW_ERRORS)
	if c.client {
		flags |= C.SSL_CONF_FLAG_CLIENT
	} else {
		flags |= C.SSL_CONF_FLAG_SERVER
	}
	C.SSL_CONF_CTX_set_flags(cctx, flags)
	C.SSL_CONF_CTX_set_ssl_ctx(cctx, c.ctx)

	for _, cmd := range cmds {
		name := C.CString(cmd.Name)
		value := C.CString(cmd.Value)
		rc := C.SSL_CONF_cmd(cctx, name, value)
		C.free(unsafe.Pointer(name))
		C.free(unsafe.Pointer(value))
		switch {
		case rc > 0:
			logger.Debugf("openssl: conf command %s=%s applied", cmd.Name,
				cmd.Value)
		case rc == -2:
			clearErrorQueue()
			return errors.Errorf("openssl: unknown conf command %q", cmd.Name)
		default:
			return errors.Wrapf(errorFromErrorQueue(), "conf command %s=%s",
				cmd.Name, cmd.Value)
		}
	}
	if C.SSL_CONF_CTX_finish(cctx) != 1 {
		return errors.Wrap(errorFromErrorQueue(), "finishing conf commands")
	}
	return nil
}

func (c *Context) freeConfCtx() {
	if c.confCtx != nil {
		C.SSL_CONF_CTX_free(c.confCtx)
		c.confCtx = nil
	}
}
