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
	"net/http"
)

// ListenAndServeTLS serves handler over TLS on addr with the certificate and
// key in the given PEM files, offering http/1.1 through ALPN.
func ListenAndServeTLS(addr string, certFile string, keyFile string,
	handler http.Handler) error {
	return ServerListenAndServeTLS(
		&http.Server{Addr: addr, Handler: handler}, certFile, keyFile)
}

func ServerListenAndServeTLS(srv *http.Server,
	certFile, keyFile string) error {
	addr := srv.Addr
	if addr == "" {
		addr = ":https"
	}

	ctx, err := newHTTPContext(certFile, keyFile)
	if err != nil {
		return err
	}
	l, err := Listen("tcp", addr, ctx)
	if err != nil {
		ctx.Destroy()
		return err
	}
	return srv.Serve(l)
}

// newHTTPContext builds the ready server context for net/http. net/http only
// speaks HTTP/2 over *tls.Conn, so the context advertises http/1.1 alone and
// a client offering h2 first is still answered with http/1.1.
func newHTTPContext(certFile, keyFile string) (*Context, error) {
	ctx, err := NewContext(&Config{
		Certificates: []*CertificateConfig{{
			CertificateFile:    certFile,
			CertificateKeyFile: keyFile,
		}},
	}, []string{alpnFallback})
	if err != nil {
		return nil, err
	}
	if err := ctx.Init(); err != nil {
		ctx.Destroy()
		return nil, err
	}
	return ctx, nil
}
