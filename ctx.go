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
	"sync"
	"unsafe"

	"github.com/pkg/errors"
)

// ContextState is the lifecycle stage of a Context.
type ContextState int

const (
	ContextCreated ContextState = iota
	ContextInitializing
	ContextReady
	ContextFailed
	ContextDestroyed
)

func (s ContextState) String() string {
	switch s {
	case ContextCreated:
		return "CREATED"
	case ContextInitializing:
		return "INITIALIZING"
	case ContextReady:
		return "READY"
	case ContextFailed:
		return "FAILED"
	case ContextDestroyed:
		return "DESTROYED"
	}
	return "UNKNOWN"
}

type Options int64

const (
	NoCompression                      Options = C.SSL_OP_NO_COMPRESSION
	NoSessionResumptionOnRenegotiation Options = C.SSL_OP_NO_SESSION_RESUMPTION_ON_RENEGOTIATION
	SingleDHUse                        Options = C.SSL_OP_SINGLE_DH_USE
	SingleECDHUse                      Options = C.SSL_OP_SINGLE_ECDH_USE
	CipherServerPreference             Options = C.SSL_OP_CIPHER_SERVER_PREFERENCE
	NoTicket                           Options = C.SSL_OP_NO_TICKET
)

type Modes int

const (
	ReleaseBuffers Modes = C.SSL_MODE_RELEASE_BUFFERS
)

type VerifyOptions int

const (
	VerifyNone             VerifyOptions = C.SSL_VERIFY_NONE
	VerifyPeer             VerifyOptions = C.SSL_VERIFY_PEER
	VerifyFailIfNoPeerCert VerifyOptions = C.SSL_VERIFY_FAIL_IF_NO_PEER_CERT
)

// verifyOptionsFor maps a verification policy to native verify flags.
func verifyOptionsFor(mode CertificateVerification) VerifyOptions {
	switch mode {
	case CertificateVerificationOptional, CertificateVerificationOptionalNoCA:
		return VerifyPeer
	case CertificateVerificationRequired:
		return VerifyPeer | VerifyFailIfNoPeerCert
	}
	return VerifyNone
}

// contextState is what callbacks see of a Context. Everything in it except
// password is fixed once Init returns.
type contextState struct {
	ctx    *C.SSL_CTX
	handle unsafe.Pointer
	client bool
	config *Config

	// alpn is the server's negotiable list, or the list a client offers.
	alpn   []string
	verify CertificateVerification
	depth  int
	trust  TrustManager
	ocsp   *ocspClient

	pwMtx    sync.Mutex
	password string
}

func (s *contextState) setPassword(password string) {
	s.pwMtx.Lock()
	s.password = password
	s.pwMtx.Unlock()
}

func (s *contextState) currentPassword() string {
	s.pwMtx.Lock()
	defer s.pwMtx.Unlock()
	return s.password
}

// Context owns one native SSL_CTX shared read-only by every SSLEngine created
// from it.
type Context struct {
	*contextState

	mtx              sync.Mutex
	state            ContextState
	initErr          error
	confCtx          *C.SSL_CONF_CTX
	enabledProtocols []string
	enabledCiphers   []string
}

// NewContext creates a server context. negotiableProtocols is the ALPN list
// in server preference order; when it is not empty "http/1.1" is always
// negotiable as a fallback.
func NewContext(cfg *Config, negotiableProtocols []string) (*Context, error) {
	return newContext(cfg, withALPNFallback(negotiableProtocols), false)
}

// NewClientContext creates a context for the client side of a connection,
// offering protocols through ALPN.
func NewClientContext(cfg *Config, protocols []string) (*Context, error) {
	return newContext(cfg, append([]string(nil), protocols...), true)
}

func newContext(cfg *Config, alpn []string, client bool) (*Context, error) {
	if !Initialized() {
		return nil, ErrLibraryNotInitialized
	}
	cfg = cfg.clone()
	cfg.setDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	enabled, err := parseProtocols(cfg.Protocols)
	if err != nil {
		return nil, err
	}
	min, max, err := protocolBounds(enabled)
	if err != nil {
		return nil, err
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var cclient C.int
	if client {
		cclient = 1
	}
	ctx := C.X_SSL_CTX_new(cclient)
	if ctx == nil {
		return nil, errorFromErrorQueue()
	}
	state := &contextState{
		ctx:    ctx,
		client: client,
		config: cfg,
		alpn:   alpn,
		verify: cfg.CertificateVerification,
		depth:  cfg.CertificateVerificationDepth,
		trust:  cfg.TrustManager,
	}
	c := &Context{contextState: state}

	fail := func(err error) (*Context, error) {
		C.SSL_CTX_free(ctx)
		return nil, err
	}

	options := NoCompression | NoSessionResumptionOnRenegotiation |
		SingleDHUse | SingleECDHUse
	if cfg.HonorCipherOrder {
		options |= CipherServerPreference
	}
	if cfg.DisableSessionTickets {
		options |= NoTicket
	}
	c.setOptions(options)
	c.setMode(ReleaseBuffers)

	if C.X_SSL_CTX_set_min_proto_version(ctx, C.int(min)) != 1 {
		return fail(errors.Wrapf(errorFromErrorQueue(),
			"minimum protocol %s", min))
	}
	if C.X_SSL_CTX_set_max_proto_version(ctx, C.int(max)) != 1 {
		return fail(errors.Wrapf(errorFromErrorQueue(),
			"maximum protocol %s", max))
	}

	if !client {
		cacheMode := C.long(C.SSL_SESS_CACHE_OFF)
		if cfg.SessionCacheEnabled {
			cacheMode = C.SSL_SESS_CACHE_SERVER
		}
		C.X_SSL_CTX_set_session_cache_mode(ctx, cacheMode)
		C.X_SSL_CTX_sess_set_cache_size(ctx, C.long(cfg.SessionCacheSize))
		C.X_SSL_CTX_set_timeout(ctx, C.long(cfg.SessionTimeout.Seconds()))
		sid := cfg.SessionIDContext
		if C.SSL_CTX_set_session_id_context(ctx,
			(*C.uchar)(unsafe.Pointer(&sid[0])), C.uint(len(sid))) != 1 {
			return fail(errorFromErrorQueue())
		}
	}

	if cfg.SessionTicketKey != nil {
		if err := setTicketKey(ctx, cfg.SessionTicketKey); err != nil {
			return fail(err)
		}
	}

	if client && len(alpn) > 0 {
		wire, err := encodeALPN(alpn)
		if err != nil {
			return fail(err)
		}
		// returns 0 on success
		if C.SSL_CTX_set_alpn_protos(ctx,
			(*C.uchar)(unsafe.Pointer(&wire[0])), C.uint(len(wire))) != 0 {
			return fail(errorFromErrorQueue())
		}
	}

	if !cfg.DisableOCSPCheck {
		state.ocsp, err = newOCSPClient(cfg.OCSPTimeout, cfg.OCSPCacheSize)
		if err != nil {
			return fail(err)
		}
	}

	state.handle = registerHandle(state)
	C.X_SSL_CTX_install_callbacks(ctx, state.handle)

	c.enabledProtocols = protocolsInRange(min, max)
	runtime.SetFinalizer(c, (*Context).Destroy)
	logger.Infof("openssl: created %s context, protocols %s..%s",
		c.side(), min, max)
	return c, nil
}

func (c *Context) side() string {
	if c.client {
		return "client"
	}
	return "server"
}

func (c *Context) setOptions(options Options) Options {
	return Options(C.X_SSL_CTX_set_options(c.ctx, C.long(options)))
}

func (c *Context) options() Options {
	return Options(C.X_SSL_CTX_get_options(c.ctx))
}

func (c *Context) setMode(modes Modes) Modes {
	return Modes(C.X_SSL_CTX_set_mode(c.ctx, C.long(modes)))
}

// Init loads certificates, trust material and callbacks. Only the first call
// does anything: later calls log a warning and report the outcome of the
// first.
func (c *Context) Init() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	switch c.state {
	case ContextCreated:
	case ContextDestroyed:
		return ErrContextDestroyed
	default:
		logger.Warnf("openssl: %s context already initialized (%s)",
			c.side(), c.state)
		return c.initErr
	}
	c.state = ContextInitializing

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := c.init(); err != nil {
		clearErrorQueue()
		logger.Errorf("openssl: %s context initialization failed: %v",
			c.side(), err)
		c.state = ContextFailed
		c.initErr = err
		return err
	}
	c.state = ContextReady
	logger.Infof("openssl: %s context ready, protocols %v", c.side(),
		c.enabledProtocols)
	return nil
}

// init runs with the OS thread locked.
func (c *Context) init() error {
	cfg := c.config
	if cfg.CipherList != "" {
		clist := C.CString(cfg.CipherList)
		defer C.free(unsafe.Pointer(clist))
		if C.SSL_CTX_set_cipher_list(c.ctx, clist) != 1 {
			return errors.Wrapf(errorFromErrorQueue(), "cipher list %q",
				cfg.CipherList)
		}
	}
	if cfg.CipherSuites != "" {
		csuites := C.CString(cfg.CipherSuites)
		defer C.free(unsafe.Pointer(csuites))
		if C.SSL_CTX_set_ciphersuites(c.ctx, csuites) != 1 {
			return errors.Wrapf(errorFromErrorQueue(), "cipher suites %q",
				cfg.CipherSuites)
		}
	}

	if err := c.loadCertificates(); err != nil {
		return err
	}

	C.X_SSL_CTX_set_verify(c.ctx, C.int(verifyOptionsFor(c.verify)))
	C.SSL_CTX_set_verify_depth(c.ctx, C.int(c.depth))

	if c.trust != nil {
		C.X_SSL_CTX_set_cert_verify_callback(c.ctx)
		if !c.client {
			if err := c.addAcceptedIssuers(); err != nil {
				return err
			}
		}
	} else if err := c.loadCAs(); err != nil {
		return err
	}

	if err := c.certificateStore().loadRevocation(cfg.RevocationFile,
		cfg.RevocationPath); err != nil {
		return err
	}

	if !c.client && len(c.alpn) > 0 {
		C.X_SSL_CTX_set_alpn_select_cb(c.ctx)
	}

	if len(cfg.ConfCommands) > 0 {
		if err := c.applyConfCommands(cfg.ConfCommands); err != nil {
			return err
		}
	}
	c.enabledProtocols = protocolsInRange(c.minProtocol(), c.maxProtocol())
	c.enabledCiphers = c.cipherNames()
	return nil
}

func (c *Context) loadCAs() error {
	cfg := c.config
	if cfg.CACertificateFile == "" && cfg.CACertificatePath == "" {
		return nil
	}
	var cfile, cpath *C.char
	if cfg.CACertificateFile != "" {
		cfile = C.CString(cfg.CACertificateFile)
		defer C.free(unsafe.Pointer(cfile))
	}
	if cfg.CACertificatePath != "" {
		cpath = C.CString(cfg.CACertificatePath)
		defer C.free(unsafe.Pointer(cpath))
	}
	if C.SSL_CTX_load_verify_locations(c.ctx, cfile, cpath) != 1 {
		return errors.Wrapf(errorFromErrorQueue(), "CA certificates %s %s",
			cfg.CACertificateFile, cfg.CACertificatePath)
	}
	if !c.client && c.verify != CertificateVerificationNone {
		if C.X_SSL_CTX_set_client_CA_from(c.ctx, cfile, cpath) != 1 {
			return errors.Wrapf(errorFromErrorQueue(), "client CA list %s %s",
				cfg.CACertificateFile, cfg.CACertificatePath)
		}
	}
	return nil
}

// addAcceptedIssuers advertises the trust manager's CAs to clients.
func (c *Context) addAcceptedIssuers() error {
	for _, issuer := range c.trust.AcceptedIssuers() {
		cert, err := LoadCertificateFromDER(issuer.Raw)
		if err != nil {
			return errors.Wrapf(err, "accepted issuer %s", issuer.Subject)
		}
		if C.SSL_CTX_add_client_CA(c.ctx, cert.x) != 1 {
			return errors.Wrapf(errorFromErrorQueue(), "accepted issuer %s",
				issuer.Subject)
		}
	}
	return nil
}

func (c *Context) cipherNames() []string {
	n := int(C.X_SSL_CTX_cipher_count(c.ctx))
	names := make([]string, 0, n)
	for i := 0; i < n; i++ {
		name := C.X_SSL_CTX_cipher_name(c.ctx, C.int(i))
		if name != nil {
			names = append(names, C.GoString(name))
		}
	}
	return names
}

// NewEngine creates an engine for one connection. Server contexts produce
// server-mode engines and client contexts client-mode ones.
func (c *Context) NewEngine() (*SSLEngine, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	switch c.state {
	case ContextReady:
	case ContextDestroyed:
		return nil, ErrContextDestroyed
	default:
		return nil, ErrContextNotReady
	}
	return newSSLEngine(c)
}

// Destroy releases the native context. Engines created from it keep their
// own reference to the native object and remain usable until they shut down.
func (c *Context) Destroy() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return
	}
	c.state = ContextDestroyed
	runtime.SetFinalizer(c, nil)
	c.freeConfCtx()
	releaseHandle(c.handle)
	c.handle = nil
	C.SSL_CTX_free(c.ctx)
	c.ctx = nil
	logger.Infof("openssl: %s context destroyed", c.side())
}

// State returns the lifecycle stage.
func (c *Context) State() ContextState {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.state
}

// EnabledProtocols lists the protocol versions engines may negotiate.
func (c *Context) EnabledProtocols() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]string(nil), c.enabledProtocols...)
}

// EnabledCiphers lists the cipher suites in preference order. It is empty
// until Init succeeds.
func (c *Context) EnabledCiphers() []string {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return append([]string(nil), c.enabledCiphers...)
}

// MinProtocol is the lowest version the native context accepts, or
// VersionUnknown if it has no lower bound or is destroyed.
func (c *Context) MinProtocol() ProtocolVersion {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return VersionUnknown
	}
	return c.minProtocol()
}

// MaxProtocol is the highest version the native context accepts, or
// VersionUnknown if it has no upper bound or is destroyed.
func (c *Context) MaxProtocol() ProtocolVersion {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return VersionUnknown
	}
	return c.maxProtocol()
}

func (c *Context) minProtocol() ProtocolVersion {
	return ProtocolVersion(C.X_SSL_CTX_get_min_proto_version(c.ctx))
}

func (c *Context) maxProtocol() ProtocolVersion {
	return ProtocolVersion(C.X_SSL_CTX_get_max_proto_version(c.ctx))
}

// CertificateStore is the trust store of a context. Its methods fail with
// ErrContextDestroyed once the context is gone.
type CertificateStore struct {
	store *C.X509_STORE
	ctx   *Context // for gc
}

func (c *Context) GetCertificateStore() (*CertificateStore, error) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	if c.state == ContextDestroyed {
		return nil, ErrContextDestroyed
	}
	return c.certificateStore(), nil
}

func (c *Context) certificateStore() *CertificateStore {
	// we don't need to dealloc the cert store pointer here, because it points
	// to a ctx internal. so we do need to keep the ctx around
	return &CertificateStore{
		store: C.SSL_CTX_get_cert_store(c.ctx),
		ctx:   c}
}

// lock holds the owning context alive and undestroyed until unlock.
func (s *CertificateStore) lock() error {
	s.ctx.mtx.Lock()
	if s.ctx.state == ContextDestroyed {
		s.ctx.mtx.Unlock()
		return ErrContextDestroyed
	}
	return nil
}

func (s *CertificateStore) unlock() {
	s.ctx.mtx.Unlock()
}

func (s *CertificateStore) AddCertificate(cert *Certificate) error {
	if err := s.lock(); err != nil {
		return err
	}
	defer s.unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if int(C.X509_STORE_add_cert(s.store, cert.x)) == 0 {
		return errorFromErrorQueue()
	}
	return nil
}

//export go_ctx_password_thunk
func go_ctx_password_thunk(p unsafe.Pointer, buf *C.char, size C.int) C.int {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: password callback panic'd: %v", err)
			os.Exit(1)
		}
	}()

	state := contextFromHandle(p)
	if state == nil {
		return -1
	}
	password := state.currentPassword()
	if len(password) == 0 || size <= 0 {
		return 0
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(size))
	return C.int(copy(dst, password))
}
