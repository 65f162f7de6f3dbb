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
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/pkg/errors"
)

const (
	// MaxPlaintextLength is the largest plaintext fragment fed to one record.
	MaxPlaintextLength = 16384
	// MaxEncryptedPacketLength is the largest record Unwrap accepts: a full
	// fragment plus compression, header, MAC and padding overhead.
	MaxEncryptedPacketLength = MaxPlaintextLength + 1024 + 5 + 20 + 256
)

// Status is the outcome of one Wrap or Unwrap call.
type Status int

const (
	StatusOK Status = iota
	StatusClosed
	StatusBufferOverflow
	StatusBufferUnderflow
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusClosed:
		return "CLOSED"
	case StatusBufferOverflow:
		return "BUFFER_OVERFLOW"
	case StatusBufferUnderflow:
		return "BUFFER_UNDERFLOW"
	}
	return "UNKNOWN"
}

// Result reports what a Wrap or Unwrap call did.
type Result struct {
	Status          Status
	HandshakeStatus HandshakeStatus
	BytesConsumed   int
	BytesProduced   int
}

// ClientAuth is the client certificate policy of one engine.
type ClientAuth int

const (
	ClientAuthNone ClientAuth = iota
	ClientAuthOptional
	ClientAuthRequire
)

func (a ClientAuth) verification() CertificateVerification {
	switch a {
	case ClientAuthOptional:
		return CertificateVerificationOptional
	case ClientAuthRequire:
		return CertificateVerificationRequired
	}
	return CertificateVerificationNone
}

// liveEngines counts engines whose native session has not been freed yet.
var liveEngines int64

// engineState is what callbacks see of an engine. Callbacks only run inside
// native calls made by the engine's own methods, under the engine lock.
type engineState struct {
	ctx     *Context
	ssl     *C.SSL
	network *networkBio
	handle  unsafe.Pointer
	client  bool
	verify  CertificateVerification

	handshakeCount int
	pha            phaState
}

// SSLEngine runs the TLS state machine of one connection over in-memory
// buffers. Ciphertext goes in through Unwrap and comes out of Wrap; nothing
// blocks on the network. Methods are safe for concurrent use but serialize on
// the engine.
type SSLEngine struct {
	*engineState

	mtx       sync.Mutex
	destroyed int32

	accepted          acceptState
	handshakeFinished bool
	currentHandshake  int
	receivedShutdown  bool
	inboundDone       bool
	outboundDone      bool
	// pendingErr is a handshake failure held back until the alert it
	// produced has been sent.
	pendingErr error

	protocol   string
	cipher     string
	alpn       string
	peerCerts  []*x509.Certificate
	peerLoaded bool
	serverName string
}

func newSSLEngine(c *Context) (*SSLEngine, error) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ssl := C.SSL_new(c.ctx)
	if ssl == nil {
		return nil, errorFromErrorQueue()
	}
	network, err := newNetworkBio(ssl, MaxEncryptedPacketLength)
	if err != nil {
		C.SSL_free(ssl)
		return nil, err
	}
	if c.client {
		C.SSL_set_connect_state(ssl)
		C.SSL_set_post_handshake_auth(ssl, 1)
	} else {
		C.SSL_set_accept_state(ssl)
	}
	state := &engineState{
		ctx:     c,
		ssl:     ssl,
		network: network,
		client:  c.client,
		verify:  c.verify,
	}
	state.handle = registerHandle(state)
	C.X_SSL_attach(ssl, state.handle)

	e := &SSLEngine{engineState: state}
	atomic.AddInt64(&liveEngines, 1)
	runtime.SetFinalizer(e, (*SSLEngine).Shutdown)
	return e, nil
}

func (e *SSLEngine) isDestroyed() bool {
	return atomic.LoadInt32(&e.destroyed) == 1
}

func (e *SSLEngine) engineClosed() bool {
	return e.inboundDone || e.outboundDone
}

func (e *SSLEngine) engineStatus() Status {
	if e.engineClosed() || e.isDestroyed() {
		return StatusClosed
	}
	return StatusOK
}

func (e *SSLEngine) pendingNet() int {
	if e.isDestroyed() {
		return 0
	}
	return e.network.pending()
}

func closedResult() Result {
	return Result{Status: StatusClosed, HandshakeStatus: NotHandshaking}
}

// Wrap encrypts application data from srcs into dst. Pending handshake or
// alert records are always flushed first and on their own. At most one
// plaintext fragment is encrypted per call.
func (e *SSLEngine) Wrap(srcs [][]byte, dst []byte) (Result, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return closedResult(), nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	clearErrorQueue()

	if e.accepted == notAccepted {
		if err := e.beginHandshakeImplicitly(); err != nil {
			return closedResult(), err
		}
	}
	if err := e.takePendingError(); err != nil {
		return closedResult(), err
	}

	hs := e.handshakeStatus()
	if (!e.handshakeFinished || e.engineClosed()) && hs == NeedUnwrap {
		return Result{Status: e.engineStatus(), HandshakeStatus: NeedUnwrap},
			nil
	}

	if pending := e.network.pending(); pending > 0 {
		if len(dst) < pending {
			return Result{Status: StatusBufferOverflow, HandshakeStatus: hs},
				nil
		}
		produced := e.network.read(dst)
		if e.outboundDone {
			// that was the close_notify, the peer's reply is not awaited
			e.shutdown()
		}
		return Result{
			Status:          e.engineStatus(),
			HandshakeStatus: e.handshakeStatus(),
			BytesProduced:   produced}, nil
	}

	if e.outboundDone {
		return Result{Status: StatusClosed, HandshakeStatus: hs}, nil
	}

	consumed := 0
	for _, src := range srcs {
		for len(src) > 0 {
			chunk := src
			if len(chunk) > MaxPlaintextLength {
				chunk = chunk[:MaxPlaintextLength]
			}
			rc := C.SSL_write(e.ssl, unsafe.Pointer(&chunk[0]),
				C.int(len(chunk)))
			if rc <= 0 {
				if err := e.checkSSLError(rc); err != nil {
					e.shutdown()
					return closedResult(), err
				}
				// the handshake wants more input first
				return Result{
					Status:          e.engineStatus(),
					HandshakeStatus: e.handshakeStatus(),
					BytesConsumed:   consumed}, nil
			}
			written := int(rc)
			consumed += written
			src = src[written:]

			if pending := e.network.pending(); pending > 0 {
				if len(dst) < pending {
					return Result{
						Status:          StatusBufferOverflow,
						HandshakeStatus: e.handshakeStatus(),
						BytesConsumed:   consumed}, nil
				}
				produced := e.network.read(dst)
				return Result{
					Status:          e.engineStatus(),
					HandshakeStatus: e.handshakeStatus(),
					BytesConsumed:   consumed,
					BytesProduced:   produced}, nil
			}
		}
	}
	return Result{
		Status:          e.engineStatus(),
		HandshakeStatus: e.handshakeStatus(),
		BytesConsumed:   consumed}, nil
}

// Unwrap feeds ciphertext from src and decrypts whatever application data
// becomes available into dsts. Each destination is filled completely before
// the next one is used, so BytesProduced tells where the data went.
func (e *SSLEngine) Unwrap(src []byte, dsts [][]byte) (Result, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return closedResult(), nil
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	clearErrorQueue()

	if e.accepted == notAccepted {
		if err := e.beginHandshakeImplicitly(); err != nil {
			return closedResult(), err
		}
	}
	if err := e.takePendingError(); err != nil {
		return closedResult(), err
	}

	hs := e.handshakeStatus()
	if (!e.handshakeFinished || e.engineClosed()) && hs == NeedWrap {
		return Result{Status: e.engineStatus(), HandshakeStatus: NeedWrap}, nil
	}

	if len(src) > MaxEncryptedPacketLength {
		e.inboundDone = true
		e.outboundDone = true
		e.shutdown()
		return closedResult(), errors.Wrapf(ErrOversizedPacket,
			"%d bytes", len(src))
	}

	written := e.network.write(src)

	pendingApp, err := e.pendingReadable()
	if err != nil {
		e.shutdown()
		return closedResult(), err
	}
	if !e.handshakeFinished {
		pendingApp = 0
	}

	produced := 0
	idx, off := 0, 0
	for pendingApp > 0 {
		for idx < len(dsts) && off >= len(dsts[idx]) {
			idx++
			off = 0
		}
		if idx == len(dsts) {
			break
		}
		dst := dsts[idx][off:]
		rc := C.SSL_read(e.ssl, unsafe.Pointer(&dst[0]), C.int(len(dst)))
		if rc <= 0 {
			if err := e.checkSSLError(rc); err != nil {
				e.shutdown()
				return closedResult(), err
			}
			break
		}
		n := int(rc)
		produced += n
		off += n
		pendingApp -= n
		if pendingApp <= 0 {
			if pendingApp, err = e.pendingReadable(); err != nil {
				e.shutdown()
				return closedResult(), err
			}
		}
	}

	if !e.receivedShutdown &&
		C.SSL_get_shutdown(e.ssl)&C.SSL_RECEIVED_SHUTDOWN != 0 {
		e.receivedShutdown = true
		logger.Debugf("openssl: peer sent close_notify")
		e.closeOutbound()
		e.inboundDone = true
		if e.pendingNet() == 0 {
			e.shutdown()
		}
	}

	if produced == 0 && pendingApp > 0 && idx == len(dsts) {
		return Result{
			Status:          StatusBufferOverflow,
			HandshakeStatus: e.handshakeStatus(),
			BytesConsumed:   written}, nil
	}
	if produced == 0 && !e.engineClosed() && (written == 0 ||
		(written == len(src) && e.handshakeFinished)) {
		return Result{
			Status:          StatusBufferUnderflow,
			HandshakeStatus: e.handshakeStatus(),
			BytesConsumed:   written}, nil
	}
	return Result{
		Status:          e.engineStatus(),
		HandshakeStatus: e.handshakeStatus(),
		BytesConsumed:   written,
		BytesProduced:   produced}, nil
}

// pendingReadable primes the session with a zero length read so that it
// parses the buffered record, then reports how much plaintext it holds. The
// read also drives a handshake in progress. A zero length read reports no
// meaningful result code, so only the error queue says whether it failed.
func (e *SSLEngine) pendingReadable() (int, error) {
	rc := C.X_SSL_prime_read(e.ssl)
	if err := e.checkErrorQueue(); err != nil {
		return 0, err
	}
	pending := int(C.SSL_pending(e.ssl))
	if rc <= 0 && pending == 0 && e.currentProtocol() == ProtocolTLSv1 {
		// TLSv1 needs a second priming read before data is reported
		C.X_SSL_prime_read(e.ssl)
		if err := e.checkErrorQueue(); err != nil {
			return 0, err
		}
		pending = int(C.SSL_pending(e.ssl))
	}
	return pending, nil
}

// checkSSLError classifies a failed SSL_read or SSL_write. It returns nil
// when the call only wants more input or output. Failures before the
// handshake finished are held back in pendingErr so the alert can be flushed
// first.
func (e *SSLEngine) checkSSLError(rc C.int) error {
	switch C.SSL_get_error(e.ssl, rc) {
	case C.SSL_ERROR_NONE, C.SSL_ERROR_WANT_READ, C.SSL_ERROR_WANT_WRITE,
		C.SSL_ERROR_ZERO_RETURN:
		clearErrorQueue()
		return nil
	}
	return e.holdHandshakeError(errorFromErrorQueue())
}

// checkErrorQueue fails only if the last native call queued an error.
func (e *SSLEngine) checkErrorQueue() error {
	err := lastError()
	if err == nil {
		return nil
	}
	return e.holdHandshakeError(err)
}

func (e *SSLEngine) holdHandshakeError(err error) error {
	if !e.handshakeFinished {
		if e.pendingErr == nil {
			logger.Debugf("openssl: handshake failed: %v", err)
			e.pendingErr = err
		}
		return nil
	}
	return err
}

// takePendingError returns the held back handshake failure once nothing is
// left to flush, and tears the engine down.
func (e *SSLEngine) takePendingError() error {
	if e.pendingErr == nil || e.network.pending() > 0 {
		return nil
	}
	err := e.pendingErr
	e.pendingErr = nil
	e.inboundDone = true
	e.outboundDone = true
	e.shutdown()
	return err
}

// CloseOutbound queues a close_notify. Before any handshake activity the
// engine is simply torn down.
func (e *SSLEngine) CloseOutbound() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	e.closeOutbound()
}

func (e *SSLEngine) closeOutbound() {
	if e.outboundDone {
		return
	}
	e.outboundDone = true
	if e.accepted == notAccepted || e.isDestroyed() {
		e.shutdown()
		return
	}
	if C.SSL_get_shutdown(e.ssl)&C.SSL_SENT_SHUTDOWN == 0 {
		clearErrorQueue()
		if rc := C.SSL_shutdown(e.ssl); rc < 0 {
			// typically a shutdown while still in the handshake
			clearErrorQueue()
			if e.network.pending() == 0 {
				e.shutdown()
			}
		}
	}
}

// CloseInbound marks the inbound side done and tears the engine down. It
// returns ErrInboundClosed if a handshake was started and the peer never
// sent close_notify.
func (e *SSLEngine) CloseInbound() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.inboundDone && e.isDestroyed() {
		return nil
	}
	e.inboundDone = true
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	e.shutdown()
	if e.accepted != notAccepted && !e.receivedShutdown {
		logger.Warnf("openssl: inbound closed without close_notify")
		return ErrInboundClosed
	}
	return nil
}

// Shutdown releases the native session. It is idempotent and also runs as a
// finalizer for engines that are dropped without being closed.
func (e *SSLEngine) Shutdown() {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	e.shutdown()
}

func (e *SSLEngine) shutdown() {
	if !atomic.CompareAndSwapInt32(&e.destroyed, 0, 1) {
		return
	}
	e.inboundDone = true
	e.outboundDone = true
	runtime.SetFinalizer(e, nil)
	C.X_SSL_detach(e.ssl)
	releaseHandle(e.handle)
	e.handle = nil
	C.SSL_free(e.ssl)
	e.network.free()
	e.ssl = nil
	atomic.AddInt64(&liveEngines, -1)
}

// IsInboundDone reports whether Unwrap will accept no more data.
func (e *SSLEngine) IsInboundDone() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return e.inboundDone || e.isDestroyed()
}

// IsOutboundDone reports whether Wrap will produce no more data.
func (e *SSLEngine) IsOutboundDone() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return true
	}
	return e.outboundDone && e.network.pending() == 0
}

// SetClientAuth changes the client certificate policy of a server engine.
// It applies to the next handshake.
func (e *SSLEngine) SetClientAuth(mode ClientAuth) error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return ErrEngineClosed
	}
	e.verify = mode.verification()
	C.X_SSL_set_verify(e.ssl, C.int(verifyOptionsFor(e.verify)))
	return nil
}

// currentProtocol is the live protocol name, valid while not destroyed.
func (e *SSLEngine) currentProtocol() string {
	return C.GoString(C.SSL_get_version(e.ssl))
}

// Protocol is the negotiated protocol version name, e.g. "TLSv1.3".
func (e *SSLEngine) Protocol() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.protocol != "" || e.isDestroyed() {
		return e.protocol
	}
	return e.currentProtocol()
}

// CipherSuite is the negotiated cipher suite name, or "" before one is
// agreed.
func (e *SSLEngine) CipherSuite() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.cipher != "" || e.isDestroyed() {
		return e.cipher
	}
	return e.currentCipher()
}

func (e *SSLEngine) currentCipher() string {
	cipher := C.SSL_get_current_cipher(e.ssl)
	if cipher == nil {
		return ""
	}
	return C.GoString(C.SSL_CIPHER_get_name(cipher))
}

// ApplicationProtocol is the protocol agreed through ALPN, or "".
func (e *SSLEngine) ApplicationProtocol() string {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.alpn != "" || e.isDestroyed() {
		return e.alpn
	}
	return e.selectedALPN()
}

func (e *SSLEngine) selectedALPN() string {
	var data *C.uchar
	var n C.uint
	C.SSL_get0_alpn_selected(e.ssl, &data, &n)
	if data == nil || n == 0 {
		return ""
	}
	return string(C.GoBytes(unsafe.Pointer(data), C.int(n)))
}

// PeerCertificates returns the peer's chain, leaf first. It is materialized
// on first use and reset by renegotiation.
func (e *SSLEngine) PeerCertificates() ([]*x509.Certificate, error) {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.peerLoaded {
		return e.peerCerts, nil
	}
	if e.isDestroyed() {
		return nil, ErrEngineClosed
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	var chain []*x509.Certificate
	// a server's view of the chain leaves out the client's leaf
	if !e.client {
		if leaf := C.X_SSL_get1_peer_certificate(e.ssl); leaf != nil {
			cert, err := newCertificate(leaf).ToX509()
			if err != nil {
				return nil, err
			}
			chain = append(chain, cert)
		}
	}
	n := int(C.X_SSL_peer_chain_len(e.ssl))
	for i := 0; i < n; i++ {
		cert, err := borrowCertificate(
			C.X_SSL_peer_chain_cert(e.ssl, C.int(i))).ToX509()
		if err != nil {
			return nil, err
		}
		chain = append(chain, cert)
	}
	e.peerCerts = chain
	e.peerLoaded = true
	return chain, nil
}

// SessionID is the id of the current session, empty if there is none.
func (e *SSLEngine) SessionID() []byte {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return nil
	}
	buf := make([]byte, C.SSL_MAX_SSL_SESSION_ID_LENGTH)
	n := C.X_SSL_session_id(e.ssl, (*C.uchar)(unsafe.Pointer(&buf[0])),
		C.int(len(buf)))
	return buf[:n]
}

// SessionReused reports whether the handshake resumed a cached session.
func (e *SSLEngine) SessionReused() bool {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.isDestroyed() {
		return false
	}
	return C.SSL_session_reused(e.ssl) == 1
}
