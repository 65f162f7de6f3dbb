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
	"unsafe"
)

// HandshakeStatus tells the caller what the engine needs next.
type HandshakeStatus int

const (
	NotHandshaking HandshakeStatus = iota
	NeedWrap
	NeedUnwrap
	// NeedTask is never reported; the engine has no delegated tasks.
	NeedTask
	// Finished is reported once per completed handshake.
	Finished
)

func (s HandshakeStatus) String() string {
	switch s {
	case NotHandshaking:
		return "NOT_HANDSHAKING"
	case NeedWrap:
		return "NEED_WRAP"
	case NeedUnwrap:
		return "NEED_UNWRAP"
	case NeedTask:
		return "NEED_TASK"
	case Finished:
		return "FINISHED"
	}
	return "UNKNOWN"
}

// acceptState records how the first handshake was started. An explicit
// BeginHandshake after an implicit start is absorbed; only a second explicit
// one renegotiates.
type acceptState int

const (
	notAccepted acceptState = iota
	acceptedImplicit
	acceptedExplicit
)

// phaState tracks a TLSv1.3 post-handshake client authentication.
type phaState int

const (
	phaNone phaState = iota
	phaStarted
	phaComplete
)

type handshakeSnapshot struct {
	accepted           acceptState
	destroyed          bool
	finished           bool
	closed             bool
	failed             bool
	pendingNet         int
	count              int
	current            int
	renegotiatePending bool
	pha                phaState
}

// deriveHandshakeStatus never reports Finished before the completion count
// moves past the value captured when the handshake started.
func deriveHandshakeStatus(s handshakeSnapshot) HandshakeStatus {
	if s.accepted == notAccepted || s.destroyed {
		return NotHandshaking
	}
	if !s.finished {
		if s.pendingNet > 0 || s.failed {
			return NeedWrap
		}
		if s.count != s.current && !s.renegotiatePending &&
			s.pha != phaStarted {
			return Finished
		}
		return NeedUnwrap
	}
	if s.closed {
		if s.pendingNet > 0 {
			return NeedWrap
		}
		return NeedUnwrap
	}
	return NotHandshaking
}

func (e *SSLEngine) snapshot() handshakeSnapshot {
	s := handshakeSnapshot{
		accepted:  e.accepted,
		destroyed: e.isDestroyed(),
		finished:  e.handshakeFinished,
		closed:    e.engineClosed(),
		failed:    e.pendingErr != nil,
		count:     e.handshakeCount,
		current:   e.currentHandshake,
		pha:       e.pha,
	}
	if !s.destroyed {
		s.pendingNet = e.network.pending()
		if !s.finished {
			s.renegotiatePending = C.SSL_renegotiate_pending(e.ssl) == 1
		}
	}
	return s
}

// handshakeStatus derives the status and, when the handshake has just
// completed, latches it and caches the negotiated parameters.
func (e *SSLEngine) handshakeStatus() HandshakeStatus {
	status := deriveHandshakeStatus(e.snapshot())
	if status == Finished {
		e.handshakeFinished = true
		e.protocol = e.currentProtocol()
		e.cipher = e.currentCipher()
		e.alpn = e.selectedALPN()
		logger.Debugf("openssl: handshake %d finished: %s %s alpn=%q",
			e.handshakeCount, e.protocol, e.cipher, e.alpn)
	}
	return status
}

// HandshakeStatus reports what the engine needs next.
func (e *SSLEngine) HandshakeStatus() HandshakeStatus {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	return e.handshakeStatus()
}

// BeginHandshake starts the handshake explicitly. On an engine whose
// handshake was started by Wrap or Unwrap it only records the request; on an
// engine that was already started explicitly it renegotiates, which under
// TLSv1.3 means requesting the client certificate after the handshake.
func (e *SSLEngine) BeginHandshake() error {
	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.engineClosed() || e.isDestroyed() {
		return ErrEngineClosed
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	clearErrorQueue()

	switch e.accepted {
	case notAccepted:
		e.accepted = acceptedExplicit
		return e.handshake()
	case acceptedImplicit:
		e.accepted = acceptedExplicit
		return nil
	}
	return e.renegotiate()
}

func (e *SSLEngine) beginHandshakeImplicitly() error {
	e.handshakeFinished = false
	e.accepted = acceptedImplicit
	return e.handshake()
}

// handshake drives the state machine as far as the buffered input allows.
func (e *SSLEngine) handshake() error {
	e.currentHandshake = e.handshakeCount
	if rc := C.SSL_do_handshake(e.ssl); rc <= 0 {
		if err := e.checkSSLError(rc); err != nil {
			e.shutdown()
			return err
		}
	}
	return nil
}

func (e *SSLEngine) renegotiate() error {
	var rc C.int
	if e.currentProtocol() == ProtocolTLSv1_3 {
		rc = C.SSL_verify_client_post_handshake(e.ssl)
		if rc == 1 {
			e.pha = phaStarted
		}
		logger.Debugf("openssl: requesting post-handshake authentication")
	} else {
		rc = C.SSL_renegotiate(e.ssl)
		logger.Debugf("openssl: renegotiating")
	}
	if rc != 1 {
		// the request itself failing leaves the session usable
		return errorFromErrorQueue()
	}
	e.handshakeFinished = false
	e.peerCerts = nil
	e.peerLoaded = false
	return e.handshake()
}

//export go_ssl_info_thunk
func go_ssl_info_thunk(p unsafe.Pointer, where C.int) {
	defer func() {
		if err := recover(); err != nil {
			logger.Critf("openssl: info callback panic'd: %v", err)
			os.Exit(1)
		}
	}()

	e := engineFromHandle(p)
	if e == nil {
		return
	}
	if where&C.SSL_CB_HANDSHAKE_DONE != 0 {
		if e.pha == phaStarted {
			e.completePostHandshakeAuth()
			return
		}
		e.handshakeCount++
	}
}
