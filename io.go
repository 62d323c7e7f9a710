// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"errors"
	"io"
	"sync"
)

var (
	errListenerClosed = errors.New("msghub: listener closed")
	errNotConnected   = errors.New("msghub: not connected")
	errConnected      = errors.New("msghub: already connected")
	errBound          = errors.New("msghub: endpoint already bound")
	errNotBound       = errors.New("msghub: endpoint not bound")
)

// Socket is a bidirectional byte channel bound to an endpoint.
//
// Read and Write follow io semantics. Disconnect is idempotent, across a
// socket's lifetime the disconnected event fires exactly once, on the
// first transition into the disconnected state.
type Socket interface {
	io.Reader
	io.Writer

	Endpoint() Endpoint

	// Disconnect closes the channel and unblocks pending reads.
	Disconnect()
	IsDisconnected() bool
	// DisconnectedChan is closed when the socket disconnects.
	DisconnectedChan() <-chan struct{}
	// OnDisconnected registers f to run on disconnect. If the socket is
	// already disconnected, f runs immediately.
	OnDisconnected(f func())
}

// Listener accepts server-side sockets for a bound endpoint.
type Listener interface {
	Endpoint() Endpoint
	// Accept blocks for the next connecting peer. It returns
	// errListenerClosed after Close.
	Accept() (Socket, error)
	Close() error
}

// Dial connects to a bound endpoint and returns the client-side socket.
func Dial(ep Endpoint) (Socket, error) {
	switch ep.Transport {
	case Inproc:
		return dialInproc(ep)
	case TCP:
		return dialNetconn(ep)
	case Websocket:
		return dialWebsocket(ep)
	default:
		return nil, errUnknownScheme
	}
}

// Listen binds an endpoint and returns its acceptor.
func Listen(ep Endpoint) (Listener, error) {
	switch ep.Transport {
	case Inproc:
		return listenInproc(ep)
	case TCP:
		return listenNetconn(ep)
	case Websocket:
		return listenWebsocket(ep)
	default:
		return nil, errUnknownScheme
	}
}

// socketState carries the disconnect discipline shared by all socket
// implementations.
type socketState struct {
	ep     Endpoint
	closed InterlockedBoolean
	downC  chan struct{}

	mu     sync.Mutex
	onDown []func()
}

func newSocketState(ep Endpoint) socketState {
	return socketState{ep: ep, downC: make(chan struct{})}
}

func (s *socketState) Endpoint() Endpoint {
	return s.ep
}

func (s *socketState) IsDisconnected() bool {
	return s.closed.IsSet()
}

func (s *socketState) DisconnectedChan() <-chan struct{} {
	return s.downC
}

func (s *socketState) OnDisconnected(f func()) {
	s.mu.Lock()
	if !s.closed.IsSet() {
		s.onDown = append(s.onDown, f)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	f()
}

// beginDisconnect reports whether the caller won the transition and must
// tear the channel down.
func (s *socketState) beginDisconnect() bool {
	return s.closed.Set()
}

// finishDisconnect fires the disconnected event. Callbacks run outside
// the lock.
func (s *socketState) finishDisconnect() {
	s.mu.Lock()
	fs := s.onDown
	s.onDown = nil
	s.mu.Unlock()

	close(s.downC)
	for _, f := range fs {
		f()
	}
}

// watchSocket drains sk until it fails, then disconnects it. Components
// whose server sockets are write-only use it to observe peer departure.
func watchSocket(sk Socket) {
	var buf [512]byte
	for {
		if _, err := sk.Read(buf[:]); err != nil {
			sk.Disconnect()
			return
		}
	}
}
