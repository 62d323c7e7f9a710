// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var (
	errWebsocketMessageType = errors.New("websocket io: need binary message")
)

// websocketSocket presents a gorilla connection as a byte stream. Each
// socket write maps to one binary websocket message, reads reassemble
// the stream from message boundaries.
type websocketSocket struct {
	socketState
	conn *websocket.Conn

	rmu  sync.Mutex
	rbuf []byte

	wmu sync.Mutex
}

func newWebsocketSocket(ep Endpoint, conn *websocket.Conn) *websocketSocket {
	return &websocketSocket{socketState: newSocketState(ep), conn: conn}
}

func (s *websocketSocket) Read(p []byte) (int, error) {
	s.rmu.Lock()
	defer s.rmu.Unlock()
	for len(s.rbuf) == 0 {
		mt, data, err := s.conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if mt != websocket.BinaryMessage {
			return 0, errWebsocketMessageType
		}
		s.rbuf = data
	}
	n := copy(p, s.rbuf)
	s.rbuf = s.rbuf[n:]
	return n, nil
}

func (s *websocketSocket) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (s *websocketSocket) Disconnect() {
	if !s.beginDisconnect() {
		return
	}
	s.conn.Close()
	s.finishDisconnect()
}

func dialWebsocket(ep Endpoint) (Socket, error) {
	conn, resp, err := websocket.DefaultDialer.Dial(ep.String(), nil)
	if err != nil {
		return nil, err
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	return newWebsocketSocket(ep, conn), nil
}

type websocketListener struct {
	ep     Endpoint
	srv    *http.Server
	connC  chan *websocketSocket
	stopC  chan struct{}
	closed InterlockedBoolean
}

func listenWebsocket(ep Endpoint) (Listener, error) {
	nl, err := net.Listen("tcp", ep.addr())
	if err != nil {
		return nil, err
	}

	l := &websocketListener{
		ep:    ep,
		connC: make(chan *websocketSocket),
		stopC: make(chan struct{}),
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}

	mux := http.NewServeMux()
	mux.HandleFunc(ep.Path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sk := newWebsocketSocket(l.ep, conn)
		select {
		case l.connC <- sk:
		case <-l.stopC:
			sk.Disconnect()
		}
	})

	l.srv = &http.Server{Handler: mux}
	go l.srv.Serve(nl)

	return l, nil
}

func (l *websocketListener) Endpoint() Endpoint {
	return l.ep
}

func (l *websocketListener) Accept() (Socket, error) {
	select {
	case sk := <-l.connC:
		return sk, nil
	case <-l.stopC:
		return nil, errListenerClosed
	}
}

func (l *websocketListener) Close() error {
	if !l.closed.Set() {
		return nil
	}
	close(l.stopC)
	return l.srv.Close()
}
