// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"net"
)

// netconnSocket adapts a net.Conn to the Socket interface. Closing the
// conn is what unblocks a pending read on disconnect.
type netconnSocket struct {
	socketState
	conn net.Conn
}

func newNetconnSocket(ep Endpoint, conn net.Conn) *netconnSocket {
	return &netconnSocket{socketState: newSocketState(ep), conn: conn}
}

func (s *netconnSocket) Read(p []byte) (int, error) {
	return s.conn.Read(p)
}

func (s *netconnSocket) Write(p []byte) (int, error) {
	return s.conn.Write(p)
}

func (s *netconnSocket) Disconnect() {
	if !s.beginDisconnect() {
		return
	}
	s.conn.Close()
	s.finishDisconnect()
}

func dialNetconn(ep Endpoint) (Socket, error) {
	conn, err := net.Dial("tcp", ep.addr())
	if err != nil {
		return nil, err
	}
	return newNetconnSocket(ep, conn), nil
}

type netconnListener struct {
	ep Endpoint
	l  net.Listener
}

func listenNetconn(ep Endpoint) (Listener, error) {
	l, err := net.Listen("tcp", ep.addr())
	if err != nil {
		return nil, err
	}
	return &netconnListener{ep: ep, l: l}, nil
}

func (l *netconnListener) Endpoint() Endpoint {
	return l.ep
}

func (l *netconnListener) Accept() (Socket, error) {
	conn, err := l.l.Accept()
	if err != nil {
		return nil, errListenerClosed
	}
	return newNetconnSocket(l.ep, conn), nil
}

func (l *netconnListener) Close() error {
	return l.l.Close()
}
