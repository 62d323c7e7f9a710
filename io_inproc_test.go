package msghub

import (
	"io"
	"sync/atomic"
	"testing"
	"time"
)

func TestByteQueuePartialRead(test *testing.T) {
	q := newByteQueue()
	q.Write([]byte("abcdef"))

	var p [4]byte
	n, err := q.Read(p[:])
	if n != 4 || err != nil || string(p[:n]) != "abcd" {
		test.Fatal("byte queue: partial read", n, err)
	}
	n, err = q.Read(p[:])
	if n != 2 || err != nil || string(p[:n]) != "ef" {
		test.Fatal("byte queue: remainder", n, err)
	}
}

func TestByteQueueBlockingRead(test *testing.T) {
	q := newByteQueue()

	got := make(chan []byte, 1)
	go func() {
		var p [8]byte
		n, _ := q.Read(p[:])
		got <- append([]byte(nil), p[:n]...)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Write([]byte("late"))

	select {
	case b := <-got:
		if string(b) != "late" {
			test.Fatal("byte queue: blocking read", string(b))
		}
	case <-time.After(1 * time.Second):
		test.Fatal("byte queue: read stuck")
	}
}

func TestByteQueueCloseUnblocks(test *testing.T) {
	q := newByteQueue()

	errC := make(chan error, 1)
	go func() {
		var p [8]byte
		_, err := q.Read(p[:])
		errC <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-errC:
		if err != io.EOF {
			test.Fatal("byte queue: close error", err)
		}
	case <-time.After(1 * time.Second):
		test.Fatal("byte queue: read stuck after close")
	}

	if _, err := q.Write([]byte("x")); err != io.ErrClosedPipe {
		test.Fatal("byte queue: write after close", err)
	}
}

func TestInprocConnect(test *testing.T) {
	ep := NewEndpoint(Inproc, "test", 0, "/connect")

	if _, err := dialInproc(ep); err != errInprocRefused {
		test.Fatal("inproc io: dial unbound", err)
	}

	l, err := listenInproc(ep)
	if err != nil {
		test.Fatal(err)
	}
	defer l.Close()

	if _, err := listenInproc(ep); err != errBound {
		test.Fatal("inproc io: double bind", err)
	}

	accepted := make(chan Socket, 1)
	go func() {
		sk, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- sk
	}()

	client, err := dialInproc(ep)
	if err != nil {
		test.Fatal(err)
	}

	var server Socket
	select {
	case server = <-accepted:
	case <-time.After(1 * time.Second):
		test.Fatal("inproc io: accept stuck")
	}

	client.Write([]byte("ping"))
	var p [8]byte
	n, err := server.Read(p[:])
	if err != nil || string(p[:n]) != "ping" {
		test.Fatal("inproc io: transfer", n, err)
	}

	server.Write([]byte("pong"))
	n, err = client.Read(p[:])
	if err != nil || string(p[:n]) != "pong" {
		test.Fatal("inproc io: transfer back", n, err)
	}

	client.Disconnect()
	if _, err := server.Read(p[:]); err != io.EOF {
		test.Fatal("inproc io: peer close", err)
	}
}

func TestSocketDisconnectIdempotent(test *testing.T) {
	client, server := newInprocPair(NewEndpoint(Inproc, "test", 0, "/idem"))
	_ = server

	var events int32
	client.OnDisconnected(func() { atomic.AddInt32(&events, 1) })

	done := make(chan bool)
	for i := 0; i < 8; i++ {
		go func() {
			client.Disconnect()
			done <- true
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if n := atomic.LoadInt32(&events); n != 1 {
		test.Fatal("socket: disconnected events", n)
	}
	if !client.IsDisconnected() {
		test.Fatal("socket: state")
	}

	select {
	case <-client.DisconnectedChan():
	default:
		test.Fatal("socket: disconnected chan")
	}

	// late registration runs immediately.
	fired := false
	client.OnDisconnected(func() { fired = true })
	if !fired {
		test.Fatal("socket: late callback")
	}
}

func TestInprocListenerClose(test *testing.T) {
	ep := NewEndpoint(Inproc, "test", 0, "/lclose")
	l, err := listenInproc(ep)
	if err != nil {
		test.Fatal(err)
	}

	errC := make(chan error, 1)
	go func() {
		_, err := l.Accept()
		errC <- err
	}()

	l.Close()
	l.Close()

	select {
	case err := <-errC:
		if err != errListenerClosed {
			test.Fatal("inproc io: accept after close", err)
		}
	case <-time.After(1 * time.Second):
		test.Fatal("inproc io: accept stuck after close")
	}

	// the name is free again.
	l2, err := listenInproc(ep)
	if err != nil {
		test.Fatal("inproc io: rebind", err)
	}
	l2.Close()
}
