package msghub

import (
	"context"
	"testing"
	"time"
)

func TestWebsocketTransfer(test *testing.T) {
	ep := NewEndpoint(Websocket, "127.0.0.1", freePort(test), "/hub")

	l, err := Listen(ep)
	if err != nil {
		test.Fatal(err)
	}
	defer l.Close()

	accepted := make(chan Socket, 1)
	go func() {
		sk, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- sk
	}()

	client, err := Dial(ep)
	if err != nil {
		test.Fatal(err)
	}
	defer client.Disconnect()

	var server Socket
	select {
	case server = <-accepted:
	case <-time.After(1 * time.Second):
		test.Fatal("websocket io: accept stuck")
	}
	defer server.Disconnect()

	if _, err := client.Write([]byte("over websocket")); err != nil {
		test.Fatal(err)
	}

	// a short read leaves the rest of the message for the next call.
	var p [4]byte
	n, err := server.Read(p[:])
	if err != nil || string(p[:n]) != "over" {
		test.Fatal("websocket io: transfer", n, err)
	}
	var q [32]byte
	n, err = server.Read(q[:])
	if err != nil || string(q[:n]) != " websocket" {
		test.Fatal("websocket io: remainder", n, err)
	}
}

func TestWebsocketRequestResponse(test *testing.T) {
	ep := NewEndpoint(Websocket, "127.0.0.1", freePort(test), "/echo")

	resp := NewResponder(RawCodec{}, echoFactory, 1, 2)
	defer resp.Close()
	if err := resp.Bind(ep); err != nil {
		test.Fatal(err)
	}

	rq := NewRequester(RawCodec{})
	if err := rq.Connect(ep); err != nil {
		test.Fatal(err)
	}
	defer rq.Disconnect(true)

	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()
	reply, err := rq.Request(ctx, &RawMessage{ID: 2, Data: []byte("ws ping")})
	if err != nil {
		test.Fatal(err)
	}
	if string(reply.(*RawMessage).Data) != "ws ping" {
		test.Fatal("websocket io: echo", reply)
	}
}
