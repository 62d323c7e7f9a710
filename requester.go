// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrRequesterStopped reports a request interrupted by disconnect.
	ErrRequesterStopped = errors.New("msghub: requester stopped")
)

// Requester is the client side of the request/response pattern. One
// request is in flight at a time, concurrent Request calls serialize.
type Requester struct {
	codec Codec

	mu    sync.Mutex
	sock  Socket
	loop  *ReceiveLoop
	respC chan Message

	reqMu sync.Mutex
}

func NewRequester(codec Codec) *Requester {
	return &Requester{codec: codec}
}

func (r *Requester) Connect(ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sock != nil {
		return errConnected
	}

	sk, err := Dial(ep)
	if err != nil {
		return err
	}

	respC := make(chan Message, 1)
	loop := NewReceiveLoop(sk, r.codec, ReceiveLoopEvents{
		MessageReceived: func(m Message) {
			select {
			case respC <- m:
			default:
			}
		},
	})
	loop.Start(nil)

	r.sock, r.loop, r.respC = sk, loop, respC
	return nil
}

// Disconnect closes the connection. Stopping the receive loop closes the
// socket at once, an in-flight request then returns ErrRequesterStopped.
// With waitForExit Disconnect also waits for the receive loop's stop
// latch before returning, without it Disconnect returns immediately.
func (r *Requester) Disconnect(waitForExit bool) {
	r.mu.Lock()
	sock, loop := r.sock, r.loop
	r.sock, r.loop, r.respC = nil, nil, nil
	r.mu.Unlock()
	if sock == nil {
		return
	}

	loop.Stop()
	if waitForExit {
		<-loop.StopD()
	}
	sock.Disconnect()
}

// Request sends m and blocks for the response, honoring ctx.
func (r *Requester) Request(ctx context.Context, m Message) (Message, error) {
	r.reqMu.Lock()
	defer r.reqMu.Unlock()

	r.mu.Lock()
	sock, loop, respC := r.sock, r.loop, r.respC
	r.mu.Unlock()
	if sock == nil {
		return nil, errNotConnected
	}

	f, err := r.codec.Marshal(m)
	if err != nil {
		return nil, err
	}

	// a response abandoned by an earlier cancelled request is stale.
	select {
	case <-respC:
	default:
	}

	if err := WriteFrameContext(ctx, sock, f); err != nil {
		return nil, err
	}

	select {
	case resp := <-respC:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-loop.StopD():
		return nil, ErrRequesterStopped
	}
}
