// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"bufio"
	"context"
	"sync/atomic"

	"github.com/someonegg/gox/syncx"
)

// ReceiveLoopStatistics counts inbound traffic.
type ReceiveLoopStatistics struct {
	ReceivedFrames int64
	ReceivedBytes  int64
}

// ReceiveLoopEvents are the receive loop's callbacks. MessageReceived is
// required, the error callbacks may be nil. Callbacks run on the loop
// goroutine, no lock is held during fan-out.
type ReceiveLoopEvents struct {
	MessageReceived             func(m Message)
	MessageDeserializationError func(err error)
	SocketError                 func(err error)
}

// ReceiveLoop continuously decodes frames from one socket and delivers
// messages, in the manner of a one-directional pump.
//
// Lifecycle: Start, running, Stop or socket disconnect, terminal. A
// deserialization failure or transport error also terminates the loop
// and disconnects the socket.
type ReceiveLoop struct {
	sock   Socket
	codec  Codec
	events ReceiveLoopEvents

	err   error
	quitF context.CancelFunc
	stopD syncx.DoneChan

	stat ReceiveLoopStatistics
}

func NewReceiveLoop(sock Socket, codec Codec, events ReceiveLoopEvents) *ReceiveLoop {
	return &ReceiveLoop{
		sock:   sock,
		codec:  codec,
		events: events,
		stopD:  syncx.NewDoneChan(),
	}
}

// Start launches the loop goroutine.
func (l *ReceiveLoop) Start(parent context.Context) {
	if parent == nil {
		parent = context.Background()
	}
	var ctx context.Context
	ctx, l.quitF = context.WithCancel(parent)

	go l.reading(ctx)
	go l.monitor(ctx)
}

func (l *ReceiveLoop) monitor(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-l.stopD:
	}
	// unblock a pending read.
	l.sock.Disconnect()
}

func (l *ReceiveLoop) reading(ctx context.Context) {
	defer l.stopD.SetDone()

	fr := NewFrameReader(bufio.NewReader(l.sock))
	for {
		f, err := fr.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() == nil && !l.sock.IsDisconnected() {
				l.err = err
				if l.events.SocketError != nil {
					l.events.SocketError(err)
				}
			}
			l.sock.Disconnect()
			return
		}

		atomic.AddInt64(&l.stat.ReceivedFrames, 1)
		atomic.AddInt64(&l.stat.ReceivedBytes, int64(f.encodedSize()))

		m, err := l.codec.Unmarshal(f)
		if err != nil {
			l.err = err
			if l.events.MessageDeserializationError != nil {
				l.events.MessageDeserializationError(err)
			}
			l.sock.Disconnect()
			return
		}

		l.events.MessageReceived(m)

		select {
		case <-ctx.Done():
			l.sock.Disconnect()
			return
		default:
		}
	}
}

// Stop requests termination, the loop stops asynchronously.
func (l *ReceiveLoop) Stop() {
	l.quitF()
	l.sock.Disconnect()
}

// StopD is signaled once the loop has terminated.
func (l *ReceiveLoop) StopD() syncx.DoneChanR {
	return l.stopD.R()
}

func (l *ReceiveLoop) Stopped() bool {
	return l.stopD.R().Done()
}

// Error can only be called after the loop stopped.
func (l *ReceiveLoop) Error() error {
	return l.err
}

func (l *ReceiveLoop) Socket() Socket {
	return l.sock
}

func (l *ReceiveLoop) Statistics() ReceiveLoopStatistics {
	return ReceiveLoopStatistics{
		ReceivedFrames: atomic.LoadInt64(&l.stat.ReceivedFrames),
		ReceivedBytes:  atomic.LoadInt64(&l.stat.ReceivedBytes),
	}
}
