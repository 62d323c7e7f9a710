// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"sync"
	"sync/atomic"

	"github.com/glycerine/idem"
)

// MessageQueue is an unbounded FIFO of frames feeding exactly one
// outbound socket while registered with a QueueProcessor.
//
// MessageQueue supports concurrent producers.
type MessageQueue struct {
	mu     sync.Mutex
	frames []MessageFrame
	notify func()

	// onFlush, if set, runs after a batch of n frames reached the
	// socket write. The service queue hangs its in-flight accounting
	// off it.
	onFlush func(n int)
}

func NewMessageQueue() *MessageQueue {
	return &MessageQueue{}
}

// Add enqueues one frame.
func (q *MessageQueue) Add(f MessageFrame) {
	q.mu.Lock()
	q.frames = append(q.frames, f)
	notify := q.notify
	q.mu.Unlock()
	if notify != nil {
		notify()
	}
}

// AddBatch enqueues frames preserving their order.
func (q *MessageQueue) AddBatch(fs []MessageFrame) {
	if len(fs) == 0 {
		return
	}
	q.mu.Lock()
	q.frames = append(q.frames, fs...)
	notify := q.notify
	q.mu.Unlock()
	if notify != nil {
		notify()
	}
}

func (q *MessageQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.frames)
}

// SetOnFlush must be called before the queue is registered.
func (q *MessageQueue) SetOnFlush(f func(n int)) {
	q.mu.Lock()
	q.onFlush = f
	q.mu.Unlock()
}

func (q *MessageQueue) setNotify(f func()) {
	q.mu.Lock()
	q.notify = f
	pending := len(q.frames) > 0
	q.mu.Unlock()
	if f != nil && pending {
		f()
	}
}

func (q *MessageQueue) drain() []MessageFrame {
	q.mu.Lock()
	fs := q.frames
	q.frames = nil
	q.mu.Unlock()
	return fs
}

func (q *MessageQueue) flushCallback() func(n int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.onFlush
}

// QueueProcessorStatistics counts traffic through the processor worker.
type QueueProcessorStatistics struct {
	WrittenFrames int64
	WrittenBytes  int64
}

// QueueProcessor owns one worker goroutine that drains signaled message
// queues into batched framed writes on their sockets.
//
// On a write failure the queue is unregistered and the socket
// disconnected, frames still queued are dropped. Higher-level patterns
// decide whether to resend.
type QueueProcessor struct {
	halt   *idem.Halter
	signal chan struct{}

	mu     sync.Mutex
	queues map[*MessageQueue]Socket

	stat QueueProcessorStatistics
}

func NewQueueProcessor() *QueueProcessor {
	p := &QueueProcessor{
		halt:   idem.NewHalter(),
		signal: make(chan struct{}, 1),
		queues: make(map[*MessageQueue]Socket),
	}
	go p.work()
	return p
}

// Register associates q with sk. Registration is idempotent.
func (p *QueueProcessor) Register(q *MessageQueue, sk Socket) {
	p.mu.Lock()
	if _, ok := p.queues[q]; ok {
		p.mu.Unlock()
		return
	}
	p.queues[q] = sk
	p.mu.Unlock()

	q.setNotify(p.wake)
}

// Unregister detaches q. Unregistration is idempotent, frames still
// queued are not delivered.
func (p *QueueProcessor) Unregister(q *MessageQueue) {
	p.mu.Lock()
	_, ok := p.queues[q]
	delete(p.queues, q)
	p.mu.Unlock()
	if ok {
		q.setNotify(nil)
	}
}

// Close stops the worker. Close is idempotent.
func (p *QueueProcessor) Close() {
	p.halt.ReqStop.Close()
	<-p.halt.Done.Chan
}

func (p *QueueProcessor) Statistics() QueueProcessorStatistics {
	return QueueProcessorStatistics{
		WrittenFrames: atomic.LoadInt64(&p.stat.WrittenFrames),
		WrittenBytes:  atomic.LoadInt64(&p.stat.WrittenBytes),
	}
}

func (p *QueueProcessor) wake() {
	select {
	case p.signal <- struct{}{}:
	default:
	}
}

func (p *QueueProcessor) work() {
	defer p.halt.Done.Close()

	for {
		select {
		case <-p.halt.ReqStop.Chan:
			return
		case <-p.signal:
		}

		for p.processOnce() {
			select {
			case <-p.halt.ReqStop.Chan:
				return
			default:
			}
		}
	}
}

// processOnce flushes every queue with pending frames, reporting whether
// it moved anything.
func (p *QueueProcessor) processOnce() bool {
	p.mu.Lock()
	type binding struct {
		q  *MessageQueue
		sk Socket
	}
	var ready []binding
	for q, sk := range p.queues {
		if q.Len() > 0 {
			ready = append(ready, binding{q, sk})
		}
	}
	p.mu.Unlock()

	moved := false
	for _, b := range ready {
		fs := b.q.drain()
		if len(fs) == 0 {
			continue
		}
		moved = true

		if err := WriteFrames(b.sk, fs); err != nil {
			p.Unregister(b.q)
			b.sk.Disconnect()
			continue
		}

		var size int64
		for _, f := range fs {
			size += int64(f.encodedSize())
		}
		atomic.AddInt64(&p.stat.WrittenFrames, int64(len(fs)))
		atomic.AddInt64(&p.stat.WrittenBytes, size)

		if cb := b.q.flushCallback(); cb != nil {
			cb(len(fs))
		}
	}
	return moved
}
