// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"sync"
	"sync/atomic"

	"github.com/glycerine/idem"
)

// Rotation selects which connected worker receives the next frame.
type Rotation int

const (
	// FirstIdle picks the earliest-connected worker with nothing in
	// flight. With no idle worker dispatch blocks until one drains or a
	// new worker connects.
	FirstIdle Rotation = iota
	// LoadBalance picks the worker with the fewest frames in flight,
	// earliest-connected on ties. Dispatch never blocks while a worker
	// exists.
	LoadBalance
)

// sqWorker pairs a remote worker socket with its outbound queue.
// inFlight counts frames handed to the queue whose write has not
// completed yet, it is decremented by the queue's flush callback.
type sqWorker struct {
	sock     Socket
	queue    *MessageQueue
	inFlight int64
}

// ServiceQueue is a lossless work router. Frames added from any
// goroutine are fanned out to connected workers under the configured
// rotation. Frames added while no worker is connected are retained and
// delivered, in insertion order, once one appears.
type ServiceQueue struct {
	rotation Rotation
	proc     *QueueProcessor
	halt     *idem.Halter
	wake     chan struct{}

	mu        sync.Mutex
	pending   []MessageFrame
	workers   []*sqWorker // connect order
	listeners map[string]Listener
}

func NewServiceQueue(rotation Rotation) *ServiceQueue {
	s := &ServiceQueue{
		rotation:  rotation,
		proc:      NewQueueProcessor(),
		halt:      idem.NewHalter(),
		wake:      make(chan struct{}, 1),
		listeners: make(map[string]Listener),
	}
	go s.dispatch()
	return s
}

// Bind installs an acceptor at ep. Workers from every bound endpoint
// join the same worker set.
func (s *ServiceQueue) Bind(ep Endpoint) error {
	l, err := Listen(ep)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, ok := s.listeners[ep.Key()]; ok {
		s.mu.Unlock()
		l.Close()
		return errBound
	}
	s.listeners[ep.Key()] = l
	s.mu.Unlock()

	go s.accepting(l)
	return nil
}

// Unbind removes the acceptor. Already connected workers remain until
// their sockets disconnect.
func (s *ServiceQueue) Unbind(ep Endpoint) error {
	s.mu.Lock()
	l, ok := s.listeners[ep.Key()]
	delete(s.listeners, ep.Key())
	s.mu.Unlock()
	if !ok {
		return errNotBound
	}
	return l.Close()
}

// AddMessageFrame enqueues one frame for dispatch. It is safe from any
// goroutine and never blocks.
func (s *ServiceQueue) AddMessageFrame(f MessageFrame) {
	s.mu.Lock()
	s.pending = append(s.pending, f)
	s.mu.Unlock()
	s.wakeUp()
}

// PendingCount reports frames accepted but not yet handed to a worker.
func (s *ServiceQueue) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WorkerCount reports currently connected workers.
func (s *ServiceQueue) WorkerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workers)
}

// Close unbinds every endpoint, disconnects every worker and stops the
// dispatcher. Close is idempotent and safe from any goroutine.
func (s *ServiceQueue) Close() {
	s.halt.ReqStop.Close()
	s.wakeUp()

	s.mu.Lock()
	ls := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		ls = append(ls, l)
	}
	s.listeners = make(map[string]Listener)
	ws := append([]*sqWorker(nil), s.workers...)
	s.mu.Unlock()

	for _, l := range ls {
		l.Close()
	}
	for _, w := range ws {
		w.sock.Disconnect()
	}

	<-s.halt.Done.Chan
	s.proc.Close()
}

func (s *ServiceQueue) wakeUp() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *ServiceQueue) accepting(l Listener) {
	for {
		sk, err := l.Accept()
		if err != nil {
			return
		}
		s.addWorker(sk)
	}
}

func (s *ServiceQueue) addWorker(sk Socket) {
	w := &sqWorker{sock: sk, queue: NewMessageQueue()}
	w.queue.SetOnFlush(func(n int) {
		atomic.AddInt64(&w.inFlight, int64(-n))
		s.wakeUp()
	})

	s.mu.Lock()
	if s.halt.ReqStop.IsClosed() {
		s.mu.Unlock()
		sk.Disconnect()
		return
	}
	s.workers = append(s.workers, w)
	s.mu.Unlock()

	s.proc.Register(w.queue, sk)
	sk.OnDisconnected(func() { s.removeWorker(w) })

	// workers never send, watching the socket is how departure is seen.
	go watchSocket(sk)

	s.wakeUp()
}

func (s *ServiceQueue) removeWorker(w *sqWorker) {
	s.mu.Lock()
	for i, o := range s.workers {
		if o == w {
			s.workers = append(s.workers[:i], s.workers[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	// frames already handed to the worker's queue are dropped with it.
	s.proc.Unregister(w.queue)
	s.wakeUp()
}

func (s *ServiceQueue) dispatch() {
	defer s.halt.Done.Close()

	for {
		select {
		case <-s.halt.ReqStop.Chan:
			return
		case <-s.wake:
		}

		for {
			f, w, ok := s.next()
			if !ok {
				break
			}
			atomic.AddInt64(&w.inFlight, 1)
			w.queue.Add(f)
		}
	}
}

// next pops the head frame only when a worker is eligible under the
// rotation, keeping dispatch FIFO with respect to AddMessageFrame.
func (s *ServiceQueue) next() (MessageFrame, *sqWorker, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 || len(s.workers) == 0 {
		return MessageFrame{}, nil, false
	}

	w := s.selectWorker()
	if w == nil {
		return MessageFrame{}, nil, false
	}

	f := s.pending[0]
	s.pending = s.pending[1:]
	return f, w, true
}

func (s *ServiceQueue) selectWorker() *sqWorker {
	switch s.rotation {
	case FirstIdle:
		for _, w := range s.workers {
			if atomic.LoadInt64(&w.inFlight) == 0 {
				return w
			}
		}
		return nil
	default: // LoadBalance
		var best *sqWorker
		var bestN int64
		for _, w := range s.workers {
			n := atomic.LoadInt64(&w.inFlight)
			if best == nil || n < bestN {
				best, bestN = w, n
			}
		}
		return best
	}
}

// ServiceQueueReader connects to a bound service queue and receives
// dispatched messages.
//
// A reader may disconnect and connect again, to the same endpoint or
// another one, and resume receiving newly added frames.
type ServiceQueueReader struct {
	codec Codec

	// MessageReceived fires for every dispatched message. Set before
	// Connect.
	MessageReceived func(m Message)

	mu   sync.Mutex
	loop *ReceiveLoop
}

func NewServiceQueueReader(codec Codec) *ServiceQueueReader {
	return &ServiceQueueReader{codec: codec}
}

func (r *ServiceQueueReader) Connect(ep Endpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.loop != nil {
		return errConnected
	}

	sk, err := Dial(ep)
	if err != nil {
		return err
	}

	loop := NewReceiveLoop(sk, r.codec, ReceiveLoopEvents{
		MessageReceived: func(m Message) {
			if r.MessageReceived != nil {
				r.MessageReceived(m)
			}
		},
	})
	loop.Start(nil)
	r.loop = loop
	return nil
}

func (r *ServiceQueueReader) Disconnect() {
	r.mu.Lock()
	loop := r.loop
	r.loop = nil
	r.mu.Unlock()
	if loop == nil {
		return
	}
	loop.Stop()
	<-loop.StopD()
}
