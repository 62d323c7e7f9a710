// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"sync"

	"github.com/glycerine/idem"
)

type responderClient struct {
	sock  Socket
	queue *MessageQueue
	loop  *ReceiveLoop
}

// Responder serves request/response endpoints. Each decoded request
// produces a work unit via the injected factory, the unit runs on the
// bounded scheduler pool and its response is funneled back through the
// originating client's outbound queue in completion order.
type Responder struct {
	codec   Codec
	factory WorkUnitFactory
	sched   *workScheduler
	proc    *QueueProcessor
	halt    *idem.Halter

	// ClientConnected and ClientDisconnected may be set before the
	// first Bind. They fire from transport goroutines.
	ClientConnected    func(ep Endpoint)
	ClientDisconnected func(ep Endpoint)

	mu        sync.Mutex
	listeners map[string]Listener
	clients   map[*ReceiveLoop]*responderClient
}

func NewResponder(codec Codec, factory WorkUnitFactory, minWorkers, maxWorkers int) *Responder {
	return &Responder{
		codec:     codec,
		factory:   factory,
		sched:     newWorkScheduler(minWorkers, maxWorkers),
		proc:      NewQueueProcessor(),
		halt:      idem.NewHalter(),
		listeners: make(map[string]Listener),
		clients:   make(map[*ReceiveLoop]*responderClient),
	}
}

// Bind installs an acceptor at ep.
func (r *Responder) Bind(ep Endpoint) error {
	l, err := Listen(ep)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if _, ok := r.listeners[ep.Key()]; ok {
		r.mu.Unlock()
		l.Close()
		return errBound
	}
	r.listeners[ep.Key()] = l
	r.mu.Unlock()

	go r.accepting(l)
	return nil
}

// Unbind removes the acceptor. Connected clients stay until their
// sockets disconnect.
func (r *Responder) Unbind(ep Endpoint) error {
	r.mu.Lock()
	l, ok := r.listeners[ep.Key()]
	delete(r.listeners, ep.Key())
	r.mu.Unlock()
	if !ok {
		return errNotBound
	}
	return l.Close()
}

// Close unbinds every endpoint, disconnects every client and stops the
// scheduler. Close is idempotent and safe from any goroutine.
func (r *Responder) Close() {
	r.halt.ReqStop.Close()

	r.mu.Lock()
	ls := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		ls = append(ls, l)
	}
	r.listeners = make(map[string]Listener)
	cs := make([]*responderClient, 0, len(r.clients))
	for _, c := range r.clients {
		cs = append(cs, c)
	}
	r.mu.Unlock()

	for _, l := range ls {
		l.Close()
	}
	for _, c := range cs {
		c.sock.Disconnect()
	}

	r.sched.Close()
	r.proc.Close()
}

func (r *Responder) accepting(l Listener) {
	for {
		sk, err := l.Accept()
		if err != nil {
			return
		}
		r.addClient(sk)
	}
}

// addClient registers the (receive loop, queue, socket) triple
// atomically. If the socket died mid-registration the triple is torn
// down again through the disconnect callback.
func (r *Responder) addClient(sk Socket) {
	c := &responderClient{sock: sk, queue: NewMessageQueue()}
	c.loop = NewReceiveLoop(sk, r.codec, ReceiveLoopEvents{
		MessageReceived: func(m Message) { r.serve(c, m) },
	})

	r.mu.Lock()
	if r.halt.ReqStop.IsClosed() {
		r.mu.Unlock()
		sk.Disconnect()
		return
	}
	r.clients[c.loop] = c
	r.mu.Unlock()

	r.proc.Register(c.queue, sk)
	sk.OnDisconnected(func() { r.removeClient(c) })

	c.loop.Start(nil)

	if r.ClientConnected != nil && !sk.IsDisconnected() {
		r.ClientConnected(sk.Endpoint())
	}
}

func (r *Responder) removeClient(c *responderClient) {
	r.mu.Lock()
	_, ok := r.clients[c.loop]
	delete(r.clients, c.loop)
	r.mu.Unlock()
	if !ok {
		return
	}

	r.proc.Unregister(c.queue)

	if r.ClientDisconnected != nil {
		r.ClientDisconnected(c.sock.Endpoint())
	}
}

// serve schedules one request. The response enqueue is atomic per
// client, so responses leave in the order their units complete.
func (r *Responder) serve(c *responderClient, request Message) {
	unit := r.factory.NewWorkUnit(request)
	r.sched.Submit(schedTask{
		unit: unit,
		done: func(resp Message) {
			if resp == nil {
				return
			}
			f, err := r.codec.Marshal(resp)
			if err != nil {
				return
			}
			c.queue.Add(f)
		},
	})
}
