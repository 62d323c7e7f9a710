// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"sync"

	"github.com/glycerine/idem"
)

type pubClient struct {
	sock  Socket
	queue *MessageQueue
}

// Publisher broadcasts each message to every connected subscriber.
// Subscriber queues are unbounded, a slow subscriber's queue grows
// without bound in this revision.
type Publisher struct {
	codec Codec
	proc  *QueueProcessor
	halt  *idem.Halter

	mu        sync.Mutex
	listeners map[string]Listener
	subs      []*pubClient
}

func NewPublisher(codec Codec) *Publisher {
	return &Publisher{
		codec:     codec,
		proc:      NewQueueProcessor(),
		halt:      idem.NewHalter(),
		listeners: make(map[string]Listener),
	}
}

// Bind installs an acceptor at ep. Subscribers from every bound endpoint
// receive every broadcast.
func (p *Publisher) Bind(ep Endpoint) error {
	l, err := Listen(ep)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if _, ok := p.listeners[ep.Key()]; ok {
		p.mu.Unlock()
		l.Close()
		return errBound
	}
	p.listeners[ep.Key()] = l
	p.mu.Unlock()

	go p.accepting(l)
	return nil
}

// Unbind removes the acceptor. Connected subscribers stay until their
// sockets disconnect.
func (p *Publisher) Unbind(ep Endpoint) error {
	p.mu.Lock()
	l, ok := p.listeners[ep.Key()]
	delete(p.listeners, ep.Key())
	p.mu.Unlock()
	if !ok {
		return errNotBound
	}
	return l.Close()
}

// Broadcast marshals m once and enqueues the frame to every subscriber.
func (p *Publisher) Broadcast(m Message) error {
	f, err := p.codec.Marshal(m)
	if err != nil {
		return err
	}

	p.mu.Lock()
	subs := append([]*pubClient(nil), p.subs...)
	p.mu.Unlock()

	for _, c := range subs {
		c.queue.Add(f)
	}
	return nil
}

// SubscriberCount reports currently connected subscribers.
func (p *Publisher) SubscriberCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}

// Close unbinds every endpoint and disconnects every subscriber. Close
// is idempotent and safe from any goroutine.
func (p *Publisher) Close() {
	p.halt.ReqStop.Close()

	p.mu.Lock()
	ls := make([]Listener, 0, len(p.listeners))
	for _, l := range p.listeners {
		ls = append(ls, l)
	}
	p.listeners = make(map[string]Listener)
	subs := append([]*pubClient(nil), p.subs...)
	p.mu.Unlock()

	for _, l := range ls {
		l.Close()
	}
	for _, c := range subs {
		c.sock.Disconnect()
	}
	p.proc.Close()
}

func (p *Publisher) accepting(l Listener) {
	for {
		sk, err := l.Accept()
		if err != nil {
			return
		}
		p.addSubscriber(sk)
	}
}

func (p *Publisher) addSubscriber(sk Socket) {
	c := &pubClient{sock: sk, queue: NewMessageQueue()}

	p.mu.Lock()
	if p.halt.ReqStop.IsClosed() {
		p.mu.Unlock()
		sk.Disconnect()
		return
	}
	p.subs = append(p.subs, c)
	p.mu.Unlock()

	p.proc.Register(c.queue, sk)
	sk.OnDisconnected(func() { p.removeSubscriber(c) })

	go watchSocket(sk)
}

func (p *Publisher) removeSubscriber(c *pubClient) {
	p.mu.Lock()
	for i, o := range p.subs {
		if o == c {
			p.subs = append(p.subs[:i], p.subs[i+1:]...)
			break
		}
	}
	p.mu.Unlock()
	p.proc.Unregister(c.queue)
}
