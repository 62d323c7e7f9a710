// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"sync"
)

// Subscriber connects to a publisher and receives broadcasts.
type Subscriber struct {
	codec Codec

	// MessageReceived fires for every broadcast message. Set before
	// Connect.
	MessageReceived func(m Message)

	mu   sync.Mutex
	loop *ReceiveLoop
}

func NewSubscriber(codec Codec) *Subscriber {
	return &Subscriber{codec: codec}
}

func (s *Subscriber) Connect(ep Endpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loop != nil {
		return errConnected
	}

	sk, err := Dial(ep)
	if err != nil {
		return err
	}

	loop := NewReceiveLoop(sk, s.codec, ReceiveLoopEvents{
		MessageReceived: func(m Message) {
			if s.MessageReceived != nil {
				s.MessageReceived(m)
			}
		},
	})
	loop.Start(nil)
	s.loop = loop
	return nil
}

func (s *Subscriber) Disconnect() {
	s.mu.Lock()
	loop := s.loop
	s.loop = nil
	s.mu.Unlock()
	if loop == nil {
		return
	}
	loop.Stop()
	<-loop.StopD()
}
