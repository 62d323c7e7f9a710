package msghub

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func waitSubscriberCount(test *testing.T, p *Publisher, want int) {
	test.Helper()
	deadline := time.Now().Add(1 * time.Second)
	for p.SubscriberCount() != want {
		if time.Now().After(deadline) {
			test.Fatal("publisher: subscriber count", p.SubscriberCount(), want)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestPublishSubscribe(test *testing.T) {
	ep := NewEndpoint(Inproc, "test", 0, "/pubsub")

	pub := NewPublisher(RawCodec{})
	defer pub.Close()
	if err := pub.Bind(ep); err != nil {
		test.Fatal(err)
	}

	const subs = 2
	const msgs = 3

	type sink struct {
		mu  sync.Mutex
		got []string
		n   *CounterSignal
	}

	var sinks [subs]*sink
	for i := range sinks {
		sk := &sink{n: NewCounterSignal(msgs)}
		sinks[i] = sk

		sub := NewSubscriber(RawCodec{})
		sub.MessageReceived = func(m Message) {
			sk.mu.Lock()
			sk.got = append(sk.got, string(m.(*RawMessage).Data))
			sk.mu.Unlock()
			sk.n.Increment()
		}
		if err := sub.Connect(ep); err != nil {
			test.Fatal(err)
		}
		defer sub.Disconnect()
	}
	waitSubscriberCount(test, pub, subs)

	for i := 0; i < msgs; i++ {
		if err := pub.Broadcast(&RawMessage{ID: 1, Data: []byte(fmt.Sprint("b", i))}); err != nil {
			test.Fatal(err)
		}
	}

	for i, sk := range sinks {
		if !sk.n.Wait(1 * time.Second) {
			test.Fatal("publisher: delivery", i)
		}
		sk.mu.Lock()
		for j, s := range sk.got {
			if s != fmt.Sprint("b", j) {
				test.Fatal("publisher: order", i, sk.got)
			}
		}
		sk.mu.Unlock()
	}
}

func TestPublisherSubscriberLeaves(test *testing.T) {
	ep := NewEndpoint(Inproc, "test", 0, "/pub-leave")

	pub := NewPublisher(RawCodec{})
	defer pub.Close()
	if err := pub.Bind(ep); err != nil {
		test.Fatal(err)
	}

	sub := NewSubscriber(RawCodec{})
	sub.MessageReceived = func(Message) {}
	if err := sub.Connect(ep); err != nil {
		test.Fatal(err)
	}
	waitSubscriberCount(test, pub, 1)

	if err := sub.Connect(ep); err != errConnected {
		test.Fatal("subscriber: double connect", err)
	}

	sub.Disconnect()
	waitSubscriberCount(test, pub, 0)

	// broadcasting into an empty room is fine.
	if err := pub.Broadcast(&RawMessage{ID: 1, Data: []byte("void")}); err != nil {
		test.Fatal(err)
	}

	if err := pub.Unbind(ep); err != nil {
		test.Fatal(err)
	}
	if err := pub.Unbind(ep); err != errNotBound {
		test.Fatal("publisher: double unbind", err)
	}
}
