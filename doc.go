// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package msghub provides message-passing patterns over pluggable
// transports: request/response, publish/subscribe, and a work-dispatching
// service queue that fans pending frames out to connected workers.
//
// Messages travel as frames, a frame is a 2-byte little-endian type id,
// a 4-byte little-endian body length and the body. The transport layer is
// defined by the Socket and Listener interfaces, there are three default
// implementations:
//
//	inproc://  shared byte-queue stream inside one process
//	tcp://     stream socket over net.Conn
//	ws://      binary messages over a gorilla websocket connection
//
// Here is a quick example of the service-queue pattern.
//
// Dispatcher
//
//	codec := msghub.RawCodec{}
//
//	sq := msghub.NewServiceQueue(msghub.LoadBalance)
//	defer sq.Close()
//
//	ep, _ := msghub.ParseEndpoint("tcp://localhost:7000/")
//	if err := sq.Bind(ep); err != nil {
//		log.Fatal(err)
//	}
//
//	f, _ := codec.Marshal(&msghub.RawMessage{ID: 1, Data: []byte("job")})
//	sq.AddMessageFrame(f)
//
// Worker
//
//	r := msghub.NewServiceQueueReader(msghub.RawCodec{})
//	r.MessageReceived = func(m msghub.Message) {
//		log.Printf("job: %s", m.(*msghub.RawMessage).Data)
//	}
//	if err := r.Connect(ep); err != nil {
//		log.Fatal(err)
//	}
//	defer r.Disconnect()
//
// And of request/response.
//
// Server
//
//	echo := msghub.WorkUnitFactoryFunc(func(req msghub.Message) msghub.WorkUnit {
//		return msghub.WorkUnitFunc(func(ctx context.Context) msghub.Message {
//			return req
//		})
//	})
//
//	resp := msghub.NewResponder(msghub.RawCodec{}, echo, 1, 4)
//	defer resp.Close()
//	if err := resp.Bind(ep); err != nil {
//		log.Fatal(err)
//	}
//
// Client
//
//	rq := msghub.NewRequester(msghub.RawCodec{})
//	if err := rq.Connect(ep); err != nil {
//		log.Fatal(err)
//	}
//	defer rq.Disconnect(true)
//
//	reply, err := rq.Request(context.Background(), &msghub.RawMessage{ID: 1, Data: []byte("ping")})
//
// Message payload serialization is delegated to the Codec interface,
// RawCodec and RegistryCodec are the defaults.
package msghub
