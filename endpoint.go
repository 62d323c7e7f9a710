// Copyright 2024 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package msghub

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

var (
	errUnknownScheme = errors.New("endpoint: unknown scheme")
	errBadEndpoint   = errors.New("endpoint: malformed uri")
)

// Transport selects the byte channel implementation behind an endpoint.
type Transport int

const (
	Inproc Transport = iota
	TCP
	Websocket
)

func (t Transport) String() string {
	switch t {
	case Inproc:
		return "inproc"
	case TCP:
		return "tcp"
	case Websocket:
		return "ws"
	default:
		return "unknown"
	}
}

// Endpoint names a bindable or connectable address.
//
// Endpoint is a value type, two endpoints naming the same address compare
// equal. The host part is case-insensitive. For TCP the path does not
// participate in identity, a TCP listener owns the whole port.
type Endpoint struct {
	Transport Transport
	Host      string
	Port      uint16
	Path      string
}

func NewEndpoint(t Transport, host string, port uint16, path string) Endpoint {
	if path == "" {
		path = "/"
	}
	return Endpoint{Transport: t, Host: host, Port: port, Path: path}
}

// ParseEndpoint parses "<scheme>://<host>:<port><path>" with
// scheme one of tcp, inproc, ws.
func ParseEndpoint(s string) (Endpoint, error) {
	u, err := url.Parse(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("endpoint %q: %w", s, err)
	}

	var t Transport
	switch strings.ToLower(u.Scheme) {
	case "tcp":
		t = TCP
	case "inproc":
		t = Inproc
	case "ws":
		t = Websocket
	default:
		return Endpoint{}, errUnknownScheme
	}

	var port uint16
	if p := u.Port(); p != "" {
		n, err := strconv.ParseUint(p, 10, 16)
		if err != nil {
			return Endpoint{}, errBadEndpoint
		}
		port = uint16(n)
	}

	return NewEndpoint(t, u.Hostname(), port, u.Path), nil
}

// Key folds the endpoint into its identity string, usable as a map key.
// Equal endpoints produce equal keys.
func (e Endpoint) Key() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	if e.Transport == TCP {
		path = "/"
	}
	return fmt.Sprintf("%v://%v:%v%v", e.Transport, strings.ToLower(e.Host), e.Port, path)
}

// Equal reports endpoint identity, see the type comment.
func (e Endpoint) Equal(o Endpoint) bool {
	return e.Key() == o.Key()
}

func (e Endpoint) String() string {
	path := e.Path
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%v://%v:%v%v", e.Transport, e.Host, e.Port, path)
}

func (e Endpoint) addr() string {
	return fmt.Sprintf("%v:%v", e.Host, e.Port)
}
