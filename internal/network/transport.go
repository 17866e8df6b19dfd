// Package network carries newline-framed requests over TCP or, optionally,
// over one bidirectional QUIC stream per connection.
package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

const (
	TransportTCP  = "tcp"
	TransportQUIC = "quic"

	defaultDialTimeout = 8 * time.Second
)

var ErrListenerClosed = errors.New("listener closed")

// Conn is one client session. Close must unblock a pending Read.
type Conn interface {
	io.ReadWriteCloser
	RemoteAddr() net.Addr
}

// Listener may ignore the Accept context; Close always unblocks Accept.
type Listener interface {
	Accept(ctx context.Context) (Conn, error)
	Close() error
	Addr() net.Addr
}

func Listen(transport, addr string) (Listener, error) {
	switch transport {
	case "", TransportTCP:
		return ListenTCP(addr)
	case TransportQUIC:
		return ListenQUIC(addr)
	}
	return nil, fmt.Errorf("unknown transport %q", transport)
}

type Dialer struct {
	Transport string
	Timeout   time.Duration
	// InsecureTLS skips QUIC certificate verification. The built-in
	// certificate only covers localhost and 127.0.0.1.
	InsecureTLS bool
}

func (d Dialer) Dial(ctx context.Context, addr string) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	switch d.Transport {
	case "", TransportTCP:
		var nd net.Dialer
		c, err := nd.DialContext(ctx, "tcp", addr)
		if err != nil {
			return nil, err
		}
		return c, nil
	case TransportQUIC:
		return dialQUIC(ctx, addr, d.InsecureTLS)
	}
	return nil, fmt.Errorf("unknown transport %q", d.Transport)
}

// RemoteHost strips the port from a peer address.
func RemoteHost(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
