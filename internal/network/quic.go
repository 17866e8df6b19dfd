package network

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"math/big"
	"net"
	"sync"
	"time"

	quic "github.com/quic-go/quic-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/hkdf"
)

const (
	alpnProto = "securetx-line"

	// streamAcceptTimeout bounds how long a new QUIC connection may wait
	// before opening its request stream.
	streamAcceptTimeout = 10 * time.Second
	quicKeepAlive       = 15 * time.Second
)

type zeroReader struct{}

func (zeroReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = 0
	}
	return len(p), nil
}

// devTLSCert derives a fixed self-signed certificate for localhost. QUIC
// requires TLS; request confidentiality comes from the envelope, not from it.
func devTLSCert() (tls.Certificate, []byte, error) {
	seed := make([]byte, ed25519.SeedSize)
	kdf := hkdf.New(sha256.New, []byte("securetx-quic-dev-key"), nil, []byte("tls server key"))
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return tls.Certificate{}, nil, err
	}
	priv := ed25519.NewKeyFromSeed(seed)
	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		NotBefore:    time.Unix(0, 0),
		NotAfter:     time.Date(2099, 1, 1, 0, 0, 0, 0, time.UTC),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}
	der, err := x509.CreateCertificate(zeroReader{}, &template, &template, priv.Public(), priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}
	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}
	return cert, der, nil
}

func serverTLSConfig() (*tls.Config, error) {
	cert, _, err := devTLSCert()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{alpnProto},
	}, nil
}

func clientTLSConfig(insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{
			InsecureSkipVerify: true,
			NextProtos:         []string{alpnProto},
		}, nil
	}
	_, der, err := devTLSCert()
	if err != nil {
		return nil, err
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	pool.AddCert(cert)
	return &tls.Config{
		RootCAs:    pool,
		NextProtos: []string{alpnProto},
	}, nil
}

// quicConn is one QUIC connection reduced to its first bidirectional stream.
type quicConn struct {
	conn   *quic.Conn
	stream *quic.Stream
	once   sync.Once
}

func (c *quicConn) Read(p []byte) (int, error)  { return c.stream.Read(p) }
func (c *quicConn) Write(p []byte) (int, error) { return c.stream.Write(p) }
func (c *quicConn) RemoteAddr() net.Addr        { return c.conn.RemoteAddr() }

// Close tears down the whole connection so a blocked Read returns.
func (c *quicConn) Close() error {
	var err error
	c.once.Do(func() {
		_ = c.stream.Close()
		err = c.conn.CloseWithError(0, "")
	})
	return err
}

type quicListener struct {
	ln     *quic.Listener
	ready  chan Conn
	closed chan struct{}
	once   sync.Once
}

func ListenQUIC(addr string) (Listener, error) {
	tlsConf, err := serverTLSConfig()
	if err != nil {
		return nil, err
	}
	ln, err := quic.ListenAddr(addr, tlsConf, &quic.Config{KeepAlivePeriod: quicKeepAlive})
	if err != nil {
		return nil, err
	}
	l := &quicListener{ln: ln, ready: make(chan Conn), closed: make(chan struct{})}
	go l.acceptLoop()
	return l, nil
}

func (l *quicListener) acceptLoop() {
	for {
		conn, err := l.ln.Accept(context.Background())
		if err != nil {
			select {
			case <-l.closed:
			default:
				log.Warn().Err(err).Msg("quic accept error")
			}
			return
		}
		go l.awaitStream(conn)
	}
}

func (l *quicListener) awaitStream(conn *quic.Conn) {
	ctx, cancel := context.WithTimeout(conn.Context(), streamAcceptTimeout)
	stream, err := conn.AcceptStream(ctx)
	cancel()
	if err != nil {
		log.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("quic stream not opened")
		_ = conn.CloseWithError(0, "")
		return
	}
	c := &quicConn{conn: conn, stream: stream}
	select {
	case l.ready <- c:
	case <-l.closed:
		_ = c.Close()
	}
}

func (l *quicListener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.ready:
		return c, nil
	case <-l.closed:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (l *quicListener) Close() error {
	var err error
	l.once.Do(func() {
		close(l.closed)
		err = l.ln.Close()
	})
	return err
}

func (l *quicListener) Addr() net.Addr {
	return l.ln.Addr()
}

func dialQUIC(ctx context.Context, addr string, insecure bool) (Conn, error) {
	tlsConf, err := clientTLSConfig(insecure)
	if err != nil {
		return nil, err
	}
	conn, err := quic.DialAddr(ctx, addr, tlsConf, &quic.Config{KeepAlivePeriod: quicKeepAlive})
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		_ = conn.CloseWithError(0, "")
		return nil, fmt.Errorf("open quic stream: %w", err)
	}
	return &quicConn{conn: conn, stream: stream}, nil
}
